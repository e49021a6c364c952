package vision

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"os"
	"time"

	"github.com/watchfinder/backend/internal/domain"
)

// CachingClient wraps an embedding client with a cache keyed on the file's
// path, size and mtime. Reference images get embedded on every search, and
// the vectors never change as long as the file doesn't.
type CachingClient struct {
	inner domain.EmbeddingClient
	cache domain.CacheRepository
	ttl   time.Duration
}

// NewCachingClient creates a caching wrapper around an embedding client
func NewCachingClient(inner domain.EmbeddingClient, cache domain.CacheRepository, ttl time.Duration) *CachingClient {
	if ttl <= 0 {
		ttl = 24 * time.Hour
	}
	return &CachingClient{
		inner: inner,
		cache: cache,
		ttl:   ttl,
	}
}

// Embed returns the cached vector when the file is unchanged, otherwise
// delegates to the wrapped client
func (c *CachingClient) Embed(ctx context.Context, imagePath string) ([]float32, error) {
	key, ok := cacheKey(imagePath)
	if !ok {
		return c.inner.Embed(ctx, imagePath)
	}

	if value, err := c.cache.Get(ctx, key); err == nil {
		if cached, ok := decodeEmbedding(value); ok {
			log.Printf("[vision] cache hit for %s", imagePath)
			return cached, nil
		}
	}

	embedding, err := c.inner.Embed(ctx, imagePath)
	if err != nil {
		return nil, err
	}

	if err := c.cache.Set(ctx, key, embedding, c.ttl); err != nil {
		log.Printf("[vision] cache store failed for %s: %v", imagePath, err)
	}

	return embedding, nil
}

// decodeEmbedding recovers a vector from the cache's generic JSON shapes
func decodeEmbedding(value interface{}) ([]float32, bool) {
	data, err := json.Marshal(value)
	if err != nil {
		return nil, false
	}

	var embedding []float32
	if err := json.Unmarshal(data, &embedding); err != nil {
		return nil, false
	}
	return embedding, len(embedding) > 0
}

// cacheKey builds a key that changes whenever the file does
func cacheKey(imagePath string) (string, bool) {
	info, err := os.Stat(imagePath)
	if err != nil {
		return "", false
	}
	return fmt.Sprintf("embedding:%s:%d:%d", imagePath, info.Size(), info.ModTime().UnixNano()), true
}
