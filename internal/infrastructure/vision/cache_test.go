package vision

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/watchfinder/backend/internal/infrastructure/cache"
)

// countingEmbedder stubs the inner client and counts calls
type countingEmbedder struct {
	calls     int
	embedding []float32
	err       error
}

func (c *countingEmbedder) Embed(ctx context.Context, imagePath string) ([]float32, error) {
	c.calls++
	if c.err != nil {
		return nil, c.err
	}
	return c.embedding, nil
}

func TestCachingClient_Embed(t *testing.T) {
	imagePath := writeTestImage(t)

	inner := &countingEmbedder{embedding: []float32{0.25, 0.5, 0.75}}
	client := NewCachingClient(inner, cache.NewMemoryCache(), time.Hour)

	ctx := context.Background()

	first, err := client.Embed(ctx, imagePath)
	require.NoError(t, err)
	assert.Equal(t, []float32{0.25, 0.5, 0.75}, first)
	assert.Equal(t, 1, inner.calls)

	second, err := client.Embed(ctx, imagePath)
	require.NoError(t, err)
	assert.Equal(t, first, second)
	assert.Equal(t, 1, inner.calls, "second call must come from the cache")
}

func TestCachingClient_Embed_InvalidatesOnChange(t *testing.T) {
	imagePath := writeTestImage(t)

	inner := &countingEmbedder{embedding: []float32{0.1}}
	client := NewCachingClient(inner, cache.NewMemoryCache(), time.Hour)

	ctx := context.Background()

	_, err := client.Embed(ctx, imagePath)
	require.NoError(t, err)

	// Rewrite the file with different content and a different mtime
	require.NoError(t, os.WriteFile(imagePath, []byte("replacement-bytes-longer"), 0o644))
	future := time.Now().Add(2 * time.Second)
	require.NoError(t, os.Chtimes(imagePath, future, future))

	_, err = client.Embed(ctx, imagePath)
	require.NoError(t, err)
	assert.Equal(t, 2, inner.calls, "changed file must bypass the stale entry")
}

func TestCachingClient_Embed_MissingFileBypassesCache(t *testing.T) {
	inner := &countingEmbedder{err: errors.New("open failed")}
	client := NewCachingClient(inner, cache.NewMemoryCache(), time.Hour)

	_, err := client.Embed(context.Background(), filepath.Join(t.TempDir(), "gone.jpg"))

	require.Error(t, err)
	assert.Equal(t, 1, inner.calls)
}

func TestCachingClient_Embed_InnerErrorNotCached(t *testing.T) {
	imagePath := writeTestImage(t)

	inner := &countingEmbedder{err: errors.New("service down")}
	client := NewCachingClient(inner, cache.NewMemoryCache(), time.Hour)

	ctx := context.Background()

	_, err := client.Embed(ctx, imagePath)
	require.Error(t, err)

	inner.err = nil
	inner.embedding = []float32{0.9}

	embedding, err := client.Embed(ctx, imagePath)
	require.NoError(t, err)
	assert.Equal(t, []float32{0.9}, embedding)
	assert.Equal(t, 2, inner.calls)
}
