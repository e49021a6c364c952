package domain

import (
	"context"
	"time"
)

// CacheRepository defines the interface for caching operations
type CacheRepository interface {
	Get(ctx context.Context, key string) (interface{}, error)
	Set(ctx context.Context, key string, value interface{}, ttl time.Duration) error
	Delete(ctx context.Context, key string) error
	Exists(ctx context.Context, key string) (bool, error)
}

// SessionStore persists everything a search session produces: per-platform
// listing metadata, downloaded images, matcher output and the final summary
type SessionStore interface {
	Create(query string) (sessionID string, err error)
	SaveListings(sessionID, platform string, listings []Listing) error
	SaveImage(sessionID, platform, filename string, data []byte) (path string, err error)
	ListImages(sessionID, platform string) ([]string, error)
	LoadListings(sessionID, platform string) ([]Listing, error)
	SaveMatchDetails(sessionID string, results map[string]PlatformMatchResult) error
	LoadMatchDetails(sessionID string) (map[string]PlatformMatchResult, error)
	SaveSummary(sessionID string, summary *SessionSummary) error
	LoadSummary(sessionID string) (*SessionSummary, error)
	AppendLog(sessionID, line string) error
	SetLatest(sessionID string) error
	Latest() (sessionID string, err error)
	ImagePath(sessionID, platform, filename string) (string, error)
}

// Scraper collects listings for a query from one marketplace, downloading
// listing images into the session as it goes
type Scraper interface {
	Platform() string
	Scrape(ctx context.Context, query, sessionID string) ([]Listing, error)
}

// EmbeddingClient turns an image into a feature vector via an external service
type EmbeddingClient interface {
	Embed(ctx context.Context, imagePath string) ([]float32, error)
}
