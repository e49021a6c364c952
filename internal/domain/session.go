package domain

import "time"

// SessionInfo identifies one search session
type SessionInfo struct {
	SessionID      string  `json:"session_id"`
	SearchQuery    string  `json:"search_query"`
	Timestamp      string  `json:"timestamp"`
	MatchThreshold float64 `json:"match_threshold"`
}

// ScrapingSummary reports what the scrapers collected during a session
type ScrapingSummary struct {
	PlatformsAttempted []string       `json:"platforms_attempted"`
	PlatformsEnabled   []string       `json:"platforms_enabled"`
	ListingsByPlatform map[string]int `json:"listings_by_platform"`
	ImagesByPlatform   map[string]int `json:"images_by_platform"`
	TotalListings      int            `json:"total_listings"`
	TotalImages        int            `json:"total_images"`
}

// MatchingSummary reports matcher results across all platforms
type MatchingSummary struct {
	TotalImagesAnalyzed int                            `json:"total_images_analyzed"`
	TotalLikelyMatches  int                            `json:"total_likely_matches"`
	MatchRate           string                         `json:"match_rate"` // e.g. "12.5%"
	PlatformBreakdown   map[string]PlatformMatchResult `json:"platform_breakdown"`
}

// SessionSummary is the session_summary.json written at the end of a run
type SessionSummary struct {
	SessionInfo     SessionInfo     `json:"session_info"`
	ScrapingSummary ScrapingSummary `json:"scraping_summary"`
	MatchingSummary MatchingSummary `json:"matching_summary"`
	TopMatches      []MatchDetail   `json:"top_matches"` // best first, max 10
	SessionLog      []string        `json:"session_log"`
}

// SearchStatus describes the state of the background search worker
type SearchStatus struct {
	Running     bool      `json:"running"`
	SessionID   string    `json:"session_id,omitempty"`
	Query       string    `json:"query,omitempty"`
	Platform    string    `json:"platform,omitempty"` // platform currently being scraped
	StartedAt   time.Time `json:"started_at,omitempty"`
	CompletedAt time.Time `json:"completed_at,omitempty"`
	Error       string    `json:"error,omitempty"`
}
