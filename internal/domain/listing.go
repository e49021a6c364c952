package domain

import (
	"encoding/json"
	"time"
)

// Platform identifiers for the supported marketplaces
const (
	PlatformEBay       = "ebay"
	PlatformFacebook   = "facebook"
	PlatformPoshmark   = "poshmark"
	PlatformCraigslist = "craigslist"
	PlatformReddit     = "reddit"
)

// KnownPlatforms lists every marketplace the scrapers cover, in scrape order
var KnownPlatforms = []string{
	PlatformReddit,
	PlatformEBay,
	PlatformCraigslist,
	PlatformPoshmark,
	PlatformFacebook,
}

// Listing represents one scraped marketplace listing
type Listing struct {
	Title      string    `json:"title"`
	Price      string    `json:"price,omitempty"` // pre-formatted, e.g. "$1,250.00"
	URL        string    `json:"url"`
	Platform   string    `json:"platform"`
	ImagePaths []string  `json:"image_paths,omitempty"`
	ScrapedAt  time.Time `json:"scraped_at,omitempty"`
}

// listingJSON mirrors Listing on the wire plus the legacy singular
// image_path field older result files used
type listingJSON struct {
	Title      string    `json:"title"`
	Price      string    `json:"price,omitempty"`
	URL        string    `json:"url"`
	ListingURL string    `json:"listing_url,omitempty"`
	Platform   string    `json:"platform"`
	ImagePaths []string  `json:"image_paths,omitempty"`
	ImagePath  string    `json:"image_path,omitempty"`
	ScrapedAt  time.Time `json:"scraped_at,omitempty"`
}

// UnmarshalJSON folds the legacy singular image_path and listing_url
// spellings into the canonical fields
func (l *Listing) UnmarshalJSON(data []byte) error {
	var raw listingJSON
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}
	l.Title = raw.Title
	l.Price = raw.Price
	l.URL = raw.URL
	if l.URL == "" {
		l.URL = raw.ListingURL
	}
	l.Platform = raw.Platform
	l.ImagePaths = raw.ImagePaths
	if raw.ImagePath != "" {
		l.ImagePaths = append(l.ImagePaths, raw.ImagePath)
	}
	l.ScrapedAt = raw.ScrapedAt
	return nil
}
