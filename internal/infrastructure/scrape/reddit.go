package scrape

import (
	"context"
	"errors"
	"fmt"
	"html"
	"log"
	"net/url"
	"strings"
	"time"

	"github.com/watchfinder/backend/internal/domain"
)

const redditBaseURL = "https://www.reddit.com"

// redditSearch mirrors the fields we need from Reddit's public JSON API
type redditSearch struct {
	Data struct {
		Children []struct {
			Data redditPost `json:"data"`
		} `json:"children"`
	} `json:"data"`
}

type redditPost struct {
	Title     string        `json:"title"`
	Permalink string        `json:"permalink"`
	URL       string        `json:"url"`
	Preview   redditPreview `json:"preview"`
}

type redditPreview struct {
	Images []redditPreviewImage `json:"images"`
}

type redditPreviewImage struct {
	Source redditImageSource `json:"source"`
}

type redditImageSource struct {
	URL string `json:"url"`
}

// Reddit collects image posts from watch-trading subreddits via the public
// JSON API; no HTML parsing needed
type Reddit struct {
	client     *Client
	store      ImageSaver
	baseURL    string
	subreddits []string
	maxResults int
}

// NewReddit creates a Reddit scraper over the given subreddits
func NewReddit(client *Client, store ImageSaver, baseURL string, subreddits []string, maxResults int) *Reddit {
	if baseURL == "" {
		baseURL = redditBaseURL
	}
	if len(subreddits) == 0 {
		subreddits = []string{"Watches"}
	}
	if maxResults <= 0 {
		maxResults = 10
	}
	return &Reddit{
		client:     client,
		store:      store,
		baseURL:    baseURL,
		subreddits: subreddits,
		maxResults: maxResults,
	}
}

// Platform identifies this scraper
func (r *Reddit) Platform() string { return domain.PlatformReddit }

// Scrape searches each subreddit in turn until the cap is reached
func (r *Reddit) Scrape(ctx context.Context, query, sessionID string) ([]domain.Listing, error) {
	var listings []domain.Listing

	for i, sub := range r.subreddits {
		if len(listings) >= r.maxResults {
			break
		}
		if i > 0 {
			if err := r.client.Pause(ctx); err != nil {
				return listings, err
			}
		}

		subListings, err := r.scrapeSubreddit(ctx, sub, query, sessionID, r.maxResults-len(listings))
		if err != nil {
			if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
				return listings, err
			}
			log.Printf("[reddit] r/%s failed: %v", sub, err)
			continue
		}
		listings = append(listings, subListings...)
	}

	log.Printf("[reddit] scraped %d listings for %q", len(listings), query)
	return listings, nil
}

func (r *Reddit) scrapeSubreddit(ctx context.Context, subreddit, query, sessionID string, limit int) ([]domain.Listing, error) {
	searchURL := fmt.Sprintf("%s/r/%s/search.json?q=%s&restrict_sr=on&sort=relevance&limit=%d",
		r.baseURL, subreddit, url.QueryEscape(query), limit)
	log.Printf("[reddit] searching r/%s: %s", subreddit, searchURL)

	var resp redditSearch
	if err := r.client.FetchJSON(ctx, searchURL, &resp); err != nil {
		return nil, err
	}

	var listings []domain.Listing
	for _, child := range resp.Data.Children {
		if len(listings) >= limit {
			break
		}
		if ctx.Err() != nil {
			return listings, ctx.Err()
		}

		post := child.Data
		imgURL := postImageURL(post)
		if imgURL == "" {
			continue // text posts carry nothing to match against
		}

		listing := domain.Listing{
			Title:     post.Title,
			URL:       redditBaseURL + post.Permalink,
			Platform:  domain.PlatformReddit,
			ScrapedAt: time.Now(),
		}

		path, err := downloadImage(ctx, r.client, r.store, sessionID,
			domain.PlatformReddit, len(listings)+1, post.Title, imgURL, redditBaseURL+"/")
		if err != nil {
			log.Printf("[reddit] image skipped for %q: %v", post.Title, err)
			continue
		}
		listing.ImagePaths = append(listing.ImagePaths, path)

		listings = append(listings, listing)
	}

	return listings, nil
}

// postImageURL picks the best direct image URL out of a post, preferring the
// preview source and rewriting preview hosts to the direct i.redd.it form
func postImageURL(post redditPost) string {
	if len(post.Preview.Images) > 0 {
		if src := html.UnescapeString(post.Preview.Images[0].Source.URL); src != "" {
			return directRedditURL(src)
		}
	}
	if hasImageExtension(post.URL) {
		return directRedditURL(post.URL)
	}
	return ""
}

// directRedditURL converts preview.redd.it links to their i.redd.it original
func directRedditURL(raw string) string {
	u, err := url.Parse(raw)
	if err != nil {
		return raw
	}
	if u.Host == "preview.redd.it" {
		u.Host = "i.redd.it"
		u.RawQuery = ""
		return u.String()
	}
	return raw
}

func hasImageExtension(raw string) bool {
	lower := strings.ToLower(raw)
	if i := strings.IndexByte(lower, '?'); i >= 0 {
		lower = lower[:i]
	}
	for _, ext := range []string{".jpg", ".jpeg", ".png", ".webp", ".gif"} {
		if strings.HasSuffix(lower, ext) {
			return true
		}
	}
	return false
}
