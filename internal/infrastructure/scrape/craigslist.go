package scrape

import (
	"context"
	"errors"
	"fmt"
	"log"
	"net/url"
	"strings"
	"time"

	"github.com/PuerkitoBio/goquery"

	"github.com/watchfinder/backend/internal/domain"
)

// Craigslist layouts vary by region and age, so every field is extracted
// through a fallback list
var (
	craigslistCardSelectors = []string{
		".cl-static-search-result",
		"li.cl-search-result",
		".result-row",
	}
	craigslistTitleSelectors = []string{
		".title",
		".titlestring",
		"a.cl-app-anchor .label",
		".result-title",
	}
	craigslistPriceSelectors = []string{
		".price",
		".result-price",
		".priceinfo",
	}
)

// Craigslist scrapes craigslist for-sale searches across configured cities
type Craigslist struct {
	client     *Client
	store      ImageSaver
	baseURL    string // test override; empty means https://<city>.craigslist.org
	cities     []string
	maxResults int
}

// NewCraigslist creates a craigslist scraper over the given city subdomains
func NewCraigslist(client *Client, store ImageSaver, baseURL string, cities []string, maxResults int) *Craigslist {
	if len(cities) == 0 {
		cities = []string{"losangeles"}
	}
	if maxResults <= 0 {
		maxResults = 15
	}
	return &Craigslist{
		client:     client,
		store:      store,
		baseURL:    baseURL,
		cities:     cities,
		maxResults: maxResults,
	}
}

// Platform identifies this scraper
func (c *Craigslist) Platform() string { return domain.PlatformCraigslist }

// Scrape collects listings city by city until the cap is reached
func (c *Craigslist) Scrape(ctx context.Context, query, sessionID string) ([]domain.Listing, error) {
	var listings []domain.Listing

	for i, city := range c.cities {
		if len(listings) >= c.maxResults {
			break
		}
		if i > 0 {
			if err := c.client.Pause(ctx); err != nil {
				return listings, err
			}
		}

		cityListings, err := c.scrapeCity(ctx, city, query, sessionID, c.maxResults-len(listings))
		if err != nil {
			if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
				return listings, err
			}
			// One unreachable region should not sink the others
			log.Printf("[craigslist] %s failed: %v", city, err)
			continue
		}
		listings = append(listings, cityListings...)
	}

	log.Printf("[craigslist] scraped %d listings for %q", len(listings), query)
	return listings, nil
}

func (c *Craigslist) scrapeCity(ctx context.Context, city, query, sessionID string, limit int) ([]domain.Listing, error) {
	base := c.baseURL
	if base == "" {
		base = fmt.Sprintf("https://%s.craigslist.org", city)
	}
	searchURL := fmt.Sprintf("%s/search/sss?query=%s", base, url.QueryEscape(query))
	log.Printf("[craigslist] searching %s: %s", city, searchURL)

	doc, err := c.client.Document(ctx, searchURL)
	if err != nil {
		return nil, err
	}

	cards := findWithFallback(doc, craigslistCardSelectors)
	var listings []domain.Listing
	cards.EachWithBreak(func(i int, s *goquery.Selection) bool {
		if len(listings) >= limit || ctx.Err() != nil {
			return false
		}

		title := extractText(s, craigslistTitleSelectors)
		if title == "" {
			return true
		}

		href := attrFirst(s.Find("a[href]").First(), "href")
		if href == "" {
			return true
		}
		if !strings.HasPrefix(href, "http") {
			href = base + href
		}

		listing := domain.Listing{
			Title:     title,
			Price:     extractText(s, craigslistPriceSelectors),
			URL:       href,
			Platform:  domain.PlatformCraigslist,
			ScrapedAt: time.Now(),
		}

		imgURL := attrFirst(s.Find("img").First(), "src", "data-src")
		if imgURL != "" {
			path, err := downloadImage(ctx, c.client, c.store, sessionID,
				domain.PlatformCraigslist, len(listings)+1, title, imgURL, base+"/")
			if err != nil {
				log.Printf("[craigslist] image skipped for %q: %v", title, err)
			} else {
				listing.ImagePaths = append(listing.ImagePaths, path)
			}
		}

		listings = append(listings, listing)
		return true
	})

	return listings, ctx.Err()
}

// findWithFallback returns the first selector's matches that are non-empty
func findWithFallback(doc *goquery.Document, selectors []string) *goquery.Selection {
	for _, selector := range selectors {
		if sel := doc.Find(selector); sel.Length() > 0 {
			return sel
		}
	}
	return doc.Find(selectors[len(selectors)-1])
}
