package scrape

import (
	"context"
	"fmt"
	"log"
	"net/url"
	"strings"
	"time"

	"github.com/PuerkitoBio/goquery"

	"github.com/watchfinder/backend/internal/domain"
)

const ebayBaseURL = "https://www.ebay.com"

// EBay scrapes eBay search results
type EBay struct {
	client     *Client
	store      ImageSaver
	baseURL    string
	maxResults int
}

// NewEBay creates an eBay scraper. An empty baseURL uses the live site.
func NewEBay(client *Client, store ImageSaver, baseURL string, maxResults int) *EBay {
	if baseURL == "" {
		baseURL = ebayBaseURL
	}
	if maxResults <= 0 {
		maxResults = 20
	}
	return &EBay{
		client:     client,
		store:      store,
		baseURL:    baseURL,
		maxResults: maxResults,
	}
}

// Platform identifies this scraper
func (e *EBay) Platform() string { return domain.PlatformEBay }

// Scrape collects listings from eBay's search page
func (e *EBay) Scrape(ctx context.Context, query, sessionID string) ([]domain.Listing, error) {
	searchURL := fmt.Sprintf("%s/sch/i.html?_nkw=%s&_ipg=%d",
		e.baseURL, url.QueryEscape(query), e.maxResults)
	log.Printf("[ebay] searching: %s", searchURL)

	doc, err := e.client.Document(ctx, searchURL)
	if err != nil {
		return nil, fmt.Errorf("ebay search: %w", err)
	}

	var listings []domain.Listing
	doc.Find(".s-item").EachWithBreak(func(i int, s *goquery.Selection) bool {
		if len(listings) >= e.maxResults {
			return false
		}
		if ctx.Err() != nil {
			return false
		}

		title := strings.TrimSpace(s.Find(".s-item__title").First().Text())
		// The first card is usually a "Shop on eBay" placeholder
		if title == "" || strings.EqualFold(title, "Shop on eBay") {
			return true
		}

		href, ok := s.Find(".s-item__link").First().Attr("href")
		if !ok || href == "" {
			return true
		}

		listing := domain.Listing{
			Title:     title,
			Price:     strings.TrimSpace(s.Find(".s-item__price").First().Text()),
			URL:       href,
			Platform:  domain.PlatformEBay,
			ScrapedAt: time.Now(),
		}

		imgURL := attrFirst(s.Find(".s-item__image img").First(), "src", "data-src")
		if imgURL != "" {
			path, err := downloadImage(ctx, e.client, e.store, sessionID,
				domain.PlatformEBay, len(listings)+1, title, imgURL, e.baseURL+"/")
			if err != nil {
				log.Printf("[ebay] image skipped for %q: %v", title, err)
			} else {
				listing.ImagePaths = append(listing.ImagePaths, path)
			}
		}

		listings = append(listings, listing)
		return true
	})

	log.Printf("[ebay] scraped %d listings for %q", len(listings), query)
	return listings, ctx.Err()
}
