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

const poshmarkBaseURL = "https://poshmark.com"

// Poshmark renders listings client-side, so card markup shifts between
// deploys; try specific tile classes first, then any listing anchor
var poshmarkCardSelectors = []string{
	"div[class*='tile']",
	"div[class*='card']",
	"a[href*='/listing/']",
}

var poshmarkTitleSelectors = []string{"h3", "h4", ".title", "a"}

var poshmarkPriceSelectors = []string{".price", "[class*='price']", "span"}

// Poshmark scrapes poshmark.com search results
type Poshmark struct {
	client     *Client
	store      ImageSaver
	baseURL    string
	maxResults int
}

// NewPoshmark creates a Poshmark scraper; baseURL overrides the live site in tests
func NewPoshmark(client *Client, store ImageSaver, baseURL string, maxResults int) *Poshmark {
	if baseURL == "" {
		baseURL = poshmarkBaseURL
	}
	if maxResults <= 0 {
		maxResults = 15
	}
	return &Poshmark{
		client:     client,
		store:      store,
		baseURL:    baseURL,
		maxResults: maxResults,
	}
}

// Platform identifies this scraper
func (p *Poshmark) Platform() string { return domain.PlatformPoshmark }

// Scrape searches Poshmark listings and downloads their primary images
func (p *Poshmark) Scrape(ctx context.Context, query, sessionID string) ([]domain.Listing, error) {
	searchURL := fmt.Sprintf("%s/search?query=%s&type=listings", p.baseURL, url.QueryEscape(query))
	log.Printf("[poshmark] searching: %s", searchURL)

	doc, err := p.client.Document(ctx, searchURL)
	if err != nil {
		return nil, err
	}

	cards := findWithFallback(doc, poshmarkCardSelectors)
	log.Printf("[poshmark] found %d candidate cards", cards.Length())

	var listings []domain.Listing
	seen := make(map[string]bool)

	cards.EachWithBreak(func(_ int, card *goquery.Selection) bool {
		if len(listings) >= p.maxResults || ctx.Err() != nil {
			return false
		}

		href := cardHref(card)
		if href == "" || !strings.Contains(href, "/listing/") {
			return true
		}
		if !strings.HasPrefix(href, "http") {
			href = p.baseURL + href
		}
		if seen[href] {
			return true // tile selectors and anchor selectors overlap
		}
		seen[href] = true

		listing := domain.Listing{
			Title:     poshmarkTitle(card),
			Price:     poshmarkPrice(card),
			URL:       href,
			Platform:  domain.PlatformPoshmark,
			ScrapedAt: time.Now(),
		}

		if imgURL := poshmarkImageURL(card); imgURL != "" {
			path, err := downloadImage(ctx, p.client, p.store, sessionID,
				domain.PlatformPoshmark, len(listings)+1, listing.Title, imgURL, p.baseURL+"/")
			if err != nil {
				log.Printf("[poshmark] image skipped for %q: %v", listing.Title, err)
			} else {
				listing.ImagePaths = append(listing.ImagePaths, path)
			}
		}

		listings = append(listings, listing)
		return true
	})

	log.Printf("[poshmark] scraped %d listings for %q", len(listings), query)
	return listings, ctx.Err()
}

func cardHref(card *goquery.Selection) string {
	if goquery.NodeName(card) == "a" {
		href, _ := card.Attr("href")
		return href
	}
	href, _ := card.Find("a").First().Attr("href")
	return href
}

func poshmarkTitle(card *goquery.Selection) string {
	for _, sel := range poshmarkTitleSelectors {
		if title := strings.TrimSpace(card.Find(sel).First().Text()); len(title) > 3 {
			return title
		}
	}
	if title, ok := card.Find("img").First().Attr("alt"); ok && strings.TrimSpace(title) != "" {
		return strings.TrimSpace(title)
	}
	return "Unknown Title"
}

func poshmarkPrice(card *goquery.Selection) string {
	for _, sel := range poshmarkPriceSelectors {
		var price string
		card.Find(sel).EachWithBreak(func(_ int, s *goquery.Selection) bool {
			text := strings.TrimSpace(s.Text())
			if strings.Contains(text, "$") {
				price = text
				return false
			}
			return true
		})
		if price != "" {
			return price
		}
	}
	return ""
}

// poshmarkImageURL returns the first image hosted by Poshmark's CDN,
// normalizing protocol-relative sources
func poshmarkImageURL(card *goquery.Selection) string {
	var imgURL string
	card.Find("img").EachWithBreak(func(_ int, img *goquery.Selection) bool {
		src := attrFirst(img, "src", "data-src")
		if src == "" || !strings.Contains(src, "poshmark") {
			return true
		}
		if strings.HasPrefix(src, "//") {
			src = "https:" + src
		}
		imgURL = src
		return false
	})
	return imgURL
}
