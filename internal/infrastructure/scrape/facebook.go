package scrape

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"net/http"
	"net/http/cookiejar"
	"net/url"
	"os"
	"regexp"
	"strings"
	"time"

	"github.com/PuerkitoBio/goquery"
	"golang.org/x/net/publicsuffix"

	"github.com/watchfinder/backend/internal/domain"
)

const facebookBaseURL = "https://www.facebook.com"

// Marketplace markup is obfuscated and shifts constantly; anchor-based
// selectors first, then any scontent-hosted image as a last resort
var facebookListingSelectors = []string{
	"div[role='main'] a[href*='/marketplace/item/']",
	"a[href*='/marketplace/item/']",
	"div[data-pagelet*='marketplace'] a",
}

var facebookPricePattern = regexp.MustCompile(`\$[\d,]+`)

// exportedCookie matches the JSON emitted by browser cookie-export extensions
type exportedCookie struct {
	Name     string `json:"name"`
	Value    string `json:"value"`
	Domain   string `json:"domain"`
	Path     string `json:"path"`
	Secure   bool   `json:"secure"`
	HTTPOnly bool   `json:"httpOnly"`
}

// LoadCookieJar builds a cookie jar from a browser-exported cookies file.
// Marketplace search requires an authenticated session, so the jar must
// carry real facebook.com cookies
func LoadCookieJar(path string) (http.CookieJar, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading cookies file: %w", err)
	}

	var exported []exportedCookie
	if err := json.Unmarshal(data, &exported); err != nil {
		return nil, fmt.Errorf("parsing cookies file %s: %w", path, err)
	}
	if len(exported) == 0 {
		return nil, fmt.Errorf("cookies file %s contains no cookies", path)
	}

	jar, err := cookiejar.New(&cookiejar.Options{PublicSuffixList: publicsuffix.List})
	if err != nil {
		return nil, err
	}

	cookies := make([]*http.Cookie, 0, len(exported))
	for _, c := range exported {
		if c.Name == "" {
			continue
		}
		cookies = append(cookies, &http.Cookie{
			Name:     c.Name,
			Value:    c.Value,
			Domain:   strings.TrimPrefix(c.Domain, "."),
			Path:     c.Path,
			Secure:   c.Secure,
			HttpOnly: c.HTTPOnly,
		})
	}

	u, _ := url.Parse(facebookBaseURL + "/")
	jar.SetCookies(u, cookies)
	return jar, nil
}

// Facebook scrapes Marketplace search results using an authenticated
// cookie jar; disabled by default in config
type Facebook struct {
	client     *Client
	store      ImageSaver
	baseURL    string
	maxResults int
}

// NewFacebook creates a Facebook Marketplace scraper; the client should
// carry a jar from LoadCookieJar
func NewFacebook(client *Client, store ImageSaver, baseURL string, maxResults int) *Facebook {
	if baseURL == "" {
		baseURL = facebookBaseURL
	}
	if maxResults <= 0 {
		maxResults = 8
	}
	return &Facebook{
		client:     client,
		store:      store,
		baseURL:    baseURL,
		maxResults: maxResults,
	}
}

// Platform identifies this scraper
func (f *Facebook) Platform() string { return domain.PlatformFacebook }

// Scrape searches Marketplace and downloads listing images
func (f *Facebook) Scrape(ctx context.Context, query, sessionID string) ([]domain.Listing, error) {
	searchURL := fmt.Sprintf("%s/marketplace/search/?query=%s&exact=false", f.baseURL, url.QueryEscape(query))
	log.Printf("[facebook] searching: %s", searchURL)

	doc, err := f.client.Document(ctx, searchURL)
	if err != nil {
		return nil, err
	}
	if loggedOut(doc) {
		return nil, fmt.Errorf("%w: marketplace served a login wall", domain.ErrPlatformBlocked)
	}

	anchors := findWithFallback(doc, facebookListingSelectors)
	log.Printf("[facebook] found %d candidate listings", anchors.Length())

	var listings []domain.Listing
	seen := make(map[string]bool)

	anchors.EachWithBreak(func(_ int, anchor *goquery.Selection) bool {
		if len(listings) >= f.maxResults || ctx.Err() != nil {
			return false
		}

		href, _ := anchor.Attr("href")
		if !strings.Contains(href, "/marketplace/item/") {
			return true
		}
		if strings.HasPrefix(href, "/") {
			href = facebookBaseURL + href
		}
		if seen[href] {
			return true
		}
		seen[href] = true

		img := anchor.Find("img").First()
		imgURL := attrFirst(img, "src", "data-src")
		if !strings.Contains(imgURL, "scontent") {
			return true // avatars and sprites are not listing photos
		}

		listing := domain.Listing{
			Title:     facebookTitle(anchor, img, len(listings)+1),
			Price:     facebookPricePattern.FindString(anchor.Text()),
			URL:       href,
			Platform:  domain.PlatformFacebook,
			ScrapedAt: time.Now(),
		}

		path, err := downloadImage(ctx, f.client, f.store, sessionID,
			domain.PlatformFacebook, len(listings)+1, listing.Title, imgURL, facebookBaseURL+"/")
		if err != nil {
			log.Printf("[facebook] image skipped for %q: %v", listing.Title, err)
			return true
		}
		listing.ImagePaths = append(listing.ImagePaths, path)

		listings = append(listings, listing)
		return true
	})

	log.Printf("[facebook] scraped %d listings for %q", len(listings), query)
	return listings, ctx.Err()
}

func facebookTitle(anchor, img *goquery.Selection, index int) string {
	if alt, ok := img.Attr("alt"); ok && strings.TrimSpace(alt) != "" {
		return collapseSpaces(alt)
	}
	if label, ok := img.Attr("aria-label"); ok && strings.TrimSpace(label) != "" {
		return collapseSpaces(label)
	}
	if text := collapseSpaces(anchor.Text()); text != "" {
		if len(text) > 100 {
			text = text[:100]
		}
		return text
	}
	return fmt.Sprintf("Facebook Listing %d", index)
}

func collapseSpaces(s string) string {
	return strings.Join(strings.Fields(s), " ")
}

// loggedOut detects the anonymous login wall Facebook serves when the
// session cookies are missing or expired
func loggedOut(doc *goquery.Document) bool {
	if doc.Find("form[action*='login']").Length() > 0 {
		return true
	}
	if doc.Find("#login_form").Length() > 0 {
		return true
	}
	title := strings.ToLower(doc.Find("title").First().Text())
	return strings.Contains(title, "log in")
}
