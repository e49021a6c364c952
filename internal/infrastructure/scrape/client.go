package scrape

import (
	"bytes"
	"compress/gzip"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"math/rand"
	"net/http"
	"strings"
	"time"

	"github.com/PuerkitoBio/goquery"
	"golang.org/x/time/rate"

	"github.com/watchfinder/backend/internal/domain"
)

const defaultTimeout = 15 * time.Second

var userAgents = []string{
	"Mozilla/5.0 (Windows NT 10.0; Win64; x64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/124.0.0.0 Safari/537.36",
	"Mozilla/5.0 (Macintosh; Intel Mac OS X 10_15_7) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/124.0.0.0 Safari/537.36",
	"Mozilla/5.0 (Windows NT 10.0; Win64; x64; rv:125.0) Gecko/20100101 Firefox/125.0",
	"Mozilla/5.0 (Macintosh; Intel Mac OS X 10_15_7) AppleWebKit/605.1.15 (KHTML, like Gecko) Version/17.4 Safari/605.1.15",
}

// Client fetches marketplace pages and listing images with browser-like
// headers, a shared rate limiter and polite jitter between page loads
type Client struct {
	httpClient *http.Client
	limiter    *rate.Limiter
	delayMin   time.Duration
	delayMax   time.Duration
}

// Option configures a Client
type Option func(*Client)

// WithTimeout overrides the per-request timeout
func WithTimeout(d time.Duration) Option {
	return func(c *Client) { c.httpClient.Timeout = d }
}

// WithDelays sets the jitter window Pause sleeps within
func WithDelays(min, max time.Duration) Option {
	return func(c *Client) {
		c.delayMin = min
		c.delayMax = max
	}
}

// WithRateLimit overrides the shared request limiter
func WithRateLimit(rps float64, burst int) Option {
	return func(c *Client) { c.limiter = rate.NewLimiter(rate.Limit(rps), burst) }
}

// WithCookieJar attaches a cookie jar (Facebook needs a logged-in session)
func WithCookieJar(jar http.CookieJar) Option {
	return func(c *Client) { c.httpClient.Jar = jar }
}

// NewClient creates a scraping client. The default limiter stays near one
// request per second, about what a human browsing the site produces.
func NewClient(opts ...Option) *Client {
	c := &Client{
		httpClient: &http.Client{
			Timeout: defaultTimeout,
			Transport: &http.Transport{
				MaxIdleConns:        100,
				MaxIdleConnsPerHost: 10,
				IdleConnTimeout:     90 * time.Second,
				ForceAttemptHTTP2:   true,
			},
		},
		limiter:  rate.NewLimiter(rate.Limit(1), 3),
		delayMin: 2 * time.Second,
		delayMax: 5 * time.Second,
	}

	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Fetch retrieves a page body, detecting block and challenge responses
func (c *Client) Fetch(ctx context.Context, pageURL string) ([]byte, error) {
	if err := c.limiter.Wait(ctx); err != nil {
		return nil, fmt.Errorf("rate limiter error: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, pageURL, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	req.Header = randomHeaders()

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("failed to fetch page: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusForbidden || resp.StatusCode == http.StatusServiceUnavailable {
		return nil, fmt.Errorf("%w: status %d", domain.ErrPlatformBlocked, resp.StatusCode)
	}
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("received non-200 status code: %d", resp.StatusCode)
	}

	body, err := readBody(resp)
	if err != nil {
		return nil, fmt.Errorf("failed to read response body: %w", err)
	}

	if looksBlocked(body) {
		return nil, fmt.Errorf("%w: challenge page", domain.ErrPlatformBlocked)
	}

	return body, nil
}

// Document fetches a page and parses it
func (c *Client) Document(ctx context.Context, pageURL string) (*goquery.Document, error) {
	body, err := c.Fetch(ctx, pageURL)
	if err != nil {
		return nil, err
	}

	doc, err := goquery.NewDocumentFromReader(bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("failed to parse HTML: %w", err)
	}
	return doc, nil
}

// FetchJSON fetches a URL and decodes the JSON body into v
func (c *Client) FetchJSON(ctx context.Context, pageURL string, v interface{}) error {
	body, err := c.Fetch(ctx, pageURL)
	if err != nil {
		return err
	}
	if err := json.Unmarshal(body, v); err != nil {
		return fmt.Errorf("failed to decode JSON: %w", err)
	}
	return nil
}

// Download fetches binary image content with the given referer
func (c *Client) Download(ctx context.Context, imgURL, referer string) ([]byte, error) {
	if err := c.limiter.Wait(ctx); err != nil {
		return nil, fmt.Errorf("rate limiter error: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, imgURL, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	req.Header = randomHeaders()
	if referer != "" {
		req.Header.Set("Referer", referer)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("failed to download image: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("image download status %d", resp.StatusCode)
	}

	data, err := readBody(resp)
	if err != nil {
		return nil, fmt.Errorf("failed to read image body: %w", err)
	}
	if len(data) == 0 {
		return nil, fmt.Errorf("empty image body from %s", imgURL)
	}
	return data, nil
}

// Pause sleeps a random duration inside the jitter window, honoring ctx
func (c *Client) Pause(ctx context.Context) error {
	delay := c.delayMin
	if c.delayMax > c.delayMin {
		delay += time.Duration(rand.Int63n(int64(c.delayMax - c.delayMin)))
	}
	if delay <= 0 {
		return nil
	}

	select {
	case <-time.After(delay):
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// randomHeaders returns browser-like headers with a rotated User-Agent
func randomHeaders() http.Header {
	headers := http.Header{}
	headers.Set("User-Agent", userAgents[rand.Intn(len(userAgents))])
	headers.Set("Accept", "text/html,application/xhtml+xml,application/xml;q=0.9,image/avif,image/webp,*/*;q=0.8")
	headers.Set("Accept-Language", "en-US,en;q=0.9")
	headers.Set("Accept-Encoding", "gzip")
	headers.Set("Connection", "keep-alive")
	headers.Set("DNT", "1")
	headers.Set("Upgrade-Insecure-Requests", "1")
	headers.Set("Sec-Fetch-Dest", "document")
	headers.Set("Sec-Fetch-Mode", "navigate")
	headers.Set("Sec-Fetch-Site", "none")
	return headers
}

// readBody reads the response body, handling gzip compression if necessary
func readBody(resp *http.Response) ([]byte, error) {
	var reader io.ReadCloser = resp.Body

	if resp.Header.Get("Content-Encoding") == "gzip" {
		gz, err := gzip.NewReader(resp.Body)
		if err != nil {
			return nil, fmt.Errorf("failed to create gzip reader: %w", err)
		}
		defer gz.Close()
		reader = gz
	}

	return io.ReadAll(reader)
}

// looksBlocked sniffs challenge-page markers out of a response body
func looksBlocked(body []byte) bool {
	s := string(body)
	for _, marker := range []string{
		"Just a moment",
		"cf-browser-verification",
		"Additional Verification Required",
		"detected unusual traffic",
	} {
		if strings.Contains(s, marker) {
			return true
		}
	}
	return false
}

// extractText tries selectors in order and returns the first non-empty text
func extractText(s *goquery.Selection, selectors []string) string {
	for _, selector := range selectors {
		if text := strings.TrimSpace(s.Find(selector).First().Text()); text != "" {
			return text
		}
	}
	return ""
}

// attrFirst tries attributes in order and returns the first non-empty value
func attrFirst(s *goquery.Selection, attrs ...string) string {
	for _, a := range attrs {
		if v, ok := s.Attr(a); ok && strings.TrimSpace(v) != "" {
			return strings.TrimSpace(v)
		}
	}
	return ""
}
