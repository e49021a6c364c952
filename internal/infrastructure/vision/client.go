package vision

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log"
	"mime/multipart"
	"net/http"
	"os"
	"path/filepath"
	"time"

	"golang.org/x/time/rate"

	"github.com/watchfinder/backend/internal/domain"
)

// Client handles communication with the image embedding service
type Client struct {
	httpClient  *http.Client
	baseURL     string
	apiKey      string
	rateLimiter *rate.Limiter
}

// NewClient creates a new embedding service client. The rate limit guards
// the GPU-backed service, which degrades badly when flooded.
func NewClient(baseURL string, timeout time.Duration, rps float64) *Client {
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	if rps <= 0 {
		rps = 2
	}

	return &Client{
		httpClient: &http.Client{
			Timeout: timeout,
		},
		baseURL:     baseURL,
		rateLimiter: rate.NewLimiter(rate.Limit(rps), 5),
	}
}

// SetAPIKey attaches a bearer token to every request; hosted embedding
// services require one, self-hosted deployments usually run open
func (c *Client) SetAPIKey(key string) {
	c.apiKey = key
}

type embeddingResponse struct {
	Embedding []float32 `json:"embedding"`
	Model     string    `json:"model"`
	Dims      int       `json:"dims"`
}

// Embed uploads an image and returns its embedding vector
func (c *Client) Embed(ctx context.Context, imagePath string) ([]float32, error) {
	payload, contentType, err := buildUpload(imagePath)
	if err != nil {
		return nil, err
	}

	reqURL := fmt.Sprintf("%s/v1/embeddings", c.baseURL)

	// Retry up to 3 times for transient failures
	var lastErr error
	for attempt := 1; attempt <= 3; attempt++ {
		if err := c.rateLimiter.Wait(ctx); err != nil {
			log.Printf("[vision] Rate limiter error: %v", err)
			return nil, fmt.Errorf("rate limiter error: %w", err)
		}

		resp, err := c.doUpload(ctx, reqURL, contentType, payload)
		if err != nil {
			log.Printf("[vision] Request error (attempt %d): %v", attempt, err)
			lastErr = err
			time.Sleep(time.Duration(attempt*500) * time.Millisecond)
			continue
		}

		body, _ := io.ReadAll(resp.Body)
		resp.Body.Close()

		if resp.StatusCode == http.StatusBadRequest {
			// The service could read the upload but not the image; retrying
			// the same bytes will not help
			return nil, fmt.Errorf("embedding service rejected %s: %s", filepath.Base(imagePath), string(body))
		}
		if resp.StatusCode != http.StatusOK {
			log.Printf("[vision] API error (attempt %d) - Status: %d, Body: %s", attempt, resp.StatusCode, string(body))
			lastErr = fmt.Errorf("%w: status %d", domain.ErrVisionUnavailable, resp.StatusCode)
			time.Sleep(time.Duration(attempt*500) * time.Millisecond)
			continue
		}

		var embResp embeddingResponse
		if err := json.Unmarshal(body, &embResp); err != nil {
			log.Printf("[vision] JSON decode error: %v", err)
			return nil, fmt.Errorf("failed to decode response: %w", err)
		}

		if len(embResp.Embedding) == 0 {
			return nil, fmt.Errorf("%w: empty embedding for %s", domain.ErrVisionUnavailable, filepath.Base(imagePath))
		}

		return embResp.Embedding, nil
	}

	log.Printf("[vision] All retries failed for %s", filepath.Base(imagePath))
	return nil, lastErr
}

// Healthy probes the embedding service so callers can degrade gracefully
// instead of failing mid-search
func (c *Client) Healthy(ctx context.Context) error {
	req, err := http.NewRequestWithContext(ctx, "GET", fmt.Sprintf("%s/v1/health", c.baseURL), nil)
	if err != nil {
		return fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("User-Agent", "WatchFinder/1.0")
	if c.apiKey != "" {
		req.Header.Set("Authorization", "Bearer "+c.apiKey)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("%w: %v", domain.ErrVisionUnavailable, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("%w: status %d", domain.ErrVisionUnavailable, resp.StatusCode)
	}
	return nil
}

// doUpload executes a multipart POST with proper headers and error handling
func (c *Client) doUpload(ctx context.Context, reqURL, contentType string, payload []byte) (*http.Response, error) {
	req, err := http.NewRequestWithContext(ctx, "POST", reqURL, bytes.NewReader(payload))
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Content-Type", contentType)
	req.Header.Set("User-Agent", "WatchFinder/1.0")
	if c.apiKey != "" {
		req.Header.Set("Authorization", "Bearer "+c.apiKey)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", domain.ErrVisionUnavailable, err)
	}

	return resp, nil
}

// buildUpload reads the image once so retries can resend identical bytes
func buildUpload(imagePath string) ([]byte, string, error) {
	file, err := os.Open(imagePath)
	if err != nil {
		return nil, "", fmt.Errorf("failed to open image %s: %w", imagePath, err)
	}
	defer file.Close()

	var buf bytes.Buffer
	writer := multipart.NewWriter(&buf)

	part, err := writer.CreateFormFile("image", filepath.Base(imagePath))
	if err != nil {
		return nil, "", fmt.Errorf("failed to build upload: %w", err)
	}
	if _, err := io.Copy(part, file); err != nil {
		return nil, "", fmt.Errorf("failed to read image %s: %w", imagePath, err)
	}
	if err := writer.Close(); err != nil {
		return nil, "", fmt.Errorf("failed to build upload: %w", err)
	}

	return buf.Bytes(), writer.FormDataContentType(), nil
}
