package scrape

import (
	"context"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/watchfinder/backend/internal/domain"
)

const redditSearchPage = `{
  "data": {
    "children": [
      {"data": {
        "title": "Omega Speedmaster on bracelet",
        "permalink": "/r/Watches/comments/abc/omega_speedmaster/",
        "url": "https://www.reddit.com/r/Watches/comments/abc/omega_speedmaster/",
        "preview": {"images": [{"source": {"url": "%[1]s/images/r1.jpg?width=640&amp;s=token"}}]}
      }},
      {"data": {
        "title": "What should I buy next?",
        "permalink": "/r/Watches/comments/def/what_next/",
        "url": "https://www.reddit.com/r/Watches/comments/def/what_next/"
      }},
      {"data": {
        "title": "Seiko mod direct link",
        "permalink": "/r/Watches/comments/ghi/seiko_mod/",
        "url": "%[1]s/images/r2.jpg"
      }}
    ]
  }
}`

func TestReddit_Scrape(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch {
		case strings.HasSuffix(r.URL.Path, "/search.json"):
			assert.Equal(t, "/r/Watches/search.json", r.URL.Path)
			assert.Equal(t, "omega", r.URL.Query().Get("q"))
			assert.Equal(t, "on", r.URL.Query().Get("restrict_sr"))
			w.Header().Set("Content-Type", "application/json")
			fmt.Fprintf(w, redditSearchPage, "http://"+r.Host)
		case strings.HasPrefix(r.URL.Path, "/images/"):
			assert.Equal(t, "https://www.reddit.com/", r.Header.Get("Referer"))
			w.Write([]byte("jpeg-bytes"))
		default:
			http.NotFound(w, r)
		}
	}))
	defer server.Close()

	scraper := NewReddit(newTestClient(), newMemorySaver(), server.URL, []string{"Watches"}, 10)

	listings, err := scraper.Scrape(context.Background(), "omega", "session_test")

	require.NoError(t, err)
	require.Len(t, listings, 2, "text posts carry no image and get skipped")

	assert.Equal(t, "Omega Speedmaster on bracelet", listings[0].Title)
	assert.Equal(t, "https://www.reddit.com/r/Watches/comments/abc/omega_speedmaster/", listings[0].URL)
	assert.Equal(t, domain.PlatformReddit, listings[0].Platform)
	require.Len(t, listings[0].ImagePaths, 1)

	assert.Equal(t, "Seiko mod direct link", listings[1].Title)
}

func TestReddit_Scrape_MultipleSubreddits(t *testing.T) {
	var subs []string
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if strings.HasPrefix(r.URL.Path, "/images/") {
			w.Write([]byte("jpeg-bytes"))
			return
		}
		parts := strings.Split(r.URL.Path, "/")
		subs = append(subs, parts[2])
		fmt.Fprintf(w, redditSearchPage, "http://"+r.Host)
	}))
	defer server.Close()

	scraper := NewReddit(newTestClient(), newMemorySaver(), server.URL, []string{"Watches", "WatchExchange"}, 10)

	listings, err := scraper.Scrape(context.Background(), "omega", "session_test")

	require.NoError(t, err)
	assert.Len(t, listings, 4)
	assert.Equal(t, []string{"Watches", "WatchExchange"}, subs)
}

func TestReddit_Scrape_SubredditFailureContinues(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if strings.HasPrefix(r.URL.Path, "/images/") {
			w.Write([]byte("jpeg-bytes"))
			return
		}
		if strings.Contains(r.URL.Path, "/r/Broken/") {
			w.WriteHeader(http.StatusInternalServerError)
			return
		}
		fmt.Fprintf(w, redditSearchPage, "http://"+r.Host)
	}))
	defer server.Close()

	scraper := NewReddit(newTestClient(), newMemorySaver(), server.URL, []string{"Broken", "Watches"}, 10)

	listings, err := scraper.Scrape(context.Background(), "omega", "session_test")

	require.NoError(t, err)
	assert.Len(t, listings, 2)
}

func TestPostImageURL(t *testing.T) {
	tests := []struct {
		name     string
		post     redditPost
		expected string
	}{
		{
			name: "preview source wins",
			post: redditPost{
				URL: "https://i.redd.it/direct.jpg",
				Preview: redditPreview{
					Images: []redditPreviewImage{
						{Source: redditImageSource{URL: "https://preview.redd.it/abc.jpg?width=640&amp;s=tok"}},
					},
				},
			},
			expected: "https://i.redd.it/abc.jpg",
		},
		{
			name:     "direct image url",
			post:     redditPost{URL: "https://i.redd.it/direct.jpg"},
			expected: "https://i.redd.it/direct.jpg",
		},
		{
			name:     "image url with query string",
			post:     redditPost{URL: "https://example.com/pic.PNG?x=1"},
			expected: "https://example.com/pic.PNG?x=1",
		},
		{
			name:     "text post",
			post:     redditPost{URL: "https://www.reddit.com/r/Watches/comments/abc/"},
			expected: "",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.expected, postImageURL(tt.post))
		})
	}
}

func TestDirectRedditURL(t *testing.T) {
	tests := []struct {
		raw      string
		expected string
	}{
		{"https://preview.redd.it/abc.jpg?width=640&s=tok", "https://i.redd.it/abc.jpg"},
		{"https://i.redd.it/abc.jpg", "https://i.redd.it/abc.jpg"},
		{"https://example.com/pic.jpg", "https://example.com/pic.jpg"},
	}

	for _, tt := range tests {
		t.Run(tt.raw, func(t *testing.T) {
			assert.Equal(t, tt.expected, directRedditURL(tt.raw))
		})
	}
}

func TestReddit_Platform(t *testing.T) {
	scraper := NewReddit(newTestClient(), newMemorySaver(), "", nil, 0)
	assert.Equal(t, "reddit", scraper.Platform())
}
