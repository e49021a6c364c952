package scrape

import (
	"context"
	"fmt"
	"net/http"
	"net/http/httptest"
	"net/url"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/PuerkitoBio/goquery"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/watchfinder/backend/internal/domain"
)

const facebookSearchPage = `<!DOCTYPE html>
<html><head><title>Marketplace</title></head><body>
<div role="main">
  <a href="/marketplace/item/111/">
    <img src="%[1]s/scontent/1.jpg" alt="Rolex Datejust 36">
    <span>$6,500 Rolex Datejust</span>
  </a>
  <a href="/marketplace/item/222/">
    <img src="%[1]s/scontent/2.jpg">
    <span>Tudor Black Bay</span>
  </a>
  <a href="/marketplace/item/111/">
    <img src="%[1]s/scontent/1.jpg" alt="Rolex Datejust 36">
  </a>
  <a href="/marketplace/category/watches">
    <img src="%[1]s/scontent/3.jpg">
  </a>
</div>
</body></html>`

const facebookLoginPage = `<!DOCTYPE html>
<html><head><title>Log in to Facebook</title></head><body>
<form action="/login/device-based/regular/login/" method="post"></form>
</body></html>`

func writeCookiesFile(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "facebook_cookies.json")
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
	return path
}

func TestLoadCookieJar(t *testing.T) {
	path := writeCookiesFile(t, `[
	  {"name":"c_user","value":"100001234","domain":".facebook.com","path":"/","secure":true,"httpOnly":false},
	  {"name":"xs","value":"session-token","domain":".facebook.com","path":"/","secure":true,"httpOnly":true}
	]`)

	jar, err := LoadCookieJar(path)
	require.NoError(t, err)
	require.NotNil(t, jar)

	u, _ := url.Parse("https://www.facebook.com/marketplace/")
	cookies := jar.Cookies(u)
	require.Len(t, cookies, 2)

	names := []string{cookies[0].Name, cookies[1].Name}
	assert.Contains(t, names, "c_user")
	assert.Contains(t, names, "xs")
}

func TestLoadCookieJar_Errors(t *testing.T) {
	tests := []struct {
		name    string
		path    func(t *testing.T) string
		errPart string
	}{
		{
			name:    "missing file",
			path:    func(t *testing.T) string { return filepath.Join(t.TempDir(), "nope.json") },
			errPart: "reading cookies file",
		},
		{
			name:    "invalid json",
			path:    func(t *testing.T) string { return writeCookiesFile(t, "{not json") },
			errPart: "parsing cookies file",
		},
		{
			name:    "empty array",
			path:    func(t *testing.T) string { return writeCookiesFile(t, "[]") },
			errPart: "contains no cookies",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := LoadCookieJar(tt.path(t))

			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.errPart)
		})
	}
}

func TestFacebook_Scrape(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch {
		case strings.HasPrefix(r.URL.Path, "/marketplace/search"):
			assert.Equal(t, "rolex datejust", r.URL.Query().Get("query"))
			assert.Equal(t, "false", r.URL.Query().Get("exact"))
			fmt.Fprintf(w, facebookSearchPage, "http://"+r.Host)
		case strings.HasPrefix(r.URL.Path, "/scontent/"):
			w.Write([]byte("jpeg-bytes"))
		default:
			http.NotFound(w, r)
		}
	}))
	defer server.Close()

	scraper := NewFacebook(newTestClient(), newMemorySaver(), server.URL, 8)

	listings, err := scraper.Scrape(context.Background(), "rolex datejust", "session_test")

	require.NoError(t, err)
	require.Len(t, listings, 2, "duplicates and non-item links get dropped")

	assert.Equal(t, "Rolex Datejust 36", listings[0].Title, "alt text is the most reliable title source")
	assert.Equal(t, "$6,500", listings[0].Price)
	assert.Equal(t, "https://www.facebook.com/marketplace/item/111/", listings[0].URL)
	assert.Equal(t, domain.PlatformFacebook, listings[0].Platform)
	require.Len(t, listings[0].ImagePaths, 1)

	assert.Equal(t, "Tudor Black Bay", listings[1].Title)
	assert.Empty(t, listings[1].Price)
}

func TestFacebook_Scrape_LoginWall(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(facebookLoginPage))
	}))
	defer server.Close()

	scraper := NewFacebook(newTestClient(), newMemorySaver(), server.URL, 8)

	_, err := scraper.Scrape(context.Background(), "rolex", "session_test")

	require.Error(t, err)
	assert.ErrorIs(t, err, domain.ErrPlatformBlocked)
	assert.Contains(t, err.Error(), "login wall")
}

func TestLoggedOut(t *testing.T) {
	tests := []struct {
		name     string
		html     string
		expected bool
	}{
		{
			name:     "login form action",
			html:     facebookLoginPage,
			expected: true,
		},
		{
			name:     "login form id",
			html:     `<html><body><div id="login_form"></div></body></html>`,
			expected: true,
		},
		{
			name:     "login title",
			html:     `<html><head><title>Facebook - log in or sign up</title></head><body></body></html>`,
			expected: true,
		},
		{
			name:     "marketplace results",
			html:     `<html><head><title>Marketplace</title></head><body><div role="main"></div></body></html>`,
			expected: false,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			doc, err := goquery.NewDocumentFromReader(strings.NewReader(tt.html))
			require.NoError(t, err)

			assert.Equal(t, tt.expected, loggedOut(doc))
		})
	}
}

func TestFacebook_Platform(t *testing.T) {
	scraper := NewFacebook(newTestClient(), newMemorySaver(), "", 0)
	assert.Equal(t, "facebook", scraper.Platform())
}
