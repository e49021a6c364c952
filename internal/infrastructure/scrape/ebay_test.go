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

const ebaySearchPage = `<!DOCTYPE html>
<html><body><ul class="srp-results">
<li class="s-item">
  <a class="s-item__link" href="https://www.ebay.com/itm/000">
    <div class="s-item__title">Shop on eBay</div>
  </a>
</li>
<li class="s-item">
  <div class="s-item__image"><img src="%[1]s/images/1.jpg"></div>
  <a class="s-item__link" href="https://www.ebay.com/itm/111">
    <div class="s-item__title">Omega Speedmaster Professional</div>
  </a>
  <span class="s-item__price">$4,250.00</span>
</li>
<li class="s-item">
  <div class="s-item__image"><img data-src="%[1]s/images/2.jpg"></div>
  <a class="s-item__link" href="https://www.ebay.com/itm/222">
    <div class="s-item__title">Seiko SKX007 Diver</div>
  </a>
  <span class="s-item__price">$189.99</span>
</li>
</ul></body></html>`

func TestEBay_Scrape(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch {
		case strings.HasPrefix(r.URL.Path, "/sch/"):
			assert.Equal(t, "omega speedmaster", r.URL.Query().Get("_nkw"))
			assert.Equal(t, "20", r.URL.Query().Get("_ipg"))
			fmt.Fprintf(w, ebaySearchPage, "http://"+r.Host)
		case strings.HasPrefix(r.URL.Path, "/images/"):
			w.Write([]byte("jpeg-bytes"))
		default:
			http.NotFound(w, r)
		}
	}))
	defer server.Close()

	saver := newMemorySaver()
	scraper := NewEBay(newTestClient(), saver, server.URL, 20)

	listings, err := scraper.Scrape(context.Background(), "omega speedmaster", "session_test")

	require.NoError(t, err)
	require.Len(t, listings, 2, "placeholder card should be skipped")

	assert.Equal(t, "Omega Speedmaster Professional", listings[0].Title)
	assert.Equal(t, "$4,250.00", listings[0].Price)
	assert.Equal(t, "https://www.ebay.com/itm/111", listings[0].URL)
	assert.Equal(t, domain.PlatformEBay, listings[0].Platform)
	require.Len(t, listings[0].ImagePaths, 1)
	assert.Contains(t, listings[0].ImagePaths[0], "ebay_1_omega_speedmaster_professional.jpg")

	assert.Equal(t, "Seiko SKX007 Diver", listings[1].Title)
	require.Len(t, listings[1].ImagePaths, 1, "data-src images should download too")

	assert.Equal(t, 2, saver.count())
}

func TestEBay_Scrape_MaxResults(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if strings.HasPrefix(r.URL.Path, "/images/") {
			w.Write([]byte("jpeg-bytes"))
			return
		}
		fmt.Fprintf(w, ebaySearchPage, "http://"+r.Host)
	}))
	defer server.Close()

	scraper := NewEBay(newTestClient(), newMemorySaver(), server.URL, 1)

	listings, err := scraper.Scrape(context.Background(), "omega", "session_test")

	require.NoError(t, err)
	assert.Len(t, listings, 1)
}

func TestEBay_Scrape_ImageFailureKeepsListing(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if strings.HasPrefix(r.URL.Path, "/images/") {
			w.WriteHeader(http.StatusNotFound)
			return
		}
		fmt.Fprintf(w, ebaySearchPage, "http://"+r.Host)
	}))
	defer server.Close()

	scraper := NewEBay(newTestClient(), newMemorySaver(), server.URL, 20)

	listings, err := scraper.Scrape(context.Background(), "omega", "session_test")

	require.NoError(t, err)
	require.Len(t, listings, 2)
	assert.Empty(t, listings[0].ImagePaths, "listing survives a failed image download")
}

func TestEBay_Scrape_Blocked(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusForbidden)
	}))
	defer server.Close()

	scraper := NewEBay(newTestClient(), newMemorySaver(), server.URL, 20)

	_, err := scraper.Scrape(context.Background(), "omega", "session_test")

	require.Error(t, err)
	assert.ErrorIs(t, err, domain.ErrPlatformBlocked)
}

func TestEBay_Platform(t *testing.T) {
	scraper := NewEBay(newTestClient(), newMemorySaver(), "", 0)
	assert.Equal(t, "ebay", scraper.Platform())
}
