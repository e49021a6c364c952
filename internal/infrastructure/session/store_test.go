package session

import (
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/watchfinder/backend/internal/domain"
)

func newTestStore(t *testing.T) *Store {
	t.Helper()
	return NewStore(t.TempDir())
}

func TestStore_Create(t *testing.T) {
	store := newTestStore(t)

	id, err := store.Create("rolex submariner")
	require.NoError(t, err)
	assert.NotEmpty(t, id)

	for _, sub := range []string{"scraped_images", "results", "matches", "logs"} {
		info, err := os.Stat(filepath.Join(store.root, "session_"+id, sub))
		require.NoError(t, err, "missing %s", sub)
		assert.True(t, info.IsDir())
	}

	// Session log records the start
	data, err := os.ReadFile(filepath.Join(store.root, "session_"+id, "logs", "session.log"))
	require.NoError(t, err)
	assert.Contains(t, string(data), "Session started")
	assert.Contains(t, string(data), "rolex submariner")
}

func TestStore_Create_SameSecondCollision(t *testing.T) {
	store := newTestStore(t)
	fixed := time.Date(2025, 3, 14, 15, 9, 26, 0, time.UTC)
	store.now = func() time.Time { return fixed }

	first, err := store.Create("omega")
	require.NoError(t, err)
	assert.Equal(t, "20250314_150926", first)

	second, err := store.Create("omega")
	require.NoError(t, err)
	assert.Equal(t, "20250314_150926_2", second)
}

func TestStore_SaveAndLoadListings(t *testing.T) {
	store := newTestStore(t)
	id, err := store.Create("tudor black bay")
	require.NoError(t, err)

	listings := []domain.Listing{
		{
			Title:      "Tudor Black Bay 58",
			Price:      "$2,900.00",
			URL:        "https://www.ebay.com/itm/123",
			Platform:   domain.PlatformEBay,
			ImagePaths: []string{"sessions/session_x/scraped_images/ebay/ebay_1.jpg"},
		},
		{
			Title:    "Black Bay GMT",
			URL:      "https://www.ebay.com/itm/456",
			Platform: domain.PlatformEBay,
		},
	}

	require.NoError(t, store.SaveListings(id, domain.PlatformEBay, listings))

	got, err := store.LoadListings(id, domain.PlatformEBay)
	require.NoError(t, err)
	require.Len(t, got, 2)
	assert.Equal(t, "Tudor Black Bay 58", got[0].Title)
	assert.Equal(t, "$2,900.00", got[0].Price)
	assert.Len(t, got[0].ImagePaths, 1)
	assert.Empty(t, got[1].Price)
}

func TestStore_LoadListings_LegacySingularImagePath(t *testing.T) {
	store := newTestStore(t)
	id, err := store.Create("seiko")
	require.NoError(t, err)

	// Older result files carried image_path (singular) and listing_url
	raw := `[{"title":"Seiko SKX007","price":"$180","listing_url":"https://example.com/skx",
	         "platform":"ebay","image_path":"scraped_images/ebay/ebay_2_skx.jpg"}]`
	path := filepath.Join(store.root, "session_"+id, "results", "ebay_results.json")
	require.NoError(t, os.WriteFile(path, []byte(raw), 0o644))

	got, err := store.LoadListings(id, domain.PlatformEBay)
	require.NoError(t, err)
	require.Len(t, got, 1)
	assert.Equal(t, "https://example.com/skx", got[0].URL)
	require.Len(t, got[0].ImagePaths, 1)
	assert.Equal(t, "scraped_images/ebay/ebay_2_skx.jpg", got[0].ImagePaths[0])
}

func TestStore_LoadListings_Missing(t *testing.T) {
	store := newTestStore(t)
	id, err := store.Create("casio")
	require.NoError(t, err)

	_, err = store.LoadListings(id, domain.PlatformPoshmark)
	assert.ErrorIs(t, err, domain.ErrSessionNotFound)
}

func TestStore_SaveImageAndListImages(t *testing.T) {
	store := newTestStore(t)
	id, err := store.Create("gmt master")
	require.NoError(t, err)

	pathB, err := store.SaveImage(id, domain.PlatformReddit, "reddit_2_gmt.jpg", []byte("jpegdata-b"))
	require.NoError(t, err)
	pathA, err := store.SaveImage(id, domain.PlatformReddit, "reddit_1_gmt.jpg", []byte("jpegdata-a"))
	require.NoError(t, err)

	assert.FileExists(t, pathA)
	assert.FileExists(t, pathB)

	images, err := store.ListImages(id, domain.PlatformReddit)
	require.NoError(t, err)
	require.Len(t, images, 2)
	// Sorted by name regardless of write order
	assert.Equal(t, "reddit_1_gmt.jpg", filepath.Base(images[0]))
	assert.Equal(t, "reddit_2_gmt.jpg", filepath.Base(images[1]))

	// Platform with no downloads yields no paths and no error
	images, err = store.ListImages(id, domain.PlatformFacebook)
	require.NoError(t, err)
	assert.Empty(t, images)
}

func TestStore_ImagePath(t *testing.T) {
	store := newTestStore(t)
	id, err := store.Create("daytona")
	require.NoError(t, err)

	_, err = store.SaveImage(id, domain.PlatformEBay, "ebay_1_daytona.jpg", []byte("x"))
	require.NoError(t, err)

	t.Run("resolves existing image", func(t *testing.T) {
		path, err := store.ImagePath(id, domain.PlatformEBay, "ebay_1_daytona.jpg")
		require.NoError(t, err)
		assert.FileExists(t, path)
	})

	t.Run("missing image", func(t *testing.T) {
		_, err := store.ImagePath(id, domain.PlatformEBay, "nope.jpg")
		assert.ErrorIs(t, err, domain.ErrSessionNotFound)
	})

	t.Run("rejects traversal attempts", func(t *testing.T) {
		attempts := [][3]string{
			{id, domain.PlatformEBay, "../../../etc/passwd"},
			{id, "..", "ebay_1_daytona.jpg"},
			{"..", domain.PlatformEBay, "ebay_1_daytona.jpg"},
			{id, domain.PlatformEBay, ".."},
			{id, domain.PlatformEBay, ""},
			{id, "ebay/../..", "ebay_1_daytona.jpg"},
		}
		for _, a := range attempts {
			_, err := store.ImagePath(a[0], a[1], a[2])
			assert.Error(t, err, "expected rejection for %v", a)
			assert.True(t, errors.Is(err, domain.ErrSessionNotFound))
		}
	})
}

func TestStore_MatchDetailsRoundTrip(t *testing.T) {
	store := newTestStore(t)
	id, err := store.Create("speedmaster")
	require.NoError(t, err)

	results := map[string]domain.PlatformMatchResult{
		domain.PlatformEBay: {
			TotalImages:   3,
			LikelyMatches: 1,
			MatchDetails: []domain.MatchDetail{
				{
					TestImage:       "ebay_1_speedmaster.jpg",
					BestMatch:       "front.jpg",
					BestScore:       0.93,
					IsLikelyMatch:   true,
					ConfidenceLevel: "Very Likely Match",
					Platform:        domain.PlatformEBay,
				},
			},
		},
	}

	require.NoError(t, store.SaveMatchDetails(id, results))

	got, err := store.LoadMatchDetails(id)
	require.NoError(t, err)
	require.Contains(t, got, domain.PlatformEBay)
	assert.Equal(t, 1, got[domain.PlatformEBay].LikelyMatches)
	require.Len(t, got[domain.PlatformEBay].MatchDetails, 1)
	assert.Equal(t, 0.93, got[domain.PlatformEBay].MatchDetails[0].BestScore)
}

func TestStore_SummaryRoundTrip(t *testing.T) {
	store := newTestStore(t)
	id, err := store.Create("nautilus")
	require.NoError(t, err)

	summary := &domain.SessionSummary{
		SessionInfo: domain.SessionInfo{
			SessionID:      id,
			SearchQuery:    "nautilus",
			MatchThreshold: 0.8,
		},
		MatchingSummary: domain.MatchingSummary{
			TotalImagesAnalyzed: 12,
			TotalLikelyMatches:  2,
			MatchRate:           "16.7%",
		},
		SessionLog: []string{"Session started"},
	}

	require.NoError(t, store.SaveSummary(id, summary))

	got, err := store.LoadSummary(id)
	require.NoError(t, err)
	assert.Equal(t, "nautilus", got.SessionInfo.SearchQuery)
	assert.Equal(t, "16.7%", got.MatchingSummary.MatchRate)

	_, err = store.LoadSummary("19990101_000000")
	assert.ErrorIs(t, err, domain.ErrSessionNotFound)
}

func TestStore_Latest(t *testing.T) {
	store := newTestStore(t)

	_, err := store.Latest()
	assert.ErrorIs(t, err, domain.ErrSessionNotFound)

	id, err := store.Create("datejust")
	require.NoError(t, err)
	require.NoError(t, store.SetLatest(id))

	got, err := store.Latest()
	require.NoError(t, err)
	assert.Equal(t, id, got)
}
