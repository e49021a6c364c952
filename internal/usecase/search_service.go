package usecase

import (
	"context"
	"errors"
	"fmt"
	"log"
	"path/filepath"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/watchfinder/backend/internal/domain"
)

// weakMatchCutoff is the score under which even the best match is only
// reported as weak
const weakMatchCutoff = 0.70

// SearchConfig holds search pipeline settings
type SearchConfig struct {
	DefaultThreshold float64
	PlatformPause    time.Duration
}

// SearchResult is what a completed run hands to the renderer and the CLI
type SearchResult struct {
	SessionID string
	Summary   *domain.SessionSummary
	Matches   []domain.Match
}

// SearchService orchestrates the scrape-download-match pipeline and keeps
// track of the one background search allowed at a time
type SearchService struct {
	store    domain.SessionStore
	scrapers []domain.Scraper
	matcher  *MatcherService
	config   SearchConfig

	mu     sync.Mutex
	status domain.SearchStatus
}

// NewSearchService creates a search service. A nil matcher disables the
// matching phase; searches still scrape and archive listings.
func NewSearchService(store domain.SessionStore, scrapers []domain.Scraper, matcher *MatcherService, config SearchConfig) *SearchService {
	if config.DefaultThreshold <= 0 || config.DefaultThreshold > 1 {
		config.DefaultThreshold = 0.80
	}

	return &SearchService{
		store:    store,
		scrapers: scrapers,
		matcher:  matcher,
		config:   config,
	}
}

// Run executes the full pipeline synchronously and returns the result.
// ErrNoResults and ErrLowConfidence still carry a usable result; callers
// decide how to present them.
func (s *SearchService) Run(ctx context.Context, query string, threshold float64) (*SearchResult, error) {
	query, err := normalizeQuery(query)
	if err != nil {
		return nil, err
	}
	threshold = s.effectiveThreshold(threshold)

	sessionID, err := s.store.Create(query)
	if err != nil {
		return nil, fmt.Errorf("creating session: %w", err)
	}

	return s.runSession(ctx, sessionID, query, threshold)
}

// Start launches the pipeline in the background and returns the session ID
// immediately. Only one search may be active at a time.
func (s *SearchService) Start(ctx context.Context, query string, threshold float64) (string, error) {
	query, err := normalizeQuery(query)
	if err != nil {
		return "", err
	}
	threshold = s.effectiveThreshold(threshold)

	if s.matcher != nil {
		refs, err := s.matcher.ReferenceImages()
		if err != nil {
			return "", err
		}
		if len(refs) == 0 {
			return "", domain.ErrNoReferenceImages
		}
	}

	s.mu.Lock()
	if s.status.Running {
		s.mu.Unlock()
		return "", domain.ErrSearchRunning
	}

	sessionID, err := s.store.Create(query)
	if err != nil {
		s.mu.Unlock()
		return "", fmt.Errorf("creating session: %w", err)
	}

	s.status = domain.SearchStatus{
		Running:   true,
		SessionID: sessionID,
		Query:     query,
		StartedAt: time.Now(),
	}
	s.mu.Unlock()

	// The request context dies with the HTTP response; the search keeps going
	go func() {
		_, err := s.runSession(context.Background(), sessionID, query, threshold)

		s.mu.Lock()
		defer s.mu.Unlock()
		s.status.Running = false
		s.status.Platform = ""
		s.status.CompletedAt = time.Now()
		if err != nil && !errors.Is(err, domain.ErrNoResults) && !errors.Is(err, domain.ErrLowConfidence) {
			s.status.Error = err.Error()
		}
	}()

	return sessionID, nil
}

// Status reports the background worker's state
func (s *SearchService) Status() domain.SearchStatus {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.status
}

// LatestSummary loads the most recent session's summary
func (s *SearchService) LatestSummary() (*domain.SessionSummary, error) {
	sessionID, err := s.store.Latest()
	if err != nil {
		return nil, fmt.Errorf("%w: no session recorded", domain.ErrSessionNotFound)
	}

	summary, err := s.store.LoadSummary(sessionID)
	if err != nil {
		return nil, fmt.Errorf("%w: session %s", domain.ErrSummaryPending, sessionID)
	}
	return summary, nil
}

// ReferenceCount reports how many reference images are available
func (s *SearchService) ReferenceCount() (int, error) {
	if s.matcher == nil {
		return 0, nil
	}
	images, err := s.matcher.ReferenceImages()
	if err != nil {
		return 0, err
	}
	return len(images), nil
}

// effectiveThreshold resolves the per-request threshold against the default
func (s *SearchService) effectiveThreshold(threshold float64) float64 {
	if threshold <= 0 || threshold > 1 {
		return s.config.DefaultThreshold
	}
	return threshold
}

// runSession drives one session end to end: scrape every platform, match
// the downloaded images, persist details and summary, point latest at it
func (s *SearchService) runSession(ctx context.Context, sessionID, query string, threshold float64) (*SearchResult, error) {
	var sessionLog []string
	logf := func(format string, args ...interface{}) {
		line := fmt.Sprintf(format, args...)
		sessionLog = append(sessionLog, line)
		log.Printf("[search] %s", line)
		if err := s.store.AppendLog(sessionID, line); err != nil {
			log.Printf("[search] session log write failed: %v", err)
		}
	}

	logf("Search started for %q (threshold %.2f)", query, threshold)

	// Matching is skipped entirely when no embedder is wired in
	var refs []ReferenceEmbedding
	matching := s.matcher != nil
	if matching {
		var err error
		refs, err = s.matcher.LoadReferences(ctx)
		if err != nil {
			return nil, err
		}
		logf("Loaded %d reference images", len(refs))
	} else {
		logf("Matching disabled: no embedding service configured")
	}

	platforms := make([]string, 0, len(s.scrapers))
	listingsByPlatform := make(map[string][]domain.Listing, len(s.scrapers))
	scrapeErrors := make(map[string]string)

	for i, scraper := range s.scrapers {
		platform := scraper.Platform()
		platforms = append(platforms, platform)

		if i > 0 {
			if err := s.pause(ctx); err != nil {
				return nil, err
			}
		}
		s.setCurrentPlatform(platform)

		logf("Scraping %s...", platform)
		listings, err := scraper.Scrape(ctx, query, sessionID)
		if err != nil {
			if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
				return nil, err
			}
			// One blocked or broken marketplace must not end the run
			logf("%s failed: %v", platform, err)
			scrapeErrors[platform] = err.Error()
			continue
		}

		if err := s.store.SaveListings(sessionID, platform, listings); err != nil {
			logf("%s: saving listings failed: %v", platform, err)
		}
		listingsByPlatform[platform] = listings
		logf("%s: %d listings", platform, len(listings))
	}
	s.setCurrentPlatform("")

	// Matching phase
	fullResults := make(map[string]domain.PlatformMatchResult, len(platforms))
	breakdown := make(map[string]domain.PlatformMatchResult, len(platforms))
	imagesByPlatform := make(map[string]int, len(platforms))
	totalImages := 0

	for _, platform := range platforms {
		if msg, failed := scrapeErrors[platform]; failed {
			fullResults[platform] = domain.PlatformMatchResult{Error: msg}
			breakdown[platform] = domain.PlatformMatchResult{Error: msg}
			continue
		}

		images, err := s.store.ListImages(sessionID, platform)
		if err != nil {
			logf("%s: listing images failed: %v", platform, err)
		}
		imagesByPlatform[platform] = len(images)
		totalImages += len(images)

		if !matching {
			fullResults[platform] = domain.PlatformMatchResult{TotalImages: len(images)}
			breakdown[platform] = domain.PlatformMatchResult{TotalImages: len(images)}
			continue
		}

		details, err := s.matcher.MatchImages(ctx, refs, images, threshold)
		if err != nil {
			return nil, err
		}
		for i := range details {
			details[i].Platform = platform
		}

		likely := likelyMatches(details)
		fullResults[platform] = domain.PlatformMatchResult{
			TotalImages:   len(details),
			LikelyMatches: len(likely),
			MatchDetails:  details,
		}
		breakdown[platform] = domain.PlatformMatchResult{
			TotalImages:   len(details),
			LikelyMatches: len(likely),
			MatchDetails:  likely,
		}
		logf("%s: %d likely matches out of %d images", platform, len(likely), len(details))
	}

	if err := s.store.SaveMatchDetails(sessionID, fullResults); err != nil {
		logf("Saving match details failed: %v", err)
	}

	summary := s.buildSummary(sessionID, query, threshold, platforms, listingsByPlatform, imagesByPlatform, totalImages, breakdown, sessionLog)
	if err := s.store.SaveSummary(sessionID, summary); err != nil {
		logf("Saving summary failed: %v", err)
	}
	if err := s.store.SetLatest(sessionID); err != nil {
		logf("Updating latest-session pointer failed: %v", err)
	}

	result := &SearchResult{
		SessionID: sessionID,
		Summary:   summary,
		Matches:   buildMatches(sessionID, platforms, breakdown, listingsByPlatform),
	}

	if len(result.Matches) == 0 {
		return result, domain.ErrNoResults
	}
	if result.Matches[0].Confidence < weakMatchCutoff {
		return result, domain.ErrLowConfidence
	}
	return result, nil
}

func (s *SearchService) pause(ctx context.Context) error {
	if s.config.PlatformPause <= 0 {
		return nil
	}
	select {
	case <-time.After(s.config.PlatformPause):
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (s *SearchService) setCurrentPlatform(platform string) {
	s.mu.Lock()
	s.status.Platform = platform
	s.mu.Unlock()
}

func (s *SearchService) buildSummary(
	sessionID, query string,
	threshold float64,
	platforms []string,
	listingsByPlatform map[string][]domain.Listing,
	imagesByPlatform map[string]int,
	totalImages int,
	breakdown map[string]domain.PlatformMatchResult,
	sessionLog []string,
) *domain.SessionSummary {
	listingCounts := make(map[string]int, len(listingsByPlatform))
	totalListings := 0
	for platform, listings := range listingsByPlatform {
		listingCounts[platform] = len(listings)
		totalListings += len(listings)
	}

	totalAnalyzed := 0
	totalLikely := 0
	topMatches := make([]domain.MatchDetail, 0)
	for _, platform := range platforms {
		result := breakdown[platform]
		if result.Error != "" {
			continue
		}
		totalAnalyzed += result.TotalImages
		totalLikely += result.LikelyMatches
		topMatches = append(topMatches, result.MatchDetails...)
	}

	sort.SliceStable(topMatches, func(i, j int) bool {
		return topMatches[i].BestScore > topMatches[j].BestScore
	})
	if len(topMatches) > 10 {
		topMatches = topMatches[:10]
	}

	matchRate := "0%"
	if totalAnalyzed > 0 {
		matchRate = fmt.Sprintf("%.1f%%", float64(totalLikely)/float64(totalAnalyzed)*100)
	}

	return &domain.SessionSummary{
		SessionInfo: domain.SessionInfo{
			SessionID:      sessionID,
			SearchQuery:    query,
			Timestamp:      time.Now().Format(time.RFC3339),
			MatchThreshold: threshold,
		},
		ScrapingSummary: domain.ScrapingSummary{
			PlatformsAttempted: platforms,
			PlatformsEnabled:   platforms,
			ListingsByPlatform: listingCounts,
			ImagesByPlatform:   imagesByPlatform,
			TotalListings:      totalListings,
			TotalImages:        totalImages,
		},
		MatchingSummary: domain.MatchingSummary{
			TotalImagesAnalyzed: totalAnalyzed,
			TotalLikelyMatches:  totalLikely,
			MatchRate:           matchRate,
			PlatformBreakdown:   breakdown,
		},
		TopMatches: topMatches,
		SessionLog: sessionLog,
	}
}

// buildMatches joins likely match details back to their listings so the
// results page can show titles, prices and links. Ordered best score first.
func buildMatches(sessionID string, platforms []string, breakdown map[string]domain.PlatformMatchResult, listingsByPlatform map[string][]domain.Listing) []domain.Match {
	var matches []domain.Match

	for _, platform := range platforms {
		result := breakdown[platform]
		for _, detail := range result.MatchDetails {
			if !detail.IsLikelyMatch {
				continue
			}

			match := domain.Match{
				Title:      titleFromFilename(detail.TestImage),
				Confidence: detail.BestScore,
				Platform:   platform,
				SessionID:  sessionID,
				Filename:   detail.TestImage,
			}

			if listing, ok := findListing(listingsByPlatform[platform], detail.TestImage); ok {
				if listing.Title != "" {
					match.Title = listing.Title
				}
				match.Price = listing.Price
				match.URL = listing.URL
			}

			matches = append(matches, match)
		}
	}

	sort.SliceStable(matches, func(i, j int) bool {
		return matches[i].Confidence > matches[j].Confidence
	})
	return matches
}

// findListing locates the listing whose downloaded images include filename
func findListing(listings []domain.Listing, filename string) (domain.Listing, bool) {
	for _, listing := range listings {
		for _, path := range listing.ImagePaths {
			if filepath.Base(path) == filename {
				return listing, true
			}
		}
	}
	return domain.Listing{}, false
}

// titleFromFilename recovers a displayable title when no listing matches
func titleFromFilename(filename string) string {
	title := strings.TrimSuffix(filename, filepath.Ext(filename))
	return strings.ReplaceAll(title, "_", " ")
}

// likelyMatches filters details down to the ones that cleared the threshold
func likelyMatches(details []domain.MatchDetail) []domain.MatchDetail {
	likely := make([]domain.MatchDetail, 0, len(details))
	for _, detail := range details {
		if detail.IsLikelyMatch {
			likely = append(likely, detail)
		}
	}
	return likely
}
