package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"log"
	"os"
	"strings"

	"github.com/cheggaaa/pb/v3"
	"github.com/dustin/go-humanize"
	"github.com/joho/godotenv"
	"github.com/pterm/pterm"

	"github.com/watchfinder/backend/config"
	"github.com/watchfinder/backend/internal/domain"
	"github.com/watchfinder/backend/internal/infrastructure/cache"
	"github.com/watchfinder/backend/internal/infrastructure/scrape"
	"github.com/watchfinder/backend/internal/infrastructure/session"
	"github.com/watchfinder/backend/internal/infrastructure/vision"
	"github.com/watchfinder/backend/internal/usecase"
)

const bannerText = `
██╗    ██╗ █████╗ ████████╗ ██████╗██╗  ██╗███████╗██╗███╗   ██╗██████╗ ███████╗██████╗
██║    ██║██╔══██╗╚══██╔══╝██╔════╝██║  ██║██╔════╝██║████╗  ██║██╔══██╗██╔════╝██╔══██╗
██║ █╗ ██║███████║   ██║   ██║     ███████║█████╗  ██║██╔██╗ ██║██║  ██║█████╗  ██████╔╝
██║███╗██║██╔══██║   ██║   ██║     ██╔══██║██╔══╝  ██║██║╚██╗██║██║  ██║██╔══╝  ██╔══██╗
╚███╔███╔╝██║  ██║   ██║   ╚██████╗██║  ██║██║     ██║██║ ╚████║██████╔╝███████╗██║  ██║
 ╚══╝╚══╝ ╚═╝  ╚═╝   ╚═╝    ╚═════╝╚═╝  ╚═╝╚═╝     ╚═╝╚═╝  ╚═══╝╚═════╝ ╚══════╝╚═╝  ╚═╝
`

// printBanner fades the banner from gold to steel blue
func printBanner() {
	start := pterm.NewRGB(212, 175, 55)
	end := pterm.NewRGB(70, 130, 180)

	runes := []rune(bannerText)
	var colored strings.Builder
	for i, r := range runes {
		colored.WriteString(start.Fade(0, float32(len(runes)), float32(i), end).Sprint(string(r)))
	}
	fmt.Println(colored.String())
}

// progressScraper ticks the bar after each platform finishes
type progressScraper struct {
	domain.Scraper
	bar *pb.ProgressBar
}

func (p progressScraper) Scrape(ctx context.Context, query, sessionID string) ([]domain.Listing, error) {
	listings, err := p.Scraper.Scrape(ctx, query, sessionID)
	p.bar.Increment()
	return listings, err
}

func main() {
	query := flag.String("query", "", "Search phrase describing the lost watch (required)")
	referenceDir := flag.String("reference", "", "Directory of reference photos (default: config reference dir)")
	threshold := flag.Float64("threshold", 0.80, "Minimum similarity for a likely match, 0-1")
	platformList := flag.String("platforms", "", "Comma-separated platforms to search (default: all enabled in config)")
	sessionsDir := flag.String("sessions", "", "Directory for session output (default: config sessions dir)")
	verbose := flag.Bool("verbose", false, "Show scraper and matcher detail while running")

	flag.Usage = func() {
		printBanner()
		fmt.Println("Usage:")
		flag.PrintDefaults()
	}
	flag.Parse()

	if strings.TrimSpace(*query) == "" {
		flag.Usage()
		fmt.Println("\nPlease provide a search query with -query.")
		os.Exit(2)
	}
	if *threshold <= 0 || *threshold > 1 {
		fmt.Printf("Invalid -threshold %.2f: must be in (0, 1].\n", *threshold)
		os.Exit(2)
	}

	// Scrapers and the matcher log through the standard logger, which only
	// -verbose surfaces
	if *verbose {
		log.SetFlags(log.Ltime)
	} else {
		log.SetOutput(io.Discard)
	}

	_ = godotenv.Load()
	cfg, err := config.Load()
	if err != nil {
		pterm.Error.Printf("Failed to load configuration: %v\n", err)
		os.Exit(1)
	}
	if *sessionsDir != "" {
		cfg.Sessions.Dir = *sessionsDir
	}
	if *referenceDir != "" {
		cfg.Sessions.ReferenceDir = *referenceDir
	}

	printBanner()

	store := session.NewStore(cfg.Sessions.Dir)
	scrapers, err := buildScrapers(cfg, store, *platformList)
	if err != nil {
		fmt.Println(err)
		os.Exit(2)
	}
	matcher := buildMatcher(cfg, *verbose)

	// One bar tick per platform plus one for the matching phase
	bar := pb.New(len(scrapers) + 1)
	names := make([]string, len(scrapers))
	wrapped := make([]domain.Scraper, len(scrapers))
	for i, s := range scrapers {
		names[i] = s.Platform()
		wrapped[i] = progressScraper{Scraper: s, bar: bar}
	}

	search := usecase.NewSearchService(store, wrapped, matcher, usecase.SearchConfig{
		DefaultThreshold: cfg.Search.Threshold,
		PlatformPause:    cfg.Search.PlatformPause,
	})
	refCount, err := search.ReferenceCount()
	if err != nil {
		pterm.Error.Printf("Reading reference images: %v\n", err)
		os.Exit(1)
	}

	pterm.Info.Printf("Query: %s\n", *query)
	pterm.Info.Printf("Threshold: %.2f\n", *threshold)
	pterm.Info.Printf("Platforms: %s\n", strings.Join(names, ", "))
	if matcher == nil {
		pterm.Warning.Println("Vision API not configured: scraping only, no image matching")
	} else {
		pterm.Info.Printf("Reference images: %d\n", refCount)
	}
	fmt.Println()

	bar.Start()
	result, err := search.Run(context.Background(), *query, *threshold)
	bar.Increment()
	bar.Finish()

	if err != nil && !errors.Is(err, domain.ErrNoResults) && !errors.Is(err, domain.ErrLowConfidence) {
		pterm.Error.Printf("Search failed: %v\n", err)
		os.Exit(1)
	}

	printReport(result)
	os.Exit(0)
}

// buildScrapers wires the enabled marketplaces, optionally narrowed to the
// -platforms list
func buildScrapers(cfg *config.Config, store *session.Store, platformList string) ([]domain.Scraper, error) {
	wanted := map[string]bool{}
	if platformList != "" {
		known := map[string]bool{}
		for _, p := range domain.KnownPlatforms {
			known[p] = true
		}
		for _, name := range strings.Split(platformList, ",") {
			name = strings.ToLower(strings.TrimSpace(name))
			if name == "" {
				continue
			}
			if !known[name] {
				return nil, fmt.Errorf("unknown platform %q (known: %s)", name, strings.Join(domain.KnownPlatforms, ", "))
			}
			wanted[name] = true
		}
	}
	include := func(name string, enabled bool) bool {
		if len(wanted) > 0 {
			return wanted[name]
		}
		return enabled
	}

	client := scrape.NewClient(
		scrape.WithTimeout(cfg.Scrape.Timeout),
		scrape.WithDelays(cfg.Scrape.DelayMin, cfg.Scrape.DelayMax),
	)

	var scrapers []domain.Scraper
	if include(domain.PlatformReddit, cfg.Platforms.Reddit.Enabled) {
		scrapers = append(scrapers, scrape.NewReddit(client, store, "", cfg.Platforms.Reddit.Subreddits, cfg.Platforms.Reddit.MaxResults))
	}
	if include(domain.PlatformEBay, cfg.Platforms.EBay.Enabled) {
		scrapers = append(scrapers, scrape.NewEBay(client, store, "", cfg.Platforms.EBay.MaxResults))
	}
	if include(domain.PlatformCraigslist, cfg.Platforms.Craigslist.Enabled) {
		scrapers = append(scrapers, scrape.NewCraigslist(client, store, "", cfg.Platforms.Craigslist.Cities, cfg.Platforms.Craigslist.MaxResults))
	}
	if include(domain.PlatformPoshmark, cfg.Platforms.Poshmark.Enabled) {
		scrapers = append(scrapers, scrape.NewPoshmark(client, store, "", cfg.Platforms.Poshmark.MaxResults))
	}
	if include(domain.PlatformFacebook, cfg.Platforms.Facebook.Enabled) {
		jar, err := scrape.LoadCookieJar(cfg.Platforms.Facebook.CookiesFile)
		if err != nil {
			pterm.Warning.Printf("Facebook scraper disabled: %v\n", err)
		} else {
			fbClient := scrape.NewClient(
				scrape.WithTimeout(cfg.Scrape.Timeout),
				scrape.WithDelays(cfg.Scrape.DelayMin, cfg.Scrape.DelayMax),
				scrape.WithCookieJar(jar),
			)
			scrapers = append(scrapers, scrape.NewFacebook(fbClient, store, "", cfg.Platforms.Facebook.MaxResults))
		}
	}
	if len(scrapers) == 0 {
		return nil, fmt.Errorf("no platforms selected")
	}
	return scrapers, nil
}

func buildMatcher(cfg *config.Config, verbose bool) *usecase.MatcherService {
	if cfg.Vision.APIURL == "" {
		return nil
	}
	visionClient := vision.NewClient(cfg.Vision.APIURL, cfg.Vision.Timeout, float64(cfg.Vision.RateLimitRPS))
	if cfg.Vision.APIKey != "" {
		visionClient.SetAPIKey(cfg.Vision.APIKey)
	}
	embedder := vision.NewCachingClient(visionClient, cache.NewMemoryCache(), cfg.Vision.CacheTTL)
	return usecase.NewMatcherService(embedder, usecase.MatcherConfig{
		ReferenceDir:       cfg.Sessions.ReferenceDir,
		EnableDebugLogging: verbose,
	})
}

func printReport(result *usecase.SearchResult) {
	summary := result.Summary
	scraping := summary.ScrapingSummary
	matching := summary.MatchingSummary

	fmt.Println()
	pterm.DefaultSection.Println("Search Report")
	fmt.Printf("Session: %s\n", result.SessionID)
	fmt.Printf("Listings found: %s\n", humanize.Comma(int64(scraping.TotalListings)))
	fmt.Printf("Images downloaded: %s\n", humanize.Comma(int64(scraping.TotalImages)))
	fmt.Printf("Images analyzed: %s\n", humanize.Comma(int64(matching.TotalImagesAnalyzed)))
	fmt.Printf("Likely matches: %s (match rate %s)\n",
		humanize.Comma(int64(matching.TotalLikelyMatches)), matching.MatchRate)

	fmt.Println()
	for _, platform := range scraping.PlatformsAttempted {
		breakdown, ok := matching.PlatformBreakdown[platform]
		if !ok {
			continue
		}
		if breakdown.Error != "" {
			fmt.Printf("  %-12s %s\n", platform, pterm.Red(breakdown.Error))
			continue
		}
		fmt.Printf("  %-12s %d listings, %d images, %d likely\n",
			platform, scraping.ListingsByPlatform[platform], breakdown.TotalImages, breakdown.LikelyMatches)
	}

	if len(result.Matches) == 0 {
		fmt.Println()
		pterm.Warning.Println("No likely matches this run.")
		fmt.Println("Try broader search terms, a lower -threshold, or clearer reference photos.")
		return
	}

	fmt.Println()
	fmt.Printf("\033[1m%-45s %-12s %-8s %s\033[0m\n", "Title", "Platform", "Score", "URL")
	for _, m := range result.Matches {
		title := m.Title
		if title == "" {
			title = "Unknown Item"
		}
		fmt.Printf("%-45s %-12s %s %s\n",
			truncate(title, 45), m.Platform, colorScore(m.Confidence), m.URL)
	}
}

// colorScore pads before coloring so ANSI codes do not skew the columns
func colorScore(score float64) string {
	cell := fmt.Sprintf("%-8.2f", score)
	switch {
	case score > 0.90:
		return pterm.Green(cell)
	case score > 0.80:
		return pterm.Yellow(cell)
	default:
		return pterm.Red(cell)
	}
}

func truncate(s string, max int) string {
	runes := []rune(s)
	if len(runes) <= max {
		return s
	}
	return string(runes[:max-3]) + "..."
}
