package main

import (
	"fmt"
	"log"
	"net/http"
	"os"

	"github.com/joho/godotenv"

	"github.com/watchfinder/backend/config"
	httpDelivery "github.com/watchfinder/backend/internal/delivery/http"
	"github.com/watchfinder/backend/internal/domain"
	"github.com/watchfinder/backend/internal/infrastructure/cache"
	"github.com/watchfinder/backend/internal/infrastructure/scrape"
	"github.com/watchfinder/backend/internal/infrastructure/session"
	"github.com/watchfinder/backend/internal/infrastructure/vision"
	"github.com/watchfinder/backend/internal/usecase"
)

func main() {
	// Load .env if present; deployments configure the environment directly
	_ = godotenv.Load()

	// Load configuration
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("Failed to load configuration: %v", err)
	}

	log.Printf("Starting Lost Watch Finder Backend v1.0.0")
	log.Printf("Environment: %s", cfg.Server.Environment)
	log.Printf("Port: %s", cfg.Server.Port)
	log.Printf("Session dir: %s", cfg.Sessions.Dir)

	// Initialize infrastructure dependencies
	store := session.NewStore(cfg.Sessions.Dir)
	scrapers := buildScrapers(cfg, store)
	matcher := buildMatcher(cfg)

	// Initialize usecase layer
	searchService := usecase.NewSearchService(
		store,
		scrapers,
		matcher,
		usecase.SearchConfig{
			DefaultThreshold: cfg.Search.Threshold,
			PlatformPause:    cfg.Search.PlatformPause,
		},
	)

	log.Printf("Search: threshold=%.2f, pause=%s, platforms=%d",
		cfg.Search.Threshold,
		cfg.Search.PlatformPause,
		len(scrapers))

	// Create HTTP handler with dependencies
	handler := httpDelivery.NewHandler(searchService, store, cfg.Sessions.ReferenceDir, cfg.Sessions.MaxUploadMB)

	// Setup router
	router := httpDelivery.SetupRouter(cfg, handler)

	// Start server
	addr := fmt.Sprintf("%s:%s", cfg.Server.Host, cfg.Server.Port)
	srv := &http.Server{
		Addr:         addr,
		Handler:      router,
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
	}
	log.Printf("Server listening on %s", addr)

	if err := srv.ListenAndServe(); err != nil {
		log.Fatalf("Failed to start server: %v", err)
	}
}

// buildScrapers wires one scraper per enabled marketplace, in the fixed
// platform order sessions report in
func buildScrapers(cfg *config.Config, store *session.Store) []domain.Scraper {
	client := scrape.NewClient(
		scrape.WithTimeout(cfg.Scrape.Timeout),
		scrape.WithDelays(cfg.Scrape.DelayMin, cfg.Scrape.DelayMax),
	)

	var scrapers []domain.Scraper
	if cfg.Platforms.Reddit.Enabled {
		scrapers = append(scrapers, scrape.NewReddit(client, store, "", cfg.Platforms.Reddit.Subreddits, cfg.Platforms.Reddit.MaxResults))
	}
	if cfg.Platforms.EBay.Enabled {
		scrapers = append(scrapers, scrape.NewEBay(client, store, "", cfg.Platforms.EBay.MaxResults))
	}
	if cfg.Platforms.Craigslist.Enabled {
		scrapers = append(scrapers, scrape.NewCraigslist(client, store, "", cfg.Platforms.Craigslist.Cities, cfg.Platforms.Craigslist.MaxResults))
	}
	if cfg.Platforms.Poshmark.Enabled {
		scrapers = append(scrapers, scrape.NewPoshmark(client, store, "", cfg.Platforms.Poshmark.MaxResults))
	}
	if cfg.Platforms.Facebook.Enabled {
		// Marketplace needs an authenticated session, so Facebook gets its
		// own client carrying the exported cookie jar
		jar, err := scrape.LoadCookieJar(cfg.Platforms.Facebook.CookiesFile)
		if err != nil {
			log.Printf("WARNING: Facebook scraper disabled: %v", err)
		} else {
			fbClient := scrape.NewClient(
				scrape.WithTimeout(cfg.Scrape.Timeout),
				scrape.WithDelays(cfg.Scrape.DelayMin, cfg.Scrape.DelayMax),
				scrape.WithCookieJar(jar),
			)
			scrapers = append(scrapers, scrape.NewFacebook(fbClient, store, "", cfg.Platforms.Facebook.MaxResults))
		}
	}

	for _, s := range scrapers {
		log.Printf("Platform enabled: %s", s.Platform())
	}
	return scrapers
}

// buildMatcher wires the embedding client behind an in-memory cache. A
// missing vision API URL leaves matching off and the server scrape-only.
func buildMatcher(cfg *config.Config) *usecase.MatcherService {
	if cfg.Vision.APIURL == "" {
		log.Printf("WARNING: vision api_url not configured - image matching disabled, searches will be scrape-only")
		return nil
	}

	visionClient := vision.NewClient(cfg.Vision.APIURL, cfg.Vision.Timeout, float64(cfg.Vision.RateLimitRPS))
	if cfg.Vision.APIKey != "" {
		visionClient.SetAPIKey(cfg.Vision.APIKey)
	}
	embedder := vision.NewCachingClient(visionClient, cache.NewMemoryCache(), cfg.Vision.CacheTTL)
	log.Printf("Vision API configured: %s (cache TTL: %s)", cfg.Vision.APIURL, cfg.Vision.CacheTTL)

	return usecase.NewMatcherService(embedder, usecase.MatcherConfig{
		ReferenceDir:       cfg.Sessions.ReferenceDir,
		EnableDebugLogging: cfg.Server.Environment == "development",
	})
}

func init() {
	// Set log flags for better debugging
	log.SetFlags(log.Ldate | log.Ltime | log.Lshortfile)
	log.SetOutput(os.Stdout)
}
