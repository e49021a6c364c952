package config

import (
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// Config holds all configuration for the application
type Config struct {
	Server    ServerConfig
	Sessions  SessionsConfig
	Search    SearchConfig
	Platforms PlatformsConfig
	Scrape    ScrapeConfig
	Vision    VisionConfig
}

// ServerConfig holds server-related configuration
type ServerConfig struct {
	Host           string        `mapstructure:"host"`
	Port           string        `mapstructure:"port"`
	Environment    string        `mapstructure:"environment"`
	AllowedOrigins []string      `mapstructure:"allowed_origins"`
	ReadTimeout    time.Duration `mapstructure:"read_timeout"`
	WriteTimeout   time.Duration `mapstructure:"write_timeout"`
}

// SessionsConfig holds session storage configuration
type SessionsConfig struct {
	Dir          string `mapstructure:"dir"`
	ReferenceDir string `mapstructure:"reference_dir"`
	MaxUploadMB  int64  `mapstructure:"max_upload_mb"`
}

// SearchConfig holds search/matching configuration
type SearchConfig struct {
	Threshold     float64       `mapstructure:"threshold"`      // minimum similarity for a likely match
	PlatformPause time.Duration `mapstructure:"platform_pause"` // pause between platforms
}

// PlatformsConfig holds per-marketplace scraper configuration
type PlatformsConfig struct {
	EBay       EBayConfig       `mapstructure:"ebay"`
	Craigslist CraigslistConfig `mapstructure:"craigslist"`
	Reddit     RedditConfig     `mapstructure:"reddit"`
	Poshmark   PoshmarkConfig   `mapstructure:"poshmark"`
	Facebook   FacebookConfig   `mapstructure:"facebook"`
}

// EBayConfig holds eBay scraper configuration
type EBayConfig struct {
	Enabled    bool `mapstructure:"enabled"`
	MaxResults int  `mapstructure:"max_results"`
}

// CraigslistConfig holds Craigslist scraper configuration
type CraigslistConfig struct {
	Enabled    bool     `mapstructure:"enabled"`
	MaxResults int      `mapstructure:"max_results"`
	Cities     []string `mapstructure:"cities"` // craigslist subdomains, e.g. "losangeles"
}

// RedditConfig holds Reddit scraper configuration
type RedditConfig struct {
	Enabled    bool     `mapstructure:"enabled"`
	MaxResults int      `mapstructure:"max_results"`
	Subreddits []string `mapstructure:"subreddits"`
}

// PoshmarkConfig holds Poshmark scraper configuration
type PoshmarkConfig struct {
	Enabled    bool `mapstructure:"enabled"`
	MaxResults int  `mapstructure:"max_results"`
}

// FacebookConfig holds Facebook Marketplace scraper configuration.
// Marketplace requires a logged-in session, so this platform stays off
// unless a cookies file is provided.
type FacebookConfig struct {
	Enabled     bool   `mapstructure:"enabled"`
	MaxResults  int    `mapstructure:"max_results"`
	CookiesFile string `mapstructure:"cookies_file"`
}

// ScrapeConfig holds shared scraper behavior configuration
type ScrapeConfig struct {
	DelayMin time.Duration `mapstructure:"delay_min"`
	DelayMax time.Duration `mapstructure:"delay_max"`
	Timeout  time.Duration `mapstructure:"timeout"`
}

// VisionConfig holds embedding service configuration
type VisionConfig struct {
	APIURL       string        `mapstructure:"api_url"`
	APIKey       string        `mapstructure:"api_key"`
	Timeout      time.Duration `mapstructure:"timeout"`
	RateLimitRPS int           `mapstructure:"rate_limit_rps"`
	CacheTTL     time.Duration `mapstructure:"cache_ttl"`
}

// Load loads configuration from environment variables and config files
func Load() (*Config, error) {
	v := viper.New()

	// Set config name and paths
	v.SetConfigName("config")
	v.SetConfigType("yaml")
	v.AddConfigPath(".")
	v.AddConfigPath("./config")
	v.AddConfigPath("/etc/watchfinder/")

	// Environment variable settings
	v.SetEnvPrefix("WATCHFINDER")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	// Set default values
	setDefaults(v)

	// Read config file (optional - will use env vars if file doesn't exist)
	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, fmt.Errorf("error reading config file: %w", err)
		}
		// Config file not found; using environment variables and defaults
	}

	var config Config
	if err := v.Unmarshal(&config); err != nil {
		return nil, fmt.Errorf("unable to decode config: %w", err)
	}

	// Validate configuration
	if err := validate(&config); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	return &config, nil
}

// setDefaults sets default configuration values
func setDefaults(v *viper.Viper) {
	// Server defaults
	v.SetDefault("server.host", "0.0.0.0")
	v.SetDefault("server.port", "8080")
	v.SetDefault("server.environment", "development")
	v.SetDefault("server.allowed_origins", []string{"*"})
	v.SetDefault("server.read_timeout", "10s")
	v.SetDefault("server.write_timeout", "30s")

	// Session storage defaults
	v.SetDefault("sessions.dir", "sessions")
	v.SetDefault("sessions.reference_dir", "reference_images")
	v.SetDefault("sessions.max_upload_mb", 16)

	// Search defaults; the web form displays 0.60, the CLI overrides to 0.80
	v.SetDefault("search.threshold", 0.60)
	v.SetDefault("search.platform_pause", "3s")

	// Platform defaults mirror the per-marketplace caps the scrapers were
	// tuned for; Facebook stays low and disabled to avoid account blocks
	v.SetDefault("platforms.ebay.enabled", true)
	v.SetDefault("platforms.ebay.max_results", 20)
	v.SetDefault("platforms.craigslist.enabled", true)
	v.SetDefault("platforms.craigslist.max_results", 15)
	v.SetDefault("platforms.craigslist.cities", []string{"losangeles", "newyork", "chicago"})
	v.SetDefault("platforms.reddit.enabled", true)
	v.SetDefault("platforms.reddit.max_results", 10)
	v.SetDefault("platforms.reddit.subreddits", []string{"Watches", "WatchExchange", "rolex", "PatekPhilippe"})
	v.SetDefault("platforms.poshmark.enabled", true)
	v.SetDefault("platforms.poshmark.max_results", 15)
	v.SetDefault("platforms.facebook.enabled", false)
	v.SetDefault("platforms.facebook.max_results", 8)

	// Scrape defaults
	v.SetDefault("scrape.delay_min", "2s")
	v.SetDefault("scrape.delay_max", "5s")
	v.SetDefault("scrape.timeout", "15s")

	// Vision defaults; api_url left empty so matching is opt-in
	v.SetDefault("vision.timeout", "30s")
	v.SetDefault("vision.rate_limit_rps", 2)
	v.SetDefault("vision.cache_ttl", "24h")
}

// validate validates the configuration
func validate(config *Config) error {
	port, err := strconv.Atoi(config.Server.Port)
	if err != nil || port < 1 || port > 65535 {
		return fmt.Errorf("server port must be a number between 1 and 65535, got: %s", config.Server.Port)
	}

	if config.Search.Threshold < 0 || config.Search.Threshold > 1 {
		return fmt.Errorf("search threshold must be between 0 and 1, got: %v", config.Search.Threshold)
	}

	if config.Sessions.MaxUploadMB <= 0 {
		return fmt.Errorf("sessions max_upload_mb must be positive, got: %d", config.Sessions.MaxUploadMB)
	}

	if config.Scrape.DelayMin > config.Scrape.DelayMax {
		return fmt.Errorf("scrape delay_min must not exceed delay_max")
	}

	if !config.Platforms.EBay.Enabled &&
		!config.Platforms.Craigslist.Enabled &&
		!config.Platforms.Reddit.Enabled &&
		!config.Platforms.Poshmark.Enabled &&
		!config.Platforms.Facebook.Enabled {
		return fmt.Errorf("at least one platform must be enabled")
	}

	if config.Platforms.Facebook.Enabled && config.Platforms.Facebook.CookiesFile == "" {
		return fmt.Errorf("facebook scraping requires a cookies file (set WATCHFINDER_PLATFORMS_FACEBOOK_COOKIES_FILE)")
	}

	return nil
}
