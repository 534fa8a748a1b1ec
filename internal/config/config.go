package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"
)

// Config holds all configuration for the RankPulse server and workers.
type Config struct {
	Server   ServerConfig
	Database DatabaseConfig
	Redis    RedisConfig
	Google   GoogleConfig
	Sync     SyncConfig
	Keywords KeywordsConfig
}

type ServerConfig struct {
	Port int
	Env  string
}

type DatabaseConfig struct {
	URL             string
	MaxOpenConns    int
	MaxIdleConns    int
	ConnMaxLifetime time.Duration
}

type RedisConfig struct {
	URL string
}

// GoogleConfig covers both the Search Console and the Ads integrations.
// The OAuth refresh token is the long-lived credential; short-lived access
// tokens are minted from it on demand.
type GoogleConfig struct {
	ClientID     string
	ClientSecret string
	RefreshToken string

	SiteURL string // default Search Console property, e.g. https://example.com/

	AdsDeveloperToken  string
	AdsCustomerID      string
	AdsLoginCustomerID string
	LanguageID         string
	CountryCode        string

	Timeout time.Duration
}

// AdsConfigured reports whether the keyword-research integration can run.
func (g GoogleConfig) AdsConfigured() bool {
	return g.AdsDeveloperToken != "" && g.AdsCustomerID != ""
}

// SyncConfig tunes the day-window search-stats ingestion.
type SyncConfig struct {
	Days      int           // default window size when the request gives no range
	Country   string        // ISO-3166-1 alpha-3 filter, e.g. "can"; empty disables it
	DayDelay  time.Duration // coarse throttle between day fetches
	RowLimit  int           // per-day row cap on the Search Console query
	ChunkSize int           // rows per bulk upsert
	Retries   int
	BaseDelay time.Duration
}

// KeywordsConfig tunes the geo/keyword orchestration.
type KeywordsConfig struct {
	PerLocationLimit int
	OverallLimit     int
	Delay            time.Duration // coarse throttle between locations
	Brand            string        // brand phrase excluded from ideas
	Retries          int
	BaseDelay        time.Duration
	WorkerBin        string // if set, keyword jobs run this binary out of process
}

// Load reads configuration from environment variables and returns a validated Config.
// Returns an error with a descriptive message if any required value is missing or invalid.
func Load() (*Config, error) {
	cfg := &Config{
		Server: ServerConfig{
			Port: envInt("RANKPULSE_PORT", 8080),
			Env:  envString("RANKPULSE_ENV", "development"),
		},
		Database: DatabaseConfig{
			URL:             os.Getenv("DATABASE_URL"),
			MaxOpenConns:    envInt("DATABASE_MAX_OPEN_CONNS", 25),
			MaxIdleConns:    envInt("DATABASE_MAX_IDLE_CONNS", 5),
			ConnMaxLifetime: envDuration("DATABASE_CONN_MAX_LIFETIME", 5*time.Minute),
		},
		Redis: RedisConfig{
			URL: os.Getenv("REDIS_URL"),
		},
		Google: GoogleConfig{
			ClientID:           os.Getenv("GOOGLE_CLIENT_ID"),
			ClientSecret:       os.Getenv("GOOGLE_CLIENT_SECRET"),
			RefreshToken:       os.Getenv("GOOGLE_REFRESH_TOKEN"),
			SiteURL:            os.Getenv("GSC_SITE_URL"),
			AdsDeveloperToken:  os.Getenv("GOOGLE_ADS_DEVELOPER_TOKEN"),
			AdsCustomerID:      os.Getenv("GOOGLE_ADS_CUSTOMER_ID"),
			AdsLoginCustomerID: os.Getenv("GOOGLE_ADS_LOGIN_CUSTOMER_ID"),
			LanguageID:         envString("GOOGLE_ADS_LANGUAGE_ID", "1000"),
			CountryCode:        envString("GOOGLE_ADS_COUNTRY_CODE", "CA"),
			Timeout:            envDuration("GOOGLE_API_TIMEOUT", 30*time.Second),
		},
		Sync: SyncConfig{
			Days:      envInt("SYNC_DAYS", 28),
			Country:   strings.ToLower(envString("SYNC_COUNTRY", "can")),
			DayDelay:  envDuration("SYNC_DAY_DELAY", 1200*time.Millisecond),
			RowLimit:  envInt("SYNC_ROW_LIMIT", 1000),
			ChunkSize: envInt("SYNC_CHUNK_SIZE", 500),
			Retries:   envInt("SYNC_MAX_RETRIES", 5),
			BaseDelay: envDuration("SYNC_BASE_DELAY", 800*time.Millisecond),
		},
		Keywords: KeywordsConfig{
			PerLocationLimit: envInt("KEYWORDS_PER_LOC_LIMIT", 40),
			OverallLimit:     envInt("KEYWORDS_TOP_LIMIT", 50),
			Delay:            envDuration("KEYWORDS_DELAY", 800*time.Millisecond),
			Brand:            os.Getenv("KEYWORDS_BRAND"),
			Retries:          envInt("KEYWORDS_MAX_RETRIES", 5),
			BaseDelay:        envDuration("KEYWORDS_BASE_DELAY", 800*time.Millisecond),
			WorkerBin:        os.Getenv("KEYWORDS_WORKER_BIN"),
		},
	}

	if err := cfg.validate(); err != nil {
		return nil, err
	}

	return cfg, nil
}

func (c *Config) validate() error {
	if c.Database.URL == "" {
		return fmt.Errorf("DATABASE_URL is required")
	}

	if c.Redis.URL == "" {
		return fmt.Errorf("REDIS_URL is required")
	}

	if c.Google.ClientID == "" || c.Google.ClientSecret == "" {
		return fmt.Errorf("GOOGLE_CLIENT_ID and GOOGLE_CLIENT_SECRET are required")
	}
	if c.Google.RefreshToken == "" {
		return fmt.Errorf("GOOGLE_REFRESH_TOKEN is required")
	}

	if c.Google.SiteURL == "" {
		return fmt.Errorf("GSC_SITE_URL is required")
	}
	if !strings.HasPrefix(c.Google.SiteURL, "http://") &&
		!strings.HasPrefix(c.Google.SiteURL, "https://") &&
		!strings.HasPrefix(c.Google.SiteURL, "sc-domain:") {
		return fmt.Errorf("GSC_SITE_URL must be a URL or an sc-domain: property, got %q", c.Google.SiteURL)
	}

	if c.Google.AdsDeveloperToken != "" && c.Google.AdsCustomerID == "" {
		return fmt.Errorf("GOOGLE_ADS_CUSTOMER_ID is required when GOOGLE_ADS_DEVELOPER_TOKEN is set")
	}

	if c.Sync.Days <= 0 {
		return fmt.Errorf("SYNC_DAYS must be positive, got %d", c.Sync.Days)
	}
	if c.Sync.ChunkSize <= 0 {
		return fmt.Errorf("SYNC_CHUNK_SIZE must be positive, got %d", c.Sync.ChunkSize)
	}

	return nil
}

func envString(key, defaultVal string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return defaultVal
}

func envInt(key string, defaultVal int) int {
	v := os.Getenv(key)
	if v == "" {
		return defaultVal
	}
	i, err := strconv.Atoi(v)
	if err != nil {
		return defaultVal
	}
	return i
}

func envDuration(key string, defaultVal time.Duration) time.Duration {
	v := os.Getenv(key)
	if v == "" {
		return defaultVal
	}
	d, err := time.ParseDuration(v)
	if err != nil {
		return defaultVal
	}
	return d
}
