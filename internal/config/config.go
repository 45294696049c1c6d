// Package config loads and validates ingestion configuration via Viper.
package config

import (
	"fmt"
	"net/url"
	"strings"
	"time"
	_ "time/tzdata" // site zones resolve on minimal images

	"github.com/spf13/viper"
)

// Storage backends selectable via database.backend.
const (
	BackendMemory   = "memory"
	BackendPostgres = "postgres"
	BackendGorm     = "gorm"
)

// Config captures all service configuration knobs loaded via Viper.
type Config struct {
	Site     SiteConfig     `mapstructure:"site"`
	Fetch    FetchConfig    `mapstructure:"fetch"`
	Crawl    CrawlConfig    `mapstructure:"crawl"`
	Schedule ScheduleConfig `mapstructure:"schedule"`
	Database DatabaseConfig `mapstructure:"database"`
	Server   ServerConfig   `mapstructure:"server"`
	Logging  LoggingConfig  `mapstructure:"logging"`
}

// SiteConfig describes the news site being ingested.
type SiteConfig struct {
	BaseURL   string `mapstructure:"base_url"`
	Host      string `mapstructure:"host"`
	UserAgent string `mapstructure:"user_agent"`
	Referrer  string `mapstructure:"referrer"`
	// TimeZone is the IANA zone page timestamps are written in.
	TimeZone string `mapstructure:"time_zone"`
}

// FetchConfig governs request pacing, retries and timeouts.
type FetchConfig struct {
	RequestsPerSecond float64       `mapstructure:"requests_per_second"`
	Limiter           string        `mapstructure:"limiter"`
	MaxAttempts       int           `mapstructure:"max_attempts"`
	BackoffInitial    time.Duration `mapstructure:"backoff_initial"`
	BackoffMax        time.Duration `mapstructure:"backoff_max"`
	ListingTimeout    time.Duration `mapstructure:"listing_timeout"`
	DetailTimeout     time.Duration `mapstructure:"detail_timeout"`
}

// CrawlConfig bounds the work done per section.
type CrawlConfig struct {
	MaxListItems      int `mapstructure:"max_list_items"`
	MaxPopularItems   int `mapstructure:"max_popular_items"`
	DetailConcurrency int `mapstructure:"detail_concurrency"`
}

// ScheduleConfig controls when runs are triggered.
type ScheduleConfig struct {
	Interval   time.Duration `mapstructure:"interval"`
	Cron       string        `mapstructure:"cron"`
	RunOnStart bool          `mapstructure:"run_on_start"`
}

// DatabaseConfig selects and configures the article store.
type DatabaseConfig struct {
	Backend         string        `mapstructure:"backend"`
	DSN             string        `mapstructure:"dsn"`
	Table           string        `mapstructure:"table"`
	MaxConns        int32         `mapstructure:"max_conns"`
	MinConns        int32         `mapstructure:"min_conns"`
	MaxConnLifetime time.Duration `mapstructure:"max_conn_lifetime"`
	AutoMigrate     bool          `mapstructure:"auto_migrate"`
}

// ServerConfig controls the ops HTTP server.
type ServerConfig struct {
	Port int `mapstructure:"port"`
	// APIKey, when set, guards the /v1 routes.
	APIKey string `mapstructure:"api_key"`
}

// LoggingConfig toggles zap development features.
type LoggingConfig struct {
	Development bool   `mapstructure:"development"`
	Level       string `mapstructure:"level"`
}

// Load builds a Config from disk/environment.
func Load(path string) (Config, error) {
	v := viper.New()
	v.SetEnvPrefix("NEWSINGEST")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	setDefaults(v)

	if path != "" {
		v.SetConfigFile(path)
		if err := v.ReadInConfig(); err != nil {
			return Config{}, fmt.Errorf("read config: %w", err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return Config{}, fmt.Errorf("unmarshal config: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}

	return cfg, nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("site.base_url", "https://news.naver.com")
	v.SetDefault("site.host", "news.naver.com")
	v.SetDefault("site.user_agent",
		"Mozilla/5.0 (Windows NT 10.0; Win64; x64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/124.0 Safari/537.36")
	v.SetDefault("site.referrer", "https://news.naver.com/")
	v.SetDefault("site.time_zone", "Asia/Seoul")
	v.SetDefault("fetch.requests_per_second", 3.0)
	v.SetDefault("fetch.limiter", "slot")
	v.SetDefault("fetch.max_attempts", 3)
	v.SetDefault("fetch.backoff_initial", 300*time.Millisecond)
	v.SetDefault("fetch.backoff_max", 3*time.Second)
	v.SetDefault("fetch.listing_timeout", 10*time.Second)
	v.SetDefault("fetch.detail_timeout", 12*time.Second)
	v.SetDefault("crawl.max_list_items", 25)
	v.SetDefault("crawl.max_popular_items", 10)
	v.SetDefault("crawl.detail_concurrency", 4)
	v.SetDefault("schedule.interval", 30*time.Minute)
	v.SetDefault("schedule.cron", "")
	v.SetDefault("schedule.run_on_start", true)
	v.SetDefault("database.backend", BackendMemory)
	v.SetDefault("database.dsn", "")
	v.SetDefault("database.table", "articles")
	v.SetDefault("database.max_conns", 4)
	v.SetDefault("database.min_conns", 0)
	v.SetDefault("database.max_conn_lifetime", time.Hour)
	v.SetDefault("database.auto_migrate", true)
	v.SetDefault("server.port", 8080)
	v.SetDefault("server.api_key", "")
	v.SetDefault("logging.development", true)
	v.SetDefault("logging.level", "")
}

// Validate enforces required values and reasonable limits.
func (c Config) Validate() error {
	u, err := url.Parse(c.Site.BaseURL)
	if err != nil || u.Host == "" || (u.Scheme != "http" && u.Scheme != "https") {
		return fmt.Errorf("site.base_url must be an absolute http(s) URL")
	}
	if c.Site.Host == "" {
		return fmt.Errorf("site.host must be set")
	}
	if _, err := time.LoadLocation(c.Site.TimeZone); err != nil {
		return fmt.Errorf("site.time_zone %q: %w", c.Site.TimeZone, err)
	}
	switch c.Fetch.Limiter {
	case "slot", "bucket":
	default:
		return fmt.Errorf("fetch.limiter must be slot or bucket, got %q", c.Fetch.Limiter)
	}
	if c.Fetch.MaxAttempts <= 0 {
		return fmt.Errorf("fetch.max_attempts must be > 0")
	}
	if c.Fetch.ListingTimeout <= 0 || c.Fetch.DetailTimeout <= 0 {
		return fmt.Errorf("fetch.listing_timeout and fetch.detail_timeout must be > 0")
	}
	if c.Crawl.MaxListItems < 0 || c.Crawl.MaxPopularItems < 0 {
		return fmt.Errorf("crawl.max_list_items and crawl.max_popular_items must be >= 0")
	}
	if c.Crawl.DetailConcurrency <= 0 {
		return fmt.Errorf("crawl.detail_concurrency must be > 0")
	}
	if c.Schedule.Cron == "" && c.Schedule.Interval <= 0 {
		return fmt.Errorf("schedule.interval must be > 0 when schedule.cron is empty")
	}
	switch c.Database.Backend {
	case BackendMemory:
	case BackendPostgres, BackendGorm:
		if c.Database.DSN == "" {
			return fmt.Errorf("database.dsn must be set for backend %q", c.Database.Backend)
		}
	default:
		return fmt.Errorf("database.backend must be memory, postgres or gorm, got %q", c.Database.Backend)
	}
	if c.Server.Port <= 0 {
		return fmt.Errorf("server.port must be > 0")
	}
	return nil
}

// Location returns the site time zone, or UTC if it cannot be loaded.
func (c Config) Location() *time.Location {
	loc, err := time.LoadLocation(c.Site.TimeZone)
	if err != nil {
		return time.UTC
	}
	return loc
}
