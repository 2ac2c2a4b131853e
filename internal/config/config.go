// Package config loads and validates crawler configuration via Viper.
package config

import (
	"fmt"
	"net/url"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// Config captures all configuration knobs loaded via Viper.
type Config struct {
	Archive  ArchiveConfig  `mapstructure:"archive"`
	Storage  StorageConfig  `mapstructure:"storage"`
	Crawler  CrawlerConfig  `mapstructure:"crawler"`
	HTTP     HTTPConfig     `mapstructure:"http"`
	Manifest ManifestConfig `mapstructure:"manifest"`
	Status   StatusConfig   `mapstructure:"status"`
	Logging  LoggingConfig  `mapstructure:"logging"`
}

// ArchiveConfig describes the archive being crawled.
type ArchiveConfig struct {
	BaseURL        string   `mapstructure:"base_url"`
	RootURL        string   `mapstructure:"root_url"`
	PathSegment    string   `mapstructure:"path_segment"`
	ImageExtension string   `mapstructure:"image_extension"`
	Blocklist      []string `mapstructure:"blocklist"`
	Months         []string `mapstructure:"months"`
}

// StorageConfig sets where strips are written.
type StorageConfig struct {
	OutputDir string `mapstructure:"output_dir"`
}

// CrawlerConfig governs the worker pool and discovery.
type CrawlerConfig struct {
	Workers              int    `mapstructure:"workers"`
	DiscoveryConcurrency int    `mapstructure:"discovery_concurrency"`
	UserAgent            string `mapstructure:"user_agent"`
	RespectRobots        bool   `mapstructure:"respect_robots"`
}

// HTTPConfig configures the HTTP client and retry behavior.
type HTTPConfig struct {
	TimeoutSeconds   int `mapstructure:"timeout_seconds"`
	MaxBodyBytes     int `mapstructure:"max_body_bytes"`
	MaxAttempts      int `mapstructure:"max_attempts"`
	BackoffInitialMs int `mapstructure:"backoff_initial_ms"`
	BackoffMaxMs     int `mapstructure:"backoff_max_ms"`
}

// ManifestConfig enables the optional Postgres download manifest. An empty
// DSN disables it.
type ManifestConfig struct {
	DSN      string `mapstructure:"dsn"`
	Table    string `mapstructure:"table"`
	MaxConns int32  `mapstructure:"max_conns"`
}

// StatusConfig enables the optional status HTTP server. An empty Addr
// disables it.
type StatusConfig struct {
	Addr string `mapstructure:"addr"`
}

// LoggingConfig toggles zap development features.
type LoggingConfig struct {
	Development bool   `mapstructure:"development"`
	Level       string `mapstructure:"level"`
}

// Load builds a Config from disk/environment.
func Load(path string) (Config, error) {
	v := viper.New()
	v.SetEnvPrefix("CRAWLER")
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
	v.SetDefault("archive.base_url", "http://pt.jikos.cz")
	v.SetDefault("archive.root_url", "http://pt.jikos.cz/garfield/")
	v.SetDefault("archive.path_segment", "garfield/")
	v.SetDefault("archive.image_extension", "gif")
	v.SetDefault("archive.blocklist", []string{"/img/valid-xhtml10.gif", "/img/valid-css.gif", "/img/vim.gif"})
	v.SetDefault("archive.months", []string{
		"January", "February", "March", "April", "May", "June",
		"July", "August", "September", "October", "November", "December",
	})
	v.SetDefault("storage.output_dir", "./garfield")
	v.SetDefault("crawler.workers", 32)
	v.SetDefault("crawler.discovery_concurrency", 1)
	v.SetDefault("crawler.user_agent", "comic-archive-crawler/0.1")
	v.SetDefault("crawler.respect_robots", false)
	v.SetDefault("http.timeout_seconds", 15)
	v.SetDefault("http.max_body_bytes", 10*1024*1024)
	v.SetDefault("http.max_attempts", 1)
	v.SetDefault("http.backoff_initial_ms", 250)
	v.SetDefault("http.backoff_max_ms", 5000)
	v.SetDefault("manifest.table", "downloads")
	v.SetDefault("manifest.max_conns", 4)
	v.SetDefault("logging.development", true)
	v.SetDefault("logging.level", "info")
}

// Validate enforces required values and reasonable limits.
func (c Config) Validate() error {
	if _, err := parseAbsURL(c.Archive.BaseURL); err != nil {
		return fmt.Errorf("archive.base_url: %w", err)
	}
	if _, err := parseAbsURL(c.Archive.RootURL); err != nil {
		return fmt.Errorf("archive.root_url: %w", err)
	}
	if strings.TrimSpace(c.Archive.PathSegment) == "" {
		return fmt.Errorf("archive.path_segment must be set")
	}
	if strings.TrimSpace(c.Archive.ImageExtension) == "" {
		return fmt.Errorf("archive.image_extension must be set")
	}
	if strings.TrimSpace(c.Storage.OutputDir) == "" {
		return fmt.Errorf("storage.output_dir must be set")
	}
	if c.Crawler.Workers <= 0 {
		return fmt.Errorf("crawler.workers must be > 0")
	}
	if c.Crawler.DiscoveryConcurrency <= 0 {
		return fmt.Errorf("crawler.discovery_concurrency must be > 0")
	}
	if c.HTTP.TimeoutSeconds <= 0 {
		return fmt.Errorf("http.timeout_seconds must be > 0")
	}
	if c.HTTP.MaxAttempts <= 0 {
		return fmt.Errorf("http.max_attempts must be > 0")
	}
	if c.HTTP.BackoffInitialMs < 0 || c.HTTP.BackoffMaxMs < c.HTTP.BackoffInitialMs {
		return fmt.Errorf("http backoff must satisfy 0 <= backoff_initial_ms <= backoff_max_ms")
	}
	return nil
}

// RequestTimeout returns the per-request HTTP timeout.
func (c Config) RequestTimeout() time.Duration {
	return time.Duration(c.HTTP.TimeoutSeconds) * time.Second
}

// BackoffInitial returns the first retry delay.
func (c Config) BackoffInitial() time.Duration {
	return time.Duration(c.HTTP.BackoffInitialMs) * time.Millisecond
}

// BackoffMax returns the retry delay cap.
func (c Config) BackoffMax() time.Duration {
	return time.Duration(c.HTTP.BackoffMaxMs) * time.Millisecond
}

func parseAbsURL(raw string) (*url.URL, error) {
	u, err := url.Parse(strings.TrimSpace(raw))
	if err != nil {
		return nil, fmt.Errorf("parse: %w", err)
	}
	if u.Scheme == "" || u.Host == "" {
		return nil, fmt.Errorf("%q must be an absolute URL", raw)
	}
	return u, nil
}
