// Package config loads and validates crawl configuration via Viper.
package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// Config captures all service configuration knobs loaded via Viper.
type Config struct {
	Server    ServerConfig    `mapstructure:"server"`
	Search    SearchConfig    `mapstructure:"search"`
	Crawler   CrawlerConfig   `mapstructure:"crawler"`
	Session   SessionConfig   `mapstructure:"session"`
	Challenge ChallengeConfig `mapstructure:"challenge"`
	Browser   BrowserConfig   `mapstructure:"browser"`
	Proxy     ProxyConfig     `mapstructure:"proxy"`
	Filter    FilterConfig    `mapstructure:"filter"`
	Logging   LoggingConfig   `mapstructure:"logging"`
}

// ServerConfig controls the metrics/health HTTP listener.
type ServerConfig struct {
	Port int `mapstructure:"port"`
}

// SearchConfig describes what to search for.
type SearchConfig struct {
	Terms        []string `mapstructure:"terms"`
	Location     string   `mapstructure:"location"`
	SalaryHint   string   `mapstructure:"salary_hint"`
	PagesPerTerm int      `mapstructure:"pages_per_term"`
}

// CrawlerConfig governs the orchestrator.
type CrawlerConfig struct {
	Concurrency        int     `mapstructure:"concurrency"`
	MaxRetries         int     `mapstructure:"max_retries"`
	TaskTimeoutSec     int     `mapstructure:"task_timeout_seconds"`
	PacingMinSec       int     `mapstructure:"pacing_min_seconds"`
	PacingMaxSec       int     `mapstructure:"pacing_max_seconds"`
	GlobalRPS          float64 `mapstructure:"global_rps"`
	ResultsPerPage     int     `mapstructure:"results_per_page"`
	KeyDelayMinMs      int     `mapstructure:"key_delay_min_ms"`
	KeyDelayMaxMs      int     `mapstructure:"key_delay_max_ms"`
	FieldDelayMinMs    int     `mapstructure:"field_delay_min_ms"`
	FieldDelayMaxMs    int     `mapstructure:"field_delay_max_ms"`
	LandingURL         string  `mapstructure:"landing_url"`
	NavTimeoutSeconds  int     `mapstructure:"nav_timeout_seconds"`
	SettleDelaySeconds int     `mapstructure:"settle_delay_seconds"`
}

// SessionConfig bounds the identity pool.
type SessionConfig struct {
	PoolSize int `mapstructure:"pool_size"`
	UsageCap int `mapstructure:"usage_cap"`
	ErrorCap int `mapstructure:"error_cap"`
}

// ChallengeConfig tunes the anti-bot challenge resolver.
type ChallengeConfig struct {
	Rounds          int `mapstructure:"rounds"`
	IntervalSeconds int `mapstructure:"interval_seconds"`
}

// BrowserConfig configures the chromedp subsystem.
type BrowserConfig struct {
	Headless  bool   `mapstructure:"headless"`
	UserAgent string `mapstructure:"user_agent"`
}

// ProxyConfig supplies ready-to-use proxy endpoints.
type ProxyConfig struct {
	Enabled bool     `mapstructure:"enabled"`
	Servers []string `mapstructure:"servers"`
}

// FilterConfig feeds the record filters applied after extraction.
type FilterConfig struct {
	ExcludedCompanies []string `mapstructure:"excluded_companies"`
}

// LoggingConfig toggles zap development features.
type LoggingConfig struct {
	Development bool   `mapstructure:"development"`
	Level       string `mapstructure:"level"`
}

// Load builds a Config from disk/environment.
func Load(path string) (Config, error) {
	v := viper.New()
	v.SetEnvPrefix("JOBHARVESTER")
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
	v.SetDefault("server.port", 8080)
	v.SetDefault("search.terms", []string{})
	v.SetDefault("search.location", "")
	v.SetDefault("search.pages_per_term", 3)
	v.SetDefault("crawler.concurrency", 1)
	v.SetDefault("crawler.max_retries", 2)
	v.SetDefault("crawler.task_timeout_seconds", 120)
	v.SetDefault("crawler.pacing_min_seconds", 5)
	v.SetDefault("crawler.pacing_max_seconds", 10)
	v.SetDefault("crawler.global_rps", 0)
	v.SetDefault("crawler.results_per_page", 15)
	v.SetDefault("crawler.key_delay_min_ms", 50)
	v.SetDefault("crawler.key_delay_max_ms", 180)
	v.SetDefault("crawler.field_delay_min_ms", 400)
	v.SetDefault("crawler.field_delay_max_ms", 1200)
	v.SetDefault("crawler.nav_timeout_seconds", 30)
	v.SetDefault("crawler.settle_delay_seconds", 2)
	v.SetDefault("session.pool_size", 10)
	v.SetDefault("session.usage_cap", 5)
	v.SetDefault("session.error_cap", 3)
	v.SetDefault("challenge.rounds", 12)
	v.SetDefault("challenge.interval_seconds", 5)
	v.SetDefault("browser.headless", true)
	v.SetDefault("proxy.enabled", false)
	v.SetDefault("logging.development", true)
}

// Validate enforces required values and reasonable limits.
func (c Config) Validate() error {
	if c.Server.Port <= 0 {
		return fmt.Errorf("server.port must be > 0")
	}
	if len(c.Search.Terms) == 0 {
		return fmt.Errorf("search.terms must not be empty")
	}
	if c.Search.PagesPerTerm <= 0 {
		return fmt.Errorf("search.pages_per_term must be > 0")
	}
	if c.Crawler.Concurrency <= 0 {
		return fmt.Errorf("crawler.concurrency must be > 0")
	}
	if c.Crawler.MaxRetries < 0 {
		return fmt.Errorf("crawler.max_retries must be >= 0")
	}
	if c.Crawler.Concurrency > c.Session.PoolSize {
		return fmt.Errorf("crawler.concurrency must not exceed session.pool_size")
	}
	if c.Crawler.PacingMaxSec < c.Crawler.PacingMinSec {
		return fmt.Errorf("crawler.pacing_max_seconds must be >= pacing_min_seconds")
	}
	if c.Proxy.Enabled && len(c.Proxy.Servers) == 0 {
		return fmt.Errorf("proxy.servers must be set when proxy is enabled")
	}
	return nil
}

// TaskTimeout returns the per-task ceiling as a duration.
func (c Config) TaskTimeout() time.Duration {
	return time.Duration(c.Crawler.TaskTimeoutSec) * time.Second
}

// ChallengeInterval returns the poll interval as a duration.
func (c Config) ChallengeInterval() time.Duration {
	return time.Duration(c.Challenge.IntervalSeconds) * time.Second
}
