package config

import (
	"fmt"
	"os"
	"strconv"
	"time"

	"gopkg.in/yaml.v3"
)

// Config is the top-level application configuration.
type Config struct {
	Search    SearchConfig    `yaml:"search"`
	Fetch     FetchConfig     `yaml:"fetch"`
	RateLimit RateLimitConfig `yaml:"rate_limit"`
	Breaker   BreakerConfig   `yaml:"breaker"`
	Logger    LoggerConfig    `yaml:"logger"`
	Tracer    TracerConfig    `yaml:"tracer"`
}

// SearchConfig controls the upstream HTML search endpoint and pagination.
type SearchConfig struct {
	Endpoint            string        `yaml:"endpoint"`
	Region              string        `yaml:"region"` // sent as "kl"; empty means no locale
	SinglePageThreshold int           `yaml:"single_page_threshold"`
	ResultsPerPage      int           `yaml:"results_per_page"`
	MaxPages            int           `yaml:"max_pages"`
	MaxParallelPages    int           `yaml:"max_parallel_pages"`
	PageTimeout         time.Duration `yaml:"page_timeout"`
}

// FetchConfig controls the HTTP client and content extraction limits.
type FetchConfig struct {
	Timeout         time.Duration `yaml:"timeout"`
	MaxBodyBytes    int64         `yaml:"max_body_bytes"`
	UserAgent       string        `yaml:"user_agent"`
	MinContentChars int           `yaml:"min_content_chars"`
	MaxContentChars int           `yaml:"max_content_chars"`

	// BlockPrivateAddresses refuses connections to loopback, private and
	// link-local addresses.
	BlockPrivateAddresses bool `yaml:"block_private_addresses"`
}

// RateLimitConfig bounds outbound requests in a sliding window.
type RateLimitConfig struct {
	RequestsPerWindow int           `yaml:"requests_per_window"`
	Window            time.Duration `yaml:"window"`
}

// BreakerConfig configures the circuit breaker around the search host.
type BreakerConfig struct {
	Enabled     bool          `yaml:"enabled"`
	MaxFailures uint32        `yaml:"max_failures"`
	Timeout     time.Duration `yaml:"timeout"`  // how long the circuit stays open
	Interval    time.Duration `yaml:"interval"` // closed-state counter reset period
}

// LoggerConfig holds logging settings.
type LoggerConfig struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"`
	Output string `yaml:"output"`
}

// TracerConfig holds tracing settings.
type TracerConfig struct {
	Enabled  bool   `yaml:"enabled"`
	Exporter string `yaml:"exporter"`
}

// DefaultUserAgent is the browser identity presented to upstream hosts.
const DefaultUserAgent = "Mozilla/5.0 (Windows NT 10.0; Win64; x64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/120.0.0.0 Safari/537.36"

// Defaults returns a Config with sensible defaults.
func Defaults() *Config {
	return &Config{
		Search: SearchConfig{
			Endpoint:            "https://html.duckduckgo.com/html/",
			Region:              "",
			SinglePageThreshold: 50,
			ResultsPerPage:      10,
			MaxPages:            100,
			MaxParallelPages:    8,
			PageTimeout:         10 * time.Second,
		},
		Fetch: FetchConfig{
			Timeout:         30 * time.Second,
			MaxBodyBytes:    5 * 1024 * 1024,
			UserAgent:       DefaultUserAgent,
			MinContentChars: 200,
			MaxContentChars: 10000,
		},
		RateLimit: RateLimitConfig{
			RequestsPerWindow: 30,
			Window:            time.Minute,
		},
		Breaker: BreakerConfig{
			Enabled:     true,
			MaxFailures: 5,
			Timeout:     30 * time.Second,
			Interval:    60 * time.Second,
		},
		Logger: LoggerConfig{
			Level:  "info",
			Format: "text",
			Output: "stderr",
		},
		Tracer: TracerConfig{
			Enabled:  false,
			Exporter: "noop",
		},
	}
}

// Load reads path as YAML over Defaults, applies environment overrides and
// validates the result. A missing file is not an error.
func Load(path string) (*Config, error) {
	cfg := Defaults()

	data, err := os.ReadFile(path)
	if err != nil && !os.IsNotExist(err) {
		return nil, fmt.Errorf("read config: %w", err)
	}
	if err == nil {
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("parse config: %w", err)
		}
	}

	ApplyEnvOverrides(cfg)

	if err := Validate(cfg); err != nil {
		return nil, err
	}
	return cfg, nil
}

// ApplyEnvOverrides overlays WEBSEARCH_* environment variables onto cfg.
// Malformed numeric or duration values are ignored.
func ApplyEnvOverrides(cfg *Config) {
	if v := os.Getenv("WEBSEARCH_LOGGER_LEVEL"); v != "" {
		cfg.Logger.Level = v
	}
	if v := os.Getenv("WEBSEARCH_LOGGER_FORMAT"); v != "" {
		cfg.Logger.Format = v
	}
	if v := os.Getenv("WEBSEARCH_LOGGER_OUTPUT"); v != "" {
		cfg.Logger.Output = v
	}
	if v := os.Getenv("WEBSEARCH_TRACER_ENABLED"); v == "true" {
		cfg.Tracer.Enabled = true
	}
	if v := os.Getenv("WEBSEARCH_TRACER_EXPORTER"); v != "" {
		cfg.Tracer.Exporter = v
	}
	if v := os.Getenv("WEBSEARCH_SEARCH_ENDPOINT"); v != "" {
		cfg.Search.Endpoint = v
	}
	if v := os.Getenv("WEBSEARCH_SEARCH_REGION"); v != "" {
		cfg.Search.Region = v
	}
	if v := os.Getenv("WEBSEARCH_SEARCH_PAGE_TIMEOUT"); v != "" {
		if d, err := time.ParseDuration(v); err == nil && d > 0 {
			cfg.Search.PageTimeout = d
		}
	}
	if v := os.Getenv("WEBSEARCH_FETCH_TIMEOUT"); v != "" {
		if d, err := time.ParseDuration(v); err == nil && d > 0 {
			cfg.Fetch.Timeout = d
		}
	}
	if v := os.Getenv("WEBSEARCH_FETCH_USER_AGENT"); v != "" {
		cfg.Fetch.UserAgent = v
	}
	if v := os.Getenv("WEBSEARCH_FETCH_BLOCK_PRIVATE"); v == "true" {
		cfg.Fetch.BlockPrivateAddresses = true
	}
	if v := os.Getenv("WEBSEARCH_RATE_LIMIT_PER_MINUTE"); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n > 0 {
			cfg.RateLimit.RequestsPerWindow = n
			cfg.RateLimit.Window = time.Minute
		}
	}
	if v := os.Getenv("WEBSEARCH_BREAKER_ENABLED"); v == "false" {
		cfg.Breaker.Enabled = false
	}
}
