package config

import (
	"fmt"
	"net/url"
	"strings"
)

// ValidationError accumulates config validation errors.
type ValidationError struct {
	Errors []string
}

func (v *ValidationError) Error() string {
	return "config validation failed:\n  - " + strings.Join(v.Errors, "\n  - ")
}

// HasErrors reports whether any validation errors have been recorded.
func (v *ValidationError) HasErrors() bool {
	return len(v.Errors) > 0
}

// Add records a formatted validation error.
func (v *ValidationError) Add(format string, args ...interface{}) {
	v.Errors = append(v.Errors, fmt.Sprintf(format, args...))
}

// Validate checks cfg for structural correctness. It returns a *ValidationError
// when one or more problems are found, allowing callers to inspect all issues.
func Validate(cfg *Config) error {
	ve := &ValidationError{}
	validateSearch(cfg, ve)
	validateFetch(cfg, ve)
	validateRateLimit(cfg, ve)
	validateBreaker(cfg, ve)
	validateLogger(cfg, ve)
	validateTracer(cfg, ve)
	if ve.HasErrors() {
		return ve
	}
	return nil
}

func validateSearch(cfg *Config, ve *ValidationError) {
	s := cfg.Search
	if s.Endpoint == "" {
		ve.Add("search.endpoint must not be empty")
	} else if u, err := url.Parse(s.Endpoint); err != nil || (u.Scheme != "http" && u.Scheme != "https") || u.Host == "" {
		ve.Add("search.endpoint %q must be an absolute http(s) URL", s.Endpoint)
	}
	if s.SinglePageThreshold <= 0 {
		ve.Add("search.single_page_threshold must be > 0")
	}
	if s.ResultsPerPage <= 0 {
		ve.Add("search.results_per_page must be > 0")
	}
	if s.MaxPages <= 0 {
		ve.Add("search.max_pages must be > 0")
	}
	if s.MaxParallelPages <= 0 {
		ve.Add("search.max_parallel_pages must be > 0")
	}
	if s.PageTimeout <= 0 {
		ve.Add("search.page_timeout must be > 0")
	}
}

func validateFetch(cfg *Config, ve *ValidationError) {
	f := cfg.Fetch
	if f.Timeout <= 0 {
		ve.Add("fetch.timeout must be > 0")
	}
	if f.MaxBodyBytes <= 0 {
		ve.Add("fetch.max_body_bytes must be > 0")
	}
	if strings.TrimSpace(f.UserAgent) == "" {
		ve.Add("fetch.user_agent must not be empty")
	}
	if f.MinContentChars < 0 {
		ve.Add("fetch.min_content_chars must be >= 0")
	}
	if f.MaxContentChars <= 0 {
		ve.Add("fetch.max_content_chars must be > 0")
	}
}

func validateRateLimit(cfg *Config, ve *ValidationError) {
	if cfg.RateLimit.RequestsPerWindow <= 0 {
		ve.Add("rate_limit.requests_per_window must be > 0")
	}
	if cfg.RateLimit.Window <= 0 {
		ve.Add("rate_limit.window must be > 0")
	}
}

func validateBreaker(cfg *Config, ve *ValidationError) {
	if !cfg.Breaker.Enabled {
		return
	}
	if cfg.Breaker.MaxFailures == 0 {
		ve.Add("breaker.max_failures must be > 0 when the breaker is enabled")
	}
	if cfg.Breaker.Timeout <= 0 {
		ve.Add("breaker.timeout must be > 0 when the breaker is enabled")
	}
	if cfg.Breaker.Interval < 0 {
		ve.Add("breaker.interval must be >= 0")
	}
}

var validLogLevels = map[string]bool{
	"debug": true, "info": true, "warn": true, "warning": true, "error": true,
}

var validLogFormats = map[string]bool{
	"text": true, "json": true,
}

func validateLogger(cfg *Config, ve *ValidationError) {
	l := cfg.Logger
	if l.Level != "" && !validLogLevels[strings.ToLower(l.Level)] {
		ve.Add("logger.level %q is invalid (valid: debug, info, warn, error)", l.Level)
	}
	if l.Format != "" && !validLogFormats[strings.ToLower(l.Format)] {
		ve.Add("logger.format %q is invalid (valid: text, json)", l.Format)
	}
	// stdout carries the JSON-RPC stream.
	if strings.EqualFold(l.Output, "stdout") {
		ve.Add("logger.output must not be stdout (reserved for the protocol stream)")
	}
}

func validateTracer(cfg *Config, ve *ValidationError) {
	if !cfg.Tracer.Enabled {
		return
	}
	switch cfg.Tracer.Exporter {
	case "", "noop", "stdout":
	default:
		ve.Add("tracer.exporter %q is unsupported (valid: noop, stdout)", cfg.Tracer.Exporter)
	}
}
