// Localevents - Multi-Source Event Ingestion and Deduplication
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/localevents

// Package config loads application configuration from built-in defaults, an
// optional YAML file and environment variables, in that order of precedence
// (environment wins).
//
// Example:
//
//	cfg, err := config.Load()
//	if err != nil {
//	    log.Fatal().Err(err).Msg("Failed to load config")
//	}
//	engine, err := dedupe.NewEngine(cfg.Dedupe.EngineConfig())
package config

import (
	"fmt"
	"time"

	"github.com/tomtom215/localevents/internal/dedupe"
	"github.com/tomtom215/localevents/internal/logging"
	"github.com/tomtom215/localevents/internal/resilience"
	"github.com/tomtom215/localevents/internal/urlguard"
)

// Config holds all application configuration.
type Config struct {
	Dedupe         DedupeConfig         `koanf:"dedupe"`
	CircuitBreaker CircuitBreakerConfig `koanf:"circuit_breaker"`
	Retry          RetryConfig          `koanf:"retry"`
	URLGuard       URLGuardConfig       `koanf:"url_guard"`
	HTTP           HTTPConfig           `koanf:"http"`
	Ingest         IngestConfig         `koanf:"ingest"`
	Sources        []SourceConfig       `koanf:"sources" validate:"dive"`
	Server         ServerConfig         `koanf:"server"`
	Logging        LoggingConfig        `koanf:"logging"`
}

// DedupeConfig configures fuzzy deduplication.
type DedupeConfig struct {
	// Threshold is the total similarity at or above which events merge.
	// Default: 0.75
	Threshold float64 `koanf:"threshold" validate:"gt=0,lte=1"`

	// Weights must sum to 1.0 within 0.01.
	Weights WeightsConfig `koanf:"weights"`

	// SourcePriority lists sources from most to least reliable. Unlisted
	// sources rank below all of them.
	SourcePriority []string `koanf:"source_priority"`

	Time TimeCurveConfig `koanf:"time"`
}

// WeightsConfig holds the similarity component weights.
type WeightsConfig struct {
	Title float64 `koanf:"title" validate:"gte=0"`
	Venue float64 `koanf:"venue" validate:"gte=0"`
	Time  float64 `koanf:"time" validate:"gte=0"`
}

// TimeCurveConfig shapes time similarity.
type TimeCurveConfig struct {
	FullMatchWindow time.Duration `koanf:"full_match_window" validate:"gte=0"`
	DecayWindow     time.Duration `koanf:"decay_window" validate:"gte=0"`
	SameDayFloor    float64       `koanf:"same_day_floor" validate:"gte=0,lte=1"`
	CrossDayWindow  time.Duration `koanf:"cross_day_window" validate:"gte=0"`
}

// EngineConfig converts the section into a dedupe.Config.
func (c DedupeConfig) EngineConfig() dedupe.Config {
	return dedupe.Config{
		Threshold: c.Threshold,
		Weights: dedupe.Weights{
			Title: c.Weights.Title,
			Venue: c.Weights.Venue,
			Time:  c.Weights.Time,
		},
		TimeCurve: dedupe.TimeCurve{
			FullMatchWindow: c.Time.FullMatchWindow,
			DecayWindow:     c.Time.DecayWindow,
			SameDayFloor:    c.Time.SameDayFloor,
			CrossDayWindow:  c.Time.CrossDayWindow,
		},
		SourcePriority: append([]string(nil), c.SourcePriority...),
	}
}

// CircuitBreakerConfig is applied to every source circuit.
type CircuitBreakerConfig struct {
	// FailureThreshold is the consecutive failure count that opens a circuit.
	// Default: 5
	FailureThreshold int `koanf:"failure_threshold" validate:"gte=1"`

	// RecoveryTimeout is how long a circuit stays open before a trial call.
	// Default: 60s
	RecoveryTimeout time.Duration `koanf:"recovery_timeout" validate:"gte=0"`

	// HalfOpenSuccesses closes a half-open circuit.
	// Default: 2
	HalfOpenSuccesses int `koanf:"half_open_successes" validate:"gte=1"`
}

// BreakerConfig returns the settings for the circuit called name.
func (c CircuitBreakerConfig) BreakerConfig(name string) resilience.BreakerConfig {
	return resilience.BreakerConfig{
		Name:              name,
		FailureThreshold:  c.FailureThreshold,
		RecoveryTimeout:   c.RecoveryTimeout,
		HalfOpenSuccesses: c.HalfOpenSuccesses,
	}
}

// RetryConfig configures retries of transient fetch failures.
type RetryConfig struct {
	MaxAttempts     int           `koanf:"max_attempts" validate:"gte=1"`
	BaseDelay       time.Duration `koanf:"base_delay" validate:"gte=0"`
	MaxDelay        time.Duration `koanf:"max_delay" validate:"gte=0"`
	ExponentialBase float64       `koanf:"exponential_base" validate:"gte=1"`
	Jitter          bool          `koanf:"jitter"`
}

// Policy converts the section into a resilience.RetryPolicy.
func (c RetryConfig) Policy() resilience.RetryPolicy {
	return resilience.RetryPolicy{
		MaxAttempts:     c.MaxAttempts,
		BaseDelay:       c.BaseDelay,
		MaxDelay:        c.MaxDelay,
		ExponentialBase: c.ExponentialBase,
		Jitter:          c.Jitter,
	}
}

// URLGuardConfig configures outbound URL validation.
type URLGuardConfig struct {
	RequireHTTPS bool `koanf:"require_https"`

	// AllowedDomains restricts outbound hosts when non-empty.
	AllowedDomains []string `koanf:"allowed_domains"`

	// ResolveDNS checks every resolved address against blocked ranges.
	ResolveDNS bool `koanf:"resolve_dns"`
}

// Options converts the section into urlguard.Options.
func (c URLGuardConfig) Options() urlguard.Options {
	return urlguard.Options{
		RequireHTTPS:   c.RequireHTTPS,
		AllowedDomains: append([]string(nil), c.AllowedDomains...),
		ResolveDNS:     c.ResolveDNS,
	}
}

// HTTPConfig configures the outbound HTTP client.
type HTTPConfig struct {
	Timeout time.Duration `koanf:"timeout" validate:"gt=0"`

	// RequestsPerSecond limits outbound requests across all sources.
	// Default: 1
	RequestsPerSecond float64 `koanf:"requests_per_second" validate:"gt=0"`
	Burst             int     `koanf:"burst" validate:"gte=1"`

	// MaxBodyBytes caps response bodies.
	// Default: 10 MiB
	MaxBodyBytes int64  `koanf:"max_body_bytes" validate:"gt=0"`
	UserAgent    string `koanf:"user_agent" validate:"notblank"`
}

// IngestConfig configures the periodic ingestion cycle.
type IngestConfig struct {
	// Location is passed to every source, e.g. "Richmond, VA".
	Location string `koanf:"location"`

	DaysAhead int `koanf:"days_ahead" validate:"gte=1"`

	// Interval between cycles.
	// Default: 6h
	Interval time.Duration `koanf:"interval" validate:"gt=0"`

	// CycleTimeout bounds a single cycle.
	// Default: 5m
	CycleTimeout time.Duration `koanf:"cycle_timeout" validate:"gt=0"`

	MaxConcurrency int  `koanf:"max_concurrency" validate:"gte=1"`
	RunOnStartup   bool `koanf:"run_on_startup"`
}

// SourceConfig declares a JSON feed source.
type SourceConfig struct {
	Name         string   `koanf:"name" validate:"notblank"`
	URL          string   `koanf:"url" validate:"required,url"`
	FallbackURLs []string `koanf:"fallback_urls" validate:"dive,url"`
	Enabled      bool     `koanf:"enabled"`
}

// ServerConfig configures the HTTP API.
type ServerConfig struct {
	Enabled         bool          `koanf:"enabled"`
	Host            string        `koanf:"host"`
	Port            int           `koanf:"port" validate:"gte=1,lte=65535"`
	ShutdownTimeout time.Duration `koanf:"shutdown_timeout" validate:"gte=0"`

	// RateLimitRequests per RateLimitWindow per client IP; 0 disables.
	// Default: 100 per 1m
	RateLimitRequests int           `koanf:"rate_limit_requests" validate:"gte=0"`
	RateLimitWindow   time.Duration `koanf:"rate_limit_window" validate:"gt=0"`

	// IngestRateLimit bounds manual POST /api/v1/ingest calls per window.
	// Default: 6
	IngestRateLimit int `koanf:"ingest_rate_limit" validate:"gte=0"`

	// CORSOrigins allowed to call the API from a browser. Empty disables CORS.
	CORSOrigins []string `koanf:"cors_origins" validate:"dive,notblank"`
}

// Addr returns host:port.
func (c ServerConfig) Addr() string {
	return fmt.Sprintf("%s:%d", c.Host, c.Port)
}

// LoggingConfig configures zerolog.
type LoggingConfig struct {
	// Level is the minimum log level: trace, debug, info, warn, error.
	// Default: info
	Level string `koanf:"level" validate:"oneof=trace debug info warn warning error fatal panic disabled off"`

	// Format is json or console.
	// Default: json
	Format string `koanf:"format" validate:"oneof=json console"`

	Caller bool `koanf:"caller"`
}

// LoggerConfig converts the section into a logging.Config.
func (c LoggingConfig) LoggerConfig() logging.Config {
	lc := logging.DefaultConfig()
	lc.Level = c.Level
	lc.Format = c.Format
	lc.Caller = c.Caller
	return lc
}
