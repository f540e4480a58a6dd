// Localevents - Multi-Source Event Ingestion and Deduplication
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/localevents

package config

import (
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/knadh/koanf/parsers/yaml"
	"github.com/knadh/koanf/providers/env"
	"github.com/knadh/koanf/providers/file"
	"github.com/knadh/koanf/providers/structs"
	"github.com/knadh/koanf/v2"
)

// DefaultConfigPaths are searched in order; the first existing file is used.
var DefaultConfigPaths = []string{
	"config.yaml",
	"config.yml",
	"/etc/localevents/config.yaml",
	"/etc/localevents/config.yml",
}

// ConfigPathEnvVar overrides the config file path.
const ConfigPathEnvVar = "CONFIG_PATH"

// defaultConfig returns the built-in defaults. File and environment values
// are layered on top.
func defaultConfig() *Config {
	return &Config{
		Dedupe: DedupeConfig{
			Threshold:      0.75,
			Weights:        WeightsConfig{Title: 0.50, Venue: 0.35, Time: 0.15},
			SourcePriority: []string{"predicthq", "serpapi", "instagram", "web"},
			Time: TimeCurveConfig{
				FullMatchWindow: 30 * time.Minute,
				DecayWindow:     4 * time.Hour,
				SameDayFloor:    0.5,
				CrossDayWindow:  2 * time.Hour,
			},
		},
		CircuitBreaker: CircuitBreakerConfig{
			FailureThreshold:  5,
			RecoveryTimeout:   60 * time.Second,
			HalfOpenSuccesses: 2,
		},
		Retry: RetryConfig{
			MaxAttempts:     3,
			BaseDelay:       time.Second,
			MaxDelay:        60 * time.Second,
			ExponentialBase: 2.0,
			Jitter:          true,
		},
		URLGuard: URLGuardConfig{
			RequireHTTPS:   true,
			AllowedDomains: []string{},
			ResolveDNS:     true,
		},
		HTTP: HTTPConfig{
			Timeout:           30 * time.Second,
			RequestsPerSecond: 1,
			Burst:             1,
			MaxBodyBytes:      10 << 20, // 10 MiB
			UserAgent:         "localevents/1.0 (+https://github.com/tomtom215/localevents)",
		},
		Ingest: IngestConfig{
			Location:       "",
			DaysAhead:      7,
			Interval:       6 * time.Hour,
			CycleTimeout:   5 * time.Minute,
			MaxConcurrency: 4,
			RunOnStartup:   true,
		},
		Sources: []SourceConfig{},
		Server: ServerConfig{
			Enabled:         true,
			Host:            "0.0.0.0",
			Port:            8787,
			ShutdownTimeout: 10 * time.Second,

			RateLimitRequests: 100,
			RateLimitWindow:   time.Minute,
			IngestRateLimit:   6,
			CORSOrigins:       []string{},
		},
		Logging: LoggingConfig{
			Level:  "info",
			Format: "json",
			Caller: false,
		},
	}
}

// Load reads configuration with layered sources:
//  1. Defaults
//  2. Config file (optional, see DefaultConfigPaths)
//  3. Environment variables
//
// The result is validated before it is returned.
func Load() (*Config, error) {
	return load(findConfigFile())
}

// LoadFile is Load with an explicit config file path.
func LoadFile(path string) (*Config, error) {
	if _, err := os.Stat(path); err != nil {
		return nil, fmt.Errorf("config file %s: %w", path, err)
	}
	return load(path)
}

func load(configPath string) (*Config, error) {
	k := koanf.New(".")

	if err := k.Load(structs.Provider(defaultConfig(), "koanf"), nil); err != nil {
		return nil, fmt.Errorf("failed to load defaults: %w", err)
	}

	if configPath != "" {
		if err := k.Load(file.Provider(configPath), yaml.Parser()); err != nil {
			return nil, fmt.Errorf("failed to load config file %s: %w", configPath, err)
		}
	}

	// DEDUPE_THRESHOLD -> dedupe.threshold, CB_FAILURE_THRESHOLD -> circuit_breaker.failure_threshold
	if err := k.Load(env.Provider("", ".", envTransformFunc), nil); err != nil {
		return nil, fmt.Errorf("failed to load environment variables: %w", err)
	}

	if err := processSliceFields(k); err != nil {
		return nil, fmt.Errorf("failed to process slice fields: %w", err)
	}

	cfg := &Config{}
	if err := k.Unmarshal("", cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal configuration: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("configuration validation failed: %w", err)
	}
	return cfg, nil
}

// findConfigFile returns the first config file found, or "".
func findConfigFile() string {
	if envPath := os.Getenv(ConfigPathEnvVar); envPath != "" {
		if _, err := os.Stat(envPath); err == nil {
			return envPath
		}
	}
	for _, path := range DefaultConfigPaths {
		if _, err := os.Stat(path); err == nil {
			return path
		}
	}
	return ""
}

// sliceConfigPaths are parsed from comma-separated strings when set by env.
var sliceConfigPaths = []string{
	"dedupe.source_priority",
	"url_guard.allowed_domains",
	"server.cors_origins",
}

// processSliceFields splits comma-separated env values for known slice fields.
func processSliceFields(k *koanf.Koanf) error {
	for _, path := range sliceConfigPaths {
		strVal, ok := k.Get(path).(string)
		if !ok {
			continue
		}
		parts := strings.Split(strVal, ",")
		trimmed := make([]string, 0, len(parts))
		for _, p := range parts {
			if p = strings.TrimSpace(p); p != "" {
				trimmed = append(trimmed, p)
			}
		}
		if err := k.Set(path, trimmed); err != nil {
			return fmt.Errorf("failed to set %s: %w", path, err)
		}
	}
	return nil
}

// envMappings maps environment variable names (lowercased) to config paths.
// Sources are YAML only.
var envMappings = map[string]string{
	"dedupe_threshold":         "dedupe.threshold",
	"dedupe_weight_title":      "dedupe.weights.title",
	"dedupe_weight_venue":      "dedupe.weights.venue",
	"dedupe_weight_time":       "dedupe.weights.time",
	"dedupe_source_priority":   "dedupe.source_priority",
	"dedupe_full_match_window": "dedupe.time.full_match_window",
	"dedupe_decay_window":      "dedupe.time.decay_window",
	"dedupe_same_day_floor":    "dedupe.time.same_day_floor",
	"dedupe_cross_day_window":  "dedupe.time.cross_day_window",

	"cb_failure_threshold":   "circuit_breaker.failure_threshold",
	"cb_recovery_timeout":    "circuit_breaker.recovery_timeout",
	"cb_half_open_successes": "circuit_breaker.half_open_successes",

	"retry_max_attempts":     "retry.max_attempts",
	"retry_base_delay":       "retry.base_delay",
	"retry_max_delay":        "retry.max_delay",
	"retry_exponential_base": "retry.exponential_base",
	"retry_jitter":           "retry.jitter",

	"url_guard_require_https":   "url_guard.require_https",
	"url_guard_allowed_domains": "url_guard.allowed_domains",
	"url_guard_resolve_dns":     "url_guard.resolve_dns",

	"http_client_timeout":      "http.timeout",
	"http_requests_per_second": "http.requests_per_second",
	"http_burst":               "http.burst",
	"http_max_body_bytes":      "http.max_body_bytes",
	"http_user_agent":          "http.user_agent",

	"ingest_location":        "ingest.location",
	"ingest_days_ahead":      "ingest.days_ahead",
	"ingest_interval":        "ingest.interval",
	"ingest_cycle_timeout":   "ingest.cycle_timeout",
	"ingest_max_concurrency": "ingest.max_concurrency",
	"ingest_run_on_startup":  "ingest.run_on_startup",

	"server_enabled":          "server.enabled",
	"http_host":               "server.host",
	"http_port":               "server.port",
	"server_shutdown_timeout": "server.shutdown_timeout",
	"rate_limit_requests":     "server.rate_limit_requests",
	"rate_limit_window":       "server.rate_limit_window",
	"ingest_rate_limit":       "server.ingest_rate_limit",
	"cors_origins":            "server.cors_origins",

	"log_level":  "logging.level",
	"log_format": "logging.format",
	"log_caller": "logging.caller",
}

// envTransformFunc maps an environment variable name to a koanf path.
// Unmapped variables return "" and are skipped.
//
// Examples:
//   - DEDUPE_THRESHOLD -> dedupe.threshold
//   - CB_RECOVERY_TIMEOUT -> circuit_breaker.recovery_timeout
//   - HTTP_PORT -> server.port
func envTransformFunc(key string) string {
	return envMappings[strings.ToLower(key)]
}
