// Localevents - Multi-Source Event Ingestion and Deduplication
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/localevents

// Package metrics holds the Prometheus instrumentation for ingestion,
// resilience and deduplication, plus the HTTP API counters.
package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// API Endpoint Metrics
	APIRequestsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "api_requests_total",
			Help: "Total number of API requests",
		},
		[]string{"method", "endpoint", "status_code"},
	)

	APIRequestDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "api_request_duration_seconds",
			Help:    "API request duration in seconds",
			Buckets: []float64{0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10},
		},
		[]string{"method", "endpoint"},
	)

	APIActiveRequests = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "api_active_requests",
			Help: "Current number of active API requests",
		},
	)

	// Source Fetch Metrics
	SourceFetchDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "source_fetch_duration_seconds",
			Help:    "Duration of a source fetch including retries and fallbacks",
			Buckets: []float64{0.1, 0.25, 0.5, 1, 2.5, 5, 10, 30, 60, 120},
		},
		[]string{"source"},
	)

	SourceFetchesTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "source_fetches_total",
			Help: "Total number of source fetches by final status",
		},
		[]string{"source", "status"}, // status: success, error, skipped, partial
	)

	SourceEventsFetched = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "source_events_fetched_total",
			Help: "Total number of valid events returned by a source",
		},
		[]string{"source"},
	)

	SourceEventsMalformed = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "source_events_malformed_total",
			Help: "Total number of candidates dropped for failing shape validation",
		},
		[]string{"source"},
	)

	SourceHealthy = promauto.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "source_healthy",
			Help: "Source health (1=healthy, 0=unhealthy)",
		},
		[]string{"source"},
	)

	// Circuit Breaker Metrics
	CircuitBreakerState = promauto.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "circuit_breaker_state",
			Help: "Circuit breaker state (0=closed, 1=half-open, 2=open)",
		},
		[]string{"name"},
	)

	CircuitBreakerRequests = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "circuit_breaker_requests_total",
			Help: "Total number of requests through circuit breaker",
		},
		[]string{"name", "result"}, // result: success, failure, rejected
	)

	CircuitBreakerConsecutiveFailures = promauto.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "circuit_breaker_consecutive_failures",
			Help: "Current number of consecutive failures",
		},
		[]string{"name"},
	)

	CircuitBreakerTransitions = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "circuit_breaker_state_transitions_total",
			Help: "Total number of circuit breaker state transitions",
		},
		[]string{"name", "from_state", "to_state"},
	)

	// Retry and Fallback Metrics
	RetryAttempts = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "retry_attempts_total",
			Help: "Total number of retries scheduled after a failed attempt",
		},
		[]string{"operation"},
	)

	RetryExhausted = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "retry_exhausted_total",
			Help: "Total number of operations that failed on every attempt",
		},
		[]string{"operation"},
	)

	FallbackUsed = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "fallback_used_total",
			Help: "Total number of times a non-primary fallback operation succeeded",
		},
		[]string{"operation"},
	)

	// SSRF Guard Metrics
	URLGuardRejections = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "url_guard_rejections_total",
			Help: "Total number of URLs refused by the SSRF guard",
		},
		[]string{"reason"},
	)

	// Deduplication Metrics
	DedupeRunDuration = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "dedupe_run_duration_seconds",
			Help:    "Duration of one deduplication pass",
			Buckets: prometheus.DefBuckets,
		},
	)

	DedupeEventsIn = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "dedupe_events_in_total",
			Help: "Total number of events submitted for deduplication",
		},
	)

	DedupeDuplicatesRemoved = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "dedupe_duplicates_removed_total",
			Help: "Total number of events merged away as duplicates",
		},
	)

	// Ingestion Cycle Metrics
	IngestCycleDuration = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "ingest_cycle_duration_seconds",
			Help:    "Duration of a full ingestion cycle",
			Buckets: []float64{1, 5, 10, 30, 60, 120, 300, 600},
		},
	)

	IngestLastSuccess = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "ingest_last_success_timestamp",
			Help: "Unix timestamp of the last completed ingestion cycle",
		},
	)

	IngestUniqueEvents = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "ingest_unique_events",
			Help: "Number of unique events produced by the last cycle",
		},
	)
)

// RecordAPIRequest records an API request metric.
func RecordAPIRequest(method, endpoint, statusCode string, duration time.Duration) {
	APIRequestsTotal.WithLabelValues(method, endpoint, statusCode).Inc()
	APIRequestDuration.WithLabelValues(method, endpoint).Observe(duration.Seconds())
}

// TrackActiveRequest tracks active API requests.
func TrackActiveRequest(inc bool) {
	if inc {
		APIActiveRequests.Inc()
	} else {
		APIActiveRequests.Dec()
	}
}

// RecordSourceFetch records the outcome of one source fetch.
func RecordSourceFetch(source, status string, events, malformed int, duration time.Duration) {
	SourceFetchDuration.WithLabelValues(source).Observe(duration.Seconds())
	SourceFetchesTotal.WithLabelValues(source, status).Inc()
	if events > 0 {
		SourceEventsFetched.WithLabelValues(source).Add(float64(events))
	}
	if malformed > 0 {
		SourceEventsMalformed.WithLabelValues(source).Add(float64(malformed))
	}
}

// SetSourceHealth publishes the health flag for a source.
func SetSourceHealth(source string, healthy bool) {
	v := 0.0
	if healthy {
		v = 1
	}
	SourceHealthy.WithLabelValues(source).Set(v)
}

// RecordDedupe records one deduplication pass.
func RecordDedupe(in, removed int, duration time.Duration) {
	DedupeRunDuration.Observe(duration.Seconds())
	DedupeEventsIn.Add(float64(in))
	DedupeDuplicatesRemoved.Add(float64(removed))
}

// RecordIngestCycle records a completed ingestion cycle.
func RecordIngestCycle(unique int, duration time.Duration) {
	IngestCycleDuration.Observe(duration.Seconds())
	IngestUniqueEvents.Set(float64(unique))
	IngestLastSuccess.Set(float64(time.Now().Unix()))
}
