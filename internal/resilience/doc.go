// Localevents - Multi-Source Event Ingestion and Deduplication
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/localevents

/*
Package resilience provides the failure-handling layer wrapped around every
source fetch.

# Components

  - CircuitBreaker: per-source breaker on sony/gobreaker; fails fast while open
  - RetryPolicy: bounded exponential backoff with jitter, retrying only
    errors whose Kind is on its allow-list
  - FallbackChain: ordered alternatives, first success wins
  - HealthMonitor: per-source health snapshot for observability

# Composition

Wrappers are composed explicitly by the caller. The breaker sits outside the
retry loop so that one exhausted retry sequence costs one failure slot:

	breaker := resilience.NewCircuitBreaker(resilience.BreakerConfig{Name: "serpapi"})
	events, err := resilience.Execute(breaker, func() ([]models.Event, error) {
	    return resilience.Retry(ctx, policy, "serpapi", func(ctx context.Context) ([]models.Event, error) {
	        return src.Fetch(ctx, q)
	    })
	})

# Error Kinds

Retry and breaker decisions are driven by Kind, not by error text. Wrap
adapter errors with Transient or Permanent; KindOf classifies everything else
(context deadlines and net.Error timeouts are transient, cancellation is
permanent, unknown errors are KindUnknown and not retried by default).

# Thread Safety

CircuitBreaker and HealthMonitor guard their state with mutexes and may be
shared by concurrent fetch goroutines. RetryPolicy and FallbackChain are
immutable after construction.
*/
package resilience
