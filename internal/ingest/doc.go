// Localevents - Multi-Source Event Ingestion and Deduplication
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/localevents

/*
Package ingest pulls candidate events from every configured source, shields
the caller from individual source failures and hands the combined list to the
deduplication engine.

One ingestion cycle:

	Aggregator.Run
	  ├─ per source (bounded fan-out, registration order kept)
	  │    CircuitBreaker.Call
	  │      Source.Fetch
	  │        FallbackChain over primary and fallback URLs
	  │          Retry(Fetcher.Get)   guarded: URL check, redirect check, dial check
	  ├─ drop malformed candidates (validation tags on models.Event)
	  ├─ HealthMonitor success/failure per source
	  ├─ dedupe.Engine.Run
	  └─ publish Snapshot

A failing source contributes zero events and a FetchStats entry with status
"error"; the cycle itself only fails when its context is cancelled.
*/
package ingest
