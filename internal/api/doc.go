// Localevents - Multi-Source Event Ingestion and Deduplication
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/localevents

/*
Package api exposes the ingestion engine over HTTP with the chi router.

Endpoints:

	GET  /api/v1/health                  source health and circuit summary
	GET  /api/v1/health/live             liveness check
	GET  /api/v1/circuits                every source circuit
	POST /api/v1/circuits/{name}/reset   force a circuit closed
	GET  /api/v1/events                  latest deduplicated events (?threshold= re-runs dedupe)
	GET  /api/v1/audit                   human-readable merge summary
	POST /api/v1/ingest                  run an ingestion cycle now
	GET  /metrics                        Prometheus

JSON responses use models.APIResponse. Requests are rate limited per client
IP with go-chi/httprate; POST /api/v1/ingest has a stricter limit. CORS is
enabled through go-chi/cors only when origins are configured.
*/
package api
