// Localevents - Multi-Source Event Ingestion and Deduplication
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/localevents

/*
Package main is the localevents server.

It loads configuration, builds one JSON feed source per enabled entry in
sources, and runs the ingestion scheduler and the HTTP API under a suture
supervisor tree:

	RootSupervisor ("localevents")
	├── IngestSupervisor ("ingest-layer")
	│   └── IngestService (cycle every ingest.interval)
	└── APISupervisor ("api-layer")
	    └── APIServerService (when server.enabled)

Every cycle fans out to the sources through per-source circuit breakers,
retries transient failures, walks each source's fallback URLs, and merges
the results with fuzzy deduplication. The latest cycle is served at
GET /api/v1/events.

# Configuration

Configuration is layered with koanf (highest priority wins):

  - Environment variables (LOG_LEVEL, DEDUPE_THRESHOLD, INGEST_LOCATION, ...)
  - Config file (config.yaml, or the file named by CONFIG_PATH)
  - Built-in defaults

Sources are declared in the config file:

	sources:
	  - name: venues
	    url: https://feeds.example.com/venues.json
	    fallback_urls: [https://mirror.example.com/venues.json]
	    enabled: true

# Signal Handling

SIGINT and SIGTERM cancel the tree. The API drains in-flight requests for up
to server.shutdown_timeout and an in-progress cycle is cancelled.
*/
package main
