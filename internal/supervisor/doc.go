// Localevents - Multi-Source Event Ingestion and Deduplication
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/localevents

/*
Package supervisor runs the long-lived parts of localevents under a suture v4
tree:

	RootSupervisor ("localevents")
	├── IngestSupervisor ("ingest-layer")
	│   └── IngestService
	└── APISupervisor ("api-layer")
	    └── APIServerService (when server.enabled)

A crashing HTTP listener restarts inside the api layer without disturbing the
ingest schedule, and the reverse. Supervisor events are logged through
sutureslog on top of the zerolog slog bridge from the logging package.

Restart behavior follows TreeConfig: each failure increments a counter that
decays over FailureDecay seconds; past FailureThreshold the supervisor waits
FailureBackoff before restarting. Services returning nil are not restarted.

Usage:

	tree, err := supervisor.NewSupervisorTree(logging.NewSlogLogger(), supervisor.DefaultTreeConfig())
	if err != nil {
	    return err
	}
	tree.AddIngestService(services.NewIngestService(agg, ingestCfg))
	tree.AddAPIService(services.NewAPIServerService(srv, addr, timeout))
	err = tree.Serve(ctx)
*/
package supervisor
