// Localevents - Multi-Source Event Ingestion and Deduplication
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/localevents

/*
Package services adapts localevents components to suture.Service.

IngestService runs an ingestion cycle on a ticker and exposes RunCycle for
manual cycles triggered through the API. Failed cycles are logged and the
schedule continues; the service only returns when its context is cancelled.

APIServerService runs the HTTP API. ListenAndServe errors are returned so the
supervisor restarts the listener with backoff. On cancellation it calls
Shutdown with a bounded timeout so in-flight requests can drain.

Both implement fmt.Stringer so supervisor events name them.
*/
package services
