// Localevents - Multi-Source Event Ingestion and Deduplication
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/localevents

package api

import (
	"context"
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/tomtom215/localevents/internal/dedupe"
	"github.com/tomtom215/localevents/internal/ingest"
	"github.com/tomtom215/localevents/internal/logging"
	"github.com/tomtom215/localevents/internal/models"
	"github.com/tomtom215/localevents/internal/resilience"
)

// CycleRunner runs one ingestion cycle on demand.
type CycleRunner interface {
	RunCycle(ctx context.Context) (ingest.Snapshot, error)
}

// Handler serves the API endpoints.
type Handler struct {
	agg       *ingest.Aggregator
	runner    CycleRunner
	startTime time.Time
}

// NewHandler serves agg. runner may be nil, in which case POST
// /api/v1/ingest answers 503.
func NewHandler(agg *ingest.Aggregator, runner CycleRunner) *Handler {
	return &Handler{agg: agg, runner: runner, startTime: time.Now()}
}

// HealthResponse is the body of GET /api/v1/health.
type HealthResponse struct {
	Status        string                     `json:"status"` // healthy, degraded
	UptimeSeconds float64                    `json:"uptime_seconds"`
	Sources       resilience.HealthReport    `json:"sources"`
	Circuits      []resilience.BreakerStatus `json:"circuits"`
	LastCycle     *time.Time                 `json:"last_cycle,omitempty"`
}

// Health reports source health and circuit state. It answers 200 even when
// degraded so monitors can read the body.
func (h *Handler) Health(w http.ResponseWriter, r *http.Request) {
	report := h.agg.Health().Status()
	circuits := h.circuitStatuses()

	status := "healthy"
	if report.Summary.Unhealthy > 0 {
		status = "degraded"
	}
	for _, c := range circuits {
		if c.State != resilience.StateClosed {
			status = "degraded"
		}
	}

	resp := HealthResponse{
		Status:        status,
		UptimeSeconds: time.Since(h.startTime).Seconds(),
		Sources:       report,
		Circuits:      circuits,
	}
	if snap, ok := h.agg.Snapshot(); ok {
		completed := snap.CompletedAt
		resp.LastCycle = &completed
	}
	respondSuccess(w, r, resp)
}

// HealthLive always answers ok while the process serves requests.
func (h *Handler) HealthLive(w http.ResponseWriter, r *http.Request) {
	respondSuccess(w, r, map[string]string{"status": "ok"})
}

func (h *Handler) circuitStatuses() []resilience.BreakerStatus {
	breakers := h.agg.Breakers()
	out := make([]resilience.BreakerStatus, len(breakers))
	for i, b := range breakers {
		out[i] = b.Status()
	}
	return out
}

// Circuits lists every source circuit.
func (h *Handler) Circuits(w http.ResponseWriter, r *http.Request) {
	respondSuccess(w, r, h.circuitStatuses())
}

// ResetCircuit forces the named circuit closed.
func (h *Handler) ResetCircuit(w http.ResponseWriter, r *http.Request) {
	name := chi.URLParam(r, "name")
	cb, ok := h.agg.Breaker(name)
	if !ok {
		respondError(w, r, http.StatusNotFound, "NOT_FOUND", "unknown circuit", nil)
		return
	}
	cb.Reset()
	logging.Ctx(r.Context()).Info().Str("circuit", name).Msg("Circuit reset via API")
	respondSuccess(w, r, cb.Status())
}

// EventsResponse is the body of GET /api/v1/events.
type EventsResponse struct {
	CorrelationID string              `json:"correlation_id"`
	CompletedAt   time.Time           `json:"completed_at"`
	Threshold     float64             `json:"threshold"`
	Result        models.DedupeResult `json:"result"`
	Stats         []models.FetchStats `json:"stats"`
	FailedSources []string            `json:"failed_sources"`
}

// Events returns the latest deduplicated events. An optional threshold
// query parameter re-runs deduplication over the cycle's raw candidates
// without changing the engine defaults.
func (h *Handler) Events(w http.ResponseWriter, r *http.Request) {
	snap, ok := h.agg.Snapshot()
	if !ok {
		respondError(w, r, http.StatusServiceUnavailable, "NOT_READY", "no ingestion cycle has completed yet", nil)
		return
	}

	engine := h.agg.Engine()
	threshold := engine.Threshold()
	result := snap.Dedupe

	if raw := r.URL.Query().Get("threshold"); raw != "" {
		t, err := strconv.ParseFloat(raw, 64)
		if err != nil {
			respondValidationError(w, r, "threshold", "threshold must be a number")
			return
		}
		result, err = engine.Deduplicate(snap.Fetch.Events, t, nil)
		if err != nil {
			if errors.Is(err, dedupe.ErrInvalidConfig) {
				respondValidationError(w, r, "threshold", err.Error())
				return
			}
			respondError(w, r, http.StatusInternalServerError, "INTERNAL_ERROR", "deduplication failed", err)
			return
		}
		threshold = t
	}

	respondSuccess(w, r, EventsResponse{
		CorrelationID: snap.CorrelationID,
		CompletedAt:   snap.CompletedAt,
		Threshold:     threshold,
		Result:        result,
		Stats:         snap.Fetch.Stats,
		FailedSources: snap.Fetch.FailedSources,
	})
}

// Audit returns the merge summary of the latest cycle as plain text.
func (h *Handler) Audit(w http.ResponseWriter, r *http.Request) {
	snap, ok := h.agg.Snapshot()
	if !ok {
		respondError(w, r, http.StatusServiceUnavailable, "NOT_READY", "no ingestion cycle has completed yet", nil)
		return
	}
	w.Header().Set("Content-Type", "text/plain; charset=utf-8")
	w.WriteHeader(http.StatusOK)
	if _, err := w.Write([]byte(dedupe.FormatAuditSummary(&snap.Dedupe) + "\n")); err != nil {
		logging.Ctx(r.Context()).Error().Err(err).Msg("Failed to write audit summary")
	}
}

// IngestResponse is the body of POST /api/v1/ingest.
type IngestResponse struct {
	CorrelationID     string              `json:"correlation_id"`
	Fetched           int                 `json:"fetched"`
	Unique            int                 `json:"unique"`
	DuplicatesRemoved int                 `json:"duplicates_removed"`
	FailedSources     []string            `json:"failed_sources"`
	Stats             []models.FetchStats `json:"stats"`
	DurationMS        int64               `json:"duration_ms"`
}

// Ingest runs a cycle and reports its outcome.
func (h *Handler) Ingest(w http.ResponseWriter, r *http.Request) {
	if h.runner == nil {
		respondError(w, r, http.StatusServiceUnavailable, "NOT_READY", "ingestion is not running", nil)
		return
	}

	snap, err := h.runner.RunCycle(r.Context())
	if err != nil {
		respondError(w, r, http.StatusInternalServerError, "INGEST_FAILED", "ingestion cycle failed", err)
		return
	}

	respondSuccess(w, r, IngestResponse{
		CorrelationID:     snap.CorrelationID,
		Fetched:           snap.Fetch.Total,
		Unique:            len(snap.Dedupe.Events),
		DuplicatesRemoved: snap.Dedupe.DuplicatesRemoved,
		FailedSources:     snap.Fetch.FailedSources,
		Stats:             snap.Fetch.Stats,
		DurationMS:        snap.CompletedAt.Sub(snap.StartedAt).Milliseconds(),
	})
}
