// Localevents - Multi-Source Event Ingestion and Deduplication
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/localevents

package services

import (
	"context"
	"errors"
	"time"

	"github.com/tomtom215/localevents/internal/ingest"
	"github.com/tomtom215/localevents/internal/logging"
)

// Cycler runs one ingestion cycle for a query. *ingest.Aggregator satisfies it.
type Cycler interface {
	Run(ctx context.Context, q ingest.Query) (ingest.Snapshot, error)
}

// IngestServiceConfig schedules ingestion cycles.
type IngestServiceConfig struct {
	Location     string
	DaysAhead    int
	Interval     time.Duration
	CycleTimeout time.Duration
	RunOnStartup bool
}

// IngestService runs a cycle every Interval. It also serves manual cycles
// for the API through RunCycle.
type IngestService struct {
	cycler Cycler
	cfg    IngestServiceConfig
	now    func() time.Time
}

// NewIngestService schedules cycles on cycler.
func NewIngestService(cycler Cycler, cfg IngestServiceConfig) *IngestService {
	if cfg.Interval <= 0 {
		cfg.Interval = 6 * time.Hour
	}
	if cfg.CycleTimeout <= 0 {
		cfg.CycleTimeout = 5 * time.Minute
	}
	if cfg.DaysAhead <= 0 {
		cfg.DaysAhead = 7
	}
	return &IngestService{cycler: cycler, cfg: cfg, now: time.Now}
}

// RunCycle runs one cycle bounded by the cycle timeout.
func (s *IngestService) RunCycle(ctx context.Context) (ingest.Snapshot, error) {
	ctx, cancel := context.WithTimeout(ctx, s.cfg.CycleTimeout)
	defer cancel()

	q := ingest.NewQuery(s.cfg.Location, s.now(), s.cfg.DaysAhead)
	return s.cycler.Run(ctx, q)
}

// Serve implements suture.Service. Failed cycles are logged and the
// schedule continues; only cancellation stops the loop.
func (s *IngestService) Serve(ctx context.Context) error {
	logging.Info().
		Str("location", s.cfg.Location).
		Dur("interval", s.cfg.Interval).
		Bool("run_on_startup", s.cfg.RunOnStartup).
		Msg("Ingest scheduler started")

	if s.cfg.RunOnStartup {
		s.scheduledCycle(ctx)
	}

	ticker := time.NewTicker(s.cfg.Interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			logging.Info().Msg("Ingest scheduler stopped")
			return ctx.Err()
		case <-ticker.C:
			s.scheduledCycle(ctx)
		}
	}
}

func (s *IngestService) scheduledCycle(ctx context.Context) {
	snap, err := s.RunCycle(ctx)
	if err != nil {
		if errors.Is(err, context.Canceled) && ctx.Err() != nil {
			return
		}
		logging.Error().Err(err).Msg("Scheduled ingestion cycle failed")
		return
	}
	logging.Info().
		Str("correlation_id", snap.CorrelationID).
		Int("fetched", snap.Fetch.Total).
		Int("unique", len(snap.Dedupe.Events)).
		Strs("failed_sources", snap.Fetch.FailedSources).
		Msg("Scheduled ingestion cycle complete")
}

func (s *IngestService) String() string { return "ingest-scheduler" }
