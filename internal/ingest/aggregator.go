// Localevents - Multi-Source Event Ingestion and Deduplication
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/localevents

package ingest

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/tomtom215/localevents/internal/dedupe"
	"github.com/tomtom215/localevents/internal/logging"
	"github.com/tomtom215/localevents/internal/metrics"
	"github.com/tomtom215/localevents/internal/models"
	"github.com/tomtom215/localevents/internal/resilience"
	"github.com/tomtom215/localevents/internal/validation"
)

// Snapshot is the outcome of the most recent completed cycle.
type Snapshot struct {
	CorrelationID string              `json:"correlation_id"`
	StartedAt     time.Time           `json:"started_at"`
	CompletedAt   time.Time           `json:"completed_at"`
	Fetch         models.FetchResult  `json:"fetch"`
	Dedupe        models.DedupeResult `json:"dedupe"`
}

// AggregatorConfig configures an Aggregator.
type AggregatorConfig struct {
	// MaxConcurrency bounds concurrent source fetches. Values below 1 mean 1.
	MaxConcurrency int

	// Breaker is the template for every source circuit; Name is replaced
	// with the source name.
	Breaker resilience.BreakerConfig
}

type registeredSource struct {
	source  Source
	breaker *resilience.CircuitBreaker
}

// Aggregator runs ingestion cycles over a fixed set of sources.
type Aggregator struct {
	sources        []registeredSource
	engine         *dedupe.Engine
	health         *resilience.HealthMonitor
	maxConcurrency int
	now            func() time.Time

	runMu sync.Mutex

	mu   sync.RWMutex
	last *Snapshot
}

// NewAggregator registers sources in order. Source names must be unique.
func NewAggregator(cfg AggregatorConfig, engine *dedupe.Engine, health *resilience.HealthMonitor, sources ...Source) (*Aggregator, error) {
	if engine == nil {
		return nil, errors.New("ingest: nil dedupe engine")
	}
	if health == nil {
		health = resilience.NewHealthMonitor()
	}
	if cfg.MaxConcurrency < 1 {
		cfg.MaxConcurrency = 1
	}

	seen := make(map[string]struct{}, len(sources))
	registered := make([]registeredSource, 0, len(sources))
	for _, src := range sources {
		name := src.Name()
		if strings.TrimSpace(name) == "" {
			return nil, errors.New("ingest: source with empty name")
		}
		if _, dup := seen[name]; dup {
			return nil, fmt.Errorf("ingest: duplicate source %q", name)
		}
		seen[name] = struct{}{}

		bc := cfg.Breaker
		bc.Name = name
		registered = append(registered, registeredSource{
			source:  src,
			breaker: resilience.NewCircuitBreaker(bc),
		})
	}

	return &Aggregator{
		sources:        registered,
		engine:         engine,
		health:         health,
		maxConcurrency: cfg.MaxConcurrency,
		now:            time.Now,
	}, nil
}

// Health returns the monitor updated by every cycle.
func (a *Aggregator) Health() *resilience.HealthMonitor { return a.health }

// Engine returns the deduplication engine.
func (a *Aggregator) Engine() *dedupe.Engine { return a.engine }

// SourceNames returns the registered source names in order.
func (a *Aggregator) SourceNames() []string {
	names := make([]string, len(a.sources))
	for i, rs := range a.sources {
		names[i] = rs.source.Name()
	}
	return names
}

// Breakers returns every source circuit in registration order.
func (a *Aggregator) Breakers() []*resilience.CircuitBreaker {
	out := make([]*resilience.CircuitBreaker, len(a.sources))
	for i, rs := range a.sources {
		out[i] = rs.breaker
	}
	return out
}

// Breaker returns the circuit for the named source.
func (a *Aggregator) Breaker(name string) (*resilience.CircuitBreaker, bool) {
	for _, rs := range a.sources {
		if rs.source.Name() == name {
			return rs.breaker, true
		}
	}
	return nil, false
}

// Snapshot returns the latest completed cycle.
func (a *Aggregator) Snapshot() (Snapshot, bool) {
	a.mu.RLock()
	defer a.mu.RUnlock()
	if a.last == nil {
		return Snapshot{}, false
	}
	return *a.last, true
}

// Run performs one ingestion cycle. Cycles are serialized. Source failures
// are reported in the snapshot; Run only fails when ctx ends before the
// cycle completes or deduplication rejects its configuration.
func (a *Aggregator) Run(ctx context.Context, q Query) (Snapshot, error) {
	a.runMu.Lock()
	defer a.runMu.Unlock()

	if logging.CorrelationIDFromContext(ctx) == "" {
		ctx = logging.ContextWithNewCorrelationID(ctx)
	}
	logger := logging.Ctx(ctx)
	started := a.now()
	logger.Info().Int("sources", len(a.sources)).Str("location", q.Location).Msg("Ingestion cycle started")

	outcomes := make([]sourceOutcome, len(a.sources))
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(a.maxConcurrency)
	for i, rs := range a.sources {
		g.Go(func() error {
			outcomes[i] = a.fetchSource(gctx, rs, q)
			return nil
		})
	}
	_ = g.Wait()

	if err := ctx.Err(); err != nil {
		logger.Warn().Err(err).Msg("Ingestion cycle cancelled")
		return Snapshot{}, fmt.Errorf("ingestion cycle: %w", err)
	}

	fetch := models.FetchResult{
		Events:        []models.Event{},
		Stats:         make([]models.FetchStats, 0, len(outcomes)),
		FailedSources: []string{},
	}
	for _, o := range outcomes {
		fetch.Events = append(fetch.Events, o.events...)
		fetch.Stats = append(fetch.Stats, o.stats)
		if o.stats.Status == models.FetchError {
			fetch.FailedSources = append(fetch.FailedSources, o.stats.Source)
		}
	}
	fetch.Total = len(fetch.Events)

	result, err := a.engine.Run(fetch.Events)
	if err != nil {
		return Snapshot{}, fmt.Errorf("deduplicate: %w", err)
	}

	snap := Snapshot{
		CorrelationID: logging.CorrelationIDFromContext(ctx),
		StartedAt:     started,
		CompletedAt:   a.now(),
		Fetch:         fetch,
		Dedupe:        result,
	}

	a.mu.Lock()
	a.last = &snap
	a.mu.Unlock()

	duration := snap.CompletedAt.Sub(started)
	metrics.RecordIngestCycle(len(result.Events), duration)
	logger.Info().
		Int("fetched", fetch.Total).
		Int("unique", len(result.Events)).
		Int("duplicates_removed", result.DuplicatesRemoved).
		Strs("failed_sources", fetch.FailedSources).
		Dur("duration", duration).
		Msg("Ingestion cycle complete")

	return snap, nil
}

type sourceOutcome struct {
	events []models.Event
	stats  models.FetchStats
}

func (a *Aggregator) fetchSource(ctx context.Context, rs registeredSource, q Query) sourceOutcome {
	name := rs.source.Name()
	logger := logging.Ctx(ctx).With().Str("source", name).Logger()
	start := a.now()

	var (
		report  FetchReport
		skipped bool
	)
	err := rs.breaker.Call(func() error {
		r, err := fetchReport(ctx, rs.source, q)
		if errors.Is(err, ErrSourceSkipped) {
			skipped = true
			return nil
		}
		if err != nil {
			return err
		}
		report = r
		return nil
	})

	stats := models.FetchStats{Source: name}
	out := sourceOutcome{events: []models.Event{}}

	switch {
	case err != nil:
		stats.Status = models.FetchError
		stats.ErrorMessage = err.Error()
		if ctx.Err() == nil {
			a.health.RecordFailure(name, err)
		}
		logger.Warn().Err(err).Str("kind", resilience.KindOf(err).String()).Msg("Source fetch failed")
	case skipped:
		stats.Status = models.FetchSkipped
		logger.Debug().Msg("Source skipped")
	default:
		valid, malformed := filterMalformed(ctx, name, report.Events)
		out.events = valid
		stats.Count = len(valid)
		stats.Malformed = malformed + report.Dropped
		stats.Status = models.FetchSuccess
		if stats.Malformed > 0 {
			stats.Status = models.FetchPartial
		}
		a.health.RecordSuccess(name, len(valid))
	}

	duration := a.now().Sub(start)
	stats.DurationMS = duration.Milliseconds()
	metrics.RecordSourceFetch(name, string(stats.Status), stats.Count, stats.Malformed, duration)

	out.stats = stats
	return out
}

func fetchReport(ctx context.Context, src Source, q Query) (FetchReport, error) {
	if rs, ok := src.(ReportingSource); ok {
		return rs.FetchReport(ctx, q)
	}
	evs, err := src.Fetch(ctx, q)
	return FetchReport{Events: evs}, err
}

// filterMalformed drops candidates that fail the model's validation tags.
func filterMalformed(ctx context.Context, source string, candidates []models.Event) ([]models.Event, int) {
	valid := make([]models.Event, 0, len(candidates))
	malformed := 0
	for i := range candidates {
		if verr := validation.ValidateStruct(&candidates[i]); verr != nil {
			malformed++
			logging.Ctx(ctx).Debug().Str("source", source).Int("index", i).
				Strs("fields", verr.Fields()).Msg("Dropping malformed candidate")
			continue
		}
		valid = append(valid, candidates[i])
	}
	return valid, malformed
}
