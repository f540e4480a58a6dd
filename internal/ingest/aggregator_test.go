// Localevents - Multi-Source Event Ingestion and Deduplication
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/localevents

package ingest

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/tomtom215/localevents/internal/dedupe"
	"github.com/tomtom215/localevents/internal/models"
	"github.com/tomtom215/localevents/internal/resilience"
)

func validEvent(source, id, title, venue string, start time.Time) models.Event {
	return models.Event{
		Source:     source,
		SourceID:   id,
		Title:      title,
		StartTime:  start,
		Venue:      models.Venue{Name: venue, City: "Richmond", State: "VA"},
		Confidence: 1,
	}
}

var friday9pm = time.Date(2025, 1, 17, 21, 0, 0, 0, time.UTC)

func staticSource(name string, events ...models.Event) SourceFunc {
	return SourceFunc{SourceName: name, Func: func(context.Context, Query) ([]models.Event, error) {
		return events, nil
	}}
}

func failingSource(name string, calls *atomic.Int32) SourceFunc {
	return SourceFunc{SourceName: name, Func: func(context.Context, Query) ([]models.Event, error) {
		if calls != nil {
			calls.Add(1)
		}
		return nil, resilience.Transient(errors.New("upstream unavailable"))
	}}
}

func newTestAggregator(t *testing.T, cfg AggregatorConfig, sources ...Source) *Aggregator {
	t.Helper()
	engine, err := dedupe.NewEngine(dedupe.DefaultConfig())
	if err != nil {
		t.Fatalf("NewEngine() error = %v", err)
	}
	if cfg.Breaker.FailureThreshold == 0 {
		cfg.Breaker = resilience.DefaultBreakerConfig("")
	}
	agg, err := NewAggregator(cfg, engine, resilience.NewHealthMonitor(), sources...)
	if err != nil {
		t.Fatalf("NewAggregator() error = %v", err)
	}
	return agg
}

func TestAggregator_RunMergesAcrossSources(t *testing.T) {
	t.Parallel()

	serp := staticSource("serpapi",
		validEvent("serpapi", "s1", "Reggae Night at The Camel", "The Camel", friday9pm),
		validEvent("serpapi", "s2", "Jazz Brunch", "Lemaire", friday9pm.Add(38*time.Hour)),
	)
	insta := staticSource("instagram",
		validEvent("instagram", "i1", "REGGAE NIGHT @ The Camel", "The Camel", friday9pm),
	)

	agg := newTestAggregator(t, AggregatorConfig{MaxConcurrency: 2}, serp, insta)
	snap, err := agg.Run(context.Background(), testQuery())
	if err != nil {
		t.Fatalf("Run() error = %v", err)
	}

	if snap.Fetch.Total != 3 {
		t.Errorf("Fetch.Total = %d, want 3", snap.Fetch.Total)
	}
	if len(snap.Dedupe.Events) != 2 || snap.Dedupe.DuplicatesRemoved != 1 {
		t.Errorf("Dedupe = %d events, %d removed; want 2, 1", len(snap.Dedupe.Events), snap.Dedupe.DuplicatesRemoved)
	}
	if len(snap.Fetch.Stats) != 2 || snap.Fetch.Stats[0].Source != "serpapi" || snap.Fetch.Stats[1].Source != "instagram" {
		t.Errorf("Stats not in registration order: %+v", snap.Fetch.Stats)
	}
	for _, st := range snap.Fetch.Stats {
		if st.Status != models.FetchSuccess {
			t.Errorf("Stats[%s].Status = %q, want success", st.Source, st.Status)
		}
	}
	if snap.CorrelationID == "" {
		t.Error("snapshot has no correlation id")
	}

	got, ok := agg.Snapshot()
	if !ok || got.CorrelationID != snap.CorrelationID {
		t.Errorf("Snapshot() = (%q, %v), want latest cycle", got.CorrelationID, ok)
	}
}

func TestAggregator_FailingSourceDoesNotAbortCycle(t *testing.T) {
	t.Parallel()

	agg := newTestAggregator(t, AggregatorConfig{},
		failingSource("predicthq", nil),
		staticSource("serpapi", validEvent("serpapi", "s1", "Open Mic", "Cary Street Cafe", friday9pm)),
	)
	snap, err := agg.Run(context.Background(), testQuery())
	if err != nil {
		t.Fatalf("Run() error = %v", err)
	}

	if len(snap.Dedupe.Events) != 1 {
		t.Errorf("len(Events) = %d, want 1", len(snap.Dedupe.Events))
	}
	if len(snap.Fetch.FailedSources) != 1 || snap.Fetch.FailedSources[0] != "predicthq" {
		t.Errorf("FailedSources = %v, want [predicthq]", snap.Fetch.FailedSources)
	}
	st := snap.Fetch.Stats[0]
	if st.Status != models.FetchError || st.Count != 0 || st.ErrorMessage == "" {
		t.Errorf("Stats[0] = %+v, want error with message and zero count", st)
	}

	health := agg.Health()
	if health.IsHealthy("predicthq") {
		t.Error("predicthq reported healthy after failure")
	}
	if !health.IsHealthy("serpapi") {
		t.Error("serpapi reported unhealthy after success")
	}
	if sh, _ := health.SourceStatus("serpapi"); sh.EventCount != 1 {
		t.Errorf("serpapi EventCount = %d, want 1", sh.EventCount)
	}
}

func TestAggregator_SkippedSourceLeavesHealthAlone(t *testing.T) {
	t.Parallel()

	skip := SourceFunc{SourceName: "instagram", Func: func(context.Context, Query) ([]models.Event, error) {
		return nil, ErrSourceSkipped
	}}
	agg := newTestAggregator(t, AggregatorConfig{}, skip)
	snap, err := agg.Run(context.Background(), testQuery())
	if err != nil {
		t.Fatalf("Run() error = %v", err)
	}
	if got := snap.Fetch.Stats[0].Status; got != models.FetchSkipped {
		t.Errorf("Status = %q, want skipped", got)
	}
	if _, tracked := agg.Health().SourceStatus("instagram"); tracked {
		t.Error("skipped source was recorded in health monitor")
	}
	if len(snap.Fetch.FailedSources) != 0 {
		t.Errorf("FailedSources = %v, want none", snap.Fetch.FailedSources)
	}
}

func TestAggregator_DropsMalformedCandidates(t *testing.T) {
	t.Parallel()

	noTitle := validEvent("web", "w2", "   ", "The Camel", friday9pm)
	noVenue := validEvent("web", "w3", "Trivia", "", friday9pm)
	badConfidence := validEvent("web", "w4", "Karaoke", "The Camel", friday9pm)
	badConfidence.Confidence = 1.5

	agg := newTestAggregator(t, AggregatorConfig{}, staticSource("web",
		validEvent("web", "w1", "Blues Jam", "The Camel", friday9pm),
		noTitle, noVenue, badConfidence,
	))
	snap, err := agg.Run(context.Background(), testQuery())
	if err != nil {
		t.Fatalf("Run() error = %v", err)
	}
	st := snap.Fetch.Stats[0]
	if st.Status != models.FetchPartial || st.Count != 1 || st.Malformed != 3 {
		t.Errorf("Stats = %+v, want partial with 1 valid and 3 malformed", st)
	}
	if snap.Fetch.Total != 1 {
		t.Errorf("Fetch.Total = %d, want 1", snap.Fetch.Total)
	}
}

func TestAggregator_CountsUndecodableFeedRecords(t *testing.T) {
	t.Parallel()

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		_, _ = w.Write([]byte(feedBody))
	}))
	defer srv.Close()

	feed := NewJSONFeedSource("citycal", "http://feed.example.com/events.json", nil, newTestFetcher(t, srv), noSleepPolicy(1))
	agg := newTestAggregator(t, AggregatorConfig{}, feed)

	snap, err := agg.Run(context.Background(), testQuery())
	if err != nil {
		t.Fatalf("Run() error = %v", err)
	}
	st := snap.Fetch.Stats[0]
	if st.Status != models.FetchPartial || st.Count != 2 || st.Malformed != 1 {
		t.Errorf("Stats = %+v, want partial with 2 valid and 1 malformed", st)
	}
}

func TestAggregator_AddsReportedDropsToMalformed(t *testing.T) {
	t.Parallel()

	src := reportingSource{name: "web", report: FetchReport{
		Events:  []models.Event{validEvent("web", "w1", "Blues Jam", "The Camel", friday9pm), validEvent("web", "w2", "  ", "The Camel", friday9pm)},
		Dropped: 2,
	}}
	agg := newTestAggregator(t, AggregatorConfig{}, src)

	snap, err := agg.Run(context.Background(), testQuery())
	if err != nil {
		t.Fatalf("Run() error = %v", err)
	}
	st := snap.Fetch.Stats[0]
	if st.Status != models.FetchPartial || st.Count != 1 || st.Malformed != 3 {
		t.Errorf("Stats = %+v, want partial with 1 valid and 3 malformed", st)
	}
}

type reportingSource struct {
	name   string
	report FetchReport
}

func (s reportingSource) Name() string { return s.name }

func (s reportingSource) Fetch(context.Context, Query) ([]models.Event, error) {
	return nil, errors.New("Fetch called instead of FetchReport")
}

func (s reportingSource) FetchReport(context.Context, Query) (FetchReport, error) {
	return s.report, nil
}

func TestAggregator_OpenCircuitSkipsSource(t *testing.T) {
	t.Parallel()

	var calls atomic.Int32
	cfg := AggregatorConfig{Breaker: resilience.BreakerConfig{
		FailureThreshold:  1,
		RecoveryTimeout:   time.Hour,
		HalfOpenSuccesses: 1,
	}}
	agg := newTestAggregator(t, cfg, failingSource("predicthq", &calls))

	if _, err := agg.Run(context.Background(), testQuery()); err != nil {
		t.Fatalf("first Run() error = %v", err)
	}
	snap, err := agg.Run(context.Background(), testQuery())
	if err != nil {
		t.Fatalf("second Run() error = %v", err)
	}

	if calls.Load() != 1 {
		t.Errorf("source called %d times, want 1", calls.Load())
	}
	cb, ok := agg.Breaker("predicthq")
	if !ok || !cb.IsOpen() {
		t.Fatalf("Breaker(predicthq) open = %v, want open", ok && cb.IsOpen())
	}
	if st := snap.Fetch.Stats[0]; st.Status != models.FetchError {
		t.Errorf("Status = %q, want error", st.Status)
	}
	if sh, _ := agg.Health().SourceStatus("predicthq"); sh.ConsecutiveFailures != 2 {
		t.Errorf("ConsecutiveFailures = %d, want 2", sh.ConsecutiveFailures)
	}
}

func TestAggregator_CancelledCycle(t *testing.T) {
	t.Parallel()

	blocking := SourceFunc{SourceName: "slow", Func: func(ctx context.Context, _ Query) ([]models.Event, error) {
		<-ctx.Done()
		return nil, ctx.Err()
	}}
	agg := newTestAggregator(t, AggregatorConfig{}, blocking)

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	if _, err := agg.Run(ctx, testQuery()); !errors.Is(err, context.DeadlineExceeded) {
		t.Fatalf("Run() error = %v, want deadline exceeded", err)
	}
	if _, ok := agg.Snapshot(); ok {
		t.Error("cancelled cycle published a snapshot")
	}
	if _, tracked := agg.Health().SourceStatus("slow"); tracked {
		t.Error("cancelled fetch was recorded in health monitor")
	}
}

func TestAggregator_BoundedConcurrency(t *testing.T) {
	t.Parallel()

	var inFlight, peak atomic.Int32
	mk := func(name string) Source {
		return SourceFunc{SourceName: name, Func: func(context.Context, Query) ([]models.Event, error) {
			n := inFlight.Add(1)
			for {
				p := peak.Load()
				if n <= p || peak.CompareAndSwap(p, n) {
					break
				}
			}
			time.Sleep(10 * time.Millisecond)
			inFlight.Add(-1)
			return nil, nil
		}}
	}

	agg := newTestAggregator(t, AggregatorConfig{MaxConcurrency: 2}, mk("a"), mk("b"), mk("c"), mk("d"), mk("e"))
	if _, err := agg.Run(context.Background(), testQuery()); err != nil {
		t.Fatalf("Run() error = %v", err)
	}
	if peak.Load() > 2 {
		t.Errorf("peak concurrency = %d, want <= 2", peak.Load())
	}
}

func TestNewAggregator_RejectsDuplicateNames(t *testing.T) {
	t.Parallel()

	engine, err := dedupe.NewEngine(dedupe.DefaultConfig())
	if err != nil {
		t.Fatalf("NewEngine() error = %v", err)
	}
	_, err = NewAggregator(AggregatorConfig{}, engine, nil, staticSource("web"), staticSource("web"))
	if err == nil {
		t.Error("NewAggregator(duplicate names) succeeded, want error")
	}
	if _, err := NewAggregator(AggregatorConfig{}, nil, nil); err == nil {
		t.Error("NewAggregator(nil engine) succeeded, want error")
	}
}

func TestAggregator_Accessors(t *testing.T) {
	t.Parallel()

	agg := newTestAggregator(t, AggregatorConfig{}, staticSource("serpapi"), staticSource("web"))
	if _, ok := agg.Snapshot(); ok {
		t.Error("Snapshot() before first cycle reported ok")
	}
	names := agg.SourceNames()
	if len(names) != 2 || names[0] != "serpapi" || names[1] != "web" {
		t.Errorf("SourceNames() = %v", names)
	}
	breakers := agg.Breakers()
	if len(breakers) != 2 || breakers[1].Name() != "web" {
		t.Errorf("Breakers() names wrong")
	}
	if _, ok := agg.Breaker("missing"); ok {
		t.Error("Breaker(missing) reported ok")
	}
}
