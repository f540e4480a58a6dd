// Localevents - Multi-Source Event Ingestion and Deduplication
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/localevents

package dedupe

import (
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/tomtom215/localevents/internal/models"
)

func reggaeSerp() models.Event {
	return models.Event{
		Source:      "serpapi",
		SourceID:    "serp-1",
		Title:       "Reggae Night at The Camel",
		Description: "Weekly reggae night.",
		StartTime:   time.Date(2025, 1, 17, 21, 0, 0, 0, time.UTC),
		Venue:       models.Venue{Name: "The Camel", City: "Richmond", State: "VA"},
		Confidence:  1,
	}
}

func reggaeInsta() models.Event {
	return models.Event{
		Source:     "instagram",
		SourceID:   "ig-1",
		Title:      "REGGAE NIGHT @ The Camel",
		TicketURL:  "https://tickets.example.com/reggae",
		StartTime:  time.Date(2025, 1, 17, 21, 0, 0, 0, time.UTC),
		Venue:      models.Venue{Name: "The Camel", City: "Richmond", State: "VA", Handle: "thecamelrva"},
		Confidence: 0.8,
	}
}

func jazzBrunch() models.Event {
	return models.Event{
		Source:     "serpapi",
		SourceID:   "serp-2",
		Title:      "Jazz Brunch",
		StartTime:  time.Date(2025, 1, 19, 11, 0, 0, 0, time.UTC),
		Venue:      models.Venue{Name: "Lemaire", City: "Richmond", State: "VA"},
		Confidence: 1,
	}
}

func mustEngine(t *testing.T) *Engine {
	t.Helper()
	e, err := NewEngine(DefaultConfig())
	if err != nil {
		t.Fatalf("NewEngine() error = %v", err)
	}
	return e
}

func TestDeduplicateMergesCrossSourcePair(t *testing.T) {
	t.Parallel()

	engine := mustEngine(t)
	res, err := engine.Run([]models.Event{reggaeSerp(), reggaeInsta()})
	if err != nil {
		t.Fatalf("Run() error = %v", err)
	}

	if len(res.Events) != 1 {
		t.Fatalf("len(Events) = %d, want 1", len(res.Events))
	}
	if res.DuplicatesRemoved != 1 {
		t.Errorf("DuplicatesRemoved = %d, want 1", res.DuplicatesRemoved)
	}
	if len(res.AuditTrail) != 1 {
		t.Fatalf("len(AuditTrail) = %d, want 1", len(res.AuditTrail))
	}
	if got := res.AuditTrail[0].SimilarityScore; got < DefaultThreshold {
		t.Errorf("SimilarityScore = %v, want >= %v", got, DefaultThreshold)
	}

	kept := res.Events[0]
	if kept.Source != "serpapi" {
		t.Errorf("kept Source = %q, want serpapi", kept.Source)
	}
	if kept.Description == "" || kept.TicketURL == "" {
		t.Errorf("merged event lost data: description=%q ticket=%q", kept.Description, kept.TicketURL)
	}
	if kept.Venue.Handle != "thecamelrva" {
		t.Errorf("merged venue handle = %q, want thecamelrva", kept.Venue.Handle)
	}

	wantReason := "Merged 'REGGAE NIGHT @ The Camel' (instagram) into 'Reggae Night at The Camel' (serpapi)"
	if got := res.AuditTrail[0].Reason; got != wantReason {
		t.Errorf("Reason = %q, want %q", got, wantReason)
	}
	insta := reggaeInsta()
	if got := res.AuditTrail[0].MergedEventID; got != insta.UniqueKey() {
		t.Errorf("MergedEventID = %q, want %q", got, insta.UniqueKey())
	}
}

func TestDeduplicateKeepsDistinctEvents(t *testing.T) {
	t.Parallel()

	engine := mustEngine(t)
	res, err := engine.Run([]models.Event{reggaeSerp(), jazzBrunch(), reggaeInsta()})
	if err != nil {
		t.Fatalf("Run() error = %v", err)
	}
	if len(res.Events) != 2 {
		t.Fatalf("len(Events) = %d, want 2", len(res.Events))
	}
	if res.Events[0].Title != "Reggae Night at The Camel" || res.Events[1].Title != "Jazz Brunch" {
		t.Errorf("order not preserved: %q, %q", res.Events[0].Title, res.Events[1].Title)
	}
	if res.OriginalCount != 3 || res.DuplicatesRemoved != 1 {
		t.Errorf("counts = (%d, %d), want (3, 1)", res.OriginalCount, res.DuplicatesRemoved)
	}
}

func TestDeduplicateSourcePriority(t *testing.T) {
	t.Parallel()

	engine := mustEngine(t)
	// Lower-priority source first; the higher-priority one must win.
	res, err := engine.Run([]models.Event{reggaeInsta(), reggaeSerp()})
	if err != nil {
		t.Fatalf("Run() error = %v", err)
	}
	if len(res.Events) != 1 {
		t.Fatalf("len(Events) = %d, want 1", len(res.Events))
	}
	if got := res.Events[0].Source; got != "serpapi" {
		t.Errorf("kept Source = %q, want serpapi", got)
	}
	if got := res.Events[0].TicketURL; got == "" {
		t.Error("ticket URL from instagram record was dropped")
	}
}

func TestDeduplicateCompletenessTieBreak(t *testing.T) {
	t.Parallel()

	engine := mustEngine(t)
	sparse := reggaeSerp()
	sparse.Description = ""
	rich := reggaeSerp()
	rich.SourceID = "serp-9"
	rich.Price = "$10"
	rich.ImageURL = "https://img.example.com/a.jpg"

	res, err := engine.Run([]models.Event{sparse, rich})
	if err != nil {
		t.Fatalf("Run() error = %v", err)
	}
	if got := res.Events[0].SourceID; got != "serp-9" {
		t.Errorf("kept SourceID = %q, want serp-9", got)
	}
}

func TestDeduplicateUnknownSourceRanksLast(t *testing.T) {
	t.Parallel()

	engine := mustEngine(t)
	unknown := reggaeSerp()
	unknown.Source = "mystery"
	unknown.Description = "A much longer description that makes this record more complete."
	unknown.Price = "$5"
	web := reggaeInsta()
	web.Source = "web"

	res, err := engine.Run([]models.Event{unknown, web})
	if err != nil {
		t.Fatalf("Run() error = %v", err)
	}
	if got := res.Events[0].Source; got != "web" {
		t.Errorf("kept Source = %q, want web", got)
	}
	if engine.SourcePriority("mystery") != 0 {
		t.Errorf("SourcePriority(mystery) = %d, want 0", engine.SourcePriority("mystery"))
	}
}

func TestDeduplicateEdgeCases(t *testing.T) {
	t.Parallel()

	engine := mustEngine(t)

	res, err := engine.Run(nil)
	if err != nil {
		t.Fatalf("Run(nil) error = %v", err)
	}
	if len(res.Events) != 0 || res.DuplicatesRemoved != 0 || len(res.AuditTrail) != 0 {
		t.Errorf("Run(nil) = %+v, want empty result", res)
	}

	single := []models.Event{jazzBrunch()}
	res, err = engine.Run(single)
	if err != nil {
		t.Fatalf("Run(single) error = %v", err)
	}
	if len(res.Events) != 1 || res.DuplicatesRemoved != 0 {
		t.Errorf("Run(single) = %+v, want one unchanged event", res)
	}
}

func TestDeduplicateIdempotent(t *testing.T) {
	t.Parallel()

	engine := mustEngine(t)
	first, err := engine.Run([]models.Event{reggaeSerp(), jazzBrunch(), reggaeInsta()})
	if err != nil {
		t.Fatalf("Run() error = %v", err)
	}
	second, err := engine.Run(first.Events)
	if err != nil {
		t.Fatalf("Run() second pass error = %v", err)
	}
	if second.DuplicatesRemoved != 0 {
		t.Errorf("second pass removed %d, want 0", second.DuplicatesRemoved)
	}
}

func TestDeduplicateDoesNotMutateInput(t *testing.T) {
	t.Parallel()

	engine := mustEngine(t)
	in := []models.Event{reggaeSerp(), reggaeInsta()}
	if _, err := engine.Run(in); err != nil {
		t.Fatalf("Run() error = %v", err)
	}
	if in[0].TicketURL != "" {
		t.Errorf("input event was mutated: TicketURL = %q", in[0].TicketURL)
	}
}

func TestDeduplicateValidation(t *testing.T) {
	t.Parallel()

	engine := mustEngine(t)
	events := []models.Event{reggaeSerp()}

	for _, threshold := range []float64{0, -0.1, 1.5} {
		if _, err := engine.Deduplicate(events, threshold, nil); !errors.Is(err, ErrInvalidConfig) {
			t.Errorf("Deduplicate(threshold=%v) error = %v, want ErrInvalidConfig", threshold, err)
		}
	}

	bad := Weights{Title: 0.5, Venue: 0.35, Time: 0}
	_, err := engine.Deduplicate(events, 0.75, &bad)
	var cfgErr *ConfigError
	if !errors.As(err, &cfgErr) {
		t.Fatalf("Deduplicate(weights sum 0.85) error = %v, want *ConfigError", err)
	}
	if cfgErr.Field != "weights" {
		t.Errorf("ConfigError.Field = %q, want weights", cfgErr.Field)
	}

	if _, err := engine.Deduplicate(events, 1.0, nil); err != nil {
		t.Errorf("Deduplicate(threshold=1.0) error = %v", err)
	}
}

func TestDeduplicateWeightOverrideDoesNotLeak(t *testing.T) {
	t.Parallel()

	engine := mustEngine(t)
	override := Weights{Title: 0, Venue: 0, Time: 1}
	events := []models.Event{reggaeSerp(), jazzBrunch()}

	// Time-only weights never merge events two days apart, but check the
	// call is accepted and defaults are untouched afterwards.
	if _, err := engine.Deduplicate(events, 0.75, &override); err != nil {
		t.Fatalf("Deduplicate(override) error = %v", err)
	}
	if got := engine.Scorer().Weights(); got != DefaultWeights() {
		t.Errorf("engine weights after override = %+v, want defaults", got)
	}

	sameVenue := jazzBrunch()
	sameVenue.Title = "Something Else Entirely"
	sameVenue.StartTime = reggaeSerp().StartTime
	sameVenue.Venue = reggaeSerp().Venue
	pair := []models.Event{reggaeSerp(), sameVenue}

	res, err := engine.Deduplicate(pair, 0.75, &Weights{Title: 0, Venue: 0.5, Time: 0.5})
	if err != nil {
		t.Fatalf("Deduplicate(venue/time weights) error = %v", err)
	}
	if len(res.Events) != 1 {
		t.Errorf("override weights: len(Events) = %d, want 1", len(res.Events))
	}

	res, err = engine.Run(pair)
	if err != nil {
		t.Fatalf("Run() error = %v", err)
	}
	if len(res.Events) != 2 {
		t.Errorf("default weights after override: len(Events) = %d, want 2", len(res.Events))
	}
}

func TestNewEngineRejectsBadConfig(t *testing.T) {
	t.Parallel()

	cfg := DefaultConfig()
	cfg.Threshold = 0
	if _, err := NewEngine(cfg); err == nil {
		t.Error("NewEngine(threshold=0) succeeded, want error")
	}

	cfg = DefaultConfig()
	cfg.TimeCurve.SameDayFloor = 2
	if _, err := NewEngine(cfg); err == nil {
		t.Error("NewEngine(same_day_floor=2) succeeded, want error")
	}
}

func TestFormatAuditSummary(t *testing.T) {
	t.Parallel()

	if got := FormatAuditSummary(&models.DedupeResult{}); got != "No duplicates found." {
		t.Errorf("FormatAuditSummary(empty) = %q", got)
	}

	engine := mustEngine(t)
	res, err := engine.Run([]models.Event{reggaeSerp(), reggaeInsta(), jazzBrunch()})
	if err != nil {
		t.Fatalf("Run() error = %v", err)
	}
	got := FormatAuditSummary(&res)
	for _, want := range []string{
		"Deduplication Summary:",
		"  Original events: 3",
		"  Duplicates removed: 1",
		"  Final events: 2",
		"  Dedup rate: 33.3%",
		"Merged events:",
		"  - Merged 'REGGAE NIGHT @ The Camel' (instagram) into 'Reggae Night at The Camel' (serpapi) (similarity: 97%)",
	} {
		if !strings.Contains(got, want) {
			t.Errorf("summary missing %q:\n%s", want, got)
		}
	}
}
