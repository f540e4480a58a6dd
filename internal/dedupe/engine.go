// Localevents - Multi-Source Event Ingestion and Deduplication
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/localevents

package dedupe

import (
	"fmt"
	"math"
	"time"

	"github.com/tomtom215/localevents/internal/logging"
	"github.com/tomtom215/localevents/internal/metrics"
	"github.com/tomtom215/localevents/internal/models"
)

// DefaultThreshold is the total similarity at or above which two events
// are treated as duplicates.
const DefaultThreshold = 0.75

// DefaultSourcePriority ranks sources from most to least reliable.
var DefaultSourcePriority = []string{"predicthq", "serpapi", "instagram", "web"}

// Config configures an Engine.
type Config struct {
	Threshold float64
	Weights   Weights
	TimeCurve TimeCurve

	// SourcePriority lists sources from most to least reliable. Sources not
	// listed rank below every listed one.
	SourcePriority []string
}

// DefaultConfig returns the production defaults.
func DefaultConfig() Config {
	return Config{
		Threshold:      DefaultThreshold,
		Weights:        DefaultWeights(),
		TimeCurve:      DefaultTimeCurve(),
		SourcePriority: append([]string(nil), DefaultSourcePriority...),
	}
}

// Engine deduplicates event lists. Its configuration is fixed at
// construction; per-call overrides never change it.
type Engine struct {
	threshold float64
	scorer    *Scorer
	curve     TimeCurve
	priority  map[string]int
}

// NewEngine validates cfg and builds an Engine.
func NewEngine(cfg Config) (*Engine, error) {
	if err := validateThreshold(cfg.Threshold); err != nil {
		return nil, err
	}
	scorer, err := NewScorer(cfg.Weights, cfg.TimeCurve)
	if err != nil {
		return nil, err
	}

	priority := make(map[string]int, len(cfg.SourcePriority))
	for i, src := range cfg.SourcePriority {
		if _, dup := priority[src]; !dup {
			priority[src] = len(cfg.SourcePriority) - i
		}
	}

	return &Engine{
		threshold: cfg.Threshold,
		scorer:    scorer,
		curve:     cfg.TimeCurve,
		priority:  priority,
	}, nil
}

func validateThreshold(t float64) error {
	if math.IsNaN(t) || t <= 0 || t > 1 {
		return &ConfigError{Field: "threshold", Reason: fmt.Sprintf("must be within (0, 1], got %v", t)}
	}
	return nil
}

// Threshold returns the configured default threshold.
func (e *Engine) Threshold() float64 { return e.threshold }

// Scorer returns the engine's default scorer.
func (e *Engine) Scorer() *Scorer { return e.scorer }

// SourcePriority returns the rank of source; unlisted sources rank 0.
func (e *Engine) SourcePriority(source string) int {
	return e.priority[source]
}

// Run deduplicates with the engine's own threshold and weights.
func (e *Engine) Run(events []models.Event) (models.DedupeResult, error) {
	return e.Deduplicate(events, e.threshold, nil)
}

// Deduplicate merges duplicates in events. threshold must be in (0, 1].
// A non-nil weights overrides the engine weights for this call only.
// The input slice and its events are not modified.
func (e *Engine) Deduplicate(events []models.Event, threshold float64, weights *Weights) (models.DedupeResult, error) {
	if err := validateThreshold(threshold); err != nil {
		return models.DedupeResult{}, err
	}
	scorer := e.scorer
	if weights != nil {
		s, err := NewScorer(*weights, e.curve)
		if err != nil {
			return models.DedupeResult{}, err
		}
		scorer = s
	}

	result := models.DedupeResult{
		Events:        []models.Event{},
		OriginalCount: len(events),
		AuditTrail:    []models.DuplicateMatch{},
	}
	if len(events) == 0 {
		return result, nil
	}

	start := time.Now()
	consumed := make([]bool, len(events))

	for i := range events {
		if consumed[i] {
			continue
		}

		primary := events[i]
		primaryIdx := i

		for j := i + 1; j < len(events); j++ {
			if consumed[j] {
				continue
			}
			sim := scorer.Similarity(&events[i], &events[j])
			if sim.Total < threshold {
				continue
			}
			consumed[j] = true

			winner, loser := &primary, &events[j]
			winnerIdx := primaryIdx
			if e.prefer(&events[j], j, &primary, primaryIdx) {
				winner, loser = &events[j], &primary
				winnerIdx = j
			}

			merged := winner.MergeWith(loser)
			result.AuditTrail = append(result.AuditTrail, models.DuplicateMatch{
				KeptEventID:     merged.UniqueKey(),
				MergedEventID:   loser.UniqueKey(),
				SimilarityScore: sim.Total,
				TitleSimilarity: sim.Title,
				VenueSimilarity: sim.Venue,
				TimeSimilarity:  sim.Time,
				Reason: fmt.Sprintf("Merged '%s' (%s) into '%s' (%s)",
					loser.Title, loser.Source, merged.Title, merged.Source),
			})
			primary = merged
			primaryIdx = winnerIdx
		}

		result.Events = append(result.Events, primary)
	}

	result.DuplicatesRemoved = result.OriginalCount - len(result.Events)
	duration := time.Since(start)
	metrics.RecordDedupe(result.OriginalCount, result.DuplicatesRemoved, duration)
	logging.Debug().Int("original", result.OriginalCount).Int("removed", result.DuplicatesRemoved).
		Float64("threshold", threshold).Dur("duration", duration).Msg("Deduplication complete")

	return result, nil
}

// prefer reports whether candidate should replace current as primary:
// higher source priority, then higher completeness, then earlier input.
func (e *Engine) prefer(candidate *models.Event, candidateIdx int, current *models.Event, currentIdx int) bool {
	cp, pp := e.SourcePriority(candidate.Source), e.SourcePriority(current.Source)
	if cp != pp {
		return cp > pp
	}
	cc, pc := candidate.Completeness(), current.Completeness()
	if cc != pc {
		return cc > pc
	}
	return candidateIdx < currentIdx
}
