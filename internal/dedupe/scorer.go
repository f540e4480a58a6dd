// Localevents - Multi-Source Event Ingestion and Deduplication
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/localevents

package dedupe

import (
	"fmt"
	"math"
	"sort"
	"strings"
	"time"

	"github.com/tomtom215/localevents/internal/models"
)

// weightTolerance is how far the weight sum may stray from 1.0.
const weightTolerance = 0.01

// sameCityBoost multiplies venue similarity when city and state agree.
const sameCityBoost = 1.1

// Weights are the component weights of the total similarity.
type Weights struct {
	Title float64 `koanf:"title" json:"title"`
	Venue float64 `koanf:"venue" json:"venue"`
	Time  float64 `koanf:"time" json:"time"`
}

// DefaultWeights returns title 0.50, venue 0.35, time 0.15.
func DefaultWeights() Weights {
	return Weights{Title: 0.50, Venue: 0.35, Time: 0.15}
}

// Sum returns the total of the three weights.
func (w Weights) Sum() float64 {
	return w.Title + w.Venue + w.Time
}

// Validate rejects negative weights and sums outside 1.0 ± 0.01.
func (w Weights) Validate() error {
	fields := []struct {
		name  string
		value float64
	}{{"title", w.Title}, {"venue", w.Venue}, {"time", w.Time}}
	for _, f := range fields {
		if f.value < 0 || math.IsNaN(f.value) {
			return &ConfigError{Field: "weights." + f.name, Reason: fmt.Sprintf("must be non-negative, got %v", f.value)}
		}
	}
	if sum := w.Sum(); math.Abs(sum-1.0) > weightTolerance {
		return &ConfigError{Field: "weights", Reason: fmt.Sprintf("must sum to 1.0 (±%.2f), got %.4f", weightTolerance, sum)}
	}
	return nil
}

// TimeCurve shapes time similarity.
type TimeCurve struct {
	// FullMatchWindow is the same-date delta that still scores 1.0.
	FullMatchWindow time.Duration `koanf:"full_match_window" json:"full_match_window"`

	// DecayWindow is the same-date delta at which the score reaches SameDayFloor.
	DecayWindow time.Duration `koanf:"decay_window" json:"decay_window"`

	// SameDayFloor is the minimum score for two events on the same date.
	SameDayFloor float64 `koanf:"same_day_floor" json:"same_day_floor"`

	// CrossDayWindow is the delta over which events on different dates decay to 0.
	CrossDayWindow time.Duration `koanf:"cross_day_window" json:"cross_day_window"`
}

// DefaultTimeCurve returns 30m / 4h / 0.5 / 2h.
func DefaultTimeCurve() TimeCurve {
	return TimeCurve{
		FullMatchWindow: 30 * time.Minute,
		DecayWindow:     4 * time.Hour,
		SameDayFloor:    0.5,
		CrossDayWindow:  2 * time.Hour,
	}
}

// Validate checks the curve is well ordered.
func (c TimeCurve) Validate() error {
	switch {
	case c.FullMatchWindow < 0:
		return &ConfigError{Field: "time.full_match_window", Reason: "must not be negative"}
	case c.DecayWindow < c.FullMatchWindow:
		return &ConfigError{Field: "time.decay_window", Reason: "must not be shorter than full_match_window"}
	case c.SameDayFloor < 0 || c.SameDayFloor > 1:
		return &ConfigError{Field: "time.same_day_floor", Reason: "must be within [0, 1]"}
	case c.CrossDayWindow < 0:
		return &ConfigError{Field: "time.cross_day_window", Reason: "must not be negative"}
	}
	return nil
}

// Score returns the time similarity of two start times.
func (c TimeCurve) Score(a, b time.Time) float64 {
	delta := a.Sub(b)
	if delta < 0 {
		delta = -delta
	}

	if sameDate(a, b) {
		if delta <= c.FullMatchWindow {
			return 1.0
		}
		if delta <= c.DecayWindow {
			span := c.DecayWindow - c.FullMatchWindow
			if span <= 0 {
				return c.SameDayFloor
			}
			progress := float64(delta-c.FullMatchWindow) / float64(span)
			return 1.0 - progress*(1.0-c.SameDayFloor)
		}
		return c.SameDayFloor
	}

	if c.CrossDayWindow > 0 && delta <= c.CrossDayWindow {
		return 1.0 - float64(delta)/float64(c.CrossDayWindow)
	}
	return 0
}

func sameDate(a, b time.Time) bool {
	ay, am, ad := a.Date()
	by, bm, bd := b.Date()
	return ay == by && am == bm && ad == bd
}

// Similarity is the outcome of comparing two events.
type Similarity struct {
	Total float64 `json:"total"`
	Title float64 `json:"title"`
	Venue float64 `json:"venue"`
	Time  float64 `json:"time"`
}

// Scorer computes weighted event similarity. It is immutable and safe for
// concurrent use.
type Scorer struct {
	weights Weights
	curve   TimeCurve
}

// NewScorer validates w and c.
func NewScorer(w Weights, c TimeCurve) (*Scorer, error) {
	if err := w.Validate(); err != nil {
		return nil, err
	}
	if err := c.Validate(); err != nil {
		return nil, err
	}
	return &Scorer{weights: w, curve: c}, nil
}

// Weights returns the scorer's weights.
func (s *Scorer) Weights() Weights { return s.weights }

// Similarity scores a against b.
func (s *Scorer) Similarity(a, b *models.Event) Similarity {
	sim := Similarity{
		Title: TitleSimilarity(a.Title, b.Title),
		Venue: VenueSimilarity(&a.Venue, &b.Venue),
		Time:  s.curve.Score(a.StartTime, b.StartTime),
	}
	total := s.weights.Title*sim.Title + s.weights.Venue*sim.Venue + s.weights.Time*sim.Time
	sim.Total = math.Min(1.0, math.Max(0, total))
	return sim
}

var (
	titlePrefixes = []string{"live:", "live -", "tonight:", "this week:", "event:"}
	titleSuffixes = []string{"- live", "live!", "tonight!", "@"}

	venueSuffixes = []string{
		" bar", " pub", " club", " lounge", " theater", " theatre",
		" hall", " venue", " room", " stage", " arena", " center",
		" brewery", " brewing", " taproom", " restaurant", " grill",
	}
)

// NormalizeTitle lowercases, strips promotional prefixes and suffixes and
// collapses whitespace.
func NormalizeTitle(title string) string {
	t := strings.ToLower(strings.TrimSpace(title))
	for _, p := range titlePrefixes {
		if strings.HasPrefix(t, p) {
			t = strings.TrimSpace(t[len(p):])
		}
	}
	for _, sfx := range titleSuffixes {
		if strings.HasSuffix(t, sfx) {
			t = strings.TrimSpace(t[:len(t)-len(sfx)])
		}
	}
	return strings.Join(strings.Fields(t), " ")
}

// NormalizeVenueName lowercases, strips venue-type suffixes and a leading "the ".
func NormalizeVenueName(name string) string {
	n := strings.Join(strings.Fields(strings.ToLower(name)), " ")
	for _, sfx := range venueSuffixes {
		if strings.HasSuffix(n, sfx) {
			n = strings.TrimSpace(n[:len(n)-len(sfx)])
		}
	}
	return strings.TrimPrefix(n, "the ")
}

// TitleSimilarity is the token-sort ratio of the normalized titles, 0 when
// either is empty after normalization. Identical non-blank titles score 1.0.
func TitleSimilarity(a, b string) float64 {
	if ta := strings.TrimSpace(a); ta != "" && ta == strings.TrimSpace(b) {
		return 1.0
	}
	na, nb := NormalizeTitle(a), NormalizeTitle(b)
	if na == "" || nb == "" {
		return 0
	}
	return ratio(tokenSort(na), tokenSort(nb))
}

// VenueSimilarity compares two venues. Matching handles score 1.0.
func VenueSimilarity(a, b *models.Venue) float64 {
	if a.Handle != "" && b.Handle != "" && strings.EqualFold(strings.TrimSpace(a.Handle), strings.TrimSpace(b.Handle)) {
		return 1.0
	}

	if ta := strings.TrimSpace(a.Name); ta != "" && ta == strings.TrimSpace(b.Name) {
		return 1.0
	}

	na, nb := NormalizeVenueName(a.Name), NormalizeVenueName(b.Name)
	if na == "" || nb == "" {
		return 0
	}

	sim := ratio(na, nb)
	if sameLocality(a, b) {
		sim = math.Min(1.0, sim*sameCityBoost)
	}
	return sim
}

func sameLocality(a, b *models.Venue) bool {
	return a.City != "" && a.State != "" &&
		strings.EqualFold(strings.TrimSpace(a.City), strings.TrimSpace(b.City)) &&
		strings.EqualFold(strings.TrimSpace(a.State), strings.TrimSpace(b.State))
}

func tokenSort(s string) string {
	tokens := strings.Fields(s)
	sort.Strings(tokens)
	return strings.Join(tokens, " ")
}

// ratio is the normalized Indel similarity 2*LCS(a, b) / (len(a) + len(b))
// over runes, i.e. the edit similarity when a substitution costs 2.
func ratio(a, b string) float64 {
	if a == b {
		return 1.0
	}
	ra, rb := []rune(a), []rune(b)
	total := len(ra) + len(rb)
	if total == 0 {
		return 1.0
	}
	return 2 * float64(lcsLength(ra, rb)) / float64(total)
}

// lcsLength is the length of the longest common subsequence of a and b.
func lcsLength(a, b []rune) int {
	if len(a) < len(b) {
		a, b = b, a
	}
	prev := make([]int, len(b)+1)
	cur := make([]int, len(b)+1)
	for _, ca := range a {
		for j, cb := range b {
			if ca == cb {
				cur[j+1] = prev[j] + 1
			} else {
				cur[j+1] = max(prev[j+1], cur[j])
			}
		}
		prev, cur = cur, prev
	}
	return prev[len(b)]
}
