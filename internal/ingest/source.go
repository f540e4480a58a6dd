// Localevents - Multi-Source Event Ingestion and Deduplication
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/localevents

package ingest

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/tomtom215/localevents/internal/models"
)

// ErrSourceSkipped is returned by a source that is not configured for the
// current query. The source is reported as skipped and its health is left
// untouched.
var ErrSourceSkipped = errors.New("source skipped")

// Query describes what to fetch.
type Query struct {
	// Location is the free-form area, e.g. "Richmond, VA".
	Location string
	City     string
	State    string

	From time.Time
	To   time.Time
}

// NewQuery builds a query for location covering daysAhead days from now.
func NewQuery(location string, now time.Time, daysAhead int) Query {
	city, state := ParseLocation(location)
	from := time.Date(now.Year(), now.Month(), now.Day(), 0, 0, 0, 0, now.Location())
	return Query{
		Location: strings.TrimSpace(location),
		City:     city,
		State:    state,
		From:     from,
		To:       from.AddDate(0, 0, daysAhead),
	}
}

// ParseLocation splits "City, ST" into its parts. A missing state is "".
func ParseLocation(location string) (city, state string) {
	parts := strings.SplitN(location, ",", 2)
	city = strings.TrimSpace(parts[0])
	if len(parts) > 1 {
		state = strings.TrimSpace(parts[1])
	}
	return city, state
}

// Source is one origin of candidate events. Implementations must be safe
// for concurrent use and honor ctx.
type Source interface {
	Name() string
	Fetch(ctx context.Context, q Query) ([]models.Event, error)
}

// FetchReport is one fetch plus the records the source discarded before
// they could become candidates, such as undecodable feed entries.
type FetchReport struct {
	Events  []models.Event
	Dropped int
}

// ReportingSource is a Source that reports discarded records. The
// aggregator prefers FetchReport when a source implements it and counts
// Dropped as malformed.
type ReportingSource interface {
	Source
	FetchReport(ctx context.Context, q Query) (FetchReport, error)
}

// SourceFunc adapts a function to Source.
type SourceFunc struct {
	SourceName string
	Func       func(ctx context.Context, q Query) ([]models.Event, error)
}

// Name implements Source.
func (s SourceFunc) Name() string { return s.SourceName }

// Fetch implements Source.
func (s SourceFunc) Fetch(ctx context.Context, q Query) ([]models.Event, error) {
	return s.Func(ctx, q)
}
