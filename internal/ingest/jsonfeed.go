// Localevents - Multi-Source Event Ingestion and Deduplication
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/localevents

package ingest

import (
	"context"
	"fmt"
	"net/url"
	"time"

	"github.com/goccy/go-json"

	"github.com/tomtom215/localevents/internal/logging"
	"github.com/tomtom215/localevents/internal/models"
	"github.com/tomtom215/localevents/internal/resilience"
)

// JSONFeedSource reads a JSON array of event records from a URL, falling
// back to mirror URLs in order when the primary fails.
type JSONFeedSource struct {
	name    string
	urls    []string
	fetcher *Fetcher
	retry   resilience.RetryPolicy
	now     func() time.Time
}

// NewJSONFeedSource returns a source named name that reads primary, then
// each fallback in turn. Each URL is retried with policy.
func NewJSONFeedSource(name, primary string, fallbacks []string, fetcher *Fetcher, policy resilience.RetryPolicy) *JSONFeedSource {
	urls := make([]string, 0, 1+len(fallbacks))
	urls = append(urls, primary)
	urls = append(urls, fallbacks...)
	return &JSONFeedSource{
		name:    name,
		urls:    urls,
		fetcher: fetcher,
		retry:   policy,
		now:     time.Now,
	}
}

// Name implements Source.
func (s *JSONFeedSource) Name() string { return s.name }

// URLs returns the primary URL followed by the fallbacks.
func (s *JSONFeedSource) URLs() []string {
	return append([]string(nil), s.urls...)
}

// Fetch implements Source.
func (s *JSONFeedSource) Fetch(ctx context.Context, q Query) ([]models.Event, error) {
	report, err := s.FetchReport(ctx, q)
	return report.Events, err
}

// FetchReport implements ReportingSource. Dropped counts the records of the
// URL that answered which did not decode.
func (s *JSONFeedSource) FetchReport(ctx context.Context, q Query) (FetchReport, error) {
	ops := make([]resilience.Op[FetchReport], len(s.urls))
	for i, raw := range s.urls {
		ops[i] = resilience.Op[FetchReport]{
			Name: fmt.Sprintf("%s[%d]", s.name, i),
			Run: func(ctx context.Context) (FetchReport, error) {
				return resilience.Retry(ctx, s.retry, s.name+".fetch", func(ctx context.Context) (FetchReport, error) {
					return s.fetchURL(ctx, raw, q)
				})
			},
		}
	}
	return resilience.NewFallbackChain(s.name, ops...).Execute(ctx)
}

func (s *JSONFeedSource) fetchURL(ctx context.Context, raw string, q Query) (FetchReport, error) {
	target, err := withQuery(raw, q)
	if err != nil {
		return FetchReport{}, err
	}
	body, err := s.fetcher.Get(ctx, target)
	if err != nil {
		return FetchReport{}, err
	}
	return s.decode(ctx, body)
}

// decode parses the feed. A body that is not a JSON array is a permanent
// failure; individual records that do not decode are dropped and reported.
func (s *JSONFeedSource) decode(ctx context.Context, body []byte) (FetchReport, error) {
	var records []json.RawMessage
	if err := json.Unmarshal(body, &records); err != nil {
		return FetchReport{}, resilience.Permanent(fmt.Errorf("%s: decode feed: %w", s.name, err))
	}

	fetchedAt := s.now().UTC()
	report := FetchReport{Events: make([]models.Event, 0, len(records))}
	for i, rec := range records {
		var ev models.Event
		if err := json.Unmarshal(rec, &ev); err != nil {
			report.Dropped++
			logging.Ctx(ctx).Debug().Str("source", s.name).Int("index", i).Err(err).Msg("Dropping undecodable feed record")
			continue
		}
		if ev.Source == "" {
			ev.Source = s.name
		}
		if ev.FetchedAt.IsZero() {
			ev.FetchedAt = fetchedAt
		}
		report.Events = append(report.Events, ev)
	}
	if report.Dropped > 0 {
		logging.Ctx(ctx).Warn().Str("source", s.name).Int("dropped", report.Dropped).Msg("Feed contained undecodable records")
	}
	return report, nil
}

// withQuery adds location and date range parameters, keeping any the URL
// already carries.
func withQuery(raw string, q Query) (string, error) {
	u, err := url.Parse(raw)
	if err != nil {
		return "", resilience.Permanent(fmt.Errorf("parse feed url: %w", err))
	}
	params := u.Query()
	set := func(key, value string) {
		if value != "" && params.Get(key) == "" {
			params.Set(key, value)
		}
	}
	set("location", q.Location)
	if !q.From.IsZero() {
		set("date_from", q.From.Format(time.DateOnly))
	}
	if !q.To.IsZero() {
		set("date_to", q.To.Format(time.DateOnly))
	}
	u.RawQuery = params.Encode()
	return u.String(), nil
}
