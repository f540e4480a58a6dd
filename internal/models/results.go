// Localevents - Multi-Source Event Ingestion and Deduplication
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/localevents

package models

// DuplicateMatch is one entry of the audit trail: the record kept, the
// record folded into it and the scores that justified the merge.
type DuplicateMatch struct {
	KeptEventID     string  `json:"kept_event_id"`
	MergedEventID   string  `json:"merged_event_id"`
	SimilarityScore float64 `json:"similarity_score"`
	TitleSimilarity float64 `json:"title_similarity"`
	VenueSimilarity float64 `json:"venue_similarity"`
	TimeSimilarity  float64 `json:"time_similarity"`
	Reason          string  `json:"reason"`
}

// DedupeResult is the output of one deduplication pass.
type DedupeResult struct {
	Events            []Event          `json:"events"`
	OriginalCount     int              `json:"original_count"`
	DuplicatesRemoved int              `json:"duplicates_removed"`
	AuditTrail        []DuplicateMatch `json:"audit_trail"`
}

// DedupRate is duplicates removed over original count, 0 for empty input.
func (r *DedupeResult) DedupRate() float64 {
	if r.OriginalCount == 0 {
		return 0
	}
	return float64(r.DuplicatesRemoved) / float64(r.OriginalCount)
}

// FetchStatus is the outcome of one adapter invocation.
type FetchStatus string

const (
	FetchSuccess FetchStatus = "success"
	FetchError   FetchStatus = "error"
	FetchSkipped FetchStatus = "skipped"
	FetchPartial FetchStatus = "partial" // some candidates were dropped as malformed
)

// FetchStats describes one adapter invocation.
type FetchStats struct {
	Source       string      `json:"source"`
	Count        int         `json:"count"`
	Malformed    int         `json:"malformed,omitempty"`
	Status       FetchStatus `json:"status"`
	DurationMS   int64       `json:"duration_ms,omitempty"`
	ErrorMessage string      `json:"error_message,omitempty"`
}

// FetchResult aggregates every adapter invocation of one ingestion cycle.
type FetchResult struct {
	Events        []Event      `json:"events"`
	Stats         []FetchStats `json:"stats"`
	Total         int          `json:"total"`
	FailedSources []string     `json:"failed_sources"`
}
