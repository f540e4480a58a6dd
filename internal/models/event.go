// Localevents - Multi-Source Event Ingestion and Deduplication
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/localevents

// Package models defines the records that flow through ingestion and
// deduplication: venues, candidate events, merge audit entries and per-source
// fetch statistics.
//
// Validation tags on Venue and Event describe the minimum shape a candidate
// must have before it is handed to the deduplication engine; candidates that
// fail them are counted as malformed by the ingestion layer and dropped.
package models

import (
	"strconv"
	"strings"
	"time"

	"github.com/cespare/xxhash/v2"
)

// Venue is where an event takes place. Adapters build it once; everything
// downstream copies it by value.
type Venue struct {
	Name      string   `json:"name" validate:"notblank"`
	Address   string   `json:"address,omitempty"`
	City      string   `json:"city" validate:"required"`
	State     string   `json:"state" validate:"required"`
	ZipCode   string   `json:"zip_code,omitempty"`
	Handle    string   `json:"handle,omitempty"` // social identifier, e.g. an Instagram handle
	Website   string   `json:"website,omitempty" validate:"omitempty,url"`
	Latitude  *float64 `json:"latitude,omitempty" validate:"omitempty,latitude"`
	Longitude *float64 `json:"longitude,omitempty" validate:"omitempty,longitude"`
	VenueType string   `json:"venue_type,omitempty"` // music_venue, bar, restaurant, ...
}

// Event is one candidate record produced by a source adapter.
type Event struct {
	Source    string `json:"source" validate:"notblank"` // serpapi, predicthq, instagram, web, ...
	SourceID  string `json:"source_id" validate:"notblank"`
	SourceURL string `json:"source_url,omitempty" validate:"omitempty,url"`

	Title       string `json:"title" validate:"notblank"`
	Description string `json:"description,omitempty"`

	StartTime time.Time  `json:"start_time" validate:"required"`
	EndTime   *time.Time `json:"end_time,omitempty"`
	AllDay    bool       `json:"all_day,omitempty"`

	Venue Venue `json:"venue"`

	Category      string   `json:"category,omitempty"`
	Subcategories []string `json:"subcategories,omitempty"`
	Tags          []string `json:"tags,omitempty"`

	Price     string   `json:"price,omitempty"` // "Free", "$10-20", "TBD"
	PriceMin  *float64 `json:"price_min,omitempty" validate:"omitempty,gte=0"`
	PriceMax  *float64 `json:"price_max,omitempty" validate:"omitempty,gte=0"`
	TicketURL string   `json:"ticket_url,omitempty" validate:"omitempty,url"`

	ImageURL string   `json:"image_url,omitempty" validate:"omitempty,url"`
	Images   []string `json:"images,omitempty"`

	Confidence float64 `json:"confidence" validate:"gte=0,lte=1"`
	IsVerified bool    `json:"is_verified,omitempty"`

	FetchedAt time.Time `json:"fetched_at"`
}

// keyTitlePrefixes are stripped before hashing so "Live: X" and "X" share a key.
var keyTitlePrefixes = []string{"live:", "live -", "tonight:"}

// UniqueKey is a stable digest of (normalized title, start date, normalized
// venue name). It identifies records in the audit trail and serves as a
// coarse pre-filter; it never decides on its own that two events match.
func (e *Event) UniqueKey() string {
	title := strings.ToLower(strings.TrimSpace(e.Title))
	for _, prefix := range keyTitlePrefixes {
		if strings.HasPrefix(title, prefix) {
			title = strings.TrimSpace(title[len(prefix):])
		}
	}
	venue := strings.ToLower(strings.TrimSpace(e.Venue.Name))

	var b strings.Builder
	b.Grow(len(title) + len(venue) + 12)
	b.WriteString(title)
	b.WriteByte('|')
	b.WriteString(e.StartTime.Format(time.DateOnly))
	b.WriteByte('|')
	b.WriteString(venue)

	sum := xxhash.Sum64String(b.String())
	key := strconv.FormatUint(sum, 16)
	if len(key) < 16 {
		key = strings.Repeat("0", 16-len(key)) + key
	}
	return key
}

// Completeness counts how many of description, price, ticket URL and image
// URL are present.
func (e *Event) Completeness() int {
	n := 0
	for _, s := range []string{e.Description, e.Price, e.TicketURL, e.ImageURL} {
		if s != "" {
			n++
		}
	}
	return n
}

// MergeWith returns a copy of e enriched with data that only other carries.
// Neither e nor other is modified.
func (e *Event) MergeWith(other *Event) Event {
	merged := *e
	merged.Subcategories = unionStrings(e.Subcategories, other.Subcategories)
	merged.Tags = unionStrings(e.Tags, other.Tags)
	merged.Images = unionStrings(e.Images, other.Images)

	if len(other.Description) > len(merged.Description) {
		merged.Description = other.Description
	}
	if merged.Price == "" {
		merged.Price = other.Price
	}
	if merged.PriceMin == nil && other.PriceMin != nil {
		v := *other.PriceMin
		merged.PriceMin = &v
	}
	if merged.PriceMax == nil && other.PriceMax != nil {
		v := *other.PriceMax
		merged.PriceMax = &v
	}
	if merged.TicketURL == "" {
		merged.TicketURL = other.TicketURL
	}
	if merged.ImageURL == "" {
		merged.ImageURL = other.ImageURL
	}
	if merged.SourceURL == "" {
		merged.SourceURL = other.SourceURL
	}
	if merged.Category == "" {
		merged.Category = other.Category
	}
	if merged.EndTime == nil && other.EndTime != nil {
		t := *other.EndTime
		merged.EndTime = &t
	}
	merged.IsVerified = merged.IsVerified || other.IsVerified
	merged.Venue = mergeVenue(e.Venue, other.Venue)
	return merged
}

func mergeVenue(primary, other Venue) Venue {
	v := primary
	if v.Address == "" {
		v.Address = other.Address
	}
	if v.ZipCode == "" {
		v.ZipCode = other.ZipCode
	}
	if v.Handle == "" {
		v.Handle = other.Handle
	}
	if v.Website == "" {
		v.Website = other.Website
	}
	if v.Latitude == nil && v.Longitude == nil && other.Latitude != nil && other.Longitude != nil {
		lat, lon := *other.Latitude, *other.Longitude
		v.Latitude, v.Longitude = &lat, &lon
	}
	if v.VenueType == "" {
		v.VenueType = other.VenueType
	}
	return v
}

// unionStrings keeps the order of first appearance and drops exact repeats.
func unionStrings(a, b []string) []string {
	if len(a) == 0 && len(b) == 0 {
		return nil
	}
	seen := make(map[string]struct{}, len(a)+len(b))
	out := make([]string, 0, len(a)+len(b))
	for _, list := range [][]string{a, b} {
		for _, s := range list {
			if _, ok := seen[s]; ok {
				continue
			}
			seen[s] = struct{}{}
			out = append(out, s)
		}
	}
	return out
}
