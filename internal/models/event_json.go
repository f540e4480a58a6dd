// Localevents - Multi-Source Event Ingestion and Deduplication
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/localevents

package models

import (
	"fmt"
	"time"

	"github.com/goccy/go-json"
)

// naiveTimeLayouts are ISO forms without a zone offset. They are read in the
// location passed to ParseEventTime.
var naiveTimeLayouts = []string{
	"2006-01-02T15:04:05.999999999",
	"2006-01-02T15:04",
	"2006-01-02 15:04:05",
}

// ParseEventTime parses an RFC 3339 time, or a timezone-naive ISO time taken
// as local time in loc.
func ParseEventTime(s string, loc *time.Location) (time.Time, error) {
	if t, err := time.Parse(time.RFC3339Nano, s); err == nil {
		return t, nil
	}
	for _, layout := range naiveTimeLayouts {
		if t, err := time.ParseInLocation(layout, s, loc); err == nil {
			return t, nil
		}
	}
	return time.Time{}, fmt.Errorf("unrecognized time %q", s)
}

// UnmarshalJSON decodes an Event, accepting timezone-naive start_time and
// end_time values as local time.
func (e *Event) UnmarshalJSON(data []byte) error {
	type Plain Event
	aux := struct {
		*Plain
		StartTime *string `json:"start_time"`
		EndTime   *string `json:"end_time"`
	}{Plain: (*Plain)(e)}
	if err := json.Unmarshal(data, &aux); err != nil {
		return err
	}

	e.StartTime = time.Time{}
	if aux.StartTime != nil && *aux.StartTime != "" {
		t, err := ParseEventTime(*aux.StartTime, time.Local)
		if err != nil {
			return fmt.Errorf("start_time: %w", err)
		}
		e.StartTime = t
	}

	e.EndTime = nil
	if aux.EndTime != nil && *aux.EndTime != "" {
		t, err := ParseEventTime(*aux.EndTime, time.Local)
		if err != nil {
			return fmt.Errorf("end_time: %w", err)
		}
		e.EndTime = &t
	}
	return nil
}
