// Localevents - Multi-Source Event Ingestion and Deduplication
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/localevents

package resilience

import (
	"errors"
	"reflect"
	"testing"
	"time"
)

func fixedMonitor() *HealthMonitor {
	m := NewHealthMonitor()
	at := time.Date(2025, 1, 17, 12, 0, 0, 0, time.UTC)
	m.now = func() time.Time { return at }
	return m
}

func TestHealthMonitor_UnknownIsHealthy(t *testing.T) {
	t.Parallel()

	m := fixedMonitor()
	if !m.IsHealthy("never-seen") {
		t.Error("unknown source should be healthy")
	}
	if _, ok := m.SourceStatus("never-seen"); ok {
		t.Error("unknown source should not be tracked")
	}
	if st := m.Status(); st.Summary.Total != 0 {
		t.Errorf("summary = %+v, want empty", st.Summary)
	}
}

func TestHealthMonitor_RecordFailureThenSuccess(t *testing.T) {
	t.Parallel()

	m := fixedMonitor()
	m.RecordFailure("serpapi", errors.New("timeout"))
	m.RecordFailure("serpapi", errors.New("rate limited"))

	st, ok := m.SourceStatus("serpapi")
	if !ok {
		t.Fatal("serpapi should be tracked")
	}
	if st.Healthy || st.ConsecutiveFailures != 2 || st.LastError != "rate limited" {
		t.Errorf("status = %+v", st)
	}
	if m.IsHealthy("serpapi") {
		t.Error("serpapi should be unhealthy")
	}

	m.RecordSuccess("serpapi", 12)
	st, _ = m.SourceStatus("serpapi")
	if !st.Healthy || st.ConsecutiveFailures != 0 || st.EventCount != 12 || st.LastError != "" {
		t.Errorf("status after success = %+v", st)
	}
}

func TestHealthMonitor_StatusAndLists(t *testing.T) {
	t.Parallel()

	m := fixedMonitor()
	m.RecordSuccess("web", 3)
	m.RecordSuccess("instagram", 1)
	m.RecordFailure("predicthq", errors.New("401"))

	report := m.Status()
	want := HealthSummary{Healthy: 2, Unhealthy: 1, Total: 3}
	if report.Summary != want {
		t.Errorf("summary = %+v, want %+v", report.Summary, want)
	}
	if len(report.Sources) != 3 {
		t.Errorf("sources = %d, want 3", len(report.Sources))
	}
	if !report.Timestamp.Equal(time.Date(2025, 1, 17, 12, 0, 0, 0, time.UTC)) {
		t.Errorf("timestamp = %v", report.Timestamp)
	}
	if got := m.HealthySources(); !reflect.DeepEqual(got, []string{"instagram", "web"}) {
		t.Errorf("HealthySources = %v", got)
	}
	if got := m.UnhealthySources(); !reflect.DeepEqual(got, []string{"predicthq"}) {
		t.Errorf("UnhealthySources = %v", got)
	}
}

func TestHealthMonitor_Reset(t *testing.T) {
	t.Parallel()

	m := fixedMonitor()
	m.RecordFailure("a", errors.New("x"))
	m.RecordFailure("b", errors.New("y"))

	m.Reset("a")
	if !m.IsHealthy("a") {
		t.Error("reset source should be unknown, hence healthy")
	}
	if m.IsHealthy("b") {
		t.Error("b should still be unhealthy")
	}

	m.ResetAll()
	if st := m.Status(); st.Summary.Total != 0 {
		t.Errorf("summary after ResetAll = %+v", st.Summary)
	}
}
