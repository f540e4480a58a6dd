// Localevents - Multi-Source Event Ingestion and Deduplication
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/localevents

package resilience

import (
	"sort"
	"sync"
	"time"

	"github.com/tomtom215/localevents/internal/logging"
	"github.com/tomtom215/localevents/internal/metrics"
)

// SourceHealth is the recorded state of one source.
type SourceHealth struct {
	Healthy             bool      `json:"healthy"`
	LastCheck           time.Time `json:"last_check"`
	EventCount          int       `json:"event_count"`
	ConsecutiveFailures int       `json:"consecutive_failures"`
	LastError           string    `json:"last_error,omitempty"`
}

// HealthSummary counts tracked sources.
type HealthSummary struct {
	Healthy   int `json:"healthy"`
	Unhealthy int `json:"unhealthy"`
	Total     int `json:"total"`
}

// HealthReport is the snapshot published to observability surfaces.
type HealthReport struct {
	Timestamp time.Time               `json:"timestamp"`
	Summary   HealthSummary           `json:"summary"`
	Sources   map[string]SourceHealth `json:"sources"`
}

// HealthMonitor tracks per-source fetch outcomes. Sources that were never
// recorded count as healthy.
type HealthMonitor struct {
	mu     sync.RWMutex
	status map[string]SourceHealth
	now    func() time.Time
}

// NewHealthMonitor creates an empty monitor.
func NewHealthMonitor() *HealthMonitor {
	return &HealthMonitor{
		status: make(map[string]SourceHealth),
		now:    time.Now,
	}
}

// RecordSuccess marks source healthy and stores the event count.
func (m *HealthMonitor) RecordSuccess(source string, eventCount int) {
	m.mu.Lock()
	m.status[source] = SourceHealth{
		Healthy:    true,
		LastCheck:  m.now(),
		EventCount: eventCount,
	}
	m.mu.Unlock()

	metrics.SetSourceHealth(source, true)
	logging.Debug().Str("source", source).Int("event_count", eventCount).Msg("source_healthy")
}

// RecordFailure marks source unhealthy and bumps its consecutive failures.
func (m *HealthMonitor) RecordFailure(source string, err error) {
	msg := ""
	if err != nil {
		msg = err.Error()
	}

	m.mu.Lock()
	consecutive := m.status[source].ConsecutiveFailures + 1
	m.status[source] = SourceHealth{
		Healthy:             false,
		LastCheck:           m.now(),
		ConsecutiveFailures: consecutive,
		LastError:           msg,
	}
	m.mu.Unlock()

	metrics.SetSourceHealth(source, false)
	logging.Warn().Str("source", source).Int("consecutive_failures", consecutive).
		Str("error", msg).Msg("source_unhealthy")
}

// IsHealthy reports the last recorded outcome, true for unknown sources.
func (m *HealthMonitor) IsHealthy(source string) bool {
	m.mu.RLock()
	defer m.mu.RUnlock()
	st, ok := m.status[source]
	return !ok || st.Healthy
}

// SourceStatus returns the detail for source and whether it is tracked.
func (m *HealthMonitor) SourceStatus(source string) (SourceHealth, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	st, ok := m.status[source]
	return st, ok
}

// Status returns a full snapshot.
func (m *HealthMonitor) Status() HealthReport {
	m.mu.RLock()
	defer m.mu.RUnlock()

	report := HealthReport{
		Timestamp: m.now(),
		Sources:   make(map[string]SourceHealth, len(m.status)),
	}
	for name, st := range m.status {
		report.Sources[name] = st
		if st.Healthy {
			report.Summary.Healthy++
		}
	}
	report.Summary.Total = len(m.status)
	report.Summary.Unhealthy = report.Summary.Total - report.Summary.Healthy
	return report
}

// HealthySources returns tracked healthy sources sorted by name.
func (m *HealthMonitor) HealthySources() []string {
	return m.filter(true)
}

// UnhealthySources returns tracked unhealthy sources sorted by name.
func (m *HealthMonitor) UnhealthySources() []string {
	return m.filter(false)
}

func (m *HealthMonitor) filter(healthy bool) []string {
	m.mu.RLock()
	defer m.mu.RUnlock()

	out := make([]string, 0, len(m.status))
	for name, st := range m.status {
		if st.Healthy == healthy {
			out = append(out, name)
		}
	}
	sort.Strings(out)
	return out
}

// Reset forgets source.
func (m *HealthMonitor) Reset(source string) {
	m.mu.Lock()
	delete(m.status, source)
	m.mu.Unlock()
}

// ResetAll forgets every source.
func (m *HealthMonitor) ResetAll() {
	m.mu.Lock()
	clear(m.status)
	m.mu.Unlock()
}
