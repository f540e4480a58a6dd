// Localevents - Multi-Source Event Ingestion and Deduplication
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/localevents

package resilience

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	gobreaker "github.com/sony/gobreaker/v2"

	"github.com/tomtom215/localevents/internal/logging"
	"github.com/tomtom215/localevents/internal/metrics"
)

// State is the externally visible breaker state.
type State string

const (
	StateClosed   State = "closed"
	StateOpen     State = "open"
	StateHalfOpen State = "half-open"
)

// BreakerConfig configures one per-source breaker.
type BreakerConfig struct {
	// Name identifies the circuit in errors, logs and metrics.
	Name string

	// FailureThreshold is the number of consecutive failures that opens the
	// circuit. Values below 1 fall back to 5.
	FailureThreshold int

	// RecoveryTimeout is how long the circuit stays open before letting a
	// trial call through. Zero means the next call after opening is a trial.
	RecoveryTimeout time.Duration

	// HalfOpenSuccesses is the number of consecutive trial successes needed
	// to close again. Values below 1 fall back to 2.
	HalfOpenSuccesses int
}

// DefaultBreakerConfig returns the production defaults for name.
func DefaultBreakerConfig(name string) BreakerConfig {
	return BreakerConfig{
		Name:              name,
		FailureThreshold:  5,
		RecoveryTimeout:   60 * time.Second,
		HalfOpenSuccesses: 2,
	}
}

// CircuitBreaker wraps gobreaker with a manual reset, a status snapshot and
// the project's logging and metrics.
//
// A success while closed clears the failure count. While open, calls fail
// with *CircuitOpenError without running. A failing trial call reopens the
// circuit and restarts the recovery timer.
type CircuitBreaker struct {
	cfg BreakerConfig

	mu           sync.RWMutex
	cb           *gobreaker.CircuitBreaker[any]
	failureCount int
	lastFailure  time.Time
}

// NewCircuitBreaker creates a closed breaker.
func NewCircuitBreaker(cfg BreakerConfig) *CircuitBreaker {
	if cfg.FailureThreshold < 1 {
		cfg.FailureThreshold = 5
	}
	if cfg.HalfOpenSuccesses < 1 {
		cfg.HalfOpenSuccesses = 2
	}
	if cfg.RecoveryTimeout < 0 {
		cfg.RecoveryTimeout = 0
	}

	b := &CircuitBreaker{cfg: cfg}
	b.cb = b.newInner()

	metrics.CircuitBreakerState.WithLabelValues(cfg.Name).Set(0)
	metrics.CircuitBreakerConsecutiveFailures.WithLabelValues(cfg.Name).Set(0)
	return b
}

func (b *CircuitBreaker) newInner() *gobreaker.CircuitBreaker[any] {
	// gobreaker treats a zero Timeout as "use the 60s default".
	timeout := b.cfg.RecoveryTimeout
	if timeout <= 0 {
		timeout = time.Nanosecond
	}
	threshold := uint32(b.cfg.FailureThreshold) //nolint:gosec // bounded by config validation

	return gobreaker.NewCircuitBreaker[any](gobreaker.Settings{
		Name:        b.cfg.Name,
		MaxRequests: uint32(b.cfg.HalfOpenSuccesses), //nolint:gosec // bounded by config validation
		Timeout:     timeout,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures >= threshold
		},
		IsExcluded:    isBreakerNeutral,
		OnStateChange: b.onStateChange,
	})
}

// isBreakerNeutral reports errors that count as neither success nor failure:
// guard rejections and caller cancellation.
func isBreakerNeutral(err error) bool {
	if err == nil {
		return false
	}
	return KindOf(err) == KindSSRF || errors.Is(err, context.Canceled)
}

func (b *CircuitBreaker) onStateChange(name string, from, to gobreaker.State) {
	fromState, toState := fromGobreaker(from), fromGobreaker(to)

	metrics.CircuitBreakerState.WithLabelValues(name).Set(stateToFloat(toState))
	metrics.CircuitBreakerTransitions.WithLabelValues(name, string(fromState), string(toState)).Inc()

	switch toState {
	case StateOpen:
		logging.Warn().Str("circuit", name).Str("from", string(fromState)).
			Int("failure_threshold", b.cfg.FailureThreshold).
			Dur("recovery_timeout", b.cfg.RecoveryTimeout).Msg("circuit_opened")
	case StateHalfOpen:
		logging.Info().Str("circuit", name).Msg("circuit_half_open")
	case StateClosed:
		metrics.CircuitBreakerConsecutiveFailures.WithLabelValues(name).Set(0)
		logging.Info().Str("circuit", name).Str("from", string(fromState)).Msg("circuit_closed")
	}
}

// Name returns the circuit name.
func (b *CircuitBreaker) Name() string {
	return b.cfg.Name
}

// Call runs op through the breaker.
func (b *CircuitBreaker) Call(op func() error) error {
	_, err := Execute(b, func() (struct{}, error) {
		return struct{}{}, op()
	})
	return err
}

// Execute runs op through b and returns its typed result.
func Execute[T any](b *CircuitBreaker, op func() (T, error)) (T, error) {
	var zero T

	b.mu.RLock()
	inner := b.cb
	b.mu.RUnlock()

	result, err := inner.Execute(func() (any, error) {
		return op()
	})

	if err != nil {
		if errors.Is(err, gobreaker.ErrOpenState) || errors.Is(err, gobreaker.ErrTooManyRequests) {
			metrics.CircuitBreakerRequests.WithLabelValues(b.cfg.Name, "rejected").Inc()
			logging.Debug().Str("circuit", b.cfg.Name).Msg("Call rejected by open circuit")
			return zero, &CircuitOpenError{Name: b.cfg.Name, cause: err}
		}
		if isBreakerNeutral(err) {
			return zero, err
		}
		b.recordFailure(inner)
		return zero, err
	}

	b.recordSuccess(inner)
	typed, ok := result.(T)
	if !ok && result != nil {
		return zero, fmt.Errorf("circuit breaker %q: unexpected result type %T", b.cfg.Name, result)
	}
	return typed, nil
}

func (b *CircuitBreaker) recordFailure(inner *gobreaker.CircuitBreaker[any]) {
	metrics.CircuitBreakerRequests.WithLabelValues(b.cfg.Name, "failure").Inc()

	b.mu.Lock()
	if inner == b.cb {
		b.failureCount++
		b.lastFailure = time.Now()
	}
	count := b.failureCount
	b.mu.Unlock()

	metrics.CircuitBreakerConsecutiveFailures.WithLabelValues(b.cfg.Name).Set(float64(count))
}

func (b *CircuitBreaker) recordSuccess(inner *gobreaker.CircuitBreaker[any]) {
	metrics.CircuitBreakerRequests.WithLabelValues(b.cfg.Name, "success").Inc()

	if fromGobreaker(inner.State()) != StateClosed {
		return
	}
	b.mu.Lock()
	if inner == b.cb {
		b.failureCount = 0
	}
	b.mu.Unlock()
	metrics.CircuitBreakerConsecutiveFailures.WithLabelValues(b.cfg.Name).Set(0)
}

// State returns the current state, taking the recovery timeout into account.
func (b *CircuitBreaker) State() State {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return fromGobreaker(b.cb.State())
}

// IsOpen reports whether calls are currently rejected.
func (b *CircuitBreaker) IsOpen() bool { return b.State() == StateOpen }

// IsClosed reports whether the breaker is in normal operation.
func (b *CircuitBreaker) IsClosed() bool { return b.State() == StateClosed }

// Reset forces the breaker closed with zero failures and no last-failure
// time. Intended for operator intervention.
func (b *CircuitBreaker) Reset() {
	b.mu.Lock()
	prev := fromGobreaker(b.cb.State())
	b.cb = b.newInner()
	b.failureCount = 0
	b.lastFailure = time.Time{}
	b.mu.Unlock()

	metrics.CircuitBreakerState.WithLabelValues(b.cfg.Name).Set(0)
	metrics.CircuitBreakerConsecutiveFailures.WithLabelValues(b.cfg.Name).Set(0)
	if prev != StateClosed {
		metrics.CircuitBreakerTransitions.WithLabelValues(b.cfg.Name, string(prev), string(StateClosed)).Inc()
	}
	logging.Info().Str("circuit", b.cfg.Name).Str("from", string(prev)).Msg("circuit_reset")
}

// BreakerStatus is a point-in-time view of one breaker.
type BreakerStatus struct {
	Name             string     `json:"name"`
	State            State      `json:"state"`
	FailureCount     int        `json:"failure_count"`
	FailureThreshold int        `json:"failure_threshold"`
	RecoveryTimeout  float64    `json:"recovery_timeout_seconds"`
	LastFailure      *time.Time `json:"last_failure,omitempty"`
}

// Status returns a snapshot of the breaker.
func (b *CircuitBreaker) Status() BreakerStatus {
	b.mu.RLock()
	defer b.mu.RUnlock()

	st := BreakerStatus{
		Name:             b.cfg.Name,
		State:            fromGobreaker(b.cb.State()),
		FailureCount:     b.failureCount,
		FailureThreshold: b.cfg.FailureThreshold,
		RecoveryTimeout:  b.cfg.RecoveryTimeout.Seconds(),
	}
	if !b.lastFailure.IsZero() {
		t := b.lastFailure
		st.LastFailure = &t
	}
	return st
}

func fromGobreaker(s gobreaker.State) State {
	switch s {
	case gobreaker.StateOpen:
		return StateOpen
	case gobreaker.StateHalfOpen:
		return StateHalfOpen
	default:
		return StateClosed
	}
}

// stateToFloat converts a state to the gauge encoding.
func stateToFloat(s State) float64 {
	switch s {
	case StateHalfOpen:
		return 1
	case StateOpen:
		return 2
	default:
		return 0
	}
}
