// Localevents - Multi-Source Event Ingestion and Deduplication
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/localevents

package resilience

import (
	"context"
	"errors"
	"fmt"
	"net"

	gobreaker "github.com/sony/gobreaker/v2"
)

// Kind classifies a failure for retry and breaker decisions.
type Kind int

const (
	KindUnknown     Kind = iota
	KindTransient        // network, timeout, rate limit
	KindPermanent        // will not succeed on retry
	KindCircuitOpen      // rejected by an open breaker without running
	KindSSRF             // refused by the URL guard before any network call
	KindMalformed        // candidate failed shape validation
	KindConfig           // invalid configuration
)

// String returns the snake_case name used in logs and metrics.
func (k Kind) String() string {
	switch k {
	case KindTransient:
		return "transient"
	case KindPermanent:
		return "permanent"
	case KindCircuitOpen:
		return "circuit_open"
	case KindSSRF:
		return "ssrf"
	case KindMalformed:
		return "malformed"
	case KindConfig:
		return "config"
	default:
		return "unknown"
	}
}

// Kinded is implemented by errors that carry their own Kind.
type Kinded interface {
	Kind() Kind
}

// kindError tags an arbitrary error with a Kind.
type kindError struct {
	err  error
	kind Kind
}

func (e *kindError) Error() string { return e.err.Error() }
func (e *kindError) Unwrap() error { return e.err }
func (e *kindError) Kind() Kind    { return e.kind }

// Transient marks err as worth retrying. Returns nil for a nil err.
func Transient(err error) error {
	if err == nil {
		return nil
	}
	return &kindError{err: err, kind: KindTransient}
}

// Permanent marks err as not worth retrying. Returns nil for a nil err.
func Permanent(err error) error {
	if err == nil {
		return nil
	}
	return &kindError{err: err, kind: KindPermanent}
}

// KindOf reports the Kind of the first tagged error in err's chain, falling
// back to context and net.Error checks.
func KindOf(err error) Kind {
	if err == nil {
		return KindUnknown
	}

	var k Kinded
	if errors.As(err, &k) {
		return k.Kind()
	}

	switch {
	case errors.Is(err, gobreaker.ErrOpenState), errors.Is(err, gobreaker.ErrTooManyRequests):
		return KindCircuitOpen
	case errors.Is(err, context.Canceled):
		return KindPermanent
	case errors.Is(err, context.DeadlineExceeded):
		return KindTransient
	}

	var netErr net.Error
	if errors.As(err, &netErr) && netErr.Timeout() {
		return KindTransient
	}
	return KindUnknown
}

// IsRetryable reports whether err is transient.
func IsRetryable(err error) bool {
	return KindOf(err) == KindTransient
}

// CircuitOpenError is returned when a breaker rejects a call without
// invoking the operation.
type CircuitOpenError struct {
	Name  string
	cause error
}

func (e *CircuitOpenError) Error() string {
	return fmt.Sprintf("circuit breaker %q is open", e.Name)
}

// Unwrap exposes the underlying gobreaker sentinel.
func (e *CircuitOpenError) Unwrap() error { return e.cause }

// Kind implements Kinded.
func (e *CircuitOpenError) Kind() Kind { return KindCircuitOpen }

// IsCircuitOpen reports whether err came from an open breaker.
func IsCircuitOpen(err error) bool {
	var coe *CircuitOpenError
	return errors.As(err, &coe)
}
