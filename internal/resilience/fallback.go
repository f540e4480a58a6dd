// Localevents - Multi-Source Event Ingestion and Deduplication
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/localevents

package resilience

import (
	"context"
	"errors"

	"github.com/tomtom215/localevents/internal/logging"
	"github.com/tomtom215/localevents/internal/metrics"
)

// ErrNoFallbacks is returned by an empty chain.
var ErrNoFallbacks = errors.New("fallback chain has no operations")

// Op is one named alternative in a fallback chain.
type Op[T any] struct {
	Name string
	Run  func(context.Context) (T, error)
}

// FallbackChain tries its operations in order and returns the first success.
type FallbackChain[T any] struct {
	name string
	ops  []Op[T]
}

// NewFallbackChain builds a chain. The name labels logs and metrics.
func NewFallbackChain[T any](name string, ops ...Op[T]) *FallbackChain[T] {
	return &FallbackChain[T]{name: name, ops: ops}
}

// Len returns the number of operations.
func (c *FallbackChain[T]) Len() int { return len(c.ops) }

// Execute returns the first successful result. When every operation fails
// the last error is returned; earlier ones are logged. A cancelled ctx stops
// the chain.
func (c *FallbackChain[T]) Execute(ctx context.Context) (T, error) {
	var zero T
	if len(c.ops) == 0 {
		return zero, ErrNoFallbacks
	}

	var lastErr error
	for i, op := range c.ops {
		if err := ctx.Err(); err != nil {
			return zero, err
		}

		result, err := op.Run(ctx)
		if err == nil {
			if i > 0 {
				metrics.FallbackUsed.WithLabelValues(c.name).Inc()
				logging.Ctx(ctx).Info().Str("chain", c.name).Str("operation", op.Name).
					Int("position", i).Msg("fallback_used")
			}
			return result, nil
		}

		lastErr = err
		logging.Ctx(ctx).Warn().Err(err).Str("chain", c.name).Str("operation", op.Name).
			Int("position", i).Int("remaining", len(c.ops)-i-1).Msg("fallback_attempt_failed")
	}

	logging.Ctx(ctx).Error().Err(lastErr).Str("chain", c.name).
		Int("attempts", len(c.ops)).Msg("fallback_chain_exhausted")
	return zero, lastErr
}

// WithFallback runs primary, then fallback if primary fails.
func WithFallback[T any](ctx context.Context, name string, primary, fallback func(context.Context) (T, error)) (T, error) {
	return NewFallbackChain(name,
		Op[T]{Name: "primary", Run: primary},
		Op[T]{Name: "fallback", Run: fallback},
	).Execute(ctx)
}

// WithDefault runs op and returns def instead of any error.
func WithDefault[T any](ctx context.Context, name string, op func(context.Context) (T, error), def T) T {
	result, err := op(ctx)
	if err != nil {
		logging.Ctx(ctx).Warn().Err(err).Str("operation", name).Msg("using_default_value")
		return def
	}
	return result
}
