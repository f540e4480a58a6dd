// Localevents - Multi-Source Event Ingestion and Deduplication
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/localevents

package resilience

import (
	"context"
	"math"
	"math/rand/v2"
	"slices"
	"time"

	"github.com/tomtom215/localevents/internal/logging"
	"github.com/tomtom215/localevents/internal/metrics"
)

// RetryPolicy configures bounded retries with exponential backoff.
//
// The delay before retry n (0-based) is min(BaseDelay * ExponentialBase^n,
// MaxDelay), multiplied by a uniform factor in [0.5, 1.5) when Jitter is set.
type RetryPolicy struct {
	// MaxAttempts counts the initial attempt. Values below 1 mean one attempt.
	MaxAttempts int

	BaseDelay       time.Duration
	MaxDelay        time.Duration
	ExponentialBase float64
	Jitter          bool

	// RetryOn lists the kinds that are retried. Nil means transient only.
	RetryOn []Kind

	// Sleep waits for d or until ctx is done. Nil uses a timer.
	Sleep func(ctx context.Context, d time.Duration) error

	// Rand returns a float in [0, 1). Nil uses math/rand/v2.
	Rand func() float64
}

// DefaultRetryPolicy returns three attempts starting at one second.
func DefaultRetryPolicy() RetryPolicy {
	return RetryPolicy{
		MaxAttempts:     3,
		BaseDelay:       time.Second,
		MaxDelay:        60 * time.Second,
		ExponentialBase: 2,
		Jitter:          true,
	}
}

// ShouldRetry reports whether err's kind is on the allow-list.
func (p *RetryPolicy) ShouldRetry(err error) bool {
	if err == nil {
		return false
	}
	kinds := p.RetryOn
	if kinds == nil {
		kinds = []Kind{KindTransient}
	}
	return slices.Contains(kinds, KindOf(err))
}

// Delay returns the wait before retry number attempt (0-based).
func (p *RetryPolicy) Delay(attempt int) time.Duration {
	base := p.ExponentialBase
	if base < 1 {
		base = 1
	}
	d := float64(p.BaseDelay) * math.Pow(base, float64(attempt))
	if p.MaxDelay > 0 && d > float64(p.MaxDelay) {
		d = float64(p.MaxDelay)
	}
	if p.Jitter {
		r := p.Rand
		if r == nil {
			r = rand.Float64
		}
		d *= 0.5 + r()
	}
	if d > math.MaxInt64 {
		return time.Duration(math.MaxInt64)
	}
	return time.Duration(d)
}

func (p *RetryPolicy) sleep(ctx context.Context, d time.Duration) error {
	if p.Sleep != nil {
		return p.Sleep(ctx, d)
	}
	return SleepContext(ctx, d)
}

// SleepContext waits for d, returning ctx.Err() if ctx finishes first.
func SleepContext(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-t.C:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Retry runs op until it succeeds, returns a non-retryable error, or uses up
// MaxAttempts. The last error is returned unchanged. Cancellation of ctx
// aborts a pending backoff and returns ctx.Err().
func Retry[T any](ctx context.Context, p RetryPolicy, operation string, op func(context.Context) (T, error)) (T, error) {
	var zero T
	attempts := max(p.MaxAttempts, 1)

	var lastErr error
	for attempt := 0; attempt < attempts; attempt++ {
		if err := ctx.Err(); err != nil {
			return zero, err
		}

		result, err := op(ctx)
		if err == nil {
			return result, nil
		}
		lastErr = err

		if !p.ShouldRetry(err) {
			return zero, err
		}
		if attempt == attempts-1 {
			break
		}

		delay := p.Delay(attempt)
		metrics.RetryAttempts.WithLabelValues(operation).Inc()
		logging.Ctx(ctx).Warn().Err(err).Str("operation", operation).
			Int("attempt", attempt+1).Int("max_attempts", attempts).
			Dur("delay", delay).Msg("retry_attempt")

		if err := p.sleep(ctx, delay); err != nil {
			return zero, err
		}
	}

	metrics.RetryExhausted.WithLabelValues(operation).Inc()
	logging.Ctx(ctx).Error().Err(lastErr).Str("operation", operation).
		Int("attempts", attempts).Msg("retry_exhausted")
	return zero, lastErr
}
