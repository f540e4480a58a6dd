// Localevents - Multi-Source Event Ingestion and Deduplication
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/localevents

package resilience

import (
	"context"
	"errors"
	"testing"
	"time"
)

// recordingSleeper captures requested delays without waiting.
type recordingSleeper struct {
	delays []time.Duration
}

func (r *recordingSleeper) sleep(ctx context.Context, d time.Duration) error {
	r.delays = append(r.delays, d)
	return ctx.Err()
}

func testPolicy(s *recordingSleeper) RetryPolicy {
	p := DefaultRetryPolicy()
	p.Jitter = false
	p.Sleep = s.sleep
	return p
}

func TestRetry_SucceedsOnThirdAttempt(t *testing.T) {
	t.Parallel()

	s := &recordingSleeper{}
	calls := 0
	got, err := Retry(context.Background(), testPolicy(s), "third", func(context.Context) (string, error) {
		calls++
		if calls < 3 {
			return "", Transient(errors.New("timeout"))
		}
		return "ok", nil
	})
	if err != nil {
		t.Fatalf("Retry: %v", err)
	}
	if got != "ok" {
		t.Errorf("result = %q, want ok", got)
	}
	if calls != 3 {
		t.Errorf("calls = %d, want 3", calls)
	}
	if len(s.delays) != 2 {
		t.Fatalf("retries = %d, want exactly 2", len(s.delays))
	}
	if s.delays[0] != time.Second || s.delays[1] != 2*time.Second {
		t.Errorf("delays = %v, want [1s 2s]", s.delays)
	}
}

func TestRetry_ExhaustedReturnsLastErrorWithoutFinalSleep(t *testing.T) {
	t.Parallel()

	s := &recordingSleeper{}
	var last error
	calls := 0
	_, err := Retry(context.Background(), testPolicy(s), "exhaust", func(context.Context) (int, error) {
		calls++
		last = Transient(errors.New("attempt failed"))
		return 0, last
	})
	if err != last {
		t.Errorf("err = %v, want the last error unchanged", err)
	}
	if calls != 3 {
		t.Errorf("calls = %d, want 3", calls)
	}
	if len(s.delays) != 2 {
		t.Errorf("sleeps = %d, want 2 (none after the final attempt)", len(s.delays))
	}
}

func TestRetry_NonRetryablePropagatesImmediately(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name string
		err  error
	}{
		{"permanent", Permanent(errors.New("404"))},
		{"unknown", errors.New("plain error")},
		{"ssrf", ssrfErr{}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			s := &recordingSleeper{}
			calls := 0
			_, err := Retry(context.Background(), testPolicy(s), tt.name, func(context.Context) (int, error) {
				calls++
				return 0, tt.err
			})
			if !errors.Is(err, tt.err) {
				t.Errorf("err = %v, want %v", err, tt.err)
			}
			if calls != 1 || len(s.delays) != 0 {
				t.Errorf("calls = %d sleeps = %d, want 1 and 0", calls, len(s.delays))
			}
		})
	}
}

func TestRetry_CustomAllowList(t *testing.T) {
	t.Parallel()

	s := &recordingSleeper{}
	p := testPolicy(s)
	p.RetryOn = []Kind{KindUnknown}

	calls := 0
	_, _ = Retry(context.Background(), p, "custom", func(context.Context) (int, error) {
		calls++
		return 0, errors.New("plain error")
	})
	if calls != 3 {
		t.Errorf("calls = %d, want 3 when unknown errors are allowed", calls)
	}
}

func TestRetry_CancellationAbortsBackoff(t *testing.T) {
	t.Parallel()

	ctx, cancel := context.WithCancel(context.Background())
	p := DefaultRetryPolicy()
	p.BaseDelay = time.Hour
	p.Jitter = false

	calls := 0
	done := make(chan error, 1)
	go func() {
		_, err := Retry(ctx, p, "cancel", func(context.Context) (int, error) {
			calls++
			return 0, Transient(errors.New("timeout"))
		})
		done <- err
	}()

	time.Sleep(10 * time.Millisecond)
	cancel()

	select {
	case err := <-done:
		if !errors.Is(err, context.Canceled) {
			t.Errorf("err = %v, want context.Canceled", err)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("Retry did not return after cancellation")
	}
	if calls != 1 {
		t.Errorf("calls = %d, want 1", calls)
	}
}

func TestRetryPolicy_Delay(t *testing.T) {
	t.Parallel()

	p := RetryPolicy{BaseDelay: time.Second, MaxDelay: 5 * time.Second, ExponentialBase: 2}
	tests := []struct {
		attempt int
		want    time.Duration
	}{
		{0, time.Second},
		{1, 2 * time.Second},
		{2, 4 * time.Second},
		{3, 5 * time.Second},
		{10, 5 * time.Second},
	}
	for _, tt := range tests {
		if got := p.Delay(tt.attempt); got != tt.want {
			t.Errorf("Delay(%d) = %v, want %v", tt.attempt, got, tt.want)
		}
	}

	p.Jitter = true
	p.Rand = func() float64 { return 0 }
	if got := p.Delay(0); got != 500*time.Millisecond {
		t.Errorf("jittered Delay(0) with r=0 = %v, want 500ms", got)
	}
	p.Rand = func() float64 { return 0.999 }
	if got := p.Delay(0); got <= time.Second || got >= 1500*time.Millisecond {
		t.Errorf("jittered Delay(0) with r=0.999 = %v, want within (1s, 1.5s)", got)
	}
}

func TestKindOf(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name string
		err  error
		want Kind
	}{
		{"nil", nil, KindUnknown},
		{"plain", errors.New("x"), KindUnknown},
		{"transient", Transient(errors.New("x")), KindTransient},
		{"permanent", Permanent(errors.New("x")), KindPermanent},
		{"deadline", context.DeadlineExceeded, KindTransient},
		{"canceled", context.Canceled, KindPermanent},
		{"circuit", &CircuitOpenError{Name: "x"}, KindCircuitOpen},
		{"ssrf", ssrfErr{}, KindSSRF},
	}
	for _, tt := range tests {
		if got := KindOf(tt.err); got != tt.want {
			t.Errorf("%s: KindOf = %s, want %s", tt.name, got, tt.want)
		}
	}
	if Transient(nil) != nil || Permanent(nil) != nil {
		t.Error("wrapping nil should return nil")
	}
}
