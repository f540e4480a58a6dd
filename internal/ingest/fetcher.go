// Localevents - Multi-Source Event Ingestion and Deduplication
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/localevents

package ingest

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"time"

	"golang.org/x/time/rate"

	"github.com/tomtom215/localevents/internal/resilience"
	"github.com/tomtom215/localevents/internal/urlguard"
)

const (
	maxRedirects = 10

	// maxErrorBodySize bounds how much of a failed response is kept for the error.
	maxErrorBodySize = 1024
)

// FetcherConfig configures a Fetcher.
type FetcherConfig struct {
	Timeout time.Duration

	// RequestsPerSecond paces every request made through the fetcher.
	RequestsPerSecond float64
	Burst             int

	MaxBodyBytes int64
	UserAgent    string

	// Transport replaces the guarded transport. Tests only.
	Transport http.RoundTripper
}

// DefaultFetcherConfig returns a 30s timeout, one request per second and a
// 10 MiB body cap.
func DefaultFetcherConfig() FetcherConfig {
	return FetcherConfig{
		Timeout:           30 * time.Second,
		RequestsPerSecond: 1,
		Burst:             1,
		MaxBodyBytes:      10 << 20,
		UserAgent:         "localevents/1.0",
	}
}

// HTTPStatusError is a non-2xx response.
type HTTPStatusError struct {
	URL        string
	StatusCode int
	Body       string
}

func (e *HTTPStatusError) Error() string {
	if e.Body == "" {
		return fmt.Sprintf("GET %s: HTTP %d", e.URL, e.StatusCode)
	}
	return fmt.Sprintf("GET %s: HTTP %d: %s", e.URL, e.StatusCode, e.Body)
}

// Kind classifies 429 and 5xx as transient, everything else as permanent.
func (e *HTTPStatusError) Kind() resilience.Kind {
	if e.StatusCode == http.StatusTooManyRequests || e.StatusCode >= 500 {
		return resilience.KindTransient
	}
	return resilience.KindPermanent
}

// Fetcher performs guarded, rate-limited GET requests.
type Fetcher struct {
	client    *http.Client
	guard     *urlguard.Guard
	limiter   *rate.Limiter
	maxBody   int64
	userAgent string
}

// NewFetcher builds a Fetcher whose every URL, redirect hop and dialed
// address is checked by guard.
func NewFetcher(cfg FetcherConfig, guard *urlguard.Guard) *Fetcher {
	def := DefaultFetcherConfig()
	if cfg.Timeout <= 0 {
		cfg.Timeout = def.Timeout
	}
	if cfg.RequestsPerSecond <= 0 {
		cfg.RequestsPerSecond = def.RequestsPerSecond
	}
	if cfg.Burst < 1 {
		cfg.Burst = def.Burst
	}
	if cfg.MaxBodyBytes <= 0 {
		cfg.MaxBodyBytes = def.MaxBodyBytes
	}
	if cfg.UserAgent == "" {
		cfg.UserAgent = def.UserAgent
	}

	transport := cfg.Transport
	if transport == nil {
		transport = guardedTransport(guard, cfg.Timeout)
	}

	f := &Fetcher{
		guard:     guard,
		limiter:   rate.NewLimiter(rate.Limit(cfg.RequestsPerSecond), cfg.Burst),
		maxBody:   cfg.MaxBodyBytes,
		userAgent: cfg.UserAgent,
	}
	f.client = &http.Client{
		Timeout:       cfg.Timeout,
		Transport:     transport,
		CheckRedirect: f.checkRedirect,
	}
	return f
}

// guardedTransport rejects blocked addresses at connect time, after DNS
// resolution, so a hostname cannot be rebound between validation and dial.
func guardedTransport(guard *urlguard.Guard, timeout time.Duration) *http.Transport {
	dialer := &net.Dialer{
		Timeout:   timeout,
		KeepAlive: 30 * time.Second,
		Control:   guard.Control,
	}
	return &http.Transport{
		Proxy:                 nil,
		DialContext:           dialer.DialContext,
		ForceAttemptHTTP2:     true,
		MaxIdleConns:          20,
		IdleConnTimeout:       90 * time.Second,
		TLSHandshakeTimeout:   10 * time.Second,
		ExpectContinueTimeout: time.Second,
	}
}

func (f *Fetcher) checkRedirect(req *http.Request, via []*http.Request) error {
	if len(via) >= maxRedirects {
		return resilience.Permanent(fmt.Errorf("stopped after %d redirects", maxRedirects))
	}
	_, err := f.guard.Validate(req.Context(), req.URL.String())
	return err
}

// Get fetches rawURL and returns the body. Errors carry a resilience.Kind:
// URL violations are SSRF, 429/5xx and network failures transient, other
// statuses and oversized bodies permanent.
func (f *Fetcher) Get(ctx context.Context, rawURL string) ([]byte, error) {
	target, err := f.guard.Validate(ctx, rawURL)
	if err != nil {
		return nil, err
	}

	if err := f.limiter.Wait(ctx); err != nil {
		return nil, fmt.Errorf("rate limiter: %w", contextErr(ctx, err))
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, target, http.NoBody)
	if err != nil {
		return nil, resilience.Permanent(fmt.Errorf("build request: %w", err))
	}
	req.Header.Set("User-Agent", f.userAgent)
	req.Header.Set("Accept", "application/json")

	resp, err := f.client.Do(req)
	if err != nil {
		return nil, classifyTransportError(ctx, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, maxErrorBodySize))
		return nil, &HTTPStatusError{URL: target, StatusCode: resp.StatusCode, Body: string(body)}
	}

	body, err := io.ReadAll(io.LimitReader(resp.Body, f.maxBody+1))
	if err != nil {
		return nil, classifyTransportError(ctx, err)
	}
	if int64(len(body)) > f.maxBody {
		return nil, resilience.Permanent(fmt.Errorf("GET %s: response exceeds %d bytes", target, f.maxBody))
	}
	return body, nil
}

// classifyTransportError keeps already classified errors (URL violations
// from redirects or the dialer) and cancellation as they are and tags
// everything else transient.
func classifyTransportError(ctx context.Context, err error) error {
	if errors.As(err, new(resilience.Kinded)) {
		return err
	}
	if ctx.Err() != nil {
		return contextErr(ctx, err)
	}
	return resilience.Transient(err)
}

func contextErr(ctx context.Context, err error) error {
	if ctxErr := ctx.Err(); ctxErr != nil {
		return fmt.Errorf("%w: %v", ctxErr, err)
	}
	return err
}
