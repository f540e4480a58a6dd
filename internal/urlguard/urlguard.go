// Localevents - Multi-Source Event Ingestion and Deduplication
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/localevents

// Package urlguard refuses outbound URLs that could reach internal networks.
//
// Every source fetch passes through Guard.Validate before any request is
// made. Checks run in a fixed order: the URL must parse with a scheme and a
// host; the scheme must be https (or http when RequireHTTPS is off); the
// host must not be a localhost name or loopback literal; it must match the
// allow-list when one is configured; an IP literal must not fall in a
// private or reserved range; and, when ResolveDNS is set, no resolved
// address may fall in one either. A resolver error is not a rejection.
//
// Guard.Control repeats the address check on the socket actually dialed,
// which closes the window between validation and connect.
package urlguard

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/netip"
	"net/url"
	"strings"
	"syscall"

	"github.com/tomtom215/localevents/internal/logging"
	"github.com/tomtom215/localevents/internal/metrics"
	"github.com/tomtom215/localevents/internal/resilience"
)

// ErrBlocked is wrapped by every ViolationError.
var ErrBlocked = errors.New("url blocked by ssrf guard")

// Rejection reasons, also used as metric labels.
const (
	ReasonInvalidURL       = "invalid_url"
	ReasonScheme           = "scheme"
	ReasonBlockedHostname  = "blocked_hostname"
	ReasonDomainNotAllowed = "domain_not_allowed"
	ReasonPrivateIP        = "private_ip"
	ReasonNonCanonicalIP   = "non_canonical_ip"
	ReasonResolvesPrivate  = "resolves_to_private_ip"
)

// ViolationError describes a refused URL.
type ViolationError struct {
	URL    string
	Reason string
	Detail string
}

func (e *ViolationError) Error() string {
	return fmt.Sprintf("ssrf guard rejected %q: %s", e.URL, e.Detail)
}

// Unwrap returns ErrBlocked.
func (e *ViolationError) Unwrap() error { return ErrBlocked }

// Kind marks the error as an SSRF violation: never retried and never
// counted against a circuit.
func (e *ViolationError) Kind() resilience.Kind { return resilience.KindSSRF }

// Options controls which URLs are acceptable.
type Options struct {
	RequireHTTPS bool

	// AllowedDomains, when non-empty, restricts hosts to these domains and
	// their dot-subdomains. Blank entries are dropped, and a list with no
	// remaining entries applies no domain restriction.
	AllowedDomains []string

	ResolveDNS bool
}

// DefaultOptions requires HTTPS and resolves hostnames.
func DefaultOptions() Options {
	return Options{RequireHTTPS: true, ResolveDNS: true}
}

// Resolver looks up the addresses of a host. *net.Resolver satisfies it.
type Resolver interface {
	LookupNetIP(ctx context.Context, network, host string) ([]netip.Addr, error)
}

// Guard validates URLs against one set of Options.
type Guard struct {
	opts     Options
	resolver Resolver
}

// New creates a Guard. A nil resolver uses net.DefaultResolver.
func New(opts Options, resolver Resolver) *Guard {
	if resolver == nil {
		resolver = net.DefaultResolver
	}
	allowed := make([]string, 0, len(opts.AllowedDomains))
	for _, d := range opts.AllowedDomains {
		d = strings.TrimPrefix(strings.ToLower(strings.TrimSpace(d)), ".")
		if d != "" {
			allowed = append(allowed, d)
		}
	}
	opts.AllowedDomains = allowed
	return &Guard{opts: opts, resolver: resolver}
}

// Options returns the guard's normalized options.
func (g *Guard) Options() Options {
	return g.opts
}

// Validate returns raw with surrounding whitespace trimmed, or a
// *ViolationError.
func (g *Guard) Validate(ctx context.Context, raw string) (string, error) {
	rawURL := strings.TrimSpace(raw)
	if rawURL == "" {
		return "", g.reject(ctx, raw, ReasonInvalidURL, "url must be a non-empty string")
	}

	u, err := url.Parse(rawURL)
	if err != nil {
		return "", g.reject(ctx, rawURL, ReasonInvalidURL, "invalid url format")
	}
	if u.Scheme == "" {
		return "", g.reject(ctx, rawURL, ReasonInvalidURL, "url must include a scheme")
	}

	scheme := strings.ToLower(u.Scheme)
	if g.opts.RequireHTTPS {
		if scheme != "https" {
			return "", g.reject(ctx, rawURL, ReasonScheme, fmt.Sprintf("only https urls are allowed (got %s://)", scheme))
		}
	} else if scheme != "http" && scheme != "https" {
		return "", g.reject(ctx, rawURL, ReasonScheme, fmt.Sprintf("only http(s) urls are allowed (got %s://)", scheme))
	}

	host := strings.ToLower(u.Hostname())
	if host == "" {
		return "", g.reject(ctx, rawURL, ReasonInvalidURL, "url must include a hostname")
	}
	host = strings.TrimSuffix(host, ".")

	if isBlockedHostname(host) {
		return "", g.reject(ctx, rawURL, ReasonBlockedHostname, fmt.Sprintf("access to %s is blocked (localhost/loopback)", host))
	}

	if len(g.opts.AllowedDomains) > 0 && !domainAllowed(host, g.opts.AllowedDomains) {
		return "", g.reject(ctx, rawURL, ReasonDomainNotAllowed, fmt.Sprintf("domain %s is not in the allowed domains list", host))
	}

	if addr, err := netip.ParseAddr(host); err == nil {
		if IsBlockedAddr(addr) {
			return "", g.reject(ctx, rawURL, ReasonPrivateIP, fmt.Sprintf("access to %s is blocked (private/internal address)", host))
		}
		return rawURL, nil
	}

	if looksNumeric(host) {
		return "", g.reject(ctx, rawURL, ReasonNonCanonicalIP, fmt.Sprintf("host %s is a non-canonical ip literal", host))
	}

	if g.opts.ResolveDNS {
		addrs, err := g.resolver.LookupNetIP(ctx, "ip", host)
		if err != nil {
			// The transport fails later if the name really does not resolve.
			logging.Ctx(ctx).Debug().Err(err).Str("host", host).Msg("DNS lookup failed during url validation")
			return rawURL, nil
		}
		for _, addr := range addrs {
			if IsBlockedAddr(addr) {
				return "", g.reject(ctx, rawURL, ReasonResolvesPrivate,
					fmt.Sprintf("%s resolves to private/internal address %s", host, addr))
			}
		}
	}

	return rawURL, nil
}

func (g *Guard) reject(ctx context.Context, rawURL, reason, detail string) error {
	metrics.URLGuardRejections.WithLabelValues(reason).Inc()
	logging.Ctx(ctx).Warn().Str("url", rawURL).Str("reason", reason).Msg("ssrf_blocked")
	return &ViolationError{URL: rawURL, Reason: reason, Detail: detail}
}

// Control is a net.Dialer Control hook that refuses connections to blocked
// addresses.
func (g *Guard) Control(network, address string, _ syscall.RawConn) error {
	host, _, err := net.SplitHostPort(address)
	if err != nil {
		host = address
	}
	addr, err := netip.ParseAddr(host)
	if err != nil {
		return &ViolationError{URL: address, Reason: ReasonInvalidURL, Detail: "unparseable dial address"}
	}
	if IsBlockedAddr(addr) {
		metrics.URLGuardRejections.WithLabelValues(ReasonResolvesPrivate).Inc()
		logging.Warn().Str("network", network).Str("address", address).Msg("ssrf_blocked")
		return &ViolationError{URL: address, Reason: ReasonResolvesPrivate, Detail: "dial to private/internal address"}
	}
	return nil
}

// Validate checks raw with the default resolver.
func Validate(ctx context.Context, raw string, opts Options) (string, error) {
	return New(opts, nil).Validate(ctx, raw)
}

// ValidateForScraping requires HTTPS and resolves the host.
func ValidateForScraping(ctx context.Context, raw string, allowedDomains []string) (string, error) {
	return Validate(ctx, raw, Options{RequireHTTPS: true, AllowedDomains: allowedDomains, ResolveDNS: true})
}

var blockedHostnames = map[string]struct{}{
	"localhost":             {},
	"localhost.localdomain": {},
	"127.0.0.1":             {},
	"::1":                   {},
	"0.0.0.0":               {},
}

func isBlockedHostname(host string) bool {
	if _, ok := blockedHostnames[host]; ok {
		return true
	}
	return strings.HasPrefix(host, "localhost") || strings.HasSuffix(host, ".localhost")
}

// domainAllowed matches exact hosts and true subdomains only, so
// "notexample.com" does not match "example.com".
func domainAllowed(host string, allowed []string) bool {
	for _, d := range allowed {
		if host == d || strings.HasSuffix(host, "."+d) {
			return true
		}
	}
	return false
}

// looksNumeric catches integer, octal and hex host forms such as
// "2130706433" or "0x7f.1" that some resolvers turn into addresses.
// No public TLD is numeric, so a numeric last label is never a real name.
func looksNumeric(host string) bool {
	labels := strings.Split(host, ".")
	last := labels[len(labels)-1]
	if last == "" {
		return false
	}
	if strings.HasPrefix(last, "0x") {
		return true
	}
	for _, r := range last {
		if r < '0' || r > '9' {
			return false
		}
	}
	return true
}
