// Localevents - Multi-Source Event Ingestion and Deduplication
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/localevents

package api

import (
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	chimiddleware "github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/go-chi/httprate"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/tomtom215/localevents/internal/middleware"
	"github.com/tomtom215/localevents/internal/models"
)

// RouterConfig configures NewRouter.
type RouterConfig struct {
	// RateLimitRequests per RateLimitWindow per client IP. Zero disables.
	RateLimitRequests int
	RateLimitWindow   time.Duration

	// IngestRateLimit bounds manual POST /api/v1/ingest calls per window.
	IngestRateLimit int

	// CORSOrigins enables CORS for the listed origins. Empty disables it.
	CORSOrigins []string
}

// DefaultRouterConfig allows 100 requests a minute and 6 manual ingests.
func DefaultRouterConfig() RouterConfig {
	return RouterConfig{
		RateLimitRequests: 100,
		RateLimitWindow:   time.Minute,
		IngestRateLimit:   6,
	}
}

// NewRouter builds the HTTP handler for h.
func NewRouter(h *Handler, cfg RouterConfig) http.Handler {
	r := chi.NewRouter()

	r.Use(middleware.RequestID)
	r.Use(chimiddleware.RealIP)
	r.Use(chimiddleware.Recoverer)
	r.Use(middleware.PrometheusMetrics)
	r.Use(chimiddleware.Compress(5, "application/json", "text/plain"))
	if len(cfg.CORSOrigins) > 0 {
		r.Use(cors.Handler(cors.Options{
			AllowedOrigins: cfg.CORSOrigins,
			AllowedMethods: []string{http.MethodGet, http.MethodPost, http.MethodOptions},
			AllowedHeaders: []string{"Accept", "Content-Type", middleware.RequestIDHeader},
			ExposedHeaders: []string{middleware.RequestIDHeader},
			MaxAge:         300,
		}))
	}

	r.Route("/api/v1", func(r chi.Router) {
		r.Use(rateLimit(cfg.RateLimitRequests, cfg.RateLimitWindow))

		r.Get("/health", h.Health)
		r.Get("/health/live", h.HealthLive)

		r.Get("/circuits", h.Circuits)
		r.Post("/circuits/{name}/reset", h.ResetCircuit)

		r.Get("/events", h.Events)
		r.Get("/audit", h.Audit)

		r.With(rateLimit(cfg.IngestRateLimit, cfg.RateLimitWindow)).Post("/ingest", h.Ingest)
	})

	r.Handle("/metrics", promhttp.Handler())

	return r
}

// rateLimit limits by client IP; requests <= 0 disables it.
func rateLimit(requests int, window time.Duration) func(http.Handler) http.Handler {
	if requests <= 0 || window <= 0 {
		return func(next http.Handler) http.Handler { return next }
	}
	return httprate.Limit(requests, window,
		httprate.WithKeyFuncs(httprate.KeyByIP),
		httprate.WithLimitHandler(func(w http.ResponseWriter, r *http.Request) {
			respondJSON(w, http.StatusTooManyRequests, &models.APIResponse{
				Status:   "error",
				Metadata: metadataFor(r),
				Error:    &models.APIError{Code: "RATE_LIMITED", Message: "too many requests"},
			})
		}),
	)
}
