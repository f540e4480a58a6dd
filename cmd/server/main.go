// Localevents - Multi-Source Event Ingestion and Deduplication
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/localevents

package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/tomtom215/localevents/internal/api"
	"github.com/tomtom215/localevents/internal/config"
	"github.com/tomtom215/localevents/internal/dedupe"
	"github.com/tomtom215/localevents/internal/ingest"
	"github.com/tomtom215/localevents/internal/logging"
	"github.com/tomtom215/localevents/internal/resilience"
	"github.com/tomtom215/localevents/internal/supervisor"
	"github.com/tomtom215/localevents/internal/supervisor/services"
	"github.com/tomtom215/localevents/internal/urlguard"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		logging.Fatal().Err(err).Msg("Failed to load configuration")
	}
	logging.Init(cfg.Logging.LoggerConfig())

	logging.Info().
		Str("location", cfg.Ingest.Location).
		Int("sources", len(cfg.Sources)).
		Float64("dedupe_threshold", cfg.Dedupe.Threshold).
		Msg("Starting localevents")

	agg, err := buildAggregator(cfg)
	if err != nil {
		logging.Fatal().Err(err).Msg("Failed to build ingestion pipeline")
	}

	tree, err := supervisor.NewSupervisorTree(logging.NewSlogLogger(), supervisor.DefaultTreeConfig())
	if err != nil {
		logging.Fatal().Err(err).Msg("Failed to create supervisor tree")
	}

	scheduler := services.NewIngestService(agg, services.IngestServiceConfig{
		Location:     cfg.Ingest.Location,
		DaysAhead:    cfg.Ingest.DaysAhead,
		Interval:     cfg.Ingest.Interval,
		CycleTimeout: cfg.Ingest.CycleTimeout,
		RunOnStartup: cfg.Ingest.RunOnStartup,
	})
	tree.AddIngestService(scheduler)

	if cfg.Server.Enabled {
		server := services.NewAPIServer(cfg.Server.Addr(), buildRouter(cfg, agg, scheduler))
		tree.AddAPIService(services.NewAPIServerService(server, server.Addr, cfg.Server.ShutdownTimeout))
	} else {
		logging.Info().Msg("HTTP API disabled (SERVER_ENABLED=false)")
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := tree.Serve(ctx); err != nil && !errors.Is(err, context.Canceled) {
		logging.Error().Err(err).Msg("Supervisor tree error")
	}

	unstopped, _ := tree.UnstoppedServiceReport()
	for _, svc := range unstopped {
		logging.Warn().Str("service", svc.Name).Msg("Service failed to stop")
	}
	logging.Info().Msg("Stopped")
}

// buildAggregator wires guard, fetcher, sources and the dedupe engine from cfg.
func buildAggregator(cfg *config.Config) (*ingest.Aggregator, error) {
	guard := urlguard.New(cfg.URLGuard.Options(), nil)
	fetcher := ingest.NewFetcher(ingest.FetcherConfig{
		Timeout:           cfg.HTTP.Timeout,
		RequestsPerSecond: cfg.HTTP.RequestsPerSecond,
		Burst:             cfg.HTTP.Burst,
		MaxBodyBytes:      cfg.HTTP.MaxBodyBytes,
		UserAgent:         cfg.HTTP.UserAgent,
	}, guard)

	policy := cfg.Retry.Policy()
	var sources []ingest.Source
	for _, sc := range cfg.Sources {
		if !sc.Enabled {
			logging.Info().Str("source", sc.Name).Msg("Source disabled")
			continue
		}
		sources = append(sources, ingest.NewJSONFeedSource(sc.Name, sc.URL, sc.FallbackURLs, fetcher, policy))
	}
	if len(sources) == 0 {
		logging.Warn().Msg("No sources enabled; cycles will return no events")
	}

	engine, err := dedupe.NewEngine(cfg.Dedupe.EngineConfig())
	if err != nil {
		return nil, err
	}

	return ingest.NewAggregator(ingest.AggregatorConfig{
		MaxConcurrency: cfg.Ingest.MaxConcurrency,
		Breaker:        cfg.CircuitBreaker.BreakerConfig(""),
	}, engine, resilience.NewHealthMonitor(), sources...)
}

func buildRouter(cfg *config.Config, agg *ingest.Aggregator, runner api.CycleRunner) http.Handler {
	return api.NewRouter(api.NewHandler(agg, runner), api.RouterConfig{
		RateLimitRequests: cfg.Server.RateLimitRequests,
		RateLimitWindow:   cfg.Server.RateLimitWindow,
		IngestRateLimit:   cfg.Server.IngestRateLimit,
		CORSOrigins:       cfg.Server.CORSOrigins,
	})
}
