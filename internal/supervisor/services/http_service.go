// Localevents - Multi-Source Event Ingestion and Deduplication
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/localevents

package services

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/tomtom215/localevents/internal/logging"
)

const defaultShutdownTimeout = 10 * time.Second

// Server is the lifecycle subset of *http.Server.
type Server interface {
	ListenAndServe() error
	Shutdown(ctx context.Context) error
}

// NewAPIServer builds the *http.Server for the API with conservative
// timeouts.
func NewAPIServer(addr string, handler http.Handler) *http.Server {
	return &http.Server{
		Addr:              addr,
		Handler:           handler,
		ReadHeaderTimeout: 10 * time.Second,
		ReadTimeout:       30 * time.Second,
		WriteTimeout:      2 * time.Minute, // POST /api/v1/ingest runs a full cycle
		IdleTimeout:       2 * time.Minute,
	}
}

// APIServerService runs a Server under suture. Cancelling the context drains
// in-flight requests for up to the shutdown timeout.
type APIServerService struct {
	server          Server
	addr            string
	shutdownTimeout time.Duration
}

// NewAPIServerService wraps server. addr is used for logging only.
func NewAPIServerService(server Server, addr string, shutdownTimeout time.Duration) *APIServerService {
	if shutdownTimeout <= 0 {
		shutdownTimeout = defaultShutdownTimeout
	}
	return &APIServerService{server: server, addr: addr, shutdownTimeout: shutdownTimeout}
}

// Serve implements suture.Service. A listener failure is returned so the
// supervisor restarts the service; a requested shutdown returns ctx.Err().
func (s *APIServerService) Serve(ctx context.Context) error {
	errCh := make(chan error, 1)
	go func() {
		defer close(errCh)
		if err := s.server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
	}()
	logging.Info().Str("addr", s.addr).Msg("API server listening")

	select {
	case err, ok := <-errCh:
		if ok {
			return fmt.Errorf("api server on %s: %w", s.addr, err)
		}
		return nil
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), s.shutdownTimeout)
	defer cancel()
	if err := s.server.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("api server shutdown: %w", err)
	}
	<-errCh
	logging.Info().Str("addr", s.addr).Msg("API server stopped")
	return ctx.Err()
}

func (s *APIServerService) String() string { return "api-server" }
