// Localevents - Multi-Source Event Ingestion and Deduplication
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/localevents

package dedupe

import (
	"errors"
	"fmt"

	"github.com/tomtom215/localevents/internal/resilience"
)

// ErrInvalidConfig is wrapped by every ConfigError.
var ErrInvalidConfig = errors.New("invalid deduplication config")

// ConfigError reports an unusable threshold, weight set or time curve.
type ConfigError struct {
	Field  string
	Reason string
}

func (e *ConfigError) Error() string {
	return fmt.Sprintf("dedupe: invalid %s: %s", e.Field, e.Reason)
}

// Unwrap returns ErrInvalidConfig.
func (e *ConfigError) Unwrap() error { return ErrInvalidConfig }

// Kind implements resilience.Kinded.
func (e *ConfigError) Kind() resilience.Kind { return resilience.KindConfig }
