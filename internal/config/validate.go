// Localevents - Multi-Source Event Ingestion and Deduplication
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/localevents

package config

import (
	"fmt"
	"strings"

	"github.com/tomtom215/localevents/internal/validation"
)

// Validate checks struct tags first, then cross-field rules.
func (c *Config) Validate() error {
	if verr := validation.ValidateStruct(c); verr != nil {
		return verr
	}

	if err := c.validateDedupe(); err != nil {
		return err
	}
	if err := c.validateRetry(); err != nil {
		return err
	}
	return c.validateSources()
}

// validateDedupe applies the engine's weight and time-curve checks.
func (c *Config) validateDedupe() error {
	ec := c.Dedupe.EngineConfig()
	if err := ec.Weights.Validate(); err != nil {
		return err
	}
	if err := ec.TimeCurve.Validate(); err != nil {
		return err
	}
	return nil
}

func (c *Config) validateRetry() error {
	if c.Retry.BaseDelay > c.Retry.MaxDelay {
		return fmt.Errorf("retry.base_delay (%v) must not exceed retry.max_delay (%v)", c.Retry.BaseDelay, c.Retry.MaxDelay)
	}
	return nil
}

func (c *Config) validateSources() error {
	seen := make(map[string]struct{}, len(c.Sources))
	for i, src := range c.Sources {
		name := strings.ToLower(strings.TrimSpace(src.Name))
		if _, dup := seen[name]; dup {
			return fmt.Errorf("sources[%d]: duplicate source name %q", i, src.Name)
		}
		seen[name] = struct{}{}
	}
	return nil
}
