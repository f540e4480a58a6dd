// Localevents - Multi-Source Event Ingestion and Deduplication
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/localevents

/*
Package dedupe merges candidate events that describe the same real-world
happening.

# Scoring

Scorer compares two events on three components, each in [0, 1]:

  - Title: normalized (case, "Live:"-style prefixes, whitespace) and compared
    with a token-sort Indel ratio so word order does not matter
  - Venue: normalized (venue-type suffixes, leading "the") and compared with an
    Indel ratio, boosted by 1.1 when city and state agree; an exact
    handle match scores 1.0 outright
  - Time: 1.0 within 30 minutes on the same date, decaying linearly to a 0.5
    floor at 4 hours; across dates, decaying from 1.0 to 0 over 2 hours

The total is the weighted sum. Weights must add up to 1.0 within 0.01 or
scoring refuses to run.

# Deduplication

Engine.Deduplicate walks the input once. Each unconsumed event is compared
against every later unconsumed event; matches at or above the threshold are
folded into it. The survivor of each merge is chosen by source priority,
then completeness, then input order. Every merge appends a
models.DuplicateMatch to the audit trail.

Weights and thresholds passed to a single call apply to that call only.
*/
package dedupe
