// Localevents - Multi-Source Event Ingestion and Deduplication
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/localevents

package dedupe

import (
	"fmt"
	"strings"

	"github.com/tomtom215/localevents/internal/models"
)

// FormatAuditSummary renders the audit trail for humans.
func FormatAuditSummary(result *models.DedupeResult) string {
	if len(result.AuditTrail) == 0 {
		return "No duplicates found."
	}

	var b strings.Builder
	b.WriteString("Deduplication Summary:\n")
	fmt.Fprintf(&b, "  Original events: %d\n", result.OriginalCount)
	fmt.Fprintf(&b, "  Duplicates removed: %d\n", result.DuplicatesRemoved)
	fmt.Fprintf(&b, "  Final events: %d\n", len(result.Events))
	fmt.Fprintf(&b, "  Dedup rate: %.1f%%\n", result.DedupRate()*100)
	b.WriteString("\nMerged events:")
	for _, m := range result.AuditTrail {
		fmt.Fprintf(&b, "\n  - %s (similarity: %.0f%%)", m.Reason, m.SimilarityScore*100)
	}
	return b.String()
}
