// Package report assembles delta reports: only findings never emitted in
// any prior report, in a stable order, rendered for the report sink.
package report

import (
	"sort"
	"time"

	"go.uber.org/zap"

	"github.com/guardian-genomics/guardian-cli/internal/model"
)

// Aggregate filters findings against the prior-finding-id set and produces
// the run's delta report. It is a pure function of its inputs: persisting
// the updated id set before the next run is the caller's job.
//
// Ordering is relevance descending, then evidence id ascending, then rsid
// ascending, so the same inputs always render the same report.
func Aggregate(findings []model.Finding, prior map[model.FindingID]struct{}, runID, sinceRunID string, now time.Time) *model.DeltaReport {
	var fresh []model.Finding
	for _, f := range findings {
		if _, dup := prior[f.ID()]; dup {
			continue
		}
		fresh = append(fresh, f)
	}

	sort.Slice(fresh, func(a, b int) bool {
		if ra, rb := fresh[a].Relevance.Rank(), fresh[b].Relevance.Rank(); ra != rb {
			return ra > rb
		}
		if fresh[a].EvidenceID != fresh[b].EvidenceID {
			return fresh[a].EvidenceID < fresh[b].EvidenceID
		}
		return fresh[a].VariantRSID < fresh[b].VariantRSID
	})

	zap.L().Info("report: aggregated delta",
		zap.String("run_id", runID),
		zap.Int("scored", len(findings)),
		zap.Int("suppressed", len(findings)-len(fresh)),
		zap.Int("new", len(fresh)),
	)

	return &model.DeltaReport{
		RunID:       runID,
		SinceRunID:  sinceRunID,
		GeneratedAt: now.UTC(),
		NewFindings: fresh,
	}
}
