package report

import (
	"fmt"
	"strings"

	"github.com/guardian-genomics/guardian-cli/internal/model"
)

// Render formats a delta report and its run summary as a markdown document
// for the report sink. The sink receives already-filtered data and renders
// everything it is given.
func Render(r *model.DeltaReport, summary model.RunSummary) string {
	var b strings.Builder

	b.WriteString("# Genomic Surveillance Delta Report\n\n")
	fmt.Fprintf(&b, "- **Run:** %s\n", r.RunID)
	if r.SinceRunID != "" {
		fmt.Fprintf(&b, "- **Since run:** %s\n", r.SinceRunID)
	}
	fmt.Fprintf(&b, "- **Generated:** %s\n\n", r.GeneratedAt.Format("2006-01-02 15:04:05 UTC"))

	if len(r.NewFindings) == 0 {
		b.WriteString("No new findings since the last run.\n")
	} else {
		fmt.Fprintf(&b, "## New Findings (%d)\n\n", len(r.NewFindings))
		for _, f := range r.NewFindings {
			fmt.Fprintf(&b, "### %s — %s\n\n", f.VariantRSID, f.GeneSymbol)
			fmt.Fprintf(&b, "- **Evidence:** %s\n", f.EvidenceID)
			fmt.Fprintf(&b, "- **Relevance:** %s\n", relevanceLabel(f.Relevance))
			fmt.Fprintf(&b, "- **Direction:** %s\n", directionLabel(f.Direction))
			if f.Degraded {
				b.WriteString("- **Note:** classification degraded (backend unavailable or unparsable)\n")
			}
			if f.Rationale != "" {
				fmt.Fprintf(&b, "- **Rationale:** %s\n", f.Rationale)
			}
			b.WriteString("\n")
		}
	}

	b.WriteString("## Run Summary\n\n")
	fmt.Fprintf(&b, "- Confirmed carriers: %d\n", summary.CarriersConfirmed)
	fmt.Fprintf(&b, "- New evidence records: %d\n", summary.NewEvidence)
	fmt.Fprintf(&b, "- Pairs scored: %d\n", summary.FindingsScored)
	if summary.DegradedFindings > 0 {
		fmt.Fprintf(&b, "- Degraded findings: %d\n", summary.DegradedFindings)
	}
	if len(summary.SkippedGenes) > 0 {
		fmt.Fprintf(&b, "- Skipped genes (fetch failed): %s\n", strings.Join(summary.SkippedGenes, ", "))
	}
	if len(summary.ValidationErrors) > 0 {
		fmt.Fprintf(&b, "- Malformed genotype records: %d\n", len(summary.ValidationErrors))
		for _, ve := range summary.ValidationErrors {
			fmt.Fprintf(&b, "  - %s (%q): %s\n", ve.RSID, ve.Genotype, ve.Reason)
		}
	}

	return b.String()
}

func relevanceLabel(r model.Relevance) string {
	switch r {
	case model.RelevanceClinicallyRelevant:
		return "Clinically relevant"
	case model.RelevancePossiblyRelevant:
		return "Possibly relevant"
	default:
		return "Irrelevant"
	}
}

func directionLabel(d model.Direction) string {
	switch d {
	case model.DirectionRisk:
		return "Risk"
	case model.DirectionProtective:
		return "Protective"
	default:
		return "Ambiguous"
	}
}
