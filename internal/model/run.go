package model

import "time"

// RunStatus represents the current state of a surveillance run.
type RunStatus string

const (
	RunStatusQueued      RunStatus = "queued"
	RunStatusValidating  RunStatus = "validating"
	RunStatusIngesting   RunStatus = "ingesting"
	RunStatusScoring     RunStatus = "scoring"
	RunStatusAggregating RunStatus = "aggregating"
	RunStatusComplete    RunStatus = "complete"
	RunStatusFailed      RunStatus = "failed"
)

// Run represents a single execution of the surveillance pipeline.
type Run struct {
	ID        string       `json:"id"`
	Status    RunStatus    `json:"status"`
	Summary   *RunSummary  `json:"summary,omitempty"`
	Report    *DeltaReport `json:"report,omitempty"`
	CreatedAt time.Time    `json:"created_at"`
	UpdatedAt time.Time    `json:"updated_at"`
}

// RunSummary is the user-visible outcome of a run, including partial
// failures: skipped genes and degraded findings are listed alongside what
// succeeded.
type RunSummary struct {
	CarriersConfirmed int               `json:"carriers_confirmed"`
	ValidationErrors  []ValidationError `json:"validation_errors,omitempty"`
	SkippedGenes      []string          `json:"skipped_genes,omitempty"`
	NewEvidence       int               `json:"new_evidence"`
	FindingsScored    int               `json:"findings_scored"`
	DegradedFindings  int               `json:"degraded_findings"`
	NewFindings       int               `json:"new_findings"`
}

// DeltaReport contains only the findings that are new since the last
// successfully completed run. A finding identity never repeats across
// reports.
type DeltaReport struct {
	RunID       string    `json:"run_id"`
	SinceRunID  string    `json:"since_run_id,omitempty"`
	GeneratedAt time.Time `json:"generated_at"`
	NewFindings []Finding `json:"new_findings"`
}
