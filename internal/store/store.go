// Package store persists the cross-run state of the surveillance pipeline:
// the patient's genotype calls, ingested evidence, per-gene watermarks,
// emitted findings, and run records.
package store

import (
	"context"
	"time"

	"github.com/guardian-genomics/guardian-cli/internal/model"
)

// RunFilter specifies criteria for listing runs.
type RunFilter struct {
	Status model.RunStatus `json:"status,omitempty"`
	Limit  int             `json:"limit,omitempty"`
	Offset int             `json:"offset,omitempty"`
}

// RunCommit is the atomic end-of-run write: findings, watermarks, and the
// run summary land in one transaction or not at all. A failed commit must
// leave the delta state exactly as it was before the run.
type RunCommit struct {
	RunID      string
	Summary    model.RunSummary
	Report     *model.DeltaReport
	Watermarks map[string]time.Time
}

// Store defines the persistence interface for the surveillance pipeline.
type Store interface {
	// Variant calls (genotyping feed)
	ImportVariantCalls(ctx context.Context, calls []model.VariantCall) (int, error)
	ListVariantCalls(ctx context.Context) ([]model.VariantCall, error)

	// Evidence. InsertEvidence enforces the external-id idempotency key and
	// returns only the records that were actually new.
	InsertEvidence(ctx context.Context, records []model.EvidenceRecord) ([]model.EvidenceRecord, error)
	ListEvidenceByGene(ctx context.Context, gene string) ([]model.EvidenceRecord, error)

	// Ingestion watermarks, read at run start. Genes without a watermark
	// are absent from the map.
	GetWatermarks(ctx context.Context, genes []string) (map[string]time.Time, error)

	// Finding identities from all prior reports, for delta suppression.
	PriorFindingIDs(ctx context.Context) (map[model.FindingID]struct{}, error)

	// Runs
	CreateRun(ctx context.Context) (*model.Run, error)
	UpdateRunStatus(ctx context.Context, runID string, status model.RunStatus) error
	GetRun(ctx context.Context, runID string) (*model.Run, error)
	ListRuns(ctx context.Context, filter RunFilter) ([]model.Run, error)
	CommitRun(ctx context.Context, commit RunCommit) error

	// Lifecycle
	Migrate(ctx context.Context) error
	Close() error
}
