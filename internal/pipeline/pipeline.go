// Package pipeline orchestrates a surveillance run: validate the genotype
// calls, ingest new literature, score carrier/evidence pairs, aggregate
// the delta, and commit everything atomically.
package pipeline

import (
	"context"
	"time"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/guardian-genomics/guardian-cli/internal/inference"
	"github.com/guardian-genomics/guardian-cli/internal/ingest"
	"github.com/guardian-genomics/guardian-cli/internal/model"
	"github.com/guardian-genomics/guardian-cli/internal/report"
	"github.com/guardian-genomics/guardian-cli/internal/rules"
	"github.com/guardian-genomics/guardian-cli/internal/store"
	"github.com/guardian-genomics/guardian-cli/internal/validator"
)

// Pipeline wires the run phases over a shared store.
type Pipeline struct {
	store    store.Store
	ingestor *ingest.Ingestor
	engine   *inference.Engine
	rules    *rules.RuleSet
	sink     report.Sink
	nowFunc  func() time.Time
}

// New assembles a Pipeline. The sink may be nil, in which case the report
// is persisted with the run but not written out.
func New(st store.Store, ing *ingest.Ingestor, eng *inference.Engine, rs *rules.RuleSet, sink report.Sink) *Pipeline {
	return &Pipeline{
		store:    st,
		ingestor: ing,
		engine:   eng,
		rules:    rs,
		sink:     sink,
		nowFunc:  time.Now,
	}
}

// RunResult is what a completed run hands back to the caller.
type RunResult struct {
	Run      *model.Run
	Report   *model.DeltaReport
	Rendered string
}

// Run executes one full surveillance pass. genesOverride, when non-empty,
// replaces the gene list derived from the variant calls; it exists for
// targeted re-ingestion. Inference failures degrade and never abort the
// run; a persistence failure does, and the run is marked failed with no
// delta state written.
func (p *Pipeline) Run(ctx context.Context, genesOverride []string) (*RunResult, error) {
	calls, err := p.store.ListVariantCalls(ctx)
	if err != nil {
		return nil, eris.Wrap(err, "pipeline: load variant calls")
	}

	run, err := p.store.CreateRun(ctx)
	if err != nil {
		return nil, eris.Wrap(err, "pipeline: create run")
	}
	zap.L().Info("pipeline: run started",
		zap.String("run_id", run.ID),
		zap.Int("variant_calls", len(calls)),
	)

	// Validation is pure and cheap; it runs first so the gene list for
	// ingestion only covers calls that survived exclusion.
	var vres validator.Result
	err = p.phase(ctx, run.ID, model.RunStatusValidating, "validate", func(ctx context.Context) error {
		vres = validator.Validate(calls, p.rules)
		return nil
	})
	if err != nil {
		return nil, p.fail(ctx, run.ID, err)
	}

	genes := genesOverride
	if len(genes) == 0 {
		for _, v := range vres.Variants {
			if v.GeneSymbol != "" {
				genes = append(genes, v.GeneSymbol)
			}
		}
	}

	var ires *ingest.Result
	err = p.phase(ctx, run.ID, model.RunStatusIngesting, "ingest", func(ctx context.Context) error {
		var ingErr error
		ires, ingErr = p.ingestor.FetchNew(ctx, genes)
		return ingErr
	})
	if err != nil {
		return nil, p.fail(ctx, run.ID, err)
	}

	carriers := vres.Carriers()

	prior, err := p.store.PriorFindingIDs(ctx)
	if err != nil {
		return nil, p.fail(ctx, run.ID, eris.Wrap(err, "pipeline: load prior finding ids"))
	}

	records, err := p.gatherEvidence(ctx, carriers, ires.Records)
	if err != nil {
		return nil, p.fail(ctx, run.ID, err)
	}

	var findings []model.Finding
	err = p.phase(ctx, run.ID, model.RunStatusScoring, "score", func(ctx context.Context) error {
		findings = p.engine.ScoreAll(ctx, carriers, records, prior)
		return ctx.Err()
	})
	if err != nil {
		return nil, p.fail(ctx, run.ID, err)
	}

	sinceRunID, err := p.lastCompleteRunID(ctx, run.ID)
	if err != nil {
		return nil, p.fail(ctx, run.ID, err)
	}

	var delta *model.DeltaReport
	err = p.phase(ctx, run.ID, model.RunStatusAggregating, "aggregate", func(ctx context.Context) error {
		delta = report.Aggregate(findings, prior, run.ID, sinceRunID, p.nowFunc())
		return nil
	})
	if err != nil {
		return nil, p.fail(ctx, run.ID, err)
	}

	summary := model.RunSummary{
		CarriersConfirmed: len(carriers),
		ValidationErrors:  vres.Errors,
		SkippedGenes:      ires.SkippedGenes,
		NewEvidence:       len(ires.Records),
		FindingsScored:    len(findings),
		DegradedFindings:  countDegraded(findings),
		NewFindings:       len(delta.NewFindings),
	}

	commit := store.RunCommit{
		RunID:      run.ID,
		Summary:    summary,
		Report:     delta,
		Watermarks: ires.Watermarks,
	}
	if err := p.store.CommitRun(ctx, commit); err != nil {
		// Nothing of the delta state was persisted; the report must not
		// be emitted either, or its findings would repeat next run.
		return nil, p.fail(ctx, run.ID, eris.Wrap(err, "pipeline: commit run"))
	}

	rendered := report.Render(delta, summary)
	if p.sink != nil {
		if err := p.sink.Write(ctx, delta, rendered); err != nil {
			zap.L().Error("pipeline: report sink failed",
				zap.String("run_id", run.ID),
				zap.Error(err),
			)
		}
	}

	final, err := p.store.GetRun(ctx, run.ID)
	if err != nil {
		return nil, eris.Wrap(err, "pipeline: reload run")
	}

	zap.L().Info("pipeline: run complete",
		zap.String("run_id", run.ID),
		zap.Int("new_evidence", summary.NewEvidence),
		zap.Int("findings_scored", summary.FindingsScored),
		zap.Int("new_findings", summary.NewFindings),
	)
	return &RunResult{Run: final, Report: delta, Rendered: rendered}, nil
}

// phase updates the run status, executes fn, and logs the phase duration.
func (p *Pipeline) phase(ctx context.Context, runID string, status model.RunStatus, name string, fn func(context.Context) error) error {
	if err := ctx.Err(); err != nil {
		return eris.Wrapf(err, "pipeline: cancelled before %s", name)
	}
	if err := p.store.UpdateRunStatus(ctx, runID, status); err != nil {
		return eris.Wrapf(err, "pipeline: enter %s", name)
	}
	start := time.Now()
	err := fn(ctx)
	zap.L().Info("pipeline: phase finished",
		zap.String("run_id", runID),
		zap.String("phase", name),
		zap.Duration("took", time.Since(start)),
		zap.Bool("ok", err == nil),
	)
	if err != nil {
		return eris.Wrapf(err, "pipeline: phase %s", name)
	}
	return nil
}

// fail marks the run failed and returns the original error. The failure
// write uses a detached context so a cancelled run still gets its status.
func (p *Pipeline) fail(ctx context.Context, runID string, cause error) error {
	if err := p.store.UpdateRunStatus(context.WithoutCancel(ctx), runID, model.RunStatusFailed); err != nil {
		zap.L().Error("pipeline: could not mark run failed",
			zap.String("run_id", runID),
			zap.Error(err),
		)
	}
	return cause
}

// gatherEvidence merges this run's newly ingested records with stored
// evidence for each carrier gene, deduplicated by external id. Stored
// evidence is included so a variant imported after past ingestions is
// still scored against the existing record base; the prior-finding filter
// keeps already-reported pairs from being rescored.
func (p *Pipeline) gatherEvidence(ctx context.Context, carriers []model.ValidatedVariant, fresh []model.EvidenceRecord) ([]model.EvidenceRecord, error) {
	seen := make(map[string]bool, len(fresh))
	records := make([]model.EvidenceRecord, 0, len(fresh))
	for _, r := range fresh {
		seen[r.ExternalID] = true
		records = append(records, r)
	}

	genes := make(map[string]bool)
	for _, v := range carriers {
		if v.GeneSymbol == "" || genes[v.GeneSymbol] {
			continue
		}
		genes[v.GeneSymbol] = true
		stored, err := p.store.ListEvidenceByGene(ctx, v.GeneSymbol)
		if err != nil {
			return nil, eris.Wrapf(err, "pipeline: load evidence for %s", v.GeneSymbol)
		}
		for _, r := range stored {
			if seen[r.ExternalID] {
				continue
			}
			seen[r.ExternalID] = true
			records = append(records, r)
		}
	}
	return records, nil
}

// lastCompleteRunID returns the most recent complete run other than the
// current one, or "" when this is the first.
func (p *Pipeline) lastCompleteRunID(ctx context.Context, currentID string) (string, error) {
	runs, err := p.store.ListRuns(ctx, store.RunFilter{Status: model.RunStatusComplete, Limit: 2})
	if err != nil {
		return "", eris.Wrap(err, "pipeline: list prior runs")
	}
	for _, r := range runs {
		if r.ID != currentID {
			return r.ID, nil
		}
	}
	return "", nil
}

func countDegraded(findings []model.Finding) int {
	n := 0
	for _, f := range findings {
		if f.Degraded {
			n++
		}
	}
	return n
}
