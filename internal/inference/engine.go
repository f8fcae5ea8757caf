// Package inference scores (variant, evidence) pairs for clinical
// relevance and direction of effect via a bounded LLM classifier.
package inference

import (
	"context"
	"fmt"
	"sync"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/guardian-genomics/guardian-cli/internal/model"
)

const (
	defaultTimeout       = 60 * time.Second
	defaultMaxConcurrent = 4
)

// Engine scores validated variants against evidence records. It never
// returns errors to the caller: any backend failure degrades to a
// conservative non-alerting finding so a flaky backend cannot abort a run.
type Engine struct {
	backend       Backend
	timeout       time.Duration
	maxConcurrent int
}

// EngineOption configures an Engine.
type EngineOption func(*Engine)

// WithTimeout sets the per-call timeout. A call exceeding it is treated
// the same as unparsable output.
func WithTimeout(d time.Duration) EngineOption {
	return func(e *Engine) {
		e.timeout = d
	}
}

// WithMaxConcurrent caps in-flight backend calls to bound backend load.
func WithMaxConcurrent(n int) EngineOption {
	return func(e *Engine) {
		e.maxConcurrent = n
	}
}

// NewEngine creates an Engine over the given backend.
func NewEngine(backend Backend, opts ...EngineOption) *Engine {
	e := &Engine{
		backend:       backend,
		timeout:       defaultTimeout,
		maxConcurrent: defaultMaxConcurrent,
	}
	for _, o := range opts {
		o(e)
	}
	return e
}

// Score classifies one (variant, evidence) pair. Callers must only pass
// carrier-confirmed variants whose gene appears in the evidence's gene
// annotations; ScoreAll enforces both.
func (e *Engine) Score(ctx context.Context, variant model.ValidatedVariant, evidence model.EvidenceRecord) model.Finding {
	finding := model.Finding{
		VariantRSID: variant.RSID,
		EvidenceID:  evidence.ExternalID,
		GeneSymbol:  variant.GeneSymbol,
	}

	callCtx, cancel := context.WithTimeout(ctx, e.timeout)
	defer cancel()

	system, user := BuildPrompt(variant, evidence)
	raw, err := e.backend.Complete(callCtx, system, user)
	if err != nil {
		return e.degrade(finding, fmt.Sprintf("inference backend unavailable: %v", err))
	}

	rel, dir, rationale, err := parseClassification(raw)
	if err != nil {
		return e.degrade(finding, fmt.Sprintf("unparsable backend response: %v", err))
	}

	finding.Relevance = rel
	finding.Direction = dir
	finding.Rationale = rationale
	return finding
}

// degrade fills in the conservative non-alerting classification. Raw
// backend errors stay in logs and the rationale; they never propagate as
// pipeline errors.
func (e *Engine) degrade(finding model.Finding, reason string) model.Finding {
	zap.L().Warn("inference: degraded finding",
		zap.String("rsid", finding.VariantRSID),
		zap.String("evidence_id", finding.EvidenceID),
		zap.String("reason", reason),
	)
	finding.Relevance = model.RelevanceIrrelevant
	finding.Direction = model.DirectionAmbiguous
	finding.Rationale = reason
	finding.Degraded = true
	return finding
}

// ScoreAll scores the gene-overlap cross product of carrier-confirmed
// variants and evidence records. Pairs whose identity appears in skip are
// not scored; callers pass the already-reported finding ids so known pairs
// never cost a backend call. Calls are independent and issued concurrently
// up to the configured ceiling; no ordering holds between them. Once ctx
// is cancelled no new calls are dispatched, but pairs already in flight
// complete or time out.
func (e *Engine) ScoreAll(ctx context.Context, variants []model.ValidatedVariant, records []model.EvidenceRecord, skip map[model.FindingID]struct{}) []model.Finding {
	type pair struct {
		variant  model.ValidatedVariant
		evidence model.EvidenceRecord
	}

	var pairs []pair
	for _, v := range variants {
		if !v.CarrierConfirmed {
			continue
		}
		for _, r := range records {
			if !r.MentionsGene(v.GeneSymbol) {
				continue
			}
			id := model.FindingID{VariantRSID: v.RSID, EvidenceID: r.ExternalID}
			if _, done := skip[id]; done {
				continue
			}
			pairs = append(pairs, pair{variant: v, evidence: r})
		}
	}
	if len(pairs) == 0 {
		return nil
	}

	g := new(errgroup.Group)
	g.SetLimit(e.maxConcurrent)

	var mu sync.Mutex
	var findings []model.Finding

	for _, p := range pairs {
		if ctx.Err() != nil {
			break
		}
		g.Go(func() error {
			f := e.Score(ctx, p.variant, p.evidence)
			mu.Lock()
			findings = append(findings, f)
			mu.Unlock()
			return nil
		})
	}
	_ = g.Wait()

	zap.L().Info("inference: batch scored",
		zap.Int("pairs", len(pairs)),
		zap.Int("findings", len(findings)),
	)
	return findings
}
