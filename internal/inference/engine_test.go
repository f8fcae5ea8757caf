package inference

import (
	"context"
	"errors"
	"fmt"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/guardian-genomics/guardian-cli/internal/model"
)

type fakeBackend struct {
	response string
	err      error
	delay    time.Duration
	calls    atomic.Int64
}

func (f *fakeBackend) Complete(ctx context.Context, _, _ string) (string, error) {
	f.calls.Add(1)
	if f.delay > 0 {
		select {
		case <-ctx.Done():
			return "", ctx.Err()
		case <-time.After(f.delay):
		}
	}
	return f.response, f.err
}

func carrier(rsid, gene string) model.ValidatedVariant {
	return model.ValidatedVariant{
		VariantCall:      model.VariantCall{RSID: rsid, Genotype: "A/G", GeneSymbol: gene},
		Zygosity:         model.ZygosityHeterozygous,
		CarrierConfirmed: true,
	}
}

func TestScoreSuccess(t *testing.T) {
	backend := &fakeBackend{
		response: `{"relevance": "clinically_relevant", "direction": "risk", "rationale": "Direct association reported."}`,
	}
	e := NewEngine(backend)

	f := e.Score(context.Background(), carrier("rs123", "BRCA1"), model.EvidenceRecord{
		ExternalID:  "PMID:1",
		GeneSymbols: []string{"BRCA1"},
	})

	assert.Equal(t, "rs123", f.VariantRSID)
	assert.Equal(t, "PMID:1", f.EvidenceID)
	assert.Equal(t, model.RelevanceClinicallyRelevant, f.Relevance)
	assert.Equal(t, model.DirectionRisk, f.Direction)
	assert.False(t, f.Degraded)
}

func TestScoreDegradesOnBackendError(t *testing.T) {
	e := NewEngine(&fakeBackend{err: errors.New("connection refused")})

	f := e.Score(context.Background(), carrier("rs123", "BRCA1"), model.EvidenceRecord{ExternalID: "PMID:1"})

	assert.True(t, f.Degraded)
	assert.Equal(t, model.RelevanceIrrelevant, f.Relevance)
	assert.Equal(t, model.DirectionAmbiguous, f.Direction)
	assert.Contains(t, f.Rationale, "backend unavailable")
}

func TestScoreDegradesOnUnparsableOutput(t *testing.T) {
	e := NewEngine(&fakeBackend{response: "the paper seems relevant to me"})

	f := e.Score(context.Background(), carrier("rs123", "BRCA1"), model.EvidenceRecord{ExternalID: "PMID:1"})

	assert.True(t, f.Degraded)
	assert.Equal(t, model.RelevanceIrrelevant, f.Relevance)
	assert.Contains(t, f.Rationale, "unparsable")
}

func TestScoreDegradesOnTimeout(t *testing.T) {
	e := NewEngine(&fakeBackend{
		response: `{"relevance": "irrelevant", "direction": "ambiguous", "rationale": "x"}`,
		delay:    200 * time.Millisecond,
	}, WithTimeout(10*time.Millisecond))

	f := e.Score(context.Background(), carrier("rs123", "BRCA1"), model.EvidenceRecord{ExternalID: "PMID:1"})

	assert.True(t, f.Degraded)
	assert.Equal(t, model.RelevanceIrrelevant, f.Relevance)
}

func TestScoreAllGeneOverlapOnly(t *testing.T) {
	backend := &fakeBackend{
		response: `{"relevance": "possibly_relevant", "direction": "ambiguous", "rationale": "x"}`,
	}
	e := NewEngine(backend)

	variants := []model.ValidatedVariant{
		carrier("rs1", "BRCA1"),
		{
			VariantCall:      model.VariantCall{RSID: "rs2", Genotype: "A/A", GeneSymbol: "TP53"},
			Zygosity:         model.ZygosityHomozygous,
			CarrierConfirmed: false,
		},
	}
	records := []model.EvidenceRecord{
		{ExternalID: "PMID:1", GeneSymbols: []string{"BRCA1"}},
		{ExternalID: "PMID:2", GeneSymbols: []string{"TP53"}},
		{ExternalID: "PMID:3", GeneSymbols: []string{"BRCA1", "TP53"}},
	}

	findings := e.ScoreAll(context.Background(), variants, records, nil)

	// Non-carriers are never scored; only records mentioning BRCA1 pair
	// with rs1.
	require.Len(t, findings, 2)
	ids := map[string]bool{}
	for _, f := range findings {
		assert.Equal(t, "rs1", f.VariantRSID)
		ids[f.EvidenceID] = true
	}
	assert.True(t, ids["PMID:1"])
	assert.True(t, ids["PMID:3"])
	assert.Equal(t, int64(2), backend.calls.Load())
}

func TestScoreAllSkipsKnownPairs(t *testing.T) {
	backend := &fakeBackend{
		response: `{"relevance": "irrelevant", "direction": "ambiguous", "rationale": "x"}`,
	}
	e := NewEngine(backend)

	skip := map[model.FindingID]struct{}{
		{VariantRSID: "rs1", EvidenceID: "PMID:1"}: {},
	}

	findings := e.ScoreAll(context.Background(),
		[]model.ValidatedVariant{carrier("rs1", "BRCA1")},
		[]model.EvidenceRecord{
			{ExternalID: "PMID:1", GeneSymbols: []string{"BRCA1"}},
			{ExternalID: "PMID:2", GeneSymbols: []string{"BRCA1"}},
		},
		skip,
	)

	require.Len(t, findings, 1)
	assert.Equal(t, "PMID:2", findings[0].EvidenceID)
	assert.Equal(t, int64(1), backend.calls.Load(), "skipped pair costs no backend call")
}

func TestScoreAllCancelledDispatchesNothing(t *testing.T) {
	backend := &fakeBackend{
		response: `{"relevance": "irrelevant", "direction": "ambiguous", "rationale": "x"}`,
	}
	e := NewEngine(backend)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	findings := e.ScoreAll(ctx,
		[]model.ValidatedVariant{carrier("rs1", "BRCA1")},
		[]model.EvidenceRecord{
			{ExternalID: "PMID:1", GeneSymbols: []string{"BRCA1"}},
			{ExternalID: "PMID:2", GeneSymbols: []string{"BRCA1"}},
		},
		nil,
	)

	assert.Empty(t, findings)
	assert.Zero(t, backend.calls.Load())
}

// cancellingBackend cancels the batch context from inside its first call.
type cancellingBackend struct {
	fakeBackend
	cancel context.CancelFunc
}

func (c *cancellingBackend) Complete(ctx context.Context, system, user string) (string, error) {
	c.cancel()
	return c.fakeBackend.Complete(ctx, system, user)
}

func TestScoreAllCancelledMidBatchStopsDispatching(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	backend := &cancellingBackend{
		fakeBackend: fakeBackend{delay: 50 * time.Millisecond},
		cancel:      cancel,
	}
	e := NewEngine(backend, WithMaxConcurrent(1))

	records := make([]model.EvidenceRecord, 6)
	for i := range records {
		records[i] = model.EvidenceRecord{
			ExternalID:  fmt.Sprintf("PMID:%d", i+1),
			GeneSymbols: []string{"BRCA1"},
		}
	}

	findings := e.ScoreAll(ctx, []model.ValidatedVariant{carrier("rs1", "BRCA1")}, records, nil)

	// The first call cancels the batch; pairs not yet dispatched never
	// reach the backend. In-flight calls degrade rather than error.
	assert.Less(t, backend.calls.Load(), int64(len(records)))
	assert.Less(t, len(findings), len(records))
	for _, f := range findings {
		assert.True(t, f.Degraded)
	}
}

func TestScoreAllEmptyPairs(t *testing.T) {
	e := NewEngine(&fakeBackend{})
	findings := e.ScoreAll(context.Background(),
		[]model.ValidatedVariant{carrier("rs1", "BRCA1")},
		[]model.EvidenceRecord{{ExternalID: "PMID:1", GeneSymbols: []string{"APOE"}}},
		nil,
	)
	assert.Empty(t, findings)
}
