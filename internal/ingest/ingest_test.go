package ingest

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/guardian-genomics/guardian-cli/internal/model"
	"github.com/guardian-genomics/guardian-cli/internal/resilience"
	"github.com/guardian-genomics/guardian-cli/pkg/litsearch"
)

type fakeClient struct {
	mu       sync.Mutex
	articles map[string][]litsearch.Article
	failures map[string]error
	requests []litsearch.SearchRequest
}

func (f *fakeClient) Search(_ context.Context, req litsearch.SearchRequest) (*litsearch.SearchResponse, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.requests = append(f.requests, req)
	if err := f.failures[req.Gene]; err != nil {
		return nil, err
	}
	results := f.articles[req.Gene]
	return &litsearch.SearchResponse{Results: results, Total: len(results)}, nil
}

type fakeStore struct {
	mu         sync.Mutex
	records    map[string]model.EvidenceRecord
	watermarks map[string]time.Time
}

func newFakeStore() *fakeStore {
	return &fakeStore{
		records:    make(map[string]model.EvidenceRecord),
		watermarks: make(map[string]time.Time),
	}
}

func (f *fakeStore) InsertEvidence(_ context.Context, records []model.EvidenceRecord) ([]model.EvidenceRecord, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var inserted []model.EvidenceRecord
	for _, r := range records {
		if _, exists := f.records[r.ExternalID]; exists {
			continue
		}
		f.records[r.ExternalID] = r
		inserted = append(inserted, r)
	}
	return inserted, nil
}

func (f *fakeStore) GetWatermarks(_ context.Context, genes []string) (map[string]time.Time, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make(map[string]time.Time)
	for _, g := range genes {
		if ts, ok := f.watermarks[g]; ok {
			out[g] = ts
		}
	}
	return out, nil
}

func fastConfig() Config {
	return Config{
		RequestsPerMinute: 60000,
		MaxConcurrent:     4,
		Retry: resilience.RetryConfig{
			MaxAttempts:    2,
			InitialBackoff: time.Millisecond,
			MaxBackoff:     time.Millisecond,
		},
	}
}

func article(id, gene string, published time.Time) litsearch.Article {
	return litsearch.Article{
		ExternalID:  id,
		Title:       "title " + id,
		GeneSymbols: []string{gene},
		PublishedAt: published,
	}
}

func TestFetchNewPersistsOnlyNewRecords(t *testing.T) {
	day1 := time.Date(2026, 2, 1, 0, 0, 0, 0, time.UTC)
	day2 := time.Date(2026, 2, 2, 0, 0, 0, 0, time.UTC)

	client := &fakeClient{articles: map[string][]litsearch.Article{
		"BRCA1": {article("PMID:1", "BRCA1", day1), article("PMID:2", "BRCA1", day2)},
	}}
	st := newFakeStore()
	ing := New(client, st, fastConfig())

	result, err := ing.FetchNew(context.Background(), []string{"BRCA1"})
	require.NoError(t, err)

	require.Len(t, result.Records, 2)
	assert.Empty(t, result.SkippedGenes)
	assert.True(t, result.Watermarks["BRCA1"].Equal(day2), "watermark advances to newest publication")
	assert.False(t, result.Records[0].IngestedAt.IsZero())
}

func TestFetchNewIsIdempotent(t *testing.T) {
	day1 := time.Date(2026, 2, 1, 0, 0, 0, 0, time.UTC)

	client := &fakeClient{articles: map[string][]litsearch.Article{
		"BRCA1": {article("PMID:1", "BRCA1", day1)},
	}}
	st := newFakeStore()
	ing := New(client, st, fastConfig())

	first, err := ing.FetchNew(context.Background(), []string{"BRCA1"})
	require.NoError(t, err)
	require.Len(t, first.Records, 1)

	// Same upstream data again: the store's idempotency key filters all of
	// it out.
	second, err := ing.FetchNew(context.Background(), []string{"BRCA1"})
	require.NoError(t, err)
	assert.Empty(t, second.Records)
	assert.Len(t, st.records, 1)
}

func TestFetchNewRespectsWatermark(t *testing.T) {
	day1 := time.Date(2026, 2, 1, 0, 0, 0, 0, time.UTC)
	day2 := time.Date(2026, 2, 2, 0, 0, 0, 0, time.UTC)

	client := &fakeClient{articles: map[string][]litsearch.Article{
		"BRCA1": {article("PMID:1", "BRCA1", day1), article("PMID:2", "BRCA1", day2)},
	}}
	st := newFakeStore()
	st.watermarks["BRCA1"] = day1
	ing := New(client, st, fastConfig())

	result, err := ing.FetchNew(context.Background(), []string{"BRCA1"})
	require.NoError(t, err)

	// Records at or before the watermark are filtered client-side even when
	// the source ignores the since parameter.
	require.Len(t, result.Records, 1)
	assert.Equal(t, "PMID:2", result.Records[0].ExternalID)
	assert.True(t, result.Watermarks["BRCA1"].Equal(day2))

	// The since filter was sent upstream.
	require.NotEmpty(t, client.requests)
	require.NotNil(t, client.requests[0].Since)
	assert.True(t, client.requests[0].Since.Equal(day1))
}

func TestFetchNewSkipsFailedGeneAndContinues(t *testing.T) {
	day1 := time.Date(2026, 2, 1, 0, 0, 0, 0, time.UTC)

	client := &fakeClient{
		articles: map[string][]litsearch.Article{
			"TP53": {article("PMID:9", "TP53", day1)},
		},
		failures: map[string]error{
			"BRCA1": resilience.NewTransientError(errors.New("upstream down"), 503),
		},
	}
	st := newFakeStore()
	ing := New(client, st, fastConfig())

	result, err := ing.FetchNew(context.Background(), []string{"BRCA1", "TP53"})
	require.NoError(t, err, "one gene's failure never aborts the pass")

	assert.Equal(t, []string{"BRCA1"}, result.SkippedGenes)
	require.Len(t, result.Records, 1)
	assert.Equal(t, "PMID:9", result.Records[0].ExternalID)
	_, hasMark := result.Watermarks["BRCA1"]
	assert.False(t, hasMark, "failed gene's watermark stays put")
}

func TestFetchNewRetriesTransientFailures(t *testing.T) {
	day1 := time.Date(2026, 2, 1, 0, 0, 0, 0, time.UTC)

	attempts := 0
	client := &flakyClient{
		failUntil: 2,
		attempts:  &attempts,
		article:   article("PMID:1", "BRCA1", day1),
	}
	st := newFakeStore()
	ing := New(client, st, fastConfig())

	result, err := ing.FetchNew(context.Background(), []string{"BRCA1"})
	require.NoError(t, err)
	require.Len(t, result.Records, 1)
	assert.Equal(t, 2, attempts)
}

type flakyClient struct {
	mu        sync.Mutex
	failUntil int
	attempts  *int
	article   litsearch.Article
}

func (f *flakyClient) Search(context.Context, litsearch.SearchRequest) (*litsearch.SearchResponse, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	*f.attempts++
	if *f.attempts < f.failUntil {
		return nil, resilience.NewTransientError(errors.New("flaky"), 502)
	}
	return &litsearch.SearchResponse{Results: []litsearch.Article{f.article}}, nil
}

func TestFetchNewDeduplicatesWithinBatch(t *testing.T) {
	day1 := time.Date(2026, 2, 1, 0, 0, 0, 0, time.UTC)
	shared := litsearch.Article{
		ExternalID:  "PMID:1",
		GeneSymbols: []string{"BRCA1", "TP53"},
		PublishedAt: day1,
	}

	client := &fakeClient{articles: map[string][]litsearch.Article{
		"BRCA1": {shared},
		"TP53":  {shared},
	}}
	st := newFakeStore()
	ing := New(client, st, fastConfig())

	result, err := ing.FetchNew(context.Background(), []string{"TP53", "BRCA1", "BRCA1"})
	require.NoError(t, err)

	require.Len(t, result.Records, 1)
	assert.True(t, result.Watermarks["BRCA1"].Equal(day1))
	assert.True(t, result.Watermarks["TP53"].Equal(day1), "both genes advance off the shared record")
}

func TestFetchNewNoGenes(t *testing.T) {
	ing := New(&fakeClient{}, newFakeStore(), fastConfig())
	result, err := ing.FetchNew(context.Background(), nil)
	require.NoError(t, err)
	assert.Empty(t, result.Records)
	assert.Empty(t, result.SkippedGenes)
}

func TestDedupeGenes(t *testing.T) {
	assert.Equal(t, []string{"APOE", "BRCA1"}, dedupeGenes([]string{"BRCA1", "APOE", "BRCA1", ""}))
	assert.Nil(t, dedupeGenes(nil))
}
