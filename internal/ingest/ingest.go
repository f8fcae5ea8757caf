// Package ingest fetches newly published literature for a gene list and
// persists only records not seen before. The operation is idempotent with
// respect to the ingested-record set: repeating a run over the same time
// window yields zero new records.
package ingest

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
	"golang.org/x/time/rate"

	"github.com/guardian-genomics/guardian-cli/internal/model"
	"github.com/guardian-genomics/guardian-cli/internal/resilience"
	"github.com/guardian-genomics/guardian-cli/pkg/litsearch"
)

// EvidenceStore is the slice of the store the ingestor needs.
type EvidenceStore interface {
	InsertEvidence(ctx context.Context, records []model.EvidenceRecord) ([]model.EvidenceRecord, error)
	GetWatermarks(ctx context.Context, genes []string) (map[string]time.Time, error)
}

// Config tunes the ingestor.
type Config struct {
	// RequestsPerMinute is the rate ceiling for the upstream literature
	// source, shared across all gene queries.
	RequestsPerMinute int

	// MaxConcurrent bounds concurrent gene fetches. Requests still
	// serialize through the shared rate gate.
	MaxConcurrent int

	// Retry controls per-gene retry of transient failures.
	Retry resilience.RetryConfig
}

// Result is the outcome of one ingestion pass. Records holds only the
// newly persisted evidence; SkippedGenes lists genes whose fetch failed
// after retries (non-fatal, reported in the run summary); Watermarks holds
// the advanced per-gene cursor, to be persisted by the caller only on a
// successful run commit.
type Result struct {
	Records      []model.EvidenceRecord
	SkippedGenes []string
	Watermarks   map[string]time.Time
}

// Ingestor fetches new literature evidence keyed by gene symbol.
type Ingestor struct {
	client  litsearch.Client
	store   EvidenceStore
	limiter *rate.Limiter
	cfg     Config
	nowFunc func() time.Time
}

// New creates an Ingestor. The rate gate is created once here and shared
// across every request the ingestor ever issues.
func New(client litsearch.Client, store EvidenceStore, cfg Config) *Ingestor {
	rpm := cfg.RequestsPerMinute
	if rpm <= 0 {
		rpm = 30
	}
	if cfg.MaxConcurrent <= 0 {
		cfg.MaxConcurrent = 4
	}
	return &Ingestor{
		client:  client,
		store:   store,
		limiter: rate.NewLimiter(rate.Limit(float64(rpm)/60.0), 1),
		cfg:     cfg,
		nowFunc: time.Now,
	}
}

// FetchNew queries the literature source for each gene, respecting the
// shared rate ceiling, and persists records not already ingested. One
// gene's failure never aborts the others. The returned error is non-nil
// only for store failures or full cancellation.
func (i *Ingestor) FetchNew(ctx context.Context, genes []string) (*Result, error) {
	genes = dedupeGenes(genes)
	result := &Result{Watermarks: make(map[string]time.Time)}
	if len(genes) == 0 {
		return result, nil
	}

	marks, err := i.store.GetWatermarks(ctx, genes)
	if err != nil {
		return nil, eris.Wrap(err, "ingest: load watermarks")
	}

	type geneFetch struct {
		gene     string
		articles []litsearch.Article
		err      error
	}

	g := new(errgroup.Group)
	g.SetLimit(i.cfg.MaxConcurrent)

	var mu sync.Mutex
	var fetches []geneFetch

	for _, gene := range genes {
		if ctx.Err() != nil {
			break
		}
		g.Go(func() error {
			articles, fetchErr := i.fetchGene(ctx, gene, marks[gene])
			mu.Lock()
			fetches = append(fetches, geneFetch{gene: gene, articles: articles, err: fetchErr})
			mu.Unlock()
			return nil
		})
	}
	_ = g.Wait()

	if ctx.Err() != nil {
		return nil, eris.Wrap(ctx.Err(), "ingest: cancelled")
	}

	// Stable ordering regardless of fetch completion order.
	sort.Slice(fetches, func(a, b int) bool { return fetches[a].gene < fetches[b].gene })

	now := i.nowFunc().UTC()
	seen := make(map[string]bool)
	var candidates []model.EvidenceRecord

	for _, f := range fetches {
		if f.err != nil {
			zap.L().Warn("ingest: gene skipped after retries",
				zap.String("gene", f.gene),
				zap.Error(f.err),
			)
			result.SkippedGenes = append(result.SkippedGenes, f.gene)
			continue
		}

		high := marks[f.gene]
		for _, a := range f.articles {
			// Client-side watermark guard for sources that ignore the
			// since filter.
			if !high.IsZero() && !a.PublishedAt.After(high) {
				continue
			}
			if a.PublishedAt.After(result.Watermarks[f.gene]) {
				result.Watermarks[f.gene] = a.PublishedAt
			}
			if seen[a.ExternalID] {
				continue
			}
			seen[a.ExternalID] = true
			candidates = append(candidates, model.EvidenceRecord{
				ExternalID:  a.ExternalID,
				GeneSymbols: a.GeneSymbols,
				Title:       a.Title,
				Abstract:    a.Abstract,
				PublishedAt: a.PublishedAt,
				IngestedAt:  now,
			})
		}
	}

	inserted, err := i.store.InsertEvidence(ctx, candidates)
	if err != nil {
		return nil, eris.Wrap(err, "ingest: persist evidence")
	}
	result.Records = inserted

	zap.L().Info("ingest: pass complete",
		zap.Int("genes", len(genes)),
		zap.Int("skipped_genes", len(result.SkippedGenes)),
		zap.Int("fetched", len(candidates)),
		zap.Int("new_records", len(inserted)),
	)
	return result, nil
}

// fetchGene performs one rate-limited, retried search for a single gene.
func (i *Ingestor) fetchGene(ctx context.Context, gene string, since time.Time) ([]litsearch.Article, error) {
	cfg := i.cfg.Retry
	if cfg.OnRetry == nil {
		cfg.OnRetry = resilience.RetryLogger("litsearch", "search "+gene)
	}

	resp, err := resilience.DoVal(ctx, cfg, func(ctx context.Context) (*litsearch.SearchResponse, error) {
		// The gate is acquired per attempt so retries also respect the
		// upstream ceiling.
		if err := i.limiter.Wait(ctx); err != nil {
			return nil, err
		}
		req := litsearch.SearchRequest{Gene: gene}
		if !since.IsZero() {
			req.Since = &since
		}
		return i.client.Search(ctx, req)
	})
	if err != nil {
		return nil, err
	}
	return resp.Results, nil
}

func dedupeGenes(genes []string) []string {
	seen := make(map[string]bool, len(genes))
	var out []string
	for _, g := range genes {
		if g == "" || seen[g] {
			continue
		}
		seen[g] = true
		out = append(out, g)
	}
	sort.Strings(out)
	return out
}
