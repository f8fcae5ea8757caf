package store

import (
	"context"
	"encoding/json"
	"errors"
	"strconv"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/rotisserie/eris"

	"github.com/guardian-genomics/guardian-cli/internal/db"
	"github.com/guardian-genomics/guardian-cli/internal/model"
)

// PostgresStore implements Store using pgxpool.
type PostgresStore struct {
	pool db.Pool
}

// PoolConfig holds optional connection pool tuning parameters.
type PoolConfig struct {
	MaxConns int32 `yaml:"max_conns" mapstructure:"max_conns"`
	MinConns int32 `yaml:"min_conns" mapstructure:"min_conns"`
}

// NewPostgres creates a PostgresStore with a connection pool.
func NewPostgres(ctx context.Context, connString string, poolCfg *PoolConfig) (*PostgresStore, error) {
	pgxCfg, err := pgxpool.ParseConfig(connString)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: parse config")
	}

	maxConns := int32(10)
	minConns := int32(2)
	if poolCfg != nil {
		if poolCfg.MaxConns > 0 {
			maxConns = poolCfg.MaxConns
		}
		if poolCfg.MinConns > 0 {
			minConns = poolCfg.MinConns
		}
	}
	pgxCfg.MaxConns = maxConns
	pgxCfg.MinConns = minConns
	pgxCfg.MaxConnLifetime = 30 * time.Minute
	pgxCfg.MaxConnIdleTime = 5 * time.Minute

	pool, err := pgxpool.NewWithConfig(ctx, pgxCfg)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: create pool")
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, eris.Wrap(err, "postgres: ping")
	}
	return &PostgresStore{pool: pool}, nil
}

const postgresMigration = `
CREATE TABLE IF NOT EXISTS variant_calls (
	rsid        TEXT PRIMARY KEY,
	genotype    TEXT NOT NULL,
	gene_symbol TEXT NOT NULL,
	imported_at TIMESTAMPTZ NOT NULL DEFAULT now()
);

CREATE TABLE IF NOT EXISTS evidence_records (
	external_id  TEXT PRIMARY KEY,
	gene_symbols JSONB NOT NULL,
	title        TEXT NOT NULL,
	abstract     TEXT NOT NULL,
	published_at TIMESTAMPTZ NOT NULL,
	ingested_at  TIMESTAMPTZ NOT NULL DEFAULT now()
);

CREATE TABLE IF NOT EXISTS gene_watermarks (
	gene              TEXT PRIMARY KEY,
	last_published_at TIMESTAMPTZ NOT NULL
);

CREATE TABLE IF NOT EXISTS findings (
	variant_rsid TEXT NOT NULL,
	evidence_id  TEXT NOT NULL REFERENCES evidence_records(external_id),
	run_id       TEXT NOT NULL,
	gene_symbol  TEXT NOT NULL,
	relevance    TEXT NOT NULL,
	direction    TEXT NOT NULL,
	rationale    TEXT NOT NULL,
	degraded     BOOLEAN NOT NULL DEFAULT false,
	created_at   TIMESTAMPTZ NOT NULL DEFAULT now(),
	PRIMARY KEY (variant_rsid, evidence_id)
);

CREATE TABLE IF NOT EXISTS runs (
	id         TEXT PRIMARY KEY,
	status     TEXT NOT NULL DEFAULT 'queued',
	summary    JSONB,
	report     JSONB,
	created_at TIMESTAMPTZ NOT NULL DEFAULT now(),
	updated_at TIMESTAMPTZ NOT NULL DEFAULT now()
);

CREATE INDEX IF NOT EXISTS idx_evidence_published_at ON evidence_records(published_at);
CREATE INDEX IF NOT EXISTS idx_findings_run_id ON findings(run_id);
CREATE INDEX IF NOT EXISTS idx_runs_status ON runs(status);
`

func (s *PostgresStore) Migrate(ctx context.Context) error {
	_, err := s.pool.Exec(ctx, postgresMigration)
	return eris.Wrap(err, "postgres: migrate")
}

func (s *PostgresStore) Close() error {
	s.pool.Close()
	return nil
}

func (s *PostgresStore) Ping(ctx context.Context) error {
	return eris.Wrap(s.pool.Ping(ctx), "postgres: ping")
}

func (s *PostgresStore) ImportVariantCalls(ctx context.Context, calls []model.VariantCall) (int, error) {
	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return 0, eris.Wrap(err, "postgres: begin import")
	}
	defer tx.Rollback(ctx)

	count := 0
	for _, c := range calls {
		tag, err := tx.Exec(ctx,
			`INSERT INTO variant_calls (rsid, genotype, gene_symbol) VALUES ($1, $2, $3)
			 ON CONFLICT (rsid) DO UPDATE SET genotype = EXCLUDED.genotype, gene_symbol = EXCLUDED.gene_symbol`,
			c.RSID, c.Genotype, c.GeneSymbol,
		)
		if err != nil {
			return 0, eris.Wrapf(err, "postgres: import call %s", c.RSID)
		}
		count += int(tag.RowsAffected())
	}

	if err := tx.Commit(ctx); err != nil {
		return 0, eris.Wrap(err, "postgres: commit import")
	}
	return count, nil
}

func (s *PostgresStore) ListVariantCalls(ctx context.Context) ([]model.VariantCall, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT rsid, genotype, gene_symbol FROM variant_calls ORDER BY rsid`,
	)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: list variant calls")
	}
	defer rows.Close()

	var calls []model.VariantCall
	for rows.Next() {
		var c model.VariantCall
		if err := rows.Scan(&c.RSID, &c.Genotype, &c.GeneSymbol); err != nil {
			return nil, eris.Wrap(err, "postgres: scan variant call")
		}
		calls = append(calls, c)
	}
	return calls, eris.Wrap(rows.Err(), "postgres: list variant calls")
}

func (s *PostgresStore) InsertEvidence(ctx context.Context, records []model.EvidenceRecord) ([]model.EvidenceRecord, error) {
	var inserted []model.EvidenceRecord
	for _, r := range records {
		genes, err := json.Marshal(r.GeneSymbols)
		if err != nil {
			return nil, eris.Wrap(err, "postgres: marshal gene symbols")
		}
		tag, err := s.pool.Exec(ctx,
			`INSERT INTO evidence_records (external_id, gene_symbols, title, abstract, published_at, ingested_at)
			 VALUES ($1, $2, $3, $4, $5, $6)
			 ON CONFLICT (external_id) DO NOTHING`,
			r.ExternalID, genes, r.Title, r.Abstract, r.PublishedAt, r.IngestedAt,
		)
		if err != nil {
			return nil, eris.Wrapf(err, "postgres: insert evidence %s", r.ExternalID)
		}
		if tag.RowsAffected() > 0 {
			inserted = append(inserted, r)
		}
	}
	return inserted, nil
}

func (s *PostgresStore) ListEvidenceByGene(ctx context.Context, gene string) ([]model.EvidenceRecord, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT external_id, gene_symbols, title, abstract, published_at, ingested_at
		 FROM evidence_records WHERE gene_symbols ? $1 ORDER BY published_at`,
		gene,
	)
	if err != nil {
		return nil, eris.Wrapf(err, "postgres: list evidence for %s", gene)
	}
	defer rows.Close()

	var records []model.EvidenceRecord
	for rows.Next() {
		r, err := scanEvidence(rows)
		if err != nil {
			return nil, err
		}
		records = append(records, *r)
	}
	return records, eris.Wrapf(rows.Err(), "postgres: list evidence for %s", gene)
}

func scanEvidence(row pgx.Row) (*model.EvidenceRecord, error) {
	var r model.EvidenceRecord
	var genes []byte
	if err := row.Scan(&r.ExternalID, &genes, &r.Title, &r.Abstract, &r.PublishedAt, &r.IngestedAt); err != nil {
		return nil, eris.Wrap(err, "postgres: scan evidence")
	}
	if err := json.Unmarshal(genes, &r.GeneSymbols); err != nil {
		return nil, eris.Wrap(err, "postgres: unmarshal gene symbols")
	}
	return &r, nil
}

func (s *PostgresStore) GetWatermarks(ctx context.Context, genes []string) (map[string]time.Time, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT gene, last_published_at FROM gene_watermarks WHERE gene = ANY($1)`,
		genes,
	)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: get watermarks")
	}
	defer rows.Close()

	marks := make(map[string]time.Time)
	for rows.Next() {
		var gene string
		var ts time.Time
		if err := rows.Scan(&gene, &ts); err != nil {
			return nil, eris.Wrap(err, "postgres: scan watermark")
		}
		marks[gene] = ts
	}
	return marks, eris.Wrap(rows.Err(), "postgres: get watermarks")
}

func (s *PostgresStore) PriorFindingIDs(ctx context.Context) (map[model.FindingID]struct{}, error) {
	rows, err := s.pool.Query(ctx, `SELECT variant_rsid, evidence_id FROM findings`)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: prior finding ids")
	}
	defer rows.Close()

	ids := make(map[model.FindingID]struct{})
	for rows.Next() {
		var id model.FindingID
		if err := rows.Scan(&id.VariantRSID, &id.EvidenceID); err != nil {
			return nil, eris.Wrap(err, "postgres: scan finding id")
		}
		ids[id] = struct{}{}
	}
	return ids, eris.Wrap(rows.Err(), "postgres: prior finding ids")
}

func (s *PostgresStore) CreateRun(ctx context.Context) (*model.Run, error) {
	id := uuid.New().String()
	now := time.Now().UTC()

	_, err := s.pool.Exec(ctx,
		`INSERT INTO runs (id, status, created_at, updated_at) VALUES ($1, $2, $3, $4)`,
		id, string(model.RunStatusQueued), now, now,
	)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: insert run")
	}

	return &model.Run{
		ID:        id,
		Status:    model.RunStatusQueued,
		CreatedAt: now,
		UpdatedAt: now,
	}, nil
}

func (s *PostgresStore) UpdateRunStatus(ctx context.Context, runID string, status model.RunStatus) error {
	tag, err := s.pool.Exec(ctx,
		`UPDATE runs SET status = $1, updated_at = $2 WHERE id = $3`,
		string(status), time.Now().UTC(), runID,
	)
	if err != nil {
		return eris.Wrapf(err, "postgres: update run status %s", runID)
	}
	if tag.RowsAffected() == 0 {
		return eris.Errorf("postgres: run %s not found", runID)
	}
	return nil
}

func (s *PostgresStore) GetRun(ctx context.Context, runID string) (*model.Run, error) {
	row := s.pool.QueryRow(ctx,
		`SELECT id, status, summary, report, created_at, updated_at FROM runs WHERE id = $1`,
		runID,
	)
	run, err := scanRun(row)
	if err != nil {
		return nil, eris.Wrapf(err, "postgres: get run %s", runID)
	}
	return run, nil
}

func (s *PostgresStore) ListRuns(ctx context.Context, filter RunFilter) ([]model.Run, error) {
	query := `SELECT id, status, summary, report, created_at, updated_at FROM runs WHERE 1=1`
	var args []any

	if filter.Status != "" {
		args = append(args, string(filter.Status))
		query += ` AND status = $1`
	}
	query += ` ORDER BY created_at DESC`
	if filter.Limit > 0 {
		args = append(args, filter.Limit)
		query += ` LIMIT $` + strconv.Itoa(len(args))
	}
	if filter.Offset > 0 {
		args = append(args, filter.Offset)
		query += ` OFFSET $` + strconv.Itoa(len(args))
	}

	rows, err := s.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: list runs")
	}
	defer rows.Close()

	var runs []model.Run
	for rows.Next() {
		run, err := scanRun(rows)
		if err != nil {
			return nil, eris.Wrap(err, "postgres: list runs")
		}
		runs = append(runs, *run)
	}
	return runs, eris.Wrap(rows.Err(), "postgres: list runs")
}

// CommitRun writes the run's findings, watermark advances, and final
// summary in a single transaction. If any statement fails the transaction
// rolls back and the delta state is untouched: the run must then be marked
// failed and retried in full next cycle.
func (s *PostgresStore) CommitRun(ctx context.Context, commit RunCommit) error {
	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return eris.Wrap(err, "postgres: begin commit")
	}
	defer tx.Rollback(ctx)

	if commit.Report != nil {
		for _, f := range commit.Report.NewFindings {
			if _, err := tx.Exec(ctx,
				`INSERT INTO findings (variant_rsid, evidence_id, run_id, gene_symbol, relevance, direction, rationale, degraded)
				 VALUES ($1, $2, $3, $4, $5, $6, $7, $8)`,
				f.VariantRSID, f.EvidenceID, commit.RunID, f.GeneSymbol,
				string(f.Relevance), string(f.Direction), f.Rationale, f.Degraded,
			); err != nil {
				return eris.Wrapf(err, "postgres: insert finding %s/%s", f.VariantRSID, f.EvidenceID)
			}
		}
	}

	for gene, ts := range commit.Watermarks {
		if _, err := tx.Exec(ctx,
			`INSERT INTO gene_watermarks (gene, last_published_at) VALUES ($1, $2)
			 ON CONFLICT (gene) DO UPDATE SET last_published_at = EXCLUDED.last_published_at`,
			gene, ts,
		); err != nil {
			return eris.Wrapf(err, "postgres: upsert watermark %s", gene)
		}
	}

	summaryJSON, err := json.Marshal(commit.Summary)
	if err != nil {
		return eris.Wrap(err, "postgres: marshal summary")
	}
	var reportJSON []byte
	if commit.Report != nil {
		if reportJSON, err = json.Marshal(commit.Report); err != nil {
			return eris.Wrap(err, "postgres: marshal report")
		}
	}

	if _, err := tx.Exec(ctx,
		`UPDATE runs SET status = $1, summary = $2, report = $3, updated_at = $4 WHERE id = $5`,
		string(model.RunStatusComplete), summaryJSON, reportJSON, time.Now().UTC(), commit.RunID,
	); err != nil {
		return eris.Wrapf(err, "postgres: finalize run %s", commit.RunID)
	}

	return eris.Wrap(tx.Commit(ctx), "postgres: commit run")
}

func scanRun(row pgx.Row) (*model.Run, error) {
	var run model.Run
	var status string
	var summaryJSON, reportJSON []byte

	if err := row.Scan(&run.ID, &status, &summaryJSON, &reportJSON, &run.CreatedAt, &run.UpdatedAt); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, eris.Wrap(err, "get run")
		}
		return nil, eris.Wrap(err, "scan run")
	}
	run.Status = model.RunStatus(status)

	if len(summaryJSON) > 0 {
		var summary model.RunSummary
		if err := json.Unmarshal(summaryJSON, &summary); err != nil {
			return nil, eris.Wrap(err, "unmarshal run summary")
		}
		run.Summary = &summary
	}
	if len(reportJSON) > 0 {
		var report model.DeltaReport
		if err := json.Unmarshal(reportJSON, &report); err != nil {
			return nil, eris.Wrap(err, "unmarshal run report")
		}
		run.Report = &report
	}
	return &run, nil
}
