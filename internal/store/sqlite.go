package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"time"

	"github.com/google/uuid"
	"github.com/rotisserie/eris"
	_ "modernc.org/sqlite"

	"github.com/guardian-genomics/guardian-cli/internal/model"
)

// SQLiteStore implements Store using modernc.org/sqlite, for single-binary
// deployments without a Postgres instance.
type SQLiteStore struct {
	db *sql.DB
}

// NewSQLite opens a SQLite database at the given path and configures WAL mode.
func NewSQLite(dsn string) (*SQLiteStore, error) {
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: open")
	}
	for _, pragma := range []string{
		"PRAGMA journal_mode=WAL",
		"PRAGMA busy_timeout=5000",
		"PRAGMA synchronous=NORMAL",
		"PRAGMA foreign_keys=ON",
	} {
		if _, err := db.Exec(pragma); err != nil {
			db.Close()
			return nil, eris.Wrapf(err, "sqlite: exec %s", pragma)
		}
	}
	return &SQLiteStore{db: db}, nil
}

const sqliteMigration = `
CREATE TABLE IF NOT EXISTS variant_calls (
	rsid        TEXT PRIMARY KEY,
	genotype    TEXT NOT NULL,
	gene_symbol TEXT NOT NULL,
	imported_at DATETIME NOT NULL DEFAULT (datetime('now'))
);

CREATE TABLE IF NOT EXISTS evidence_records (
	external_id  TEXT PRIMARY KEY,
	gene_symbols TEXT NOT NULL,
	title        TEXT NOT NULL,
	abstract     TEXT NOT NULL,
	published_at DATETIME NOT NULL,
	ingested_at  DATETIME NOT NULL DEFAULT (datetime('now'))
);

CREATE TABLE IF NOT EXISTS gene_watermarks (
	gene              TEXT PRIMARY KEY,
	last_published_at DATETIME NOT NULL
);

CREATE TABLE IF NOT EXISTS findings (
	variant_rsid TEXT NOT NULL,
	evidence_id  TEXT NOT NULL REFERENCES evidence_records(external_id),
	run_id       TEXT NOT NULL,
	gene_symbol  TEXT NOT NULL,
	relevance    TEXT NOT NULL,
	direction    TEXT NOT NULL,
	rationale    TEXT NOT NULL,
	degraded     INTEGER NOT NULL DEFAULT 0,
	created_at   DATETIME NOT NULL DEFAULT (datetime('now')),
	PRIMARY KEY (variant_rsid, evidence_id)
);

CREATE TABLE IF NOT EXISTS runs (
	id         TEXT PRIMARY KEY,
	status     TEXT NOT NULL DEFAULT 'queued',
	summary    TEXT,
	report     TEXT,
	created_at DATETIME NOT NULL,
	updated_at DATETIME NOT NULL
);

CREATE INDEX IF NOT EXISTS idx_evidence_published_at ON evidence_records(published_at);
CREATE INDEX IF NOT EXISTS idx_findings_run_id ON findings(run_id);
CREATE INDEX IF NOT EXISTS idx_runs_status ON runs(status);
`

func (s *SQLiteStore) Migrate(ctx context.Context) error {
	_, err := s.db.ExecContext(ctx, sqliteMigration)
	return eris.Wrap(err, "sqlite: migrate")
}

func (s *SQLiteStore) Close() error {
	return s.db.Close()
}

func (s *SQLiteStore) ImportVariantCalls(ctx context.Context, calls []model.VariantCall) (int, error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return 0, eris.Wrap(err, "sqlite: begin import")
	}
	defer tx.Rollback()

	count := 0
	for _, c := range calls {
		res, err := tx.ExecContext(ctx,
			`INSERT INTO variant_calls (rsid, genotype, gene_symbol) VALUES (?, ?, ?)
			 ON CONFLICT (rsid) DO UPDATE SET genotype = excluded.genotype, gene_symbol = excluded.gene_symbol`,
			c.RSID, c.Genotype, c.GeneSymbol,
		)
		if err != nil {
			return 0, eris.Wrapf(err, "sqlite: import call %s", c.RSID)
		}
		n, _ := res.RowsAffected()
		count += int(n)
	}

	if err := tx.Commit(); err != nil {
		return 0, eris.Wrap(err, "sqlite: commit import")
	}
	return count, nil
}

func (s *SQLiteStore) ListVariantCalls(ctx context.Context) ([]model.VariantCall, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT rsid, genotype, gene_symbol FROM variant_calls ORDER BY rsid`,
	)
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: list variant calls")
	}
	defer rows.Close()

	var calls []model.VariantCall
	for rows.Next() {
		var c model.VariantCall
		if err := rows.Scan(&c.RSID, &c.Genotype, &c.GeneSymbol); err != nil {
			return nil, eris.Wrap(err, "sqlite: scan variant call")
		}
		calls = append(calls, c)
	}
	return calls, eris.Wrap(rows.Err(), "sqlite: list variant calls")
}

func (s *SQLiteStore) InsertEvidence(ctx context.Context, records []model.EvidenceRecord) ([]model.EvidenceRecord, error) {
	var inserted []model.EvidenceRecord
	for _, r := range records {
		genes, err := json.Marshal(r.GeneSymbols)
		if err != nil {
			return nil, eris.Wrap(err, "sqlite: marshal gene symbols")
		}
		res, err := s.db.ExecContext(ctx,
			`INSERT INTO evidence_records (external_id, gene_symbols, title, abstract, published_at, ingested_at)
			 VALUES (?, ?, ?, ?, ?, ?)
			 ON CONFLICT (external_id) DO NOTHING`,
			r.ExternalID, string(genes), r.Title, r.Abstract, r.PublishedAt.UTC(), r.IngestedAt.UTC(),
		)
		if err != nil {
			return nil, eris.Wrapf(err, "sqlite: insert evidence %s", r.ExternalID)
		}
		if n, _ := res.RowsAffected(); n > 0 {
			inserted = append(inserted, r)
		}
	}
	return inserted, nil
}

func (s *SQLiteStore) ListEvidenceByGene(ctx context.Context, gene string) ([]model.EvidenceRecord, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT external_id, gene_symbols, title, abstract, published_at, ingested_at
		 FROM evidence_records
		 WHERE EXISTS (SELECT 1 FROM json_each(evidence_records.gene_symbols) WHERE json_each.value = ?)
		 ORDER BY published_at`,
		gene,
	)
	if err != nil {
		return nil, eris.Wrapf(err, "sqlite: list evidence for %s", gene)
	}
	defer rows.Close()

	var records []model.EvidenceRecord
	for rows.Next() {
		var r model.EvidenceRecord
		var genes string
		if err := rows.Scan(&r.ExternalID, &genes, &r.Title, &r.Abstract, &r.PublishedAt, &r.IngestedAt); err != nil {
			return nil, eris.Wrap(err, "sqlite: scan evidence")
		}
		if err := json.Unmarshal([]byte(genes), &r.GeneSymbols); err != nil {
			return nil, eris.Wrap(err, "sqlite: unmarshal gene symbols")
		}
		records = append(records, r)
	}
	return records, eris.Wrapf(rows.Err(), "sqlite: list evidence for %s", gene)
}

func (s *SQLiteStore) GetWatermarks(ctx context.Context, genes []string) (map[string]time.Time, error) {
	marks := make(map[string]time.Time)
	for _, gene := range genes {
		var ts time.Time
		err := s.db.QueryRowContext(ctx,
			`SELECT last_published_at FROM gene_watermarks WHERE gene = ?`, gene,
		).Scan(&ts)
		if errors.Is(err, sql.ErrNoRows) {
			continue
		}
		if err != nil {
			return nil, eris.Wrapf(err, "sqlite: get watermark %s", gene)
		}
		marks[gene] = ts
	}
	return marks, nil
}

func (s *SQLiteStore) PriorFindingIDs(ctx context.Context) (map[model.FindingID]struct{}, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT variant_rsid, evidence_id FROM findings`)
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: prior finding ids")
	}
	defer rows.Close()

	ids := make(map[model.FindingID]struct{})
	for rows.Next() {
		var id model.FindingID
		if err := rows.Scan(&id.VariantRSID, &id.EvidenceID); err != nil {
			return nil, eris.Wrap(err, "sqlite: scan finding id")
		}
		ids[id] = struct{}{}
	}
	return ids, eris.Wrap(rows.Err(), "sqlite: prior finding ids")
}

func (s *SQLiteStore) CreateRun(ctx context.Context) (*model.Run, error) {
	id := uuid.New().String()
	now := time.Now().UTC()

	_, err := s.db.ExecContext(ctx,
		`INSERT INTO runs (id, status, created_at, updated_at) VALUES (?, ?, ?, ?)`,
		id, string(model.RunStatusQueued), now, now,
	)
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: insert run")
	}

	return &model.Run{
		ID:        id,
		Status:    model.RunStatusQueued,
		CreatedAt: now,
		UpdatedAt: now,
	}, nil
}

func (s *SQLiteStore) UpdateRunStatus(ctx context.Context, runID string, status model.RunStatus) error {
	res, err := s.db.ExecContext(ctx,
		`UPDATE runs SET status = ?, updated_at = ? WHERE id = ?`,
		string(status), time.Now().UTC(), runID,
	)
	if err != nil {
		return eris.Wrapf(err, "sqlite: update run status %s", runID)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return eris.Errorf("sqlite: run %s not found", runID)
	}
	return nil
}

func (s *SQLiteStore) GetRun(ctx context.Context, runID string) (*model.Run, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT id, status, summary, report, created_at, updated_at FROM runs WHERE id = ?`,
		runID,
	)
	run, err := scanSQLiteRun(row.Scan)
	if err != nil {
		return nil, eris.Wrapf(err, "sqlite: get run %s", runID)
	}
	return run, nil
}

func (s *SQLiteStore) ListRuns(ctx context.Context, filter RunFilter) ([]model.Run, error) {
	query := `SELECT id, status, summary, report, created_at, updated_at FROM runs WHERE 1=1`
	var args []any

	if filter.Status != "" {
		query += ` AND status = ?`
		args = append(args, string(filter.Status))
	}
	query += ` ORDER BY created_at DESC`
	if filter.Limit > 0 {
		query += ` LIMIT ?`
		args = append(args, filter.Limit)
	}
	if filter.Offset > 0 {
		query += ` OFFSET ?`
		args = append(args, filter.Offset)
	}

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: list runs")
	}
	defer rows.Close()

	var runs []model.Run
	for rows.Next() {
		run, err := scanSQLiteRun(rows.Scan)
		if err != nil {
			return nil, eris.Wrap(err, "sqlite: list runs")
		}
		runs = append(runs, *run)
	}
	return runs, eris.Wrap(rows.Err(), "sqlite: list runs")
}

func (s *SQLiteStore) CommitRun(ctx context.Context, commit RunCommit) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return eris.Wrap(err, "sqlite: begin commit")
	}
	defer tx.Rollback()

	if commit.Report != nil {
		for _, f := range commit.Report.NewFindings {
			if _, err := tx.ExecContext(ctx,
				`INSERT INTO findings (variant_rsid, evidence_id, run_id, gene_symbol, relevance, direction, rationale, degraded)
				 VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
				f.VariantRSID, f.EvidenceID, commit.RunID, f.GeneSymbol,
				string(f.Relevance), string(f.Direction), f.Rationale, f.Degraded,
			); err != nil {
				return eris.Wrapf(err, "sqlite: insert finding %s/%s", f.VariantRSID, f.EvidenceID)
			}
		}
	}

	for gene, ts := range commit.Watermarks {
		if _, err := tx.ExecContext(ctx,
			`INSERT INTO gene_watermarks (gene, last_published_at) VALUES (?, ?)
			 ON CONFLICT (gene) DO UPDATE SET last_published_at = excluded.last_published_at`,
			gene, ts.UTC(),
		); err != nil {
			return eris.Wrapf(err, "sqlite: upsert watermark %s", gene)
		}
	}

	summaryJSON, err := json.Marshal(commit.Summary)
	if err != nil {
		return eris.Wrap(err, "sqlite: marshal summary")
	}
	var reportJSON []byte
	if commit.Report != nil {
		if reportJSON, err = json.Marshal(commit.Report); err != nil {
			return eris.Wrap(err, "sqlite: marshal report")
		}
	}

	res, err := tx.ExecContext(ctx,
		`UPDATE runs SET status = ?, summary = ?, report = ?, updated_at = ? WHERE id = ?`,
		string(model.RunStatusComplete), string(summaryJSON), nullableString(reportJSON), time.Now().UTC(), commit.RunID,
	)
	if err != nil {
		return eris.Wrapf(err, "sqlite: finalize run %s", commit.RunID)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return eris.Errorf("sqlite: run %s not found", commit.RunID)
	}

	return eris.Wrap(tx.Commit(), "sqlite: commit run")
}

func scanSQLiteRun(scan func(dest ...any) error) (*model.Run, error) {
	var run model.Run
	var status string
	var summaryJSON, reportJSON sql.NullString

	if err := scan(&run.ID, &status, &summaryJSON, &reportJSON, &run.CreatedAt, &run.UpdatedAt); err != nil {
		return nil, err
	}
	run.Status = model.RunStatus(status)

	if summaryJSON.Valid && summaryJSON.String != "" {
		var summary model.RunSummary
		if err := json.Unmarshal([]byte(summaryJSON.String), &summary); err != nil {
			return nil, eris.Wrap(err, "unmarshal run summary")
		}
		run.Summary = &summary
	}
	if reportJSON.Valid && reportJSON.String != "" {
		var report model.DeltaReport
		if err := json.Unmarshal([]byte(reportJSON.String), &report); err != nil {
			return nil, eris.Wrap(err, "unmarshal run report")
		}
		run.Report = &report
	}
	return &run, nil
}

func nullableString(b []byte) any {
	if len(b) == 0 {
		return nil
	}
	return string(b)
}
