// Package storage keeps the run ledger: one row per patch run plus the
// per-patch outcomes, so earlier runs stay inspectable after the tree changed.
package storage

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	_ "github.com/mattn/go-sqlite3"
)

type SQLiteStore struct {
	db *sql.DB
}

// NewSQLiteStore creates or opens the ledger database.
func NewSQLiteStore(path string) (*SQLiteStore, error) {
	db, err := sql.Open("sqlite3", path)
	if err != nil {
		return nil, err
	}

	if err := db.Ping(); err != nil {
		return nil, err
	}

	s := &SQLiteStore{db: db}
	if err := s.initSchema(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to init schema: %w", err)
	}

	return s, nil
}

func (s *SQLiteStore) Close() error {
	return s.db.Close()
}

func (s *SQLiteStore) initSchema() error {
	queries := []string{
		`CREATE TABLE IF NOT EXISTS runs (
			id INTEGER PRIMARY KEY AUTOINCREMENT,
			started_at TIMESTAMP,
			finished_at TIMESTAMP,
			dry_run BOOLEAN,
			extracted_dir TEXT,
			files JSON,
			ok BOOLEAN
		);`,
		`CREATE TABLE IF NOT EXISTS patch_results (
			run_id INTEGER,
			patch TEXT,
			role TEXT,
			outcome TEXT,
			error TEXT,
			PRIMARY KEY (run_id, patch),
			FOREIGN KEY (run_id) REFERENCES runs(id)
		);`,
		`CREATE INDEX IF NOT EXISTS idx_results_run ON patch_results(run_id);`,
	}

	for _, q := range queries {
		if _, err := s.db.Exec(q); err != nil {
			return err
		}
	}
	return nil
}

// Run is one recorded patch run.
type Run struct {
	ID         int64
	StartedAt  time.Time
	FinishedAt time.Time
	DryRun     bool
	Extracted  string
	Files      map[string]string
	OK         bool
}

// PatchResult is one patch outcome within a run.
type PatchResult struct {
	Patch   string
	Role    string
	Outcome string
	Error   string
}

// BeginRun opens a new ledger entry and returns its id.
func (s *SQLiteStore) BeginRun(ctx context.Context, extracted string, dryRun bool, files map[string]string) (int64, error) {
	blob, _ := json.Marshal(files)
	res, err := s.db.ExecContext(ctx, `
		INSERT INTO runs (started_at, dry_run, extracted_dir, files, ok)
		VALUES (?, ?, ?, ?, 0)
	`, time.Now().UTC(), dryRun, extracted, string(blob))
	if err != nil {
		return 0, err
	}
	return res.LastInsertId()
}

// RecordResults stores all patch outcomes for a run in one transaction.
func (s *SQLiteStore) RecordResults(ctx context.Context, runID int64, results []PatchResult) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()

	stmt, err := tx.PrepareContext(ctx, `
		INSERT INTO patch_results (run_id, patch, role, outcome, error)
		VALUES (?, ?, ?, ?, ?)
		ON CONFLICT(run_id, patch) DO UPDATE SET
			outcome=excluded.outcome,
			error=excluded.error
	`)
	if err != nil {
		return err
	}
	defer stmt.Close()

	for _, r := range results {
		if _, err := stmt.ExecContext(ctx, runID, r.Patch, r.Role, r.Outcome, r.Error); err != nil {
			return err
		}
	}
	return tx.Commit()
}

// FinishRun closes a ledger entry with its final verdict.
func (s *SQLiteStore) FinishRun(ctx context.Context, runID int64, ok bool) error {
	_, err := s.db.ExecContext(ctx, `
		UPDATE runs SET finished_at = ?, ok = ? WHERE id = ?
	`, time.Now().UTC(), ok, runID)
	return err
}

// RecentRuns returns the latest runs, newest first.
func (s *SQLiteStore) RecentRuns(ctx context.Context, limit int) ([]Run, error) {
	if limit <= 0 {
		limit = 10
	}
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, started_at, COALESCE(finished_at, started_at), dry_run, extracted_dir, files, ok
		FROM runs ORDER BY id DESC LIMIT ?
	`, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var runs []Run
	for rows.Next() {
		var r Run
		var blob string
		if err := rows.Scan(&r.ID, &r.StartedAt, &r.FinishedAt, &r.DryRun, &r.Extracted, &blob, &r.OK); err != nil {
			return nil, err
		}
		if blob != "" {
			_ = json.Unmarshal([]byte(blob), &r.Files)
		}
		runs = append(runs, r)
	}
	return runs, rows.Err()
}

// ResultsForRun returns the patch outcomes recorded for one run.
func (s *SQLiteStore) ResultsForRun(ctx context.Context, runID int64) ([]PatchResult, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT patch, role, outcome, COALESCE(error, '')
		FROM patch_results WHERE run_id = ? ORDER BY rowid
	`, runID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var results []PatchResult
	for rows.Next() {
		var r PatchResult
		if err := rows.Scan(&r.Patch, &r.Role, &r.Outcome, &r.Error); err != nil {
			return nil, err
		}
		results = append(results, r)
	}
	return results, rows.Err()
}
