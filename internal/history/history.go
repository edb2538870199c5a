// Package history records run and per-task outcomes to a local SQLite
// database, so `rote log` can answer "what ran, when, and did it fail"
// without re-running anything. Adapted from the teacher's
// internal/persistence (SQLiteStore, schema, WAL/foreign-key pragmas),
// re-shaped around build runs and tasks instead of agent sessions and
// conversation turns.
package history

import (
	"context"
	"database/sql"
	"fmt"
	"os"
	"path/filepath"
	"time"

	_ "modernc.org/sqlite"

	"github.com/google/uuid"
)

// TaskRecord is one task's outcome within a run.
type TaskRecord struct {
	Name       string
	Status     string // "completed", "failed", "skipped"
	Error      string
	DurationMS int64
}

// Store persists build runs to SQLite.
type Store struct {
	db *sql.DB
}

// Open creates or opens the history database at path, enabling WAL mode
// and foreign keys, and ensures its schema exists.
func Open(ctx context.Context, path string) (*Store, error) {
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("creating history directory %s: %w", dir, err)
	}

	connStr := fmt.Sprintf("file:%s?_journal_mode=WAL&_busy_timeout=5000&_synchronous=NORMAL", path)
	db, err := sql.Open("sqlite", connStr)
	if err != nil {
		return nil, fmt.Errorf("opening history database: %w", err)
	}

	if _, err := db.ExecContext(ctx, "PRAGMA foreign_keys = ON"); err != nil {
		db.Close()
		return nil, fmt.Errorf("enabling foreign keys: %w", err)
	}
	db.SetMaxOpenConns(2)

	s := &Store{db: db}
	if err := s.initSchema(ctx); err != nil {
		db.Close()
		return nil, fmt.Errorf("initializing history schema: %w", err)
	}
	return s, nil
}

func (s *Store) initSchema(ctx context.Context) error {
	schema := `
	CREATE TABLE IF NOT EXISTS runs (
		id TEXT PRIMARY KEY,
		build_file TEXT NOT NULL,
		targets TEXT NOT NULL,
		succeeded INTEGER NOT NULL,
		started_at DATETIME NOT NULL,
		finished_at DATETIME NOT NULL
	);

	CREATE TABLE IF NOT EXISTS run_tasks (
		run_id TEXT NOT NULL,
		name TEXT NOT NULL,
		status TEXT NOT NULL,
		error TEXT,
		duration_ms INTEGER NOT NULL,
		PRIMARY KEY (run_id, name),
		FOREIGN KEY (run_id) REFERENCES runs(id) ON DELETE CASCADE
	);

	CREATE INDEX IF NOT EXISTS idx_run_tasks_run_id ON run_tasks(run_id);
	`
	_, err := s.db.ExecContext(ctx, schema)
	return err
}

// RecordRun inserts a completed run and its per-task outcomes in a
// single transaction.
func (s *Store) RecordRun(ctx context.Context, buildFile string, targets []string, succeeded bool, started, finished time.Time, tasks []TaskRecord) (string, error) {
	runID := uuid.NewString()

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return "", fmt.Errorf("beginning transaction: %w", err)
	}
	defer tx.Rollback()

	_, err = tx.ExecContext(ctx,
		`INSERT INTO runs (id, build_file, targets, succeeded, started_at, finished_at) VALUES (?, ?, ?, ?, ?, ?)`,
		runID, buildFile, joinTargets(targets), boolToInt(succeeded), started, finished)
	if err != nil {
		return "", fmt.Errorf("inserting run: %w", err)
	}

	for _, t := range tasks {
		_, err = tx.ExecContext(ctx,
			`INSERT INTO run_tasks (run_id, name, status, error, duration_ms) VALUES (?, ?, ?, ?, ?)`,
			runID, t.Name, t.Status, t.Error, t.DurationMS)
		if err != nil {
			return "", fmt.Errorf("inserting task record for %q: %w", t.Name, err)
		}
	}

	if err := tx.Commit(); err != nil {
		return "", fmt.Errorf("committing run record: %w", err)
	}
	return runID, nil
}

// RunSummary is one logged run, for the `rote log` listing.
type RunSummary struct {
	ID         string
	BuildFile  string
	Targets    string
	Succeeded  bool
	StartedAt  time.Time
	FinishedAt time.Time
}

// RecentRuns returns the most recent runs, newest first, up to limit.
func (s *Store) RecentRuns(ctx context.Context, limit int) ([]RunSummary, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT id, build_file, targets, succeeded, started_at, finished_at
		 FROM runs ORDER BY started_at DESC LIMIT ?`, limit)
	if err != nil {
		return nil, fmt.Errorf("querying runs: %w", err)
	}
	defer rows.Close()

	var out []RunSummary
	for rows.Next() {
		var r RunSummary
		var succeeded int
		if err := rows.Scan(&r.ID, &r.BuildFile, &r.Targets, &succeeded, &r.StartedAt, &r.FinishedAt); err != nil {
			return nil, fmt.Errorf("scanning run row: %w", err)
		}
		r.Succeeded = succeeded != 0
		out = append(out, r)
	}
	return out, rows.Err()
}

// TasksForRun returns the per-task outcomes recorded for runID.
func (s *Store) TasksForRun(ctx context.Context, runID string) ([]TaskRecord, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT name, status, error, duration_ms FROM run_tasks WHERE run_id = ?`, runID)
	if err != nil {
		return nil, fmt.Errorf("querying run tasks: %w", err)
	}
	defer rows.Close()

	var out []TaskRecord
	for rows.Next() {
		var t TaskRecord
		var errStr sql.NullString
		if err := rows.Scan(&t.Name, &t.Status, &errStr, &t.DurationMS); err != nil {
			return nil, fmt.Errorf("scanning task row: %w", err)
		}
		t.Error = errStr.String
		out = append(out, t)
	}
	return out, rows.Err()
}

// Close releases the underlying database handle.
func (s *Store) Close() error { return s.db.Close() }

func boolToInt(b bool) int {
	if b {
		return 1
	}
	return 0
}

func joinTargets(targets []string) string {
	out := ""
	for i, t := range targets {
		if i > 0 {
			out += ","
		}
		out += t
	}
	return out
}
