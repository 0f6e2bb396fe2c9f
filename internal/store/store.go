package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"os"
	"path/filepath"

	_ "modernc.org/sqlite"
)

var (
	ErrConflict = errors.New("idempotent job already exists")
	ErrNotFound = errors.New("not found")
)

// Store wraps SQLite access for pipeline runs and jobs.
type Store struct {
	db *sql.DB
}

// Open opens or creates the database at path and applies the schema.
func Open(path string) (*Store, error) {
	if dir := filepath.Dir(path); dir != "" && dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, fmt.Errorf("store: create dir: %w", err)
		}
	}
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, err
	}
	db.SetMaxOpenConns(1)
	s := &Store{db: db}
	if err := s.migrate(); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("store: migrate: %w", err)
	}
	return s, nil
}

func (s *Store) Close() error { return s.db.Close() }

func (s *Store) migrate() error {
	stmts := []string{
		`CREATE TABLE IF NOT EXISTS pipeline_runs (
			id TEXT PRIMARY KEY,
			data_dir TEXT,
			fingerprint TEXT,
			status TEXT,
			latest_month TEXT,
			months INTEGER DEFAULT 0,
			states INTEGER DEFAULT 0,
			anomalies INTEGER DEFAULT 0,
			rows_enrolment INTEGER DEFAULT 0,
			rows_demographic INTEGER DEFAULT 0,
			rows_biometric INTEGER DEFAULT 0,
			updates_included INTEGER DEFAULT 0,
			error TEXT,
			started_at TIMESTAMP,
			finished_at TIMESTAMP
		);`,
		`CREATE TABLE IF NOT EXISTS state_snapshots (
			run_id TEXT,
			month TEXT,
			state_id TEXT,
			state_name TEXT,
			state_code TEXT,
			enrolments INTEGER,
			demographic_updates INTEGER,
			biometric_updates INTEGER,
			age_0_5 INTEGER,
			age_5_17 INTEGER,
			age_18_plus INTEGER,
			PRIMARY KEY (run_id, month, state_id)
		);`,
		`CREATE TABLE IF NOT EXISTS state_indices (
			run_id TEXT,
			state_id TEXT,
			name TEXT,
			msi REAL,
			friction REAL,
			lag REAL,
			health TEXT,
			msi_trend TEXT,
			friction_trend TEXT,
			lag_trend TEXT,
			PRIMARY KEY (run_id, state_id)
		);`,
		`CREATE TABLE IF NOT EXISTS anomalies (
			id TEXT PRIMARY KEY,
			run_id TEXT,
			state_id TEXT,
			state_name TEXT,
			month TEXT,
			severity TEXT,
			metric TEXT,
			value REAL,
			threshold REAL,
			reason_code TEXT,
			explanation TEXT,
			seq INTEGER,
			detected_at TIMESTAMP
		);`,
		`CREATE INDEX IF NOT EXISTS idx_anomalies_run ON anomalies(run_id, seq);`,
		`CREATE TABLE IF NOT EXISTS jobs (
			id INTEGER PRIMARY KEY AUTOINCREMENT,
			subject TEXT,
			stage TEXT,
			status TEXT,
			params_json TEXT,
			idempotency_key TEXT,
			error TEXT,
			created_at TIMESTAMP,
			updated_at TIMESTAMP,
			started_at TIMESTAMP,
			finished_at TIMESTAMP
		);`,
		`CREATE UNIQUE INDEX IF NOT EXISTS idx_jobs_idem ON jobs(idempotency_key);`,
		`CREATE TABLE IF NOT EXISTS job_logs (
			job_id INTEGER,
			line TEXT,
			created_at TIMESTAMP
		);`,
	}
	for _, stmt := range stmts {
		if _, err := s.db.Exec(stmt); err != nil {
			return err
		}
	}
	return nil
}

// Health returns err if DB not reachable.
func (s *Store) Health(ctx context.Context) error {
	row := s.db.QueryRowContext(ctx, `SELECT 1`)
	var v int
	if err := row.Scan(&v); err != nil {
		return fmt.Errorf("db health: %w", err)
	}
	return nil
}

func truncate(s string, n int) string {
	r := []rune(s)
	if len(r) <= n {
		return s
	}
	return string(r[:n])
}
