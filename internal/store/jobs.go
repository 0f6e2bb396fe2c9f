package store

import (
	"context"
	"database/sql"
	"errors"
	"time"
)

// Job represents a pipeline job persisted to DB.
type Job struct {
	ID             int64      `json:"id"`
	Subject        string     `json:"subject"`
	Stage          string     `json:"stage"`
	Status         string     `json:"status"`
	ParamsJSON     string     `json:"params_json"`
	IdempotencyKey string     `json:"idempotency_key"`
	Error          *string    `json:"error"`
	CreatedAt      time.Time  `json:"created_at"`
	UpdatedAt      time.Time  `json:"updated_at"`
	StartedAt      *time.Time `json:"started_at"`
	FinishedAt     *time.Time `json:"finished_at"`
}

// JobCounts tallies jobs by status.
type JobCounts map[string]int

const jobColumns = `id, subject, stage, status, params_json, idempotency_key, error, created_at, updated_at, started_at, finished_at`

type scanner interface {
	Scan(dest ...any) error
}

func scanJob(row scanner) (Job, error) {
	var j Job
	var errMsg sql.NullString
	var started, finished sql.NullTime
	if err := row.Scan(&j.ID, &j.Subject, &j.Stage, &j.Status, &j.ParamsJSON, &j.IdempotencyKey, &errMsg, &j.CreatedAt, &j.UpdatedAt, &started, &finished); err != nil {
		return j, err
	}
	if errMsg.Valid {
		j.Error = &errMsg.String
	}
	if started.Valid {
		j.StartedAt = &started.Time
	}
	if finished.Valid {
		j.FinishedAt = &finished.Time
	}
	return j, nil
}

func (s *Store) RecordJob(ctx context.Context, j *Job) (*Job, error) {
	if j.ParamsJSON == "" {
		j.ParamsJSON = "{}"
	}
	res, err := s.db.ExecContext(ctx, `INSERT INTO jobs(subject, stage, status, params_json, idempotency_key, created_at, updated_at) VALUES(?,?,?,?,?,?,?)`,
		j.Subject, j.Stage, j.Status, j.ParamsJSON, j.IdempotencyKey, j.CreatedAt, j.UpdatedAt)
	if err != nil {
		return nil, err
	}
	id, _ := res.LastInsertId()
	j.ID = id
	return j, nil
}

// FetchJobByIdempotency returns existing job if present.
func (s *Store) FetchJobByIdempotency(ctx context.Context, key string) (*Job, error) {
	j, err := scanJob(s.db.QueryRowContext(ctx, `SELECT `+jobColumns+` FROM jobs WHERE idempotency_key=?`, key))
	switch {
	case err == nil:
		return &j, nil
	case errors.Is(err, sql.ErrNoRows):
		return nil, nil
	default:
		return nil, err
	}
}

// InsertJobIdempotent records a job if idempotency key is new. A previous job
// with the same key that failed or was cancelled gives up its key so the work
// can be retried.
func (s *Store) InsertJobIdempotent(ctx context.Context, j *Job) (*Job, error) {
	existing, err := s.FetchJobByIdempotency(ctx, j.IdempotencyKey)
	if err != nil {
		return nil, err
	}
	if existing != nil {
		if existing.Status != "failed" && existing.Status != "cancelled" {
			return existing, ErrConflict
		}
		if _, err := s.db.ExecContext(ctx, `UPDATE jobs SET idempotency_key = idempotency_key || ':' || id WHERE id=?`, existing.ID); err != nil {
			return nil, err
		}
	}
	return s.RecordJob(ctx, j)
}

// GetJob loads one job by id.
func (s *Store) GetJob(ctx context.Context, id int64) (*Job, error) {
	j, err := scanJob(s.db.QueryRowContext(ctx, `SELECT `+jobColumns+` FROM jobs WHERE id=?`, id))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return &j, nil
}

func (s *Store) MarkJobStarted(ctx context.Context, id int64, ts time.Time) error {
	_, err := s.db.ExecContext(ctx, `UPDATE jobs SET status=?, started_at=?, updated_at=? WHERE id=?`, "running", ts, ts, id)
	return err
}

// MarkJobFinished sets the terminal status; errMsg is stored truncated.
func (s *Store) MarkJobFinished(ctx context.Context, id int64, status string, errMsg string, ts time.Time) error {
	var e any
	if errMsg != "" {
		e = truncate(errMsg, maxErrorLen)
	}
	_, err := s.db.ExecContext(ctx, `UPDATE jobs SET status=?, error=?, finished_at=?, updated_at=? WHERE id=?`, status, e, ts, ts, id)
	return err
}

// CancelStaleJobs cancels jobs left queued or running by a previous process
// so their idempotency keys can be reused.
func (s *Store) CancelStaleJobs(ctx context.Context, reason string, ts time.Time) (int64, error) {
	res, err := s.db.ExecContext(ctx, `UPDATE jobs SET status=?, error=?, finished_at=?, updated_at=? WHERE status IN ('queued', 'running')`,
		"cancelled", truncate(reason, maxErrorLen), ts, ts)
	if err != nil {
		return 0, err
	}
	return res.RowsAffected()
}

func (s *Store) AppendJobLog(ctx context.Context, id int64, line string, ts time.Time) error {
	_, err := s.db.ExecContext(ctx, `INSERT INTO job_logs(job_id, line, created_at) VALUES(?,?,?)`, id, line, ts)
	return err
}

func (s *Store) ListJobs(ctx context.Context, limit int) ([]Job, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT `+jobColumns+` FROM jobs ORDER BY id DESC LIMIT ?`, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	jobs := []Job{}
	for rows.Next() {
		j, err := scanJob(rows)
		if err != nil {
			return nil, err
		}
		jobs = append(jobs, j)
	}
	return jobs, rows.Err()
}

// CountJobs returns the number of jobs per status.
func (s *Store) CountJobs(ctx context.Context) (JobCounts, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT status, COUNT(*) FROM jobs GROUP BY status`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	counts := JobCounts{}
	for rows.Next() {
		var status string
		var n int
		if err := rows.Scan(&status, &n); err != nil {
			return nil, err
		}
		counts[status] = n
	}
	return counts, rows.Err()
}

func (s *Store) JobLogs(ctx context.Context, jobID int64) ([]string, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT line FROM job_logs WHERE job_id=? ORDER BY rowid ASC`, jobID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	lines := []string{}
	for rows.Next() {
		var l string
		if err := rows.Scan(&l); err != nil {
			return nil, err
		}
		lines = append(lines, l)
	}
	return lines, rows.Err()
}
