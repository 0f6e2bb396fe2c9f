package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"

	"aadhaar_pulse/internal/aggregate"
	"aadhaar_pulse/internal/anomaly"
	"aadhaar_pulse/internal/indices"
)

// Run status values.
const (
	RunRunning   = "running"
	RunSucceeded = "succeeded"
	RunFailed    = "failed"
)

const maxErrorLen = 240

// Run is one persisted pipeline invocation.
type Run struct {
	ID              string     `json:"id"`
	DataDir         string     `json:"dataDir"`
	Fingerprint     string     `json:"fingerprint"`
	Status          string     `json:"status"`
	LatestMonth     string     `json:"latestMonth"`
	Months          int        `json:"months"`
	States          int        `json:"states"`
	Anomalies       int        `json:"anomalies"`
	RowsEnrolment   int        `json:"rowsEnrolment"`
	RowsDemographic int        `json:"rowsDemographic"`
	RowsBiometric   int        `json:"rowsBiometric"`
	UpdatesIncluded bool       `json:"updatesIncluded"`
	Error           *string    `json:"error"`
	StartedAt       time.Time  `json:"startedAt"`
	FinishedAt      *time.Time `json:"finishedAt"`
}

// RunSummary carries the counters written when a run succeeds.
type RunSummary struct {
	LatestMonth     string
	Months          int
	States          int
	Anomalies       int
	RowsEnrolment   int
	RowsDemographic int
	RowsBiometric   int
	UpdatesIncluded bool
}

// StoredAnomaly is an anomaly as persisted, with its assigned identity.
type StoredAnomaly struct {
	ID string `json:"id"`
	anomaly.Anomaly
	DistrictID   *string   `json:"districtId"`
	DistrictName *string   `json:"districtName"`
	DetectedAt   time.Time `json:"detectedAt"`
}

const runColumns = `id, data_dir, fingerprint, status, latest_month, months, states, anomalies, rows_enrolment, rows_demographic, rows_biometric, updates_included, error, started_at, finished_at`

func scanRun(row scanner) (Run, error) {
	var r Run
	var month, errMsg sql.NullString
	var finished sql.NullTime
	if err := row.Scan(&r.ID, &r.DataDir, &r.Fingerprint, &r.Status, &month, &r.Months, &r.States, &r.Anomalies,
		&r.RowsEnrolment, &r.RowsDemographic, &r.RowsBiometric, &r.UpdatesIncluded, &errMsg, &r.StartedAt, &finished); err != nil {
		return r, err
	}
	r.LatestMonth = month.String
	if errMsg.Valid {
		r.Error = &errMsg.String
	}
	if finished.Valid {
		r.FinishedAt = &finished.Time
	}
	return r, nil
}

// StartRun inserts a running record with a fresh id.
func (s *Store) StartRun(ctx context.Context, dataDir, fingerprint string, ts time.Time) (Run, error) {
	r := Run{ID: uuid.NewString(), DataDir: dataDir, Fingerprint: fingerprint, Status: RunRunning, StartedAt: ts}
	_, err := s.db.ExecContext(ctx, `INSERT INTO pipeline_runs(id, data_dir, fingerprint, status, started_at) VALUES(?,?,?,?,?)`,
		r.ID, r.DataDir, r.Fingerprint, r.Status, r.StartedAt)
	if err != nil {
		return Run{}, fmt.Errorf("store: start run: %w", err)
	}
	return r, nil
}

// FinishRun marks a run succeeded with its counters.
func (s *Store) FinishRun(ctx context.Context, id string, sum RunSummary, ts time.Time) error {
	_, err := s.db.ExecContext(ctx, `UPDATE pipeline_runs SET status=?, latest_month=?, months=?, states=?, anomalies=?,
		rows_enrolment=?, rows_demographic=?, rows_biometric=?, updates_included=?, finished_at=? WHERE id=?`,
		RunSucceeded, sum.LatestMonth, sum.Months, sum.States, sum.Anomalies,
		sum.RowsEnrolment, sum.RowsDemographic, sum.RowsBiometric, sum.UpdatesIncluded, ts, id)
	return err
}

// FailRun marks a run failed; the error text is truncated.
func (s *Store) FailRun(ctx context.Context, id string, cause error, ts time.Time) error {
	msg := ""
	if cause != nil {
		msg = truncate(cause.Error(), maxErrorLen)
	}
	_, err := s.db.ExecContext(ctx, `UPDATE pipeline_runs SET status=?, error=?, finished_at=? WHERE id=?`, RunFailed, msg, ts, id)
	return err
}

// FailStaleRuns marks runs still running from a previous process as failed.
func (s *Store) FailStaleRuns(ctx context.Context, reason string, ts time.Time) (int64, error) {
	res, err := s.db.ExecContext(ctx, `UPDATE pipeline_runs SET status=?, error=?, finished_at=? WHERE status=?`,
		RunFailed, truncate(reason, maxErrorLen), ts, RunRunning)
	if err != nil {
		return 0, err
	}
	return res.RowsAffected()
}

// SaveSnapshot writes the monthly states, the latest indices and the
// anomalies of a run in one transaction.
func (s *Store) SaveSnapshot(ctx context.Context, runID string, months []aggregate.MonthlyAggregation, idx []indices.StateIndex, found []anomaly.Anomaly, ts time.Time) (err error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer func() {
		if err != nil {
			_ = tx.Rollback()
		}
	}()

	for _, m := range months {
		for _, st := range m.StateList() {
			if _, err = tx.ExecContext(ctx, `INSERT INTO state_snapshots(run_id, month, state_id, state_name, state_code, enrolments,
				demographic_updates, biometric_updates, age_0_5, age_5_17, age_18_plus) VALUES(?,?,?,?,?,?,?,?,?,?,?)`,
				runID, m.Month, st.StateID, st.StateName, st.StateCode, st.Enrolments,
				st.DemographicUpdates, st.BiometricUpdates, st.Age0To5, st.Age5To17, st.Age18Plus); err != nil {
				return fmt.Errorf("store: snapshot %s/%s: %w", m.Month, st.StateID, err)
			}
		}
	}
	for _, i := range idx {
		if _, err = tx.ExecContext(ctx, `INSERT INTO state_indices(run_id, state_id, name, msi, friction, lag, health, msi_trend, friction_trend, lag_trend)
			VALUES(?,?,?,?,?,?,?,?,?,?)`,
			runID, i.StateID, i.Name, i.MSI, i.Friction, i.Lag, string(i.Health), string(i.MSITrend), string(i.FrictionTrend), string(i.LagTrend)); err != nil {
			return fmt.Errorf("store: indices %s: %w", i.StateID, err)
		}
	}
	for seq, a := range found {
		if _, err = tx.ExecContext(ctx, `INSERT INTO anomalies(id, run_id, state_id, state_name, month, severity, metric, value, threshold, reason_code, explanation, seq, detected_at)
			VALUES(?,?,?,?,?,?,?,?,?,?,?,?,?)`,
			uuid.NewString(), runID, a.StateID, a.StateName, a.Month, string(a.Severity), a.Metric, a.Value, a.Threshold, a.ReasonCode, a.Explanation, seq, ts); err != nil {
			return fmt.Errorf("store: anomaly %s: %w", a.StateID, err)
		}
	}
	return tx.Commit()
}

// ListRuns returns the most recent runs first.
func (s *Store) ListRuns(ctx context.Context, limit int) ([]Run, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT `+runColumns+` FROM pipeline_runs ORDER BY started_at DESC, rowid DESC LIMIT ?`, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	runs := []Run{}
	for rows.Next() {
		r, err := scanRun(rows)
		if err != nil {
			return nil, err
		}
		runs = append(runs, r)
	}
	return runs, rows.Err()
}

// GetRun loads one run by id.
func (s *Store) GetRun(ctx context.Context, id string) (Run, error) {
	r, err := scanRun(s.db.QueryRowContext(ctx, `SELECT `+runColumns+` FROM pipeline_runs WHERE id=?`, id))
	if errors.Is(err, sql.ErrNoRows) {
		return Run{}, ErrNotFound
	}
	return r, err
}

// LatestRun returns the most recent succeeded run.
func (s *Store) LatestRun(ctx context.Context) (Run, error) {
	r, err := scanRun(s.db.QueryRowContext(ctx, `SELECT `+runColumns+` FROM pipeline_runs WHERE status=? ORDER BY finished_at DESC, rowid DESC LIMIT 1`, RunSucceeded))
	if errors.Is(err, sql.ErrNoRows) {
		return Run{}, ErrNotFound
	}
	return r, err
}

// RunAnomalies returns a run's anomalies in detection order.
func (s *Store) RunAnomalies(ctx context.Context, runID string) ([]StoredAnomaly, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT id, state_id, state_name, month, severity, metric, value, threshold, reason_code, explanation, detected_at
		FROM anomalies WHERE run_id=? ORDER BY seq ASC`, runID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	out := []StoredAnomaly{}
	for rows.Next() {
		var a StoredAnomaly
		var severity string
		if err := rows.Scan(&a.ID, &a.StateID, &a.StateName, &a.Month, &severity, &a.Metric, &a.Value, &a.Threshold, &a.ReasonCode, &a.Explanation, &a.DetectedAt); err != nil {
			return nil, err
		}
		a.Severity = indices.Level(severity)
		out = append(out, a)
	}
	return out, rows.Err()
}
