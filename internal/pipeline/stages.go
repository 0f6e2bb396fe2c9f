package pipeline

import (
	"context"
	"fmt"
	"log"
	"sync"
	"time"

	"aadhaar_pulse/internal/config"
	"aadhaar_pulse/internal/events"
	"aadhaar_pulse/internal/jobs"
	"aadhaar_pulse/internal/metrics"
	"aadhaar_pulse/internal/store"
)

// Recomputer runs the pipeline for the service, persists each run and
// publishes the result. Runs are serialized.
type Recomputer struct {
	dataDir string
	store   *store.Store
	latest  *Latest
	metrics *metrics.Metrics
	bus     *events.Bus

	mu sync.Mutex
}

func NewRecomputer(cfg config.Config, st *store.Store, latest *Latest, m *metrics.Metrics, bus *events.Bus) *Recomputer {
	return &Recomputer{dataDir: cfg.DataDir, store: st, latest: latest, metrics: m, bus: bus}
}

// BuildRegistry wires the recompute stage.
func BuildRegistry(rc *Recomputer) jobs.Registry {
	return jobs.Registry{
		jobs.StageRecompute: rc.stage,
	}
}

// DataDir is the directory every run reads.
func (rc *Recomputer) DataDir() string { return rc.dataDir }

func (rc *Recomputer) stage(ctx context.Context, exec jobs.ExecutionContext, subject string, params map[string]any) error {
	logf := func(format string, args ...any) {
		exec.Logf(exec.JobID, fmt.Sprintf(format, args...))
	}
	logf("recompute %s fingerprint=%v", subject, params["fingerprint"])
	snap, err := rc.Run(ctx)
	if err != nil {
		return err
	}
	logf("run %s month=%s states=%d anomalies=%d", snap.RunID, snap.Result.LatestMonth, len(snap.Result.States), len(snap.Result.Anomalies))
	return nil
}

// Run executes one pipeline pass. A failed run is recorded and leaves the
// previous snapshot in place.
func (rc *Recomputer) Run(ctx context.Context) (Snapshot, error) {
	rc.mu.Lock()
	defer rc.mu.Unlock()

	if err := ctx.Err(); err != nil {
		return Snapshot{}, err
	}
	started := time.Now()
	fp, err := Fingerprint(rc.dataDir)
	if err != nil {
		log.Printf("pipeline: fingerprint dir=%s: %v", rc.dataDir, err)
	}
	run, err := rc.store.StartRun(ctx, rc.dataDir, fp, config.Now())
	if err != nil {
		return Snapshot{}, err
	}

	res, err := ProcessAll(rc.dataDir)
	if err == nil {
		err = ctx.Err()
	}
	if err == nil {
		err = rc.store.SaveSnapshot(ctx, run.ID, res.MonthlyData, res.Indices, res.Anomalies, config.Now())
	}
	if err != nil {
		rc.fail(run.ID, started, err)
		return Snapshot{}, err
	}

	finished := config.Now()
	sum := store.RunSummary{
		LatestMonth:     res.LatestMonth,
		Months:          len(res.MonthlyData),
		States:          len(res.States),
		Anomalies:       len(res.Anomalies),
		RowsEnrolment:   res.RowCounts.Enrolment,
		RowsDemographic: res.RowCounts.Demographic,
		RowsBiometric:   res.RowCounts.Biometric,
		UpdatesIncluded: res.UpdatesIncluded,
	}
	if err := rc.store.FinishRun(ctx, run.ID, sum, finished); err != nil {
		rc.fail(run.ID, started, err)
		return Snapshot{}, err
	}

	snap := Snapshot{RunID: run.ID, Result: res, FinishedAt: finished}
	rc.latest.Set(snap)
	rc.record(res, started, finished)
	rc.bus.Publish(events.Event{Kind: events.RunSucceeded, RunID: run.ID, Month: res.LatestMonth, Anomalies: res.Anomalies, At: finished})
	log.Printf("pipeline: run=%s status=%s took=%s", run.ID, store.RunSucceeded, time.Since(started).Round(time.Millisecond))
	return snap, nil
}

func (rc *Recomputer) fail(runID string, started time.Time, cause error) {
	now := config.Now()
	// the job context may be the reason for the failure
	if err := rc.store.FailRun(context.Background(), runID, cause, now); err != nil {
		log.Printf("pipeline: mark run %s failed: %v", runID, err)
	}
	rc.metrics.RunFinished(store.RunFailed, time.Since(started), now)
	rc.bus.Publish(events.Event{Kind: events.RunFailed, RunID: runID, Err: cause.Error(), At: now})
	log.Printf("pipeline: run=%s status=%s err=%v", runID, store.RunFailed, cause)
}

func (rc *Recomputer) record(res Result, started, finished time.Time) {
	rc.metrics.RunFinished(store.RunSucceeded, time.Since(started), finished)
	rc.metrics.RowsRead("enrolment", res.RowCounts.Enrolment)
	rc.metrics.RowsRead("demographic", res.RowCounts.Demographic)
	rc.metrics.RowsRead("biometric", res.RowCounts.Biometric)
	bySeverity := map[string]int{}
	for _, a := range res.Anomalies {
		bySeverity[string(a.Severity)]++
	}
	rc.metrics.Snapshot(len(res.States), bySeverity)
}
