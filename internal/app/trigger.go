package app

import (
	"context"
	"log"
	"time"

	"github.com/google/uuid"
	"golang.org/x/time/rate"

	"aadhaar_pulse/internal/jobs"
	"aadhaar_pulse/internal/metrics"
	"aadhaar_pulse/internal/pipeline"
	"aadhaar_pulse/internal/store"
)

// Trigger enqueues recompute jobs keyed by the data fingerprint, subject to a
// shared rate limit.
type Trigger struct {
	dataDir string
	runner  *jobs.Runner
	limiter *rate.Limiter
	metrics *metrics.Metrics
}

// NewTrigger allows perMinute recomputes per minute with an equal burst.
func NewTrigger(dataDir string, runner *jobs.Runner, perMinute int, m *metrics.Metrics) *Trigger {
	if perMinute <= 0 {
		perMinute = 1
	}
	return &Trigger{
		dataDir: dataDir,
		runner:  runner,
		limiter: rate.NewLimiter(rate.Every(time.Minute/time.Duration(perMinute)), perMinute),
		metrics: m,
	}
}

// Recompute enqueues immediately or fails with jobs.ErrRateLimited. force
// bypasses idempotency so unchanged data is processed again.
func (t *Trigger) Recompute(ctx context.Context, reason string, force bool) (*store.Job, error) {
	if !t.limiter.Allow() {
		t.metrics.RateLimited()
		log.Printf("app: recompute rate limited reason=%s", reason)
		return nil, jobs.ErrRateLimited
	}
	return t.enqueue(ctx, reason, force)
}

// RecomputeWait blocks until the limiter admits the request.
func (t *Trigger) RecomputeWait(ctx context.Context, reason string) (*store.Job, error) {
	if err := t.limiter.Wait(ctx); err != nil {
		return nil, err
	}
	return t.enqueue(ctx, reason, false)
}

func (t *Trigger) enqueue(ctx context.Context, reason string, force bool) (*store.Job, error) {
	fp, err := pipeline.Fingerprint(t.dataDir)
	if err != nil {
		return nil, err
	}
	params := map[string]any{"fingerprint": fp}
	if force {
		params["nonce"] = uuid.NewString()
	}
	job, err := t.runner.Enqueue(ctx, t.dataDir, jobs.StageRecompute, params)
	if err != nil {
		return nil, err
	}
	log.Printf("app: recompute reason=%s job=%d status=%s", reason, job.ID, job.Status)
	return job, nil
}
