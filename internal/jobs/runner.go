package jobs

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"sync"
	"time"

	"aadhaar_pulse/internal/config"
	"aadhaar_pulse/internal/store"
)

// Status values for jobs.
const (
	StatusQueued    = "queued"
	StatusRunning   = "running"
	StatusSucceeded = "succeeded"
	StatusFailed    = "failed"
	StatusCancelled = "cancelled"
)

// Stage names a unit of work the runner knows how to execute.
type Stage string

const (
	StageRecompute Stage = "RECOMPUTE"
)

var (
	// ErrQueueFull is returned when the in-memory queue cannot take a job.
	ErrQueueFull = errors.New("queue full")
	// ErrRateLimited is returned by triggers that refuse to enqueue.
	ErrRateLimited = errors.New("rate limited")
)

const logBufferLines = 200

// ExecutionContext bundles dependencies for stage execution.
type ExecutionContext struct {
	Cfg   config.Config
	Store *store.Store
	JobID int64
	Logf  func(jobID int64, msg string)
}

// StageFunc implements one stage. subject identifies what the job works on.
type StageFunc func(ctx context.Context, execCtx ExecutionContext, subject string, params map[string]any) error

// Registry maps stages to implementations.
type Registry map[Stage]StageFunc

// Observer receives job lifecycle signals.
type Observer interface {
	JobFinished(stage, status string)
	QueueDepth(n int)
}

// Runner executes jobs using worker pool.
type Runner struct {
	cfg       config.Config
	store     *store.Store
	reg       Registry
	obs       Observer
	queue     chan *store.Job
	wg        sync.WaitGroup
	cancel    context.CancelFunc
	logMu     sync.Mutex
	logBuffer map[int64][]string
}

// NewRunner constructs a runner. obs may be nil.
func NewRunner(cfg config.Config, st *store.Store, reg Registry, obs Observer) *Runner {
	return &Runner{
		cfg:       cfg,
		store:     st,
		reg:       reg,
		obs:       obs,
		queue:     make(chan *store.Job, cfg.QueueSize),
		logBuffer: make(map[int64][]string),
	}
}

// Start spins worker pool.
func (r *Runner) Start(ctx context.Context) {
	ctx, cancel := context.WithCancel(ctx)
	r.cancel = cancel
	for i := 0; i < r.cfg.WorkerCount; i++ {
		r.wg.Add(1)
		go r.worker(ctx)
	}
}

// Stop waits for workers to finish.
func (r *Runner) Stop() {
	if r.cancel != nil {
		r.cancel()
	}
	r.wg.Wait()
}

// Enqueue inserts a job respecting idempotency. A job whose key matches a
// queued, running or succeeded job returns that job instead.
func (r *Runner) Enqueue(ctx context.Context, subject string, stage Stage, params map[string]any) (*store.Job, error) {
	if _, ok := r.reg[stage]; !ok {
		return nil, fmt.Errorf("unknown stage %q", stage)
	}
	payload, _ := json.Marshal(params)
	job := &store.Job{
		Subject:        subject,
		Stage:          string(stage),
		Status:         StatusQueued,
		ParamsJSON:     string(payload),
		IdempotencyKey: IdempotencyKey(subject, stage, params),
		CreatedAt:      config.Now(),
		UpdatedAt:      config.Now(),
	}
	j, err := r.store.InsertJobIdempotent(ctx, job)
	if errors.Is(err, store.ErrConflict) {
		return j, nil
	}
	if err != nil {
		return nil, err
	}
	select {
	case r.queue <- j:
		r.observeDepth()
		log.Printf("jobs: queued id=%d stage=%s subject=%s", j.ID, stage, subject)
		return j, nil
	default:
		_ = r.store.MarkJobFinished(ctx, j.ID, StatusCancelled, ErrQueueFull.Error(), config.Now())
		return nil, ErrQueueFull
	}
}

func (r *Runner) worker(ctx context.Context) {
	defer r.wg.Done()
	for {
		select {
		case <-ctx.Done():
			return
		case job := <-r.queue:
			r.observeDepth()
			r.execute(ctx, job)
		}
	}
}

func (r *Runner) execute(ctx context.Context, job *store.Job) {
	stage := Stage(job.Stage)
	fn, ok := r.reg[stage]
	if !ok {
		r.appendLog(job.ID, "no handler for stage")
		r.finish(ctx, job, StatusFailed, "no handler for stage")
		return
	}
	_ = r.store.MarkJobStarted(ctx, job.ID, config.Now())

	runCtx := ctx
	if timeout := r.cfg.JobTimeout(); timeout > 0 {
		var cancel context.CancelFunc
		runCtx, cancel = context.WithTimeout(ctx, timeout)
		defer cancel()
	}
	execCtx := ExecutionContext{Cfg: r.cfg, Store: r.store, JobID: job.ID, Logf: r.appendLog}
	params := map[string]any{}
	_ = json.Unmarshal([]byte(job.ParamsJSON), &params)

	if err := fn(runCtx, execCtx, job.Subject, params); err != nil {
		r.appendLog(job.ID, "error: "+err.Error())
		r.finish(ctx, job, StatusFailed, err.Error())
		return
	}
	r.finish(ctx, job, StatusSucceeded, "")
}

func (r *Runner) finish(ctx context.Context, job *store.Job, status, errMsg string) {
	// ctx may already be cancelled at shutdown; the terminal status must still land.
	if ctx.Err() != nil {
		ctx = context.Background()
	}
	if err := r.store.MarkJobFinished(ctx, job.ID, status, errMsg, config.Now()); err != nil {
		log.Printf("jobs: mark finished id=%d: %v", job.ID, err)
	}
	log.Printf("jobs: finished id=%d stage=%s status=%s", job.ID, job.Stage, status)
	if r.obs != nil {
		r.obs.JobFinished(job.Stage, status)
	}
}

func (r *Runner) observeDepth() {
	if r.obs != nil {
		r.obs.QueueDepth(len(r.queue))
	}
}

func (r *Runner) appendLog(jobID int64, msg string) {
	r.logMu.Lock()
	defer r.logMu.Unlock()
	ts := config.Now()
	_ = r.store.AppendJobLog(context.Background(), jobID, msg, ts)
	r.logBuffer[jobID] = append(r.logBuffer[jobID], fmt.Sprintf("%s %s", ts.Format(time.RFC3339), msg))
	if len(r.logBuffer[jobID]) > logBufferLines {
		r.logBuffer[jobID] = r.logBuffer[jobID][len(r.logBuffer[jobID])-logBufferLines:]
	}
}

// Logs returns the in-memory log buffer of a job.
func (r *Runner) Logs(jobID int64) []string {
	r.logMu.Lock()
	defer r.logMu.Unlock()
	return append([]string{}, r.logBuffer[jobID]...)
}

// QueueLen reports how many jobs wait in memory.
func (r *Runner) QueueLen() int { return len(r.queue) }

// IdempotencyKey hashes the subject, stage and params of a job.
func IdempotencyKey(subject string, stage Stage, params map[string]any) string {
	payload, _ := json.Marshal(params)
	h := sha256.Sum256([]byte(subject + string(stage) + string(payload)))
	return hex.EncodeToString(h[:])
}
