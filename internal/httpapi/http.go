package httpapi

import (
	"context"
	"encoding/json"
	"errors"
	"log"
	"net/http"
	"strconv"
	"strings"

	"aadhaar_pulse/internal/aggregate"
	"aadhaar_pulse/internal/analytics"
	"aadhaar_pulse/internal/config"
	"aadhaar_pulse/internal/indices"
	"aadhaar_pulse/internal/jobs"
	"aadhaar_pulse/internal/pipeline"
	"aadhaar_pulse/internal/store"
)

// Recomputer schedules a pipeline run.
type Recomputer interface {
	Recompute(ctx context.Context, reason string, force bool) (*store.Job, error)
}

// Router builds HTTP handlers for /api and /ops.
type Router struct {
	cfg     config.Config
	store   *store.Store
	runner  *jobs.Runner
	latest  *pipeline.Latest
	trigger Recomputer
	metrics http.Handler
}

func NewRouter(cfg config.Config, st *store.Store, runner *jobs.Runner, latest *pipeline.Latest, trigger Recomputer, metrics http.Handler) *Router {
	return &Router{cfg: cfg, store: st, runner: runner, latest: latest, trigger: trigger, metrics: metrics}
}

func (r *Router) Register(mux *http.ServeMux) {
	mux.HandleFunc("GET /api/states", r.states)
	mux.HandleFunc("GET /api/states/{code}", r.stateDetail)
	mux.HandleFunc("GET /api/monthly", r.monthly)
	mux.HandleFunc("GET /api/anomalies", r.anomalies)
	mux.HandleFunc("GET /api/indices", r.indices)
	mux.HandleFunc("GET /api/summary", r.summary)
	mux.HandleFunc("GET /api/analytics", r.analytics)
	mux.HandleFunc("POST /ops/recompute", r.recompute)
	mux.HandleFunc("GET /ops/status", r.status)
	mux.HandleFunc("GET /ops/runs", r.runs)
	mux.HandleFunc("GET /ops/runs/{id}", r.runDetail)
	mux.HandleFunc("GET /ops/jobs", r.jobs)
	mux.HandleFunc("GET /ops/jobs/{id}", r.jobDetail)
	mux.HandleFunc("GET /ops/jobs/{id}/logs", r.jobLogs)
	mux.HandleFunc("GET /ops/health", r.health)
	if r.metrics != nil {
		mux.Handle("GET /metrics", r.metrics)
	}
}

// snapshot loads the latest bundle or answers 503.
func (r *Router) snapshot(w http.ResponseWriter) (pipeline.Snapshot, bool) {
	snap, err := r.latest.Get()
	if errors.Is(err, pipeline.ErrNoData) {
		http.Error(w, err.Error(), http.StatusServiceUnavailable)
		return snap, false
	}
	return snap, true
}

func (r *Router) states(w http.ResponseWriter, req *http.Request) {
	if snap, ok := r.snapshot(w); ok {
		respondJSON(w, snap.Result.States)
	}
}

func (r *Router) monthly(w http.ResponseWriter, req *http.Request) {
	if snap, ok := r.snapshot(w); ok {
		respondJSON(w, snap.Result.MonthlyData)
	}
}

func (r *Router) indices(w http.ResponseWriter, req *http.Request) {
	if snap, ok := r.snapshot(w); ok {
		respondJSON(w, snap.Result.Indices)
	}
}

func (r *Router) anomalies(w http.ResponseWriter, req *http.Request) {
	snap, ok := r.snapshot(w)
	if !ok {
		return
	}
	stored, err := r.store.RunAnomalies(req.Context(), snap.RunID)
	if err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}
	respondJSON(w, stored)
}

type stateDetail struct {
	State           aggregate.StateAggregation `json:"state"`
	Indices         indices.DerivedIndices     `json:"indices"`
	Health          indices.Level              `json:"healthIndicator"`
	AgeDistribution []analytics.AgeGroup       `json:"ageDistribution"`
	Trend           analytics.StateTrend       `json:"trend"`
}

func (r *Router) stateDetail(w http.ResponseWriter, req *http.Request) {
	snap, ok := r.snapshot(w)
	if !ok {
		return
	}
	code := strings.ToUpper(req.PathValue("code"))
	for _, s := range snap.Result.States {
		if s.StateID != code {
			continue
		}
		d := indices.ForState(s)
		respondJSON(w, stateDetail{
			State:           s,
			Indices:         d,
			Health:          indices.ClassifyIndices(d),
			AgeDistribution: analytics.AgeDistribution(s),
			Trend:           analytics.TrendFor(snap.Result.MonthlyData, s.StateID),
		})
		return
	}
	http.NotFound(w, req)
}

type summaryBody struct {
	analytics.NationalSummary
	UpdatesIncluded bool   `json:"updatesIncluded"`
	RunID           string `json:"runId"`
}

func (r *Router) summary(w http.ResponseWriter, req *http.Request) {
	if snap, ok := r.snapshot(w); ok {
		respondJSON(w, summaryBody{
			NationalSummary: analytics.Summary(snap.Result.MonthlyData),
			UpdatesIncluded: snap.Result.UpdatesIncluded,
			RunID:           snap.RunID,
		})
	}
}

type analyticsBody struct {
	TimeSeries      analytics.Series          `json:"timeSeries"`
	Heatmap         []analytics.HeatmapCell   `json:"heatmap"`
	Correlations    analytics.Correlations    `json:"correlations"`
	NationalIndices analytics.NationalIndices `json:"nationalIndices"`
}

func (r *Router) analytics(w http.ResponseWriter, req *http.Request) {
	snap, ok := r.snapshot(w)
	if !ok {
		return
	}
	months := snap.Result.MonthlyData
	respondJSON(w, analyticsBody{
		TimeSeries:      analytics.TimeSeries(months),
		Heatmap:         analytics.Heatmap(months),
		Correlations:    analytics.Correlate(snap.Result.States, snap.Result.Indices),
		NationalIndices: analytics.National(months),
	})
}

func (r *Router) recompute(w http.ResponseWriter, req *http.Request) {
	force, _ := strconv.ParseBool(req.URL.Query().Get("force"))
	job, err := r.trigger.Recompute(req.Context(), "manual", force)
	switch {
	case errors.Is(err, jobs.ErrRateLimited):
		http.Error(w, err.Error(), http.StatusTooManyRequests)
		return
	case errors.Is(err, jobs.ErrQueueFull):
		http.Error(w, err.Error(), http.StatusServiceUnavailable)
		return
	case err != nil:
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusAccepted)
	if err := json.NewEncoder(w).Encode(job); err != nil {
		log.Printf("write json: %v", err)
	}
}

func (r *Router) status(w http.ResponseWriter, req *http.Request) {
	ctx := req.Context()
	runs, err := r.store.ListRuns(ctx, 5)
	if err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}
	recent, err := r.store.ListJobs(ctx, 10)
	if err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}
	counts, err := r.store.CountJobs(ctx)
	if err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}
	body := map[string]any{
		"runs":       runs,
		"jobs":       recent,
		"jobCounts":  counts,
		"queueDepth": r.runner.QueueLen(),
		"workers":    r.cfg.WorkerCount,
		"dataDir":    r.cfg.DataDir,
		"hasData":    false,
	}
	last, err := r.store.LatestRun(ctx)
	switch {
	case err == nil:
		body["lastSuccess"] = last
	case !errors.Is(err, store.ErrNotFound):
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}
	if snap, err := r.latest.Get(); err == nil {
		body["hasData"] = true
		body["latestRun"] = snap.RunID
		body["latestMonth"] = snap.Result.LatestMonth
	}
	respondJSON(w, body)
}

func (r *Router) runs(w http.ResponseWriter, req *http.Request) {
	list, err := r.store.ListRuns(req.Context(), 50)
	if err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}
	respondJSON(w, list)
}

func (r *Router) runDetail(w http.ResponseWriter, req *http.Request) {
	ctx := req.Context()
	run, err := r.store.GetRun(ctx, req.PathValue("id"))
	if errors.Is(err, store.ErrNotFound) {
		http.NotFound(w, req)
		return
	}
	if err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}
	found, err := r.store.RunAnomalies(ctx, run.ID)
	if err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}
	respondJSON(w, map[string]any{"run": run, "anomalies": found})
}

func (r *Router) jobs(w http.ResponseWriter, req *http.Request) {
	list, err := r.store.ListJobs(req.Context(), 50)
	if err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}
	respondJSON(w, list)
}

func (r *Router) jobDetail(w http.ResponseWriter, req *http.Request) {
	id, err := strconv.ParseInt(req.PathValue("id"), 10, 64)
	if err != nil {
		http.Error(w, "invalid job id", http.StatusBadRequest)
		return
	}
	job, err := r.store.GetJob(req.Context(), id)
	if errors.Is(err, store.ErrNotFound) {
		http.NotFound(w, req)
		return
	}
	if err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}
	respondJSON(w, job)
}

func (r *Router) jobLogs(w http.ResponseWriter, req *http.Request) {
	id, err := strconv.ParseInt(req.PathValue("id"), 10, 64)
	if err != nil {
		http.Error(w, "invalid job id", http.StatusBadRequest)
		return
	}
	if lines := r.runner.Logs(id); len(lines) > 0 {
		respondJSON(w, lines)
		return
	}
	// buffer is empty after a restart
	lines, err := r.store.JobLogs(req.Context(), id)
	if err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}
	respondJSON(w, lines)
}

func (r *Router) health(w http.ResponseWriter, req *http.Request) {
	if err := r.store.Health(req.Context()); err != nil {
		http.Error(w, err.Error(), http.StatusServiceUnavailable)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func respondJSON(w http.ResponseWriter, payload interface{}) {
	w.Header().Set("Content-Type", "application/json")
	if err := json.NewEncoder(w).Encode(payload); err != nil {
		log.Printf("write json: %v", err)
	}
}
