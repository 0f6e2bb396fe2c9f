// Package metrics exposes Prometheus collectors for pipeline runs and jobs.
package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const namespace = "aadhaar_pulse"

// Metrics holds all Prometheus metrics for the service. Each instance owns
// its registry so tests can create as many as they need.
type Metrics struct {
	registry *prometheus.Registry

	RunsTotal        *prometheus.CounterVec
	RunDuration      prometheus.Histogram
	RowsIngested     *prometheus.CounterVec
	StatesTracked    prometheus.Gauge
	Anomalies        *prometheus.GaugeVec
	LastSuccess      prometheus.Gauge
	JobsTotal        *prometheus.CounterVec
	JobQueueDepth    prometheus.Gauge
	RecomputeLimited prometheus.Counter
	NotifyTotal      *prometheus.CounterVec
}

// New creates and registers all metrics.
func New() *Metrics {
	reg := prometheus.NewRegistry()
	m := &Metrics{
		registry: reg,
		RunsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "pipeline_runs_total",
			Help:      "Pipeline runs by final status",
		}, []string{"status"}),
		RunDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "pipeline_run_duration_seconds",
			Help:      "Wall time of pipeline runs",
			Buckets:   prometheus.ExponentialBuckets(0.05, 2, 10),
		}),
		RowsIngested: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "rows_ingested_total",
			Help:      "CSV rows read per source",
		}, []string{"source"}),
		StatesTracked: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "states_tracked",
			Help:      "States in the latest month",
		}),
		Anomalies: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "anomalies",
			Help:      "Anomalies in the latest month by severity",
		}, []string{"severity"}),
		LastSuccess: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "last_success_timestamp_seconds",
			Help:      "Unix time of the last successful run",
		}),
		JobsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "jobs_total",
			Help:      "Finished jobs by stage and status",
		}, []string{"stage", "status"}),
		JobQueueDepth: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "job_queue_depth",
			Help:      "Jobs waiting in the in-memory queue",
		}),
		RecomputeLimited: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "recompute_rate_limited_total",
			Help:      "Recompute triggers dropped by the rate limiter",
		}),
		NotifyTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "notifications_total",
			Help:      "Outbound alert attempts by result",
		}, []string{"result"}),
	}
	reg.MustRegister(
		m.RunsTotal, m.RunDuration, m.RowsIngested, m.StatesTracked, m.Anomalies,
		m.LastSuccess, m.JobsTotal, m.JobQueueDepth, m.RecomputeLimited, m.NotifyTotal,
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	return m
}

// Handler serves the registry in the Prometheus exposition format.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}

// RunFinished records the outcome and duration of one pipeline run.
func (m *Metrics) RunFinished(status string, took time.Duration, at time.Time) {
	m.RunsTotal.WithLabelValues(status).Inc()
	m.RunDuration.Observe(took.Seconds())
	if status == "succeeded" {
		m.LastSuccess.Set(float64(at.Unix()))
	}
}

// RowsRead adds n rows for a source.
func (m *Metrics) RowsRead(source string, n int) {
	m.RowsIngested.WithLabelValues(source).Add(float64(n))
}

// Snapshot sets the gauges describing the latest month.
func (m *Metrics) Snapshot(states int, bySeverity map[string]int) {
	m.StatesTracked.Set(float64(states))
	for _, sev := range []string{"low", "medium", "high"} {
		m.Anomalies.WithLabelValues(sev).Set(float64(bySeverity[sev]))
	}
}

// JobFinished counts a finished job.
func (m *Metrics) JobFinished(stage, status string) {
	m.JobsTotal.WithLabelValues(stage, status).Inc()
}

// QueueDepth sets the queue gauge.
func (m *Metrics) QueueDepth(n int) { m.JobQueueDepth.Set(float64(n)) }

// RateLimited counts a dropped recompute trigger.
func (m *Metrics) RateLimited() { m.RecomputeLimited.Inc() }

// Notified counts an outbound alert attempt.
func (m *Metrics) Notified(result string) { m.NotifyTotal.WithLabelValues(result).Inc() }
