// Package jobmetrics holds the Prometheus collectors shared by the worker's
// task handlers.
package jobmetrics

import (
	"errors"
	"sync"
	"time"

	"github.com/hibiken/asynq"
	"github.com/prometheus/client_golang/prometheus"
)

const namespace = "innkeeper"

// Outcome labels on innkeeper_jobs_total.
const (
	StatusSuccess = "success"
	StatusFailure = "failure"
	// StatusSkipped marks a task dropped without retry, e.g. a bad payload.
	StatusSkipped = "skipped"
)

// Metrics exposes Prometheus collectors for background jobs.
type Metrics struct {
	runs        *prometheus.CounterVec
	failures    *prometheus.CounterVec
	duration    *prometheus.HistogramVec
	lastSuccess *prometheus.GaugeVec
	broadcasts  *prometheus.CounterVec
	purged      prometheus.Counter
}

var (
	defaultOnce    sync.Once
	defaultMetrics *Metrics
)

// NewMetrics registers the collectors with registerer, or once with the
// default registerer when it is nil.
func NewMetrics(registerer prometheus.Registerer) *Metrics {
	if registerer != nil {
		return register(registerer)
	}
	defaultOnce.Do(func() {
		defaultMetrics = register(prometheus.DefaultRegisterer)
	})
	return defaultMetrics
}

func register(registerer prometheus.Registerer) *Metrics {
	m := &Metrics{
		runs: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace, Name: "jobs_total",
			Help: "Job executions by task type and outcome.",
		}, []string{"job", "status"}),
		failures: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace, Name: "jobs_failures_total",
			Help: "Job executions that returned a retryable error.",
		}, []string{"job"}),
		duration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace, Name: "job_duration_seconds",
			Help:    "Job execution time.",
			Buckets: []float64{.005, .025, .1, .5, 1, 5, 30, 120},
		}, []string{"job"}),
		lastSuccess: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: namespace, Name: "job_last_success_timestamp_seconds",
			Help: "Unix time of the last successful run; alert when a cron goes stale.",
		}, []string{"job"}),
		broadcasts: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace, Name: "jobs_broadcasts_total",
			Help: "data_update broadcasts published from the worker by category.",
		}, []string{"category"}),
		purged: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace, Name: "idempotency_keys_purged_total",
			Help: "Expired Idempotency-Key records removed by the cleanup job.",
		}),
	}
	registerer.MustRegister(m.runs, m.failures, m.duration, m.lastSuccess, m.broadcasts, m.purged)
	return m
}

// Tracker times one task execution.
type Tracker struct {
	metrics *Metrics
	job     string
	start   time.Time
}

// Track starts timing a run of job. Safe on a nil receiver.
func (m *Metrics) Track(job string) *Tracker {
	return &Tracker{metrics: m, job: job, start: time.Now()}
}

// End records the outcome of the run and returns err unchanged, so handlers
// can write `defer func() { err = tracker.End(err) }()`.
func (t *Tracker) End(err error) error {
	if t == nil || t.metrics == nil || t.job == "" {
		return err
	}
	m := t.metrics
	m.duration.WithLabelValues(t.job).Observe(time.Since(t.start).Seconds())
	switch {
	case err == nil:
		m.runs.WithLabelValues(t.job, StatusSuccess).Inc()
		m.lastSuccess.WithLabelValues(t.job).SetToCurrentTime()
	case errors.Is(err, asynq.SkipRetry):
		m.runs.WithLabelValues(t.job, StatusSkipped).Inc()
	default:
		m.runs.WithLabelValues(t.job, StatusFailure).Inc()
		m.failures.WithLabelValues(t.job).Inc()
	}
	return err
}

// AddBroadcast counts a realtime broadcast published by a job.
func (m *Metrics) AddBroadcast(category string) {
	if m == nil {
		return
	}
	m.broadcasts.WithLabelValues(category).Inc()
}

// AddPurged counts idempotency keys removed by the cleanup job.
func (m *Metrics) AddPurged(count int64) {
	if m == nil || count <= 0 {
		return
	}
	m.purged.Add(float64(count))
}
