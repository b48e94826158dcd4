// Package observability provides metrics and tracing for installkit.
package observability

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const namespace = "installkit"

// Outcome labels.
const (
	OutcomeInstalled = "installed"
	OutcomeFailed    = "failed"
	OutcomeIgnored   = "ignored"
	OutcomeSuccess   = "success"
	OutcomeError     = "error"
)

// Metrics holds the Prometheus collectors of the installer.
// All methods are safe to call on a nil *Metrics.
type Metrics struct {
	registry *prometheus.Registry

	installAttempts *prometheus.CounterVec
	installDuration *prometheus.HistogramVec
	activeInstalls  prometheus.Gauge
	taskPolls       *prometheus.CounterVec
	releaseFetches  *prometheus.CounterVec
	uploads         *prometheus.CounterVec
	buildInfo       *prometheus.GaugeVec
}

// NewMetrics creates the collectors on a private registry.
func NewMetrics(version string) *Metrics {
	m := &Metrics{
		registry: prometheus.NewRegistry(),
		installAttempts: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "install_attempts_total",
			Help:      "Install attempts by source and outcome.",
		}, []string{"source", "outcome"}),
		installDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "install_duration_seconds",
			Help:      "Duration of install attempts including task polling.",
			Buckets:   []float64{0.1, 0.5, 1, 5, 10, 30, 60, 120, 300},
		}, []string{"source"}),
		activeInstalls: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "active_installs",
			Help:      "Install attempts currently in flight.",
		}),
		taskPolls: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "task_polls_total",
			Help:      "Task status fetches by observed result.",
		}, []string{"result"}),
		releaseFetches: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "release_fetches_total",
			Help:      "GitHub release list fetches by outcome.",
		}, []string{"outcome"}),
		uploads: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "uploads_total",
			Help:      "Package uploads by source and outcome.",
		}, []string{"source", "outcome"}),
		buildInfo: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "build_info",
			Help:      "Build information.",
		}, []string{"version"}),
	}

	m.registry.MustRegister(
		m.installAttempts,
		m.installDuration,
		m.activeInstalls,
		m.taskPolls,
		m.releaseFetches,
		m.uploads,
		m.buildInfo,
		collectors.NewGoCollector(),
	)
	m.buildInfo.WithLabelValues(version).Set(1)

	return m
}

// RecordInstallAttempt records the outcome and duration of an install attempt.
func (m *Metrics) RecordInstallAttempt(source, outcome string, duration time.Duration) {
	if m == nil {
		return
	}
	m.installAttempts.WithLabelValues(source, outcome).Inc()
	if outcome != OutcomeIgnored {
		m.installDuration.WithLabelValues(source).Observe(duration.Seconds())
	}
}

// IncActiveInstalls marks an install attempt as started.
func (m *Metrics) IncActiveInstalls() {
	if m == nil {
		return
	}
	m.activeInstalls.Inc()
}

// DecActiveInstalls marks an install attempt as finished.
func (m *Metrics) DecActiveInstalls() {
	if m == nil {
		return
	}
	m.activeInstalls.Dec()
}

// RecordTaskPoll records one task status fetch. result is the entry status,
// "not_found" or "error".
func (m *Metrics) RecordTaskPoll(result string) {
	if m == nil {
		return
	}
	m.taskPolls.WithLabelValues(result).Inc()
}

// RecordReleaseFetch records a release list fetch.
func (m *Metrics) RecordReleaseFetch(success bool) {
	if m == nil {
		return
	}
	m.releaseFetches.WithLabelValues(outcome(success)).Inc()
}

// RecordUpload records a package upload.
func (m *Metrics) RecordUpload(source string, success bool) {
	if m == nil {
		return
	}
	m.uploads.WithLabelValues(source, outcome(success)).Inc()
}

// Registry returns the private registry.
func (m *Metrics) Registry() *prometheus.Registry {
	if m == nil {
		return nil
	}
	return m.registry
}

// Handler returns an HTTP handler exposing the metrics in Prometheus format.
func (m *Metrics) Handler() http.Handler {
	if m == nil {
		return http.NotFoundHandler()
	}
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{Registry: m.registry})
}

func outcome(success bool) string {
	if success {
		return OutcomeSuccess
	}
	return OutcomeError
}
