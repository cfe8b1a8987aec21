// Package telemetry provides Prometheus metrics and OpenTelemetry tracing for
// container pipelines.
package telemetry

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// MetricsConfig configures the metrics collector.
type MetricsConfig struct {
	Enabled   bool
	Namespace string
}

// Metrics records pipeline activity. A zero or disabled Metrics is a no-op,
// and all methods are safe on a nil receiver.
type Metrics struct {
	pipelinesSubmitted *prometheus.CounterVec
	pipelinesCompleted *prometheus.CounterVec
	pipelineDuration   *prometheus.HistogramVec
	stepsExecuted      *prometheus.CounterVec
	stepDuration       *prometheus.HistogramVec
	remoteRetries      *prometheus.CounterVec
	syncRejected       prometheus.Counter
	activePipelines    prometheus.Gauge

	registry *prometheus.Registry
}

// NewMetrics creates a metrics collector with its own registry.
func NewMetrics(cfg MetricsConfig) *Metrics {
	if !cfg.Enabled {
		return &Metrics{}
	}

	ns := cfg.Namespace
	registry := prometheus.NewRegistry()

	m := &Metrics{
		registry: registry,
		pipelinesSubmitted: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: ns,
			Name:      "pipelines_submitted_total",
			Help:      "Total number of container pipelines submitted",
		}, []string{"kind"}),
		pipelinesCompleted: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: ns,
			Name:      "pipelines_completed_total",
			Help:      "Total number of container pipelines completed",
		}, []string{"outcome"}),
		pipelineDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: ns,
			Name:      "pipeline_duration_seconds",
			Help:      "Duration of container pipelines in seconds",
			Buckets:   []float64{1, 5, 15, 30, 60, 120, 300, 600, 1200, 2400},
		}, []string{"outcome"}),
		stepsExecuted: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: ns,
			Name:      "steps_executed_total",
			Help:      "Total number of pipeline steps by kind and status",
		}, []string{"kind", "status"}),
		stepDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: ns,
			Name:      "step_duration_seconds",
			Help:      "Duration of pipeline steps in seconds",
			Buckets:   prometheus.DefBuckets,
		}, []string{"kind"}),
		remoteRetries: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: ns,
			Name:      "remote_retries_total",
			Help:      "Total number of retried fabric manager calls",
		}, []string{"operation"}),
		syncRejected: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: ns,
			Name:      "sync_rejected_total",
			Help:      "Total number of sync requests rejected because the container was busy",
		}),
		activePipelines: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: ns,
			Name:      "active_pipelines",
			Help:      "Number of pipelines currently holding a container lock",
		}),
	}

	registry.MustRegister(
		m.pipelinesSubmitted,
		m.pipelinesCompleted,
		m.pipelineDuration,
		m.stepsExecuted,
		m.stepDuration,
		m.remoteRetries,
		m.syncRejected,
		m.activePipelines,
	)

	return m
}

func (m *Metrics) enabled() bool {
	return m != nil && m.registry != nil
}

// RecordPipelineSubmitted counts an accepted pipeline. kind is "deploy",
// "undeploy" or "noop".
func (m *Metrics) RecordPipelineSubmitted(kind string) {
	if !m.enabled() {
		return
	}
	m.pipelinesSubmitted.WithLabelValues(kind).Inc()
	m.activePipelines.Inc()
}

// RecordPipelineCompleted counts a finished pipeline.
func (m *Metrics) RecordPipelineCompleted(outcome string, duration time.Duration) {
	if !m.enabled() {
		return
	}
	m.pipelinesCompleted.WithLabelValues(outcome).Inc()
	m.pipelineDuration.WithLabelValues(outcome).Observe(duration.Seconds())
	m.activePipelines.Dec()
}

// RecordStep counts a step outcome.
func (m *Metrics) RecordStep(kind, status string, duration time.Duration) {
	if !m.enabled() {
		return
	}
	m.stepsExecuted.WithLabelValues(kind, status).Inc()
	if duration > 0 {
		m.stepDuration.WithLabelValues(kind).Observe(duration.Seconds())
	}
}

// RecordRemoteRetry counts a retried fabric manager call.
func (m *Metrics) RecordRemoteRetry(operation string) {
	if !m.enabled() {
		return
	}
	m.remoteRetries.WithLabelValues(operation).Inc()
}

// RecordSyncRejected counts a sync request refused because of the lock.
func (m *Metrics) RecordSyncRejected() {
	if !m.enabled() {
		return
	}
	m.syncRejected.Inc()
}

// Registry exposes the underlying registry, nil when disabled.
func (m *Metrics) Registry() *prometheus.Registry {
	if m == nil {
		return nil
	}
	return m.registry
}

// Handler returns the HTTP handler serving the metrics.
func (m *Metrics) Handler() http.Handler {
	if !m.enabled() {
		return http.NotFoundHandler()
	}
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}
