package telemetry

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMetrics_Disabled(t *testing.T) {
	m := NewMetrics(MetricsConfig{Enabled: false})

	m.RecordPipelineSubmitted("deploy")
	m.RecordStep("install", "succeeded", time.Second)
	m.RecordSyncRejected()
	assert.Nil(t, m.Registry())

	rec := httptest.NewRecorder()
	m.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestMetrics_NilReceiver(t *testing.T) {
	var m *Metrics
	assert.NotPanics(t, func() {
		m.RecordPipelineCompleted("failed", time.Second)
		m.RecordRemoteRetry("get_execution")
	})
}

func TestMetrics_Records(t *testing.T) {
	m := NewMetrics(MetricsConfig{Enabled: true, Namespace: "fabricd"})

	m.RecordPipelineSubmitted("deploy")
	m.RecordPipelineSubmitted("undeploy")
	m.RecordPipelineCompleted("succeeded", 3*time.Second)
	m.RecordStep("install", "failed", time.Second)
	m.RecordRemoteRetry("publish_archive")
	m.RecordSyncRejected()

	assert.Equal(t, 1.0, testutil.ToFloat64(m.pipelinesSubmitted.WithLabelValues("deploy")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.activePipelines))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.stepsExecuted.WithLabelValues("install", "failed")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.syncRejected))

	rec := httptest.NewRecorder()
	m.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), "fabricd_remote_retries_total")
}

func TestTracer_Noop(t *testing.T) {
	tr, err := NewTracer(TracingConfig{Enabled: false}, "fabricd", "test")
	require.NoError(t, err)

	ctx, span := tr.StartPipelineSpan(context.Background(), "c1", 3)
	_, step := tr.StartStepSpan(ctx, "install", "c1", "b1")
	End(step, errors.New("boom"))
	End(span, nil)

	assert.NoError(t, tr.Shutdown(context.Background()))
}

func TestTracer_UnsupportedExporter(t *testing.T) {
	_, err := NewTracer(TracingConfig{Enabled: true, Exporter: "zipkin"}, "fabricd", "test")
	assert.Error(t, err)
}

func TestTracer_NoExporter(t *testing.T) {
	tr, err := NewTracer(TracingConfig{Enabled: true, Exporter: "none"}, "fabricd", "test")
	require.NoError(t, err)

	_, span := tr.StartStepSpan(context.Background(), "upload_archive", "c1", "b1")
	End(span, nil)
	assert.NoError(t, tr.Shutdown(context.Background()))
}
