package metrics

import (
	"errors"
	"net/http"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"metric-anomaly-engine/analytics"
)

func TestMetrics_ObserveDetection(t *testing.T) {
	reg := prometheus.NewRegistry()
	m := New(reg)

	m.ObserveDetection(analytics.KindHoltWinters, 10*time.Millisecond, 12, 3, nil)
	m.ObserveDetection(analytics.KindHoltWinters, 5*time.Millisecond, 0, 0, errors.New("boom"))
	m.ObserveDetection(analytics.KindThreshold, time.Millisecond, 4, 0, nil)

	assert.Equal(t, 1.0, testutil.ToFloat64(m.detectionsTotal.WithLabelValues("holt_winters", "ok")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.detectionsTotal.WithLabelValues("holt_winters", "error")))
	assert.Equal(t, 3.0, testutil.ToFloat64(m.anomaliesTotal.WithLabelValues("holt_winters")))
	assert.Equal(t, 2, testutil.CollectAndCount(m.detectionDuration))
}

func TestMetrics_Counters(t *testing.T) {
	reg := prometheus.NewRegistry()
	m := New(reg)

	m.SkippedPoints(analytics.KindHoltWinters, 4)
	m.SkippedPoints(analytics.KindHoltWinters, 2)
	m.OptimizerFallback(analytics.KindHoltWinters)
	m.JobDropped()
	m.ObserveRequest(http.MethodPost, "/detect", http.StatusOK, 20*time.Millisecond)
	m.ObserveRequest(http.MethodPost, "/detect", http.StatusBadRequest, time.Millisecond)

	assert.Equal(t, 6.0, testutil.ToFloat64(m.skippedPointsTotal.WithLabelValues("holt_winters")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.optimizerFallbacks.WithLabelValues("holt_winters")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.jobsDroppedTotal))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.httpRequestsTotal.WithLabelValues("POST", "/detect", "400")))

	families, err := reg.Gather()
	require.NoError(t, err)
	names := make([]string, 0, len(families))
	for _, f := range families {
		names = append(names, f.GetName())
	}
	assert.Contains(t, names, "request_duration_seconds")
	assert.Contains(t, names, "optimizer_fallbacks_total")
}

func TestMetrics_SeparateRegistries(t *testing.T) {
	assert.NotPanics(t, func() {
		New(prometheus.NewRegistry())
		New(prometheus.NewRegistry())
	})
}
