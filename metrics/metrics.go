package metrics

import (
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"

	"metric-anomaly-engine/analytics"
)

// Metrics holds every collector the service exports. It implements
// analytics.Recorder.
type Metrics struct {
	detectionsTotal    *prometheus.CounterVec
	detectionDuration  *prometheus.HistogramVec
	anomaliesTotal     *prometheus.CounterVec
	skippedPointsTotal *prometheus.CounterVec
	optimizerFallbacks *prometheus.CounterVec
	jobsDroppedTotal   prometheus.Counter

	httpRequestsTotal      *prometheus.CounterVec
	requestDurationSeconds *prometheus.HistogramVec
}

var _ analytics.Recorder = (*Metrics)(nil)

// New registers the collectors with reg.
func New(reg prometheus.Registerer) *Metrics {
	factory := promauto.With(reg)
	return &Metrics{
		detectionsTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "detections_total",
				Help: "Total number of detection runs",
			},
			[]string{"detector", "status"},
		),
		detectionDuration: factory.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "detection_duration_seconds",
				Help:    "Detection run duration in seconds",
				Buckets: prometheus.ExponentialBuckets(0.0005, 4, 10),
			},
			[]string{"detector"},
		),
		anomaliesTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "anomalies_detected_total",
				Help: "Total number of rows flagged as anomalous",
			},
			[]string{"detector"},
		),
		skippedPointsTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "skipped_points_total",
				Help: "Target points left without a baseline",
			},
			[]string{"detector"},
		),
		optimizerFallbacks: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "optimizer_fallbacks_total",
				Help: "Smoothing parameter fits that fell back to seed values",
			},
			[]string{"detector"},
		),
		jobsDroppedTotal: factory.NewCounter(
			prometheus.CounterOpts{
				Name: "detection_jobs_dropped_total",
				Help: "Jobs rejected because the queue was full",
			},
		),
		httpRequestsTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "http_requests_total",
				Help: "Total number of HTTP requests",
			},
			[]string{"method", "endpoint", "status"},
		),
		requestDurationSeconds: factory.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "request_duration_seconds",
				Help:    "Request duration in seconds",
				Buckets: prometheus.DefBuckets,
			},
			[]string{"method", "endpoint"},
		),
	}
}

func (m *Metrics) ObserveDetection(kind analytics.Kind, elapsed time.Duration, _, anomalies int, err error) {
	status := "ok"
	if err != nil {
		status = "error"
	}
	m.detectionsTotal.WithLabelValues(string(kind), status).Inc()
	m.detectionDuration.WithLabelValues(string(kind)).Observe(elapsed.Seconds())
	if anomalies > 0 {
		m.anomaliesTotal.WithLabelValues(string(kind)).Add(float64(anomalies))
	}
}

func (m *Metrics) SkippedPoints(kind analytics.Kind, n int) {
	m.skippedPointsTotal.WithLabelValues(string(kind)).Add(float64(n))
}

func (m *Metrics) OptimizerFallback(kind analytics.Kind) {
	m.optimizerFallbacks.WithLabelValues(string(kind)).Inc()
}

func (m *Metrics) JobDropped() {
	m.jobsDroppedTotal.Inc()
}

// ObserveRequest records one served HTTP request.
func (m *Metrics) ObserveRequest(method, endpoint string, status int, elapsed time.Duration) {
	m.httpRequestsTotal.WithLabelValues(method, endpoint, strconv.Itoa(status)).Inc()
	m.requestDurationSeconds.WithLabelValues(method, endpoint).Observe(elapsed.Seconds())
}
