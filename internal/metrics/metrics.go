// Package metrics holds the Prometheus collectors exported on /metrics.
package metrics

import (
	"net/http"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics groups all collectors on a private registry. A nil *Metrics is valid and records nothing.
type Metrics struct {
	registry *prometheus.Registry

	httpRequestsTotal   *prometheus.CounterVec
	httpRequestDuration *prometheus.HistogramVec

	predictionsTotal  *prometheus.CounterVec
	predictionErrors  *prometheus.CounterVec
	inferenceDuration prometheus.Histogram

	storageUploads *prometheus.CounterVec

	authOperations *prometheus.CounterVec
}

// New creates the collectors and registers them on a fresh registry.
func New() (*Metrics, error) {
	m := &Metrics{registry: prometheus.NewRegistry()}

	m.httpRequestsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "http_requests_total",
			Help: "Total number of HTTP requests",
		},
		[]string{"method", "path", "status_code"},
	)
	m.httpRequestDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "http_request_duration_seconds",
			Help:    "Time taken for HTTP requests",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"method", "path"},
	)
	m.predictionsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "lungscan_predictions_total",
			Help: "Total number of stored predictions by predicted class",
		},
		[]string{"class"},
	)
	m.predictionErrors = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "lungscan_prediction_errors_total",
			Help: "Total number of failed predictions by error type",
		},
		[]string{"error_type"}, // invalid_image, model_unavailable, inference, persistence
	)
	m.inferenceDuration = prometheus.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "lungscan_inference_duration_seconds",
			Help:    "Time taken for preprocessing and inference",
			Buckets: prometheus.ExponentialBuckets(0.005, 2, 12), // 5ms to ~10s
		},
	)
	m.storageUploads = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "lungscan_storage_uploads_total",
			Help: "Total number of image uploads by final location",
		},
		[]string{"location", "fallback"},
	)
	m.authOperations = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "lungscan_auth_operations_total",
			Help: "Total number of authentication operations",
		},
		[]string{"operation", "status"}, // operation: register, login; status: success, conflict, unauthorized, forbidden, error
	)

	collectors := []prometheus.Collector{
		m.httpRequestsTotal,
		m.httpRequestDuration,
		m.predictionsTotal,
		m.predictionErrors,
		m.inferenceDuration,
		m.storageUploads,
		m.authOperations,
	}
	for _, c := range collectors {
		if err := m.registry.Register(c); err != nil {
			return nil, err
		}
	}
	return m, nil
}

// Registry exposes the underlying registry, mainly for tests.
func (m *Metrics) Registry() *prometheus.Registry {
	return m.registry
}

// Handler serves the registry in the Prometheus exposition format.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{
		ErrorHandling: promhttp.HTTPErrorOnError,
	})
}

func (m *Metrics) RecordHTTPRequest(method, path string, status int, duration time.Duration) {
	if m == nil {
		return
	}
	m.httpRequestsTotal.WithLabelValues(method, path, strconv.Itoa(status)).Inc()
	m.httpRequestDuration.WithLabelValues(method, path).Observe(duration.Seconds())
}

func (m *Metrics) RecordPrediction(class string, seconds float64) {
	if m == nil {
		return
	}
	m.predictionsTotal.WithLabelValues(class).Inc()
	m.inferenceDuration.Observe(seconds)
}

func (m *Metrics) RecordPredictionError(errorType string) {
	if m == nil {
		return
	}
	m.predictionErrors.WithLabelValues(errorType).Inc()
}

// RecordUpload counts one stored image; fallback marks a remote failure saved locally.
func (m *Metrics) RecordUpload(location string, fallback bool) {
	if m == nil {
		return
	}
	m.storageUploads.WithLabelValues(location, strconv.FormatBool(fallback)).Inc()
}

func (m *Metrics) RecordAuth(operation, status string) {
	if m == nil {
		return
	}
	m.authOperations.WithLabelValues(operation, status).Inc()
}
