// Package metrics exposes Prometheus instrumentation for the HTTP layer and
// the classifier.
package metrics

import (
	"database/sql"
	"net/http"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/smartpest-api/internal/inference"
)

const namespace = "smartpest"

// Metrics owns a private registry and every collector registered on it
type Metrics struct {
	registry *prometheus.Registry

	httpRequestsTotal   *prometheus.CounterVec
	httpRequestDuration *prometheus.HistogramVec
	rateLimitedTotal    *prometheus.CounterVec

	predictionsTotal   *prometheus.CounterVec
	predictionDuration *prometheus.HistogramVec
	modelLoadsTotal    *prometheus.CounterVec
	modelLoadDuration  prometheus.Gauge
	classifierDegraded prometheus.Gauge
	classifierState    *prometheus.GaugeVec
}

var _ inference.Recorder = (*Metrics)(nil)

// New creates a registry with Go runtime and process collectors plus the
// application metrics
func New() *Metrics {
	m := &Metrics{registry: prometheus.NewRegistry()}

	m.httpRequestsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "http_requests_total",
			Help:      "Total number of HTTP requests",
		},
		[]string{"method", "route", "status_code"},
	)
	m.httpRequestDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "http_request_duration_seconds",
			Help:      "Time taken for HTTP requests",
			Buckets:   prometheus.DefBuckets,
		},
		[]string{"method", "route"},
	)
	m.rateLimitedTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "http_rate_limited_total",
			Help:      "Requests rejected by the rate limiter",
		},
		[]string{"route"},
	)
	m.predictionsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "predictions_total",
			Help:      "Predictions served, by model source and outcome",
		},
		[]string{"source", "mock", "outcome"},
	)
	m.predictionDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "prediction_duration_seconds",
			Help:      "Time taken to decode, preprocess and classify an image",
			Buckets:   prometheus.ExponentialBuckets(0.005, 2, 12), // 5ms to ~10s
		},
		[]string{"source"},
	)
	m.modelLoadsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "model_load_attempts_total",
			Help:      "Weight file load attempts by source and result",
		},
		[]string{"source", "result"},
	)
	m.modelLoadDuration = prometheus.NewGauge(prometheus.GaugeOpts{
		Namespace: namespace,
		Name:      "model_load_duration_seconds",
		Help:      "Time taken by the successful model load",
	})
	m.classifierDegraded = prometheus.NewGauge(prometheus.GaugeOpts{
		Namespace: namespace,
		Name:      "classifier_degraded",
		Help:      "1 when predictions are served from mock labels",
	})
	m.classifierState = prometheus.NewGaugeVec(
		prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "classifier_state",
			Help:      "Current classifier state; the active state is 1",
		},
		[]string{"state"},
	)

	m.registry.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
		m.httpRequestsTotal,
		m.httpRequestDuration,
		m.rateLimitedTotal,
		m.predictionsTotal,
		m.predictionDuration,
		m.modelLoadsTotal,
		m.modelLoadDuration,
		m.classifierDegraded,
		m.classifierState,
	)
	m.ClassifierState(inference.StatePending, inference.SourceNone)

	return m
}

// Registry exposes the underlying registry
func (m *Metrics) Registry() *prometheus.Registry {
	return m.registry
}

// Handler serves the exposition format
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{Registry: m.registry})
}

// RegisterDB adds connection pool statistics for db
func (m *Metrics) RegisterDB(db *sql.DB, name string) error {
	return m.registry.Register(collectors.NewDBStatsCollector(db, name))
}

// RecordHTTPRequest records a completed request
func (m *Metrics) RecordHTTPRequest(method, route string, statusCode int, duration time.Duration) {
	m.httpRequestsTotal.WithLabelValues(method, route, strconv.Itoa(statusCode)).Inc()
	m.httpRequestDuration.WithLabelValues(method, route).Observe(duration.Seconds())
}

// RecordRateLimited records a request rejected with 429
func (m *Metrics) RecordRateLimited(route string) {
	m.rateLimitedTotal.WithLabelValues(route).Inc()
}

// ModelLoaded implements inference.Recorder
func (m *Metrics) ModelLoaded(source inference.Source, duration time.Duration) {
	m.modelLoadsTotal.WithLabelValues(string(source), "loaded").Inc()
	m.modelLoadDuration.Set(duration.Seconds())
}

// ModelLoadFailed implements inference.Recorder
func (m *Metrics) ModelLoadFailed(source inference.Source, reason string) {
	label := string(source)
	if label == "" {
		label = "none"
	}
	m.modelLoadsTotal.WithLabelValues(label, reason).Inc()
}

// ClassifierState implements inference.Recorder
func (m *Metrics) ClassifierState(state inference.State, _ inference.Source) {
	for _, s := range []inference.State{inference.StatePending, inference.StateLoaded, inference.StateUnavailable} {
		v := 0.0
		if s == state {
			v = 1
		}
		m.classifierState.WithLabelValues(string(s)).Set(v)
	}
	if state == inference.StateUnavailable {
		m.classifierDegraded.Set(1)
	} else {
		m.classifierDegraded.Set(0)
	}
}

// Prediction implements inference.Recorder
func (m *Metrics) Prediction(source inference.Source, outcome string, duration time.Duration) {
	mock := strconv.FormatBool(source == inference.SourceMock)
	m.predictionsTotal.WithLabelValues(string(source), mock, outcome).Inc()
	m.predictionDuration.WithLabelValues(string(source)).Observe(duration.Seconds())
}
