package telemetry

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics collects Prometheus metrics for the simulation service. A nil
// *Metrics is a valid no-op collector, so wiring stays optional in tests.
type Metrics struct {
	sessionsStarted *prometheus.CounterVec
	sessionsReset   *prometheus.CounterVec
	submissions     *prometheus.CounterVec
	validations     *prometheus.CounterVec
	actionsApplied  *prometheus.CounterVec
	errorsByCode    *prometheus.CounterVec
	requestDuration *prometheus.HistogramVec

	registry *prometheus.Registry
}

// NewMetrics creates a metrics collector with its own registry.
func NewMetrics() *Metrics {
	const namespace = "cloudlab"
	registry := prometheus.NewRegistry()

	m := &Metrics{
		registry: registry,
		sessionsStarted: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "sessions_started_total",
				Help:      "Total number of lab sessions started or resumed",
			},
			[]string{"lab", "resumed"},
		),
		sessionsReset: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "sessions_reset_total",
				Help:      "Total number of lab sessions reset",
			},
			[]string{"lab"},
		),
		submissions: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "submissions_total",
				Help:      "Total number of lab submissions",
			},
			[]string{"lab"},
		),
		validations: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "validations_total",
				Help:      "Total number of action validations",
			},
			[]string{"lab", "result"},
		),
		actionsApplied: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "actions_applied_total",
				Help:      "Total number of lifecycle actions applied to virtual inventory",
			},
			[]string{"action", "status"},
		),
		errorsByCode: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "errors_total",
				Help:      "Total number of errors by stable error code",
			},
			[]string{"code"},
		),
		requestDuration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: namespace,
				Name:      "http_request_duration_seconds",
				Help:      "Duration of HTTP requests in seconds",
				Buckets:   prometheus.DefBuckets,
			},
			[]string{"method", "path", "status"},
		),
	}

	registry.MustRegister(
		m.sessionsStarted,
		m.sessionsReset,
		m.submissions,
		m.validations,
		m.actionsApplied,
		m.errorsByCode,
		m.requestDuration,
	)
	return m
}

// Handler returns an http.Handler serving the metrics registry.
func (m *Metrics) Handler() http.Handler {
	if m == nil {
		return promhttp.Handler()
	}
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}

// Registry exposes the underlying registry for test scraping.
func (m *Metrics) Registry() *prometheus.Registry {
	if m == nil {
		return nil
	}
	return m.registry
}

func (m *Metrics) RecordSessionStarted(lab string, resumed bool) {
	if m == nil {
		return
	}
	r := "false"
	if resumed {
		r = "true"
	}
	m.sessionsStarted.WithLabelValues(lab, r).Inc()
}

func (m *Metrics) RecordSessionReset(lab string) {
	if m == nil {
		return
	}
	m.sessionsReset.WithLabelValues(lab).Inc()
}

func (m *Metrics) RecordSubmission(lab string) {
	if m == nil {
		return
	}
	m.submissions.WithLabelValues(lab).Inc()
}

func (m *Metrics) RecordValidation(lab string, success bool) {
	if m == nil {
		return
	}
	result := "fail"
	if success {
		result = "pass"
	}
	m.validations.WithLabelValues(lab, result).Inc()
}

func (m *Metrics) RecordAction(action string, err error) {
	if m == nil {
		return
	}
	status := "ok"
	if err != nil {
		status = "error"
	}
	m.actionsApplied.WithLabelValues(action, status).Inc()
}

func (m *Metrics) RecordError(code string) {
	if m == nil {
		return
	}
	m.errorsByCode.WithLabelValues(code).Inc()
}

func (m *Metrics) ObserveRequest(method, path, status string, d time.Duration) {
	if m == nil {
		return
	}
	m.requestDuration.WithLabelValues(method, path, status).Observe(d.Seconds())
}
