package observability

import (
	"log/slog"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const namespace = "panelgoat"

// Metrics tracks operational metrics for scrape runs. A nil *Metrics is
// valid and records nothing.
type Metrics struct {
	// Run metrics
	RunsTotal      *prometheus.CounterVec
	RunDuration    prometheus.Histogram
	LastSuccess    prometheus.Gauge
	RunsInProgress prometheus.Gauge

	// Scrape metrics
	LoginOutcomes    *prometheus.CounterVec
	ExtractionSource *prometheus.CounterVec
	Warnings         prometheus.Counter

	// Storage metrics
	StorageErrors *prometheus.CounterVec

	registry *prometheus.Registry
	logger   *slog.Logger
}

// NewMetrics creates a Metrics instance on its own registry, including the
// Go runtime and process collectors.
func NewMetrics(logger *slog.Logger) *Metrics {
	reg := prometheus.NewRegistry()
	reg.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	factory := promauto.With(reg)

	return &Metrics{
		RunsTotal: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "runs_total",
			Help:      "Total scrape runs by trigger and status",
		}, []string{"trigger", "status"}),
		RunDuration: factory.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "run_duration_seconds",
			Help:      "Duration of a scrape-and-persist run",
			Buckets:   []float64{1, 2.5, 5, 10, 20, 30, 60, 120, 300},
		}),
		LastSuccess: factory.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "last_success_timestamp_seconds",
			Help:      "Unix time of the last successfully persisted snapshot",
		}),
		RunsInProgress: factory.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "runs_in_progress",
			Help:      "Scrape runs currently executing",
		}),
		LoginOutcomes: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "login_outcomes_total",
			Help:      "Login attempts by outcome",
		}, []string{"outcome"}),
		ExtractionSource: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "extraction_source_total",
			Help:      "Extracted fields by field and the strategy that produced them",
		}, []string{"field", "source"}),
		Warnings: factory.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "run_warnings_total",
			Help:      "Non-fatal problems recorded during runs",
		}),
		StorageErrors: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "storage_errors_total",
			Help:      "Failed storage operations by backend and operation",
		}, []string{"backend", "op"}),
		registry: reg,
		logger:   logger.With("component", "metrics"),
	}
}

// Handler serves the registry in Prometheus exposition format.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}

// RunStarted marks a run as executing and returns a func that records its
// completion with the given trigger and status.
func (m *Metrics) RunStarted(trigger string) func(status string) {
	if m == nil {
		return func(string) {}
	}
	start := time.Now()
	m.RunsInProgress.Inc()
	return func(status string) {
		m.RunsInProgress.Dec()
		m.RunDuration.Observe(time.Since(start).Seconds())
		m.RunsTotal.WithLabelValues(trigger, status).Inc()
		if status == "success" {
			m.LastSuccess.SetToCurrentTime()
		}
	}
}

// ObserveLogin counts a login outcome.
func (m *Metrics) ObserveLogin(outcome string) {
	if m == nil {
		return
	}
	m.LoginOutcomes.WithLabelValues(outcome).Inc()
}

// ObserveExtraction counts which strategy produced field.
func (m *Metrics) ObserveExtraction(field, source string) {
	if m == nil {
		return
	}
	m.ExtractionSource.WithLabelValues(field, source).Inc()
}

// ObserveWarnings adds n run warnings.
func (m *Metrics) ObserveWarnings(n int) {
	if m == nil || n == 0 {
		return
	}
	m.Warnings.Add(float64(n))
}

// ObserveStorageError counts a failed storage operation.
func (m *Metrics) ObserveStorageError(backend, op string) {
	if m == nil {
		return
	}
	m.StorageErrors.WithLabelValues(backend, op).Inc()
	m.logger.Debug("storage error recorded", "backend", backend, "op", op)
}
