// Package metrics exposes Prometheus instrumentation for the redaction service.
package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const namespace = "pdf_redactor"

// Metrics holds every collector used by the service. Each instance owns its
// registry so several can coexist in one process.
type Metrics struct {
	registry *prometheus.Registry

	Requests      *prometheus.CounterVec
	StageDuration *prometheus.HistogramVec
	ToolDuration  *prometheus.HistogramVec
	ToolFailures  *prometheus.CounterVec
	Warnings      *prometheus.CounterVec
	Fallbacks     prometheus.Counter
	PagesRedacted *prometheus.CounterVec
	InFlight      prometheus.Gauge
}

// New creates and registers the collectors
func New() *Metrics {
	m := &Metrics{
		registry: prometheus.NewRegistry(),
		Requests: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "requests_total",
			Help:      "Redaction requests by outcome (error kind or ok) and strategy.",
		}, []string{"strategy", "outcome"}),
		StageDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "stage_duration_seconds",
			Help:      "Duration of pipeline stages.",
			Buckets:   prometheus.ExponentialBuckets(0.005, 2, 14),
		}, []string{"stage"}),
		ToolDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "tool_duration_seconds",
			Help:      "Duration of external tool invocations.",
			Buckets:   prometheus.ExponentialBuckets(0.01, 2, 14),
		}, []string{"tool"}),
		ToolFailures: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "tool_failures_total",
			Help:      "Failed external tool invocations.",
		}, []string{"tool"}),
		Warnings: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "warnings_total",
			Help:      "Non-fatal warnings reported to callers.",
		}, []string{"kind"}),
		Fallbacks: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "strategy_fallbacks_total",
			Help:      "Requests re-run with the rasterizing strategy.",
		}),
		PagesRedacted: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "pages_redacted_total",
			Help:      "Pages modified, by strategy.",
		}, []string{"strategy"}),
		InFlight: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "requests_in_flight",
			Help:      "Redaction requests currently being processed.",
		}),
	}

	m.registry.MustRegister(
		m.Requests,
		m.StageDuration,
		m.ToolDuration,
		m.ToolFailures,
		m.Warnings,
		m.Fallbacks,
		m.PagesRedacted,
		m.InFlight,
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	return m
}

// Registry returns the registry the collectors are registered with
func (m *Metrics) Registry() *prometheus.Registry {
	return m.registry
}

// Handler serves the exposition format
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}

// ObserveStage records the duration of a pipeline stage
func (m *Metrics) ObserveStage(stage string, elapsed time.Duration) {
	if m == nil {
		return
	}
	m.StageDuration.WithLabelValues(stage).Observe(elapsed.Seconds())
}

// ObserveTool records an external tool invocation. Its signature matches
// toolchain.Observer.
func (m *Metrics) ObserveTool(tool string, elapsed time.Duration, err error) {
	if m == nil {
		return
	}
	m.ToolDuration.WithLabelValues(tool).Observe(elapsed.Seconds())
	if err != nil {
		m.ToolFailures.WithLabelValues(tool).Inc()
	}
}

// ObserveRequest counts a finished request
func (m *Metrics) ObserveRequest(strategy, outcome string) {
	if m == nil {
		return
	}
	m.Requests.WithLabelValues(strategy, outcome).Inc()
}

// ObserveWarning counts a warning of the given kind
func (m *Metrics) ObserveWarning(kind string) {
	if m == nil {
		return
	}
	m.Warnings.WithLabelValues(kind).Inc()
}

// ObserveFallback counts a strategy fallback
func (m *Metrics) ObserveFallback() {
	if m == nil {
		return
	}
	m.Fallbacks.Inc()
}

// ObservePages counts redacted pages
func (m *Metrics) ObservePages(strategy string, pages int) {
	if m == nil || pages <= 0 {
		return
	}
	m.PagesRedacted.WithLabelValues(strategy).Add(float64(pages))
}

// TrackInFlight increments the in-flight gauge and returns its decrement
func (m *Metrics) TrackInFlight() func() {
	if m == nil {
		return func() {}
	}
	m.InFlight.Inc()
	return m.InFlight.Dec
}
