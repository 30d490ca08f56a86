package observability

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics holds all Prometheus metrics for the service.
type Metrics struct {
	registry *prometheus.Registry

	// Activity metrics
	EventsTotal     *prometheus.CounterVec
	AdmissionsTotal *prometheus.CounterVec
	EventDuration   prometheus.Histogram

	// Store metrics
	StoreMode        prometheus.Gauge
	StoreWritesTotal *prometheus.CounterVec

	// Cleanup metrics
	CleanupRunsTotal *prometheus.CounterVec
}

// NewMetrics creates and registers all metrics on the given registry.
// A nil registry gets a fresh one with the standard Go collectors.
func NewMetrics(registry *prometheus.Registry) *Metrics {
	if registry == nil {
		registry = prometheus.NewRegistry()
		registry.MustRegister(
			collectors.NewGoCollector(),
			collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
		)
	}

	m := &Metrics{
		registry: registry,
		EventsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "pulse_events_total",
				Help: "Total number of activity events processed",
			},
			[]string{"action", "scope"},
		),
		AdmissionsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "pulse_admissions_total",
				Help: "Total number of admission decisions",
			},
			[]string{"decision"},
		),
		EventDuration: prometheus.NewHistogram(
			prometheus.HistogramOpts{
				Name:    "pulse_event_duration_seconds",
				Help:    "Handler execution duration in seconds",
				Buckets: prometheus.DefBuckets,
			},
		),
		StoreMode: prometheus.NewGauge(
			prometheus.GaugeOpts{
				Name: "pulse_store_durable",
				Help: "1 when the metrics store targets the durable backend, 0 when degraded",
			},
		),
		StoreWritesTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "pulse_store_writes_total",
				Help: "Total number of metrics store writes",
			},
			[]string{"mode", "status"},
		),
		CleanupRunsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "pulse_cleanup_runs_total",
				Help: "Total number of retention cleanup sweeps",
			},
			[]string{"status"},
		),
	}

	registry.MustRegister(
		m.EventsTotal,
		m.AdmissionsTotal,
		m.EventDuration,
		m.StoreMode,
		m.StoreWritesTotal,
		m.CleanupRunsTotal,
	)

	return m
}

// Handler returns the HTTP handler serving the registry in Prometheus
// exposition format.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}
