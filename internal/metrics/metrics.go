// Package metrics defines the Prometheus instrumentation for the
// orchestration core.
package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics bundles the collectors the orchestrator updates per turn.
type Metrics struct {
	registry *prometheus.Registry

	NodeVisits        *prometheus.CounterVec
	NodeDuration      *prometheus.HistogramVec
	NodeFailures      *prometheus.CounterVec
	BreakerTrips      prometheus.Counter
	CacheDegradations prometheus.Counter
	TurnSteps         prometheus.Histogram
}

// New creates and registers the collectors on a private registry, so
// tests and embedded engines never collide on the global one.
func New() *Metrics {
	m := &Metrics{
		registry: prometheus.NewRegistry(),
		NodeVisits: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "parley_node_visits_total",
				Help: "Node executions by node name.",
			},
			[]string{"node"},
		),
		NodeDuration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "parley_node_duration_seconds",
				Help:    "Node execution latency by node name.",
				Buckets: prometheus.DefBuckets,
			},
			[]string{"node"},
		),
		NodeFailures: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "parley_node_failures_total",
				Help: "Node failures by node name and error kind.",
			},
			[]string{"node", "kind"},
		),
		BreakerTrips: prometheus.NewCounter(
			prometheus.CounterOpts{
				Name: "parley_breaker_trips_total",
				Help: "Circuit breaker forced progressions and loop aborts.",
			},
		),
		CacheDegradations: prometheus.NewCounter(
			prometheus.CounterOpts{
				Name: "parley_cache_degradations_total",
				Help: "Sessions degraded from the distributed cache to memory.",
			},
		),
		TurnSteps: prometheus.NewHistogram(
			prometheus.HistogramOpts{
				Name:    "parley_turn_steps",
				Help:    "Orchestration steps consumed per turn.",
				Buckets: []float64{1, 2, 3, 5, 8, 13, 21, 34, 55, 100},
			},
		),
	}

	m.registry.MustRegister(
		m.NodeVisits,
		m.NodeDuration,
		m.NodeFailures,
		m.BreakerTrips,
		m.CacheDegradations,
		m.TurnSteps,
	)
	return m
}

// Handler exposes the registry for scraping.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}
