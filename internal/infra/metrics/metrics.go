package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const namespace = "inquest"

// Metrics owns the Prometheus registry and every instrument the coordinator
// records. Each instance carries its own registry, so parallel tests and
// embedded uses never collide on global registration.
type Metrics struct {
	reg *prometheus.Registry

	// CallsTotal counts resilient client calls.
	// Labels: endpoint, outcome (success, failure, cached, rejected).
	CallsTotal *prometheus.CounterVec

	// CallLatency measures wall time of non-cached calls, per endpoint.
	CallLatency *prometheus.HistogramVec

	// RetriesTotal counts retry attempts after transient failures.
	RetriesTotal *prometheus.CounterVec

	// BreakerTransitions counts circuit breaker state changes.
	// Labels: breaker (endpoint or agent breaker name), state.
	BreakerTransitions *prometheus.CounterVec

	// CacheEvents counts cache interactions.
	// Labels: event (hit, miss, store, store_error, unavailable, invalidate).
	CacheEvents *prometheus.CounterVec

	// InvestigationsTotal counts finished investigations.
	// Labels: strategy, outcome (done, fallback).
	InvestigationsTotal *prometheus.CounterVec

	// InvestigationDuration measures end-to-end investigation wall time.
	InvestigationDuration prometheus.Histogram

	// AgentOutcomes counts per-agent execution results.
	// Labels: kind, outcome (success, failure, timeout, skipped).
	AgentOutcomes *prometheus.CounterVec

	// PoolIdle tracks idle pooled connections per endpoint, set on sweep.
	PoolIdle *prometheus.GaugeVec
}

// New builds a Metrics with a fresh registry.
func New() *Metrics {
	reg := prometheus.NewRegistry()
	factory := promauto.With(reg)

	return &Metrics{
		reg: reg,
		CallsTotal: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "client",
			Name:      "calls_total",
			Help:      "Total resilient client calls by endpoint and outcome",
		}, []string{"endpoint", "outcome"}),
		CallLatency: factory.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "client",
			Name:      "call_latency_seconds",
			Help:      "Latency of non-cached backend calls",
			Buckets:   []float64{0.01, 0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10, 30, 60, 120},
		}, []string{"endpoint"}),
		RetriesTotal: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "client",
			Name:      "retries_total",
			Help:      "Total retry attempts after transient call failures",
		}, []string{"endpoint"}),
		BreakerTransitions: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "breaker",
			Name:      "transitions_total",
			Help:      "Circuit breaker state transitions",
		}, []string{"breaker", "state"}),
		CacheEvents: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "cache",
			Name:      "events_total",
			Help:      "Response cache events",
		}, []string{"event"}),
		InvestigationsTotal: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "orchestrator",
			Name:      "investigations_total",
			Help:      "Finished investigations by strategy and outcome",
		}, []string{"strategy", "outcome"}),
		InvestigationDuration: factory.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "orchestrator",
			Name:      "investigation_duration_seconds",
			Help:      "End-to-end investigation wall time",
			Buckets:   []float64{0.1, 0.5, 1, 5, 15, 30, 60, 120, 300, 600},
		}),
		AgentOutcomes: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "orchestrator",
			Name:      "agent_outcomes_total",
			Help:      "Per-agent execution outcomes",
		}, []string{"kind", "outcome"}),
		PoolIdle: factory.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "pool",
			Name:      "idle_connections",
			Help:      "Idle pooled connections per endpoint",
		}, []string{"endpoint"}),
	}
}

// Handler serves this registry over HTTP for the gateway's /metrics route.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.reg, promhttp.HandlerOpts{})
}

// Registry exposes the underlying registry for test assertions.
func (m *Metrics) Registry() *prometheus.Registry {
	return m.reg
}
