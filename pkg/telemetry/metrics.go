package telemetry

import (
	"fmt"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics collects engine counters on a private registry. A nil receiver or
// a disabled instance is a no-op, so callers never have to guard.
type Metrics struct {
	enabled bool

	connectsAttempted *prometheus.CounterVec
	opsExecuted       *prometheus.CounterVec
	opDuration        prometheus.Histogram

	registry *prometheus.Registry
}

// NewMetrics creates a metrics collector. When enabled is false all record
// methods are no-ops.
func NewMetrics(enabled bool) *Metrics {
	if !enabled {
		return &Metrics{}
	}

	registry := prometheus.NewRegistry()

	m := &Metrics{
		enabled:  true,
		registry: registry,

		connectsAttempted: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: "opsline",
				Name:      "connects_total",
				Help:      "Total connection attempts by outcome",
			},
			[]string{"outcome"},
		),
		opsExecuted: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: "opsline",
				Name:      "ops_executed_total",
				Help:      "Total host operations executed by status",
			},
			[]string{"status"},
		),
		opDuration: prometheus.NewHistogram(
			prometheus.HistogramOpts{
				Namespace: "opsline",
				Name:      "op_duration_seconds",
				Help:      "Duration of host operation execution in seconds",
				Buckets:   prometheus.DefBuckets,
			},
		),
	}

	registry.MustRegister(m.connectsAttempted, m.opsExecuted, m.opDuration)
	return m
}

// ConnectAttempted records one connection attempt.
func (m *Metrics) ConnectAttempted(ok bool) {
	if m == nil || !m.enabled {
		return
	}
	outcome := "failed"
	if ok {
		outcome = "succeeded"
	}
	m.connectsAttempted.WithLabelValues(outcome).Inc()
}

// OpExecuted records one host operation result.
func (m *Metrics) OpExecuted(status string, duration time.Duration) {
	if m == nil || !m.enabled {
		return
	}
	m.opsExecuted.WithLabelValues(status).Inc()
	m.opDuration.Observe(duration.Seconds())
}

// Handler returns an HTTP handler exposing the registry.
func (m *Metrics) Handler() http.Handler {
	if m == nil || !m.enabled {
		return http.NotFoundHandler()
	}
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}

// Serve exposes /metrics on the given address. Blocks until the listener
// fails.
func (m *Metrics) Serve(addr string) error {
	if m == nil || !m.enabled {
		return fmt.Errorf("metrics disabled")
	}
	mux := http.NewServeMux()
	mux.Handle("/metrics", m.Handler())
	return http.ListenAndServe(addr, mux)
}
