// Package observability carries the runtime's prometheus collectors and the
// HTTP middleware stack shared by every worker.
//
// Collectors register against an explicit *prometheus.Registry rather than
// the global one, so inline workers can share the supervisor's registry and
// tests can own an isolated one.
package observability

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/passbooklabs/passbook/pkg/domain"
)

// NewRegistry returns a registry pre-loaded with the standard process and Go
// runtime collectors.
func NewRegistry() *prometheus.Registry {
	reg := prometheus.NewRegistry()
	reg.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	return reg
}

// Handler serves the registry in the prometheus text format.
func Handler(reg *prometheus.Registry) http.Handler {
	return promhttp.HandlerFor(reg, promhttp.HandlerOpts{})
}

// HTTPMetrics are the per-worker request collectors.
type HTTPMetrics struct {
	Requests  *prometheus.CounterVec
	Duration  *prometheus.HistogramVec
	InFlight  prometheus.Gauge
	Saturated prometheus.Counter
}

// NewHTTPMetrics registers the request collectors on reg.
func NewHTTPMetrics(reg *prometheus.Registry) *HTTPMetrics {
	m := &HTTPMetrics{
		Requests: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "passbook_http_requests_total",
				Help: "HTTP requests handled, by method, route, and status.",
			},
			[]string{"method", "route", "status"},
		),
		Duration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "passbook_http_request_duration_seconds",
				Help:    "HTTP request latency, by method and route.",
				Buckets: prometheus.DefBuckets,
			},
			[]string{"method", "route"},
		),
		InFlight: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "passbook_http_requests_in_flight",
			Help: "Requests currently admitted by the dispatcher.",
		}),
		Saturated: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "passbook_dispatcher_rejections_total",
			Help: "Requests rejected because the dispatcher was saturated.",
		}),
	}
	reg.MustRegister(m.Requests, m.Duration, m.InFlight, m.Saturated)
	return m
}

// PoolMetrics are the supervisor-side collectors for the worker pool.
type PoolMetrics struct {
	States   *prometheus.GaugeVec
	Restarts prometheus.Counter
}

// NewPoolMetrics registers the pool collectors on reg.
func NewPoolMetrics(reg *prometheus.Registry) *PoolMetrics {
	m := &PoolMetrics{
		States: prometheus.NewGaugeVec(
			prometheus.GaugeOpts{
				Name: "passbook_workers",
				Help: "Workers per lifecycle state.",
			},
			[]string{"state"},
		),
		Restarts: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "passbook_worker_restarts_total",
			Help: "Worker restarts performed by the supervisor.",
		}),
	}
	reg.MustRegister(m.States, m.Restarts)
	return m
}

// SetStates replaces the worker-state gauge with a fresh pool snapshot.
// Every known state is written, including zeros, so scrapes never carry a
// stale count for a state the pool has left.
func (m *PoolMetrics) SetStates(statuses []domain.WorkerStatus) {
	counts := map[domain.WorkerState]int{
		domain.StateStarting:   0,
		domain.StateServing:    0,
		domain.StateDraining:   0,
		domain.StateCrashed:    0,
		domain.StateRestarting: 0,
		domain.StateTerminated: 0,
	}
	for _, st := range statuses {
		counts[st.State]++
	}
	for state, n := range counts {
		m.States.WithLabelValues(string(state)).Set(float64(n))
	}
}
