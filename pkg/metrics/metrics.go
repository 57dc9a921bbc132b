// Package metrics exposes ledger activity as Prometheus metrics.
package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const namespace = "ticle"

// Recorder owns a private registry so several instances can live in one process.
type Recorder struct {
	registry *prometheus.Registry

	operations  *prometheus.CounterVec
	settlements *prometheus.CounterVec
	transfers   *prometheus.CounterVec
	diverged    *prometheus.CounterVec
	inFlight    prometheus.Gauge
}

// New creates a Recorder with Go runtime and process collectors registered
func New() *Recorder {
	r := &Recorder{
		registry: prometheus.NewRegistry(),
		operations: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "operations_total",
			Help:      "Accepted ledger operations by name.",
		}, []string{"operation"}),
		settlements: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "pool_settlements_total",
			Help:      "Per-pool settlement results.",
		}, []string{"result"}),
		transfers: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "transfers_total",
			Help:      "External transfers by kind and outcome.",
		}, []string{"kind", "outcome"}),
		diverged: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "ledger_divergences_total",
			Help:      "Failed transfers the ledger could not compensate.",
		}, []string{"kind"}),
		inFlight: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "transfers_in_flight",
			Help:      "External transfers waiting for an outcome.",
		}),
	}

	r.registry.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
		r.operations,
		r.settlements,
		r.transfers,
		r.diverged,
		r.inFlight,
	)
	return r
}

// Handler serves the registry in the Prometheus exposition format
func (r *Recorder) Handler() http.Handler {
	return promhttp.HandlerFor(r.registry, promhttp.HandlerOpts{Registry: r.registry})
}

// Registry exposes the underlying registry, mostly for tests
func (r *Recorder) Registry() *prometheus.Registry {
	return r.registry
}

// Operation counts an accepted operation
func (r *Recorder) Operation(name string) {
	r.operations.WithLabelValues(name).Inc()
}

// PoolSettled counts one pool of a settlement batch
func (r *Recorder) PoolSettled(ok bool) {
	result := "applied"
	if !ok {
		result = "failed"
	}
	r.settlements.WithLabelValues(result).Inc()
}

// TransferIssued counts a transfer waiting for its outcome
func (r *Recorder) TransferIssued(kind string) {
	r.transfers.WithLabelValues(kind, "issued").Inc()
	r.inFlight.Inc()
}

// TransferResolved counts a transfer outcome
func (r *Recorder) TransferResolved(kind string, succeeded bool) {
	outcome := "succeeded"
	if !succeeded {
		outcome = "failed"
	}
	r.transfers.WithLabelValues(kind, outcome).Inc()
	r.inFlight.Dec()
}

// Diverged counts a failure the ledger could not compensate
func (r *Recorder) Diverged(kind string) {
	r.diverged.WithLabelValues(kind).Inc()
}

// SetInFlight overrides the in-flight gauge, e.g. after loading pending transfers at startup
func (r *Recorder) SetInFlight(n int) {
	r.inFlight.Set(float64(n))
}
