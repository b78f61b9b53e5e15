package flow

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// Metrics wraps the Prometheus counters/histograms an Interpreter updates
// as it runs (§4.10).
type Metrics struct {
	NodesExecuted     *prometheus.CounterVec
	SuspensionsIssued prometheus.Counter
	SuspensionsResumed prometheus.Counter
	Retries           *prometheus.CounterVec
	CircuitTrips      *prometheus.CounterVec
	Duration          *prometheus.HistogramVec
	WorkerAvailable   prometheus.Gauge
}

// NewMetrics registers and returns a Metrics set against reg. Pass
// prometheus.NewRegistry() in tests to avoid polluting the default
// registry; pass prometheus.DefaultRegisterer in production.
func NewMetrics(reg prometheus.Registerer) *Metrics {
	m := &Metrics{
		NodesExecuted: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "flowengine",
			Name:      "nodes_executed_total",
			Help:      "Number of IR nodes dispatched, by kind and outcome.",
		}, []string{"kind", "outcome"}),
		SuspensionsIssued: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "flowengine",
			Name:      "suspensions_issued_total",
			Help:      "Number of suspension records created.",
		}),
		SuspensionsResumed: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "flowengine",
			Name:      "suspensions_resumed_total",
			Help:      "Number of suspension records consumed by ResumeExecution.",
		}),
		Retries: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "flowengine",
			Name:      "retries_total",
			Help:      "Number of retry attempts, by node id.",
		}, []string{"node"}),
		CircuitTrips: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "flowengine",
			Name:      "circuit_trips_total",
			Help:      "Number of times a circuit breaker opened, by node id.",
		}, []string{"node"}),
		Duration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: "flowengine",
			Name:      "node_duration_seconds",
			Help:      "Node dispatch duration in seconds, by kind.",
			Buckets:   prometheus.DefBuckets,
		}, []string{"kind"}),
		WorkerAvailable: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: "flowengine",
			Name:      "worker_pool_available",
			Help:      "Number of idle worker pool slots.",
		}),
	}

	reg.MustRegister(
		m.NodesExecuted, m.SuspensionsIssued, m.SuspensionsResumed,
		m.Retries, m.CircuitTrips, m.Duration, m.WorkerAvailable,
	)
	return m
}

// The observe* helpers are nil-receiver safe so the interpreter can call
// them unconditionally whether or not Options.Metrics was configured.

func (m *Metrics) observeNode(kind, outcome string, d time.Duration) {
	if m == nil {
		return
	}
	m.NodesExecuted.WithLabelValues(kind, outcome).Inc()
	m.Duration.WithLabelValues(kind).Observe(d.Seconds())
}

func (m *Metrics) observeSuspensionIssued() {
	if m == nil {
		return
	}
	m.SuspensionsIssued.Inc()
}

func (m *Metrics) observeSuspensionResumed() {
	if m == nil {
		return
	}
	m.SuspensionsResumed.Inc()
}

func (m *Metrics) observeRetry(nodeID string) {
	if m == nil {
		return
	}
	m.Retries.WithLabelValues(nodeID).Inc()
}

func (m *Metrics) observeCircuitTrip(nodeID string) {
	if m == nil {
		return
	}
	m.CircuitTrips.WithLabelValues(nodeID).Inc()
}

func (m *Metrics) observeWorkerAvailable(n int) {
	if m == nil {
		return
	}
	m.WorkerAvailable.Set(float64(n))
}
