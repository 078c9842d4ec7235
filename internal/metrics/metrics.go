// Package metrics exposes Prometheus collectors for the rebalancing engine
// and the HTTP server.
package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Outcome labels
const (
	OutcomePersisted  = "persisted"
	OutcomeSuppressed = "suppressed"
	OutcomeEmpty      = "empty"
	OutcomeApplied    = "applied"
	OutcomeNoop       = "noop"
	OutcomeError      = "error"
	OutcomeOK         = "ok"
)

// Metrics holds every collector of the service
type Metrics struct {
	registry prometheus.Gatherer

	operations      *prometheus.CounterVec
	operationTime   *prometheus.HistogramVec
	actions         *prometheus.CounterVec
	turnover        prometheus.Histogram
	missingPrices   prometheus.Counter
	requestDuration *prometheus.HistogramVec
	requestCount    *prometheus.CounterVec
	jobRuns         *prometheus.CounterVec
}

// New registers all collectors on a fresh registry, together with the Go
// runtime and process collectors
func New(namespace string) *Metrics {
	reg := prometheus.NewRegistry()
	reg.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	return NewWithRegistry(namespace, reg)
}

// NewWithRegistry registers all collectors on reg
func NewWithRegistry(namespace string, reg *prometheus.Registry) *Metrics {
	factory := promauto.With(reg)

	return &Metrics{
		registry: reg,

		operations: factory.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "rebalance_operations_total",
				Help:      "Rebalancing engine operations by outcome",
			},
			[]string{"operation", "outcome"},
		),

		operationTime: factory.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: namespace,
				Name:      "rebalance_operation_duration_seconds",
				Help:      "Duration of rebalancing engine operations",
				Buckets:   []float64{.001, .005, .01, .025, .05, .1, .25, .5, 1, 2.5},
			},
			[]string{"operation"},
		),

		actions: factory.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "rebalance_actions_total",
				Help:      "Generated rebalancing actions by kind",
			},
			[]string{"kind"},
		),

		turnover: factory.NewHistogram(
			prometheus.HistogramOpts{
				Namespace: namespace,
				Name:      "rebalance_turnover_percent",
				Help:      "Turnover of calculated rebalances as a percentage of available funds",
				Buckets:   []float64{0.1, 0.5, 1, 2, 5, 10, 25, 50, 100},
			},
		),

		missingPrices: factory.NewCounter(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "rebalance_missing_prices_total",
				Help:      "Securities skipped during calculation because no price was available",
			},
		),

		requestDuration: factory.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: namespace,
				Name:      "http_request_duration_seconds",
				Help:      "Duration of HTTP requests",
				Buckets:   []float64{.005, .01, .025, .05, .1, .25, .5, 1, 2.5, 5, 10},
			},
			[]string{"route", "method", "status"},
		),

		requestCount: factory.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "http_requests_total",
				Help:      "Total number of HTTP requests",
			},
			[]string{"route", "method", "status"},
		),

		jobRuns: factory.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "job_runs_total",
				Help:      "Scheduled job runs by outcome",
			},
			[]string{"job", "outcome"},
		),
	}
}

// Gatherer returns the registry for the /metrics handler
func (m *Metrics) Gatherer() prometheus.Gatherer {
	return m.registry
}

// ObserveOperation records one engine operation
func (m *Metrics) ObserveOperation(operation, outcome string, started time.Time) {
	if m == nil {
		return
	}
	m.operations.WithLabelValues(operation, outcome).Inc()
	m.operationTime.WithLabelValues(operation).Observe(time.Since(started).Seconds())
}

// ObserveActions counts generated actions of one kind
func (m *Metrics) ObserveActions(kind string, n int) {
	if m == nil || n == 0 {
		return
	}
	m.actions.WithLabelValues(kind).Add(float64(n))
}

// ObserveTurnover records the turnover percentage of a calculation
func (m *Metrics) ObserveTurnover(percent float64) {
	if m == nil {
		return
	}
	m.turnover.Observe(percent)
}

// ObserveMissingPrices counts securities skipped for lack of a price
func (m *Metrics) ObserveMissingPrices(n int) {
	if m == nil || n == 0 {
		return
	}
	m.missingPrices.Add(float64(n))
}

// ObserveRequest records one HTTP request
func (m *Metrics) ObserveRequest(route, method, status string, duration time.Duration) {
	if m == nil {
		return
	}
	m.requestCount.WithLabelValues(route, method, status).Inc()
	m.requestDuration.WithLabelValues(route, method, status).Observe(duration.Seconds())
}

// ObserveJob records one scheduled job run
func (m *Metrics) ObserveJob(job, outcome string) {
	if m == nil {
		return
	}
	m.jobRuns.WithLabelValues(job, outcome).Inc()
}
