// Package metrics holds the prometheus instruments of the pipeline.
package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

const namespace = "voxmeter"

// Metrics is safe to use as a nil pointer; every method is then a no-op.
type Metrics struct {
	operations        *prometheus.CounterVec
	operationDuration *prometheus.HistogramVec
	providerCalls     *prometheus.CounterVec
	providerLatency   *prometheus.HistogramVec
	billedCost        *prometheus.CounterVec
	ledgerWrites      *prometheus.CounterVec
	queueJobs         *prometheus.CounterVec
}

// New registers the instruments with registerer.
func New(registerer prometheus.Registerer) *Metrics {
	if registerer == nil {
		registerer = prometheus.DefaultRegisterer
	}

	m := &Metrics{
		operations: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "operations_total",
			Help:      "Pipeline operations by type and outcome.",
		}, []string{"operation", "outcome"}),
		operationDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "operation_duration_seconds",
			Help:      "Wall time of pipeline operations.",
			Buckets:   []float64{0.5, 1, 2.5, 5, 10, 30, 60, 120, 300, 600},
		}, []string{"operation"}),
		providerCalls: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "provider_calls_total",
			Help:      "Provider adapter invocations by outcome.",
		}, []string{"provider", "capability", "outcome"}),
		providerLatency: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "provider_call_duration_seconds",
			Help:      "Latency of provider adapter invocations.",
			Buckets:   prometheus.DefBuckets,
		}, []string{"provider", "capability"}),
		billedCost: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "billed_cost_total",
			Help:      "Cost written to the usage ledger.",
		}, []string{"service", "provider", "currency"}),
		ledgerWrites: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "ledger_writes_total",
			Help:      "Usage ledger writes by result (inserted, duplicate).",
		}, []string{"result"}),
		queueJobs: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "queue_jobs_total",
			Help:      "Queued jobs by operation and result (succeeded, retried, dead_lettered).",
		}, []string{"operation", "result"}),
	}

	registerer.MustRegister(
		m.operations,
		m.operationDuration,
		m.providerCalls,
		m.providerLatency,
		m.billedCost,
		m.ledgerWrites,
		m.queueJobs,
	)
	return m
}

func outcome(err error) string {
	if err != nil {
		return "failure"
	}
	return "success"
}

// ObserveOperation records one finished pipeline operation.
func (m *Metrics) ObserveOperation(operation string, started time.Time, err error) {
	if m == nil {
		return
	}
	m.operations.WithLabelValues(operation, outcome(err)).Inc()
	m.operationDuration.WithLabelValues(operation).Observe(time.Since(started).Seconds())
}

// ObserveProviderCall records one provider invocation.
func (m *Metrics) ObserveProviderCall(providerName, capability string, started time.Time, err error) {
	if m == nil {
		return
	}
	m.providerCalls.WithLabelValues(providerName, capability, outcome(err)).Inc()
	m.providerLatency.WithLabelValues(providerName, capability).Observe(time.Since(started).Seconds())
}

// AddBilledCost records cost written to the ledger.
func (m *Metrics) AddBilledCost(service, providerName, currency string, cost float64, duplicate bool) {
	if m == nil {
		return
	}
	if duplicate {
		m.ledgerWrites.WithLabelValues("duplicate").Inc()
		return
	}
	m.ledgerWrites.WithLabelValues("inserted").Inc()
	if cost > 0 {
		m.billedCost.WithLabelValues(service, providerName, currency).Add(cost)
	}
}

// ObserveQueueJob records the result of one queued job.
func (m *Metrics) ObserveQueueJob(operation, result string) {
	if m == nil {
		return
	}
	m.queueJobs.WithLabelValues(operation, result).Inc()
}
