package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// LedgerMetrics records instrumentation for mutation engine operations.
type LedgerMetrics struct {
	operations *prometheus.CounterVec
	duration   *prometheus.HistogramVec
	retries    *prometheus.CounterVec
}

// NewLedgerMetrics registers the ledger metrics on the provided registerer.
func NewLedgerMetrics(reg prometheus.Registerer) *LedgerMetrics {
	if reg == nil {
		return &LedgerMetrics{}
	}
	operations := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "ledger_operations_total",
		Help: "Ledger mutation operations by outcome.",
	}, []string{"operation", "outcome"})
	duration := prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "ledger_operation_duration_seconds",
		Help:    "Duration of ledger mutation operations in seconds.",
		Buckets: prometheus.DefBuckets,
	}, []string{"operation"})
	retries := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "ledger_operation_retries_total",
		Help: "Optimistic concurrency retries per operation.",
	}, []string{"operation"})
	reg.MustRegister(operations, duration, retries)
	return &LedgerMetrics{
		operations: operations,
		duration:   duration,
		retries:    retries,
	}
}

// ObserveOperation records one completed operation with its outcome and duration.
func (l *LedgerMetrics) ObserveOperation(operation, outcome string, elapsed time.Duration) {
	if l == nil || l.operations == nil {
		return
	}
	op := normalizeLabel(operation)
	l.operations.WithLabelValues(op, normalizeLabel(outcome)).Inc()
	l.duration.WithLabelValues(op).Observe(elapsed.Seconds())
}

// IncRetry increments the retry counter for the named operation.
func (l *LedgerMetrics) IncRetry(operation string) {
	if l == nil || l.retries == nil {
		return
	}
	l.retries.WithLabelValues(normalizeLabel(operation)).Inc()
}

func normalizeLabel(value string) string {
	if value == "" {
		return "unknown"
	}
	return value
}
