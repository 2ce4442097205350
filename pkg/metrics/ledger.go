package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"

	pkgerrors "github.com/GregHandsley/pokeflip-sub002/pkg/errors"
)

// Outcome labels.
const (
	OutcomeOK       = "ok"
	OutcomeRejected = "rejected"
	OutcomeError    = "error"
)

// Ledger operation labels.
const (
	OpSale         = "sale"
	OpBundleChange = "bundle_change"
	OpSplit        = "split"
	OpMerge        = "merge"
	OpBundleSell   = "bundle_sell"
)

// LedgerMetrics counts quantity-ledger mutations and the rejections the
// validators produce.
type LedgerMetrics struct {
	mutations  *prometheus.CounterVec
	rejections *prometheus.CounterVec
	duration   *prometheus.HistogramVec
}

func NewLedgerMetrics(reg prometheus.Registerer) *LedgerMetrics {
	if reg == nil {
		return &LedgerMetrics{}
	}
	mutations := prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "ledger_mutations_total",
		Help:      "Ledger mutations by operation and outcome.",
	}, []string{"operation", "outcome"})
	rejections := prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "ledger_rejections_total",
		Help:      "Mutations rejected for insufficient available quantity.",
	}, []string{"operation"})
	duration := prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: namespace,
		Name:      "ledger_operation_duration_seconds",
		Help:      "Latency of ledger operations including lock acquisition.",
		Buckets:   prometheus.DefBuckets,
	}, []string{"operation"})
	reg.MustRegister(mutations, rejections, duration)
	return &LedgerMetrics{mutations: mutations, rejections: rejections, duration: duration}
}

// Observe records one finished operation. outcome is "ok", "rejected" or "error".
func (m *LedgerMetrics) Observe(operation, outcome string, elapsed time.Duration) {
	if m == nil || m.mutations == nil {
		return
	}
	op := normalizeLabel(operation)
	m.mutations.WithLabelValues(op, normalizeLabel(outcome)).Inc()
	m.duration.WithLabelValues(op).Observe(elapsed.Seconds())
	if outcome == OutcomeRejected {
		m.rejections.WithLabelValues(op).Inc()
	}
}

// ObserveResult classifies err and records the operation started at start.
func (m *LedgerMetrics) ObserveResult(operation string, start time.Time, err error) {
	m.Observe(operation, Outcome(err), time.Since(start))
}

// Outcome maps an operation error to its outcome label.
func Outcome(err error) string {
	switch {
	case err == nil:
		return OutcomeOK
	case pkgerrors.IsCode(err, pkgerrors.CodeInsufficientQuantity):
		return OutcomeRejected
	default:
		return OutcomeError
	}
}
