package metrics

import "github.com/prometheus/client_golang/prometheus"

// Publish outcomes.
const (
	PublishOK         = "published"
	PublishRetry      = "retry"
	PublishDeadLetter = "dead_letter"
	PublishHeld       = "held"
)

// OutboxMetrics counts outbox publish attempts by event type and outcome.
type OutboxMetrics struct {
	attempts *prometheus.CounterVec
}

func NewOutboxMetrics(reg prometheus.Registerer) *OutboxMetrics {
	if reg == nil {
		return &OutboxMetrics{}
	}
	attempts := prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "outbox_publish_total",
		Help:      "Outbox publish attempts by event type and outcome.",
	}, []string{"event_type", "outcome"})
	reg.MustRegister(attempts)
	return &OutboxMetrics{attempts: attempts}
}

func (m *OutboxMetrics) Inc(eventType, outcome string) {
	if m == nil || m.attempts == nil {
		return
	}
	m.attempts.WithLabelValues(normalizeLabel(eventType), outcome).Inc()
}
