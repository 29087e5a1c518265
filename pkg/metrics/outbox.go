package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
)

const outboxSubsystem = "outbox"

// OutboxMetrics counts ledger events leaving the outbox. Nil receivers no-op.
type OutboxMetrics struct {
	deliveries  *prometheus.CounterVec
	deadLetters *prometheus.CounterVec
}

func NewOutboxMetrics(reg prometheus.Registerer) *OutboxMetrics {
	if reg == nil {
		return nil
	}
	m := &OutboxMetrics{
		deliveries:  counterVec(outboxSubsystem, "deliveries_total", "Outbox rows handled by the publisher, by topic and outcome.", "topic", "outcome"),
		deadLetters: counterVec(outboxSubsystem, "dead_letters_total", "Outbox rows moved to the DLQ, by reason.", "reason"),
	}
	reg.MustRegister(m.deliveries, m.deadLetters)
	return m
}

func (m *OutboxMetrics) IncDelivery(topic, outcome string) {
	if m == nil {
		return
	}
	m.deliveries.WithLabelValues(normalizeLabel(topic), normalizeLabel(outcome)).Inc()
}

func (m *OutboxMetrics) IncDeadLetter(reason string) {
	if m == nil {
		return
	}
	m.deadLetters.WithLabelValues(normalizeLabel(reason)).Inc()
}
