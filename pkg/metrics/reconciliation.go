package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
)

const reconciliationSubsystem = "reconciliation"

// ReconciliationMetrics tracks webhook application and aggregate recomputation.
// A nil receiver is a no-op so callers never need to guard.
type ReconciliationMetrics struct {
	applyResults         *prometheus.CounterVec
	verificationFailures *prometheus.CounterVec
	transitions          *prometheus.CounterVec
	invariantViolations  *prometheus.CounterVec
	recomputeConflicts   prometheus.Counter
	deferredReplayed     *prometheus.CounterVec
}

func NewReconciliationMetrics(reg prometheus.Registerer) *ReconciliationMetrics {
	if reg == nil {
		return nil
	}
	m := &ReconciliationMetrics{
		applyResults:         counterVec(reconciliationSubsystem, "apply_results_total", "Payment events processed by the applier, by provider and result.", "provider", "result"),
		verificationFailures: counterVec(reconciliationSubsystem, "verification_failures_total", "Webhook deliveries rejected by signature verification.", "provider"),
		transitions:          counterVec(reconciliationSubsystem, "threshold_transitions_total", "Funding target lifecycle transitions.", "to_status"),
		invariantViolations:  counterVec(reconciliationSubsystem, "invariant_violations_total", "Invariant violations detected while applying or recomputing.", "kind"),
		recomputeConflicts: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: reconciliationSubsystem,
			Name:      "recompute_version_conflicts_total",
			Help:      "Aggregate writes retried after an optimistic version conflict.",
		}),
		deferredReplayed: counterVec(reconciliationSubsystem, "deferred_replays_total", "Deferred events replayed, by outcome.", "outcome"),
	}
	reg.MustRegister(
		m.applyResults,
		m.verificationFailures,
		m.transitions,
		m.invariantViolations,
		m.recomputeConflicts,
		m.deferredReplayed,
	)
	return m
}

func (m *ReconciliationMetrics) IncApplyResult(provider, result string) {
	if m == nil {
		return
	}
	m.applyResults.WithLabelValues(normalizeLabel(provider), normalizeLabel(result)).Inc()
}

func (m *ReconciliationMetrics) IncVerificationFailure(provider string) {
	if m == nil {
		return
	}
	m.verificationFailures.WithLabelValues(normalizeLabel(provider)).Inc()
}

func (m *ReconciliationMetrics) IncTransition(toStatus string) {
	if m == nil {
		return
	}
	m.transitions.WithLabelValues(normalizeLabel(toStatus)).Inc()
}

func (m *ReconciliationMetrics) IncInvariantViolation(kind string) {
	if m == nil {
		return
	}
	m.invariantViolations.WithLabelValues(normalizeLabel(kind)).Inc()
}

func (m *ReconciliationMetrics) IncRecomputeConflict() {
	if m == nil {
		return
	}
	m.recomputeConflicts.Inc()
}

func (m *ReconciliationMetrics) IncDeferredReplay(outcome string) {
	if m == nil {
		return
	}
	m.deferredReplayed.WithLabelValues(normalizeLabel(outcome)).Inc()
}
