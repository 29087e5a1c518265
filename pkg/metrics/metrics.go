// Package metrics holds the Prometheus collectors exported by each binary.
// Every recorder accepts a nil receiver, so a process started without a
// registerer records nothing.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
)

const namespace = "fundledger"

func counterVec(subsystem, name, help string, labels ...string) *prometheus.CounterVec {
	return prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Subsystem: subsystem,
		Name:      name,
		Help:      help,
	}, labels)
}

func normalizeLabel(value string) string {
	if value == "" {
		return "unknown"
	}
	return value
}
