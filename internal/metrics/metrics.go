// Package metrics holds the Prometheus collectors exported by relayd.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// ExecOutcomes counts sandbox executions by outcome (success, soft_revert).
	// Hard reverts never commit and are counted by HardReverts.
	ExecOutcomes = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "nova_sandbox_exec_total",
			Help: "Committed sandbox executions by outcome",
		},
		[]string{"outcome"},
	)

	HardReverts = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "nova_sandbox_hard_reverts_total",
			Help: "Exec attempts aborted by a hard revert",
		},
	)

	// Settlements counts ledger settlements by the reported reverted flag.
	Settlements = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "nova_ledger_settlements_total",
			Help: "Requests settled through execCompleted",
		},
		[]string{"reverted"},
	)

	Requests = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "nova_ledger_requests_total",
			Help: "Requests created, including speed-up resubmissions",
		},
	)

	MessagesRelayed = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "nova_messenger_relayed_total",
			Help: "Cross-domain messages delivered to their target",
		},
	)

	MessagesDeadLettered = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "nova_messenger_dead_lettered_total",
			Help: "Cross-domain messages moved to the dead-letter queue",
		},
	)
)
