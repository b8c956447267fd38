// Package metrics exposes Prometheus counters for the money flow and the
// outbox protocol, served at /metrics by cmd/api.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// EscrowOps counts escrow state machine calls by operation and outcome,
	// e.g. operation="release", outcome="already_released".
	EscrowOps = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "briefmarket_escrow_operations_total",
		Help: "Escrow operations by operation and typed outcome.",
	}, []string{"operation", "outcome"})

	// DisputeOps counts dispute transitions by operation and outcome.
	DisputeOps = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "briefmarket_dispute_operations_total",
		Help: "Dispute operations by operation and typed outcome.",
	}, []string{"operation", "outcome"})

	// PayoutOps counts payout transitions by operation and outcome.
	PayoutOps = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "briefmarket_payout_operations_total",
		Help: "Payout operations by operation and typed outcome.",
	}, []string{"operation", "outcome"})

	// LedgerEntries counts entries actually written, by entry type. Replays
	// that hit an existing reference do not count.
	LedgerEntries = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "briefmarket_ledger_entries_total",
		Help: "Ledger entries written, by entry type.",
	}, []string{"type"})

	// HTTPRetries counts retried outbound requests by operation name.
	HTTPRetries = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "briefmarket_http_retries_total",
		Help: "Outbound HTTP attempts that were retried, by operation.",
	}, []string{"operation"})

	// OutboxPulled counts events handed to consumers via /outbox/pull.
	OutboxPulled = promauto.NewCounter(prometheus.CounterOpts{
		Name: "briefmarket_outbox_events_pulled_total",
		Help: "Outbox events returned by pull requests.",
	})

	// OutboxAcked counts ids received via /outbox/ack.
	OutboxAcked = promauto.NewCounter(prometheus.CounterOpts{
		Name: "briefmarket_outbox_events_acked_total",
		Help: "Outbox event ids acknowledged by consumers.",
	})
)
