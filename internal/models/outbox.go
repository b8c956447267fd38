package models

import (
	"encoding/json"
	"time"
)

// Outbox event types emitted by the escrow/dispute/payout services.
const (
	EventEscrowFunded    = "escrow.funded"
	EventEscrowReleased  = "escrow.released"
	EventEscrowRefunded  = "escrow.refunded"
	EventDisputeOpened   = "dispute.opened"
	EventDisputeResolved = "dispute.resolved"
	EventDisputeCanceled = "dispute.canceled"
	EventPayoutRequested = "payout.requested"
	EventPayoutApproved  = "payout.approved"
	EventPayoutRejected  = "payout.rejected"
)

// OutboxEvent is an append-only row written in the same transaction as the
// domain mutation it reports on. Rows are never deleted; ProcessedAt is
// server-side bookkeeping only, not a per-consumer offset. Ordering key for
// consumers is (CreatedAt, ID).
type OutboxEvent struct {
	ID          int64           `json:"id,string"`
	Type        string          `json:"type"`
	Payload     json.RawMessage `json:"payload"`
	CreatedAt   time.Time       `json:"created_at"`
	ProcessedAt *time.Time      `json:"processed_at,omitempty"`
}
