package models

import (
	"encoding/json"
	"time"

	"github.com/google/uuid"
)

// Ledger entry types.
const (
	LedgerEscrowFund       = "ESCROW_FUND"
	LedgerCommissionTaken  = "COMMISSION_TAKEN"
	LedgerEscrowReleased   = "ESCROW_RELEASED"
	LedgerEscrowRefunded   = "ESCROW_REFUNDED"
	LedgerPayoutRequested  = "PAYOUT_REQUESTED"
	LedgerPayoutApproved   = "PAYOUT_APPROVED"
	LedgerPayoutRejected   = "PAYOUT_REJECTED"
	LedgerManualAdjustment = "MANUAL_ADJUSTMENT"
)

// LedgerEntry is an immutable record of one financial effect. Reference is
// unique across all entries and is the idempotency key for the logical
// operation that produced it: its presence is the source of truth for "this
// effect already happened". Format: <OPERATION>:<escrowID-or-ID>, e.g.
// ESCROW_RELEASE:9f3c..., PAYOUT_APPROVE:1c7a...
type LedgerEntry struct {
	ID          uuid.UUID       `json:"id"`
	Type        string          `json:"type"`
	AmountCents int64           `json:"amount_cents"`
	Currency    string          `json:"currency"`
	FromUserID  *uuid.UUID      `json:"from_user_id,omitempty"`
	ToUserID    *uuid.UUID      `json:"to_user_id,omitempty"`
	EscrowID    *uuid.UUID      `json:"escrow_id,omitempty"`
	Reference   string          `json:"reference"`
	Metadata    json.RawMessage `json:"metadata,omitempty"`
	CreatedAt   time.Time       `json:"created_at"`
}
