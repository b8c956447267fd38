package models

import (
	"time"

	"github.com/google/uuid"
)

// Payout status values. REQUESTED -> {APPROVED | REJECTED}.
const (
	PayoutStatusRequested = "REQUESTED"
	PayoutStatusApproved  = "APPROVED"
	PayoutStatusRejected  = "REJECTED"
)

// Payout is a creator's withdrawal request. Internal bookkeeping only; no
// external payment rail is modeled.
type Payout struct {
	ID          uuid.UUID  `json:"id"`
	UserID      uuid.UUID  `json:"user_id"`
	AmountCents int64      `json:"amount_cents"`
	Currency    string     `json:"currency"`
	Status      string     `json:"status"`
	DecidedBy   *uuid.UUID `json:"decided_by,omitempty"`
	DecidedAt   *time.Time `json:"decided_at,omitempty"`
	CreatedAt   time.Time  `json:"created_at"`
	UpdatedAt   time.Time  `json:"updated_at"`
}
