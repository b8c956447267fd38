package models

import (
	"time"

	"github.com/google/uuid"
)

// Escrow status values. Transitions are UNFUNDED -> FUNDED -> {RELEASED | REFUNDED};
// RELEASED and REFUNDED are mutually exclusive terminal states.
const (
	EscrowStatusUnfunded = "UNFUNDED"
	EscrowStatusFunded   = "FUNDED"
	EscrowStatusReleased = "RELEASED"
	EscrowStatusRefunded = "REFUNDED"
)

// Escrow holds funds for one job until they are released to the creator or
// refunded to the brand. One escrow per job.
type Escrow struct {
	ID          uuid.UUID  `json:"id"`
	JobID       uuid.UUID  `json:"job_id"`
	BrandID     uuid.UUID  `json:"brand_id"`
	CreatorID   *uuid.UUID `json:"creator_id,omitempty"`
	AmountCents int64      `json:"amount_cents"`
	Currency    string     `json:"currency"`
	Status      string     `json:"status"`
	FundedAt    *time.Time `json:"funded_at,omitempty"`
	ReleasedAt  *time.Time `json:"released_at,omitempty"`
	RefundedAt  *time.Time `json:"refunded_at,omitempty"`
	CreatedAt   time.Time  `json:"created_at"`
	UpdatedAt   time.Time  `json:"updated_at"`
}
