package models

import (
	"time"

	"github.com/google/uuid"
)

// Job status values relevant to escrow. Full job lifecycle (drafting,
// applications, submissions) lives outside this service.
const (
	JobStatusOpen      = "OPEN"
	JobStatusAssigned  = "ASSIGNED"
	JobStatusCompleted = "COMPLETED"
	JobStatusRefunded  = "REFUNDED"
)

// Job is the minimal brief row the escrow and dispute services need: who the
// brand is, which creator (if any) is assigned, and the agreed amount.
type Job struct {
	ID          uuid.UUID  `json:"id"`
	BrandID     uuid.UUID  `json:"brand_id"`
	CreatorID   *uuid.UUID `json:"creator_id,omitempty"`
	Title       string     `json:"title"`
	Status      string     `json:"status"`
	AmountCents int64      `json:"amount_cents"`
	Currency    string     `json:"currency"`
	CreatedAt   time.Time  `json:"created_at"`
	UpdatedAt   time.Time  `json:"updated_at"`
}
