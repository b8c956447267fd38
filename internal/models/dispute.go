package models

import (
	"time"

	"github.com/google/uuid"
)

// Dispute status and resolution values. Only OPEN disputes may transition.
const (
	DisputeStatusOpen     = "OPEN"
	DisputeStatusResolved = "RESOLVED"
	DisputeStatusCanceled = "CANCELED"

	DisputeResolutionRelease = "RELEASE"
	DisputeResolutionRefund  = "REFUND"
)

type Dispute struct {
	ID               uuid.UUID  `json:"id"`
	JobID            uuid.UUID  `json:"job_id"`
	Status           string     `json:"status"`
	Resolution       *string    `json:"resolution,omitempty"`
	Reason           string     `json:"reason"`
	OpenedByUserID   uuid.UUID  `json:"opened_by_user_id"`
	ResolvedByUserID *uuid.UUID `json:"resolved_by_user_id,omitempty"`
	ResolvedAt       *time.Time `json:"resolved_at,omitempty"`
	CreatedAt        time.Time  `json:"created_at"`
	UpdatedAt        time.Time  `json:"updated_at"`
}
