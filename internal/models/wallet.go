package models

import (
	"time"

	"github.com/google/uuid"
)

// PlatformWalletUserID is the system account that collects commission.
var PlatformWalletUserID = uuid.MustParse("00000000-0000-0000-0000-000000000001")

// Wallet is a per-user balance in minor currency units. Balances are mutated
// only through atomic increments/decrements paired with a ledger entry in the
// same transaction.
type Wallet struct {
	UserID       uuid.UUID `json:"user_id"`
	BalanceCents int64     `json:"balance_cents"`
	Currency     string    `json:"currency"`
	CreatedAt    time.Time `json:"created_at"`
	UpdatedAt    time.Time `json:"updated_at"`
}
