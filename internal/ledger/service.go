// Package ledger is the only writer of ledger entries and the idempotency
// gate for every financial effect: a reference maps to at most one entry,
// ever.
package ledger

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"

	"github.com/briefmarket/backend/internal/metrics"
	"github.com/briefmarket/backend/internal/models"
)

// Repo is the minimal ledger repository interface the engine needs.
type Repo interface {
	InsertTx(ctx context.Context, tx pgx.Tx, e *models.LedgerEntry) (inserted bool, err error)
	GetByReferenceTx(ctx context.Context, tx pgx.Tx, reference string) (*models.LedgerEntry, error)
}

// Record describes one financial effect to append.
type Record struct {
	Reference   string
	Type        string
	AmountCents int64
	Currency    string
	FromUserID  *uuid.UUID
	ToUserID    *uuid.UUID
	EscrowID    *uuid.UUID
	Metadata    json.RawMessage
}

type Service struct {
	repo Repo
}

func NewService(repo Repo) *Service {
	return &Service{repo: repo}
}

// Append writes the entry inside the caller's transaction. When an entry with
// the same reference already exists it returns created=false and the existing
// entry; callers must treat that as "already applied", not as an error. Any
// paired wallet mutation must run on the same tx so both commit or neither
// does.
func (s *Service) Append(ctx context.Context, tx pgx.Tx, rec Record) (created bool, entry *models.LedgerEntry, err error) {
	if rec.Reference == "" {
		return false, nil, fmt.Errorf("ledger: empty reference for type %s", rec.Type)
	}
	if rec.AmountCents < 0 {
		return false, nil, fmt.Errorf("ledger: negative amount for reference %s", rec.Reference)
	}
	e := &models.LedgerEntry{
		ID:          uuid.New(),
		Type:        rec.Type,
		AmountCents: rec.AmountCents,
		Currency:    rec.Currency,
		FromUserID:  rec.FromUserID,
		ToUserID:    rec.ToUserID,
		EscrowID:    rec.EscrowID,
		Reference:   rec.Reference,
		Metadata:    rec.Metadata,
	}
	inserted, err := s.repo.InsertTx(ctx, tx, e)
	if err != nil {
		return false, nil, fmt.Errorf("ledger: insert %s: %w", rec.Reference, err)
	}
	if inserted {
		metrics.LedgerEntries.WithLabelValues(e.Type).Inc()
		return true, e, nil
	}
	existing, err := s.repo.GetByReferenceTx(ctx, tx, rec.Reference)
	if err != nil {
		return false, nil, fmt.Errorf("ledger: fetch existing %s: %w", rec.Reference, err)
	}
	return false, existing, nil
}

// GetByReference returns the entry already recorded under reference, or
// pgx.ErrNoRows. Callers use it to echo the amounts of an effect that was
// applied by an earlier transaction.
func (s *Service) GetByReference(ctx context.Context, tx pgx.Tx, reference string) (*models.LedgerEntry, error) {
	return s.repo.GetByReferenceTx(ctx, tx, reference)
}

// Reference builders. These strings are an external audit contract: stable,
// greppable, one per operation instance.

func FundRef(escrowID uuid.UUID) string       { return "ESCROW_FUND:" + escrowID.String() }
func CommissionRef(escrowID uuid.UUID) string { return "ESCROW_COMMISSION:" + escrowID.String() }
func ReleaseRef(escrowID uuid.UUID) string    { return "ESCROW_RELEASE:" + escrowID.String() }
func RefundRef(escrowID uuid.UUID) string     { return "ESCROW_REFUND:" + escrowID.String() }

func PayoutRequestRef(payoutID uuid.UUID) string { return "PAYOUT_REQUEST:" + payoutID.String() }
func PayoutApproveRef(payoutID uuid.UUID) string { return "PAYOUT_APPROVE:" + payoutID.String() }
func PayoutRejectRef(payoutID uuid.UUID) string  { return "PAYOUT_REJECT:" + payoutID.String() }

// AdjustRef keys a manual adjustment by its own entry id, so every adjustment
// is distinct but a retried submission of the same one is not.
func AdjustRef(entryID uuid.UUID) string { return "ADJUST:" + entryID.String() }
