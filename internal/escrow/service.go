// Package escrow owns the escrow lifecycle per job: UNFUNDED -> FUNDED ->
// {RELEASED | REFUNDED}. Every state-changing operation runs in one
// transaction and is idempotency-first: a failed compare-and-swap is re-read
// and classified as either "someone already did exactly this" (success echo)
// or "the opposing terminal transition won" (conflict, zero mutations).
package escrow

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"

	"github.com/briefmarket/backend/internal/ledger"
	"github.com/briefmarket/backend/internal/models"
	"github.com/briefmarket/backend/internal/notify"
	"github.com/briefmarket/backend/internal/rates"
	"github.com/briefmarket/backend/internal/repository"
)

// EscrowRepo is the escrow row access the state machine needs.
type EscrowRepo interface {
	Begin(ctx context.Context) (pgx.Tx, error)
	CreateTx(ctx context.Context, tx pgx.Tx, jobID, brandID uuid.UUID, creatorID *uuid.UUID, amountCents int64, currency string) (*models.Escrow, error)
	GetByJobIDTx(ctx context.Context, tx pgx.Tx, jobID uuid.UUID) (*models.Escrow, error)
	CompareAndSwapStatusTx(ctx context.Context, tx pgx.Tx, id uuid.UUID, expected, next string) (bool, error)
}

// JobRepo resolves jobId -> brand/creator and records terminal job states.
type JobRepo interface {
	GetByIDTx(ctx context.Context, tx pgx.Tx, id uuid.UUID) (*models.Job, error)
	SetStatusTx(ctx context.Context, tx pgx.Tx, id uuid.UUID, status string) error
}

// WalletRepo is the balance mutation surface, always on the ledger's tx.
type WalletRepo interface {
	GetOrCreateTx(ctx context.Context, tx pgx.Tx, userID uuid.UUID, currency string) (*models.Wallet, error)
	CreditTx(ctx context.Context, tx pgx.Tx, userID uuid.UUID, amountCents int64, currency string) (int64, error)
	DebitTx(ctx context.Context, tx pgx.Tx, userID uuid.UUID, amountCents int64) (int64, error)
}

// Ledger appends idempotent financial records and reads back what an earlier
// transaction already recorded.
type Ledger interface {
	Append(ctx context.Context, tx pgx.Tx, rec ledger.Record) (created bool, entry *models.LedgerEntry, err error)
	GetByReference(ctx context.Context, tx pgx.Tx, reference string) (*models.LedgerEntry, error)
}

// Producer appends outbox events in the same transaction.
type Producer interface {
	EmitTx(ctx context.Context, tx pgx.Tx, eventType string, payload any) (*models.OutboxEvent, error)
}

// Service is the escrow state machine.
type Service struct {
	escrows EscrowRepo
	jobs    JobRepo
	wallets WalletRepo
	ledger  Ledger
	outbox  Producer
	rates   rates.Converter
	notify  notify.InsertTxFunc
	// commissionBps is read per operation so configuration changes apply
	// without restart.
	commissionBps func() int
	log           *slog.Logger
}

func NewService(
	escrows EscrowRepo,
	jobs JobRepo,
	wallets WalletRepo,
	ledgerSvc Ledger,
	producer Producer,
	converter rates.Converter,
	enqueueNotify notify.InsertTxFunc,
	commissionBps func() int,
	log *slog.Logger,
) *Service {
	if log == nil {
		log = slog.Default()
	}
	return &Service{
		escrows:       escrows,
		jobs:          jobs,
		wallets:       wallets,
		ledger:        ledgerSvc,
		outbox:        producer,
		rates:         converter,
		notify:        enqueueNotify,
		commissionBps: commissionBps,
		log:           log,
	}
}

// splitCommission computes the commission (rounded down) and the payout
// remainder. Floor on the commission means the creator keeps every leftover
// minor unit; the two always sum to amountCents exactly.
func splitCommission(amountCents int64, bps int) (commissionCents, payoutCents int64) {
	commissionCents = amountCents * int64(bps) / 10_000
	return commissionCents, amountCents - commissionCents
}

// CreateForJob inserts the UNFUNDED escrow when a creator is assigned to a
// job. Runs on the caller's transaction so job assignment and escrow creation
// commit together.
func (s *Service) CreateForJob(ctx context.Context, tx pgx.Tx, job *models.Job, creatorID uuid.UUID) (*models.Escrow, error) {
	return s.escrows.CreateTx(ctx, tx, job.ID, job.BrandID, &creatorID, job.AmountCents, job.Currency)
}

// Fund moves the escrow UNFUNDED -> FUNDED, debiting the brand wallet and
// recording ESCROW_FUND:<escrowID>.
func (s *Service) Fund(ctx context.Context, jobID uuid.UUID) (FundResult, error) {
	tx, err := s.escrows.Begin(ctx)
	if err != nil {
		return FundResult{}, err
	}
	defer tx.Rollback(ctx)

	job, esc, result := s.loadForUpdate(ctx, tx, jobID)
	if result != nil {
		return FundResult{Kind: *result}, nil
	}

	swapped, err := s.escrows.CompareAndSwapStatusTx(ctx, tx, esc.ID, models.EscrowStatusUnfunded, models.EscrowStatusFunded)
	if err != nil {
		return FundResult{}, err
	}
	if !swapped {
		kind, err := s.classifyFundConflict(ctx, tx, jobID)
		if err != nil {
			return FundResult{}, err
		}
		return FundResult{Kind: kind}, nil
	}

	created, _, err := s.ledger.Append(ctx, tx, ledger.Record{
		Reference:   ledger.FundRef(esc.ID),
		Type:        models.LedgerEscrowFund,
		AmountCents: esc.AmountCents,
		Currency:    esc.Currency,
		FromUserID:  &job.BrandID,
		EscrowID:    &esc.ID,
	})
	if err != nil {
		return FundResult{}, err
	}
	if !created {
		// The fund effect already happened in an earlier transaction; drop
		// this one's CAS by rolling back and echo success.
		return FundResult{Kind: FundAlreadyFunded}, nil
	}

	if _, err := s.wallets.DebitTx(ctx, tx, job.BrandID, esc.AmountCents); err != nil {
		if errors.Is(err, repository.ErrInsufficientBalance) {
			return FundResult{Kind: FundInsufficientFunds}, nil
		}
		return FundResult{}, err
	}

	if _, err := s.outbox.EmitTx(ctx, tx, models.EventEscrowFunded, map[string]any{
		"escrow_id":    esc.ID,
		"job_id":       jobID,
		"amount_cents": esc.AmountCents,
		"currency":     esc.Currency,
	}); err != nil {
		return FundResult{}, err
	}

	if err := tx.Commit(ctx); err != nil {
		return FundResult{}, err
	}
	s.log.Info("escrow funded", "escrow_id", esc.ID, "job_id", jobID, "amount_cents", esc.AmountCents)
	return FundResult{Kind: FundOK}, nil
}

// Release moves the escrow FUNDED -> RELEASED, takes commission, credits the
// creator wallet, and emits the outbox event plus a durable notification.
func (s *Service) Release(ctx context.Context, jobID, actorID uuid.UUID, source string) (ReleaseResult, error) {
	tx, err := s.escrows.Begin(ctx)
	if err != nil {
		return ReleaseResult{}, err
	}
	defer tx.Rollback(ctx)

	job, esc, missing := s.loadForUpdate(ctx, tx, jobID)
	if missing != nil {
		switch *missing {
		case FundJobNotFound:
			return ReleaseResult{Kind: ReleaseJobNotFound}, nil
		default:
			return ReleaseResult{Kind: ReleaseMissing}, nil
		}
	}

	creatorID := esc.CreatorID
	if creatorID == nil {
		creatorID = job.CreatorID
	}
	if creatorID == nil {
		return ReleaseResult{Kind: ReleaseNoActiveCreator}, nil
	}

	swapped, err := s.escrows.CompareAndSwapStatusTx(ctx, tx, esc.ID, models.EscrowStatusFunded, models.EscrowStatusReleased)
	if err != nil {
		return ReleaseResult{}, err
	}
	if !swapped {
		current, err := s.escrows.GetByJobIDTx(ctx, tx, jobID)
		if err != nil {
			return ReleaseResult{}, err
		}
		switch current.Status {
		case models.EscrowStatusReleased:
			return s.releaseEcho(ctx, tx, esc.ID)
		case models.EscrowStatusRefunded:
			return ReleaseResult{Kind: ReleaseConflictRefunded}, nil
		case models.EscrowStatusUnfunded:
			return ReleaseResult{Kind: ReleaseUnfunded}, nil
		default:
			return ReleaseResult{}, fmt.Errorf("escrow %s: unexpected status %q", current.ID, current.Status)
		}
	}

	commissionCents, payoutCents := splitCommission(esc.AmountCents, s.commissionBps())

	created, _, err := s.ledger.Append(ctx, tx, ledger.Record{
		Reference:   ledger.ReleaseRef(esc.ID),
		Type:        models.LedgerEscrowReleased,
		AmountCents: payoutCents,
		Currency:    esc.Currency,
		FromUserID:  &job.BrandID,
		ToUserID:    creatorID,
		EscrowID:    &esc.ID,
	})
	if err != nil {
		return ReleaseResult{}, err
	}
	if !created {
		return s.releaseEcho(ctx, tx, esc.ID)
	}

	if commissionCents > 0 {
		if _, _, err := s.ledger.Append(ctx, tx, ledger.Record{
			Reference:   ledger.CommissionRef(esc.ID),
			Type:        models.LedgerCommissionTaken,
			AmountCents: commissionCents,
			Currency:    esc.Currency,
			FromUserID:  &job.BrandID,
			ToUserID:    &models.PlatformWalletUserID,
			EscrowID:    &esc.ID,
		}); err != nil {
			return ReleaseResult{}, err
		}
		if _, err := s.wallets.CreditTx(ctx, tx, models.PlatformWalletUserID, commissionCents, esc.Currency); err != nil {
			return ReleaseResult{}, err
		}
	}

	wallet, err := s.wallets.GetOrCreateTx(ctx, tx, *creatorID, esc.Currency)
	if err != nil {
		return ReleaseResult{}, err
	}
	payoutInWalletCurrency, err := s.rates.Convert(ctx, payoutCents, esc.Currency, wallet.Currency)
	if err != nil {
		return ReleaseResult{}, err
	}
	if _, err := s.wallets.CreditTx(ctx, tx, *creatorID, payoutInWalletCurrency, wallet.Currency); err != nil {
		return ReleaseResult{}, err
	}

	if err := s.jobs.SetStatusTx(ctx, tx, jobID, models.JobStatusCompleted); err != nil {
		return ReleaseResult{}, err
	}

	if _, err := s.outbox.EmitTx(ctx, tx, models.EventEscrowReleased, map[string]any{
		"escrow_id":        esc.ID,
		"job_id":           jobID,
		"payout_cents":     payoutInWalletCurrency,
		"payout_currency":  wallet.Currency,
		"commission_cents": commissionCents,
		"actor_user_id":    actorID,
		"source":           source,
	}); err != nil {
		return ReleaseResult{}, err
	}

	if err := s.enqueueNotify(ctx, tx, *creatorID, "escrow.released", jobID); err != nil {
		return ReleaseResult{}, err
	}

	if err := tx.Commit(ctx); err != nil {
		return ReleaseResult{}, err
	}
	s.log.Info("escrow released",
		"escrow_id", esc.ID, "job_id", jobID, "source", source,
		"payout_cents", payoutInWalletCurrency, "commission_cents", commissionCents)
	return ReleaseResult{
		Kind:            Released,
		PayoutCents:     payoutInWalletCurrency,
		PayoutCurrency:  wallet.Currency,
		CommissionCents: commissionCents,
	}, nil
}

// Refund moves the escrow FUNDED -> REFUNDED, crediting the amount back to
// the brand wallet. Bookkeeping only; no external payout rail.
func (s *Service) Refund(ctx context.Context, jobID, actorID uuid.UUID, reason, source string) (RefundResult, error) {
	tx, err := s.escrows.Begin(ctx)
	if err != nil {
		return RefundResult{}, err
	}
	defer tx.Rollback(ctx)

	job, esc, missing := s.loadForUpdate(ctx, tx, jobID)
	if missing != nil {
		switch *missing {
		case FundJobNotFound:
			return RefundResult{Kind: RefundJobNotFound}, nil
		default:
			return RefundResult{Kind: RefundMissing}, nil
		}
	}

	swapped, err := s.escrows.CompareAndSwapStatusTx(ctx, tx, esc.ID, models.EscrowStatusFunded, models.EscrowStatusRefunded)
	if err != nil {
		return RefundResult{}, err
	}
	if !swapped {
		current, err := s.escrows.GetByJobIDTx(ctx, tx, jobID)
		if err != nil {
			return RefundResult{}, err
		}
		switch current.Status {
		case models.EscrowStatusRefunded:
			return RefundResult{Kind: AlreadyRefunded}, nil
		case models.EscrowStatusReleased:
			return RefundResult{Kind: RefundConflictReleased}, nil
		case models.EscrowStatusUnfunded:
			return RefundResult{Kind: RefundUnfunded}, nil
		default:
			return RefundResult{}, fmt.Errorf("escrow %s: unexpected status %q", current.ID, current.Status)
		}
	}

	created, _, err := s.ledger.Append(ctx, tx, ledger.Record{
		Reference:   ledger.RefundRef(esc.ID),
		Type:        models.LedgerEscrowRefunded,
		AmountCents: esc.AmountCents,
		Currency:    esc.Currency,
		ToUserID:    &job.BrandID,
		EscrowID:    &esc.ID,
		Metadata:    mustJSON(map[string]string{"reason": reason}),
	})
	if err != nil {
		return RefundResult{}, err
	}
	if !created {
		return RefundResult{Kind: AlreadyRefunded}, nil
	}

	if _, err := s.wallets.CreditTx(ctx, tx, job.BrandID, esc.AmountCents, esc.Currency); err != nil {
		return RefundResult{}, err
	}

	if err := s.jobs.SetStatusTx(ctx, tx, jobID, models.JobStatusRefunded); err != nil {
		return RefundResult{}, err
	}

	if _, err := s.outbox.EmitTx(ctx, tx, models.EventEscrowRefunded, map[string]any{
		"escrow_id":     esc.ID,
		"job_id":        jobID,
		"amount_cents":  esc.AmountCents,
		"currency":      esc.Currency,
		"reason":        reason,
		"actor_user_id": actorID,
		"source":        source,
	}); err != nil {
		return RefundResult{}, err
	}

	if err := s.enqueueNotify(ctx, tx, job.BrandID, "escrow.refunded", jobID); err != nil {
		return RefundResult{}, err
	}

	if err := tx.Commit(ctx); err != nil {
		return RefundResult{}, err
	}
	s.log.Info("escrow refunded", "escrow_id", esc.ID, "job_id", jobID, "reason", reason, "source", source)
	return RefundResult{Kind: Refunded}, nil
}

// loadForUpdate fetches the job and escrow rows inside the transaction.
// Returns a FundResultKind pointer when either is missing (shared between the
// three operations, which map it to their own kinds).
func (s *Service) loadForUpdate(ctx context.Context, tx pgx.Tx, jobID uuid.UUID) (*models.Job, *models.Escrow, *FundResultKind) {
	job, err := s.jobs.GetByIDTx(ctx, tx, jobID)
	if err != nil {
		k := FundJobNotFound
		return nil, nil, &k
	}
	esc, err := s.escrows.GetByJobIDTx(ctx, tx, jobID)
	if err != nil {
		k := FundMissing
		return nil, nil, &k
	}
	return job, esc, nil
}

// releaseEcho rebuilds the AlreadyReleased result from the ledger rows the
// winning transaction recorded, so a retrying caller sees the real split
// instead of zeroes. Amounts echo in the escrow currency.
func (s *Service) releaseEcho(ctx context.Context, tx pgx.Tx, escrowID uuid.UUID) (ReleaseResult, error) {
	res := ReleaseResult{Kind: AlreadyReleased}
	entry, err := s.ledger.GetByReference(ctx, tx, ledger.ReleaseRef(escrowID))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return res, nil
		}
		return ReleaseResult{}, err
	}
	res.PayoutCents = entry.AmountCents
	res.PayoutCurrency = entry.Currency

	commission, err := s.ledger.GetByReference(ctx, tx, ledger.CommissionRef(escrowID))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			// Zero-bps releases write no commission row.
			return res, nil
		}
		return ReleaseResult{}, err
	}
	res.CommissionCents = commission.AmountCents
	return res, nil
}

func (s *Service) classifyFundConflict(ctx context.Context, tx pgx.Tx, jobID uuid.UUID) (FundResultKind, error) {
	current, err := s.escrows.GetByJobIDTx(ctx, tx, jobID)
	if err != nil {
		return 0, err
	}
	switch current.Status {
	case models.EscrowStatusFunded:
		return FundAlreadyFunded, nil
	case models.EscrowStatusReleased:
		return FundReleased, nil
	case models.EscrowStatusRefunded:
		return FundRefunded, nil
	default:
		return 0, fmt.Errorf("escrow %s: unexpected status %q", current.ID, current.Status)
	}
}

// enqueueNotify inserts a durable notification job on the same transaction as
// the financial commit. Delivery retries are River's responsibility; a nil
// enqueuer disables notifications (tests, tooling).
func (s *Service) enqueueNotify(ctx context.Context, tx pgx.Tx, userID uuid.UUID, event string, jobID uuid.UUID) error {
	if s.notify == nil {
		return nil
	}
	return s.notify(ctx, tx, notify.Args{
		UserID: userID,
		Event:  event,
		JobID:  jobID,
	})
}

func mustJSON(v any) json.RawMessage {
	b, err := json.Marshal(v)
	if err != nil {
		return nil
	}
	return b
}
