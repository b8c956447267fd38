// Package payout handles creator withdrawal requests. The requested amount
// leaves the wallet immediately and is held by the platform until an admin
// approves (bookkeeping only) or rejects (returned to the wallet). Every
// wallet mutation is paired with a uniquely referenced ledger entry on the
// same transaction.
package payout

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"

	"github.com/briefmarket/backend/internal/ledger"
	"github.com/briefmarket/backend/internal/models"
	"github.com/briefmarket/backend/internal/notify"
	"github.com/briefmarket/backend/internal/repository"
)

type PayoutRepo interface {
	Begin(ctx context.Context) (pgx.Tx, error)
	CreateTx(ctx context.Context, tx pgx.Tx, id, userID uuid.UUID, amountCents int64, currency string) (*models.Payout, error)
	GetByID(ctx context.Context, id uuid.UUID) (*models.Payout, error)
	GetByIDTx(ctx context.Context, tx pgx.Tx, id uuid.UUID) (*models.Payout, error)
	DecideTx(ctx context.Context, tx pgx.Tx, id uuid.UUID, status string, decidedBy uuid.UUID) (bool, error)
}

type WalletRepo interface {
	GetOrCreateTx(ctx context.Context, tx pgx.Tx, userID uuid.UUID, currency string) (*models.Wallet, error)
	CreditTx(ctx context.Context, tx pgx.Tx, userID uuid.UUID, amountCents int64, currency string) (int64, error)
	DebitTx(ctx context.Context, tx pgx.Tx, userID uuid.UUID, amountCents int64) (int64, error)
}

type Ledger interface {
	Append(ctx context.Context, tx pgx.Tx, rec ledger.Record) (created bool, entry *models.LedgerEntry, err error)
}

type Producer interface {
	EmitTx(ctx context.Context, tx pgx.Tx, eventType string, payload any) (*models.OutboxEvent, error)
}

type Service struct {
	payouts         PayoutRepo
	wallets         WalletRepo
	ledger          Ledger
	outbox          Producer
	notify          notify.InsertTxFunc
	defaultCurrency string
	log             *slog.Logger
}

func NewService(payouts PayoutRepo, wallets WalletRepo, lgr Ledger, producer Producer, enqueueNotify notify.InsertTxFunc, defaultCurrency string, log *slog.Logger) *Service {
	if defaultCurrency == "" {
		defaultCurrency = "USD"
	}
	if log == nil {
		log = slog.Default()
	}
	return &Service{
		payouts: payouts, wallets: wallets, ledger: lgr, outbox: producer,
		notify: enqueueNotify, defaultCurrency: defaultCurrency, log: log,
	}
}

// Request debits the wallet and records a REQUESTED payout. The payout ID is
// supplied by the caller so a retried request with the same ID echoes the
// original instead of double-debiting.
func (s *Service) Request(ctx context.Context, payoutID, userID uuid.UUID, amountCents int64) (*models.Payout, RequestResultKind, error) {
	if amountCents <= 0 {
		return nil, RequestInvalidAmount, nil
	}

	tx, err := s.payouts.Begin(ctx)
	if err != nil {
		return nil, 0, err
	}
	defer tx.Rollback(ctx)

	wallet, err := s.wallets.GetOrCreateTx(ctx, tx, userID, s.defaultCurrency)
	if err != nil {
		return nil, 0, fmt.Errorf("payout request %s: load wallet: %w", payoutID, err)
	}

	created, _, err := s.ledger.Append(ctx, tx, ledger.Record{
		Reference:   ledger.PayoutRequestRef(payoutID),
		Type:        models.LedgerPayoutRequested,
		AmountCents: amountCents,
		Currency:    wallet.Currency,
		FromUserID:  &userID,
	})
	if err != nil {
		return nil, 0, err
	}
	if !created {
		existing, err := s.payouts.GetByIDTx(ctx, tx, payoutID)
		if err != nil {
			return nil, 0, fmt.Errorf("payout request %s: replay fetch: %w", payoutID, err)
		}
		return existing, RequestAlreadyExists, nil
	}

	if _, err := s.wallets.DebitTx(ctx, tx, userID, amountCents); err != nil {
		if errors.Is(err, repository.ErrInsufficientBalance) {
			return nil, RequestInsufficientFunds, nil
		}
		return nil, 0, fmt.Errorf("payout request %s: debit: %w", payoutID, err)
	}

	p, err := s.payouts.CreateTx(ctx, tx, payoutID, userID, amountCents, wallet.Currency)
	if err != nil {
		return nil, 0, fmt.Errorf("payout request %s: create: %w", payoutID, err)
	}

	if _, err := s.outbox.EmitTx(ctx, tx, models.EventPayoutRequested, map[string]any{
		"payout_id":    p.ID,
		"user_id":      userID,
		"amount_cents": amountCents,
		"currency":     p.Currency,
	}); err != nil {
		return nil, 0, err
	}

	if err := tx.Commit(ctx); err != nil {
		return nil, 0, err
	}
	s.log.Info("payout requested", "payout_id", p.ID, "user_id", userID, "amount_cents", amountCents)
	return p, RequestOK, nil
}

// Approve finalizes a REQUESTED payout. The money already left the wallet at
// request time, so approval only records the decision.
func (s *Service) Approve(ctx context.Context, payoutID, adminID uuid.UUID) (DecideResultKind, error) {
	return s.decide(ctx, payoutID, adminID, models.PayoutStatusApproved, "")
}

// Reject returns a REQUESTED payout's amount to the wallet.
func (s *Service) Reject(ctx context.Context, payoutID, adminID uuid.UUID, reason string) (DecideResultKind, error) {
	return s.decide(ctx, payoutID, adminID, models.PayoutStatusRejected, reason)
}

func (s *Service) decide(ctx context.Context, payoutID, adminID uuid.UUID, status, reason string) (DecideResultKind, error) {
	tx, err := s.payouts.Begin(ctx)
	if err != nil {
		return 0, err
	}
	defer tx.Rollback(ctx)

	p, err := s.payouts.GetByIDTx(ctx, tx, payoutID)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return DecideNotFound, nil
		}
		return 0, err
	}

	flipped, err := s.payouts.DecideTx(ctx, tx, payoutID, status, adminID)
	if err != nil {
		return 0, err
	}
	if !flipped {
		current, err := s.payouts.GetByIDTx(ctx, tx, payoutID)
		if err != nil {
			return 0, fmt.Errorf("payout decide %s: re-read: %w", payoutID, err)
		}
		switch {
		case current.Status == status && status == models.PayoutStatusApproved:
			return AlreadyApproved, nil
		case current.Status == status && status == models.PayoutStatusRejected:
			return AlreadyRejected, nil
		default:
			return DecideOpposed, nil
		}
	}

	var ref, ledgerType, eventType string
	if status == models.PayoutStatusApproved {
		ref, ledgerType, eventType = ledger.PayoutApproveRef(payoutID), models.LedgerPayoutApproved, models.EventPayoutApproved
	} else {
		ref, ledgerType, eventType = ledger.PayoutRejectRef(payoutID), models.LedgerPayoutRejected, models.EventPayoutRejected
	}

	created, _, err := s.ledger.Append(ctx, tx, ledger.Record{
		Reference:   ref,
		Type:        ledgerType,
		AmountCents: p.AmountCents,
		Currency:    p.Currency,
		ToUserID:    &p.UserID,
	})
	if err != nil {
		return 0, err
	}
	if !created {
		// The decision row flipped but its ledger entry already exists. That
		// means a previous attempt committed partially, which the shared
		// transaction makes impossible.
		return 0, fmt.Errorf("payout decide %s: ledger reference %s exists without decision", payoutID, ref)
	}

	if status == models.PayoutStatusRejected {
		if _, err := s.wallets.CreditTx(ctx, tx, p.UserID, p.AmountCents, p.Currency); err != nil {
			return 0, fmt.Errorf("payout reject %s: return funds: %w", payoutID, err)
		}
	}

	if _, err := s.outbox.EmitTx(ctx, tx, eventType, map[string]any{
		"payout_id":    payoutID,
		"user_id":      p.UserID,
		"amount_cents": p.AmountCents,
		"currency":     p.Currency,
		"decided_by":   adminID,
		"reason":       reason,
	}); err != nil {
		return 0, err
	}
	if s.notify != nil {
		if err := s.notify(ctx, tx, notify.Args{UserID: p.UserID, Event: eventType}); err != nil {
			return 0, err
		}
	}

	if err := tx.Commit(ctx); err != nil {
		return 0, err
	}
	s.log.Info("payout decided", "payout_id", payoutID, "status", status, "decided_by", adminID)
	if status == models.PayoutStatusApproved {
		return Approved, nil
	}
	return Rejected, nil
}
