package repository

import (
	"context"
	"errors"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/briefmarket/backend/internal/models"
)

// ErrInsufficientBalance is returned when a conditional debit finds less than
// the requested amount.
var ErrInsufficientBalance = errors.New("insufficient wallet balance")

type WalletRepo struct {
	pool *pgxpool.Pool
}

func NewWalletRepo(pool *pgxpool.Pool) *WalletRepo {
	return &WalletRepo{pool: pool}
}

func (r *WalletRepo) GetByUserID(ctx context.Context, userID uuid.UUID) (*models.Wallet, error) {
	var w models.Wallet
	err := r.pool.QueryRow(ctx, `
		SELECT user_id, balance_cents, currency, created_at, updated_at
		FROM wallets WHERE user_id = $1
	`, userID).Scan(&w.UserID, &w.BalanceCents, &w.Currency, &w.CreatedAt, &w.UpdatedAt)
	if err != nil {
		return nil, err
	}
	return &w, nil
}

// GetOrCreateTx upserts a zero-balance wallet for the user inside the given
// transaction and returns the current row.
func (r *WalletRepo) GetOrCreateTx(ctx context.Context, tx pgx.Tx, userID uuid.UUID, currency string) (*models.Wallet, error) {
	var w models.Wallet
	err := tx.QueryRow(ctx, `
		INSERT INTO wallets (user_id, balance_cents, currency)
		VALUES ($1, 0, $2)
		ON CONFLICT (user_id) DO UPDATE SET updated_at = now()
		RETURNING user_id, balance_cents, currency, created_at, updated_at
	`, userID, currency).Scan(&w.UserID, &w.BalanceCents, &w.Currency, &w.CreatedAt, &w.UpdatedAt)
	if err != nil {
		return nil, err
	}
	return &w, nil
}

// CreditTx atomically adds amountCents to the wallet, creating it if needed.
// Returns the new balance. Call inside the same transaction as the paired
// ledger entry insert.
func (r *WalletRepo) CreditTx(ctx context.Context, tx pgx.Tx, userID uuid.UUID, amountCents int64, currency string) (newBalance int64, err error) {
	err = tx.QueryRow(ctx, `
		INSERT INTO wallets (user_id, balance_cents, currency)
		VALUES ($1, $2, $3)
		ON CONFLICT (user_id) DO UPDATE
			SET balance_cents = wallets.balance_cents + $2, updated_at = now()
		RETURNING balance_cents
	`, userID, amountCents, currency).Scan(&newBalance)
	return newBalance, err
}

// DebitTx atomically deducts amountCents if the balance covers it. Returns
// ErrInsufficientBalance when the conditional update matches no row.
func (r *WalletRepo) DebitTx(ctx context.Context, tx pgx.Tx, userID uuid.UUID, amountCents int64) (newBalance int64, err error) {
	err = tx.QueryRow(ctx, `
		UPDATE wallets SET balance_cents = balance_cents - $1, updated_at = now()
		WHERE user_id = $2 AND balance_cents >= $1
		RETURNING balance_cents
	`, amountCents, userID).Scan(&newBalance)
	if errors.Is(err, pgx.ErrNoRows) {
		return 0, ErrInsufficientBalance
	}
	return newBalance, err
}
