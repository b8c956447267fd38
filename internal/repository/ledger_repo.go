package repository

import (
	"context"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/briefmarket/backend/internal/models"
)

type LedgerRepo struct {
	pool *pgxpool.Pool
}

func NewLedgerRepo(pool *pgxpool.Pool) *LedgerRepo {
	return &LedgerRepo{pool: pool}
}

// InsertTx inserts a ledger entry inside the given transaction. If an entry
// with the same reference already exists, no row is written and (false, nil)
// is returned; the caller then fetches the existing entry.
func (r *LedgerRepo) InsertTx(ctx context.Context, tx pgx.Tx, e *models.LedgerEntry) (inserted bool, err error) {
	err = tx.QueryRow(ctx, `
		INSERT INTO ledger_entries (id, type, amount_cents, currency, from_user_id, to_user_id, escrow_id, reference, metadata)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
		ON CONFLICT (reference) DO NOTHING
		RETURNING created_at
	`, e.ID, e.Type, e.AmountCents, e.Currency, e.FromUserID, e.ToUserID, e.EscrowID, e.Reference, e.Metadata).Scan(&e.CreatedAt)
	if err == pgx.ErrNoRows {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	return true, nil
}

// GetByReferenceTx returns the entry with the given reference, using the
// caller's transaction so the read sees uncommitted rows of the same tx.
func (r *LedgerRepo) GetByReferenceTx(ctx context.Context, tx pgx.Tx, reference string) (*models.LedgerEntry, error) {
	var e models.LedgerEntry
	err := tx.QueryRow(ctx, `
		SELECT id, type, amount_cents, currency, from_user_id, to_user_id, escrow_id, reference, metadata, created_at
		FROM ledger_entries WHERE reference = $1
	`, reference).Scan(&e.ID, &e.Type, &e.AmountCents, &e.Currency, &e.FromUserID, &e.ToUserID, &e.EscrowID, &e.Reference, &e.Metadata, &e.CreatedAt)
	if err != nil {
		return nil, err
	}
	return &e, nil
}

func (r *LedgerRepo) ListByUserID(ctx context.Context, userID uuid.UUID, limit int) ([]*models.LedgerEntry, error) {
	rows, err := r.pool.Query(ctx, `
		SELECT id, type, amount_cents, currency, from_user_id, to_user_id, escrow_id, reference, metadata, created_at
		FROM ledger_entries
		WHERE from_user_id = $1 OR to_user_id = $1
		ORDER BY created_at DESC
		LIMIT $2
	`, userID, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var list []*models.LedgerEntry
	for rows.Next() {
		var e models.LedgerEntry
		if err := rows.Scan(&e.ID, &e.Type, &e.AmountCents, &e.Currency, &e.FromUserID, &e.ToUserID, &e.EscrowID, &e.Reference, &e.Metadata, &e.CreatedAt); err != nil {
			return nil, err
		}
		list = append(list, &e)
	}
	return list, rows.Err()
}

func (r *LedgerRepo) ListByEscrowID(ctx context.Context, escrowID uuid.UUID) ([]*models.LedgerEntry, error) {
	rows, err := r.pool.Query(ctx, `
		SELECT id, type, amount_cents, currency, from_user_id, to_user_id, escrow_id, reference, metadata, created_at
		FROM ledger_entries WHERE escrow_id = $1 ORDER BY created_at ASC
	`, escrowID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var list []*models.LedgerEntry
	for rows.Next() {
		var e models.LedgerEntry
		if err := rows.Scan(&e.ID, &e.Type, &e.AmountCents, &e.Currency, &e.FromUserID, &e.ToUserID, &e.EscrowID, &e.Reference, &e.Metadata, &e.CreatedAt); err != nil {
			return nil, err
		}
		list = append(list, &e)
	}
	return list, rows.Err()
}
