package repository

import (
	"context"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/briefmarket/backend/internal/models"
)

type PayoutRepo struct {
	pool *pgxpool.Pool
}

func NewPayoutRepo(pool *pgxpool.Pool) *PayoutRepo {
	return &PayoutRepo{pool: pool}
}

func (r *PayoutRepo) Begin(ctx context.Context) (pgx.Tx, error) {
	return r.pool.Begin(ctx)
}

const payoutColumns = `id, user_id, amount_cents, currency, status, decided_by, decided_at, created_at, updated_at`

func scanPayout(row pgx.Row) (*models.Payout, error) {
	var p models.Payout
	err := row.Scan(&p.ID, &p.UserID, &p.AmountCents, &p.Currency, &p.Status,
		&p.DecidedBy, &p.DecidedAt, &p.CreatedAt, &p.UpdatedAt)
	if err != nil {
		return nil, err
	}
	return &p, nil
}

func (r *PayoutRepo) CreateTx(ctx context.Context, tx pgx.Tx, id, userID uuid.UUID, amountCents int64, currency string) (*models.Payout, error) {
	return scanPayout(tx.QueryRow(ctx, `
		INSERT INTO payouts (id, user_id, amount_cents, currency, status)
		VALUES ($1, $2, $3, $4, 'REQUESTED')
		RETURNING `+payoutColumns+`
	`, id, userID, amountCents, currency))
}

func (r *PayoutRepo) GetByID(ctx context.Context, id uuid.UUID) (*models.Payout, error) {
	return scanPayout(r.pool.QueryRow(ctx, `
		SELECT `+payoutColumns+` FROM payouts WHERE id = $1
	`, id))
}

func (r *PayoutRepo) GetByIDTx(ctx context.Context, tx pgx.Tx, id uuid.UUID) (*models.Payout, error) {
	return scanPayout(tx.QueryRow(ctx, `
		SELECT `+payoutColumns+` FROM payouts WHERE id = $1
	`, id))
}

// DecideTx conditionally moves a REQUESTED payout to the given terminal
// status. Returns false when the payout was not REQUESTED.
func (r *PayoutRepo) DecideTx(ctx context.Context, tx pgx.Tx, id uuid.UUID, status string, decidedBy uuid.UUID) (bool, error) {
	tag, err := tx.Exec(ctx, `
		UPDATE payouts
		SET status = $2, decided_by = $3, decided_at = now(), updated_at = now()
		WHERE id = $1 AND status = 'REQUESTED'
	`, id, status, decidedBy)
	if err != nil {
		return false, err
	}
	return tag.RowsAffected() == 1, nil
}
