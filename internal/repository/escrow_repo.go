package repository

import (
	"context"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/briefmarket/backend/internal/models"
)

type EscrowRepo struct {
	pool *pgxpool.Pool
}

func NewEscrowRepo(pool *pgxpool.Pool) *EscrowRepo {
	return &EscrowRepo{pool: pool}
}

func (r *EscrowRepo) Begin(ctx context.Context) (pgx.Tx, error) {
	return r.pool.Begin(ctx)
}

const escrowColumns = `id, job_id, brand_id, creator_id, amount_cents, currency, status, funded_at, released_at, refunded_at, created_at, updated_at`

func scanEscrow(row pgx.Row) (*models.Escrow, error) {
	var e models.Escrow
	err := row.Scan(&e.ID, &e.JobID, &e.BrandID, &e.CreatorID, &e.AmountCents, &e.Currency, &e.Status,
		&e.FundedAt, &e.ReleasedAt, &e.RefundedAt, &e.CreatedAt, &e.UpdatedAt)
	if err != nil {
		return nil, err
	}
	return &e, nil
}

// CreateTx inserts a new UNFUNDED escrow for the job. The unique index on
// job_id enforces one escrow per job.
func (r *EscrowRepo) CreateTx(ctx context.Context, tx pgx.Tx, jobID, brandID uuid.UUID, creatorID *uuid.UUID, amountCents int64, currency string) (*models.Escrow, error) {
	return scanEscrow(tx.QueryRow(ctx, `
		INSERT INTO escrows (id, job_id, brand_id, creator_id, amount_cents, currency, status)
		VALUES ($1, $2, $3, $4, $5, $6, 'UNFUNDED')
		RETURNING `+escrowColumns+`
	`, uuid.New(), jobID, brandID, creatorID, amountCents, currency))
}

func (r *EscrowRepo) GetByJobID(ctx context.Context, jobID uuid.UUID) (*models.Escrow, error) {
	return scanEscrow(r.pool.QueryRow(ctx, `
		SELECT `+escrowColumns+` FROM escrows WHERE job_id = $1
	`, jobID))
}

// GetByJobIDTx re-reads the escrow inside the caller's transaction, used to
// classify a failed compare-and-swap.
func (r *EscrowRepo) GetByJobIDTx(ctx context.Context, tx pgx.Tx, jobID uuid.UUID) (*models.Escrow, error) {
	return scanEscrow(tx.QueryRow(ctx, `
		SELECT `+escrowColumns+` FROM escrows WHERE job_id = $1
	`, jobID))
}

// CompareAndSwapStatusTx conditionally moves the escrow from expected to next
// status, stamping the matching timestamp column. Returns false when the row
// was not in the expected status (or does not exist); the caller must re-read
// to classify the failure.
func (r *EscrowRepo) CompareAndSwapStatusTx(ctx context.Context, tx pgx.Tx, id uuid.UUID, expected, next string) (bool, error) {
	tag, err := tx.Exec(ctx, `
		UPDATE escrows
		SET status = $3,
			funded_at   = CASE WHEN $3 = 'FUNDED'   THEN now() ELSE funded_at END,
			released_at = CASE WHEN $3 = 'RELEASED' THEN now() ELSE released_at END,
			refunded_at = CASE WHEN $3 = 'REFUNDED' THEN now() ELSE refunded_at END,
			updated_at = now()
		WHERE id = $1 AND status = $2
	`, id, expected, next)
	if err != nil {
		return false, err
	}
	return tag.RowsAffected() == 1, nil
}

// SetCreatorTx assigns the creator on an escrow that was created before the
// creator was known.
func (r *EscrowRepo) SetCreatorTx(ctx context.Context, tx pgx.Tx, id, creatorID uuid.UUID) error {
	_, err := tx.Exec(ctx, `
		UPDATE escrows SET creator_id = $2, updated_at = now() WHERE id = $1
	`, id, creatorID)
	return err
}
