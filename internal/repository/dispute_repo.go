package repository

import (
	"context"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/briefmarket/backend/internal/models"
)

type DisputeRepo struct {
	pool *pgxpool.Pool
}

func NewDisputeRepo(pool *pgxpool.Pool) *DisputeRepo {
	return &DisputeRepo{pool: pool}
}

func (r *DisputeRepo) Begin(ctx context.Context) (pgx.Tx, error) {
	return r.pool.Begin(ctx)
}

const disputeColumns = `id, job_id, status, resolution, reason, opened_by_user_id, resolved_by_user_id, resolved_at, created_at, updated_at`

func scanDispute(row pgx.Row) (*models.Dispute, error) {
	var d models.Dispute
	err := row.Scan(&d.ID, &d.JobID, &d.Status, &d.Resolution, &d.Reason,
		&d.OpenedByUserID, &d.ResolvedByUserID, &d.ResolvedAt, &d.CreatedAt, &d.UpdatedAt)
	if err != nil {
		return nil, err
	}
	return &d, nil
}

// CreateTx inserts the dispute row on the caller's transaction so the insert
// and its outbox event commit together. The partial unique index on
// (job_id) WHERE status = 'OPEN' surfaces concurrent opens as a unique
// violation.
func (r *DisputeRepo) CreateTx(ctx context.Context, tx pgx.Tx, jobID, openedBy uuid.UUID, reason string) (*models.Dispute, error) {
	return scanDispute(tx.QueryRow(ctx, `
		INSERT INTO disputes (id, job_id, status, reason, opened_by_user_id)
		VALUES ($1, $2, 'OPEN', $3, $4)
		RETURNING `+disputeColumns+`
	`, uuid.New(), jobID, reason, openedBy))
}

func (r *DisputeRepo) GetByID(ctx context.Context, id uuid.UUID) (*models.Dispute, error) {
	return scanDispute(r.pool.QueryRow(ctx, `
		SELECT `+disputeColumns+` FROM disputes WHERE id = $1
	`, id))
}

func (r *DisputeRepo) GetByIDTx(ctx context.Context, tx pgx.Tx, id uuid.UUID) (*models.Dispute, error) {
	return scanDispute(tx.QueryRow(ctx, `
		SELECT `+disputeColumns+` FROM disputes WHERE id = $1
	`, id))
}

// HasOpenForJob reports whether the job already has an OPEN dispute.
func (r *DisputeRepo) HasOpenForJob(ctx context.Context, jobID uuid.UUID) (bool, error) {
	var exists bool
	err := r.pool.QueryRow(ctx, `
		SELECT EXISTS (SELECT 1 FROM disputes WHERE job_id = $1 AND status = 'OPEN')
	`, jobID).Scan(&exists)
	return exists, err
}

// ResolveTx conditionally moves an OPEN dispute to RESOLVED with the given
// resolution. Returns false when the dispute was not OPEN.
func (r *DisputeRepo) ResolveTx(ctx context.Context, tx pgx.Tx, id uuid.UUID, resolution string, resolvedBy uuid.UUID) (bool, error) {
	tag, err := tx.Exec(ctx, `
		UPDATE disputes
		SET status = 'RESOLVED', resolution = $2, resolved_by_user_id = $3, resolved_at = now(), updated_at = now()
		WHERE id = $1 AND status = 'OPEN'
	`, id, resolution, resolvedBy)
	if err != nil {
		return false, err
	}
	return tag.RowsAffected() == 1, nil
}

// CancelTx conditionally moves an OPEN dispute to CANCELED.
func (r *DisputeRepo) CancelTx(ctx context.Context, tx pgx.Tx, id, canceledBy uuid.UUID) (bool, error) {
	tag, err := tx.Exec(ctx, `
		UPDATE disputes
		SET status = 'CANCELED', resolved_by_user_id = $2, resolved_at = now(), updated_at = now()
		WHERE id = $1 AND status = 'OPEN'
	`, id, canceledBy)
	if err != nil {
		return false, err
	}
	return tag.RowsAffected() == 1, nil
}
