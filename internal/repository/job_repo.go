package repository

import (
	"context"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/briefmarket/backend/internal/models"
)

// JobRepo reads the minimal job rows the escrow and dispute services need.
// Job CRUD itself is owned by the marketplace application.
type JobRepo struct {
	pool *pgxpool.Pool
}

func NewJobRepo(pool *pgxpool.Pool) *JobRepo {
	return &JobRepo{pool: pool}
}

func (r *JobRepo) Begin(ctx context.Context) (pgx.Tx, error) {
	return r.pool.Begin(ctx)
}

const jobColumns = `id, brand_id, creator_id, title, status, amount_cents, currency, created_at, updated_at`

func scanJob(row pgx.Row) (*models.Job, error) {
	var j models.Job
	err := row.Scan(&j.ID, &j.BrandID, &j.CreatorID, &j.Title, &j.Status,
		&j.AmountCents, &j.Currency, &j.CreatedAt, &j.UpdatedAt)
	if err != nil {
		return nil, err
	}
	return &j, nil
}

func (r *JobRepo) Create(ctx context.Context, brandID uuid.UUID, title string, amountCents int64, currency string) (*models.Job, error) {
	return scanJob(r.pool.QueryRow(ctx, `
		INSERT INTO jobs (id, brand_id, title, status, amount_cents, currency)
		VALUES (gen_random_uuid(), $1, $2, 'OPEN', $3, $4)
		RETURNING `+jobColumns+`
	`, brandID, title, amountCents, currency))
}

func (r *JobRepo) GetByID(ctx context.Context, id uuid.UUID) (*models.Job, error) {
	return scanJob(r.pool.QueryRow(ctx, `
		SELECT `+jobColumns+` FROM jobs WHERE id = $1
	`, id))
}

func (r *JobRepo) GetByIDTx(ctx context.Context, tx pgx.Tx, id uuid.UUID) (*models.Job, error) {
	return scanJob(tx.QueryRow(ctx, `
		SELECT `+jobColumns+` FROM jobs WHERE id = $1
	`, id))
}

// AssignCreatorTx sets the creator on an OPEN job and marks it ASSIGNED.
// Returns false when the job was not OPEN.
func (r *JobRepo) AssignCreatorTx(ctx context.Context, tx pgx.Tx, id, creatorID uuid.UUID) (bool, error) {
	tag, err := tx.Exec(ctx, `
		UPDATE jobs SET creator_id = $2, status = 'ASSIGNED', updated_at = now()
		WHERE id = $1 AND status = 'OPEN'
	`, id, creatorID)
	if err != nil {
		return false, err
	}
	return tag.RowsAffected() == 1, nil
}

// SetStatusTx updates the job status (COMPLETED after release, REFUNDED after
// refund).
func (r *JobRepo) SetStatusTx(ctx context.Context, tx pgx.Tx, id uuid.UUID, status string) error {
	_, err := tx.Exec(ctx, `
		UPDATE jobs SET status = $2, updated_at = now() WHERE id = $1
	`, id, status)
	return err
}
