package repository

import (
	"context"
	"encoding/json"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/briefmarket/backend/internal/models"
)

type OutboxRepo struct {
	pool *pgxpool.Pool
}

func NewOutboxRepo(pool *pgxpool.Pool) *OutboxRepo {
	return &OutboxRepo{pool: pool}
}

// InsertTx appends one event row inside the caller's transaction. This is the
// transactional-outbox guarantee: the event commits with the domain mutation
// or not at all.
func (r *OutboxRepo) InsertTx(ctx context.Context, tx pgx.Tx, eventType string, payload json.RawMessage) (*models.OutboxEvent, error) {
	var ev models.OutboxEvent
	ev.Type = eventType
	ev.Payload = payload
	err := tx.QueryRow(ctx, `
		INSERT INTO outbox_events (type, payload)
		VALUES ($1, $2)
		RETURNING id, created_at
	`, eventType, payload).Scan(&ev.ID, &ev.CreatedAt)
	if err != nil {
		return nil, err
	}
	return &ev, nil
}

// ListAfter returns up to limit events strictly after the (createdAt, id)
// position, ascending. Read-only: safe for any number of concurrent callers.
func (r *OutboxRepo) ListAfter(ctx context.Context, createdAt time.Time, id int64, limit int) ([]*models.OutboxEvent, error) {
	rows, err := r.pool.Query(ctx, `
		SELECT id, type, payload, created_at, processed_at
		FROM outbox_events
		WHERE (created_at, id) > ($1, $2)
		ORDER BY created_at ASC, id ASC
		LIMIT $3
	`, createdAt, id, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var list []*models.OutboxEvent
	for rows.Next() {
		var ev models.OutboxEvent
		if err := rows.Scan(&ev.ID, &ev.Type, &ev.Payload, &ev.CreatedAt, &ev.ProcessedAt); err != nil {
			return nil, err
		}
		list = append(list, &ev)
	}
	return list, rows.Err()
}

// MarkProcessed stamps processed_at on the given ids for audit/listing.
// Already-processed and unknown ids are ignored, so overlapping ack calls are
// harmless.
func (r *OutboxRepo) MarkProcessed(ctx context.Context, ids []int64) error {
	if len(ids) == 0 {
		return nil
	}
	_, err := r.pool.Exec(ctx, `
		UPDATE outbox_events SET processed_at = now()
		WHERE id = ANY($1) AND processed_at IS NULL
	`, ids)
	return err
}
