// Package outbox implements the transactional-outbox producer and the opaque
// cursor tokens the pull protocol hands to consumers.
package outbox

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/jackc/pgx/v5"

	"github.com/briefmarket/backend/internal/models"
)

// Repo is the outbox repository interface the producer needs.
type Repo interface {
	InsertTx(ctx context.Context, tx pgx.Tx, eventType string, payload json.RawMessage) (*models.OutboxEvent, error)
}

// Producer appends event rows. EmitTx must be called inside the same
// transaction as the domain mutation it reports on: no event for an
// uncommitted change, no dropped event for a committed one.
type Producer struct {
	repo Repo
}

func NewProducer(repo Repo) *Producer {
	return &Producer{repo: repo}
}

// EmitTx marshals payload and appends one event row on the caller's tx.
func (p *Producer) EmitTx(ctx context.Context, tx pgx.Tx, eventType string, payload any) (*models.OutboxEvent, error) {
	raw, err := json.Marshal(payload)
	if err != nil {
		return nil, fmt.Errorf("outbox: marshal %s payload: %w", eventType, err)
	}
	ev, err := p.repo.InsertTx(ctx, tx, eventType, raw)
	if err != nil {
		return nil, fmt.Errorf("outbox: insert %s: %w", eventType, err)
	}
	return ev, nil
}
