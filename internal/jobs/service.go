// Package jobs carries the minimal job surface the money flow depends on:
// enough to resolve a job to its brand, creator, and agreed amount, and to
// create the escrow when a creator is assigned. Full job lifecycle (drafting,
// applications, submissions) lives in the marketplace application.
package jobs

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"

	"github.com/briefmarket/backend/internal/models"
)

type Repo interface {
	Begin(ctx context.Context) (pgx.Tx, error)
	Create(ctx context.Context, brandID uuid.UUID, title string, amountCents int64, currency string) (*models.Job, error)
	GetByID(ctx context.Context, id uuid.UUID) (*models.Job, error)
	GetByIDTx(ctx context.Context, tx pgx.Tx, id uuid.UUID) (*models.Job, error)
	AssignCreatorTx(ctx context.Context, tx pgx.Tx, id, creatorID uuid.UUID) (bool, error)
}

// EscrowCreator is implemented by the escrow service; assignment and escrow
// creation commit on one transaction.
type EscrowCreator interface {
	CreateForJob(ctx context.Context, tx pgx.Tx, job *models.Job, creatorID uuid.UUID) (*models.Escrow, error)
}

// AssignResultKind classifies AssignCreator outcomes.
type AssignResultKind int

const (
	Assigned AssignResultKind = iota + 1
	AssignNotFound
	AssignNotOpen
)

func (k AssignResultKind) String() string {
	switch k {
	case Assigned:
		return "assigned"
	case AssignNotFound:
		return "job_not_found"
	case AssignNotOpen:
		return "not_open"
	default:
		return "unknown"
	}
}

type Service struct {
	repo    Repo
	escrows EscrowCreator
	log     *slog.Logger
}

func NewService(repo Repo, escrows EscrowCreator, log *slog.Logger) *Service {
	if log == nil {
		log = slog.Default()
	}
	return &Service{repo: repo, escrows: escrows, log: log}
}

func (s *Service) Create(ctx context.Context, brandID uuid.UUID, title string, amountCents int64, currency string) (*models.Job, error) {
	if amountCents <= 0 {
		return nil, fmt.Errorf("create job: amount must be positive, got %d", amountCents)
	}
	if currency == "" {
		currency = "USD"
	}
	return s.repo.Create(ctx, brandID, title, amountCents, currency)
}

func (s *Service) Get(ctx context.Context, id uuid.UUID) (*models.Job, error) {
	return s.repo.GetByID(ctx, id)
}

// AssignCreator moves an OPEN job to ASSIGNED and creates its UNFUNDED escrow
// in the same transaction, so an assigned job always has an escrow row.
func (s *Service) AssignCreator(ctx context.Context, jobID, creatorID uuid.UUID) (*models.Job, AssignResultKind, error) {
	tx, err := s.repo.Begin(ctx)
	if err != nil {
		return nil, 0, err
	}
	defer tx.Rollback(ctx)

	job, err := s.repo.GetByIDTx(ctx, tx, jobID)
	if err != nil {
		if err == pgx.ErrNoRows {
			return nil, AssignNotFound, nil
		}
		return nil, 0, err
	}

	assigned, err := s.repo.AssignCreatorTx(ctx, tx, jobID, creatorID)
	if err != nil {
		return nil, 0, err
	}
	if !assigned {
		return nil, AssignNotOpen, nil
	}

	if _, err := s.escrows.CreateForJob(ctx, tx, job, creatorID); err != nil {
		return nil, 0, fmt.Errorf("assign job %s: create escrow: %w", jobID, err)
	}

	if err := tx.Commit(ctx); err != nil {
		return nil, 0, err
	}
	s.log.Info("creator assigned", "job_id", jobID, "creator_id", creatorID)

	job.CreatorID = &creatorID
	job.Status = models.JobStatusAssigned
	return job, Assigned, nil
}
