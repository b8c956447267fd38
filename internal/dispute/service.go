// Package dispute arbitrates disputes over funded jobs. Resolution delegates
// the money movement to the escrow state machine and only marks the dispute
// RESOLVED when the escrow reports the release/refund as applied, so a
// resolved dispute always has its money moved.
package dispute

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"

	"github.com/briefmarket/backend/internal/escrow"
	"github.com/briefmarket/backend/internal/models"
	"github.com/briefmarket/backend/internal/notify"
)

// Repo is the dispute row access the resolver needs.
type Repo interface {
	Begin(ctx context.Context) (pgx.Tx, error)
	CreateTx(ctx context.Context, tx pgx.Tx, jobID, openedBy uuid.UUID, reason string) (*models.Dispute, error)
	GetByID(ctx context.Context, id uuid.UUID) (*models.Dispute, error)
	GetByIDTx(ctx context.Context, tx pgx.Tx, id uuid.UUID) (*models.Dispute, error)
	HasOpenForJob(ctx context.Context, jobID uuid.UUID) (bool, error)
	ResolveTx(ctx context.Context, tx pgx.Tx, id uuid.UUID, resolution string, resolvedBy uuid.UUID) (bool, error)
	CancelTx(ctx context.Context, tx pgx.Tx, id, canceledBy uuid.UUID) (bool, error)
}

// EscrowMachine is the slice of the escrow service the resolver drives.
type EscrowMachine interface {
	Release(ctx context.Context, jobID, actorID uuid.UUID, source string) (escrow.ReleaseResult, error)
	Refund(ctx context.Context, jobID, actorID uuid.UUID, reason, source string) (escrow.RefundResult, error)
}

// Producer appends outbox events on the dispute transaction.
type Producer interface {
	EmitTx(ctx context.Context, tx pgx.Tx, eventType string, payload any) (*models.OutboxEvent, error)
}

type Service struct {
	disputes Repo
	escrows  EscrowMachine
	outbox   Producer
	notify   notify.InsertTxFunc
	log      *slog.Logger
}

func NewService(disputes Repo, escrows EscrowMachine, producer Producer, enqueueNotify notify.InsertTxFunc, log *slog.Logger) *Service {
	if log == nil {
		log = slog.Default()
	}
	return &Service{disputes: disputes, escrows: escrows, outbox: producer, notify: enqueueNotify, log: log}
}

// Open creates an OPEN dispute for the job. A job carries at most one open
// dispute at a time.
func (s *Service) Open(ctx context.Context, jobID, actorID uuid.UUID, reason string) (*models.Dispute, OpenResultKind, error) {
	open, err := s.disputes.HasOpenForJob(ctx, jobID)
	if err != nil {
		return nil, 0, err
	}
	if open {
		return nil, OpenAlreadyExists, nil
	}

	tx, err := s.disputes.Begin(ctx)
	if err != nil {
		return nil, 0, err
	}
	defer tx.Rollback(ctx)

	d, err := s.disputes.CreateTx(ctx, tx, jobID, actorID, reason)
	if err != nil {
		// A concurrent open that slipped past the HasOpenForJob check lands
		// on the partial unique index instead.
		if isUniqueViolation(err) {
			return nil, OpenAlreadyExists, nil
		}
		return nil, 0, err
	}
	if _, err := s.outbox.EmitTx(ctx, tx, models.EventDisputeOpened, map[string]any{
		"dispute_id": d.ID,
		"job_id":     jobID,
		"opened_by":  actorID,
		"reason":     reason,
	}); err != nil {
		return nil, 0, err
	}
	if err := tx.Commit(ctx); err != nil {
		return nil, 0, err
	}
	s.log.Info("dispute opened", "dispute_id", d.ID, "job_id", jobID)
	return d, Opened, nil
}

func isUniqueViolation(err error) bool {
	var pgErr *pgconn.PgError
	return errors.As(err, &pgErr) && pgErr.Code == "23505"
}

// ResolveRelease resolves an OPEN dispute by releasing the escrow to the
// creator.
func (s *Service) ResolveRelease(ctx context.Context, disputeID, actorID uuid.UUID, note string) (ResolveResult, error) {
	return s.resolve(ctx, disputeID, actorID, note, models.DisputeResolutionRelease)
}

// ResolveRefund resolves an OPEN dispute by refunding the escrow to the
// brand.
func (s *Service) ResolveRefund(ctx context.Context, disputeID, actorID uuid.UUID, note string) (ResolveResult, error) {
	return s.resolve(ctx, disputeID, actorID, note, models.DisputeResolutionRefund)
}

func (s *Service) resolve(ctx context.Context, disputeID, actorID uuid.UUID, note, resolution string) (ResolveResult, error) {
	d, err := s.disputes.GetByID(ctx, disputeID)
	if err != nil {
		if err == pgx.ErrNoRows {
			return ResolveResult{Kind: ResolveNotFound}, nil
		}
		return ResolveResult{}, err
	}

	switch d.Status {
	case models.DisputeStatusResolved:
		// Idempotent echo only when the requested resolution matches what
		// actually happened; the opposite direction is a real conflict.
		if d.Resolution != nil && *d.Resolution == resolution {
			return ResolveResult{Kind: AlreadyResolved, Resolution: resolution}, nil
		}
		return ResolveResult{Kind: ResolveOpposed}, nil
	case models.DisputeStatusCanceled:
		return ResolveResult{Kind: ResolveCanceledConflict}, nil
	case models.DisputeStatusOpen:
		// fall through to the real work
	default:
		return ResolveResult{}, fmt.Errorf("dispute %s: unexpected status %q", d.ID, d.Status)
	}

	// Move the money first. The dispute stays OPEN unless the escrow reports
	// the transition as applied (now or previously).
	if resolution == models.DisputeResolutionRelease {
		res, err := s.escrows.Release(ctx, d.JobID, actorID, "dispute")
		if err != nil {
			return ResolveResult{}, err
		}
		switch res.Kind {
		case escrow.Released, escrow.AlreadyReleased:
			// escrow applied, proceed to mark the dispute
		case escrow.ReleaseConflictRefunded:
			return ResolveResult{Kind: ResolveOpposed}, nil
		case escrow.ReleaseUnfunded:
			return ResolveResult{Kind: ResolveEscrowUnfunded}, nil
		case escrow.ReleaseMissing:
			return ResolveResult{Kind: ResolveEscrowMissing}, nil
		case escrow.ReleaseNoActiveCreator:
			return ResolveResult{Kind: ResolveNoActiveCreator}, nil
		case escrow.ReleaseJobNotFound:
			return ResolveResult{Kind: ResolveJobNotFound}, nil
		default:
			return ResolveResult{}, fmt.Errorf("dispute %s: unhandled release outcome %s", d.ID, res.Kind)
		}
	} else {
		res, err := s.escrows.Refund(ctx, d.JobID, actorID, note, "dispute")
		if err != nil {
			return ResolveResult{}, err
		}
		switch res.Kind {
		case escrow.Refunded, escrow.AlreadyRefunded:
			// escrow applied, proceed to mark the dispute
		case escrow.RefundConflictReleased:
			return ResolveResult{Kind: ResolveOpposed}, nil
		case escrow.RefundUnfunded:
			return ResolveResult{Kind: ResolveEscrowUnfunded}, nil
		case escrow.RefundMissing:
			return ResolveResult{Kind: ResolveEscrowMissing}, nil
		case escrow.RefundJobNotFound:
			return ResolveResult{Kind: ResolveJobNotFound}, nil
		default:
			return ResolveResult{}, fmt.Errorf("dispute %s: unhandled refund outcome %s", d.ID, res.Kind)
		}
	}

	tx, err := s.disputes.Begin(ctx)
	if err != nil {
		return ResolveResult{}, err
	}
	defer tx.Rollback(ctx)

	flipped, err := s.disputes.ResolveTx(ctx, tx, disputeID, resolution, actorID)
	if err != nil {
		return ResolveResult{}, err
	}
	if !flipped {
		// Lost a race: someone else transitioned the dispute first.
		current, err := s.disputes.GetByIDTx(ctx, tx, disputeID)
		if err != nil {
			return ResolveResult{}, err
		}
		if current.Status == models.DisputeStatusResolved && current.Resolution != nil && *current.Resolution == resolution {
			return ResolveResult{Kind: AlreadyResolved, Resolution: resolution}, nil
		}
		return ResolveResult{Kind: ResolveOpposed}, nil
	}

	// Outbox and notification ride the genuinely new transition only.
	if _, err := s.outbox.EmitTx(ctx, tx, models.EventDisputeResolved, map[string]any{
		"dispute_id":  disputeID,
		"job_id":      d.JobID,
		"resolution":  resolution,
		"resolved_by": actorID,
		"note":        note,
	}); err != nil {
		return ResolveResult{}, err
	}
	if s.notify != nil {
		if err := s.notify(ctx, tx, notify.Args{UserID: d.OpenedByUserID, Event: "dispute.resolved", JobID: d.JobID}); err != nil {
			return ResolveResult{}, err
		}
	}
	if err := tx.Commit(ctx); err != nil {
		return ResolveResult{}, err
	}
	s.log.Info("dispute resolved", "dispute_id", disputeID, "resolution", resolution)
	return ResolveResult{Kind: Resolved, Resolution: resolution}, nil
}

// Cancel closes an OPEN dispute without touching the escrow.
func (s *Service) Cancel(ctx context.Context, disputeID, actorID uuid.UUID) (ResolveResult, error) {
	d, err := s.disputes.GetByID(ctx, disputeID)
	if err != nil {
		if err == pgx.ErrNoRows {
			return ResolveResult{Kind: ResolveNotFound}, nil
		}
		return ResolveResult{}, err
	}
	switch d.Status {
	case models.DisputeStatusCanceled:
		return ResolveResult{Kind: AlreadyCanceled}, nil
	case models.DisputeStatusResolved:
		return ResolveResult{Kind: ResolveOpposed}, nil
	}

	tx, err := s.disputes.Begin(ctx)
	if err != nil {
		return ResolveResult{}, err
	}
	defer tx.Rollback(ctx)

	flipped, err := s.disputes.CancelTx(ctx, tx, disputeID, actorID)
	if err != nil {
		return ResolveResult{}, err
	}
	if !flipped {
		return ResolveResult{Kind: ResolveOpposed}, nil
	}
	if _, err := s.outbox.EmitTx(ctx, tx, models.EventDisputeCanceled, map[string]any{
		"dispute_id":  disputeID,
		"job_id":      d.JobID,
		"canceled_by": actorID,
	}); err != nil {
		return ResolveResult{}, err
	}
	if err := tx.Commit(ctx); err != nil {
		return ResolveResult{}, err
	}
	return ResolveResult{Kind: Canceled}, nil
}
