package handlers

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"

	"github.com/google/uuid"

	"github.com/briefmarket/backend/internal/dispute"
	"github.com/briefmarket/backend/internal/metrics"
	"github.com/briefmarket/backend/internal/middleware"
	"github.com/briefmarket/backend/internal/models"
)

type DisputeService interface {
	Open(ctx context.Context, jobID, actorID uuid.UUID, reason string) (*models.Dispute, dispute.OpenResultKind, error)
	ResolveRelease(ctx context.Context, disputeID, actorID uuid.UUID, note string) (dispute.ResolveResult, error)
	ResolveRefund(ctx context.Context, disputeID, actorID uuid.UUID, note string) (dispute.ResolveResult, error)
	Cancel(ctx context.Context, disputeID, actorID uuid.UUID) (dispute.ResolveResult, error)
}

type DisputeHandler struct {
	Svc    DisputeService
	Logger *slog.Logger
}

type openDisputeRequest struct {
	JobID  string `json:"job_id"`
	Reason string `json:"reason"`
}

// Open handles POST /api/v1/disputes.
func (h *DisputeHandler) Open(w http.ResponseWriter, r *http.Request) {
	actor, ok := middleware.ActorFromCtx(r.Context())
	if !ok {
		writeError(w, r, http.StatusUnauthorized, "unauthorized", "missing actor")
		return
	}
	var req openDisputeRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, r, http.StatusBadRequest, "bad_request", "invalid JSON")
		return
	}
	jobID, err := uuid.Parse(req.JobID)
	if err != nil {
		writeError(w, r, http.StatusBadRequest, "bad_request", "invalid job_id")
		return
	}
	if req.Reason == "" {
		writeError(w, r, http.StatusBadRequest, "bad_request", "reason is required")
		return
	}

	d, kind, err := h.Svc.Open(r.Context(), jobID, actor.ID, req.Reason)
	if err != nil {
		h.Logger.Error("open dispute failed", "job_id", jobID, "error", err)
		writeInternal(w, r)
		return
	}
	metrics.DisputeOps.WithLabelValues("open", "ok").Inc()
	switch kind {
	case dispute.Opened:
		writeData(w, r, http.StatusCreated, d)
	case dispute.OpenAlreadyExists:
		writeError(w, r, http.StatusConflict, "already_open", "job already has an open dispute")
	default:
		writeInternal(w, r)
	}
}

// ResolveRelease handles POST /api/v1/disputes/{id}/resolve-release.
func (h *DisputeHandler) ResolveRelease(w http.ResponseWriter, r *http.Request) {
	h.decide(w, r, "resolve-release", h.Svc.ResolveRelease)
}

// ResolveRefund handles POST /api/v1/disputes/{id}/resolve-refund.
func (h *DisputeHandler) ResolveRefund(w http.ResponseWriter, r *http.Request) {
	h.decide(w, r, "resolve-refund", h.Svc.ResolveRefund)
}

// Cancel handles POST /api/v1/disputes/{id}/cancel.
func (h *DisputeHandler) Cancel(w http.ResponseWriter, r *http.Request) {
	h.decide(w, r, "cancel", func(ctx context.Context, id, actorID uuid.UUID, _ string) (dispute.ResolveResult, error) {
		return h.Svc.Cancel(ctx, id, actorID)
	})
}

type resolveRequest struct {
	Note string `json:"note"`
}

func (h *DisputeHandler) decide(w http.ResponseWriter, r *http.Request, op string, call func(context.Context, uuid.UUID, uuid.UUID, string) (dispute.ResolveResult, error)) {
	actor, ok := middleware.ActorFromCtx(r.Context())
	if !ok {
		writeError(w, r, http.StatusUnauthorized, "unauthorized", "missing actor")
		return
	}
	disputeID, err := uuid.Parse(r.PathValue("id"))
	if err != nil {
		writeError(w, r, http.StatusBadRequest, "bad_request", "invalid dispute id")
		return
	}
	var req resolveRequest
	if r.Body != nil {
		_ = json.NewDecoder(r.Body).Decode(&req)
	}

	res, err := call(r.Context(), disputeID, actor.ID, req.Note)
	if err != nil {
		h.Logger.Error("dispute transition failed", "op", op, "dispute_id", disputeID, "error", err)
		writeInternal(w, r)
		return
	}
	metrics.DisputeOps.WithLabelValues(op, res.Kind.String()).Inc()

	switch res.Kind {
	case dispute.Resolved, dispute.AlreadyResolved:
		writeData(w, r, http.StatusOK, map[string]string{
			"status":     res.Kind.String(),
			"resolution": res.Resolution,
		})
	case dispute.Canceled, dispute.AlreadyCanceled:
		writeData(w, r, http.StatusOK, map[string]string{"status": res.Kind.String()})
	case dispute.ResolveNotFound:
		writeError(w, r, http.StatusNotFound, "not_found", "dispute not found")
	case dispute.ResolveOpposed, dispute.ResolveCanceledConflict,
		dispute.ResolveEscrowUnfunded, dispute.ResolveNoActiveCreator:
		writeError(w, r, http.StatusConflict, res.Kind.String(), "dispute cannot take this transition")
	case dispute.ResolveEscrowMissing, dispute.ResolveJobNotFound:
		writeError(w, r, http.StatusNotFound, res.Kind.String(), "job or escrow not found")
	default:
		h.Logger.Error("unhandled dispute outcome", "op", op, "dispute_id", disputeID, "kind", res.Kind)
		writeInternal(w, r)
	}
}
