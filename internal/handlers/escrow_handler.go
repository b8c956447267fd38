package handlers

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"

	"github.com/google/uuid"

	"github.com/briefmarket/backend/internal/escrow"
	"github.com/briefmarket/backend/internal/metrics"
	"github.com/briefmarket/backend/internal/middleware"
)

// EscrowService is the slice of the escrow state machine the handler drives.
type EscrowService interface {
	Fund(ctx context.Context, jobID uuid.UUID) (escrow.FundResult, error)
	Release(ctx context.Context, jobID, actorID uuid.UUID, source string) (escrow.ReleaseResult, error)
	Refund(ctx context.Context, jobID, actorID uuid.UUID, reason, source string) (escrow.RefundResult, error)
}

// EscrowHandler serves POST /api/v1/jobs/{id}/escrow/{fund,release,refund}.
// Typed service outcomes map to status codes; conflicts carry the losing
// terminal state as the machine-readable error code.
type EscrowHandler struct {
	Svc    EscrowService
	Logger *slog.Logger
}

func (h *EscrowHandler) Fund(w http.ResponseWriter, r *http.Request) {
	jobID, ok := jobIDFromPath(w, r)
	if !ok {
		return
	}
	res, err := h.Svc.Fund(r.Context(), jobID)
	if err != nil {
		h.Logger.Error("fund failed", "job_id", jobID, "error", err)
		writeInternal(w, r)
		return
	}
	metrics.EscrowOps.WithLabelValues("fund", res.Kind.String()).Inc()

	switch res.Kind {
	case escrow.FundOK, escrow.FundAlreadyFunded:
		writeData(w, r, http.StatusOK, map[string]string{"status": res.Kind.String()})
	case escrow.FundInsufficientFunds:
		writeError(w, r, http.StatusPaymentRequired, "insufficient_funds", "wallet balance does not cover the escrow amount")
	case escrow.FundMissing, escrow.FundJobNotFound:
		writeError(w, r, http.StatusNotFound, "not_found", "job or escrow not found")
	case escrow.FundReleased, escrow.FundRefunded:
		writeError(w, r, http.StatusConflict, res.Kind.String(), "escrow already in a terminal state")
	default:
		h.Logger.Error("unhandled fund outcome", "job_id", jobID, "kind", res.Kind)
		writeInternal(w, r)
	}
}

type releaseResponse struct {
	Status          string `json:"status"`
	PayoutCents     int64  `json:"payout_cents"`
	PayoutCurrency  string `json:"payout_currency"`
	CommissionCents int64  `json:"commission_cents"`
}

func (h *EscrowHandler) Release(w http.ResponseWriter, r *http.Request) {
	jobID, ok := jobIDFromPath(w, r)
	if !ok {
		return
	}
	actor, ok := middleware.ActorFromCtx(r.Context())
	if !ok {
		writeError(w, r, http.StatusUnauthorized, "unauthorized", "missing actor")
		return
	}
	res, err := h.Svc.Release(r.Context(), jobID, actor.ID, "api")
	if err != nil {
		h.Logger.Error("release failed", "job_id", jobID, "error", err)
		writeInternal(w, r)
		return
	}
	metrics.EscrowOps.WithLabelValues("release", res.Kind.String()).Inc()

	switch res.Kind {
	case escrow.Released, escrow.AlreadyReleased:
		writeData(w, r, http.StatusOK, releaseResponse{
			Status:          res.Kind.String(),
			PayoutCents:     res.PayoutCents,
			PayoutCurrency:  res.PayoutCurrency,
			CommissionCents: res.CommissionCents,
		})
	case escrow.ReleaseMissing, escrow.ReleaseJobNotFound:
		writeError(w, r, http.StatusNotFound, "not_found", "job or escrow not found")
	case escrow.ReleaseConflictRefunded, escrow.ReleaseUnfunded, escrow.ReleaseNoActiveCreator:
		writeError(w, r, http.StatusConflict, res.Kind.String(), "escrow is not releasable")
	default:
		h.Logger.Error("unhandled release outcome", "job_id", jobID, "kind", res.Kind)
		writeInternal(w, r)
	}
}

type refundRequest struct {
	Reason string `json:"reason"`
}

func (h *EscrowHandler) Refund(w http.ResponseWriter, r *http.Request) {
	jobID, ok := jobIDFromPath(w, r)
	if !ok {
		return
	}
	actor, ok := middleware.ActorFromCtx(r.Context())
	if !ok {
		writeError(w, r, http.StatusUnauthorized, "unauthorized", "missing actor")
		return
	}
	var req refundRequest
	if r.Body != nil {
		// Reason is optional; an empty body is fine.
		_ = json.NewDecoder(r.Body).Decode(&req)
	}
	res, err := h.Svc.Refund(r.Context(), jobID, actor.ID, req.Reason, "api")
	if err != nil {
		h.Logger.Error("refund failed", "job_id", jobID, "error", err)
		writeInternal(w, r)
		return
	}
	metrics.EscrowOps.WithLabelValues("refund", res.Kind.String()).Inc()

	switch res.Kind {
	case escrow.Refunded, escrow.AlreadyRefunded:
		writeData(w, r, http.StatusOK, map[string]string{"status": res.Kind.String()})
	case escrow.RefundMissing, escrow.RefundJobNotFound:
		writeError(w, r, http.StatusNotFound, "not_found", "job or escrow not found")
	case escrow.RefundConflictReleased, escrow.RefundUnfunded:
		writeError(w, r, http.StatusConflict, res.Kind.String(), "escrow is not refundable")
	default:
		h.Logger.Error("unhandled refund outcome", "job_id", jobID, "kind", res.Kind)
		writeInternal(w, r)
	}
}

func jobIDFromPath(w http.ResponseWriter, r *http.Request) (uuid.UUID, bool) {
	id, err := uuid.Parse(r.PathValue("id"))
	if err != nil {
		writeError(w, r, http.StatusBadRequest, "bad_request", "invalid job id")
		return uuid.Nil, false
	}
	return id, true
}
