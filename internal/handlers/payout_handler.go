package handlers

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"

	"github.com/google/uuid"

	"github.com/briefmarket/backend/internal/metrics"
	"github.com/briefmarket/backend/internal/middleware"
	"github.com/briefmarket/backend/internal/models"
	"github.com/briefmarket/backend/internal/payout"
)

type PayoutService interface {
	Request(ctx context.Context, payoutID, userID uuid.UUID, amountCents int64) (*models.Payout, payout.RequestResultKind, error)
	Approve(ctx context.Context, payoutID, adminID uuid.UUID) (payout.DecideResultKind, error)
	Reject(ctx context.Context, payoutID, adminID uuid.UUID, reason string) (payout.DecideResultKind, error)
}

type PayoutHandler struct {
	Svc    PayoutService
	Logger *slog.Logger
}

type payoutRequestBody struct {
	// ID is the client-chosen idempotency key; retries with the same id echo
	// the original payout instead of double-debiting.
	ID          string `json:"id"`
	AmountCents int64  `json:"amount_cents"`
}

// Request handles POST /api/v1/payouts.
func (h *PayoutHandler) Request(w http.ResponseWriter, r *http.Request) {
	actor, ok := middleware.ActorFromCtx(r.Context())
	if !ok {
		writeError(w, r, http.StatusUnauthorized, "unauthorized", "missing actor")
		return
	}
	var req payoutRequestBody
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, r, http.StatusBadRequest, "bad_request", "invalid JSON")
		return
	}
	payoutID, err := uuid.Parse(req.ID)
	if err != nil {
		writeError(w, r, http.StatusBadRequest, "bad_request", "id must be a client-generated UUID")
		return
	}

	p, kind, err := h.Svc.Request(r.Context(), payoutID, actor.ID, req.AmountCents)
	if err != nil {
		h.Logger.Error("payout request failed", "payout_id", payoutID, "error", err)
		writeInternal(w, r)
		return
	}
	metrics.PayoutOps.WithLabelValues("request", kind.String()).Inc()

	switch kind {
	case payout.RequestOK:
		writeData(w, r, http.StatusCreated, p)
	case payout.RequestAlreadyExists:
		writeData(w, r, http.StatusOK, p)
	case payout.RequestInvalidAmount:
		writeError(w, r, http.StatusBadRequest, "bad_request", "amount_cents must be positive")
	case payout.RequestInsufficientFunds:
		writeError(w, r, http.StatusPaymentRequired, "insufficient_funds", "wallet balance does not cover the payout")
	default:
		h.Logger.Error("unhandled payout request outcome", "payout_id", payoutID, "kind", kind)
		writeInternal(w, r)
	}
}

// Approve handles POST /api/v1/payouts/{id}/approve.
func (h *PayoutHandler) Approve(w http.ResponseWriter, r *http.Request) {
	h.decide(w, r, "approve", func(ctx context.Context, id, adminID uuid.UUID, _ string) (payout.DecideResultKind, error) {
		return h.Svc.Approve(ctx, id, adminID)
	})
}

type rejectRequest struct {
	Reason string `json:"reason"`
}

// Reject handles POST /api/v1/payouts/{id}/reject.
func (h *PayoutHandler) Reject(w http.ResponseWriter, r *http.Request) {
	h.decide(w, r, "reject", h.Svc.Reject)
}

func (h *PayoutHandler) decide(w http.ResponseWriter, r *http.Request, op string, call func(context.Context, uuid.UUID, uuid.UUID, string) (payout.DecideResultKind, error)) {
	actor, ok := middleware.ActorFromCtx(r.Context())
	if !ok {
		writeError(w, r, http.StatusUnauthorized, "unauthorized", "missing actor")
		return
	}
	if actor.Role != "admin" {
		writeError(w, r, http.StatusForbidden, "forbidden", "payout decisions require the admin role")
		return
	}
	payoutID, err := uuid.Parse(r.PathValue("id"))
	if err != nil {
		writeError(w, r, http.StatusBadRequest, "bad_request", "invalid payout id")
		return
	}
	var req rejectRequest
	if r.Body != nil {
		_ = json.NewDecoder(r.Body).Decode(&req)
	}

	kind, err := call(r.Context(), payoutID, actor.ID, req.Reason)
	if err != nil {
		h.Logger.Error("payout decision failed", "op", op, "payout_id", payoutID, "error", err)
		writeInternal(w, r)
		return
	}
	metrics.PayoutOps.WithLabelValues(op, kind.String()).Inc()

	switch kind {
	case payout.Approved, payout.AlreadyApproved, payout.Rejected, payout.AlreadyRejected:
		writeData(w, r, http.StatusOK, map[string]string{"status": kind.String()})
	case payout.DecideNotFound:
		writeError(w, r, http.StatusNotFound, "not_found", "payout not found")
	case payout.DecideOpposed:
		writeError(w, r, http.StatusConflict, kind.String(), "the opposite decision already applied")
	default:
		h.Logger.Error("unhandled payout decision outcome", "op", op, "payout_id", payoutID, "kind", kind)
		writeInternal(w, r)
	}
}
