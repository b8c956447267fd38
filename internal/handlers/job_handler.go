package handlers

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"

	"github.com/briefmarket/backend/internal/jobs"
	"github.com/briefmarket/backend/internal/middleware"
	"github.com/briefmarket/backend/internal/models"
)

type JobService interface {
	Create(ctx context.Context, brandID uuid.UUID, title string, amountCents int64, currency string) (*models.Job, error)
	Get(ctx context.Context, id uuid.UUID) (*models.Job, error)
	AssignCreator(ctx context.Context, jobID, creatorID uuid.UUID) (*models.Job, jobs.AssignResultKind, error)
}

// JobHandler serves the minimal job surface: create, read, assign. The full
// marketplace job lifecycle lives in another service.
type JobHandler struct {
	Svc    JobService
	Logger *slog.Logger
}

type createJobRequest struct {
	Title       string `json:"title"`
	AmountCents int64  `json:"amount_cents"`
	Currency    string `json:"currency"`
}

// Create handles POST /api/v1/jobs.
func (h *JobHandler) Create(w http.ResponseWriter, r *http.Request) {
	actor, ok := middleware.ActorFromCtx(r.Context())
	if !ok {
		writeError(w, r, http.StatusUnauthorized, "unauthorized", "missing actor")
		return
	}
	var req createJobRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, r, http.StatusBadRequest, "bad_request", "invalid JSON")
		return
	}
	if req.Title == "" || req.AmountCents <= 0 {
		writeError(w, r, http.StatusBadRequest, "bad_request", "title and a positive amount_cents are required")
		return
	}
	job, err := h.Svc.Create(r.Context(), actor.ID, req.Title, req.AmountCents, req.Currency)
	if err != nil {
		h.Logger.Error("create job failed", "error", err)
		writeInternal(w, r)
		return
	}
	writeData(w, r, http.StatusCreated, job)
}

// Get handles GET /api/v1/jobs/{id}.
func (h *JobHandler) Get(w http.ResponseWriter, r *http.Request) {
	jobID, ok := jobIDFromPath(w, r)
	if !ok {
		return
	}
	job, err := h.Svc.Get(r.Context(), jobID)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			writeError(w, r, http.StatusNotFound, "not_found", "job not found")
			return
		}
		h.Logger.Error("get job failed", "job_id", jobID, "error", err)
		writeInternal(w, r)
		return
	}
	writeData(w, r, http.StatusOK, job)
}

type assignRequest struct {
	CreatorID string `json:"creator_id"`
}

// Assign handles POST /api/v1/jobs/{id}/assign.
func (h *JobHandler) Assign(w http.ResponseWriter, r *http.Request) {
	jobID, ok := jobIDFromPath(w, r)
	if !ok {
		return
	}
	var req assignRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, r, http.StatusBadRequest, "bad_request", "invalid JSON")
		return
	}
	creatorID, err := uuid.Parse(req.CreatorID)
	if err != nil {
		writeError(w, r, http.StatusBadRequest, "bad_request", "invalid creator_id")
		return
	}

	job, kind, err := h.Svc.AssignCreator(r.Context(), jobID, creatorID)
	if err != nil {
		h.Logger.Error("assign creator failed", "job_id", jobID, "error", err)
		writeInternal(w, r)
		return
	}
	switch kind {
	case jobs.Assigned:
		writeData(w, r, http.StatusOK, job)
	case jobs.AssignNotFound:
		writeError(w, r, http.StatusNotFound, "not_found", "job not found")
	case jobs.AssignNotOpen:
		writeError(w, r, http.StatusConflict, "not_open", "job is not open for assignment")
	default:
		writeInternal(w, r)
	}
}
