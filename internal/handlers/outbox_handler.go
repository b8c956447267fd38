package handlers

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/briefmarket/backend/internal/metrics"
	"github.com/briefmarket/backend/internal/models"
	"github.com/briefmarket/backend/internal/outbox"
)

// OutboxRepoForHandler is the subset of the outbox repository the consumer
// endpoints need.
type OutboxRepoForHandler interface {
	ListAfter(ctx context.Context, createdAt time.Time, id int64, limit int) ([]*models.OutboxEvent, error)
	MarkProcessed(ctx context.Context, ids []int64) error
}

// OutboxHandler serves the consumer pull/ack protocol. The server keeps no
// per-consumer offsets; the cursor in the pull request is the only position.
type OutboxHandler struct {
	Repo   OutboxRepoForHandler
	Logger *slog.Logger
}

const (
	defaultPullLimit = 50
	maxPullLimit     = 100
)

type pullResponse struct {
	Events     []*models.OutboxEvent `json:"events"`
	NextCursor string                `json:"nextCursor"`
}

// Pull handles GET /outbox/pull?limit=N&cursor=C. Events come back ascending
// by (created_at, id), strictly after the cursor. Reads are non-destructive,
// so concurrent consumers see the same events.
func (h *OutboxHandler) Pull(w http.ResponseWriter, r *http.Request) {
	limit := defaultPullLimit
	if raw := r.URL.Query().Get("limit"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil {
			writeError(w, r, http.StatusBadRequest, "bad_request", "limit must be an integer")
			return
		}
		limit = n
	}
	if limit < 1 {
		limit = 1
	}
	if limit > maxPullLimit {
		limit = maxPullLimit
	}

	token := r.URL.Query().Get("cursor")
	cur, err := outbox.DecodeCursor(token)
	if err != nil {
		writeError(w, r, http.StatusBadRequest, "bad_request", "malformed cursor")
		return
	}

	events, err := h.Repo.ListAfter(r.Context(), cur.CreatedAt, cur.ID, limit)
	if err != nil {
		h.Logger.Error("outbox pull failed", "error", err)
		writeInternal(w, r)
		return
	}

	next := token
	if len(events) > 0 {
		next = outbox.After(events[len(events)-1]).Encode()
	}
	metrics.OutboxPulled.Add(float64(len(events)))
	if events == nil {
		events = []*models.OutboxEvent{}
	}
	writeData(w, r, http.StatusOK, pullResponse{Events: events, NextCursor: next})
}

type ackRequest struct {
	IDs []string `json:"ids"`
}

// Ack handles POST /outbox/ack. Marks processed_at where still unset;
// unknown and repeated ids are ignored so overlapping acks are harmless.
func (h *OutboxHandler) Ack(w http.ResponseWriter, r *http.Request) {
	var req ackRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, r, http.StatusBadRequest, "bad_request", "invalid JSON")
		return
	}
	ids := make([]int64, 0, len(req.IDs))
	for _, raw := range req.IDs {
		id, err := strconv.ParseInt(raw, 10, 64)
		if err != nil {
			writeError(w, r, http.StatusBadRequest, "bad_request", "ids must be numeric strings")
			return
		}
		ids = append(ids, id)
	}
	if err := h.Repo.MarkProcessed(r.Context(), ids); err != nil {
		h.Logger.Error("outbox ack failed", "count", len(ids), "error", err)
		writeInternal(w, r)
		return
	}
	metrics.OutboxAcked.Add(float64(len(ids)))
	writeData(w, r, http.StatusOK, map[string]int{"acked": len(ids)})
}
