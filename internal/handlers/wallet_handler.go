package handlers

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"strconv"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"

	"github.com/briefmarket/backend/internal/middleware"
	"github.com/briefmarket/backend/internal/models"
)

type WalletRepoForHandler interface {
	GetByUserID(ctx context.Context, userID uuid.UUID) (*models.Wallet, error)
}

type LedgerRepoForHandler interface {
	ListByUserID(ctx context.Context, userID uuid.UUID, limit int) ([]*models.LedgerEntry, error)
}

// WalletHandler serves the actor's own wallet and ledger history.
type WalletHandler struct {
	Wallets WalletRepoForHandler
	Ledger  LedgerRepoForHandler
	Logger  *slog.Logger
}

// GetWallet handles GET /api/v1/wallet. A user with no wallet row yet reads
// as a zero balance, not a 404; the row appears on first credit.
func (h *WalletHandler) GetWallet(w http.ResponseWriter, r *http.Request) {
	actor, ok := middleware.ActorFromCtx(r.Context())
	if !ok {
		writeError(w, r, http.StatusUnauthorized, "unauthorized", "missing actor")
		return
	}
	wallet, err := h.Wallets.GetByUserID(r.Context(), actor.ID)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			writeData(w, r, http.StatusOK, models.Wallet{UserID: actor.ID, Currency: "USD"})
			return
		}
		h.Logger.Error("get wallet failed", "user_id", actor.ID, "error", err)
		writeInternal(w, r)
		return
	}
	writeData(w, r, http.StatusOK, wallet)
}

const defaultLedgerLimit = 100

// ListLedger handles GET /api/v1/ledger?limit=N, newest first.
func (h *WalletHandler) ListLedger(w http.ResponseWriter, r *http.Request) {
	actor, ok := middleware.ActorFromCtx(r.Context())
	if !ok {
		writeError(w, r, http.StatusUnauthorized, "unauthorized", "missing actor")
		return
	}
	limit := defaultLedgerLimit
	if raw := r.URL.Query().Get("limit"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n < 1 {
			writeError(w, r, http.StatusBadRequest, "bad_request", "limit must be a positive integer")
			return
		}
		if n < limit {
			limit = n
		}
	}
	entries, err := h.Ledger.ListByUserID(r.Context(), actor.ID, limit)
	if err != nil {
		h.Logger.Error("list ledger failed", "user_id", actor.ID, "error", err)
		writeInternal(w, r)
		return
	}
	if entries == nil {
		entries = []*models.LedgerEntry{}
	}
	writeData(w, r, http.StatusOK, map[string]any{"entries": entries})
}
