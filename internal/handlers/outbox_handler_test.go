package handlers

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/briefmarket/backend/internal/models"
	"github.com/briefmarket/backend/internal/outbox"
)

// ---------------------------------------------------------------------------
// Mocks
// ---------------------------------------------------------------------------

type stubOutboxRepo struct {
	events []*models.OutboxEvent
	marked []int64
}

func (s *stubOutboxRepo) ListAfter(_ context.Context, createdAt time.Time, id int64, limit int) ([]*models.OutboxEvent, error) {
	var out []*models.OutboxEvent
	for _, ev := range s.events {
		after := ev.CreatedAt.After(createdAt) || (ev.CreatedAt.Equal(createdAt) && ev.ID > id)
		if after {
			out = append(out, ev)
		}
		if len(out) == limit {
			break
		}
	}
	return out, nil
}

func (s *stubOutboxRepo) MarkProcessed(_ context.Context, ids []int64) error {
	s.marked = append(s.marked, ids...)
	return nil
}

func seedEvents(n int) *stubOutboxRepo {
	base := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	s := &stubOutboxRepo{}
	for i := 0; i < n; i++ {
		s.events = append(s.events, &models.OutboxEvent{
			ID:        int64(i + 1),
			Type:      models.EventEscrowFunded,
			Payload:   json.RawMessage(`{}`),
			CreatedAt: base.Add(time.Duration(i) * time.Second),
		})
	}
	return s
}

type pullEnvelope struct {
	OK   bool `json:"ok"`
	Data struct {
		Events     []models.OutboxEvent `json:"events"`
		NextCursor string               `json:"nextCursor"`
	} `json:"data"`
	RequestID string `json:"requestId"`
}

func doPull(t *testing.T, h *OutboxHandler, query string) (*httptest.ResponseRecorder, pullEnvelope) {
	t.Helper()
	req := httptest.NewRequest(http.MethodGet, "/outbox/pull"+query, nil)
	rec := httptest.NewRecorder()
	h.Pull(rec, req)
	var env pullEnvelope
	if rec.Code == http.StatusOK {
		if err := json.Unmarshal(rec.Body.Bytes(), &env); err != nil {
			t.Fatalf("decode response: %v", err)
		}
	}
	return rec, env
}

// ---------------------------------------------------------------------------
// Tests
// ---------------------------------------------------------------------------

func TestPull_PagesInOrder(t *testing.T) {
	repo := seedEvents(5)
	h := &OutboxHandler{Repo: repo, Logger: slog.Default()}

	rec, env := doPull(t, h, "?limit=2")
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", rec.Code, rec.Body.String())
	}
	if len(env.Data.Events) != 2 || env.Data.Events[0].ID != 1 || env.Data.Events[1].ID != 2 {
		t.Fatalf("first page: %+v", env.Data.Events)
	}

	// The cursor resumes strictly after the last event of the page.
	rec, env2 := doPull(t, h, "?limit=2&cursor="+env.Data.NextCursor)
	if rec.Code != http.StatusOK {
		t.Fatalf("second page: %d", rec.Code)
	}
	if len(env2.Data.Events) != 2 || env2.Data.Events[0].ID != 3 {
		t.Fatalf("second page: %+v", env2.Data.Events)
	}

	// Pulling is non-destructive: the same cursor replays the same page.
	_, again := doPull(t, h, "?limit=2&cursor="+env.Data.NextCursor)
	if len(again.Data.Events) != 2 || again.Data.Events[0].ID != 3 {
		t.Errorf("replayed page differs: %+v", again.Data.Events)
	}
}

func TestPull_LimitClamping(t *testing.T) {
	repo := seedEvents(150)
	h := &OutboxHandler{Repo: repo, Logger: slog.Default()}

	_, env := doPull(t, h, "?limit=500")
	if got := len(env.Data.Events); got != maxPullLimit {
		t.Errorf("limit=500: got %d events, want clamp to %d", got, maxPullLimit)
	}
	_, env = doPull(t, h, "?limit=0")
	if got := len(env.Data.Events); got != 1 {
		t.Errorf("limit=0: got %d events, want clamp to 1", got)
	}
	_, env = doPull(t, h, "")
	if got := len(env.Data.Events); got != defaultPullLimit {
		t.Errorf("no limit: got %d events, want default %d", got, defaultPullLimit)
	}
}

func TestPull_BadCursor(t *testing.T) {
	h := &OutboxHandler{Repo: seedEvents(1), Logger: slog.Default()}
	rec, _ := doPull(t, h, "?cursor=not-a-cursor!!")
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("expected 400, got %d", rec.Code)
	}
	if !strings.Contains(rec.Body.String(), `"code":"bad_request"`) {
		t.Errorf("body: %s", rec.Body.String())
	}
}

func TestPull_EmptyLogKeepsCursor(t *testing.T) {
	h := &OutboxHandler{Repo: seedEvents(2), Logger: slog.Default()}

	_, first := doPull(t, h, "")
	// Drained: pulling from the end returns no events and echoes the cursor.
	_, empty := doPull(t, h, "?cursor="+first.Data.NextCursor)
	if len(empty.Data.Events) != 0 {
		t.Fatalf("expected empty page, got %+v", empty.Data.Events)
	}
	if empty.Data.NextCursor != first.Data.NextCursor {
		t.Errorf("empty page must echo the cursor: got %q, want %q", empty.Data.NextCursor, first.Data.NextCursor)
	}
}

func TestAck(t *testing.T) {
	repo := seedEvents(3)
	h := &OutboxHandler{Repo: repo, Logger: slog.Default()}

	body := strings.NewReader(`{"ids":["1","3"]}`)
	req := httptest.NewRequest(http.MethodPost, "/outbox/ack", body)
	rec := httptest.NewRecorder()
	h.Ack(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", rec.Code, rec.Body.String())
	}
	if len(repo.marked) != 2 || repo.marked[0] != 1 || repo.marked[1] != 3 {
		t.Errorf("marked: %v", repo.marked)
	}
}

func TestAck_RejectsNonNumericIDs(t *testing.T) {
	h := &OutboxHandler{Repo: seedEvents(0), Logger: slog.Default()}
	req := httptest.NewRequest(http.MethodPost, "/outbox/ack", strings.NewReader(`{"ids":["abc"]}`))
	rec := httptest.NewRecorder()
	h.Ack(rec, req)
	if rec.Code != http.StatusBadRequest {
		t.Errorf("expected 400, got %d", rec.Code)
	}
}

func TestCursorTokenRoundTripsThroughHandler(t *testing.T) {
	repo := seedEvents(1)
	h := &OutboxHandler{Repo: repo, Logger: slog.Default()}
	_, env := doPull(t, h, "")
	cur, err := outbox.DecodeCursor(env.Data.NextCursor)
	if err != nil {
		t.Fatalf("decode handler cursor: %v", err)
	}
	if cur.ID != 1 {
		t.Errorf("cursor id: got %d, want 1", cur.ID)
	}
}
