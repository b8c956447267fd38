// Package notify delivers user notifications through the external
// notification API. Jobs are enqueued with River's InsertTx in the same
// database transaction as the financial commit, so a committed money movement
// always has a queued notification and an aborted one never does. Delivery
// failures are retried by River across process restarts.
package notify

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/riverqueue/river"

	"github.com/briefmarket/backend/internal/retryhttp"
)

// Args is the payload of one notification job.
type Args struct {
	UserID uuid.UUID `json:"user_id"`
	Event  string    `json:"event"`
	JobID  uuid.UUID `json:"job_id"`
}

func (Args) Kind() string { return "send_notification" }

// InsertTxFunc enqueues a notification within the given transaction.
// Provided by main using river.Client.InsertTx.
type InsertTxFunc func(ctx context.Context, tx pgx.Tx, args Args) error

// Worker POSTs each notification to the configured endpoint through the
// shared retry client.
type Worker struct {
	river.WorkerDefaults[Args]
	client *retryhttp.Client
	url    string
	token  string
	log    *slog.Logger
}

func NewWorker(client *retryhttp.Client, url, token string, log *slog.Logger) *Worker {
	if log == nil {
		log = slog.Default()
	}
	return &Worker{client: client, url: url, token: token, log: log}
}

func (w *Worker) Work(ctx context.Context, job *river.Job[Args]) error {
	if w.url == "" {
		// No endpoint configured: drop, but keep the audit trail in logs.
		w.log.Warn("notification endpoint not configured, dropping",
			"user_id", job.Args.UserID, "event", job.Args.Event)
		return nil
	}
	body := map[string]any{
		"user_id": job.Args.UserID,
		"event":   job.Args.Event,
		"job_id":  job.Args.JobID,
	}
	var resp struct {
		OK bool `json:"ok"`
	}
	if err := w.client.PostJSON(ctx, "notify", w.url, w.token, body, &resp); err != nil {
		// Returning the error hands the retry schedule to River.
		return fmt.Errorf("send notification for user %s: %w", job.Args.UserID, err)
	}
	w.log.Info("notification delivered", "user_id", job.Args.UserID, "event", job.Args.Event)
	return nil
}
