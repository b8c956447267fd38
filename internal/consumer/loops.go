// Package consumer implements the external worker's two loops: draining the
// marketplace outbox into the forwarding webhook, and polling the chat
// provider for inbound messages. Each loop owns one persisted cursor and
// nothing else; a crash at any point replays at most one overlapping batch,
// which the dedup window absorbs.
package consumer

import (
	"context"
	"log/slog"
	"strconv"
	"time"

	"github.com/briefmarket/backend/internal/models"
	"github.com/briefmarket/backend/internal/outbox"
	"github.com/briefmarket/backend/internal/retryhttp"
)

// envelope mirrors the API response wrapper.
type envelope[T any] struct {
	OK   bool   `json:"ok"`
	Data T      `json:"data"`
	Err  *struct {
		Code    string `json:"code"`
		Message string `json:"message"`
	} `json:"error"`
}

type pullData struct {
	Events     []models.OutboxEvent `json:"events"`
	NextCursor string               `json:"nextCursor"`
}

// Drainer pulls outbox events, forwards them, acks them, and advances the
// persisted cursor.
type Drainer struct {
	Client       *retryhttp.Client
	APIBase      string
	Secret       string
	ForwardURL   string
	ForwardToken string
	Cursors      *CursorStore
	Dedup        *Dedup
	Interval     time.Duration
	Limit        int
	Log          *slog.Logger
}

// Run drains until the context is cancelled. Cycle errors are logged and the
// next tick retries from the persisted cursor.
func (d *Drainer) Run(ctx context.Context) {
	log := d.logger()
	interval := d.Interval
	if interval <= 0 {
		interval = 5 * time.Second
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	log.Info("outbox drain loop started", "interval", interval)
	for {
		if err := d.DrainOnce(ctx); err != nil {
			if ctx.Err() != nil {
				log.Info("outbox drain loop stopped")
				return
			}
			log.Error("drain cycle failed", "error", err)
		}
		d.Dedup.Sweep()

		select {
		case <-ctx.Done():
			log.Info("outbox drain loop stopped")
			return
		case <-ticker.C:
		}
	}
}

// DrainOnce performs one pull/apply/ack cycle. The cursor only advances past
// events that were forwarded (or recognized as duplicates), so a failed
// forward is retried on the next cycle.
func (d *Drainer) DrainOnce(ctx context.Context) error {
	log := d.logger()
	limit := d.Limit
	if limit <= 0 || limit > 100 {
		limit = 100
	}
	cursor := d.Cursors.Get(CursorKeyOutbox)

	url := d.APIBase + "/outbox/pull?limit=" + strconv.Itoa(limit)
	if cursor != "" {
		url += "&cursor=" + cursor
	}
	var resp envelope[pullData]
	if err := d.Client.GetJSON(ctx, "outbox-pull", url, d.Secret, &resp); err != nil {
		return err
	}
	if len(resp.Data.Events) == 0 {
		return nil
	}

	var acked []string
	var lastApplied *models.OutboxEvent
	for i := range resp.Data.Events {
		ev := &resp.Data.Events[i]
		id := strconv.FormatInt(ev.ID, 10)
		if d.Dedup.Seen(id) {
			log.Debug("skipping duplicate event", "event_id", id, "type", ev.Type)
		} else if err := d.forward(ctx, ev); err != nil {
			// Ack and advance only through the applied prefix; this event is
			// pulled again next cycle and must not look like a duplicate.
			d.Dedup.Forget(id)
			log.Error("forward failed, stopping batch", "event_id", id, "type", ev.Type, "error", err)
			break
		}
		acked = append(acked, id)
		lastApplied = ev
	}
	if lastApplied == nil {
		return nil
	}

	ackURL := d.APIBase + "/outbox/ack"
	if err := d.Client.PostJSON(ctx, "outbox-ack", ackURL, d.Secret, map[string]any{"ids": acked}, nil); err != nil {
		// Not fatal: the events were applied and the dedup window covers the
		// re-pull until the ack lands.
		log.Error("ack failed", "count", len(acked), "error", err)
	}

	next := outbox.After(lastApplied).Encode()
	if err := d.Cursors.Set(CursorKeyOutbox, next); err != nil {
		return err
	}
	log.Info("drained outbox batch", "applied", len(acked), "cursor", next)
	return nil
}

func (d *Drainer) forward(ctx context.Context, ev *models.OutboxEvent) error {
	body := map[string]any{
		"id":         strconv.FormatInt(ev.ID, 10),
		"type":       ev.Type,
		"payload":    ev.Payload,
		"created_at": ev.CreatedAt,
	}
	return d.Client.PostJSON(ctx, "forward-event", d.ForwardURL, d.ForwardToken, body, nil)
}

func (d *Drainer) logger() *slog.Logger {
	if d.Log != nil {
		return d.Log
	}
	return slog.Default()
}

// ChatMessage is one inbound message from the external chat provider.
type ChatMessage struct {
	ID     string    `json:"id"`
	From   string    `json:"from"`
	Text   string    `json:"text"`
	SentAt time.Time `json:"sent_at"`
}

type chatPage struct {
	Messages []ChatMessage `json:"messages"`
}

// InboundPoller polls the chat provider for messages after the stored offset
// and forwards each one.
type InboundPoller struct {
	Client       *retryhttp.Client
	ChatURL      string
	ChatToken    string
	ForwardURL   string
	ForwardToken string
	Cursors      *CursorStore
	Interval     time.Duration
	Log          *slog.Logger
}

func (p *InboundPoller) Run(ctx context.Context) {
	log := p.logger()
	interval := p.Interval
	if interval <= 0 {
		interval = 5 * time.Second
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	log.Info("inbound poll loop started", "interval", interval)
	for {
		if err := p.PollOnce(ctx); err != nil {
			if ctx.Err() != nil {
				log.Info("inbound poll loop stopped")
				return
			}
			log.Error("poll cycle failed", "error", err)
		}

		select {
		case <-ctx.Done():
			log.Info("inbound poll loop stopped")
			return
		case <-ticker.C:
		}
	}
}

// PollOnce fetches messages after the stored offset and forwards them in
// order, persisting the offset after each successful forward.
func (p *InboundPoller) PollOnce(ctx context.Context) error {
	log := p.logger()
	url := p.ChatURL
	if offset := p.Cursors.Get(CursorKeyInbound); offset != "" {
		url += "?after=" + offset
	}
	var page chatPage
	if err := p.Client.GetJSON(ctx, "chat-poll", url, p.ChatToken, &page); err != nil {
		return err
	}
	for i := range page.Messages {
		msg := &page.Messages[i]
		body := map[string]any{
			"source":  "chat",
			"id":      msg.ID,
			"from":    msg.From,
			"text":    msg.Text,
			"sent_at": msg.SentAt,
		}
		if err := p.Client.PostJSON(ctx, "forward-message", p.ForwardURL, p.ForwardToken, body, nil); err != nil {
			log.Error("message forward failed, stopping batch", "message_id", msg.ID, "error", err)
			return nil
		}
		if err := p.Cursors.Set(CursorKeyInbound, msg.ID); err != nil {
			return err
		}
	}
	if len(page.Messages) > 0 {
		log.Info("forwarded inbound messages", "count", len(page.Messages))
	}
	return nil
}

func (p *InboundPoller) logger() *slog.Logger {
	if p.Log != nil {
		return p.Log
	}
	return slog.Default()
}
