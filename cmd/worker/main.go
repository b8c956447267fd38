package main

import (
	"context"
	"log/slog"
	"os"
	"os/signal"
	"sync"
	"syscall"

	"github.com/briefmarket/backend/internal/config"
	"github.com/briefmarket/backend/internal/consumer"
	"github.com/briefmarket/backend/internal/retryhttp"
)

func main() {
	logger := slog.New(slog.NewJSONHandler(os.Stdout, nil))
	slog.SetDefault(logger)

	cfg, err := config.LoadWorker()
	if err != nil {
		slog.Error("invalid configuration", "error", err)
		os.Exit(1)
	}

	cursors, err := consumer.OpenCursorStore(cfg.CursorFile)
	if err != nil {
		slog.Error("cannot open cursor file", "path", cfg.CursorFile, "error", err)
		os.Exit(1)
	}

	client := retryhttp.New(retryhttp.Config{})

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	drainer := &consumer.Drainer{
		Client:       client,
		APIBase:      cfg.APIBaseURL,
		Secret:       cfg.ConsumerSecret,
		ForwardURL:   cfg.ForwardURL,
		ForwardToken: cfg.ForwardToken,
		Cursors:      cursors,
		Dedup:        consumer.NewDedup(cfg.DedupTTL),
		Interval:     cfg.PollInterval,
		Log:          logger,
	}

	var wg sync.WaitGroup
	wg.Add(1)
	go func() {
		defer wg.Done()
		drainer.Run(ctx)
	}()

	if cfg.ChatAPIURL != "" {
		poller := &consumer.InboundPoller{
			Client:       client,
			ChatURL:      cfg.ChatAPIURL,
			ChatToken:    cfg.ChatAPIToken,
			ForwardURL:   cfg.ForwardURL,
			ForwardToken: cfg.ForwardToken,
			Cursors:      cursors,
			Interval:     cfg.PollInterval,
			Log:          logger,
		}
		wg.Add(1)
		go func() {
			defer wg.Done()
			poller.Run(ctx)
		}()
	} else {
		slog.Info("CHAT_API_URL not set, inbound polling disabled")
	}

	slog.Info("worker started", "api", cfg.APIBaseURL, "interval", cfg.PollInterval.String())
	<-ctx.Done()
	wg.Wait()
	slog.Info("worker stopped")
}
