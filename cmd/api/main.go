package main

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/riverqueue/river"
	"github.com/riverqueue/river/riverdriver/riverpgxv5"
	"github.com/riverqueue/river/rivermigrate"
	"github.com/rs/cors"

	"github.com/briefmarket/backend/internal/config"
	"github.com/briefmarket/backend/internal/dispute"
	"github.com/briefmarket/backend/internal/escrow"
	"github.com/briefmarket/backend/internal/jobs"
	"github.com/briefmarket/backend/internal/ledger"
	"github.com/briefmarket/backend/internal/notify"
	"github.com/briefmarket/backend/internal/outbox"
	"github.com/briefmarket/backend/internal/payout"
	"github.com/briefmarket/backend/internal/rates"
	"github.com/briefmarket/backend/internal/repository"
	"github.com/briefmarket/backend/internal/retryhttp"
)

func main() {
	logger := slog.New(slog.NewJSONHandler(os.Stdout, nil))
	slog.SetDefault(logger)

	cfg, err := config.LoadAPI()
	if err != nil {
		slog.Error("invalid configuration", "error", err)
		os.Exit(1)
	}

	ctx := context.Background()
	pool, err := pgxpool.New(ctx, cfg.DatabaseURL)
	if err != nil {
		slog.Error("unable to create database pool", "error", err)
		os.Exit(1)
	}
	defer pool.Close()

	if err := pool.Ping(ctx); err != nil {
		slog.Error("cannot reach PostgreSQL", "error", err)
		os.Exit(1)
	}
	slog.Info("connected to PostgreSQL")

	// River migrations (job queue tables only; the domain schema ships in
	// migrations/schema.sql).
	migrator, err := rivermigrate.New(riverpgxv5.New(pool), nil)
	if err != nil {
		slog.Error("failed to create River migrator", "error", err)
		os.Exit(1)
	}
	if _, err := migrator.Migrate(ctx, rivermigrate.DirectionUp, nil); err != nil {
		slog.Error("River migrate up failed", "error", err)
		os.Exit(1)
	}

	// Repositories.
	walletRepo := repository.NewWalletRepo(pool)
	ledgerRepo := repository.NewLedgerRepo(pool)
	escrowRepo := repository.NewEscrowRepo(pool)
	jobRepo := repository.NewJobRepo(pool)
	outboxRepo := repository.NewOutboxRepo(pool)
	disputeRepo := repository.NewDisputeRepo(pool)
	payoutRepo := repository.NewPayoutRepo(pool)

	ledgerSvc := ledger.NewService(ledgerRepo)
	producer := outbox.NewProducer(outboxRepo)
	converter := rates.NewStatic(nil)

	// Notification worker rides River; enqueues share the financial tx.
	workers := river.NewWorkers()
	httpClient := retryhttp.New(retryhttp.Config{})
	river.AddWorker(workers, notify.NewWorker(httpClient, cfg.NotifyURL, cfg.NotifyToken, logger))

	riverClient, err := river.NewClient(riverpgxv5.New(pool), &river.Config{
		Queues: map[string]river.QueueConfig{
			river.QueueDefault: {MaxWorkers: 10},
		},
		Workers: workers,
	})
	if err != nil {
		slog.Error("failed to create River client", "error", err)
		os.Exit(1)
	}
	enqueueNotify := func(ctx context.Context, tx pgx.Tx, args notify.Args) error {
		_, err := riverClient.InsertTx(ctx, tx, args, nil)
		return err
	}

	// Services.
	escrowSvc := escrow.NewService(escrowRepo, jobRepo, walletRepo, ledgerSvc, producer,
		converter, enqueueNotify, func() int { return cfg.CommissionBps }, logger)
	disputeSvc := dispute.NewService(disputeRepo, escrowSvc, producer, enqueueNotify, logger)
	payoutSvc := payout.NewService(payoutRepo, walletRepo, ledgerSvc, producer, enqueueNotify, "USD", logger)
	jobsSvc := jobs.NewService(jobRepo, escrowSvc, logger)

	mux := buildRoutes(routeDeps{
		cfg:        cfg,
		logger:     logger,
		escrowSvc:  escrowSvc,
		disputeSvc: disputeSvc,
		payoutSvc:  payoutSvc,
		jobsSvc:    jobsSvc,
		walletRepo: walletRepo,
		ledgerRepo: ledgerRepo,
		outboxRepo: outboxRepo,
	})

	corsHandler := cors.New(cors.Options{
		AllowedOrigins:   cfg.CORSOrigins,
		AllowedMethods:   []string{"GET", "POST", "OPTIONS"},
		AllowedHeaders:   []string{"Accept", "Authorization", "Content-Type", "X-Request-Id"},
		AllowCredentials: true,
	}).Handler(mux)

	riverCtx, stopRiver := context.WithCancel(ctx)
	defer stopRiver()
	go func() {
		if err := riverClient.Start(riverCtx); err != nil && riverCtx.Err() == nil {
			slog.Error("River client stopped", "error", err)
		}
	}()

	srv := &http.Server{
		Addr:    "0.0.0.0:" + cfg.Port,
		Handler: corsHandler,
	}

	shutdownCtx, stop := signal.NotifyContext(ctx, os.Interrupt, syscall.SIGTERM)
	defer stop()
	go func() {
		<-shutdownCtx.Done()
		slog.Info("shutting down")
		drainCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		_ = riverClient.Stop(drainCtx)
		_ = srv.Shutdown(drainCtx)
	}()

	slog.Info("starting HTTP server", "addr", srv.Addr)
	if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		slog.Error("HTTP server failed", "error", err)
		os.Exit(1)
	}
}
