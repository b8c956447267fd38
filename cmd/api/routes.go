package main

import (
	"log/slog"
	"net/http"

	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/briefmarket/backend/internal/config"
	"github.com/briefmarket/backend/internal/handlers"
	"github.com/briefmarket/backend/internal/jobs"
	"github.com/briefmarket/backend/internal/middleware"
	"github.com/briefmarket/backend/internal/repository"
)

type routeDeps struct {
	cfg        config.API
	logger     *slog.Logger
	escrowSvc  handlers.EscrowService
	disputeSvc handlers.DisputeService
	payoutSvc  handlers.PayoutService
	jobsSvc    *jobs.Service
	walletRepo *repository.WalletRepo
	ledgerRepo *repository.LedgerRepo
	outboxRepo *repository.OutboxRepo
}

// buildRoutes wires the HTTP surface. Chain: RequestID -> auth -> handler.
// Actor endpoints use JWT auth, the outbox protocol uses the consumer secret,
// /healthz and /metrics are open.
func buildRoutes(d routeDeps) http.Handler {
	escrowH := &handlers.EscrowHandler{Svc: d.escrowSvc, Logger: d.logger}
	disputeH := &handlers.DisputeHandler{Svc: d.disputeSvc, Logger: d.logger}
	payoutH := &handlers.PayoutHandler{Svc: d.payoutSvc, Logger: d.logger}
	walletH := &handlers.WalletHandler{Wallets: d.walletRepo, Ledger: d.ledgerRepo, Logger: d.logger}
	outboxH := &handlers.OutboxHandler{Repo: d.outboxRepo, Logger: d.logger}

	actor := middleware.ActorAuth([]byte(d.cfg.JWTSecret))
	consumer := middleware.ConsumerAuth(d.cfg.ConsumerSecret)

	mux := http.NewServeMux()

	// Consumer protocol.
	mux.Handle("GET /outbox/pull", consumer(http.HandlerFunc(outboxH.Pull)))
	mux.Handle("POST /outbox/ack", consumer(http.HandlerFunc(outboxH.Ack)))

	// Minimal job surface: assignment creates the escrow row.
	jobH := &handlers.JobHandler{Svc: d.jobsSvc, Logger: d.logger}
	mux.Handle("POST /api/v1/jobs", actor(http.HandlerFunc(jobH.Create)))
	mux.Handle("GET /api/v1/jobs/{id}", actor(http.HandlerFunc(jobH.Get)))
	mux.Handle("POST /api/v1/jobs/{id}/assign", actor(http.HandlerFunc(jobH.Assign)))

	// Escrow state machine.
	mux.Handle("POST /api/v1/jobs/{id}/escrow/fund", actor(http.HandlerFunc(escrowH.Fund)))
	mux.Handle("POST /api/v1/jobs/{id}/escrow/release", actor(http.HandlerFunc(escrowH.Release)))
	mux.Handle("POST /api/v1/jobs/{id}/escrow/refund", actor(http.HandlerFunc(escrowH.Refund)))

	// Disputes.
	mux.Handle("POST /api/v1/disputes", actor(http.HandlerFunc(disputeH.Open)))
	mux.Handle("POST /api/v1/disputes/{id}/resolve-release", actor(http.HandlerFunc(disputeH.ResolveRelease)))
	mux.Handle("POST /api/v1/disputes/{id}/resolve-refund", actor(http.HandlerFunc(disputeH.ResolveRefund)))
	mux.Handle("POST /api/v1/disputes/{id}/cancel", actor(http.HandlerFunc(disputeH.Cancel)))

	// Payouts.
	mux.Handle("POST /api/v1/payouts", actor(http.HandlerFunc(payoutH.Request)))
	mux.Handle("POST /api/v1/payouts/{id}/approve", actor(http.HandlerFunc(payoutH.Approve)))
	mux.Handle("POST /api/v1/payouts/{id}/reject", actor(http.HandlerFunc(payoutH.Reject)))

	// Wallet and ledger history.
	mux.Handle("GET /api/v1/wallet", actor(http.HandlerFunc(walletH.GetWallet)))
	mux.Handle("GET /api/v1/ledger", actor(http.HandlerFunc(walletH.ListLedger)))

	mux.Handle("GET /metrics", promhttp.Handler())
	mux.HandleFunc("GET /healthz", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`{"status":"ok"}`))
	})

	return middleware.RequestID(mux)
}
