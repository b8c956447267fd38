package payout

import (
	"context"
	"testing"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"

	"github.com/briefmarket/backend/internal/ledger"
	"github.com/briefmarket/backend/internal/models"
	"github.com/briefmarket/backend/internal/notify"
	"github.com/briefmarket/backend/internal/repository"
)

// --- in-memory fixtures ---

// fakeTx restores the environment snapshot unless the tx commits, mirroring
// database rollback semantics.
type fakeTx struct {
	restore   func()
	committed bool
}

func (t *fakeTx) Begin(context.Context) (pgx.Tx, error) { return t, nil }
func (t *fakeTx) Commit(context.Context) error          { t.committed = true; return nil }
func (t *fakeTx) Rollback(context.Context) error {
	if !t.committed {
		t.restore()
	}
	return nil
}
func (t *fakeTx) CopyFrom(context.Context, pgx.Identifier, []string, pgx.CopyFromSource) (int64, error) {
	return 0, nil
}
func (t *fakeTx) SendBatch(context.Context, *pgx.Batch) pgx.BatchResults { return nil }
func (t *fakeTx) LargeObjects() pgx.LargeObjects                         { return pgx.LargeObjects{} }
func (t *fakeTx) Prepare(context.Context, string, string) (*pgconn.StatementDescription, error) {
	return nil, nil
}
func (t *fakeTx) Exec(context.Context, string, ...any) (pgconn.CommandTag, error) {
	return pgconn.CommandTag{}, nil
}
func (t *fakeTx) Query(context.Context, string, ...any) (pgx.Rows, error) { return nil, nil }
func (t *fakeTx) QueryRow(context.Context, string, ...any) pgx.Row        { return nil }
func (t *fakeTx) Conn() *pgx.Conn                                         { return nil }

type env struct {
	payouts     map[uuid.UUID]*models.Payout
	wallets     map[uuid.UUID]*models.Wallet
	ledgerByRef map[string]*models.LedgerEntry
	events      []string
	notified    []notify.Args
}

func newEnv() *env {
	return &env{
		payouts:     make(map[uuid.UUID]*models.Payout),
		wallets:     make(map[uuid.UUID]*models.Wallet),
		ledgerByRef: make(map[string]*models.LedgerEntry),
	}
}

func (e *env) snapshot() func() {
	payouts := make(map[uuid.UUID]*models.Payout, len(e.payouts))
	for k, v := range e.payouts {
		cp := *v
		payouts[k] = &cp
	}
	wallets := make(map[uuid.UUID]*models.Wallet, len(e.wallets))
	for k, v := range e.wallets {
		cp := *v
		wallets[k] = &cp
	}
	refs := make(map[string]*models.LedgerEntry, len(e.ledgerByRef))
	for k, v := range e.ledgerByRef {
		cp := *v
		refs[k] = &cp
	}
	events := append([]string(nil), e.events...)
	notified := append([]notify.Args(nil), e.notified...)
	return func() {
		e.payouts, e.wallets, e.ledgerByRef, e.events, e.notified = payouts, wallets, refs, events, notified
	}
}

// --- PayoutRepo ---

func (e *env) Begin(context.Context) (pgx.Tx, error) {
	return &fakeTx{restore: e.snapshot()}, nil
}

func (e *env) CreateTx(_ context.Context, _ pgx.Tx, id, userID uuid.UUID, amountCents int64, currency string) (*models.Payout, error) {
	p := &models.Payout{ID: id, UserID: userID, AmountCents: amountCents, Currency: currency, Status: models.PayoutStatusRequested}
	e.payouts[id] = p
	cp := *p
	return &cp, nil
}

func (e *env) GetByID(_ context.Context, id uuid.UUID) (*models.Payout, error) {
	p, ok := e.payouts[id]
	if !ok {
		return nil, pgx.ErrNoRows
	}
	cp := *p
	return &cp, nil
}

func (e *env) GetByIDTx(ctx context.Context, _ pgx.Tx, id uuid.UUID) (*models.Payout, error) {
	return e.GetByID(ctx, id)
}

func (e *env) DecideTx(_ context.Context, _ pgx.Tx, id uuid.UUID, status string, decidedBy uuid.UUID) (bool, error) {
	p, ok := e.payouts[id]
	if !ok || p.Status != models.PayoutStatusRequested {
		return false, nil
	}
	p.Status = status
	p.DecidedBy = &decidedBy
	return true, nil
}

// --- WalletRepo ---

func (e *env) GetOrCreateTx(_ context.Context, _ pgx.Tx, userID uuid.UUID, currency string) (*models.Wallet, error) {
	w, ok := e.wallets[userID]
	if !ok {
		w = &models.Wallet{UserID: userID, Currency: currency}
		e.wallets[userID] = w
	}
	cp := *w
	return &cp, nil
}

func (e *env) CreditTx(_ context.Context, _ pgx.Tx, userID uuid.UUID, amountCents int64, currency string) (int64, error) {
	w, ok := e.wallets[userID]
	if !ok {
		w = &models.Wallet{UserID: userID, Currency: currency}
		e.wallets[userID] = w
	}
	w.BalanceCents += amountCents
	return w.BalanceCents, nil
}

func (e *env) DebitTx(_ context.Context, _ pgx.Tx, userID uuid.UUID, amountCents int64) (int64, error) {
	w, ok := e.wallets[userID]
	if !ok || w.BalanceCents < amountCents {
		return 0, repository.ErrInsufficientBalance
	}
	w.BalanceCents -= amountCents
	return w.BalanceCents, nil
}

// --- Ledger / Producer / notify ---

type envLedger struct{ e *env }

func (l envLedger) Append(_ context.Context, _ pgx.Tx, rec ledger.Record) (bool, *models.LedgerEntry, error) {
	if existing, ok := l.e.ledgerByRef[rec.Reference]; ok {
		cp := *existing
		return false, &cp, nil
	}
	entry := &models.LedgerEntry{ID: uuid.New(), Type: rec.Type, AmountCents: rec.AmountCents, Currency: rec.Currency, Reference: rec.Reference}
	l.e.ledgerByRef[rec.Reference] = entry
	cp := *entry
	return true, &cp, nil
}

func (e *env) EmitTx(_ context.Context, _ pgx.Tx, eventType string, _ any) (*models.OutboxEvent, error) {
	e.events = append(e.events, eventType)
	return &models.OutboxEvent{ID: int64(len(e.events)), Type: eventType}, nil
}

func (e *env) insertNotify(_ context.Context, _ pgx.Tx, args notify.Args) error {
	e.notified = append(e.notified, args)
	return nil
}

func setup(t *testing.T) (*Service, *env) {
	t.Helper()
	e := newEnv()
	svc := NewService(e, e, envLedger{e}, e, e.insertNotify, "USD", nil)
	return svc, e
}

func seedWallet(e *env, balance int64) uuid.UUID {
	userID := uuid.New()
	e.wallets[userID] = &models.Wallet{UserID: userID, BalanceCents: balance, Currency: "USD"}
	return userID
}

// --- tests ---

func TestRequest(t *testing.T) {
	svc, e := setup(t)
	userID := seedWallet(e, 10_000)
	payoutID := uuid.New()

	p, kind, err := svc.Request(context.Background(), payoutID, userID, 4_000)
	if err != nil {
		t.Fatalf("Request: %v", err)
	}
	if kind != RequestOK {
		t.Fatalf("kind: got %v, want RequestOK", kind)
	}
	if p.Status != models.PayoutStatusRequested || p.AmountCents != 4_000 {
		t.Errorf("payout row: %+v", p)
	}
	if got := e.wallets[userID].BalanceCents; got != 6_000 {
		t.Errorf("wallet after request: got %d, want 6000", got)
	}
	if _, ok := e.ledgerByRef[ledger.PayoutRequestRef(payoutID)]; !ok {
		t.Error("missing PAYOUT_REQUEST ledger entry")
	}
	if len(e.events) != 1 || e.events[0] != models.EventPayoutRequested {
		t.Errorf("events: got %v", e.events)
	}
}

func TestRequest_ReplaySameIDDoesNotDoubleDebit(t *testing.T) {
	svc, e := setup(t)
	userID := seedWallet(e, 10_000)
	payoutID := uuid.New()

	if _, _, err := svc.Request(context.Background(), payoutID, userID, 4_000); err != nil {
		t.Fatalf("first request: %v", err)
	}
	p, kind, err := svc.Request(context.Background(), payoutID, userID, 4_000)
	if err != nil {
		t.Fatalf("replay: %v", err)
	}
	if kind != RequestAlreadyExists {
		t.Fatalf("replay kind: got %v, want RequestAlreadyExists", kind)
	}
	if p.ID != payoutID {
		t.Errorf("replay should echo the original payout, got %s", p.ID)
	}
	if got := e.wallets[userID].BalanceCents; got != 6_000 {
		t.Errorf("wallet after replay: got %d, want 6000 (single debit)", got)
	}
	if len(e.events) != 1 {
		t.Errorf("replay must not emit, got %d events", len(e.events))
	}
}

func TestRequest_InsufficientFundsRollsBack(t *testing.T) {
	svc, e := setup(t)
	userID := seedWallet(e, 1_000)
	payoutID := uuid.New()

	_, kind, err := svc.Request(context.Background(), payoutID, userID, 4_000)
	if err != nil {
		t.Fatalf("Request: %v", err)
	}
	if kind != RequestInsufficientFunds {
		t.Fatalf("kind: got %v, want RequestInsufficientFunds", kind)
	}
	// Nothing sticks: no payout row, no ledger entry, no event, balance intact.
	if _, ok := e.payouts[payoutID]; ok {
		t.Error("payout row must not survive rollback")
	}
	if _, ok := e.ledgerByRef[ledger.PayoutRequestRef(payoutID)]; ok {
		t.Error("ledger entry must not survive rollback")
	}
	if got := e.wallets[userID].BalanceCents; got != 1_000 {
		t.Errorf("balance: got %d, want 1000", got)
	}
	if len(e.events) != 0 {
		t.Errorf("events must not survive rollback, got %v", e.events)
	}
}

func TestRequest_InvalidAmount(t *testing.T) {
	svc, e := setup(t)
	userID := seedWallet(e, 1_000)

	for _, amount := range []int64{0, -500} {
		_, kind, err := svc.Request(context.Background(), uuid.New(), userID, amount)
		if err != nil {
			t.Fatalf("Request(%d): %v", amount, err)
		}
		if kind != RequestInvalidAmount {
			t.Errorf("Request(%d): got %v, want RequestInvalidAmount", amount, kind)
		}
	}
}

func TestApprove(t *testing.T) {
	svc, e := setup(t)
	userID := seedWallet(e, 10_000)
	payoutID := uuid.New()
	adminID := uuid.New()

	if _, _, err := svc.Request(context.Background(), payoutID, userID, 4_000); err != nil {
		t.Fatalf("request: %v", err)
	}

	kind, err := svc.Approve(context.Background(), payoutID, adminID)
	if err != nil {
		t.Fatalf("Approve: %v", err)
	}
	if kind != Approved {
		t.Fatalf("kind: got %v, want Approved", kind)
	}
	if got := e.payouts[payoutID].Status; got != models.PayoutStatusApproved {
		t.Errorf("status: got %q, want APPROVED", got)
	}
	// Approval is bookkeeping: the wallet was already debited at request time.
	if got := e.wallets[userID].BalanceCents; got != 6_000 {
		t.Errorf("wallet after approve: got %d, want 6000", got)
	}
	if _, ok := e.ledgerByRef[ledger.PayoutApproveRef(payoutID)]; !ok {
		t.Error("missing PAYOUT_APPROVE ledger entry")
	}
	if len(e.notified) != 1 || e.notified[0].UserID != userID {
		t.Errorf("notified: got %v", e.notified)
	}

	// Replay echoes without new side effects.
	kind, err = svc.Approve(context.Background(), payoutID, adminID)
	if err != nil {
		t.Fatalf("replay approve: %v", err)
	}
	if kind != AlreadyApproved {
		t.Errorf("replay kind: got %v, want AlreadyApproved", kind)
	}
	if len(e.events) != 2 {
		t.Errorf("events after replay: got %d, want 2 (requested + approved)", len(e.events))
	}
}

func TestReject_ReturnsFundsOnce(t *testing.T) {
	svc, e := setup(t)
	userID := seedWallet(e, 10_000)
	payoutID := uuid.New()
	adminID := uuid.New()

	if _, _, err := svc.Request(context.Background(), payoutID, userID, 4_000); err != nil {
		t.Fatalf("request: %v", err)
	}

	kind, err := svc.Reject(context.Background(), payoutID, adminID, "account flagged")
	if err != nil {
		t.Fatalf("Reject: %v", err)
	}
	if kind != Rejected {
		t.Fatalf("kind: got %v, want Rejected", kind)
	}
	if got := e.wallets[userID].BalanceCents; got != 10_000 {
		t.Errorf("wallet after reject: got %d, want 10000 (funds returned)", got)
	}
	if _, ok := e.ledgerByRef[ledger.PayoutRejectRef(payoutID)]; !ok {
		t.Error("missing PAYOUT_REJECT ledger entry")
	}

	// Replay must not credit a second time.
	kind, err = svc.Reject(context.Background(), payoutID, adminID, "account flagged")
	if err != nil {
		t.Fatalf("replay reject: %v", err)
	}
	if kind != AlreadyRejected {
		t.Errorf("replay kind: got %v, want AlreadyRejected", kind)
	}
	if got := e.wallets[userID].BalanceCents; got != 10_000 {
		t.Errorf("wallet after replay: got %d, want 10000", got)
	}
}

func TestDecide_OpposedAndNotFound(t *testing.T) {
	svc, e := setup(t)
	userID := seedWallet(e, 10_000)
	payoutID := uuid.New()
	adminID := uuid.New()

	if _, _, err := svc.Request(context.Background(), payoutID, userID, 4_000); err != nil {
		t.Fatalf("request: %v", err)
	}
	if _, err := svc.Approve(context.Background(), payoutID, adminID); err != nil {
		t.Fatalf("approve: %v", err)
	}

	kind, err := svc.Reject(context.Background(), payoutID, adminID, "")
	if err != nil {
		t.Fatalf("reject after approve: %v", err)
	}
	if kind != DecideOpposed {
		t.Errorf("kind: got %v, want DecideOpposed", kind)
	}
	if got := e.wallets[userID].BalanceCents; got != 6_000 {
		t.Errorf("opposed reject must not move money: got %d, want 6000", got)
	}

	kind, err = svc.Approve(context.Background(), uuid.New(), adminID)
	if err != nil {
		t.Fatalf("approve missing: %v", err)
	}
	if kind != DecideNotFound {
		t.Errorf("kind: got %v, want DecideNotFound", kind)
	}
}
