package dispute

import (
	"context"
	"errors"
	"testing"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"

	"github.com/briefmarket/backend/internal/escrow"
	"github.com/briefmarket/backend/internal/models"
	"github.com/briefmarket/backend/internal/notify"
)

// --- in-memory fixtures ---

// fakeTx restores the repo snapshot unless the tx commits, mirroring database
// rollback semantics.
type fakeTx struct {
	restore   func()
	committed bool
}

func (t *fakeTx) Begin(context.Context) (pgx.Tx, error) { return t, nil }
func (t *fakeTx) Commit(context.Context) error          { t.committed = true; return nil }
func (t *fakeTx) Rollback(context.Context) error {
	if !t.committed && t.restore != nil {
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

type memRepo struct {
	disputes  map[uuid.UUID]*models.Dispute
	events    []string
	notified  []notify.Args
	createErr error
	emitErr   error
}

func newMemRepo() *memRepo {
	return &memRepo{disputes: make(map[uuid.UUID]*models.Dispute)}
}

func (m *memRepo) Begin(context.Context) (pgx.Tx, error) {
	disputes := make(map[uuid.UUID]*models.Dispute, len(m.disputes))
	for k, v := range m.disputes {
		cp := *v
		disputes[k] = &cp
	}
	events := append([]string(nil), m.events...)
	notified := append([]notify.Args(nil), m.notified...)
	return &fakeTx{restore: func() {
		m.disputes = disputes
		m.events = events
		m.notified = notified
	}}, nil
}

func (m *memRepo) CreateTx(_ context.Context, _ pgx.Tx, jobID, openedBy uuid.UUID, reason string) (*models.Dispute, error) {
	if m.createErr != nil {
		return nil, m.createErr
	}
	d := &models.Dispute{ID: uuid.New(), JobID: jobID, Status: models.DisputeStatusOpen, Reason: reason, OpenedByUserID: openedBy}
	m.disputes[d.ID] = d
	cp := *d
	return &cp, nil
}

func (m *memRepo) GetByID(_ context.Context, id uuid.UUID) (*models.Dispute, error) {
	d, ok := m.disputes[id]
	if !ok {
		return nil, pgx.ErrNoRows
	}
	cp := *d
	return &cp, nil
}

func (m *memRepo) GetByIDTx(ctx context.Context, _ pgx.Tx, id uuid.UUID) (*models.Dispute, error) {
	return m.GetByID(ctx, id)
}

func (m *memRepo) HasOpenForJob(_ context.Context, jobID uuid.UUID) (bool, error) {
	for _, d := range m.disputes {
		if d.JobID == jobID && d.Status == models.DisputeStatusOpen {
			return true, nil
		}
	}
	return false, nil
}

func (m *memRepo) ResolveTx(_ context.Context, _ pgx.Tx, id uuid.UUID, resolution string, resolvedBy uuid.UUID) (bool, error) {
	d, ok := m.disputes[id]
	if !ok || d.Status != models.DisputeStatusOpen {
		return false, nil
	}
	d.Status = models.DisputeStatusResolved
	d.Resolution = &resolution
	d.ResolvedByUserID = &resolvedBy
	return true, nil
}

func (m *memRepo) CancelTx(_ context.Context, _ pgx.Tx, id, _ uuid.UUID) (bool, error) {
	d, ok := m.disputes[id]
	if !ok || d.Status != models.DisputeStatusOpen {
		return false, nil
	}
	d.Status = models.DisputeStatusCanceled
	return true, nil
}

func (m *memRepo) EmitTx(_ context.Context, _ pgx.Tx, eventType string, _ any) (*models.OutboxEvent, error) {
	if m.emitErr != nil {
		return nil, m.emitErr
	}
	m.events = append(m.events, eventType)
	return &models.OutboxEvent{ID: int64(len(m.events)), Type: eventType}, nil
}

func (m *memRepo) insertNotify(_ context.Context, _ pgx.Tx, args notify.Args) error {
	m.notified = append(m.notified, args)
	return nil
}

// stubEscrow returns preset outcomes and counts invocations.
type stubEscrow struct {
	releaseKind  escrow.ReleaseResultKind
	refundKind   escrow.RefundResultKind
	releaseCalls int
	refundCalls  int
}

func (s *stubEscrow) Release(context.Context, uuid.UUID, uuid.UUID, string) (escrow.ReleaseResult, error) {
	s.releaseCalls++
	return escrow.ReleaseResult{Kind: s.releaseKind, PayoutCents: 8500, PayoutCurrency: "USD", CommissionCents: 1500}, nil
}

func (s *stubEscrow) Refund(context.Context, uuid.UUID, uuid.UUID, string, string) (escrow.RefundResult, error) {
	s.refundCalls++
	return escrow.RefundResult{Kind: s.refundKind}, nil
}

func setup(t *testing.T, esc *stubEscrow) (*Service, *memRepo) {
	t.Helper()
	repo := newMemRepo()
	return NewService(repo, esc, repo, repo.insertNotify, nil), repo
}

func openDispute(t *testing.T, repo *memRepo) *models.Dispute {
	t.Helper()
	d, err := repo.CreateTx(context.Background(), nil, uuid.New(), uuid.New(), "work not delivered")
	if err != nil {
		t.Fatalf("seed dispute: %v", err)
	}
	return d
}

// --- tests ---

func TestOpen(t *testing.T) {
	svc, repo := setup(t, &stubEscrow{})
	jobID, brandID := uuid.New(), uuid.New()

	d, kind, err := svc.Open(context.Background(), jobID, brandID, "deliverable rejected")
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	if kind != Opened {
		t.Fatalf("kind: got %v, want Opened", kind)
	}
	if d.Status != models.DisputeStatusOpen {
		t.Errorf("status: got %q, want OPEN", d.Status)
	}
	if len(repo.events) != 1 || repo.events[0] != models.EventDisputeOpened {
		t.Errorf("events: got %v, want [%s]", repo.events, models.EventDisputeOpened)
	}

	// A second open dispute on the same job is rejected.
	_, kind, err = svc.Open(context.Background(), jobID, brandID, "again")
	if err != nil {
		t.Fatalf("second Open: %v", err)
	}
	if kind != OpenAlreadyExists {
		t.Errorf("second open kind: got %v, want OpenAlreadyExists", kind)
	}
	if len(repo.events) != 1 {
		t.Errorf("second open must not emit, got %d events", len(repo.events))
	}
}

func TestOpen_EmitFailureRollsBackDispute(t *testing.T) {
	// The dispute insert and its outbox event share one transaction: if the
	// event cannot be written, no dispute row may survive either.
	svc, repo := setup(t, &stubEscrow{})
	repo.emitErr = errors.New("outbox insert failed")
	jobID := uuid.New()

	_, _, err := svc.Open(context.Background(), jobID, uuid.New(), "deliverable rejected")
	if err == nil {
		t.Fatal("Open should surface the emit failure")
	}
	open, err := repo.HasOpenForJob(context.Background(), jobID)
	if err != nil {
		t.Fatalf("HasOpenForJob: %v", err)
	}
	if open {
		t.Error("dispute row must not commit when the outbox write fails")
	}
	if len(repo.events) != 0 {
		t.Errorf("no events expected, got %v", repo.events)
	}
}

func TestOpen_ConcurrentLoserGetsAlreadyExists(t *testing.T) {
	// Two opens can both pass the HasOpenForJob check; the loser hits the
	// partial unique index and must read as already_open, not a server error.
	svc, repo := setup(t, &stubEscrow{})
	repo.createErr = &pgconn.PgError{Code: "23505", ConstraintName: "idx_disputes_open_job"}

	_, kind, err := svc.Open(context.Background(), uuid.New(), uuid.New(), "duplicate")
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	if kind != OpenAlreadyExists {
		t.Errorf("kind: got %v, want OpenAlreadyExists", kind)
	}
	if len(repo.events) != 0 {
		t.Errorf("losing open must not emit, got %v", repo.events)
	}
}

func TestResolveRelease(t *testing.T) {
	esc := &stubEscrow{releaseKind: escrow.Released}
	svc, repo := setup(t, esc)
	d := openDispute(t, repo)
	arbiter := uuid.New()

	res, err := svc.ResolveRelease(context.Background(), d.ID, arbiter, "creator delivered")
	if err != nil {
		t.Fatalf("ResolveRelease: %v", err)
	}
	if res.Kind != Resolved || res.Resolution != models.DisputeResolutionRelease {
		t.Fatalf("result: got %v/%s", res.Kind, res.Resolution)
	}
	if esc.releaseCalls != 1 {
		t.Errorf("escrow release calls: got %d, want 1", esc.releaseCalls)
	}

	stored := repo.disputes[d.ID]
	if stored.Status != models.DisputeStatusResolved {
		t.Errorf("stored status: got %q, want RESOLVED", stored.Status)
	}
	if stored.Resolution == nil || *stored.Resolution != models.DisputeResolutionRelease {
		t.Errorf("stored resolution: got %v", stored.Resolution)
	}
	if len(repo.events) != 1 || repo.events[0] != models.EventDisputeResolved {
		t.Errorf("events: got %v", repo.events)
	}
	if len(repo.notified) != 1 || repo.notified[0].UserID != d.OpenedByUserID {
		t.Errorf("notified: got %v, want opener %s", repo.notified, d.OpenedByUserID)
	}
}

func TestResolveRelease_ReplayEchoesWithoutSideEffects(t *testing.T) {
	esc := &stubEscrow{releaseKind: escrow.Released}
	svc, repo := setup(t, esc)
	d := openDispute(t, repo)
	arbiter := uuid.New()

	if _, err := svc.ResolveRelease(context.Background(), d.ID, arbiter, "n"); err != nil {
		t.Fatalf("first resolve: %v", err)
	}

	res, err := svc.ResolveRelease(context.Background(), d.ID, arbiter, "n")
	if err != nil {
		t.Fatalf("replay: %v", err)
	}
	if res.Kind != AlreadyResolved {
		t.Fatalf("replay kind: got %v, want AlreadyResolved", res.Kind)
	}
	if esc.releaseCalls != 1 {
		t.Errorf("replay must not hit escrow again, got %d calls", esc.releaseCalls)
	}
	if len(repo.events) != 1 {
		t.Errorf("replay must not emit, got %d events", len(repo.events))
	}
	if len(repo.notified) != 1 {
		t.Errorf("replay must not notify, got %d", len(repo.notified))
	}
}

func TestResolveRefund_OpposedAfterRelease(t *testing.T) {
	esc := &stubEscrow{releaseKind: escrow.Released, refundKind: escrow.Refunded}
	svc, repo := setup(t, esc)
	d := openDispute(t, repo)
	arbiter := uuid.New()

	if _, err := svc.ResolveRelease(context.Background(), d.ID, arbiter, ""); err != nil {
		t.Fatalf("resolve release: %v", err)
	}

	res, err := svc.ResolveRefund(context.Background(), d.ID, arbiter, "")
	if err != nil {
		t.Fatalf("opposed refund: %v", err)
	}
	if res.Kind != ResolveOpposed {
		t.Errorf("kind: got %v, want ResolveOpposed", res.Kind)
	}
	if esc.refundCalls != 0 {
		t.Errorf("opposed refund must not touch escrow, got %d calls", esc.refundCalls)
	}
}

func TestResolve_EscrowConflictLeavesDisputeOpen(t *testing.T) {
	cases := []struct {
		name string
		kind escrow.ReleaseResultKind
		want ResolveResultKind
	}{
		{"escrow refunded elsewhere", escrow.ReleaseConflictRefunded, ResolveOpposed},
		{"escrow never funded", escrow.ReleaseUnfunded, ResolveEscrowUnfunded},
		{"no creator assigned", escrow.ReleaseNoActiveCreator, ResolveNoActiveCreator},
		{"job row gone", escrow.ReleaseJobNotFound, ResolveJobNotFound},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			svc, repo := setup(t, &stubEscrow{releaseKind: tc.kind})
			d := openDispute(t, repo)

			res, err := svc.ResolveRelease(context.Background(), d.ID, uuid.New(), "")
			if err != nil {
				t.Fatalf("resolve: %v", err)
			}
			if res.Kind != tc.want {
				t.Errorf("kind: got %v, want %v", res.Kind, tc.want)
			}
			if repo.disputes[d.ID].Status != models.DisputeStatusOpen {
				t.Errorf("dispute must stay OPEN, got %q", repo.disputes[d.ID].Status)
			}
			if len(repo.events) != 0 {
				t.Errorf("conflict must not emit, got %v", repo.events)
			}
		})
	}
}

func TestResolve_AlreadyReleasedEscrowStillResolvesDispute(t *testing.T) {
	// Crash between the escrow commit and the dispute update leaves the escrow
	// RELEASED with the dispute OPEN; the retry must finish the job.
	esc := &stubEscrow{releaseKind: escrow.AlreadyReleased}
	svc, repo := setup(t, esc)
	d := openDispute(t, repo)

	res, err := svc.ResolveRelease(context.Background(), d.ID, uuid.New(), "")
	if err != nil {
		t.Fatalf("resolve: %v", err)
	}
	if res.Kind != Resolved {
		t.Fatalf("kind: got %v, want Resolved", res.Kind)
	}
	if repo.disputes[d.ID].Status != models.DisputeStatusResolved {
		t.Errorf("dispute status: got %q, want RESOLVED", repo.disputes[d.ID].Status)
	}
	if len(repo.events) != 1 {
		t.Errorf("the dispute transition is new, expected 1 event, got %d", len(repo.events))
	}
}

func TestResolveRefund(t *testing.T) {
	esc := &stubEscrow{refundKind: escrow.Refunded}
	svc, repo := setup(t, esc)
	d := openDispute(t, repo)

	res, err := svc.ResolveRefund(context.Background(), d.ID, uuid.New(), "never delivered")
	if err != nil {
		t.Fatalf("ResolveRefund: %v", err)
	}
	if res.Kind != Resolved || res.Resolution != models.DisputeResolutionRefund {
		t.Fatalf("result: got %v/%s", res.Kind, res.Resolution)
	}
	if esc.refundCalls != 1 {
		t.Errorf("escrow refund calls: got %d, want 1", esc.refundCalls)
	}
	stored := repo.disputes[d.ID]
	if stored.Resolution == nil || *stored.Resolution != models.DisputeResolutionRefund {
		t.Errorf("stored resolution: got %v", stored.Resolution)
	}
}

func TestCancel(t *testing.T) {
	svc, repo := setup(t, &stubEscrow{})
	d := openDispute(t, repo)

	res, err := svc.Cancel(context.Background(), d.ID, uuid.New())
	if err != nil {
		t.Fatalf("Cancel: %v", err)
	}
	if res.Kind != Canceled {
		t.Fatalf("kind: got %v, want Canceled", res.Kind)
	}
	if repo.disputes[d.ID].Status != models.DisputeStatusCanceled {
		t.Errorf("status: got %q, want CANCELED", repo.disputes[d.ID].Status)
	}
	if len(repo.events) != 1 || repo.events[0] != models.EventDisputeCanceled {
		t.Errorf("events: got %v", repo.events)
	}

	// Replay echoes, resolution of a canceled dispute conflicts.
	res, err = svc.Cancel(context.Background(), d.ID, uuid.New())
	if err != nil {
		t.Fatalf("replay cancel: %v", err)
	}
	if res.Kind != AlreadyCanceled {
		t.Errorf("replay kind: got %v, want AlreadyCanceled", res.Kind)
	}
	res, err = svc.ResolveRelease(context.Background(), d.ID, uuid.New(), "")
	if err != nil {
		t.Fatalf("resolve after cancel: %v", err)
	}
	if res.Kind != ResolveCanceledConflict {
		t.Errorf("resolve after cancel: got %v, want ResolveCanceledConflict", res.Kind)
	}
}

func TestResolve_NotFound(t *testing.T) {
	svc, _ := setup(t, &stubEscrow{})
	res, err := svc.ResolveRelease(context.Background(), uuid.New(), uuid.New(), "")
	if err != nil {
		t.Fatalf("resolve: %v", err)
	}
	if res.Kind != ResolveNotFound {
		t.Errorf("kind: got %v, want ResolveNotFound", res.Kind)
	}
}
