package escrow

import (
	"context"
	"errors"
	"testing"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
)

type fakeRepo struct {
	balance int64
	zeroed  bool
	steps   []string
	events  []string
}

func (f *fakeRepo) BalanceForUpdate(_ context.Context, _ pgx.Tx, _ string) (int64, error) {
	f.steps = append(f.steps, "read")
	return f.balance, nil
}

func (f *fakeRepo) Zero(_ context.Context, _ pgx.Tx, _ string) error {
	f.steps = append(f.steps, "zero")
	f.zeroed = true
	f.balance = 0
	return nil
}

func (f *fakeRepo) Emit(_ context.Context, _ pgx.Tx, topic string, _ map[string]any) error {
	f.events = append(f.events, topic)
	return nil
}

type fakeTransferer struct {
	err   error
	calls int
	steps *[]string
}

func (f *fakeTransferer) Transfer(_ context.Context, _ string, _ int64) error {
	f.calls++
	if f.steps != nil {
		*f.steps = append(*f.steps, "transfer")
	}
	return f.err
}

type fakePauser struct{ err error }

func (f fakePauser) Ensure(context.Context) error { return f.err }

func TestWithdraw_ZeroBeforeTransfer(t *testing.T) {
	repo := &fakeRepo{balance: 500}
	transferer := &fakeTransferer{steps: &repo.steps}
	pool := &fakePool{}
	svc := NewService(pool, repo, transferer, NewTransferGuard(), fakePauser{})

	amount, err := svc.Withdraw(context.Background(), "acct-1")
	if err != nil {
		t.Fatalf("withdraw: %v", err)
	}
	if amount != 500 {
		t.Fatalf("expected amount 500, got %d", amount)
	}

	want := []string{"read", "zero", "transfer"}
	if len(repo.steps) != len(want) {
		t.Fatalf("unexpected step sequence %v", repo.steps)
	}
	for i, s := range want {
		if repo.steps[i] != s {
			t.Fatalf("step %d: expected %s got %s (full: %v)", i, s, repo.steps[i], repo.steps)
		}
	}
	if !pool.tx.committed {
		t.Fatal("expected commit")
	}
	if len(repo.events) != 1 || repo.events[0] != "payout.refund_issued" {
		t.Fatalf("unexpected events %v", repo.events)
	}
}

func TestWithdraw_NoBalance(t *testing.T) {
	repo := &fakeRepo{balance: 0}
	pool := &fakePool{}
	svc := NewService(pool, repo, &fakeTransferer{}, NewTransferGuard(), fakePauser{})

	if _, err := svc.Withdraw(context.Background(), "acct-1"); !errors.Is(err, ErrNoBalance) {
		t.Fatalf("expected ErrNoBalance, got %v", err)
	}
	if pool.tx.committed {
		t.Fatal("commit must be skipped when nothing is owed")
	}
}

func TestWithdraw_TransferFailureAborts(t *testing.T) {
	repo := &fakeRepo{balance: 250}
	pool := &fakePool{}
	svc := NewService(pool, repo, &fakeTransferer{err: errors.New("rail down")}, NewTransferGuard(), fakePauser{})

	if _, err := svc.Withdraw(context.Background(), "acct-1"); err == nil {
		t.Fatal("expected transfer error")
	}
	if pool.tx.committed {
		t.Fatal("transfer failure must abort the transaction")
	}
	if !pool.tx.rolled {
		t.Fatal("expected rollback on transfer failure")
	}
}

func TestWithdraw_ReentryRejected(t *testing.T) {
	guard := NewTransferGuard()
	if err := guard.Enter(); err != nil {
		t.Fatalf("enter: %v", err)
	}

	svc := NewService(&fakePool{}, &fakeRepo{balance: 10}, &fakeTransferer{}, guard, fakePauser{})
	if _, err := svc.Withdraw(context.Background(), "acct-1"); !errors.Is(err, ErrReentrantCall) {
		t.Fatalf("expected ErrReentrantCall, got %v", err)
	}

	guard.Leave()
	if _, err := svc.Withdraw(context.Background(), "acct-1"); errors.Is(err, ErrReentrantCall) {
		t.Fatal("guard must be reusable after release")
	}
}

func TestWithdraw_Paused(t *testing.T) {
	paused := errors.New("admin: platform paused")
	svc := NewService(&fakePool{}, &fakeRepo{balance: 10}, &fakeTransferer{}, NewTransferGuard(), fakePauser{err: paused})
	if _, err := svc.Withdraw(context.Background(), "acct-1"); !errors.Is(err, paused) {
		t.Fatalf("expected pause error, got %v", err)
	}
}

type fakePool struct {
	tx *fakeTx
}

func (f *fakePool) Begin(ctx context.Context) (pgx.Tx, error) {
	f.tx = &fakeTx{}
	return f.tx, nil
}

type fakeTx struct {
	rolled    bool
	committed bool
}

func (f *fakeTx) Begin(context.Context) (pgx.Tx, error) {
	return nil, errors.New("fakeTx does not support nested transactions")
}

func (f *fakeTx) Commit(context.Context) error {
	f.committed = true
	return nil
}

func (f *fakeTx) Rollback(context.Context) error {
	f.rolled = true
	return nil
}

func (f *fakeTx) CopyFrom(context.Context, pgx.Identifier, []string, pgx.CopyFromSource) (int64, error) {
	panic("not implemented")
}

func (f *fakeTx) SendBatch(context.Context, *pgx.Batch) pgx.BatchResults {
	panic("not implemented")
}

func (f *fakeTx) LargeObjects() pgx.LargeObjects {
	panic("not implemented")
}

func (f *fakeTx) Prepare(context.Context, string, string) (*pgconn.StatementDescription, error) {
	panic("not implemented")
}

func (f *fakeTx) Exec(context.Context, string, ...any) (pgconn.CommandTag, error) {
	panic("not implemented")
}

func (f *fakeTx) Query(context.Context, string, ...any) (pgx.Rows, error) {
	panic("not implemented")
}

func (f *fakeTx) QueryRow(context.Context, string, ...any) pgx.Row {
	panic("not implemented")
}

func (f *fakeTx) Conn() *pgx.Conn {
	return nil
}
