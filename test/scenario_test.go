package test

import (
	"context"
	"crypto/ed25519"
	"crypto/rand"
	"errors"
	"fmt"
	"os"
	"sync"
	"testing"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"golang.org/x/crypto/chacha20poly1305"

	"claimledger/admin"
	"claimledger/dispute"
	"claimledger/escrow"
	"claimledger/fingerprint"
	"claimledger/identity"
	"claimledger/oracle"
	"claimledger/verification"
	"claimledger/work"
)

// recordingTransferer captures outbound transfers so the test can assert
// on who got paid what.
type recordingTransferer struct {
	mu        sync.Mutex
	transfers []struct {
		Account string
		Amount  int64
	}
}

func (r *recordingTransferer) Transfer(_ context.Context, account string, amount int64) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.transfers = append(r.transfers, struct {
		Account string
		Amount  int64
	}{account, amount})
	return nil
}

func (r *recordingTransferer) total(account string) int64 {
	r.mu.Lock()
	defer r.mu.Unlock()
	var sum int64
	for _, tr := range r.transfers {
		if tr.Account == account {
			sum += tr.Amount
		}
	}
	return sum
}

func TestFullLedgerScenario(t *testing.T) {
	dsn := os.Getenv("DATABASE_URL")
	if dsn == "" {
		t.Skip("DATABASE_URL not set; skipping integration test")
	}

	ctx, cancel := context.WithTimeout(context.Background(), 60*time.Second)
	defer cancel()

	pool, err := pgxpool.New(ctx, dsn)
	if err != nil {
		t.Fatalf("connect pool: %v", err)
	}
	defer pool.Close()

	for _, tbl := range []string{
		"accounts", "identities", "works", "verification_requests",
		"disputes", "escrow_balances", "pending_requests", "platform", "outbox",
	} {
		if !tableExists(ctx, pool, tbl) {
			t.Skipf("table %s does not exist; ensure migrations are applied", tbl)
		}
	}

	key := make([]byte, chacha20poly1305.KeySize)
	if _, err := rand.Read(key); err != nil {
		t.Fatalf("key: %v", err)
	}
	sealer, err := fingerprint.NewSealer(key, 32)
	if err != nil {
		t.Fatalf("sealer: %v", err)
	}
	pub, priv, err := ed25519.GenerateKey(nil)
	if err != nil {
		t.Fatalf("keypair: %v", err)
	}

	oracleRepo := oracle.NewRepository(pool)
	sim := oracle.NewSimulator(sealer, oracle.NewSigner(priv))
	dispatcher := oracle.NewDispatcher(oracle.NewVerifier(pub), oracleRepo)
	sim.Attach(dispatcher)

	payouts := &recordingTransferer{}
	guard := escrow.NewTransferGuard()
	adminService := admin.NewService(pool, admin.NewRepository(pool), payouts, guard)
	identityService := identity.NewService(identity.NewRepository(pool), adminService)
	workService := work.NewService(work.NewRepository(pool), adminService)
	escrowService := escrow.NewService(pool, escrow.NewRepository(pool), payouts, guard, adminService)
	escrowRepo := escrow.NewRepository(pool)

	verificationService := verification.NewService(verification.Config{
		Pool:       pool,
		Repo:       verification.NewRepository(pool, oracleRepo),
		Client:     sim,
		Encryptor:  sealer,
		Pauser:     adminService,
		Transferer: payouts,
		Guard:      guard,
		MinDeposit: 1000,
		Timeout:    200 * time.Millisecond,
	})
	disputeService := dispute.NewService(dispute.Config{
		Pool:       pool,
		Repo:       dispute.NewRepository(pool, oracleRepo),
		Client:     sim,
		Encryptor:  sealer,
		Pauser:     adminService,
		Transferer: payouts,
		Guard:      guard,
		MinDeposit: 5000,
		MaxPerWork: 10,
		Timeout:    200 * time.Millisecond,
	})
	dispatcher.Register(oracle.KindVerification, verificationService)
	dispatcher.Register(oracle.KindDisputeResolution, disputeService)

	mkAccount := func(name string) string {
		var id string
		err := pool.QueryRow(ctx, `
			INSERT INTO accounts (email, display_name, password_hash)
			VALUES ($1, $2, 'x') RETURNING id
		`, fmt.Sprintf("scenario-%s-%d@example.com", name, time.Now().UnixNano()), name).Scan(&id)
		if err != nil {
			t.Fatalf("seed account %s: %v", name, err)
		}
		return id
	}
	owner := mkAccount("owner")
	requester := mkAccount("requester")
	challenger := mkAccount("challenger")

	seal := func(v uint64) fingerprint.Handle {
		h, err := sealer.Seal(v)
		if err != nil {
			t.Fatalf("seal %d: %v", v, err)
		}
		return h
	}
	if _, err := identityService.Register(ctx, owner, seal(7)); err != nil {
		t.Fatalf("register owner identity: %v", err)
	}
	if _, err := identityService.Register(ctx, challenger, seal(8)); err != nil {
		t.Fatalf("register challenger identity: %v", err)
	}
	if _, err := identityService.Register(ctx, owner, seal(7)); !errors.Is(err, identity.ErrAlreadyRegistered) {
		t.Fatalf("re-registration: got %v, want ErrAlreadyRegistered", err)
	}

	w, err := workService.Register(ctx, work.CreateParams{
		OwnerAccount: owner,
		Fingerprint:  seal(42),
		Title:        "Nocturne in B minor",
		Category:     "music",
		Fee:          1000,
	})
	if err != nil {
		t.Fatalf("register work: %v", err)
	}

	// Matching verification: callback marks the work verified and credits
	// the requester's escrow with the deposit.
	reqID, err := verificationService.Submit(ctx, requester, w.ID, 42, 1500)
	if err != nil {
		t.Fatalf("submit verification: %v", err)
	}
	if err := sim.Answer(ctx, reqID); err != nil {
		t.Fatalf("answer verification: %v", err)
	}
	got, err := workService.GetByID(ctx, w.ID)
	if err != nil {
		t.Fatalf("get work: %v", err)
	}
	if !got.Verified {
		t.Fatal("work not marked verified after matching callback")
	}
	if bal, _ := escrowRepo.Balance(ctx, requester); bal != 1500 {
		t.Fatalf("requester escrow = %d, want 1500", bal)
	}

	// Unanswered verification: strictly after the window the requester
	// reclaims the deposit as a direct transfer.
	reqID2, err := verificationService.Submit(ctx, requester, w.ID, 43, 1000)
	if err != nil {
		t.Fatalf("submit second verification: %v", err)
	}
	time.Sleep(300 * time.Millisecond)
	refund, err := verificationService.ClaimTimeout(ctx, requester, reqID2)
	if err != nil {
		t.Fatalf("claim verification timeout: %v", err)
	}
	if refund != 1000 || payouts.total(requester) != 1000 {
		t.Fatalf("timeout refund = %d, transferred = %d, want 1000/1000", refund, payouts.total(requester))
	}
	if err := sim.Answer(ctx, reqID2); !errors.Is(err, oracle.ErrAlreadyFinalized) {
		t.Fatalf("answering a timed-out request: got %v, want ErrAlreadyFinalized", err)
	}

	// Dispute with a different fingerprint: owner wins, prize to owner escrow.
	idx, err := disputeService.File(ctx, challenger, w.ID, 99, 5000)
	if err != nil {
		t.Fatalf("file dispute: %v", err)
	}
	dispReq, err := disputeService.RequestResolution(ctx, challenger, w.ID, idx)
	if err != nil {
		t.Fatalf("request resolution: %v", err)
	}
	if err := sim.Answer(ctx, dispReq); err != nil {
		t.Fatalf("answer dispute: %v", err)
	}
	var winner *string
	if err := pool.QueryRow(ctx, `SELECT winner::text FROM disputes WHERE work_id=$1 AND idx=$2`, w.ID, idx).Scan(&winner); err != nil {
		t.Fatalf("read dispute winner: %v", err)
	}
	if winner == nil || *winner != owner {
		t.Fatalf("dispute winner = %v, want owner %s", winner, owner)
	}
	if bal, _ := escrowRepo.Balance(ctx, owner); bal != 5000 {
		t.Fatalf("owner escrow = %d, want 5000", bal)
	}

	// Dispute the oracle never answers: the challenger reclaims the
	// deposit after the window and the dispute closes with no winner.
	idx2, err := disputeService.File(ctx, challenger, w.ID, 42, 5000)
	if err != nil {
		t.Fatalf("file second dispute: %v", err)
	}
	if _, err := disputeService.RequestResolution(ctx, challenger, w.ID, idx2); err != nil {
		t.Fatalf("request second resolution: %v", err)
	}
	time.Sleep(300 * time.Millisecond)
	refund, err = disputeService.ClaimTimeout(ctx, challenger, w.ID, idx2)
	if err != nil {
		t.Fatalf("claim dispute timeout: %v", err)
	}
	if refund != 5000 || payouts.total(challenger) != 5000 {
		t.Fatalf("dispute refund = %d, transferred = %d, want 5000/5000", refund, payouts.total(challenger))
	}
	if err := pool.QueryRow(ctx, `SELECT winner::text FROM disputes WHERE work_id=$1 AND idx=$2`, w.ID, idx2).Scan(&winner); err != nil {
		t.Fatalf("read second dispute: %v", err)
	}
	if winner != nil {
		t.Fatalf("timed-out dispute winner = %v, want none", *winner)
	}

	// Escrow withdrawal zeroes the balance before the transfer goes out.
	before := payouts.total(requester)
	amount, err := escrowService.Withdraw(ctx, requester)
	if err != nil {
		t.Fatalf("withdraw: %v", err)
	}
	if amount != 1500 || payouts.total(requester)-before != 1500 {
		t.Fatalf("withdrawal = %d, transferred = %d, want 1500/1500", amount, payouts.total(requester)-before)
	}
	if bal, _ := escrowRepo.Balance(ctx, requester); bal != 0 {
		t.Fatalf("requester escrow after withdrawal = %d, want 0", bal)
	}
	if _, err := escrowService.Withdraw(ctx, requester); !errors.Is(err, escrow.ErrNoBalance) {
		t.Fatalf("second withdrawal: got %v, want ErrNoBalance", err)
	}
}

func tableExists(ctx context.Context, pool *pgxpool.Pool, table string) bool {
	var exists bool
	err := pool.QueryRow(ctx, `SELECT EXISTS (
		SELECT 1 FROM information_schema.tables
		WHERE table_schema = current_schema() AND table_name = $1
	)`, table).Scan(&exists)
	return err == nil && exists
}
