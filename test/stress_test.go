package test

import (
	"context"
	"crypto/ed25519"
	"crypto/rand"
	"errors"
	"flag"
	"fmt"
	"io"
	mrand "math/rand"
	"os"
	"os/exec"
	"testing"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"golang.org/x/crypto/chacha20poly1305"
	"golang.org/x/sync/errgroup"

	"claimledger/admin"
	"claimledger/dispute"
	"claimledger/escrow"
	"claimledger/fingerprint"
	"claimledger/oracle"
	"claimledger/test/actors"
	"claimledger/test/chaos"
	"claimledger/test/infra"
	"claimledger/test/oracles"
	"claimledger/verification"
)

var (
	flDuration    = flag.Duration("duration", 90*time.Second, "how long to run stress")
	flConcurrency = flag.Int("concurrency", 8, "number of concurrent actors")
	flSeed        = flag.Int64("seed", time.Now().UnixNano(), "random seed")
	flDSN         = flag.String("dsn", "", "existing Postgres DSN to reuse (avoids Docker)")
	flChaos       = flag.Bool("chaos", false, "randomly terminate database backends while running")
)

func TestLedgerConcurrency(t *testing.T) {
	flag.Parse()
	seed := *flSeed
	mrand.Seed(seed)

	var (
		pgC        *infra.PGContainer
		dsn        string
		err        error
		usedShared bool
	)
	ctx, cancel := context.WithTimeout(context.Background(), *flDuration+60*time.Second)
	defer cancel()

	switch {
	case *flDSN != "":
		dsn = *flDSN
		usedShared = true
		pgC = &infra.PGContainer{}
	case os.Getenv("STRESS_TEST_PG_DSN") != "":
		dsn = os.Getenv("STRESS_TEST_PG_DSN")
		usedShared = true
		pgC = &infra.PGContainer{}
	default:
		if dockerAvailable(ctx) {
			pgC, dsn, err = infra.StartPostgres16(ctx, "")
			if err != nil {
				t.Fatalf("start postgres: %v", err)
			}
		} else {
			dsn, err = infra.InitLocalDatabase(ctx)
			if err != nil {
				t.Fatalf("init local database: %v", err)
			}
			pgC = &infra.PGContainer{}
		}
	}
	defer pgC.Terminate(context.Background())

	pool, teardown, err := infra.ApplyMigrations(ctx, dsn, usedShared)
	if err != nil {
		t.Fatalf("apply migrations: %v", err)
	}
	defer pool.Close()
	defer func() {
		if err := teardown(context.Background()); err != nil {
			t.Logf("teardown warning: %v", err)
		}
	}()

	env := mustSeed(t, ctx, pool)

	g, ctx2 := errgroup.WithContext(ctx)
	stop := make(chan struct{})

	for i := 0; i < *flConcurrency; i++ {
		g.Go(func() error { return actors.Submitter(ctx2, env, stop) })
		g.Go(func() error { return actors.TimeoutClaimer(ctx2, env, stop) })
	}
	g.Go(func() error { return actors.Answerer(ctx2, env, stop) })
	g.Go(func() error { return actors.DisputeCycler(ctx2, env, stop) })
	g.Go(func() error { return actors.OutboxWorker(ctx2, env, stop) })
	if *flChaos {
		go chaos.TerminateRandomBackend(ctx2, pool, stop)
	}

	deadline := time.Now().Add(*flDuration)
	ticker := time.NewTicker(2 * time.Second)
	defer ticker.Stop()

	var failed bool
loop:
	for time.Now().Before(deadline) {
		select {
		case <-ctx.Done():
			break loop
		case <-ticker.C:
			name, row, err := oracles.Run(ctx2, pool)
			if err != nil {
				if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
					break loop
				}
				t.Fatalf("oracle error: %v", err)
			}
			if name != "" {
				failed = true
				dumpRecent(t, ctx2, pool)
				t.Fatalf("Oracle %s failed. First row: %s (seed=%d)", name, row, seed)
			}
		}
	}

	close(stop)
	if err := g.Wait(); err != nil && !failed {
		if !errors.Is(err, context.Canceled) && !errors.Is(err, context.DeadlineExceeded) {
			t.Fatalf("actors errored: %v", err)
		}
	}
}

func dockerAvailable(ctx context.Context) bool {
	if _, err := exec.LookPath("docker"); err != nil {
		return false
	}
	c := exec.CommandContext(ctx, "docker", "info")
	c.Stdout = io.Discard
	c.Stderr = io.Discard
	return c.Run() == nil
}

// nopTransferer stands in for the payout rail; the race under test is in
// the state machines, not the outbound HTTP call.
type nopTransferer struct{}

func (nopTransferer) Transfer(context.Context, string, int64) error { return nil }

func mustSeed(t *testing.T, ctx context.Context, pool *pgxpool.Pool) *actors.Env {
	t.Helper()

	key := make([]byte, chacha20poly1305.KeySize)
	if _, err := rand.Read(key); err != nil {
		t.Fatalf("seed key: %v", err)
	}
	sealer, err := fingerprint.NewSealer(key, 32)
	if err != nil {
		t.Fatalf("build sealer: %v", err)
	}
	pub, priv, err := ed25519.GenerateKey(nil)
	if err != nil {
		t.Fatalf("oracle keypair: %v", err)
	}

	accounts := map[string]string{}
	for _, name := range []string{"owner", "requester", "challenger"} {
		var id string
		err := pool.QueryRow(ctx, `
			INSERT INTO accounts (email, display_name, password_hash)
			VALUES ($1, $2, 'x') RETURNING id
		`, fmt.Sprintf("%s-%d@example.com", name, mrand.Int63()), name).Scan(&id)
		if err != nil {
			t.Fatalf("seed account %s: %v", name, err)
		}
		accounts[name] = id
	}

	for _, name := range []string{"owner", "challenger"} {
		handle, err := sealer.Seal(uint64(mrand.Int63()))
		if err != nil {
			t.Fatalf("seal identity: %v", err)
		}
		if _, err := pool.Exec(ctx, `
			INSERT INTO identities (account_id, identity_handle) VALUES ($1, $2)
		`, accounts[name], []byte(handle)); err != nil {
			t.Fatalf("seed identity %s: %v", name, err)
		}
	}

	fpHandle, err := sealer.Seal(42)
	if err != nil {
		t.Fatalf("seal fingerprint: %v", err)
	}
	authorHandle, err := sealer.Seal(7)
	if err != nil {
		t.Fatalf("seal author: %v", err)
	}
	var workID int64
	err = pool.QueryRow(ctx, `
		INSERT INTO works (fingerprint_handle, author_handle, owner_account, title, category, fee_paid)
		VALUES ($1, $2, $3, 'Stress Work', 'testing', 1000) RETURNING id
	`, []byte(fpHandle), []byte(authorHandle), accounts["owner"]).Scan(&workID)
	if err != nil {
		t.Fatalf("seed work: %v", err)
	}

	oracleRepo := oracle.NewRepository(pool)
	sim := oracle.NewSimulator(sealer, oracle.NewSigner(priv))
	dispatcher := oracle.NewDispatcher(oracle.NewVerifier(pub), oracleRepo)
	sim.Attach(dispatcher)

	guard := escrow.NewTransferGuard()
	adminService := admin.NewService(pool, admin.NewRepository(pool), nopTransferer{}, guard)

	verificationService := verification.NewService(verification.Config{
		Pool:       pool,
		Repo:       verification.NewRepository(pool, oracleRepo),
		Client:     sim,
		Encryptor:  sealer,
		Pauser:     adminService,
		Transferer: nopTransferer{},
		Guard:      guard,
		MinDeposit: 1000,
		Timeout:    150 * time.Millisecond,
	})
	disputeService := dispute.NewService(dispute.Config{
		Pool:       pool,
		Repo:       dispute.NewRepository(pool, oracleRepo),
		Client:     sim,
		Encryptor:  sealer,
		Pauser:     adminService,
		Transferer: nopTransferer{},
		Guard:      guard,
		MinDeposit: 5000,
		MaxPerWork: 1 << 20,
		Timeout:    300 * time.Millisecond,
	})
	dispatcher.Register(oracle.KindVerification, verificationService)
	dispatcher.Register(oracle.KindDisputeResolution, disputeService)

	return &actors.Env{
		Pool:         pool,
		Verification: verificationService,
		Dispute:      disputeService,
		Sim:          sim,
		WorkID:       workID,
		Owner:        accounts["owner"],
		Requester:    accounts["requester"],
		Challenger:   accounts["challenger"],
	}
}

func dumpRecent(t *testing.T, ctx context.Context, pool *pgxpool.Pool) {
	t.Helper()
	type dump struct {
		name string
		sql  string
	}
	dumps := []dump{
		{"verification_requests", `SELECT request_id, requester, work_id, deposit, completed, refunded FROM verification_requests ORDER BY requested_at DESC LIMIT 50`},
		{"disputes", `SELECT work_id, idx, challenger, resolved, winner FROM disputes ORDER BY filed_at DESC LIMIT 50`},
		{"pending_requests", `SELECT request_id, kind, work_id, dispute_idx, settled FROM pending_requests ORDER BY created_at DESC LIMIT 50`},
		{"outbox", `SELECT id, topic, status, attempts, created_at FROM outbox ORDER BY id DESC LIMIT 50`},
		{"escrow_balances", `SELECT account_id, amount FROM escrow_balances ORDER BY amount DESC LIMIT 20`},
	}
	for _, d := range dumps {
		rows, err := pool.Query(ctx, d.sql)
		if err != nil {
			t.Logf("dump %s error: %v", d.name, err)
			continue
		}
		cols := rows.FieldDescriptions()
		t.Logf("-- %s --", d.name)
		for rows.Next() {
			vals, _ := rows.Values()
			buf := make([]any, 0, len(vals))
			for i := range vals {
				buf = append(buf, fmt.Sprintf("%s=%v", string(cols[i].Name), vals[i]))
			}
			t.Logf("%s", buf)
		}
		rows.Close()
	}
}
