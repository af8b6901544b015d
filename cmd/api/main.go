package main

import (
	"context"
	"crypto/ed25519"
	"encoding/hex"
	"log"
	"net/http"
	"os"
	"time"

	"golang.org/x/sync/errgroup"

	"claimledger/account"
	"claimledger/admin"
	"claimledger/config"
	"claimledger/db"
	"claimledger/dispute"
	"claimledger/escrow"
	"claimledger/events"
	"claimledger/fingerprint"
	"claimledger/identity"
	"claimledger/oracle"
	"claimledger/verification"
	"claimledger/work"
)

func main() {
	ctx := context.Background()

	policy, err := config.FromEnv()
	if err != nil {
		log.Fatalf("load policy: %v", err)
	}

	pool, err := db.NewPool(ctx, os.Getenv("DATABASE_URL"))
	if err != nil {
		log.Fatalf("bootstrap database pool: %v", err)
	}
	defer pool.Close()

	sealKey, err := hex.DecodeString(os.Getenv("FINGERPRINT_KEY"))
	if err != nil {
		log.Fatalf("decode FINGERPRINT_KEY: %v", err)
	}
	sealer, err := fingerprint.NewSealer(sealKey, policy.FingerprintBits)
	if err != nil {
		log.Fatalf("build sealer: %v", err)
	}

	oracleRepo := oracle.NewRepository(pool)

	// Production deployments point ORACLE_URL at the decryption service
	// and trust its published key. Without one, an in-process simulator
	// answers requests; useful for dev environments.
	var (
		client   oracle.Client
		verifier *oracle.Verifier
		sim      *oracle.Simulator
	)
	if url := os.Getenv("ORACLE_URL"); url != "" {
		pub, err := hex.DecodeString(os.Getenv("ORACLE_PUBLIC_KEY"))
		if err != nil || len(pub) != ed25519.PublicKeySize {
			log.Fatalf("ORACLE_PUBLIC_KEY must be a %d-byte hex key", ed25519.PublicKeySize)
		}
		client = oracle.NewHTTPClient(url)
		verifier = oracle.NewVerifier(ed25519.PublicKey(pub))
	} else {
		pub, priv, err := ed25519.GenerateKey(nil)
		if err != nil {
			log.Fatalf("generate oracle keypair: %v", err)
		}
		sim = oracle.NewSimulator(sealer, oracle.NewSigner(priv))
		client = sim
		verifier = oracle.NewVerifier(pub)
		log.Printf("no ORACLE_URL set, using in-process oracle simulator")
	}

	dispatcher := oracle.NewDispatcher(verifier, oracleRepo)
	if sim != nil {
		sim.Attach(dispatcher)
	}

	transferer := escrow.NewPayoutClient(os.Getenv("PAYOUT_URL"))
	guard := escrow.NewTransferGuard()

	adminRepo := admin.NewRepository(pool)
	adminService := admin.NewService(pool, adminRepo, transferer, guard)
	if os.Getenv("REGISTRATION_FEE") != "" {
		if err := adminService.SetRegistrationFee(ctx, policy.RegistrationFee); err != nil {
			log.Fatalf("apply registration fee: %v", err)
		}
	}

	accountService := account.NewService(account.NewRepository(pool), os.Getenv("JWT_SECRET"))
	identityService := identity.NewService(identity.NewRepository(pool), adminService)
	workService := work.NewService(work.NewRepository(pool), adminService)
	escrowRepo := escrow.NewRepository(pool)
	escrowService := escrow.NewService(pool, escrowRepo, transferer, guard, adminService)

	verificationService := verification.NewService(verification.Config{
		Pool:       pool,
		Repo:       verification.NewRepository(pool, oracleRepo),
		Client:     client,
		Encryptor:  sealer,
		Pauser:     adminService,
		Transferer: transferer,
		Guard:      guard,
		MinDeposit: policy.MinVerificationDeposit,
		Timeout:    policy.VerificationTimeout,
	})
	disputeService := dispute.NewService(dispute.Config{
		Pool:       pool,
		Repo:       dispute.NewRepository(pool, oracleRepo),
		Client:     client,
		Encryptor:  sealer,
		Pauser:     adminService,
		Transferer: transferer,
		Guard:      guard,
		MinDeposit: policy.DisputeDeposit,
		MaxPerWork: policy.MaxDisputesPerWork,
		Timeout:    policy.DisputeTimeout,
	})

	dispatcher.Register(oracle.KindVerification, verificationService)
	dispatcher.Register(oracle.KindDisputeResolution, disputeService)

	server := &Server{
		accountService:      accountService,
		identityService:     identityService,
		workService:         workService,
		verificationService: verificationService,
		disputeService:      disputeService,
		escrowService:       escrowService,
		balances:            escrowRepo,
		adminService:        adminService,
		dispatcher:          dispatcher,
		encryptor:           sealer,
		fingerprintBits:     policy.FingerprintBits,
	}

	addr := os.Getenv("LISTEN_ADDR")
	if addr == "" {
		addr = ":8080"
	}
	httpServer := &http.Server{
		Addr:              addr,
		Handler:           server.routes(),
		ReadHeaderTimeout: 5 * time.Second,
	}

	relay := events.NewRelay(pool, events.LogPublisher{})

	group, ctx := errgroup.WithContext(ctx)
	group.Go(func() error {
		return relay.Run(ctx)
	})
	group.Go(func() error {
		log.Printf("listening on %s", addr)
		return httpServer.ListenAndServe()
	})
	if err := group.Wait(); err != nil {
		log.Fatalf("serve: %v", err)
	}
}
