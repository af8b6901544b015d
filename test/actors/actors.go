package actors

import (
	"context"
	"errors"
	"math/rand"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgxpool"

	"claimledger/dispute"
	"claimledger/escrow"
	"claimledger/oracle"
	"claimledger/verification"
)

// Env bundles the live services and seeded identifiers the actors operate
// on. All actors share one work so they contend on the same rows.
type Env struct {
	Pool         *pgxpool.Pool
	Verification *verification.Service
	Dispute      *dispute.Service
	Sim          *oracle.Simulator

	WorkID     int64
	Owner      string
	Requester  string
	Challenger string
}

// requestFeed passes freshly submitted request ids from submitters to the
// answerer and timeout claimers so both terminal paths race on them.
type requestFeed struct {
	mu  sync.Mutex
	ids []uuid.UUID
}

func (f *requestFeed) push(id uuid.UUID) {
	f.mu.Lock()
	f.ids = append(f.ids, id)
	f.mu.Unlock()
}

func (f *requestFeed) random() (uuid.UUID, bool) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if len(f.ids) == 0 {
		return uuid.Nil, false
	}
	return f.ids[rand.Intn(len(f.ids))], true
}

var sharedFeed = &requestFeed{}

// settled reports whether err is an expected loss under contention rather
// than a real failure.
func settled(err error) bool {
	return errors.Is(err, verification.ErrAlreadyFinalized) ||
		errors.Is(err, verification.ErrTimeoutNotReached) ||
		errors.Is(err, verification.ErrRequestNotFound) ||
		errors.Is(err, dispute.ErrAlreadyFinalized) ||
		errors.Is(err, dispute.ErrAlreadyResolved) ||
		errors.Is(err, dispute.ErrTimeoutNotReached) ||
		errors.Is(err, dispute.ErrResolutionNotRequested) ||
		errors.Is(err, dispute.ErrTooManyDisputes) ||
		errors.Is(err, escrow.ErrReentrantCall) ||
		errors.Is(err, oracle.ErrUnknownRequest) ||
		errors.Is(err, oracle.ErrAlreadyFinalized)
}

// Submitter files verification requests against the shared work.
func Submitter(ctx context.Context, env *Env, stop <-chan struct{}) error {
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-stop:
			return nil
		default:
		}
		id, err := env.Verification.Submit(ctx, env.Requester, env.WorkID, 42, 1000)
		if err != nil {
			return err
		}
		sharedFeed.push(id)
		time.Sleep(time.Duration(10+rand.Intn(30)) * time.Millisecond)
	}
}

// Answerer delivers oracle callbacks for random in-flight requests,
// racing the timeout claimers to the terminal state.
func Answerer(ctx context.Context, env *Env, stop <-chan struct{}) error {
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-stop:
			return nil
		default:
		}
		if id, ok := sharedFeed.random(); ok {
			if err := env.Sim.Answer(ctx, id); err != nil && !settled(err) {
				return err
			}
		}
		time.Sleep(time.Duration(5+rand.Intn(25)) * time.Millisecond)
	}
}

// TimeoutClaimer hammers the timeout path on random requests. Most
// attempts lose to the answerer or the window; losing must be clean.
func TimeoutClaimer(ctx context.Context, env *Env, stop <-chan struct{}) error {
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-stop:
			return nil
		default:
		}
		if id, ok := sharedFeed.random(); ok {
			if _, err := env.Verification.ClaimTimeout(ctx, env.Requester, id); err != nil && !settled(err) && !errors.Is(err, verification.ErrNotRequester) {
				return err
			}
		}
		time.Sleep(time.Duration(5+rand.Intn(25)) * time.Millisecond)
	}
}

// DisputeCycler files disputes, forces resolution, and races callbacks
// against dispute timeout claims.
func DisputeCycler(ctx context.Context, env *Env, stop <-chan struct{}) error {
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-stop:
			return nil
		default:
		}
		idx, err := env.Dispute.File(ctx, env.Challenger, env.WorkID, 42, 5000)
		if err != nil {
			if settled(err) {
				time.Sleep(50 * time.Millisecond)
				continue
			}
			return err
		}
		id, err := env.Dispute.RequestResolution(ctx, env.Challenger, env.WorkID, idx)
		if err != nil {
			if settled(err) {
				continue
			}
			return err
		}
		switch rand.Intn(3) {
		case 0:
			if err := env.Sim.Answer(ctx, id); err != nil && !settled(err) {
				return err
			}
		case 1:
			if _, err := env.Dispute.ClaimTimeout(ctx, env.Challenger, env.WorkID, idx); err != nil && !settled(err) {
				return err
			}
		}
		time.Sleep(time.Duration(30+rand.Intn(60)) * time.Millisecond)
	}
}

// OutboxWorker consumes pending outbox rows with SKIP LOCKED, simulating
// a flaky downstream publisher.
func OutboxWorker(ctx context.Context, env *Env, stop <-chan struct{}) error {
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-stop:
			return nil
		default:
		}
		tx, err := env.Pool.Begin(ctx)
		if err != nil {
			return err
		}
		rows, err := tx.Query(ctx, `SELECT id FROM outbox WHERE status='pending' ORDER BY id FOR UPDATE SKIP LOCKED LIMIT 10`)
		if err != nil {
			_ = tx.Rollback(ctx)
			time.Sleep(50 * time.Millisecond)
			continue
		}
		ids := make([]int64, 0, 10)
		for rows.Next() {
			var id int64
			_ = rows.Scan(&id)
			ids = append(ids, id)
		}
		rows.Close()
		for _, id := range ids {
			if rand.Intn(10) == 0 {
				_, _ = tx.Exec(ctx, `UPDATE outbox SET attempts = attempts + 1 WHERE id = $1`, id)
				continue
			}
			_, _ = tx.Exec(ctx, `UPDATE outbox SET status = 'published' WHERE id = $1`, id)
		}
		_ = tx.Commit(ctx)
		time.Sleep(100 * time.Millisecond)
	}
}
