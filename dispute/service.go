package dispute

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"

	"claimledger/escrow"
	"claimledger/events"
	"claimledger/fingerprint"
	"claimledger/oracle"
)

var (
	// ErrInsufficientDeposit signals a deposit below the dispute stake.
	ErrInsufficientDeposit = errors.New("dispute: insufficient deposit")
	// ErrInvalidFingerprint signals a zero-equivalent challenger fingerprint.
	ErrInvalidFingerprint = errors.New("dispute: invalid fingerprint")
	// ErrNotRegistered signals a challenger with no registered identity.
	ErrNotRegistered = errors.New("dispute: challenger not registered")
	// ErrSelfDispute signals a challenge against the caller's own work.
	ErrSelfDispute = errors.New("dispute: cannot dispute own work")
	// ErrTooManyDisputes signals the per-work dispute list is full.
	ErrTooManyDisputes = errors.New("dispute: too many disputes for work")
	// ErrNotAuthorized signals a resolution request by a third party.
	ErrNotAuthorized = errors.New("dispute: caller is neither challenger nor owner")
	// ErrNotChallenger signals a timeout claim by anyone but the challenger.
	ErrNotChallenger = errors.New("dispute: caller is not the challenger")
	// ErrResolutionNotRequested signals a timeout claim on a dispute whose
	// clock never started.
	ErrResolutionNotRequested = errors.New("dispute: resolution not requested")
	// ErrTimeoutNotReached signals a timeout claim inside the window.
	ErrTimeoutNotReached = errors.New("dispute: timeout not reached")
)

// TxBeginner abstracts pgxpool.Pool for testability.
type TxBeginner interface {
	Begin(ctx context.Context) (pgx.Tx, error)
}

// Pauser gates mutating entry points behind the platform pause flag.
type Pauser interface {
	Ensure(ctx context.Context) error
}

// Service is the challenge state machine: Filed, then optionally
// ResolutionRequested, then exactly one of Resolved (oracle answered) or
// TimedOut (challenger reclaimed). A dispute may sit in Filed forever;
// only a resolution request starts its timeout clock, and each dispute
// against a work runs its clock independently.
type Service struct {
	pool       TxBeginner
	repo       Repository
	client     oracle.Client
	enc        fingerprint.Encryptor
	pauser     Pauser
	transferer escrow.Transferer
	guard      *escrow.TransferGuard

	minDeposit int64
	maxPerWork int
	timeout    time.Duration
	now        func() time.Time
}

// Config carries the construction-time dependencies of the service.
type Config struct {
	Pool       TxBeginner
	Repo       Repository
	Client     oracle.Client
	Encryptor  fingerprint.Encryptor
	Pauser     Pauser
	Transferer escrow.Transferer
	Guard      *escrow.TransferGuard
	MinDeposit int64
	MaxPerWork int
	Timeout    time.Duration
	// Now is injectable for tests; defaults to time.Now.
	Now func() time.Time
}

func NewService(cfg Config) *Service {
	now := cfg.Now
	if now == nil {
		now = time.Now
	}
	return &Service{
		pool:       cfg.Pool,
		repo:       cfg.Repo,
		client:     cfg.Client,
		enc:        cfg.Encryptor,
		pauser:     cfg.Pauser,
		transferer: cfg.Transferer,
		guard:      cfg.Guard,
		minDeposit: cfg.MinDeposit,
		maxPerWork: cfg.MaxPerWork,
		timeout:    cfg.Timeout,
		now:        now,
	}
}

// File appends a new challenge to the work's dispute list and returns its
// index. No oracle request is made yet; resolution is opt-in.
func (s *Service) File(ctx context.Context, challenger string, workID int64, challengerFP uint64, deposit int64) (int, error) {
	if err := s.pauser.Ensure(ctx); err != nil {
		return 0, err
	}
	if deposit < s.minDeposit {
		return 0, ErrInsufficientDeposit
	}
	if challengerFP == 0 {
		return 0, ErrInvalidFingerprint
	}

	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return 0, fmt.Errorf("dispute: begin file: %w", err)
	}
	defer tx.Rollback(ctx)

	work, err := s.repo.WorkForUpdate(ctx, tx, workID)
	if err != nil {
		return 0, err
	}
	if work.Owner == challenger {
		return 0, ErrSelfDispute
	}
	registered, err := s.repo.IdentityExists(ctx, tx, challenger)
	if err != nil {
		return 0, err
	}
	if !registered {
		return 0, ErrNotRegistered
	}
	if work.DisputeCount >= s.maxPerWork {
		return 0, ErrTooManyDisputes
	}

	handle, err := s.enc.Seal(challengerFP)
	if err != nil {
		return 0, fmt.Errorf("dispute: seal challenger fingerprint: %w", err)
	}

	idx := work.DisputeCount
	d := Dispute{
		WorkID:           workID,
		Idx:              idx,
		Challenger:       challenger,
		ChallengerHandle: handle,
		Deposit:          deposit,
		FiledAt:          s.now(),
	}
	if err := s.repo.AppendDispute(ctx, tx, d); err != nil {
		return 0, err
	}
	if err := s.repo.MarkWorkDisputed(ctx, tx, workID); err != nil {
		return 0, err
	}
	// Both parties accrue the dispute on their identity record.
	if err := s.repo.BumpTotalDisputes(ctx, tx, challenger); err != nil {
		return 0, err
	}
	if err := s.repo.BumpTotalDisputes(ctx, tx, work.Owner); err != nil {
		return 0, err
	}
	if err := s.repo.Emit(ctx, tx, events.TopicDisputeFiled, map[string]any{
		"work_id":    workID,
		"dispute_id": idx,
		"challenger": challenger,
		"deposit":    deposit,
	}); err != nil {
		return 0, err
	}

	if err := tx.Commit(ctx); err != nil {
		return 0, fmt.Errorf("dispute: commit file: %w", err)
	}
	return idx, nil
}

// RequestResolution dispatches both fingerprints to the oracle and starts
// the dispute's timeout clock. Either party may force resolution.
func (s *Service) RequestResolution(ctx context.Context, caller string, workID int64, idx int) (uuid.UUID, error) {
	if err := s.pauser.Ensure(ctx); err != nil {
		return uuid.Nil, err
	}

	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return uuid.Nil, fmt.Errorf("dispute: begin resolution request: %w", err)
	}
	defer tx.Rollback(ctx)

	work, err := s.repo.WorkForUpdate(ctx, tx, workID)
	if err != nil {
		return uuid.Nil, err
	}
	d, err := s.repo.DisputeForUpdate(ctx, tx, workID, idx)
	if err != nil {
		return uuid.Nil, err
	}
	if caller != d.Challenger && caller != work.Owner {
		return uuid.Nil, ErrNotAuthorized
	}
	if d.Resolved || d.ResolutionRequested() {
		return uuid.Nil, ErrAlreadyResolved
	}

	requestID, err := s.client.RequestDecryption(ctx,
		[]fingerprint.Handle{work.Handle, d.ChallengerHandle},
		oracle.KindDisputeResolution,
	)
	if err != nil {
		return uuid.Nil, fmt.Errorf("dispute: dispatch oracle request: %w", err)
	}

	if err := s.repo.SetResolutionRequested(ctx, tx, workID, idx, requestID, s.now()); err != nil {
		return uuid.Nil, err
	}
	if err := s.repo.InsertPending(ctx, tx, requestID, workID, idx); err != nil {
		return uuid.Nil, err
	}

	if err := tx.Commit(ctx); err != nil {
		return uuid.Nil, fmt.Errorf("dispute: commit resolution request: %w", err)
	}
	return requestID, nil
}

// HandleCallback settles a dispute with the oracle's two decrypted
// fingerprint values. Unequal values mean the challenge is simply false
// and the owner wins; equal values fall back to public record order, the
// earlier of work registration and dispute filing, ties to the owner.
func (s *Service) HandleCallback(ctx context.Context, requestID uuid.UUID, cleartexts []byte) error {
	values, err := oracle.DecodeValues(cleartexts, 2)
	if err != nil {
		return err
	}

	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("dispute: begin callback: %w", err)
	}
	defer tx.Rollback(ctx)

	d, err := s.repo.DisputeByRequestForUpdate(ctx, tx, requestID)
	if err != nil {
		return err
	}
	if d.Resolved {
		return ErrAlreadyFinalized
	}

	work, err := s.repo.WorkForUpdate(ctx, tx, d.WorkID)
	if err != nil {
		return err
	}

	winner := work.Owner
	challengerWins := values[0] == values[1] && d.FiledAt.Before(work.CreatedAt)
	if challengerWins {
		winner = d.Challenger
	}

	if err := s.repo.MarkResolved(ctx, tx, d.WorkID, d.Idx, winner); err != nil {
		return err
	}
	if challengerWins {
		if err := s.repo.BumpWonDisputes(ctx, tx, d.Challenger); err != nil {
			return err
		}
	}
	if err := s.repo.CreditEscrow(ctx, tx, winner, d.Deposit); err != nil {
		return err
	}
	if err := s.repo.Emit(ctx, tx, events.TopicDisputeResolved, map[string]any{
		"work_id":    d.WorkID,
		"dispute_id": d.Idx,
		"winner":     winner,
		"prize":      d.Deposit,
	}); err != nil {
		return err
	}
	if err := s.repo.SettlePending(ctx, tx, requestID); err != nil {
		return err
	}

	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("dispute: commit callback: %w", err)
	}
	return nil
}

// ClaimTimeout settles a stalled resolution by refunding the challenger
// directly. The dispute closes with no declared winner.
func (s *Service) ClaimTimeout(ctx context.Context, caller string, workID int64, idx int) (int64, error) {
	if err := s.pauser.Ensure(ctx); err != nil {
		return 0, err
	}
	if err := s.guard.Enter(); err != nil {
		return 0, err
	}
	defer s.guard.Leave()

	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return 0, fmt.Errorf("dispute: begin timeout claim: %w", err)
	}
	defer tx.Rollback(ctx)

	d, err := s.repo.DisputeForUpdate(ctx, tx, workID, idx)
	if err != nil {
		return 0, err
	}
	if d.Challenger != caller {
		return 0, ErrNotChallenger
	}
	if d.Resolved {
		return 0, ErrAlreadyFinalized
	}
	if !d.ResolutionRequested() {
		return 0, ErrResolutionNotRequested
	}
	if !s.now().After(d.ResolutionRequestedAt.Add(s.timeout)) {
		return 0, ErrTimeoutNotReached
	}

	if err := s.repo.MarkResolved(ctx, tx, workID, idx, ""); err != nil {
		return 0, err
	}
	if err := s.repo.Emit(ctx, tx, events.TopicTimeoutRefund, map[string]any{
		"work_id":    workID,
		"dispute_id": idx,
		"recipient":  caller,
		"amount":     d.Deposit,
	}); err != nil {
		return 0, err
	}
	if err := s.repo.SettlePending(ctx, tx, d.OracleRequestID); err != nil {
		return 0, err
	}

	if err := s.transferer.Transfer(ctx, caller, d.Deposit); err != nil {
		return 0, fmt.Errorf("dispute: refund transfer: %w", err)
	}

	if err := tx.Commit(ctx); err != nil {
		return 0, fmt.Errorf("dispute: commit timeout claim: %w", err)
	}
	return d.Deposit, nil
}
