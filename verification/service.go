package verification

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
	// ErrInsufficientDeposit signals a deposit below the minimum.
	ErrInsufficientDeposit = errors.New("verification: insufficient deposit")
	// ErrInvalidFingerprint signals a zero-equivalent candidate.
	ErrInvalidFingerprint = errors.New("verification: invalid fingerprint")
	// ErrNotRequester signals a timeout claim by anyone but the requester.
	ErrNotRequester = errors.New("verification: caller is not the requester")
	// ErrTimeoutNotReached signals a timeout claim inside the window.
	ErrTimeoutNotReached = errors.New("verification: timeout not reached")
)

// TxBeginner abstracts pgxpool.Pool for testability.
type TxBeginner interface {
	Begin(ctx context.Context) (pgx.Tx, error)
}

// Pauser gates mutating entry points behind the platform pause flag.
type Pauser interface {
	Ensure(ctx context.Context) error
}

// Service is the ownership-verification state machine: Requested, then
// exactly one of Completed (oracle answered) or TimedOut (requester
// reclaimed). The two terminal transitions are reachable by disjoint
// callers, so whichever transaction lands first wins and the other fails
// with ErrAlreadyFinalized.
type Service struct {
	pool       TxBeginner
	repo       Repository
	client     oracle.Client
	enc        fingerprint.Encryptor
	pauser     Pauser
	transferer escrow.Transferer
	guard      *escrow.TransferGuard

	minDeposit int64
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
		timeout:    cfg.Timeout,
		now:        now,
	}
}

// Submit forms the opaque equality predicate between the work's stored
// fingerprint and the candidate, dispatches it to the oracle, and records
// the request. Returns the oracle-assigned request id.
func (s *Service) Submit(ctx context.Context, requester string, workID int64, candidate uint64, deposit int64) (uuid.UUID, error) {
	if err := s.pauser.Ensure(ctx); err != nil {
		return uuid.Nil, err
	}
	if deposit < s.minDeposit {
		return uuid.Nil, ErrInsufficientDeposit
	}
	if candidate == 0 {
		return uuid.Nil, ErrInvalidFingerprint
	}

	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return uuid.Nil, fmt.Errorf("verification: begin submit: %w", err)
	}
	defer tx.Rollback(ctx)

	stored, err := s.repo.WorkHandle(ctx, tx, workID)
	if err != nil {
		return uuid.Nil, err
	}

	candidateHandle, err := s.enc.Seal(candidate)
	if err != nil {
		return uuid.Nil, fmt.Errorf("verification: seal candidate: %w", err)
	}
	predicate, err := s.enc.Eq(stored, candidateHandle)
	if err != nil {
		return uuid.Nil, fmt.Errorf("verification: derive predicate: %w", err)
	}

	requestID, err := s.client.RequestDecryption(ctx, []fingerprint.Handle{predicate}, oracle.KindVerification)
	if err != nil {
		return uuid.Nil, fmt.Errorf("verification: dispatch oracle request: %w", err)
	}

	req := Request{
		RequestID:   requestID,
		Requester:   requester,
		WorkID:      workID,
		Deposit:     deposit,
		RequestedAt: s.now(),
	}
	if err := s.repo.InsertRequest(ctx, tx, req); err != nil {
		return uuid.Nil, err
	}
	if err := s.repo.InsertPending(ctx, tx, requestID, workID); err != nil {
		return uuid.Nil, err
	}
	if err := s.repo.Emit(ctx, tx, events.TopicVerificationRequested, map[string]any{
		"work_id":    workID,
		"requester":  requester,
		"request_id": requestID.String(),
		"deposit":    deposit,
	}); err != nil {
		return uuid.Nil, err
	}

	if err := tx.Commit(ctx); err != nil {
		return uuid.Nil, fmt.Errorf("verification: commit submit: %w", err)
	}
	return requestID, nil
}

// HandleCallback finalizes a request with the oracle's answer. The
// dispatcher has already validated the authenticity proof; this is the only
// path by which a plaintext comparison result enters the system.
func (s *Service) HandleCallback(ctx context.Context, requestID uuid.UUID, cleartexts []byte) error {
	values, err := oracle.DecodeValues(cleartexts, 1)
	if err != nil {
		return err
	}
	match := values[0] != 0

	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("verification: begin callback: %w", err)
	}
	defer tx.Rollback(ctx)

	req, err := s.repo.RequestForUpdate(ctx, tx, requestID)
	if err != nil {
		return err
	}
	if req.Finalized() {
		return ErrAlreadyFinalized
	}

	if err := s.repo.MarkCompleted(ctx, tx, requestID); err != nil {
		return err
	}
	if match {
		if err := s.repo.MarkWorkVerified(ctx, tx, req.WorkID); err != nil {
			return err
		}
		if err := s.repo.Emit(ctx, tx, events.TopicWorkVerified, map[string]any{
			"work_id": req.WorkID,
		}); err != nil {
			return err
		}
	}

	// The deposit is a spam deterrent, not a fee: it is owed back to the
	// requester whatever the answer was.
	if err := s.repo.CreditEscrow(ctx, tx, req.Requester, req.Deposit); err != nil {
		return err
	}
	if err := s.repo.Emit(ctx, tx, events.TopicVerificationCompleted, map[string]any{
		"request_id": requestID.String(),
		"work_id":    req.WorkID,
		"requester":  req.Requester,
		"match":      match,
	}); err != nil {
		return err
	}
	if err := s.repo.SettlePending(ctx, tx, requestID); err != nil {
		return err
	}

	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("verification: commit callback: %w", err)
	}
	return nil
}

// ClaimTimeout settles a stalled request by refunding the requester
// directly. Unlike the callback path this bypasses escrow: the transfer is
// issued inside the same transaction boundary, so the deposit comes back
// even if escrow bookkeeping is compromised.
func (s *Service) ClaimTimeout(ctx context.Context, caller string, requestID uuid.UUID) (int64, error) {
	if err := s.pauser.Ensure(ctx); err != nil {
		return 0, err
	}
	if err := s.guard.Enter(); err != nil {
		return 0, err
	}
	defer s.guard.Leave()

	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return 0, fmt.Errorf("verification: begin timeout claim: %w", err)
	}
	defer tx.Rollback(ctx)

	req, err := s.repo.RequestForUpdate(ctx, tx, requestID)
	if err != nil {
		return 0, err
	}
	if req.Requester != caller {
		return 0, ErrNotRequester
	}
	if req.Finalized() {
		return 0, ErrAlreadyFinalized
	}
	if !s.now().After(req.RequestedAt.Add(s.timeout)) {
		return 0, ErrTimeoutNotReached
	}

	if err := s.repo.MarkRefunded(ctx, tx, requestID); err != nil {
		return 0, err
	}
	if err := s.repo.Emit(ctx, tx, events.TopicTimeoutRefund, map[string]any{
		"request_id": requestID.String(),
		"work_id":    req.WorkID,
		"recipient":  caller,
		"amount":     req.Deposit,
	}); err != nil {
		return 0, err
	}
	if err := s.repo.SettlePending(ctx, tx, requestID); err != nil {
		return 0, err
	}

	if err := s.transferer.Transfer(ctx, caller, req.Deposit); err != nil {
		return 0, fmt.Errorf("verification: refund transfer: %w", err)
	}

	if err := tx.Commit(ctx); err != nil {
		return 0, fmt.Errorf("verification: commit timeout claim: %w", err)
	}
	return req.Deposit, nil
}
