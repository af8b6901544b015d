package admin

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5"

	"claimledger/escrow"
	"claimledger/events"
)

// TxBeginner abstracts pgxpool.Pool for testability.
type TxBeginner interface {
	Begin(ctx context.Context) (pgx.Tx, error)
}

// Service exposes the thin admin surface: pause flag, fee parameters, and
// platform-fee withdrawal.
type Service struct {
	pool       TxBeginner
	repo       Repository
	transferer escrow.Transferer
	guard      *escrow.TransferGuard
}

func NewService(pool TxBeginner, repo Repository, transferer escrow.Transferer, guard *escrow.TransferGuard) *Service {
	return &Service{
		pool:       pool,
		repo:       repo,
		transferer: transferer,
		guard:      guard,
	}
}

// Ensure fails with ErrPaused while the platform is paused. Every mutating
// entry point calls this first.
func (s *Service) Ensure(ctx context.Context) error {
	p, err := s.repo.Platform(ctx)
	if err != nil {
		return err
	}
	if p.Paused {
		return ErrPaused
	}
	return nil
}

// Platform returns the current platform parameters.
func (s *Service) Platform(ctx context.Context) (Platform, error) {
	return s.repo.Platform(ctx)
}

// SetPaused flips the pause flag.
func (s *Service) SetPaused(ctx context.Context, paused bool) error {
	return s.repo.SetPaused(ctx, paused)
}

// SetRegistrationFee updates the work registration fee.
func (s *Service) SetRegistrationFee(ctx context.Context, fee int64) error {
	if fee < 0 {
		return fmt.Errorf("admin: negative registration fee")
	}
	return s.repo.SetRegistrationFee(ctx, fee)
}

// WithdrawFees pays the accrued platform fees out to the given account.
// Same discipline as escrow withdrawal: zero first, transfer before commit.
func (s *Service) WithdrawFees(ctx context.Context, toAccount string) (int64, error) {
	if err := s.guard.Enter(); err != nil {
		return 0, err
	}
	defer s.guard.Leave()

	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return 0, fmt.Errorf("admin: begin fee withdrawal: %w", err)
	}
	defer tx.Rollback(ctx)

	fees, err := s.repo.FeesForUpdate(ctx, tx)
	if err != nil {
		return 0, err
	}
	if fees <= 0 {
		return 0, escrow.ErrNoBalance
	}

	if err := s.repo.ZeroFees(ctx, tx); err != nil {
		return 0, err
	}
	if err := s.repo.Emit(ctx, tx, events.TopicRefundIssued, map[string]any{
		"account": toAccount,
		"amount":  fees,
	}); err != nil {
		return 0, err
	}

	if err := s.transferer.Transfer(ctx, toAccount, fees); err != nil {
		return 0, fmt.Errorf("admin: transfer fees: %w", err)
	}

	if err := tx.Commit(ctx); err != nil {
		return 0, fmt.Errorf("admin: commit fee withdrawal: %w", err)
	}
	return fees, nil
}
