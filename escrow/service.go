package escrow

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"

	"claimledger/events"
)

// ErrNoBalance signals a withdrawal attempt with nothing owed.
var ErrNoBalance = errors.New("escrow: no balance")

// TxBeginner abstracts pgxpool.Pool for testability.
type TxBeginner interface {
	Begin(ctx context.Context) (pgx.Tx, error)
}

// Pauser gates mutating entry points behind the platform pause flag.
type Pauser interface {
	Ensure(ctx context.Context) error
}

// Service handles escrow withdrawals. The balance is zeroed before the
// outbound transfer is issued; a transfer failure rolls the whole
// transition back.
type Service struct {
	pool       TxBeginner
	repo       Repository
	transferer Transferer
	guard      *TransferGuard
	pauser     Pauser
}

func NewService(pool TxBeginner, repo Repository, transferer Transferer, guard *TransferGuard, pauser Pauser) *Service {
	return &Service{
		pool:       pool,
		repo:       repo,
		transferer: transferer,
		guard:      guard,
		pauser:     pauser,
	}
}

// Withdraw pays out the caller's full credited balance.
func (s *Service) Withdraw(ctx context.Context, accountID string) (int64, error) {
	if err := s.pauser.Ensure(ctx); err != nil {
		return 0, err
	}
	if err := s.guard.Enter(); err != nil {
		return 0, err
	}
	defer s.guard.Leave()

	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return 0, fmt.Errorf("escrow: begin withdraw: %w", err)
	}
	defer tx.Rollback(ctx)

	amount, err := s.repo.BalanceForUpdate(ctx, tx, accountID)
	if err != nil {
		return 0, err
	}
	if amount <= 0 {
		return 0, ErrNoBalance
	}

	// Zero first so a re-entrant observer can never see the old balance.
	if err := s.repo.Zero(ctx, tx, accountID); err != nil {
		return 0, err
	}
	if err := s.repo.Emit(ctx, tx, events.TopicRefundIssued, map[string]any{
		"account": accountID,
		"amount":  amount,
	}); err != nil {
		return 0, err
	}

	if err := s.transferer.Transfer(ctx, accountID, amount); err != nil {
		return 0, fmt.Errorf("escrow: transfer: %w", err)
	}

	if err := tx.Commit(ctx); err != nil {
		return 0, fmt.Errorf("escrow: commit withdraw: %w", err)
	}
	return amount, nil
}
