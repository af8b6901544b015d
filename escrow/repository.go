package escrow

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"claimledger/events"
)

// CreditTx bumps an account's owed balance inside the caller's transaction.
// Verification and dispute settlements compose this into their own commits.
func CreditTx(ctx context.Context, tx pgx.Tx, accountID string, amount int64) error {
	_, err := tx.Exec(ctx, `
		INSERT INTO escrow_balances (account_id, amount)
		VALUES ($1, $2)
		ON CONFLICT (account_id) DO UPDATE SET amount = escrow_balances.amount + EXCLUDED.amount
	`, accountID, amount)
	if err != nil {
		return fmt.Errorf("escrow: credit: %w", err)
	}
	return nil
}

// Repository is the data access needed by the withdrawal service.
type Repository interface {
	BalanceForUpdate(ctx context.Context, tx pgx.Tx, accountID string) (int64, error)
	Zero(ctx context.Context, tx pgx.Tx, accountID string) error
	Emit(ctx context.Context, tx pgx.Tx, topic string, payload map[string]any) error
}

// PGRepository implements Repository backed by PostgreSQL.
type PGRepository struct {
	pool *pgxpool.Pool
}

func NewRepository(pool *pgxpool.Pool) *PGRepository {
	return &PGRepository{pool: pool}
}

// Balance reads the currently owed amount outside any transaction.
func (r *PGRepository) Balance(ctx context.Context, accountID string) (int64, error) {
	var amount int64
	err := r.pool.QueryRow(ctx, `SELECT amount FROM escrow_balances WHERE account_id = $1`, accountID).Scan(&amount)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return 0, nil
		}
		return 0, fmt.Errorf("escrow: balance: %w", err)
	}
	return amount, nil
}

func (r *PGRepository) BalanceForUpdate(ctx context.Context, tx pgx.Tx, accountID string) (int64, error) {
	var amount int64
	err := tx.QueryRow(ctx, `SELECT amount FROM escrow_balances WHERE account_id = $1 FOR UPDATE`, accountID).Scan(&amount)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return 0, nil
		}
		return 0, fmt.Errorf("escrow: balance for update: %w", err)
	}
	return amount, nil
}

func (r *PGRepository) Zero(ctx context.Context, tx pgx.Tx, accountID string) error {
	if _, err := tx.Exec(ctx, `UPDATE escrow_balances SET amount = 0 WHERE account_id = $1`, accountID); err != nil {
		return fmt.Errorf("escrow: zero balance: %w", err)
	}
	return nil
}

func (r *PGRepository) Emit(ctx context.Context, tx pgx.Tx, topic string, payload map[string]any) error {
	return events.Emit(ctx, tx, topic, payload)
}
