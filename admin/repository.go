package admin

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"claimledger/events"
)

// Repository handles data access for the platform row.
type Repository interface {
	Platform(ctx context.Context) (Platform, error)
	SetPaused(ctx context.Context, paused bool) error
	SetRegistrationFee(ctx context.Context, fee int64) error
	FeesForUpdate(ctx context.Context, tx pgx.Tx) (int64, error)
	ZeroFees(ctx context.Context, tx pgx.Tx) error
	Emit(ctx context.Context, tx pgx.Tx, topic string, payload map[string]any) error
}

// PGRepository implements Repository backed by PostgreSQL.
type PGRepository struct {
	pool *pgxpool.Pool
}

func NewRepository(pool *pgxpool.Pool) *PGRepository {
	return &PGRepository{pool: pool}
}

func (r *PGRepository) Platform(ctx context.Context) (Platform, error) {
	var p Platform
	err := r.pool.QueryRow(ctx, `SELECT paused, registration_fee, fees_accrued FROM platform WHERE id`).
		Scan(&p.Paused, &p.RegistrationFee, &p.FeesAccrued)
	if err != nil {
		return Platform{}, fmt.Errorf("admin: read platform: %w", err)
	}
	return p, nil
}

func (r *PGRepository) SetPaused(ctx context.Context, paused bool) error {
	if _, err := r.pool.Exec(ctx, `UPDATE platform SET paused = $1 WHERE id`, paused); err != nil {
		return fmt.Errorf("admin: set paused: %w", err)
	}
	return nil
}

func (r *PGRepository) SetRegistrationFee(ctx context.Context, fee int64) error {
	if _, err := r.pool.Exec(ctx, `UPDATE platform SET registration_fee = $1 WHERE id`, fee); err != nil {
		return fmt.Errorf("admin: set registration fee: %w", err)
	}
	return nil
}

func (r *PGRepository) FeesForUpdate(ctx context.Context, tx pgx.Tx) (int64, error) {
	var fees int64
	if err := tx.QueryRow(ctx, `SELECT fees_accrued FROM platform WHERE id FOR UPDATE`).Scan(&fees); err != nil {
		return 0, fmt.Errorf("admin: fees for update: %w", err)
	}
	return fees, nil
}

func (r *PGRepository) ZeroFees(ctx context.Context, tx pgx.Tx) error {
	if _, err := tx.Exec(ctx, `UPDATE platform SET fees_accrued = 0 WHERE id`); err != nil {
		return fmt.Errorf("admin: zero fees: %w", err)
	}
	return nil
}

func (r *PGRepository) Emit(ctx context.Context, tx pgx.Tx, topic string, payload map[string]any) error {
	return events.Emit(ctx, tx, topic, payload)
}
