package identity

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"claimledger/fingerprint"
)

var (
	// ErrNotRegistered signals the account has no identity record.
	ErrNotRegistered = errors.New("identity: not registered")
	// ErrAlreadyRegistered signals a second registration attempt.
	// Registration is append-only.
	ErrAlreadyRegistered = errors.New("identity: already registered")
)

// Repository handles data access for identity records.
type Repository interface {
	Create(ctx context.Context, accountID string, handle fingerprint.Handle) (Record, error)
	Get(ctx context.Context, accountID string) (Record, error)
}

// PGRepository implements Repository backed by PostgreSQL.
type PGRepository struct {
	pool *pgxpool.Pool
}

func NewRepository(pool *pgxpool.Pool) *PGRepository {
	return &PGRepository{pool: pool}
}

func (r *PGRepository) Create(ctx context.Context, accountID string, handle fingerprint.Handle) (Record, error) {
	const insertSQL = `
		INSERT INTO identities (account_id, identity_handle)
		VALUES ($1, $2)
		RETURNING account_id, identity_handle, work_count, total_disputes, won_disputes, registered_at
	`

	rec, err := scanRecord(r.pool.QueryRow(ctx, insertSQL, accountID, []byte(handle)))
	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == "23505" {
			return Record{}, ErrAlreadyRegistered
		}
		return Record{}, fmt.Errorf("identity: create: %w", err)
	}
	return rec, nil
}

func (r *PGRepository) Get(ctx context.Context, accountID string) (Record, error) {
	const selectSQL = `
		SELECT account_id, identity_handle, work_count, total_disputes, won_disputes, registered_at
		FROM identities
		WHERE account_id = $1
	`

	rec, err := scanRecord(r.pool.QueryRow(ctx, selectSQL, accountID))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return Record{}, ErrNotRegistered
		}
		return Record{}, fmt.Errorf("identity: get: %w", err)
	}
	return rec, nil
}

func scanRecord(row pgx.Row) (Record, error) {
	var (
		rec    Record
		handle []byte
	)
	err := row.Scan(
		&rec.AccountID,
		&handle,
		&rec.WorkCount,
		&rec.TotalDisputes,
		&rec.WonDisputes,
		&rec.RegisteredAt,
	)
	if err != nil {
		return Record{}, err
	}
	rec.Handle = fingerprint.Handle(handle)
	return rec, nil
}
