package work

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"claimledger/events"
	"claimledger/fingerprint"
)

var (
	// ErrNotFound signals the requested work does not exist.
	ErrNotFound = errors.New("work: not found")
	// ErrNotRegistered signals the owner has no identity record.
	ErrNotRegistered = errors.New("work: owner not registered")
	// ErrInsufficientFee signals a fee below the platform registration fee.
	ErrInsufficientFee = errors.New("work: insufficient registration fee")
)

// Repository handles data access for the work registry.
type Repository interface {
	Create(ctx context.Context, params CreateParams) (Work, error)
	GetByID(ctx context.Context, id int64) (Work, error)
	ListByOwner(ctx context.Context, ownerAccount string) ([]Work, error)
}

// PGRepository implements Repository backed by PostgreSQL.
type PGRepository struct {
	pool *pgxpool.Pool
}

func NewRepository(pool *pgxpool.Pool) *PGRepository {
	return &PGRepository{pool: pool}
}

// Create registers a work in a single transaction: verifies the owner's
// identity record, checks the fee against the platform parameter, copies the
// owner's identity handle into the record, bumps the owner's work count, and
// accrues the fee.
func (r *PGRepository) Create(ctx context.Context, params CreateParams) (Work, error) {
	tx, err := r.pool.Begin(ctx)
	if err != nil {
		return Work{}, fmt.Errorf("work: begin create: %w", err)
	}
	defer tx.Rollback(ctx)

	var authorHandle []byte
	err = tx.QueryRow(ctx, `SELECT identity_handle FROM identities WHERE account_id = $1 FOR UPDATE`, params.OwnerAccount).
		Scan(&authorHandle)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return Work{}, ErrNotRegistered
		}
		return Work{}, fmt.Errorf("work: load identity: %w", err)
	}

	var registrationFee int64
	if err := tx.QueryRow(ctx, `SELECT registration_fee FROM platform WHERE id`).Scan(&registrationFee); err != nil {
		return Work{}, fmt.Errorf("work: read registration fee: %w", err)
	}
	if params.Fee < registrationFee {
		return Work{}, ErrInsufficientFee
	}

	const insertSQL = `
		INSERT INTO works (fingerprint_handle, author_handle, owner_account, title, category, fee_paid)
		VALUES ($1, $2, $3, $4, $5, $6)
		RETURNING id, fingerprint_handle, author_handle, owner_account, title, category,
		          fee_paid, verified, disputed, dispute_count, created_at
	`
	w, err := scanWork(tx.QueryRow(ctx, insertSQL,
		[]byte(params.Fingerprint), authorHandle, params.OwnerAccount,
		params.Title, params.Category, params.Fee))
	if err != nil {
		return Work{}, fmt.Errorf("work: insert: %w", err)
	}

	if _, err := tx.Exec(ctx, `UPDATE identities SET work_count = work_count + 1 WHERE account_id = $1`, params.OwnerAccount); err != nil {
		return Work{}, fmt.Errorf("work: bump work count: %w", err)
	}
	if _, err := tx.Exec(ctx, `UPDATE platform SET fees_accrued = fees_accrued + $1 WHERE id`, params.Fee); err != nil {
		return Work{}, fmt.Errorf("work: accrue fee: %w", err)
	}

	if err := events.Emit(ctx, tx, events.TopicWorkRegistered, map[string]any{
		"work_id":  w.ID,
		"owner":    w.OwnerAccount,
		"title":    w.Title,
		"category": w.Category,
		"fee":      w.FeePaid,
	}); err != nil {
		return Work{}, err
	}

	if err := tx.Commit(ctx); err != nil {
		return Work{}, fmt.Errorf("work: commit create: %w", err)
	}
	return w, nil
}

func (r *PGRepository) GetByID(ctx context.Context, id int64) (Work, error) {
	const query = `
		SELECT id, fingerprint_handle, author_handle, owner_account, title, category,
		       fee_paid, verified, disputed, dispute_count, created_at
		FROM works
		WHERE id = $1
	`
	w, err := scanWork(r.pool.QueryRow(ctx, query, id))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return Work{}, ErrNotFound
		}
		return Work{}, fmt.Errorf("work: get by id: %w", err)
	}
	return w, nil
}

func (r *PGRepository) ListByOwner(ctx context.Context, ownerAccount string) ([]Work, error) {
	const query = `
		SELECT id, fingerprint_handle, author_handle, owner_account, title, category,
		       fee_paid, verified, disputed, dispute_count, created_at
		FROM works
		WHERE owner_account = $1
		ORDER BY id
	`
	rows, err := r.pool.Query(ctx, query, ownerAccount)
	if err != nil {
		return nil, fmt.Errorf("work: list by owner: %w", err)
	}
	defer rows.Close()

	out := make([]Work, 0, 8)
	for rows.Next() {
		w, err := scanWork(rows)
		if err != nil {
			return nil, fmt.Errorf("work: scan: %w", err)
		}
		out = append(out, w)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("work: iterate: %w", err)
	}
	return out, nil
}

func scanWork(row pgx.Row) (Work, error) {
	var (
		w            Work
		fpHandle     []byte
		authorHandle []byte
	)
	err := row.Scan(
		&w.ID,
		&fpHandle,
		&authorHandle,
		&w.OwnerAccount,
		&w.Title,
		&w.Category,
		&w.FeePaid,
		&w.Verified,
		&w.Disputed,
		&w.DisputeCount,
		&w.CreatedAt,
	)
	if err != nil {
		return Work{}, err
	}
	w.FingerprintHandle = fingerprint.Handle(fpHandle)
	w.AuthorHandle = fingerprint.Handle(authorHandle)
	return w, nil
}
