package oracle

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

var (
	// ErrUnknownRequest signals a request id that was never issued.
	ErrUnknownRequest = errors.New("oracle: unknown request")
	// ErrAlreadyFinalized signals a callback for a request whose operation
	// already reached a terminal state.
	ErrAlreadyFinalized = errors.New("oracle: request already finalized")
)

// Repository tracks in-flight oracle requests.
type Repository struct {
	pool *pgxpool.Pool
}

func NewRepository(pool *pgxpool.Pool) *Repository {
	return &Repository{pool: pool}
}

// InsertPendingTx records the tagged operation awaiting requestID inside the
// caller's transaction so the mapping commits atomically with the request
// record itself.
func (r *Repository) InsertPendingTx(ctx context.Context, tx pgx.Tx, p PendingRequest) error {
	_, err := tx.Exec(ctx, `
		INSERT INTO pending_requests (request_id, kind, work_id, dispute_idx)
		VALUES ($1, $2, $3, $4)
	`, p.RequestID, string(p.Kind), p.WorkID, p.DisputeIdx)
	if err != nil {
		return fmt.Errorf("oracle: insert pending: %w", err)
	}
	return nil
}

// GetPending resolves a request id to its tagged operation.
func (r *Repository) GetPending(ctx context.Context, requestID uuid.UUID) (PendingRequest, error) {
	const query = `
		SELECT request_id, kind, COALESCE(work_id, 0), COALESCE(dispute_idx, 0), settled, created_at
		FROM pending_requests
		WHERE request_id = $1
	`
	var p PendingRequest
	var kind string
	err := r.pool.QueryRow(ctx, query, requestID).
		Scan(&p.RequestID, &kind, &p.WorkID, &p.DisputeIdx, &p.Settled, &p.CreatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return PendingRequest{}, ErrUnknownRequest
		}
		return PendingRequest{}, fmt.Errorf("oracle: get pending: %w", err)
	}
	p.Kind = Kind(kind)
	return p, nil
}

// SettlePendingTx marks the mapping settled once the request reaches a
// terminal state. Called inside the finalizing transaction; the row stays
// so late callbacks get ErrAlreadyFinalized instead of ErrUnknownRequest.
func (r *Repository) SettlePendingTx(ctx context.Context, tx pgx.Tx, requestID uuid.UUID) error {
	if _, err := tx.Exec(ctx, `UPDATE pending_requests SET settled = TRUE WHERE request_id = $1`, requestID); err != nil {
		return fmt.Errorf("oracle: settle pending: %w", err)
	}
	return nil
}
