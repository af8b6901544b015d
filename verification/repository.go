package verification

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"claimledger/escrow"
	"claimledger/events"
	"claimledger/fingerprint"
	"claimledger/oracle"
)

var (
	// ErrWorkNotFound signals the target work does not exist.
	ErrWorkNotFound = errors.New("verification: work not found")
	// ErrRequestNotFound signals an unknown verification request id.
	ErrRequestNotFound = errors.New("verification: request not found")
	// ErrAlreadyFinalized signals the request already reached a terminal
	// state; whichever of callback and timeout-claim lands second sees
	// this and must not pay again.
	ErrAlreadyFinalized = errors.New("verification: already finalized")
)

// Repository is the tx-scoped data access required by the service. All
// methods run inside the service's transaction so a failed step aborts the
// whole transition.
type Repository interface {
	WorkHandle(ctx context.Context, tx pgx.Tx, workID int64) (fingerprint.Handle, error)
	InsertRequest(ctx context.Context, tx pgx.Tx, req Request) error
	RequestForUpdate(ctx context.Context, tx pgx.Tx, requestID uuid.UUID) (Request, error)
	MarkCompleted(ctx context.Context, tx pgx.Tx, requestID uuid.UUID) error
	MarkRefunded(ctx context.Context, tx pgx.Tx, requestID uuid.UUID) error
	MarkWorkVerified(ctx context.Context, tx pgx.Tx, workID int64) error
	CreditEscrow(ctx context.Context, tx pgx.Tx, accountID string, amount int64) error
	InsertPending(ctx context.Context, tx pgx.Tx, requestID uuid.UUID, workID int64) error
	SettlePending(ctx context.Context, tx pgx.Tx, requestID uuid.UUID) error
	Emit(ctx context.Context, tx pgx.Tx, topic string, payload map[string]any) error
}

// PGRepository implements Repository backed by PostgreSQL.
type PGRepository struct {
	pool       *pgxpool.Pool
	oracleRepo *oracle.Repository
}

func NewRepository(pool *pgxpool.Pool, oracleRepo *oracle.Repository) *PGRepository {
	return &PGRepository{pool: pool, oracleRepo: oracleRepo}
}

func (r *PGRepository) WorkHandle(ctx context.Context, tx pgx.Tx, workID int64) (fingerprint.Handle, error) {
	var handle []byte
	err := tx.QueryRow(ctx, `SELECT fingerprint_handle FROM works WHERE id = $1`, workID).Scan(&handle)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrWorkNotFound
		}
		return nil, fmt.Errorf("verification: load work handle: %w", err)
	}
	return fingerprint.Handle(handle), nil
}

func (r *PGRepository) InsertRequest(ctx context.Context, tx pgx.Tx, req Request) error {
	_, err := tx.Exec(ctx, `
		INSERT INTO verification_requests (request_id, requester, work_id, deposit, requested_at)
		VALUES ($1, $2, $3, $4, $5)
	`, req.RequestID, req.Requester, req.WorkID, req.Deposit, req.RequestedAt)
	if err != nil {
		return fmt.Errorf("verification: insert request: %w", err)
	}
	return nil
}

func (r *PGRepository) RequestForUpdate(ctx context.Context, tx pgx.Tx, requestID uuid.UUID) (Request, error) {
	const query = `
		SELECT request_id, requester, work_id, deposit, requested_at, completed, refunded
		FROM verification_requests
		WHERE request_id = $1
		FOR UPDATE
	`
	var req Request
	err := tx.QueryRow(ctx, query, requestID).Scan(
		&req.RequestID,
		&req.Requester,
		&req.WorkID,
		&req.Deposit,
		&req.RequestedAt,
		&req.Completed,
		&req.Refunded,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return Request{}, ErrRequestNotFound
		}
		return Request{}, fmt.Errorf("verification: load request: %w", err)
	}
	return req, nil
}

// MarkCompleted flips the terminal flag; the WHERE guard makes the losing
// side of a callback/timeout race observe ErrAlreadyFinalized.
func (r *PGRepository) MarkCompleted(ctx context.Context, tx pgx.Tx, requestID uuid.UUID) error {
	return r.finalize(ctx, tx, requestID, `completed`)
}

func (r *PGRepository) MarkRefunded(ctx context.Context, tx pgx.Tx, requestID uuid.UUID) error {
	return r.finalize(ctx, tx, requestID, `refunded`)
}

func (r *PGRepository) finalize(ctx context.Context, tx pgx.Tx, requestID uuid.UUID, column string) error {
	tag, err := tx.Exec(ctx, fmt.Sprintf(`
		UPDATE verification_requests
		SET %s = TRUE
		WHERE request_id = $1 AND NOT completed AND NOT refunded
	`, column), requestID)
	if err != nil {
		return fmt.Errorf("verification: finalize: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return ErrAlreadyFinalized
	}
	return nil
}

func (r *PGRepository) MarkWorkVerified(ctx context.Context, tx pgx.Tx, workID int64) error {
	if _, err := tx.Exec(ctx, `UPDATE works SET verified = TRUE WHERE id = $1`, workID); err != nil {
		return fmt.Errorf("verification: mark work verified: %w", err)
	}
	return nil
}

func (r *PGRepository) CreditEscrow(ctx context.Context, tx pgx.Tx, accountID string, amount int64) error {
	return escrow.CreditTx(ctx, tx, accountID, amount)
}

func (r *PGRepository) InsertPending(ctx context.Context, tx pgx.Tx, requestID uuid.UUID, workID int64) error {
	return r.oracleRepo.InsertPendingTx(ctx, tx, oracle.PendingRequest{
		RequestID: requestID,
		Kind:      oracle.KindVerification,
		WorkID:    workID,
	})
}

func (r *PGRepository) SettlePending(ctx context.Context, tx pgx.Tx, requestID uuid.UUID) error {
	return r.oracleRepo.SettlePendingTx(ctx, tx, requestID)
}

func (r *PGRepository) Emit(ctx context.Context, tx pgx.Tx, topic string, payload map[string]any) error {
	return events.Emit(ctx, tx, topic, payload)
}
