package dispute

import (
	"context"
	"errors"
	"fmt"
	"time"

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
	ErrWorkNotFound = errors.New("dispute: work not found")
	// ErrInvalidDispute signals an unknown (workID, idx) pair.
	ErrInvalidDispute = errors.New("dispute: no such dispute")
	// ErrAlreadyResolved signals the dispute already left Filed.
	ErrAlreadyResolved = errors.New("dispute: already resolved")
	// ErrAlreadyFinalized signals the dispute reached a terminal state;
	// the losing side of a callback/timeout race sees this and must not
	// pay again.
	ErrAlreadyFinalized = errors.New("dispute: already finalized")
)

// Repository is the tx-scoped data access required by the service.
type Repository interface {
	WorkForUpdate(ctx context.Context, tx pgx.Tx, workID int64) (WorkInfo, error)
	IdentityExists(ctx context.Context, tx pgx.Tx, accountID string) (bool, error)
	AppendDispute(ctx context.Context, tx pgx.Tx, d Dispute) error
	MarkWorkDisputed(ctx context.Context, tx pgx.Tx, workID int64) error
	BumpTotalDisputes(ctx context.Context, tx pgx.Tx, accountID string) error
	BumpWonDisputes(ctx context.Context, tx pgx.Tx, accountID string) error
	DisputeForUpdate(ctx context.Context, tx pgx.Tx, workID int64, idx int) (Dispute, error)
	DisputeByRequestForUpdate(ctx context.Context, tx pgx.Tx, requestID uuid.UUID) (Dispute, error)
	SetResolutionRequested(ctx context.Context, tx pgx.Tx, workID int64, idx int, requestID uuid.UUID, at time.Time) error
	MarkResolved(ctx context.Context, tx pgx.Tx, workID int64, idx int, winner string) error
	CreditEscrow(ctx context.Context, tx pgx.Tx, accountID string, amount int64) error
	InsertPending(ctx context.Context, tx pgx.Tx, requestID uuid.UUID, workID int64, idx int) error
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

func (r *PGRepository) WorkForUpdate(ctx context.Context, tx pgx.Tx, workID int64) (WorkInfo, error) {
	const query = `
		SELECT id, owner_account, fingerprint_handle, created_at, dispute_count
		FROM works
		WHERE id = $1
		FOR UPDATE
	`
	var (
		w      WorkInfo
		handle []byte
	)
	err := tx.QueryRow(ctx, query, workID).Scan(&w.ID, &w.Owner, &handle, &w.CreatedAt, &w.DisputeCount)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return WorkInfo{}, ErrWorkNotFound
		}
		return WorkInfo{}, fmt.Errorf("dispute: load work: %w", err)
	}
	w.Handle = fingerprint.Handle(handle)
	return w, nil
}

func (r *PGRepository) IdentityExists(ctx context.Context, tx pgx.Tx, accountID string) (bool, error) {
	var exists bool
	err := tx.QueryRow(ctx, `SELECT EXISTS (SELECT 1 FROM identities WHERE account_id = $1)`, accountID).Scan(&exists)
	if err != nil {
		return false, fmt.Errorf("dispute: check identity: %w", err)
	}
	return exists, nil
}

func (r *PGRepository) AppendDispute(ctx context.Context, tx pgx.Tx, d Dispute) error {
	_, err := tx.Exec(ctx, `
		INSERT INTO disputes (work_id, idx, challenger, challenger_handle, deposit, filed_at)
		VALUES ($1, $2, $3, $4, $5, $6)
	`, d.WorkID, d.Idx, d.Challenger, []byte(d.ChallengerHandle), d.Deposit, d.FiledAt)
	if err != nil {
		return fmt.Errorf("dispute: append dispute: %w", err)
	}
	return nil
}

func (r *PGRepository) MarkWorkDisputed(ctx context.Context, tx pgx.Tx, workID int64) error {
	_, err := tx.Exec(ctx, `
		UPDATE works SET disputed = TRUE, dispute_count = dispute_count + 1 WHERE id = $1
	`, workID)
	if err != nil {
		return fmt.Errorf("dispute: mark work disputed: %w", err)
	}
	return nil
}

func (r *PGRepository) BumpTotalDisputes(ctx context.Context, tx pgx.Tx, accountID string) error {
	_, err := tx.Exec(ctx, `
		UPDATE identities SET total_disputes = total_disputes + 1 WHERE account_id = $1
	`, accountID)
	if err != nil {
		return fmt.Errorf("dispute: bump total disputes: %w", err)
	}
	return nil
}

func (r *PGRepository) BumpWonDisputes(ctx context.Context, tx pgx.Tx, accountID string) error {
	_, err := tx.Exec(ctx, `
		UPDATE identities SET won_disputes = won_disputes + 1 WHERE account_id = $1
	`, accountID)
	if err != nil {
		return fmt.Errorf("dispute: bump won disputes: %w", err)
	}
	return nil
}

const disputeColumns = `
	work_id, idx, challenger, challenger_handle, deposit, filed_at,
	COALESCE(oracle_request_id, '00000000-0000-0000-0000-000000000000'::uuid),
	COALESCE(resolution_requested_at, 'epoch'::timestamptz),
	resolved,
	COALESCE(winner::text, '')
`

func (r *PGRepository) DisputeForUpdate(ctx context.Context, tx pgx.Tx, workID int64, idx int) (Dispute, error) {
	row := tx.QueryRow(ctx, `
		SELECT `+disputeColumns+`
		FROM disputes
		WHERE work_id = $1 AND idx = $2
		FOR UPDATE
	`, workID, idx)
	return scanDispute(row)
}

func (r *PGRepository) DisputeByRequestForUpdate(ctx context.Context, tx pgx.Tx, requestID uuid.UUID) (Dispute, error) {
	row := tx.QueryRow(ctx, `
		SELECT `+disputeColumns+`
		FROM disputes
		WHERE oracle_request_id = $1
		FOR UPDATE
	`, requestID)
	return scanDispute(row)
}

func scanDispute(row pgx.Row) (Dispute, error) {
	var (
		d      Dispute
		handle []byte
	)
	err := row.Scan(
		&d.WorkID,
		&d.Idx,
		&d.Challenger,
		&handle,
		&d.Deposit,
		&d.FiledAt,
		&d.OracleRequestID,
		&d.ResolutionRequestedAt,
		&d.Resolved,
		&d.Winner,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return Dispute{}, ErrInvalidDispute
		}
		return Dispute{}, fmt.Errorf("dispute: load dispute: %w", err)
	}
	d.ChallengerHandle = fingerprint.Handle(handle)
	return d, nil
}

// SetResolutionRequested moves Filed -> ResolutionRequested. The WHERE
// guard rejects a second request against the same dispute.
func (r *PGRepository) SetResolutionRequested(ctx context.Context, tx pgx.Tx, workID int64, idx int, requestID uuid.UUID, at time.Time) error {
	tag, err := tx.Exec(ctx, `
		UPDATE disputes
		SET oracle_request_id = $3, resolution_requested_at = $4
		WHERE work_id = $1 AND idx = $2 AND oracle_request_id IS NULL AND NOT resolved
	`, workID, idx, requestID, at)
	if err != nil {
		return fmt.Errorf("dispute: set resolution requested: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return ErrAlreadyResolved
	}
	return nil
}

// MarkResolved flips the terminal flag; an empty winner records a timeout
// settlement with no winner declared.
func (r *PGRepository) MarkResolved(ctx context.Context, tx pgx.Tx, workID int64, idx int, winner string) error {
	var winnerArg any
	if winner != "" {
		winnerArg = winner
	}
	tag, err := tx.Exec(ctx, `
		UPDATE disputes
		SET resolved = TRUE, winner = $3
		WHERE work_id = $1 AND idx = $2 AND NOT resolved
	`, workID, idx, winnerArg)
	if err != nil {
		return fmt.Errorf("dispute: mark resolved: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return ErrAlreadyFinalized
	}
	return nil
}

func (r *PGRepository) CreditEscrow(ctx context.Context, tx pgx.Tx, accountID string, amount int64) error {
	return escrow.CreditTx(ctx, tx, accountID, amount)
}

func (r *PGRepository) InsertPending(ctx context.Context, tx pgx.Tx, requestID uuid.UUID, workID int64, idx int) error {
	return r.oracleRepo.InsertPendingTx(ctx, tx, oracle.PendingRequest{
		RequestID:  requestID,
		Kind:       oracle.KindDisputeResolution,
		WorkID:     workID,
		DisputeIdx: idx,
	})
}

func (r *PGRepository) SettlePending(ctx context.Context, tx pgx.Tx, requestID uuid.UUID) error {
	return r.oracleRepo.SettlePendingTx(ctx, tx, requestID)
}

func (r *PGRepository) Emit(ctx context.Context, tx pgx.Tx, topic string, payload map[string]any) error {
	return events.Emit(ctx, tx, topic, payload)
}
