package dispute

import (
	"time"

	"github.com/google/uuid"

	"claimledger/fingerprint"
)

// Dispute is one challenge filed against a work. Disputes live in a
// per-work append-only list; Idx is the position in that list.
type Dispute struct {
	WorkID                int64
	Idx                   int
	Challenger            string
	ChallengerHandle      fingerprint.Handle
	Deposit               int64
	FiledAt               time.Time
	OracleRequestID       uuid.UUID
	ResolutionRequestedAt time.Time
	Resolved              bool
	Winner                string
}

// ResolutionRequested reports whether the dispute has left Filed and its
// timeout clock is running.
func (d Dispute) ResolutionRequested() bool {
	return d.OracleRequestID != uuid.Nil
}

// WorkInfo is the slice of the work row the dispute machine reads: who
// owns it, when it was registered, and how contested it already is.
type WorkInfo struct {
	ID           int64
	Owner        string
	Handle       fingerprint.Handle
	CreatedAt    time.Time
	DisputeCount int
}
