package verification

import (
	"time"

	"github.com/google/uuid"
)

// Request mirrors the verification_requests table. Completed and Refunded
// are mutually exclusive terminal flags; once either is set the record is
// immutable. Rows are kept forever for audit and idempotency.
type Request struct {
	RequestID   uuid.UUID
	Requester   string
	WorkID      int64
	Deposit     int64
	RequestedAt time.Time
	Completed   bool
	Refunded    bool
}

// Finalized reports whether the request reached a terminal state.
func (r Request) Finalized() bool {
	return r.Completed || r.Refunded
}
