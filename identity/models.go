package identity

import (
	"time"

	"claimledger/fingerprint"
)

// Record mirrors the identities table: one pseudonymous identity per
// account, registered once, never destroyed. The handle is opaque; only the
// oracle side can open it.
type Record struct {
	AccountID     string
	Handle        fingerprint.Handle
	WorkCount     int
	TotalDisputes int
	WonDisputes   int
	RegisteredAt  time.Time
}
