package work

import (
	"time"

	"claimledger/fingerprint"
)

// Work mirrors the works table. The author handle is the owning identity's
// handle, copied by reference at creation time; it is never re-derived.
type Work struct {
	ID                int64
	FingerprintHandle fingerprint.Handle
	AuthorHandle      fingerprint.Handle
	OwnerAccount      string
	Title             string
	Category          string
	FeePaid           int64
	Verified          bool
	Disputed          bool
	DisputeCount      int
	CreatedAt         time.Time
}

// CreateParams enumerates the fields required to register a work.
type CreateParams struct {
	OwnerAccount string
	Fingerprint  fingerprint.Handle
	Title        string
	Category     string
	Fee          int64
}
