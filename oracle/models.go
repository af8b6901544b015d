package oracle

import (
	"encoding/binary"
	"fmt"
	"time"

	"github.com/google/uuid"
)

// Kind tags a pending request with the operation awaiting its answer. The
// callback handler dispatches on this tag; there are no stored callbacks.
type Kind string

const (
	KindVerification      Kind = "verification"
	KindDisputeResolution Kind = "dispute_resolution"
)

// PendingRequest mirrors the pending_requests table: one row per oracle
// round-trip, keyed by the oracle-assigned request id. Rows are kept after
// finalization with the settled flag raised so a late callback can be told
// apart from a request that never existed.
type PendingRequest struct {
	RequestID  uuid.UUID
	Kind       Kind
	WorkID     int64
	DisputeIdx int
	Settled    bool
	CreatedAt  time.Time
}

// EncodeValues packs plaintext values into the callback wire format:
// big-endian uint64s, concatenated.
func EncodeValues(values ...uint64) []byte {
	out := make([]byte, 8*len(values))
	for i, v := range values {
		binary.BigEndian.PutUint64(out[8*i:], v)
	}
	return out
}

// DecodeValues unpacks exactly n values from a callback payload.
func DecodeValues(cleartexts []byte, n int) ([]uint64, error) {
	if len(cleartexts) != 8*n {
		return nil, fmt.Errorf("oracle: expected %d cleartext bytes, got %d", 8*n, len(cleartexts))
	}
	out := make([]uint64, n)
	for i := range out {
		out[i] = binary.BigEndian.Uint64(cleartexts[8*i:])
	}
	return out, nil
}
