package escrow

import (
	"errors"
	"sync/atomic"
)

// ErrReentrantCall signals a nested entry into a transfer-bearing function.
var ErrReentrantCall = errors.New("escrow: re-entrant call rejected")

// TransferGuard is the scoped mutual exclusion wrapped around every function
// that issues an outbound transfer. Acquire on entry, release on every exit
// path. It does not queue: a concurrent entry is an error, not a wait.
type TransferGuard struct {
	busy atomic.Bool
}

func NewTransferGuard() *TransferGuard {
	return &TransferGuard{}
}

// Enter acquires the guard or fails with ErrReentrantCall.
func (g *TransferGuard) Enter() error {
	if !g.busy.CompareAndSwap(false, true) {
		return ErrReentrantCall
	}
	return nil
}

// Leave releases the guard. Must be deferred right after a successful Enter.
func (g *TransferGuard) Leave() {
	g.busy.Store(false)
}
