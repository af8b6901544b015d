package oracle

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"
)

// ErrNoHandler signals a pending request whose kind has no registered
// handler. Indicates a wiring bug, not a caller error.
var ErrNoHandler = errors.New("oracle: no handler for kind")

// Handler finalizes the operation awaiting a request id. Implementations
// must treat already-finalized records as an error, not a second payout.
type Handler interface {
	HandleCallback(ctx context.Context, requestID uuid.UUID, cleartexts []byte) error
}

// PendingStore abstracts the pending-request lookup for the dispatcher.
type PendingStore interface {
	GetPending(ctx context.Context, requestID uuid.UUID) (PendingRequest, error)
}

// Dispatcher is the single entry point for oracle callbacks: it validates
// the proof, resolves the tagged operation kind, and routes. Proof
// validation happens before anything else; an invalid proof aborts with no
// state change and the request stays pending (the timeout path remains
// available).
type Dispatcher struct {
	verifier *Verifier
	repo     PendingStore
	handlers map[Kind]Handler
}

func NewDispatcher(verifier *Verifier, repo PendingStore) *Dispatcher {
	return &Dispatcher{
		verifier: verifier,
		repo:     repo,
		handlers: make(map[Kind]Handler),
	}
}

// Register wires the handler for one operation kind.
func (d *Dispatcher) Register(kind Kind, h Handler) {
	d.handlers[kind] = h
}

// Dispatch processes one authenticated callback.
func (d *Dispatcher) Dispatch(ctx context.Context, requestID uuid.UUID, cleartexts, proof []byte) error {
	if err := d.verifier.Check(requestID, cleartexts, proof); err != nil {
		return err
	}

	pending, err := d.repo.GetPending(ctx, requestID)
	if err != nil {
		return err
	}
	if pending.Settled {
		return ErrAlreadyFinalized
	}

	h, ok := d.handlers[pending.Kind]
	if !ok {
		return fmt.Errorf("%w: %s", ErrNoHandler, pending.Kind)
	}
	return h.HandleCallback(ctx, requestID, cleartexts)
}
