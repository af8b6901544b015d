package oracle

import (
	"context"
	"fmt"
	"sync"

	"github.com/google/uuid"

	"claimledger/fingerprint"
)

// Simulator is an in-process oracle used in development and tests. It
// implements Client on the request side and answers by opening the handles,
// signing the cleartexts, and pushing the callback through the dispatcher.
// Answers are explicit: nothing is delivered until Answer is called, which
// keeps timeout scenarios reproducible.
type Simulator struct {
	opener fingerprint.Opener
	signer *Signer

	mu       sync.Mutex
	requests map[uuid.UUID][]fingerprint.Handle
	target   *Dispatcher
}

func NewSimulator(opener fingerprint.Opener, signer *Signer) *Simulator {
	return &Simulator{
		opener:   opener,
		signer:   signer,
		requests: make(map[uuid.UUID][]fingerprint.Handle),
	}
}

// Attach sets the dispatcher callbacks are delivered to.
func (s *Simulator) Attach(d *Dispatcher) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.target = d
}

func (s *Simulator) RequestDecryption(_ context.Context, handles []fingerprint.Handle, _ Kind) (uuid.UUID, error) {
	id := uuid.New()
	copied := make([]fingerprint.Handle, len(handles))
	for i, h := range handles {
		copied[i] = append(fingerprint.Handle(nil), h...)
	}
	s.mu.Lock()
	s.requests[id] = copied
	s.mu.Unlock()
	return id, nil
}

// Cleartexts opens the handles of a captured request and returns the signed
// callback payload without delivering it. Lets tests forge variations.
func (s *Simulator) Cleartexts(requestID uuid.UUID) ([]byte, []byte, error) {
	s.mu.Lock()
	handles, ok := s.requests[requestID]
	s.mu.Unlock()
	if !ok {
		return nil, nil, fmt.Errorf("oracle: simulator has no request %s", requestID)
	}

	values := make([]uint64, len(handles))
	for i, h := range handles {
		v, err := s.opener.Open(h)
		if err != nil {
			return nil, nil, fmt.Errorf("oracle: simulator open handle %d: %w", i, err)
		}
		values[i] = v
	}
	cleartexts := EncodeValues(values...)
	return cleartexts, s.signer.Sign(requestID, cleartexts), nil
}

// Answer decrypts, signs, and delivers the callback for one request.
func (s *Simulator) Answer(ctx context.Context, requestID uuid.UUID) error {
	s.mu.Lock()
	target := s.target
	s.mu.Unlock()
	if target == nil {
		return fmt.Errorf("oracle: simulator has no dispatcher attached")
	}

	cleartexts, proof, err := s.Cleartexts(requestID)
	if err != nil {
		return err
	}
	return target.Dispatch(ctx, requestID, cleartexts, proof)
}
