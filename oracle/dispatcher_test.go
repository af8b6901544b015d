package oracle

import (
	"context"
	"crypto/ed25519"
	"errors"
	"testing"

	"github.com/google/uuid"
)

type fakePendingStore struct {
	pending map[uuid.UUID]PendingRequest
}

func (f *fakePendingStore) GetPending(_ context.Context, id uuid.UUID) (PendingRequest, error) {
	p, ok := f.pending[id]
	if !ok {
		return PendingRequest{}, ErrUnknownRequest
	}
	return p, nil
}

type recordingHandler struct {
	calls      int
	requestID  uuid.UUID
	cleartexts []byte
	err        error
}

func (h *recordingHandler) HandleCallback(_ context.Context, requestID uuid.UUID, cleartexts []byte) error {
	h.calls++
	h.requestID = requestID
	h.cleartexts = cleartexts
	return h.err
}

func newTestKeys(t *testing.T) (*Signer, *Verifier) {
	t.Helper()
	pub, priv, err := ed25519.GenerateKey(nil)
	if err != nil {
		t.Fatalf("generate key: %v", err)
	}
	return NewSigner(priv), NewVerifier(pub)
}

func TestDispatchRoutesByKind(t *testing.T) {
	signer, verifier := newTestKeys(t)
	id := uuid.New()
	store := &fakePendingStore{pending: map[uuid.UUID]PendingRequest{
		id: {RequestID: id, Kind: KindVerification, WorkID: 1},
	}}

	d := NewDispatcher(verifier, store)
	verHandler := &recordingHandler{}
	dispHandler := &recordingHandler{}
	d.Register(KindVerification, verHandler)
	d.Register(KindDisputeResolution, dispHandler)

	cleartexts := EncodeValues(1)
	proof := signer.Sign(id, cleartexts)
	if err := d.Dispatch(context.Background(), id, cleartexts, proof); err != nil {
		t.Fatalf("dispatch: %v", err)
	}

	if verHandler.calls != 1 {
		t.Fatalf("expected verification handler called once, got %d", verHandler.calls)
	}
	if dispHandler.calls != 0 {
		t.Fatalf("dispute handler must not be called, got %d", dispHandler.calls)
	}
	if verHandler.requestID != id {
		t.Fatalf("handler saw wrong request id %s", verHandler.requestID)
	}
}

func TestDispatchRejectsBadProof(t *testing.T) {
	signer, verifier := newTestKeys(t)
	id := uuid.New()
	store := &fakePendingStore{pending: map[uuid.UUID]PendingRequest{
		id: {RequestID: id, Kind: KindVerification},
	}}

	d := NewDispatcher(verifier, store)
	h := &recordingHandler{}
	d.Register(KindVerification, h)

	cleartexts := EncodeValues(1)

	// Proof over different cleartexts must not validate.
	proof := signer.Sign(id, EncodeValues(0))
	if err := d.Dispatch(context.Background(), id, cleartexts, proof); !errors.Is(err, ErrUntrustedCallback) {
		t.Fatalf("expected ErrUntrustedCallback, got %v", err)
	}

	// Truncated proof likewise.
	if err := d.Dispatch(context.Background(), id, cleartexts, []byte("short")); !errors.Is(err, ErrUntrustedCallback) {
		t.Fatalf("expected ErrUntrustedCallback for short proof, got %v", err)
	}

	if h.calls != 0 {
		t.Fatalf("handler must not run on untrusted callback, got %d calls", h.calls)
	}
}

func TestDispatchUnknownRequest(t *testing.T) {
	signer, verifier := newTestKeys(t)
	id := uuid.New()
	d := NewDispatcher(verifier, &fakePendingStore{pending: map[uuid.UUID]PendingRequest{}})

	cleartexts := EncodeValues(1)
	proof := signer.Sign(id, cleartexts)
	if err := d.Dispatch(context.Background(), id, cleartexts, proof); !errors.Is(err, ErrUnknownRequest) {
		t.Fatalf("expected ErrUnknownRequest, got %v", err)
	}
}

func TestDispatchSettledRequest(t *testing.T) {
	signer, verifier := newTestKeys(t)
	id := uuid.New()
	store := &fakePendingStore{pending: map[uuid.UUID]PendingRequest{
		id: {RequestID: id, Kind: KindVerification, Settled: true},
	}}

	d := NewDispatcher(verifier, store)
	h := &recordingHandler{}
	d.Register(KindVerification, h)

	cleartexts := EncodeValues(1)
	proof := signer.Sign(id, cleartexts)
	if err := d.Dispatch(context.Background(), id, cleartexts, proof); !errors.Is(err, ErrAlreadyFinalized) {
		t.Fatalf("expected ErrAlreadyFinalized, got %v", err)
	}
	if h.calls != 0 {
		t.Fatalf("handler must not run after finalization, got %d calls", h.calls)
	}
}

func TestDispatchNoHandler(t *testing.T) {
	signer, verifier := newTestKeys(t)
	id := uuid.New()
	store := &fakePendingStore{pending: map[uuid.UUID]PendingRequest{
		id: {RequestID: id, Kind: KindDisputeResolution},
	}}
	d := NewDispatcher(verifier, store)

	cleartexts := EncodeValues(42, 42)
	proof := signer.Sign(id, cleartexts)
	if err := d.Dispatch(context.Background(), id, cleartexts, proof); !errors.Is(err, ErrNoHandler) {
		t.Fatalf("expected ErrNoHandler, got %v", err)
	}
}

func TestEncodeDecodeValues(t *testing.T) {
	payload := EncodeValues(42, 7)
	values, err := DecodeValues(payload, 2)
	if err != nil {
		t.Fatalf("decode: %v", err)
	}
	if values[0] != 42 || values[1] != 7 {
		t.Fatalf("unexpected values %v", values)
	}

	if _, err := DecodeValues(payload, 1); err == nil {
		t.Fatal("expected length mismatch error")
	}
}
