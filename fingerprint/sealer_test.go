package fingerprint

import (
	"bytes"
	"testing"
)

func testKey() []byte {
	key := make([]byte, 32)
	for i := range key {
		key[i] = byte(i + 1)
	}
	return key
}

func TestSealOpenRoundTrip(t *testing.T) {
	s, err := NewSealer(testKey(), 32)
	if err != nil {
		t.Fatalf("new sealer: %v", err)
	}

	h, err := s.Seal(42)
	if err != nil {
		t.Fatalf("seal: %v", err)
	}
	if h.Trivial() {
		t.Fatal("expected non-trivial handle")
	}

	v, err := s.Open(h)
	if err != nil {
		t.Fatalf("open: %v", err)
	}
	if v != 42 {
		t.Fatalf("expected 42, got %d", v)
	}
}

func TestSealMasksToWidth(t *testing.T) {
	s, err := NewSealer(testKey(), 8)
	if err != nil {
		t.Fatalf("new sealer: %v", err)
	}

	h, err := s.Seal(0x1FF)
	if err != nil {
		t.Fatalf("seal: %v", err)
	}
	v, err := s.Open(h)
	if err != nil {
		t.Fatalf("open: %v", err)
	}
	if v != 0xFF {
		t.Fatalf("expected masked value 0xFF, got %#x", v)
	}
}

func TestSealIsRandomized(t *testing.T) {
	s, err := NewSealer(testKey(), 32)
	if err != nil {
		t.Fatalf("new sealer: %v", err)
	}

	h1, err := s.Seal(7)
	if err != nil {
		t.Fatalf("seal: %v", err)
	}
	h2, err := s.Seal(7)
	if err != nil {
		t.Fatalf("seal: %v", err)
	}
	if bytes.Equal(h1, h2) {
		t.Fatal("two seals of the same value must not produce equal handles")
	}
}

func TestEqPredicate(t *testing.T) {
	s, err := NewSealer(testKey(), 32)
	if err != nil {
		t.Fatalf("new sealer: %v", err)
	}

	a, _ := s.Seal(42)
	b, _ := s.Seal(42)
	c, _ := s.Seal(43)

	eq, err := s.Eq(a, b)
	if err != nil {
		t.Fatalf("eq: %v", err)
	}
	v, err := s.Open(eq)
	if err != nil {
		t.Fatalf("open eq: %v", err)
	}
	if v != 1 {
		t.Fatalf("expected equal predicate 1, got %d", v)
	}

	ne, err := s.Eq(a, c)
	if err != nil {
		t.Fatalf("eq: %v", err)
	}
	v, err = s.Open(ne)
	if err != nil {
		t.Fatalf("open ne: %v", err)
	}
	if v != 0 {
		t.Fatalf("expected unequal predicate 0, got %d", v)
	}
}

func TestEqRejectsTrivialHandles(t *testing.T) {
	s, err := NewSealer(testKey(), 32)
	if err != nil {
		t.Fatalf("new sealer: %v", err)
	}
	a, _ := s.Seal(1)
	if _, err := s.Eq(a, nil); err != ErrTrivialHandle {
		t.Fatalf("expected ErrTrivialHandle, got %v", err)
	}
}

func TestOpenRejectsGarbage(t *testing.T) {
	s, err := NewSealer(testKey(), 32)
	if err != nil {
		t.Fatalf("new sealer: %v", err)
	}
	if _, err := s.Open(Handle("short")); err != ErrBadHandle {
		t.Fatalf("expected ErrBadHandle for short input, got %v", err)
	}

	h, _ := s.Seal(5)
	h[len(h)-1] ^= 0xFF
	if _, err := s.Open(h); err != ErrBadHandle {
		t.Fatalf("expected ErrBadHandle for tampered input, got %v", err)
	}
}

func TestDigestWidth(t *testing.T) {
	v := Digest([]byte("the quick brown fox"), 32)
	if v>>32 != 0 {
		t.Fatalf("expected digest within 32 bits, got %#x", v)
	}
	if v != Digest([]byte("the quick brown fox"), 32) {
		t.Fatal("digest must be deterministic")
	}
}
