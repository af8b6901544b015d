package fingerprint

import (
	"crypto/cipher"
	"crypto/rand"
	"encoding/binary"
	"errors"
	"fmt"

	"github.com/zeebo/blake3"
	"golang.org/x/crypto/chacha20poly1305"
)

var (
	// ErrTrivialHandle signals an empty or zero-equivalent handle.
	ErrTrivialHandle = errors.New("fingerprint: trivial handle")
	// ErrBadHandle signals a handle that cannot be opened.
	ErrBadHandle = errors.New("fingerprint: malformed handle")
)

// Handle is an opaque reference to an encrypted fingerprint value. The
// ledger core stores and forwards handles but never opens them.
type Handle []byte

// Trivial reports whether the handle carries no ciphertext at all.
func (h Handle) Trivial() bool {
	return len(h) == 0
}

// Encryptor is the capability exposed to the ledger core: it can produce
// handles and derive equality-predicate handles, nothing else.
type Encryptor interface {
	// Seal encrypts a fingerprint value into a fresh handle.
	Seal(value uint64) (Handle, error)
	// Eq derives a handle holding 1 if both inputs seal the same value,
	// 0 otherwise. The caller learns nothing about the result.
	Eq(a, b Handle) (Handle, error)
}

// Opener is the capability held by the oracle side only.
type Opener interface {
	Open(h Handle) (uint64, error)
}

// Sealer implements both capabilities over XChaCha20-Poly1305. The key
// belongs to the oracle operator; the core is handed the Sealer as an
// Encryptor and must not be given the Opener view.
type Sealer struct {
	aead cipher.AEAD
	mask uint64
}

// NewSealer builds a Sealer from a 32-byte key. widthBits bounds the
// fingerprint domain; values are masked on seal.
func NewSealer(key []byte, widthBits int) (*Sealer, error) {
	if widthBits < 1 || widthBits > 64 {
		return nil, fmt.Errorf("fingerprint: width %d out of range", widthBits)
	}
	aead, err := chacha20poly1305.NewX(key)
	if err != nil {
		return nil, fmt.Errorf("fingerprint: init cipher: %w", err)
	}
	mask := ^uint64(0)
	if widthBits < 64 {
		mask = (1 << uint(widthBits)) - 1
	}
	return &Sealer{aead: aead, mask: mask}, nil
}

// Digest reduces raw content bytes to a fingerprint value of the given
// width using BLAKE3.
func Digest(content []byte, widthBits int) uint64 {
	sum := blake3.Sum256(content)
	v := binary.BigEndian.Uint64(sum[:8])
	if widthBits < 64 {
		v &= (1 << uint(widthBits)) - 1
	}
	return v
}

func (s *Sealer) Seal(value uint64) (Handle, error) {
	nonce := make([]byte, chacha20poly1305.NonceSizeX)
	if _, err := rand.Read(nonce); err != nil {
		return nil, fmt.Errorf("fingerprint: nonce: %w", err)
	}
	var plain [8]byte
	binary.BigEndian.PutUint64(plain[:], value&s.mask)
	return Handle(s.aead.Seal(nonce, nonce, plain[:], nil)), nil
}

func (s *Sealer) Open(h Handle) (uint64, error) {
	if len(h) < chacha20poly1305.NonceSizeX+8 {
		return 0, ErrBadHandle
	}
	nonce, box := h[:chacha20poly1305.NonceSizeX], h[chacha20poly1305.NonceSizeX:]
	plain, err := s.aead.Open(nil, nonce, box, nil)
	if err != nil || len(plain) != 8 {
		return 0, ErrBadHandle
	}
	return binary.BigEndian.Uint64(plain), nil
}

// Eq opens both handles internally and seals the comparison outcome. The
// result handle is as opaque to the caller as any other.
func (s *Sealer) Eq(a, b Handle) (Handle, error) {
	if a.Trivial() || b.Trivial() {
		return nil, ErrTrivialHandle
	}
	va, err := s.Open(a)
	if err != nil {
		return nil, err
	}
	vb, err := s.Open(b)
	if err != nil {
		return nil, err
	}
	var out uint64
	if va == vb {
		out = 1
	}
	return s.Seal(out)
}
