package oracle

import (
	"crypto/ed25519"
	"errors"

	"github.com/google/uuid"
)

// ErrUntrustedCallback signals a callback whose proof does not validate
// against the oracle trust root. Such callbacks are dropped before any
// cleartext byte is decoded.
var ErrUntrustedCallback = errors.New("oracle: untrusted callback")

// callbackMessage binds the proof to both the request id and the payload.
func callbackMessage(requestID uuid.UUID, cleartexts []byte) []byte {
	msg := make([]byte, 0, 16+len(cleartexts))
	msg = append(msg, requestID[:]...)
	return append(msg, cleartexts...)
}

// Verifier checks callback authenticity against the oracle's Ed25519 key.
type Verifier struct {
	pub ed25519.PublicKey
}

func NewVerifier(pub ed25519.PublicKey) *Verifier {
	return &Verifier{pub: pub}
}

// Check validates proof over (requestID, cleartexts). Fails closed.
func (v *Verifier) Check(requestID uuid.UUID, cleartexts, proof []byte) error {
	if len(proof) != ed25519.SignatureSize {
		return ErrUntrustedCallback
	}
	if !ed25519.Verify(v.pub, callbackMessage(requestID, cleartexts), proof) {
		return ErrUntrustedCallback
	}
	return nil
}

// Signer produces callback proofs. It lives on the oracle side; the ledger
// only ever holds a Verifier.
type Signer struct {
	priv ed25519.PrivateKey
}

func NewSigner(priv ed25519.PrivateKey) *Signer {
	return &Signer{priv: priv}
}

func (s *Signer) Sign(requestID uuid.UUID, cleartexts []byte) []byte {
	return ed25519.Sign(s.priv, callbackMessage(requestID, cleartexts))
}
