// Package ed25519sig verifies ed25519 signatures encoded as "ed25519:<base58>".
package ed25519sig

import (
	"crypto/ed25519"
	"errors"
	"fmt"
	"strings"

	"github.com/hdevalence/ed25519consensus"
	"github.com/mr-tron/base58"
)

// Prefix marks an ed25519 key or signature in its text form
const Prefix = "ed25519:"

// Sentinel errors for key and signature decoding
var (
	ErrInvalidKey       = errors.New("invalid ed25519 public key")
	ErrInvalidSignature = errors.New("invalid ed25519 signature")
)

// Verifier checks signatures against one trusted public key
type Verifier struct {
	key ed25519.PublicKey
}

// NewVerifier parses a base58 public key, with or without the ed25519: prefix
func NewVerifier(publicKey string) (*Verifier, error) {
	raw, err := decode(publicKey)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrInvalidKey, err)
	}
	if len(raw) != ed25519.PublicKeySize {
		return nil, fmt.Errorf("%w: %d bytes", ErrInvalidKey, len(raw))
	}
	return &Verifier{key: ed25519.PublicKey(raw)}, nil
}

// Verify reports whether signature is a valid signature of message. Malformed
// signatures never verify.
func (v *Verifier) Verify(message []byte, signature string) bool {
	sig, err := DecodeSignature(signature)
	if err != nil {
		return false
	}
	return ed25519consensus.Verify(v.key, message, sig)
}

// DecodeSignature decodes a base58 signature, with or without the ed25519: prefix
func DecodeSignature(s string) ([]byte, error) {
	raw, err := decode(s)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrInvalidSignature, err)
	}
	if len(raw) != ed25519.SignatureSize {
		return nil, fmt.Errorf("%w: %d bytes", ErrInvalidSignature, len(raw))
	}
	return raw, nil
}

// Encode renders raw key or signature bytes in the prefixed text form
func Encode(raw []byte) string {
	return Prefix + base58.Encode(raw)
}

func decode(s string) ([]byte, error) {
	s = strings.TrimPrefix(strings.TrimSpace(s), Prefix)
	if s == "" {
		return nil, errors.New("empty")
	}
	return base58.Decode(s)
}
