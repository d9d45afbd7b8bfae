// Package crypto collects the abstract cipher primitives the DTLS and
// SRTP layers are built on: AES-GCM AEAD, AES-CM (counter mode, used as
// a keystream generator rather than an AEAD), HMAC-SHA1/SHA256, an
// HKDF-style expansion, and self-signed ECDSA P-256 certificate
// generation with SHA-256 fingerprinting.
//
// This package deliberately exposes only the operations the protocol
// layers need, not a general crypto toolkit.
package crypto

import (
	"crypto/aes"
	"crypto/cipher"
	"fmt"
)

// GCM wraps a standard AES-GCM AEAD with the 12-byte nonce convention
// DTLS and SRTP (AES-GCM profile) both use.
type GCM struct {
	aead cipher.AEAD
}

// NewGCM constructs an AES-GCM sealer/opener from a raw key.
func NewGCM(key []byte) (*GCM, error) {
	block, err := aes.NewCipher(key)
	if err != nil {
		return nil, fmt.Errorf("crypto: aes.NewCipher: %w", err)
	}
	aead, err := cipher.NewGCM(block)
	if err != nil {
		return nil, fmt.Errorf("crypto: cipher.NewGCM: %w", err)
	}
	return &GCM{aead: aead}, nil
}

// Overhead returns the authentication tag length in bytes (16 for
// standard AES-GCM).
func (g *GCM) Overhead() int { return g.aead.Overhead() }

// Seal encrypts plaintext in place against aad under nonce, appending
// the authentication tag, and returns the resulting ciphertext.
func (g *GCM) Seal(dst, nonce, plaintext, aad []byte) []byte {
	return g.aead.Seal(dst, nonce, plaintext, aad)
}

// Open authenticates and decrypts ciphertext, returning the plaintext
// or an error if the tag doesn't verify (AuthenticationError at the
// caller).
func (g *GCM) Open(dst, nonce, ciphertext, aad []byte) ([]byte, error) {
	out, err := g.aead.Open(dst, nonce, ciphertext, aad)
	if err != nil {
		return nil, fmt.Errorf("crypto: gcm open: %w", err)
	}
	return out, nil
}
