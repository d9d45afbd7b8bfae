package crypto

import (
	"crypto/hmac"
	"crypto/sha256"
	"hash"
)

// PHash implements the TLS/DTLS 1.2 P_hash(secret, seed) expansion
// function (RFC 5246 §5) used both for the DTLS key schedule PRF and
// for the RFC 5705 keying-material exporter used to derive SRTP keys.
func PHash(secret, seed []byte, length int, newHash func() hash.Hash) []byte {
	h := hmac.New(newHash, secret)
	h.Write(seed)
	a := h.Sum(nil)

	out := make([]byte, 0, length)
	for len(out) < length {
		h := hmac.New(newHash, secret)
		h.Write(a)
		h.Write(seed)
		out = append(out, h.Sum(nil)...)

		h = hmac.New(newHash, secret)
		h.Write(a)
		a = h.Sum(nil)
	}
	return out[:length]
}

// PRF12 is P_hash instantiated with SHA-256, the only PRF hash DTLS 1.2
// cipher suites negotiated by this stack use (TLS_ECDHE_ECDSA_*_SHA256).
func PRF12(secret, seed []byte, length int) []byte {
	return PHash(secret, seed, length, sha256.New)
}
