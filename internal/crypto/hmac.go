package crypto

import (
	"crypto/hmac"
	"crypto/sha1" //nolint:gosec // required by RFC 5389 MESSAGE-INTEGRITY and RFC 3711 SRTP auth
	"crypto/sha256"
)

// HMACSHA1 computes the HMAC-SHA1 of data under key, as used by STUN
// MESSAGE-INTEGRITY and the SRTP AES-CM-HMAC-SHA1-80 authentication tag.
func HMACSHA1(key, data []byte) []byte {
	mac := hmac.New(sha1.New, key)
	mac.Write(data)
	return mac.Sum(nil)
}

// HMACSHA256 computes the HMAC-SHA256 of data under key, as used by the
// DTLS Finished verify_data and transcript-bound PRF operations.
func HMACSHA256(key, data []byte) []byte {
	mac := hmac.New(sha256.New, key)
	mac.Write(data)
	return mac.Sum(nil)
}
