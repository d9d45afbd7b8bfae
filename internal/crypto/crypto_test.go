package crypto

import (
	"crypto/sha256"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestGCMSealOpenRoundTrip(t *testing.T) {
	key := make([]byte, 16)
	for i := range key {
		key[i] = byte(i)
	}
	g, err := NewGCM(key)
	require.NoError(t, err)

	nonce := make([]byte, 12)
	aad := []byte("header")
	plaintext := []byte("hello, srtp")

	sealed := g.Seal(nil, nonce, plaintext, aad)
	assert.Equal(t, len(plaintext)+g.Overhead(), len(sealed))

	opened, err := g.Open(nil, nonce, sealed, aad)
	require.NoError(t, err)
	assert.Equal(t, plaintext, opened)
}

func TestGCMOpenRejectsTamperedAAD(t *testing.T) {
	key := make([]byte, 16)
	g, err := NewGCM(key)
	require.NoError(t, err)

	nonce := make([]byte, 12)
	sealed := g.Seal(nil, nonce, []byte("payload"), []byte("aad-a"))
	_, err = g.Open(nil, nonce, sealed, []byte("aad-b"))
	assert.Error(t, err)
}

func TestCounterModeXORKeyStreamSymmetric(t *testing.T) {
	key := make([]byte, 16)
	cm, err := NewCounterMode(key)
	require.NoError(t, err)

	iv := make([]byte, 16)
	plaintext := []byte("0123456789abcdef0123")
	ciphertext := make([]byte, len(plaintext))
	cm.XORKeyStream(ciphertext, plaintext, iv)

	decrypted := make([]byte, len(ciphertext))
	cm.XORKeyStream(decrypted, ciphertext, iv)

	assert.Equal(t, plaintext, decrypted)
	assert.NotEqual(t, plaintext, ciphertext)
}

func TestHMACSHA1Deterministic(t *testing.T) {
	a := HMACSHA1([]byte("key"), []byte("data"))
	b := HMACSHA1([]byte("key"), []byte("data"))
	assert.Equal(t, a, b)
	assert.Len(t, a, 20)
}

func TestHMACSHA256DiffersFromSHA1(t *testing.T) {
	a := HMACSHA256([]byte("key"), []byte("data"))
	assert.Len(t, a, 32)
	assert.NotEqual(t, HMACSHA1([]byte("key"), []byte("data")), a)
}

func TestPRF12MatchesLength(t *testing.T) {
	out := PRF12([]byte("secret"), []byte("seed"), 40)
	assert.Len(t, out, 40)

	// Deterministic for identical inputs.
	out2 := PRF12([]byte("secret"), []byte("seed"), 40)
	assert.Equal(t, out, out2)

	// Different seed produces a different output.
	out3 := PRF12([]byte("secret"), []byte("other-seed"), 40)
	assert.NotEqual(t, out, out3)
}

func TestPHashWithSHA256MatchesPRF12(t *testing.T) {
	a := PHash([]byte("s"), []byte("seed"), 32, sha256.New)
	b := PRF12([]byte("s"), []byte("seed"), 32)
	assert.Equal(t, a, b)
}

func TestGenerateSelfSignedAndFingerprint(t *testing.T) {
	cert, err := GenerateSelfSigned()
	require.NoError(t, err)
	require.NotNil(t, cert.X509Cert)

	fp := cert.Fingerprint()
	assert.True(t, VerifyFingerprint(cert.DER, fp))

	tampered := append([]byte(nil), cert.DER...)
	tampered[len(tampered)-1] ^= 0xFF
	assert.False(t, VerifyFingerprint(tampered, fp))
}

func TestGenerateSelfSignedProducesDistinctCerts(t *testing.T) {
	a, err := GenerateSelfSigned()
	require.NoError(t, err)
	b, err := GenerateSelfSigned()
	require.NoError(t, err)
	assert.NotEqual(t, a.Fingerprint(), b.Fingerprint())
}
