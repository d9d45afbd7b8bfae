package stun

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestTypeValueRoundTrip(t *testing.T) {
	cases := []Type{
		{Class: ClassRequest, Method: MethodBinding},
		{Class: ClassSuccess, Method: MethodBinding},
		{Class: ClassError, Method: MethodBinding},
		{Class: ClassIndication, Method: MethodData},
		{Class: ClassRequest, Method: MethodAllocate},
		{Class: ClassSuccess, Method: MethodCreatePermission},
	}
	for _, c := range cases {
		got := TypeFromValue(c.Value())
		assert.Equal(t, c, got)
	}
}

func TestMessageEncodeDecodeRoundTrip(t *testing.T) {
	req := NewRequest(MethodBinding)
	req.Add(AttrUsername, []byte("alice:bob"))

	raw := Encode(req, nil, false)
	decoded, err := Decode(raw)
	require.NoError(t, err)

	assert.Equal(t, req.Type, decoded.Type)
	assert.Equal(t, req.TransactionID, decoded.TransactionID)
	attr, ok := decoded.Get(AttrUsername)
	require.True(t, ok)
	assert.Equal(t, "alice:bob", string(attr.Value))
}

func TestMessageIntegrityAndFingerprint(t *testing.T) {
	req := NewRequest(MethodBinding)
	req.Add(AttrUsername, []byte("alice:bob"))

	key := ShortTermKey("password")
	raw := Encode(req, key, true)

	decoded, err := Decode(raw)
	require.NoError(t, err)

	assert.True(t, VerifyIntegrity(raw, decoded, key))
	assert.True(t, VerifyFingerprintAttr(raw, decoded))

	tampered := append([]byte(nil), raw...)
	tampered[len(tampered)-1] ^= 0xFF
	retampered, err := Decode(tampered)
	require.NoError(t, err)
	assert.False(t, VerifyFingerprintAttr(tampered, retampered))
}

func TestMessageIntegrityRejectsWrongKey(t *testing.T) {
	req := NewRequest(MethodBinding)
	raw := Encode(req, ShortTermKey("password"), false)
	decoded, err := Decode(raw)
	require.NoError(t, err)

	assert.False(t, VerifyIntegrity(raw, decoded, ShortTermKey("wrong")))
}

func TestDecodeRejectsBadCookie(t *testing.T) {
	req := NewRequest(MethodBinding)
	raw := Encode(req, nil, false)
	raw[4] ^= 0xFF // corrupt the magic cookie
	_, err := Decode(raw)
	assert.ErrorIs(t, err, ErrMalformed)
}

func TestDecodeRejectsTruncated(t *testing.T) {
	_, err := Decode([]byte{0, 1, 2})
	assert.ErrorIs(t, err, ErrMalformed)
}

func TestXORMappedAddressRoundTripIPv4(t *testing.T) {
	tid := NewTransactionID()
	addr := XORAddress{IP: []byte{203, 0, 113, 5}, Port: 54321}
	enc := EncodeXORMappedAddress(addr, tid)
	dec, ok := DecodeXORMappedAddress(enc, tid)
	require.True(t, ok)
	assert.Equal(t, addr.Port, dec.Port)
	assert.True(t, addr.IP.Equal(dec.IP))
}

func TestXORMappedAddressRoundTripIPv6(t *testing.T) {
	tid := NewTransactionID()
	addr := XORAddress{IP: []byte{0x20, 0x01, 0xd, 0xb8, 0, 0, 0, 0, 0, 0, 0, 0, 0, 0, 0, 1}, Port: 443}
	enc := EncodeXORMappedAddress(addr, tid)
	dec, ok := DecodeXORMappedAddress(enc, tid)
	require.True(t, ok)
	assert.Equal(t, addr.Port, dec.Port)
	assert.True(t, addr.IP.Equal(dec.IP))
}

func TestErrorCodeRoundTrip(t *testing.T) {
	enc := EncodeErrorCode(401, "Unauthorized")
	code, reason := DecodeErrorCode(enc)
	assert.Equal(t, 401, code)
	assert.Equal(t, "Unauthorized", reason)
}
