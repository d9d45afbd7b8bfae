package sctp

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestInitRoundTrip(t *testing.T) {
	c := Init{InitiateTag: 42, AdvertisedReceiverWindow: 1 << 16, OutboundStreams: 3, InboundStreams: 4, InitialTSN: 999}
	raw, err := c.Marshal()
	require.NoError(t, err)

	got, err := UnmarshalInit(raw)
	require.NoError(t, err)
	assert.Equal(t, c, got)
}

func TestInitAckRoundTripWithCookie(t *testing.T) {
	c := InitAck{
		Init:   Init{InitiateTag: 1, AdvertisedReceiverWindow: 2, OutboundStreams: 3, InboundStreams: 4, InitialTSN: 5},
		Cookie: []byte("opaque-state-cookie"),
	}
	raw, err := c.Marshal()
	require.NoError(t, err)

	got, err := UnmarshalInitAck(raw)
	require.NoError(t, err)
	assert.Equal(t, c.Init, got.Init)
	assert.Equal(t, c.Cookie, got.Cookie)
}

func TestCookieEchoRoundTrip(t *testing.T) {
	c := CookieEcho{Cookie: []byte("cookie-bytes")}
	raw, err := c.Marshal()
	require.NoError(t, err)

	got, err := UnmarshalCookieEcho(raw)
	require.NoError(t, err)
	assert.Equal(t, c.Cookie, got.Cookie)
}

func TestCookieAckMarshal(t *testing.T) {
	raw, err := CookieAck{}.Marshal()
	require.NoError(t, err)
	assert.Equal(t, ctCookieAck, chunkType(raw))
}

func TestAbortRoundTrip(t *testing.T) {
	c := Abort{Reason: "protocol violation"}
	raw, err := c.Marshal()
	require.NoError(t, err)

	got, err := UnmarshalAbort(raw)
	require.NoError(t, err)
	assert.Equal(t, c.Reason, got.Reason)
}

func TestShutdownRoundTrip(t *testing.T) {
	c := Shutdown{CumulativeTSNAck: 12345}
	raw, err := c.Marshal()
	require.NoError(t, err)

	got, err := UnmarshalShutdown(raw)
	require.NoError(t, err)
	assert.Equal(t, c.CumulativeTSNAck, got.CumulativeTSNAck)
}

func TestShutdownAckAndCompleteMarshal(t *testing.T) {
	raw, err := ShutdownAck{}.Marshal()
	require.NoError(t, err)
	assert.Equal(t, ctShutdownAck, chunkType(raw))

	raw, err = ShutdownComplete{}.Marshal()
	require.NoError(t, err)
	assert.Equal(t, ctShutdownComplete, chunkType(raw))
}

func TestChunkBodyRejectsWrongType(t *testing.T) {
	raw, err := CookieAck{}.Marshal()
	require.NoError(t, err)
	_, err = UnmarshalInit(raw)
	assert.Error(t, err)
}
