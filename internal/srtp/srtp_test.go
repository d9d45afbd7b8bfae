package srtp

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/vela-rtc/webrtc/internal/rtp"
)

func newTestContext(t *testing.T) *Context {
	key := make([]byte, gcmKeyLen)
	salt := make([]byte, gcmSaltLen)
	for i := range key {
		key[i] = byte(i)
	}
	for i := range salt {
		salt[i] = byte(i + 1)
	}
	ctx, err := NewContext(key, salt)
	require.NoError(t, err)
	return ctx
}

func newTestPacket(seq uint16, ssrc uint32) *rtp.Packet {
	return &rtp.Packet{
		Header: rtp.Header{
			Version:        2,
			PayloadType:    96,
			SequenceNumber: seq,
			Timestamp:      12345,
			SSRC:           ssrc,
		},
		Payload: []byte("abcdefgh"),
	}
}

func TestNewContextRejectsBadKeyLengths(t *testing.T) {
	_, err := NewContext(make([]byte, 10), make([]byte, gcmSaltLen))
	assert.Error(t, err)

	_, err = NewContext(make([]byte, gcmKeyLen), make([]byte, 5))
	assert.Error(t, err)
}

func TestProtectUnprotectRTPRoundTrip(t *testing.T) {
	ctx := newTestContext(t)
	pkt := newTestPacket(1000, 0xdeadbeef)

	protected, err := ctx.ProtectRTP(pkt)
	require.NoError(t, err)
	assert.Greater(t, len(protected), len(pkt.Payload))

	got, err := ctx.UnprotectRTP(protected)
	require.NoError(t, err)
	assert.Equal(t, pkt.SequenceNumber, got.SequenceNumber)
	assert.Equal(t, pkt.SSRC, got.SSRC)
	assert.Equal(t, pkt.Payload, got.Payload)
}

func TestProtectUnprotectRTCPRoundTrip(t *testing.T) {
	ctx := newTestContext(t)
	raw := []byte{0x80, 200, 0, 6, 0, 0, 0, 1, 0, 0, 0, 0, 0, 0, 0, 0, 0, 0, 0, 0, 0, 0, 0, 0, 0, 0, 0, 0}

	protected, err := ctx.ProtectRTCP(raw, 1)
	require.NoError(t, err)

	got, err := ctx.UnprotectRTCP(protected, 1)
	require.NoError(t, err)
	assert.Equal(t, raw, got)
}

// Every accepted packet, the first included, is recorded in the replay
// window, so replaying the first packet after a second one has been
// accepted is rejected.
func TestUnprotectRTPRejectsReplay(t *testing.T) {
	ctx := newTestContext(t)
	const ssrc = 0xabcdef01

	first, err := ctx.ProtectRTP(newTestPacket(1, ssrc))
	require.NoError(t, err)
	_, err = ctx.UnprotectRTP(first)
	require.NoError(t, err)

	second, err := ctx.ProtectRTP(newTestPacket(2, ssrc))
	require.NoError(t, err)
	_, err = ctx.UnprotectRTP(second)
	require.NoError(t, err)

	// Replaying the first packet must now be rejected.
	_, err = ctx.UnprotectRTP(first)
	assert.Error(t, err)
}

func TestUnprotectRTPRejectsOutOfWindow(t *testing.T) {
	ctx := newTestContext(t)
	const ssrc = 0x11223344

	old, err := ctx.ProtectRTP(newTestPacket(1, ssrc))
	require.NoError(t, err)
	_, err = ctx.UnprotectRTP(old)
	require.NoError(t, err)

	// Advance the highest sequence number far past the 128-wide window.
	for seq := uint16(2); seq <= 200; seq++ {
		p, err := ctx.ProtectRTP(newTestPacket(seq, ssrc))
		require.NoError(t, err)
		_, err = ctx.UnprotectRTP(p)
		require.NoError(t, err)
	}

	_, err = ctx.UnprotectRTP(old)
	assert.Error(t, err)
}

func TestUnprotectRTPAcceptsOutOfOrderWithinWindow(t *testing.T) {
	ctx := newTestContext(t)
	const ssrc = 0x55667788

	first, err := ctx.ProtectRTP(newTestPacket(10, ssrc))
	require.NoError(t, err)
	_, err = ctx.UnprotectRTP(first)
	require.NoError(t, err)

	later, err := ctx.ProtectRTP(newTestPacket(15, ssrc))
	require.NoError(t, err)
	_, err = ctx.UnprotectRTP(later)
	require.NoError(t, err)

	// Seq 12 arrives late but is still within the replay window.
	reordered, err := ctx.ProtectRTP(newTestPacket(12, ssrc))
	require.NoError(t, err)
	_, err = ctx.UnprotectRTP(reordered)
	assert.NoError(t, err)
}
