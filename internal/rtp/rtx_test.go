package rtp

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestWrapUnwrapRTXRoundTrip(t *testing.T) {
	original := &Packet{
		Header: Header{
			Version:        2,
			Marker:         true,
			PayloadType:    96,
			SequenceNumber: 500,
			Timestamp:      9000,
			SSRC:           1,
		},
		Payload: []byte("video-frame-bytes"),
	}

	rtx := WrapRTX(original, 0xfeedface, 7, 96)
	assert.Equal(t, uint8(97), rtx.PayloadType)
	assert.Equal(t, uint32(0xfeedface), rtx.SSRC)
	assert.Equal(t, uint16(7), rtx.SequenceNumber)
	assert.Equal(t, original.Timestamp, rtx.Timestamp)

	seq, payload, ok := UnwrapRTX(rtx)
	require.True(t, ok)
	assert.Equal(t, original.SequenceNumber, seq)
	assert.Equal(t, original.Payload, payload)
}

func TestUnwrapRTXRejectsShortPayload(t *testing.T) {
	_, _, ok := UnwrapRTX(&Packet{Payload: []byte{0x01}})
	assert.False(t, ok)
}
