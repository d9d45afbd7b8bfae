package sctp

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDataChunkRoundTripFlags(t *testing.T) {
	c := DataChunk{
		TSN:                  100,
		StreamIdentifier:     1,
		StreamSequenceNumber: 2,
		PayloadType:          PayloadTypeWebRTCBinary,
		UserData:             []byte("hello"),
		Beginning:            true,
		Ending:               true,
		Unordered:            true,
		ImmediateSack:        false,
	}
	raw, err := c.Marshal()
	require.NoError(t, err)

	got, err := UnmarshalData(raw)
	require.NoError(t, err)
	assert.Equal(t, c, got)
}

func TestPayloadProtocolIdentifierString(t *testing.T) {
	assert.Equal(t, "WebRTC DCEP", PayloadTypeWebRTCDCEP.String())
	assert.Equal(t, "Unknown PPID", PayloadProtocolIdentifier(999).String())
}

func TestSackRoundTrip(t *testing.T) {
	c := Sack{
		CumulativeTSNAck: 500,
		AdvertisedRwnd:   65536,
		GapAcks:          []GapAck{{Start: 2, End: 2}, {Start: 5, End: 7}},
		DuplicateTSNs:    []uint32{501, 503},
	}
	raw, err := c.Marshal()
	require.NoError(t, err)

	got, err := UnmarshalSack(raw)
	require.NoError(t, err)
	assert.Equal(t, c, got)
}

func TestForwardTSNRoundTrip(t *testing.T) {
	c := ForwardTSN{
		NewCumulativeTSN: 1000,
		Streams:          []ForwardTSNStream{{Identifier: 1, Sequence: 10}, {Identifier: 2, Sequence: 20}},
	}
	raw, err := c.Marshal()
	require.NoError(t, err)

	got, err := UnmarshalForwardTSN(raw)
	require.NoError(t, err)
	assert.Equal(t, c, got)
}

func TestReconfigOutgoingResetRoundTrip(t *testing.T) {
	c := ReconfigOutgoingReset{
		ReconfigRequestSequenceNumber:  1,
		ReconfigResponseSequenceNumber: 0,
		SenderLastAssignedTSN:          999,
		StreamIdentifiers:              []uint16{1, 3, 5},
	}
	raw, err := c.Marshal()
	require.NoError(t, err)

	got, err := UnmarshalReconfigOutgoingReset(raw)
	require.NoError(t, err)
	assert.Equal(t, c, got)
}
