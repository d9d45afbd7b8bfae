package rtcp

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNackPairPacketList(t *testing.T) {
	p := NackPair{PacketID: 100, LostBitmask: 0b101} // 100 lost, 101 and 103 follow per bit 0 and bit 2
	list := p.PacketList()
	assert.Equal(t, []uint16{100, 101, 103}, list)
}

func TestNackPairsFromSequenceNumbersGroups(t *testing.T) {
	seqs := []uint16{5, 6, 8, 30}
	pairs := NackPairsFromSequenceNumbers(seqs)
	require.Len(t, pairs, 2)
	assert.Equal(t, uint16(5), pairs[0].PacketID)
	// 6 is +1 (bit 0), 8 is +3 (bit 2); 30 is too far (d=24>=16) so starts a new pair.
	assert.Equal(t, uint16(0b101), pairs[0].LostBitmask)
	assert.Equal(t, uint16(30), pairs[1].PacketID)
	assert.Equal(t, uint16(0), pairs[1].LostBitmask)
}

func TestTransportLayerNackRoundTrip(t *testing.T) {
	n := TransportLayerNack{
		SenderSSRC: 1,
		MediaSSRC:  2,
		Nacks:      []NackPair{{PacketID: 10, LostBitmask: 0x3}, {PacketID: 50, LostBitmask: 0}},
	}
	raw, err := n.Marshal()
	require.NoError(t, err)

	var got TransportLayerNack
	require.NoError(t, got.Unmarshal(raw))
	assert.Equal(t, n, got)
}

func TestPictureLossIndicationRoundTrip(t *testing.T) {
	p := PictureLossIndication{SenderSSRC: 1, MediaSSRC: 2}
	raw, err := p.Marshal()
	require.NoError(t, err)

	var got PictureLossIndication
	require.NoError(t, got.Unmarshal(raw))
	assert.Equal(t, p, got)
}

func TestSliceLossIndicationRoundTrip(t *testing.T) {
	s := SliceLossIndication{SenderSSRC: 1, MediaSSRC: 2, FirstMB: 123, NumberMB: 456, PictureID: 7}
	raw, err := s.Marshal()
	require.NoError(t, err)

	var got SliceLossIndication
	require.NoError(t, got.Unmarshal(raw))
	assert.Equal(t, s, got)
}

func TestFullIntraRequestRoundTrip(t *testing.T) {
	f := FullIntraRequest{SenderSSRC: 1, MediaSSRC: 2, SeqNumber: 9}
	raw, err := f.Marshal()
	require.NoError(t, err)

	var got FullIntraRequest
	require.NoError(t, got.Unmarshal(raw))
	assert.Equal(t, f, got)
}

func TestReceiverEstimatedMaxBitrateRoundTrip(t *testing.T) {
	r := ReceiverEstimatedMaxBitrate{SenderSSRC: 1, Bitrate: 200000, SSRCs: []uint32{11, 22}}
	raw, err := r.Marshal()
	require.NoError(t, err)

	var got ReceiverEstimatedMaxBitrate
	require.NoError(t, got.Unmarshal(raw))
	assert.Equal(t, r.SenderSSRC, got.SenderSSRC)
	assert.Equal(t, r.Bitrate, got.Bitrate)
	assert.Equal(t, r.SSRCs, got.SSRCs)
}

func TestReceiverEstimatedMaxBitrateRejectsWrongMagic(t *testing.T) {
	p := PictureLossIndication{SenderSSRC: 1, MediaSSRC: 2}
	raw, err := p.Marshal()
	require.NoError(t, err)

	var r ReceiverEstimatedMaxBitrate
	assert.Error(t, r.Unmarshal(raw))
}
