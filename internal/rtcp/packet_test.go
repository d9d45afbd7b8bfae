package rtcp

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestUnmarshalCompoundRoundTrip(t *testing.T) {
	packets := []Packet{
		ReceiverReport{SSRC: 1},
		SourceDescription{Chunks: []SourceDescriptionChunk{
			{Source: 1, Items: []SourceDescriptionItem{{Type: SDESCNAME, Text: "a"}}},
		}},
		Goodbye{Sources: []uint32{1}},
	}
	raw, err := MarshalCompound(packets)
	require.NoError(t, err)

	decoded, err := UnmarshalCompound(raw)
	require.NoError(t, err)
	require.Len(t, decoded, 3)

	_, ok := decoded[0].(*ReceiverReport)
	assert.True(t, ok)
	_, ok = decoded[1].(*SourceDescription)
	assert.True(t, ok)
	_, ok = decoded[2].(*Goodbye)
	assert.True(t, ok)
}

func TestUnmarshalSkipsUnrecognizedSubFormat(t *testing.T) {
	// An REMB-only PSFB packet followed by a recognized PLI.
	remb := ReceiverEstimatedMaxBitrate{SenderSSRC: 1, Bitrate: 1000}
	rembRaw, err := remb.Marshal()
	require.NoError(t, err)

	pli := PictureLossIndication{SenderSSRC: 1, MediaSSRC: 2}
	pliRaw, err := pli.Marshal()
	require.NoError(t, err)

	raw := append(rembRaw, pliRaw...)
	decoded, err := UnmarshalCompound(raw)
	require.NoError(t, err)
	// REMB (PSFB FMT=15) isn't a recognized sub-format and is silently
	// skipped; only the PLI survives into the decoded list.
	require.Len(t, decoded, 1)
	_, ok := decoded[0].(*PictureLossIndication)
	assert.True(t, ok)
}

func TestUnmarshalRejectsTruncatedPacket(t *testing.T) {
	_, _, err := Unmarshal([]byte{0x80, 200, 0, 100})
	assert.Error(t, err)
}
