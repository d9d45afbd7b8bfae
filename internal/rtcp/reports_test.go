package rtcp

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSenderReportRoundTrip(t *testing.T) {
	sr := SenderReport{
		SSRC:        1,
		NTPTime:     0x1122334455667788,
		RTPTime:     90000,
		PacketCount: 10,
		OctetCount:  1500,
		Reports: []ReceptionReport{
			{SSRC: 2, FractionLost: 5, TotalLost: 12345, LastSequenceNumber: 100, Jitter: 3, LastSenderReport: 4, Delay: 5},
		},
	}
	raw, err := sr.Marshal()
	require.NoError(t, err)

	var got SenderReport
	require.NoError(t, got.Unmarshal(raw))
	assert.Equal(t, sr.SSRC, got.SSRC)
	assert.Equal(t, sr.NTPTime, got.NTPTime)
	assert.Equal(t, sr.RTPTime, got.RTPTime)
	assert.Equal(t, sr.PacketCount, got.PacketCount)
	assert.Equal(t, sr.OctetCount, got.OctetCount)
	require.Len(t, got.Reports, 1)
	assert.Equal(t, sr.Reports[0], got.Reports[0])
}

func TestSenderReportUnmarshalRejectsWrongType(t *testing.T) {
	rr := ReceiverReport{SSRC: 1}
	raw, err := rr.Marshal()
	require.NoError(t, err)

	var sr SenderReport
	assert.Error(t, sr.Unmarshal(raw))
}

func TestReceiverReportRoundTrip(t *testing.T) {
	rr := ReceiverReport{
		SSRC: 42,
		Reports: []ReceptionReport{
			{SSRC: 1, FractionLost: 0, TotalLost: 0, LastSequenceNumber: 1, Jitter: 0, LastSenderReport: 0, Delay: 0},
			{SSRC: 2, FractionLost: 255, TotalLost: 0xffffff, LastSequenceNumber: 0xffffffff, Jitter: 1, LastSenderReport: 1, Delay: 1},
		},
	}
	raw, err := rr.Marshal()
	require.NoError(t, err)

	var got ReceiverReport
	require.NoError(t, got.Unmarshal(raw))
	assert.Equal(t, rr.SSRC, got.SSRC)
	assert.Equal(t, rr.Reports, got.Reports)
}

func TestGoodbyeRoundTripWithReason(t *testing.T) {
	g := Goodbye{Sources: []uint32{1, 2, 3}, Reason: "camera switched off"}
	raw, err := g.Marshal()
	require.NoError(t, err)

	var got Goodbye
	require.NoError(t, got.Unmarshal(raw))
	assert.Equal(t, g.Sources, got.Sources)
	assert.Equal(t, g.Reason, got.Reason)
}

func TestGoodbyeRoundTripWithoutReason(t *testing.T) {
	g := Goodbye{Sources: []uint32{9}}
	raw, err := g.Marshal()
	require.NoError(t, err)

	var got Goodbye
	require.NoError(t, got.Unmarshal(raw))
	assert.Equal(t, g.Sources, got.Sources)
	assert.Empty(t, got.Reason)
}
