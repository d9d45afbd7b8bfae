package webrtc

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/vela-rtc/webrtc/internal/rtp"
)

func TestRTPSenderWriteRTPRequiresBoundTransport(t *testing.T) {
	s := newRTPSender()
	s.Start(1234, 96)
	err := s.WriteRTP([]byte("payload"), false, 0)
	assert.Error(t, err)
}

func TestRTPSenderWriteRTPProtectsAndWrites(t *testing.T) {
	s := newRTPSender()
	s.Start(1234, 96)

	var written []byte
	var protectedPacket *rtp.Packet
	s.bindTransport(
		func(p *rtp.Packet) ([]byte, error) {
			protectedPacket = p
			return []byte("protected"), nil
		},
		func(b []byte) (int, error) {
			written = b
			return len(b), nil
		},
	)

	require.NoError(t, s.WriteRTP([]byte("hello"), true, 4000))
	require.NotNil(t, protectedPacket)
	assert.Equal(t, uint32(1234), protectedPacket.SSRC)
	assert.Equal(t, uint8(96), protectedPacket.PayloadType)
	assert.True(t, protectedPacket.Marker)
	assert.Equal(t, uint32(4000), protectedPacket.Timestamp)
	assert.Equal(t, []byte("protected"), written)
}

func TestRTPSenderRetransmitVerbatimWithoutRTX(t *testing.T) {
	s := newRTPSender()
	s.Start(1234, 96)

	var protected []*rtp.Packet
	s.bindTransport(
		func(p *rtp.Packet) ([]byte, error) {
			protected = append(protected, p)
			return []byte("x"), nil
		},
		func(b []byte) (int, error) { return len(b), nil },
	)

	require.NoError(t, s.WriteRTP([]byte("frame-1"), false, 0))
	seq := protected[0].SequenceNumber

	require.NoError(t, s.Retransmit(seq))
	require.Len(t, protected, 2)
	assert.Equal(t, protected[0].SSRC, protected[1].SSRC)
	assert.Equal(t, protected[0].SequenceNumber, protected[1].SequenceNumber)
}

func TestRTPSenderRetransmitUsesRTXSSRCWhenEnabled(t *testing.T) {
	s := newRTPSender()
	s.Start(1234, 96)
	s.SetRTXSSRC(5678)

	var protected []*rtp.Packet
	s.bindTransport(
		func(p *rtp.Packet) ([]byte, error) {
			protected = append(protected, p)
			return []byte("x"), nil
		},
		func(b []byte) (int, error) { return len(b), nil },
	)

	require.NoError(t, s.WriteRTP([]byte("frame-1"), false, 0))
	seq := protected[0].SequenceNumber

	require.NoError(t, s.Retransmit(seq))
	require.Len(t, protected, 2)
	rtxPacket := protected[1]
	assert.Equal(t, uint32(5678), rtxPacket.SSRC)
	assert.Equal(t, uint8(97), rtxPacket.PayloadType)

	originalSeq, payload, ok := rtp.UnwrapRTX(rtxPacket)
	require.True(t, ok)
	assert.Equal(t, seq, originalSeq)
	assert.Equal(t, []byte("frame-1"), payload)
}

func TestRTPSenderRetransmitUnknownSequenceIsNoop(t *testing.T) {
	s := newRTPSender()
	s.Start(1234, 96)
	called := false
	s.bindTransport(
		func(p *rtp.Packet) ([]byte, error) { called = true; return nil, nil },
		func(b []byte) (int, error) { return len(b), nil },
	)
	assert.NoError(t, s.Retransmit(999))
	assert.False(t, called)
}

func TestRTPSenderSenderReportTracksCounts(t *testing.T) {
	s := newRTPSender()
	s.Start(42, 96)
	s.bindTransport(
		func(p *rtp.Packet) ([]byte, error) { return nil, nil },
		func(b []byte) (int, error) { return len(b), nil },
	)
	require.NoError(t, s.WriteRTP([]byte("12345"), false, 0))
	require.NoError(t, s.WriteRTP([]byte("123"), false, 0))

	sr := s.SenderReport(time.Now(), 9000)
	assert.Equal(t, uint32(42), sr.SSRC)
	assert.Equal(t, uint32(2), sr.PacketCount)
	assert.Equal(t, uint32(8), sr.OctetCount)
}

func TestRTPSenderPictureLossIndicationCallback(t *testing.T) {
	s := newRTPSender()
	fired := false
	s.OnPictureLossIndication(func() { fired = true })
	s.handlePLI()
	assert.True(t, fired)
}

func TestRTPReceiverDeliverOrdersOutOfOrderPackets(t *testing.T) {
	r := newRTPReceiver()
	var got []uint16
	r.OnReceiveRTP(func(p *rtp.Packet) { got = append(got, p.SequenceNumber) })

	base := time.Now()
	r.deliver(&rtp.Packet{Header: rtp.Header{SequenceNumber: 1, SSRC: 1}})
	r.deliver(&rtp.Packet{Header: rtp.Header{SequenceNumber: 3, SSRC: 1}})
	r.deliver(&rtp.Packet{Header: rtp.Header{SequenceNumber: 2, SSRC: 1}})
	_ = base

	assert.Equal(t, []uint16{1, 2, 3}, got)
}

func TestRTPReceiverDeliverUnwrapsRTX(t *testing.T) {
	r := newRTPReceiver()
	r.bindSSRC("", 100)
	r.SetRTX(200, 96)

	var got []*rtp.Packet
	r.OnReceiveRTP(func(p *rtp.Packet) { got = append(got, p) })

	original := &rtp.Packet{
		Header:  rtp.Header{SequenceNumber: 10, SSRC: 100, PayloadType: 96},
		Payload: []byte("data"),
	}
	rtx := rtp.WrapRTX(original, 200, 1, 96)
	r.deliver(rtx)

	require.Len(t, got, 1)
	assert.Equal(t, uint32(100), got[0].SSRC)
	assert.Equal(t, uint16(10), got[0].SequenceNumber)
	assert.Equal(t, []byte("data"), got[0].Payload)
}

func TestRTPReceiverPendingNACKsAfterGap(t *testing.T) {
	r := newRTPReceiver()
	now := time.Now()

	r.deliver(&rtp.Packet{Header: rtp.Header{SequenceNumber: 1, SSRC: 1}})
	r.deliver(&rtp.Packet{Header: rtp.Header{SequenceNumber: 2, SSRC: 1}})
	// sequence 3 is skipped
	r.deliver(&rtp.Packet{Header: rtp.Header{SequenceNumber: 4, SSRC: 1}})

	nacks := r.PendingNACKs(now.Add(rtp.NackDelay + time.Second))
	require.Len(t, nacks, 1)
	assert.Contains(t, nacks[0].PacketList(), uint16(3))
}

func TestRTPReceiverReportComputesLoss(t *testing.T) {
	r := newRTPReceiver()
	r.bindSSRC("", 1)

	for _, seq := range []uint16{1, 2, 4, 5} { // 3 is missing
		r.deliver(&rtp.Packet{Header: rtp.Header{SequenceNumber: seq, SSRC: 1}})
	}

	rr := r.ReceiverReport()
	assert.Equal(t, uint32(1), rr.SSRC)
	assert.NotZero(t, rr.FractionLost)
}

func TestNewRTPTransceiverStartsSenderWithRandomSSRC(t *testing.T) {
	a := newRTPTransceiver(RTPCodecTypeVideo, RTPTransceiverInit{})
	b := newRTPTransceiver(RTPCodecTypeVideo, RTPTransceiverInit{})
	assert.NotZero(t, a.Sender().SSRC())
	assert.NotEqual(t, a.Sender().SSRC(), b.Sender().SSRC())
}
