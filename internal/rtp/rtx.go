package rtp

import "encoding/binary"

// WrapRTX builds a retransmission packet for original on a separate
// RTX SSRC: payload = original sequence number (2 bytes) followed by
// the original payload, PT = apt+1.
func WrapRTX(original *Packet, rtxSSRC uint32, rtxSeq uint16, apt uint8) *Packet {
	payload := make([]byte, 2+len(original.Payload))
	binary.BigEndian.PutUint16(payload, original.SequenceNumber)
	copy(payload[2:], original.Payload)

	return &Packet{
		Header: Header{
			Version:        2,
			Marker:         original.Marker,
			PayloadType:    apt + 1,
			SequenceNumber: rtxSeq,
			Timestamp:      original.Timestamp,
			SSRC:           rtxSSRC,
		},
		Payload: payload,
	}
}

// UnwrapRTX restores the original sequence number and payload from an
// RTX packet, so the jitter buffer/depacketizer never sees PT=apt+1.
func UnwrapRTX(rtx *Packet) (originalSeq uint16, payload []byte, ok bool) {
	if len(rtx.Payload) < 2 {
		return 0, nil, false
	}
	return binary.BigEndian.Uint16(rtx.Payload), rtx.Payload[2:], true
}
