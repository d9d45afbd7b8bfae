// Package rtcp implements RFC 3550 RTCP packet codecs plus the
// RFC 4585/5104 feedback messages and TWCC/REMB bandwidth-estimation
// extensions a modern WebRTC stack needs. Grounded on pion/webrtc's
// pkg/rtcp (header/report/feedback codecs) and, for TWCC's bit-packed
// chunk format, the pack's ion-sfu twcc responder.
package rtcp

import (
	"encoding/binary"
	"errors"
)

// PacketType is the RTCP packet type field (IANA rtp-parameters-4).
type PacketType uint8

// Registered RTCP packet types this stack produces or consumes.
const (
	TypeSenderReport              PacketType = 200 // RFC 3550 §6.4.1
	TypeReceiverReport            PacketType = 201 // RFC 3550 §6.4.2
	TypeSourceDescription         PacketType = 202 // RFC 3550 §6.5
	TypeGoodbye                   PacketType = 203 // RFC 3550 §6.6
	TypeApplicationDefined        PacketType = 204 // RFC 3550 §6.7
	TypeTransportSpecificFeedback PacketType = 205 // RFC 4585 §6.2
	TypePayloadSpecificFeedback   PacketType = 206 // RFC 4585 §6.3
	TypeExtendedReport            PacketType = 207 // RFC 3611
)

// Feedback message formats (the Header.Count field when Type is one
// of the Feedback types above).
const (
	FormatTLN  uint8 = 1  // Transport-Layer NACK, RFC 4585 §6.2.1
	FormatTWCC uint8 = 15 // transport-cc, draft-holmer-rmcat-transport-wide-cc-extensions

	FormatPLI  uint8 = 1  // Picture Loss Indication, RFC 4585 §6.3.1
	FormatSLI  uint8 = 2  // Slice Loss Indication, RFC 4585 §6.3.2
	FormatFIR  uint8 = 4  // Full Intra Request, RFC 5104 §4.3.1
	FormatREMB uint8 = 15 // Receiver Estimated Max Bitrate (unofficial, widely deployed)
)

var (
	errPacketTooShort = errors.New("rtcp: packet too short")
	errWrongType      = errors.New("rtcp: wrong packet type")
	errTooManyReports = errors.New("rtcp: too many reports")
)

const (
	headerLength = 4
	ssrcLength   = 4
	versionShift = 6
	versionMask  = 0x3
	paddingShift = 5
	paddingMask  = 0x1
	countMask    = 0x1f
	countMax     = (1 << 5) - 1
)

// Header is the 4-byte header common to every RTCP packet.
type Header struct {
	Version uint8
	Padding bool
	Count   uint8 // reception-report count, source count, or feedback message type, depending on Type
	Type    PacketType
	Length  uint16 // packet length in 32-bit words, minus one
}

// Marshal encodes h.
func (h Header) Marshal() ([]byte, error) {
	if h.Count > countMax {
		return nil, errTooManyReports
	}
	b := make([]byte, headerLength)
	b[0] |= 2 << versionShift
	if h.Padding {
		b[0] |= 1 << paddingShift
	}
	b[0] |= h.Count
	b[1] = uint8(h.Type)
	binary.BigEndian.PutUint16(b[2:], h.Length)
	return b, nil
}

// Unmarshal decodes h from raw.
func (h *Header) Unmarshal(raw []byte) error {
	if len(raw) < headerLength {
		return errPacketTooShort
	}
	h.Version = raw[0] >> versionShift & versionMask
	h.Padding = raw[0]>>paddingShift&paddingMask > 0
	h.Count = raw[0] & countMask
	h.Type = PacketType(raw[1])
	h.Length = binary.BigEndian.Uint16(raw[2:])
	return nil
}
