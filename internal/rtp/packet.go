// Package rtp implements RFC 3550 RTP packet parsing/serialization,
// RFC 8285 header extensions, a per-SSRC jitter buffer, and the
// NACK/RTX/simulcast machinery layered on top.
package rtp

import (
	"encoding/binary"
	"fmt"
)

// Header is an RTP packet header (RFC 3550 §5.1).
type Header struct {
	Version        uint8
	Padding        bool
	Marker         bool
	PayloadType    uint8
	SequenceNumber uint16
	Timestamp      uint32
	SSRC           uint32
	CSRC           []uint32

	Extension       bool
	ExtensionProfile uint16
	Extensions      []Extension // parsed one-/two-byte RFC 8285 elements, when recognized
	ExtensionPayload []byte     // raw extension words, always populated for re-marshal fidelity

	PayloadOffset int
}

// Extension is one RFC 8285 header extension element, addressed by
// its negotiated SDP extmap id (1-14 one-byte, 1-255 two-byte).
type Extension struct {
	ID      uint8
	Payload []byte
}

// Packet is a parsed RTP packet: header plus payload, with Raw kept
// for AEAD additional-authenticated-data framing in internal/srtp.
type Packet struct {
	Header
	Raw     []byte
	Payload []byte
}

const (
	headerLength    = 12
	versionShift    = 6
	versionMask     = 0x3
	paddingShift    = 5
	paddingMask     = 0x1
	extensionShift  = 4
	extensionMask   = 0x1
	ccMask          = 0xF
	markerShift     = 7
	markerMask      = 0x1
	ptMask          = 0x7F
	csrcLength      = 4

	extensionProfileOneByte = 0xBEDE
	extensionProfileTwoByteMask = 0xFFF0
	extensionProfileTwoByte    = 0x1000
)

func (p Packet) String() string {
	return fmt.Sprintf("RTP pt=%d seq=%d ts=%d ssrc=%x len=%d", p.PayloadType, p.SequenceNumber, p.Timestamp, p.SSRC, len(p.Payload))
}

// Unmarshal parses rawPacket into h.
func (h *Header) Unmarshal(rawPacket []byte) error {
	if len(rawPacket) < headerLength {
		return fmt.Errorf("rtp: header size insufficient; %d < %d", len(rawPacket), headerLength)
	}

	h.Version = rawPacket[0] >> versionShift & versionMask
	h.Padding = (rawPacket[0]>>paddingShift&paddingMask) > 0
	h.Extension = (rawPacket[0]>>extensionShift&extensionMask) > 0
	h.CSRC = make([]uint32, rawPacket[0]&ccMask)

	h.Marker = (rawPacket[1]>>markerShift&markerMask) > 0
	h.PayloadType = rawPacket[1] & ptMask

	h.SequenceNumber = binary.BigEndian.Uint16(rawPacket[2:4])
	h.Timestamp = binary.BigEndian.Uint32(rawPacket[4:8])
	h.SSRC = binary.BigEndian.Uint32(rawPacket[8:12])

	currOffset := headerLength + len(h.CSRC)*csrcLength
	if len(rawPacket) < currOffset {
		return fmt.Errorf("rtp: header size insufficient for CSRC; %d < %d", len(rawPacket), currOffset)
	}
	for i := range h.CSRC {
		offset := headerLength + i*csrcLength
		h.CSRC[i] = binary.BigEndian.Uint32(rawPacket[offset:])
	}

	if h.Extension {
		if len(rawPacket) < currOffset+4 {
			return fmt.Errorf("rtp: header size insufficient for extension; %d < %d", len(rawPacket), currOffset+4)
		}
		h.ExtensionProfile = binary.BigEndian.Uint16(rawPacket[currOffset:])
		currOffset += 2
		extLen := int(binary.BigEndian.Uint16(rawPacket[currOffset:])) * 4
		currOffset += 2
		if len(rawPacket) < currOffset+extLen {
			return fmt.Errorf("rtp: header size insufficient for extension payload; %d < %d", len(rawPacket), currOffset+extLen)
		}
		h.ExtensionPayload = rawPacket[currOffset : currOffset+extLen]
		h.Extensions = parseExtensions(h.ExtensionProfile, h.ExtensionPayload)
		currOffset += extLen
	}
	h.PayloadOffset = currOffset
	return nil
}

// parseExtensions decodes RFC 8285 one-byte (profile 0xBEDE) or
// two-byte (profile 0x1000-0x100F) header extension elements.
func parseExtensions(profile uint16, payload []byte) []Extension {
	var out []Extension
	switch {
	case profile == extensionProfileOneByte:
		for i := 0; i < len(payload); {
			b := payload[i]
			if b == 0x00 { // padding
				i++
				continue
			}
			id := b >> 4
			length := int(b&0x0F) + 1
			i++
			if id == 0x0F || i+length > len(payload) {
				return out
			}
			out = append(out, Extension{ID: id, Payload: append([]byte(nil), payload[i:i+length]...)})
			i += length
		}
	case profile&extensionProfileTwoByteMask == extensionProfileTwoByte:
		for i := 0; i < len(payload); {
			if payload[i] == 0x00 {
				i++
				continue
			}
			if i+2 > len(payload) {
				return out
			}
			id := payload[i]
			length := int(payload[i+1])
			i += 2
			if i+length > len(payload) {
				return out
			}
			out = append(out, Extension{ID: id, Payload: append([]byte(nil), payload[i:i+length]...)})
			i += length
		}
	}
	return out
}

// Unmarshal parses rawPacket into p.
func (p *Packet) Unmarshal(rawPacket []byte) error {
	if err := p.Header.Unmarshal(rawPacket); err != nil {
		return err
	}
	p.Payload = rawPacket[p.PayloadOffset:]
	p.Raw = rawPacket
	return nil
}

// Marshal serializes h.
func (h *Header) Marshal() ([]byte, error) {
	rawLen := headerLength + len(h.CSRC)*csrcLength
	if h.Extension {
		rawLen += 4 + len(h.ExtensionPayload)
	}
	raw := make([]byte, rawLen)

	raw[0] |= h.Version << versionShift
	if h.Padding {
		raw[0] |= 1 << paddingShift
	}
	if h.Extension {
		raw[0] |= 1 << extensionShift
	}
	raw[0] |= uint8(len(h.CSRC))

	if h.Marker {
		raw[1] |= 1 << markerShift
	}
	raw[1] |= h.PayloadType

	binary.BigEndian.PutUint16(raw[2:4], h.SequenceNumber)
	binary.BigEndian.PutUint32(raw[4:8], h.Timestamp)
	binary.BigEndian.PutUint32(raw[8:12], h.SSRC)

	for i, csrc := range h.CSRC {
		binary.BigEndian.PutUint32(raw[headerLength+i*csrcLength:], csrc)
	}
	currOffset := headerLength + len(h.CSRC)*csrcLength

	if h.Extension {
		binary.BigEndian.PutUint16(raw[currOffset:], h.ExtensionProfile)
		currOffset += 2
		binary.BigEndian.PutUint16(raw[currOffset:], uint16(len(h.ExtensionPayload))/4)
		currOffset += 2
		copy(raw[currOffset:], h.ExtensionPayload)
	}
	h.PayloadOffset = headerLength + len(h.CSRC)*csrcLength
	return raw, nil
}

// Marshal serializes p (header followed by payload).
func (p *Packet) Marshal() ([]byte, error) {
	raw, err := p.Header.Marshal()
	if err != nil {
		return nil, err
	}
	raw = append(raw, p.Payload...)
	p.Raw = raw
	return raw, nil
}

// EncodeOneByteExtensions packs exts into a padded-to-4-bytes
// RFC 8285 one-byte extension payload and sets h.Extension/Profile.
func (h *Header) EncodeOneByteExtensions(exts []Extension) {
	var payload []byte
	for _, e := range exts {
		if e.ID == 0 || e.ID > 14 || len(e.Payload) == 0 || len(e.Payload) > 16 {
			continue
		}
		payload = append(payload, e.ID<<4|uint8(len(e.Payload)-1))
		payload = append(payload, e.Payload...)
	}
	for len(payload)%4 != 0 {
		payload = append(payload, 0x00)
	}
	h.Extension = len(payload) > 0
	h.ExtensionProfile = extensionProfileOneByte
	h.ExtensionPayload = payload
	h.Extensions = exts
}
