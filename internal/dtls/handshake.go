// Package dtls implements the client and server sides of a DTLS 1.2
// handshake and record layer (RFC 6347), scoped to the single cipher
// suite WebRTC requires for interop: TLS_ECDHE_ECDSA_WITH_AES_128_GCM_SHA256
// with a self-signed P-256 certificate authenticated out-of-band via
// the SDP fingerprint. It is grounded on pion/webrtc's historical
// in-repo DTLS notes and on lanikai-alohartc's pure-Go dtls package for
// wire-format conventions, since pion/webrtc's own internal/dtls of
// that era shelled out to OpenSSL via cgo — unusable as a grounding
// source for a pure-Go record layer.
package dtls

import (
	"encoding/binary"
	"errors"
	"time"
)

// ContentType is the outer DTLS record's content type.
type ContentType uint8

// Record content types (RFC 6347 / RFC 5246 §6.2.1).
const (
	ContentTypeChangeCipherSpec ContentType = 20
	ContentTypeAlert            ContentType = 21
	ContentTypeHandshake        ContentType = 22
	ContentTypeApplicationData  ContentType = 23
)

// HandshakeType is the inner handshake message type.
type HandshakeType uint8

// Handshake message types used by this stack's single supported flow.
const (
	HandshakeTypeHelloRequest       HandshakeType = 0
	HandshakeTypeClientHello        HandshakeType = 1
	HandshakeTypeServerHello        HandshakeType = 2
	HandshakeTypeHelloVerifyRequest HandshakeType = 3
	HandshakeTypeCertificate        HandshakeType = 11
	HandshakeTypeServerKeyExchange  HandshakeType = 12
	HandshakeTypeCertificateRequest HandshakeType = 13
	HandshakeTypeServerHelloDone    HandshakeType = 14
	HandshakeTypeCertificateVerify  HandshakeType = 15
	HandshakeTypeClientKeyExchange  HandshakeType = 16
	HandshakeTypeFinished           HandshakeType = 20
)

// protocolVersion is the wire encoding of DTLS 1.2 (0xFEFD).
const protocolVersion uint16 = 0xFEFD

// protocolVersionVar holds the same value as protocolVersion but as a
// variable rather than a constant, since converting the 0xFEFD constant
// directly to byte is a compile-time overflow error.
var protocolVersionVar uint16 = protocolVersion

// protocolVersionHi and protocolVersionLo are the big-endian bytes of
// protocolVersion.
var (
	protocolVersionHi = byte(protocolVersionVar >> 8)
	protocolVersionLo = byte(protocolVersionVar)
)

// cipherSuiteECDHEECDSAAES128GCMSHA256 is the only suite offered and
// accepted.
var cipherSuiteECDHEECDSAAES128GCMSHA256 = [2]byte{0xC0, 0x2B}

// HandshakeHeader is the 12-byte header common to every handshake
// message (RFC 6347 §4.2.2): message_seq increments per logical
// message (not per fragment); fragment offset/length support
// reassembly of messages split across multiple UDP datagrams.
type HandshakeHeader struct {
	Type           HandshakeType
	Length         uint32 // 24-bit on the wire
	MessageSeq     uint16
	FragmentOffset uint32 // 24-bit on the wire
	FragmentLength uint32 // 24-bit on the wire
}

func (h HandshakeHeader) marshal() []byte {
	b := make([]byte, 12)
	b[0] = byte(h.Type)
	putUint24(b[1:4], h.Length)
	binary.BigEndian.PutUint16(b[4:6], h.MessageSeq)
	putUint24(b[6:9], h.FragmentOffset)
	putUint24(b[9:12], h.FragmentLength)
	return b
}

func unmarshalHandshakeHeader(b []byte) (HandshakeHeader, error) {
	if len(b) < 12 {
		return HandshakeHeader{}, errors.New("dtls: handshake header too short")
	}
	return HandshakeHeader{
		Type:           HandshakeType(b[0]),
		Length:         getUint24(b[1:4]),
		MessageSeq:     binary.BigEndian.Uint16(b[4:6]),
		FragmentOffset: getUint24(b[6:9]),
		FragmentLength: getUint24(b[9:12]),
	}, nil
}

func putUint24(b []byte, v uint32) {
	b[0] = byte(v >> 16)
	b[1] = byte(v >> 8)
	b[2] = byte(v)
}

func getUint24(b []byte) uint32 {
	return uint32(b[0])<<16 | uint32(b[1])<<8 | uint32(b[2])
}

// HandshakeMessage is a fully reassembled handshake message: its raw
// body (everything after the 12-byte header) plus the raw bytes of the
// header+body as sent/received, preserved verbatim for the transcript
// hash.
type HandshakeMessage struct {
	Header HandshakeHeader
	Body   []byte
	Raw    []byte
}

// fragmentMTU bounds how large a single outgoing handshake fragment
// is, so large messages (notably Certificate) still fit a UDP
// datagram below typical path MTU.
const fragmentMTU = 1200

// fragment splits a handshake message into one or more wire-ready
// fragments, each carrying the full 12-byte header with the
// appropriate FragmentOffset/FragmentLength.
func fragment(msgType HandshakeType, seq uint16, body []byte) [][]byte {
	if len(body) <= fragmentMTU {
		h := HandshakeHeader{Type: msgType, Length: uint32(len(body)), MessageSeq: seq, FragmentOffset: 0, FragmentLength: uint32(len(body))}
		return [][]byte{append(h.marshal(), body...)}
	}

	var out [][]byte
	for off := 0; off < len(body); off += fragmentMTU {
		end := off + fragmentMTU
		if end > len(body) {
			end = len(body)
		}
		h := HandshakeHeader{
			Type:           msgType,
			Length:         uint32(len(body)),
			MessageSeq:     seq,
			FragmentOffset: uint32(off),
			FragmentLength: uint32(end - off),
		}
		out = append(out, append(h.marshal(), body[off:end]...))
	}
	return out
}

// Reassembler accumulates fragments keyed by (type, message_seq).
type Reassembler struct {
	pending map[uint16]*partial
}

type partial struct {
	msgType HandshakeType
	total   uint32
	have    map[uint32][]byte
	gotLen  uint32
}

// NewReassembler constructs an empty Reassembler.
func NewReassembler() *Reassembler {
	return &Reassembler{pending: make(map[uint16]*partial)}
}

// Add feeds one fragment's raw bytes (header+body) into the
// reassembler, returning the completed message once every byte of the
// logical message has arrived.
func (r *Reassembler) Add(raw []byte) (*HandshakeMessage, error) {
	header, err := unmarshalHandshakeHeader(raw)
	if err != nil {
		return nil, err
	}
	fragBody := raw[12:]
	if uint32(len(fragBody)) != header.FragmentLength {
		return nil, errors.New("dtls: fragment length mismatch")
	}

	p, ok := r.pending[header.MessageSeq]
	if !ok {
		p = &partial{msgType: header.Type, total: header.Length, have: make(map[uint32][]byte)}
		r.pending[header.MessageSeq] = p
	}
	if _, dup := p.have[header.FragmentOffset]; !dup {
		p.have[header.FragmentOffset] = fragBody
		p.gotLen += uint32(len(fragBody))
	}

	if p.gotLen < p.total {
		return nil, nil
	}

	body := make([]byte, p.total)
	for off, frag := range p.have {
		copy(body[off:], frag)
	}
	delete(r.pending, header.MessageSeq)

	full := HandshakeHeader{Type: header.Type, Length: p.total, MessageSeq: header.MessageSeq, FragmentOffset: 0, FragmentLength: p.total}
	return &HandshakeMessage{Header: full, Body: body, Raw: append(full.marshal(), body...)}, nil
}

// Random is the 32-byte client/server random (4-byte time + 28 random
// bytes, RFC 5246 §7.4.1.2).
type Random [32]byte

func newRandom(now time.Time, entropy []byte) Random {
	var r Random
	binary.BigEndian.PutUint32(r[0:4], uint32(now.Unix()))
	copy(r[4:], entropy)
	return r
}
