// Package stun implements the STUN message codec (RFC 5389) and the
// TURN extensions (RFC 5766) layered on top of it, plus a client-side
// transaction layer with RFC 5389 §7.2.1 retransmission timing. It is
// the foundation the ICE agent (internal/ice) uses for connectivity
// checks, server-reflexive gathering, and TURN relay allocation.
package stun

import (
	"encoding/binary"
	"errors"
	"fmt"

	"github.com/vela-rtc/webrtc/internal/util"
)

// magicCookie is the fixed constant prepended to every STUN transaction
// ID since RFC 5389; it both disambiguates STUN from older RFC 3489
// traffic and seeds XOR-MAPPED-ADDRESS.
const magicCookie uint32 = 0x2112A442

// Class is the two-bit STUN message class.
type Class uint16

// Message classes (RFC 5389 §6).
const (
	ClassRequest    Class = 0x000
	ClassIndication Class = 0x010
	ClassSuccess    Class = 0x100
	ClassError      Class = 0x110
)

// Method is the STUN/TURN message method.
type Method uint16

// Methods used by ICE/TURN (RFC 5389, RFC 5766).
const (
	MethodBinding          Method = 0x001
	MethodAllocate         Method = 0x003
	MethodRefresh          Method = 0x004
	MethodSend             Method = 0x006
	MethodData             Method = 0x007
	MethodCreatePermission Method = 0x008
	MethodChannelBind      Method = 0x009
)

// Type is the combination of class and method that forms the 14-bit
// message type field.
type Type struct {
	Class  Class
	Method Method
}

// Value packs Type into the wire's 16-bit message-type field.
func (t Type) Value() uint16 {
	m := uint16(t.Method)
	c := uint16(t.Class)
	// The method is split across bits 0-3, 5-7 and 9-13 of the wire
	// field (RFC 5389 figure 3); class bits occupy positions 4 and 8.
	return (m & 0x000F) | (c & 0x0010) | ((m & 0x0070) << 1) | (c & 0x0100) | ((m & 0x0F80) << 2)
}

// TypeFromValue unpacks the 16-bit message-type field into a Type.
func TypeFromValue(v uint16) Type {
	m := (v & 0x000F) | ((v & 0x00E0) >> 1) | ((v & 0x3E00) >> 2)
	c := (v & 0x0010) | (v & 0x0100)
	return Type{Class: Class(c), Method: Method(m)}
}

// TransactionID is the 96-bit STUN transaction identifier.
type TransactionID [12]byte

// NewTransactionID generates a new random transaction ID, unique per
// sender.1.
func NewTransactionID() TransactionID {
	var id TransactionID
	for i := 0; i < len(id); i += 4 {
		binary.BigEndian.PutUint32(id[i:], util.RandUint32())
	}
	return id
}

// Message is a parsed STUN/TURN message.
type Message struct {
	Type          Type
	TransactionID TransactionID
	Attributes    []RawAttribute
}

// RawAttribute is a still-encoded TLV attribute; typed accessors parse
// it on demand so Message round-trips byte-exact even for attributes
// this codec doesn't interpret.
type RawAttribute struct {
	Type  AttrType
	Value []byte
}

// Get returns the first attribute of the given type, if present.
func (m *Message) Get(t AttrType) (RawAttribute, bool) {
	for _, a := range m.Attributes {
		if a.Type == t {
			return a, true
		}
	}
	return RawAttribute{}, false
}

// Add appends an attribute, preserving encounter order (required for
// MESSAGE-INTEGRITY/FINGERPRINT coverage, which is order-sensitive).
func (m *Message) Add(t AttrType, value []byte) {
	m.Attributes = append(m.Attributes, RawAttribute{Type: t, Value: value})
}

// NewRequest builds an empty request message of the given method with
// a fresh transaction ID.
func NewRequest(method Method) *Message {
	return &Message{
		Type:          Type{Class: ClassRequest, Method: method},
		TransactionID: NewTransactionID(),
	}
}

// ErrMalformed is returned for any structurally invalid STUN datagram.
var ErrMalformed = errors.New("stun: malformed message")

const headerLen = 20

// Decode parses a raw STUN/TURN message. It does not verify
// MESSAGE-INTEGRITY or FINGERPRINT; callers needing authenticated
// decode should call VerifyIntegrity/VerifyFingerprintAttr afterward.
func Decode(raw []byte) (*Message, error) {
	if len(raw) < headerLen || len(raw)%4 != 0 {
		return nil, ErrMalformed
	}
	if raw[0]&0xC0 != 0 {
		// Top two bits must be 0 to disambiguate from other protocols
		// sharing the UDP flow.
		return nil, ErrMalformed
	}
	typeVal := binary.BigEndian.Uint16(raw[0:2])
	length := binary.BigEndian.Uint16(raw[2:4])
	cookie := binary.BigEndian.Uint32(raw[4:8])
	if cookie != magicCookie {
		return nil, ErrMalformed
	}
	if int(length) != len(raw)-headerLen {
		return nil, ErrMalformed
	}

	m := &Message{Type: TypeFromValue(typeVal)}
	copy(m.TransactionID[:], raw[8:20])

	body := raw[20:]
	for len(body) > 0 {
		if len(body) < 4 {
			return nil, ErrMalformed
		}
		attrType := AttrType(binary.BigEndian.Uint16(body[0:2]))
		attrLen := int(binary.BigEndian.Uint16(body[2:4]))
		padded := (attrLen + 3) &^ 3
		if len(body) < 4+padded {
			return nil, ErrMalformed
		}
		value := make([]byte, attrLen)
		copy(value, body[4:4+attrLen])
		m.Attributes = append(m.Attributes, RawAttribute{Type: attrType, Value: value})
		body = body[4+padded:]
	}

	return m, nil
}

// Encode serializes a Message to wire format. If integrityKey is
// non-nil, a MESSAGE-INTEGRITY attribute is appended (HMAC-SHA1 over
// every preceding byte with the length field set as if it were the
// final attribute); if fingerprint is true a
// FINGERPRINT attribute is appended last, covering everything before
// it XOR'd with 0x5354554e.
func Encode(m *Message, integrityKey []byte, fingerprint bool) []byte {
	attrs := make([]RawAttribute, len(m.Attributes))
	copy(attrs, m.Attributes)

	// Encode header + attributes once, then patch length as attributes
	// are appended, mirroring how a real sender builds up the buffer.
	buf := encodeHeaderAndAttrs(m.Type, m.TransactionID, attrs)

	if integrityKey != nil {
		// Length field must include the MESSAGE-INTEGRITY attribute
		// itself (24 bytes: 4 header + 20 HMAC) before the HMAC is
		// computed over the bytes preceding it.
		withLenForMI := patchLength(buf, len(buf)-headerLen+24)
		mac := hmacSHA1(integrityKey, withLenForMI)
		attrs = append(attrs, RawAttribute{Type: AttrMessageIntegrity, Value: mac})
		buf = encodeHeaderAndAttrs(m.Type, m.TransactionID, attrs)
	}

	if fingerprint {
		withLenForFP := patchLength(buf, len(buf)-headerLen+8)
		crc := crc32IEEE(withLenForFP) ^ 0x5354554e
		fp := make([]byte, 4)
		binary.BigEndian.PutUint32(fp, crc)
		attrs = append(attrs, RawAttribute{Type: AttrFingerprint, Value: fp})
		buf = encodeHeaderAndAttrs(m.Type, m.TransactionID, attrs)
	}

	return buf
}

func encodeHeaderAndAttrs(t Type, tid TransactionID, attrs []RawAttribute) []byte {
	var body []byte
	for _, a := range attrs {
		head := make([]byte, 4)
		binary.BigEndian.PutUint16(head[0:2], uint16(a.Type))
		binary.BigEndian.PutUint16(head[2:4], uint16(len(a.Value)))
		body = append(body, head...)
		body = append(body, a.Value...)
		if pad := (4 - len(a.Value)%4) % 4; pad != 0 {
			body = append(body, make([]byte, pad)...)
		}
	}

	out := make([]byte, headerLen+len(body))
	binary.BigEndian.PutUint16(out[0:2], t.Value())
	binary.BigEndian.PutUint16(out[2:4], uint16(len(body)))
	binary.BigEndian.PutUint32(out[4:8], magicCookie)
	copy(out[8:20], tid[:])
	copy(out[20:], body)
	return out
}

func patchLength(buf []byte, length int) []byte {
	out := make([]byte, len(buf))
	copy(out, buf)
	binary.BigEndian.PutUint16(out[2:4], uint16(length))
	return out
}

// String renders the message type for logs/errors.
func (t Type) String() string {
	return fmt.Sprintf("%s %s", classString(t.Class), methodString(t.Method))
}

func classString(c Class) string {
	switch c {
	case ClassRequest:
		return "Request"
	case ClassIndication:
		return "Indication"
	case ClassSuccess:
		return "Success"
	case ClassError:
		return "Error"
	default:
		return "Unknown"
	}
}

func methodString(m Method) string {
	switch m {
	case MethodBinding:
		return "Binding"
	case MethodAllocate:
		return "Allocate"
	case MethodRefresh:
		return "Refresh"
	case MethodSend:
		return "Send"
	case MethodData:
		return "Data"
	case MethodCreatePermission:
		return "CreatePermission"
	case MethodChannelBind:
		return "ChannelBind"
	default:
		return "Unknown"
	}
}
