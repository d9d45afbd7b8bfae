package stun

import (
	"encoding/binary"
	"net"
)

// AttrType is a STUN/TURN attribute's 16-bit type field.
type AttrType uint16

// Attribute types used by ICE connectivity checks and TURN (RFC 5389,
// RFC 5766, RFC 5245/8445).
const (
	AttrMappedAddress     AttrType = 0x0001
	AttrUsername          AttrType = 0x0006
	AttrMessageIntegrity  AttrType = 0x0008
	AttrErrorCode         AttrType = 0x0009
	AttrUnknownAttributes AttrType = 0x000A
	AttrRealm             AttrType = 0x0014
	AttrNonce             AttrType = 0x0015
	AttrXORMappedAddress  AttrType = 0x0020
	AttrSoftware          AttrType = 0x8022
	AttrFingerprint       AttrType = 0x8028

	// ICE (RFC 8445 §16.1)
	AttrPriority       AttrType = 0x0024
	AttrUseCandidate   AttrType = 0x0025
	AttrIceControlled  AttrType = 0x8029
	AttrIceControlling AttrType = 0x802A

	// TURN (RFC 5766 §14)
	AttrChannelNumber      AttrType = 0x000C
	AttrLifetime           AttrType = 0x000D
	AttrXORPeerAddress     AttrType = 0x0012
	AttrData               AttrType = 0x0013
	AttrXORRelayedAddress  AttrType = 0x0016
	AttrRequestedTransport AttrType = 0x0019
)

// XORAddress is the decoded form of (XOR-)MAPPED-ADDRESS, used for the
// reflexive address returned by a STUN Binding response and for TURN
// peer/relay addresses.
type XORAddress struct {
	IP   net.IP
	Port int
}

const (
	familyIPv4 = 0x01
	familyIPv6 = 0x02
)

// EncodeXORMappedAddress encodes addr as XOR-MAPPED-ADDRESS, XORing the
// port with the upper 16 bits of the magic cookie and, for IPv6, the
// address with cookie||transactionID.
func EncodeXORMappedAddress(addr XORAddress, tid TransactionID) []byte {
	ip4 := addr.IP.To4()
	family := byte(familyIPv6)
	if ip4 != nil {
		family = familyIPv4
	}

	var out []byte
	if family == familyIPv4 {
		out = make([]byte, 8)
	} else {
		out = make([]byte, 20)
	}
	out[1] = family
	port := uint16(addr.Port) ^ uint16(magicCookie>>16)
	binary.BigEndian.PutUint16(out[2:4], port)

	cookieAndTid := make([]byte, 16)
	binary.BigEndian.PutUint32(cookieAndTid[0:4], magicCookie)
	copy(cookieAndTid[4:16], tid[:])

	if family == familyIPv4 {
		for i := 0; i < 4; i++ {
			out[4+i] = ip4[i] ^ cookieAndTid[i]
		}
	} else {
		ip16 := addr.IP.To16()
		for i := 0; i < 16; i++ {
			out[4+i] = ip16[i] ^ cookieAndTid[i]
		}
	}
	return out
}

// DecodeXORMappedAddress reverses EncodeXORMappedAddress.
func DecodeXORMappedAddress(value []byte, tid TransactionID) (XORAddress, bool) {
	if len(value) < 8 {
		return XORAddress{}, false
	}
	family := value[1]
	port := binary.BigEndian.Uint16(value[2:4]) ^ uint16(magicCookie>>16)

	cookieAndTid := make([]byte, 16)
	binary.BigEndian.PutUint32(cookieAndTid[0:4], magicCookie)
	copy(cookieAndTid[4:16], tid[:])

	switch family {
	case familyIPv4:
		if len(value) < 8 {
			return XORAddress{}, false
		}
		ip := make(net.IP, 4)
		for i := 0; i < 4; i++ {
			ip[i] = value[4+i] ^ cookieAndTid[i]
		}
		return XORAddress{IP: ip, Port: int(port)}, true
	case familyIPv6:
		if len(value) < 20 {
			return XORAddress{}, false
		}
		ip := make(net.IP, 16)
		for i := 0; i < 16; i++ {
			ip[i] = value[4+i] ^ cookieAndTid[i]
		}
		return XORAddress{IP: ip, Port: int(port)}, true
	default:
		return XORAddress{}, false
	}
}

// DecodeErrorCode decodes the ERROR-CODE attribute into (class*100+number, reason).
func DecodeErrorCode(value []byte) (int, string) {
	if len(value) < 4 {
		return 0, ""
	}
	class := int(value[2] & 0x07)
	number := int(value[3])
	return class*100 + number, string(value[4:])
}

// EncodeErrorCode encodes an ERROR-CODE attribute.
func EncodeErrorCode(code int, reason string) []byte {
	out := make([]byte, 4+len(reason))
	out[2] = byte(code / 100)
	out[3] = byte(code % 100)
	copy(out[4:], reason)
	return out
}
