package stun

import (
	"crypto/md5" //nolint:gosec // RFC 5389 long-term credential hash, not used for security boundary
	"encoding/binary"
	"hash/crc32"

	vcrypto "github.com/vela-rtc/webrtc/internal/crypto"
)

func hmacSHA1(key, data []byte) []byte {
	return vcrypto.HMACSHA1(key, data)
}

func crc32IEEE(data []byte) uint32 {
	return crc32.ChecksumIEEE(data)
}

// LongTermKey derives the MESSAGE-INTEGRITY key for long-term
// credentials (TURN): MD5(username ":" realm ":" password).
func LongTermKey(username, realm, password string) []byte {
	h := md5.New() //nolint:gosec
	h.Write([]byte(username + ":" + realm + ":" + password))
	return h.Sum(nil)
}

// ShortTermKey derives the MESSAGE-INTEGRITY key for short-term
// credentials (ICE connectivity checks): the password's UTF-8 bytes.
func ShortTermKey(password string) []byte {
	return []byte(password)
}

// VerifyIntegrity recomputes MESSAGE-INTEGRITY over raw (the original
// encoded message) under key and reports whether it matches the
// attribute carried in m. Per RFC 5389 §15.4, coverage is every byte
// up to (not including) the MESSAGE-INTEGRITY attribute itself, with
// the length field patched as though MI were the last attribute.
func VerifyIntegrity(raw []byte, m *Message, key []byte) bool {
	attr, ok := m.Get(AttrMessageIntegrity)
	if !ok || len(attr.Value) != 20 {
		return false
	}

	offset := indexOfAttribute(raw, AttrMessageIntegrity)
	if offset < 0 {
		return false
	}
	// Bytes up to the MI attribute header, with length patched to
	// include the 24-byte MI attribute (4 header + 20 HMAC).
	covered := make([]byte, offset)
	copy(covered, raw[:offset])
	binary.BigEndian.PutUint16(covered[2:4], uint16(offset-headerLen+24))

	expected := hmacSHA1(key, covered)
	return constantTimeEqual(expected, attr.Value)
}

// VerifyFingerprintAttr recomputes FINGERPRINT over raw and reports
// whether it matches the attribute carried in m.
func VerifyFingerprintAttr(raw []byte, m *Message) bool {
	attr, ok := m.Get(AttrFingerprint)
	if !ok || len(attr.Value) != 4 {
		return false
	}
	offset := indexOfAttribute(raw, AttrFingerprint)
	if offset < 0 {
		return false
	}
	covered := make([]byte, offset)
	copy(covered, raw[:offset])
	binary.BigEndian.PutUint16(covered[2:4], uint16(offset-headerLen+8))

	expected := crc32IEEE(covered) ^ 0x5354554e
	return binary.BigEndian.Uint32(attr.Value) == expected
}

// indexOfAttribute walks the raw encoded message looking for the byte
// offset at which an attribute of type t begins, used to recover the
// exact bytes MESSAGE-INTEGRITY/FINGERPRINT were computed over.
func indexOfAttribute(raw []byte, t AttrType) int {
	if len(raw) < headerLen {
		return -1
	}
	offset := headerLen
	body := raw[headerLen:]
	for len(body) >= 4 {
		attrType := AttrType(binary.BigEndian.Uint16(body[0:2]))
		attrLen := int(binary.BigEndian.Uint16(body[2:4]))
		padded := (attrLen + 3) &^ 3
		if attrType == t {
			return offset
		}
		if len(body) < 4+padded {
			return -1
		}
		body = body[4+padded:]
		offset += 4 + padded
	}
	return -1
}

func constantTimeEqual(a, b []byte) bool {
	if len(a) != len(b) {
		return false
	}
	var v byte
	for i := range a {
		v |= a[i] ^ b[i]
	}
	return v == 0
}
