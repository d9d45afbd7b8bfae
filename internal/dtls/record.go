package dtls

import (
	"encoding/binary"
	"errors"
)

// RecordHeader is the 13-byte DTLS record header: content type, fixed protocol version, a 16-bit epoch
// that increments on rekey, and a 48-bit sequence number that resets
// to 0 per epoch.
type RecordHeader struct {
	Type           ContentType
	Epoch          uint16
	SequenceNumber uint64 // 48-bit
	Length         uint16
}

func (h RecordHeader) marshal() []byte {
	b := make([]byte, 13)
	b[0] = byte(h.Type)
	binary.BigEndian.PutUint16(b[1:3], protocolVersion)
	binary.BigEndian.PutUint16(b[3:5], h.Epoch)
	putUint48(b[5:11], h.SequenceNumber)
	binary.BigEndian.PutUint16(b[11:13], h.Length)
	return b
}

func unmarshalRecordHeader(b []byte) (RecordHeader, error) {
	if len(b) < 13 {
		return RecordHeader{}, errors.New("dtls: record header too short")
	}
	return RecordHeader{
		Type:           ContentType(b[0]),
		Epoch:          binary.BigEndian.Uint16(b[3:5]),
		SequenceNumber: getUint48(b[5:11]),
		Length:         binary.BigEndian.Uint16(b[11:13]),
	}, nil
}

func putUint48(b []byte, v uint64) {
	for i := 0; i < 6; i++ {
		b[i] = byte(v >> uint(40-8*i))
	}
}

func getUint48(b []byte) uint64 {
	var v uint64
	for i := 0; i < 6; i++ {
		v = v<<8 | uint64(b[i])
	}
	return v
}

// Record is one plaintext (pre-encryption) or decrypted (post-
// decryption) DTLS record.
type Record struct {
	Header  RecordHeader
	Payload []byte
}

// SplitRecords splits a UDP datagram (which may carry several
// coalesced DTLS records) into its raw per-record byte slices.
func SplitRecords(b []byte) ([][]byte, error) {
	var out [][]byte
	for len(b) > 0 {
		h, err := unmarshalRecordHeader(b)
		if err != nil {
			return nil, err
		}
		total := 13 + int(h.Length)
		if len(b) < total {
			return nil, errors.New("dtls: truncated record")
		}
		out = append(out, b[:total])
		b = b[total:]
	}
	return out, nil
}

// CipherState holds the AEAD and sequence counters for one direction at
// one epoch.
type CipherState struct {
	AEAD interface {
		Overhead() int
		Seal(dst, nonce, plaintext, aad []byte) []byte
		Open(dst, nonce, ciphertext, aad []byte) ([]byte, error)
	}
	Salt    [4]byte
	Epoch   uint16
	NextSeq uint64
}

// EncryptRecord seals payload as an application_data (or other) record
// using the AES-GCM nonce construction: 4-byte salt || 8-byte explicit
// part (here the epoch||sequence).
func (c *CipherState) EncryptRecord(recordType ContentType, payload []byte) []byte {
	seq := c.NextSeq
	c.NextSeq++

	nonce := make([]byte, 12)
	copy(nonce[0:4], c.Salt[:])
	binary.BigEndian.PutUint16(nonce[4:6], c.Epoch)
	putUint48(nonce[6:12], seq)

	header := RecordHeader{Type: recordType, Epoch: c.Epoch, SequenceNumber: seq, Length: uint16(len(payload) + c.AEAD.Overhead())}
	aad := aeadAAD(header, len(payload))

	sealed := c.AEAD.Seal(nil, nonce, payload, aad)
	return append(header.marshal(), sealed...)
}

// DecryptRecord opens an encrypted record given its header and
// ciphertext (including tag).
func (c *CipherState) DecryptRecord(header RecordHeader, ciphertext []byte) ([]byte, error) {
	nonce := make([]byte, 12)
	copy(nonce[0:4], c.Salt[:])
	binary.BigEndian.PutUint16(nonce[4:6], header.Epoch)
	putUint48(nonce[6:12], header.SequenceNumber)

	if len(ciphertext) < c.AEAD.Overhead() {
		return nil, errBadRecordMAC
	}
	aad := aeadAAD(header, len(ciphertext)-c.AEAD.Overhead())
	return c.AEAD.Open(nil, nonce, ciphertext, aad)
}

// aeadAAD builds the additional authenticated data: the record header
// with its Length field set to the plaintext length rather than the
// ciphertext+tag length carried on the wire.
func aeadAAD(header RecordHeader, plaintextLen int) []byte {
	header.Length = uint16(plaintextLen)
	return header.marshal()
}

// AcceptEpoch reports whether an inbound record's epoch is acceptable:
// the current epoch always is; the previous epoch is accepted only
// while that epoch's retransmission window is still open.
func AcceptEpoch(recordEpoch, currentEpoch uint16, previousWindowOpen bool) bool {
	if recordEpoch == currentEpoch {
		return true
	}
	return previousWindowOpen && recordEpoch == currentEpoch-1
}
