// Package srtp implements RFC 3711/7714 SRTP and SRTCP: AES-CM-based
// key derivation, AES-GCM record protection, and the 128-bit replay
// window RFC 3711 replay protection requires. Grounded on the pack's pions-era
// internal/srtp context.go (key-derivation-by-label scheme) adapted
// from its default AES-CM-HMAC-SHA1 profile to RFC 7714's AES-GCM.
package srtp

import (
	"crypto/aes"
	"crypto/cipher"
	"encoding/binary"
	"errors"
	"sync"

	"github.com/vela-rtc/webrtc/internal/rtp"
)

const (
	labelSRTPEncryption  = 0x00
	labelSRTPAuthTag     = 0x01
	labelSRTPSalt        = 0x02
	labelSRTCPEncryption = 0x03
	labelSRTCPAuthTag    = 0x04
	labelSRTCPSalt       = 0x05

	gcmKeyLen  = 16
	gcmSaltLen = 12
	gcmTagSize = 16

	srtcpIndexSize = 4

	// rtcpHeaderSize is the fixed 8-byte header (V/P/RC/PT, length,
	// SSRC) of the first packet in a compound RTCP packet; RFC 3711
	// §3.4 leaves it in cleartext and uses it as the AEAD AAD.
	rtcpHeaderSize = 8
)

var (
	errKeyLen       = errors.New("srtp: master key/salt have the wrong length")
	errAuthFailed   = errors.New("srtp: authentication failed")
	errReplayed     = errors.New("srtp: packet replayed or too old")
	errPacketShort  = errors.New("srtp: packet too short")
	errWrongSSRC    = errors.New("srtp: unexpected SSRC")
)

// ssrcState tracks per-SSRC rollover and replay-protection state.
type ssrcState struct {
	roc        uint32
	haveSeq    bool
	highestSeq uint16
	replay     replayWindow
}

// Context is a one-directional (encrypt-only or decrypt-only) SRTP/
// SRTCP cryptographic context derived from a single DTLS-SRTP master
// key and salt, using the AEAD_AES_128_GCM profile (RFC 7714).
type Context struct {
	mu sync.Mutex

	srtpBlock  cipher.AEAD
	srtpSalt   []byte
	srtcpBlock cipher.AEAD
	srtcpSalt  []byte

	ssrcStates  map[uint32]*ssrcState
	srtcpIndex  map[uint32]uint32
}

// NewContext derives session keys from masterKey/masterSalt (16 and
// 12 bytes respectively, as exported by the DTLS-SRTP keying material
// extractor) and builds a Context usable for one direction of traffic.
func NewContext(masterKey, masterSalt []byte) (*Context, error) {
	if len(masterKey) != gcmKeyLen || len(masterSalt) != gcmSaltLen {
		return nil, errKeyLen
	}
	masterBlock, err := aes.NewCipher(masterKey)
	if err != nil {
		return nil, err
	}

	srtpKey := deriveKey(masterBlock, masterSalt, labelSRTPEncryption, gcmKeyLen)
	srtpSalt := deriveKey(masterBlock, masterSalt, labelSRTPSalt, gcmSaltLen)
	srtcpKey := deriveKey(masterBlock, masterSalt, labelSRTCPEncryption, gcmKeyLen)
	srtcpSalt := deriveKey(masterBlock, masterSalt, labelSRTCPSalt, gcmSaltLen)

	srtpBlock, err := newGCM(srtpKey)
	if err != nil {
		return nil, err
	}
	srtcpBlock, err := newGCM(srtcpKey)
	if err != nil {
		return nil, err
	}

	return &Context{
		srtpBlock:  srtpBlock,
		srtpSalt:   srtpSalt,
		srtcpBlock: srtcpBlock,
		srtcpSalt:  srtcpSalt,
		ssrcStates: make(map[uint32]*ssrcState),
		srtcpIndex: make(map[uint32]uint32),
	}, nil
}

func newGCM(key []byte) (cipher.AEAD, error) {
	block, err := aes.NewCipher(key)
	if err != nil {
		return nil, err
	}
	return cipher.NewGCM(block)
}

// deriveKey implements the RFC 3711 Appendix B.3 AES-CM key derivation
// function: XOR the label (and a zero key-derivation-rate index) into
// the master salt, zero-pad to the AES block size, and AES-encrypt
// under the master key.
func deriveKey(masterBlock cipher.Block, masterSalt []byte, label byte, outLen int) []byte {
	x := make([]byte, 16)
	copy(x, masterSalt)
	x[7] ^= label

	out := make([]byte, 0, outLen)
	var counter uint16
	for len(out) < outLen {
		block := make([]byte, 16)
		copy(block, x)
		binary.BigEndian.PutUint16(block[14:], counter)
		masterBlock.Encrypt(block, block)
		out = append(out, block...)
		counter++
	}
	return out[:outLen]
}

func (c *Context) stateFor(ssrc uint32) *ssrcState {
	s, ok := c.ssrcStates[ssrc]
	if !ok {
		s = &ssrcState{}
		c.ssrcStates[ssrc] = s
	}
	return s
}

// rocFor returns the rollover counter to use for seq against state,
// handling the case where seq appears to have wrapped since the
// highest sequence number seen so far.
func rocFor(state *ssrcState, seq uint16) uint32 {
	if !state.haveSeq {
		return state.roc
	}
	if state.highestSeq > 0xff00 && seq < 0x00ff {
		return state.roc + 1
	}
	if seq > 0xff00 && state.highestSeq < 0x00ff && state.roc > 0 {
		return state.roc - 1
	}
	return state.roc
}

func gcmIV(salt []byte, ssrc uint32, roc uint32, seq uint16) []byte {
	iv := make([]byte, gcmSaltLen)
	binary.BigEndian.PutUint32(iv[2:6], ssrc)
	binary.BigEndian.PutUint32(iv[6:10], roc)
	binary.BigEndian.PutUint16(iv[10:12], seq)
	for i := range iv {
		iv[i] ^= salt[i]
	}
	return iv
}

// ProtectRTP encrypts and authenticates an RTP packet, appending the
// AES-GCM tag, and returns the SRTP packet bytes in a new buffer; p is
// left unchanged.
func (c *Context) ProtectRTP(p *rtp.Packet) ([]byte, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	state := c.stateFor(p.SSRC)
	roc := rocFor(state, p.SequenceNumber)
	if !state.haveSeq || seqGT(p.SequenceNumber, state.highestSeq) {
		state.highestSeq = p.SequenceNumber
		state.haveSeq = true
		state.roc = roc
	}

	header, err := p.Header.Marshal()
	if err != nil {
		return nil, err
	}
	iv := gcmIV(c.srtpSalt, p.SSRC, roc, p.SequenceNumber)
	sealed := c.srtpBlock.Seal(nil, iv, p.Payload, header)
	return append(header, sealed...), nil
}

// UnprotectRTP authenticates and decrypts raw as an SRTP packet,
// enforcing replay protection for its SSRC.
func (c *Context) UnprotectRTP(raw []byte) (*rtp.Packet, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	var p rtp.Packet
	if err := p.Header.Unmarshal(raw); err != nil {
		return nil, err
	}
	if len(raw) < p.PayloadOffset+gcmTagSize {
		return nil, errPacketShort
	}
	header := raw[:p.PayloadOffset]
	sealed := raw[p.PayloadOffset:]

	state := c.stateFor(p.SSRC)
	roc := rocFor(state, p.SequenceNumber)
	index := uint64(roc)<<16 | uint64(p.SequenceNumber)
	if !state.replay.accept(index) {
		return nil, errReplayed
	}

	iv := gcmIV(c.srtpSalt, p.SSRC, roc, p.SequenceNumber)
	plain, err := c.srtpBlock.Open(nil, iv, sealed, header)
	if err != nil {
		return nil, errAuthFailed
	}

	if !state.haveSeq || seqGT(p.SequenceNumber, state.highestSeq) {
		state.highestSeq = p.SequenceNumber
		state.roc = roc
	}
	state.haveSeq = true

	p.Payload = plain
	p.Raw = raw
	return &p, nil
}

// ProtectRTCP encrypts and authenticates a compound RTCP packet
// destined for ssrc, per RFC 3711 §3.4 (SRTCP). The fixed 8-byte
// header of the first packet stays in cleartext and is used as the
// AEAD AAD; the wire order is header‖ciphertext‖trailer‖tag, with the
// E-bit/index trailer preceding the tag.
func (c *Context) ProtectRTCP(raw []byte, ssrc uint32) ([]byte, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if len(raw) < rtcpHeaderSize {
		return nil, errPacketShort
	}
	header := raw[:rtcpHeaderSize]
	payload := raw[rtcpHeaderSize:]

	index := c.srtcpIndex[ssrc]
	c.srtcpIndex[ssrc] = index + 1

	iv := gcmIV(c.srtcpSalt, ssrc, index>>16, uint16(index))
	sealed := c.srtcpBlock.Seal(nil, iv, payload, header)
	ciphertext, tag := sealed[:len(sealed)-gcmTagSize], sealed[len(sealed)-gcmTagSize:]

	trailer := make([]byte, srtcpIndexSize)
	binary.BigEndian.PutUint32(trailer, index&0x7fffffff|0x80000000) // E-bit set: encrypted

	out := make([]byte, 0, len(header)+len(ciphertext)+len(trailer)+len(tag))
	out = append(out, header...)
	out = append(out, ciphertext...)
	out = append(out, trailer...)
	out = append(out, tag...)
	return out, nil
}

// UnprotectRTCP authenticates and decrypts an SRTCP packet for ssrc,
// splitting the cleartext header back out as the AEAD AAD.
func (c *Context) UnprotectRTCP(raw []byte, ssrc uint32) ([]byte, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if len(raw) < rtcpHeaderSize+srtcpIndexSize+gcmTagSize {
		return nil, errPacketShort
	}
	header := raw[:rtcpHeaderSize]
	rest := raw[rtcpHeaderSize:]
	tag := rest[len(rest)-gcmTagSize:]
	trailer := rest[len(rest)-gcmTagSize-srtcpIndexSize : len(rest)-gcmTagSize]
	ciphertext := rest[:len(rest)-gcmTagSize-srtcpIndexSize]
	index := binary.BigEndian.Uint32(trailer) & 0x7fffffff

	iv := gcmIV(c.srtcpSalt, ssrc, index>>16, uint16(index))
	sealed := append(append([]byte(nil), ciphertext...), tag...)
	plain, err := c.srtcpBlock.Open(nil, iv, sealed, header)
	if err != nil {
		return nil, errAuthFailed
	}

	out := make([]byte, 0, len(header)+len(plain))
	out = append(out, header...)
	out = append(out, plain...)
	return out, nil
}

// seqGT reports whether a is later than b in RFC 1982 serial-number
// arithmetic over 16-bit sequence numbers.
func seqGT(a, b uint16) bool {
	return (int16)(a-b) > 0
}
