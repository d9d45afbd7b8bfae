// Package util holds small helpers shared across the protocol packages:
// random string/number generation for ICE credentials and STUN
// transaction IDs, and the handful of byte-twiddling helpers the codecs
// need that don't belong to any single protocol.
package util

import (
	"crypto/rand"
	"encoding/binary"
	"math/big"

	"github.com/pion/randutil"
)

const runesAlpha = "ABCDEFGHIJKLMNOPQRSTUVWXYZabcdefghijklmnopqrstuvwxyz"
const runesDigit = "0123456789"

var mathRandReader = randutil.NewMathRandomGenerator()

// RandSeq generates a random alphabetic sequence of length n, used for
// ICE ufrag/pwd generation where cryptographic strength isn't required
// (RFC 8445 doesn't mandate a CSPRNG for these).
func RandSeq(n int) string {
	seq, err := randutil.GenerateCryptoRandomString(n, runesAlpha)
	if err != nil {
		// crypto/rand is unavailable; fall back rather than panic in a
		// library used from hot paths like ICE restart.
		return mathRandReader.GenerateString(n, runesAlpha)
	}
	return seq
}

// RandUint32 returns a cryptographically random uint32, used for SSRC,
// SCTP verification tags, and similar 32-bit identifiers that must be
// unguessable.
func RandUint32() uint32 {
	b := make([]byte, 4)
	if _, err := rand.Read(b); err != nil {
		return uint32(randutil.NewMathRandomGenerator().Uint64())
	}
	return binary.BigEndian.Uint32(b)
}

// RandBigInt returns a random non-negative integer strictly less than
// max, used for certificate serial numbers.
func RandBigInt(max *big.Int) (*big.Int, error) {
	return rand.Int(rand.Reader, max)
}

// SetBit returns b with bit index i (0 = MSB) set according to v.
func SetBit(b byte, i uint, v bool) byte {
	if v {
		return b | (1 << (7 - i))
	}
	return b &^ (1 << (7 - i))
}

// GetBit reports whether bit index i (0 = MSB) of b is set.
func GetBit(b byte, i uint) bool {
	return b&(1<<(7-i)) != 0
}

// SeqNumGT reports whether a is "greater than" b under RFC 1982
// serial-number arithmetic, used for 16-bit RTP/SCTP sequence
// comparisons across wraparound.
func SeqNumGT(a, b uint16) bool {
	if a == b {
		return false
	}
	return ((a > b) && (a-b <= 32768)) || ((a < b) && (b-a > 32768))
}

// SeqNumDistance returns the signed forward distance from b to a
// (i.e. a - b) under 16-bit wraparound, used by jitter buffers and
// replay windows to decide ordering.
func SeqNumDistance(a, b uint16) int32 {
	d := int32(a) - int32(b)
	switch {
	case d > 32768:
		return d - 65536
	case d < -32768:
		return d + 65536
	default:
		return d
	}
}
