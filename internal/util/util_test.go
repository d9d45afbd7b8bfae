package util

import (
	"math/big"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRandSeqLengthAndCharset(t *testing.T) {
	s := RandSeq(16)
	assert.Len(t, s, 16)
	for _, r := range s {
		assert.Contains(t, runesAlpha, string(r))
	}
}

func TestRandSeqProducesDistinctValues(t *testing.T) {
	a := RandSeq(24)
	b := RandSeq(24)
	assert.NotEqual(t, a, b)
}

func TestRandUint32Distinct(t *testing.T) {
	a := RandUint32()
	b := RandUint32()
	assert.NotEqual(t, a, b)
}

func TestRandBigIntWithinBound(t *testing.T) {
	max := big.NewInt(1000)
	for i := 0; i < 20; i++ {
		v, err := RandBigInt(max)
		require.NoError(t, err)
		assert.True(t, v.Cmp(max) < 0)
		assert.True(t, v.Sign() >= 0)
	}
}

func TestSetBitGetBitMSBIndexed(t *testing.T) {
	var b byte
	b = SetBit(b, 0, true)
	assert.True(t, GetBit(b, 0))
	assert.Equal(t, byte(0x80), b)

	b = SetBit(b, 7, true)
	assert.Equal(t, byte(0x81), b)

	b = SetBit(b, 0, false)
	assert.False(t, GetBit(b, 0))
	assert.Equal(t, byte(0x01), b)
}

func TestSeqNumGTHandlesWraparound(t *testing.T) {
	assert.True(t, SeqNumGT(1, 0))
	assert.False(t, SeqNumGT(0, 1))
	assert.False(t, SeqNumGT(5, 5))
	// 0 is "greater" than 65535 across wraparound.
	assert.True(t, SeqNumGT(0, 65535))
	assert.False(t, SeqNumGT(65535, 0))
}

func TestSeqNumDistanceHandlesWraparound(t *testing.T) {
	assert.Equal(t, int32(1), SeqNumDistance(1, 0))
	assert.Equal(t, int32(-1), SeqNumDistance(0, 1))
	assert.Equal(t, int32(1), SeqNumDistance(0, 65535))
	assert.Equal(t, int32(-1), SeqNumDistance(65535, 0))
}
