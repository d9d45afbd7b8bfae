package mux

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestMatchSTUN(t *testing.T) {
	assert.True(t, MatchSTUN([]byte{0x00}))
	assert.True(t, MatchSTUN([]byte{0x03}))
	assert.False(t, MatchSTUN([]byte{0x04}))
	assert.False(t, MatchSTUN(nil))
}

func TestMatchDTLS(t *testing.T) {
	assert.False(t, MatchDTLS([]byte{19}))
	assert.True(t, MatchDTLS([]byte{20}))
	assert.True(t, MatchDTLS([]byte{63}))
	assert.False(t, MatchDTLS([]byte{64}))
}

func TestMatchTURNChannelData(t *testing.T) {
	assert.False(t, MatchTURNChannelData([]byte{63}))
	assert.True(t, MatchTURNChannelData([]byte{64}))
	assert.True(t, MatchTURNChannelData([]byte{79}))
	assert.False(t, MatchTURNChannelData([]byte{80}))
}

func TestMatchSRTPExcludesSRTCPRange(t *testing.T) {
	rtp := []byte{128, 96}
	assert.True(t, MatchSRTP(rtp))
	assert.False(t, MatchSRTCP(rtp))

	rtcp := []byte{128, 200}
	assert.False(t, MatchSRTP(rtcp))
	assert.True(t, MatchSRTCP(rtcp))
}

func TestMatchSRTPBoundary(t *testing.T) {
	assert.False(t, MatchSRTP([]byte{127, 96}))
	assert.True(t, MatchSRTP([]byte{191, 96}))
	assert.False(t, MatchSRTP([]byte{192, 96}))
}
