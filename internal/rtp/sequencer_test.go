package rtp

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestSequencerStartsAtGivenValue(t *testing.T) {
	s := NewSequencer(100)
	assert.Equal(t, uint16(100), s.Next())
	assert.Equal(t, uint16(101), s.Next())
}

func TestSequencerWrapsAndCountsRollover(t *testing.T) {
	s := NewSequencer(65535)
	assert.Equal(t, uint16(65535), s.Next())
	assert.Equal(t, uint64(0), s.RollOverCount())
	assert.Equal(t, uint16(0), s.Next())
	assert.Equal(t, uint64(1), s.RollOverCount())
	assert.Equal(t, uint16(1), s.Next())
	assert.Equal(t, uint64(1), s.RollOverCount())
}
