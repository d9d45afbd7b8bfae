package rtcp

import (
	"encoding/binary"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestTWCCBuilderPendingTracksAdds(t *testing.T) {
	b := NewTWCCBuilder(1, 2)
	assert.Equal(t, 0, b.Pending())
	b.Add(1, 1000)
	b.Add(2, 2000)
	assert.Equal(t, 2, b.Pending())
}

func TestTWCCBuilderBuildReturnsNilWhenEmpty(t *testing.T) {
	b := NewTWCCBuilder(1, 2)
	assert.Nil(t, b.Build())
}

func TestTWCCBuilderBuildHeaderFields(t *testing.T) {
	b := NewTWCCBuilder(0xaabbccdd, 0x11223344)
	b.Add(100, 1_000_000)
	b.Add(101, 1_010_000)
	b.Add(102, 1_020_000)

	raw := b.Build()
	require.NotNil(t, raw)
	require.GreaterOrEqual(t, len(raw), twccHeaderLength)

	var h Header
	require.NoError(t, h.Unmarshal(raw))
	assert.Equal(t, TypeTransportSpecificFeedback, h.Type)
	assert.Equal(t, FormatTWCC, h.Count)

	assert.Equal(t, uint32(0xaabbccdd), binary.BigEndian.Uint32(raw[4:8]))
	assert.Equal(t, uint32(0x11223344), binary.BigEndian.Uint32(raw[8:12]))
	assert.Equal(t, uint16(100), binary.BigEndian.Uint16(raw[4+twccBaseSequenceNumberOffset:]))
	assert.Equal(t, uint16(3), binary.BigEndian.Uint16(raw[4+twccPacketStatusCountOffset:]))

	// Build drains the buffered arrivals.
	assert.Equal(t, 0, b.Pending())
}
