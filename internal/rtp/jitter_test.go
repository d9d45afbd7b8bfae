package rtp

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestJitterBufferEmitsInOrder(t *testing.T) {
	jb := NewJitterBuffer(50, 100*time.Millisecond)
	now := time.Now()

	jb.Push(&Packet{Header: Header{SequenceNumber: 1}}, now)
	jb.Push(&Packet{Header: Header{SequenceNumber: 2}}, now)
	jb.Push(&Packet{Header: Header{SequenceNumber: 3}}, now)

	out := jb.Pop(now)
	require.Len(t, out, 3)
	assert.Equal(t, uint16(1), out[0].SequenceNumber)
	assert.Equal(t, uint16(2), out[1].SequenceNumber)
	assert.Equal(t, uint16(3), out[2].SequenceNumber)
}

func TestJitterBufferReordersOutOfOrderArrivals(t *testing.T) {
	jb := NewJitterBuffer(50, 100*time.Millisecond)
	now := time.Now()

	jb.Push(&Packet{Header: Header{SequenceNumber: 2}}, now)
	jb.Push(&Packet{Header: Header{SequenceNumber: 1}}, now)

	out := jb.Pop(now)
	require.Len(t, out, 2)
	assert.Equal(t, uint16(1), out[0].SequenceNumber)
	assert.Equal(t, uint16(2), out[1].SequenceNumber)
}

func TestJitterBufferWithholdsOnGapBeforeTimeout(t *testing.T) {
	jb := NewJitterBuffer(50, 100*time.Millisecond)
	now := time.Now()

	jb.Push(&Packet{Header: Header{SequenceNumber: 1}}, now)
	jb.Push(&Packet{Header: Header{SequenceNumber: 3}}, now) // 2 is missing

	out := jb.Pop(now.Add(10 * time.Millisecond))
	require.Len(t, out, 1)
	assert.Equal(t, uint16(1), out[0].SequenceNumber)
}

func TestJitterBufferForcesSkipAfterTimeout(t *testing.T) {
	jb := NewJitterBuffer(50, 50*time.Millisecond)
	now := time.Now()

	jb.Push(&Packet{Header: Header{SequenceNumber: 1}}, now)
	jb.Push(&Packet{Header: Header{SequenceNumber: 3}}, now) // 2 never arrives

	out := jb.Pop(now.Add(200 * time.Millisecond))
	require.Len(t, out, 2)
	assert.Equal(t, uint16(1), out[0].SequenceNumber)
	assert.Equal(t, uint16(3), out[1].SequenceNumber)
}

func TestJitterBufferIgnoresDuplicatesAndStale(t *testing.T) {
	jb := NewJitterBuffer(50, 100*time.Millisecond)
	now := time.Now()

	jb.Push(&Packet{Header: Header{SequenceNumber: 1}}, now)
	jb.Push(&Packet{Header: Header{SequenceNumber: 2}}, now)
	jb.Push(&Packet{Header: Header{SequenceNumber: 4}}, now) // 3 is missing

	out := jb.Pop(now) // too soon for the gap to force a skip
	require.Len(t, out, 2)

	// Replaying an already-emitted sequence number must be dropped.
	jb.Push(&Packet{Header: Header{SequenceNumber: 2}}, now)
	assert.Empty(t, jb.Pop(now))
}
