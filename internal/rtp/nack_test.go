package rtp

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestNackGeneratorDetectsGapAfterDelay(t *testing.T) {
	n := NewNackGenerator()
	now := time.Now()

	n.Received(1, now)
	n.Received(4, now) // 2 and 3 are missing

	assert.Empty(t, n.Pending(now)) // too soon

	later := now.Add(NackDelay + time.Millisecond)
	pending := n.Pending(later)
	assert.ElementsMatch(t, []uint16{2, 3}, pending)
}

func TestNackGeneratorDedupesWithinWindow(t *testing.T) {
	n := NewNackGenerator()
	now := time.Now()

	n.Received(1, now)
	n.Received(3, now)

	first := n.Pending(now.Add(NackDelay + time.Millisecond))
	assert.ElementsMatch(t, []uint16{2}, first)

	// Re-requesting immediately after must be suppressed.
	second := n.Pending(now.Add(2 * NackDelay))
	assert.Empty(t, second)

	// After the dedup window elapses, it can be requested again.
	third := n.Pending(now.Add(NackDelay + nackDedupWindow + 2*time.Millisecond))
	assert.ElementsMatch(t, []uint16{2}, third)
}

func TestNackGeneratorLateArrivalClearsGap(t *testing.T) {
	n := NewNackGenerator()
	now := time.Now()

	n.Received(1, now)
	n.Received(3, now)
	n.Received(2, now) // late fill

	assert.Empty(t, n.Pending(now.Add(NackDelay+time.Millisecond)))
}

func TestNackGeneratorAckClearsGap(t *testing.T) {
	n := NewNackGenerator()
	now := time.Now()

	n.Received(1, now)
	n.Received(3, now)
	n.Ack(2)

	assert.Empty(t, n.Pending(now.Add(NackDelay+time.Millisecond)))
}
