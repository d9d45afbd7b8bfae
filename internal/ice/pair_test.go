package ice

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

// TestPairPriorityWorkedExample checks a concrete worked example:
// G=2130706431, D=1694498815, controlling=true, so the priority is
// 2^32*D + 2*G + 1.
func TestPairPriorityWorkedExample(t *testing.T) {
	const (
		g        = 2130706431
		d        = 1694498815
		expected = uint64(7277816997797167103)
	)
	got := PairPriority(g, d)
	assert.Equal(t, expected, got)
}

func TestPairPrioritySymmetricSwap(t *testing.T) {
	// Swapping which side is "controlling" changes the tie bit but not
	// the min/max terms.
	a := PairPriority(100, 50)
	b := PairPriority(50, 100)
	assert.NotEqual(t, a, b)
	assert.Equal(t, a-1, b)
}

func TestNewPairUsesControllingRole(t *testing.T) {
	local := Candidate{Priority: 100}
	remote := Candidate{Priority: 200}

	controllingPair := NewPair(local, remote, true)
	controlledPair := NewPair(local, remote, false)

	// Controlling uses (local, remote); controlled uses (remote, local)
	// as (G, D) -- priorities differ unless symmetric.
	assert.Equal(t, PairPriority(100, 200), controllingPair.Priority)
	assert.Equal(t, PairPriority(200, 100), controlledPair.Priority)
	assert.Equal(t, PairFrozen, controllingPair.State)
}

func TestPairFoundation(t *testing.T) {
	p := NewPair(Candidate{Foundation: "1"}, Candidate{Foundation: "2"}, true)
	assert.Equal(t, "1:2", p.Foundation())
}
