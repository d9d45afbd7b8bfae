package ice

// PairState is the RFC 8445 §6.1.2.6 candidate-pair state.
type PairState int

// Pair states.
const (
	PairFrozen PairState = iota
	PairWaiting
	PairInProgress
	PairSucceeded
	PairFailed
)

func (s PairState) String() string {
	switch s {
	case PairFrozen:
		return "frozen"
	case PairWaiting:
		return "waiting"
	case PairInProgress:
		return "in-progress"
	case PairSucceeded:
		return "succeeded"
	case PairFailed:
		return "failed"
	default:
		return "unknown"
	}
}

// Pair is a (local, remote) candidate pair plus the bookkeeping the
// checklist needs.
type Pair struct {
	Local, Remote Candidate
	Priority      uint64
	State         PairState
	Nominated     bool

	// LastCheckTxID identifies the most recent connectivity-check
	// transaction sent for this pair, used to match Binding responses
	// back to the pair that sent the request.
	LastCheckTxID [12]byte
}

// PairPriority computes the RFC 8445 §6.1.2.5 pair priority:
//
//	2^32 · min(G,D) + 2 · max(G,D) + (G>D ? 1 : 0)
//
// where G is the controlling agent's candidate priority and D is the
// controlled agent's (RFC 8445 §6.1.2.5).
func PairPriority(controllingPriority, controlledPriority uint32) uint64 {
	g, d := uint64(controllingPriority), uint64(controlledPriority)
	minGD := g
	if d < g {
		minGD = d
	}
	maxGD := g
	if d > g {
		maxGD = d
	}
	var tie uint64
	if g > d {
		tie = 1
	}
	return (1<<32)*minGD + 2*maxGD + tie
}

// NewPair constructs a Pair and computes its priority given which side
// is controlling.
func NewPair(local, remote Candidate, isControlling bool) *Pair {
	var controllingPriority, controlledPriority uint32
	if isControlling {
		controllingPriority, controlledPriority = local.Priority, remote.Priority
	} else {
		controllingPriority, controlledPriority = remote.Priority, local.Priority
	}
	return &Pair{
		Local:    local,
		Remote:   remote,
		Priority: PairPriority(controllingPriority, controlledPriority),
		State:    PairFrozen,
	}
}

// Foundation is the pair foundation RFC 8445 §6.1.2.6 uses to group
// pairs for the frozen/waiting seed assignment: the concatenation of
// the two candidates' foundations.
func (p *Pair) Foundation() string {
	return p.Local.Foundation + ":" + p.Remote.Foundation
}
