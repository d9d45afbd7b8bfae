package rtp

import (
	"sync"
	"time"

	"github.com/vela-rtc/webrtc/internal/util"
)

// NackDelay is how long a sequence-number gap must persist before a
// NACK is generated.
const NackDelay = 20 * time.Millisecond

// nackDedupWindow suppresses re-requesting a sequence number already
// NACKed within this window.
const nackDedupWindow = 500 * time.Millisecond

// NackGenerator tracks per-SSRC gaps in received sequence numbers and
// reports the missing sequence numbers to request in a Generic NACK
// (RFC 4585 PT=205 FMT=1) once a gap has persisted past NackDelay.
type NackGenerator struct {
	mu       sync.Mutex
	highest  uint16
	seen     bool
	missing  map[uint16]time.Time // seq -> first-detected-missing time
	lastSent map[uint16]time.Time // seq -> last time a NACK was sent for it
}

// NewNackGenerator constructs an empty generator.
func NewNackGenerator() *NackGenerator {
	return &NackGenerator{missing: make(map[uint16]time.Time), lastSent: make(map[uint16]time.Time)}
}

// Received records an arriving sequence number, opening gap entries
// for any skipped numbers.
func (n *NackGenerator) Received(seq uint16, now time.Time) {
	n.mu.Lock()
	defer n.mu.Unlock()

	if !n.seen {
		n.seen = true
		n.highest = seq
		return
	}

	if !util.SeqNumGT(seq, n.highest) {
		delete(n.missing, seq) // late arrival fills a previously-open gap
		return
	}

	for s := n.highest + 1; s != seq; s++ {
		if _, ok := n.missing[s]; !ok {
			n.missing[s] = now
		}
	}
	n.highest = seq
}

// Pending returns sequence numbers whose gap has persisted at least
// NackDelay and that haven't been NACKed in the last 500ms, marking
// them as sent.
func (n *NackGenerator) Pending(now time.Time) []uint16 {
	n.mu.Lock()
	defer n.mu.Unlock()

	var out []uint16
	for seq, detected := range n.missing {
		if now.Sub(detected) < NackDelay {
			continue
		}
		if last, ok := n.lastSent[seq]; ok && now.Sub(last) < nackDedupWindow {
			continue
		}
		out = append(out, seq)
		n.lastSent[seq] = now
	}
	return out
}

// Ack stops tracking a sequence number once it has arrived via
// retransmission, matching Received's late-fill behavior.
func (n *NackGenerator) Ack(seq uint16) {
	n.mu.Lock()
	defer n.mu.Unlock()
	delete(n.missing, seq)
}
