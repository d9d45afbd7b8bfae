package rtp

import (
	"sync"
	"time"

	"github.com/vela-rtc/webrtc/internal/util"
)

// JitterBuffer reorders inbound packets for one SSRC into a ring of up
// to size slots, keyed by sequence number with RFC 1982 wraparound
// comparison, grounded on pion/webrtc's Sequencer type
// for the mutex-guarded-struct idiom used throughout pkg/rtp.
type JitterBuffer struct {
	mu      sync.Mutex
	size    uint16
	timeout time.Duration

	slots    map[uint16]*slot
	lowestSeq uint16
	haveLowest bool
	emitted    bool
	lastEmit  time.Time
}

type slot struct {
	packet   *Packet
	arrived  time.Time
}

// NewJitterBuffer constructs a buffer holding up to size packets
// before forcing emission of the oldest slot.
func NewJitterBuffer(size uint16, timeout time.Duration) *JitterBuffer {
	return &JitterBuffer{size: size, timeout: timeout, slots: make(map[uint16]*slot)}
}

// Push inserts an inbound packet, ignoring ones already superseded by
// an emitted sequence number (too old to matter).
func (j *JitterBuffer) Push(p *Packet, now time.Time) {
	j.mu.Lock()
	defer j.mu.Unlock()

	if j.emitted && !util.SeqNumGT(p.SequenceNumber, j.lowestSeq-1) {
		return // duplicate or older than everything already emitted
	}
	j.slots[p.SequenceNumber] = &slot{packet: p, arrived: now}
	if !j.haveLowest || (!j.emitted && util.SeqNumGT(j.lowestSeq, p.SequenceNumber)) {
		j.lowestSeq = p.SequenceNumber
		j.haveLowest = true
	}
}

// Pop drains in-order packets: a contiguous run starting at the
// lowest held sequence number, plus (once the oldest slot has aged
// past timeout) a forced emission that skips any gap.
func (j *JitterBuffer) Pop(now time.Time) []*Packet {
	j.mu.Lock()
	defer j.mu.Unlock()

	var out []*Packet
	for j.haveLowest {
		s, ok := j.slots[j.lowestSeq]
		if ok {
			out = append(out, s.packet)
			delete(j.slots, j.lowestSeq)
			j.lowestSeq++
			j.emitted = true
			continue
		}

		if len(j.slots) == 0 {
			break
		}
		oldest := j.oldestArrivalLocked()
		if now.Sub(oldest) < j.timeout && len(j.slots) <= int(j.size) {
			break
		}
		// Gap exceeded timeout (or the buffer holds more than size
		// packets): skip the missing sequence number and resume from the
		// next one actually held.
		j.lowestSeq++
		j.emitted = true
		j.advanceLowestLocked()
	}
	return out
}

func (j *JitterBuffer) advanceLowestLocked() {
	if len(j.slots) == 0 {
		j.haveLowest = false
		return
	}
	if _, ok := j.slots[j.lowestSeq]; ok {
		return
	}
	best := j.lowestSeq
	first := true
	for seq := range j.slots {
		if first || util.SeqNumGT(best, seq) {
			best = seq
			first = false
		}
	}
	j.lowestSeq = best
}

func (j *JitterBuffer) oldestArrivalLocked() time.Time {
	var oldest time.Time
	first := true
	for _, s := range j.slots {
		if first || s.arrived.Before(oldest) {
			oldest = s.arrived
			first = false
		}
	}
	return oldest
}
