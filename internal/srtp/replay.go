package srtp

// replayWindowSize is the width of the sliding bitmap RFC 3711 §3.3.2
// requires: indices older than (highest-128) are rejected outright,
// and any index inside the window that has already been marked is a
// duplicate.
const replayWindowSize = 128

// replayWindow tracks which of the last replayWindowSize packet
// indices (48-bit SRTP index: ROC<<16|seq, or the SRTCP index) have
// already been accepted, grounded on the same RFC 3711 §3.3.2 sliding
// window lanikai-alohartc and pion/webrtc's pre-split packages assume
// but never encode explicitly as a reusable type.
type replayWindow struct {
	highest uint64
	bitmap  [2]uint64 // bit i set => (highest - i) has been seen, i in [0,128)
	init    bool
}

// accept reports whether index is new (not a replay and not older
// than the window), and if so marks it seen.
func (w *replayWindow) accept(index uint64) bool {
	if !w.init {
		w.init = true
		w.highest = index
		w.setBit(0)
		return true
	}

	if index > w.highest {
		shift := index - w.highest
		w.shiftLeft(shift)
		w.highest = index
		w.setBit(0)
		return true
	}

	diff := w.highest - index
	if diff >= replayWindowSize {
		return false
	}
	if w.testBit(diff) {
		return false
	}
	w.setBit(diff)
	return true
}

func (w *replayWindow) shiftLeft(n uint64) {
	if n >= replayWindowSize {
		w.bitmap[0], w.bitmap[1] = 0, 0
		return
	}
	if n >= 64 {
		w.bitmap[1] = w.bitmap[0] << (n - 64)
		w.bitmap[0] = 0
		return
	}
	if n == 0 {
		return
	}
	w.bitmap[1] = (w.bitmap[1] << n) | (w.bitmap[0] >> (64 - n))
	w.bitmap[0] <<= n
}

func (w *replayWindow) setBit(i uint64) {
	if i < 64 {
		w.bitmap[0] |= 1 << i
	} else {
		w.bitmap[1] |= 1 << (i - 64)
	}
}

func (w *replayWindow) testBit(i uint64) bool {
	if i < 64 {
		return w.bitmap[0]&(1<<i) != 0
	}
	return w.bitmap[1]&(1<<(i-64)) != 0
}
