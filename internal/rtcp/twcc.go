package rtcp

import (
	"encoding/binary"
	"math"
	"sort"

	"github.com/gammazero/deque"
)

// Packet status symbols used by TWCC run-length and status-symbol
// chunks (draft-holmer-rmcat-transport-wide-cc-extensions-01 §3.1.3).
const (
	tccNotReceived         uint16 = 0
	tccReceivedSmallDelta  uint16 = 1
	tccReceivedLargeDelta  uint16 = 2
	tccReceivedWithoutDelta uint16 = 3

	tccSymbolSizeOneBit uint16 = 0
	tccSymbolSizeTwoBit uint16 = 1
)

const (
	twccBaseSequenceNumberOffset = 8
	twccPacketStatusCountOffset  = 10
	twccReferenceTimeOffset      = 12
	twccHeaderLength             = 16
)

// packetArrival records when a transport-wide sequence number arrived,
// or its zero Timestamp if it never did.
type packetArrival struct {
	extSeq    uint32
	timestamp int64 // microseconds; 0 means lost
}

// TWCCBuilder accumulates per-packet transport-wide sequence numbers
// and arrival times and emits RFC-draft transport-cc feedback packets
// (PT=205 FMT=15). Grounded on the pack's ion-sfu TWCC responder, with
// chunk/delta buffers replaced by growable slices.
type TWCCBuilder struct {
	senderSSRC uint32
	mediaSSRC  uint32
	cycles     uint32
	lastSeq    uint16
	lastExtSeq uint32
	haveLast   bool
	fbCount    uint8
	arrivals   []packetArrival
}

// NewTWCCBuilder constructs a builder for the given sender/media SSRC
// pair.
func NewTWCCBuilder(senderSSRC, mediaSSRC uint32) *TWCCBuilder {
	return &TWCCBuilder{senderSSRC: senderSSRC, mediaSSRC: mediaSSRC}
}

// Add records the arrival of transport-wide sequence number seq at
// timestamp (microseconds since an arbitrary epoch).
func (b *TWCCBuilder) Add(seq uint16, timestampUs int64) {
	if b.haveLast && seq < 0x0fff && (uint32(b.lastSeq)&0xffff) > 0xf000 {
		b.cycles += 1 << 16
	}
	b.lastSeq = seq
	b.haveLast = true
	b.arrivals = append(b.arrivals, packetArrival{extSeq: b.cycles | uint32(seq), timestamp: timestampUs})
}

// Pending reports how many arrivals are buffered awaiting a Build.
func (b *TWCCBuilder) Pending() int {
	return len(b.arrivals)
}

// Build consumes the buffered arrivals and returns a marshaled TWCC
// feedback packet, or nil if there is nothing to report.
func (b *TWCCBuilder) Build() []byte {
	if len(b.arrivals) == 0 {
		return nil
	}
	sort.Slice(b.arrivals, func(i, j int) bool { return b.arrivals[i].extSeq < b.arrivals[j].extSeq })

	var pkts []packetArrival
	for _, a := range b.arrivals {
		if b.haveLast && a.extSeq < b.lastExtSeq {
			continue
		}
		if b.lastExtSeq != 0 {
			for j := b.lastExtSeq + 1; j < a.extSeq; j++ {
				pkts = append(pkts, packetArrival{extSeq: j})
			}
		}
		b.lastExtSeq = a.extSeq
		pkts = append(pkts, a)
	}
	b.arrivals = b.arrivals[:0]
	if len(pkts) == 0 {
		return nil
	}

	var payload []byte
	var deltas []byte
	var chunkBits uint16
	var statusList deque.Deque[uint16]

	firstRecv := false
	same := true
	var refTimestamp int64
	lastStatus := tccReceivedWithoutDelta
	maxStatus := tccNotReceived

	flushRunLength := func(symbol uint16, runLength int) {
		var v uint16
		v = symbol<<13 | uint16(runLength)
		b2 := make([]byte, 2)
		binary.BigEndian.PutUint16(b2, v)
		payload = append(payload, b2...)
	}
	setNBits := func(src, size, startIndex, val uint16) uint16 {
		if startIndex+size > 16 {
			return src
		}
		val &= (1 << size) - 1
		return src | (val << (16 - size - startIndex))
	}
	pushSymbol := func(symbolSize, symbol uint16, i int) {
		numBits := symbolSize + 1
		chunkBits = setNBits(chunkBits, numBits, numBits*uint16(i)+2, symbol)
	}
	flushSymbolChunk := func(symbolSize uint16) {
		chunkBits = setNBits(chunkBits, 1, 0, 1)
		chunkBits = setNBits(chunkBits, 1, 1, symbolSize)
		b2 := make([]byte, 2)
		binary.BigEndian.PutUint16(b2, chunkBits)
		payload = append(payload, b2...)
		chunkBits = 0
	}
	writeDelta := func(deltaType, delta uint16) {
		if deltaType == tccReceivedSmallDelta {
			deltas = append(deltas, byte(delta))
			return
		}
		b2 := make([]byte, 2)
		binary.BigEndian.PutUint16(b2, delta)
		deltas = append(deltas, b2...)
	}

	for _, stat := range pkts {
		status := tccNotReceived
		if stat.timestamp != 0 {
			var delta int64
			if !firstRecv {
				firstRecv = true
				refTime := stat.timestamp / 64e3
				refTimestamp = refTime * 64e3
				payload = make([]byte, twccHeaderLength)
				binary.BigEndian.PutUint32(payload[0:], b.senderSSRC)
				binary.BigEndian.PutUint32(payload[4:], b.mediaSSRC)
				binary.BigEndian.PutUint16(payload[twccBaseSequenceNumberOffset:], uint16(pkts[0].extSeq))
				binary.BigEndian.PutUint16(payload[twccPacketStatusCountOffset:], uint16(len(pkts)))
				binary.BigEndian.PutUint32(payload[twccReferenceTimeOffset:], uint32(refTime)<<8|uint32(b.fbCount))
				b.fbCount++
			}
			delta = (stat.timestamp - refTimestamp) / 250
			if delta < 0 || delta > 255 {
				status = tccReceivedLargeDelta
				rd := int16(delta)
				if int64(rd) != delta {
					if rd > 0 {
						rd = math.MaxInt16
					} else {
						rd = math.MinInt16
					}
				}
				writeDelta(status, uint16(rd))
			} else {
				status = tccReceivedSmallDelta
				writeDelta(status, uint16(delta))
			}
			refTimestamp = stat.timestamp
		}

		if same && status != lastStatus && lastStatus != tccReceivedWithoutDelta {
			if statusList.Len() > 7 {
				flushRunLength(lastStatus, statusList.Len())
				statusList.Clear()
				lastStatus = tccReceivedWithoutDelta
				maxStatus = tccNotReceived
				same = true
			} else {
				same = false
			}
		}

		statusList.PushBack(status)
		if status > maxStatus {
			maxStatus = status
		}
		lastStatus = status

		if !same && maxStatus == tccReceivedLargeDelta && statusList.Len() > 6 {
			for i := 0; i < 7; i++ {
				pushSymbol(tccSymbolSizeTwoBit, statusList.PopFront(), i)
			}
			flushSymbolChunk(tccSymbolSizeTwoBit)
			lastStatus = tccReceivedWithoutDelta
			maxStatus = tccNotReceived
			same = true
			for i := 0; i < statusList.Len(); i++ {
				s := statusList.At(i)
				if s > maxStatus {
					maxStatus = s
				}
				if same && lastStatus != tccReceivedWithoutDelta && s != lastStatus {
					same = false
				}
				lastStatus = s
			}
		} else if !same && statusList.Len() > 13 {
			for i := 0; i < 14; i++ {
				pushSymbol(tccSymbolSizeOneBit, statusList.PopFront(), i)
			}
			flushSymbolChunk(tccSymbolSizeOneBit)
			lastStatus = tccReceivedWithoutDelta
			maxStatus = tccNotReceived
			same = true
		}
	}

	if statusList.Len() > 0 {
		switch {
		case same:
			flushRunLength(lastStatus, statusList.Len())
		case maxStatus == tccReceivedLargeDelta:
			n := statusList.Len()
			for i := 0; i < n; i++ {
				pushSymbol(tccSymbolSizeTwoBit, statusList.PopFront(), i)
			}
			flushSymbolChunk(tccSymbolSizeTwoBit)
		default:
			n := statusList.Len()
			for i := 0; i < n; i++ {
				pushSymbol(tccSymbolSizeOneBit, statusList.PopFront(), i)
			}
			flushSymbolChunk(tccSymbolSizeOneBit)
		}
	}

	if payload == nil {
		return nil
	}
	body := append(payload, deltas...)
	h := Header{Type: TypeTransportSpecificFeedback, Count: FormatTWCC, Length: uint16(len(body)/4 + 1 - 1)}
	hb, err := h.Marshal()
	if err != nil {
		return nil
	}
	return append(hb, body...)
}
