package rtp

// SimulcastDemuxer routes inbound packets into per-(mid, rid) virtual
// tracks by reading the negotiated RID (or repaired-rtp-stream-id, for
// RTX streams) one-byte header extension.
type SimulcastDemuxer struct {
	ridExtensionID    uint8
	repairedExtID     uint8
	tracks            map[string]chan *Packet
	bufferSize        int
}

// NewSimulcastDemuxer constructs a demuxer using the SDP-negotiated
// extmap ids for urn:ietf:params:rtp-hdrext:sdes:rtp-stream-id and
// urn:ietf:params:rtp-hdrext:sdes:repaired-rtp-stream-id.
func NewSimulcastDemuxer(ridExtensionID, repairedExtID uint8) *SimulcastDemuxer {
	return &SimulcastDemuxer{
		ridExtensionID: ridExtensionID,
		repairedExtID:  repairedExtID,
		tracks:         make(map[string]chan *Packet),
		bufferSize:     64,
	}
}

// RID extracts the stream id carried by a packet's header extensions,
// preferring the repair id when present (an RTX-repair packet for a
// simulcast layer).
func (d *SimulcastDemuxer) RID(p *Packet) (rid string, isRepair bool) {
	for _, e := range p.Extensions {
		if e.ID == d.repairedExtID {
			return string(e.Payload), true
		}
	}
	for _, e := range p.Extensions {
		if e.ID == d.ridExtensionID {
			return string(e.Payload), false
		}
	}
	return "", false
}

// Track returns (creating if needed) the channel a virtual track keyed
// by rid delivers packets on.
func (d *SimulcastDemuxer) Track(rid string) chan *Packet {
	ch, ok := d.tracks[rid]
	if !ok {
		ch = make(chan *Packet, d.bufferSize)
		d.tracks[rid] = ch
	}
	return ch
}

// Dispatch routes p to its virtual track's channel, non-blockingly
// dropping it if that track's buffer is full rather than stalling the
// single demux goroutine.
func (d *SimulcastDemuxer) Dispatch(p *Packet) {
	rid, _ := d.RID(p)
	ch := d.Track(rid)
	select {
	case ch <- p:
	default:
	}
}
