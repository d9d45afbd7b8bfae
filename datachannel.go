package webrtc

import (
	"sync"

	"github.com/vela-rtc/webrtc/internal/dcep"
	"github.com/vela-rtc/webrtc/internal/sctp"
)

// DataChannelInit configures a new DataChannel via createDataChannel.
type DataChannelInit struct {
	Ordered           *bool
	MaxPacketLifeTime *uint16
	MaxRetransmits    *uint16
	Protocol          string
	Negotiated        bool
	ID                *uint16
}

// DataChannelParameters is the immutable configuration snapshot of a
// DataChannel, mirroring the SCTP/DCEP framing it was negotiated with.
type DataChannelParameters struct {
	Label             string
	ID                uint16
	Ordered           bool
	MaxPacketLifeTime *uint16
	MaxRetransmits    *uint16
	Protocol          string
	Negotiated        bool
}

// DataChannelMessage is one delivered application message.
type DataChannelMessage struct {
	Data     []byte
	IsString bool
}

// DataChannel is a single concrete type for every channel, negotiated
// in-band via DCEP or out-of-band (negotiated:true), rather than a
// split between a native implementation and a thin proxy.
type DataChannel struct {
	mu sync.Mutex

	params DataChannelParameters
	state  DataChannelState

	stream *sctp.Stream
	assoc  *sctp.Association

	bufferedAmount        int
	bufferedAmountLowThresh int

	onOpen             func()
	onClose            func()
	onMessage          func(DataChannelMessage)
	onBufferedAmountLow func()
}

// Label returns the channel's application-chosen label.
func (d *DataChannel) Label() string { return d.params.Label }

// ID returns the SCTP stream identifier.
func (d *DataChannel) ID() uint16 { return d.params.ID }

// Protocol returns the subprotocol string.
func (d *DataChannel) Protocol() string { return d.params.Protocol }

// Ordered reports whether this channel preserves FIFO delivery.
func (d *DataChannel) Ordered() bool { return d.params.Ordered }

// ReadyState returns the current lifecycle state.
func (d *DataChannel) ReadyState() DataChannelState {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.state
}

// BufferedAmount returns the number of bytes in Send calls that have
// not yet returned; it does not track SACKs from the peer.
func (d *DataChannel) BufferedAmount() int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.bufferedAmount
}

// OnOpen registers a listener fired when the channel reaches "open".
func (d *DataChannel) OnOpen(f func()) { d.mu.Lock(); d.onOpen = f; d.mu.Unlock() }

// OnClose registers a listener fired when the channel reaches "closed".
func (d *DataChannel) OnClose(f func()) { d.mu.Lock(); d.onClose = f; d.mu.Unlock() }

// OnMessage registers the application message listener.
func (d *DataChannel) OnMessage(f func(DataChannelMessage)) {
	d.mu.Lock()
	d.onMessage = f
	d.mu.Unlock()
}

// OnBufferedAmountLow registers a listener fired once BufferedAmount
// drops at or below the configured threshold.
func (d *DataChannel) OnBufferedAmountLow(f func()) {
	d.mu.Lock()
	d.onBufferedAmountLow = f
	d.mu.Unlock()
}

// Send transmits p as a binary message.
func (d *DataChannel) Send(p []byte) error { return d.send(p, false) }

// SendText transmits s as a string message.
func (d *DataChannel) SendText(s string) error { return d.send([]byte(s), true) }

func (d *DataChannel) send(p []byte, isString bool) error {
	d.mu.Lock()
	if d.state != DataChannelStateOpen {
		d.mu.Unlock()
		return errInvalidState(ErrConnectionClosed)
	}
	d.bufferedAmount += len(p)
	d.mu.Unlock()

	var ppi sctp.PayloadProtocolIdentifier
	switch {
	case !isString && len(p) > 0:
		ppi = sctp.PayloadTypeWebRTCBinary
	case !isString:
		ppi = sctp.PayloadTypeWebRTCBinaryEmpty
	case len(p) > 0:
		ppi = sctp.PayloadTypeWebRTCString
	default:
		ppi = sctp.PayloadTypeWebRTCStringEmpty
	}
	_, err := d.stream.WriteSCTP(p, ppi)

	d.mu.Lock()
	d.bufferedAmount -= len(p)
	low := d.bufferedAmount <= d.bufferedAmountLowThresh
	cb := d.onBufferedAmountLow
	d.mu.Unlock()
	if low && cb != nil {
		cb()
	}
	return err
}

// Close closes the underlying SCTP stream and, where the association
// permits it, requests a RE-CONFIG outgoing-stream-reset so the peer
// observes an orderly "closing" transition.
func (d *DataChannel) Close() error {
	d.mu.Lock()
	if d.state == DataChannelStateClosed || d.state == DataChannelStateClosing {
		d.mu.Unlock()
		return nil
	}
	d.state = DataChannelStateClosing
	d.mu.Unlock()

	if d.assoc != nil {
		_ = d.assoc.RequestStreamReset(d.params.ID)
	}
	err := d.stream.Close()

	d.mu.Lock()
	d.state = DataChannelStateClosed
	cb := d.onClose
	d.mu.Unlock()
	if cb != nil {
		cb()
	}
	return err
}

func (d *DataChannel) setOpen() {
	d.mu.Lock()
	d.state = DataChannelStateOpen
	cb := d.onOpen
	d.mu.Unlock()
	if cb != nil {
		cb()
	}
}

const dcReceiveMTU = 16384

// readLoop pumps the SCTP stream: DCEP OPEN/ACK messages (PPID 50)
// drive the connecting->open transition; everything else is delivered
// to onMessage. One goroutine per channel, blocked on ReadSCTP, is the
// only thing touching this DataChannel's state outside the app's own
// calls.
func (d *DataChannel) readLoop(clientInitiated bool) {
	if clientInitiated {
		d.sendOpen()
	}
	buf := make([]byte, dcReceiveMTU)
	for {
		n, ppi, err := d.stream.ReadSCTP(buf)
		if err != nil {
			d.mu.Lock()
			d.state = DataChannelStateClosed
			cb := d.onClose
			d.mu.Unlock()
			if cb != nil {
				cb()
			}
			return
		}
		data := append([]byte(nil), buf[:n]...)

		if ppi == sctp.PayloadTypeWebRTCDCEP {
			d.handleDCEP(data)
			continue
		}

		d.mu.Lock()
		cb := d.onMessage
		d.mu.Unlock()
		if cb != nil {
			isString := ppi == sctp.PayloadTypeWebRTCString || ppi == sctp.PayloadTypeWebRTCStringEmpty
			if ppi == sctp.PayloadTypeWebRTCBinaryEmpty || ppi == sctp.PayloadTypeWebRTCStringEmpty {
				data = nil
			}
			cb(DataChannelMessage{Data: data, IsString: isString})
		}
	}
}

func (d *DataChannel) sendOpen() {
	ordered := d.params.Ordered
	ct := dcep.ChannelReliable
	var reliability uint32
	switch {
	case !ordered && d.params.MaxRetransmits == nil && d.params.MaxPacketLifeTime == nil:
		ct = dcep.ChannelReliableUnordered
	case d.params.MaxRetransmits != nil:
		reliability = uint32(*d.params.MaxRetransmits)
		if ordered {
			ct = dcep.ChannelPartialReliableRexmit
		} else {
			ct = dcep.ChannelPartialReliableRexmitUnordered
		}
	case d.params.MaxPacketLifeTime != nil:
		reliability = uint32(*d.params.MaxPacketLifeTime)
		if ordered {
			ct = dcep.ChannelPartialReliableTimed
		} else {
			ct = dcep.ChannelPartialReliableTimedUnordered
		}
	}

	open := &dcep.ChannelOpen{
		ChannelType:          ct,
		ReliabilityParameter: reliability,
		Label:                []byte(d.params.Label),
		Protocol:             []byte(d.params.Protocol),
	}
	raw, _ := open.Marshal()
	_, _ = d.stream.WriteSCTP(raw, sctp.PayloadTypeWebRTCDCEP)
}

func (d *DataChannel) handleDCEP(raw []byte) {
	msg, err := dcep.Parse(raw)
	if err != nil {
		return
	}
	switch m := msg.(type) {
	case *dcep.ChannelOpen:
		d.mu.Lock()
		d.params.Label = string(m.Label)
		d.params.Protocol = string(m.Protocol)
		d.params.Ordered = !m.ChannelType.Unordered()
		d.mu.Unlock()
		ack := dcep.ChannelAck{}
		raw, _ := ack.Marshal()
		_, _ = d.stream.WriteSCTP(raw, sctp.PayloadTypeWebRTCDCEP)
		d.setOpen()
	case *dcep.ChannelAck:
		d.setOpen()
	}
}
