// Package sctp implements the subset of RFC 4960 SCTP (association
// setup, ordered/unordered DATA delivery, SACK-driven retransmission,
// slow-start congestion control, and RFC 3758 partial reliability via
// FORWARD-TSN) that carries WebRTC data channels, plus RFC 6525
// RE-CONFIG for stream reset during close. Grounded on pion/webrtc's
// internal/sctp package (chunk/packet framing, association state
// names, Stream/reassembly-queue shape) but restructured around a
// single Association type and extended with RE-CONFIG, which
// pion/webrtc lacks.
package sctp

import (
	"crypto/rand"
	"errors"
	"sync"
	"time"
)

// AssociationState is RFC 4960 §13.2's per-association state variable.
type AssociationState uint8

// Association states (RFC 4960 §13.2). There is no explicit "closed"
// state while the TCB is live; a freshly constructed, not-yet-started
// Association reports StateClosed.
const (
	StateClosed AssociationState = iota
	StateCookieWait
	StateCookieEchoed
	StateEstablished
	StateShutdownPending
	StateShutdownSent
	StateShutdownReceived
	StateShutdownAckSent
)

func (s AssociationState) String() string {
	switch s {
	case StateClosed:
		return "closed"
	case StateCookieWait:
		return "cookie-wait"
	case StateCookieEchoed:
		return "cookie-echoed"
	case StateEstablished:
		return "established"
	case StateShutdownPending:
		return "shutdown-pending"
	case StateShutdownSent:
		return "shutdown-sent"
	case StateShutdownReceived:
		return "shutdown-received"
	case StateShutdownAckSent:
		return "shutdown-ack-sent"
	default:
		return "unknown"
	}
}

// defaultMTU is the DATA chunk fragmentation size.
const defaultMTU = 1200

var (
	errAssociationClosed = errors.New("sctp: association closed")
	errStreamExists       = errors.New("sctp: stream identifier already open")
)

// Config configures a new Association. Port is fixed at 5000 on both
// sides; Send transmits one
// complete SCTP packet over the underlying DTLS connection.
type Config struct {
	IsClient bool
	Send     func([]byte) error
}

// Association is a single SCTP association tunneled over DTLS,
// carrying WebRTC DataChannels. All methods are intended to run on
// one logical task; HandleInbound and the Stream
// Open/Write/Close methods are the only entry points that touch
// shared state, each taking the association lock.
type Association struct {
	mu sync.Mutex

	cfg   Config
	state AssociationState

	myVerificationTag   uint32
	peerVerificationTag uint32

	myNextTSN        uint32
	peerCumulativeTSN uint32
	peerTSNSeen       bool
	recvBuffer       map[uint32]DataChunk

	outstanding map[uint32]*outstandingChunk
	cwnd        uint32
	ssthresh    uint32
	peerRwnd    uint32
	rto         time.Duration

	nextStreamID uint16
	streams      map[uint16]*Stream
	acceptCh     chan *Stream

	reconfigSeq uint32

	closeCh chan struct{}
}

type outstandingChunk struct {
	chunk  DataChunk
	sentAt time.Time
}

// NewAssociation constructs an Association in StateClosed; call Start
// to kick off the handshake (client side sends INIT).
func NewAssociation(cfg Config) *Association {
	return &Association{
		cfg:          cfg,
		state:        StateClosed,
		myVerificationTag: randomTag(),
		myNextTSN:    randomTag(),
		recvBuffer:   make(map[uint32]DataChunk),
		outstanding:  make(map[uint32]*outstandingChunk),
		cwnd:         4 * defaultMTU,
		ssthresh:     1 << 20,
		peerRwnd:     1 << 16,
		rto:          1 * time.Second,
		nextStreamID: streamIDParity(cfg.IsClient),
		streams:      make(map[uint16]*Stream),
		acceptCh:     make(chan *Stream, 16),
		closeCh:      make(chan struct{}),
	}
}

func streamIDParity(isClient bool) uint16 {
	// "Stream ID parity: odd for side that issued DTLS ClientHello,
	// even for server".
	if isClient {
		return 1
	}
	return 0
}

func randomTag() uint32 {
	// A cryptographically strong tag isn't required here: collision
	// only matters within one peer's lifetime of associations, and
	// the DTLS layer above already authenticates the channel.
	var b [4]byte
	_, _ = rand.Read(b[:])
	return uint32(b[0])<<24 | uint32(b[1])<<16 | uint32(b[2])<<8 | uint32(b[3])
}

// State reports the current association state.
func (a *Association) State() AssociationState {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.state
}

// Start sends the initial INIT chunk when this association was
// configured as the SCTP client.
func (a *Association) Start() error {
	a.mu.Lock()
	defer a.mu.Unlock()
	if !a.cfg.IsClient {
		return nil
	}
	a.state = StateCookieWait
	init := Init{
		InitiateTag:              a.myVerificationTag,
		AdvertisedReceiverWindow: a.peerRwnd,
		OutboundStreams:          65535,
		InboundStreams:           65535,
		InitialTSN:               a.myNextTSN,
	}
	return a.sendChunkLocked(0, init)
}

func (a *Association) sendChunkLocked(verificationTag uint32, c Chunk) error {
	raw, err := MarshalPacket(Header{SourcePort: 5000, DestinationPort: 5000, VerificationTag: verificationTag}, []Chunk{c})
	if err != nil {
		return err
	}
	return a.cfg.Send(raw)
}

// HandleInbound processes one raw SCTP packet received from the
// transport. Per-chunk parse errors are dropped. INIT and COOKIE-ECHO
// are not checked against the out-of-the-blue rules (RFC 4960 §8.4).
func (a *Association) HandleInbound(raw []byte) error {
	_, chunkRaws, err := ParsePacket(raw)
	if err != nil {
		return nil // malformed packet, silently dropped
	}
	a.mu.Lock()
	defer a.mu.Unlock()

	var delivered bool
	for _, cr := range chunkRaws {
		switch chunkType(cr) {
		case ctInit:
			a.handleInitLocked(cr)
		case ctInitAck:
			a.handleInitAckLocked(cr)
		case ctCookieEcho:
			a.handleCookieEchoLocked(cr)
		case ctCookieAck:
			a.state = StateEstablished
		case ctData:
			if d, err := UnmarshalData(cr); err == nil {
				a.handleDataLocked(d)
				delivered = true
			}
		case ctSack:
			if s, err := UnmarshalSack(cr); err == nil {
				a.handleSackLocked(s)
			}
		case ctForwardTSN:
			if f, err := UnmarshalForwardTSN(cr); err == nil {
				a.handleForwardTSNLocked(f)
			}
		case ctReconfig:
			if r, err := UnmarshalReconfigOutgoingReset(cr); err == nil {
				a.handleReconfigLocked(r)
			}
		case ctAbort:
			a.state = StateClosed
		case ctShutdown:
			if a.state == StateEstablished {
				a.state = StateShutdownReceived
				_ = a.sendChunkLocked(a.peerVerificationTag, ShutdownAck{})
				a.state = StateShutdownAckSent
			}
		case ctShutdownAck:
			a.state = StateClosed
			_ = a.sendChunkLocked(a.peerVerificationTag, ShutdownComplete{})
		}
	}
	if delivered {
		return a.sendSackLocked()
	}
	return nil
}

func (a *Association) handleInitLocked(raw []byte) {
	init, err := UnmarshalInit(raw)
	if err != nil {
		return
	}
	a.peerVerificationTag = init.InitiateTag
	a.peerCumulativeTSN = init.InitialTSN - 1
	cookie := make([]byte, 4)
	cookie[0] = byte(init.InitiateTag >> 24)
	cookie[1] = byte(init.InitiateTag >> 16)
	cookie[2] = byte(init.InitiateTag >> 8)
	cookie[3] = byte(init.InitiateTag)
	ack := InitAck{Init: Init{
		InitiateTag:              a.myVerificationTag,
		AdvertisedReceiverWindow: a.peerRwnd,
		OutboundStreams:          65535,
		InboundStreams:           65535,
		InitialTSN:               a.myNextTSN,
	}, Cookie: cookie}
	_ = a.sendChunkLocked(a.peerVerificationTag, ack)
}

func (a *Association) handleInitAckLocked(raw []byte) {
	if a.state != StateCookieWait {
		return
	}
	ack, err := UnmarshalInitAck(raw)
	if err != nil {
		return
	}
	a.peerVerificationTag = ack.InitiateTag
	a.peerCumulativeTSN = ack.InitialTSN - 1
	a.state = StateCookieEchoed
	_ = a.sendChunkLocked(a.peerVerificationTag, CookieEcho{Cookie: ack.Cookie})
}

func (a *Association) handleCookieEchoLocked(raw []byte) {
	if _, err := UnmarshalCookieEcho(raw); err != nil {
		return
	}
	a.state = StateEstablished
	_ = a.sendChunkLocked(a.peerVerificationTag, CookieAck{})
}

func (a *Association) handleDataLocked(d DataChunk) {
	if !a.peerTSNSeen {
		a.peerCumulativeTSN = d.TSN - 1
		a.peerTSNSeen = true
	}
	a.recvBuffer[d.TSN] = d
	for {
		next, ok := a.recvBuffer[a.peerCumulativeTSN+1]
		if !ok {
			break
		}
		delete(a.recvBuffer, a.peerCumulativeTSN+1)
		a.peerCumulativeTSN++
		a.deliverLocked(next)
	}
}

func (a *Association) deliverLocked(d DataChunk) {
	s, ok := a.streams[d.StreamIdentifier]
	if !ok {
		s = a.newStreamLocked(d.StreamIdentifier)
		select {
		case a.acceptCh <- s:
		default:
		}
	}
	s.handleData(d)
}

func (a *Association) sendSackLocked() error {
	return a.sendChunkLocked(a.peerVerificationTag, Sack{
		CumulativeTSNAck: a.peerCumulativeTSN,
		AdvertisedRwnd:   1 << 16,
	})
}

func (a *Association) handleSackLocked(s Sack) {
	for tsn := range a.outstanding {
		if tsnLE(tsn, s.CumulativeTSNAck) {
			delete(a.outstanding, tsn)
			// RFC 4960 §7.2.1 slow-start / congestion-avoidance.
			if a.cwnd < a.ssthresh {
				a.cwnd += defaultMTU
			} else {
				a.cwnd += defaultMTU * defaultMTU / a.cwnd
			}
		}
	}
	a.peerRwnd = s.AdvertisedRwnd
}

// tsnLE reports whether a <= b modulo TSN wraparound (RFC 4960 §1.6).
func tsnLE(a, b uint32) bool { return int32(a-b) <= 0 }

func (a *Association) handleForwardTSNLocked(f ForwardTSN) {
	if tsnLE(f.NewCumulativeTSN, a.peerCumulativeTSN) {
		return
	}
	for tsn := a.peerCumulativeTSN + 1; tsnLE(tsn, f.NewCumulativeTSN); tsn++ {
		delete(a.recvBuffer, tsn)
	}
	a.peerCumulativeTSN = f.NewCumulativeTSN
	for _, st := range f.Streams {
		if s, ok := a.streams[st.Identifier]; ok {
			s.skipTo(st.Sequence)
		}
	}
}

func (a *Association) handleReconfigLocked(r ReconfigOutgoingReset) {
	for _, id := range r.StreamIdentifiers {
		if s, ok := a.streams[id]; ok {
			s.remoteReset()
		}
	}
}

// OpenStream allocates and registers a new outbound stream with the
// given identifier (caller must respect the client/server ID parity
// convention); ppid is used as the default payload type for Write.
func (a *Association) OpenStream(id uint16, ppid PayloadProtocolIdentifier) (*Stream, error) {
	a.mu.Lock()
	defer a.mu.Unlock()
	if _, exists := a.streams[id]; exists {
		return nil, errStreamExists
	}
	s := a.newStreamLocked(id)
	s.defaultPayloadType = ppid
	return s, nil
}

// OpenStreamAuto allocates the next free stream ID with the correct
// parity for this side.
func (a *Association) OpenStreamAuto(ppid PayloadProtocolIdentifier) (*Stream, error) {
	a.mu.Lock()
	defer a.mu.Unlock()
	for {
		id := a.nextStreamID
		a.nextStreamID += 2
		if _, exists := a.streams[id]; !exists {
			s := a.newStreamLocked(id)
			s.defaultPayloadType = ppid
			return s, nil
		}
	}
}

func (a *Association) newStreamLocked(id uint16) *Stream {
	s := &Stream{
		association:        a,
		streamIdentifier:   id,
		defaultPayloadType: PayloadTypeWebRTCBinary,
		readNotifier:       make(chan struct{}, 1),
		closeCh:            make(chan struct{}),
	}
	a.streams[id] = s
	return s
}

// AcceptStream blocks until a remote peer opens a new stream (the
// first DATA or DCEP message referencing an unseen stream ID creates
// it implicitly).
func (a *Association) AcceptStream() (*Stream, error) {
	select {
	case s := <-a.acceptCh:
		return s, nil
	case <-a.closeCh:
		return nil, errAssociationClosed
	}
}

func (a *Association) sendPayloadData(chunks []DataChunk) error {
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.state == StateClosed {
		return errAssociationClosed
	}
	for i := range chunks {
		chunks[i].TSN = a.myNextTSN
		a.myNextTSN++
		a.outstanding[chunks[i].TSN] = &outstandingChunk{chunk: chunks[i], sentAt: time.Now()}
		if err := a.sendChunkLocked(a.peerVerificationTag, chunks[i]); err != nil {
			return err
		}
	}
	return nil
}

// RequestStreamReset sends an RFC 6525 outgoing-stream-reset RE-CONFIG
// for the given streams, used by the close cascade so
// a DataChannel can observe "closing" before the association itself
// shuts down.
func (a *Association) RequestStreamReset(ids ...uint16) error {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.reconfigSeq++
	return a.sendChunkLocked(a.peerVerificationTag, ReconfigOutgoingReset{
		ReconfigRequestSequenceNumber: a.reconfigSeq,
		StreamIdentifiers:             ids,
	})
}

// CheckRetransmit resends any DATA chunk older than the current RTO
// and not yet SACKed, doubling the RTO (capped at 60s) per chunk that
// is retransmitted. Intended to be driven by the owning
// PeerConnection's cooperative timer loop.
func (a *Association) CheckRetransmit(now time.Time) {
	a.mu.Lock()
	defer a.mu.Unlock()
	for tsn, oc := range a.outstanding {
		if now.Sub(oc.sentAt) < a.rto {
			continue
		}
		_ = a.sendChunkLocked(a.peerVerificationTag, oc.chunk)
		oc.sentAt = now
		a.ssthresh = a.cwnd / 2
		a.cwnd = defaultMTU
		a.rto *= 2
		if a.rto > 60*time.Second {
			a.rto = 60 * time.Second
		}
		a.outstanding[tsn] = oc
	}
}

// Close begins graceful shutdown (RFC 4960 §9.2); callers that need
// an immediate teardown should send Abort directly.
func (a *Association) Close() error {
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.state != StateEstablished {
		a.state = StateClosed
		close(a.closeCh)
		return nil
	}
	a.state = StateShutdownPending
	err := a.sendChunkLocked(a.peerVerificationTag, Shutdown{CumulativeTSNAck: a.peerCumulativeTSN})
	a.state = StateShutdownSent
	close(a.closeCh)
	return err
}
