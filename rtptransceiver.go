package webrtc

import (
	"sync"
	"time"

	"github.com/vela-rtc/webrtc/internal/rtcp"
	"github.com/vela-rtc/webrtc/internal/rtp"
	"github.com/vela-rtc/webrtc/internal/util"
)

// RTPTransceiverInit configures a new transceiver via addTransceiver.
type RTPTransceiverInit struct {
	Direction RTPTransceiverDirection
}

// RTPTransceiver pairs a sender and receiver for one media kind.
// Mid, once assigned by a successful offer/answer, is
// immutable thereafter.
type RTPTransceiver struct {
	mu sync.Mutex

	mid              string
	kind             RTPCodecType
	direction        RTPTransceiverDirection
	currentDirection RTPTransceiverDirection
	stopped          bool

	simulcastRIDs []string

	sender   *RTPSender
	receiver *RTPReceiver
}

// newRTPTransceiver constructs a transceiver with a fresh Sender and
// Receiver, in the desired direction from init.
func newRTPTransceiver(kind RTPCodecType, init RTPTransceiverInit) *RTPTransceiver {
	direction := init.Direction
	if direction == 0 {
		direction = RTPTransceiverDirectionSendrecv
	}
	t := &RTPTransceiver{
		kind:      kind,
		direction: direction,
		sender:    newRTPSender(),
		receiver:  newRTPReceiver(),
	}
	t.sender.Start(util.RandUint32(), 0)
	return t
}

// Mid returns the negotiated media identification tag, or "" before
// negotiation assigns one.
func (t *RTPTransceiver) Mid() string {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.mid
}

// Kind returns the media kind this transceiver carries.
func (t *RTPTransceiver) Kind() RTPCodecType { return t.kind }

// Direction returns the locally desired direction.
func (t *RTPTransceiver) Direction() RTPTransceiverDirection {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.direction
}

// SetDirection updates the desired direction. It does not fire
// negotiation-needed.
func (t *RTPTransceiver) SetDirection(d RTPTransceiverDirection) {
	t.mu.Lock()
	t.direction = d
	t.mu.Unlock()
}

// CurrentDirection returns the direction from the last successful
// negotiation.
func (t *RTPTransceiver) CurrentDirection() RTPTransceiverDirection {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.currentDirection
}

// Sender returns the transceiver's RTPSender.
func (t *RTPTransceiver) Sender() *RTPSender { return t.sender }

// Receiver returns the transceiver's RTPReceiver.
func (t *RTPTransceiver) Receiver() *RTPReceiver { return t.receiver }

// Stopped reports whether Stop has been called (directly, or via the
// owning PeerConnection's close cascade).
func (t *RTPTransceiver) Stopped() bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.stopped
}

// Stop irreversibly stops the transceiver.
func (t *RTPTransceiver) Stop() error {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.stopped = true
	t.direction = RTPTransceiverDirectionInactive
	return nil
}

func (t *RTPTransceiver) setMid(mid string) {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.mid == "" {
		t.mid = mid
	}
}

// enableSimulcast records the negotiated receive-direction RIDs and
// wires a RID-classifying demuxer into the transceiver's receiver.
func (t *RTPTransceiver) enableSimulcast(ridExtensionID, repairedExtID uint8, rids []string) {
	t.mu.Lock()
	t.simulcastRIDs = rids
	t.mu.Unlock()
	t.receiver.enableSimulcast(ridExtensionID, repairedExtID)
}

// sendHistorySize bounds RTPSender's retransmission cache: the window
// of recently sent packets a NACK can plausibly still ask for.
const sendHistorySize = 512

// RTPSender owns outbound RTP for one transceiver. Packetization
// (splitting an encoded frame into MTU-sized payloads) and the actual
// encoding are out of scope for this package (§1): Sender accepts
// already-packetized payload bytes, frames them as RTP, protects and
// transmits them, and keeps a short history to satisfy RTX-triggered
// retransmission requests carried back over RTCP NACK.
type RTPSender struct {
	mu sync.Mutex

	ssrc        uint32
	payloadType uint8
	rtxSSRC     uint32
	started     bool

	seq    *rtp.Sequencer
	rtxSeq *rtp.Sequencer

	packetCount uint32
	octetCount  uint32

	history      map[uint16]*rtp.Packet
	historyOrder []uint16

	protect func(*rtp.Packet) ([]byte, error)
	write   func([]byte) (int, error)

	onPictureLossIndication func()
}

func newRTPSender() *RTPSender {
	return &RTPSender{history: make(map[uint16]*rtp.Packet)}
}

// Start marks the sender as ready to transmit once SRTP contexts are
// available, binding the SSRC/payload type it will stamp on outbound
// packets. The repair SSRC for RTX retransmissions is set separately
// with SetRTXSSRC.
func (s *RTPSender) Start(ssrc uint32, payloadType uint8) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.ssrc, s.payloadType, s.started = ssrc, payloadType, true
	if s.seq == nil {
		s.seq = rtp.NewSequencer(0)
	}
}

// SetPayloadType updates the payload type stamped on outbound
// packets, once negotiation has settled on a codec.
func (s *RTPSender) SetPayloadType(pt uint8) {
	s.mu.Lock()
	s.payloadType = pt
	s.mu.Unlock()
}

// SetRTXSSRC enables RTX-style retransmission: lost packets are
// resent on rtxSSRC (PT=apt+1, OSN-prefixed payload) rather than
// replayed verbatim on the original SSRC.
func (s *RTPSender) SetRTXSSRC(rtxSSRC uint32) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.rtxSSRC = rtxSSRC
	if s.rtxSeq == nil {
		s.rtxSeq = rtp.NewSequencer(0)
	}
}

// OnPictureLossIndication registers the callback invoked when a
// remote receiver's PLI/FIR asks this sender's media source for a new
// key frame. Encoding a key frame on request is the application's
// responsibility; this package only delivers the signal.
func (s *RTPSender) OnPictureLossIndication(f func()) {
	s.mu.Lock()
	s.onPictureLossIndication = f
	s.mu.Unlock()
}

// bindTransport wires the SRTP-protect and socket-write functions the
// PeerConnection derives once the DTLS-SRTP handshake completes.
func (s *RTPSender) bindTransport(protect func(*rtp.Packet) ([]byte, error), write func([]byte) (int, error)) {
	s.mu.Lock()
	s.protect, s.write = protect, write
	s.mu.Unlock()
}

// WriteRTP packetizes payload as one RTP packet on this sender's SSRC
// and payload type, protects it, transmits it, and remembers it for a
// bounded window in case a NACK asks for it back.
func (s *RTPSender) WriteRTP(payload []byte, marker bool, timestamp uint32) error {
	s.mu.Lock()
	if !s.started || s.protect == nil || s.write == nil {
		s.mu.Unlock()
		return errInvalidState(ErrSenderNotStarted)
	}
	seq := s.seq.Next()
	p := &rtp.Packet{
		Header: rtp.Header{
			Version:        2,
			Marker:         marker,
			PayloadType:    s.payloadType,
			SequenceNumber: seq,
			Timestamp:      timestamp,
			SSRC:           s.ssrc,
		},
		Payload: payload,
	}
	s.rememberLocked(seq, p)
	s.packetCount++
	s.octetCount += uint32(len(payload))
	protect, write := s.protect, s.write
	s.mu.Unlock()

	raw, err := protect(p)
	if err != nil {
		return err
	}
	_, err = write(raw)
	return err
}

func (s *RTPSender) rememberLocked(seq uint16, p *rtp.Packet) {
	if _, exists := s.history[seq]; !exists {
		s.historyOrder = append(s.historyOrder, seq)
		if len(s.historyOrder) > sendHistorySize {
			delete(s.history, s.historyOrder[0])
			s.historyOrder = s.historyOrder[1:]
		}
	}
	s.history[seq] = p
}

// Retransmit looks up a previously sent packet by sequence number and
// resends it: wrapped for the repair SSRC if RTX is enabled, or
// verbatim on the original SSRC otherwise.
func (s *RTPSender) Retransmit(seq uint16) error {
	s.mu.Lock()
	orig, ok := s.history[seq]
	if !ok || s.protect == nil || s.write == nil {
		s.mu.Unlock()
		return nil
	}
	out := orig
	if s.rtxSSRC != 0 {
		out = rtp.WrapRTX(orig, s.rtxSSRC, s.rtxSeq.Next(), s.payloadType)
	}
	protect, write := s.protect, s.write
	s.mu.Unlock()

	raw, err := protect(out)
	if err != nil {
		return err
	}
	_, err = write(raw)
	return err
}

// handlePLI invokes the registered key-frame-request callback, if any.
func (s *RTPSender) handlePLI() {
	s.mu.Lock()
	cb := s.onPictureLossIndication
	s.mu.Unlock()
	if cb != nil {
		cb()
	}
}

// SenderReport builds an RFC 3550 SR for this sender's current
// packet/octet counts as of now, correlated against ntpTime/rtpTime
// (the sender's wallclock-to-media-clock mapping, which depends on
// the codec's clock rate and so is supplied by the caller rather than
// tracked in this transport-only layer).
func (s *RTPSender) SenderReport(now time.Time, rtpTime uint32) rtcp.SenderReport {
	s.mu.Lock()
	defer s.mu.Unlock()
	return rtcp.SenderReport{
		SSRC:        s.ssrc,
		NTPTime:     rtcp.NTPTime(now),
		RTPTime:     rtpTime,
		PacketCount: s.packetCount,
		OctetCount:  s.octetCount,
	}
}

// SSRC returns the sender's bound SSRC, or 0 before Start.
func (s *RTPSender) SSRC() uint32 {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.ssrc
}

// receptionStats tracks the RFC 3550 §6.4.1/A.3 bookkeeping needed to
// fill a ReceptionReport: extended highest sequence (cycles + highest
// 16 bits), cumulative and interval-fraction loss.
type receptionStats struct {
	haveBase bool
	base     uint16
	highest  uint16
	cycles   uint16

	received      uint32
	expectedPrior uint32
	receivedPrior uint32
}

func (s *receptionStats) update(seq uint16) {
	s.received++
	if !s.haveBase {
		s.haveBase, s.base, s.highest = true, seq, seq
		return
	}
	if util.SeqNumGT(seq, s.highest) {
		if seq < s.highest {
			s.cycles++
		}
		s.highest = seq
	}
}

func (s *receptionStats) extendedHighest() uint32 {
	return uint32(s.cycles)<<16 | uint32(s.highest)
}

func (s *receptionStats) report() rtcp.ReceptionReport {
	expected := s.extendedHighest() - uint32(s.base) + 1
	expectedInterval := expected - s.expectedPrior
	receivedInterval := s.received - s.receivedPrior
	lostInterval := int64(expectedInterval) - int64(receivedInterval)

	var fraction uint8
	if expectedInterval > 0 && lostInterval > 0 {
		fraction = uint8((lostInterval << 8) / int64(expectedInterval))
	}
	s.expectedPrior, s.receivedPrior = expected, s.received

	cumulative := int64(expected) - int64(s.received)
	if cumulative < 0 {
		cumulative = 0
	}

	return rtcp.ReceptionReport{
		FractionLost:       fraction,
		TotalLost:          uint32(cumulative),
		LastSequenceNumber: s.extendedHighest(),
	}
}

// RTPReceiver owns inbound RTP demultiplexed to one transceiver,
// including its simulcast layers keyed by RID. Inbound packets pass
// through a per-SSRC jitter buffer for reordering and a NACK generator
// that detects sustained gaps; an RTX-wrapped repair packet is
// unwrapped back onto its original SSRC/sequence before either.
type RTPReceiver struct {
	mu sync.Mutex

	trackSSRC map[string]uint32 // rid (or "" for non-simulcast) -> SSRC
	rtxSSRC   uint32
	primaryPT uint8

	simulcast *rtp.SimulcastDemuxer

	jitter *rtp.JitterBuffer
	nack   *rtp.NackGenerator
	stats  receptionStats

	onReceiveRTP func(*rtp.Packet)
}

func newRTPReceiver() *RTPReceiver {
	return &RTPReceiver{
		jitter: rtp.NewJitterBuffer(64, 200*time.Millisecond),
		nack:   rtp.NewNackGenerator(),
	}
}

// OnReceiveRTP registers the callback invoked with every parsed,
// unprotected, jitter-buffer-ordered RTP packet demultiplexed to this
// receiver.
func (r *RTPReceiver) OnReceiveRTP(f func(*rtp.Packet)) {
	r.mu.Lock()
	r.onReceiveRTP = f
	r.mu.Unlock()
}

func (r *RTPReceiver) bindSSRC(rid string, ssrc uint32) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.trackSSRC == nil {
		r.trackSSRC = map[string]uint32{}
	}
	r.trackSSRC[rid] = ssrc
}

// enableSimulcast wires a RID-classifying demuxer into the receiver so
// a not-yet-bound SSRC can be resolved to its simulcast layer by the
// RID (or repaired-RID) header extension instead of first-packet
// binding.
func (r *RTPReceiver) enableSimulcast(ridExtensionID, repairedExtID uint8) {
	r.mu.Lock()
	r.simulcast = rtp.NewSimulcastDemuxer(ridExtensionID, repairedExtID)
	r.mu.Unlock()
}

// hasSimulcast reports whether enableSimulcast has wired a demuxer in.
func (r *RTPReceiver) hasSimulcast() bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.simulcast != nil
}

// simulcastRID reports the RID (or repaired-RID) p's header extensions
// carry, or "" if simulcast isn't enabled or p carries neither.
func (r *RTPReceiver) simulcastRID(p *rtp.Packet) (rid string, isRepair bool) {
	r.mu.Lock()
	d := r.simulcast
	r.mu.Unlock()
	if d == nil {
		return "", false
	}
	return d.RID(p)
}

// SetRTX records the RTX repair SSRC and the primary media payload
// type (apt), so inbound RTX packets (PT=apt+1) can be unwrapped
// before delivery.
func (r *RTPReceiver) SetRTX(rtxSSRC uint32, primaryPT uint8) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.rtxSSRC, r.primaryPT = rtxSSRC, primaryPT
}

// deliver routes p through RTX unwrapping (if applicable), the jitter
// buffer, and NACK-gap tracking, then hands every packet the jitter
// buffer releases to the registered callback in order.
func (r *RTPReceiver) deliver(p *rtp.Packet) {
	now := time.Now()

	r.mu.Lock()
	if r.rtxSSRC != 0 && p.SSRC == r.rtxSSRC {
		originalSeq, payload, ok := rtp.UnwrapRTX(p)
		if !ok {
			r.mu.Unlock()
			return
		}
		primary := r.trackSSRC[""]
		p = &rtp.Packet{
			Header: rtp.Header{
				Version:        2,
				Marker:         p.Marker,
				PayloadType:    r.primaryPT,
				SequenceNumber: originalSeq,
				Timestamp:      p.Timestamp,
				SSRC:           primary,
			},
			Payload: payload,
		}
		r.nack.Ack(originalSeq)
	} else {
		r.nack.Received(p.SequenceNumber, now)
	}
	r.stats.update(p.SequenceNumber)
	r.jitter.Push(p, now)
	ready := r.jitter.Pop(now)
	cb := r.onReceiveRTP
	r.mu.Unlock()

	if cb == nil {
		return
	}
	for _, out := range ready {
		cb(out)
	}
}

// PendingNACKs returns the RTP sequence numbers whose gap has
// persisted long enough to NACK, grouped into the minimum number of
// NackPairs.
func (r *RTPReceiver) PendingNACKs(now time.Time) []rtcp.NackPair {
	r.mu.Lock()
	defer r.mu.Unlock()
	seqs := r.nack.Pending(now)
	if len(seqs) == 0 {
		return nil
	}
	sortUint16(seqs)
	return rtcp.NackPairsFromSequenceNumbers(seqs)
}

// MediaSSRC returns the primary (non-RID) SSRC this receiver is bound
// to, or 0 before any packet has arrived.
func (r *RTPReceiver) MediaSSRC() uint32 {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.trackSSRC[""]
}

// ReceiverReport builds an RFC 3550 RR reception block for this
// receiver's current loss/sequence bookkeeping.
func (r *RTPReceiver) ReceiverReport() rtcp.ReceptionReport {
	r.mu.Lock()
	defer r.mu.Unlock()
	rr := r.stats.report()
	rr.SSRC = r.trackSSRC[""]
	return rr
}

func sortUint16(s []uint16) {
	for i := 1; i < len(s); i++ {
		for j := i; j > 0 && s[j-1] > s[j]; j-- {
			s[j-1], s[j] = s[j], s[j-1]
		}
	}
}
