package webrtc

import (
	"context"
	"encoding/binary"
	"fmt"
	"net"
	"sync"
	"time"

	"github.com/pion/logging"
	"github.com/pion/sdp/v3"

	"github.com/vela-rtc/webrtc/internal/dtls"
	"github.com/vela-rtc/webrtc/internal/ice"
	"github.com/vela-rtc/webrtc/internal/mux"
	"github.com/vela-rtc/webrtc/internal/rtcp"
	"github.com/vela-rtc/webrtc/internal/rtp"
	"github.com/vela-rtc/webrtc/internal/sctp"
	"github.com/vela-rtc/webrtc/internal/srtp"
)

const dataChannelMid = "data"

// rtcpReportInterval is the period between compound RTCP reports
// (RR/SR plus any pending NACK), a fixed stand-in for the randomized
// 5%-jittered RTCP bandwidth-based interval RFC 3550 §6.2 describes.
const rtcpReportInterval = time.Second

// PeerConnection owns exactly one transport stack (ICE -> DTLS ->
// SRTP+SCTP), one session controller, and the transceiver/data channel
// collections it negotiates. Grounded on pion/webrtc's peerconnection.go:
// the same event-registry shape (OnICECandidate/OnTrack/OnDataChannel/
// ...), the same Configuration/SettingEngine split, and the same
// async-shaped certificate provisioning awaited once up front.
type PeerConnection struct {
	mu sync.Mutex

	log logging.LeveledLogger

	config Configuration
	cert   *Certificate

	conn          net.PacketConn
	transportMux  *mux.Mux
	stunEndpoint  *mux.Endpoint
	dtlsEndpoint  *mux.Endpoint
	srtpEndpoint  *mux.Endpoint
	srtcpEndpoint *mux.Endpoint
	iceAgent      *ice.Agent
	dtlsConn      *dtls.Conn
	assoc         *sctp.Association

	srtpSendCtx, srtpRecvCtx *srtp.Context
	ssrcReceivers            map[uint32]*RTPReceiver
	announcedReceivers       map[*RTPReceiver]bool

	gatheredCandidates []ICECandidate

	ctx    context.Context
	cancel context.CancelFunc

	isOfferer bool

	signalingState SignalingState
	iceConnState   ICEConnectionState
	iceGatherState ICEGatheringState
	connState      PeerConnectionState

	currentLocalDescription, currentRemoteDescription *SessionDescription
	pendingLocalDescription, pendingRemoteDescription  *SessionDescription

	remote *remoteSession

	transceivers    []*RTPTransceiver
	dataChannels    []*DataChannel
	haveDataChannel bool
	nextDCStreamID  uint16

	negotiationNeeded    bool
	negotiationScheduled bool
	closed               bool

	onICECandidate             func(ICECandidate)
	onICEGatheringStateChange  func(ICEGatheringState)
	onICEConnectionStateChange func(ICEConnectionState)
	onConnectionStateChange    func(PeerConnectionState)
	onSignalingStateChange     func(SignalingState)
	onNegotiationNeeded        func()
	onDataChannel              func(*DataChannel)
	onTrack                    func(*RTPReceiver)
}

// NewPeerConnection constructs a PeerConnection: generates (or adopts)
// a certificate, binds the transport socket, and wires the STUN/DTLS/
// SRTP/SRTCP demultiplexer on top of it. No network activity beyond
// the socket bind happens until SetLocalDescription starts ICE
// gathering.
func NewPeerConnection(config Configuration) (*PeerConnection, error) {
	cert, err := certificateFor(config)
	if err != nil {
		return nil, err
	}

	conn, err := net.ListenUDP("udp4", &net.UDPAddr{})
	if err != nil {
		return nil, errUnknown(fmt.Errorf("webrtc: bind transport socket: %w", err))
	}

	ctx, cancel := context.WithCancel(context.Background())

	loggerFactory := logging.NewDefaultLoggerFactory()

	pc := &PeerConnection{
		log:            loggerFactory.NewLogger("webrtc"),
		config:         config,
		cert:           cert,
		conn:           conn,
		ctx:            ctx,
		cancel:         cancel,
		signalingState: SignalingStateStable,
		iceConnState:   ICEConnectionStateNew,
		iceGatherState: ICEGatheringStateNew,
		connState:      PeerConnectionStateNew,
		ssrcReceivers:      map[uint32]*RTPReceiver{},
		announcedReceivers: map[*RTPReceiver]bool{},
		nextDCStreamID:     1,
	}

	pc.transportMux = mux.NewMux(ctx, mux.Config{Conn: conn, LoggerFactory: loggerFactory})

	stunEndpoint := pc.transportMux.NewEndpoint(mux.MatchSTUN)
	dtlsEndpoint := pc.transportMux.NewEndpoint(mux.MatchDTLS)
	srtpEndpoint := pc.transportMux.NewEndpoint(mux.MatchSRTP)
	srtcpEndpoint := pc.transportMux.NewEndpoint(mux.MatchSRTCP)

	pc.iceAgent = ice.NewAgent(ice.Config{
		IsControlling: true,
		Servers:       iceServersFrom(config.ICEServers),
		Conn:          stunEndpoint,
	})
	pc.iceAgent.OnConnectionStateChange(pc.handleICEConnectionStateChange)
	pc.iceAgent.OnCandidate(pc.handleLocalCandidate)
	pc.iceAgent.OnSelectedPairChange(pc.handleSelectedPairChange)

	pc.stunEndpoint = stunEndpoint
	pc.dtlsEndpoint = dtlsEndpoint
	pc.srtpEndpoint = srtpEndpoint
	pc.srtcpEndpoint = srtcpEndpoint

	go pc.iceAgent.Run(ctx)
	go pc.iceReadLoop()

	return pc, nil
}

// iceReadLoop feeds every inbound packet demultiplexed to the STUN
// endpoint into the ICE agent: a reply to one of the agent's own
// connectivity checks resolves the matching Transact call, and an
// inbound check from the peer gets a Binding success response written
// back. Without this loop neither side of a real two-agent exchange
// could ever complete a connectivity check.
func (pc *PeerConnection) iceReadLoop() {
	buf := make([]byte, 1500)
	for {
		n, from, err := pc.stunEndpoint.ReadFrom(buf)
		if err != nil {
			return
		}
		resp := pc.iceAgent.HandleSTUNPacket(append([]byte(nil), buf[:n]...), from)
		if resp != nil {
			_, _ = pc.stunEndpoint.WriteTo(resp, from)
		}
	}
}

func certificateFor(config Configuration) (*Certificate, error) {
	if len(config.Certificates) > 0 {
		return &config.Certificates[0], nil
	}
	return generateCertificate()
}

func iceServersFrom(servers []ICEServer) []ice.Server {
	out := make([]ice.Server, 0, len(servers))
	for _, s := range servers {
		for _, u := range s.URLs {
			out = append(out, ice.Server{URL: u, Username: s.Username, Credential: s.Credential})
		}
	}
	return out
}

// GetConfiguration returns the configuration currently in effect.
func (pc *PeerConnection) GetConfiguration() Configuration {
	pc.mu.Lock()
	defer pc.mu.Unlock()
	return pc.config
}

// SetConfiguration updates ICE servers and policy; per RFC 8829 this
// does not itself trigger renegotiation.
func (pc *PeerConnection) SetConfiguration(config Configuration) error {
	pc.mu.Lock()
	defer pc.mu.Unlock()
	if pc.closed {
		return errInvalidState(ErrConnectionClosed)
	}
	pc.config = config
	return nil
}

// SignalingState returns the current offer/answer negotiation state.
func (pc *PeerConnection) SignalingState() SignalingState {
	pc.mu.Lock()
	defer pc.mu.Unlock()
	return pc.signalingState
}

// ICEConnectionState returns the current ICE transport state.
func (pc *PeerConnection) ICEConnectionState() ICEConnectionState {
	pc.mu.Lock()
	defer pc.mu.Unlock()
	return pc.iceConnState
}

// ICEGatheringState returns the current candidate gathering state.
func (pc *PeerConnection) ICEGatheringState() ICEGatheringState {
	pc.mu.Lock()
	defer pc.mu.Unlock()
	return pc.iceGatherState
}

// ConnectionState returns the aggregate connection state.
func (pc *PeerConnection) ConnectionState() PeerConnectionState {
	pc.mu.Lock()
	defer pc.mu.Unlock()
	return pc.connState
}

// OnICECandidate registers the listener fired once per gathered local
// candidate, and once more with a nil candidate at end-of-candidates.
func (pc *PeerConnection) OnICECandidate(f func(*ICECandidate)) {
	pc.mu.Lock()
	pc.onICECandidate = func(c ICECandidate) {
		if c == (ICECandidate{}) {
			f(nil)
			return
		}
		f(&c)
	}
	pc.mu.Unlock()
}

// OnICEGatheringStateChange registers the gathering-state listener.
func (pc *PeerConnection) OnICEGatheringStateChange(f func(ICEGatheringState)) {
	pc.mu.Lock()
	pc.onICEGatheringStateChange = f
	pc.mu.Unlock()
}

// OnICEConnectionStateChange registers the ICE connection-state listener.
func (pc *PeerConnection) OnICEConnectionStateChange(f func(ICEConnectionState)) {
	pc.mu.Lock()
	pc.onICEConnectionStateChange = f
	pc.mu.Unlock()
}

// OnConnectionStateChange registers the aggregate connection-state listener.
func (pc *PeerConnection) OnConnectionStateChange(f func(PeerConnectionState)) {
	pc.mu.Lock()
	pc.onConnectionStateChange = f
	pc.mu.Unlock()
}

// OnSignalingStateChange registers the signaling-state listener.
func (pc *PeerConnection) OnSignalingStateChange(f func(SignalingState)) {
	pc.mu.Lock()
	pc.onSignalingStateChange = f
	pc.mu.Unlock()
}

// OnNegotiationNeeded registers the listener fired at most once per
// coalesced group of addTransceiver/createDataChannel calls, and only
// while signaling is stable. RTPTransceiver.SetDirection does not fire
// it.
func (pc *PeerConnection) OnNegotiationNeeded(f func()) {
	pc.mu.Lock()
	pc.onNegotiationNeeded = f
	pc.mu.Unlock()
}

// OnTrack registers the listener fired once per RTPReceiver, when the
// receiver is first bound to an inbound SSRC; its OnReceiveRTP
// callback delivers the parsed packets.
func (pc *PeerConnection) OnTrack(f func(*RTPReceiver)) {
	pc.mu.Lock()
	pc.onTrack = f
	pc.mu.Unlock()
}

// OnDataChannel registers the listener fired once per DataChannel the
// remote peer opens on a stream not already opened locally.
func (pc *PeerConnection) OnDataChannel(f func(*DataChannel)) {
	pc.mu.Lock()
	pc.onDataChannel = f
	pc.mu.Unlock()
}

// AddTransceiver adds a new RTPTransceiver of the given kind and marks
// negotiation needed.
func (pc *PeerConnection) AddTransceiver(kind RTPCodecType, init RTPTransceiverInit) (*RTPTransceiver, error) {
	pc.mu.Lock()
	if pc.closed {
		pc.mu.Unlock()
		return nil, errInvalidState(ErrConnectionClosed)
	}
	t := newRTPTransceiver(kind, init)
	pc.transceivers = append(pc.transceivers, t)
	if pc.srtpSendCtx != nil {
		t.Sender().bindTransport(pc.srtpSendCtx.ProtectRTP, pc.srtpEndpoint.Write)
	}
	pc.mu.Unlock()

	pc.markNegotiationNeeded()
	return t, nil
}

// GetTransceivers returns every transceiver added so far, in
// declaration order.
func (pc *PeerConnection) GetTransceivers() []*RTPTransceiver {
	pc.mu.Lock()
	defer pc.mu.Unlock()
	return append([]*RTPTransceiver(nil), pc.transceivers...)
}

// CreateDataChannel creates a new DataChannel. The first DataChannel
// created on a PeerConnection marks negotiation needed (subsequent
// ones reuse the already-negotiated SCTP association).
func (pc *PeerConnection) CreateDataChannel(label string, init *DataChannelInit) (*DataChannel, error) {
	pc.mu.Lock()
	if pc.closed {
		pc.mu.Unlock()
		return nil, errInvalidState(ErrConnectionClosed)
	}

	ordered := true
	var maxRetransmits, maxPacketLifeTime *uint16
	protocol := ""
	negotiated := false
	var id uint16
	if init != nil {
		if init.Ordered != nil {
			ordered = *init.Ordered
		}
		maxRetransmits = init.MaxRetransmits
		maxPacketLifeTime = init.MaxPacketLifeTime
		protocol = init.Protocol
		negotiated = init.Negotiated
		if init.ID != nil {
			id = *init.ID
		}
	}
	if !negotiated {
		id = pc.nextDCStreamID
		pc.nextDCStreamID += 2
	}

	dc := &DataChannel{
		state: DataChannelStateConnecting,
		params: DataChannelParameters{
			Label:             label,
			ID:                id,
			Ordered:           ordered,
			MaxPacketLifeTime: maxPacketLifeTime,
			MaxRetransmits:    maxRetransmits,
			Protocol:          protocol,
			Negotiated:        negotiated,
		},
	}

	firstChannel := !pc.haveDataChannel
	pc.haveDataChannel = true
	pc.dataChannels = append(pc.dataChannels, dc)
	assoc := pc.assoc
	pc.mu.Unlock()

	if assoc != nil {
		pc.bindDataChannel(dc, true)
	}

	if firstChannel {
		pc.markNegotiationNeeded()
	}
	return dc, nil
}

func (pc *PeerConnection) bindDataChannel(dc *DataChannel, clientInitiated bool) {
	stream, err := pc.assoc.OpenStream(dc.params.ID, sctp.PayloadTypeWebRTCBinary)
	if err != nil {
		return
	}
	stream.SetUnordered(!dc.params.Ordered)
	dc.mu.Lock()
	dc.stream = stream
	dc.assoc = pc.assoc
	dc.mu.Unlock()
	go dc.readLoop(clientInitiated)
}

// AddICECandidate delivers a trickled remote candidate to the ICE agent.
func (pc *PeerConnection) AddICECandidate(init ICECandidateInit) error {
	c, err := ice.ParseCandidate(init.Candidate)
	if err != nil {
		return errSyntax(err)
	}
	pc.mu.Lock()
	agent := pc.iceAgent
	pc.mu.Unlock()
	agent.AddRemoteCandidate(c)
	return nil
}

// RestartIce forces a fresh ICE generation, causing the next
// CreateOffer to include new ufrag/pwd.
func (pc *PeerConnection) RestartIce() error {
	pc.mu.Lock()
	if pc.closed {
		pc.mu.Unlock()
		return errInvalidState(ErrConnectionClosed)
	}
	agent := pc.iceAgent
	pc.mu.Unlock()
	agent.Restart()
	pc.markNegotiationNeeded()
	return nil
}

// CreateOffer renders the current transceiver/data-channel set into a
// local-role SDP offer; it does not apply it (call SetLocalDescription
// for that).
func (pc *PeerConnection) CreateOffer() (SessionDescription, error) {
	pc.mu.Lock()
	defer pc.mu.Unlock()
	if pc.closed {
		return SessionDescription{}, errInvalidState(ErrConnectionClosed)
	}

	desc, err := pc.buildSessionDescriptionLocked(sdp.ConnectionRoleActpass)
	if err != nil {
		return SessionDescription{}, err
	}
	return SessionDescription{Type: SDPTypeOffer, SDP: desc}, nil
}

// CreateAnswer renders a local-role SDP answer against the currently
// set remote offer. The DTLS role is fixed opposite the remote's
// setup attribute, per RFC 5763 §5 (the answerer must not send actpass).
func (pc *PeerConnection) CreateAnswer() (SessionDescription, error) {
	pc.mu.Lock()
	defer pc.mu.Unlock()
	if pc.closed {
		return SessionDescription{}, errInvalidState(ErrConnectionClosed)
	}
	if pc.remote == nil {
		return SessionDescription{}, errNegotiation(ErrNoRemoteDescription)
	}

	role := sdp.ConnectionRoleActive
	if pc.remote.role == sdp.ConnectionRoleActive {
		role = sdp.ConnectionRolePassive
	}

	desc, err := pc.buildSessionDescriptionLocked(role)
	if err != nil {
		return SessionDescription{}, err
	}
	return SessionDescription{Type: SDPTypeAnswer, SDP: desc}, nil
}

func (pc *PeerConnection) buildSessionDescriptionLocked(role sdp.ConnectionRole) (string, error) {
	ufrag, pwd := pc.iceAgent.LocalCredentials()
	builder := sdpBuilder{
		iceUfrag:       ufrag,
		icePwd:         pwd,
		fingerprints:   pc.cert.GetFingerprints(),
		role:           role,
		candidates:     pc.localCandidatesLocked(),
		gatheringState: pc.iceGatherState,
	}

	mid := ""
	if pc.haveDataChannel {
		mid = dataChannelMid
	}

	d, err := builder.buildSessionDescription(pc.transceivers, pc.config.Codecs, mid)
	if err != nil {
		return "", err
	}
	raw, err := d.Marshal()
	if err != nil {
		return "", errUnknown(err)
	}
	return string(raw), nil
}

func (pc *PeerConnection) localCandidatesLocked() []ICECandidate {
	return pc.gatheredCandidates
}

// SetLocalDescription validates and applies desc, assigning mids to
// any transceivers/data channels that don't have one yet and kicking
// off ICE gathering.
func (pc *PeerConnection) SetLocalDescription(desc SessionDescription) error {
	pc.mu.Lock()
	if pc.closed {
		pc.mu.Unlock()
		return errInvalidState(ErrConnectionClosed)
	}

	next, err := checkNextSignalingState(pc.signalingState, nextLocalState(pc.signalingState, desc.Type), stateChangeOpSetLocal, desc.Type)
	if err != nil {
		pc.mu.Unlock()
		return err
	}

	if desc.Type == SDPTypeOffer {
		pc.isOfferer = true
		pc.iceAgent.SetControlling(true)
	} else if desc.Type == SDPTypeAnswer {
		pc.iceAgent.SetControlling(false)
	}

	pc.assignMidsLocked()
	pc.pendingLocalDescription = &desc
	if next == SignalingStateStable {
		pc.currentLocalDescription = &desc
		pc.pendingLocalDescription = nil
	}
	pc.signalingState = next
	onSignalingStateChange := pc.onSignalingStateChange
	pc.mu.Unlock()

	if onSignalingStateChange != nil {
		onSignalingStateChange(next)
	}

	go pc.ensureGathering()
	pc.maybeStartTransport()
	return nil
}

// SetRemoteDescription validates and applies a remote offer or answer,
// parsing out ICE credentials, the DTLS fingerprint, and per-section
// mid/direction, then attempts to start the DTLS handshake if both
// descriptions and a selected ICE pair are available.
func (pc *PeerConnection) SetRemoteDescription(desc SessionDescription) error {
	parsed, err := desc.Unmarshal()
	if err != nil {
		return err
	}
	remote, err := parseRemoteSession(parsed)
	if err != nil {
		return err
	}

	pc.mu.Lock()
	if pc.closed {
		pc.mu.Unlock()
		return errInvalidState(ErrConnectionClosed)
	}

	next, err := checkNextSignalingState(pc.signalingState, nextRemoteState(pc.signalingState, desc.Type), stateChangeOpSetRemote, desc.Type)
	if err != nil {
		pc.mu.Unlock()
		return err
	}

	if desc.Type == SDPTypeOffer {
		pc.iceAgent.SetControlling(false)
	}

	pc.remote = remote
	pc.iceAgent.SetRemoteCredentials(remote.iceUfrag, remote.icePwd)
	for _, c := range remote.candidates {
		pc.iceAgent.AddRemoteCandidate(c.toICE())
	}
	for _, section := range remote.sections {
		if section.kind == mediaSectionApplication {
			pc.haveDataChannel = true
			continue
		}
		pc.reconcileTransceiverLocked(section)
	}

	pc.pendingRemoteDescription = &desc
	if next == SignalingStateStable {
		pc.currentRemoteDescription = &desc
		pc.pendingRemoteDescription = nil
	}
	pc.signalingState = next
	onSignalingStateChange := pc.onSignalingStateChange
	pc.mu.Unlock()

	if onSignalingStateChange != nil {
		onSignalingStateChange(next)
	}

	pc.maybeStartTransport()
	return nil
}

func (pc *PeerConnection) reconcileTransceiverLocked(section remoteSection) {
	kind := newRTPCodecType(section.kind)
	for _, t := range pc.transceivers {
		if t.Kind() == kind && t.Mid() == "" {
			t.setMid(section.mid)
			pc.bindRemoteSSRCsLocked(t, section)
			return
		}
	}
	t := newRTPTransceiver(kind, RTPTransceiverInit{Direction: section.direction})
	t.setMid(section.mid)
	pc.bindRemoteSSRCsLocked(t, section)
	pc.transceivers = append(pc.transceivers, t)
}

// bindRemoteSSRCsLocked pre-registers a negotiated primary/RTX SSRC
// pair on a transceiver's receiver, so routeInboundRTP doesn't need to
// fall back to first-packet binding and RTX packets unwrap correctly
// from the first one received. Callers must hold pc.mu.
func (pc *PeerConnection) bindRemoteSSRCsLocked(t *RTPTransceiver, section remoteSection) {
	if len(section.simulcastRIDs) > 0 {
		t.enableSimulcast(section.ridExtensionID, section.repairedExtID, section.simulcastRIDs)
	}
	if section.ssrc == 0 {
		return
	}
	recv := t.Receiver()
	recv.bindSSRC("", section.ssrc)
	pc.ssrcReceivers[section.ssrc] = recv
	if section.rtxSSRC != 0 {
		recv.SetRTX(section.rtxSSRC, section.rtxPT)
		pc.ssrcReceivers[section.rtxSSRC] = recv
	}
}

func (pc *PeerConnection) assignMidsLocked() {
	for i, t := range pc.transceivers {
		if t.Mid() == "" {
			t.setMid(fmt.Sprintf("%d", i))
		}
	}
}

func nextLocalState(cur SignalingState, t SDPType) SignalingState {
	switch {
	case t == SDPTypeOffer:
		return SignalingStateHaveLocalOffer
	case t == SDPTypeAnswer:
		return SignalingStateStable
	case t == SDPTypePranswer:
		return SignalingStateHaveLocalPranswer
	default:
		return cur
	}
}

func nextRemoteState(cur SignalingState, t SDPType) SignalingState {
	switch {
	case t == SDPTypeOffer:
		return SignalingStateHaveRemoteOffer
	case t == SDPTypeAnswer:
		return SignalingStateStable
	case t == SDPTypePranswer:
		return SignalingStateHaveRemotePranswer
	default:
		return cur
	}
}

// markNegotiationNeeded sets the dirty flag and, if signaling is
// currently stable, schedules a single coalesced onNegotiationNeeded
// callback on its own goroutine (standing in for the microtask the
// browser API uses).
func (pc *PeerConnection) markNegotiationNeeded() {
	pc.mu.Lock()
	pc.negotiationNeeded = true
	alreadyScheduled := pc.negotiationScheduled
	pc.negotiationScheduled = true
	pc.mu.Unlock()

	if alreadyScheduled {
		return
	}
	go func() {
		pc.mu.Lock()
		dirty := pc.negotiationNeeded && pc.signalingState == SignalingStateStable
		pc.negotiationNeeded = false
		pc.negotiationScheduled = false
		cb := pc.onNegotiationNeeded
		pc.mu.Unlock()
		if dirty && cb != nil {
			cb()
		}
	}()
}

func (pc *PeerConnection) ensureGathering() {
	pc.mu.Lock()
	if pc.iceGatherState != ICEGatheringStateNew {
		pc.mu.Unlock()
		return
	}
	pc.iceGatherState = ICEGatheringStateGathering
	servers := iceServersFrom(pc.config.ICEServers)
	agent := pc.iceAgent
	onChange := pc.onICEGatheringStateChange
	pc.mu.Unlock()

	if onChange != nil {
		onChange(ICEGatheringStateGathering)
	}
	_ = agent.Gather(pc.ctx, servers)

	pc.mu.Lock()
	pc.iceGatherState = ICEGatheringStateComplete
	onChange = pc.onICEGatheringStateChange
	onCandidate := pc.onICECandidate
	pc.mu.Unlock()

	if onCandidate != nil {
		onCandidate(ICECandidate{})
	}
	if onChange != nil {
		onChange(ICEGatheringStateComplete)
	}
}

func (pc *PeerConnection) handleLocalCandidate(c ice.Candidate) {
	pc.mu.Lock()
	pc.gatheredCandidates = append(pc.gatheredCandidates, newICECandidate(c, "", 0))
	cb := pc.onICECandidate
	pc.mu.Unlock()
	if cb != nil {
		cb(newICECandidate(c, "", 0))
	}
}

func (pc *PeerConnection) handleICEConnectionStateChange(s ice.ConnectionState) {
	mapped := newICEConnectionState(s)
	pc.mu.Lock()
	pc.iceConnState = mapped
	cb := pc.onICEConnectionStateChange
	connCb := pc.onConnectionStateChange
	pc.connState = peerConnectionStateFromICE(mapped)
	newConnState := pc.connState
	pc.mu.Unlock()

	if cb != nil {
		cb(mapped)
	}
	if connCb != nil {
		connCb(newConnState)
	}
}

func peerConnectionStateFromICE(s ICEConnectionState) PeerConnectionState {
	switch s {
	case ICEConnectionStateChecking:
		return PeerConnectionStateConnecting
	case ICEConnectionStateConnected, ICEConnectionStateCompleted:
		return PeerConnectionStateConnected
	case ICEConnectionStateFailed:
		return PeerConnectionStateFailed
	case ICEConnectionStateDisconnected:
		return PeerConnectionStateDisconnected
	case ICEConnectionStateClosed:
		return PeerConnectionStateClosed
	default:
		return PeerConnectionStateNew
	}
}

func (pc *PeerConnection) handleSelectedPairChange(p *ice.Pair) {
	if p == nil {
		return
	}
	addr, err := net.ResolveUDPAddr("udp4", fmt.Sprintf("%s:%d", p.Remote.Address, p.Remote.Port))
	if err != nil {
		return
	}
	pc.transportMux.SetRemote(addr)
	if local := pc.transportMux.LocalCandidateAddr(); local != nil {
		pc.log.Debugf("selected pair confirmed local address %s", local)
	}
	pc.maybeStartTransport()
}

// maybeStartTransport kicks off the DTLS handshake once local and
// remote descriptions are both applied and ICE has a selected pair;
// it is a no-op once the handshake has been started.
func (pc *PeerConnection) maybeStartTransport() {
	pc.mu.Lock()
	if pc.dtlsConn != nil || pc.remote == nil || pc.currentLocalDescription == nil && pc.pendingLocalDescription == nil {
		pc.mu.Unlock()
		return
	}
	if pc.iceAgent.SelectedPair() == nil {
		pc.mu.Unlock()
		return
	}

	role := dtls.RoleServer
	if pc.isOfferer {
		if pc.remote.role == sdp.ConnectionRoleActive {
			role = dtls.RoleServer
		} else {
			role = dtls.RoleClient
		}
	} else {
		if pc.remote.role == sdp.ConnectionRoleActive {
			role = dtls.RoleServer
		} else {
			role = dtls.RoleClient
		}
	}

	conn := dtls.NewConn(pc.dtlsEndpoint, dtls.Config{
		Role:            role,
		Certificate:     pc.cert.cert,
		PeerFingerprint: pc.remote.fingerprint.Value,
	})
	pc.dtlsConn = conn
	pc.mu.Unlock()

	go pc.runTransport(conn, role)
}

func (pc *PeerConnection) runTransport(conn *dtls.Conn, role dtls.Role) {
	if err := conn.Handshake(); err != nil {
		pc.log.Errorf("webrtc: dtls handshake failed: %v", err)
		pc.handleICEConnectionStateChange(ice.ConnectionStateFailed)
		return
	}

	keys := dtls.SplitSRTPKeys(conn.ExportedSRTPKeyingMaterial, 16, 12)
	var sendCtx, recvCtx *srtp.Context
	var err error
	if role == dtls.RoleClient {
		sendCtx, err = srtp.NewContext(keys.ClientWriteKey, keys.ClientWriteSalt)
		if err == nil {
			recvCtx, err = srtp.NewContext(keys.ServerWriteKey, keys.ServerWriteSalt)
		}
	} else {
		sendCtx, err = srtp.NewContext(keys.ServerWriteKey, keys.ServerWriteSalt)
		if err == nil {
			recvCtx, err = srtp.NewContext(keys.ClientWriteKey, keys.ClientWriteSalt)
		}
	}
	if err != nil {
		pc.log.Errorf("webrtc: derive srtp context: %v", err)
		return
	}

	pc.mu.Lock()
	pc.srtpSendCtx, pc.srtpRecvCtx = sendCtx, recvCtx
	haveDC := pc.haveDataChannel
	isClient := role == dtls.RoleClient
	for _, t := range pc.transceivers {
		t.Sender().bindTransport(sendCtx.ProtectRTP, pc.srtpEndpoint.Write)
	}
	pc.mu.Unlock()

	go pc.srtpReadLoop()
	go pc.srtcpReadLoop()
	go pc.rtcpReportLoop()

	if haveDC {
		pc.startSCTP(conn, isClient)
	}
}

func (pc *PeerConnection) startSCTP(conn *dtls.Conn, isClient bool) {
	assoc := sctp.NewAssociation(sctp.Config{
		IsClient: isClient,
		Send:     func(b []byte) error { _, err := conn.Write(b); return err },
	})

	pc.mu.Lock()
	pc.assoc = assoc
	channels := append([]*DataChannel(nil), pc.dataChannels...)
	pc.mu.Unlock()

	go pc.sctpReadLoop(conn, assoc)
	go pc.dcAcceptLoop(assoc)

	if isClient {
		if err := assoc.Start(); err != nil {
			pc.log.Errorf("webrtc: sctp association start: %v", err)
			return
		}
	}

	for _, dc := range channels {
		pc.bindDataChannel(dc, isClient)
	}
}

// dcAcceptLoop surfaces DataChannels the remote peer opens in-band: the
// very first DATA chunk referencing an unseen stream ID pushes a new
// *sctp.Stream onto the association's accept channel before the DCEP
// ChannelOpen payload it carries is delivered, so by the time
// AcceptStream returns here the channel's readLoop can answer that
// ChannelOpen itself.
func (pc *PeerConnection) dcAcceptLoop(assoc *sctp.Association) {
	for {
		stream, err := assoc.AcceptStream()
		if err != nil {
			return
		}
		dc := &DataChannel{
			state:  DataChannelStateConnecting,
			params: DataChannelParameters{ID: stream.StreamIdentifier(), Ordered: true},
			stream: stream,
			assoc:  assoc,
		}

		pc.mu.Lock()
		pc.dataChannels = append(pc.dataChannels, dc)
		cb := pc.onDataChannel
		pc.mu.Unlock()

		go dc.readLoop(false)
		if cb != nil {
			cb(dc)
		}
	}
}

func (pc *PeerConnection) sctpReadLoop(conn *dtls.Conn, assoc *sctp.Association) {
	buf := make([]byte, 16384)
	for {
		n, err := conn.Read(buf)
		if err != nil {
			return
		}
		if err := assoc.HandleInbound(append([]byte(nil), buf[:n]...)); err != nil {
			pc.log.Debugf("webrtc: sctp inbound: %v", err)
		}
	}
}

func (pc *PeerConnection) srtpReadLoop() {
	buf := make([]byte, 2048)
	for {
		n, err := pc.srtpEndpoint.Read(buf)
		if err != nil {
			return
		}
		pc.mu.Lock()
		recvCtx := pc.srtpRecvCtx
		pc.mu.Unlock()
		if recvCtx == nil {
			continue
		}
		p, err := recvCtx.UnprotectRTP(append([]byte(nil), buf[:n]...))
		if err != nil {
			continue
		}
		pc.routeInboundRTP(p)
	}
}

func (pc *PeerConnection) routeInboundRTP(p *rtp.Packet) {
	pc.mu.Lock()
	recv, ok := pc.ssrcReceivers[p.SSRC]
	if !ok {
		recv = pc.bindUnknownSSRCLocked(p)
	}
	var announce bool
	if recv != nil && !pc.announcedReceivers[recv] {
		announce = true
		pc.announcedReceivers[recv] = true
	}
	onTrack := pc.onTrack
	pc.mu.Unlock()

	if recv == nil {
		return
	}
	if announce && onTrack != nil {
		onTrack(recv)
	}
	recv.deliver(p)
}

// bindUnknownSSRCLocked classifies a packet on a not-yet-bound SSRC: a
// transceiver with simulcast negotiated gets first refusal, using its
// RID header extension to bind the SSRC under the right layer key
// rather than the non-simulcast fallback of just claiming the first
// receiver. Callers must hold pc.mu.
func (pc *PeerConnection) bindUnknownSSRCLocked(p *rtp.Packet) *RTPReceiver {
	for _, t := range pc.transceivers {
		recv := t.Receiver()
		if recv == nil || !recv.hasSimulcast() {
			continue
		}
		rid, isRepair := recv.simulcastRID(p)
		if rid == "" || isRepair {
			continue
		}
		recv.bindSSRC(rid, p.SSRC)
		pc.ssrcReceivers[p.SSRC] = recv
		return recv
	}
	for _, t := range pc.transceivers {
		if recv := t.Receiver(); recv != nil {
			pc.ssrcReceivers[p.SSRC] = recv
			recv.bindSSRC("", p.SSRC)
			return recv
		}
	}
	return nil
}

// srtcpReadLoop reads the SRTCP endpoint, unprotects each compound
// packet against the sender SSRC carried in its cleartext RTCP header
// (RFC 3711 §3.4 leaves the first packet's 8-byte header, including
// that SSRC, unencrypted), and dispatches NACK to sender-side
// retransmission and PLI/FIR to the sender's key-frame-request
// callback.
func (pc *PeerConnection) srtcpReadLoop() {
	buf := make([]byte, 2048)
	for {
		n, err := pc.srtcpEndpoint.Read(buf)
		if err != nil {
			return
		}
		if n < 8 {
			continue
		}
		pc.mu.Lock()
		recvCtx := pc.srtpRecvCtx
		senders := pc.senderBySSRCLocked()
		pc.mu.Unlock()
		if recvCtx == nil {
			continue
		}

		raw := append([]byte(nil), buf[:n]...)
		ssrc := binary.BigEndian.Uint32(raw[4:8])
		decoded, err := recvCtx.UnprotectRTCP(raw, ssrc)
		if err != nil {
			continue
		}
		packets, err := rtcp.UnmarshalCompound(decoded)
		if err != nil {
			continue
		}
		for _, p := range packets {
			pc.handleInboundRTCP(p, senders)
		}
	}
}

// senderBySSRCLocked indexes every transceiver's sender by its SSRC,
// used to look up which local sender a NACK/PLI/FIR's MediaSSRC
// targets. Callers must hold pc.mu.
func (pc *PeerConnection) senderBySSRCLocked() map[uint32]*RTPSender {
	out := make(map[uint32]*RTPSender, len(pc.transceivers))
	for _, t := range pc.transceivers {
		if s := t.Sender(); s != nil {
			out[s.SSRC()] = s
		}
	}
	return out
}

func (pc *PeerConnection) handleInboundRTCP(p rtcp.Packet, senders map[uint32]*RTPSender) {
	switch fb := p.(type) {
	case *rtcp.TransportLayerNack:
		s, ok := senders[fb.MediaSSRC]
		if !ok {
			return
		}
		for _, pair := range fb.Nacks {
			for _, seq := range pair.PacketList() {
				_ = s.Retransmit(seq)
			}
		}
	case *rtcp.PictureLossIndication:
		if s, ok := senders[fb.MediaSSRC]; ok {
			s.handlePLI()
		}
	case *rtcp.FullIntraRequest:
		if s, ok := senders[fb.MediaSSRC]; ok {
			s.handlePLI()
		}
	}
}

// rtcpReportLoop periodically emits receiver-side NACK+RR for every
// transceiver's receiver and sender-side SR for every transceiver's
// sender, protected under SRTCP and written to the remote peer.
func (pc *PeerConnection) rtcpReportLoop() {
	ticker := time.NewTicker(rtcpReportInterval)
	defer ticker.Stop()
	for {
		select {
		case <-pc.ctx.Done():
			return
		case now := <-ticker.C:
			pc.sendRTCPReports(now)
		}
	}
}

func (pc *PeerConnection) sendRTCPReports(now time.Time) {
	pc.mu.Lock()
	sendCtx := pc.srtpSendCtx
	transceivers := append([]*RTPTransceiver(nil), pc.transceivers...)
	pc.mu.Unlock()
	if sendCtx == nil {
		return
	}

	for _, t := range transceivers {
		var packets []rtcp.Packet

		if recv := t.Receiver(); recv != nil {
			if ssrc := recv.MediaSSRC(); ssrc != 0 {
				rr := rtcp.ReceiverReport{SSRC: ssrc, Reports: []rtcp.ReceptionReport{recv.ReceiverReport()}}
				packets = append(packets, rr)
				if nacks := recv.PendingNACKs(now); len(nacks) > 0 {
					packets = append(packets, &rtcp.TransportLayerNack{SenderSSRC: ssrc, MediaSSRC: ssrc, Nacks: nacks})
				}
			}
		}
		if sender := t.Sender(); sender != nil {
			packets = append(packets, sender.SenderReport(now, 0))
		}
		if len(packets) == 0 {
			continue
		}

		raw, err := rtcp.MarshalCompound(packets)
		if err != nil {
			continue
		}
		ssrc := uint32(0)
		if sender := t.Sender(); sender != nil {
			ssrc = sender.SSRC()
		}
		protected, err := sendCtx.ProtectRTCP(raw, ssrc)
		if err != nil {
			continue
		}
		if _, err := pc.srtcpEndpoint.Write(protected); err != nil {
			pc.log.Debugf("webrtc: write rtcp: %v", err)
		}
	}
}

// Close tears down the connection: stops every transceiver, closes
// every DataChannel and the SCTP association, then closes the ICE
// agent and the transport mux. The DTLS connection has no close step
// of its own: no close_notify alert is sent.
func (pc *PeerConnection) Close() error {
	pc.mu.Lock()
	if pc.closed {
		pc.mu.Unlock()
		return nil
	}
	pc.closed = true
	pc.signalingState = SignalingStateClosed
	for _, t := range pc.transceivers {
		_ = t.Stop()
	}
	channels := append([]*DataChannel(nil), pc.dataChannels...)
	assoc := pc.assoc
	conn := pc.dtlsConn
	agent := pc.iceAgent
	transportMux := pc.transportMux
	pc.mu.Unlock()

	for _, dc := range channels {
		_ = dc.Close()
	}
	if assoc != nil {
		_ = assoc.Close()
	}
	_ = conn
	pc.cancel()
	if agent != nil {
		_ = agent.Close()
	}
	if transportMux != nil {
		_ = transportMux.Close()
	}

	pc.mu.Lock()
	pc.connState = PeerConnectionStateClosed
	cb := pc.onConnectionStateChange
	pc.mu.Unlock()
	if cb != nil {
		cb(PeerConnectionStateClosed)
	}
	return nil
}
