package ice

import (
	"context"
	"net"
	"sort"
	"sync"
	"time"

	"github.com/vela-rtc/webrtc/internal/stun"
	"github.com/vela-rtc/webrtc/internal/util"
)

// Ta is the pacing interval between ordinary connectivity checks.
const Ta = 50 * time.Millisecond

// consentInterval and consentDisconnectAfter implement RFC 7675 consent
// freshness: a Binding is sent on the selected pair every
// consentInterval; more than consentInterval without a successful reply
// moves the agent to "disconnected", and more than
// consentDisconnectAfter without one moves it to "failed".
const (
	consentInterval       = 15 * time.Second
	consentDisconnectAfter = 30 * time.Second
)

// PacketConn is the minimal per-candidate socket contract the agent
// needs; internal/mux's UDP listener implements it in production.
type PacketConn interface {
	net.PacketConn
}

// Server describes a configured STUN or TURN server.
type Server struct {
	URL      string // "stun:host:port" or "turn:host:port"
	Username string
	Credential string
}

// Agent is the ICE agent. Its state is guarded by mu: public methods
// lock it directly, while Run paces ordinary and consent checks, each
// of which is sent from its own goroutine.
type Agent struct {
	mu sync.Mutex

	isControlling bool
	tieBreaker    uint64

	localUfrag, localPwd   string
	remoteUfrag, remotePwd string

	localCandidates  []Candidate
	remoteCandidates []Candidate
	pairs            []*Pair
	selectedPair     *Pair

	conn PacketConn

	connState     ConnectionState
	gatherState   GatheringState
	restartEpoch  int

	stunClient *stun.Client

	onConnectionStateChange func(ConnectionState)
	onCandidate             func(Candidate)
	onSelectedPairChange    func(*Pair)

	triggered []*Pair

	lastConsentSent    time.Time
	lastConsentSuccess time.Time

	stopCh chan struct{}
}

// Config configures a new Agent.
type Config struct {
	IsControlling bool
	Servers       []Server
	Conn          PacketConn
}

// NewAgent constructs an Agent with a fresh ufrag/pwd and tiebreaker,
// but does not start gathering; call Gather to do so.
func NewAgent(cfg Config) *Agent {
	a := &Agent{
		isControlling: cfg.IsControlling,
		tieBreaker:    uint64(util.RandUint32())<<32 | uint64(util.RandUint32()),
		localUfrag:    util.RandSeq(4),
		localPwd:      util.RandSeq(22),
		conn:          cfg.Conn,
		connState:     ConnectionStateNew,
		gatherState:   GatheringStateNew,
		stopCh:        make(chan struct{}),
	}
	if cfg.Conn != nil {
		a.stunClient = stun.NewClient(udpTransport{cfg.Conn})
	}
	return a
}

type udpTransport struct{ net.PacketConn }

func (t udpTransport) WriteTo(b []byte, addr net.Addr) (int, error) {
	return t.PacketConn.WriteTo(b, addr)
}

// LocalCredentials returns the local ufrag/pwd bound into SDP.
func (a *Agent) LocalCredentials() (ufrag, pwd string) {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.localUfrag, a.localPwd
}

// SetRemoteCredentials records the remote ufrag/pwd parsed from SDP.
func (a *Agent) SetRemoteCredentials(ufrag, pwd string) {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.remoteUfrag, a.remotePwd = ufrag, pwd
}

// SetControlling fixes the agent's controlling/controlled role. Must
// be called before Gather; the offerer/answerer role is only known
// once offer/answer negotiation starts, after the agent is constructed.
func (a *Agent) SetControlling(v bool) {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.isControlling = v
}

// IsControlling reports the agent's current controlling/controlled role.
func (a *Agent) IsControlling() bool {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.isControlling
}

// OnConnectionStateChange registers a listener for connection state
// transitions.
func (a *Agent) OnConnectionStateChange(f func(ConnectionState)) {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.onConnectionStateChange = f
}

// OnCandidate registers a listener invoked once per gathered local
// candidate.
func (a *Agent) OnCandidate(f func(Candidate)) {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.onCandidate = f
}

// OnSelectedPairChange registers a listener invoked when the selected
// pair changes (including becoming nil on restart).
func (a *Agent) OnSelectedPairChange(f func(*Pair)) {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.onSelectedPairChange = f
}

// SelectedPair returns the currently selected pair, or nil.
func (a *Agent) SelectedPair() *Pair {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.selectedPair
}

// AddRemoteCandidate adds a trickled remote candidate and forms new
// pairs against every local candidate gathered so far.
func (a *Agent) AddRemoteCandidate(c Candidate) {
	a.mu.Lock()
	defer a.mu.Unlock()

	for _, existing := range a.remoteCandidates {
		if existing == c {
			return
		}
	}
	a.remoteCandidates = append(a.remoteCandidates, c)

	for _, local := range a.localCandidates {
		a.formPairLocked(local, c)
	}
	a.seedFoundationsLocked()
}

func (a *Agent) formPairLocked(local, remote Candidate) {
	if local.Component != remote.Component {
		return
	}
	if ipFamily(local.Address) != ipFamily(remote.Address) {
		return
	}
	p := NewPair(local, remote, a.isControlling)
	a.pairs = append(a.pairs, p)
}

func ipFamily(addr string) int {
	ip := net.ParseIP(addr)
	if ip == nil {
		return 0
	}
	if ip.To4() != nil {
		return 4
	}
	return 6
}

// addLocalCandidate registers a gathered local candidate, pairs it
// against every known remote candidate, and notifies listeners.
func (a *Agent) addLocalCandidate(c Candidate) {
	a.mu.Lock()
	a.localCandidates = append(a.localCandidates, c)
	for _, remote := range a.remoteCandidates {
		a.formPairLocked(c, remote)
	}
	a.seedFoundationsLocked()
	cb := a.onCandidate
	a.mu.Unlock()

	if cb != nil {
		cb(c)
	}
}

// seedFoundationsLocked implements RFC 8445 §6.1.2.6's initial
// scheduling state: exactly one pair per foundation starts "waiting",
// the rest start "frozen". Must be called with a.mu held.
func (a *Agent) seedFoundationsLocked() {
	seen := make(map[string]bool)
	for _, p := range a.pairs {
		if p.State != PairFrozen {
			continue
		}
		f := p.Foundation()
		if !seen[f] {
			p.State = PairWaiting
			seen[f] = true
		}
	}
}

// nextOrdinaryCheck returns the head of the triggered-check queue if
// there is one, else the highest-priority pair in state Waiting. It
// unfreezes nothing; that happens in unfreezeFoundationLocked once a
// check succeeds.
func (a *Agent) nextOrdinaryCheck() *Pair {
	a.mu.Lock()
	defer a.mu.Unlock()

	if len(a.triggered) > 0 {
		p := a.triggered[0]
		a.triggered = a.triggered[1:]
		return p
	}

	var candidates []*Pair
	for _, p := range a.pairs {
		if p.State == PairWaiting {
			candidates = append(candidates, p)
		}
	}
	if len(candidates) == 0 {
		return nil
	}
	sort.Slice(candidates, func(i, j int) bool { return candidates[i].Priority > candidates[j].Priority })
	return candidates[0]
}

// sendConnectivityCheck sends a Binding request for pair p and handles
// the response, promoting p to succeeded/failed and, when p is the
// controlling side's nominated pair, triggering nomination.
func (a *Agent) sendConnectivityCheck(ctx context.Context, p *Pair) {
	a.mu.Lock()
	p.State = PairInProgress
	req := stun.NewRequest(stun.MethodBinding)
	req.Add(stun.AttrPriority, priorityAttr(p.Local.Priority))
	if a.isControlling {
		req.Add(stun.AttrIceControlling, tieBreakerAttr(a.tieBreaker))
		if p.Nominated {
			req.Add(stun.AttrUseCandidate, nil)
		}
	} else {
		req.Add(stun.AttrIceControlled, tieBreakerAttr(a.tieBreaker))
	}
	req.Add(stun.AttrUsername, []byte(a.remoteUfrag+":"+a.localUfrag))
	p.LastCheckTxID = req.TransactionID
	key := stun.ShortTermKey(a.remotePwd)
	a.mu.Unlock()

	dest := &net.UDPAddr{IP: net.ParseIP(p.Remote.Address), Port: p.Remote.Port}
	resp, err := a.stunClient.Transact(ctx, req, dest, key)

	a.mu.Lock()
	defer a.mu.Unlock()
	if err != nil {
		p.State = PairFailed
		a.maybeFailLocked()
		return
	}
	_ = resp
	p.State = PairSucceeded
	if p == a.selectedPair {
		a.lastConsentSuccess = time.Now()
	}
	a.promoteIfBetterLocked(p)
	a.unfreezeFoundationLocked(p.Foundation())

	if a.isControlling && p.Nominated {
		a.selectPairLocked(p)
	}
}

func priorityAttr(v uint32) []byte {
	return []byte{byte(v >> 24), byte(v >> 16), byte(v >> 8), byte(v)}
}

func tieBreakerAttr(v uint64) []byte {
	b := make([]byte, 8)
	for i := 0; i < 8; i++ {
		b[i] = byte(v >> uint(56-8*i))
	}
	return b
}

// unfreezeFoundationLocked unfreezes the next frozen pair sharing
// foundation f, once its sibling has completed checking, per RFC
// 8445's "one pair per foundation" scheduling rule.
func (a *Agent) unfreezeFoundationLocked(f string) {
	for _, p := range a.pairs {
		if p.State == PairFrozen && p.Foundation() == f {
			p.State = PairWaiting
			return
		}
	}
}

// promoteIfBetterLocked updates the selected pair for the regular
// nomination path (RFC 8445 §8.1.1), when aggressive nomination isn't
// in use.
func (a *Agent) promoteIfBetterLocked(p *Pair) {
	if a.selectedPair == nil {
		// Regular nomination: mark as the nomination candidate but wait
		// for an explicit nominate step (controlling agent) or a
		// USE-CANDIDATE from the peer (controlled agent) before treating
		// it as selected.
		if !a.isControlling {
			return
		}
		if !p.Nominated {
			p.Nominated = true
			go a.sendConnectivityCheck(context.Background(), p)
		}
	}
}

// selectPairLocked finalizes p as the selected pair and transitions
// the connection state toward connected/completed.
func (a *Agent) selectPairLocked(p *Pair) {
	a.selectedPair = p
	a.lastConsentSuccess = time.Now()
	if a.connState != ConnectionStateCompleted {
		a.setStateLocked(ConnectionStateConnected)
	}
	if cb := a.onSelectedPairChange; cb != nil {
		go cb(p)
	}
}

func (a *Agent) maybeFailLocked() {
	for _, p := range a.pairs {
		if p.State != PairFailed {
			return
		}
	}
	if a.selectedPair == nil {
		a.setStateLocked(ConnectionStateFailed)
	}
}

func (a *Agent) setStateLocked(s ConnectionState) {
	if a.connState == s {
		return
	}
	a.connState = s
	if cb := a.onConnectionStateChange; cb != nil {
		go cb(s)
	}
}

// HandleInboundBinding answers an incoming connectivity check from the
// peer: validates MESSAGE-INTEGRITY against the local password, and if
// the request carries USE-CANDIDATE (controlled agent) promotes the
// matching pair to selected (RFC 8445 §7.3.1.5).
func (a *Agent) HandleInboundBinding(raw []byte, from net.Addr) []byte {
	msg, err := stun.Decode(raw)
	if err != nil || msg.Type.Method != stun.MethodBinding || msg.Type.Class != stun.ClassRequest {
		return nil
	}

	a.mu.Lock()
	key := stun.ShortTermKey(a.localPwd)
	if !stun.VerifyIntegrity(raw, msg, key) {
		a.mu.Unlock()
		return nil
	}

	udpFrom, _ := from.(*net.UDPAddr)
	var matched *Pair
	for _, p := range a.pairs {
		if udpFrom != nil && p.Remote.Address == udpFrom.IP.String() && p.Remote.Port == udpFrom.Port {
			matched = p
			break
		}
	}
	if matched == nil && udpFrom != nil {
		// Peer-reflexive candidate discovery:
		// an inbound check from an address we haven't paired yet is
		// promoted to a peer-reflexive remote candidate.
		prflx := Candidate{
			Foundation: util.RandSeq(8),
			Component:  1,
			Transport:  "udp",
			Priority:   Priority(CandidateTypePeerReflexive, 65535, 1),
			Address:    udpFrom.IP.String(),
			Port:       udpFrom.Port,
			Type:       CandidateTypePeerReflexive,
		}
		a.remoteCandidates = append(a.remoteCandidates, prflx)
		for _, local := range a.localCandidates {
			a.formPairLocked(local, prflx)
		}
		a.seedFoundationsLocked()
		for _, p := range a.pairs {
			if p.Remote == prflx {
				matched = p
				break
			}
		}
	}

	_, useCandidate := msg.Get(stun.AttrUseCandidate)
	if matched != nil && useCandidate && !a.isControlling {
		matched.Nominated = true
		if matched.State == PairSucceeded {
			a.selectPairLocked(matched)
		}
	}
	if matched != nil {
		a.triggered = append([]*Pair{matched}, a.triggered...)
	}
	a.mu.Unlock()

	resp := &stun.Message{Type: stun.Type{Class: stun.ClassSuccess, Method: stun.MethodBinding}, TransactionID: msg.TransactionID}
	xa := stun.XORAddress{IP: net.ParseIP(udpAddrIP(from)), Port: udpAddrPort(from)}
	resp.Add(stun.AttrXORMappedAddress, stun.EncodeXORMappedAddress(xa, msg.TransactionID))
	return stun.Encode(resp, key, true)
}

// HandleSTUNPacket demultiplexes one packet read off the agent's STUN
// socket: a reply to one of this agent's own outstanding Transact calls
// is routed there and yields no response of its own; anything else is
// treated as an inbound connectivity check and answered via
// HandleInboundBinding. The caller is responsible for writing a
// non-nil return value back to from.
func (a *Agent) HandleSTUNPacket(raw []byte, from net.Addr) []byte {
	if a.stunClient != nil && a.stunClient.HandlePacket(raw) {
		return nil
	}
	return a.HandleInboundBinding(raw, from)
}

func udpAddrIP(a net.Addr) string {
	if u, ok := a.(*net.UDPAddr); ok {
		return u.IP.String()
	}
	return ""
}

func udpAddrPort(a net.Addr) int {
	if u, ok := a.(*net.UDPAddr); ok {
		return u.Port
	}
	return 0
}

// Restart implements an ICE restart (RFC 8445 §4.4): regenerate
// ufrag/pwd, discard prior candidates and pairs (sockets are kept by
// the caller), and return to the "new" gathering state so the session
// controller's onNegotiationNeeded fires.
func (a *Agent) Restart() {
	a.mu.Lock()
	defer a.mu.Unlock()

	a.restartEpoch++
	a.localUfrag = util.RandSeq(4)
	a.localPwd = util.RandSeq(22)
	a.remoteUfrag, a.remotePwd = "", ""
	a.localCandidates = nil
	a.remoteCandidates = nil
	a.pairs = nil
	a.selectedPair = nil
	a.gatherState = GatheringStateNew
	a.setStateLocked(ConnectionStateNew)
}

// RestartGeneration returns the number of restarts so far, used as the
// candidate `generation` field.
func (a *Agent) RestartGeneration() int {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.restartEpoch
}

// Close tears down the agent: stops checks and releases its socket,
// as the first step of the PeerConnection close cascade.
func (a *Agent) Close() error {
	a.mu.Lock()
	a.setStateLocked(ConnectionStateClosed)
	conn := a.conn
	a.mu.Unlock()

	close(a.stopCh)
	if conn != nil {
		return conn.Close()
	}
	return nil
}

// Run drives the check scheduler (Ta pacing) and the consent freshness
// timer until Close is called.
func (a *Agent) Run(ctx context.Context) {
	ticker := time.NewTicker(Ta)
	consentTicker := time.NewTicker(consentInterval)
	defer ticker.Stop()
	defer consentTicker.Stop()

	a.mu.Lock()
	a.setStateLocked(ConnectionStateChecking)
	a.mu.Unlock()

	for {
		select {
		case <-a.stopCh:
			return
		case <-ctx.Done():
			return
		case <-ticker.C:
			if p := a.nextOrdinaryCheck(); p != nil {
				go a.sendConnectivityCheck(ctx, p)
			}
		case <-consentTicker.C:
			a.checkConsent(ctx)
		}
	}
}

func (a *Agent) checkConsent(ctx context.Context) {
	a.mu.Lock()
	p := a.selectedPair
	last := a.lastConsentSuccess
	a.mu.Unlock()
	if p == nil {
		return
	}

	elapsed := time.Since(last)
	a.mu.Lock()
	switch {
	case elapsed > consentDisconnectAfter:
		a.setStateLocked(ConnectionStateFailed)
	case elapsed > consentInterval:
		a.setStateLocked(ConnectionStateDisconnected)
	}
	a.mu.Unlock()

	go a.sendConnectivityCheck(ctx, p)
}
