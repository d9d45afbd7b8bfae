// Package mux multiplexes STUN, DTLS, SRTP/SRTCP, and TURN ChannelData
// packets over a single UDP flow, demultiplexing by first byte per
// RFC 7983. It is grounded on pion/webrtc's
// internal/mux (Mux/Endpoint/MatchFunc), adapted to the smaller packet
// classification table this stack needs.
package mux

import (
	"context"
	"net"
	"sync"

	"github.com/pion/logging"
	"github.com/pion/transport/v4/packetio"
	"golang.org/x/net/ipv4"
)

// MatchFunc decides whether a packet belongs to a given Endpoint.
type MatchFunc func(b []byte) bool

// MatchSTUN matches STUN/TURN-framed bindings and allocate messages:
// first byte in 0-3.
func MatchSTUN(b []byte) bool { return len(b) > 0 && b[0] < 4 }

// MatchDTLS matches a DTLS record: first byte in 20-63.
func MatchDTLS(b []byte) bool { return len(b) > 0 && b[0] >= 20 && b[0] <= 63 }

// MatchTURNChannelData matches a TURN ChannelData framed payload:
// first byte in 64-79.
func MatchTURNChannelData(b []byte) bool { return len(b) > 0 && b[0] >= 64 && b[0] <= 79 }

// MatchSRTP matches RTP/RTCP: first byte in 128-191, with RTCP carved
// out by payload type 64-95 via MatchSRTCP below.
func MatchSRTP(b []byte) bool {
	return len(b) > 1 && b[0] >= 128 && b[0] <= 191 && !MatchSRTCP(b)
}

// MatchSRTCP matches RTCP specifically: same top-byte range as RTP,
// but with packet type in [192, 223] (i.e. second byte 192-223),
// covering SR/RR/SDES/BYE/APP/RTPFB/PSFB/XR.
func MatchSRTCP(b []byte) bool {
	return len(b) > 1 && b[0] >= 128 && b[0] <= 191 && b[1] >= 192 && b[1] <= 223
}

const maxBufferSize = 1000 * 1000

// Config collects Mux construction parameters.
type Config struct {
	Conn          net.PacketConn
	LoggerFactory logging.LoggerFactory
}

// Mux reads from a single net.PacketConn and fans packets out to
// Endpoints according to each Endpoint's MatchFunc, tried in
// registration order.
type Mux struct {
	lock      sync.RWMutex
	conn      net.PacketConn
	endpoints map[*Endpoint]MatchFunc
	order     []*Endpoint
	closed    chan struct{}
	log       logging.LeveledLogger

	// remote is learned from the first packet received (or set
	// explicitly once ICE has a selected pair) and used as the
	// destination for Endpoint.Conn.WriteTo.
	remote net.Addr

	// pconn is non-nil when the underlying socket is a UDP4 conn: the
	// transport binds a single wildcard socket (net.ListenUDP("udp4",
	// &net.UDPAddr{})), so the local address a host candidate should
	// advertise for a given interface isn't known from the socket
	// alone. ipv4.PacketConn's IP_PKTINFO control message reports the
	// destination address each inbound packet actually arrived on,
	// which the ICE agent uses to confirm a host candidate's address
	// is reachable rather than just locally enumerated.
	pconn         *ipv4.PacketConn
	lastLocalAddr net.IP
}

// NewMux constructs a Mux reading from cfg.Conn until ctx is done or
// Close is called.
func NewMux(ctx context.Context, cfg Config) *Mux {
	factory := cfg.LoggerFactory
	if factory == nil {
		factory = logging.NewDefaultLoggerFactory()
	}
	m := &Mux{
		conn:      cfg.Conn,
		endpoints: make(map[*Endpoint]MatchFunc),
		closed:    make(chan struct{}),
		log:       factory.NewLogger("mux"),
	}
	if udpConn, ok := cfg.Conn.(*net.UDPConn); ok {
		pconn := ipv4.NewPacketConn(udpConn)
		if err := pconn.SetControlMessage(ipv4.FlagDst, true); err == nil {
			m.pconn = pconn
		}
	}
	go m.readLoop(ctx)
	return m
}

// LocalCandidateAddr returns the destination address of the most
// recently received packet, as reported by the IP_PKTINFO control
// message, or nil if none has arrived yet or control messages aren't
// supported on this platform/socket.
func (m *Mux) LocalCandidateAddr() net.IP {
	m.lock.RLock()
	defer m.lock.RUnlock()
	return m.lastLocalAddr
}

// NewEndpoint registers a new demultiplexed Endpoint matched by f. Match
// functions are consulted in registration order, so register the most
// specific (e.g. MatchSRTCP before MatchSRTP is unnecessary here since
// MatchSRTP already excludes RTCP, but STUN must be registered before
// a catch-all).
func (m *Mux) NewEndpoint(f MatchFunc) *Endpoint {
	e := &Endpoint{
		mux:    m,
		buffer: packetio.NewBuffer(),
	}
	e.buffer.SetLimitSize(maxBufferSize)

	m.lock.Lock()
	m.endpoints[e] = f
	m.order = append(m.order, e)
	m.lock.Unlock()

	return e
}

// RemoveEndpoint unregisters e.
func (m *Mux) RemoveEndpoint(e *Endpoint) {
	m.lock.Lock()
	defer m.lock.Unlock()
	delete(m.endpoints, e)
	for i, o := range m.order {
		if o == e {
			m.order = append(m.order[:i], m.order[i+1:]...)
			break
		}
	}
}

// SetRemote pins the destination address used by Endpoint writes, set
// once the ICE agent has a selected pair.
func (m *Mux) SetRemote(addr net.Addr) {
	m.lock.Lock()
	defer m.lock.Unlock()
	m.remote = addr
}

func (m *Mux) remoteAddr() net.Addr {
	m.lock.RLock()
	defer m.lock.RUnlock()
	return m.remote
}

func (m *Mux) readLoop(ctx context.Context) {
	buf := make([]byte, 8192)
	for {
		select {
		case <-ctx.Done():
			return
		case <-m.closed:
			return
		default:
		}

		n, from, err := m.readFrom(buf)
		if err != nil {
			return
		}
		if m.remoteAddr() == nil {
			m.SetRemote(from)
		}
		m.dispatch(buf[:n])
	}
}

// readFrom reads one packet, preferring the ipv4.PacketConn path so the
// destination-address control message can be captured.
func (m *Mux) readFrom(buf []byte) (int, net.Addr, error) {
	if m.pconn != nil {
		n, cm, from, err := m.pconn.ReadFrom(buf)
		if err != nil {
			return 0, nil, err
		}
		if cm != nil {
			m.lock.Lock()
			m.lastLocalAddr = cm.Dst
			m.lock.Unlock()
		}
		return n, from, nil
	}
	return m.conn.ReadFrom(buf)
}

func (m *Mux) dispatch(b []byte) {
	m.lock.RLock()
	order := append([]*Endpoint(nil), m.order...)
	matchers := make(map[*Endpoint]MatchFunc, len(m.endpoints))
	for e, f := range m.endpoints {
		matchers[e] = f
	}
	m.lock.RUnlock()

	for _, e := range order {
		if matchers[e](b) {
			if _, err := e.buffer.Write(b); err != nil {
				m.log.Debugf("mux: endpoint buffer write: %v", err)
			}
			return
		}
	}
	m.log.Debugf("mux: no endpoint matched %d byte packet (first byte %#x)", len(b), firstByte(b))
}

func firstByte(b []byte) byte {
	if len(b) == 0 {
		return 0
	}
	return b[0]
}

// Close shuts down the Mux and every registered Endpoint.
func (m *Mux) Close() error {
	select {
	case <-m.closed:
		return nil
	default:
		close(m.closed)
	}

	m.lock.Lock()
	defer m.lock.Unlock()
	for e := range m.endpoints {
		_ = e.buffer.Close()
	}
	return m.conn.Close()
}
