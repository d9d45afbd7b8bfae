package mux

import (
	"net"
	"time"
)

// Endpoint is a net.Conn view onto one demultiplexed packet class
// (STUN, DTLS, SRTP, ...), backed by a buffered queue the Mux's read
// loop feeds. Grounded on pion/webrtc's internal/mux.Endpoint. Read
// deadlines are forwarded to the buffer, since the DTLS flight loop
// times its retransmissions with SetReadDeadline; write deadlines are
// stubs.
type Endpoint struct {
	mux    *Mux
	buffer interface {
		Read([]byte) (int, error)
		Write([]byte) (int, error)
		Close() error
		SetLimitSize(int)
		SetReadDeadline(time.Time) error
	}
}

// Read blocks until a packet matching this Endpoint's MatchFunc
// arrives.
func (e *Endpoint) Read(b []byte) (int, error) {
	return e.buffer.Read(b)
}

// ReadFrom satisfies net.PacketConn for endpoints (e.g. the STUN
// endpoint the ICE agent reads from directly) that need the sender
// address alongside the payload; since the Mux has already demuxed
// the packet, the address returned is simply the peer it last learned.
func (e *Endpoint) ReadFrom(b []byte) (int, net.Addr, error) {
	n, err := e.buffer.Read(b)
	return n, e.mux.remoteAddr(), err
}

// WriteTo writes b to the Mux's underlying socket, addressed to addr.
func (e *Endpoint) WriteTo(b []byte, addr net.Addr) (int, error) {
	return e.mux.conn.WriteTo(b, addr)
}

// Write writes b to the Mux's underlying socket, addressed to the
// currently known remote peer.
func (e *Endpoint) Write(b []byte) (int, error) {
	return e.mux.conn.WriteTo(b, e.mux.remoteAddr())
}

// LocalAddr returns the underlying socket's local address.
func (e *Endpoint) LocalAddr() net.Addr { return e.mux.conn.LocalAddr() }

// LocalCandidateAddr returns the kernel-reported destination address of
// the most recently received packet (see Mux.LocalCandidateAddr), or
// nil if unavailable.
func (e *Endpoint) LocalCandidateAddr() net.IP { return e.mux.LocalCandidateAddr() }

// RemoteAddr returns the peer address the Mux has learned so far.
func (e *Endpoint) RemoteAddr() net.Addr { return e.mux.remoteAddr() }

// SetDeadline sets the read deadline; writes have no deadline.
func (e *Endpoint) SetDeadline(t time.Time) error { return e.buffer.SetReadDeadline(t) }

// SetReadDeadline makes a pending or future Read return a timeout
// error once t has passed.
func (e *Endpoint) SetReadDeadline(t time.Time) error { return e.buffer.SetReadDeadline(t) }

// SetWriteDeadline is a stub.
func (e *Endpoint) SetWriteDeadline(time.Time) error { return nil }

// Close unregisters the Endpoint from its Mux and releases its buffer.
func (e *Endpoint) Close() error {
	e.mux.RemoveEndpoint(e)
	return e.buffer.Close()
}
