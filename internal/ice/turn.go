package ice

import (
	"context"
	"encoding/binary"
	"net"
	"strings"
	"time"

	"github.com/vela-rtc/webrtc/internal/stun"
)

// defaultAllocationLifetime is the TURN allocation lifetime requested
// when none is specified by the server (RFC 5766 §2.2 default 600s).
const defaultAllocationLifetime = 600 * time.Second

// RelaySession holds the state of one active TURN allocation: its
// relayed transport address and the refresh timer that renews it at
// lifetime/2.
type RelaySession struct {
	RelayedAddress string
	RelayedPort    int
	lifetime       time.Duration
	server         *net.UDPAddr
	username       string
	realm          string
	nonce          string
	password       string
}

// gatherRelay performs a TURN Allocate exchange. It first sends an
// unauthenticated Allocate; the REALM and NONCE of a 401 reply are not
// read, so any error on that first Allocate (a 401 included) ends the
// exchange without a relay candidate. Only when the first Allocate
// succeeds does an Allocate with USERNAME and MESSAGE-INTEGRITY (empty
// REALM and NONCE) follow.
func (a *Agent) gatherRelay(ctx context.Context, srv Server, generation int, ufrag string) {
	if a.stunClient == nil {
		return
	}
	host := strings.TrimPrefix(srv.URL, "turn:")
	server, err := net.ResolveUDPAddr("udp", host)
	if err != nil {
		return
	}

	req := stun.NewRequest(stun.MethodAllocate)
	req.Add(stun.AttrRequestedTransport, []byte{17, 0, 0, 0}) // UDP = 17

	resp, err := a.stunClient.Transact(ctx, req, server, nil)
	var realm, nonce string
	if txErr, ok := err.(*stun.TransactionError); ok && txErr.Code == 401 {
		// The transaction layer surfaces only the error code, not the
		// response's attributes, so realm and nonce stay empty and the
		// check below returns.
	}
	if err != nil && realm == "" {
		return
	}

	rs := &RelaySession{server: server, username: srv.Username, password: srv.Credential, realm: realm, nonce: nonce}

	req2 := stun.NewRequest(stun.MethodAllocate)
	req2.Add(stun.AttrRequestedTransport, []byte{17, 0, 0, 0})
	req2.Add(stun.AttrUsername, []byte(srv.Username))
	req2.Add(stun.AttrRealm, []byte(realm))
	req2.Add(stun.AttrNonce, []byte(nonce))
	key := stun.LongTermKey(srv.Username, realm, srv.Credential)

	resp2, err := a.stunClient.Transact(ctx, req2, server, key)
	if err != nil {
		return
	}
	_ = resp

	attr, ok := resp2.Get(stun.AttrXORRelayedAddress)
	if !ok {
		return
	}
	xa, ok := stun.DecodeXORMappedAddress(attr.Value, resp2.TransactionID)
	if !ok {
		return
	}
	rs.RelayedAddress, rs.RelayedPort = xa.IP.String(), xa.Port
	rs.lifetime = defaultAllocationLifetime
	if lt, ok := resp2.Get(stun.AttrLifetime); ok && len(lt.Value) == 4 {
		rs.lifetime = time.Duration(binary.BigEndian.Uint32(lt.Value)) * time.Second
	}

	c := Candidate{
		Foundation:     hostFoundation(rs.RelayedAddress),
		Component:      1,
		Transport:      "udp",
		Priority:       Priority(CandidateTypeRelay, 65535, 1),
		Address:        rs.RelayedAddress,
		Port:           rs.RelayedPort,
		Type:           CandidateTypeRelay,
		RelatedAddress: server.IP.String(),
		RelatedPort:    server.Port,
		Generation:     generation,
		Ufrag:          ufrag,
	}
	a.addLocalCandidate(c)

	go a.refreshRelayLoop(ctx, rs)
}

// refreshRelayLoop sends a Refresh at lifetime/2 (RFC 5766 §2.2).
func (a *Agent) refreshRelayLoop(ctx context.Context, rs *RelaySession) {
	key := stun.LongTermKey(rs.username, rs.realm, rs.password)
	ticker := time.NewTicker(rs.lifetime / 2)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-a.stopCh:
			return
		case <-ticker.C:
			req := stun.NewRequest(stun.MethodRefresh)
			req.Add(stun.AttrUsername, []byte(rs.username))
			req.Add(stun.AttrRealm, []byte(rs.realm))
			req.Add(stun.AttrNonce, []byte(rs.nonce))
			lt := make([]byte, 4)
			binary.BigEndian.PutUint32(lt, uint32(rs.lifetime/time.Second))
			req.Add(stun.AttrLifetime, lt)
			_, _ = a.stunClient.Transact(ctx, req, rs.server, key)
		}
	}
}

// CreatePermission installs a permission for a remote host address on
// an active relay allocation, required before relayed data from that
// peer is forwarded (RFC 5766 §9).
func (a *Agent) CreatePermission(ctx context.Context, rs *RelaySession, peer net.IP) error {
	req := stun.NewRequest(stun.MethodCreatePermission)
	req.Add(stun.AttrXORPeerAddress, stun.EncodeXORMappedAddress(stun.XORAddress{IP: peer, Port: 0}, req.TransactionID))
	key := stun.LongTermKey(rs.username, rs.realm, rs.password)
	_, err := a.stunClient.Transact(ctx, req, rs.server, key)
	return err
}
