package ice

import (
	"context"
	"net"
	"strings"
	"time"

	"github.com/vela-rtc/webrtc/internal/stun"
)

// defaultGatherTimeout caps candidate gathering before the agent
// declares itself "complete" regardless of outstanding STUN
// transactions.
const defaultGatherTimeout = 10 * time.Second

// Gather enumerates host candidates from local interfaces and, for
// each configured STUN/TURN server, sends a Binding request to derive
// a server-reflexive candidate. It blocks until every candidate source
// has resolved or defaultGatherTimeout elapses, then sets the
// gathering state to complete.
func (a *Agent) Gather(ctx context.Context, servers []Server) error {
	a.mu.Lock()
	a.gatherState = GatheringStateGathering
	generation := a.restartEpoch
	ufrag := a.localUfrag
	a.mu.Unlock()

	ctx, cancel := context.WithTimeout(ctx, defaultGatherTimeout)
	defer cancel()

	if err := a.gatherHostCandidates(generation, ufrag); err != nil {
		return err
	}

	for _, srv := range servers {
		if strings.HasPrefix(srv.URL, "stun:") || strings.HasPrefix(srv.URL, "turn:") {
			a.gatherServerReflexive(ctx, srv, generation, ufrag)
		}
	}

	a.mu.Lock()
	a.gatherState = GatheringStateComplete
	a.mu.Unlock()
	return nil
}

func (a *Agent) gatherHostCandidates(generation int, ufrag string) error {
	ifaces, err := net.Interfaces()
	if err != nil {
		return err
	}

	component := 1
	for _, iface := range ifaces {
		if iface.Flags&net.FlagUp == 0 || iface.Flags&net.FlagLoopback != 0 {
			continue
		}
		addrs, err := iface.Addrs()
		if err != nil {
			continue
		}
		for _, addr := range addrs {
			ipNet, ok := addr.(*net.IPNet)
			if !ok || ipNet.IP.IsLinkLocalUnicast() {
				continue
			}
			port := 0
			if a.conn != nil {
				if udpAddr, ok := a.conn.LocalAddr().(*net.UDPAddr); ok {
					port = udpAddr.Port
				}
			}
			c := Candidate{
				Foundation: hostFoundation(ipNet.IP.String()),
				Component:  component,
				Transport:  "udp",
				Priority:   Priority(CandidateTypeHost, 65535, component),
				Address:    ipNet.IP.String(),
				Port:       port,
				Type:       CandidateTypeHost,
				Generation: generation,
				Ufrag:      ufrag,
			}
			a.addLocalCandidate(c)
		}
	}
	return nil
}

func hostFoundation(addr string) string {
	// A real foundation also factors in candidate type and base address
	// (RFC 8445 §5.1.1.3); since this stack gathers one host candidate
	// per interface, the address alone is already unique per foundation
	// group.
	sum := 0
	for _, b := range []byte(addr) {
		sum = sum*31 + int(b)
	}
	if sum < 0 {
		sum = -sum
	}
	return itoa(sum)
}

func itoa(v int) string {
	if v == 0 {
		return "0"
	}
	var digits []byte
	for v > 0 {
		digits = append([]byte{byte('0' + v%10)}, digits...)
		v /= 10
	}
	return string(digits)
}

// gatherServerReflexive sends a STUN Binding request to srv and, on
// success, registers the XOR-MAPPED-ADDRESS as a server-reflexive
// candidate.
func (a *Agent) gatherServerReflexive(ctx context.Context, srv Server, generation int, ufrag string) {
	if a.stunClient == nil || a.conn == nil {
		return
	}
	host := strings.TrimPrefix(strings.TrimPrefix(srv.URL, "stun:"), "turn:")
	udpAddr, err := net.ResolveUDPAddr("udp", host)
	if err != nil {
		return
	}

	req := stun.NewRequest(stun.MethodBinding)
	resp, err := a.stunClient.Transact(ctx, req, udpAddr, nil)
	if err != nil || resp == nil {
		return
	}
	attr, ok := resp.Get(stun.AttrXORMappedAddress)
	if !ok {
		return
	}
	xa, ok := stun.DecodeXORMappedAddress(attr.Value, resp.TransactionID)
	if !ok {
		return
	}

	local := ""
	if ua, ok := a.conn.LocalAddr().(*net.UDPAddr); ok {
		local = ua.IP.String()
	}

	c := Candidate{
		Foundation:     hostFoundation(xa.IP.String()),
		Component:      1,
		Transport:      "udp",
		Priority:       Priority(CandidateTypeServerReflexive, 65535, 1),
		Address:        xa.IP.String(),
		Port:           xa.Port,
		Type:           CandidateTypeServerReflexive,
		RelatedAddress: local,
		RelatedPort:    udpAddr.Port,
		Generation:     generation,
		Ufrag:          ufrag,
	}
	a.addLocalCandidate(c)
}
