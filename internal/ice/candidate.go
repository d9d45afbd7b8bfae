// Package ice implements the Interactive Connectivity Establishment
// agent (RFC 8445): candidate gathering, connectivity checks, pair
// prioritization and nomination, and the state machine the session
// controller observes. It is grounded on pion/webrtc's
// pre-split in-repo ICE implementation (pkg/ice, internal/ice) from
// before pion/ice became its own module.
package ice

import (
	"fmt"
	"strconv"
	"strings"
)

// CandidateType is one of the four RFC 8445 candidate types.
type CandidateType int

// Candidate types, ordered by the type preference RFC 8445 §5.1.2.2
// assigns them (host highest, relay lowest).
const (
	CandidateTypeHost CandidateType = iota
	CandidateTypePeerReflexive
	CandidateTypeServerReflexive
	CandidateTypeRelay
)

func (t CandidateType) String() string {
	switch t {
	case CandidateTypeHost:
		return "host"
	case CandidateTypePeerReflexive:
		return "prflx"
	case CandidateTypeServerReflexive:
		return "srflx"
	case CandidateTypeRelay:
		return "relay"
	default:
		return "unknown"
	}
}

// typePreference implements the type_pref term of RFC 8445 §5.1.2.1's
// priority formula.
func (t CandidateType) typePreference() uint32 {
	switch t {
	case CandidateTypeHost:
		return 126
	case CandidateTypePeerReflexive:
		return 110
	case CandidateTypeServerReflexive:
		return 100
	case CandidateTypeRelay:
		return 0
	default:
		return 0
	}
}

// Candidate is the immutable description of one ICE
// candidate.
type Candidate struct {
	Foundation     string
	Component      int
	Transport      string // "udp" (the only transport this stack gathers)
	Priority       uint32
	Address        string
	Port           int
	Type           CandidateType
	RelatedAddress string
	RelatedPort    int
	Generation     int
	Ufrag          string
}

// Priority computes the RFC 8445 §5.1.2 candidate priority:
// type_pref·2^24 + local_pref·2^8 + (256 - component_id).
func Priority(t CandidateType, localPref uint16, component int) uint32 {
	return t.typePreference()<<24 | uint32(localPref)<<8 | uint32(256-component)
}

// ToSDP renders the candidate as an SDP `a=candidate:` attribute value
// (without the "a=candidate:" prefix).
func (c Candidate) ToSDP() string {
	var b strings.Builder
	fmt.Fprintf(&b, "%s %d %s %d %s %d typ %s", c.Foundation, c.Component, c.Transport, c.Priority, c.Address, c.Port, c.Type)
	if c.RelatedAddress != "" {
		fmt.Fprintf(&b, " raddr %s rport %d", c.RelatedAddress, c.RelatedPort)
	}
	fmt.Fprintf(&b, " generation %d", c.Generation)
	if c.Ufrag != "" {
		fmt.Fprintf(&b, " ufrag %s", c.Ufrag)
	}
	return b.String()
}

// ParseCandidate parses the SDP `a=candidate:` grammar,
// accepting the value with or without the "candidate:" prefix.
func ParseCandidate(s string) (Candidate, error) {
	s = strings.TrimPrefix(strings.TrimSpace(s), "candidate:")
	fields := strings.Fields(s)
	if len(fields) < 8 {
		return Candidate{}, fmt.Errorf("ice: malformed candidate %q", s)
	}

	component, err := strconv.Atoi(fields[1])
	if err != nil {
		return Candidate{}, fmt.Errorf("ice: bad component in %q: %w", s, err)
	}
	priority, err := strconv.ParseUint(fields[3], 10, 32)
	if err != nil {
		return Candidate{}, fmt.Errorf("ice: bad priority in %q: %w", s, err)
	}
	port, err := strconv.Atoi(fields[5])
	if err != nil {
		return Candidate{}, fmt.Errorf("ice: bad port in %q: %w", s, err)
	}
	if fields[6] != "typ" {
		return Candidate{}, fmt.Errorf("ice: expected 'typ' in %q", s)
	}

	c := Candidate{
		Foundation: fields[0],
		Component:  component,
		Transport:  fields[2],
		Priority:   uint32(priority),
		Address:    fields[4],
		Port:       port,
		Type:       parseCandidateType(fields[7]),
	}

	for i := 8; i+1 < len(fields); i += 2 {
		switch fields[i] {
		case "raddr":
			c.RelatedAddress = fields[i+1]
		case "rport":
			rport, err := strconv.Atoi(fields[i+1])
			if err == nil {
				c.RelatedPort = rport
			}
		case "generation":
			gen, err := strconv.Atoi(fields[i+1])
			if err == nil {
				c.Generation = gen
			}
		case "ufrag":
			c.Ufrag = fields[i+1]
		}
	}

	return c, nil
}

func parseCandidateType(s string) CandidateType {
	switch s {
	case "host":
		return CandidateTypeHost
	case "prflx":
		return CandidateTypePeerReflexive
	case "srflx":
		return CandidateTypeServerReflexive
	case "relay":
		return CandidateTypeRelay
	default:
		return CandidateTypeHost
	}
}
