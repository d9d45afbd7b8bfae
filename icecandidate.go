package webrtc

import "github.com/vela-rtc/webrtc/internal/ice"

// ICECandidate is the public, JSON-able form of internal/ice.Candidate
// surfaced through onIceCandidate and addIceCandidate.
type ICECandidate struct {
	Foundation     string
	Component      uint16
	Protocol       string
	Priority       uint32
	Address        string
	Port           uint16
	Typ            string
	RelatedAddress string
	RelatedPort    uint16
	SDPMid         string
	SDPMLineIndex  uint16
}

// ICECandidateInit is the candidate form exchanged by signaling.
type ICECandidateInit struct {
	Candidate     string
	SDPMid        string
	SDPMLineIndex uint16
}

func newICECandidate(c ice.Candidate, mid string, mlineIndex uint16) ICECandidate {
	return ICECandidate{
		Foundation:     c.Foundation,
		Component:      uint16(c.Component),
		Protocol:       c.Transport,
		Priority:       c.Priority,
		Address:        c.Address,
		Port:           uint16(c.Port),
		Typ:            c.Type.String(),
		RelatedAddress: c.RelatedAddress,
		RelatedPort:    uint16(c.RelatedPort),
		SDPMid:         mid,
		SDPMLineIndex:  mlineIndex,
	}
}

// ToICECandidateInit renders the candidate as an addIceCandidate
// payload, round-tripping through the SDP a=candidate grammar.
func (c ICECandidate) ToICECandidateInit() ICECandidateInit {
	return ICECandidateInit{
		Candidate:     "candidate:" + c.toICE().ToSDP(),
		SDPMid:        c.SDPMid,
		SDPMLineIndex: c.SDPMLineIndex,
	}
}

func (c ICECandidate) toICE() ice.Candidate {
	return ice.Candidate{
		Foundation:     c.Foundation,
		Component:      int(c.Component),
		Transport:      c.Protocol,
		Priority:       c.Priority,
		Address:        c.Address,
		Port:           int(c.Port),
		Type:           parseICECandidateType(c.Typ),
		RelatedAddress: c.RelatedAddress,
		RelatedPort:    int(c.RelatedPort),
	}
}

func parseICECandidateType(s string) ice.CandidateType {
	switch s {
	case "host":
		return ice.CandidateTypeHost
	case "prflx":
		return ice.CandidateTypePeerReflexive
	case "srflx":
		return ice.CandidateTypeServerReflexive
	case "relay":
		return ice.CandidateTypeRelay
	default:
		return ice.CandidateTypeHost
	}
}
