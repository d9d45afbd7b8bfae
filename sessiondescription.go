package webrtc

import (
	"fmt"

	"github.com/pion/sdp/v3"
)

// SessionDescription exposes a local or remote session description.
// The parsed form is cached lazily since most callers
// only need the type/sdp pair.
type SessionDescription struct {
	Type SDPType `json:"type"`
	SDP  string  `json:"sdp"`

	parsed *sdp.SessionDescription
}

// Unmarshal lazily parses the SDP text, grounded on pion/webrtc's
// SessionDescription.Unmarshal (lenient on LF-only input,
// since pion/sdp/v3's UnmarshalString already tolerates it).
func (sd *SessionDescription) Unmarshal() (*sdp.SessionDescription, error) {
	if sd.parsed != nil {
		return sd.parsed, nil
	}
	parsed := &sdp.SessionDescription{}
	if err := parsed.UnmarshalString(sd.SDP); err != nil {
		return nil, errSyntax(fmt.Errorf("unmarshal sdp: %w", err))
	}
	sd.parsed = parsed
	return parsed, nil
}
