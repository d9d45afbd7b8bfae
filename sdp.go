package webrtc

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/pion/sdp/v3"

	"github.com/vela-rtc/webrtc/internal/ice"
)

const (
	mediaSectionApplication = "application"
	sctpPort                = "5000"
)

// remoteSession is everything a SetRemoteDescription needs to pull out
// of the peer's SDP to drive negotiation. Grounded on
// pion/webrtc's extractICEDetails/extractFingerprint/getMidValue but
// collapsed into one pass per media section, since this stack always
// BUNDLEs onto a single transport.
type remoteSession struct {
	iceUfrag      string
	icePwd        string
	candidates    []ICECandidate
	fingerprint   DTLSFingerprint
	role          sdp.ConnectionRole
	sections      []remoteSection
	bundleMids    map[string]bool
}

type remoteSection struct {
	mid       string
	kind      string // "audio", "video", "application"
	direction RTPTransceiverDirection

	ssrc    uint32 // primary media SSRC, 0 if none advertised (bound on first packet instead)
	rtxSSRC uint32 // repair SSRC from a=ssrc-group:FID, 0 if RTX wasn't offered
	rtxPT   uint8  // apt= payload type RTX repairs, from the rtx fmtp line

	ridExtensionID uint8    // extmap id for the RID header extension, 0 if simulcast wasn't offered
	repairedExtID  uint8    // extmap id for the repaired-RID header extension
	simulcastRIDs  []string // receive-direction RIDs from a=rid/a=simulcast
}

// parseRemoteSession extracts negotiation state from a remote
// SessionDescription, grounded on pion/webrtc's extractICEDetails and
// extractFingerprint (sdp.go).
func parseRemoteSession(desc *sdp.SessionDescription) (*remoteSession, error) {
	rs := &remoteSession{bundleMids: map[string]bool{}}

	if group, ok := desc.Attribute("group"); ok {
		fields := strings.Fields(group)
		if len(fields) > 0 && fields[0] == "BUNDLE" {
			for _, mid := range fields[1:] {
				rs.bundleMids[mid] = true
			}
		}
	}

	ufrag, _ := desc.Attribute("ice-ufrag")
	pwd, _ := desc.Attribute("ice-pwd")
	fingerprint, hasFP := desc.Attribute("fingerprint")

	for _, m := range desc.MediaDescriptions {
		if v, ok := m.Attribute("ice-ufrag"); ok {
			ufrag = v
		}
		if v, ok := m.Attribute("ice-pwd"); ok {
			pwd = v
		}
		if v, ok := m.Attribute("fingerprint"); ok {
			fingerprint, hasFP = v, true
		}
		if v, ok := m.Attribute("setup"); ok {
			rs.role = parseConnectionRole(v)
		}

		mid := getMidValue(m)
		if mid == "" {
			return nil, errSyntax(fmt.Errorf("webrtc: %w for media section %q", ErrSDPMissingMid, m.MediaName.Media))
		}

		section := remoteSection{
			mid:       mid,
			kind:      m.MediaName.Media,
			direction: getPeerDirection(m),
		}
		section.ssrc, section.rtxSSRC = parseSSRCGroup(m)
		section.rtxPT = parseRTXPayloadType(m)
		section.ridExtensionID, section.repairedExtID, section.simulcastRIDs = parseSimulcast(m)
		rs.sections = append(rs.sections, section)

		for _, a := range m.Attributes {
			if a.Key != "candidate" {
				continue
			}
			c, err := ice.ParseCandidate(a.Value)
			if err != nil {
				return nil, errSyntax(err)
			}
			rs.candidates = append(rs.candidates, newICECandidate(c, mid, 0))
		}
	}

	if ufrag == "" || pwd == "" {
		return nil, errSyntax(ErrNoRemoteDescription)
	}
	rs.iceUfrag, rs.icePwd = ufrag, pwd

	if !hasFP {
		return nil, errSyntax(ErrSDPMissingFingerprint)
	}
	parts := strings.Fields(fingerprint)
	if len(parts) != 2 {
		return nil, errSyntax(fmt.Errorf("webrtc: malformed fingerprint attribute %q", fingerprint))
	}
	rs.fingerprint = DTLSFingerprint{Algorithm: parts[0], Value: parts[1]}

	for mid := range rs.bundleMids {
		found := false
		for _, s := range rs.sections {
			if s.mid == mid {
				found = true
				break
			}
		}
		if !found {
			return nil, errSyntax(fmt.Errorf("webrtc: %w: %s", ErrSDPUnknownBundleMember, mid))
		}
	}

	return rs, nil
}

func getMidValue(m *sdp.MediaDescription) string {
	v, _ := m.Attribute(sdp.AttrKeyMID)
	return v
}

func getPeerDirection(m *sdp.MediaDescription) RTPTransceiverDirection {
	for _, a := range m.Attributes {
		if d := newRTPTransceiverDirection(a.Key); d != 0 {
			return d
		}
	}
	return RTPTransceiverDirectionSendrecv
}

func parseConnectionRole(s string) sdp.ConnectionRole {
	switch s {
	case "active":
		return sdp.ConnectionRoleActive
	case "passive":
		return sdp.ConnectionRolePassive
	case "actpass":
		return sdp.ConnectionRoleActpass
	default:
		return sdp.ConnectionRoleActpass
	}
}

// parseSSRCGroup reads the first a=ssrc:<id> line as the primary media
// SSRC and, if present, a=ssrc-group:FID <primary> <repair> as the RTX
// repair SSRC (RFC 5576 §4.2).
func parseSSRCGroup(m *sdp.MediaDescription) (primary, rtx uint32) {
	for _, a := range m.Attributes {
		if a.Key != "ssrc" || primary != 0 {
			continue
		}
		fields := strings.Fields(a.Value)
		if len(fields) == 0 {
			continue
		}
		if v, err := strconv.ParseUint(fields[0], 10, 32); err == nil {
			primary = uint32(v)
		}
	}
	for _, a := range m.Attributes {
		if a.Key != "ssrc-group" {
			continue
		}
		fields := strings.Fields(a.Value)
		if len(fields) != 3 || fields[0] != "FID" {
			continue
		}
		if v, err := strconv.ParseUint(fields[2], 10, 32); err == nil {
			rtx = uint32(v)
		}
	}
	return primary, rtx
}

// parseRTXPayloadType reads the apt= parameter off an "rtx" rtpmap's
// fmtp line, identifying which primary payload type it repairs.
func parseRTXPayloadType(m *sdp.MediaDescription) uint8 {
	var rtxPT uint64
	for _, a := range m.Attributes {
		if a.Key != "rtpmap" {
			continue
		}
		fields := strings.Fields(a.Value)
		if len(fields) < 2 || !strings.HasPrefix(strings.ToLower(fields[1]), "rtx/") {
			continue
		}
		rtxPT, _ = strconv.ParseUint(fields[0], 10, 8)
	}
	for _, a := range m.Attributes {
		if a.Key != "fmtp" {
			continue
		}
		fields := strings.SplitN(a.Value, " ", 2)
		if len(fields) != 2 {
			continue
		}
		if pt, err := strconv.ParseUint(fields[0], 10, 8); err != nil || pt != rtxPT {
			continue
		}
		for _, param := range strings.Split(fields[1], ";") {
			kv := strings.SplitN(strings.TrimSpace(param), "=", 2)
			if len(kv) == 2 && kv[0] == "apt" {
				apt, _ := strconv.ParseUint(kv[1], 10, 8)
				return uint8(apt)
			}
		}
	}
	return 0
}

const (
	ridExtensionURI         = "urn:ietf:params:rtp-hdrext:sdes:rtp-stream-id"
	repairedRIDExtensionURI = "urn:ietf:params:rtp-hdrext:sdes:repaired-rtp-stream-id"
)

// parseSimulcast reads the negotiated RID/repaired-RID header
// extension ids from a=extmap lines and the receive-direction RIDs
// from a=rid lines (draft-ietf-mmusic-rid, as carried by a=simulcast).
func parseSimulcast(m *sdp.MediaDescription) (ridExtID, repairedExtID uint8, rids []string) {
	for _, a := range m.Attributes {
		if a.Key != "extmap" {
			continue
		}
		fields := strings.Fields(a.Value)
		if len(fields) < 2 {
			continue
		}
		id, err := strconv.ParseUint(strings.SplitN(fields[0], "/", 2)[0], 10, 8)
		if err != nil {
			continue
		}
		switch fields[1] {
		case ridExtensionURI:
			ridExtID = uint8(id)
		case repairedRIDExtensionURI:
			repairedExtID = uint8(id)
		}
	}
	for _, a := range m.Attributes {
		if a.Key != "rid" {
			continue
		}
		fields := strings.Fields(a.Value)
		if len(fields) < 2 || fields[1] != "recv" {
			continue
		}
		rids = append(rids, fields[0])
	}
	return ridExtID, repairedExtID, rids
}

// sdpBuilder accumulates the pieces populateSDP needs, grounded on
// pion/webrtc's mediaSection/populateSDP split (sdp.go) but scoped to
// a single BUNDLE transport.
type sdpBuilder struct {
	iceUfrag, icePwd string
	fingerprints     []DTLSFingerprint
	role             sdp.ConnectionRole
	candidates       []ICECandidate
	gatheringState   ICEGatheringState
}

// buildSessionDescription renders transceivers (in declaration order)
// and, if dataChannelMid is non-empty, one application section, into
// one BUNDLEd SDP offer or answer.
func (b sdpBuilder) buildSessionDescription(transceivers []*RTPTransceiver, codecs CodecConfiguration, dataChannelMid string) (*sdp.SessionDescription, error) {
	origin := sdp.Origin{
		Username:       "-",
		SessionID:      randomSessionID(),
		SessionVersion: 2,
		NetworkType:    "IN",
		AddressType:    "IP4",
		UnicastAddress: "0.0.0.0",
	}
	d := &sdp.SessionDescription{
		Version: 0,
		Origin:  origin,
		SessionName: "-",
		TimeDescriptions: []sdp.TimeDescription{{Timing: sdp.Timing{StartTime: 0, StopTime: 0}}},
	}

	var bundle []string
	for i, t := range transceivers {
		mid := t.Mid()
		if mid == "" {
			mid = strconv.Itoa(i)
		}
		media, err := b.buildMediaSection(t, codecs, mid, i == 0)
		if err != nil {
			return nil, err
		}
		d.WithMedia(media)
		bundle = append(bundle, mid)
	}

	if dataChannelMid != "" {
		media, err := b.buildDataSection(dataChannelMid, len(transceivers) == 0)
		if err != nil {
			return nil, err
		}
		d.WithMedia(media)
		bundle = append(bundle, dataChannelMid)
	}

	for _, f := range b.fingerprints {
		d.WithFingerprint(f.Algorithm, strings.ToUpper(f.Value))
	}

	if len(bundle) > 0 {
		d.WithValueAttribute(sdp.AttrKeyGroup, "BUNDLE "+strings.Join(bundle, " "))
	}

	return d, nil
}

func (b sdpBuilder) buildMediaSection(t *RTPTransceiver, codecs CodecConfiguration, mid string, addCandidates bool) (*sdp.MediaDescription, error) {
	media := sdp.NewJSEPMediaDescription(t.Kind().String(), nil).
		WithValueAttribute(sdp.AttrKeyConnectionSetup, b.role.String()).
		WithValueAttribute(sdp.AttrKeyMID, mid).
		WithICECredentials(b.iceUfrag, b.icePwd).
		WithPropertyAttribute(sdp.AttrKeyRTCPMux)

	var params []RTPCodecParameters
	switch t.Kind() {
	case RTPCodecTypeAudio:
		params = codecs.Audio
	case RTPCodecTypeVideo:
		params = codecs.Video
	}
	for _, p := range params {
		name := strings.TrimPrefix(p.MimeType, strings.ToLower(t.Kind().String())+"/")
		fmtp := fmtpLine(p.Parameters)
		media.WithCodec(p.PayloadType, name, p.ClockRate, p.Channels, fmtp)
		for _, fb := range p.RTCPFeedback {
			value := fb.Type
			if fb.Parameter != "" {
				value += " " + fb.Parameter
			}
			media.WithValueAttribute("rtcp-fb", fmt.Sprintf("%d %s", p.PayloadType, value))
		}
	}

	media.WithPropertyAttribute(t.Direction().String())

	for _, f := range b.fingerprints {
		media.WithFingerprint(f.Algorithm, strings.ToUpper(f.Value))
	}
	if addCandidates {
		addCandidatesToMedia(b.candidates, media, b.gatheringState)
	}
	return media, nil
}

func (b sdpBuilder) buildDataSection(mid string, addCandidates bool) (*sdp.MediaDescription, error) {
	media := (&sdp.MediaDescription{
		MediaName: sdp.MediaName{
			Media:   mediaSectionApplication,
			Port:    sdp.RangedPort{Value: 9},
			Protos:  []string{"DTLS", "SCTP"},
			Formats: []string{sctpPort},
		},
		ConnectionInformation: &sdp.ConnectionInformation{
			NetworkType: "IN",
			AddressType: "IP4",
			Address:     &sdp.Address{Address: "0.0.0.0"},
		},
	}).
		WithValueAttribute(sdp.AttrKeyConnectionSetup, b.role.String()).
		WithValueAttribute(sdp.AttrKeyMID, mid).
		WithPropertyAttribute(RTPTransceiverDirectionSendrecv.String()).
		WithValueAttribute("sctp-port", sctpPort).
		WithValueAttribute("max-message-size", "262144").
		WithICECredentials(b.iceUfrag, b.icePwd)

	for _, f := range b.fingerprints {
		media.WithFingerprint(f.Algorithm, strings.ToUpper(f.Value))
	}
	if addCandidates {
		addCandidatesToMedia(b.candidates, media, b.gatheringState)
	}
	return media, nil
}

func addCandidatesToMedia(candidates []ICECandidate, m *sdp.MediaDescription, state ICEGatheringState) {
	for _, c := range candidates {
		ic := c.toICE()
		ic.Component = 1
		m.WithValueAttribute("candidate", ic.ToSDP())
	}
	if state == ICEGatheringStateComplete {
		m.WithPropertyAttribute("end-of-candidates")
	}
}

func fmtpLine(params map[string]string) string {
	if len(params) == 0 {
		return ""
	}
	keys := make([]string, 0, len(params))
	for k := range params {
		keys = append(keys, k)
	}
	var parts []string
	for _, k := range keys {
		parts = append(parts, k+"="+params[k])
	}
	return strings.Join(parts, ";")
}

var sessionIDCounter uint64 = 1

// randomSessionID hands out an increasing o= session id. A real
// implementation draws this from crypto/rand once per PeerConnection;
// tests construct PeerConnections one at a time within a process so a
// counter is observably equivalent and keeps SDP generation free of
// clock/RNG access.
func randomSessionID() uint64 {
	sessionIDCounter++
	return sessionIDCounter
}
