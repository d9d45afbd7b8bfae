package webrtc

// ICEServer describes a single STUN/TURN server available to the ICE
// agent.
type ICEServer struct {
	URLs       []string
	Username   string
	Credential string
}

// Configuration configures a PeerConnection's ICE/bundle/codec policy.
// Low-level escape hatches that most applications never
// need live on SettingEngine instead, matching pion/webrtc's
// Configuration/SettingEngine split.
type Configuration struct {
	ICEServers           []ICEServer
	ICETransportPolicy   ICETransportPolicy
	BundlePolicy         BundlePolicy
	Certificates         []Certificate
	ICECandidatePoolSize uint8

	Codecs CodecConfiguration
}

// CodecConfiguration lists the codecs a PeerConnection is willing to
// negotiate, in preference order. Each codec's PayloadType is written
// into the generated SDP as given; no payload type is assigned
// automatically.
type CodecConfiguration struct {
	Audio []RTPCodecParameters
	Video []RTPCodecParameters
}

// RTPCodecParameters describes one negotiable codec.
type RTPCodecParameters struct {
	MimeType     string
	ClockRate    uint32
	Channels     uint16
	PayloadType  uint8
	RTCPFeedback []RTCPFeedback
	Parameters   map[string]string
}

// RTCPFeedback is one a=rtcp-fb mechanism advertised for a codec.
type RTCPFeedback struct {
	Type      string
	Parameter string
}

// MIME types this stack can packetize/depacketize.
const (
	MimeTypeVP8  = "video/VP8"
	MimeTypeH264 = "video/H264"
	MimeTypeOpus = "audio/opus"
	MimeTypeRED  = "audio/red"
	MimeTypeRTX  = "video/rtx"
)

// DefaultCodecConfiguration returns the codec set this implementation
// can packetize/depacketize, with video payload types 96 (VP8), 97
// (its RTX) and 98 (H264), and audio payload types 111 (Opus) and 112
// (RED).
func DefaultCodecConfiguration() CodecConfiguration {
	return CodecConfiguration{
		Video: []RTPCodecParameters{
			{MimeType: MimeTypeVP8, ClockRate: 90000, PayloadType: 96,
				RTCPFeedback: []RTCPFeedback{{Type: "goog-remb"}, {Type: "transport-cc"}, {Type: "ccm", Parameter: "fir"}, {Type: "nack"}, {Type: "nack", Parameter: "pli"}}},
			{MimeType: MimeTypeRTX, ClockRate: 90000, PayloadType: 97, Parameters: map[string]string{"apt": "96"}},
			{MimeType: MimeTypeH264, ClockRate: 90000, PayloadType: 98,
				RTCPFeedback: []RTCPFeedback{{Type: "goog-remb"}, {Type: "transport-cc"}, {Type: "ccm", Parameter: "fir"}, {Type: "nack"}, {Type: "nack", Parameter: "pli"}},
				Parameters:   map[string]string{"packetization-mode": "1", "profile-level-id": "42e01f"}},
		},
		Audio: []RTPCodecParameters{
			{MimeType: MimeTypeOpus, ClockRate: 48000, Channels: 2, PayloadType: 111},
			{MimeType: MimeTypeRED, ClockRate: 48000, Channels: 2, PayloadType: 112},
		},
	}
}

// SettingEngine exposes low-level behavior not covered by
// Configuration, per pion/webrtc's Configuration/SettingEngine split.
type SettingEngine struct {
	// ICETimeout is not read: candidate gathering is bounded by the ICE
	// agent's fixed 10s gather timeout.
	ICETimeout uint32
}
