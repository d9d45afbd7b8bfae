package webrtc

import "github.com/vela-rtc/webrtc/internal/ice"

// ICEGatheringState tracks candidate gathering progress.
type ICEGatheringState int

// ICE gathering states.
const (
	ICEGatheringStateNew ICEGatheringState = iota + 1
	ICEGatheringStateGathering
	ICEGatheringStateComplete
)

func (s ICEGatheringState) String() string {
	switch s {
	case ICEGatheringStateNew:
		return "new"
	case ICEGatheringStateGathering:
		return "gathering"
	case ICEGatheringStateComplete:
		return "complete"
	default:
		return "unknown"
	}
}

// ICEConnectionState mirrors internal/ice.ConnectionState for the
// public API surface.
type ICEConnectionState int

// ICE connection states.
const (
	ICEConnectionStateNew ICEConnectionState = iota + 1
	ICEConnectionStateChecking
	ICEConnectionStateConnected
	ICEConnectionStateCompleted
	ICEConnectionStateFailed
	ICEConnectionStateDisconnected
	ICEConnectionStateClosed
)

func newICEConnectionState(s ice.ConnectionState) ICEConnectionState {
	switch s {
	case ice.ConnectionStateNew:
		return ICEConnectionStateNew
	case ice.ConnectionStateChecking:
		return ICEConnectionStateChecking
	case ice.ConnectionStateConnected:
		return ICEConnectionStateConnected
	case ice.ConnectionStateCompleted:
		return ICEConnectionStateCompleted
	case ice.ConnectionStateFailed:
		return ICEConnectionStateFailed
	case ice.ConnectionStateDisconnected:
		return ICEConnectionStateDisconnected
	case ice.ConnectionStateClosed:
		return ICEConnectionStateClosed
	default:
		return ICEConnectionStateNew
	}
}

func (s ICEConnectionState) String() string {
	switch s {
	case ICEConnectionStateNew:
		return "new"
	case ICEConnectionStateChecking:
		return "checking"
	case ICEConnectionStateConnected:
		return "connected"
	case ICEConnectionStateCompleted:
		return "completed"
	case ICEConnectionStateFailed:
		return "failed"
	case ICEConnectionStateDisconnected:
		return "disconnected"
	case ICEConnectionStateClosed:
		return "closed"
	default:
		return "unknown"
	}
}

// PeerConnectionState is the aggregate connection state derived from
// ICE and DTLS transport state.
type PeerConnectionState int

// Peer connection states.
const (
	PeerConnectionStateNew PeerConnectionState = iota + 1
	PeerConnectionStateConnecting
	PeerConnectionStateConnected
	PeerConnectionStateDisconnected
	PeerConnectionStateFailed
	PeerConnectionStateClosed
)

func (s PeerConnectionState) String() string {
	switch s {
	case PeerConnectionStateNew:
		return "new"
	case PeerConnectionStateConnecting:
		return "connecting"
	case PeerConnectionStateConnected:
		return "connected"
	case PeerConnectionStateDisconnected:
		return "disconnected"
	case PeerConnectionStateFailed:
		return "failed"
	case PeerConnectionStateClosed:
		return "closed"
	default:
		return "unknown"
	}
}

// RTPTransceiverDirection is the negotiated or desired direction of a
// Transceiver.
type RTPTransceiverDirection int

// Transceiver directions.
const (
	RTPTransceiverDirectionSendrecv RTPTransceiverDirection = iota + 1
	RTPTransceiverDirectionSendonly
	RTPTransceiverDirectionRecvonly
	RTPTransceiverDirectionInactive
)

func newRTPTransceiverDirection(raw string) RTPTransceiverDirection {
	switch raw {
	case "sendrecv":
		return RTPTransceiverDirectionSendrecv
	case "sendonly":
		return RTPTransceiverDirectionSendonly
	case "recvonly":
		return RTPTransceiverDirectionRecvonly
	case "inactive":
		return RTPTransceiverDirectionInactive
	default:
		return 0
	}
}

func (d RTPTransceiverDirection) String() string {
	switch d {
	case RTPTransceiverDirectionSendrecv:
		return "sendrecv"
	case RTPTransceiverDirectionSendonly:
		return "sendonly"
	case RTPTransceiverDirectionRecvonly:
		return "recvonly"
	case RTPTransceiverDirectionInactive:
		return "inactive"
	default:
		return "unknown"
	}
}

// RTPCodecType distinguishes audio from video media sections.
type RTPCodecType int

// Codec types.
const (
	RTPCodecTypeAudio RTPCodecType = iota + 1
	RTPCodecTypeVideo
)

func newRTPCodecType(raw string) RTPCodecType {
	switch raw {
	case "audio":
		return RTPCodecTypeAudio
	case "video":
		return RTPCodecTypeVideo
	default:
		return 0
	}
}

func (t RTPCodecType) String() string {
	switch t {
	case RTPCodecTypeAudio:
		return "audio"
	case RTPCodecTypeVideo:
		return "video"
	default:
		return "unknown"
	}
}

// DataChannelState is the lifecycle state of a DataChannel.
type DataChannelState int

// DataChannel states.
const (
	DataChannelStateConnecting DataChannelState = iota + 1
	DataChannelStateOpen
	DataChannelStateClosing
	DataChannelStateClosed
)

func (s DataChannelState) String() string {
	switch s {
	case DataChannelStateConnecting:
		return "connecting"
	case DataChannelStateOpen:
		return "open"
	case DataChannelStateClosing:
		return "closing"
	case DataChannelStateClosed:
		return "closed"
	default:
		return "unknown"
	}
}

// ICETransportPolicy filters which candidate types the agent gathers
// and surfaces.
type ICETransportPolicy int

// ICE transport policies.
const (
	ICETransportPolicyAll ICETransportPolicy = iota + 1
	ICETransportPolicyRelay
)

// BundlePolicy controls how media sections are grouped onto shared
// transports.
type BundlePolicy int

// Bundle policies.
const (
	BundlePolicyBalanced BundlePolicy = iota + 1
	BundlePolicyMaxCompat
	BundlePolicyMaxBundle
	BundlePolicyDisable
)
