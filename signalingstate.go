package webrtc

import (
	"fmt"

	"github.com/vela-rtc/webrtc/internal/rtcerr"
)

type stateChangeOp int

const (
	stateChangeOpSetLocal stateChangeOp = iota + 1
	stateChangeOpSetRemote
)

func (op stateChangeOp) String() string {
	if op == stateChangeOpSetLocal {
		return "SetLocal"
	}
	return "SetRemote"
}

// SignalingState is the offer/answer negotiation state machine.
type SignalingState int

// Signaling states.
const (
	SignalingStateStable SignalingState = iota + 1
	SignalingStateHaveLocalOffer
	SignalingStateHaveRemoteOffer
	SignalingStateHaveLocalPranswer
	SignalingStateHaveRemotePranswer
	SignalingStateClosed
)

func (s SignalingState) String() string {
	switch s {
	case SignalingStateStable:
		return "stable"
	case SignalingStateHaveLocalOffer:
		return "have-local-offer"
	case SignalingStateHaveRemoteOffer:
		return "have-remote-offer"
	case SignalingStateHaveLocalPranswer:
		return "have-local-pranswer"
	case SignalingStateHaveRemotePranswer:
		return "have-remote-pranswer"
	case SignalingStateClosed:
		return "closed"
	default:
		return "unknown"
	}
}

// checkNextSignalingState validates a proposed signaling-state
// transition against RFC 8829 §4.3's table, grounded on pion/webrtc's
// checkNextSignalingState (same switch shape, generalized error type).
func checkNextSignalingState(cur, next SignalingState, op stateChangeOp, sdpType SDPType) (SignalingState, error) {
	if sdpType == SDPTypeRollback && cur == SignalingStateStable {
		return cur, &rtcerr.InvalidModificationError{Err: fmt.Errorf("cannot rollback from stable state")}
	}

	switch cur {
	case SignalingStateStable:
		switch op {
		case stateChangeOpSetLocal:
			if sdpType == SDPTypeOffer && next == SignalingStateHaveLocalOffer {
				return next, nil
			}
		case stateChangeOpSetRemote:
			if sdpType == SDPTypeOffer && next == SignalingStateHaveRemoteOffer {
				return next, nil
			}
		}
	case SignalingStateHaveLocalOffer:
		if op == stateChangeOpSetRemote {
			switch sdpType {
			case SDPTypeAnswer:
				if next == SignalingStateStable {
					return next, nil
				}
			case SDPTypePranswer:
				if next == SignalingStateHaveRemotePranswer {
					return next, nil
				}
			}
		}
	case SignalingStateHaveRemotePranswer:
		if op == stateChangeOpSetRemote && sdpType == SDPTypeAnswer && next == SignalingStateStable {
			return next, nil
		}
	case SignalingStateHaveRemoteOffer:
		if op == stateChangeOpSetLocal {
			switch sdpType {
			case SDPTypeAnswer:
				if next == SignalingStateStable {
					return next, nil
				}
			case SDPTypePranswer:
				if next == SignalingStateHaveLocalPranswer {
					return next, nil
				}
			}
		}
	case SignalingStateHaveLocalPranswer:
		if op == stateChangeOpSetLocal && sdpType == SDPTypeAnswer && next == SignalingStateStable {
			return next, nil
		}
	}

	return cur, &rtcerr.InvalidModificationError{
		Err: fmt.Errorf("invalid signaling state transition %s->%s(%s)->%s", cur, op, sdpType, next),
	}
}
