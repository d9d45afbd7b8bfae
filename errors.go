package webrtc

import (
	"errors"

	"github.com/vela-rtc/webrtc/internal/rtcerr"
)

// Sentinel errors wrapped by the rtcerr taxonomy, named
// the way pion/webrtc's errors.go names its InvalidStateError/
// UnknownError families.
var (
	ErrConnectionClosed        = errors.New("webrtc: connection closed")
	ErrNoSRTPProtectionProfile = errors.New("webrtc: DTLS did not negotiate an SRTP protection profile")
	ErrNoCertificate           = errors.New("webrtc: no certificate configured")
	ErrCertificateExpired      = errors.New("webrtc: certificate expired")
	ErrNoRemoteDescription     = errors.New("webrtc: no remote description set")
	ErrSDPMissingMid           = errors.New("webrtc: SDP media section missing a=mid")
	ErrSDPMissingFingerprint   = errors.New("webrtc: SDP missing a=fingerprint on a new transport")
	ErrSDPUnknownBundleMember  = errors.New("webrtc: BUNDLE group references an unknown mid")
	ErrFingerprintMismatch     = errors.New("webrtc: peer certificate does not match SDP fingerprint")
	ErrSenderNotStarted        = errors.New("webrtc: RTPSender has not been started")
)

func errInvalidState(err error) error    { return &rtcerr.InvalidStateError{Err: err} }
func errNegotiation(err error) error     { return &rtcerr.OperationError{Err: err} }
func errSyntax(err error) error          { return &rtcerr.SyntaxError{Err: err} }
func errUnknown(err error) error         { return &rtcerr.UnknownError{Err: err} }
func errInvalidAccess(err error) error   { return &rtcerr.InvalidAccessError{Err: err} }
func errNotReadable(err error) error     { return &rtcerr.NotReadableError{Err: err} }
