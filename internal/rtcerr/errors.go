// Package rtcerr implements the error wrappers used across the
// session-controller and transport layers, mirroring the exception
// taxonomy of the WebRTC 1.0 spec (grounded on pion/webrtc's
// pkg/rtcerr). Each wraps an inner error via Unwrap so callers can
// still errors.Is/As against sentinel errors.
package rtcerr

import "fmt"

// UnknownError indicates the operation failed for an unknown transient reason.
type UnknownError struct{ Err error }

func (e *UnknownError) Error() string { return fmt.Sprintf("UnknownError: %v", e.Err) }
func (e *UnknownError) Unwrap() error { return e.Err }

// InvalidStateError indicates the object is in an invalid state for the
// requested operation.
type InvalidStateError struct{ Err error }

func (e *InvalidStateError) Error() string { return fmt.Sprintf("InvalidStateError: %v", e.Err) }
func (e *InvalidStateError) Unwrap() error { return e.Err }

// InvalidAccessError indicates the object does not support the operation
// or argument.
type InvalidAccessError struct{ Err error }

func (e *InvalidAccessError) Error() string { return fmt.Sprintf("InvalidAccessError: %v", e.Err) }
func (e *InvalidAccessError) Unwrap() error { return e.Err }

// NotSupportedError indicates the operation is not supported.
type NotSupportedError struct{ Err error }

func (e *NotSupportedError) Error() string { return fmt.Sprintf("NotSupportedError: %v", e.Err) }
func (e *NotSupportedError) Unwrap() error { return e.Err }

// InvalidModificationError indicates the object cannot be modified this way,
// used by the signaling state machine.
type InvalidModificationError struct{ Err error }

func (e *InvalidModificationError) Error() string {
	return fmt.Sprintf("InvalidModificationError: %v", e.Err)
}
func (e *InvalidModificationError) Unwrap() error { return e.Err }

// SyntaxError indicates a string (SDP, candidate) did not match the
// expected grammar.
type SyntaxError struct{ Err error }

func (e *SyntaxError) Error() string { return fmt.Sprintf("SyntaxError: %v", e.Err) }
func (e *SyntaxError) Unwrap() error { return e.Err }

// OperationError indicates the operation failed for an operation-specific
// reason, used for NegotiationError cases.
type OperationError struct{ Err error }

func (e *OperationError) Error() string { return fmt.Sprintf("OperationError: %v", e.Err) }
func (e *OperationError) Unwrap() error { return e.Err }

// NotReadableError indicates a certificate or resource could not be
// generated or read.
type NotReadableError struct{ Err error }

func (e *NotReadableError) Error() string { return fmt.Sprintf("NotReadableError: %v", e.Err) }
func (e *NotReadableError) Unwrap() error { return e.Err }
