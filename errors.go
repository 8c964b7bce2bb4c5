package rsocket

import (
	"errors"
	"fmt"
)

// ErrorCode is the code carried by an ERROR frame.
//
// https://rsocket.io/about/protocol/#error-codes
type ErrorCode uint32

const (
	// Connection-scoped codes. ERROR frames carrying them MUST use stream ID 0.
	CodeInvalidSetup     ErrorCode = 0x00000001
	CodeUnsupportedSetup ErrorCode = 0x00000002
	CodeRejectedSetup    ErrorCode = 0x00000003
	CodeRejectedResume   ErrorCode = 0x00000004
	CodeConnectionError  ErrorCode = 0x00000101
	CodeConnectionClose  ErrorCode = 0x00000102

	// Stream-scoped codes. ERROR frames carrying them MUST use a non-zero
	// stream ID.
	CodeApplicationError ErrorCode = 0x00000201
	CodeRejected         ErrorCode = 0x00000202
	CodeCanceled         ErrorCode = 0x00000203
	CodeInvalid          ErrorCode = 0x00000204

	// Application error codes are free to use the range
	// [MinApplicationCode, MaxApplicationCode].
	MinApplicationCode ErrorCode = 0x00000301
	MaxApplicationCode ErrorCode = 0xFFFFFFFE
)

func (c ErrorCode) String() string {
	switch c {
	case CodeInvalidSetup:
		return "INVALID_SETUP"
	case CodeUnsupportedSetup:
		return "UNSUPPORTED_SETUP"
	case CodeRejectedSetup:
		return "REJECTED_SETUP"
	case CodeRejectedResume:
		return "REJECTED_RESUME"
	case CodeConnectionError:
		return "CONNECTION_ERROR"
	case CodeConnectionClose:
		return "CONNECTION_CLOSE"
	case CodeApplicationError:
		return "APPLICATION_ERROR"
	case CodeRejected:
		return "REJECTED"
	case CodeCanceled:
		return "CANCELED"
	case CodeInvalid:
		return "INVALID"
	}

	return fmt.Sprintf("0x%x", uint32(c))
}

// isConnectionCode reports whether c pertains to the connection rather than
// to a single stream.
func (c ErrorCode) isConnectionCode() bool {
	switch c {
	case CodeInvalidSetup, CodeUnsupportedSetup, CodeRejectedSetup,
		CodeRejectedResume, CodeConnectionError, CodeConnectionClose:
		return true
	}
	return false
}

// isStreamCode reports whether c pertains to a single stream.
func (c ErrorCode) isStreamCode() bool {
	switch c {
	case CodeApplicationError, CodeRejected, CodeCanceled, CodeInvalid:
		return true
	}
	return false
}

// Error is a protocol error, either received from the peer as an ERROR frame
// or raised locally before one is sent.
type Error struct {
	Code ErrorCode
	Data []byte
}

// NewError returns a protocol error with the given code and message.
func NewError(code ErrorCode, msg string) *Error {
	return &Error{Code: code, Data: []byte(msg)}
}

func (e *Error) Error() string {
	if len(e.Data) == 0 {
		return fmt.Sprintf("rsocket: %s", e.Code)
	}
	return fmt.Sprintf("rsocket: %s: %s", e.Code, e.Data)
}

// Is matches protocol errors by code so errors.Is can be used with sentinel
// values like NewError(CodeCanceled, "").
func (e *Error) Is(target error) bool {
	var other *Error
	if !errors.As(target, &other) {
		return false
	}
	return e.Code == other.Code
}

// Decode errors. These are raised by DecodeFrame and never travel on the wire
// themselves; the connection engine reports them to the peer as a
// CONNECTION_ERROR before closing.
var (
	// ErrIncomplete is returned when not enough bytes are available to
	// parse a frame.
	ErrIncomplete = errors.New("rsocket: incomplete frame")

	// ErrExtUnsupported is returned when decoding an EXT frame. The type is
	// recognized but not implemented.
	ErrExtUnsupported = errors.New("rsocket: EXT frames are not supported")
)

// UnrecognizedFrameTypeError is returned when the type bits of the frame
// header do not carry a recognized frame type.
type UnrecognizedFrameTypeError struct {
	Value uint16
}

func (e *UnrecognizedFrameTypeError) Error() string {
	return fmt.Sprintf("rsocket: unrecognized frame type %#x", e.Value)
}

// InvalidStreamIDError is returned when a frame carries a stream ID that is
// not permitted for its frame type.
type InvalidStreamIDError struct {
	Expected string
	Found    uint32
}

func (e *InvalidStreamIDError) Error() string {
	return fmt.Sprintf("rsocket: invalid stream ID (expected %s, found %d)", e.Expected, e.Found)
}

// Engine errors surfaced through the public API.
var (
	ErrConnectionClosed = errors.New("rsocket: connection is closed")
	ErrLeaseExpired     = errors.New("rsocket: no valid lease to send the request")
	ErrTimeout          = errors.New("rsocket: keepalive timeout")
)
