package rsocket

import (
	"fmt"

	"github.com/domsolutions/rsocket/rsocketutils"
)

var _ Frame = &ErrorFrame{}

// ErrorFrame reports an error at connection or application level. Frames
// carrying a connection-scoped code MUST use stream ID 0, frames carrying a
// stream-scoped code MUST NOT.
//
// https://rsocket.io/about/protocol/#error-frame-0x0b
type ErrorFrame struct {
	code ErrorCode
	data []byte
}

func (e *ErrorFrame) Type() FrameType {
	return FrameError
}

func (e *ErrorFrame) Reset() {
	e.code = 0
	e.data = nil
}

func (e *ErrorFrame) Code() ErrorCode {
	return e.code
}

func (e *ErrorFrame) SetCode(code ErrorCode) {
	e.code = code
}

func (e *ErrorFrame) Data() []byte {
	return e.data
}

func (e *ErrorFrame) SetData(data []byte) {
	if len(data) == 0 {
		data = nil
	}
	e.data = data
}

// Err converts the frame to the protocol error it carries.
func (e *ErrorFrame) Err() *Error {
	return &Error{Code: e.code, Data: append([]byte(nil), e.data...)}
}

func (e *ErrorFrame) Error() string {
	return fmt.Sprintf("code=%s, data=%s", e.code, e.data)
}

func (e *ErrorFrame) Serialize(fh *FrameHeader) {
	b := rsocketutils.AppendUint32Bytes(fh.payload[:0], uint32(e.code))
	fh.payload = append(b, e.data...)
}

func (e *ErrorFrame) Deserialize(fh *FrameHeader) error {
	b := fh.payload
	if len(b) < 4 {
		return ErrIncomplete
	}

	e.code = ErrorCode(rsocketutils.BytesToUint32(b))

	// The stream-ID rule of an ERROR frame depends on its code.
	if e.code.isConnectionCode() && fh.Stream() != 0 {
		return &InvalidStreamIDError{Expected: "0", Found: fh.Stream()}
	}
	if e.code.isStreamCode() && fh.Stream() == 0 {
		return &InvalidStreamIDError{Expected: "> 0", Found: fh.Stream()}
	}

	if rest := b[4:]; len(rest) > 0 {
		e.data = append([]byte(nil), rest...)
	} else {
		e.data = nil
	}

	return nil
}

func (e *ErrorFrame) Len() int {
	// stream_id 4, type+flags 2, error_code 4
	return 10 + len(e.data)
}
