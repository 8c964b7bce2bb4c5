package rsocket

import (
	"github.com/domsolutions/rsocket/rsocketutils"
)

var _ Frame = &RequestN{}

// RequestN grants additional send credit to the peer on an active stream.
// The value MUST be > 0.
//
// https://rsocket.io/about/protocol/#request_n-frame-0x08
type RequestN struct {
	n uint32
}

func (r *RequestN) Type() FrameType {
	return FrameRequestN
}

func (r *RequestN) Reset() {
	r.n = 0
}

func (r *RequestN) N() uint32 {
	return r.n
}

func (r *RequestN) SetN(n uint32) {
	r.n = n & MaxRequestN
}

func (r *RequestN) Serialize(fh *FrameHeader) {
	fh.payload = rsocketutils.AppendUint32Bytes(fh.payload[:0], r.n)
}

func (r *RequestN) Deserialize(fh *FrameHeader) error {
	if len(fh.payload) < 4 {
		return ErrIncomplete
	}

	r.n = rsocketutils.BytesToUint32(fh.payload) & MaxRequestN

	return nil
}

func (r *RequestN) Len() int {
	// stream_id 4, type+flags 2, request_n 4
	return 10
}
