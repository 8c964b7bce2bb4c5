package rsocket

import (
	"sync"
)

// Frame is the type-specific body of an RSocket frame.
//
// Use AcquireFrame instead of creating frames every time if you are going to
// use a Frame as your own, and ReleaseFrame to return it.
//
// Frame instances MUST NOT be used from concurrently running goroutines.
type Frame interface {
	// Type returns the frame type.
	Type() FrameType

	// Reset resets the frame values.
	Reset()

	// Serialize writes the frame body into fh.payload and sets the header
	// flags from the frame fields.
	Serialize(fh *FrameHeader)

	// Deserialize parses the frame body from fh.payload using the header
	// flags.
	Deserialize(fh *FrameHeader) error

	// Len returns the encoded length of the whole frame, header included.
	Len() int
}

var framePools = func() [maxFrameType + 1]*sync.Pool {
	var pools [maxFrameType + 1]*sync.Pool

	pools[FrameSetup] = &sync.Pool{New: func() interface{} { return &Setup{} }}
	pools[FrameLease] = &sync.Pool{New: func() interface{} { return &Lease{} }}
	pools[FrameKeepalive] = &sync.Pool{New: func() interface{} { return &Keepalive{} }}
	pools[FrameRequestResponse] = &sync.Pool{New: func() interface{} { return &RequestResponse{} }}
	pools[FrameRequestFnf] = &sync.Pool{New: func() interface{} { return &RequestFnf{} }}
	pools[FrameRequestStream] = &sync.Pool{New: func() interface{} { return &RequestStream{} }}
	pools[FrameRequestChannel] = &sync.Pool{New: func() interface{} { return &RequestChannel{} }}
	pools[FrameRequestN] = &sync.Pool{New: func() interface{} { return &RequestN{} }}
	pools[FrameCancel] = &sync.Pool{New: func() interface{} { return &Cancel{} }}
	pools[FramePayload] = &sync.Pool{New: func() interface{} { return &PayloadFrame{} }}
	pools[FrameError] = &sync.Pool{New: func() interface{} { return &ErrorFrame{} }}
	pools[FrameMetadataPush] = &sync.Pool{New: func() interface{} { return &MetadataPush{} }}
	pools[FrameResume] = &sync.Pool{New: func() interface{} { return &Resume{} }}
	pools[FrameResumeOk] = &sync.Pool{New: func() interface{} { return &ResumeOk{} }}

	return pools
}()

const maxFrameType = FrameResumeOk

// AcquireFrame gets a frame of the given type from its pool. It panics on
// unpooled types (EXT and unknown values).
func AcquireFrame(kind FrameType) Frame {
	fr := framePools[kind].Get().(Frame)
	fr.Reset()
	return fr
}

// ReleaseFrame puts fr back to its pool.
func ReleaseFrame(fr Frame) {
	if fr == nil {
		return
	}
	framePools[fr.Type()].Put(fr)
}
