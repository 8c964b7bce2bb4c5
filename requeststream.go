package rsocket

import (
	"github.com/domsolutions/rsocket/rsocketutils"
)

var _ Frame = &RequestStream{}

// RequestStream requests a completable stream of payloads on a new stream.
// The initial request N grants the responder its first send credit.
//
// https://rsocket.io/about/protocol/#request_stream-frame-0x06
type RequestStream struct {
	follows         bool
	initialRequestN uint32
	payload         Payload
}

func (r *RequestStream) Type() FrameType {
	return FrameRequestStream
}

func (r *RequestStream) Reset() {
	r.follows = false
	r.initialRequestN = 0
	r.payload = Payload{}
}

// Follows returns true if more fragments follow this one.
func (r *RequestStream) Follows() bool {
	return r.follows
}

func (r *RequestStream) SetFollows(follows bool) {
	r.follows = follows
}

// InitialRequestN returns the initial credit granted to the responder. It
// MUST be > 0.
func (r *RequestStream) InitialRequestN() uint32 {
	return r.initialRequestN
}

func (r *RequestStream) SetInitialRequestN(n uint32) {
	r.initialRequestN = n & MaxRequestN
}

func (r *RequestStream) Payload() Payload {
	return r.payload
}

func (r *RequestStream) SetPayload(p Payload) {
	r.payload = p
}

func (r *RequestStream) Serialize(fh *FrameHeader) {
	if r.follows {
		fh.SetFlags(fh.Flags().Add(FlagFollows))
	}
	if r.payload.HasMetadata() {
		fh.SetFlags(fh.Flags().Add(FlagMetadata))
	}

	b := rsocketutils.AppendUint32Bytes(fh.payload[:0], r.initialRequestN)
	fh.payload = appendMetadataPrefixed(b, r.payload)
}

func (r *RequestStream) Deserialize(fh *FrameHeader) error {
	b := fh.payload
	if len(b) < 4 {
		return ErrIncomplete
	}

	r.follows = fh.Flags().Has(FlagFollows)
	r.initialRequestN = rsocketutils.BytesToUint32(b) & MaxRequestN

	payload, err := eatPayload(b[4:])
	if err != nil {
		return err
	}
	r.payload = payload

	return nil
}

func (r *RequestStream) Len() int {
	// stream_id 4, type+flags 2, initial_request_n 4, metadata_len 3
	return 13 + r.payload.Len()
}
