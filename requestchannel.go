package rsocket

import (
	"github.com/domsolutions/rsocket/rsocketutils"
)

var _ Frame = &RequestChannel{}

// RequestChannel requests a completable stream of payloads in both
// directions. The COMPLETE flag indicates the requester stream is already
// complete with this frame.
//
// https://rsocket.io/about/protocol/#request_channel-frame-0x07
type RequestChannel struct {
	follows         bool
	complete        bool
	initialRequestN uint32
	payload         Payload
}

func (r *RequestChannel) Type() FrameType {
	return FrameRequestChannel
}

func (r *RequestChannel) Reset() {
	r.follows = false
	r.complete = false
	r.initialRequestN = 0
	r.payload = Payload{}
}

// Follows returns true if more fragments follow this one.
func (r *RequestChannel) Follows() bool {
	return r.follows
}

func (r *RequestChannel) SetFollows(follows bool) {
	r.follows = follows
}

// Complete returns true if the requester will send no further payloads on
// this channel.
func (r *RequestChannel) Complete() bool {
	return r.complete
}

func (r *RequestChannel) SetComplete(complete bool) {
	r.complete = complete
}

// InitialRequestN returns the initial credit granted to the responder. It
// MUST be > 0.
func (r *RequestChannel) InitialRequestN() uint32 {
	return r.initialRequestN
}

func (r *RequestChannel) SetInitialRequestN(n uint32) {
	r.initialRequestN = n & MaxRequestN
}

func (r *RequestChannel) Payload() Payload {
	return r.payload
}

func (r *RequestChannel) SetPayload(p Payload) {
	r.payload = p
}

func (r *RequestChannel) Serialize(fh *FrameHeader) {
	if r.follows {
		fh.SetFlags(fh.Flags().Add(FlagFollows))
	}
	if r.complete {
		fh.SetFlags(fh.Flags().Add(FlagComplete))
	}
	if r.payload.HasMetadata() {
		fh.SetFlags(fh.Flags().Add(FlagMetadata))
	}

	b := rsocketutils.AppendUint32Bytes(fh.payload[:0], r.initialRequestN)
	fh.payload = appendMetadataPrefixed(b, r.payload)
}

func (r *RequestChannel) Deserialize(fh *FrameHeader) error {
	b := fh.payload
	if len(b) < 4 {
		return ErrIncomplete
	}

	r.follows = fh.Flags().Has(FlagFollows)
	r.complete = fh.Flags().Has(FlagComplete)
	r.initialRequestN = rsocketutils.BytesToUint32(b) & MaxRequestN

	payload, err := eatPayload(b[4:])
	if err != nil {
		return err
	}
	r.payload = payload

	return nil
}

func (r *RequestChannel) Len() int {
	// stream_id 4, type+flags 2, initial_request_n 4, metadata_len 3
	return 13 + r.payload.Len()
}
