package rsocket

var _ Frame = &RequestFnf{}

// RequestFnf is a single one-way message on a new stream. No response frames
// are expected.
//
// https://rsocket.io/about/protocol/#request_fnf-fire-n-forget-frame-0x05
type RequestFnf struct {
	follows bool
	payload Payload
}

func (r *RequestFnf) Type() FrameType {
	return FrameRequestFnf
}

func (r *RequestFnf) Reset() {
	r.follows = false
	r.payload = Payload{}
}

// Follows returns true if more fragments follow this one.
func (r *RequestFnf) Follows() bool {
	return r.follows
}

func (r *RequestFnf) SetFollows(follows bool) {
	r.follows = follows
}

func (r *RequestFnf) Payload() Payload {
	return r.payload
}

func (r *RequestFnf) SetPayload(p Payload) {
	r.payload = p
}

func (r *RequestFnf) Serialize(fh *FrameHeader) {
	if r.follows {
		fh.SetFlags(fh.Flags().Add(FlagFollows))
	}
	if r.payload.HasMetadata() {
		fh.SetFlags(fh.Flags().Add(FlagMetadata))
	}

	fh.payload = appendMetadataPrefixed(fh.payload[:0], r.payload)
}

func (r *RequestFnf) Deserialize(fh *FrameHeader) error {
	r.follows = fh.Flags().Has(FlagFollows)

	payload, err := eatPayload(fh.payload)
	if err != nil {
		return err
	}
	r.payload = payload

	return nil
}

func (r *RequestFnf) Len() int {
	// stream_id 4, type+flags 2, metadata_len 3
	return 9 + r.payload.Len()
}
