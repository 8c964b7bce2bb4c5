package rsocket

var _ Frame = &RequestResponse{}

// RequestResponse requests a single response on a new stream.
//
// https://rsocket.io/about/protocol/#request_response-frame-0x04
type RequestResponse struct {
	follows bool
	payload Payload
}

func (r *RequestResponse) Type() FrameType {
	return FrameRequestResponse
}

func (r *RequestResponse) Reset() {
	r.follows = false
	r.payload = Payload{}
}

// Follows returns true if more fragments follow this one.
func (r *RequestResponse) Follows() bool {
	return r.follows
}

func (r *RequestResponse) SetFollows(follows bool) {
	r.follows = follows
}

func (r *RequestResponse) Payload() Payload {
	return r.payload
}

func (r *RequestResponse) SetPayload(p Payload) {
	r.payload = p
}

func (r *RequestResponse) Serialize(fh *FrameHeader) {
	if r.follows {
		fh.SetFlags(fh.Flags().Add(FlagFollows))
	}
	if r.payload.HasMetadata() {
		fh.SetFlags(fh.Flags().Add(FlagMetadata))
	}

	fh.payload = appendMetadataPrefixed(fh.payload[:0], r.payload)
}

func (r *RequestResponse) Deserialize(fh *FrameHeader) error {
	r.follows = fh.Flags().Has(FlagFollows)

	payload, err := eatPayload(fh.payload)
	if err != nil {
		return err
	}
	r.payload = payload

	return nil
}

func (r *RequestResponse) Len() int {
	// stream_id 4, type+flags 2, metadata_len 3
	return 9 + r.payload.Len()
}
