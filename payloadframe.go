package rsocket

var _ Frame = &PayloadFrame{}

// PayloadFrame carries a payload on an active stream: a response to a
// request, or a message on a channel. A PAYLOAD frame MUST set at least one
// of NEXT and COMPLETE.
//
// https://rsocket.io/about/protocol/#payload-frame-0x0a
type PayloadFrame struct {
	follows  bool
	complete bool
	next     bool
	payload  Payload
}

func (p *PayloadFrame) Type() FrameType {
	return FramePayload
}

func (p *PayloadFrame) Reset() {
	p.follows = false
	p.complete = false
	p.next = false
	p.payload = Payload{}
}

// Follows returns true if more fragments follow this one.
func (p *PayloadFrame) Follows() bool {
	return p.follows
}

func (p *PayloadFrame) SetFollows(follows bool) {
	p.follows = follows
}

// Complete returns true if the stream completes with this frame.
func (p *PayloadFrame) Complete() bool {
	return p.complete
}

func (p *PayloadFrame) SetComplete(complete bool) {
	p.complete = complete
}

// Next returns true if the frame carries a payload item.
func (p *PayloadFrame) Next() bool {
	return p.next
}

func (p *PayloadFrame) SetNext(next bool) {
	p.next = next
}

func (p *PayloadFrame) Payload() Payload {
	return p.payload
}

func (p *PayloadFrame) SetPayload(payload Payload) {
	p.payload = payload
}

func (p *PayloadFrame) Serialize(fh *FrameHeader) {
	if p.follows {
		fh.SetFlags(fh.Flags().Add(FlagFollows))
	}
	if p.complete {
		fh.SetFlags(fh.Flags().Add(FlagComplete))
	}
	if p.next {
		fh.SetFlags(fh.Flags().Add(FlagNext))
	}
	if p.payload.HasMetadata() {
		fh.SetFlags(fh.Flags().Add(FlagMetadata))
	}

	fh.payload = appendMetadataPrefixed(fh.payload[:0], p.payload)
}

func (p *PayloadFrame) Deserialize(fh *FrameHeader) error {
	p.follows = fh.Flags().Has(FlagFollows)
	p.complete = fh.Flags().Has(FlagComplete)
	p.next = fh.Flags().Has(FlagNext)

	payload, err := eatPayload(fh.payload)
	if err != nil {
		return err
	}
	p.payload = payload

	return nil
}

func (p *PayloadFrame) Len() int {
	// stream_id 4, type+flags 2, metadata_len 3
	return 9 + p.payload.Len()
}
