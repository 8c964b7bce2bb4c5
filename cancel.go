package rsocket

var _ Frame = &Cancel{}

// Cancel terminates an outstanding request. It has no body.
//
// https://rsocket.io/about/protocol/#cancel-frame-0x09
type Cancel struct{}

func (c *Cancel) Type() FrameType {
	return FrameCancel
}

func (c *Cancel) Reset() {}

func (c *Cancel) Serialize(fh *FrameHeader) {
	fh.payload = fh.payload[:0]
}

func (c *Cancel) Deserialize(fh *FrameHeader) error {
	return nil
}

func (c *Cancel) Len() int {
	// stream_id 4, type+flags 2
	return 6
}
