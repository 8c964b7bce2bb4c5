package rsocket

var _ Frame = &MetadataPush{}

// MetadataPush is an asynchronous, connection-scoped metadata frame. The
// METADATA flag is always set and the body is metadata only, with no length
// prefix.
//
// https://rsocket.io/about/protocol/#metadata_push-frame-0x0c
type MetadataPush struct {
	metadata []byte
}

func (m *MetadataPush) Type() FrameType {
	return FrameMetadataPush
}

func (m *MetadataPush) Reset() {
	m.metadata = nil
}

func (m *MetadataPush) Metadata() []byte {
	return m.metadata
}

func (m *MetadataPush) SetMetadata(metadata []byte) {
	m.metadata = metadata
}

func (m *MetadataPush) Serialize(fh *FrameHeader) {
	fh.SetFlags(fh.Flags().Add(FlagMetadata))
	fh.payload = append(fh.payload[:0], m.metadata...)
}

func (m *MetadataPush) Deserialize(fh *FrameHeader) error {
	if len(fh.payload) > 0 {
		m.metadata = append([]byte(nil), fh.payload...)
	} else {
		m.metadata = nil
	}
	return nil
}

func (m *MetadataPush) Len() int {
	// stream_id 4, type+flags 2
	return 6 + len(m.metadata)
}
