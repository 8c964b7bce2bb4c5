package rsocket

// Payload is an ordered pair of opaque metadata and data byte blobs. Either
// part may be absent; an absent part is represented by a nil slice. The
// distinction between metadata and data is left to the application.
type Payload struct {
	metadata []byte
	data     []byte
}

// NewPayload builds a payload from the given metadata and data. Empty slices
// are normalized to absent.
func NewPayload(metadata, data []byte) Payload {
	if len(metadata) == 0 {
		metadata = nil
	}
	if len(data) == 0 {
		data = nil
	}
	return Payload{metadata: metadata, data: data}
}

// DataPayload builds a payload carrying only data.
func DataPayload(data []byte) Payload {
	return NewPayload(nil, data)
}

// Metadata returns the metadata part, nil if absent.
func (p Payload) Metadata() []byte {
	return p.metadata
}

// Data returns the data part, nil if absent.
func (p Payload) Data() []byte {
	return p.data
}

// HasMetadata returns true if the payload carries metadata.
func (p Payload) HasMetadata() bool {
	return p.metadata != nil
}

// HasData returns true if the payload carries data.
func (p Payload) HasData() bool {
	return p.data != nil
}

// Len returns the number of payload bytes, metadata plus data.
func (p Payload) Len() int {
	return len(p.metadata) + len(p.data)
}

// IsEmpty returns true if both parts are absent.
func (p Payload) IsEmpty() bool {
	return p.Len() == 0
}

// Equal reports whether two payloads carry the same parts.
func (p Payload) Equal(other Payload) bool {
	return string(p.metadata) == string(other.metadata) &&
		string(p.data) == string(other.data) &&
		(p.metadata == nil) == (other.metadata == nil) &&
		(p.data == nil) == (other.data == nil)
}

// Chunks splits the payload into fragments of at most mtu metadata bytes and
// mtu data bytes each. Metadata and data are chunked independently, so the
// number of fragments is ceil(max(len(metadata), len(data))/mtu). The
// returned payloads alias the original slices.
//
// An empty payload yields a single empty fragment so callers always have a
// lead frame to send.
func (p Payload) Chunks(mtu int) []Payload {
	if p.IsEmpty() {
		return []Payload{{}}
	}

	n := (max(len(p.metadata), len(p.data)) + mtu - 1) / mtu
	chunks := make([]Payload, 0, n)

	metadata, data := p.metadata, p.data
	for len(metadata) > 0 || len(data) > 0 {
		var m, d []byte
		if len(metadata) > mtu {
			m, metadata = metadata[:mtu], metadata[mtu:]
		} else {
			m, metadata = metadata, nil
		}
		if len(data) > mtu {
			d, data = data[:mtu], data[mtu:]
		} else {
			d, data = data, nil
		}
		chunks = append(chunks, NewPayload(m, d))
	}

	return chunks
}

// needsChunking reports whether the payload exceeds mtu in either part.
func (p Payload) needsChunking(mtu int) bool {
	return mtu > 0 && (len(p.metadata) > mtu || len(p.data) > mtu)
}

// appendTo appends the wire form of the payload: metadata first, then data.
func (p Payload) appendTo(dst []byte) []byte {
	dst = append(dst, p.metadata...)
	dst = append(dst, p.data...)
	return dst
}
