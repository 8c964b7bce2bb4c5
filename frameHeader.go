package rsocket

import (
	"sync"

	"github.com/domsolutions/rsocket/rsocketutils"
)

const (
	// HeaderSize is the size of the shared frame header: a 31-bit stream ID
	// and the 16-bit type-and-flags word.
	HeaderSize = 6

	// MaxStreamID is the maximum value a 31-bit stream ID can hold.
	MaxStreamID = 1<<31 - 1

	// MaxPosition is the maximum value a 63-bit position counter can hold.
	MaxPosition = 1<<63 - 1

	// MaxRequestN is the maximum credit a REQUEST_N or initial_request_n
	// field can carry.
	MaxRequestN = 1<<31 - 1

	// MaxResumeTokenLen is the maximum length of a resume identification
	// token.
	MaxResumeTokenLen = 65535

	// MaxMimeTypeLen is the maximum length of a MIME type string.
	MaxMimeTypeLen = 256
)

var frameHeaderPool = sync.Pool{
	New: func() interface{} {
		return &FrameHeader{}
	},
}

// FrameHeader is the shared header of every RSocket frame plus the raw body
// bytes of its type-specific payload.
//
// Use AcquireFrameHeader instead of creating a FrameHeader every time if you
// are going to use it as your own, and ReleaseFrameHeader to return it.
//
// FrameHeader instances MUST NOT be used from concurrently running
// goroutines.
type FrameHeader struct {
	stream uint32
	kind   FrameType
	flags  FrameFlags

	payload []byte

	fr Frame
}

// AcquireFrameHeader gets a FrameHeader from the pool.
func AcquireFrameHeader() *FrameHeader {
	fh := frameHeaderPool.Get().(*FrameHeader)
	fh.Reset()
	return fh
}

// ReleaseFrameHeader resets and puts fh, and its body, back to the pools.
func ReleaseFrameHeader(fh *FrameHeader) {
	if fh.fr != nil {
		ReleaseFrame(fh.fr)
	}
	fh.fr = nil
	frameHeaderPool.Put(fh)
}

// Reset resets header values.
func (fh *FrameHeader) Reset() {
	fh.stream = 0
	fh.kind = 0
	fh.flags = 0
	fh.payload = fh.payload[:0]
	fh.fr = nil
}

// Type returns the frame type.
func (fh *FrameHeader) Type() FrameType {
	return fh.kind
}

// Flags returns the header flags.
func (fh *FrameHeader) Flags() FrameFlags {
	return fh.flags
}

// SetFlags sets the header flags.
func (fh *FrameHeader) SetFlags(flags FrameFlags) {
	fh.flags = flags
}

// Stream returns the stream ID of the current frame.
func (fh *FrameHeader) Stream() uint32 {
	return fh.stream
}

// SetStream sets the stream ID on the current frame. The reserved top bit is
// cleared.
func (fh *FrameHeader) SetStream(stream uint32) {
	fh.stream = stream & MaxStreamID
}

// Body returns the frame body.
func (fh *FrameHeader) Body() Frame {
	return fh.fr
}

// SetBody sets the frame body and the header type.
func (fh *FrameHeader) SetBody(fr Frame) {
	if fr == nil {
		panic("Body cannot be nil")
	}

	fh.kind = fr.Type()
	fh.fr = fr
}

// Len returns the encoded length of the whole frame.
func (fh *FrameHeader) Len() int {
	return fh.fr.Len()
}

func (fh *FrameHeader) setPayload(payload []byte) {
	fh.payload = append(fh.payload[:0], payload...)
}

// Encode serializes the frame body and appends the encoded frame to dst.
func (fh *FrameHeader) Encode(dst []byte) []byte {
	fh.flags = 0
	fh.fr.Serialize(fh)

	dst = rsocketutils.AppendUint32Bytes(dst, fh.stream&MaxStreamID)
	dst = rsocketutils.AppendUint16Bytes(dst, fh.kind.bits()|uint16(fh.flags))
	dst = append(dst, fh.payload...)

	return dst
}

// EncodeFrame encodes a whole frame: stream ID, type-and-flags word and body.
func EncodeFrame(dst []byte, stream uint32, fr Frame) []byte {
	fh := AcquireFrameHeader()
	fh.SetStream(stream)
	fh.SetBody(fr)

	dst = fh.Encode(dst)

	fh.fr = nil // caller keeps ownership of the body
	frameHeaderPool.Put(fh)

	return dst
}

// DecodeFrame decodes one whole frame out of b. It refuses short inputs with
// ErrIncomplete, unknown type bits with UnrecognizedFrameTypeError and frames
// whose stream ID is not permitted for their type with InvalidStreamIDError.
//
// The returned FrameHeader and its body come from the pools; release with
// ReleaseFrameHeader. The body holds copies of the consumed bytes, so b may
// be reused by the caller.
func DecodeFrame(b []byte) (*FrameHeader, error) {
	if len(b) < HeaderSize {
		return nil, ErrIncomplete
	}

	stream := rsocketutils.BytesToUint32(b) & MaxStreamID
	word := rsocketutils.BytesToUint16(b[4:])

	kind, ok := frameTypeFromBits(word)
	if !ok {
		return nil, &UnrecognizedFrameTypeError{Value: word >> 10}
	}
	if kind == FrameExt {
		return nil, ErrExtUnsupported
	}

	if err := checkStreamID(kind, stream); err != nil {
		return nil, err
	}

	fh := AcquireFrameHeader()
	fh.stream = stream
	fh.kind = kind
	fh.flags = FrameFlags(word) & flagsMask
	fh.payload = append(fh.payload[:0], b[HeaderSize:]...)
	fh.fr = AcquireFrame(kind)

	if err := fh.fr.Deserialize(fh); err != nil {
		ReleaseFrameHeader(fh)
		return nil, err
	}

	return fh, nil
}

// checkStreamID enforces the stream-ID constraints of §5.3 of the protocol:
// connection-scoped frames use stream 0, stream-scoped frames never do.
// ERROR frames are validated against their code during Deserialize.
func checkStreamID(kind FrameType, stream uint32) error {
	switch kind {
	case FrameSetup, FrameLease, FrameKeepalive, FrameMetadataPush,
		FrameResume, FrameResumeOk:
		if stream != 0 {
			return &InvalidStreamIDError{Expected: "0", Found: stream}
		}
	case FrameRequestResponse, FrameRequestFnf, FrameRequestStream,
		FrameRequestChannel, FrameRequestN, FrameCancel, FramePayload:
		if stream == 0 {
			return &InvalidStreamIDError{Expected: "> 0", Found: stream}
		}
	}
	return nil
}

// appendMetadataPrefixed appends the 24-bit metadata length prefix, the
// metadata and the data of p. Used by every payload-carrying frame body.
func appendMetadataPrefixed(dst []byte, p Payload) []byte {
	dst = rsocketutils.AppendUint24Bytes(dst, uint32(len(p.metadata)))
	dst = p.appendTo(dst)
	return dst
}

// eatPayload parses a 24-bit length-prefixed metadata part and a data part
// occupying the remainder of b.
func eatPayload(b []byte) (Payload, error) {
	if len(b) < 3 {
		return Payload{}, ErrIncomplete
	}

	metadataLen := int(rsocketutils.BytesToUint24(b))
	b = b[3:]
	if len(b) < metadataLen {
		return Payload{}, ErrIncomplete
	}

	var metadata, data []byte
	if metadataLen > 0 {
		metadata = append(metadata, b[:metadataLen]...)
	}
	if rest := b[metadataLen:]; len(rest) > 0 {
		data = append(data, rest...)
	}

	return Payload{metadata: metadata, data: data}, nil
}
