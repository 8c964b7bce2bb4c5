package rsocket

import (
	"errors"
	"testing"

	"github.com/domsolutions/rsocket/rsocketutils"
)

// roundTrip encodes fr on the given stream and decodes the bytes back,
// checking the length contract on the way.
func roundTrip(t *testing.T, stream uint32, fr Frame) Frame {
	t.Helper()

	b := EncodeFrame(nil, stream, fr)
	if len(b) != fr.Len() {
		t.Fatalf("encoded length mismatch %d<>%d", len(b), fr.Len())
	}

	// Header laws: reserved bit clear, type bits match.
	if b[0]&0x80 != 0 {
		t.Fatalf("stream ID high bit set: %x", b[0])
	}
	if got := FrameType(rsocketutils.BytesToUint16(b[4:]) >> 10); got != fr.Type() {
		t.Fatalf("frame type mismatch %s<>%s", got, fr.Type())
	}

	fh, err := DecodeFrame(b)
	if err != nil {
		t.Fatal(err)
	}
	if fh.Stream() != stream {
		t.Fatalf("stream mismatch %d<>%d", fh.Stream(), stream)
	}
	if fh.Len() != len(b) {
		t.Fatalf("decoded length mismatch %d<>%d", fh.Len(), len(b))
	}

	return fh.Body()
}

func TestSetupRoundTrip(t *testing.T) {
	setup := &Setup{}
	setup.SetVersion(Version{Major: 1, Minor: 0})
	setup.SetKeepaliveInterval(30000)
	setup.SetMaxLifetime(60000)
	setup.SetLease(true)
	setup.SetResumeToken([]byte("resume token"))
	setup.SetMetadataMimeType("application/json")
	setup.SetDataMimeType("application/binary")
	setup.SetPayload(NewPayload([]byte("metadata"), []byte("data")))

	got := roundTrip(t, 0, setup).(*Setup)

	if got.Version() != setup.Version() {
		t.Fatalf("version mismatch %s<>%s", got.Version(), setup.Version())
	}
	if got.KeepaliveInterval() != 30000 || got.MaxLifetime() != 60000 {
		t.Fatalf("unexpected liveness params %d/%d", got.KeepaliveInterval(), got.MaxLifetime())
	}
	if !got.Lease() {
		t.Fatal("lease flag lost")
	}
	if string(got.ResumeToken()) != "resume token" {
		t.Fatalf("token mismatch %q", got.ResumeToken())
	}
	if got.MetadataMimeType() != "application/json" || got.DataMimeType() != "application/binary" {
		t.Fatalf("mime mismatch %q/%q", got.MetadataMimeType(), got.DataMimeType())
	}
	if !got.Payload().Equal(setup.Payload()) {
		t.Fatalf("payload mismatch %v<>%v", got.Payload(), setup.Payload())
	}
}

func TestSetupRoundTripNoToken(t *testing.T) {
	setup := &Setup{}
	setup.SetVersion(DefaultVersion)
	setup.SetKeepaliveInterval(500)
	setup.SetMaxLifetime(1500)
	setup.SetMetadataMimeType(DefaultMimeType)
	setup.SetDataMimeType(DefaultMimeType)

	got := roundTrip(t, 0, setup).(*Setup)

	if got.ResumeToken() != nil {
		t.Fatalf("unexpected token %q", got.ResumeToken())
	}
	if got.Lease() {
		t.Fatal("unexpected lease flag")
	}
	if !got.Payload().IsEmpty() {
		t.Fatalf("unexpected payload %v", got.Payload())
	}
}

func TestLeaseRoundTrip(t *testing.T) {
	lease := &Lease{}
	lease.SetTTL(10)
	lease.SetNumberOfRequests(20)
	lease.SetMetadata([]byte("metadata"))

	got := roundTrip(t, 0, lease).(*Lease)

	if got.TTL() != 10 || got.NumberOfRequests() != 20 {
		t.Fatalf("mismatch %d/%d", got.TTL(), got.NumberOfRequests())
	}
	if string(got.Metadata()) != "metadata" {
		t.Fatalf("metadata mismatch %q", got.Metadata())
	}
}

func TestKeepaliveRoundTrip(t *testing.T) {
	ka := &Keepalive{}
	ka.SetRespond(true)
	ka.SetLastReceivedPosition(1)
	ka.SetData([]byte("data"))

	got := roundTrip(t, 0, ka).(*Keepalive)

	if !got.Respond() {
		t.Fatal("RESPOND flag lost")
	}
	if got.LastReceivedPosition() != 1 {
		t.Fatalf("position mismatch %d<>1", got.LastReceivedPosition())
	}
	if string(got.Data()) != "data" {
		t.Fatalf("data mismatch %q", got.Data())
	}

	// The reply form carries no RESPOND flag.
	ka.SetRespond(false)
	if got := roundTrip(t, 0, ka).(*Keepalive); got.Respond() {
		t.Fatal("unexpected RESPOND flag")
	}
}

func TestRequestResponseRoundTrip(t *testing.T) {
	rr := &RequestResponse{}
	rr.SetPayload(NewPayload([]byte("m"), []byte("d")))

	got := roundTrip(t, 1, rr).(*RequestResponse)

	if !got.Payload().Equal(rr.Payload()) {
		t.Fatalf("payload mismatch %v<>%v", got.Payload(), rr.Payload())
	}
	if got.Follows() {
		t.Fatal("unexpected FOLLOWS flag")
	}
}

func TestRequestFnfRoundTrip(t *testing.T) {
	fnf := &RequestFnf{}
	fnf.SetFollows(true)
	fnf.SetPayload(NewPayload([]byte("metadata"), []byte("data")))

	got := roundTrip(t, 1, fnf).(*RequestFnf)

	if !got.Follows() {
		t.Fatal("FOLLOWS flag lost")
	}
	if !got.Payload().Equal(fnf.Payload()) {
		t.Fatalf("payload mismatch %v<>%v", got.Payload(), fnf.Payload())
	}
}

func TestRequestStreamRoundTrip(t *testing.T) {
	rs := &RequestStream{}
	rs.SetInitialRequestN(2)
	rs.SetPayload(DataPayload([]byte("q")))

	got := roundTrip(t, 1, rs).(*RequestStream)

	if got.InitialRequestN() != 2 {
		t.Fatalf("initial_request_n mismatch %d<>2", got.InitialRequestN())
	}
	if !got.Payload().Equal(rs.Payload()) {
		t.Fatalf("payload mismatch %v<>%v", got.Payload(), rs.Payload())
	}
	if got.Payload().HasMetadata() {
		t.Fatal("unexpected metadata")
	}
}

func TestRequestChannelRoundTrip(t *testing.T) {
	rc := &RequestChannel{}
	rc.SetInitialRequestN(16)
	rc.SetComplete(true)
	rc.SetPayload(NewPayload([]byte("metadata"), []byte("data")))

	got := roundTrip(t, 3, rc).(*RequestChannel)

	if got.InitialRequestN() != 16 {
		t.Fatalf("initial_request_n mismatch %d<>16", got.InitialRequestN())
	}
	if !got.Complete() {
		t.Fatal("COMPLETE flag lost")
	}
	if !got.Payload().Equal(rc.Payload()) {
		t.Fatalf("payload mismatch %v<>%v", got.Payload(), rc.Payload())
	}
}

func TestRequestNRoundTrip(t *testing.T) {
	rn := &RequestN{}
	rn.SetN(42)

	got := roundTrip(t, 1, rn).(*RequestN)

	if got.N() != 42 {
		t.Fatalf("mismatch %d<>42", got.N())
	}
}

func TestCancelRoundTrip(t *testing.T) {
	b := EncodeFrame(nil, 3, &Cancel{})
	if len(b) != 6 {
		t.Fatalf("unexpected size %d<>6", len(b))
	}

	fh, err := DecodeFrame(b)
	if err != nil {
		t.Fatal(err)
	}
	if fh.Type() != FrameCancel || fh.Stream() != 3 {
		t.Fatalf("unexpected frame %s stream %d", fh.Type(), fh.Stream())
	}
}

func TestPayloadFrameRoundTrip(t *testing.T) {
	pf := &PayloadFrame{}
	pf.SetNext(true)
	pf.SetFollows(true)
	pf.SetPayload(NewPayload([]byte("metadata"), []byte("data")))

	got := roundTrip(t, 1, pf).(*PayloadFrame)

	if !got.Next() || !got.Follows() || got.Complete() {
		t.Fatalf("flag mismatch next=%v follows=%v complete=%v", got.Next(), got.Follows(), got.Complete())
	}
	if !got.Payload().Equal(pf.Payload()) {
		t.Fatalf("payload mismatch %v<>%v", got.Payload(), pf.Payload())
	}
}

func TestPayloadFrameMetadataFlag(t *testing.T) {
	pf := &PayloadFrame{}
	pf.SetNext(true)
	pf.SetPayload(NewPayload([]byte("m"), nil))

	b := EncodeFrame(nil, 1, pf)
	flags := FrameFlags(rsocketutils.BytesToUint16(b[4:]))
	if !flags.Has(FlagMetadata) {
		t.Fatal("METADATA flag not set for payload with metadata")
	}

	pf.SetPayload(DataPayload([]byte("d")))
	b = EncodeFrame(nil, 1, pf)
	flags = FrameFlags(rsocketutils.BytesToUint16(b[4:]))
	if flags.Has(FlagMetadata) {
		t.Fatal("METADATA flag set for payload without metadata")
	}
}

func TestErrorFrameRoundTrip(t *testing.T) {
	ef := &ErrorFrame{}
	ef.SetCode(CodeApplicationError)
	ef.SetData([]byte("boom"))

	got := roundTrip(t, 1, ef).(*ErrorFrame)

	if got.Code() != CodeApplicationError {
		t.Fatalf("code mismatch %s<>%s", got.Code(), CodeApplicationError)
	}
	if string(got.Data()) != "boom" {
		t.Fatalf("data mismatch %q", got.Data())
	}

	ef.SetCode(CodeConnectionError)
	ef.SetData(nil)
	if got := roundTrip(t, 0, ef).(*ErrorFrame); got.Code() != CodeConnectionError {
		t.Fatalf("code mismatch %s<>%s", got.Code(), CodeConnectionError)
	}
}

func TestMetadataPushRoundTrip(t *testing.T) {
	mp := &MetadataPush{}
	mp.SetMetadata([]byte("metadata"))

	got := roundTrip(t, 0, mp).(*MetadataPush)

	if string(got.Metadata()) != "metadata" {
		t.Fatalf("metadata mismatch %q", got.Metadata())
	}
}

func TestResumeRoundTrip(t *testing.T) {
	r := &Resume{}
	r.SetVersion(DefaultVersion)
	r.SetToken([]byte("token"))
	r.SetLastReceivedServerPosition(100)
	r.SetFirstAvailableClientPosition(50)

	got := roundTrip(t, 0, r).(*Resume)

	if string(got.Token()) != "token" {
		t.Fatalf("token mismatch %q", got.Token())
	}
	if got.LastReceivedServerPosition() != 100 || got.FirstAvailableClientPosition() != 50 {
		t.Fatalf("position mismatch %d/%d", got.LastReceivedServerPosition(), got.FirstAvailableClientPosition())
	}
}

func TestResumeOkRoundTrip(t *testing.T) {
	r := &ResumeOk{}
	r.SetLastReceivedClientPosition(77)

	got := roundTrip(t, 0, r).(*ResumeOk)

	if got.LastReceivedClientPosition() != 77 {
		t.Fatalf("position mismatch %d<>77", got.LastReceivedClientPosition())
	}
}

func TestDecodeIncomplete(t *testing.T) {
	if _, err := DecodeFrame([]byte{0, 0, 0}); !errors.Is(err, ErrIncomplete) {
		t.Fatalf("expected ErrIncomplete, got %v", err)
	}

	// KEEPALIVE with a truncated position.
	b := EncodeFrame(nil, 0, &Keepalive{})
	if _, err := DecodeFrame(b[:10]); !errors.Is(err, ErrIncomplete) {
		t.Fatalf("expected ErrIncomplete, got %v", err)
	}
}

func TestDecodeUnrecognizedFrameType(t *testing.T) {
	// Type 0x2F is not assigned.
	var b [6]byte
	b[4] = byte(uint16(0x2F<<10) >> 8)

	_, err := DecodeFrame(b[:])
	var ufe *UnrecognizedFrameTypeError
	if !errors.As(err, &ufe) {
		t.Fatalf("expected UnrecognizedFrameTypeError, got %v", err)
	}
	if ufe.Value != 0x2F {
		t.Fatalf("value mismatch %#x<>0x2f", ufe.Value)
	}
}

func TestDecodeExtUnsupported(t *testing.T) {
	var b [6]byte
	b[4] = byte(uint16(0x3F<<10) >> 8)

	if _, err := DecodeFrame(b[:]); !errors.Is(err, ErrExtUnsupported) {
		t.Fatalf("expected ErrExtUnsupported, got %v", err)
	}
}

func TestDecodeStreamIDConstraints(t *testing.T) {
	// Connection-scoped frames on a non-zero stream fail.
	for _, fr := range []Frame{&Setup{}, &Lease{}, &Keepalive{}, &MetadataPush{}, &Resume{}, &ResumeOk{}} {
		b := EncodeFrame(nil, 0, fr)
		rsocketutils.Uint32ToBytes(b[:4], 7)

		_, err := DecodeFrame(b)
		var ise *InvalidStreamIDError
		if !errors.As(err, &ise) {
			t.Fatalf("%s: expected InvalidStreamIDError, got %v", fr.Type(), err)
		}
		if ise.Found != 7 {
			t.Fatalf("%s: found mismatch %d<>7", fr.Type(), ise.Found)
		}
	}

	// Stream-scoped frames on stream 0 fail.
	rn := &RequestN{}
	rn.SetN(1)
	for _, fr := range []Frame{&RequestResponse{}, &RequestFnf{}, &RequestStream{}, &RequestChannel{}, rn, &Cancel{}, &PayloadFrame{}} {
		b := EncodeFrame(nil, 1, fr)
		rsocketutils.Uint32ToBytes(b[:4], 0)

		var ise *InvalidStreamIDError
		if _, err := DecodeFrame(b); !errors.As(err, &ise) {
			t.Fatalf("%s: expected InvalidStreamIDError, got %v", fr.Type(), err)
		}
	}
}

func TestDecodeErrorFrameStreamID(t *testing.T) {
	// Connection-level code on a non-zero stream.
	ef := &ErrorFrame{}
	ef.SetCode(CodeConnectionError)
	b := EncodeFrame(nil, 0, ef)
	rsocketutils.Uint32ToBytes(b[:4], 5)

	var ise *InvalidStreamIDError
	if _, err := DecodeFrame(b); !errors.As(err, &ise) {
		t.Fatalf("expected InvalidStreamIDError, got %v", err)
	}

	// Stream-level code on stream 0.
	ef.SetCode(CodeApplicationError)
	b = EncodeFrame(nil, 5, ef)
	rsocketutils.Uint32ToBytes(b[:4], 0)

	if _, err := DecodeFrame(b); !errors.As(err, &ise) {
		t.Fatalf("expected InvalidStreamIDError, got %v", err)
	}
}

func TestDecodeMasksReservedStreamBit(t *testing.T) {
	b := EncodeFrame(nil, 1, &Cancel{})
	b[0] |= 0x80

	fh, err := DecodeFrame(b)
	if err != nil {
		t.Fatal(err)
	}
	if fh.Stream() != 1 {
		t.Fatalf("stream mismatch %d<>1", fh.Stream())
	}
}

func TestDecodeTruncatesUndefinedFlags(t *testing.T) {
	b := EncodeFrame(nil, 1, &Cancel{})
	b[5] |= 0x0F // undefined low bits

	fh, err := DecodeFrame(b)
	if err != nil {
		t.Fatal(err)
	}
	if fh.Flags()&^flagsMask != 0 {
		t.Fatalf("undefined flags survived: %#x", fh.Flags())
	}
}
