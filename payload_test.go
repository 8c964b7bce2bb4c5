package rsocket

import (
	"bytes"
	"testing"
)

func TestChunks(t *testing.T) {
	payload := NewPayload([]byte("metadata"), []byte("data payload"))

	chunks := payload.Chunks(4)
	want := []Payload{
		NewPayload([]byte("meta"), []byte("data")),
		NewPayload([]byte("data"), []byte(" pay")),
		NewPayload(nil, []byte("load")),
	}

	if len(chunks) != len(want) {
		t.Fatalf("unexpected chunk count %d<>%d", len(chunks), len(want))
	}
	for i := range want {
		if !chunks[i].Equal(want[i]) {
			t.Fatalf("chunk %d mismatch %v<>%v", i, chunks[i], want[i])
		}
	}
}

func TestChunksCount(t *testing.T) {
	for _, tc := range []struct {
		metadata, data int
		mtu            int
		want           int
	}{
		{metadata: 8, data: 12, mtu: 4, want: 3},
		{metadata: 0, data: 12, mtu: 4, want: 3},
		{metadata: 13, data: 1, mtu: 4, want: 4},
		{metadata: 4, data: 4, mtu: 4, want: 1},
		{metadata: 0, data: 0, mtu: 4, want: 1},
	} {
		p := NewPayload(bytes.Repeat([]byte{'m'}, tc.metadata), bytes.Repeat([]byte{'d'}, tc.data))
		if got := len(p.Chunks(tc.mtu)); got != tc.want {
			t.Fatalf("chunks(%d, %d, mtu=%d) = %d, want %d", tc.metadata, tc.data, tc.mtu, got, tc.want)
		}
	}
}

func TestChunksConcatenation(t *testing.T) {
	payload := NewPayload(bytes.Repeat([]byte{'m'}, 33), bytes.Repeat([]byte{'d'}, 70))

	var metadata, data []byte
	for _, chunk := range payload.Chunks(16) {
		metadata = append(metadata, chunk.Metadata()...)
		data = append(data, chunk.Data()...)
	}

	if !bytes.Equal(metadata, payload.Metadata()) {
		t.Fatalf("metadata mismatch after reassembly: %d bytes", len(metadata))
	}
	if !bytes.Equal(data, payload.Data()) {
		t.Fatalf("data mismatch after reassembly: %d bytes", len(data))
	}
}

func TestChunkedFramesClearFollowsOnLast(t *testing.T) {
	payload := NewPayload([]byte("metadata"), []byte("data payload"))
	chunks := payload.Chunks(4)

	for i, chunk := range chunks {
		pf := &PayloadFrame{}
		pf.SetNext(true)
		pf.SetFollows(i != len(chunks)-1)
		pf.SetPayload(chunk)

		b := EncodeFrame(nil, 1, pf)
		fh, err := DecodeFrame(b)
		if err != nil {
			t.Fatal(err)
		}

		wantFollows := i != len(chunks)-1
		if got := fh.Flags().Has(FlagFollows); got != wantFollows {
			t.Fatalf("chunk %d: FOLLOWS=%v, want %v", i, got, wantFollows)
		}
	}
}

func TestPayloadNormalizesEmpty(t *testing.T) {
	p := NewPayload([]byte{}, []byte{})
	if p.HasMetadata() || p.HasData() {
		t.Fatal("empty slices should normalize to absent")
	}
	if !p.IsEmpty() {
		t.Fatal("expected empty payload")
	}
}

func TestNeedsChunking(t *testing.T) {
	p := NewPayload(nil, bytes.Repeat([]byte{'d'}, 10))

	if p.needsChunking(0) {
		t.Fatal("mtu 0 disables chunking")
	}
	if p.needsChunking(10) {
		t.Fatal("payload at the mtu does not chunk")
	}
	if !p.needsChunking(9) {
		t.Fatal("payload over the mtu chunks")
	}
}
