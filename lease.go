package rsocket

import (
	"github.com/domsolutions/rsocket/rsocketutils"
)

var _ Frame = &Lease{}

// Lease is sent by a responder to inform the requester that it may send
// requests for a period of time, and how many of them.
//
// https://rsocket.io/about/protocol/#lease-frame-0x02
type Lease struct {
	ttl              uint32 // milliseconds, from time of reception
	numberOfRequests uint32
	metadata         []byte
}

func (l *Lease) Type() FrameType {
	return FrameLease
}

func (l *Lease) Reset() {
	l.ttl = 0
	l.numberOfRequests = 0
	l.metadata = nil
}

// TTL returns the validity time (in milliseconds) of the lease from time of
// reception.
func (l *Lease) TTL() uint32 {
	return l.ttl
}

func (l *Lease) SetTTL(ms uint32) {
	l.ttl = ms & MaxStreamID
}

// NumberOfRequests returns the number of requests that may be sent until the
// next LEASE.
func (l *Lease) NumberOfRequests() uint32 {
	return l.numberOfRequests
}

func (l *Lease) SetNumberOfRequests(n uint32) {
	l.numberOfRequests = n & MaxStreamID
}

func (l *Lease) Metadata() []byte {
	return l.metadata
}

func (l *Lease) SetMetadata(metadata []byte) {
	if len(metadata) == 0 {
		metadata = nil
	}
	l.metadata = metadata
}

func (l *Lease) Serialize(fh *FrameHeader) {
	if l.metadata != nil {
		fh.SetFlags(fh.Flags().Add(FlagMetadata))
	}

	b := rsocketutils.AppendUint32Bytes(fh.payload[:0], l.ttl)
	b = rsocketutils.AppendUint32Bytes(b, l.numberOfRequests)
	fh.payload = append(b, l.metadata...)
}

func (l *Lease) Deserialize(fh *FrameHeader) error {
	b := fh.payload
	if len(b) < 8 {
		return ErrIncomplete
	}

	l.ttl = rsocketutils.BytesToUint32(b) & MaxStreamID
	l.numberOfRequests = rsocketutils.BytesToUint32(b[4:]) & MaxStreamID
	if rest := b[8:]; len(rest) > 0 {
		l.metadata = append([]byte(nil), rest...)
	} else {
		l.metadata = nil
	}

	return nil
}

func (l *Lease) Len() int {
	// stream_id 4, type+flags 2, ttl 4, number_of_requests 4
	return 14 + len(l.metadata)
}
