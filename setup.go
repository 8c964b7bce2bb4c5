package rsocket

import (
	"github.com/domsolutions/rsocket/rsocketutils"
)

var _ Frame = &Setup{}

// Setup is sent by the client as the first frame of a connection to inform
// the server of the parameters under which it desires to operate.
//
// https://rsocket.io/about/protocol/#setup-frame-0x01
type Setup struct {
	version           Version
	keepaliveInterval uint32 // milliseconds
	maxLifetime       uint32 // milliseconds
	lease             bool
	resumeToken       []byte // RESUME flag set iff non-nil
	metadataMimeType  []byte
	dataMimeType      []byte
	payload           Payload
}

func (s *Setup) Type() FrameType {
	return FrameSetup
}

func (s *Setup) Reset() {
	s.version = Version{}
	s.keepaliveInterval = 0
	s.maxLifetime = 0
	s.lease = false
	s.resumeToken = nil
	s.metadataMimeType = s.metadataMimeType[:0]
	s.dataMimeType = s.dataMimeType[:0]
	s.payload = Payload{}
}

func (s *Setup) Version() Version {
	return s.version
}

func (s *Setup) SetVersion(v Version) {
	s.version = v
}

// KeepaliveInterval returns the time (in milliseconds) between KEEPALIVE
// frames that the client will send.
func (s *Setup) KeepaliveInterval() uint32 {
	return s.keepaliveInterval
}

func (s *Setup) SetKeepaliveInterval(ms uint32) {
	s.keepaliveInterval = ms & MaxStreamID
}

// MaxLifetime returns the time (in milliseconds) that the client will allow
// the server to not respond to a KEEPALIVE before it is assumed dead.
func (s *Setup) MaxLifetime() uint32 {
	return s.maxLifetime
}

func (s *Setup) SetMaxLifetime(ms uint32) {
	s.maxLifetime = ms & MaxStreamID
}

// Lease returns true if the client will honor LEASE frames.
func (s *Setup) Lease() bool {
	return s.lease
}

func (s *Setup) SetLease(lease bool) {
	s.lease = lease
}

// ResumeToken returns the resume identification token, nil if resumption was
// not requested.
func (s *Setup) ResumeToken() []byte {
	return s.resumeToken
}

// SetResumeToken sets the resume identification token and the RESUME flag.
// The token MUST NOT exceed MaxResumeTokenLen bytes.
func (s *Setup) SetResumeToken(token []byte) {
	if len(token) == 0 {
		token = nil
	}
	s.resumeToken = token
}

func (s *Setup) MetadataMimeType() string {
	return string(s.metadataMimeType)
}

func (s *Setup) SetMetadataMimeType(mime string) {
	s.metadataMimeType = append(s.metadataMimeType[:0], mime...)
}

func (s *Setup) DataMimeType() string {
	return string(s.dataMimeType)
}

func (s *Setup) SetDataMimeType(mime string) {
	s.dataMimeType = append(s.dataMimeType[:0], mime...)
}

func (s *Setup) Payload() Payload {
	return s.payload
}

func (s *Setup) SetPayload(p Payload) {
	s.payload = p
}

func (s *Setup) Serialize(fh *FrameHeader) {
	if s.lease {
		fh.SetFlags(fh.Flags().Add(FlagLease))
	}
	if s.resumeToken != nil {
		fh.SetFlags(fh.Flags().Add(FlagResume))
	}
	if s.payload.HasMetadata() {
		fh.SetFlags(fh.Flags().Add(FlagMetadata))
	}

	b := s.version.append(fh.payload[:0])
	b = rsocketutils.AppendUint32Bytes(b, s.keepaliveInterval&MaxStreamID)
	b = rsocketutils.AppendUint32Bytes(b, s.maxLifetime&MaxStreamID)
	if s.resumeToken != nil {
		b = rsocketutils.AppendUint16Bytes(b, uint16(len(s.resumeToken)))
		b = append(b, s.resumeToken...)
	}
	b = append(b, byte(len(s.metadataMimeType)))
	b = append(b, s.metadataMimeType...)
	b = append(b, byte(len(s.dataMimeType)))
	b = append(b, s.dataMimeType...)
	fh.payload = appendMetadataPrefixed(b, s.payload)
}

func (s *Setup) Deserialize(fh *FrameHeader) error {
	b := fh.payload
	if len(b) < 12 {
		return ErrIncomplete
	}

	s.version = versionFromBytes(b)
	s.keepaliveInterval = rsocketutils.BytesToUint32(b[4:]) & MaxStreamID
	s.maxLifetime = rsocketutils.BytesToUint32(b[8:]) & MaxStreamID
	s.lease = fh.Flags().Has(FlagLease)
	b = b[12:]

	if fh.Flags().Has(FlagResume) {
		if len(b) < 2 {
			return ErrIncomplete
		}
		tokenLen := int(rsocketutils.BytesToUint16(b))
		b = b[2:]
		if len(b) < tokenLen {
			return ErrIncomplete
		}
		s.resumeToken = append([]byte(nil), b[:tokenLen]...)
		b = b[tokenLen:]
	}

	for _, dst := range []*[]byte{&s.metadataMimeType, &s.dataMimeType} {
		if len(b) < 1 {
			return ErrIncomplete
		}
		mimeLen := int(b[0])
		b = b[1:]
		if len(b) < mimeLen {
			return ErrIncomplete
		}
		*dst = append((*dst)[:0], b[:mimeLen]...)
		b = b[mimeLen:]
	}

	payload, err := eatPayload(b)
	if err != nil {
		return err
	}
	s.payload = payload

	return nil
}

func (s *Setup) Len() int {
	// stream_id 4, type+flags 2, version 4, keepalive 4, lifetime 4
	n := 18
	if s.resumeToken != nil {
		n += 2 + len(s.resumeToken)
	}
	n += 1 + len(s.metadataMimeType)
	n += 1 + len(s.dataMimeType)
	n += 3 + s.payload.Len()
	return n
}
