package rsocket

import (
	"github.com/domsolutions/rsocket/rsocketutils"
)

var _ Frame = &Resume{}

// Resume replaces SETUP when a client reconnects to resume a prior session.
// Positions are 63-bit byte offsets into the implied logical frame stream.
//
// https://rsocket.io/about/protocol/#resume-frame-0x0d
type Resume struct {
	version                      Version
	token                        []byte
	lastReceivedServerPosition   uint64
	firstAvailableClientPosition uint64
}

func (r *Resume) Type() FrameType {
	return FrameResume
}

func (r *Resume) Reset() {
	r.version = Version{}
	r.token = nil
	r.lastReceivedServerPosition = 0
	r.firstAvailableClientPosition = 0
}

func (r *Resume) Version() Version {
	return r.version
}

func (r *Resume) SetVersion(v Version) {
	r.version = v
}

// Token returns the resume identification token from the prior session.
func (r *Resume) Token() []byte {
	return r.token
}

func (r *Resume) SetToken(token []byte) {
	r.token = token
}

func (r *Resume) LastReceivedServerPosition() uint64 {
	return r.lastReceivedServerPosition
}

func (r *Resume) SetLastReceivedServerPosition(pos uint64) {
	r.lastReceivedServerPosition = pos & MaxPosition
}

func (r *Resume) FirstAvailableClientPosition() uint64 {
	return r.firstAvailableClientPosition
}

func (r *Resume) SetFirstAvailableClientPosition(pos uint64) {
	r.firstAvailableClientPosition = pos & MaxPosition
}

func (r *Resume) Serialize(fh *FrameHeader) {
	b := r.version.append(fh.payload[:0])
	b = rsocketutils.AppendUint16Bytes(b, uint16(len(r.token)))
	b = append(b, r.token...)
	b = rsocketutils.AppendUint64Bytes(b, r.lastReceivedServerPosition&MaxPosition)
	fh.payload = rsocketutils.AppendUint64Bytes(b, r.firstAvailableClientPosition&MaxPosition)
}

func (r *Resume) Deserialize(fh *FrameHeader) error {
	b := fh.payload
	if len(b) < 6 {
		return ErrIncomplete
	}

	r.version = versionFromBytes(b)
	tokenLen := int(rsocketutils.BytesToUint16(b[4:]))
	b = b[6:]
	if len(b) < tokenLen+16 {
		return ErrIncomplete
	}

	if tokenLen > 0 {
		r.token = append([]byte(nil), b[:tokenLen]...)
	} else {
		r.token = nil
	}
	b = b[tokenLen:]
	r.lastReceivedServerPosition = rsocketutils.BytesToUint64(b) & MaxPosition
	r.firstAvailableClientPosition = rsocketutils.BytesToUint64(b[8:]) & MaxPosition

	return nil
}

func (r *Resume) Len() int {
	// stream_id 4, type+flags 2, version 4, token_length 2, positions 16
	return 28 + len(r.token)
}
