package rsocket

import (
	"github.com/domsolutions/rsocket/rsocketutils"
)

var _ Frame = &ResumeOk{}

// ResumeOk is sent by the server in response to a RESUME frame when resuming
// the session is possible.
//
// https://rsocket.io/about/protocol/#resume_ok-frame-0x0e
type ResumeOk struct {
	lastReceivedClientPosition uint64
}

func (r *ResumeOk) Type() FrameType {
	return FrameResumeOk
}

func (r *ResumeOk) Reset() {
	r.lastReceivedClientPosition = 0
}

func (r *ResumeOk) LastReceivedClientPosition() uint64 {
	return r.lastReceivedClientPosition
}

func (r *ResumeOk) SetLastReceivedClientPosition(pos uint64) {
	r.lastReceivedClientPosition = pos & MaxPosition
}

func (r *ResumeOk) Serialize(fh *FrameHeader) {
	fh.payload = rsocketutils.AppendUint64Bytes(fh.payload[:0], r.lastReceivedClientPosition&MaxPosition)
}

func (r *ResumeOk) Deserialize(fh *FrameHeader) error {
	if len(fh.payload) < 8 {
		return ErrIncomplete
	}

	r.lastReceivedClientPosition = rsocketutils.BytesToUint64(fh.payload) & MaxPosition

	return nil
}

func (r *ResumeOk) Len() int {
	// stream_id 4, type+flags 2, last_received_client_position 8
	return 14
}
