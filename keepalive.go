package rsocket

import (
	"github.com/domsolutions/rsocket/rsocketutils"
)

var _ Frame = &Keepalive{}

// Keepalive is the connection liveness frame. A frame with the RESPOND flag
// set asks the peer to reply with a KEEPALIVE of its own, echoing the data.
//
// https://rsocket.io/about/protocol/#keepalive-frame-0x03
type Keepalive struct {
	respond              bool
	lastReceivedPosition uint64 // 63 bits
	data                 []byte
}

func (k *Keepalive) Type() FrameType {
	return FrameKeepalive
}

func (k *Keepalive) Reset() {
	k.respond = false
	k.lastReceivedPosition = 0
	k.data = nil
}

// Respond returns true if the peer must reply with a KEEPALIVE.
func (k *Keepalive) Respond() bool {
	return k.respond
}

func (k *Keepalive) SetRespond(respond bool) {
	k.respond = respond
}

// LastReceivedPosition returns the cumulative byte position the sender has
// received from its peer.
func (k *Keepalive) LastReceivedPosition() uint64 {
	return k.lastReceivedPosition
}

func (k *Keepalive) SetLastReceivedPosition(pos uint64) {
	k.lastReceivedPosition = pos & MaxPosition
}

func (k *Keepalive) Data() []byte {
	return k.data
}

func (k *Keepalive) SetData(data []byte) {
	if len(data) == 0 {
		data = nil
	}
	k.data = data
}

func (k *Keepalive) Serialize(fh *FrameHeader) {
	if k.respond {
		fh.SetFlags(fh.Flags().Add(FlagRespond))
	}

	b := rsocketutils.AppendUint64Bytes(fh.payload[:0], k.lastReceivedPosition&MaxPosition)
	fh.payload = append(b, k.data...)
}

func (k *Keepalive) Deserialize(fh *FrameHeader) error {
	b := fh.payload
	if len(b) < 8 {
		return ErrIncomplete
	}

	k.respond = fh.Flags().Has(FlagRespond)
	k.lastReceivedPosition = rsocketutils.BytesToUint64(b) & MaxPosition
	if rest := b[8:]; len(rest) > 0 {
		k.data = append([]byte(nil), rest...)
	} else {
		k.data = nil
	}

	return nil
}

func (k *Keepalive) Len() int {
	// stream_id 4, type+flags 2, last_received_position 8
	return 14 + len(k.data)
}
