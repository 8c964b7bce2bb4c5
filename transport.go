package rsocket

import (
	"bufio"
	"io"
	"net"
	"sync"

	"github.com/pkg/errors"
	"github.com/valyala/bytebufferpool"
	"golang.org/x/net/websocket"

	"github.com/domsolutions/rsocket/rsocketutils"
)

// Transport is the duplex byte source a connection runs over. The engine
// consumes and produces whole frames; whether an outer length prefix travels
// on the wire depends on the framing discipline of the transport.
type Transport interface {
	// ReadFrame returns the next whole frame: header plus body, without any
	// outer length prefix.
	ReadFrame() ([]byte, error)

	// WriteFrame writes one whole frame.
	WriteFrame(b []byte) error

	// Close closes the underlying connection.
	Close() error

	// Framed reports whether the transport preserves frame boundaries by
	// itself. Non-framed transports carry a 3-byte big-endian length prefix
	// per frame.
	Framed() bool
}

// maxFrameLen bounds a single frame on a length-prefixed transport.
const maxFrameLen = 1<<24 - 1

// tcpTransport frames the raw byte stream with a 3-byte big-endian length
// prefix per frame.
type tcpTransport struct {
	c  net.Conn
	br *bufio.Reader

	wmu sync.Mutex
	bw  *bufio.Writer
}

// NewTCPTransport wraps a raw stream connection into a length-prefixed frame
// transport.
func NewTCPTransport(c net.Conn) Transport {
	return &tcpTransport{
		c:  c,
		br: bufio.NewReaderSize(c, 4096),
		bw: bufio.NewWriterSize(c, 4096),
	}
}

func (t *tcpTransport) ReadFrame() ([]byte, error) {
	var prefix [3]byte
	if _, err := io.ReadFull(t.br, prefix[:]); err != nil {
		return nil, err
	}

	n := int(rsocketutils.BytesToUint24(prefix[:]))
	if n < HeaderSize {
		return nil, errors.Wrapf(ErrIncomplete, "frame length %d", n)
	}

	b := make([]byte, n)
	if _, err := io.ReadFull(t.br, b); err != nil {
		return nil, err
	}

	return b, nil
}

func (t *tcpTransport) WriteFrame(b []byte) error {
	if len(b) > maxFrameLen {
		return errors.Errorf("frame of %d bytes exceeds the length prefix", len(b))
	}

	t.wmu.Lock()
	defer t.wmu.Unlock()

	buf := bytebufferpool.Get()
	buf.B = rsocketutils.AppendUint24Bytes(buf.B[:0], uint32(len(b)))
	buf.B = append(buf.B, b...)

	_, err := t.bw.Write(buf.B)
	if err == nil {
		err = t.bw.Flush()
	}

	bytebufferpool.Put(buf)

	return err
}

func (t *tcpTransport) Close() error {
	return t.c.Close()
}

func (t *tcpTransport) Framed() bool {
	return false
}

// wsTransport maps one binary WebSocket message to one frame. The transport
// preserves frame boundaries, so no outer length prefix is used.
type wsTransport struct {
	ws *websocket.Conn

	wmu sync.Mutex
}

// NewWSTransport wraps a WebSocket connection into a frame-preserving
// transport.
func NewWSTransport(ws *websocket.Conn) Transport {
	ws.PayloadType = websocket.BinaryFrame
	return &wsTransport{ws: ws}
}

func (t *wsTransport) ReadFrame() ([]byte, error) {
	var b []byte
	if err := websocket.Message.Receive(t.ws, &b); err != nil {
		return nil, err
	}
	if len(b) < HeaderSize {
		return nil, errors.Wrapf(ErrIncomplete, "message of %d bytes", len(b))
	}
	return b, nil
}

func (t *wsTransport) WriteFrame(b []byte) error {
	t.wmu.Lock()
	defer t.wmu.Unlock()
	return websocket.Message.Send(t.ws, b)
}

func (t *wsTransport) Close() error {
	return t.ws.Close()
}

func (t *wsTransport) Framed() bool {
	return true
}
