package rsocket

import (
	"net"
	"time"

	"github.com/pkg/errors"
	"github.com/valyala/fastrand"
	"golang.org/x/net/websocket"
)

// Dialer creates client-side RSocket connections.
type Dialer struct {
	// Addr is the server's address in the form `host:port`.
	Addr string

	// Config holds the connection options.
	Config Config

	// MaxRedialAttempts bounds Redial. Zero means DefaultRedialAttempts.
	MaxRedialAttempts int
}

// DefaultRedialAttempts is the number of reconnects Redial makes before
// giving up.
const DefaultRedialAttempts = 5

// Dial opens a TCP connection, performs the SETUP handshake and returns the
// connection ready for use.
func (d *Dialer) Dial() (*Conn, error) {
	c, err := net.Dial("tcp", d.Addr)
	if err != nil {
		return nil, errors.Wrap(err, "dialing")
	}

	conn := NewConn(NewTCPTransport(c), RoleClient, d.Config)
	if err := conn.Handshake(); err != nil {
		return nil, err
	}

	return conn, nil
}

// DialWS opens a WebSocket connection to url and performs the SETUP
// handshake. The transport preserves frame boundaries, so frames travel
// without an outer length prefix.
func (d *Dialer) DialWS(url, origin string) (*Conn, error) {
	ws, err := websocket.Dial(url, "", origin)
	if err != nil {
		return nil, errors.Wrap(err, "dialing websocket")
	}

	conn := NewConn(NewWSTransport(ws), RoleClient, d.Config)
	if err := conn.Handshake(); err != nil {
		return nil, err
	}

	return conn, nil
}

// Redial reconnects after a connection loss and offers the server a RESUME
// handshake with the prior session token and positions. Attempts are spaced
// by a jittered backoff; a REJECTED_RESUME ends them early since retrying
// cannot change the server's answer.
func (d *Dialer) Redial(token []byte, lastReceivedServer, firstAvailableClient uint64) (*Conn, error) {
	attempts := d.MaxRedialAttempts
	if attempts <= 0 {
		attempts = DefaultRedialAttempts
	}

	var lastErr error
	for i := 0; i < attempts; i++ {
		if i > 0 {
			time.Sleep(redialBackoff(i))
		}

		c, err := net.Dial("tcp", d.Addr)
		if err != nil {
			lastErr = err
			continue
		}

		conn := NewConn(NewTCPTransport(c), RoleClient, d.Config)
		err = conn.HandshakeResume(token, lastReceivedServer, firstAvailableClient)
		if err == nil {
			return conn, nil
		}
		lastErr = err

		if errors.Is(err, NewError(CodeRejectedResume, "")) {
			break
		}
	}

	return nil, errors.Wrap(lastErr, "resuming session")
}

// redialBackoff spaces attempt i by 2^i * 100ms with up to 50% random
// jitter, capped at 5s.
func redialBackoff(attempt int) time.Duration {
	base := 100 * time.Millisecond << uint(attempt)
	if base > 5*time.Second {
		base = 5 * time.Second
	}
	jitter := time.Duration(fastrand.Uint32n(uint32(base / 2)))
	return base + jitter
}
