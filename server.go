package rsocket

import (
	"net"
	"net/http"
	"sync"
	"sync/atomic"

	"github.com/pkg/errors"
	"golang.org/x/net/websocket"
)

// Server accepts transport connections and serves RSocket over them.
type Server struct {
	// Config holds the connection options applied to every accepted
	// connection, including the responder Handler.
	Config Config

	// OnConn fires after a successful handshake with the connection ready
	// for use. The callback is where a server grabs the requester side of
	// the capability or installs a per-connection handler.
	OnConn func(c *Conn)

	mu     sync.Mutex
	lns    []net.Listener
	closed uint32
}

// Serve accepts connections from ln until it is closed or Shutdown is
// called. Each accepted connection runs the server-side handshake and its
// own engine goroutines.
func (s *Server) Serve(ln net.Listener) error {
	s.mu.Lock()
	s.lns = append(s.lns, ln)
	s.mu.Unlock()

	for {
		c, err := ln.Accept()
		if err != nil {
			if atomic.LoadUint32(&s.closed) == 1 {
				return nil
			}
			return errors.Wrap(err, "accepting")
		}

		go s.serveConn(NewTCPTransport(c))
	}
}

// ListenAndServe listens on the given TCP address and calls Serve.
func (s *Server) ListenAndServe(addr string) error {
	ln, err := net.Listen("tcp", addr)
	if err != nil {
		return errors.Wrap(err, "listening")
	}
	return s.Serve(ln)
}

// WSHandler returns an http.Handler that upgrades requests to WebSocket and
// serves RSocket over the frame-preserving transport.
func (s *Server) WSHandler() http.Handler {
	return websocket.Server{
		Handler: func(ws *websocket.Conn) {
			conn := s.newConn(NewWSTransport(ws))
			if err := conn.Handshake(); err != nil {
				return
			}
			if s.OnConn != nil {
				s.OnConn(conn)
			}
			// The websocket package closes ws when this handler returns.
			<-conn.closeCh
		},
	}
}

// ServeConn runs the server-side handshake on an already established
// transport and returns the connection.
func (s *Server) ServeConn(tr Transport) (*Conn, error) {
	conn := s.newConn(tr)
	if err := conn.Handshake(); err != nil {
		return nil, err
	}
	if s.OnConn != nil {
		s.OnConn(conn)
	}
	return conn, nil
}

func (s *Server) newConn(tr Transport) *Conn {
	return NewConn(tr, RoleServer, s.Config)
}

func (s *Server) serveConn(tr Transport) {
	conn := s.newConn(tr)
	if err := conn.Handshake(); err != nil {
		return
	}
	if s.OnConn != nil {
		s.OnConn(conn)
	}
}

// Shutdown stops accepting new connections. Established connections keep
// running until closed individually.
func (s *Server) Shutdown() error {
	atomic.StoreUint32(&s.closed, 1)

	s.mu.Lock()
	defer s.mu.Unlock()

	var err error
	for _, ln := range s.lns {
		if cerr := ln.Close(); cerr != nil && err == nil {
			err = cerr
		}
	}
	return err
}
