package rsocket

import (
	"time"

	"github.com/google/uuid"

	"github.com/domsolutions/rsocket/logger"
)

const (
	// DefaultKeepaliveInterval is the default time between KEEPALIVE frames
	// that the client will send.
	DefaultKeepaliveInterval = 30 * time.Second

	// DefaultKeepaliveTimeout is the default time a client will allow the
	// server to not respond to a KEEPALIVE before it is assumed dead.
	DefaultKeepaliveTimeout = 60 * time.Second

	// DefaultChannelWindow is the credit granted for inbound channel
	// payloads. It refills once half of it is consumed.
	DefaultChannelWindow = 64
)

// Config defines the connection options of both client and server
// connections.
type Config struct {
	// KeepaliveInterval is the period between KEEPALIVE frames sent by the
	// client. Defaults to DefaultKeepaliveInterval.
	KeepaliveInterval time.Duration

	// KeepaliveTimeout is how long the connection may go without receiving
	// a KEEPALIVE before it is closed with a CONNECTION_ERROR. Advertised
	// in SETUP as the max lifetime. Defaults to DefaultKeepaliveTimeout.
	KeepaliveTimeout time.Duration

	// MetadataMimeType and DataMimeType are advertised in SETUP. Both
	// default to DefaultMimeType.
	MetadataMimeType string
	DataMimeType     string

	// ChunkSize is the MTU above which outbound payloads are fragmented.
	// Zero disables fragmentation.
	ChunkSize int

	// EnableLease makes the client honor LEASE frames: no request is sent
	// before a lease is received, and the lease budget bounds them.
	EnableLease bool

	// ResumeToken is carried in SETUP to identify the session for later
	// resumption. Nil disables resumption.
	ResumeToken []byte

	// ChannelWindow is the credit granted to the peer for inbound channel
	// payloads. Defaults to DefaultChannelWindow.
	ChannelWindow uint32

	// Handler answers inbound interactions. Defaults to DummyHandler.
	Handler RSocket

	// OnStatus fires on every connection status transition.
	OnStatus func(status ConnStatus, err error)

	// OnSetup lets a server validate the SETUP frame. Returning a *Error
	// with a setup code rejects the connection with that code; any other
	// error maps to REJECTED_SETUP. Nil accepts silently.
	OnSetup func(setup *Setup) error

	// OnResume lets a server accept a RESUME handshake. The engine exposes
	// the hook only; storing and replaying session state is the caller's
	// concern. Nil rejects every resume attempt.
	OnResume func(resume *Resume) bool

	// Logger used by the connection engine. Defaults to logger.Default.
	Logger *logger.Logger
}

func (cfg *Config) setDefaults() {
	if cfg.KeepaliveInterval <= 0 {
		cfg.KeepaliveInterval = DefaultKeepaliveInterval
	}
	if cfg.KeepaliveTimeout <= 0 {
		cfg.KeepaliveTimeout = DefaultKeepaliveTimeout
	}
	if cfg.MetadataMimeType == "" {
		cfg.MetadataMimeType = DefaultMimeType
	}
	if cfg.DataMimeType == "" {
		cfg.DataMimeType = DefaultMimeType
	}
	if cfg.ChannelWindow == 0 {
		cfg.ChannelWindow = DefaultChannelWindow
	}
	if cfg.Handler == nil {
		cfg.Handler = DummyHandler{}
	}
	if cfg.Logger == nil {
		l := logger.Default()
		cfg.Logger = &l
	}
}

// NewResumeToken returns a fresh resume identification token.
func NewResumeToken() []byte {
	id := uuid.New()
	return id[:]
}
