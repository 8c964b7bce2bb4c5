package rsocket

import (
	"fmt"
	"io"
	"sync"
	"sync/atomic"
	"time"

	"github.com/pkg/errors"
	"github.com/valyala/bytebufferpool"

	"github.com/domsolutions/rsocket/logger"
)

// Role tells which side of the connection this endpoint is. It decides
// stream-ID parity and who drives the keepalive.
type Role int8

const (
	RoleClient Role = iota
	RoleServer
)

func (r Role) String() string {
	if r == RoleServer {
		return "server"
	}
	return "client"
}

// ConnStatus is the lifecycle state of a connection.
type ConnStatus int32

const (
	StatusUnconnected ConnStatus = iota
	StatusConnecting
	StatusConnected
	StatusClosed
	StatusError
)

func (cs ConnStatus) String() string {
	switch cs {
	case StatusUnconnected:
		return "Unconnected"
	case StatusConnecting:
		return "Connecting"
	case StatusConnected:
		return "Connected"
	case StatusClosed:
		return "Closed"
	case StatusError:
		return "Error"
	}

	return "Unknown"
}

// Conn is one RSocket connection: it owns the transport, multiplexes streams
// over it and implements the RSocket capability on the requester side.
//
// Reads are driven by a single reader goroutine, writes funnel through a
// bounded outbound queue drained by a single writer goroutine, and the
// keepalive supervisor runs beside them. Call Handshake before use.
type Conn struct {
	tr   Transport
	cfg  Config
	role Role
	log  logger.Logger

	ids     *StreamIDSupplier
	streams *streamMap

	handler atomic.Value // RSocket

	out chan *FrameHeader

	closeOnce sync.Once
	closeCh   chan struct{}
	drainOnce sync.Once
	drainCh   chan struct{}
	draining  uint32

	status int32

	errMu   sync.Mutex
	lastErr error

	recvPos uint64
	sentPos uint64

	// keepalive bookkeeping; lastKeepalive is unix nanos of the newest
	// KEEPALIVE received, keepaliveTimeout what this side enforces.
	lastKeepalive    int64
	keepaliveTimeout int64 // nanos

	lease leaseState
}

// leaseState is the requester-side lease admission state. A LEASE frame
// replaces the budget; requests take one permit each until the ttl runs out.
type leaseState struct {
	mu       sync.Mutex
	enabled  bool
	counter  *RequestCounter
	deadline time.Time
}

func (l *leaseState) grant(ttlMs, n uint32) {
	l.mu.Lock()
	l.counter = NewRequestCounter(n)
	l.deadline = time.Now().Add(time.Duration(ttlMs) * time.Millisecond)
	l.mu.Unlock()
}

// use takes one permit. It returns a REJECTED error without touching the
// wire when no valid lease covers the request.
func (l *leaseState) use() error {
	l.mu.Lock()
	defer l.mu.Unlock()

	if !l.enabled {
		return nil
	}
	if l.counter == nil || time.Now().After(l.deadline) || !l.counter.TryDec() {
		return fmt.Errorf("%w: %w", ErrLeaseExpired, NewError(CodeRejected, "no valid lease"))
	}
	return nil
}

// NewConn returns a new RSocket connection over the given transport. To
// start using the connection you need to call Handshake.
func NewConn(tr Transport, role Role, cfg Config) *Conn {
	cfg.setDefaults()

	c := &Conn{
		tr:      tr,
		cfg:     cfg,
		role:    role,
		log:     *cfg.Logger,
		streams: newStreamMap(),
		out:     make(chan *FrameHeader, 128),
		closeCh: make(chan struct{}),
		drainCh: make(chan struct{}),
	}

	if role == RoleClient {
		c.ids = newClientStreamIDSupplier()
	} else {
		c.ids = newServerStreamIDSupplier()
	}
	c.handler.Store(handlerBox{h: cfg.Handler})
	c.lease.enabled = cfg.EnableLease
	c.keepaliveTimeout = int64(cfg.KeepaliveTimeout)

	return c
}

// handlerBox keeps atomic.Value happy across responders of different
// concrete types.
type handlerBox struct {
	h RSocket
}

// Handler returns the current responder.
func (c *Conn) Handler() RSocket {
	return c.handler.Load().(handlerBox).h
}

// SetHandler atomically replaces the responder for inbound interactions.
func (c *Conn) SetHandler(h RSocket) {
	if h == nil {
		h = DummyHandler{}
	}
	c.handler.Store(handlerBox{h: h})
}

// Status returns the connection status.
func (c *Conn) Status() ConnStatus {
	return ConnStatus(atomic.LoadInt32(&c.status))
}

// LastErr returns the error that closed the connection, if any.
func (c *Conn) LastErr() error {
	c.errMu.Lock()
	defer c.errMu.Unlock()
	return c.lastErr
}

// Positions returns the number of frame bytes sent to and received from the
// peer. These are the 63-bit positions used by KEEPALIVE and RESUME.
func (c *Conn) Positions() (sent, received uint64) {
	return atomic.LoadUint64(&c.sentPos), atomic.LoadUint64(&c.recvPos)
}

func (c *Conn) setStatus(status ConnStatus, err error) {
	atomic.StoreInt32(&c.status, int32(status))
	if c.cfg.OnStatus != nil {
		c.cfg.OnStatus(status, err)
	}
}

// Handshake performs the SETUP negotiation and starts the reader, writer and
// keepalive goroutines. On the client it sends the SETUP frame; on the
// server it expects one.
func (c *Conn) Handshake() error {
	c.setStatus(StatusConnecting, nil)

	var err error
	if c.role == RoleClient {
		err = c.clientHandshake()
	} else {
		err = c.serverHandshake()
	}
	if err != nil {
		return err
	}

	atomic.StoreInt64(&c.lastKeepalive, time.Now().UnixNano())
	c.setStatus(StatusConnected, nil)

	go c.readLoop()
	go c.writeLoop()
	go c.keepaliveLoop()

	return nil
}

func (c *Conn) clientHandshake() error {
	setup := AcquireFrame(FrameSetup).(*Setup)
	setup.SetVersion(DefaultVersion)
	setup.SetKeepaliveInterval(uint32(c.cfg.KeepaliveInterval / time.Millisecond))
	setup.SetMaxLifetime(uint32(c.cfg.KeepaliveTimeout / time.Millisecond))
	setup.SetLease(c.cfg.EnableLease)
	setup.SetResumeToken(c.cfg.ResumeToken)
	setup.SetMetadataMimeType(c.cfg.MetadataMimeType)
	setup.SetDataMimeType(c.cfg.DataMimeType)

	err := c.writeDirect(0, setup)
	ReleaseFrame(setup)
	if err != nil {
		_ = c.tr.Close()
		c.setStatus(StatusError, err)
		return errors.Wrap(err, "sending SETUP")
	}

	return nil
}

// HandshakeResume performs a RESUME handshake instead of SETUP: the prior
// session token and positions are offered, and the server answers RESUME_OK
// or rejects with REJECTED_RESUME.
func (c *Conn) HandshakeResume(token []byte, lastReceivedServer, firstAvailableClient uint64) error {
	if c.role != RoleClient {
		return errors.New("rsocket: only clients resume")
	}

	c.setStatus(StatusConnecting, nil)

	resume := AcquireFrame(FrameResume).(*Resume)
	resume.SetVersion(DefaultVersion)
	resume.SetToken(token)
	resume.SetLastReceivedServerPosition(lastReceivedServer)
	resume.SetFirstAvailableClientPosition(firstAvailableClient)

	err := c.writeDirect(0, resume)
	ReleaseFrame(resume)
	if err != nil {
		_ = c.tr.Close()
		c.setStatus(StatusError, err)
		return errors.Wrap(err, "sending RESUME")
	}

	fh, err := c.readFrameDirect()
	if err != nil {
		_ = c.tr.Close()
		c.setStatus(StatusError, err)
		return err
	}
	defer ReleaseFrameHeader(fh)

	switch fr := fh.Body().(type) {
	case *ResumeOk:
		atomic.StoreInt64(&c.lastKeepalive, time.Now().UnixNano())
		c.setStatus(StatusConnected, nil)

		go c.readLoop()
		go c.writeLoop()
		go c.keepaliveLoop()

		return nil
	case *ErrorFrame:
		err := fr.Err()
		_ = c.tr.Close()
		c.setStatus(StatusError, err)
		return err
	default:
		err := errors.Errorf("rsocket: unexpected %s during resume handshake", fh.Type())
		_ = c.tr.Close()
		c.setStatus(StatusError, err)
		return err
	}
}

func (c *Conn) serverHandshake() error {
	fh, err := c.readFrameDirect()
	if err != nil {
		c.writeErrorDirect(0, CodeConnectionError, fmt.Sprintf("reading first frame: %s", err))
		_ = c.tr.Close()
		c.setStatus(StatusError, err)
		return err
	}
	defer ReleaseFrameHeader(fh)

	switch fr := fh.Body().(type) {
	case *Setup:
		if c.cfg.OnSetup != nil {
			if err := c.cfg.OnSetup(fr); err != nil {
				code := CodeRejectedSetup
				var perr *Error
				if errors.As(err, &perr) && (perr.Code == CodeInvalidSetup ||
					perr.Code == CodeUnsupportedSetup || perr.Code == CodeRejectedSetup) {
					code = perr.Code
				}
				c.writeErrorDirect(0, code, err.Error())
				_ = c.tr.Close()
				c.setStatus(StatusError, err)
				return err
			}
		}

		// The client dictates the liveness parameters of the connection.
		if lifetime := fr.MaxLifetime(); lifetime > 0 {
			atomic.StoreInt64(&c.keepaliveTimeout, int64(time.Duration(lifetime)*time.Millisecond))
		}

		return nil
	case *Resume:
		if c.cfg.OnResume == nil || !c.cfg.OnResume(fr) {
			err := NewError(CodeRejectedResume, "resumption is not available")
			c.writeErrorDirect(0, err.Code, string(err.Data))
			_ = c.tr.Close()
			c.setStatus(StatusError, err)
			return err
		}

		ok := AcquireFrame(FrameResumeOk).(*ResumeOk)
		ok.SetLastReceivedClientPosition(atomic.LoadUint64(&c.recvPos))
		err := c.writeDirect(0, ok)
		ReleaseFrame(ok)
		if err != nil {
			_ = c.tr.Close()
			c.setStatus(StatusError, err)
			return err
		}

		return nil
	default:
		err := errors.Errorf("rsocket: expected SETUP, got %s", fh.Type())
		c.writeErrorDirect(0, CodeConnectionError, err.Error())
		_ = c.tr.Close()
		c.setStatus(StatusError, err)
		return err
	}
}

// readFrameDirect reads and decodes one frame synchronously. Only used
// during the handshake, before the reader goroutine starts.
func (c *Conn) readFrameDirect() (*FrameHeader, error) {
	b, err := c.tr.ReadFrame()
	if err != nil {
		return nil, err
	}
	atomic.AddUint64(&c.recvPos, uint64(len(b)))

	fh, err := DecodeFrame(b)
	if err != nil {
		metricDecodeErrors.Inc()
		return nil, err
	}
	metricFramesRead.WithLabelValues(fh.Type().String()).Inc()

	return fh, nil
}

// writeDirect encodes and writes a frame bypassing the outbound queue. Only
// used during the handshake and on the close paths.
func (c *Conn) writeDirect(stream uint32, fr Frame) error {
	buf := bytebufferpool.Get()
	buf.B = EncodeFrame(buf.B[:0], stream, fr)

	err := c.tr.WriteFrame(buf.B)
	if err == nil {
		atomic.AddUint64(&c.sentPos, uint64(len(buf.B)))
		metricFramesWritten.WithLabelValues(fr.Type().String()).Inc()
	}

	bytebufferpool.Put(buf)

	return err
}

func (c *Conn) writeErrorDirect(stream uint32, code ErrorCode, msg string) {
	ef := AcquireFrame(FrameError).(*ErrorFrame)
	ef.SetCode(code)
	ef.SetData([]byte(msg))
	if err := c.writeDirect(stream, ef); err != nil {
		c.log.Debugf("rsocket: writing %s: %v", code, err)
	}
	ReleaseFrame(ef)
}

// sendFrame queues fh for the writer. Ownership of fh passes to the writer,
// which releases it after the write.
func (c *Conn) sendFrame(fh *FrameHeader) error {
	select {
	case c.out <- fh:
		return nil
	case <-c.closeCh:
		ReleaseFrameHeader(fh)
		return ErrConnectionClosed
	}
}

func (c *Conn) sendErrorFrame(stream uint32, code ErrorCode, msg string) {
	fh := AcquireFrameHeader()
	fh.SetStream(stream)

	ef := AcquireFrame(FrameError).(*ErrorFrame)
	ef.SetCode(code)
	ef.SetData([]byte(msg))
	fh.SetBody(ef)

	if err := c.sendFrame(fh); err != nil {
		c.log.Debugf("rsocket: dropping %s for stream %d: %v", code, stream, err)
	}
}

func (c *Conn) writeLoop() {
	for {
		select {
		case fh := <-c.out:
			buf := bytebufferpool.Get()
			buf.B = fh.Encode(buf.B[:0])

			err := c.tr.WriteFrame(buf.B)
			if err == nil {
				atomic.AddUint64(&c.sentPos, uint64(len(buf.B)))
				metricFramesWritten.WithLabelValues(fh.Type().String()).Inc()
			}

			bytebufferpool.Put(buf)
			ReleaseFrameHeader(fh)

			if err != nil {
				c.close(errors.Wrap(err, "transport write"))
				return
			}
		case <-c.closeCh:
			return
		}
	}
}

func (c *Conn) readLoop() {
	for {
		b, err := c.tr.ReadFrame()
		if err != nil {
			if errors.Is(err, io.EOF) {
				c.close(nil)
			} else {
				c.close(errors.Wrap(err, "transport read"))
			}
			return
		}
		atomic.AddUint64(&c.recvPos, uint64(len(b)))

		fh, err := DecodeFrame(b)
		if err != nil {
			metricDecodeErrors.Inc()
			c.writeErrorDirect(0, CodeConnectionError, err.Error())
			c.close(err)
			return
		}
		metricFramesRead.WithLabelValues(fh.Type().String()).Inc()

		c.dispatch(fh)
		ReleaseFrameHeader(fh)

		if c.Status() != StatusConnected {
			return
		}
	}
}

// keepaliveLoop is the keepalive supervisor: on the client it emits periodic
// KEEPALIVE(RESPOND) frames; on both sides it enforces the liveness timeout.
func (c *Conn) keepaliveLoop() {
	timeout := time.Duration(atomic.LoadInt64(&c.keepaliveTimeout))

	period := c.cfg.KeepaliveInterval
	if check := timeout / 8; check < period {
		period = check
	}
	if period <= 0 {
		period = time.Millisecond
	}

	ticker := time.NewTicker(period)
	defer ticker.Stop()

	var lastSent time.Time

	for {
		select {
		case <-ticker.C:
			last := time.Unix(0, atomic.LoadInt64(&c.lastKeepalive))
			if time.Since(last) > timeout {
				metricKeepaliveTimeouts.Inc()
				c.writeErrorDirect(0, CodeConnectionError, "keepalive timeout")
				c.close(ErrTimeout)
				return
			}

			if c.role == RoleClient && time.Since(lastSent) >= c.cfg.KeepaliveInterval {
				lastSent = time.Now()
				c.sendKeepalive(true, atomic.LoadUint64(&c.recvPos), nil)
			}
		case <-c.closeCh:
			return
		}
	}
}

func (c *Conn) sendKeepalive(respond bool, pos uint64, data []byte) {
	fh := AcquireFrameHeader()
	fh.SetStream(0)

	ka := AcquireFrame(FrameKeepalive).(*Keepalive)
	ka.SetRespond(respond)
	ka.SetLastReceivedPosition(pos)
	ka.SetData(data)
	fh.SetBody(ka)

	if err := c.sendFrame(fh); err != nil {
		c.log.Debugf("rsocket: dropping KEEPALIVE: %v", err)
	}
}

// dispatch routes one inbound frame: stream 0 to the connection handler,
// anything else to the owning stream. Frames for unknown streams are dropped
// unless they open one.
func (c *Conn) dispatch(fh *FrameHeader) {
	if fh.Stream() == 0 {
		c.handleConnFrame(fh)
		return
	}

	if strm := c.streams.Get(fh.Stream()); strm != nil {
		c.handleStreamFrame(strm, fh)
		return
	}

	switch fh.Type() {
	case FrameRequestResponse, FrameRequestFnf, FrameRequestStream, FrameRequestChannel:
		c.handleRequest(fh)
	default:
		// Unknown stream: IGNORE is implicit.
		c.log.Debugf("rsocket: dropping %s for unknown stream %d", fh.Type(), fh.Stream())
	}
}

func (c *Conn) handleConnFrame(fh *FrameHeader) {
	switch fr := fh.Body().(type) {
	case *Setup:
		c.protocolViolation("unexpected SETUP on an established connection")
	case *Resume:
		c.protocolViolation("unexpected RESUME on an established connection")
	case *ResumeOk:
		// Only expected during HandshakeResume, harmless afterwards.
	case *Lease:
		c.lease.grant(fr.TTL(), fr.NumberOfRequests())
	case *Keepalive:
		atomic.StoreInt64(&c.lastKeepalive, time.Now().UnixNano())
		if fr.Respond() {
			data := append([]byte(nil), fr.Data()...)
			c.sendKeepalive(false, fr.LastReceivedPosition(), data)
		}
	case *MetadataPush:
		h := c.Handler()
		metadata := append([]byte(nil), fr.Metadata()...)
		go func() {
			defer c.recoverHandler("MetadataPush")
			if err := h.MetadataPush(metadata); err != nil {
				c.log.Debugf("rsocket: metadata push handler: %v", err)
			}
		}()
	case *ErrorFrame:
		c.handleConnError(fr)
	default:
		c.protocolViolation(fmt.Sprintf("unexpected %s on stream 0", fh.Type()))
	}
}

func (c *Conn) handleConnError(fr *ErrorFrame) {
	err := fr.Err()

	if fr.Code() == CodeConnectionClose {
		// Graceful: let in-flight streams finish, refuse new ones.
		atomic.StoreUint32(&c.draining, 1)
		if c.streams.Len() == 0 {
			c.close(nil)
		}
		return
	}

	c.close(err)
}

// protocolViolation reports a connection-level protocol error to the peer
// and tears the connection down.
func (c *Conn) protocolViolation(msg string) {
	c.log.Warnf("rsocket: protocol violation: %s", msg)
	c.writeErrorDirect(0, CodeConnectionError, msg)
	c.close(NewError(CodeConnectionError, msg))
}

// streamViolation reports a stream-level protocol error and terminates that
// stream on both sides.
func (c *Conn) streamViolation(strm *stream, msg string) {
	c.sendErrorFrame(strm.id, CodeInvalid, msg)
	c.terminateStream(strm, NewError(CodeInvalid, msg))
}

// terminateStream tears one stream down locally: the receiver learns err,
// the local producer stops, the map entry goes away. Nothing is sent.
func (c *Conn) terminateStream(strm *stream, err error) {
	strm.mu.Lock()
	producer := strm.producer
	strm.mu.Unlock()

	if producer != nil {
		producer.Cancel()
	}
	strm.cancelProducer()
	if strm.receiver != nil {
		if err != nil {
			strm.receiver.OnError(err)
		} else {
			strm.receiver.OnComplete()
		}
	}
	strm.setState(StreamStateClosed)
	c.removeStream(strm.id)
}

func (c *Conn) removeStream(id uint32) {
	_, left := c.streams.Del(id)
	metricActiveStreams.Set(float64(left))

	if left == 0 && atomic.LoadUint32(&c.draining) == 1 {
		c.drainOnce.Do(func() { close(c.drainCh) })
		c.close(nil)
	}
}

func (c *Conn) registerStream(strm *stream) {
	c.streams.Insert(strm)
	metricActiveStreams.Set(float64(c.streams.Len()))
}

// Close closes the connection gracefully: a CONNECTION_CLOSE frame is sent,
// in-flight streams drain, new ones are refused. Streams still active after
// the keepalive timeout are cut off.
func (c *Conn) Close() error {
	if c.Status() != StatusConnected {
		return ErrConnectionClosed
	}

	atomic.StoreUint32(&c.draining, 1)
	c.writeErrorDirect(0, CodeConnectionClose, "closing")

	if c.streams.Len() > 0 {
		select {
		case <-c.drainCh:
		case <-c.closeCh:
		case <-time.After(c.cfg.KeepaliveTimeout):
		}
	}

	c.close(nil)
	return nil
}

// close tears the connection down. A nil err is a clean close; anything else
// transitions the status to Error. All active streams terminate locally with
// CANCELED, no frames are sent for them.
func (c *Conn) close(err error) {
	c.closeOnce.Do(func() {
		c.errMu.Lock()
		c.lastErr = err
		c.errMu.Unlock()

		close(c.closeCh)
		_ = c.tr.Close()

		canceled := NewError(CodeCanceled, "connection closed")
		for _, strm := range c.streams.Drain() {
			strm.mu.Lock()
			producer := strm.producer
			strm.mu.Unlock()
			if producer != nil {
				producer.Cancel()
			}
			strm.cancelProducer()
			if strm.receiver != nil {
				strm.receiver.OnError(canceled)
			}
			strm.setState(StreamStateClosed)
		}
		metricActiveStreams.Set(0)

		if err != nil {
			c.log.Warnf("rsocket: %s connection closed: %v", c.role, err)
			c.setStatus(StatusError, err)
		} else {
			c.setStatus(StatusClosed, nil)
		}
	})
}

// GrantLease sends a LEASE frame allowing the peer to issue n requests
// within ttl.
func (c *Conn) GrantLease(ttl time.Duration, n uint32, metadata []byte) error {
	fh := AcquireFrameHeader()
	fh.SetStream(0)

	lease := AcquireFrame(FrameLease).(*Lease)
	lease.SetTTL(uint32(ttl / time.Millisecond))
	lease.SetNumberOfRequests(n)
	lease.SetMetadata(metadata)
	fh.SetBody(lease)

	return c.sendFrame(fh)
}

func (c *Conn) drainingNow() bool {
	return atomic.LoadUint32(&c.draining) == 1
}

func (c *Conn) recoverHandler(op string) {
	if r := recover(); r != nil {
		c.log.Errorf("rsocket: %s handler panicked: %v", op, r)
	}
}
