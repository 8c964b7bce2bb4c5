package rsocket

import (
	"fmt"
	"sync/atomic"

	"github.com/pkg/errors"
)

// handleRequest opens a responder-side stream for an inbound REQUEST_* frame
// on an unknown stream ID.
func (c *Conn) handleRequest(fh *FrameHeader) {
	id := fh.Stream()

	// Client-initiated IDs are odd, server-initiated IDs even; both sides
	// only accept requests from the peer's parity class.
	wantOdd := c.role == RoleServer
	if (id%2 == 1) != wantOdd {
		c.sendErrorFrame(id, CodeInvalid, "bad stream ID parity")
		return
	}

	if atomic.LoadUint32(&c.draining) == 1 {
		if fh.Type() != FrameRequestFnf {
			c.sendErrorFrame(id, CodeRejected, "connection is closing")
		}
		return
	}

	var (
		p        Payload
		follows  bool
		complete bool
		initialN uint32
	)

	switch fr := fh.Body().(type) {
	case *RequestFnf:
		p, follows = fr.Payload(), fr.Follows()
	case *RequestResponse:
		p, follows = fr.Payload(), fr.Follows()
	case *RequestStream:
		p, follows, initialN = fr.Payload(), fr.Follows(), fr.InitialRequestN()
	case *RequestChannel:
		p, follows, initialN = fr.Payload(), fr.Follows(), fr.InitialRequestN()
		complete = fr.Complete()
	}

	kind := fh.Type()
	if (kind == FrameRequestStream || kind == FrameRequestChannel) && initialN == 0 {
		c.sendErrorFrame(id, CodeInvalid, "initial_request_n of 0")
		return
	}

	if follows {
		// Buffer the lead until the final fragment arrives as PAYLOAD.
		strm := newStream(id, responderKind(kind))
		strm.setPendingRequest(kind, initialN)
		if complete {
			strm.remoteComplete = true
		}
		strm.bufferFragment(p)
		c.registerStream(strm)
		return
	}

	c.startResponder(id, kind, p, initialN, complete, nil)
}

func responderKind(kind FrameType) streamKind {
	switch kind {
	case FrameRequestResponse:
		return kindRequestResponse
	case FrameRequestStream:
		return kindRequestStream
	case FrameRequestChannel:
		return kindRequestChannel
	}
	return kindRequestFnf
}

// startResponder launches the handler task for a fully reassembled inbound
// request. strm is non-nil when the request arrived fragmented and a stream
// entry already exists.
func (c *Conn) startResponder(id uint32, kind FrameType, p Payload, initialN uint32, complete bool, strm *stream) {
	h := c.Handler()

	switch kind {
	case FrameRequestFnf:
		if strm != nil {
			c.removeStream(id)
		}
		go func() {
			defer c.recoverHandler("FireAndForget")
			if err := h.FireAndForget(p); err != nil {
				c.log.Debugf("rsocket: fire-and-forget handler: %v", err)
			}
		}()

	case FrameRequestResponse:
		if strm == nil {
			strm = newStream(id, kindRequestResponse)
			c.registerStream(strm)
		}
		strm.setState(StreamStateActive)
		go c.serveRequestResponse(strm, h, p)

	case FrameRequestStream:
		if strm == nil {
			strm = newStream(id, kindRequestStream)
			c.registerStream(strm)
		}
		strm.sendCredit = NewRequestCounter(initialN)
		strm.setState(StreamStateActive)
		go c.serveRequestStream(strm, h, p)

	case FrameRequestChannel:
		if strm == nil {
			strm = newStream(id, kindRequestChannel)
			c.registerStream(strm)
		}
		strm.sendCredit = NewRequestCounter(initialN)
		strm.setState(StreamStateActive)

		in := newReceiverFlux(func(n uint32) {
			c.sendRequestN(id, n)
		}, nil)
		strm.receiver = in

		// The lead payload is the first element of the inbound sequence.
		in.emit(p)
		if complete || strm.remoteComplete {
			in.complete()
			strm.markRemoteComplete()
		} else {
			// Grant the peer a receive window up front; it refills as the
			// handler consumes.
			strm.mu.Lock()
			strm.grantWindow = c.cfg.ChannelWindow
			strm.grantLeft = int32(c.cfg.ChannelWindow)
			strm.mu.Unlock()
			c.sendRequestN(id, c.cfg.ChannelWindow)
		}

		go c.serveRequestChannel(strm, h, in)
	}
}

func (c *Conn) serveRequestResponse(strm *stream, h RSocket, p Payload) {
	mono := func() (m *Mono) {
		defer func() {
			if r := recover(); r != nil {
				m = MonoErr(NewError(CodeApplicationError, fmt.Sprint(r)))
			}
		}()
		return h.RequestResponse(p)
	}()
	if mono == nil {
		mono = MonoErr(NewError(CodeApplicationError, "no handler"))
	}

	res, err := func() (res Payload, err error) {
		defer func() {
			if r := recover(); r != nil {
				res, err = Payload{}, NewError(CodeApplicationError, fmt.Sprint(r))
			}
		}()
		return mono.Get()
	}()

	if c.streams.Get(strm.id) != strm {
		// Canceled or torn down while the handler ran.
		return
	}

	if err != nil {
		code, msg := applicationErrorOf(err)
		c.sendErrorFrame(strm.id, code, msg)
	} else if werr := c.writePayloadFrames(strm.id, res, true); werr != nil {
		c.log.Debugf("rsocket: writing response for stream %d: %v", strm.id, werr)
	}

	strm.markLocalComplete()
	c.removeStream(strm.id)
}

func (c *Conn) serveRequestStream(strm *stream, h RSocket, p Payload) {
	f := func() (f *Flux) {
		defer func() {
			if r := recover(); r != nil {
				f = FluxErr(NewError(CodeApplicationError, fmt.Sprint(r)))
			}
		}()
		return h.RequestStream(p)
	}()
	if f == nil {
		f = FluxErr(NewError(CodeApplicationError, "no handler"))
	}

	c.drainProducer(strm, f)
}

func (c *Conn) serveRequestChannel(strm *stream, h RSocket, in *Flux) {
	out := func() (f *Flux) {
		defer func() {
			if r := recover(); r != nil {
				in.Cancel()
				f = FluxErr(NewError(CodeApplicationError, fmt.Sprint(r)))
			}
		}()
		return h.RequestChannel(in)
	}()
	if out == nil {
		out = FluxErr(NewError(CodeApplicationError, "no handler"))
	}

	c.drainProducer(strm, out)
}

// drainProducer forwards payloads from a local producer flux to the peer,
// one PAYLOAD(NEXT) per accumulated credit. It terminates the stream when
// the producer does.
func (c *Conn) drainProducer(strm *stream, f *Flux) {
	strm.setProducer(f)

	for {
		p, ok := f.Next()
		if !ok {
			break
		}

		if !strm.sendCredit.Acquire(strm.cancelSend) {
			// Stream canceled while awaiting credit.
			f.Cancel()
			return
		}
		if err := c.writePayloadFrames(strm.id, p, false); err != nil {
			return
		}
	}

	if c.streams.Get(strm.id) != strm {
		// Terminal frames on a canceled or closed stream are dropped.
		return
	}

	if err := f.Err(); err != nil {
		code, msg := applicationErrorOf(err)
		c.sendErrorFrame(strm.id, code, msg)
		c.terminateStream(strm, NewError(code, msg))
		return
	}

	c.writeCompleteFrame(strm.id)
	if strm.markLocalComplete() {
		c.removeStream(strm.id)
	}
}

// handleStreamFrame routes an inbound frame to its owning stream.
func (c *Conn) handleStreamFrame(strm *stream, fh *FrameHeader) {
	switch fr := fh.Body().(type) {
	case *PayloadFrame:
		c.handlePayloadFrame(strm, fr)

	case *ErrorFrame:
		c.terminateStream(strm, fr.Err())

	case *RequestN:
		if fr.N() == 0 {
			c.streamViolation(strm, "REQUEST_N of 0")
			return
		}
		if strm.sendCredit != nil {
			strm.sendCredit.Add(fr.N())
		}

	case *Cancel:
		// The requester lost interest: stop producing, no terminal frame
		// is owed.
		c.terminateStream(strm, NewError(CodeCanceled, "canceled by peer"))

	default:
		c.streamViolation(strm, fmt.Sprintf("unexpected %s on stream %d", fh.Type(), strm.id))
	}
}

func (c *Conn) handlePayloadFrame(strm *stream, fr *PayloadFrame) {
	// A fragmented inbound request completes through PAYLOAD frames.
	if pendingKind, initialN := strm.pendingRequest(); pendingKind != 0 {
		if fr.Follows() {
			strm.bufferFragment(fr.Payload())
			return
		}
		full := strm.takeReassembled(fr.Payload())
		strm.setPendingRequest(0, 0)
		c.startResponder(strm.id, pendingKind, full, initialN, fr.Complete() || strm.remoteComplete, strm)
		return
	}

	if !fr.Next() && !fr.Complete() {
		c.streamViolation(strm, "PAYLOAD without NEXT or COMPLETE")
		return
	}

	if fr.Follows() {
		strm.bufferFragment(fr.Payload())
		return
	}

	if fr.Next() {
		full := strm.takeReassembled(fr.Payload())
		if strm.receiver != nil {
			strm.receiver.OnNext(full)
		}
		if n := strm.consumeGrant(); n > 0 {
			c.sendRequestN(strm.id, n)
		}
	}

	if fr.Complete() {
		if strm.receiver != nil {
			strm.receiver.OnComplete()
		}
		if strm.markRemoteComplete() {
			c.removeStream(strm.id)
		}
	}
}

// writePayloadFrames emits one payload as PAYLOAD(NEXT) frames, fragmented
// when it exceeds the configured chunk size. The terminal COMPLETE travels
// on the last fragment.
func (c *Conn) writePayloadFrames(sid uint32, p Payload, complete bool) error {
	chunks := []Payload{p}
	if p.needsChunking(c.cfg.ChunkSize) {
		chunks = p.Chunks(c.cfg.ChunkSize)
	}

	for i, chunk := range chunks {
		last := i == len(chunks)-1

		fh := AcquireFrameHeader()
		fh.SetStream(sid)

		pf := AcquireFrame(FramePayload).(*PayloadFrame)
		pf.SetNext(true)
		pf.SetFollows(!last)
		pf.SetComplete(complete && last)
		pf.SetPayload(chunk)
		fh.SetBody(pf)

		if err := c.sendFrame(fh); err != nil {
			return err
		}
	}

	return nil
}

// writeCompleteFrame emits a bare PAYLOAD(COMPLETE).
func (c *Conn) writeCompleteFrame(sid uint32) {
	fh := AcquireFrameHeader()
	fh.SetStream(sid)

	pf := AcquireFrame(FramePayload).(*PayloadFrame)
	pf.SetComplete(true)
	fh.SetBody(pf)

	if err := c.sendFrame(fh); err != nil {
		c.log.Debugf("rsocket: dropping COMPLETE for stream %d: %v", sid, err)
	}
}

func (c *Conn) sendRequestN(sid uint32, n uint32) {
	fh := AcquireFrameHeader()
	fh.SetStream(sid)

	rn := AcquireFrame(FrameRequestN).(*RequestN)
	rn.SetN(n)
	fh.SetBody(rn)

	if err := c.sendFrame(fh); err != nil {
		c.log.Debugf("rsocket: dropping REQUEST_N for stream %d: %v", sid, err)
	}
}

func (c *Conn) sendCancel(sid uint32) {
	fh := AcquireFrameHeader()
	fh.SetStream(sid)
	fh.SetBody(AcquireFrame(FrameCancel))

	if err := c.sendFrame(fh); err != nil {
		c.log.Debugf("rsocket: dropping CANCEL for stream %d: %v", sid, err)
	}
}

// applicationErrorOf maps a handler error to the ERROR frame it travels as.
// Protocol errors with a stream-scoped or application-range code keep it;
// everything else becomes APPLICATION_ERROR with the stringified cause.
func applicationErrorOf(err error) (ErrorCode, string) {
	var perr *Error
	if errors.As(err, &perr) {
		if perr.Code.isStreamCode() ||
			(perr.Code >= MinApplicationCode && perr.Code <= MaxApplicationCode) {
			return perr.Code, string(perr.Data)
		}
	}
	return CodeApplicationError, err.Error()
}
