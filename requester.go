package rsocket

import (
	"sync"
)

var _ RSocket = &Conn{}

// FireAndForget sends a single one-way message. The stream closes as soon as
// the request frame is written; no response frames are expected.
func (c *Conn) FireAndForget(p Payload) error {
	if err := c.requestAllowed(); err != nil {
		return err
	}

	sid := c.ids.Next(c.streams)
	return c.writeRequestFrames(FrameRequestFnf, sid, 0, p, false)
}

// MetadataPush pushes connection-scoped metadata to the peer. It is not a
// request and does not consume lease permits.
func (c *Conn) MetadataPush(metadata []byte) error {
	if c.Status() != StatusConnected {
		return ErrConnectionClosed
	}

	fh := AcquireFrameHeader()
	fh.SetStream(0)

	mp := AcquireFrame(FrameMetadataPush).(*MetadataPush)
	mp.SetMetadata(metadata)
	fh.SetBody(mp)

	return c.sendFrame(fh)
}

// RequestResponse sends a request expecting exactly one response payload.
func (c *Conn) RequestResponse(p Payload) *Mono {
	if err := c.requestAllowed(); err != nil {
		return MonoErr(err)
	}

	sid := c.ids.Next(c.streams)
	strm := newStream(sid, kindRequestResponse)

	m := newMono(func() {
		if c.streams.Get(sid) == strm {
			c.sendCancel(sid)
			c.removeStream(sid)
		}
	})
	strm.receiver = m

	c.registerStream(strm)
	strm.setState(StreamStateActive)

	if err := c.writeRequestFrames(FrameRequestResponse, sid, 0, p, false); err != nil {
		c.removeStream(sid)
		m.OnError(err)
	}

	return m
}

// RequestStream requests a completable stream of payloads. The stream is
// created now but the request frame is written on the first Request call of
// the returned Flux, carrying that call's n as the initial credit.
func (c *Conn) RequestStream(p Payload) *Flux {
	var (
		mu      sync.Mutex
		strm    *stream
		started bool
	)

	var f *Flux
	f = newReceiverFlux(func(n uint32) {
		if n == 0 {
			return
		}

		mu.Lock()
		defer mu.Unlock()

		if !started {
			started = true

			if err := c.requestAllowed(); err != nil {
				f.fail(err)
				return
			}

			sid := c.ids.Next(c.streams)
			strm = newStream(sid, kindRequestStream)
			strm.receiver = f
			c.registerStream(strm)
			strm.setState(StreamStateActive)

			if err := c.writeRequestFrames(FrameRequestStream, sid, n, p, false); err != nil {
				c.removeStream(sid)
				f.fail(err)
			}
			return
		}

		if strm != nil && c.streams.Get(strm.id) == strm {
			c.sendRequestN(strm.id, n)
		}
	}, func() {
		mu.Lock()
		defer mu.Unlock()

		if strm != nil && c.streams.Get(strm.id) == strm {
			c.sendCancel(strm.id)
			c.removeStream(strm.id)
		}
	})

	return f
}

// RequestChannel opens a bi-directional stream. The first payload of in
// travels in the request frame, written on the first Request call of the
// returned Flux; the rest follow as the peer grants credit with REQUEST_N.
func (c *Conn) RequestChannel(in *Flux) *Flux {
	var (
		mu      sync.Mutex
		strm    *stream
		started bool
	)

	var out *Flux
	out = newReceiverFlux(func(n uint32) {
		if n == 0 {
			return
		}

		mu.Lock()
		defer mu.Unlock()

		if !started {
			started = true

			if err := c.requestAllowed(); err != nil {
				in.Cancel()
				out.fail(err)
				return
			}

			lead, ok := in.Next()
			complete := !ok

			sid := c.ids.Next(c.streams)
			strm = newStream(sid, kindRequestChannel)
			strm.receiver = out
			strm.sendCredit = NewRequestCounter(0)
			c.registerStream(strm)
			strm.setState(StreamStateActive)

			if err := c.writeRequestFrames(FrameRequestChannel, sid, n, lead, complete); err != nil {
				c.removeStream(sid)
				out.fail(err)
				return
			}

			if complete {
				strm.markLocalComplete()
			} else {
				go c.drainProducer(strm, in)
			}
			return
		}

		if strm != nil && c.streams.Get(strm.id) == strm {
			c.sendRequestN(strm.id, n)
		}
	}, func() {
		mu.Lock()
		defer mu.Unlock()

		in.Cancel()
		if strm != nil && c.streams.Get(strm.id) == strm {
			c.sendCancel(strm.id)
			c.removeStream(strm.id)
		}
	})

	return out
}

// requestAllowed gates new requests on connection health and the lease
// budget.
func (c *Conn) requestAllowed() error {
	if c.Status() != StatusConnected || c.drainingNow() {
		return ErrConnectionClosed
	}
	return c.lease.use()
}

// writeRequestFrames emits the lead request frame plus follow-on PAYLOAD
// fragments when the payload exceeds the configured chunk size.
func (c *Conn) writeRequestFrames(kind FrameType, sid uint32, initialN uint32, p Payload, complete bool) error {
	chunks := []Payload{p}
	if p.needsChunking(c.cfg.ChunkSize) {
		chunks = p.Chunks(c.cfg.ChunkSize)
	}
	follows := len(chunks) > 1

	fh := AcquireFrameHeader()
	fh.SetStream(sid)

	switch kind {
	case FrameRequestFnf:
		fr := AcquireFrame(FrameRequestFnf).(*RequestFnf)
		fr.SetFollows(follows)
		fr.SetPayload(chunks[0])
		fh.SetBody(fr)
	case FrameRequestResponse:
		fr := AcquireFrame(FrameRequestResponse).(*RequestResponse)
		fr.SetFollows(follows)
		fr.SetPayload(chunks[0])
		fh.SetBody(fr)
	case FrameRequestStream:
		fr := AcquireFrame(FrameRequestStream).(*RequestStream)
		fr.SetFollows(follows)
		fr.SetInitialRequestN(initialN)
		fr.SetPayload(chunks[0])
		fh.SetBody(fr)
	case FrameRequestChannel:
		fr := AcquireFrame(FrameRequestChannel).(*RequestChannel)
		fr.SetFollows(follows)
		fr.SetInitialRequestN(initialN)
		fr.SetComplete(complete && !follows)
		fr.SetPayload(chunks[0])
		fh.SetBody(fr)
	}

	if err := c.sendFrame(fh); err != nil {
		return err
	}

	for i := 1; i < len(chunks); i++ {
		last := i == len(chunks)-1

		fh := AcquireFrameHeader()
		fh.SetStream(sid)

		pf := AcquireFrame(FramePayload).(*PayloadFrame)
		pf.SetNext(true)
		pf.SetFollows(!last)
		pf.SetComplete(complete && last)
		pf.SetPayload(chunks[i])
		fh.SetBody(pf)

		if err := c.sendFrame(fh); err != nil {
			return err
		}
	}

	return nil
}
