package rsocket

import (
	"sync"
)

// StreamState is the lifecycle state of a single stream.
type StreamState int8

const (
	StreamStateIdle StreamState = iota
	StreamStateRequesting
	StreamStateActive
	StreamStateHalfClosedLocal
	StreamStateHalfClosedRemote
	StreamStateClosed
)

func (ss StreamState) String() string {
	switch ss {
	case StreamStateIdle:
		return "Idle"
	case StreamStateRequesting:
		return "Requesting"
	case StreamStateActive:
		return "Active"
	case StreamStateHalfClosedLocal:
		return "HalfClosedLocal"
	case StreamStateHalfClosedRemote:
		return "HalfClosedRemote"
	case StreamStateClosed:
		return "Closed"
	}

	return "Unknown"
}

type streamKind int8

const (
	kindRequestResponse streamKind = iota
	kindRequestStream
	kindRequestChannel
	kindRequestFnf
)

// receiver is the local consumer of inbound payloads on a stream: a Mono for
// request-response, a Flux for stream and channel interactions.
type receiver interface {
	OnNext(p Payload)
	OnComplete()
	OnError(err error)
}

// stream is the per-stream automaton. Transitions are driven by the
// connection reader and by the local producer goroutine; both sides go
// through the mutex.
type stream struct {
	id   uint32
	kind streamKind

	mu    sync.Mutex
	state StreamState

	// receiver gets inbound payloads delivered; nil for fire-and-forget and
	// for responder streams with no inbound direction.
	receiver receiver

	// sendCredit is the credit the peer granted for our PAYLOAD(NEXT)
	// frames. Nil when this side never produces payloads.
	sendCredit *RequestCounter

	// producer is the local payload source drained towards the peer: the
	// flux a responder handler returned, or the requester half of a
	// channel. Nil when this side never produces payloads.
	producer *Flux

	// cancelSend stops the local producer goroutine.
	cancelSend chan struct{}
	cancelOnce sync.Once

	// auto-granted inbound credit window (channel receive direction);
	// refilled once half consumed. Zero disables the grant.
	grantWindow uint32
	grantLeft   int32

	// inbound fragment reassembly buffers
	reMeta   []byte
	reData   []byte
	reActive bool

	// lead request frame buffered while FOLLOWS fragments arrive
	// (responder side).
	pendingKind     FrameType
	pendingInitialN uint32

	localComplete  bool
	remoteComplete bool
}

func newStream(id uint32, kind streamKind) *stream {
	return &stream{
		id:         id,
		kind:       kind,
		state:      StreamStateIdle,
		cancelSend: make(chan struct{}),
	}
}

func (s *stream) setState(state StreamState) {
	s.mu.Lock()
	s.state = state
	s.mu.Unlock()
}

func (s *stream) State() StreamState {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state
}

// closed reports whether the stream reached a terminal state.
func (s *stream) closed() bool {
	return s.State() == StreamStateClosed
}

// cancelProducer stops the local producer goroutine, if any. Safe to call
// multiple times.
func (s *stream) cancelProducer() {
	s.cancelOnce.Do(func() {
		close(s.cancelSend)
	})
}

// markLocalComplete records that this side sent its terminal frame and
// returns true if the whole stream is now closed.
func (s *stream) markLocalComplete() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.localComplete = true
	return s.updateClosedLocked()
}

// markRemoteComplete records that the peer sent its terminal frame and
// returns true if the whole stream is now closed.
func (s *stream) markRemoteComplete() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.remoteComplete = true
	return s.updateClosedLocked()
}

func (s *stream) updateClosedLocked() bool {
	var done bool
	switch s.kind {
	case kindRequestChannel:
		done = s.localComplete && s.remoteComplete
	case kindRequestFnf:
		done = s.localComplete || s.remoteComplete
	default:
		// Request-response and request-stream terminate with the
		// responder's terminal frame.
		done = s.localComplete || s.remoteComplete
	}

	if done {
		s.state = StreamStateClosed
	} else if s.localComplete {
		s.state = StreamStateHalfClosedLocal
	} else if s.remoteComplete {
		s.state = StreamStateHalfClosedRemote
	}

	return done
}

func (s *stream) setProducer(f *Flux) {
	s.mu.Lock()
	s.producer = f
	s.mu.Unlock()
}

// consumeGrant burns one unit of the auto-granted inbound credit window and
// returns the amount to re-grant via REQUEST_N, 0 while the window is still
// more than half full.
func (s *stream) consumeGrant() uint32 {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.grantWindow == 0 {
		return 0
	}
	s.grantLeft--
	if s.grantLeft > int32(s.grantWindow/2) {
		return 0
	}
	n := int32(s.grantWindow) - s.grantLeft
	s.grantLeft = int32(s.grantWindow)
	return uint32(n)
}

// bufferFragment appends a payload fragment to the reassembly buffers.
func (s *stream) bufferFragment(p Payload) {
	s.mu.Lock()
	s.reActive = true
	s.reMeta = append(s.reMeta, p.metadata...)
	s.reData = append(s.reData, p.data...)
	s.mu.Unlock()
}

// takeReassembled joins the buffered fragments with the final one and resets
// the buffers. If no fragments were buffered the payload is returned as is.
func (s *stream) takeReassembled(last Payload) Payload {
	s.mu.Lock()
	defer s.mu.Unlock()

	if !s.reActive {
		return last
	}

	metadata := append(s.reMeta, last.metadata...)
	data := append(s.reData, last.data...)
	s.reMeta = nil
	s.reData = nil
	s.reActive = false

	return NewPayload(metadata, data)
}

// setPendingRequest buffers the lead request frame of a fragmented inbound
// request until the final fragment arrives.
func (s *stream) setPendingRequest(kind FrameType, initialN uint32) {
	s.mu.Lock()
	s.pendingKind = kind
	s.pendingInitialN = initialN
	s.mu.Unlock()
}

func (s *stream) pendingRequest() (FrameType, uint32) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.pendingKind, s.pendingInitialN
}
