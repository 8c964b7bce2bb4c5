package rsocket

import (
	"sync"
)

// Mono is a single-value async sequence: it resolves to exactly one payload
// or an error. Requester-side request-response calls return a Mono; responder
// handlers return one to answer.
type Mono struct {
	fn     func() (Payload, error)
	fnOnce sync.Once

	cancelFn   func()
	cancelOnce sync.Once

	completeOnce sync.Once
	done         chan struct{}

	pending Payload
	p       Payload
	err     error
}

func newMono(cancel func()) *Mono {
	return &Mono{cancelFn: cancel, done: make(chan struct{})}
}

// MonoOf returns a Mono already resolved to p.
func MonoOf(p Payload) *Mono {
	m := newMono(nil)
	m.complete(p, nil)
	return m
}

// MonoErr returns a Mono already resolved to err.
func MonoErr(err error) *Mono {
	m := newMono(nil)
	m.complete(Payload{}, err)
	return m
}

// MonoFunc returns a Mono resolved by running fn when the value is first
// awaited.
func MonoFunc(fn func() (Payload, error)) *Mono {
	m := newMono(nil)
	m.fn = fn
	return m
}

// Get blocks until the value is resolved and returns it.
func (m *Mono) Get() (Payload, error) {
	if m.fn != nil {
		m.fnOnce.Do(func() {
			m.complete(m.fn())
		})
	}

	<-m.done
	return m.p, m.err
}

// Cancel abandons the request. On a requester-side Mono this emits a CANCEL
// frame for the stream. Get returns a CANCELED error afterwards unless the
// value already resolved.
func (m *Mono) Cancel() {
	m.complete(Payload{}, NewError(CodeCanceled, "canceled"))
	m.cancelOnce.Do(func() {
		if m.cancelFn != nil {
			m.cancelFn()
		}
	})
}

func (m *Mono) complete(p Payload, err error) {
	m.completeOnce.Do(func() {
		m.p, m.err = p, err
		close(m.done)
	})
}

// OnNext implements receiver. The value is held until OnComplete; the
// responder may send NEXT and COMPLETE in one frame or in two.
func (m *Mono) OnNext(p Payload) {
	m.pending = p
}

// OnComplete implements receiver.
func (m *Mono) OnComplete() {
	m.complete(m.pending, nil)
}

// OnError implements receiver.
func (m *Mono) OnError(err error) {
	m.complete(Payload{}, err)
}
