package rsocket

import (
	"sync"
	"sync/atomic"
)

// StreamIDSupplier hands out 31-bit stream IDs: odd for clients, even for
// servers. The counter wraps around from 2^31-1 back to the initial parity,
// skipping 0 and IDs still in use.
//
// Safe for concurrent use; a single atomic carries all state. The in-use
// check against the shared stream map provides the synchronisation that
// keeps allocations from colliding with live streams.
type StreamIDSupplier struct {
	counter uint32
}

func newClientStreamIDSupplier() *StreamIDSupplier {
	return &StreamIDSupplier{counter: 1}
}

func newServerStreamIDSupplier() *StreamIDSupplier {
	return &StreamIDSupplier{counter: 2}
}

// Next returns the next available stream ID, skipping IDs present in inUse.
func (s *StreamIDSupplier) Next(inUse interface{ Has(uint32) bool }) uint32 {
	for {
		sid := (atomic.AddUint32(&s.counter, 2) - 2) & MaxStreamID
		if sid == 0 {
			continue
		}
		if inUse != nil && inUse.Has(sid) {
			continue
		}
		return sid
	}
}

// RequestCounter tracks request permits: lease budgets and per-stream send
// credit. Add grants permits; Acquire blocks until one is available or the
// given channel closes; TryDec takes one without blocking.
type RequestCounter struct {
	mu     sync.Mutex
	n      int64
	wakeup chan struct{}
}

// NewRequestCounter returns a counter holding n permits.
func NewRequestCounter(n uint32) *RequestCounter {
	return &RequestCounter{n: int64(n & MaxRequestN), wakeup: make(chan struct{})}
}

// Add grants n permits and wakes up blocked Acquire calls.
func (c *RequestCounter) Add(n uint32) {
	c.mu.Lock()
	c.n += int64(n & MaxRequestN)
	close(c.wakeup)
	c.wakeup = make(chan struct{})
	c.mu.Unlock()
}

// TryDec takes one permit if available and returns true; returns false
// otherwise.
func (c *RequestCounter) TryDec() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.n <= 0 {
		return false
	}
	c.n--
	return true
}

// Acquire blocks until a permit is available and takes it. It returns false
// if done closes first.
func (c *RequestCounter) Acquire(done <-chan struct{}) bool {
	for {
		c.mu.Lock()
		if c.n > 0 {
			c.n--
			c.mu.Unlock()
			return true
		}
		wakeup := c.wakeup
		c.mu.Unlock()

		select {
		case <-wakeup:
		case <-done:
			return false
		}
	}
}

// Load returns the permits currently held.
func (c *RequestCounter) Load() int64 {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.n
}

// IsZero returns true if no permits are held.
func (c *RequestCounter) IsZero() bool {
	return c.Load() <= 0
}
