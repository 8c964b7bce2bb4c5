package rsocket

import (
	"sync"
)

// streamMap is the demultiplex table of a connection: stream ID to stream
// state. It is the only structure shared between the reader, the writer and
// user goroutines.
type streamMap struct {
	mu sync.RWMutex
	m  map[uint32]*stream
}

func newStreamMap() *streamMap {
	return &streamMap{m: make(map[uint32]*stream)}
}

// Has reports whether id is in use.
func (sm *streamMap) Has(id uint32) bool {
	sm.mu.RLock()
	_, ok := sm.m[id]
	sm.mu.RUnlock()
	return ok
}

// Get returns the stream with the given id, nil if unknown.
func (sm *streamMap) Get(id uint32) *stream {
	sm.mu.RLock()
	strm := sm.m[id]
	sm.mu.RUnlock()
	return strm
}

// Insert adds strm to the map.
func (sm *streamMap) Insert(strm *stream) {
	sm.mu.Lock()
	sm.m[strm.id] = strm
	sm.mu.Unlock()
}

// Del removes the stream with the given id and returns it together with the
// number of streams left.
func (sm *streamMap) Del(id uint32) (*stream, int) {
	sm.mu.Lock()
	strm := sm.m[id]
	delete(sm.m, id)
	n := len(sm.m)
	sm.mu.Unlock()
	return strm, n
}

// Len returns the number of active streams.
func (sm *streamMap) Len() int {
	sm.mu.RLock()
	n := len(sm.m)
	sm.mu.RUnlock()
	return n
}

// Drain removes and returns every stream. Used when the connection dies.
func (sm *streamMap) Drain() []*stream {
	sm.mu.Lock()
	streams := make([]*stream, 0, len(sm.m))
	for id, strm := range sm.m {
		streams = append(streams, strm)
		delete(sm.m, id)
	}
	sm.mu.Unlock()
	return streams
}
