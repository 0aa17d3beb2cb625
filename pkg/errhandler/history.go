package errhandler

import "sync"

// DefaultMaxHistory bounds the rolling error history when no limit is
// configured.
const DefaultMaxHistory = 10

// History is a bounded ring buffer of error records. Reads are
// most-recent-first. In-memory only; nothing survives a restart.
type History struct {
	mu    sync.RWMutex
	buf   []Record
	start int // index of the oldest record
	count int
}

// NewHistory creates a history bounded to max records.
func NewHistory(max int) *History {
	if max <= 0 {
		max = DefaultMaxHistory
	}
	return &History{buf: make([]Record, max)}
}

// Add records an error in O(1), evicting the oldest entry once the bound
// is exceeded.
func (h *History) Add(rec Record) {
	h.mu.Lock()
	defer h.mu.Unlock()

	max := len(h.buf)
	if h.count < max {
		h.buf[(h.start+h.count)%max] = rec
		h.count++
		return
	}

	// Full: overwrite the oldest slot.
	h.buf[h.start] = rec
	h.start = (h.start + 1) % max
}

// All returns a snapshot copy of the history, most-recent-first. Mutating
// the returned slice does not affect the store.
func (h *History) All() []Record {
	h.mu.RLock()
	defer h.mu.RUnlock()

	out := make([]Record, h.count)
	max := len(h.buf)
	for i := 0; i < h.count; i++ {
		// Newest is the last written slot.
		out[i] = h.buf[(h.start+h.count-1-i+max)%max]
	}
	return out
}

// Len returns the number of stored records.
func (h *History) Len() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return h.count
}

// Cap returns the configured bound.
func (h *History) Cap() int {
	return len(h.buf)
}

// Clear removes all records.
func (h *History) Clear() {
	h.mu.Lock()
	defer h.mu.Unlock()

	for i := range h.buf {
		h.buf[i] = Record{}
	}
	h.start = 0
	h.count = 0
}
