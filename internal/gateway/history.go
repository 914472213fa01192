package gateway

import "sync"

// historyEntry holds a single broadcast envelope.
type historyEntry struct {
	Seq  int64
	Data []byte // pre-built envelope JSON
}

// History is a fixed-size circular buffer of recent snapshot envelopes.
// Clients that detect a seq gap backfill from it via /api/missed.
//
// Safe for concurrent use.
type History struct {
	mu   sync.RWMutex
	buf  []historyEntry
	pos  int // next write position
	full bool
}

// NewHistory creates a history ring with the given capacity.
func NewHistory(capacity int) *History {
	if capacity <= 0 {
		capacity = 500
	}
	return &History{buf: make([]historyEntry, capacity)}
}

// Push appends an envelope, overwriting the oldest entry when full.
func (h *History) Push(seq int64, data []byte) {
	cp := make([]byte, len(data))
	copy(cp, data)

	h.mu.Lock()
	defer h.mu.Unlock()
	h.buf[h.pos] = historyEntry{Seq: seq, Data: cp}
	h.pos = (h.pos + 1) % len(h.buf)
	if h.pos == 0 {
		h.full = true
	}
}

// Range returns the envelopes with seq in [from, to], oldest first.
func (h *History) Range(from, to int64) [][]byte {
	h.mu.RLock()
	defer h.mu.RUnlock()

	var out [][]byte
	for i := 0; i < h.len(); i++ {
		e := h.buf[h.index(i)]
		if e.Seq >= from && e.Seq <= to {
			out = append(out, e.Data)
		}
	}
	return out
}

// Latest returns the newest envelope.
func (h *History) Latest() ([]byte, int64, bool) {
	h.mu.RLock()
	defer h.mu.RUnlock()
	n := h.len()
	if n == 0 {
		return nil, 0, false
	}
	e := h.buf[h.index(n-1)]
	return e.Data, e.Seq, true
}

// Len returns the number of envelopes held.
func (h *History) Len() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return h.len()
}

func (h *History) len() int {
	if h.full {
		return len(h.buf)
	}
	return h.pos
}

// index converts a logical index (0 = oldest) to a physical one.
func (h *History) index(logical int) int {
	if h.full {
		return (h.pos + logical) % len(h.buf)
	}
	return logical
}
