package service

import (
	"sync"

	"indexwatch/internal/domain"
)

// History is a fixed-capacity ring buffer of observations. Appending at
// capacity evicts the oldest entry. The tick loop is the only writer;
// readers get point-in-time copies via Snapshot.
type History struct {
	mu   sync.RWMutex
	buf  []domain.Observation
	head int // index of the oldest entry
	size int
}

const defaultCapacity = 100

// NewHistory creates a history holding at most capacity observations.
func NewHistory(capacity int) *History {
	if capacity <= 0 {
		capacity = defaultCapacity
	}
	return &History{buf: make([]domain.Observation, capacity)}
}

// Append records an observation, evicting the oldest if at capacity. O(1).
func (h *History) Append(obs domain.Observation) {
	h.mu.Lock()
	defer h.mu.Unlock()

	tail := (h.head + h.size) % len(h.buf)
	h.buf[tail] = obs
	if h.size < len(h.buf) {
		h.size++
	} else {
		// Buffer full: the slot we just wrote was the oldest entry.
		h.head = (h.head + 1) % len(h.buf)
	}
}

// Len returns the number of stored observations.
func (h *History) Len() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return h.size
}

// Cap returns the fixed capacity.
func (h *History) Cap() int {
	return len(h.buf)
}

// Snapshot returns the most recent min(limit, len) observations in
// chronological order (oldest of the window first). The result is a copy:
// later appends never show through.
func (h *History) Snapshot(limit int) []domain.Observation {
	h.mu.RLock()
	defer h.mu.RUnlock()

	n := h.size
	if limit >= 0 && limit < n {
		n = limit
	}
	out := make([]domain.Observation, n)
	// Start n entries back from the tail.
	start := h.head + h.size - n
	for i := 0; i < n; i++ {
		out[i] = h.buf[(start+i)%len(h.buf)]
	}
	return out
}

// Last returns the newest observation, if any.
func (h *History) Last() (domain.Observation, bool) {
	h.mu.RLock()
	defer h.mu.RUnlock()

	if h.size == 0 {
		return domain.Observation{}, false
	}
	return h.buf[(h.head+h.size-1)%len(h.buf)], true
}
