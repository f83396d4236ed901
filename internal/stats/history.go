package stats

import (
	"sync"
	"time"
)

// DefaultHistoryCapacity bounds the recent-event history.
const DefaultHistoryCapacity = 500

// Entry is one delivered event as kept in the history.
type Entry struct {
	Topic      string    `json:"topic"`
	Payload    string    `json:"payload"`
	Retained   bool      `json:"retained,omitempty"`
	ReceivedAt time.Time `json:"received_at"`
}

// Ring is a fixed-capacity event history. Once full, each append overwrites
// the oldest entry.
type Ring struct {
	mu    sync.Mutex
	buf   []Entry
	next  int
	count int
}

// NewRing creates a ring holding up to capacity entries
// (DefaultHistoryCapacity when non-positive).
func NewRing(capacity int) *Ring {
	if capacity <= 0 {
		capacity = DefaultHistoryCapacity
	}
	return &Ring{buf: make([]Entry, capacity)}
}

// Append adds an entry, overwriting the oldest when full.
func (r *Ring) Append(e Entry) {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.buf[r.next] = e
	r.next = (r.next + 1) % len(r.buf)
	if r.count < len(r.buf) {
		r.count++
	}
}

// Len returns the number of stored entries.
func (r *Ring) Len() int {
	r.mu.Lock()
	defer r.mu.Unlock()

	return r.count
}

// Recent returns up to limit entries, newest first. A non-positive limit
// returns everything.
func (r *Ring) Recent(limit int) []Entry {
	r.mu.Lock()
	defer r.mu.Unlock()

	n := r.count
	if limit > 0 && limit < n {
		n = limit
	}

	out := make([]Entry, 0, n)
	for i := 0; i < n; i++ {
		idx := (r.next - 1 - i + len(r.buf)) % len(r.buf)
		out = append(out, r.buf[idx])
	}
	return out
}
