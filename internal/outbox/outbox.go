// Package outbox buffers outbound frames while the relay connection is
// unavailable. The buffer is bounded (drop-oldest on overflow) and
// time-aware: entries older than the staleness TTL are discarded instead of
// being delivered late after a reconnect.
package outbox

import (
	"sync"
	"time"
)

// Queue defaults.
const (
	// DefaultCapacity bounds the number of buffered frames.
	DefaultCapacity = 100
	// DefaultTTL is the staleness cutoff; an entry waiting longer is
	// assumed no longer relevant and silently dropped.
	DefaultTTL = 5 * time.Minute
)

// Message is a single buffered outbound frame.
type Message struct {
	Payload    []byte
	EnqueuedAt time.Time
}

// Queue is a bounded FIFO buffer of outbound frames.
type Queue struct {
	mu       sync.Mutex
	entries  []Message
	capacity int
	ttl      time.Duration

	// now is the clock source, injectable for staleness tests.
	now func() time.Time
}

// New creates a queue with the given capacity and staleness TTL.
// Non-positive values fall back to the defaults.
func New(capacity int, ttl time.Duration) *Queue {
	if capacity <= 0 {
		capacity = DefaultCapacity
	}
	if ttl <= 0 {
		ttl = DefaultTTL
	}
	return &Queue{
		capacity: capacity,
		ttl:      ttl,
		now:      time.Now,
	}
}

// Enqueue buffers a frame. On overflow the single oldest entry is evicted
// before the new one is inserted; Enqueue reports whether an eviction
// happened.
func (q *Queue) Enqueue(payload []byte) bool {
	q.mu.Lock()
	defer q.mu.Unlock()

	evicted := false
	if len(q.entries) >= q.capacity {
		q.entries = q.entries[1:]
		evicted = true
	}
	q.entries = append(q.entries, Message{Payload: payload, EnqueuedAt: q.now()})
	return evicted
}

// Drain attempts to deliver every still-fresh entry in enqueue order through
// send. Stale entries are discarded first. On the first failed send the
// remaining entries (including the failed one) are kept, still in order, for
// the next drain. Returns how many frames were sent and how many were
// dropped as stale.
func (q *Queue) Drain(send func(payload []byte) bool) (sent, dropped int) {
	q.mu.Lock()
	cutoff := q.now().Add(-q.ttl)
	fresh := q.entries[:0]
	for _, m := range q.entries {
		if m.EnqueuedAt.Before(cutoff) {
			dropped++
			continue
		}
		fresh = append(fresh, m)
	}
	pending := append([]Message(nil), fresh...)
	q.entries = nil
	q.mu.Unlock()

	for i, m := range pending {
		if !send(m.Payload) {
			q.requeue(pending[i:])
			return sent, dropped
		}
		sent++
	}
	return sent, dropped
}

// requeue puts undelivered entries back at the head of the queue, ahead of
// anything enqueued while the drain was in flight.
func (q *Queue) requeue(remaining []Message) {
	q.mu.Lock()
	defer q.mu.Unlock()

	q.entries = append(append([]Message(nil), remaining...), q.entries...)
	if excess := len(q.entries) - q.capacity; excess > 0 {
		q.entries = q.entries[excess:]
	}
}

// Len returns the number of buffered frames.
func (q *Queue) Len() int {
	q.mu.Lock()
	defer q.mu.Unlock()

	return len(q.entries)
}

// Clear discards all buffered frames and returns how many were dropped.
func (q *Queue) Clear() int {
	q.mu.Lock()
	defer q.mu.Unlock()

	n := len(q.entries)
	q.entries = nil
	return n
}

// SetClock replaces the queue's clock source. Intended for tests.
func (q *Queue) SetClock(now func() time.Time) {
	q.mu.Lock()
	defer q.mu.Unlock()

	q.now = now
}
