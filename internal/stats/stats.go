// Package stats aggregates delivery statistics for the local API and the
// dashboard: total counts, per-topic breakdowns, a sliding-window message
// rate, and a bounded history of recent events.
package stats

import (
	"sort"
	"sync"
	"time"

	"github.com/relaylens/relaylens/internal/relay"
)

// rateWindow is the sliding window over which the message rate is computed.
const rateWindow = 60 * time.Second

// Analytics is the aggregate answer served by the local API.
type Analytics struct {
	TotalEvents    int64        `json:"total_events"`
	TotalBytes     int64        `json:"total_bytes"`
	EventsPerSec   float64      `json:"events_per_sec"`
	UniqueTopics   int          `json:"unique_topics"`
	TopTopics      []TopicCount `json:"top_topics"`
	ReconnectCount int64        `json:"reconnect_count"`
	StartedAt      time.Time    `json:"started_at"`
}

// TopicCount is one row of the per-topic breakdown, sorted by count.
type TopicCount struct {
	Topic string `json:"topic"`
	Count int64  `json:"count"`
}

// Collector accumulates statistics. Safe for concurrent use.
type Collector struct {
	mu          sync.Mutex
	totalEvents int64
	totalBytes  int64
	reconnects  int64
	topics      map[string]int64
	window      []time.Time
	startedAt   time.Time
	history     *Ring

	// now is the clock source, injectable for tests.
	now func() time.Time
}

// NewCollector creates a collector keeping historyCap recent events
// (DefaultHistoryCapacity when non-positive).
func NewCollector(historyCap int) *Collector {
	return &Collector{
		topics:    make(map[string]int64),
		startedAt: time.Now(),
		history:   NewRing(historyCap),
		now:       time.Now,
	}
}

// Record accounts for one delivered event and appends it to the history.
func (c *Collector) Record(ev relay.EventPayload) {
	now := c.now()

	c.mu.Lock()
	c.totalEvents++
	c.totalBytes += int64(len(ev.Payload))
	c.topics[ev.Topic]++
	c.window = append(c.window, now)
	c.pruneWindowLocked(now)
	c.mu.Unlock()

	c.history.Append(Entry{
		Topic:      ev.Topic,
		Payload:    ev.Payload,
		Retained:   ev.Retained,
		ReceivedAt: now,
	})
}

// Reconnected counts one completed reconnection.
func (c *Collector) Reconnected() {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.reconnects++
}

// Recent returns up to limit most recent events, newest first.
func (c *Collector) Recent(limit int) []Entry {
	return c.history.Recent(limit)
}

// Snapshot computes the current aggregate.
func (c *Collector) Snapshot() Analytics {
	now := c.now()

	c.mu.Lock()
	defer c.mu.Unlock()

	c.pruneWindowLocked(now)

	top := make([]TopicCount, 0, len(c.topics))
	for topic, count := range c.topics {
		top = append(top, TopicCount{Topic: topic, Count: count})
	}
	sort.Slice(top, func(i, j int) bool {
		if top[i].Count != top[j].Count {
			return top[i].Count > top[j].Count
		}
		return top[i].Topic < top[j].Topic
	})
	if len(top) > 10 {
		top = top[:10]
	}

	return Analytics{
		TotalEvents:    c.totalEvents,
		TotalBytes:     c.totalBytes,
		EventsPerSec:   float64(len(c.window)) / rateWindow.Seconds(),
		UniqueTopics:   len(c.topics),
		TopTopics:      top,
		ReconnectCount: c.reconnects,
		StartedAt:      c.startedAt,
	}
}

// pruneWindowLocked drops window timestamps older than the rate window.
func (c *Collector) pruneWindowLocked(now time.Time) {
	cutoff := now.Add(-rateWindow)
	i := 0
	for i < len(c.window) && c.window[i].Before(cutoff) {
		i++
	}
	if i > 0 {
		c.window = append(c.window[:0], c.window[i:]...)
	}
}
