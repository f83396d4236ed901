// Package visibility tracks whether any attached UI is in the foreground.
// Recovery work is pointless while every window is backgrounded, so the
// coordinator suspends retries and heartbeats on hidden and re-evaluates
// immediately on visible.
package visibility

import "sync"

// Sink receives foreground transitions. Notifications fire only when the
// aggregate visibility actually changes.
type Sink interface {
	VisibilityChanged(visible bool)
}

// Tracker collapses per-client visibility reports into a single foreground
// flag: the application is visible when at least one client is. A
// deployment with no UI clients at all counts as visible so recovery never
// stalls in headless operation.
type Tracker struct {
	mu      sync.Mutex
	clients map[string]bool
	visible bool
	sink    Sink
}

// NewTracker creates a tracker reporting to sink. The initial state is
// visible.
func NewTracker(sink Sink) *Tracker {
	return &Tracker{
		clients: make(map[string]bool),
		visible: true,
		sink:    sink,
	}
}

// Report records one client's visibility state.
func (t *Tracker) Report(clientID string, visible bool) {
	t.mu.Lock()
	t.clients[clientID] = visible
	t.recomputeLocked()
}

// Forget removes a departed client from the aggregate.
func (t *Tracker) Forget(clientID string) {
	t.mu.Lock()
	delete(t.clients, clientID)
	t.recomputeLocked()
}

// Visible returns the current aggregate state.
func (t *Tracker) Visible() bool {
	t.mu.Lock()
	defer t.mu.Unlock()

	return t.visible
}

// recomputeLocked recalculates the aggregate and notifies the sink on a
// transition. The mutex is held on entry and released here so the sink is
// never called with it held.
func (t *Tracker) recomputeLocked() {
	visible := len(t.clients) == 0
	for _, v := range t.clients {
		if v {
			visible = true
			break
		}
	}

	changed := visible != t.visible
	t.visible = visible
	t.mu.Unlock()

	if changed && t.sink != nil {
		t.sink.VisibilityChanged(visible)
	}
}
