// Package health layers a periodic heartbeat exchange on top of the
// transport to detect links the OS still reports as open but which are
// actually stalled: no data flows and no TCP-level signal ever arrives.
package health

import (
	"context"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"github.com/relaylens/relaylens/internal/relay"
)

// DefaultInterval is the heartbeat probe interval.
const DefaultInterval = 30 * time.Second

// CloseHeartbeatTimeout is the private close code used when the monitor
// declares the link dead, so the closure is distinguishable from peer
// closes.
const CloseHeartbeatTimeout = 4000

// Link is the transport surface the monitor probes and, when the link is
// stalled, terminates.
type Link interface {
	Send(payload []byte) bool
	Close(code int, reason string)
}

// Monitor sends heartbeat pings on a fixed interval and force-closes the
// link when no pong has arrived within twice the interval. All monitor
// state is reset on Stop; nothing leaks across connection attempts.
type Monitor struct {
	interval time.Duration
	log      zerolog.Logger

	mu       sync.Mutex
	cancel   context.CancelFunc
	lastPong time.Time

	// now is the clock source, injectable for tests.
	now func() time.Time
}

// New creates a monitor with the given probe interval (DefaultInterval when
// non-positive).
func New(interval time.Duration, log zerolog.Logger) *Monitor {
	if interval <= 0 {
		interval = DefaultInterval
	}
	return &Monitor{
		interval: interval,
		log:      log,
		now:      time.Now,
	}
}

// Interval returns the probe interval.
func (m *Monitor) Interval() time.Duration {
	return m.interval
}

// Start arms the monitor against link. A previous run is stopped first;
// the pong clock starts fresh so a new connection is never judged by the
// old one's silence.
func (m *Monitor) Start(link Link) {
	m.mu.Lock()
	if m.cancel != nil {
		m.cancel()
	}
	ctx, cancel := context.WithCancel(context.Background())
	m.cancel = cancel
	m.lastPong = m.now()
	m.mu.Unlock()

	go m.loop(ctx, link)
}

// Stop cancels the probe timer and clears the pong clock.
func (m *Monitor) Stop() {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.cancel != nil {
		m.cancel()
		m.cancel = nil
	}
	m.lastPong = time.Time{}
}

// Pong records a heartbeat reply received at the given time.
func (m *Monitor) Pong(at time.Time) {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.lastPong = at
}

// LastPong returns the receipt time of the latest heartbeat reply, or the
// zero time when the monitor is stopped.
func (m *Monitor) LastPong() time.Time {
	m.mu.Lock()
	defer m.mu.Unlock()

	return m.lastPong
}

// loop probes on every tick. At send time, a pong gap exceeding twice the
// interval means the link is dead: it is closed with the heartbeat code and
// the loop exits (the resulting close event drives recovery elsewhere).
func (m *Monitor) loop(ctx context.Context, link Link) {
	ticker := time.NewTicker(m.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			m.mu.Lock()
			lastPong := m.lastPong
			m.mu.Unlock()

			if lastPong.IsZero() {
				// Stopped concurrently with the tick.
				return
			}

			if gap := m.now().Sub(lastPong); gap > 2*m.interval {
				m.log.Warn().
					Dur("gap", gap).
					Dur("interval", m.interval).
					Msg("no heartbeat reply, closing stalled link")
				link.Close(CloseHeartbeatTimeout, "heartbeat timeout")
				return
			}

			if !link.Send(relay.PingFrame(m.now())) {
				// The link is gone; its close event drives recovery.
				m.log.Debug().Msg("heartbeat probe not sent, link not open")
				return
			}
		}
	}
}
