// Package netwatch polls the host's network interface addresses and nudges
// the connection coordinator when they change. Switching networks often
// kills a connection without any socket-level signal while the backoff
// timer is still counting down; the nudge collapses that wait.
package netwatch

import (
	"context"
	"net"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/rs/zerolog"
)

// DefaultInterval is the polling interval for address changes.
const DefaultInterval = 5 * time.Second

// Nudger is notified when the network environment changes.
type Nudger interface {
	Nudge(reason string)
}

// Watcher polls net.InterfaceAddrs and reports changes to a Nudger.
type Watcher struct {
	nudger   Nudger
	interval time.Duration
	log      zerolog.Logger

	mu        sync.Mutex
	lastAddrs []string

	// getAddrs is the address source, injectable for tests.
	getAddrs func() ([]string, error)
}

// New creates a watcher reporting to nudger every interval
// (DefaultInterval when non-positive).
func New(nudger Nudger, interval time.Duration, log zerolog.Logger) *Watcher {
	if interval <= 0 {
		interval = DefaultInterval
	}
	return &Watcher{
		nudger:   nudger,
		interval: interval,
		log:      log,
		getAddrs: interfaceAddrs,
	}
}

// Start begins polling until ctx is cancelled.
func (w *Watcher) Start(ctx context.Context) {
	addrs, err := w.getAddrs()
	if err != nil {
		w.log.Warn().Err(err).Msg("initial interface address lookup failed, starting empty")
	}

	w.mu.Lock()
	w.lastAddrs = addrs
	w.mu.Unlock()

	w.log.Info().
		Int("addr_count", len(addrs)).
		Dur("interval", w.interval).
		Msg("network change watcher started")

	go w.loop(ctx)
}

func (w *Watcher) loop(ctx context.Context) {
	ticker := time.NewTicker(w.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			w.log.Debug().Msg("network watcher stopped")
			return
		case <-ticker.C:
			if w.changed() {
				w.log.Info().Msg("network interface change detected")
				w.nudger.Nudge("network change")
			}
		}
	}
}

// changed compares the current address set against the previous poll and
// always records the latest set.
func (w *Watcher) changed() bool {
	current, err := w.getAddrs()
	if err != nil {
		w.log.Debug().Err(err).Msg("interface address lookup failed, assuming unchanged")
		return false
	}

	w.mu.Lock()
	defer w.mu.Unlock()

	changed := !equalStrings(w.lastAddrs, current)
	w.lastAddrs = current
	return changed
}

// interfaceAddrs returns the host's non-loopback interface addresses,
// sorted for deterministic comparison.
func interfaceAddrs() ([]string, error) {
	ifaces, err := net.InterfaceAddrs()
	if err != nil {
		return nil, err
	}

	addrs := make([]string, 0, len(ifaces))
	for _, addr := range ifaces {
		s := addr.String()
		if strings.HasPrefix(s, "127.") || strings.HasPrefix(s, "::1") {
			continue
		}
		addrs = append(addrs, s)
	}

	sort.Strings(addrs)
	return addrs, nil
}

func equalStrings(a, b []string) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if a[i] != b[i] {
			return false
		}
	}
	return true
}
