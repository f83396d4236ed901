// Package coordinator implements the connection state machine that
// orchestrates transport, health monitor, reconnection policy, and outbox
// into one connect/disconnect/recover lifecycle.
//
// All state lives in a single event-loop goroutine: commands, transport
// events, and timer firings are loop events that run to completion before
// the next one is processed, so transitions never race and no locking is
// needed around the machine itself.
package coordinator

import (
	"context"
	"fmt"
	"sync/atomic"
	"time"

	"github.com/rs/zerolog"

	"github.com/relaylens/relaylens/internal/backoff"
	"github.com/relaylens/relaylens/internal/health"
	"github.com/relaylens/relaylens/internal/outbox"
	"github.com/relaylens/relaylens/internal/relay"
	"github.com/relaylens/relaylens/internal/transport"
)

// HealthMonitor is the heartbeat surface the coordinator arms and disarms
// around the Connected state.
type HealthMonitor interface {
	Start(link health.Link)
	Stop()
	Pong(at time.Time)
}

// Coordinator drives the connection lifecycle. Collaborators are
// constructor-injected; there are no ambient singletons.
type Coordinator struct {
	link    Link
	queue   *outbox.Queue
	monitor HealthMonitor
	policy  backoff.Policy

	maxAttempts int
	log         zerolog.Logger

	cmds chan func()
	done chan struct{}

	// Mirrors for the synchronous Snapshot query; written only by the loop.
	stateMirror    atomic.Int32
	attemptsMirror atomic.Int32

	// Everything below is owned by the event loop.
	ctx           context.Context
	state         State
	cfg           transport.Config
	attempts      int
	wantConnected bool
	visible       bool
	lastFailure   *transport.Failure
	listeners     []Listener

	// Timer and attempt bookkeeping. Generation counters discard firings
	// that were cancelled by a transition out of the owning state.
	backoffTimer *time.Timer
	backoffGen   int
	nextRetryAt  time.Time
	openCancel   context.CancelFunc
	openGen      int

	// linkGen is the generation of the socket currently considered live.
	// Events from superseded sockets that drain late are discarded by it.
	linkGen int
}

// New assembles a coordinator. maxAttempts bounds the retry counter before
// the terminal failed state (backoff.DefaultMaxAttempts when non-positive).
func New(link Link, queue *outbox.Queue, monitor HealthMonitor, policy backoff.Policy, maxAttempts int, log zerolog.Logger) *Coordinator {
	if maxAttempts <= 0 {
		maxAttempts = backoff.DefaultMaxAttempts
	}
	return &Coordinator{
		link:        link,
		queue:       queue,
		monitor:     monitor,
		policy:      policy,
		maxAttempts: maxAttempts,
		log:         log,
		cmds:        make(chan func(), 64),
		done:        make(chan struct{}),
		state:       StateDisconnected,
		visible:     true,
	}
}

// AddListener registers a notification listener. Must be called before
// Start.
func (c *Coordinator) AddListener(l Listener) {
	c.listeners = append(c.listeners, l)
}

// Start launches the event loop. It runs until ctx is cancelled, at which
// point the deliberate-disconnect path is executed so no timer outlives the
// loop.
func (c *Coordinator) Start(ctx context.Context) {
	c.ctx = ctx
	go c.run(ctx)
}

// Done is closed once the event loop has shut down.
func (c *Coordinator) Done() <-chan struct{} {
	return c.done
}

// Connect requests a connection with the given configuration. While already
// connecting or connected the call is a no-op (idempotent); from the
// terminal failed state it re-enters connecting with a fresh attempt
// counter.
func (c *Coordinator) Connect(cfg transport.Config) {
	c.post(func() { c.doConnect(cfg) })
}

// Disconnect deliberately tears the connection down: auto-reconnect is
// disabled, the health monitor stopped, the outbox cleared, and every
// pending timer cancelled. Nothing fires after the transition begins.
func (c *Coordinator) Disconnect() {
	c.post(func() { c.doDisconnect("disconnect requested") })
}

// Send routes an outbound frame: straight to the transport when connected,
// into the outbox otherwise.
func (c *Coordinator) Send(payload []byte) {
	c.post(func() { c.doSend(payload) })
}

// Snapshot answers the synchronous status query.
func (c *Coordinator) Snapshot() Snapshot {
	return Snapshot{
		State:             State(c.stateMirror.Load()),
		ReconnectAttempts: int(c.attemptsMirror.Load()),
		Queued:            c.queue.Len(),
	}
}

// State returns the current connection state.
func (c *Coordinator) State() State {
	return State(c.stateMirror.Load())
}

// VisibilityChanged implements visibility.Sink. Hidden suspends recovery
// and heartbeats; visible re-evaluates immediately.
func (c *Coordinator) VisibilityChanged(visible bool) {
	c.post(func() { c.doVisibility(visible) })
}

// Nudge implements netwatch.Nudger: an external hint that the network
// environment changed. While waiting out a backoff it collapses the
// remaining wait, the same way a visibility restoration does.
func (c *Coordinator) Nudge(reason string) {
	c.post(func() {
		if c.state == StateReconnecting && c.wantConnected && c.visible {
			c.cancelBackoff()
			c.beginConnect(reason)
		}
	})
}

// post hands a command to the event loop, dropping it when the loop has
// already shut down.
func (c *Coordinator) post(fn func()) {
	select {
	case c.cmds <- fn:
	case <-c.done:
	}
}

// run is the event loop.
func (c *Coordinator) run(ctx context.Context) {
	defer close(c.done)

	for {
		select {
		case <-ctx.Done():
			c.doDisconnect("shutting down")
			if c.state == StateDisconnecting {
				// The loop is exiting; there is nothing left to deliver the
				// close confirmation, so settle the state now.
				c.setState(StateDisconnected, "shutting down")
			}
			return
		case fn := <-c.cmds:
			fn()
		case ev := <-c.link.Events():
			c.handleTransportEvent(ev)
		}
	}
}

// ---- commands ----

func (c *Coordinator) doConnect(cfg transport.Config) {
	switch c.state {
	case StateConnecting, StateConnected, StateReconnecting:
		c.log.Debug().Stringer("state", c.state).Msg("connect ignored, already in progress")
		return
	case StateDisconnecting:
		c.log.Debug().Msg("connect ignored while disconnecting")
		return
	}

	c.cfg = cfg
	c.wantConnected = true
	c.attempts = 0
	c.lastFailure = nil
	c.beginConnect("connect requested")
}

func (c *Coordinator) doDisconnect(detail string) {
	if c.state == StateDisconnected {
		return
	}

	c.wantConnected = false
	c.cancelBackoff()
	c.cancelOpen()
	c.monitor.Stop()
	if n := c.queue.Clear(); n > 0 {
		c.log.Debug().Int("dropped", n).Msg("outbox cleared on disconnect")
	}

	if c.state == StateConnected {
		c.setState(StateDisconnecting, detail)
		c.link.Close(transport.CloseNormal, "client disconnect")
		// Disconnected is entered when the transport confirms the close.
		return
	}

	// No usable link to wait on: close whatever half-open socket may exist
	// and settle immediately.
	c.link.Close(transport.CloseNormal, "client disconnect")
	c.setState(StateDisconnected, detail)
}

func (c *Coordinator) doSend(payload []byte) {
	if c.state == StateConnected && c.link.Send(payload) {
		return
	}
	if c.queue.Enqueue(payload) {
		c.log.Debug().Msg("outbox full, oldest frame evicted")
	}
}

func (c *Coordinator) doVisibility(visible bool) {
	if visible == c.visible {
		return
	}
	c.visible = visible

	if !visible {
		// No point probing or retrying in the background.
		switch c.state {
		case StateConnected:
			c.monitor.Stop()
		case StateReconnecting:
			c.cancelBackoff()
		}
		c.log.Debug().Msg("recovery suspended, application backgrounded")
		return
	}

	switch c.state {
	case StateConnected:
		c.monitor.Start(c.link)
	case StateReconnecting:
		// The gap was not a true repeated failure; skip the remaining wait.
		c.cancelBackoff()
		c.beginConnect("visibility restored")
	}
}

// ---- connection attempts ----

// beginConnect launches a single open attempt. The result is delivered back
// into the loop, guarded by a generation so a cancelled attempt's outcome
// is discarded.
func (c *Coordinator) beginConnect(detail string) {
	c.setState(StateConnecting, detail)

	openCtx, cancel := context.WithCancel(c.ctx)
	c.openCancel = cancel
	c.openGen++
	gen := c.openGen
	cfg := c.cfg

	go func() {
		err := c.link.Open(openCtx, cfg)
		c.post(func() { c.onOpenResult(gen, err) })
	}()
}

func (c *Coordinator) cancelOpen() {
	if c.openCancel != nil {
		c.openCancel()
		c.openCancel = nil
	}
	c.openGen++
}

func (c *Coordinator) onOpenResult(gen int, err error) {
	if gen != c.openGen {
		// A cancelled attempt that still managed to open must not leave a
		// stray socket behind.
		if err == nil {
			c.link.Close(transport.CloseNormal, "attempt superseded")
		}
		return
	}
	c.openCancel = nil

	if err != nil {
		failure := transport.Classify(err)
		c.log.Warn().
			Err(err).
			Str("kind", failure.Kind.String()).
			Int("attempt", c.attempts).
			Msg("connection attempt failed")
		if !c.wantConnected {
			c.setState(StateDisconnected, "disconnected")
			return
		}
		c.lastFailure = failure
		c.scheduleRetry(failure, "")
		return
	}

	c.attempts = 0
	c.lastFailure = nil
	c.linkGen = c.link.Generation()

	// Arm the heartbeat before draining so a stalled link is detected even
	// if the drain is the first traffic; drained frames go out ahead of any
	// fresh send, which cannot be processed until this step completes.
	c.monitor.Start(c.link)
	sent, dropped := c.queue.Drain(c.link.Send)
	if sent > 0 || dropped > 0 {
		c.log.Info().Int("sent", sent).Int("dropped_stale", dropped).Msg("outbox drained")
	}

	c.setState(StateConnected, "connected to "+c.cfg.URL)
}

// scheduleRetry advances the attempt counter and either arms the backoff
// timer or, past the attempt budget, enters the terminal failed state.
// cause, when non-empty, describes what killed the connection and is
// surfaced in the status detail ahead of the retry countdown.
func (c *Coordinator) scheduleRetry(failure *transport.Failure, cause string) {
	c.attempts++
	if c.attempts > c.maxAttempts {
		reason := fmt.Sprintf("gave up after %d attempts", c.maxAttempts)
		if failure != nil {
			reason = fmt.Sprintf("%s (last error: %s)", reason, failure.Kind)
		}
		c.wantConnected = false
		c.setState(StateFailed, reason)
		for _, l := range c.listeners {
			l.ConnectionFailed(reason)
		}
		return
	}

	delay := c.policy.Delay(c.attempts)
	detail := fmt.Sprintf("retry %d/%d in %s", c.attempts, c.maxAttempts, delay)
	if cause != "" {
		detail = cause + "; " + detail
	}

	if !c.visible {
		// Suspended: the next visible transition fires the attempt.
		c.setState(StateReconnecting, detail+" (suspended)")
		return
	}

	c.armBackoff(delay)
	c.setState(StateReconnecting, detail)
}

func (c *Coordinator) armBackoff(delay time.Duration) {
	c.backoffGen++
	gen := c.backoffGen
	c.nextRetryAt = time.Now().Add(delay)
	c.backoffTimer = time.AfterFunc(delay, func() {
		c.post(func() { c.onBackoffFired(gen) })
	})
}

func (c *Coordinator) cancelBackoff() {
	if c.backoffTimer != nil {
		c.backoffTimer.Stop()
		c.backoffTimer = nil
	}
	c.backoffGen++
	c.nextRetryAt = time.Time{}
}

func (c *Coordinator) onBackoffFired(gen int) {
	if gen != c.backoffGen || c.state != StateReconnecting {
		return
	}
	c.backoffTimer = nil
	c.nextRetryAt = time.Time{}
	if !c.visible {
		return
	}
	c.beginConnect(fmt.Sprintf("retry attempt %d", c.attempts))
}

// ---- transport events ----

func (c *Coordinator) handleTransportEvent(ev transport.Event) {
	switch ev.Kind {
	case transport.EventMessage:
		if ev.Gen != c.linkGen {
			return
		}
		c.handleMessage(ev.Data)
	case transport.EventClosed:
		c.handleClosed(ev)
	case transport.EventError:
		c.log.Warn().Err(ev.Err).Msg("transport error")
	}
}

func (c *Coordinator) handleMessage(data []byte) {
	env, err := relay.Decode(data)
	if err != nil {
		failure := transport.Classify(err)
		c.log.Warn().Err(err).Str("kind", failure.Kind.String()).Msg("dropping undecodable frame")
		return
	}

	switch env.Type {
	case relay.TypePong:
		c.monitor.Pong(time.Now())
	case relay.TypePing:
		c.link.Send(relay.PongFrame(time.Now()))
	case relay.TypeEvent:
		parsed, err := env.ParseEvent()
		if err != nil {
			c.log.Warn().Err(err).Msg("dropping malformed event frame")
			return
		}
		for _, l := range c.listeners {
			l.EventReceived(parsed)
		}
	default:
		c.log.Debug().Str("type", env.Type).Msg("ignoring unrecognized frame type")
	}
}

func (c *Coordinator) handleClosed(ev transport.Event) {
	if ev.Gen != c.linkGen {
		// A socket from a superseded attempt finally drained its close.
		c.log.Debug().
			Int("code", ev.Code).
			Int("gen", ev.Gen).
			Msg("ignoring close event from superseded socket")
		return
	}

	switch c.state {
	case StateConnected:
		c.monitor.Stop()
		detail := fmt.Sprintf("connection lost (code %d)", ev.Code)
		var failure *transport.Failure
		if ev.Code == health.CloseHeartbeatTimeout {
			detail = "connection stalled (heartbeat timeout)"
			failure = &transport.Failure{Kind: transport.FailureTimeout, Err: fmt.Errorf("heartbeat timeout")}
		} else if ev.Reason != "" {
			detail = fmt.Sprintf("connection lost (code %d: %s)", ev.Code, ev.Reason)
		}
		c.log.Warn().Int("code", ev.Code).Str("reason", ev.Reason).Msg("unexpected close")
		c.lastFailure = failure
		c.scheduleRetry(failure, detail)

	case StateDisconnecting:
		c.setState(StateDisconnected, "disconnected")

	default:
		// The live socket's close confirmation arrived after the state
		// machine already settled (disconnect without a usable link).
		c.log.Debug().
			Int("code", ev.Code).
			Stringer("state", c.state).
			Msg("ignoring close event, already settled")
	}
}

// ---- state transitions ----

// setState performs a transition and emits the status notification. Every
// transition goes through here.
func (c *Coordinator) setState(s State, detail string) {
	prev := c.state
	c.state = s
	c.stateMirror.Store(int32(s))
	c.attemptsMirror.Store(int32(c.attempts))

	status := Status{
		State:    s,
		Detail:   detail,
		Attempts: c.attempts,
		Queued:   c.queue.Len(),
	}
	if s == StateReconnecting && !c.nextRetryAt.IsZero() {
		status.NextRetryIn = time.Until(c.nextRetryAt)
	}
	if c.lastFailure != nil {
		status.FailureKind = c.lastFailure.Kind.String()
	}

	c.log.Info().
		Stringer("from", prev).
		Stringer("to", s).
		Str("detail", detail).
		Msg("connection state changed")

	for _, l := range c.listeners {
		l.StatusChanged(status)
	}
}
