// Package transport owns the single live WebSocket link to the backend
// event relay. It exposes open/send/close plus a typed event stream; all
// reconnection and lifecycle decisions live in the coordinator, not here.
package transport

import (
	"context"
	"crypto/tls"
	"crypto/x509"
	"encoding/base64"
	"errors"
	"fmt"
	"net/http"
	"os"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"github.com/rs/zerolog"
)

// Timing and sizing constants for the link.
const (
	// OpenTimeout bounds a single connection attempt; a link that is not
	// usable within this window is force-closed and the attempt fails.
	OpenTimeout = 10 * time.Second

	// WriteTimeout bounds a single frame write.
	WriteTimeout = 10 * time.Second

	// MaxMessageSize caps inbound frames (1MB).
	MaxMessageSize = 1024 * 1024
)

// Close codes used by this side of the link.
const (
	// CloseNormal is the code for a deliberate, clean disconnect.
	CloseNormal = websocket.CloseNormalClosure

	// CloseGoingAway marks shutdown-path closes.
	CloseGoingAway = websocket.CloseGoingAway
)

// EventKind discriminates transport events.
type EventKind int

const (
	// EventMessage carries a raw inbound frame.
	EventMessage EventKind = iota
	// EventClosed reports that the current socket closed. Exactly one is
	// emitted per opened socket, after its last message.
	EventClosed
	// EventError reports a non-fatal transport error.
	EventError
)

// Event is a transport lifecycle or message notification. Per connection,
// messages are delivered in receive order and precede the single Closed
// event; nothing is emitted for a socket after its Closed. Gen identifies
// the socket the event came from, so consumers can discard leftovers from
// a superseded socket that drain after a newer one opened.
type Event struct {
	Kind     EventKind
	Gen      int
	Data     []byte
	Code     int
	Reason   string
	WasClean bool
	Err      error
}

// TLSOptions configures the TLS side of a connection attempt.
type TLSOptions struct {
	CAFile             string
	CertFile           string
	KeyFile            string
	InsecureSkipVerify bool
}

// Config is the immutable per-attempt connection configuration.
type Config struct {
	URL      string
	Username string
	Password string
	TLS      TLSOptions
}

// openAttempt is a pending Open call; concurrent Open calls join it instead
// of dialing a second socket.
type openAttempt struct {
	done chan struct{}
	err  error
}

// Transport manages one socket at a time. The raw socket handle is owned
// exclusively here and is recreated on every attempt, never reused.
type Transport struct {
	mu      sync.Mutex
	conn    *websocket.Conn
	pending *openAttempt

	// gen increments on every installed socket; events carry it.
	gen int

	// localCode/localReason record a locally initiated close so the read
	// pump can report it instead of the raw read error.
	localCode   int
	localReason string

	// writeMu serializes writes; gorilla/websocket does not allow
	// concurrent writers.
	writeMu sync.Mutex

	events chan Event
	log    zerolog.Logger
}

// New creates a transport with no socket.
func New(log zerolog.Logger) *Transport {
	return &Transport{
		events: make(chan Event, 64),
		log:    log,
	}
}

// Events returns the transport's event stream.
func (t *Transport) Events() <-chan Event {
	return t.events
}

// Generation returns the generation of the most recently installed socket.
// Events from that socket carry the same value.
func (t *Transport) Generation() int {
	t.mu.Lock()
	defer t.mu.Unlock()

	return t.gen
}

// Open dials the relay and returns once the link is usable or the attempt
// failed. At most one attempt is in flight per transport: a second Open
// while one is pending joins it and returns the same result. Open on an
// already-open transport is a no-op.
func (t *Transport) Open(ctx context.Context, cfg Config) error {
	t.mu.Lock()
	if p := t.pending; p != nil {
		t.mu.Unlock()
		select {
		case <-p.done:
			return p.err
		case <-ctx.Done():
			return ctx.Err()
		}
	}
	if t.conn != nil {
		t.mu.Unlock()
		return nil
	}
	p := &openAttempt{done: make(chan struct{})}
	t.pending = p
	t.mu.Unlock()

	err := t.dial(ctx, cfg)

	t.mu.Lock()
	t.pending = nil
	t.mu.Unlock()

	p.err = err
	close(p.done)
	return err
}

// dial performs one connection attempt and, on success, installs the socket
// and starts its read pump.
func (t *Transport) dial(ctx context.Context, cfg Config) error {
	tlsCfg, err := cfg.TLS.build()
	if err != nil {
		return err
	}

	dialer := websocket.Dialer{
		HandshakeTimeout: OpenTimeout,
		TLSClientConfig:  tlsCfg,
	}

	header := http.Header{}
	if cfg.Username != "" {
		cred := base64.StdEncoding.EncodeToString([]byte(cfg.Username + ":" + cfg.Password))
		header.Set("Authorization", "Basic "+cred)
	}

	dialCtx, cancel := context.WithTimeout(ctx, OpenTimeout)
	defer cancel()

	conn, resp, err := dialer.DialContext(dialCtx, cfg.URL, header)
	if err != nil {
		if resp != nil {
			if resp.StatusCode == http.StatusUnauthorized || resp.StatusCode == http.StatusForbidden {
				return fmt.Errorf("relay rejected credentials (HTTP %d): %w", resp.StatusCode, err)
			}
			return fmt.Errorf("relay handshake failed (HTTP %d): %w", resp.StatusCode, err)
		}
		return fmt.Errorf("dial %s: %w", cfg.URL, err)
	}

	conn.SetReadLimit(MaxMessageSize)

	// Answer protocol-level pings so intermediaries keep the link alive.
	conn.SetPingHandler(func(appData string) error {
		return conn.WriteControl(websocket.PongMessage, []byte(appData), time.Now().Add(WriteTimeout))
	})

	t.mu.Lock()
	t.conn = conn
	t.gen++
	gen := t.gen
	t.localCode = 0
	t.localReason = ""
	t.mu.Unlock()

	go t.readPump(conn, gen)

	t.log.Debug().Str("url", cfg.URL).Msg("transport link open")
	return nil
}

// Send writes one text frame. It returns false, and never an error, when no
// link is open or the write fails, so callers can branch straight to
// queuing.
func (t *Transport) Send(payload []byte) bool {
	t.mu.Lock()
	conn := t.conn
	t.mu.Unlock()

	if conn == nil {
		return false
	}

	t.writeMu.Lock()
	defer t.writeMu.Unlock()

	_ = conn.SetWriteDeadline(time.Now().Add(WriteTimeout))
	if err := conn.WriteMessage(websocket.TextMessage, payload); err != nil {
		t.log.Debug().Err(err).Msg("transport write failed")
		return false
	}
	return true
}

// Close tears down the current socket with the given close code. It is a
// no-op when no socket is open. The socket's Closed event carries code and
// reason.
func (t *Transport) Close(code int, reason string) {
	t.mu.Lock()
	conn := t.conn
	if conn == nil {
		t.mu.Unlock()
		return
	}
	t.conn = nil
	t.localCode = code
	t.localReason = reason
	t.mu.Unlock()

	t.writeMu.Lock()
	_ = conn.WriteControl(
		websocket.CloseMessage,
		websocket.FormatCloseMessage(code, reason),
		time.Now().Add(WriteTimeout),
	)
	t.writeMu.Unlock()
	_ = conn.Close()
}

// readPump receives frames until the socket dies, then emits the single
// Closed event for it. Read errors on a given socket are terminal; the
// socket is never read again after one (retrying a failed gorilla read
// panics).
func (t *Transport) readPump(conn *websocket.Conn, gen int) {
	for {
		_, data, err := conn.ReadMessage()
		if err != nil {
			t.finish(conn, gen, err)
			return
		}
		t.events <- Event{Kind: EventMessage, Gen: gen, Data: data}
	}
}

// finish translates the terminal read error into the Closed event,
// preferring the locally recorded close code when this side initiated it.
func (t *Transport) finish(conn *websocket.Conn, gen int, readErr error) {
	t.mu.Lock()
	code, reason := t.localCode, t.localReason
	if t.conn == conn {
		// Peer-initiated close or read failure: release the handle.
		t.conn = nil
		code, reason = 0, ""
	}
	t.localCode = 0
	t.localReason = ""
	t.mu.Unlock()

	_ = conn.Close()

	ev := Event{Kind: EventClosed, Gen: gen, Code: websocket.CloseAbnormalClosure, Reason: readErr.Error()}
	switch {
	case code != 0:
		ev.Code = code
		ev.Reason = reason
		ev.WasClean = code == websocket.CloseNormalClosure
	default:
		var ce *websocket.CloseError
		if errors.As(readErr, &ce) {
			ev.Code = ce.Code
			ev.Reason = ce.Text
			ev.WasClean = ce.Code == websocket.CloseNormalClosure
		}
	}

	t.events <- ev
}

// build assembles a tls.Config from the options, or nil when defaults
// suffice.
func (o TLSOptions) build() (*tls.Config, error) {
	if o.CAFile == "" && o.CertFile == "" && !o.InsecureSkipVerify {
		return nil, nil
	}

	cfg := &tls.Config{InsecureSkipVerify: o.InsecureSkipVerify} //nolint:gosec // operator opt-in

	if o.CAFile != "" {
		pem, err := os.ReadFile(o.CAFile)
		if err != nil {
			return nil, fmt.Errorf("read CA file: %w", err)
		}
		pool := x509.NewCertPool()
		if !pool.AppendCertsFromPEM(pem) {
			return nil, fmt.Errorf("CA file %s contains no usable certificates", o.CAFile)
		}
		cfg.RootCAs = pool
	}

	if o.CertFile != "" {
		cert, err := tls.LoadX509KeyPair(o.CertFile, o.KeyFile)
		if err != nil {
			return nil, fmt.Errorf("load client certificate: %w", err)
		}
		cfg.Certificates = []tls.Certificate{cert}
	}

	return cfg, nil
}
