package server

import (
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/relaylens/relaylens/internal/coordinator"
	"github.com/relaylens/relaylens/internal/relay"
	"github.com/relaylens/relaylens/internal/stats"
	"github.com/relaylens/relaylens/internal/transport"
	"github.com/relaylens/relaylens/internal/visibility"
)

// visibilitySpy records aggregate visibility transitions.
type visibilitySpy struct {
	mu    sync.Mutex
	calls []bool
}

func (s *visibilitySpy) VisibilityChanged(visible bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.calls = append(s.calls, visible)
}

func (s *visibilitySpy) snapshot() []bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]bool(nil), s.calls...)
}

func dialHub(t *testing.T, url string) *websocket.Conn {
	t.Helper()
	conn, _, err := websocket.DefaultDialer.Dial(url, nil)
	require.NoError(t, err)
	t.Cleanup(func() { conn.Close() })
	return conn
}

func TestNewClientReceivesCurrentStatus(t *testing.T) {
	s, _, ts := newTestServer(t)

	// A transition before any client attaches becomes the cached status.
	s.StatusChanged(coordinator.Status{State: coordinator.StateConnected, Detail: "connected"})

	conn := dialHub(t, wsTestURL(ts))
	conn.SetReadDeadline(time.Now().Add(2 * time.Second))

	_, data, err := conn.ReadMessage()
	require.NoError(t, err)

	env, err := relay.Decode(data)
	require.NoError(t, err)
	assert.Equal(t, relay.TypeStatus, env.Type)
}

func TestEventsBroadcastToClients(t *testing.T) {
	s, _, ts := newTestServer(t)

	conn := dialHub(t, wsTestURL(ts))

	// Wait for the hub to register the client.
	deadline := time.Now().Add(2 * time.Second)
	for s.hub.ClientCount() == 0 && time.Now().Before(deadline) {
		time.Sleep(5 * time.Millisecond)
	}
	require.Equal(t, 1, s.hub.ClientCount())

	s.EventReceived(relay.EventPayload{Topic: "sensors/temp", Payload: "22.1"})

	conn.SetReadDeadline(time.Now().Add(2 * time.Second))
	_, data, err := conn.ReadMessage()
	require.NoError(t, err)

	env, err := relay.Decode(data)
	require.NoError(t, err)
	require.Equal(t, relay.TypeEvent, env.Type)

	ev, err := env.ParseEvent()
	require.NoError(t, err)
	assert.Equal(t, "sensors/temp", ev.Topic)
	assert.Equal(t, "22.1", ev.Payload)
}

func TestVisibilityReportsFeedTracker(t *testing.T) {
	spy := &visibilitySpy{}
	tracker := visibility.NewTracker(spy)
	hub := NewHub(tracker, zerolog.Nop())

	controller := &fakeController{}
	collector := stats.NewCollector(10)
	subs := relay.NewSubscriptionSet()
	relayCfg := transport.Config{URL: "ws://relay.test/stream"}
	s := New("127.0.0.1:0", controller, hub, collector, subs,
		relayCfg, "client-1", zerolog.Nop())

	ts := httptest.NewServer(s.router)
	t.Cleanup(ts.Close)
	conn := dialHub(t, wsTestURL(ts))

	env, err := relay.NewEnvelope(relay.TypeVisibility, relay.VisibilityPayload{Visible: false})
	require.NoError(t, err)
	frame, err := relay.Encode(env)
	require.NoError(t, err)
	require.NoError(t, conn.WriteMessage(websocket.TextMessage, frame))

	deadline := time.Now().Add(2 * time.Second)
	for len(spy.snapshot()) == 0 && time.Now().Before(deadline) {
		time.Sleep(5 * time.Millisecond)
	}

	calls := spy.snapshot()
	require.NotEmpty(t, calls, "tracker never notified")
	assert.False(t, calls[0], "first transition should be to hidden")

	// Disconnecting the last client restores the headless-visible default.
	conn.Close()
	deadline = time.Now().Add(2 * time.Second)
	for len(spy.snapshot()) < 2 && time.Now().Before(deadline) {
		time.Sleep(5 * time.Millisecond)
	}
	calls = spy.snapshot()
	require.Len(t, calls, 2)
	assert.True(t, calls[1])
}

func TestMalformedClientFramesIgnored(t *testing.T) {
	s, _, ts := newTestServer(t)

	conn := dialHub(t, wsTestURL(ts))
	require.NoError(t, conn.WriteMessage(websocket.TextMessage, []byte("junk")))

	// The connection survives and still receives broadcasts.
	deadline := time.Now().Add(2 * time.Second)
	for s.hub.ClientCount() == 0 && time.Now().Before(deadline) {
		time.Sleep(5 * time.Millisecond)
	}
	s.EventReceived(relay.EventPayload{Topic: "t", Payload: "p"})

	conn.SetReadDeadline(time.Now().Add(2 * time.Second))
	_, data, err := conn.ReadMessage()
	require.NoError(t, err)
	env, err := relay.Decode(data)
	require.NoError(t, err)
	assert.Equal(t, relay.TypeEvent, env.Type)
}
