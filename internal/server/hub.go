package server

import (
	"net/http"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"github.com/rs/zerolog"

	"github.com/relaylens/relaylens/internal/relay"
	"github.com/relaylens/relaylens/internal/visibility"
)

const (
	// clientSendBuffer bounds each UI client's outbound queue. A client that
	// cannot keep up loses frames rather than stalling the broadcaster.
	clientSendBuffer = 64

	clientWriteTimeout = 10 * time.Second
	clientPingInterval = 30 * time.Second
	clientReadLimit    = 64 * 1024
)

var upgrader = websocket.Upgrader{
	ReadBufferSize:  4096,
	WriteBufferSize: 4096,
	// The hub serves local UIs only; the listener binds to loopback.
	CheckOrigin: func(*http.Request) bool { return true },
}

// Hub fans frames out to the attached UI WebSocket clients and feeds their
// visibility reports into the tracker.
type Hub struct {
	tracker *visibility.Tracker
	log     zerolog.Logger

	mu         sync.Mutex
	clients    map[string]*hubClient
	lastStatus []byte
}

type hubClient struct {
	id   string
	conn *websocket.Conn
	out  chan []byte
	once sync.Once
}

// NewHub creates a hub reporting client visibility to tracker.
func NewHub(tracker *visibility.Tracker, log zerolog.Logger) *Hub {
	return &Hub{
		tracker: tracker,
		log:     log,
		clients: make(map[string]*hubClient),
	}
}

// Broadcast queues data on every attached client, dropping it for clients
// whose queue is full.
func (h *Hub) Broadcast(data []byte) {
	h.mu.Lock()
	defer h.mu.Unlock()

	for _, c := range h.clients {
		select {
		case c.out <- data:
		default:
			h.log.Debug().Str("client", c.id).Msg("dropping frame for slow ui client")
		}
	}
}

// BroadcastStatus queues a status frame on every client and remembers it so
// late joiners see the current state immediately.
func (h *Hub) BroadcastStatus(data []byte) {
	h.mu.Lock()
	h.lastStatus = data
	h.mu.Unlock()

	h.Broadcast(data)
}

// ClientCount returns the number of attached UI clients.
func (h *Hub) ClientCount() int {
	h.mu.Lock()
	defer h.mu.Unlock()

	return len(h.clients)
}

// HandleWS upgrades the request and runs the client until it disconnects.
func (h *Hub) HandleWS(w http.ResponseWriter, r *http.Request) {
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		h.log.Warn().Err(err).Msg("ui websocket upgrade failed")
		return
	}

	c := &hubClient{
		id:   uuid.New().String(),
		conn: conn,
		out:  make(chan []byte, clientSendBuffer),
	}

	h.mu.Lock()
	h.clients[c.id] = c
	last := h.lastStatus
	h.mu.Unlock()

	h.log.Debug().Str("client", c.id).Msg("ui client attached")

	// New clients get the current status without waiting for a transition.
	if last != nil {
		c.out <- last
	}

	go h.writeLoop(c)
	h.readLoop(c)
}

func (h *Hub) detach(c *hubClient) {
	c.once.Do(func() {
		h.mu.Lock()
		delete(h.clients, c.id)
		h.mu.Unlock()

		close(c.out)
		c.conn.Close()
		h.tracker.Forget(c.id)
		h.log.Debug().Str("client", c.id).Msg("ui client detached")
	})
}

// readLoop consumes frames from the client. Visibility reports feed the
// tracker; everything else is ignored.
func (h *Hub) readLoop(c *hubClient) {
	defer h.detach(c)

	c.conn.SetReadLimit(clientReadLimit)
	for {
		_, data, err := c.conn.ReadMessage()
		if err != nil {
			return
		}

		env, err := relay.Decode(data)
		if err != nil {
			h.log.Debug().Err(err).Str("client", c.id).Msg("ignoring malformed ui frame")
			continue
		}
		if env.Type != relay.TypeVisibility {
			continue
		}

		report, err := env.ParseVisibility()
		if err != nil {
			h.log.Debug().Err(err).Str("client", c.id).Msg("ignoring malformed visibility report")
			continue
		}
		h.tracker.Report(c.id, report.Visible)
	}
}

func (h *Hub) writeLoop(c *hubClient) {
	ticker := time.NewTicker(clientPingInterval)
	defer ticker.Stop()
	defer h.detach(c)

	for {
		select {
		case data, ok := <-c.out:
			if !ok {
				return
			}
			c.conn.SetWriteDeadline(time.Now().Add(clientWriteTimeout))
			if err := c.conn.WriteMessage(websocket.TextMessage, data); err != nil {
				return
			}
		case <-ticker.C:
			c.conn.SetWriteDeadline(time.Now().Add(clientWriteTimeout))
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}
