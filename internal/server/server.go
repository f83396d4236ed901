// Package server exposes the local control surface: an HTTP API to drive
// the relay connection and query statistics, and a WebSocket endpoint that
// streams status and event frames to attached UIs.
package server

import (
	"context"
	"errors"
	"io"
	"net/http"
	"strconv"
	"sync"
	"time"

	"github.com/bytedance/sonic"
	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"
	"github.com/rs/zerolog"

	"github.com/relaylens/relaylens/internal/coordinator"
	"github.com/relaylens/relaylens/internal/relay"
	"github.com/relaylens/relaylens/internal/stats"
	"github.com/relaylens/relaylens/internal/transport"
)

// Controller is the connection surface the API drives. The coordinator
// implements it.
type Controller interface {
	Connect(cfg transport.Config)
	Disconnect()
	Send(payload []byte)
	Snapshot() coordinator.Snapshot
}

// Server hosts the local API and the UI WebSocket hub, and relays
// coordinator notifications to both the hub and the statistics collector.
type Server struct {
	httpServer *http.Server
	router     chi.Router
	log        zerolog.Logger

	controller Controller
	control    *relay.ControlClient
	subs       *relay.SubscriptionSet
	stats      *stats.Collector
	hub        *Hub

	relayCfg transport.Config
	clientID string

	mu         sync.Mutex
	lastStatus coordinator.Status
}

// New wires the local server. relayCfg is the connection configuration used
// for connect requests without an explicit override, and for deriving the
// relay's control-plane base URL.
func New(listenAddr string, controller Controller, hub *Hub, collector *stats.Collector,
	subs *relay.SubscriptionSet, relayCfg transport.Config, clientID string, log zerolog.Logger) *Server {
	s := &Server{
		log:        log,
		controller: controller,
		control:    relay.NewControlClient(relay.HTTPBaseURL(relayCfg.URL), log),
		subs:       subs,
		stats:      collector,
		hub:        hub,
		relayCfg:   relayCfg,
		clientID:   clientID,
	}

	s.setupRoutes()

	s.httpServer = &http.Server{
		Addr:              listenAddr,
		Handler:           s.router,
		ReadHeaderTimeout: 5 * time.Second,
		IdleTimeout:       60 * time.Second,
	}

	return s
}

func (s *Server) setupRoutes() {
	r := chi.NewRouter()

	r.Use(chimw.RequestID)
	r.Use(chimw.RealIP)
	r.Use(s.requestLogger)
	r.Use(chimw.Recoverer)

	r.Route("/api", func(api chi.Router) {
		api.Post("/connect", s.handleConnect)
		api.Post("/disconnect", s.handleDisconnect)
		api.Post("/subscribe", s.handleSubscribe)
		api.Post("/unsubscribe/{topic}", s.handleUnsubscribe)
		api.Post("/send", s.handleSend)
		api.Get("/status", s.handleStatus)
		api.Get("/messages/recent", s.handleRecent)
		api.Get("/analytics", s.handleAnalytics)
	})

	r.Get("/ws", s.hub.HandleWS)

	s.router = r
}

// ListenAndServe starts the HTTP server and blocks until it stops. A
// graceful Shutdown returns nil.
func (s *Server) ListenAndServe() error {
	s.log.Info().Str("addr", s.httpServer.Addr).Msg("local api listening")
	if err := s.httpServer.ListenAndServe(); !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

// Shutdown gracefully stops the HTTP server.
func (s *Server) Shutdown(ctx context.Context) error {
	return s.httpServer.Shutdown(ctx)
}

func (s *Server) requestLogger(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		ww := chimw.NewWrapResponseWriter(w, r.ProtoMajor)
		next.ServeHTTP(ww, r)
		s.log.Debug().
			Str("method", r.Method).
			Str("path", r.URL.Path).
			Int("status", ww.Status()).
			Dur("elapsed", time.Since(start)).
			Msg("api request")
	})
}

// ---- handlers ----

// connectRequest optionally overrides the configured relay target.
type connectRequest struct {
	URL      string `json:"url,omitempty"`
	Username string `json:"username,omitempty"`
	Password string `json:"password,omitempty"`
}

func (s *Server) handleConnect(w http.ResponseWriter, r *http.Request) {
	s.mu.Lock()
	cfg := s.relayCfg
	s.mu.Unlock()

	body, err := io.ReadAll(http.MaxBytesReader(w, r.Body, 64*1024))
	if err != nil {
		s.writeError(w, http.StatusBadRequest, "unreadable body")
		return
	}
	if len(body) > 0 {
		var req connectRequest
		if err := sonic.Unmarshal(body, &req); err != nil {
			s.writeError(w, http.StatusBadRequest, "invalid json body")
			return
		}
		if req.URL != "" {
			cfg.URL = req.URL
		}
		if req.Username != "" {
			cfg.Username = req.Username
		}
		if req.Password != "" {
			cfg.Password = req.Password
		}
	}

	s.mu.Lock()
	s.relayCfg = cfg
	s.mu.Unlock()

	s.controller.Connect(cfg)
	s.writeJSON(w, http.StatusAccepted, map[string]string{"result": "connecting"})
}

func (s *Server) handleDisconnect(w http.ResponseWriter, r *http.Request) {
	s.controller.Disconnect()

	// Best effort: tell the relay's control plane the session is over.
	go func() {
		ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		if err := s.control.Disconnect(ctx); err != nil {
			s.log.Debug().Err(err).Msg("relay disconnect announcement failed")
		}
	}()

	s.writeJSON(w, http.StatusAccepted, map[string]string{"result": "disconnecting"})
}

func (s *Server) handleSubscribe(w http.ResponseWriter, r *http.Request) {
	var req relay.SubscribeRequest
	if err := decodeBody(r, &req); err != nil || req.Topic == "" {
		s.writeError(w, http.StatusBadRequest, "topic is required")
		return
	}

	s.subs.Add(req.Topic)

	if s.connected() {
		ctx, cancel := context.WithTimeout(r.Context(), 10*time.Second)
		defer cancel()
		if err := s.control.Subscribe(ctx, req.Topic); err != nil {
			s.log.Warn().Err(err).Str("topic", req.Topic).Msg("relay subscribe failed")
			s.writeError(w, http.StatusBadGateway, "relay rejected subscription")
			return
		}
	}

	s.writeJSON(w, http.StatusOK, map[string]any{"result": "subscribed", "topics": s.subs.List()})
}

func (s *Server) handleUnsubscribe(w http.ResponseWriter, r *http.Request) {
	topic := chi.URLParam(r, "topic")
	if topic == "" {
		s.writeError(w, http.StatusBadRequest, "topic is required")
		return
	}

	if !s.subs.Remove(topic) {
		s.writeError(w, http.StatusNotFound, "not subscribed to topic")
		return
	}

	if s.connected() {
		ctx, cancel := context.WithTimeout(r.Context(), 10*time.Second)
		defer cancel()
		if err := s.control.Unsubscribe(ctx, topic); err != nil {
			s.log.Warn().Err(err).Str("topic", topic).Msg("relay unsubscribe failed")
		}
	}

	s.writeJSON(w, http.StatusOK, map[string]any{"result": "unsubscribed", "topics": s.subs.List()})
}

// sendRequest publishes an event on a topic through the relay connection.
type sendRequest struct {
	Topic   string `json:"topic"`
	Payload string `json:"payload"`
}

func (s *Server) handleSend(w http.ResponseWriter, r *http.Request) {
	var req sendRequest
	if err := decodeBody(r, &req); err != nil || req.Topic == "" {
		s.writeError(w, http.StatusBadRequest, "topic is required")
		return
	}

	env, err := relay.NewEnvelope(relay.TypeEvent, relay.EventPayload{
		Topic:   req.Topic,
		Payload: req.Payload,
	})
	if err != nil {
		s.writeError(w, http.StatusInternalServerError, "could not build frame")
		return
	}
	frame, err := relay.Encode(env)
	if err != nil {
		s.writeError(w, http.StatusInternalServerError, "could not encode frame")
		return
	}

	// Queued when offline; the outbox drains on reconnect.
	s.controller.Send(frame)
	s.writeJSON(w, http.StatusAccepted, map[string]string{"result": "sent", "id": env.ID})
}

// statusResponse is the GET /api/status answer.
type statusResponse struct {
	coordinator.Snapshot
	Detail      string   `json:"detail,omitempty"`
	FailureKind string   `json:"failure_kind,omitempty"`
	Topics      []string `json:"topics"`
	UIClients   int      `json:"ui_clients"`
}

func (s *Server) handleStatus(w http.ResponseWriter, r *http.Request) {
	s.mu.Lock()
	last := s.lastStatus
	s.mu.Unlock()

	s.writeJSON(w, http.StatusOK, statusResponse{
		Snapshot:    s.controller.Snapshot(),
		Detail:      last.Detail,
		FailureKind: last.FailureKind,
		Topics:      s.subs.List(),
		UIClients:   s.hub.ClientCount(),
	})
}

func (s *Server) handleRecent(w http.ResponseWriter, r *http.Request) {
	limit := 50
	if raw := r.URL.Query().Get("limit"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n <= 0 {
			s.writeError(w, http.StatusBadRequest, "limit must be a positive integer")
			return
		}
		limit = n
	}

	entries := s.stats.Recent(limit)
	s.writeJSON(w, http.StatusOK, map[string]any{"count": len(entries), "messages": entries})
}

func (s *Server) handleAnalytics(w http.ResponseWriter, r *http.Request) {
	s.writeJSON(w, http.StatusOK, s.stats.Snapshot())
}

// ---- coordinator notifications ----

// StatusChanged caches the latest status, mirrors it to UI clients, and on
// entering the connected state replays the session announcement and topic
// subscriptions against the relay's control plane.
func (s *Server) StatusChanged(st coordinator.Status) {
	s.mu.Lock()
	prev := s.lastStatus
	s.lastStatus = st
	s.mu.Unlock()

	if st.State == coordinator.StateConnected {
		if prev.State == coordinator.StateReconnecting || prev.Attempts > 0 {
			s.stats.Reconnected()
		}
		go s.announceSession()
	}

	env, err := relay.NewEnvelope(relay.TypeStatus, st)
	if err != nil {
		s.log.Warn().Err(err).Msg("could not build status frame")
		return
	}
	if frame, err := relay.Encode(env); err == nil {
		s.hub.BroadcastStatus(frame)
	}
}

// EventReceived records the event and streams it to UI clients.
func (s *Server) EventReceived(ev relay.EventPayload) {
	s.stats.Record(ev)

	env, err := relay.NewEnvelope(relay.TypeEvent, ev)
	if err != nil {
		return
	}
	if frame, err := relay.Encode(env); err == nil {
		s.hub.Broadcast(frame)
	}
}

// ConnectionFailed logs the terminal failure; the accompanying status
// transition has already been mirrored to UI clients.
func (s *Server) ConnectionFailed(reason string) {
	s.log.Error().Str("reason", reason).Msg("connection permanently failed, explicit connect required")
}

// announceSession registers the session and replays subscriptions after a
// (re)connect. Failures are logged, not fatal: event delivery already works
// over the open transport.
func (s *Server) announceSession() {
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	s.mu.Lock()
	username := s.relayCfg.Username
	s.mu.Unlock()

	if err := s.control.Announce(ctx, relay.ConnectRequest{ClientID: s.clientID, Username: username}); err != nil {
		s.log.Warn().Err(err).Msg("session announcement failed")
	}

	for _, topic := range s.subs.List() {
		if err := s.control.Subscribe(ctx, topic); err != nil {
			s.log.Warn().Err(err).Str("topic", topic).Msg("subscription replay failed")
		}
	}
}

func (s *Server) connected() bool {
	return s.controller.Snapshot().State == coordinator.StateConnected
}

// ---- helpers ----

func decodeBody(r *http.Request, v any) error {
	body, err := io.ReadAll(io.LimitReader(r.Body, 64*1024))
	if err != nil {
		return err
	}
	return sonic.Unmarshal(body, v)
}

func (s *Server) writeJSON(w http.ResponseWriter, status int, v any) {
	data, err := sonic.Marshal(v)
	if err != nil {
		s.log.Error().Err(err).Msg("response encoding failed")
		w.WriteHeader(http.StatusInternalServerError)
		return
	}
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	w.Write(data)
}

func (s *Server) writeError(w http.ResponseWriter, status int, msg string) {
	s.writeJSON(w, status, map[string]string{"error": msg})
}
