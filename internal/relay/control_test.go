package relay

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"

	"github.com/rs/zerolog"
)

// controlRecorder captures control-plane calls.
type controlRecorder struct {
	mu     sync.Mutex
	paths  []string
	bodies []string
	status int
}

func (r *controlRecorder) ServeHTTP(w http.ResponseWriter, req *http.Request) {
	body, _ := io.ReadAll(req.Body)

	r.mu.Lock()
	r.paths = append(r.paths, req.URL.Path)
	r.bodies = append(r.bodies, string(body))
	status := r.status
	r.mu.Unlock()

	if status == 0 {
		status = http.StatusOK
	}
	w.WriteHeader(status)
}

func TestControlClientCalls(t *testing.T) {
	rec := &controlRecorder{}
	srv := httptest.NewServer(rec)
	defer srv.Close()

	c := NewControlClient(srv.URL, zerolog.Nop())
	ctx := context.Background()

	if err := c.Announce(ctx, ConnectRequest{ClientID: "c-1", Username: "alice"}); err != nil {
		t.Fatalf("Announce error: %v", err)
	}
	if err := c.Subscribe(ctx, "sensors/#"); err != nil {
		t.Fatalf("Subscribe error: %v", err)
	}
	if err := c.Unsubscribe(ctx, "sensors/#"); err != nil {
		t.Fatalf("Unsubscribe error: %v", err)
	}
	if err := c.Disconnect(ctx); err != nil {
		t.Fatalf("Disconnect error: %v", err)
	}

	rec.mu.Lock()
	defer rec.mu.Unlock()

	wantPaths := []string{"/connect", "/subscribe", "/unsubscribe", "/disconnect"}
	if len(rec.paths) != len(wantPaths) {
		t.Fatalf("paths = %v, want %v", rec.paths, wantPaths)
	}
	for i := range wantPaths {
		if rec.paths[i] != wantPaths[i] {
			t.Errorf("path[%d] = %q, want %q", i, rec.paths[i], wantPaths[i])
		}
	}

	var connect ConnectRequest
	if err := json.Unmarshal([]byte(rec.bodies[0]), &connect); err != nil {
		t.Fatalf("connect body not json: %v", err)
	}
	if connect.ClientID != "c-1" || connect.Username != "alice" {
		t.Errorf("connect body = %+v", connect)
	}

	var sub SubscribeRequest
	if err := json.Unmarshal([]byte(rec.bodies[1]), &sub); err != nil {
		t.Fatalf("subscribe body not json: %v", err)
	}
	if sub.Topic != "sensors/#" {
		t.Errorf("subscribe topic = %q, want sensors/#", sub.Topic)
	}
}

func TestControlClientErrorStatus(t *testing.T) {
	rec := &controlRecorder{status: http.StatusServiceUnavailable}
	srv := httptest.NewServer(rec)
	defer srv.Close()

	c := NewControlClient(srv.URL, zerolog.Nop())

	if err := c.Subscribe(context.Background(), "t"); err == nil {
		t.Error("Subscribe = nil error on HTTP 503, want error")
	}
}

func TestHTTPBaseURL(t *testing.T) {
	cases := []struct {
		in   string
		want string
	}{
		{"ws://relay.example.com/stream", "http://relay.example.com"},
		{"wss://relay.example.com:8443/stream", "https://relay.example.com:8443"},
		{"ws://127.0.0.1:9001", "http://127.0.0.1:9001"},
	}
	for _, c := range cases {
		if got := HTTPBaseURL(c.in); got != c.want {
			t.Errorf("HTTPBaseURL(%q) = %q, want %q", c.in, got, c.want)
		}
	}
}
