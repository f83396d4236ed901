package relay

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/bytedance/sonic"
	"github.com/hashicorp/go-retryablehttp"
	"github.com/rs/zerolog"
)

// controlRequestTimeout bounds each control-plane HTTP call.
const controlRequestTimeout = 10 * time.Second

// ConnectRequest is the body of the relay's POST /connect endpoint.
type ConnectRequest struct {
	ClientID string `json:"client_id"`
	Username string `json:"username,omitempty"`
}

// SubscribeRequest is the body of the relay's POST /subscribe endpoint.
type SubscribeRequest struct {
	Topic string `json:"topic"`
}

// ControlClient calls the relay's HTTP control endpoints. These are invoked
// by the layer above the connection coordinator once the transport is open:
// announcing the session and (re)playing topic subscriptions.
type ControlClient struct {
	baseURL string
	http    *retryablehttp.Client
	log     zerolog.Logger
}

// NewControlClient builds a control client for the relay reachable at
// baseURL (the HTTP side of the relay, see HTTPBaseURL).
func NewControlClient(baseURL string, log zerolog.Logger) *ControlClient {
	rc := retryablehttp.NewClient()
	rc.RetryMax = 3
	rc.RetryWaitMin = 200 * time.Millisecond
	rc.RetryWaitMax = 2 * time.Second
	rc.HTTPClient.Timeout = controlRequestTimeout
	rc.Logger = nil

	return &ControlClient{
		baseURL: strings.TrimRight(baseURL, "/"),
		http:    rc,
		log:     log,
	}
}

// Announce registers the session with the relay after the transport opened.
func (c *ControlClient) Announce(ctx context.Context, req ConnectRequest) error {
	return c.post(ctx, "/connect", req)
}

// Disconnect tells the relay the session is going away.
func (c *ControlClient) Disconnect(ctx context.Context) error {
	return c.post(ctx, "/disconnect", nil)
}

// Subscribe asks the relay to deliver events published on topic.
func (c *ControlClient) Subscribe(ctx context.Context, topic string) error {
	return c.post(ctx, "/subscribe", SubscribeRequest{Topic: topic})
}

// Unsubscribe stops delivery for topic.
func (c *ControlClient) Unsubscribe(ctx context.Context, topic string) error {
	return c.post(ctx, "/unsubscribe", SubscribeRequest{Topic: topic})
}

func (c *ControlClient) post(ctx context.Context, path string, body any) error {
	var payload []byte
	if body != nil {
		data, err := sonic.Marshal(body)
		if err != nil {
			return fmt.Errorf("marshal %s body: %w", path, err)
		}
		payload = data
	}

	req, err := retryablehttp.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+path, payload)
	if err != nil {
		return fmt.Errorf("build %s request: %w", path, err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.http.Do(req)
	if err != nil {
		return fmt.Errorf("relay control %s: %w", path, err)
	}
	defer resp.Body.Close()
	_, _ = io.Copy(io.Discard, resp.Body)

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return fmt.Errorf("relay control %s: HTTP %d", path, resp.StatusCode)
	}

	c.log.Debug().Str("path", path).Msg("relay control call succeeded")
	return nil
}

// HTTPBaseURL converts a relay WebSocket URL to the base URL of its HTTP
// control side: wss:// becomes https://, ws:// becomes http://. The path is
// dropped; control endpoints hang off the host root.
func HTTPBaseURL(wsURL string) string {
	u, err := url.Parse(wsURL)
	if err != nil {
		result := strings.Replace(wsURL, "wss://", "https://", 1)
		return strings.Replace(result, "ws://", "http://", 1)
	}

	scheme := "http"
	if u.Scheme == "wss" || u.Scheme == "https" {
		scheme = "https"
	}
	return scheme + "://" + u.Host
}
