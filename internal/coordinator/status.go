package coordinator

import (
	"context"
	"fmt"
	"time"

	"github.com/bytedance/sonic"

	"github.com/relaylens/relaylens/internal/relay"
	"github.com/relaylens/relaylens/internal/transport"
)

// State is the coordinator's connection state. Exactly one is active at any
// time and only the coordinator's event loop writes it.
type State int32

const (
	// StateDisconnected: no connection and none wanted.
	StateDisconnected State = iota
	// StateConnecting: an open attempt is in flight.
	StateConnecting
	// StateConnected: the link is usable and monitored.
	StateConnected
	// StateDisconnecting: a deliberate close is in progress.
	StateDisconnecting
	// StateReconnecting: waiting out the backoff before the next attempt.
	StateReconnecting
	// StateFailed: retries exhausted; terminal until an explicit connect.
	StateFailed
)

// String returns the lowercase state name.
func (s State) String() string {
	switch s {
	case StateDisconnected:
		return "disconnected"
	case StateConnecting:
		return "connecting"
	case StateConnected:
		return "connected"
	case StateDisconnecting:
		return "disconnecting"
	case StateReconnecting:
		return "reconnecting"
	case StateFailed:
		return "failed"
	default:
		return "unknown"
	}
}

// MarshalJSON encodes the state as its name.
func (s State) MarshalJSON() ([]byte, error) {
	return []byte(`"` + s.String() + `"`), nil
}

// UnmarshalJSON decodes a state name produced by MarshalJSON.
func (s *State) UnmarshalJSON(data []byte) error {
	var name string
	if err := sonic.Unmarshal(data, &name); err != nil {
		return err
	}
	state, err := parseState(name)
	if err != nil {
		return err
	}
	*s = state
	return nil
}

func parseState(name string) (State, error) {
	switch name {
	case "disconnected":
		return StateDisconnected, nil
	case "connecting":
		return StateConnecting, nil
	case "connected":
		return StateConnected, nil
	case "disconnecting":
		return StateDisconnecting, nil
	case "reconnecting":
		return StateReconnecting, nil
	case "failed":
		return StateFailed, nil
	default:
		return StateDisconnected, fmt.Errorf("unknown connection state %q", name)
	}
}

// Status is the notification emitted on every state transition. It is the
// only channel surrounding components use to reflect connection health.
type Status struct {
	State       State         `json:"state"`
	Detail      string        `json:"detail,omitempty"`
	Attempts    int           `json:"attempts"`
	NextRetryIn time.Duration `json:"next_retry_in,omitempty"`
	Queued      int           `json:"queued"`
	// FailureKind annotates the transition when a classified transport
	// failure drove it ("authentication_failed" prompts a credential check
	// in the UI rather than implying a network blip).
	FailureKind string `json:"failure_kind,omitempty"`
}

// Snapshot is the synchronous status-query answer.
type Snapshot struct {
	State             State `json:"state"`
	ReconnectAttempts int   `json:"reconnect_attempts"`
	Queued            int   `json:"queued"`
}

// Listener receives coordinator notifications. Calls are made from the
// coordinator's event loop in transition order; implementations must not
// block.
type Listener interface {
	// StatusChanged fires on every state transition.
	StatusChanged(s Status)
	// EventReceived fires for every delivered application event.
	EventReceived(ev relay.EventPayload)
	// ConnectionFailed fires when the terminal failed state is entered.
	ConnectionFailed(reason string)
}

// Link is the transport surface the coordinator drives. *transport.Transport
// implements it; tests substitute fakes.
type Link interface {
	Open(ctx context.Context, cfg transport.Config) error
	Send(payload []byte) bool
	Close(code int, reason string)
	Events() <-chan transport.Event
	// Generation identifies the most recently opened socket; events carry
	// the generation of the socket they came from.
	Generation() int
}
