// Package relay defines the wire protocol spoken with the backend event
// relay: the JSON envelope every frame travels in, the heartbeat ping/pong
// pair, and the event frames that carry application messages.
package relay

import (
	"errors"
	"fmt"
	"time"

	"github.com/bytedance/sonic"
	"github.com/google/uuid"
)

// Frame types exchanged over the relay connection.
const (
	// TypePing is the outbound heartbeat probe.
	TypePing = "ping"
	// TypePong is the heartbeat reply.
	TypePong = "pong"
	// TypeEvent carries an application message published on a topic.
	TypeEvent = "event"
	// TypeStatus carries a connection status update (server -> UI frames).
	TypeStatus = "status"
	// TypeVisibility carries a foreground/background report (UI -> server).
	TypeVisibility = "visibility"
)

// ErrMalformedFrame marks frames that could not be decoded. Callers classify
// it as a protocol error; it is never fatal to the connection.
var ErrMalformedFrame = errors.New("malformed frame")

// RawPayload is an unparsed JSON payload inside an Envelope.
type RawPayload []byte

// MarshalJSON returns p verbatim, or null when empty.
func (p RawPayload) MarshalJSON() ([]byte, error) {
	if len(p) == 0 {
		return []byte("null"), nil
	}
	return p, nil
}

// UnmarshalJSON stores data verbatim for later parsing.
func (p *RawPayload) UnmarshalJSON(data []byte) error {
	*p = append((*p)[:0], data...)
	return nil
}

// Envelope is the frame wrapper for every message on the wire.
type Envelope struct {
	Type      string     `json:"type"`
	ID        string     `json:"id,omitempty"`
	Timestamp time.Time  `json:"timestamp"`
	Payload   RawPayload `json:"payload,omitempty"`
}

// EventPayload is the payload of a TypeEvent frame.
type EventPayload struct {
	Topic    string `json:"topic"`
	Payload  string `json:"payload"`
	Retained bool   `json:"retained,omitempty"`
}

// VisibilityPayload is the payload of a TypeVisibility frame.
type VisibilityPayload struct {
	Visible bool `json:"visible"`
}

// NewEnvelope builds an envelope of the given type around payload, assigning
// a fresh ID and the current timestamp. A nil payload produces a bare frame.
func NewEnvelope(frameType string, payload any) (Envelope, error) {
	env := Envelope{
		Type:      frameType,
		ID:        uuid.New().String(),
		Timestamp: time.Now(),
	}
	if payload != nil {
		data, err := sonic.Marshal(payload)
		if err != nil {
			return Envelope{}, fmt.Errorf("marshal %s payload: %w", frameType, err)
		}
		env.Payload = data
	}
	return env, nil
}

// Encode serializes an envelope for the wire.
func Encode(env Envelope) ([]byte, error) {
	data, err := sonic.Marshal(env)
	if err != nil {
		return nil, fmt.Errorf("encode %s frame: %w", env.Type, err)
	}
	return data, nil
}

// Decode parses a wire frame. Frames that are not valid JSON or carry no
// type decode to ErrMalformedFrame.
func Decode(data []byte) (Envelope, error) {
	var env Envelope
	if err := sonic.Unmarshal(data, &env); err != nil {
		return Envelope{}, fmt.Errorf("%w: %v", ErrMalformedFrame, err)
	}
	if env.Type == "" {
		return Envelope{}, fmt.Errorf("%w: missing frame type", ErrMalformedFrame)
	}
	return env, nil
}

// ParseEvent extracts the event payload from a TypeEvent envelope.
func (e Envelope) ParseEvent() (EventPayload, error) {
	if e.Type != TypeEvent {
		return EventPayload{}, fmt.Errorf("%w: %s frame is not an event", ErrMalformedFrame, e.Type)
	}
	var ev EventPayload
	if err := sonic.Unmarshal(e.Payload, &ev); err != nil {
		return EventPayload{}, fmt.Errorf("%w: %v", ErrMalformedFrame, err)
	}
	if ev.Topic == "" {
		return EventPayload{}, fmt.Errorf("%w: event without topic", ErrMalformedFrame)
	}
	return ev, nil
}

// ParseVisibility extracts the payload from a TypeVisibility envelope.
func (e Envelope) ParseVisibility() (VisibilityPayload, error) {
	var v VisibilityPayload
	if err := sonic.Unmarshal(e.Payload, &v); err != nil {
		return VisibilityPayload{}, fmt.Errorf("%w: %v", ErrMalformedFrame, err)
	}
	return v, nil
}

// PingFrame returns an encoded heartbeat probe stamped with ts.
func PingFrame(ts time.Time) []byte {
	data, _ := sonic.Marshal(Envelope{Type: TypePing, Timestamp: ts})
	return data
}

// PongFrame returns an encoded heartbeat reply stamped with ts.
func PongFrame(ts time.Time) []byte {
	data, _ := sonic.Marshal(Envelope{Type: TypePong, Timestamp: ts})
	return data
}
