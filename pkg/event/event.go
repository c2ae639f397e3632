// Package event defines the socket wire format: inbound event envelopes with
// typed payloads, outbound events, and room names.
package event

import (
	"bytes"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/Aman-Thakur002/Bantr/pkg/apperr"
)

// Room name prefixes.
const (
	userRoomPrefix = "user:"
	convRoomPrefix = "conv:"
	gameRoomPrefix = "game:"
)

// UserRoom is the private room of one user.
func UserRoom(userID string) string { return userRoomPrefix + userID }

// ConvRoom is the broadcast room of a conversation.
func ConvRoom(conversationID string) string { return convRoomPrefix + conversationID }

// GameRoom is the broadcast room of a game.
func GameRoom(gameID string) string { return gameRoomPrefix + gameID }

// Outbound is a server-to-client event.
type Outbound struct {
	Event string `json:"event"`
	Data  any    `json:"data"`
}

// New builds an outbound event.
func New(name string, data any) Outbound {
	return Outbound{Event: name, Data: data}
}

// Error is the payload of the generic error event.
type Error struct {
	Message string `json:"message"`
	Code    string `json:"code,omitempty"`
	Event   string `json:"event,omitempty"`
}

// Emitter delivers outbound events. exceptConn excludes one connection from a
// broadcast; pass "" to include everyone.
type Emitter interface {
	ToRoom(room string, ev Outbound, exceptConn string)
	ToAll(ev Outbound, exceptConn string)
	ToConn(connID string, ev Outbound)
}

// Envelope is the raw inbound frame.
type Envelope struct {
	Event string          `json:"event"`
	Data  json.RawMessage `json:"data"`
}

// Payload is a decoded inbound event body.
type Payload interface {
	Validate() error
}

// Decode parses a frame, looks up the payload type registered for its event
// name and validates it.
func Decode(frame []byte) (string, Payload, error) {
	var env Envelope
	if err := json.Unmarshal(frame, &env); err != nil {
		return "", nil, apperr.Invalid("MALFORMED_FRAME", "malformed event frame")
	}
	if env.Event == "" {
		return "", nil, apperr.Invalid("MALFORMED_FRAME", "event name is required")
	}

	factory, ok := registry[env.Event]
	if !ok {
		return env.Event, nil, apperr.Invalid("UNKNOWN_EVENT", fmt.Sprintf("unknown event %q", env.Event))
	}

	p := factory()
	data := bytes.TrimSpace(env.Data)
	if len(data) > 0 && !bytes.Equal(data, []byte("null")) {
		if err := json.Unmarshal(data, p); err != nil {
			return env.Event, nil, apperr.Invalid("INVALID_PAYLOAD", "invalid payload for "+env.Event)
		}
	}
	if err := p.Validate(); err != nil {
		return env.Event, nil, err
	}
	return env.Event, p, nil
}

// Unknown labels frames whose event name is empty or not registered.
const Unknown = "unknown"

// Label returns name when it is a registered inbound event and Unknown
// otherwise. Client-chosen names never reach metrics or limiter keys.
func Label(name string) string {
	if _, ok := registry[name]; ok {
		return name
	}
	return Unknown
}

// Names returns the registered inbound event names.
func Names() []string {
	names := make([]string, 0, len(registry))
	for n := range registry {
		names = append(names, n)
	}
	return names
}

func required(field, value string) error {
	if strings.TrimSpace(value) == "" {
		return apperr.Invalid("INVALID_PAYLOAD", field+" is required")
	}
	return nil
}
