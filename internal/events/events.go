package events

import (
	"context"
	"encoding/json"
	"time"

	"github.com/google/uuid"
)

// Event types emitted by the dispatch subsystem.
const (
	TypeChannelStateChanged     = "channel.state_changed"
	TypeChannelScanIssued       = "channel.scan_issued"
	TypeChannelReady            = "channel.ready"
	TypeChannelDisconnected     = "channel.disconnected"
	TypeChannelAuthFailed       = "channel.auth_failed"
	TypeChannelInitTimeout      = "channel.init_timeout"
	TypeChannelBroken           = "channel.broken"
	TypeOccurrenceStatusChanged = "occurrence.status_changed"
)

// Event is a single notification about something that happened in the system.
type Event struct {
	// ID is a unique identifier for this event
	ID uuid.UUID `json:"id"`

	// Type identifies what happened, e.g. "channel.ready"
	Type string `json:"type"`

	// Payload contains the type-specific data serialized as JSON
	Payload json.RawMessage `json:"payload,omitempty"`

	// CreatedAt is the timestamp when the event was created
	CreatedAt time.Time `json:"created_at"`
}

// UnmarshalPayload decodes the event payload into the provided structure.
func (e *Event) UnmarshalPayload(v interface{}) error {
	return json.Unmarshal(e.Payload, v)
}

// NewEvent creates a new Event with the specified type and payload.
// A nil payload produces an event without a payload.
func NewEvent(eventType string, payload interface{}) (*Event, error) {
	var payloadBytes json.RawMessage
	if payload != nil {
		b, err := json.Marshal(payload)
		if err != nil {
			return nil, err
		}
		payloadBytes = b
	}

	return &Event{
		ID:        uuid.New(),
		Type:      eventType,
		Payload:   payloadBytes,
		CreatedAt: time.Now().UTC(),
	}, nil
}

// EventHandler defines an interface for components that can handle events.
type EventHandler interface {
	// HandleEvent processes the given event within the provided context.
	// Returns an error if the event cannot be handled successfully.
	HandleEvent(ctx context.Context, event *Event) error
}

// EventEmitter defines an interface for components that can emit events.
// This allows services to publish events without direct knowledge of handlers.
type EventEmitter interface {
	// EmitEvent publishes the given event to all registered handlers.
	EmitEvent(ctx context.Context, event *Event) error
}

// Emit builds an event and hands it to emitter. Emission is fire-and-forget:
// a nil emitter is allowed and handler failures are left to the emitter to log.
func Emit(ctx context.Context, emitter EventEmitter, eventType string, payload interface{}) {
	if emitter == nil {
		return
	}
	event, err := NewEvent(eventType, payload)
	if err != nil {
		return
	}
	_ = emitter.EmitEvent(ctx, event)
}
