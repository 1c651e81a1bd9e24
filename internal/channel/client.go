package channel

import "context"

// ClientEventType identifies a lifecycle signal raised by a Client.
type ClientEventType string

// Client event types.
const (
	ClientEventQR            ClientEventType = "qr"
	ClientEventAuthenticated ClientEventType = "authenticated"
	ClientEventReady         ClientEventType = "ready"
	ClientEventAuthFailure   ClientEventType = "auth_failure"
	ClientEventDisconnected  ClientEventType = "disconnected"
)

// ClientEvent is a lifecycle signal from the underlying channel.
type ClientEvent struct {
	Type    ClientEventType `json:"type"`
	Payload string          `json:"payload,omitempty"`
	Reason  string          `json:"reason,omitempty"`
}

// Client is the narrow contract a Session needs from the underlying channel.
type Client interface {
	// Initialize starts the connection. Progress is reported on Events.
	Initialize(ctx context.Context) error

	// Send delivers text to an address in the channel's format.
	Send(ctx context.Context, to, text string) error

	// Destroy tears the connection down and releases its resources.
	Destroy(ctx context.Context) error

	// Events streams lifecycle signals. It is closed when the client stops.
	Events() <-chan ClientEvent
}

// ClientFactory creates a fresh Client for each connection attempt.
type ClientFactory func() (Client, error)
