package mocks

import (
	"context"
	"sync"

	"github.com/facilitydesk/taskdispatch/internal/channel"
)

// SentMessage records one call to MockChannelClient.Send.
type SentMessage struct {
	To   string
	Text string
}

// MockChannelClient implements channel.Client for testing. Tests drive the
// session by pushing lifecycle events with Emit.
type MockChannelClient struct {
	InitializeFn func(ctx context.Context) error
	SendFn       func(ctx context.Context, to, text string) error
	DestroyFn    func(ctx context.Context) error

	events chan channel.ClientEvent

	mu              sync.Mutex
	sent            []SentMessage
	initializeCalls int
	destroyCalls    int
}

// NewMockChannelClient creates a client with a buffered event stream.
func NewMockChannelClient() *MockChannelClient {
	return &MockChannelClient{events: make(chan channel.ClientEvent, 16)}
}

// Initialize implements channel.Client
func (m *MockChannelClient) Initialize(ctx context.Context) error {
	m.mu.Lock()
	m.initializeCalls++
	m.mu.Unlock()

	if m.InitializeFn != nil {
		return m.InitializeFn(ctx)
	}
	return nil
}

// Send implements channel.Client
func (m *MockChannelClient) Send(ctx context.Context, to, text string) error {
	m.mu.Lock()
	m.sent = append(m.sent, SentMessage{To: to, Text: text})
	m.mu.Unlock()

	if m.SendFn != nil {
		return m.SendFn(ctx, to, text)
	}
	return nil
}

// Destroy implements channel.Client
func (m *MockChannelClient) Destroy(ctx context.Context) error {
	m.mu.Lock()
	m.destroyCalls++
	m.mu.Unlock()

	if m.DestroyFn != nil {
		return m.DestroyFn(ctx)
	}
	return nil
}

// Events implements channel.Client
func (m *MockChannelClient) Events() <-chan channel.ClientEvent {
	return m.events
}

// Emit pushes a lifecycle event to the session watching this client.
func (m *MockChannelClient) Emit(ev channel.ClientEvent) {
	m.events <- ev
}

// Sent returns a copy of the messages sent so far.
func (m *MockChannelClient) Sent() []SentMessage {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]SentMessage, len(m.sent))
	copy(out, m.sent)
	return out
}

// InitializeCalls returns how many times Initialize was called.
func (m *MockChannelClient) InitializeCalls() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.initializeCalls
}

// DestroyCalls returns how many times Destroy was called.
func (m *MockChannelClient) DestroyCalls() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.destroyCalls
}

var _ channel.Client = (*MockChannelClient)(nil)

// ClientFactory returns a factory that hands out the given clients in order,
// repeating the last one once they run out.
func ClientFactory(clients ...*MockChannelClient) channel.ClientFactory {
	var (
		mu   sync.Mutex
		next int
	)
	return func() (channel.Client, error) {
		mu.Lock()
		defer mu.Unlock()
		c := clients[next]
		if next < len(clients)-1 {
			next++
		}
		return c, nil
	}
}
