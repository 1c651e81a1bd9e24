package channel_test

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"sync"
	"testing"
	"time"

	"github.com/facilitydesk/taskdispatch/internal/channel"
	"github.com/facilitydesk/taskdispatch/internal/events"
	"github.com/facilitydesk/taskdispatch/internal/mocks"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const (
	waitFor = 2 * time.Second
	tick    = 5 * time.Millisecond
)

// recordingHandler collects emitted events.
type recordingHandler struct {
	mu     sync.Mutex
	events []*events.Event
}

func (h *recordingHandler) HandleEvent(_ context.Context, e *events.Event) error {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.events = append(h.events, e)
	return nil
}

func (h *recordingHandler) count(eventType string) int {
	h.mu.Lock()
	defer h.mu.Unlock()
	n := 0
	for _, e := range h.events {
		if e.Type == eventType {
			n++
		}
	}
	return n
}

func newTestSession(t *testing.T, cfg channel.SessionConfig, clients ...*mocks.MockChannelClient) (*channel.Session, *recordingHandler) {
	t.Helper()
	rec := &recordingHandler{}
	emitter := events.NewBus(slog.New(slog.NewTextHandler(io.Discard, nil)))
	emitter.RegisterHandler(rec)
	s := channel.NewSession(mocks.ClientFactory(clients...), emitter, cfg,
		slog.New(slog.NewTextHandler(io.Discard, nil)))
	t.Cleanup(func() { _, _ = s.Disconnect(context.Background()) })
	return s, rec
}

func waitState(t *testing.T, s *channel.Session, want channel.State) {
	t.Helper()
	require.Eventually(t, func() bool { return s.State() == want }, waitFor, tick,
		"expected state %s, got %s", want, s.State())
}

// connectReady drives a session through the full handshake.
func connectReady(t *testing.T, s *channel.Session, client *mocks.MockChannelClient) {
	t.Helper()
	state, err := s.Connect(context.Background())
	require.NoError(t, err)
	require.Equal(t, channel.StateInitializing, state)

	client.Emit(channel.ClientEvent{Type: channel.ClientEventQR, Payload: "2@scan"})
	waitState(t, s, channel.StateAwaitingScan)
	client.Emit(channel.ClientEvent{Type: channel.ClientEventAuthenticated})
	waitState(t, s, channel.StateAuthenticated)
	client.Emit(channel.ClientEvent{Type: channel.ClientEventReady})
	waitState(t, s, channel.StateReady)
}

func TestSession_Handshake(t *testing.T) {
	client := mocks.NewMockChannelClient()
	s, rec := newTestSession(t, channel.SessionConfig{}, client)

	assert.Equal(t, channel.StateDisconnected, s.State())

	_, err := s.Connect(context.Background())
	require.NoError(t, err)

	client.Emit(channel.ClientEvent{Type: channel.ClientEventQR, Payload: "2@scan"})
	waitState(t, s, channel.StateAwaitingScan)
	assert.Equal(t, "2@scan", s.Status().ScanPayload)
	require.Eventually(t, func() bool { return rec.count(events.TypeChannelScanIssued) == 1 }, waitFor, tick)

	client.Emit(channel.ClientEvent{Type: channel.ClientEventAuthenticated})
	waitState(t, s, channel.StateAuthenticated)
	assert.Empty(t, s.Status().ScanPayload)

	client.Emit(channel.ClientEvent{Type: channel.ClientEventReady})
	waitState(t, s, channel.StateReady)
	require.Eventually(t, func() bool { return rec.count(events.TypeChannelReady) == 1 }, waitFor, tick)
	assert.Equal(t, 1, client.InitializeCalls())
}

func TestSession_ConnectWhileAwaitingScanIsNoop(t *testing.T) {
	client := mocks.NewMockChannelClient()
	other := mocks.NewMockChannelClient()
	s, rec := newTestSession(t, channel.SessionConfig{}, client, other)

	_, err := s.Connect(context.Background())
	require.NoError(t, err)
	client.Emit(channel.ClientEvent{Type: channel.ClientEventQR, Payload: "2@scan"})
	waitState(t, s, channel.StateAwaitingScan)
	require.Eventually(t, func() bool { return rec.count(events.TypeChannelScanIssued) == 1 }, waitFor, tick)

	state, err := s.Connect(context.Background())
	require.NoError(t, err)
	assert.Equal(t, channel.StateAwaitingScan, state)
	assert.Equal(t, channel.StateAwaitingScan, s.State())

	time.Sleep(20 * time.Millisecond)
	assert.Equal(t, 1, rec.count(events.TypeChannelScanIssued))
	assert.Equal(t, 0, other.InitializeCalls())
	assert.Equal(t, 1, client.InitializeCalls())
}

func TestSession_SendRequiresReady(t *testing.T) {
	client := mocks.NewMockChannelClient()
	s, _ := newTestSession(t, channel.SessionConfig{}, client)

	err := s.Send(context.Background(), "34600111222@c.us", "hello")
	assert.ErrorIs(t, err, channel.ErrNotReady)

	_, err = s.Connect(context.Background())
	require.NoError(t, err)
	err = s.Send(context.Background(), "34600111222@c.us", "hello")
	assert.ErrorIs(t, err, channel.ErrNotReady)
	assert.Empty(t, client.Sent())
}

func TestSession_SendWhenReady(t *testing.T) {
	client := mocks.NewMockChannelClient()
	s, _ := newTestSession(t, channel.SessionConfig{}, client)
	connectReady(t, s, client)

	require.NoError(t, s.Send(context.Background(), "34600111222@c.us", "hello"))
	require.Len(t, client.Sent(), 1)
	assert.Equal(t, mocks.SentMessage{To: "34600111222@c.us", Text: "hello"}, client.Sent()[0])
}

func TestSession_RecipientFailureKeepsSession(t *testing.T) {
	client := mocks.NewMockChannelClient()
	client.SendFn = func(ctx context.Context, to, text string) error {
		return errors.New("invalid wid")
	}
	s, _ := newTestSession(t, channel.SessionConfig{}, client)
	connectReady(t, s, client)

	err := s.Send(context.Background(), "123@c.us", "hello")
	require.Error(t, err)
	assert.NotErrorIs(t, err, channel.ErrChannelBroken)
	assert.Equal(t, channel.StateReady, s.State())
}

func TestSession_FatalSendTearsDown(t *testing.T) {
	client := mocks.NewMockChannelClient()
	client.SendFn = func(ctx context.Context, to, text string) error {
		return errors.New("Attempted to use detached Frame")
	}
	client.DestroyFn = func(ctx context.Context) error {
		return errors.New("browser already gone")
	}
	s, rec := newTestSession(t, channel.SessionConfig{}, client)
	connectReady(t, s, client)

	err := s.Send(context.Background(), "34600111222@c.us", "hello")
	require.ErrorIs(t, err, channel.ErrChannelBroken)

	status := s.Status()
	assert.Equal(t, channel.StateDisconnected, status.State)
	assert.Equal(t, channel.ErrChannelBroken.Error(), status.LastError)
	assert.Equal(t, 1, client.DestroyCalls())
	assert.Equal(t, 1, rec.count(events.TypeChannelBroken))

	err = s.Send(context.Background(), "34600111222@c.us", "hello")
	assert.ErrorIs(t, err, channel.ErrNotReady)
}

func TestSession_RemoteDisconnectIsReported(t *testing.T) {
	client := mocks.NewMockChannelClient()
	s, rec := newTestSession(t, channel.SessionConfig{}, client)
	connectReady(t, s, client)

	client.Emit(channel.ClientEvent{Type: channel.ClientEventDisconnected, Reason: "LOGOUT"})
	waitState(t, s, channel.StateDisconnected)

	assert.Contains(t, s.Status().LastError, "LOGOUT")
	require.Eventually(t, func() bool { return rec.count(events.TypeChannelDisconnected) == 1 }, waitFor, tick)
	require.Eventually(t, func() bool { return client.DestroyCalls() == 1 }, waitFor, tick)
}

func TestSession_AuthFailure(t *testing.T) {
	client := mocks.NewMockChannelClient()
	s, rec := newTestSession(t, channel.SessionConfig{}, client)

	_, err := s.Connect(context.Background())
	require.NoError(t, err)
	client.Emit(channel.ClientEvent{Type: channel.ClientEventQR, Payload: "2@scan"})
	waitState(t, s, channel.StateAwaitingScan)

	client.Emit(channel.ClientEvent{Type: channel.ClientEventAuthFailure, Reason: "scan rejected"})
	waitState(t, s, channel.StateDisconnected)

	status := s.Status()
	assert.Empty(t, status.ScanPayload)
	assert.Contains(t, status.LastError, "scan rejected")
	require.Eventually(t, func() bool { return rec.count(events.TypeChannelAuthFailed) == 1 }, waitFor, tick)
}

func TestSession_InitTimeout(t *testing.T) {
	client := mocks.NewMockChannelClient()
	s, rec := newTestSession(t, channel.SessionConfig{InitTimeout: 30 * time.Millisecond}, client)

	_, err := s.Connect(context.Background())
	require.NoError(t, err)
	client.Emit(channel.ClientEvent{Type: channel.ClientEventQR, Payload: "2@scan"})

	waitState(t, s, channel.StateDisconnected)
	assert.Equal(t, channel.ErrInitTimeout.Error(), s.Status().LastError)
	require.Eventually(t, func() bool { return rec.count(events.TypeChannelInitTimeout) == 1 }, waitFor, tick)
	require.Eventually(t, func() bool { return client.DestroyCalls() == 1 }, waitFor, tick)
}

func TestSession_ReadyStopsInitTimer(t *testing.T) {
	client := mocks.NewMockChannelClient()
	s, rec := newTestSession(t, channel.SessionConfig{InitTimeout: 50 * time.Millisecond}, client)
	connectReady(t, s, client)

	time.Sleep(100 * time.Millisecond)
	assert.Equal(t, channel.StateReady, s.State())
	assert.Equal(t, 0, rec.count(events.TypeChannelInitTimeout))
}

func TestSession_InitializeError(t *testing.T) {
	client := mocks.NewMockChannelClient()
	client.InitializeFn = func(ctx context.Context) error { return errors.New("bridge unreachable") }
	s, _ := newTestSession(t, channel.SessionConfig{}, client)

	_, err := s.Connect(context.Background())
	require.NoError(t, err)

	waitState(t, s, channel.StateDisconnected)
	assert.Contains(t, s.Status().LastError, "bridge unreachable")
}

func TestSession_CallerDisconnect(t *testing.T) {
	client := mocks.NewMockChannelClient()
	next := mocks.NewMockChannelClient()
	s, _ := newTestSession(t, channel.SessionConfig{}, client, next)
	connectReady(t, s, client)

	state, err := s.Disconnect(context.Background())
	require.NoError(t, err)
	assert.Equal(t, channel.StateDisconnected, state)
	assert.Empty(t, s.Status().LastError)
	assert.Equal(t, 1, client.DestroyCalls())

	// Events from the old client no longer affect the session.
	client.Emit(channel.ClientEvent{Type: channel.ClientEventReady})
	time.Sleep(20 * time.Millisecond)
	assert.Equal(t, channel.StateDisconnected, s.State())

	// A fresh connect uses a new client.
	connectReady(t, s, next)
	assert.Equal(t, 1, next.InitializeCalls())
}

func TestSession_DisconnectWhenDisconnected(t *testing.T) {
	s, _ := newTestSession(t, channel.SessionConfig{}, mocks.NewMockChannelClient())
	state, err := s.Disconnect(context.Background())
	require.NoError(t, err)
	assert.Equal(t, channel.StateDisconnected, state)
}

func TestSession_ConnectFactoryError(t *testing.T) {
	s := channel.NewSession(func() (channel.Client, error) {
		return nil, errors.New("no bridge configured")
	}, nil, channel.SessionConfig{}, nil)

	state, err := s.Connect(context.Background())
	require.Error(t, err)
	assert.Equal(t, channel.StateDisconnected, state)
	assert.Equal(t, channel.StateDisconnected, s.State())
}
