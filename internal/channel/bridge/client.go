// Package bridge implements channel.Client against the automation bridge,
// the external process that scripts the messaging web client.
//
// The bridge exposes a small HTTP API plus a websocket stream of lifecycle
// events:
//
//	POST /session/start    begin a session (scan code follows on the stream)
//	POST /session/stop     end the session
//	GET  /session/events   websocket, JSON frames {type, payload, reason}
//	POST /messages         {to, text}; failures answer {error}
package bridge

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strings"
	"sync"
	"time"

	"github.com/facilitydesk/taskdispatch/internal/channel"
	"nhooyr.io/websocket"
)

const (
	dialTimeout    = 10 * time.Second
	requestTimeout = 30 * time.Second
	eventBuffer    = 16
)

// ReasonConnectionLost is reported when the event stream drops unexpectedly.
const ReasonConnectionLost = "bridge_connection_lost"

// SendError is a message rejected by the bridge. Its text is the bridge's
// own error string so it can be classified.
type SendError struct {
	StatusCode int
	Message    string
}

func (e *SendError) Error() string {
	return e.Message
}

// Client talks to one bridge session. It is not reusable after Destroy.
type Client struct {
	baseURL    string
	httpClient *http.Client
	logger     *slog.Logger

	events chan channel.ClientEvent

	mu     sync.Mutex
	conn   *websocket.Conn
	cancel context.CancelFunc
	done   chan struct{}
}

// New creates a bridge client. A nil httpClient gets a default with a timeout.
func New(baseURL string, httpClient *http.Client, logger *slog.Logger) *Client {
	if httpClient == nil {
		httpClient = &http.Client{Timeout: requestTimeout}
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Client{
		baseURL:    strings.TrimRight(baseURL, "/"),
		httpClient: httpClient,
		logger:     logger.With("component", "bridge_client"),
		events:     make(chan channel.ClientEvent, eventBuffer),
	}
}

// NewFactory returns a channel.ClientFactory producing fresh bridge clients.
func NewFactory(baseURL string, httpClient *http.Client, logger *slog.Logger) channel.ClientFactory {
	return func() (channel.Client, error) {
		if _, err := url.ParseRequestURI(baseURL); err != nil {
			return nil, fmt.Errorf("parse bridge url: %w", err)
		}
		return New(baseURL, httpClient, logger), nil
	}
}

var _ channel.Client = (*Client)(nil)

// Events implements channel.Client
func (c *Client) Events() <-chan channel.ClientEvent {
	return c.events
}

// Initialize subscribes to the event stream and asks the bridge to start a
// session. Events are read until ctx ends or Destroy is called.
func (c *Client) Initialize(ctx context.Context) error {
	wsURL, err := c.eventsURL()
	if err != nil {
		return err
	}

	dialCtx, cancelDial := context.WithTimeout(ctx, dialTimeout)
	defer cancelDial()

	conn, _, err := websocket.Dial(dialCtx, wsURL, nil)
	if err != nil {
		return fmt.Errorf("dial bridge events: %w", err)
	}

	loopCtx, cancel := context.WithCancel(ctx)
	done := make(chan struct{})
	c.mu.Lock()
	c.conn = conn
	c.cancel = cancel
	c.done = done
	c.mu.Unlock()

	go c.readLoop(loopCtx, conn, done)

	if err := c.post(ctx, "/session/start", nil); err != nil {
		return fmt.Errorf("start bridge session: %w", err)
	}
	c.logger.Debug("bridge session started")
	return nil
}

// Send implements channel.Client
func (c *Client) Send(ctx context.Context, to, text string) error {
	body := struct {
		To   string `json:"to"`
		Text string `json:"text"`
	}{To: to, Text: text}

	err := c.post(ctx, "/messages", body)
	var sendErr *SendError
	if err == nil || errors.As(err, &sendErr) || ctx.Err() != nil {
		return err
	}
	// The bridge itself is unreachable, so no further sends can succeed.
	return fmt.Errorf("%w: %v", channel.ErrChannelBroken, err)
}

// Destroy stops the bridge session and closes the event stream.
func (c *Client) Destroy(ctx context.Context) error {
	stopErr := c.post(ctx, "/session/stop", nil)

	c.mu.Lock()
	conn, cancel, done := c.conn, c.cancel, c.done
	c.conn, c.cancel = nil, nil
	c.mu.Unlock()

	if cancel != nil {
		cancel()
	}
	if conn != nil {
		_ = conn.Close(websocket.StatusNormalClosure, "session destroyed")
	}
	if done != nil {
		select {
		case <-done:
		case <-ctx.Done():
		}
	}

	if stopErr != nil {
		return fmt.Errorf("stop bridge session: %w", stopErr)
	}
	return nil
}

func (c *Client) readLoop(ctx context.Context, conn *websocket.Conn, done chan struct{}) {
	defer close(done)
	defer close(c.events)

	for {
		_, message, err := conn.Read(ctx)
		if err != nil {
			if ctx.Err() != nil {
				return
			}
			c.logger.Warn("bridge event stream lost", "error", err)
			c.deliver(ctx, channel.ClientEvent{Type: channel.ClientEventDisconnected, Reason: ReasonConnectionLost})
			return
		}

		var ev channel.ClientEvent
		if err := json.Unmarshal(message, &ev); err != nil {
			c.logger.Warn("skipping malformed bridge event", "error", err)
			continue
		}
		if !c.deliver(ctx, ev) {
			return
		}
	}
}

func (c *Client) deliver(ctx context.Context, ev channel.ClientEvent) bool {
	select {
	case c.events <- ev:
		return true
	case <-ctx.Done():
		return false
	}
}

func (c *Client) eventsURL() (string, error) {
	u, err := url.Parse(c.baseURL + "/session/events")
	if err != nil {
		return "", fmt.Errorf("parse bridge url: %w", err)
	}
	switch u.Scheme {
	case "http":
		u.Scheme = "ws"
	case "https":
		u.Scheme = "wss"
	}
	return u.String(), nil
}

func (c *Client) post(ctx context.Context, path string, body any) error {
	var reqBody io.Reader
	if body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("encode body: %w", err)
		}
		reqBody = bytes.NewReader(data)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+path, reqBody)
	if err != nil {
		return fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("POST %s: %w", path, err)
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode >= 300 {
		raw, _ := io.ReadAll(io.LimitReader(resp.Body, 64<<10))
		var payload struct {
			Error string `json:"error"`
		}
		msg := strings.TrimSpace(string(raw))
		if json.Unmarshal(raw, &payload) == nil && payload.Error != "" {
			msg = payload.Error
		}
		if msg == "" {
			msg = http.StatusText(resp.StatusCode)
		}
		return &SendError{StatusCode: resp.StatusCode, Message: msg}
	}
	return nil
}
