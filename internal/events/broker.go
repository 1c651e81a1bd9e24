package events

import (
	"context"
	"log/slog"
	"net/http"
	"strings"
	"sync"

	"nhooyr.io/websocket"
	"nhooyr.io/websocket/wsjson"
)

// subscriberBuffer bounds how many events a subscriber may lag behind.
const subscriberBuffer = 64

type subscriber struct {
	ch    chan *Event
	types map[string]bool
}

// Broker fans out events to subscribers. Publishing never blocks: events for
// a subscriber whose buffer is full are dropped.
type Broker struct {
	mu     sync.Mutex
	subs   map[*subscriber]struct{}
	logger *slog.Logger
}

// NewBroker creates a new broker.
func NewBroker(logger *slog.Logger) *Broker {
	if logger == nil {
		logger = slog.Default()
	}
	return &Broker{
		subs:   make(map[*subscriber]struct{}),
		logger: logger.With("component", "event_broker"),
	}
}

// Subscribe registers a subscriber for the given event types.
// Empty types means all.
func (b *Broker) Subscribe(types []string) *Subscription {
	sub := &subscriber{ch: make(chan *Event, subscriberBuffer), types: make(map[string]bool)}
	for _, t := range types {
		sub.types[t] = true
	}
	b.mu.Lock()
	b.subs[sub] = struct{}{}
	b.mu.Unlock()
	return &Subscription{broker: b, sub: sub}
}

// Publish broadcasts an event to subscribers.
func (b *Broker) Publish(event *Event) {
	b.mu.Lock()
	defer b.mu.Unlock()
	for sub := range b.subs {
		if len(sub.types) > 0 && !sub.types[event.Type] {
			continue
		}
		select {
		case sub.ch <- event:
		default:
			b.logger.Debug("dropping event for slow subscriber",
				"event_id", event.ID,
				"event_type", event.Type)
		}
	}
}

// HandleEvent implements EventHandler so the broker can be registered on an emitter.
func (b *Broker) HandleEvent(_ context.Context, event *Event) error {
	b.Publish(event)
	return nil
}

// SubscriberCount reports the number of active subscriptions.
func (b *Broker) SubscriberCount() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return len(b.subs)
}

// ServeWS upgrades the connection and streams events as JSON until the
// client goes away or the request context ends.
func (b *Broker) ServeWS(w http.ResponseWriter, r *http.Request, types []string) {
	conn, err := websocket.Accept(w, r, &websocket.AcceptOptions{})
	if err != nil {
		b.logger.Warn("websocket upgrade failed", "error", err)
		return
	}
	defer conn.Close(websocket.StatusNormalClosure, "closing")

	sub := b.Subscribe(types)
	defer sub.Close()

	// Subscribers only listen; CloseRead handles control frames and
	// cancels ctx once the peer closes.
	ctx := conn.CloseRead(r.Context())
	for {
		select {
		case <-ctx.Done():
			return
		case event, ok := <-sub.Chan():
			if !ok {
				return
			}
			if err := wsjson.Write(ctx, conn, event); err != nil {
				return
			}
		}
	}
}

// ParseTypes splits a comma-separated type list, ignoring blanks.
func ParseTypes(raw string) []string {
	var types []string
	for _, t := range strings.Split(raw, ",") {
		if t = strings.TrimSpace(t); t != "" {
			types = append(types, t)
		}
	}
	return types
}

var _ EventHandler = (*Broker)(nil)

// Subscription represents an active broker subscription.
type Subscription struct {
	broker *Broker
	sub    *subscriber
	once   sync.Once
}

// Chan exposes the event channel. It is closed by Close.
func (s *Subscription) Chan() <-chan *Event {
	return s.sub.ch
}

// Close removes the subscription. It is safe to call more than once.
func (s *Subscription) Close() {
	if s == nil || s.broker == nil || s.sub == nil {
		return
	}
	s.once.Do(func() {
		s.broker.mu.Lock()
		delete(s.broker.subs, s.sub)
		s.broker.mu.Unlock()
		close(s.sub.ch)
	})
}
