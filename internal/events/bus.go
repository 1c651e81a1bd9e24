package events

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
)

// Bus routes events to the handlers registered for their type.
type Bus struct {
	mu     sync.RWMutex
	routes []route
	logger *slog.Logger
}

type route struct {
	handler EventHandler
	// types is nil for handlers that receive every event.
	types map[string]struct{}
}

func (r route) matches(eventType string) bool {
	if r.types == nil {
		return true
	}
	_, ok := r.types[eventType]
	return ok
}

// NewBus creates an empty Bus.
func NewBus(logger *slog.Logger) *Bus {
	if logger == nil {
		logger = slog.Default()
	}
	return &Bus{logger: logger.With("component", "event_bus")}
}

// RegisterHandler subscribes handler to the given event types, or to every
// type when none are given.
func (b *Bus) RegisterHandler(handler EventHandler, types ...string) {
	r := route{handler: handler}
	if len(types) > 0 {
		r.types = make(map[string]struct{}, len(types))
		for _, t := range types {
			r.types[t] = struct{}{}
		}
	}

	b.mu.Lock()
	b.routes = append(b.routes, r)
	n := len(b.routes)
	b.mu.Unlock()

	b.logger.Debug("event handler registered",
		"handler", fmt.Sprintf("%T", handler),
		"types", types,
		"handler_count", n)
}

// EmitEvent delivers event to every matching handler in registration order.
// A failing handler does not stop delivery; all failures are returned joined.
func (b *Bus) EmitEvent(ctx context.Context, event *Event) error {
	b.mu.RLock()
	var handlers []EventHandler
	for _, r := range b.routes {
		if r.matches(event.Type) {
			handlers = append(handlers, r.handler)
		}
	}
	b.mu.RUnlock()

	if len(handlers) == 0 {
		b.logger.Debug("event dropped, no handler for type",
			"event_id", event.ID.String(),
			"event_type", event.Type)
		return nil
	}

	var errs []error
	for _, h := range handlers {
		if err := h.HandleEvent(ctx, event); err != nil {
			b.logger.WarnContext(ctx, "event handler failed",
				"handler", fmt.Sprintf("%T", h),
				"event_id", event.ID.String(),
				"event_type", event.Type,
				"error", err)
			errs = append(errs, fmt.Errorf("%T: %w", h, err))
		}
	}
	return errors.Join(errs...)
}

var _ EventEmitter = (*Bus)(nil)
