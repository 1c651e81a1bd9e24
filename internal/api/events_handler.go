package api

import (
	"net/http"

	"github.com/facilitydesk/taskdispatch/internal/events"
)

// EventsHandler streams live events to websocket clients.
type EventsHandler struct {
	broker *events.Broker
}

// NewEventsHandler creates an EventsHandler.
func NewEventsHandler(broker *events.Broker) *EventsHandler {
	return &EventsHandler{broker: broker}
}

// Stream handles GET /api/events?types=a,b. Without types every event is sent.
func (h *EventsHandler) Stream(w http.ResponseWriter, r *http.Request) {
	h.broker.ServeWS(w, r, events.ParseTypes(r.URL.Query().Get("types")))
}
