package api

import (
	"context"
	"net/http"
	"time"

	"github.com/facilitydesk/taskdispatch/internal/api/shared"
	"github.com/facilitydesk/taskdispatch/internal/channel"
	"github.com/facilitydesk/taskdispatch/internal/platform/logger"
)

// ChannelSession is the part of channel.Session the HTTP layer drives.
type ChannelSession interface {
	Connect(ctx context.Context) (channel.State, error)
	Disconnect(ctx context.Context) (channel.State, error)
	Status() channel.Status
}

// ChannelStateResponse is returned by connect and disconnect.
type ChannelStateResponse struct {
	State channel.State `json:"state"`
}

// ChannelStatusResponse describes the session.
type ChannelStatusResponse struct {
	State       channel.State `json:"state"`
	ScanPayload string        `json:"scan_payload,omitempty"`
	Since       time.Time     `json:"since"`
	LastError   string        `json:"last_error,omitempty"`
}

// ChannelHandler handles /api/channel requests.
type ChannelHandler struct {
	session ChannelSession
}

// NewChannelHandler creates a ChannelHandler.
func NewChannelHandler(session ChannelSession) *ChannelHandler {
	return &ChannelHandler{session: session}
}

// Connect handles POST /api/channel/connect. Connecting an active session
// reports its current state.
func (h *ChannelHandler) Connect(w http.ResponseWriter, r *http.Request) {
	state, err := h.session.Connect(r.Context())
	if err != nil {
		HandleAPIError(w, r, err)
		return
	}
	logger.FromContext(r.Context()).Info("channel connect requested", "state", state)
	shared.RespondWithJSON(w, r, http.StatusAccepted, ChannelStateResponse{State: state})
}

// Disconnect handles POST /api/channel/disconnect.
func (h *ChannelHandler) Disconnect(w http.ResponseWriter, r *http.Request) {
	state, err := h.session.Disconnect(r.Context())
	if err != nil {
		HandleAPIError(w, r, err)
		return
	}
	logger.FromContext(r.Context()).Info("channel disconnect requested")
	shared.RespondWithJSON(w, r, http.StatusOK, ChannelStateResponse{State: state})
}

// Status handles GET /api/channel/status.
func (h *ChannelHandler) Status(w http.ResponseWriter, r *http.Request) {
	st := h.session.Status()
	shared.RespondWithJSON(w, r, http.StatusOK, ChannelStatusResponse{
		State:       st.State,
		ScanPayload: st.ScanPayload,
		Since:       st.Since,
		LastError:   st.LastError,
	})
}
