package api

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/facilitydesk/taskdispatch/internal/api/shared"
	"github.com/facilitydesk/taskdispatch/internal/channel"
	"github.com/facilitydesk/taskdispatch/internal/dispatch"
	"github.com/facilitydesk/taskdispatch/internal/domain"
	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
)

// DispatchService is the dispatch pipeline as seen by the HTTP layer.
type DispatchService interface {
	ResolveTarget(date, clock string) (dispatch.Target, error)
	Preview(ctx context.Context, target dispatch.Target, f dispatch.Filter) (*dispatch.Plan, error)
	Run(ctx context.Context, planID uuid.UUID) (*dispatch.Run, error)
	Apply(ctx context.Context, runID uuid.UUID) (*dispatch.Reconciliation, error)
	GetRun(runID uuid.UUID) (*dispatch.Run, error)
}

// PreviewRequest is the body of POST /api/dispatch/preview. Every field is
// optional.
type PreviewRequest struct {
	// Date is the day to dispatch reminders for. Defaults to today.
	Date string `json:"date" validate:"omitempty,datetime=2006-01-02"`

	// Time overrides the time of day eligibility is evaluated at.
	Time string `json:"time" validate:"omitempty,datetime=15:04"`

	RecipientID string `json:"recipient_id" validate:"omitempty,uuid,excluded_with=Unassigned"`

	// Unassigned restricts the preview to occurrences without a recipient.
	// Those are never eligible, so the preview is always empty.
	Unassigned bool `json:"unassigned"`
}

// RunRequest is the body of POST /api/dispatch/runs.
type RunRequest struct {
	PlanID string `json:"plan_id" validate:"required,uuid"`
}

// PlanResponse describes a previewed plan. ID is empty when there is
// nothing to send.
type PlanResponse struct {
	ID        string           `json:"id,omitempty"`
	ExpiresAt *time.Time       `json:"expires_at,omitempty"`
	Now       time.Time        `json:"now"`
	Date      string           `json:"date"`
	Prompt    string           `json:"prompt"`
	Summary   dispatch.Summary `json:"summary"`
	Batches   []dispatch.Batch `json:"batches"`
}

// RunResponse describes an executed plan.
type RunResponse struct {
	ID          string            `json:"id"`
	PlanID      string            `json:"plan_id"`
	StartedAt   time.Time         `json:"started_at"`
	FinishedAt  time.Time         `json:"finished_at"`
	Results     []dispatch.Result `json:"results"`
	Aborted     bool              `json:"aborted"`
	AbortReason string            `json:"abort_reason,omitempty"`
	Applied     bool              `json:"applied"`
	Report      string            `json:"report"`

	// Error is set when the run was cut short by a lost connection.
	Error string `json:"error,omitempty"`
}

// DispatchHandler handles /api/dispatch requests.
type DispatchHandler struct {
	service DispatchService
}

// NewDispatchHandler creates a DispatchHandler.
func NewDispatchHandler(service DispatchService) *DispatchHandler {
	return &DispatchHandler{service: service}
}

// Preview handles POST /api/dispatch/preview.
func (h *DispatchHandler) Preview(w http.ResponseWriter, r *http.Request) {
	var req PreviewRequest
	if err := shared.DecodeJSON(r, &req, true); err != nil {
		shared.RespondWithErrorAndLog(w, r, http.StatusBadRequest, "Invalid request format", err)
		return
	}
	if err := shared.ValidateRequest(&req); err != nil {
		HandleAPIError(w, r, err)
		return
	}

	target, err := h.service.ResolveTarget(req.Date, req.Time)
	if err != nil {
		HandleAPIError(w, r, err)
		return
	}

	f := dispatch.Filter{Unassigned: req.Unassigned}
	if req.RecipientID != "" {
		id := uuid.MustParse(req.RecipientID)
		f.RecipientID = &id
	}

	plan, err := h.service.Preview(r.Context(), target, f)
	if errors.Is(err, dispatch.ErrNothingToSend) {
		shared.RespondWithJSON(w, r, http.StatusOK, PlanResponse{
			Now:     target.Now,
			Date:    target.Date.Format(domain.DateLayout),
			Prompt:  dispatch.Summary{}.Prompt(),
			Batches: []dispatch.Batch{},
		})
		return
	}
	if err != nil {
		HandleAPIError(w, r, err)
		return
	}

	expires := plan.ExpiresAt
	shared.RespondWithJSON(w, r, http.StatusCreated, PlanResponse{
		ID:        plan.ID.String(),
		ExpiresAt: &expires,
		Now:       plan.Now,
		Date:      plan.Date.Format(domain.DateLayout),
		Prompt:    plan.Prompt(),
		Summary:   plan.Summary,
		Batches:   plan.Batches,
	})
}

// CreateRun handles POST /api/dispatch/runs. A run cut short by a lost
// connection is answered with 503 and still carries the partial results,
// which can be applied.
func (h *DispatchHandler) CreateRun(w http.ResponseWriter, r *http.Request) {
	var req RunRequest
	if err := shared.DecodeJSON(r, &req, false); err != nil {
		shared.RespondWithErrorAndLog(w, r, http.StatusBadRequest, "Invalid request format", err)
		return
	}
	if err := shared.ValidateRequest(&req); err != nil {
		HandleAPIError(w, r, err)
		return
	}

	run, err := h.service.Run(r.Context(), uuid.MustParse(req.PlanID))
	if err != nil {
		HandleAPIError(w, r, err)
		return
	}

	resp := runToResponse(run)
	status := http.StatusCreated
	if run.Outcome.Aborted && channel.IsFatal(run.Outcome.AbortErr) {
		status = http.StatusServiceUnavailable
		resp.Error = ConnectionLostMessage
	}
	shared.RespondWithJSON(w, r, status, resp)
}

// GetRun handles GET /api/dispatch/runs/{id}.
func (h *DispatchHandler) GetRun(w http.ResponseWriter, r *http.Request) {
	id, ok := pathUUID(w, r, "id")
	if !ok {
		return
	}
	run, err := h.service.GetRun(id)
	if err != nil {
		HandleAPIError(w, r, err)
		return
	}
	shared.RespondWithJSON(w, r, http.StatusOK, runToResponse(run))
}

// ApplyRun handles POST /api/dispatch/runs/{id}/apply.
func (h *DispatchHandler) ApplyRun(w http.ResponseWriter, r *http.Request) {
	id, ok := pathUUID(w, r, "id")
	if !ok {
		return
	}
	rec, err := h.service.Apply(r.Context(), id)
	if err != nil {
		HandleAPIError(w, r, err)
		return
	}
	shared.RespondWithJSON(w, r, http.StatusOK, rec)
}

func runToResponse(run *dispatch.Run) RunResponse {
	return RunResponse{
		ID:          run.ID.String(),
		PlanID:      run.PlanID.String(),
		StartedAt:   run.StartedAt,
		FinishedAt:  run.FinishedAt,
		Results:     run.Outcome.Results,
		Aborted:     run.Outcome.Aborted,
		AbortReason: run.Outcome.AbortReason,
		Applied:     run.Applied,
		Report:      run.Report(),
	}
}

// pathUUID parses a UUID path parameter, writing a 400 response when it is
// malformed.
func pathUUID(w http.ResponseWriter, r *http.Request, name string) (uuid.UUID, bool) {
	id, err := uuid.Parse(chi.URLParam(r, name))
	if err != nil {
		shared.RespondWithErrorAndLog(w, r, http.StatusBadRequest, "Invalid "+name, err)
		return uuid.Nil, false
	}
	return id, true
}
