package api

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/facilitydesk/taskdispatch/internal/api/shared"
	"github.com/facilitydesk/taskdispatch/internal/channel"
	"github.com/facilitydesk/taskdispatch/internal/dispatch"
	"github.com/facilitydesk/taskdispatch/internal/domain"
	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var fixedNow = time.Date(2026, 10, 14, 13, 0, 0, 0, time.UTC)

// MockChannelSession is a mock implementation of ChannelSession for testing
type MockChannelSession struct {
	ConnectFn    func(ctx context.Context) (channel.State, error)
	DisconnectFn func(ctx context.Context) (channel.State, error)
	StatusFn     func() channel.Status
}

// Connect implements ChannelSession
func (m *MockChannelSession) Connect(ctx context.Context) (channel.State, error) {
	if m.ConnectFn != nil {
		return m.ConnectFn(ctx)
	}
	return channel.StateInitializing, nil
}

// Disconnect implements ChannelSession
func (m *MockChannelSession) Disconnect(ctx context.Context) (channel.State, error) {
	if m.DisconnectFn != nil {
		return m.DisconnectFn(ctx)
	}
	return channel.StateDisconnected, nil
}

// Status implements ChannelSession
func (m *MockChannelSession) Status() channel.Status {
	if m.StatusFn != nil {
		return m.StatusFn()
	}
	return channel.Status{State: channel.StateDisconnected, Since: fixedNow}
}

// MockDispatchService is a mock implementation of DispatchService for testing
type MockDispatchService struct {
	ResolveTargetFn func(date, clock string) (dispatch.Target, error)
	PreviewFn       func(ctx context.Context, target dispatch.Target, f dispatch.Filter) (*dispatch.Plan, error)
	RunFn           func(ctx context.Context, planID uuid.UUID) (*dispatch.Run, error)
	ApplyFn         func(ctx context.Context, runID uuid.UUID) (*dispatch.Reconciliation, error)
	GetRunFn        func(runID uuid.UUID) (*dispatch.Run, error)
}

// ResolveTarget implements DispatchService
func (m *MockDispatchService) ResolveTarget(date, clock string) (dispatch.Target, error) {
	if m.ResolveTargetFn != nil {
		return m.ResolveTargetFn(date, clock)
	}
	return dispatch.TargetAt(fixedNow), nil
}

// Preview implements DispatchService
func (m *MockDispatchService) Preview(ctx context.Context, target dispatch.Target, f dispatch.Filter) (*dispatch.Plan, error) {
	if m.PreviewFn != nil {
		return m.PreviewFn(ctx, target, f)
	}
	return nil, dispatch.ErrNothingToSend
}

// Run implements DispatchService
func (m *MockDispatchService) Run(ctx context.Context, planID uuid.UUID) (*dispatch.Run, error) {
	if m.RunFn != nil {
		return m.RunFn(ctx, planID)
	}
	return nil, dispatch.ErrPlanNotFound
}

// Apply implements DispatchService
func (m *MockDispatchService) Apply(ctx context.Context, runID uuid.UUID) (*dispatch.Reconciliation, error) {
	if m.ApplyFn != nil {
		return m.ApplyFn(ctx, runID)
	}
	return nil, dispatch.ErrRunNotFound
}

// GetRun implements DispatchService
func (m *MockDispatchService) GetRun(runID uuid.UUID) (*dispatch.Run, error) {
	if m.GetRunFn != nil {
		return m.GetRunFn(runID)
	}
	return nil, dispatch.ErrRunNotFound
}

func newTestRouter(session ChannelSession, svc DispatchService) http.Handler {
	ch := NewChannelHandler(session)
	dh := NewDispatchHandler(svc)

	r := chi.NewRouter()
	r.Post("/api/channel/connect", ch.Connect)
	r.Post("/api/channel/disconnect", ch.Disconnect)
	r.Get("/api/channel/status", ch.Status)
	r.Post("/api/dispatch/preview", dh.Preview)
	r.Post("/api/dispatch/runs", dh.CreateRun)
	r.Get("/api/dispatch/runs/{id}", dh.GetRun)
	r.Post("/api/dispatch/runs/{id}/apply", dh.ApplyRun)
	return r
}

func do(t *testing.T, h http.Handler, method, path, body string) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(method, path, strings.NewReader(body))
	req = req.WithContext(shared.SetTraceID(req.Context()))
	w := httptest.NewRecorder()
	h.ServeHTTP(w, req)
	return w
}

func decodeError(t *testing.T, w *httptest.ResponseRecorder) shared.ErrorResponse {
	t.Helper()
	var body shared.ErrorResponse
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &body))
	assert.NotEmpty(t, body.TraceID)
	return body
}

func samplePlan() *dispatch.Plan {
	rid := uuid.New()
	return &dispatch.Plan{
		ID:        uuid.New(),
		CreatedAt: fixedNow,
		ExpiresAt: fixedNow.Add(dispatch.DefaultPlanTTL),
		Now:       fixedNow,
		Date:      domain.CalendarDate(fixedNow),
		Batches: []dispatch.Batch{{
			RecipientID:   rid,
			RecipientName: "Ana",
			Language:      "es",
			Date:          fixedNow,
			Items:         []dispatch.Item{{OccurrenceID: uuid.New(), Title: "Check boiler", StartTime: "14:00", Status: domain.StatusDraft}},
		}},
		Summary: dispatch.Summary{Occurrences: 1, Recipients: 1},
	}
}

func TestChannelHandler(t *testing.T) {
	t.Run("connect", func(t *testing.T) {
		w := do(t, newTestRouter(&MockChannelSession{}, &MockDispatchService{}), http.MethodPost, "/api/channel/connect", "")
		assert.Equal(t, http.StatusAccepted, w.Code)
		assert.JSONEq(t, `{"state":"initializing"}`, w.Body.String())
	})

	t.Run("connect while active reports state", func(t *testing.T) {
		session := &MockChannelSession{ConnectFn: func(context.Context) (channel.State, error) {
			return channel.StateAwaitingScan, nil
		}}
		w := do(t, newTestRouter(session, &MockDispatchService{}), http.MethodPost, "/api/channel/connect", "")
		assert.Equal(t, http.StatusAccepted, w.Code)
		assert.JSONEq(t, `{"state":"awaiting_scan"}`, w.Body.String())
	})

	t.Run("connect failure", func(t *testing.T) {
		session := &MockChannelSession{ConnectFn: func(context.Context) (channel.State, error) {
			return channel.StateDisconnected, errors.New("create channel client: bridge url invalid")
		}}
		w := do(t, newTestRouter(session, &MockDispatchService{}), http.MethodPost, "/api/channel/connect", "")
		assert.Equal(t, http.StatusInternalServerError, w.Code)
		assert.Equal(t, "An unexpected error occurred", decodeError(t, w).Error)
	})

	t.Run("disconnect", func(t *testing.T) {
		w := do(t, newTestRouter(&MockChannelSession{}, &MockDispatchService{}), http.MethodPost, "/api/channel/disconnect", "")
		assert.Equal(t, http.StatusOK, w.Code)
		assert.JSONEq(t, `{"state":"disconnected"}`, w.Body.String())
	})

	t.Run("status with scan payload", func(t *testing.T) {
		session := &MockChannelSession{StatusFn: func() channel.Status {
			return channel.Status{State: channel.StateAwaitingScan, ScanPayload: "2@abc", Since: fixedNow}
		}}
		w := do(t, newTestRouter(session, &MockDispatchService{}), http.MethodGet, "/api/channel/status", "")
		assert.Equal(t, http.StatusOK, w.Code)

		var resp ChannelStatusResponse
		require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
		assert.Equal(t, channel.StateAwaitingScan, resp.State)
		assert.Equal(t, "2@abc", resp.ScanPayload)
		assert.True(t, fixedNow.Equal(resp.Since))
	})
}

func TestDispatchHandler_Preview(t *testing.T) {
	t.Run("plan created", func(t *testing.T) {
		plan := samplePlan()
		var gotFilter dispatch.Filter
		svc := &MockDispatchService{PreviewFn: func(_ context.Context, target dispatch.Target, f dispatch.Filter) (*dispatch.Plan, error) {
			assert.True(t, fixedNow.Equal(target.Now))
			assert.Equal(t, domain.CalendarDate(fixedNow), target.Date)
			gotFilter = f
			return plan, nil
		}}
		w := do(t, newTestRouter(&MockChannelSession{}, svc), http.MethodPost, "/api/dispatch/preview", "")
		assert.Equal(t, http.StatusCreated, w.Code)

		var resp PlanResponse
		require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
		assert.Equal(t, plan.ID.String(), resp.ID)
		assert.Equal(t, "2026-10-14", resp.Date)
		assert.Equal(t, "Send 1 task to 1 recipient?", resp.Prompt)
		require.Len(t, resp.Batches, 1)
		assert.Equal(t, "Ana", resp.Batches[0].RecipientName)
		assert.False(t, gotFilter.Active())
	})

	t.Run("date time and recipient are passed through", func(t *testing.T) {
		rid := uuid.New()
		svc := &MockDispatchService{
			ResolveTargetFn: func(date, clock string) (dispatch.Target, error) {
				assert.Equal(t, "2026-10-15", date)
				assert.Equal(t, "09:30", clock)
				return dispatch.Target{Now: fixedNow, Date: domain.CalendarDate(fixedNow).AddDate(0, 0, 1)}, nil
			},
			PreviewFn: func(_ context.Context, target dispatch.Target, f dispatch.Filter) (*dispatch.Plan, error) {
				assert.Equal(t, "2026-10-15", target.Date.Format(domain.DateLayout))
				require.NotNil(t, f.RecipientID)
				assert.Equal(t, rid, *f.RecipientID)
				return samplePlan(), nil
			},
		}
		body := `{"date":"2026-10-15","time":"09:30","recipient_id":"` + rid.String() + `"}`
		w := do(t, newTestRouter(&MockChannelSession{}, svc), http.MethodPost, "/api/dispatch/preview", body)
		assert.Equal(t, http.StatusCreated, w.Code)
	})

	t.Run("nothing to send", func(t *testing.T) {
		w := do(t, newTestRouter(&MockChannelSession{}, &MockDispatchService{}), http.MethodPost, "/api/dispatch/preview", `{"unassigned":true}`)
		assert.Equal(t, http.StatusOK, w.Code)

		var resp PlanResponse
		require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
		assert.Empty(t, resp.ID)
		assert.Nil(t, resp.ExpiresAt)
		assert.Equal(t, "Nothing to send.", resp.Prompt)
		assert.Equal(t, "2026-10-14", resp.Date)
		assert.Empty(t, resp.Batches)
	})

	tests := []struct {
		name    string
		body    string
		wantMsg string
	}{
		{name: "malformed json", body: `{"date":`, wantMsg: "Invalid request format"},
		{name: "unknown field", body: `{"recipient":"x"}`, wantMsg: "Invalid request format"},
		{name: "bad date", body: `{"date":"14/10/2026"}`, wantMsg: "Invalid Date: invalid format"},
		{name: "bad time", body: `{"time":"25:00"}`, wantMsg: "Invalid Time: invalid format"},
		{name: "bad recipient", body: `{"recipient_id":"ana"}`, wantMsg: "Invalid RecipientID: must be a UUID"},
		{
			name:    "recipient and unassigned",
			body:    `{"recipient_id":"3fa85f64-5717-4562-b3fc-2c963f66afa6","unassigned":true}`,
			wantMsg: "Invalid RecipientID: cannot be combined with unassigned",
		},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			w := do(t, newTestRouter(&MockChannelSession{}, &MockDispatchService{}), http.MethodPost, "/api/dispatch/preview", tc.body)
			assert.Equal(t, http.StatusBadRequest, w.Code)
			assert.Equal(t, tc.wantMsg, decodeError(t, w).Error)
		})
	}

	t.Run("resolve error", func(t *testing.T) {
		svc := &MockDispatchService{ResolveTargetFn: func(string, string) (dispatch.Target, error) {
			return dispatch.Target{}, errors.Join(domain.ErrValidation, errors.New("bad clock"))
		}}
		w := do(t, newTestRouter(&MockChannelSession{}, svc), http.MethodPost, "/api/dispatch/preview", "")
		assert.Equal(t, http.StatusBadRequest, w.Code)
	})

	t.Run("store failure is not leaked", func(t *testing.T) {
		svc := &MockDispatchService{PreviewFn: func(context.Context, dispatch.Target, dispatch.Filter) (*dispatch.Plan, error) {
			return nil, errors.New("list occurrences: dial postgres://dispatch:secret@db:5432 failed")
		}}
		w := do(t, newTestRouter(&MockChannelSession{}, svc), http.MethodPost, "/api/dispatch/preview", "")
		assert.Equal(t, http.StatusInternalServerError, w.Code)
		assert.NotContains(t, w.Body.String(), "secret")
	})
}

func sampleRun(outcome *dispatch.Outcome) *dispatch.Run {
	return &dispatch.Run{
		ID:         uuid.New(),
		PlanID:     uuid.New(),
		StartedAt:  fixedNow,
		FinishedAt: fixedNow.Add(3 * time.Second),
		Outcome:    outcome,
	}
}

func TestDispatchHandler_CreateRun(t *testing.T) {
	planID := uuid.New()
	body := `{"plan_id":"` + planID.String() + `"}`

	t.Run("completed", func(t *testing.T) {
		run := sampleRun(&dispatch.Outcome{Results: []dispatch.Result{{RecipientID: uuid.New(), RecipientName: "Ana", Success: true}}})
		svc := &MockDispatchService{RunFn: func(_ context.Context, id uuid.UUID) (*dispatch.Run, error) {
			assert.Equal(t, planID, id)
			return run, nil
		}}
		w := do(t, newTestRouter(&MockChannelSession{}, svc), http.MethodPost, "/api/dispatch/runs", body)
		assert.Equal(t, http.StatusCreated, w.Code)

		var resp RunResponse
		require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
		assert.Equal(t, run.ID.String(), resp.ID)
		assert.Equal(t, "1 sent, 0 failed", resp.Report)
		assert.Empty(t, resp.Error)
		assert.False(t, resp.Aborted)
	})

	t.Run("connection lost", func(t *testing.T) {
		out := &dispatch.Outcome{Results: []dispatch.Result{
			{RecipientName: "Ana", Success: true},
			{RecipientName: "Luis", Error: "Target closed", Class: "fatal"},
		}}
		out.Aborted = true
		out.AbortErr = channel.ErrChannelBroken
		out.AbortReason = channel.ErrChannelBroken.Error()
		svc := &MockDispatchService{RunFn: func(context.Context, uuid.UUID) (*dispatch.Run, error) {
			return sampleRun(out), nil
		}}
		w := do(t, newTestRouter(&MockChannelSession{}, svc), http.MethodPost, "/api/dispatch/runs", body)
		assert.Equal(t, http.StatusServiceUnavailable, w.Code)

		var resp RunResponse
		require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
		assert.Equal(t, ConnectionLostMessage, resp.Error)
		assert.True(t, resp.Aborted)
		assert.Len(t, resp.Results, 2)
	})

	errorCases := []struct {
		name       string
		err        error
		wantStatus int
		wantMsg    string
	}{
		{"not ready", channel.ErrNotReady, http.StatusConflict, "Channel not ready, connect and scan first"},
		{"plan gone", dispatch.ErrPlanNotFound, http.StatusNotFound, "Plan not found or expired, preview again"},
	}
	for _, tc := range errorCases {
		t.Run(tc.name, func(t *testing.T) {
			svc := &MockDispatchService{RunFn: func(context.Context, uuid.UUID) (*dispatch.Run, error) {
				return nil, tc.err
			}}
			w := do(t, newTestRouter(&MockChannelSession{}, svc), http.MethodPost, "/api/dispatch/runs", body)
			assert.Equal(t, tc.wantStatus, w.Code)
			assert.Equal(t, tc.wantMsg, decodeError(t, w).Error)
		})
	}

	t.Run("missing plan id", func(t *testing.T) {
		w := do(t, newTestRouter(&MockChannelSession{}, &MockDispatchService{}), http.MethodPost, "/api/dispatch/runs", `{}`)
		assert.Equal(t, http.StatusBadRequest, w.Code)
		assert.Equal(t, "Invalid PlanID: required field", decodeError(t, w).Error)
	})

	t.Run("empty body", func(t *testing.T) {
		w := do(t, newTestRouter(&MockChannelSession{}, &MockDispatchService{}), http.MethodPost, "/api/dispatch/runs", "")
		assert.Equal(t, http.StatusBadRequest, w.Code)
	})
}

func TestDispatchHandler_Runs(t *testing.T) {
	runID := uuid.New()

	t.Run("get run", func(t *testing.T) {
		svc := &MockDispatchService{GetRunFn: func(id uuid.UUID) (*dispatch.Run, error) {
			assert.Equal(t, runID, id)
			run := sampleRun(&dispatch.Outcome{})
			run.ID = id
			run.Applied = true
			return run, nil
		}}
		w := do(t, newTestRouter(&MockChannelSession{}, svc), http.MethodGet, "/api/dispatch/runs/"+runID.String(), "")
		assert.Equal(t, http.StatusOK, w.Code)

		var resp RunResponse
		require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
		assert.True(t, resp.Applied)
	})

	t.Run("apply", func(t *testing.T) {
		sent := uuid.New()
		svc := &MockDispatchService{ApplyFn: func(context.Context, uuid.UUID) (*dispatch.Reconciliation, error) {
			return &dispatch.Reconciliation{Sent: []uuid.UUID{sent}}, nil
		}}
		w := do(t, newTestRouter(&MockChannelSession{}, svc), http.MethodPost, "/api/dispatch/runs/"+runID.String()+"/apply", "")
		assert.Equal(t, http.StatusOK, w.Code)
		assert.JSONEq(t, `{"sent":["`+sent.String()+`"]}`, w.Body.String())
	})

	t.Run("apply twice", func(t *testing.T) {
		svc := &MockDispatchService{ApplyFn: func(context.Context, uuid.UUID) (*dispatch.Reconciliation, error) {
			return nil, dispatch.ErrRunAlreadyApplied
		}}
		w := do(t, newTestRouter(&MockChannelSession{}, svc), http.MethodPost, "/api/dispatch/runs/"+runID.String()+"/apply", "")
		assert.Equal(t, http.StatusConflict, w.Code)
		assert.Equal(t, "Run results were already applied", decodeError(t, w).Error)
	})

	t.Run("unknown run", func(t *testing.T) {
		w := do(t, newTestRouter(&MockChannelSession{}, &MockDispatchService{}), http.MethodGet, "/api/dispatch/runs/"+runID.String(), "")
		assert.Equal(t, http.StatusNotFound, w.Code)
	})

	t.Run("malformed id", func(t *testing.T) {
		w := do(t, newTestRouter(&MockChannelSession{}, &MockDispatchService{}), http.MethodPost, "/api/dispatch/runs/abc/apply", "")
		assert.Equal(t, http.StatusBadRequest, w.Code)
		assert.Equal(t, "Invalid id", decodeError(t, w).Error)
	})
}
