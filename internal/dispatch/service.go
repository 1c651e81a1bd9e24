package dispatch

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/facilitydesk/taskdispatch/internal/domain"
	"github.com/facilitydesk/taskdispatch/internal/store"
	"github.com/google/uuid"
)

// DefaultPlanTTL is how long a previewed plan can be run.
const DefaultPlanTTL = 15 * time.Minute

// Target is the calendar day a dispatch covers and the moment eligibility
// is evaluated at. Occurrences on other days are never part of a plan.
type Target struct {
	Now  time.Time `json:"now"`
	Date time.Time `json:"date"`
}

// TargetAt covers the calendar day of now.
func TargetAt(now time.Time) Target {
	return Target{Now: now, Date: domain.CalendarDate(now)}
}

// Plan is a previewed set of batches awaiting confirmation.
type Plan struct {
	ID        uuid.UUID `json:"id"`
	CreatedAt time.Time `json:"created_at"`
	ExpiresAt time.Time `json:"expires_at"`
	Now       time.Time `json:"now"`
	Date      time.Time `json:"date"`
	Filter    Filter    `json:"filter"`
	Batches   []Batch   `json:"batches"`
	Summary   Summary   `json:"summary"`
}

// Prompt is the confirmation question for the plan.
func (p *Plan) Prompt() string {
	return p.Summary.Prompt()
}

// Run is an executed plan.
type Run struct {
	ID         uuid.UUID `json:"id"`
	PlanID     uuid.UUID `json:"plan_id"`
	StartedAt  time.Time `json:"started_at"`
	FinishedAt time.Time `json:"finished_at"`
	Outcome    *Outcome  `json:"outcome"`
	Applied    bool      `json:"applied"`

	batches []Batch
}

// Report summarizes the run for the operator.
func (r *Run) Report() string {
	o := r.Outcome
	msg := fmt.Sprintf("%d sent, %d failed", o.Succeeded(), o.Failed())
	if o.Aborted {
		if missed := len(r.batches) - len(o.Results); missed > 0 {
			msg += fmt.Sprintf(", %d not attempted", missed)
		}
		msg += ": connection lost, please reconnect"
	}
	return msg
}

// ServiceConfig holds Service parameters.
type ServiceConfig struct {
	// PlanTTL bounds how long a plan stays runnable.
	PlanTTL time.Duration

	// Location is the recipients' time zone used to evaluate "now".
	Location *time.Location
}

// Service exposes the dispatch pipeline as Preview, Run and Apply.
type Service struct {
	occurrences store.OccurrenceStore
	recipients  store.RecipientStore
	executor    *Executor
	reconciler  *Reconciler
	cfg         ServiceConfig
	logger      *slog.Logger
	now         func() time.Time

	// runMu makes runs strictly sequential against the single channel session.
	runMu sync.Mutex

	mu    sync.Mutex
	plans map[uuid.UUID]*Plan
	runs  map[uuid.UUID]*Run
}

// NewService creates a Service.
func NewService(
	occurrences store.OccurrenceStore,
	recipients store.RecipientStore,
	executor *Executor,
	reconciler *Reconciler,
	cfg ServiceConfig,
	logger *slog.Logger,
) *Service {
	if occurrences == nil || recipients == nil || executor == nil || reconciler == nil {
		panic("dispatch service dependencies cannot be nil")
	}
	if logger == nil {
		logger = slog.Default()
	}
	if cfg.PlanTTL <= 0 {
		cfg.PlanTTL = DefaultPlanTTL
	}
	if cfg.Location == nil {
		cfg.Location = time.UTC
	}
	return &Service{
		occurrences: occurrences,
		recipients:  recipients,
		executor:    executor,
		reconciler:  reconciler,
		cfg:         cfg,
		logger:      logger.With("component", "dispatch_service"),
		now:         time.Now,
		plans:       make(map[uuid.UUID]*Plan),
		runs:        make(map[uuid.UUID]*Run),
	}
}

// Now returns the current time in the recipients' time zone.
func (s *Service) Now() time.Time {
	return s.now().In(s.cfg.Location)
}

// ResolveTarget builds a dispatch target from an optional "YYYY-MM-DD" day
// and an optional "HH:MM" evaluation time. The day defaults to today and
// does not move the evaluation time, which is the current time or, with
// clock, that time of day today.
func (s *Service) ResolveTarget(date, clock string) (Target, error) {
	now := s.Now()
	if clock != "" {
		minutes, err := domain.ParseClock(clock)
		if err != nil {
			return Target{}, fmt.Errorf("%w: %w", domain.ErrValidation, err)
		}
		y, m, d := now.Date()
		now = time.Date(y, m, d, minutes/60, minutes%60, 0, 0, s.cfg.Location)
	}

	target := TargetAt(now)
	if date != "" {
		parsed, err := time.ParseInLocation(domain.DateLayout, date, s.cfg.Location)
		if err != nil {
			return Target{}, fmt.Errorf("%w: date %q", domain.ErrValidation, date)
		}
		target.Date = domain.CalendarDate(parsed)
	}
	return target, nil
}

// Preview computes the batches for the target date eligible at its
// evaluation time and stores them as a plan. It returns ErrNothingToSend
// when no batch results.
func (s *Service) Preview(ctx context.Context, target Target, f Filter) (*Plan, error) {
	now := target.Now.In(s.cfg.Location)
	date := domain.CalendarDate(target.Date)

	all, err := s.occurrences.ListOccurrences(ctx, date)
	if err != nil {
		return nil, fmt.Errorf("list occurrences: %w", err)
	}
	recipients, err := s.recipients.ListRecipients(ctx)
	if err != nil {
		return nil, fmt.Errorf("list recipients: %w", err)
	}

	eligible := SelectEligible(all, now, date, f)
	batches, summary := BuildBatches(eligible, all, recipients, date, f, s.logger)
	if len(batches) == 0 {
		s.logger.Debug("nothing eligible to send",
			"now", now.Format(time.RFC3339),
			"date", date.Format(domain.DateLayout))
		return nil, ErrNothingToSend
	}

	created := s.now().UTC()
	plan := &Plan{
		ID:        uuid.New(),
		CreatedAt: created,
		ExpiresAt: created.Add(s.cfg.PlanTTL),
		Now:       now,
		Date:      date,
		Filter:    f,
		Batches:   batches,
		Summary:   summary,
	}

	s.mu.Lock()
	s.pruneLocked(created)
	s.plans[plan.ID] = plan
	s.mu.Unlock()

	s.logger.Info("dispatch plan prepared",
		"plan_id", plan.ID.String(),
		"date", date.Format(domain.DateLayout),
		"recipients", summary.Recipients,
		"occurrences", summary.Occurrences)
	return plan, nil
}

// Run executes a stored plan. A plan runs at most once; if the channel is
// not ready nothing is attempted and the plan stays available.
func (s *Service) Run(ctx context.Context, planID uuid.UUID) (*Run, error) {
	s.runMu.Lock()
	defer s.runMu.Unlock()

	s.mu.Lock()
	s.pruneLocked(s.now().UTC())
	plan, ok := s.plans[planID]
	if ok {
		delete(s.plans, planID)
	}
	s.mu.Unlock()
	if !ok {
		return nil, ErrPlanNotFound
	}

	run := &Run{ID: uuid.New(), PlanID: plan.ID, StartedAt: s.now().UTC(), batches: plan.Batches}
	outcome, err := s.executor.Execute(ctx, plan.Batches)
	if err != nil {
		s.mu.Lock()
		s.plans[plan.ID] = plan
		s.mu.Unlock()
		return nil, err
	}
	run.Outcome = outcome
	run.FinishedAt = s.now().UTC()

	s.mu.Lock()
	s.runs[run.ID] = run
	out := *run
	s.mu.Unlock()

	s.logger.Info("dispatch run finished",
		"run_id", run.ID.String(),
		"plan_id", plan.ID.String(),
		"succeeded", outcome.Succeeded(),
		"failed", outcome.Failed(),
		"aborted", outcome.Aborted)
	return &out, nil
}

// Apply reconciles a run's results into occurrence status. Each run can be
// applied once.
func (s *Service) Apply(ctx context.Context, runID uuid.UUID) (*Reconciliation, error) {
	s.mu.Lock()
	run, ok := s.runs[runID]
	if !ok {
		s.mu.Unlock()
		return nil, ErrRunNotFound
	}
	if run.Applied {
		s.mu.Unlock()
		return nil, ErrRunAlreadyApplied
	}
	run.Applied = true
	s.mu.Unlock()

	rec, err := s.reconciler.Apply(ctx, run.batches, run.Outcome.Results)
	if err != nil {
		return rec, fmt.Errorf("apply run %s: %w", runID, err)
	}
	return rec, nil
}

// GetRun returns a snapshot of a stored run.
func (s *Service) GetRun(runID uuid.UUID) (*Run, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	run, ok := s.runs[runID]
	if !ok {
		return nil, ErrRunNotFound
	}
	out := *run
	return &out, nil
}

// pruneLocked drops expired plans and applied runs older than the plan TTL.
func (s *Service) pruneLocked(now time.Time) {
	for id, p := range s.plans {
		if !now.Before(p.ExpiresAt) {
			delete(s.plans, id)
		}
	}
	for id, r := range s.runs {
		if r.Applied && now.Sub(r.FinishedAt) > s.cfg.PlanTTL {
			delete(s.runs, id)
		}
	}
}
