package dispatch

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/facilitydesk/taskdispatch/internal/domain"
	"github.com/facilitydesk/taskdispatch/internal/events"
	"github.com/facilitydesk/taskdispatch/internal/store"
	"github.com/google/uuid"
)

// StatusChange is the payload of occurrence.status_changed events.
type StatusChange struct {
	OccurrenceID uuid.UUID               `json:"occurrence_id"`
	RecipientID  uuid.UUID               `json:"recipient_id"`
	From         domain.OccurrenceStatus `json:"from"`
	To           domain.OccurrenceStatus `json:"to"`
	At           time.Time               `json:"at"`
}

// Reconciliation reports what applying a run changed.
type Reconciliation struct {
	// Sent lists occurrences moved from draft to sent.
	Sent []uuid.UUID `json:"sent"`

	// Skipped lists occurrences that were no longer drafts when applied.
	Skipped []uuid.UUID `json:"skipped,omitempty"`

	// Pending lists occurrences left as drafts because their recipient was
	// not confirmed.
	Pending []uuid.UUID `json:"pending,omitempty"`
}

// Reconciler is the only writer of dispatch-driven status changes.
type Reconciler struct {
	store   store.OccurrenceStore
	emitter events.EventEmitter
	logger  *slog.Logger
	now     func() time.Time
}

// NewReconciler creates a Reconciler. A nil emitter disables events.
func NewReconciler(occurrences store.OccurrenceStore, emitter events.EventEmitter, logger *slog.Logger) *Reconciler {
	if occurrences == nil {
		panic("occurrence store cannot be nil")
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Reconciler{
		store:   occurrences,
		emitter: emitter,
		logger:  logger.With("component", "result_reconciler"),
		now:     time.Now,
	}
}

// Apply moves every draft occurrence of each confirmed recipient to sent.
// Occurrences of failed or unattempted recipients stay drafts. Updates are
// compare-and-set, so an occurrence changed elsewhere since planning is
// skipped rather than overwritten. Store failures are collected and returned
// together with the partial reconciliation.
func (r *Reconciler) Apply(ctx context.Context, batches []Batch, results []Result) (*Reconciliation, error) {
	confirmed := make(map[uuid.UUID]bool, len(results))
	for _, res := range results {
		if res.Success {
			confirmed[res.RecipientID] = true
		}
	}

	at := r.now().UTC()
	rec := &Reconciliation{Sent: []uuid.UUID{}}
	var errs []error

	for _, b := range batches {
		ids := b.DraftOccurrenceIDs()
		if !confirmed[b.RecipientID] {
			rec.Pending = append(rec.Pending, ids...)
			continue
		}

		for _, id := range ids {
			err := r.store.UpdateStatus(ctx, id, domain.StatusDraft, domain.StatusSent, at)
			switch {
			case err == nil:
				rec.Sent = append(rec.Sent, id)
				events.Emit(ctx, r.emitter, events.TypeOccurrenceStatusChanged, StatusChange{
					OccurrenceID: id,
					RecipientID:  b.RecipientID,
					From:         domain.StatusDraft,
					To:           domain.StatusSent,
					At:           at,
				})
			case errors.Is(err, store.ErrStatusConflict), store.IsNotFoundError(err):
				rec.Skipped = append(rec.Skipped, id)
				r.logger.Warn("occurrence changed since planning, not marked sent",
					"occurrence_id", id.String(),
					"error", err)
			default:
				errs = append(errs, fmt.Errorf("mark occurrence %s sent: %w", id, err))
			}
		}
	}

	r.logger.Info("dispatch results applied",
		"sent", len(rec.Sent),
		"skipped", len(rec.Skipped),
		"pending", len(rec.Pending),
		"errors", len(errs))
	return rec, errors.Join(errs...)
}
