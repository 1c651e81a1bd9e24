package store

import (
	"context"
	"time"

	"github.com/facilitydesk/taskdispatch/internal/domain"
	"github.com/google/uuid"
)

// OccurrenceStore defines the storage operations the dispatch pipeline needs
// from the task CRUD layer.
type OccurrenceStore interface {
	// ListOccurrences returns every occurrence dated on or after from, ordered by
	// start date, start time and id. Recurring tasks are already materialized.
	ListOccurrences(ctx context.Context, from time.Time) ([]domain.Occurrence, error)

	// UpdateStatus moves one occurrence from status `from` to status `to`.
	// It is a compare-and-set: if the stored status is no longer `from` it
	// returns ErrStatusConflict and changes nothing.
	// Returns ErrOccurrenceNotFound if the occurrence does not exist.
	// When `to` is sent, `at` is recorded as the sent timestamp.
	UpdateStatus(ctx context.Context, id uuid.UUID, from, to domain.OccurrenceStatus, at time.Time) error
}

// RecipientStore exposes the read-only recipient directory.
type RecipientStore interface {
	// ListRecipients returns every recipient ordered by name.
	ListRecipients(ctx context.Context) ([]domain.Recipient, error)
}
