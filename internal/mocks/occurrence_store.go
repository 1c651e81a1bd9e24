package mocks

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/facilitydesk/taskdispatch/internal/domain"
	"github.com/facilitydesk/taskdispatch/internal/store"
	"github.com/google/uuid"
)

// StatusUpdate records one successful call to MockOccurrenceStore.UpdateStatus.
type StatusUpdate struct {
	ID   uuid.UUID
	From domain.OccurrenceStatus
	To   domain.OccurrenceStatus
	At   time.Time
}

// MockOccurrenceStore implements store.OccurrenceStore over an in-memory map.
type MockOccurrenceStore struct {
	ListOccurrencesFn func(ctx context.Context, from time.Time) ([]domain.Occurrence, error)
	UpdateStatusFn    func(ctx context.Context, id uuid.UUID, from, to domain.OccurrenceStatus, at time.Time) error

	mu          sync.Mutex
	occurrences map[uuid.UUID]domain.Occurrence
	updates     []StatusUpdate
}

// NewMockOccurrenceStore creates a store seeded with the given occurrences.
func NewMockOccurrenceStore(occurrences ...domain.Occurrence) *MockOccurrenceStore {
	m := &MockOccurrenceStore{occurrences: make(map[uuid.UUID]domain.Occurrence)}
	for _, o := range occurrences {
		m.occurrences[o.ID] = o
	}
	return m
}

// ListOccurrences implements store.OccurrenceStore
func (m *MockOccurrenceStore) ListOccurrences(ctx context.Context, from time.Time) ([]domain.Occurrence, error) {
	if m.ListOccurrencesFn != nil {
		return m.ListOccurrencesFn(ctx, from)
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	fromDate := domain.CalendarDate(from)
	out := make([]domain.Occurrence, 0, len(m.occurrences))
	for _, o := range m.occurrences {
		if domain.CompareDate(o.StartDate, fromDate) >= 0 {
			out = append(out, o)
		}
	}
	sort.Slice(out, func(i, j int) bool {
		if c := domain.CompareDate(out[i].StartDate, out[j].StartDate); c != 0 {
			return c < 0
		}
		if out[i].StartTime != out[j].StartTime {
			return out[i].StartTime < out[j].StartTime
		}
		return out[i].ID.String() < out[j].ID.String()
	})
	return out, nil
}

// UpdateStatus implements store.OccurrenceStore with compare-and-set semantics.
func (m *MockOccurrenceStore) UpdateStatus(ctx context.Context, id uuid.UUID, from, to domain.OccurrenceStatus, at time.Time) error {
	if m.UpdateStatusFn != nil {
		return m.UpdateStatusFn(ctx, id, from, to, at)
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	o, ok := m.occurrences[id]
	if !ok {
		return store.ErrOccurrenceNotFound
	}
	if o.Status != from {
		return fmt.Errorf("%w: occurrence %s is %s", store.ErrStatusConflict, id, o.Status)
	}
	o.Status = to
	o.UpdatedAt = at
	if to == domain.StatusSent {
		sentAt := at
		o.SentAt = &sentAt
	}
	m.occurrences[id] = o
	m.updates = append(m.updates, StatusUpdate{ID: id, From: from, To: to, At: at})
	return nil
}

// Get returns the stored occurrence and whether it exists.
func (m *MockOccurrenceStore) Get(id uuid.UUID) (domain.Occurrence, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	o, ok := m.occurrences[id]
	return o, ok
}

// Put inserts or replaces an occurrence.
func (m *MockOccurrenceStore) Put(o domain.Occurrence) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.occurrences[o.ID] = o
}

// Updates returns the successful status updates in call order.
func (m *MockOccurrenceStore) Updates() []StatusUpdate {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]StatusUpdate, len(m.updates))
	copy(out, m.updates)
	return out
}

var _ store.OccurrenceStore = (*MockOccurrenceStore)(nil)

// MockRecipientStore implements store.RecipientStore for testing.
type MockRecipientStore struct {
	ListRecipientsFn func(ctx context.Context) ([]domain.Recipient, error)

	Recipients []domain.Recipient
	Err        error
}

// ListRecipients implements store.RecipientStore
func (m *MockRecipientStore) ListRecipients(ctx context.Context) ([]domain.Recipient, error) {
	if m.ListRecipientsFn != nil {
		return m.ListRecipientsFn(ctx)
	}
	if m.Err != nil {
		return nil, m.Err
	}
	out := make([]domain.Recipient, len(m.Recipients))
	copy(out, m.Recipients)
	return out, nil
}

var _ store.RecipientStore = (*MockRecipientStore)(nil)
