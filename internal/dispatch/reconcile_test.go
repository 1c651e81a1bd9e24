package dispatch

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/facilitydesk/taskdispatch/internal/domain"
	"github.com/facilitydesk/taskdispatch/internal/events"
	"github.com/facilitydesk/taskdispatch/internal/mocks"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func batchFor(r domain.Recipient, occs ...domain.Occurrence) Batch {
	b := Batch{RecipientID: r.ID, RecipientName: r.Name, Contact: r.Contact, Date: today}
	for _, o := range occs {
		b.Items = append(b.Items, newItem(o))
	}
	return b
}

func TestReconciler_OnlyConfirmedRecipientsAreMarkedSent(t *testing.T) {
	ana := recipient("Ana", "600000001", "es")
	luis := recipient("Luis", "600000002", "es")
	a1 := occurrence("a1", today, "14:00", &ana)
	a2 := occurrence("a2", today, "15:00", &ana)
	l1 := occurrence("l1", today, "16:00", &luis)
	st := mocks.NewMockOccurrenceStore(a1, a2, l1)

	batches := []Batch{batchFor(ana, a1, a2), batchFor(luis, l1)}
	results := []Result{
		{RecipientID: ana.ID, Success: true},
		{RecipientID: luis.ID, Success: false, Error: "invalid wid", Class: "recipient"},
	}

	rec, err := NewReconciler(st, nil, discardLogger()).Apply(context.Background(), batches, results)
	require.NoError(t, err)
	assert.Equal(t, []uuid.UUID{a1.ID, a2.ID}, rec.Sent)
	assert.Equal(t, []uuid.UUID{l1.ID}, rec.Pending)
	assert.Empty(t, rec.Skipped)

	got, _ := st.Get(a1.ID)
	assert.Equal(t, domain.StatusSent, got.Status)
	require.NotNil(t, got.SentAt)
	got, _ = st.Get(l1.ID)
	assert.Equal(t, domain.StatusDraft, got.Status)
}

func TestReconciler_UnattemptedBatchesStayDraft(t *testing.T) {
	ana := recipient("Ana", "600000001", "es")
	luis := recipient("Luis", "600000002", "es")
	a1 := occurrence("a1", today, "14:00", &ana)
	l1 := occurrence("l1", today, "16:00", &luis)
	st := mocks.NewMockOccurrenceStore(a1, l1)

	// An aborted run reports only the first batch.
	rec, err := NewReconciler(st, nil, discardLogger()).Apply(context.Background(),
		[]Batch{batchFor(ana, a1), batchFor(luis, l1)},
		[]Result{{RecipientID: ana.ID, Success: true}})
	require.NoError(t, err)
	assert.Equal(t, []uuid.UUID{a1.ID}, rec.Sent)
	assert.Equal(t, []uuid.UUID{l1.ID}, rec.Pending)
	assert.Len(t, st.Updates(), 1)
}

func TestReconciler_OnlyDraftItemsAreUpdated(t *testing.T) {
	ana := recipient("Ana", "600000001", "es")
	a1 := occurrence("a1", today, "14:00", &ana)
	extra := withStatus(occurrence("extra", today, "", &ana), domain.StatusReceived)
	st := mocks.NewMockOccurrenceStore(a1, extra)

	b := batchFor(ana, a1)
	b.Supplementary = []Item{newItem(extra)}

	rec, err := NewReconciler(st, nil, discardLogger()).Apply(context.Background(),
		[]Batch{b}, []Result{{RecipientID: ana.ID, Success: true}})
	require.NoError(t, err)
	assert.Equal(t, []uuid.UUID{a1.ID}, rec.Sent)

	got, _ := st.Get(extra.ID)
	assert.Equal(t, domain.StatusReceived, got.Status)
}

func TestReconciler_ChangedOccurrencesAreSkipped(t *testing.T) {
	ana := recipient("Ana", "600000001", "es")
	a1 := occurrence("a1", today, "14:00", &ana)
	a2 := occurrence("a2", today, "15:00", &ana)
	gone := occurrence("gone", today, "16:00", &ana)
	st := mocks.NewMockOccurrenceStore(a1, a2)

	// a2 moved on between planning and applying; gone was deleted.
	st.Put(withStatus(a2, domain.StatusReceived))

	rec, err := NewReconciler(st, nil, discardLogger()).Apply(context.Background(),
		[]Batch{batchFor(ana, a1, a2, gone)}, []Result{{RecipientID: ana.ID, Success: true}})
	require.NoError(t, err)
	assert.Equal(t, []uuid.UUID{a1.ID}, rec.Sent)
	assert.ElementsMatch(t, []uuid.UUID{a2.ID, gone.ID}, rec.Skipped)

	got, _ := st.Get(a2.ID)
	assert.Equal(t, domain.StatusReceived, got.Status, "newer status must not be overwritten")
}

func TestReconciler_StoreErrorsAreJoined(t *testing.T) {
	ana := recipient("Ana", "600000001", "es")
	a1 := occurrence("a1", today, "14:00", &ana)
	a2 := occurrence("a2", today, "15:00", &ana)
	boom := errors.New("connection reset")

	st := mocks.NewMockOccurrenceStore(a1, a2)
	st.UpdateStatusFn = func(_ context.Context, id uuid.UUID, _, _ domain.OccurrenceStatus, _ time.Time) error {
		if id == a1.ID {
			return boom
		}
		return nil
	}

	rec, err := NewReconciler(st, nil, discardLogger()).Apply(context.Background(),
		[]Batch{batchFor(ana, a1, a2)}, []Result{{RecipientID: ana.ID, Success: true}})
	require.Error(t, err)
	assert.ErrorIs(t, err, boom)
	assert.Contains(t, err.Error(), a1.ID.String())
	require.NotNil(t, rec)
	assert.Equal(t, []uuid.UUID{a2.ID}, rec.Sent)
}

func TestReconciler_EmitsStatusChanges(t *testing.T) {
	ana := recipient("Ana", "600000001", "es")
	a1 := occurrence("a1", today, "14:00", &ana)
	st := mocks.NewMockOccurrenceStore(a1)

	broker := events.NewBroker(discardLogger())
	sub := broker.Subscribe([]string{events.TypeOccurrenceStatusChanged})
	defer sub.Close()
	emitter := events.NewBus(discardLogger())
	emitter.RegisterHandler(broker)

	r := NewReconciler(st, emitter, discardLogger())
	r.now = func() time.Time { return now }

	_, err := r.Apply(context.Background(), []Batch{batchFor(ana, a1)}, []Result{{RecipientID: ana.ID, Success: true}})
	require.NoError(t, err)

	select {
	case ev := <-sub.Chan():
		var change StatusChange
		require.NoError(t, ev.UnmarshalPayload(&change))
		assert.Equal(t, a1.ID, change.OccurrenceID)
		assert.Equal(t, ana.ID, change.RecipientID)
		assert.Equal(t, domain.StatusDraft, change.From)
		assert.Equal(t, domain.StatusSent, change.To)
		assert.True(t, now.Equal(change.At))
	case <-time.After(time.Second):
		t.Fatal("no status change event")
	}
}
