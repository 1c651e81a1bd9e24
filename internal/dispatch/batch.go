package dispatch

import (
	"fmt"
	"log/slog"
	"time"

	"github.com/dustin/go-humanize/english"
	"github.com/facilitydesk/taskdispatch/internal/domain"
	"github.com/facilitydesk/taskdispatch/internal/message"
	"github.com/google/uuid"
)

// Item is one occurrence inside a batch.
type Item struct {
	OccurrenceID uuid.UUID               `json:"occurrence_id"`
	Title        string                  `json:"title"`
	Description  string                  `json:"description,omitempty"`
	Date         time.Time               `json:"date"`
	StartTime    string                  `json:"start_time,omitempty"`
	Status       domain.OccurrenceStatus `json:"status"`
}

func newItem(o domain.Occurrence) Item {
	return Item{
		OccurrenceID: o.ID,
		Title:        o.Title,
		Description:  o.Description,
		Date:         domain.CalendarDate(o.StartDate),
		StartTime:    o.StartTime,
		Status:       o.Status,
	}
}

// Batch is everything one recipient receives in a single message.
type Batch struct {
	RecipientID   uuid.UUID `json:"recipient_id"`
	RecipientName string    `json:"recipient_name"`
	Contact       string    `json:"contact,omitempty"`
	Language      string    `json:"language"`

	// Date is the dispatch target date.
	Date time.Time `json:"date"`

	Items         []Item `json:"items"`
	Supplementary []Item `json:"supplementary,omitempty"`
}

// Size is the number of occurrences the batch mentions.
func (b Batch) Size() int {
	return len(b.Items) + len(b.Supplementary)
}

// DraftOccurrenceIDs returns the ids a confirmed send moves from draft to sent.
func (b Batch) DraftOccurrenceIDs() []uuid.UUID {
	ids := make([]uuid.UUID, 0, b.Size())
	for _, it := range b.Items {
		if it.Status == domain.StatusDraft {
			ids = append(ids, it.OccurrenceID)
		}
	}
	for _, it := range b.Supplementary {
		if it.Status == domain.StatusDraft {
			ids = append(ids, it.OccurrenceID)
		}
	}
	return ids
}

// Reminder converts the batch into the data the message templates render.
func (b Batch) Reminder() message.Reminder {
	date := b.Date.Format(domain.DateLayout)
	r := message.Reminder{
		RecipientName: b.RecipientName,
		Language:      b.Language,
		Date:          date,
	}
	for _, it := range b.Items {
		r.Items = append(r.Items, reminderItem(it, date))
	}
	for _, it := range b.Supplementary {
		r.Extras = append(r.Extras, reminderItem(it, date))
	}
	return r
}

func reminderItem(it Item, batchDate string) message.Item {
	d := it.Date.Format(domain.DateLayout)
	out := message.Item{
		Title:       it.Title,
		Description: it.Description,
		Date:        d,
		OtherDate:   d != batchDate,
	}
	clock := domain.Occurrence{StartTime: it.StartTime}
	if m, ok := clock.ClockMinutes(); ok {
		out.Time = fmt.Sprintf("%02d:%02d", m/60, m%60)
	}
	return out
}

// Summary describes a set of batches for the confirmation prompt.
type Summary struct {
	Occurrences int `json:"occurrences"`
	Recipients  int `json:"recipients"`

	// RecipientName is set when a single-recipient filter was active.
	RecipientName string `json:"recipient_name,omitempty"`
}

// Prompt renders the confirmation question shown before a run.
func (s Summary) Prompt() string {
	if s.Occurrences == 0 {
		return "Nothing to send."
	}
	tasks := english.Plural(s.Occurrences, "task", "")
	if s.RecipientName != "" {
		return fmt.Sprintf("Send %s to %s?", tasks, s.RecipientName)
	}
	return fmt.Sprintf("Send %s to %s?", tasks, english.Plural(s.Recipients, "recipient", ""))
}

// BuildBatches groups eligible occurrences by recipient, in order of first
// appearance, and attaches supplementary occurrences from all dated on date.
// Eligible occurrences on other dates are ignored. Groups whose recipient is
// not in the directory are dropped.
func BuildBatches(
	eligible, all []domain.Occurrence,
	recipients []domain.Recipient,
	date time.Time,
	f Filter,
	logger *slog.Logger,
) ([]Batch, Summary) {
	if logger == nil {
		logger = slog.Default()
	}
	date = domain.CalendarDate(date)

	directory := make(map[uuid.UUID]domain.Recipient, len(recipients))
	for _, r := range recipients {
		directory[r.ID] = r
	}

	var (
		batches []Batch
		index   = make(map[uuid.UUID]int)
		dropped = make(map[uuid.UUID]bool)
	)
	for _, o := range eligible {
		if domain.CompareDate(o.StartDate, date) != 0 {
			continue
		}
		rid := *o.RecipientID
		if i, ok := index[rid]; ok {
			batches[i].Items = append(batches[i].Items, newItem(o))
			continue
		}
		if dropped[rid] {
			continue
		}
		r, ok := directory[rid]
		if !ok {
			dropped[rid] = true
			logger.Warn("dropping occurrences for unknown recipient",
				"recipient_id", rid.String(),
				"occurrence_id", o.ID.String())
			continue
		}
		index[rid] = len(batches)
		batches = append(batches, Batch{
			RecipientID:   r.ID,
			RecipientName: r.Name,
			Contact:       r.Contact,
			Language:      r.PreferredLanguage(),
			Date:          date,
			Items:         []Item{newItem(o)},
		})
	}

	for _, o := range all {
		if !isSupplementary(o) {
			continue
		}
		if domain.CompareDate(o.StartDate, date) != 0 {
			continue
		}
		i, ok := index[*o.RecipientID]
		if !ok {
			continue
		}
		batches[i].Supplementary = append(batches[i].Supplementary, newItem(o))
	}

	summary := Summary{Recipients: len(batches)}
	for _, b := range batches {
		summary.Occurrences += b.Size()
	}
	if f.RecipientID != nil && len(batches) == 1 {
		summary.RecipientName = batches[0].RecipientName
	}
	return batches, summary
}

// isSupplementary reports whether o may ride along in another batch: an
// assigned, untimed, non-recurring occurrence that is neither closed nor
// already sent.
func isSupplementary(o domain.Occurrence) bool {
	return o.HasRecipient() &&
		o.IsUntimed() &&
		!o.IsRecurring &&
		!o.Status.IsClosed() &&
		o.Status != domain.StatusSent
}
