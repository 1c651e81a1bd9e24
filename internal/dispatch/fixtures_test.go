package dispatch

import (
	"fmt"
	"io"
	"log/slog"
	"strings"
	"time"

	"github.com/facilitydesk/taskdispatch/internal/domain"
	"github.com/google/uuid"
)

// now is the fixed evaluation time used across the package tests.
var now = time.Date(2026, 10, 14, 13, 0, 0, 0, time.UTC)

var today = domain.CalendarDate(now)

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func recipient(name, contact, lang string) domain.Recipient {
	return domain.Recipient{ID: uuid.New(), Name: name, Contact: contact, Language: lang}
}

// occurrence builds a draft occurrence assigned to r (nil for unassigned).
func occurrence(title string, date time.Time, startTime string, r *domain.Recipient) domain.Occurrence {
	o := domain.Occurrence{
		ID:        uuid.New(),
		TaskID:    uuid.New(),
		Title:     title,
		StartDate: date,
		StartTime: startTime,
		Status:    domain.StatusDraft,
		CreatedAt: now.Add(-24 * time.Hour),
		UpdatedAt: now.Add(-24 * time.Hour),
	}
	if r != nil {
		id := r.ID
		o.RecipientID = &id
	}
	return o
}

func withStatus(o domain.Occurrence, s domain.OccurrenceStatus) domain.Occurrence {
	o.Status = s
	return o
}

func ids(items []Item) []uuid.UUID {
	out := make([]uuid.UUID, 0, len(items))
	for _, it := range items {
		out = append(out, it.OccurrenceID)
	}
	return out
}

func titles(occs []domain.Occurrence) []string {
	out := make([]string, 0, len(occs))
	for _, o := range occs {
		out = append(out, o.Title)
	}
	return out
}

func formatMinutes(m int) string {
	return fmt.Sprintf("%02d:%02d", m/60, m%60)
}

func containsAll(s string, parts ...string) bool {
	for _, p := range parts {
		if !strings.Contains(s, p) {
			return false
		}
	}
	return true
}
