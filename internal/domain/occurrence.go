package domain

import (
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"
)

// OccurrenceStatus represents where an occurrence is in its workflow
type OccurrenceStatus string

// Possible occurrence status values
const (
	StatusDraft           OccurrenceStatus = "draft"
	StatusSent            OccurrenceStatus = "sent"
	StatusReceived        OccurrenceStatus = "received"
	StatusInProgress      OccurrenceStatus = "in_progress"
	StatusPendingApproval OccurrenceStatus = "pending_approval"
	StatusCompleted       OccurrenceStatus = "completed"
	StatusNotCompleted    OccurrenceStatus = "not_completed"
)

// UntimedSentinel is the start time the CRUD layer writes for occurrences
// that have no real time of day.
const UntimedSentinel = "00:00"

// DateLayout is the wire and display layout for calendar dates.
const DateLayout = "2006-01-02"

// Valid reports whether s is one of the known statuses.
func (s OccurrenceStatus) Valid() bool {
	switch s {
	case StatusDraft, StatusSent, StatusReceived, StatusInProgress,
		StatusPendingApproval, StatusCompleted, StatusNotCompleted:
		return true
	default:
		return false
	}
}

// IsClosed reports whether the occurrence has been closed by a completion workflow.
func (s OccurrenceStatus) IsClosed() bool {
	return s == StatusCompleted || s == StatusNotCompleted
}

// Occurrence is one concrete, dated instance of a maintenance task.
// Recurring tasks are materialized by the storage layer into one occurrence per date.
type Occurrence struct {
	ID          uuid.UUID `json:"id"`
	TaskID      uuid.UUID `json:"task_id"`
	Title       string    `json:"title"`
	Description string    `json:"description,omitempty"`

	// StartDate is a calendar date; only its year, month and day are meaningful.
	StartDate time.Time `json:"start_date"`

	// StartTime is "HH:MM" (or "HH:MM:SS"); empty or the midnight sentinel means untimed.
	StartTime string `json:"start_time,omitempty"`

	Status      OccurrenceStatus `json:"status"`
	IsRecurring bool             `json:"is_recurring"`
	RecipientID *uuid.UUID       `json:"recipient_id,omitempty"`
	SentAt      *time.Time       `json:"sent_at,omitempty"`
	CreatedAt   time.Time        `json:"created_at"`
	UpdatedAt   time.Time        `json:"updated_at"`
}

// IsUntimed reports whether the occurrence has no usable time of day.
func (o Occurrence) IsUntimed() bool {
	t := strings.TrimSpace(o.StartTime)
	return t == "" || t == UntimedSentinel || t == UntimedSentinel+":00"
}

// HasRecipient reports whether the occurrence is assigned to someone.
func (o Occurrence) HasRecipient() bool {
	return o.RecipientID != nil && *o.RecipientID != uuid.Nil
}

// ClockMinutes returns the start time as minutes since midnight.
// The second result is false for untimed or unparsable start times.
func (o Occurrence) ClockMinutes() (int, bool) {
	if o.IsUntimed() {
		return 0, false
	}
	m, err := ParseClock(o.StartTime)
	if err != nil {
		return 0, false
	}
	return m, true
}

// Validate checks if the Occurrence has valid data.
// Returns an error if any field fails validation.
func (o *Occurrence) Validate() error {
	if o.ID == uuid.Nil {
		return fmt.Errorf("%w: occurrence id", ErrInvalidID)
	}
	if strings.TrimSpace(o.Title) == "" {
		return ErrEmptyTitle
	}
	if !o.Status.Valid() {
		return fmt.Errorf("%w: %q", ErrInvalidStatus, o.Status)
	}
	if !o.IsUntimed() {
		if _, err := ParseClock(o.StartTime); err != nil {
			return err
		}
	}
	return nil
}

// ParseClock parses "HH:MM" or "HH:MM:SS" into minutes since midnight.
// Seconds are accepted but ignored.
func ParseClock(s string) (int, error) {
	parts := strings.Split(strings.TrimSpace(s), ":")
	if len(parts) != 2 && len(parts) != 3 {
		return 0, fmt.Errorf("%w: %q", ErrInvalidStartTime, s)
	}
	h, err := strconv.Atoi(parts[0])
	if err != nil || h < 0 || h > 23 {
		return 0, fmt.Errorf("%w: %q", ErrInvalidStartTime, s)
	}
	m, err := strconv.Atoi(parts[1])
	if err != nil || m < 0 || m > 59 || len(parts[1]) != 2 {
		return 0, fmt.Errorf("%w: %q", ErrInvalidStartTime, s)
	}
	if len(parts) == 3 {
		sec, err := strconv.Atoi(parts[2])
		if err != nil || sec < 0 || sec > 59 {
			return 0, fmt.Errorf("%w: %q", ErrInvalidStartTime, s)
		}
	}
	return h*60 + m, nil
}

// SameDate reports whether a and b fall on the same calendar day, each read
// in its own location.
func SameDate(a, b time.Time) bool {
	ay, am, ad := a.Date()
	by, bm, bd := b.Date()
	return ay == by && am == bm && ad == bd
}

// CalendarDate returns t's calendar day as a UTC midnight value, the form
// used for StartDate.
func CalendarDate(t time.Time) time.Time {
	y, m, d := t.Date()
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}

// CompareDate orders two calendar dates: -1 if a is before b, 0 if same day, 1 if after.
func CompareDate(a, b time.Time) int {
	return CalendarDate(a).Compare(CalendarDate(b))
}
