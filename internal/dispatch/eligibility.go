package dispatch

import (
	"sort"
	"time"

	"github.com/facilitydesk/taskdispatch/internal/domain"
	"github.com/google/uuid"
)

// Filter narrows a dispatch to one recipient or to unassigned occurrences.
// The zero value matches everything.
type Filter struct {
	RecipientID *uuid.UUID `json:"recipient_id,omitempty"`
	Unassigned  bool       `json:"unassigned,omitempty"`
}

// Active reports whether the filter restricts anything.
func (f Filter) Active() bool {
	return f.RecipientID != nil || f.Unassigned
}

// Matches reports whether o passes the filter.
func (f Filter) Matches(o domain.Occurrence) bool {
	switch {
	case f.Unassigned:
		return !o.HasRecipient()
	case f.RecipientID != nil:
		return o.HasRecipient() && *o.RecipientID == *f.RecipientID
	default:
		return true
	}
}

// IsEligible reports whether o may be sent at now. now must already be in
// the recipients' local time zone.
//
// An occurrence is eligible when it is a draft, has a recipient, has a real
// start time, and starts in the future: any time on a later date, or
// strictly after now's minute on the same date.
func IsEligible(o domain.Occurrence, now time.Time) bool {
	if o.Status != domain.StatusDraft {
		return false
	}
	if !o.HasRecipient() {
		return false
	}
	start, ok := o.ClockMinutes()
	if !ok {
		return false
	}

	switch domain.CompareDate(o.StartDate, now) {
	case -1:
		return false
	case 1:
		return true
	default:
		return start > now.Hour()*60+now.Minute()
	}
}

// SelectEligible returns the occurrences dated on the target date that are
// eligible at now and pass f, ordered by start time.
func SelectEligible(occurrences []domain.Occurrence, now, date time.Time, f Filter) []domain.Occurrence {
	var out []domain.Occurrence
	for _, o := range occurrences {
		if domain.CompareDate(o.StartDate, date) == 0 && IsEligible(o, now) && f.Matches(o) {
			out = append(out, o)
		}
	}
	sort.SliceStable(out, func(i, j int) bool {
		if c := domain.CompareDate(out[i].StartDate, out[j].StartDate); c != 0 {
			return c < 0
		}
		mi, _ := out[i].ClockMinutes()
		mj, _ := out[j].ClockMinutes()
		return mi < mj
	})
	return out
}
