package dispatch

import (
	"errors"
	"fmt"

	"github.com/facilitydesk/taskdispatch/internal/channel"
)

var (
	// ErrNothingToSend is returned by Preview when no occurrence is eligible.
	ErrNothingToSend = errors.New("nothing to send")

	// ErrMissingContact is a recipient-level failure for recipients without a contact address.
	ErrMissingContact = fmt.Errorf("%w: missing contact address", channel.ErrRecipientRejected)

	// ErrInvalidAddress is a recipient-level failure for contact addresses that cannot be normalized.
	ErrInvalidAddress = fmt.Errorf("%w: invalid contact address", channel.ErrRecipientRejected)

	// ErrPlanNotFound is returned for unknown, consumed or expired plans.
	ErrPlanNotFound = errors.New("dispatch plan not found")

	// ErrRunNotFound is returned for unknown runs.
	ErrRunNotFound = errors.New("dispatch run not found")

	// ErrRunAlreadyApplied is returned when a run's results are applied a second time.
	ErrRunAlreadyApplied = errors.New("dispatch run already applied")
)
