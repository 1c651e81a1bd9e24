package channel

import (
	"errors"
	"strings"
)

// Class groups errors by the blast radius of the failure.
type Class int

// Error classes.
const (
	// ClassUnknown errors are handled like recipient-level failures.
	ClassUnknown Class = iota
	ClassRecipient
	ClassFatal
)

// String returns the class name.
func (c Class) String() string {
	switch c {
	case ClassFatal:
		return "fatal"
	case ClassRecipient:
		return "recipient"
	default:
		return "unknown"
	}
}

// fatalMarkers are fragments of error text raised by the page automation
// layer when the browser session backing the channel is gone.
var fatalMarkers = []string{
	"detached frame",
	"session closed",
	"target closed",
	"execution context was destroyed",
	"protocol error",
	"page has been closed",
}

// recipientMarkers are fragments of error text the channel uses to reject an address.
var recipientMarkers = []string{
	"invalid wid",
	"not registered",
	"invalid number",
}

// ClassifyError reports whether err means the channel is broken, that one
// recipient was rejected, or neither.
func ClassifyError(err error) Class {
	if err == nil {
		return ClassUnknown
	}
	if errors.Is(err, ErrChannelBroken) || errors.Is(err, ErrNotReady) {
		return ClassFatal
	}
	if errors.Is(err, ErrRecipientRejected) {
		return ClassRecipient
	}

	msg := strings.ToLower(err.Error())
	for _, m := range fatalMarkers {
		if strings.Contains(msg, m) {
			return ClassFatal
		}
	}
	for _, m := range recipientMarkers {
		if strings.Contains(msg, m) {
			return ClassRecipient
		}
	}
	return ClassUnknown
}

// IsFatal reports whether err is a channel-fatal failure.
func IsFatal(err error) bool {
	return ClassifyError(err) == ClassFatal
}
