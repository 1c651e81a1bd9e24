package channel

import "errors"

var (
	// ErrNotReady is returned when a send is attempted on a session that is not ready.
	ErrNotReady = errors.New("channel not ready")

	// ErrChannelBroken is returned when the channel failed in a way that
	// requires the operator to reconnect.
	ErrChannelBroken = errors.New("channel broken, must reconnect")

	// ErrInitTimeout is reported when the channel does not become ready in time.
	ErrInitTimeout = errors.New("channel initialization timed out")

	// ErrAuthFailed is reported when the remote side rejects authentication.
	ErrAuthFailed = errors.New("channel authentication failed")

	// ErrRecipientRejected marks failures that concern a single recipient.
	ErrRecipientRejected = errors.New("recipient rejected")
)
