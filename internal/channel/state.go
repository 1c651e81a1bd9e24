package channel

import "time"

// State is the lifecycle state of a Session.
type State string

// Session states.
const (
	StateDisconnected  State = "disconnected"
	StateInitializing  State = "initializing"
	StateAwaitingScan  State = "awaiting_scan"
	StateAuthenticated State = "authenticated"
	StateReady         State = "ready"
	StateFatal         State = "fatal"
)

// Disconnect reasons reported by the session itself.
const (
	ReasonCallerInitiated = "caller_initiated"
	ReasonInitTimeout     = "init_timeout"
	ReasonInitFailed      = "init_failed"
	ReasonAuthFailed      = "auth_failure"
	ReasonChannelBroken   = "channel_broken"
	ReasonClientClosed    = "client_closed"
)

// Status is a point-in-time snapshot of a Session.
type Status struct {
	State State `json:"state"`

	// ScanPayload is the pending scan code, set only while awaiting a scan.
	ScanPayload string `json:"scan_payload,omitempty"`

	// Since is when the session entered State.
	Since time.Time `json:"since"`

	// LastError describes the most recent operator-visible failure.
	LastError string `json:"last_error,omitempty"`
}

// StateChange is the payload of channel.state_changed events.
type StateChange struct {
	State  State  `json:"state"`
	Reason string `json:"reason,omitempty"`
}

// ScanIssued is the payload of channel.scan_issued events.
type ScanIssued struct {
	Payload string `json:"payload"`
}

// Failure is the payload of disconnect, auth failure, timeout and broken events.
type Failure struct {
	Reason string `json:"reason"`
	Error  string `json:"error,omitempty"`
}
