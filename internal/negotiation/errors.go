package negotiation

import "errors"

var (
	// ErrNegotiation marks a malformed or rejected description. It is fatal
	// for the session; the caller decides whether to reconnect.
	ErrNegotiation = errors.New("negotiation failed")

	// ErrAuthRejected is surfaced when the relay reports a credential
	// failure. Fatal at any phase.
	ErrAuthRejected = errors.New("relay rejected credentials")

	// ErrCandidateApply wraps a single candidate that failed to apply.
	// Non-fatal; reported as a warning and skipped.
	ErrCandidateApply = errors.New("candidate apply failed")

	// ErrConnectivityFailed is surfaced when the connectivity object reports a
	// terminal transport state. Fatal; the caller decides whether to
	// reconnect.
	ErrConnectivityFailed = errors.New("connectivity failed")
)
