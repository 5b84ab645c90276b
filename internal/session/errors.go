package session

import "errors"

var (
	// ErrInvalidConfig is returned synchronously for a config that fails
	// local validation. Nothing is dialed.
	ErrInvalidConfig = errors.New("session: invalid configuration")

	// ErrSessionActive is returned by Connect while another session exists.
	ErrSessionActive = errors.New("session: a session is already active")

	// ErrNoSession is returned by operations that need an active session.
	ErrNoSession = errors.New("session: no active session")

	// ErrTransport wraps failures to establish the signaling transport.
	ErrTransport = errors.New("session: transport failure")

	// ErrConnectionLost marks an unexpected signaling disconnect. Surfaced
	// through Observer.SessionError exactly once; the engine never
	// reconnects on its own.
	ErrConnectionLost = errors.New("session: connection lost")

	// ErrNoRecorder is returned by StartRecording when no recorder was
	// configured.
	ErrNoRecorder = errors.New("session: no recorder configured")

	// ErrNoRemoteTrack is returned by StartRecording before a remote track
	// has arrived.
	ErrNoRemoteTrack = errors.New("session: no remote track to record")
)
