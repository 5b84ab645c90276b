package session

import "github.com/voicelink/voicelink/internal/negotiation"

// Status is the coarse session state the application renders.
type Status string

const (
	StatusDisconnected Status = "disconnected"
	StatusConnecting   Status = "connecting"
	StatusConnected    Status = "connected"
	StatusFailed       Status = "failed"
)

// Observer receives session-level notifications. Callbacks fire from the
// session's dispatch goroutine and must not block; in particular they must
// not call back into the Manager synchronously.
type Observer interface {
	StatusChanged(s Status)
	PhaseChanged(p negotiation.Phase)
	RemoteTrack(t negotiation.RemoteTrack)
	Warning(err error)

	// SessionError reports the fatal error that ended a session. Fired at
	// most once per session; a requested Disconnect never fires it.
	SessionError(err error)
}

// NopObserver is an Observer that ignores everything. Embed it to implement
// only the callbacks you care about.
type NopObserver struct{}

func (NopObserver) StatusChanged(Status)                {}
func (NopObserver) PhaseChanged(negotiation.Phase)      {}
func (NopObserver) RemoteTrack(negotiation.RemoteTrack) {}
func (NopObserver) Warning(error)                       {}
func (NopObserver) SessionError(error)                  {}
