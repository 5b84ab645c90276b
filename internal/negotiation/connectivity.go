package negotiation

import "github.com/voicelink/voicelink/internal/signaling"

// StateUnavailable is the sentinel reported for any connectivity metric that
// cannot be read (typically because no connectivity object exists yet).
const StateUnavailable = "unavailable"

// States is a point-in-time snapshot of the connectivity object's state
// strings. Reading it never mutates negotiation state.
type States struct {
	Connection    string
	ICEConnection string
	ICEGathering  string
	Signaling     string

	// SelectedCandidatePair is "local <-> remote" once ICE has nominated a
	// pair, StateUnavailable otherwise.
	SelectedCandidatePair string
}

// UnavailableStates returns a snapshot with every field set to the sentinel.
func UnavailableStates() States {
	return States{
		Connection:            StateUnavailable,
		ICEConnection:         StateUnavailable,
		ICEGathering:          StateUnavailable,
		Signaling:             StateUnavailable,
		SelectedCandidatePair: StateUnavailable,
	}
}

// LocalTrack is a borrowed capture handle. The engine never creates one; it
// only decides when it is safe to hand it to the connectivity object.
type LocalTrack interface {
	ID() string
}

// RemoteTrack is a media track received from the remote peer, surfaced to the
// playback/recording collaborators.
type RemoteTrack interface {
	ID() string
	Kind() string
}

// Connectivity is the capability that performs candidate gathering,
// connectivity checks and description management for the media transport.
// internal/peer provides the WebRTC-backed implementation; tests substitute
// fakes.
//
// Construction and destruction of a Connectivity belong exclusively to the
// session manager.
type Connectivity interface {
	// CreateOffer creates a local offer and sets it as the local description.
	CreateOffer() (signaling.Description, error)

	// CreateAnswer applies the remote offer, then creates and sets the local
	// answer.
	CreateAnswer(offer signaling.Description) (signaling.Description, error)

	// SetRemoteDescription applies a remote answer.
	SetRemoteDescription(desc signaling.Description) error

	// AddCandidate applies one remote ICE candidate. Only valid once a remote
	// description has been set.
	AddCandidate(c signaling.Candidate) error

	// AttachTrack adds a local media track to the transport.
	AttachTrack(t LocalTrack) error

	// States reads snapshot state strings without blocking negotiation.
	States() States

	Close() error
}

// Sink receives the connectivity object's asynchronous callbacks. The session
// manager implements it by funneling each call into its dispatch loop, which
// preserves the machine's run-to-completion guarantee.
type Sink interface {
	LocalCandidate(c signaling.Candidate)
	ConnectionStateChanged(state string)
	RemoteTrackArrived(t RemoteTrack)
}

// Factory constructs a Connectivity wired to deliver callbacks into sink.
type Factory func(sink Sink) (Connectivity, error)
