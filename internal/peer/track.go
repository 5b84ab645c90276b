package peer

import (
	"github.com/pion/webrtc/v4"

	"github.com/voicelink/voicelink/internal/negotiation"
)

// LocalTrack is a pion-backed capture handle. The negotiation engine only
// sees the ID; AttachTrack unwraps the underlying pion track.
type LocalTrack interface {
	negotiation.LocalTrack
	pionTrack() webrtc.TrackLocal
}

// WrapLocalTrack adapts an externally created pion track (e.g. a
// TrackLocalStaticSample fed by a capture pipeline) into the engine's
// borrowed-handle type.
func WrapLocalTrack(t webrtc.TrackLocal) LocalTrack {
	return localTrack{t: t}
}

type localTrack struct {
	t webrtc.TrackLocal
}

func (l localTrack) ID() string { return l.t.ID() }

func (l localTrack) pionTrack() webrtc.TrackLocal { return l.t }

// RemoteTrack wraps an inbound pion track. Playback and recording
// collaborators read RTP through Pion().
type RemoteTrack struct {
	t *webrtc.TrackRemote
}

func (r RemoteTrack) ID() string   { return r.t.ID() }
func (r RemoteTrack) Kind() string { return r.t.Kind().String() }

// Pion exposes the underlying track for media consumers.
func (r RemoteTrack) Pion() *webrtc.TrackRemote { return r.t }
