package signaling

import (
	"encoding/json"
	"errors"
	"fmt"
)

// Kind selects the shape of an Envelope.
type Kind string

const (
	KindJoinRoom     Kind = "join-room"
	KindLeaveRoom    Kind = "leave-room"
	KindRoomJoined   Kind = "room-joined"
	KindUserJoined   Kind = "user-joined"
	KindUserLeft     Kind = "user-left"
	KindOffer        Kind = "offer"
	KindAnswer       Kind = "answer"
	KindICECandidate Kind = "ice-candidate"
	KindAuthError    Kind = "auth-error"
	KindError        Kind = "error"
)

// ErrUnknownKind marks an envelope whose type tag is not part of the schema.
// The engine logs and skips these instead of failing, so newer relays can add
// message kinds without breaking older clients.
var ErrUnknownKind = errors.New("signaling: unknown envelope kind")

// Description is a JSON-friendly SDP offer/answer. We intentionally avoid
// depending on any WebRTC library type here; this package models the wire
// protocol, not the implementation.
type Description struct {
	Type string `json:"type"`
	SDP  string `json:"sdp"`
}

// AnswerPayload is a Description that may embed candidates gathered by the
// remote side while it produced the answer.
type AnswerPayload struct {
	Type          string      `json:"type"`
	SDP           string      `json:"sdp"`
	ICECandidates []Candidate `json:"ice_candidates,omitempty"`
}

func (p AnswerPayload) Description() Description {
	return Description{Type: p.Type, SDP: p.SDP}
}

// Candidate is one ICE candidate in the browser-compatible JSON shape.
type Candidate struct {
	Candidate     string  `json:"candidate"`
	SDPMid        *string `json:"sdpMid,omitempty"`
	SDPMLineIndex *uint16 `json:"sdpMLineIndex,omitempty"`
}

// Envelope is the tagged union exchanged with the relay. Envelopes are
// immutable once constructed.
type Envelope struct {
	Type   Kind   `json:"type"`
	RoomID string `json:"roomId,omitempty"`
	PeerID string `json:"peerId,omitempty"`

	Offer     *Description   `json:"offer,omitempty"`
	Answer    *AnswerPayload `json:"answer,omitempty"`
	Candidate *Candidate     `json:"candidate,omitempty"`

	// Message carries the human-readable payload of auth-error and error
	// envelopes.
	Message string `json:"message,omitempty"`
}

// ParseEnvelope decodes and validates a single relay envelope.
//
// Unknown envelope kinds decode successfully and are reported via
// ErrUnknownKind so callers can skip them with a warning. Unknown fields are
// tolerated for the same forward-compatibility reason.
func ParseEnvelope(data []byte) (Envelope, error) {
	var env Envelope
	if err := json.Unmarshal(data, &env); err != nil {
		return Envelope{}, fmt.Errorf("signaling: decode envelope: %w", err)
	}
	if err := env.Validate(); err != nil {
		return env, err
	}
	return env, nil
}

func (e Envelope) Validate() error {
	switch e.Type {
	case KindJoinRoom, KindLeaveRoom:
		if e.RoomID == "" || e.PeerID == "" {
			return fmt.Errorf("signaling: %s envelope missing roomId/peerId", e.Type)
		}
	case KindRoomJoined:
		if e.RoomID == "" {
			return fmt.Errorf("signaling: room-joined envelope missing roomId")
		}
	case KindUserJoined, KindUserLeft:
		if e.PeerID == "" {
			return fmt.Errorf("signaling: %s envelope missing peerId", e.Type)
		}
	case KindOffer:
		if e.Offer == nil {
			return errors.New("signaling: offer envelope missing offer")
		}
		if e.Offer.Type != "offer" {
			return fmt.Errorf("signaling: offer envelope has sdp type %q", e.Offer.Type)
		}
		if e.Offer.SDP == "" {
			return errors.New("signaling: offer envelope missing sdp")
		}
	case KindAnswer:
		if e.Answer == nil {
			return errors.New("signaling: answer envelope missing answer")
		}
		if e.Answer.Type != "answer" {
			return fmt.Errorf("signaling: answer envelope has sdp type %q", e.Answer.Type)
		}
		if e.Answer.SDP == "" {
			return errors.New("signaling: answer envelope missing sdp")
		}
	case KindICECandidate:
		if e.Candidate == nil || e.Candidate.Candidate == "" {
			return errors.New("signaling: ice-candidate envelope missing candidate")
		}
	case KindAuthError, KindError:
		if e.Message == "" {
			return fmt.Errorf("signaling: %s envelope missing message", e.Type)
		}
	default:
		return fmt.Errorf("%w: %q", ErrUnknownKind, e.Type)
	}
	return nil
}
