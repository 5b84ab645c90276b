package signaling

import (
	"errors"
	"testing"
)

func TestParseEnvelopeValid(t *testing.T) {
	cases := []struct {
		name string
		data string
		want Kind
	}{
		{"room joined", `{"type":"room-joined","roomId":"r1"}`, KindRoomJoined},
		{"user joined", `{"type":"user-joined","peerId":"p2"}`, KindUserJoined},
		{"user left", `{"type":"user-left","peerId":"p2"}`, KindUserLeft},
		{"offer", `{"type":"offer","roomId":"r1","offer":{"type":"offer","sdp":"v=0"}}`, KindOffer},
		{"answer", `{"type":"answer","answer":{"type":"answer","sdp":"v=0"}}`, KindAnswer},
		{"candidate", `{"type":"ice-candidate","candidate":{"candidate":"candidate:1 1 udp 1 127.0.0.1 5000 typ host"}}`, KindICECandidate},
		{"auth error", `{"type":"auth-error","message":"bad key"}`, KindAuthError},
		{"error", `{"type":"error","message":"oops"}`, KindError},
		{"extra fields tolerated", `{"type":"error","message":"oops","future":"field"}`, KindError},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			env, err := ParseEnvelope([]byte(tc.data))
			if err != nil {
				t.Fatalf("ParseEnvelope: %v", err)
			}
			if env.Type != tc.want {
				t.Fatalf("kind = %q, want %q", env.Type, tc.want)
			}
		})
	}
}

func TestParseEnvelopeInvalid(t *testing.T) {
	cases := []struct {
		name string
		data string
	}{
		{"not json", `{`},
		{"offer without payload", `{"type":"offer","roomId":"r1"}`},
		{"offer with wrong sdp type", `{"type":"offer","offer":{"type":"answer","sdp":"v=0"}}`},
		{"offer without sdp", `{"type":"offer","offer":{"type":"offer"}}`},
		{"answer without payload", `{"type":"answer"}`},
		{"candidate without payload", `{"type":"ice-candidate"}`},
		{"candidate with empty line", `{"type":"ice-candidate","candidate":{"candidate":""}}`},
		{"auth error without message", `{"type":"auth-error"}`},
		{"user joined without peer", `{"type":"user-joined"}`},
		{"join without room", `{"type":"join-room","peerId":"p1"}`},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			if _, err := ParseEnvelope([]byte(tc.data)); err == nil {
				t.Fatalf("ParseEnvelope accepted %s", tc.data)
			}
		})
	}
}

func TestParseEnvelopeUnknownKind(t *testing.T) {
	env, err := ParseEnvelope([]byte(`{"type":"shiny-new-thing","roomId":"r1"}`))
	if !errors.Is(err, ErrUnknownKind) {
		t.Fatalf("err = %v, want ErrUnknownKind", err)
	}
	// The envelope is still delivered so callers can log the kind.
	if env.Type != Kind("shiny-new-thing") {
		t.Fatalf("kind = %q", env.Type)
	}
}

func TestAnswerPayloadEmbeddedCandidates(t *testing.T) {
	data := `{
		"type":"answer",
		"answer":{
			"type":"answer","sdp":"v=0",
			"ice_candidates":[
				{"candidate":"candidate:1","sdpMid":"0"},
				{"candidate":"candidate:2"}
			]
		}
	}`
	env, err := ParseEnvelope([]byte(data))
	if err != nil {
		t.Fatalf("ParseEnvelope: %v", err)
	}
	if got := len(env.Answer.ICECandidates); got != 2 {
		t.Fatalf("embedded candidates = %d, want 2", got)
	}
	if env.Answer.ICECandidates[0].SDPMid == nil || *env.Answer.ICECandidates[0].SDPMid != "0" {
		t.Fatalf("first candidate sdpMid = %v", env.Answer.ICECandidates[0].SDPMid)
	}
	desc := env.Answer.Description()
	if desc.Type != "answer" || desc.SDP != "v=0" {
		t.Fatalf("description = %+v", desc)
	}
}
