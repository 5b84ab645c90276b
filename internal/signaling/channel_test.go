package signaling

import (
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"
)

// testRelay accepts one WebSocket client and exposes what it saw.
type testRelay struct {
	t        *testing.T
	upgrader websocket.Upgrader

	conns chan *websocket.Conn
	creds chan string
}

func newTestRelay(t *testing.T) (*testRelay, *httptest.Server) {
	t.Helper()
	r := &testRelay{
		t:     t,
		conns: make(chan *websocket.Conn, 1),
		creds: make(chan string, 1),
	}
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, req *http.Request) {
		r.creds <- req.URL.Query().Get("api_key")
		conn, err := r.upgrader.Upgrade(w, req, nil)
		if err != nil {
			t.Errorf("upgrade: %v", err)
			return
		}
		r.conns <- conn
	}))
	t.Cleanup(srv.Close)
	return r, srv
}

func (r *testRelay) conn() *websocket.Conn {
	select {
	case c := <-r.conns:
		return c
	case <-time.After(2 * time.Second):
		r.t.Fatal("no client connected")
		return nil
	}
}

func (r *testRelay) readEnvelope(conn *websocket.Conn) Envelope {
	r.t.Helper()
	_ = conn.SetReadDeadline(time.Now().Add(2 * time.Second))
	_, data, err := conn.ReadMessage()
	if err != nil {
		r.t.Fatalf("relay read: %v", err)
	}
	env, err := ParseEnvelope(data)
	if err != nil && !errors.Is(err, ErrUnknownKind) {
		r.t.Fatalf("relay parse: %v", err)
	}
	return env
}

func wsURL(srv *httptest.Server) string {
	return "ws" + strings.TrimPrefix(srv.URL, "http")
}

func openChannel(t *testing.T, srv *httptest.Server, ev Events) *Channel {
	t.Helper()
	c := NewChannel(ChannelConfig{
		ServerURL:  wsURL(srv),
		RoomID:     "room-1",
		PeerID:     "peer-1",
		Credential: "secret-key",
	}, ev)
	if err := c.Open(); err != nil {
		t.Fatalf("Open: %v", err)
	}
	t.Cleanup(c.Close)
	return c
}

func TestOpenRejectsShortCredential(t *testing.T) {
	dialed := false
	c := NewChannel(ChannelConfig{
		ServerURL:  "ws://127.0.0.1:1/ws",
		RoomID:     "r",
		PeerID:     "p",
		Credential: "short",
		Dial: func(string) (*websocket.Conn, error) {
			dialed = true
			return nil, errors.New("unreachable")
		},
	}, Events{})
	if err := c.Open(); !errors.Is(err, ErrBadCredential) {
		t.Fatalf("Open err = %v, want ErrBadCredential", err)
	}
	if dialed {
		t.Fatal("dialer ran for a locally invalid credential")
	}
}

func TestOpenSendsCredentialAndHandshake(t *testing.T) {
	relay, srv := newTestRelay(t)

	opened := make(chan struct{}, 1)
	openChannel(t, srv, Events{OnOpen: func() { opened <- struct{}{} }})

	if got := <-relay.creds; got != "secret-key" {
		t.Fatalf("api_key = %q", got)
	}

	conn := relay.conn()
	join := relay.readEnvelope(conn)
	if join.Type != KindJoinRoom || join.RoomID != "room-1" || join.PeerID != "peer-1" {
		t.Fatalf("handshake = %+v", join)
	}

	select {
	case <-opened:
	case <-time.After(2 * time.Second):
		t.Fatal("OnOpen never fired")
	}
}

func TestSendAndReceive(t *testing.T) {
	relay, srv := newTestRelay(t)

	inbound := make(chan Envelope, 4)
	c := openChannel(t, srv, Events{
		OnMessage: func(env Envelope) { inbound <- env },
	})

	conn := relay.conn()
	relay.readEnvelope(conn) // join-room

	env := Envelope{Type: KindOffer, RoomID: "room-1", PeerID: "peer-1",
		Offer: &Description{Type: "offer", SDP: "v=0"}}
	if err := c.Send(env); err != nil {
		t.Fatalf("Send: %v", err)
	}
	got := relay.readEnvelope(conn)
	if got.Type != KindOffer || got.Offer == nil || got.Offer.SDP != "v=0" {
		t.Fatalf("relay saw %+v", got)
	}

	_ = conn.WriteJSON(Envelope{Type: KindUserJoined, PeerID: "peer-2"})
	select {
	case in := <-inbound:
		if in.Type != KindUserJoined || in.PeerID != "peer-2" {
			t.Fatalf("inbound = %+v", in)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("inbound envelope never delivered")
	}
}

func TestUnknownKindDelivered(t *testing.T) {
	relay, srv := newTestRelay(t)

	inbound := make(chan Envelope, 4)
	bad := make(chan error, 4)
	openChannel(t, srv, Events{
		OnMessage: func(env Envelope) { inbound <- env },
		OnError:   func(err error) { bad <- err },
	})

	conn := relay.conn()
	relay.readEnvelope(conn)

	_ = conn.WriteMessage(websocket.TextMessage, []byte(`{"type":"future-kind"}`))
	select {
	case in := <-inbound:
		if in.Type != Kind("future-kind") {
			t.Fatalf("inbound = %+v", in)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("unknown-kind envelope never delivered")
	}

	// Truly undecodable payloads go to OnError instead.
	_ = conn.WriteMessage(websocket.TextMessage, []byte(`not json`))
	select {
	case <-bad:
	case <-time.After(2 * time.Second):
		t.Fatal("decode error never reported")
	}
}

func TestRequestedCloseReportsNil(t *testing.T) {
	relay, srv := newTestRelay(t)

	closed := make(chan error, 1)
	c := openChannel(t, srv, Events{
		OnClose: func(err error) { closed <- err },
	})

	conn := relay.conn()
	relay.readEnvelope(conn)

	c.Close()
	select {
	case err := <-closed:
		if err != nil {
			t.Fatalf("OnClose err = %v, want nil for requested close", err)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("OnClose never fired")
	}

	if err := c.Send(Envelope{Type: KindLeaveRoom}); !errors.Is(err, ErrChannelNotOpen) {
		t.Fatalf("Send after close = %v, want ErrChannelNotOpen", err)
	}
}

func TestUnexpectedCloseReportsError(t *testing.T) {
	relay, srv := newTestRelay(t)

	closed := make(chan error, 1)
	openChannel(t, srv, Events{
		OnClose: func(err error) { closed <- err },
	})

	conn := relay.conn()
	relay.readEnvelope(conn)
	conn.Close()

	select {
	case err := <-closed:
		if err == nil {
			t.Fatal("OnClose err = nil, want transport error")
		}
	case <-time.After(2 * time.Second):
		t.Fatal("OnClose never fired")
	}
}
