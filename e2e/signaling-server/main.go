// Command signaling-server is a minimal relay for local end-to-end testing.
// It authenticates the api_key query parameter, tracks rooms, and forwards
// offer/answer/ice-candidate envelopes between the peers of a room.
package main

import (
	"context"
	"fmt"
	"net"
	"net/http"
	"os"
	"os/signal"
	"strconv"
	"sync"
	"syscall"
	"time"

	"github.com/gorilla/websocket"

	"github.com/voicelink/voicelink/internal/signaling"
)

const writeWait = 10 * time.Second

type relay struct {
	apiKey string

	mu    sync.Mutex
	rooms map[string]map[string]*client // room id -> peer id -> client
}

type client struct {
	peerID string
	roomID string

	mu   sync.Mutex
	conn *websocket.Conn
}

func (c *client) send(env signaling.Envelope) {
	c.mu.Lock()
	defer c.mu.Unlock()
	_ = c.conn.SetWriteDeadline(time.Now().Add(writeWait))
	_ = c.conn.WriteJSON(env)
}

func newRelay(apiKey string) *relay {
	return &relay{
		apiKey: apiKey,
		rooms:  make(map[string]map[string]*client),
	}
}

var upgrader = websocket.Upgrader{
	CheckOrigin: func(*http.Request) bool { return true },
}

func (rl *relay) serveWS(w http.ResponseWriter, r *http.Request) {
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		return
	}
	defer conn.Close()

	key := r.URL.Query().Get("api_key")
	if !rl.credentialOK(key) {
		_ = conn.SetWriteDeadline(time.Now().Add(writeWait))
		_ = conn.WriteJSON(signaling.Envelope{
			Type:    signaling.KindAuthError,
			Message: "invalid api key",
		})
		return
	}

	var c *client
	defer func() {
		if c != nil {
			rl.leave(c)
		}
	}()

	conn.SetPingHandler(func(data string) error {
		_ = conn.SetWriteDeadline(time.Now().Add(writeWait))
		return conn.WriteMessage(websocket.PongMessage, []byte(data))
	})

	for {
		_, data, err := conn.ReadMessage()
		if err != nil {
			return
		}
		env, err := signaling.ParseEnvelope(data)
		if err != nil {
			sendError(conn, fmt.Sprintf("bad envelope: %v", err))
			continue
		}

		switch env.Type {
		case signaling.KindJoinRoom:
			if c != nil {
				sendError(conn, "already joined")
				continue
			}
			c = &client{peerID: env.PeerID, roomID: env.RoomID, conn: conn}
			rl.join(c)
		case signaling.KindLeaveRoom:
			if c != nil {
				rl.leave(c)
				c = nil
			}
		case signaling.KindOffer, signaling.KindAnswer, signaling.KindICECandidate:
			if c == nil {
				sendError(conn, "join a room first")
				continue
			}
			rl.forward(c, env)
		default:
			sendError(conn, fmt.Sprintf("unsupported kind %q", env.Type))
		}
	}
}

func (rl *relay) credentialOK(key string) bool {
	if len(key) < signaling.MinCredentialLength {
		return false
	}
	return rl.apiKey == "" || key == rl.apiKey
}

func (rl *relay) join(c *client) {
	rl.mu.Lock()
	room := rl.rooms[c.roomID]
	if room == nil {
		room = make(map[string]*client)
		rl.rooms[c.roomID] = room
	}
	others := make([]*client, 0, len(room))
	for _, other := range room {
		others = append(others, other)
	}
	room[c.peerID] = c
	rl.mu.Unlock()

	c.send(signaling.Envelope{Type: signaling.KindRoomJoined, RoomID: c.roomID, PeerID: c.peerID})
	for _, other := range others {
		other.send(signaling.Envelope{Type: signaling.KindUserJoined, RoomID: c.roomID, PeerID: c.peerID})
	}
}

func (rl *relay) leave(c *client) {
	rl.mu.Lock()
	room := rl.rooms[c.roomID]
	if room == nil || room[c.peerID] != c {
		rl.mu.Unlock()
		return
	}
	delete(room, c.peerID)
	if len(room) == 0 {
		delete(rl.rooms, c.roomID)
	}
	others := make([]*client, 0, len(room))
	for _, other := range room {
		others = append(others, other)
	}
	rl.mu.Unlock()

	for _, other := range others {
		other.send(signaling.Envelope{Type: signaling.KindUserLeft, RoomID: c.roomID, PeerID: c.peerID})
	}
}

// forward relays env to every other peer in the sender's room.
func (rl *relay) forward(c *client, env signaling.Envelope) {
	env.PeerID = c.peerID

	rl.mu.Lock()
	room := rl.rooms[c.roomID]
	others := make([]*client, 0, len(room))
	for id, other := range room {
		if id != c.peerID {
			others = append(others, other)
		}
	}
	rl.mu.Unlock()

	for _, other := range others {
		other.send(env)
	}
}

func sendError(conn *websocket.Conn, msg string) {
	_ = conn.SetWriteDeadline(time.Now().Add(writeWait))
	_ = conn.WriteJSON(signaling.Envelope{Type: signaling.KindError, Message: msg})
}

func main() {
	bindHost := envOrDefault("BIND_HOST", "127.0.0.1")
	port := envIntOrDefault("PORT", 0)
	apiKey := os.Getenv("API_KEY")

	listenAddr := net.JoinHostPort(bindHost, strconv.Itoa(port))
	ln, err := net.Listen("tcp", listenAddr)
	if err != nil {
		fmt.Fprintf(os.Stderr, "listen %s: %v\n", listenAddr, err)
		os.Exit(1)
	}

	rl := newRelay(apiKey)
	mux := http.NewServeMux()
	mux.HandleFunc("/ws", rl.serveWS)

	srv := &http.Server{
		Handler:           mux,
		ReadHeaderTimeout: 5 * time.Second,
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	errCh := make(chan error, 1)
	go func() {
		errCh <- srv.Serve(ln)
	}()

	fmt.Printf("READY %d\n", ln.Addr().(*net.TCPAddr).Port)

	select {
	case <-ctx.Done():
		_ = srv.Shutdown(context.Background())
		<-errCh
	case err := <-errCh:
		if err != nil && err != http.ErrServerClosed {
			fmt.Fprintf(os.Stderr, "http server error: %v\n", err)
			os.Exit(1)
		}
	}
}

func envOrDefault(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func envIntOrDefault(key string, fallback int) int {
	raw := os.Getenv(key)
	if raw == "" {
		return fallback
	}
	n, err := strconv.Atoi(raw)
	if err != nil {
		fmt.Fprintf(os.Stderr, "invalid %s=%q\n", key, raw)
		os.Exit(2)
	}
	return n
}
