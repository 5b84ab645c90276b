package signaling

import (
	"errors"
	"fmt"
	"log/slog"
	"net/url"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"github.com/voicelink/voicelink/internal/metrics"
)

const (
	writeWait      = 10 * time.Second
	pongWait       = 60 * time.Second
	pingPeriod     = (pongWait * 9) / 10
	dialTimeout    = 15 * time.Second
	maxMessageSize = 64 * 1024

	// MinCredentialLength is the shortest credential the relay accepts.
	// Anything shorter is rejected locally, before any network action.
	MinCredentialLength = 8

	// credentialQueryParam carries the credential on the relay URL.
	credentialQueryParam = "api_key"
)

var (
	// ErrChannelNotOpen is returned by Send when the transport is not in an
	// open state. Callers must check; the channel never buffers across a
	// closed transport.
	ErrChannelNotOpen = errors.New("signaling: channel not open")

	// ErrBadCredential is returned by Open for a malformed credential. This
	// is a fast local validation, not a round trip.
	ErrBadCredential = errors.New("signaling: malformed credential")
)

// ChannelConfig identifies the relay endpoint and the room/peer the channel
// announces on open.
type ChannelConfig struct {
	ServerURL  string
	RoomID     string
	PeerID     string
	Credential string

	Logger  *slog.Logger
	Metrics *metrics.Metrics

	// Dial overrides the WebSocket dialer. Nil means gorilla's default with a
	// handshake timeout.
	Dial func(url string) (*websocket.Conn, error)
}

// Events are the single-subscriber callbacks a Channel owner wires before
// Open. All callbacks fire from the channel's internal goroutines; the owner
// is responsible for serializing them into its own dispatch.
type Events struct {
	// OnOpen fires once the transport is established and the join-room
	// handshake has been written.
	OnOpen func()
	// OnMessage delivers every inbound envelope, including unknown kinds
	// (which carry their type tag so the owner can warn and skip).
	OnMessage func(Envelope)
	// OnClose fires exactly once when the transport goes away. err is nil for
	// a requested close and non-nil for an unexpected one.
	OnClose func(err error)
	// OnError reports non-fatal channel problems (undecodable envelopes).
	OnError func(err error)
}

// Channel is a WebSocket connection to the signaling relay.
//
// On Open it immediately announces the local peer with a join-room envelope;
// inbound envelopes are not delivered before that handshake has been written,
// which is the implicit contract the relay expects.
type Channel struct {
	cfg     ChannelConfig
	ev      Events
	logger  *slog.Logger
	metrics *metrics.Metrics

	mu        sync.Mutex
	conn      *websocket.Conn
	open      bool
	requested bool // close was requested by the owner

	outgoing  chan Envelope
	done      chan struct{}
	closeOnce sync.Once
}

func NewChannel(cfg ChannelConfig, ev Events) *Channel {
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}
	m := cfg.Metrics
	if m == nil {
		m = metrics.New()
	}
	return &Channel{
		cfg:      cfg,
		ev:       ev,
		logger:   logger.With("component", "signaling"),
		metrics:  m,
		outgoing: make(chan Envelope, 32),
		done:     make(chan struct{}),
	}
}

// Open validates the credential, dials the relay and writes the join-room
// handshake. It returns before any inbound envelope is delivered.
func (c *Channel) Open() error {
	if c.cfg.Credential == "" || len(c.cfg.Credential) < MinCredentialLength {
		return fmt.Errorf("%w: need at least %d characters", ErrBadCredential, MinCredentialLength)
	}

	u, err := url.Parse(c.cfg.ServerURL)
	if err != nil {
		return fmt.Errorf("signaling: invalid relay url: %w", err)
	}
	q := u.Query()
	q.Set(credentialQueryParam, c.cfg.Credential)
	u.RawQuery = q.Encode()

	dial := c.cfg.Dial
	if dial == nil {
		dialer := websocket.Dialer{HandshakeTimeout: dialTimeout}
		dial = func(addr string) (*websocket.Conn, error) {
			conn, _, err := dialer.Dial(addr, nil)
			return conn, err
		}
	}

	conn, err := dial(u.String())
	if err != nil {
		return fmt.Errorf("signaling: dial relay: %w", err)
	}

	conn.SetReadLimit(maxMessageSize)
	_ = conn.SetReadDeadline(time.Now().Add(pongWait))
	conn.SetPongHandler(func(string) error {
		return conn.SetReadDeadline(time.Now().Add(pongWait))
	})

	join := Envelope{Type: KindJoinRoom, RoomID: c.cfg.RoomID, PeerID: c.cfg.PeerID}
	_ = conn.SetWriteDeadline(time.Now().Add(writeWait))
	if err := conn.WriteJSON(join); err != nil {
		_ = conn.Close()
		return fmt.Errorf("signaling: join-room handshake: %w", err)
	}

	c.mu.Lock()
	c.conn = conn
	c.open = true
	c.mu.Unlock()

	go c.readPump(conn)
	go c.writePump(conn)

	if c.ev.OnOpen != nil {
		c.ev.OnOpen()
	}
	return nil
}

// Send enqueues an envelope for delivery. It fails with ErrChannelNotOpen
// when the transport is not open.
func (c *Channel) Send(env Envelope) error {
	c.mu.Lock()
	open := c.open
	c.mu.Unlock()
	if !open {
		return ErrChannelNotOpen
	}

	select {
	case c.outgoing <- env:
		return nil
	case <-c.done:
		return ErrChannelNotOpen
	}
}

// Close tears the transport down. It is idempotent; closing an already-closed
// channel is a no-op.
func (c *Channel) Close() {
	c.closeOnce.Do(func() {
		c.mu.Lock()
		c.requested = true
		c.open = false
		c.mu.Unlock()
		close(c.done)
	})
}

func (c *Channel) readPump(conn *websocket.Conn) {
	defer func() {
		_ = conn.Close()
	}()

	for {
		_, data, err := conn.ReadMessage()
		if err != nil {
			c.finish(err)
			return
		}

		env, perr := ParseEnvelope(data)
		switch {
		case perr == nil, errors.Is(perr, ErrUnknownKind):
			// Unknown kinds are delivered so the owner can warn and skip.
			if c.ev.OnMessage != nil {
				c.ev.OnMessage(env)
			}
		default:
			c.metrics.Inc(metrics.EnvelopesInvalid)
			c.logger.Warn("dropping undecodable envelope", "err", perr)
			if c.ev.OnError != nil {
				c.ev.OnError(perr)
			}
		}
	}
}

func (c *Channel) writePump(conn *websocket.Conn) {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		_ = conn.Close()
	}()

	for {
		select {
		case env := <-c.outgoing:
			_ = conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := conn.WriteJSON(env); err != nil {
				return
			}
		case <-ticker.C:
			_ = conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		case <-c.done:
			// Best-effort goodbye; the relay treats a vanished peer the same.
			leave := Envelope{Type: KindLeaveRoom, RoomID: c.cfg.RoomID, PeerID: c.cfg.PeerID}
			_ = conn.SetWriteDeadline(time.Now().Add(writeWait))
			_ = conn.WriteJSON(leave)
			_ = conn.WriteMessage(websocket.CloseMessage,
				websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""))
			return
		}
	}
}

// finish marks the channel closed and fires OnClose exactly once, reporting
// whether the closure was requested by the owner.
func (c *Channel) finish(readErr error) {
	c.mu.Lock()
	requested := c.requested
	c.open = false
	c.mu.Unlock()

	c.closeOnce.Do(func() {
		close(c.done)
	})

	if c.ev.OnClose == nil {
		return
	}
	if requested {
		c.ev.OnClose(nil)
	} else {
		c.ev.OnClose(readErr)
	}
}
