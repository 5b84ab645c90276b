package session

import (
	"fmt"
	"net/url"

	"github.com/voicelink/voicelink/internal/signaling"
)

// Config identifies the relay endpoint and the room the session joins.
type Config struct {
	ServerURL  string
	RoomID     string
	PeerID     string
	Credential string
}

// Validate fails fast on the first problem, before any network action.
func (c Config) Validate() error {
	if c.ServerURL == "" {
		return fmt.Errorf("%w: server url is required", ErrInvalidConfig)
	}
	u, err := url.Parse(c.ServerURL)
	if err != nil {
		return fmt.Errorf("%w: server url: %v", ErrInvalidConfig, err)
	}
	if u.Scheme != "ws" && u.Scheme != "wss" {
		return fmt.Errorf("%w: server url scheme must be ws or wss, got %q", ErrInvalidConfig, u.Scheme)
	}
	if c.RoomID == "" {
		return fmt.Errorf("%w: room id is required", ErrInvalidConfig)
	}
	if c.PeerID == "" {
		return fmt.Errorf("%w: peer id is required", ErrInvalidConfig)
	}
	if len(c.Credential) < signaling.MinCredentialLength {
		return fmt.Errorf("%w: credential must be at least %d characters", ErrInvalidConfig, signaling.MinCredentialLength)
	}
	return nil
}
