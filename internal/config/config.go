// Package config loads engine configuration from the environment. The CLI
// layers its flags on top: flags win over the environment, the environment
// wins over defaults.
package config

import (
	"fmt"
	"log/slog"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/pion/webrtc/v4"
)

const (
	envVarServerURL = "VOICELINK_SERVER_URL"
	envVarRoomID    = "VOICELINK_ROOM"
	envVarPeerID    = "VOICELINK_PEER_ID"
	envVarAPIKey    = "VOICELINK_API_KEY"

	envVarMode      = "VOICELINK_MODE"
	envVarLogFormat = "VOICELINK_LOG_FORMAT"
	envVarLogLevel  = "VOICELINK_LOG_LEVEL"

	envVarStunURLs       = "VOICELINK_STUN_URLS"
	envVarTurnURLs       = "VOICELINK_TURN_URLS"
	envVarTurnUsername   = "VOICELINK_TURN_USERNAME"
	envVarTurnCredential = "VOICELINK_TURN_CREDENTIAL"
	envVarForceRelay     = "VOICELINK_FORCE_RELAY"

	envVarUDPPortMin = "VOICELINK_UDP_PORT_MIN"
	envVarUDPPortMax = "VOICELINK_UDP_PORT_MAX"

	envVarStatsInterval = "VOICELINK_STATS_INTERVAL"
	envVarRecordPath    = "VOICELINK_RECORD_PATH"
)

const (
	DefaultServerURL     = "ws://127.0.0.1:8080/ws"
	DefaultStunURLs      = "stun:stun.l.google.com:19302"
	DefaultStatsInterval = 2 * time.Second
	DefaultRecordPath    = "voicelink-remote.ogg"

	DefaultMode Mode = ModeDev
)

type Mode string

const (
	ModeDev  Mode = "dev"
	ModeProd Mode = "prod"
)

type LogFormat string

const (
	LogFormatText LogFormat = "text"
	LogFormatJSON LogFormat = "json"
)

type Config struct {
	ServerURL string
	RoomID    string
	PeerID    string
	APIKey    string

	Mode      Mode
	LogFormat LogFormat
	LogLevel  slog.Level

	StunURLs       []string
	TurnURLs       []string
	TurnUsername   string
	TurnCredential string
	ForceRelay     bool

	UDPPortMin uint16
	UDPPortMax uint16

	StatsInterval time.Duration
	RecordPath    string
}

func Load() (Config, error) {
	return load(os.LookupEnv)
}

func load(lookup func(string) (string, bool)) (Config, error) {
	envMode := envOrDefault(lookup, envVarMode, string(DefaultMode))

	logFormatRaw := envOrDefault(lookup, envVarLogFormat, defaultLogFormatForMode(envMode))
	logLevelRaw := envOrDefault(lookup, envVarLogLevel, defaultLogLevelForMode(envMode))

	serverURL := envOrDefault(lookup, envVarServerURL, DefaultServerURL)
	roomID := envOrDefault(lookup, envVarRoomID, "")
	peerID := envOrDefault(lookup, envVarPeerID, "")
	apiKey := envOrDefault(lookup, envVarAPIKey, "")

	stunURLs := envOrDefault(lookup, envVarStunURLs, DefaultStunURLs)
	turnURLs := envOrDefault(lookup, envVarTurnURLs, "")
	turnUsername := envOrDefault(lookup, envVarTurnUsername, "")
	turnCredential := envOrDefault(lookup, envVarTurnCredential, "")

	forceRelay := false
	if raw, ok := lookup(envVarForceRelay); ok && strings.TrimSpace(raw) != "" {
		v, err := strconv.ParseBool(strings.TrimSpace(raw))
		if err != nil {
			return Config{}, fmt.Errorf("invalid %s %q: %w", envVarForceRelay, raw, err)
		}
		forceRelay = v
	}

	udpPortMin, err := envPortOrDefault(lookup, envVarUDPPortMin, 0)
	if err != nil {
		return Config{}, err
	}
	udpPortMax, err := envPortOrDefault(lookup, envVarUDPPortMax, 0)
	if err != nil {
		return Config{}, err
	}

	statsInterval := DefaultStatsInterval
	if raw, ok := lookup(envVarStatsInterval); ok && strings.TrimSpace(raw) != "" {
		d, err := time.ParseDuration(strings.TrimSpace(raw))
		if err != nil {
			return Config{}, fmt.Errorf("invalid %s %q: %w", envVarStatsInterval, raw, err)
		}
		statsInterval = d
	}
	recordPath := envOrDefault(lookup, envVarRecordPath, DefaultRecordPath)

	mode, err := ParseMode(envMode)
	if err != nil {
		return Config{}, err
	}
	logFormat, err := ParseLogFormat(logFormatRaw)
	if err != nil {
		return Config{}, err
	}
	logLevel, err := ParseLogLevel(logLevelRaw)
	if err != nil {
		return Config{}, err
	}

	cfg := Config{
		ServerURL:      serverURL,
		RoomID:         roomID,
		PeerID:         peerID,
		APIKey:         apiKey,
		Mode:           mode,
		LogFormat:      logFormat,
		LogLevel:       logLevel,
		StunURLs:       splitList(stunURLs),
		TurnURLs:       splitList(turnURLs),
		TurnUsername:   turnUsername,
		TurnCredential: turnCredential,
		ForceRelay:     forceRelay,
		UDPPortMin:     udpPortMin,
		UDPPortMax:     udpPortMax,
		StatsInterval:  statsInterval,
		RecordPath:     recordPath,
	}
	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

func (c Config) Validate() error {
	if c.UDPPortMax != 0 && c.UDPPortMin > c.UDPPortMax {
		return fmt.Errorf("udp port range: min %d > max %d", c.UDPPortMin, c.UDPPortMax)
	}
	if c.ForceRelay && len(c.TurnURLs) == 0 {
		return fmt.Errorf("force-relay requires at least one TURN URL")
	}
	if c.StatsInterval <= 0 {
		return fmt.Errorf("stats interval must be positive, got %s", c.StatsInterval)
	}
	return nil
}

// ICEServers assembles the pion ICE server list from the STUN/TURN settings.
func (c Config) ICEServers() []webrtc.ICEServer {
	var servers []webrtc.ICEServer
	if len(c.StunURLs) > 0 {
		servers = append(servers, webrtc.ICEServer{URLs: c.StunURLs})
	}
	if len(c.TurnURLs) > 0 {
		servers = append(servers, webrtc.ICEServer{
			URLs:       c.TurnURLs,
			Username:   c.TurnUsername,
			Credential: c.TurnCredential,
		})
	}
	return servers
}

func NewLogger(cfg Config) (*slog.Logger, error) {
	opts := &slog.HandlerOptions{
		Level: cfg.LogLevel,
	}

	var handler slog.Handler
	switch cfg.LogFormat {
	case LogFormatText:
		handler = slog.NewTextHandler(os.Stderr, opts)
	case LogFormatJSON:
		handler = slog.NewJSONHandler(os.Stderr, opts)
	default:
		return nil, fmt.Errorf("unsupported log format %q", cfg.LogFormat)
	}

	return slog.New(handler), nil
}

func envOrDefault(lookup func(string) (string, bool), key, fallback string) string {
	if v, ok := lookup(key); ok && v != "" {
		return v
	}
	return fallback
}

func envPortOrDefault(lookup func(string) (string, bool), key string, fallback uint16) (uint16, error) {
	raw, ok := lookup(key)
	if !ok || strings.TrimSpace(raw) == "" {
		return fallback, nil
	}
	n, err := strconv.ParseUint(strings.TrimSpace(raw), 10, 16)
	if err != nil {
		return 0, fmt.Errorf("invalid %s %q: %w", key, raw, err)
	}
	return uint16(n), nil
}

func splitList(raw string) []string {
	var out []string
	for _, part := range strings.Split(raw, ",") {
		if p := strings.TrimSpace(part); p != "" {
			out = append(out, p)
		}
	}
	return out
}

func defaultLogFormatForMode(mode string) string {
	switch strings.ToLower(strings.TrimSpace(mode)) {
	case string(ModeProd), "production":
		return string(LogFormatJSON)
	default:
		return string(LogFormatText)
	}
}

func defaultLogLevelForMode(mode string) string {
	switch strings.ToLower(strings.TrimSpace(mode)) {
	case string(ModeProd), "production":
		return "info"
	default:
		return "debug"
	}
}

func ParseMode(raw string) (Mode, error) {
	switch strings.ToLower(strings.TrimSpace(raw)) {
	case string(ModeDev), "development":
		return ModeDev, nil
	case string(ModeProd), "production":
		return ModeProd, nil
	default:
		return "", fmt.Errorf("invalid mode %q (expected dev or prod)", raw)
	}
}

func ParseLogFormat(raw string) (LogFormat, error) {
	switch strings.ToLower(strings.TrimSpace(raw)) {
	case string(LogFormatText):
		return LogFormatText, nil
	case string(LogFormatJSON):
		return LogFormatJSON, nil
	default:
		return "", fmt.Errorf("invalid log format %q (expected text or json)", raw)
	}
}

func ParseLogLevel(raw string) (slog.Level, error) {
	switch strings.ToLower(strings.TrimSpace(raw)) {
	case "debug":
		return slog.LevelDebug, nil
	case "info":
		return slog.LevelInfo, nil
	case "warn", "warning":
		return slog.LevelWarn, nil
	case "error":
		return slog.LevelError, nil
	default:
		return slog.LevelInfo, fmt.Errorf("invalid log level %q (expected debug, info, warn, error)", raw)
	}
}
