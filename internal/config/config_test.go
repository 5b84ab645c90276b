package config

import (
	"log/slog"
	"testing"
	"time"
)

func lookupFrom(env map[string]string) func(string) (string, bool) {
	return func(key string) (string, bool) {
		v, ok := env[key]
		return v, ok
	}
}

func TestLoadDefaults(t *testing.T) {
	cfg, err := load(lookupFrom(nil))
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if cfg.ServerURL != DefaultServerURL {
		t.Fatalf("server = %q", cfg.ServerURL)
	}
	if cfg.Mode != ModeDev || cfg.LogFormat != LogFormatText || cfg.LogLevel != slog.LevelDebug {
		t.Fatalf("dev defaults = %+v", cfg)
	}
	if len(cfg.StunURLs) != 1 || cfg.StunURLs[0] != DefaultStunURLs {
		t.Fatalf("stun urls = %v", cfg.StunURLs)
	}
	if cfg.StatsInterval != DefaultStatsInterval {
		t.Fatalf("stats interval = %s", cfg.StatsInterval)
	}
}

func TestLoadProdModeDefaults(t *testing.T) {
	cfg, err := load(lookupFrom(map[string]string{
		"VOICELINK_MODE": "prod",
	}))
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if cfg.LogFormat != LogFormatJSON || cfg.LogLevel != slog.LevelInfo {
		t.Fatalf("prod defaults = format %s level %s", cfg.LogFormat, cfg.LogLevel)
	}
}

func TestLoadEnvOverrides(t *testing.T) {
	cfg, err := load(lookupFrom(map[string]string{
		"VOICELINK_SERVER_URL":     "wss://relay.example.com/ws",
		"VOICELINK_ROOM":           "standup",
		"VOICELINK_PEER_ID":        "alice",
		"VOICELINK_API_KEY":        "super-secret",
		"VOICELINK_STUN_URLS":      "stun:a:3478, stun:b:3478",
		"VOICELINK_TURN_URLS":      "turn:t:3478",
		"VOICELINK_TURN_USERNAME":  "u",
		"VOICELINK_FORCE_RELAY":    "true",
		"VOICELINK_STATS_INTERVAL": "5s",
		"VOICELINK_UDP_PORT_MIN":   "50000",
		"VOICELINK_UDP_PORT_MAX":   "51000",
	}))
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if cfg.ServerURL != "wss://relay.example.com/ws" || cfg.RoomID != "standup" {
		t.Fatalf("cfg = %+v", cfg)
	}
	if len(cfg.StunURLs) != 2 || cfg.StunURLs[1] != "stun:b:3478" {
		t.Fatalf("stun urls = %v", cfg.StunURLs)
	}
	if !cfg.ForceRelay || cfg.StatsInterval != 5*time.Second {
		t.Fatalf("cfg = %+v", cfg)
	}
	if cfg.UDPPortMin != 50000 || cfg.UDPPortMax != 51000 {
		t.Fatalf("port range = %d-%d", cfg.UDPPortMin, cfg.UDPPortMax)
	}
}

func TestLoadRejectsBadValues(t *testing.T) {
	cases := []struct {
		name string
		env  map[string]string
	}{
		{"bad mode", map[string]string{"VOICELINK_MODE": "staging"}},
		{"bad log format", map[string]string{"VOICELINK_LOG_FORMAT": "xml"}},
		{"bad log level", map[string]string{"VOICELINK_LOG_LEVEL": "loud"}},
		{"bad force relay", map[string]string{"VOICELINK_FORCE_RELAY": "maybe"}},
		{"bad stats interval", map[string]string{"VOICELINK_STATS_INTERVAL": "soon"}},
		{"bad port", map[string]string{"VOICELINK_UDP_PORT_MIN": "70000"}},
		{"inverted port range", map[string]string{
			"VOICELINK_UDP_PORT_MIN": "51000",
			"VOICELINK_UDP_PORT_MAX": "50000",
		}},
		{"relay without turn", map[string]string{"VOICELINK_FORCE_RELAY": "true"}},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			if _, err := load(lookupFrom(tc.env)); err == nil {
				t.Fatalf("load accepted %v", tc.env)
			}
		})
	}
}

func TestICEServers(t *testing.T) {
	cfg := Config{
		StunURLs:       []string{"stun:a:3478"},
		TurnURLs:       []string{"turn:t:3478"},
		TurnUsername:   "u",
		TurnCredential: "p",
	}
	servers := cfg.ICEServers()
	if len(servers) != 2 {
		t.Fatalf("servers = %+v", servers)
	}
	if servers[1].Username != "u" || servers[1].Credential != "p" {
		t.Fatalf("turn server = %+v", servers[1])
	}

	cfg.TurnURLs = nil
	if got := len(cfg.ICEServers()); got != 1 {
		t.Fatalf("servers without turn = %d", got)
	}
}
