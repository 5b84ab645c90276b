package main

import (
	"context"
	"log/slog"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/google/uuid"
	"github.com/spf13/cobra"

	"github.com/voicelink/voicelink/internal/config"
	"github.com/voicelink/voicelink/internal/negotiation"
	"github.com/voicelink/voicelink/internal/peer"
	"github.com/voicelink/voicelink/internal/session"
	"github.com/voicelink/voicelink/internal/stats"
)

type joinFlags struct {
	server         string
	room           string
	peerID         string
	apiKey         string
	mode           string
	logFormat      string
	logLevel       string
	stunURLs       string
	turnURLs       string
	turnUsername   string
	turnCredential string
	forceRelay     bool

	silence    bool
	record     bool
	recordPath string

	statsInterval     time.Duration
	reconnectAttempts int
	reconnectDelay    time.Duration
}

func newJoinCmd() *cobra.Command {
	var f joinFlags
	cmd := &cobra.Command{
		Use:   "join",
		Short: "Join a room and hold the session until interrupted",
		RunE: func(cmd *cobra.Command, _ []string) error {
			return runJoin(cmd, f)
		},
	}

	flags := cmd.Flags()
	flags.StringVar(&f.server, "server", "", "signaling relay WebSocket URL (VOICELINK_SERVER_URL)")
	flags.StringVar(&f.room, "room", "", "room to join (VOICELINK_ROOM)")
	flags.StringVar(&f.peerID, "peer-id", "", "local peer identity; random when empty (VOICELINK_PEER_ID)")
	flags.StringVar(&f.apiKey, "api-key", "", "relay credential (VOICELINK_API_KEY)")
	flags.StringVar(&f.mode, "mode", "", "dev or prod (VOICELINK_MODE)")
	flags.StringVar(&f.logFormat, "log-format", "", "text or json (VOICELINK_LOG_FORMAT)")
	flags.StringVar(&f.logLevel, "log-level", "", "debug, info, warn or error (VOICELINK_LOG_LEVEL)")
	flags.StringVar(&f.stunURLs, "stun-urls", "", "comma-separated STUN URLs (VOICELINK_STUN_URLS)")
	flags.StringVar(&f.turnURLs, "turn-urls", "", "comma-separated TURN URLs (VOICELINK_TURN_URLS)")
	flags.StringVar(&f.turnUsername, "turn-username", "", "TURN username (VOICELINK_TURN_USERNAME)")
	flags.StringVar(&f.turnCredential, "turn-credential", "", "TURN credential (VOICELINK_TURN_CREDENTIAL)")
	flags.BoolVar(&f.forceRelay, "force-relay", false, "restrict ICE to TURN relay candidates (VOICELINK_FORCE_RELAY)")
	flags.BoolVar(&f.silence, "silence", false, "send a silent opus track instead of real capture")
	flags.BoolVar(&f.record, "record", false, "record the remote track once it arrives")
	flags.StringVar(&f.recordPath, "record-path", "", "output file for remote audio recording (VOICELINK_RECORD_PATH)")
	flags.DurationVar(&f.statsInterval, "stats-interval", 0, "statistics sampling interval (VOICELINK_STATS_INTERVAL)")
	flags.IntVar(&f.reconnectAttempts, "reconnect-attempts", 0, "reconnect this many times after a session failure")
	flags.DurationVar(&f.reconnectDelay, "reconnect-delay", 2*time.Second, "base delay between reconnect attempts, grows linearly")

	return cmd
}

func buildConfig(cmd *cobra.Command, f joinFlags) (config.Config, error) {
	cfg, err := config.Load()
	if err != nil {
		return config.Config{}, err
	}

	flags := cmd.Flags()
	if flags.Changed("server") {
		cfg.ServerURL = f.server
	}
	if flags.Changed("room") {
		cfg.RoomID = f.room
	}
	if flags.Changed("peer-id") {
		cfg.PeerID = f.peerID
	}
	if flags.Changed("api-key") {
		cfg.APIKey = f.apiKey
	}
	if flags.Changed("mode") {
		if cfg.Mode, err = config.ParseMode(f.mode); err != nil {
			return config.Config{}, err
		}
	}
	if flags.Changed("log-format") {
		if cfg.LogFormat, err = config.ParseLogFormat(f.logFormat); err != nil {
			return config.Config{}, err
		}
	}
	if flags.Changed("log-level") {
		if cfg.LogLevel, err = config.ParseLogLevel(f.logLevel); err != nil {
			return config.Config{}, err
		}
	}
	if flags.Changed("stun-urls") {
		cfg.StunURLs = splitFlagList(f.stunURLs)
	}
	if flags.Changed("turn-urls") {
		cfg.TurnURLs = splitFlagList(f.turnURLs)
	}
	if flags.Changed("turn-username") {
		cfg.TurnUsername = f.turnUsername
	}
	if flags.Changed("turn-credential") {
		cfg.TurnCredential = f.turnCredential
	}
	if flags.Changed("force-relay") {
		cfg.ForceRelay = f.forceRelay
	}
	if flags.Changed("stats-interval") {
		cfg.StatsInterval = f.statsInterval
	}
	if flags.Changed("record-path") {
		cfg.RecordPath = f.recordPath
	}

	if cfg.PeerID == "" {
		cfg.PeerID = uuid.NewString()
	}
	if err := cfg.Validate(); err != nil {
		return config.Config{}, err
	}
	return cfg, nil
}

func runJoin(cmd *cobra.Command, f joinFlags) error {
	cfg, err := buildConfig(cmd, f)
	if err != nil {
		return err
	}

	logger, err := config.NewLogger(cfg)
	if err != nil {
		return err
	}
	slog.SetDefault(logger)

	factory, err := peer.NewFactory(peer.Config{
		ICEServers: cfg.ICEServers(),
		ForceRelay: cfg.ForceRelay,
		UDPPortMin: cfg.UDPPortMin,
		UDPPortMax: cfg.UDPPortMax,
		Logger:     logger,
	})
	if err != nil {
		return err
	}

	obs := &joinObserver{
		logger: logger,
		events: make(chan joinEvent, 16),
	}

	opts := session.Options{
		Connectivity: factory,
		Observer:     obs,
		Logger:       logger,
	}
	if f.record {
		opts.Recorder = peer.NewOggRecorder(cfg.RecordPath, logger)
	}
	mgr, err := session.NewManager(opts)
	if err != nil {
		return err
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if f.silence {
		track, err := peer.NewSilenceTrack(ctx, logger)
		if err != nil {
			return err
		}
		mgr.SupplyLocalTrack(track)
	}

	sampler := stats.NewSampler(stats.SamplerConfig{
		Source:   mgr,
		Interval: cfg.StatsInterval,
		Logger:   logger,
		Metrics:  mgr.Metrics(),
	})
	sampler.Start()
	defer sampler.Stop()

	sessCfg := session.Config{
		ServerURL:  cfg.ServerURL,
		RoomID:     cfg.RoomID,
		PeerID:     cfg.PeerID,
		Credential: cfg.APIKey,
	}
	if err := mgr.Connect(sessCfg); err != nil {
		return err
	}
	defer func() {
		_ = mgr.StopRecording()
		_ = mgr.Disconnect()
	}()

	// Reconnecting is the application's call, not the engine's: the engine
	// reports the failure once and we decide here, with linear backoff.
	attempts := 0
	for {
		select {
		case <-ctx.Done():
			logger.Info("interrupted, leaving room")
			return nil
		case ev := <-obs.events:
			switch {
			case ev.remoteTrack:
				if f.record {
					if err := mgr.StartRecording(); err != nil {
						logger.Warn("starting recording", "err", err)
					}
				}
			case ev.connected:
				attempts = 0
			case ev.err != nil:
				if attempts >= f.reconnectAttempts {
					return ev.err
				}
				attempts++
				delay := time.Duration(attempts) * f.reconnectDelay
				logger.Warn("session failed, reconnecting",
					"attempt", attempts, "delay", delay, "err", ev.err)
				select {
				case <-ctx.Done():
					return nil
				case <-time.After(delay):
				}
				if err := mgr.Reconnect(); err != nil {
					return err
				}
			}
		}
	}
}

type joinEvent struct {
	remoteTrack bool
	connected   bool
	err         error
}

// joinObserver logs engine notifications and forwards the ones the command
// loop acts on. Callbacks must not block, so forwarding drops on a full
// buffer rather than stall the dispatch goroutine.
type joinObserver struct {
	logger *slog.Logger
	events chan joinEvent
}

func (o *joinObserver) post(ev joinEvent) {
	select {
	case o.events <- ev:
	default:
		o.logger.Warn("dropping event, command loop is behind")
	}
}

func (o *joinObserver) StatusChanged(s session.Status) {
	o.logger.Info("session status", "status", s)
	if s == session.StatusConnected {
		o.post(joinEvent{connected: true})
	}
}

func (o *joinObserver) PhaseChanged(p negotiation.Phase) {
	o.logger.Debug("negotiation phase", "phase", p)
}

func (o *joinObserver) RemoteTrack(t negotiation.RemoteTrack) {
	o.logger.Info("remote track", "track", t.ID(), "kind", t.Kind())
	o.post(joinEvent{remoteTrack: true})
}

func (o *joinObserver) Warning(err error) {
	o.logger.Warn("engine warning", "err", err)
}

func (o *joinObserver) SessionError(err error) {
	o.post(joinEvent{err: err})
}

func splitFlagList(raw string) []string {
	var out []string
	for _, part := range strings.Split(raw, ",") {
		if p := strings.TrimSpace(part); p != "" {
			out = append(out, p)
		}
	}
	return out
}
