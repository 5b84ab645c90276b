package session

import (
	"fmt"
	"log/slog"
	"sync"

	"github.com/voicelink/voicelink/internal/metrics"
	"github.com/voicelink/voicelink/internal/negotiation"
	"github.com/voicelink/voicelink/internal/signaling"
)

// Channel is the slice of signaling.Channel the manager consumes. Tests
// substitute fakes.
type Channel interface {
	Open() error
	Send(env signaling.Envelope) error
	Close()
}

// ChannelFactory builds the signaling transport for one session.
type ChannelFactory func(cfg signaling.ChannelConfig, ev signaling.Events) Channel

// Recorder consumes the remote media track while recording is enabled. The
// manager guards it: recording can only start once a remote track exists and
// is stopped on every teardown.
type Recorder interface {
	Start(t negotiation.RemoteTrack) error
	Stop() error
}

type Options struct {
	// Connectivity builds the media transport for each session. Required.
	Connectivity negotiation.Factory

	// NewChannel overrides the signaling transport. Nil means the WebSocket
	// channel from internal/signaling.
	NewChannel ChannelFactory

	Recorder Recorder
	Observer Observer
	Logger   *slog.Logger
	Metrics  *metrics.Metrics
}

// Manager is the engine's public surface. All methods are safe for
// concurrent use; at most one session is active at a time.
type Manager struct {
	opts     Options
	logger   *slog.Logger
	metrics  *metrics.Metrics
	observer Observer

	mu         sync.Mutex
	sess       *session
	lastCfg    *Config
	localTrack negotiation.LocalTrack
	status     Status
	recording  bool

	// restingPhase is what Phase reports with no active session: idle after
	// a requested disconnect, closed after a fatal error.
	restingPhase negotiation.Phase
}

func NewManager(opts Options) (*Manager, error) {
	if opts.Connectivity == nil {
		return nil, fmt.Errorf("%w: connectivity factory is required", ErrInvalidConfig)
	}
	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}
	m := opts.Metrics
	if m == nil {
		m = metrics.New()
	}
	obs := opts.Observer
	if obs == nil {
		obs = NopObserver{}
	}
	return &Manager{
		opts:         opts,
		logger:       logger.With("component", "session"),
		metrics:      m,
		observer:     obs,
		status:       StatusDisconnected,
		restingPhase: negotiation.PhaseIdle,
	}, nil
}

func (m *Manager) Metrics() *metrics.Metrics { return m.metrics }

func (m *Manager) newChannel(cfg signaling.ChannelConfig, ev signaling.Events) Channel {
	if m.opts.NewChannel != nil {
		return m.opts.NewChannel(cfg, ev)
	}
	return signaling.NewChannel(cfg, ev)
}

// Connect validates cfg, dials the relay and starts a session. It returns
// once the signaling transport is established; negotiation proceeds
// asynchronously and is reported through the Observer.
func (m *Manager) Connect(cfg Config) error {
	if err := cfg.Validate(); err != nil {
		return err
	}

	m.mu.Lock()
	if m.sess != nil {
		m.mu.Unlock()
		return ErrSessionActive
	}
	track := m.localTrack
	m.mu.Unlock()

	sess := newSession(m, cfg, track)
	m.logger.Info("connecting", "session_id", sess.id, "room", cfg.RoomID, "peer", cfg.PeerID)
	m.setStatus(StatusConnecting)

	if err := sess.open(); err != nil {
		m.setStatus(StatusDisconnected)
		return fmt.Errorf("%w: %v", ErrTransport, err)
	}

	m.mu.Lock()
	m.sess = sess
	c := cfg
	m.lastCfg = &c
	m.mu.Unlock()

	// The session may have already failed between open and registration.
	select {
	case <-sess.done:
		m.mu.Lock()
		if m.sess == sess {
			m.sess = nil
		}
		m.mu.Unlock()
	default:
	}

	m.metrics.Inc(metrics.SessionsConnected)
	return nil
}

// Disconnect tears the active session down. Idempotent: disconnecting with no
// session is a no-op.
func (m *Manager) Disconnect() error {
	m.mu.Lock()
	sess := m.sess
	m.sess = nil
	wasRecording := m.recording
	m.recording = false
	m.restingPhase = negotiation.PhaseIdle
	m.mu.Unlock()

	if sess == nil {
		return nil
	}
	m.logger.Info("disconnecting", "session_id", sess.id)
	if wasRecording && m.opts.Recorder != nil {
		if err := m.opts.Recorder.Stop(); err != nil {
			m.logger.Warn("stopping recorder", "err", err)
		}
	}
	sess.post(sess.shutdown)
	m.setStatus(StatusDisconnected)
	return nil
}

// Reconnect tears down the active session, if any, and connects again with
// the last configuration. The new session starts from a clean negotiation
// state; nothing queued in the old session carries over. A supplied local
// track is re-attached by the new session's negotiation.
func (m *Manager) Reconnect() error {
	m.mu.Lock()
	cfg := m.lastCfg
	m.mu.Unlock()
	if cfg == nil {
		return ErrNoSession
	}
	if err := m.Disconnect(); err != nil {
		return err
	}
	return m.Connect(*cfg)
}

// SupplyLocalTrack registers the externally captured track. The engine hands
// it to the connectivity object at the right point of negotiation; it
// survives reconnects.
func (m *Manager) SupplyLocalTrack(t negotiation.LocalTrack) {
	m.mu.Lock()
	m.localTrack = t
	sess := m.sess
	m.mu.Unlock()

	if sess != nil {
		sess.post(func() { sess.machine.SupplyLocalTrack(t) })
	}
}

// StartRecording begins consuming the remote track with the configured
// recorder. It fails unless a session is active and a remote track has
// arrived. Starting while already recording is a no-op.
func (m *Manager) StartRecording() error {
	if m.opts.Recorder == nil {
		return ErrNoRecorder
	}

	m.mu.Lock()
	sess := m.sess
	recording := m.recording
	m.mu.Unlock()

	if recording {
		return nil
	}
	if sess == nil {
		return ErrNoSession
	}
	track := sess.currentRemoteTrack()
	if track == nil {
		return ErrNoRemoteTrack
	}
	if err := m.opts.Recorder.Start(track); err != nil {
		return fmt.Errorf("start recorder: %w", err)
	}

	m.mu.Lock()
	m.recording = true
	m.mu.Unlock()
	return nil
}

// StopRecording stops the recorder. Idempotent.
func (m *Manager) StopRecording() error {
	m.mu.Lock()
	wasRecording := m.recording
	m.recording = false
	m.mu.Unlock()

	if !wasRecording || m.opts.Recorder == nil {
		return nil
	}
	return m.opts.Recorder.Stop()
}

func (m *Manager) Recording() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.recording
}

func (m *Manager) Status() Status {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.status
}

// Phase reports the negotiation phase: the active machine's phase, or the
// resting phase (idle after disconnect, closed after failure) without one.
func (m *Manager) Phase() negotiation.Phase {
	m.mu.Lock()
	sess := m.sess
	resting := m.restingPhase
	m.mu.Unlock()
	if sess == nil {
		return resting
	}
	return sess.machine.Phase()
}

// Snapshot is a point-in-time view of the session for the statistics
// sampler. Reading it never mutates session state.
type Snapshot struct {
	SessionID    string
	Status       Status
	Phase        negotiation.Phase
	Recording    bool
	Connectivity negotiation.States
}

func (m *Manager) Snapshot() Snapshot {
	m.mu.Lock()
	sess := m.sess
	status := m.status
	recording := m.recording
	resting := m.restingPhase
	m.mu.Unlock()

	snap := Snapshot{
		Status:       status,
		Recording:    recording,
		Phase:        resting,
		Connectivity: negotiation.UnavailableStates(),
	}
	if sess == nil {
		return snap
	}
	snap.SessionID = sess.id
	snap.Phase = sess.machine.Phase()
	if conn := sess.connectivity(); conn != nil {
		snap.Connectivity = conn.States()
	}
	return snap
}

// sessionFailed is called once, from the failing session's dispatch
// goroutine, after its resources are released.
func (m *Manager) sessionFailed(s *session, err error) {
	m.mu.Lock()
	if m.sess == s {
		m.sess = nil
	}
	wasRecording := m.recording
	m.recording = false
	m.restingPhase = negotiation.PhaseClosed
	m.mu.Unlock()

	if wasRecording && m.opts.Recorder != nil {
		if serr := m.opts.Recorder.Stop(); serr != nil {
			m.logger.Warn("stopping recorder", "err", serr)
		}
	}
	m.setStatus(StatusFailed)
	m.observer.SessionError(err)
}

func (m *Manager) phaseChanged(p negotiation.Phase) {
	if p == negotiation.PhaseStable {
		m.setStatus(StatusConnected)
	}
	m.observer.PhaseChanged(p)
}

func (m *Manager) setStatus(s Status) {
	m.mu.Lock()
	if m.status == s {
		m.mu.Unlock()
		return
	}
	m.status = s
	m.mu.Unlock()
	m.observer.StatusChanged(s)
}
