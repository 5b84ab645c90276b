package negotiation

import (
	"fmt"
	"log/slog"
	"sync/atomic"

	"github.com/voicelink/voicelink/internal/metrics"
	"github.com/voicelink/voicelink/internal/signaling"
)

// Phase is the discrete negotiation lifecycle state attached to a session.
// Phases advance only through the transitions in this file; the sole
// regression is the closed->idle reset performed on reconnect.
type Phase string

const (
	PhaseIdle           Phase = "idle"
	PhaseGatheringLocal Phase = "gathering-local"
	PhaseOfferSent      Phase = "offer-sent"
	PhaseAnswerReceived Phase = "answer-received"
	PhaseOfferReceived  Phase = "offer-received"
	PhaseAnswerSent     Phase = "answer-sent"
	PhaseStable         Phase = "stable"
	PhaseClosed         Phase = "closed"
)

// Connectivity object state strings the machine reacts to.
const (
	ConnStateConnected    = "connected"
	ConnStateDisconnected = "disconnected"
	ConnStateFailed       = "failed"
	ConnStateClosed       = "closed"
)

// Observer receives machine-level notifications. All calls happen on the
// dispatch goroutine; implementations must not block. A nil Observer is
// valid.
type Observer interface {
	PhaseChanged(p Phase)
	RemoteTrack(t RemoteTrack)
	Warning(err error)
}

type Config struct {
	RoomID string
	PeerID string

	// Send writes an envelope to the relay. Required.
	Send func(env signaling.Envelope) error

	Observer Observer
	Logger   *slog.Logger
	Metrics  *metrics.Metrics
}

// Machine interprets inbound envelopes and connectivity callbacks and drives
// the offer/answer exchange. Every method must be called from a single
// dispatch goroutine; the machine itself takes no locks. Phase() alone is
// safe from any goroutine.
type Machine struct {
	cfg     Config
	logger  *slog.Logger
	metrics *metrics.Metrics
	queue   *CandidateQueue

	phase atomic.Value // Phase

	conn          Connectivity
	remoteDescSet bool
	connected     bool

	// Local track attachment is performed exactly once per session,
	// regardless of whether "remote description set" or "connected" fires
	// first. attachOnConnect is the deferred secondary subscription; it is
	// cancelled once attachment succeeds.
	pendingTrack    LocalTrack
	trackAttached   bool
	attachOnConnect bool
}

func New(cfg Config) *Machine {
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}
	m := cfg.Metrics
	if m == nil {
		m = metrics.New()
	}
	machine := &Machine{
		cfg:     cfg,
		logger:  logger.With("component", "negotiation"),
		metrics: m,
		queue:   NewCandidateQueue(m),
	}
	machine.phase.Store(PhaseIdle)
	return machine
}

// Phase returns the current negotiation phase. Safe from any goroutine.
func (m *Machine) Phase() Phase {
	return m.phase.Load().(Phase)
}

// QueuedCandidates reports how many remote candidates are buffered awaiting a
// remote description.
func (m *Machine) QueuedCandidates() int { return m.queue.Len() }

// TrackAttached reports whether the local track has been handed to the
// connectivity object.
func (m *Machine) TrackAttached() bool { return m.trackAttached }

// Bind hands the machine the connectivity object the session manager
// constructed. Valid only in the idle phase.
func (m *Machine) Bind(conn Connectivity) error {
	if p := m.Phase(); p != PhaseIdle {
		return fmt.Errorf("negotiation: bind in phase %s", p)
	}
	m.conn = conn
	return nil
}

// StartLocal begins a locally initiated exchange: create and set a local
// offer, send it to the relay.
func (m *Machine) StartLocal() error {
	if p := m.Phase(); p != PhaseIdle {
		return fmt.Errorf("negotiation: start in phase %s", p)
	}
	if m.conn == nil {
		return fmt.Errorf("negotiation: start without connectivity")
	}
	return m.sendOffer()
}

func (m *Machine) sendOffer() error {
	m.setPhase(PhaseGatheringLocal)

	offer, err := m.conn.CreateOffer()
	if err != nil {
		return m.fail(fmt.Errorf("%w: create offer: %v", ErrNegotiation, err))
	}
	env := signaling.Envelope{
		Type:   signaling.KindOffer,
		RoomID: m.cfg.RoomID,
		PeerID: m.cfg.PeerID,
		Offer:  &offer,
	}
	if err := m.cfg.Send(env); err != nil {
		return m.fail(fmt.Errorf("send offer: %w", err))
	}
	m.metrics.Inc(metrics.OffersSent)
	m.setPhase(PhaseOfferSent)
	return nil
}

// HandleEnvelope dispatches one inbound relay envelope. A returned error is
// fatal: the machine has already transitioned to closed and the caller must
// release the connectivity object.
func (m *Machine) HandleEnvelope(env signaling.Envelope) error {
	if m.Phase() == PhaseClosed {
		m.logger.Debug("dropping envelope after close", "kind", env.Type)
		return nil
	}
	m.metrics.Inc(metrics.EnvelopesReceived)

	switch env.Type {
	case signaling.KindRoomJoined:
		m.logger.Info("room joined", "room", env.RoomID)
		return nil
	case signaling.KindUserJoined:
		return m.handleUserJoined(env)
	case signaling.KindUserLeft:
		m.logger.Info("peer left room", "peer", env.PeerID)
		return nil
	case signaling.KindOffer:
		return m.handleOffer(env)
	case signaling.KindAnswer:
		return m.handleAnswer(env)
	case signaling.KindICECandidate:
		m.handleCandidate(env)
		return nil
	case signaling.KindAuthError:
		m.metrics.Inc(metrics.AuthRejections)
		return m.fail(fmt.Errorf("%w: %s", ErrAuthRejected, env.Message))
	case signaling.KindError:
		// Non-fatal server-side error.
		m.logger.Warn("relay reported error", "message", env.Message)
		return nil
	default:
		m.metrics.Inc(metrics.EnvelopesUnknownKind)
		m.logger.Warn("ignoring envelope of unknown kind", "kind", env.Type)
		return nil
	}
}

// handleUserJoined re-offers to the room when a local track is active, so a
// newly joined participant receives media without the existing one
// restarting capture.
func (m *Machine) handleUserJoined(env signaling.Envelope) error {
	if !m.localTrackActive() {
		m.logger.Debug("peer joined, no local track to re-offer", "peer", env.PeerID)
		return nil
	}
	if m.conn == nil {
		return nil
	}
	m.logger.Info("peer joined, renegotiating", "peer", env.PeerID)
	m.metrics.Inc(metrics.Renegotiations)
	return m.sendOffer()
}

func (m *Machine) handleOffer(env signaling.Envelope) error {
	switch m.Phase() {
	case PhaseIdle, PhaseStable:
	default:
		m.warn(fmt.Errorf("ignoring offer in phase %s", m.Phase()))
		return nil
	}
	if m.conn == nil {
		m.warn(fmt.Errorf("ignoring offer before connectivity exists"))
		return nil
	}

	m.setPhase(PhaseOfferReceived)

	answer, err := m.conn.CreateAnswer(*env.Offer)
	if err != nil {
		return m.fail(fmt.Errorf("%w: apply offer: %v", ErrNegotiation, err))
	}
	m.remoteDescSet = true

	out := signaling.Envelope{
		Type:   signaling.KindAnswer,
		RoomID: m.cfg.RoomID,
		PeerID: m.cfg.PeerID,
		Answer: &signaling.AnswerPayload{Type: answer.Type, SDP: answer.SDP},
	}
	if err := m.cfg.Send(out); err != nil {
		return m.fail(fmt.Errorf("send answer: %w", err))
	}
	m.metrics.Inc(metrics.AnswersSent)

	m.queue.Drain(m.conn, m.warn)
	m.maybeAttach()
	m.setPhase(PhaseAnswerSent)
	return nil
}

func (m *Machine) handleAnswer(env signaling.Envelope) error {
	if m.Phase() != PhaseOfferSent {
		m.warn(fmt.Errorf("ignoring answer in phase %s", m.Phase()))
		return nil
	}

	m.setPhase(PhaseAnswerReceived)

	if err := m.conn.SetRemoteDescription(env.Answer.Description()); err != nil {
		return m.fail(fmt.Errorf("%w: apply answer: %v", ErrNegotiation, err))
	}
	m.remoteDescSet = true

	// Candidates buffered from earlier envelopes first, then the batch the
	// remote gathered while producing the answer: global arrival order.
	m.queue.Drain(m.conn, m.warn)
	for _, c := range env.Answer.ICECandidates {
		applyCandidate(m.conn, c, m.metrics, m.warn)
	}

	m.maybeAttach()
	m.setPhase(PhaseStable)
	return nil
}

// handleCandidate buffers or applies one remote candidate. Buffering, not
// reordering, is how arrival before the remote description is tolerated.
func (m *Machine) handleCandidate(env signaling.Envelope) {
	if m.conn == nil || !m.remoteDescSet {
		m.queue.Enqueue(*env.Candidate)
		return
	}
	applyCandidate(m.conn, *env.Candidate, m.metrics, m.warn)
}

// HandleConnectionState reacts to connectivity object state changes. A
// returned error is fatal, as with HandleEnvelope.
func (m *Machine) HandleConnectionState(state string) error {
	if m.Phase() == PhaseClosed {
		return nil
	}
	m.logger.Debug("connectivity state changed", "state", state)

	switch state {
	case ConnStateConnected:
		m.connected = true
		if m.attachOnConnect {
			m.maybeAttach()
		}
		if m.Phase() == PhaseAnswerSent {
			m.setPhase(PhaseStable)
		}
	case ConnStateDisconnected:
		m.connected = false
	case ConnStateFailed, ConnStateClosed:
		return m.fail(fmt.Errorf("%w: state %s", ErrConnectivityFailed, state))
	}
	return nil
}

// HandleRemoteTrack surfaces a remote media track to the observer so the
// playback collaborator can render it.
func (m *Machine) HandleRemoteTrack(t RemoteTrack) {
	if m.Phase() == PhaseClosed {
		return
	}
	m.logger.Info("remote track arrived", "track", t.ID(), "kind", t.Kind())
	if m.cfg.Observer != nil {
		m.cfg.Observer.RemoteTrack(t)
	}
}

// HandleLocalCandidate forwards a locally gathered candidate to the relay.
func (m *Machine) HandleLocalCandidate(c signaling.Candidate) {
	if m.Phase() == PhaseClosed {
		return
	}
	env := signaling.Envelope{
		Type:      signaling.KindICECandidate,
		RoomID:    m.cfg.RoomID,
		PeerID:    m.cfg.PeerID,
		Candidate: &c,
	}
	if err := m.cfg.Send(env); err != nil {
		// Candidate loss is survivable; the remote may still connect on
		// other pairs.
		m.warn(fmt.Errorf("send candidate: %w", err))
	} else {
		m.metrics.Inc(metrics.CandidatesSent)
	}
}

// SupplyLocalTrack registers the externally captured track. Attachment is
// deferred until a remote description exists and the transport is connected,
// and happens exactly once per session.
func (m *Machine) SupplyLocalTrack(t LocalTrack) {
	if m.Phase() == PhaseClosed {
		return
	}
	m.pendingTrack = t
	m.maybeAttach()
}

func (m *Machine) localTrackActive() bool {
	return m.trackAttached || m.pendingTrack != nil
}

func (m *Machine) maybeAttach() {
	if m.trackAttached || m.pendingTrack == nil || !m.remoteDescSet {
		return
	}
	if !m.connected {
		m.attachOnConnect = true
		return
	}
	if err := m.conn.AttachTrack(m.pendingTrack); err != nil {
		m.warn(fmt.Errorf("attach local track: %w", err))
		return
	}
	m.trackAttached = true
	m.attachOnConnect = false
	m.metrics.Inc(metrics.TracksAttached)
	m.logger.Info("local track attached", "track", m.pendingTrack.ID())
}

// Shutdown moves the machine to closed and drops its connectivity reference.
// The session manager owns the handle and closes it separately.
func (m *Machine) Shutdown() {
	if m.Phase() == PhaseClosed {
		return
	}
	m.queue.Clear()
	m.conn = nil
	m.setPhase(PhaseClosed)
}

// Reset performs the closed->idle transition used by reconnect. Queued
// candidates from the prior session are discarded, never reapplied.
func (m *Machine) Reset() {
	m.queue.Clear()
	m.conn = nil
	m.remoteDescSet = false
	m.connected = false
	m.pendingTrack = nil
	m.trackAttached = false
	m.attachOnConnect = false
	m.setPhase(PhaseIdle)
}

// fail releases the machine's view of the session and reports err to the
// caller, which owns the actual teardown.
func (m *Machine) fail(err error) error {
	m.logger.Error("negotiation failed", "phase", m.Phase(), "err", err)
	m.queue.Clear()
	m.conn = nil
	m.setPhase(PhaseClosed)
	return err
}

func (m *Machine) setPhase(p Phase) {
	if m.Phase() == p {
		return
	}
	m.phase.Store(p)
	m.logger.Debug("phase changed", "phase", p)
	if m.cfg.Observer != nil {
		m.cfg.Observer.PhaseChanged(p)
	}
}

func (m *Machine) warn(err error) {
	m.logger.Warn("negotiation warning", "err", err)
	if m.cfg.Observer != nil {
		m.cfg.Observer.Warning(err)
	}
}
