package session

import (
	"fmt"
	"log/slog"
	"sync"

	"github.com/google/uuid"

	"github.com/voicelink/voicelink/internal/metrics"
	"github.com/voicelink/voicelink/internal/negotiation"
	"github.com/voicelink/voicelink/internal/signaling"
)

// session is one connect-to-disconnect lifetime. It owns the signaling
// channel, the connectivity object and the negotiation machine, and runs the
// dispatch goroutine that serializes every event into the machine.
type session struct {
	id      string
	manager *Manager
	logger  *slog.Logger
	metrics *metrics.Metrics

	machine *negotiation.Machine
	channel Channel
	factory negotiation.Factory
	track   negotiation.LocalTrack

	calls     chan func()
	done      chan struct{}
	closeOnce sync.Once

	mu          sync.Mutex
	conn        negotiation.Connectivity
	remoteTrack negotiation.RemoteTrack
}

func newSession(m *Manager, cfg Config, track negotiation.LocalTrack) *session {
	s := &session{
		id:      uuid.NewString(),
		manager: m,
		metrics: m.metrics,
		factory: m.opts.Connectivity,
		track:   track,
		calls:   make(chan func(), 64),
		done:    make(chan struct{}),
	}
	s.logger = m.logger.With("session_id", s.id)

	s.machine = negotiation.New(negotiation.Config{
		RoomID:   cfg.RoomID,
		PeerID:   cfg.PeerID,
		Send:     func(env signaling.Envelope) error { return s.channel.Send(env) },
		Observer: machineObserver{s: s},
		Logger:   s.logger,
		Metrics:  s.metrics,
	})

	s.channel = m.newChannel(signaling.ChannelConfig{
		ServerURL:  cfg.ServerURL,
		RoomID:     cfg.RoomID,
		PeerID:     cfg.PeerID,
		Credential: cfg.Credential,
		Logger:     s.logger,
		Metrics:    s.metrics,
	}, signaling.Events{
		OnOpen: func() {
			s.post(s.handleChannelOpen)
		},
		OnMessage: func(env signaling.Envelope) {
			s.post(func() { s.handleEnvelope(env) })
		},
		OnClose: func(err error) {
			s.post(func() { s.handleChannelClosed(err) })
		},
		OnError: func(err error) {
			m.observer.Warning(err)
		},
	})
	return s
}

// open starts the dispatch goroutine and dials the relay. The goroutine must
// be running first: the channel fires OnOpen synchronously from Open.
func (s *session) open() error {
	go s.loop()
	if err := s.channel.Open(); err != nil {
		s.closeOnce.Do(func() { close(s.done) })
		return err
	}
	return nil
}

func (s *session) loop() {
	for {
		select {
		case fn := <-s.calls:
			fn()
		case <-s.done:
			return
		}
	}
}

// post schedules fn on the dispatch goroutine. Events that arrive after
// teardown are dropped, which keeps late channel and pion callbacks harmless.
func (s *session) post(fn func()) {
	select {
	case s.calls <- fn:
	case <-s.done:
	}
}

func (s *session) handleChannelOpen() {
	conn, err := s.factory(sink{s: s})
	if err != nil {
		s.fatal(fmt.Errorf("create connectivity: %w", err))
		return
	}
	s.setConn(conn)

	if err := s.machine.Bind(conn); err != nil {
		s.fatal(err)
		return
	}
	if s.track != nil {
		s.machine.SupplyLocalTrack(s.track)
	}
	if err := s.machine.StartLocal(); err != nil {
		s.fatal(err)
		return
	}
}

func (s *session) handleEnvelope(env signaling.Envelope) {
	if err := s.machine.HandleEnvelope(env); err != nil {
		s.fatal(err)
	}
}

func (s *session) handleChannelClosed(err error) {
	if err == nil {
		// Requested close; teardown is already in flight.
		return
	}
	s.metrics.Inc(metrics.ConnectionsLost)
	s.fatal(fmt.Errorf("%w: %v", ErrConnectionLost, err))
}

// fatal ends the session and reports err upward. Runs on the dispatch
// goroutine; the session never restarts itself.
func (s *session) fatal(err error) {
	s.closeOnce.Do(func() {
		s.logger.Error("session failed", "err", err)
		s.teardown()
		close(s.done)
		s.manager.sessionFailed(s, err)
	})
}

// shutdown is the requested-close path, posted by the manager.
func (s *session) shutdown() {
	s.closeOnce.Do(func() {
		s.teardown()
		close(s.done)
	})
}

func (s *session) teardown() {
	s.machine.Shutdown()
	if conn := s.connectivity(); conn != nil {
		if err := conn.Close(); err != nil {
			s.logger.Warn("closing connectivity", "err", err)
		}
	}
	s.channel.Close()
	s.metrics.Inc(metrics.SessionsClosed)
}

func (s *session) setConn(conn negotiation.Connectivity) {
	s.mu.Lock()
	s.conn = conn
	s.mu.Unlock()
}

func (s *session) connectivity() negotiation.Connectivity {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.conn
}

func (s *session) setRemoteTrack(t negotiation.RemoteTrack) {
	s.mu.Lock()
	s.remoteTrack = t
	s.mu.Unlock()
}

func (s *session) currentRemoteTrack() negotiation.RemoteTrack {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.remoteTrack
}

// sink funnels connectivity callbacks onto the dispatch goroutine. pion
// invokes these from its own goroutines.
type sink struct {
	s *session
}

func (k sink) LocalCandidate(c signaling.Candidate) {
	k.s.post(func() { k.s.machine.HandleLocalCandidate(c) })
}

func (k sink) ConnectionStateChanged(state string) {
	k.s.post(func() {
		if err := k.s.machine.HandleConnectionState(state); err != nil {
			k.s.fatal(err)
		}
	})
}

func (k sink) RemoteTrackArrived(t negotiation.RemoteTrack) {
	k.s.post(func() { k.s.machine.HandleRemoteTrack(t) })
}

// machineObserver bridges machine notifications to the session and the
// application observer. Calls arrive on the dispatch goroutine.
type machineObserver struct {
	s *session
}

func (o machineObserver) PhaseChanged(p negotiation.Phase) {
	o.s.manager.phaseChanged(p)
}

func (o machineObserver) RemoteTrack(t negotiation.RemoteTrack) {
	o.s.setRemoteTrack(t)
	o.s.manager.observer.RemoteTrack(t)
}

func (o machineObserver) Warning(err error) {
	o.s.manager.observer.Warning(err)
}
