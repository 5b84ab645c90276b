// Package stats periodically samples the active session's connectivity
// state for operator visibility. Sampling is read-only and keeps going
// across sessions; with no session active every value is the "unavailable"
// sentinel.
package stats

import (
	"log/slog"
	"sync"
	"time"

	"github.com/benbjohnson/clock"

	"github.com/voicelink/voicelink/internal/metrics"
	"github.com/voicelink/voicelink/internal/session"
)

const DefaultInterval = 2 * time.Second

// Source is anything that can produce a session snapshot. The session
// Manager satisfies it.
type Source interface {
	Snapshot() session.Snapshot
}

type SamplerConfig struct {
	Source   Source
	Interval time.Duration

	// OnSample, when set, receives every snapshot after it is logged. The UI
	// layer hooks in here.
	OnSample func(session.Snapshot)

	Logger  *slog.Logger
	Metrics *metrics.Metrics

	// Clock defaults to the real clock; tests inject clock.NewMock.
	Clock clock.Clock
}

type Sampler struct {
	cfg    SamplerConfig
	logger *slog.Logger
	clock  clock.Clock

	done     chan struct{}
	stopOnce sync.Once
	wg       sync.WaitGroup
}

func NewSampler(cfg SamplerConfig) *Sampler {
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}
	if cfg.Interval <= 0 {
		cfg.Interval = DefaultInterval
	}
	if cfg.Metrics == nil {
		cfg.Metrics = metrics.New()
	}
	c := cfg.Clock
	if c == nil {
		c = clock.New()
	}
	return &Sampler{
		cfg:    cfg,
		logger: logger.With("component", "stats"),
		clock:  c,
		done:   make(chan struct{}),
	}
}

func (s *Sampler) Start() {
	s.wg.Add(1)
	go s.run()
}

func (s *Sampler) run() {
	defer s.wg.Done()

	ticker := s.clock.Ticker(s.cfg.Interval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			s.sample()
		case <-s.done:
			return
		}
	}
}

func (s *Sampler) sample() {
	snap := s.cfg.Source.Snapshot()
	s.cfg.Metrics.Inc(metrics.SamplerTicks)

	s.logger.Info("session stats",
		"session_id", snap.SessionID,
		"status", snap.Status,
		"phase", snap.Phase,
		"connection", snap.Connectivity.Connection,
		"ice", snap.Connectivity.ICEConnection,
		"gathering", snap.Connectivity.ICEGathering,
		"signaling", snap.Connectivity.Signaling,
		"selected_pair", snap.Connectivity.SelectedCandidatePair,
	)

	if s.cfg.OnSample != nil {
		s.cfg.OnSample(snap)
	}
}

// Stop halts sampling and waits for the loop to exit. Idempotent.
func (s *Sampler) Stop() {
	s.stopOnce.Do(func() { close(s.done) })
	s.wg.Wait()
}
