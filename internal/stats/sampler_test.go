package stats

import (
	"sync"
	"testing"
	"time"

	"github.com/benbjohnson/clock"

	"github.com/voicelink/voicelink/internal/metrics"
	"github.com/voicelink/voicelink/internal/negotiation"
	"github.com/voicelink/voicelink/internal/session"
)

type fakeSource struct {
	mu   sync.Mutex
	snap session.Snapshot
}

func (s *fakeSource) Snapshot() session.Snapshot {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.snap
}

func (s *fakeSource) set(snap session.Snapshot) {
	s.mu.Lock()
	s.snap = snap
	s.mu.Unlock()
}

func TestSamplerTicks(t *testing.T) {
	mock := clock.NewMock()
	src := &fakeSource{}
	src.set(session.Snapshot{
		Status:       session.StatusDisconnected,
		Phase:        negotiation.PhaseIdle,
		Connectivity: negotiation.UnavailableStates(),
	})

	var mu sync.Mutex
	var seen []session.Snapshot

	m := metrics.New()
	s := NewSampler(SamplerConfig{
		Source:   src,
		Interval: time.Second,
		Metrics:  m,
		Clock:    mock,
		OnSample: func(snap session.Snapshot) {
			mu.Lock()
			seen = append(seen, snap)
			mu.Unlock()
		},
	})
	s.Start()
	defer s.Stop()

	// Let the sampling goroutine install its ticker before advancing time.
	time.Sleep(10 * time.Millisecond)

	mock.Add(time.Second)
	waitForSamples(t, &mu, &seen, 1)

	src.set(session.Snapshot{
		SessionID:    "s1",
		Status:       session.StatusConnected,
		Phase:        negotiation.PhaseStable,
		Connectivity: negotiation.States{Connection: "connected"},
	})
	mock.Add(2 * time.Second)
	waitForSamples(t, &mu, &seen, 3)

	mu.Lock()
	defer mu.Unlock()
	if seen[0].Connectivity.Connection != negotiation.StateUnavailable {
		t.Fatalf("first sample = %+v, want unavailable sentinel", seen[0])
	}
	last := seen[len(seen)-1]
	if last.SessionID != "s1" || last.Phase != negotiation.PhaseStable {
		t.Fatalf("last sample = %+v", last)
	}
	if m.Get(metrics.SamplerTicks) < 3 {
		t.Fatalf("sampler_ticks = %d", m.Get(metrics.SamplerTicks))
	}
}

func TestSamplerStopIsIdempotent(t *testing.T) {
	mock := clock.NewMock()
	s := NewSampler(SamplerConfig{
		Source: &fakeSource{},
		Clock:  mock,
	})
	s.Start()
	s.Stop()
	s.Stop()
}

func waitForSamples(t *testing.T, mu *sync.Mutex, seen *[]session.Snapshot, want int) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		mu.Lock()
		n := len(*seen)
		mu.Unlock()
		if n >= want {
			return
		}
		time.Sleep(2 * time.Millisecond)
	}
	t.Fatalf("timed out waiting for %d samples", want)
}
