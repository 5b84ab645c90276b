package metrics

import "sync"

// Counter names used by the negotiation engine. Names are intentionally
// simple; a deployment can map them onto a real metrics backend.
const (
	EnvelopesReceived      = "envelopes_received"
	EnvelopesInvalid       = "envelopes_invalid"
	EnvelopesUnknownKind   = "envelopes_unknown_kind"
	OffersSent             = "offers_sent"
	AnswersSent            = "answers_sent"
	CandidatesSent         = "candidates_sent"
	CandidatesQueued       = "candidates_queued"
	CandidatesApplied      = "candidates_applied"
	CandidateApplyWarnings = "candidate_apply_warnings"
	TracksAttached         = "tracks_attached"
	Renegotiations         = "renegotiations"
	AuthRejections         = "auth_rejections"
	ConnectionsLost        = "connections_lost"
	SessionsConnected      = "sessions_connected"
	SessionsClosed         = "sessions_closed"
	SamplerTicks           = "sampler_ticks"
)

// Metrics is a minimal, concurrency-safe counter registry.
//
// A deployment is expected to plug into a real metrics backend; this type
// exists to keep engine logic testable and to give the statistics sampler a
// snapshot source that never blocks the negotiation path.
type Metrics struct {
	mu sync.Mutex
	m  map[string]uint64
}

func New() *Metrics {
	return &Metrics{
		m: make(map[string]uint64),
	}
}

func (m *Metrics) Inc(name string) {
	m.mu.Lock()
	m.m[name]++
	m.mu.Unlock()
}

func (m *Metrics) Add(name string, delta uint64) {
	m.mu.Lock()
	m.m[name] += delta
	m.mu.Unlock()
}

func (m *Metrics) Get(name string) uint64 {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.m[name]
}

// Snapshot returns a copy of all counters.
func (m *Metrics) Snapshot() map[string]uint64 {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make(map[string]uint64, len(m.m))
	for k, v := range m.m {
		out[k] = v
	}
	return out
}
