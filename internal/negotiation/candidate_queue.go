package negotiation

import (
	"fmt"

	"github.com/voicelink/voicelink/internal/metrics"
	"github.com/voicelink/voicelink/internal/signaling"
)

// CandidateQueue buffers remote ICE candidates that arrive before a remote
// description exists. Relay delivery order is preserved; candidates are
// applied exactly once and the queue is empty after every drain.
type CandidateQueue struct {
	records []signaling.Candidate
	metrics *metrics.Metrics
}

func NewCandidateQueue(m *metrics.Metrics) *CandidateQueue {
	if m == nil {
		m = metrics.New()
	}
	return &CandidateQueue{metrics: m}
}

func (q *CandidateQueue) Len() int { return len(q.records) }

// Enqueue stores one candidate in arrival order.
func (q *CandidateQueue) Enqueue(c signaling.Candidate) {
	q.records = append(q.records, c)
	q.metrics.Inc(metrics.CandidatesQueued)
}

// Drain applies every buffered candidate to conn in arrival order and clears
// the queue. A candidate that fails to apply is reported through warn and
// skipped; a single bad candidate must not abort negotiation.
func (q *CandidateQueue) Drain(conn Connectivity, warn func(error)) {
	records := q.records
	q.records = nil
	for _, c := range records {
		applyCandidate(conn, c, q.metrics, warn)
	}
}

// Clear discards buffered candidates without applying them. Used on teardown.
func (q *CandidateQueue) Clear() {
	q.records = nil
}

func applyCandidate(conn Connectivity, c signaling.Candidate, m *metrics.Metrics, warn func(error)) {
	if err := conn.AddCandidate(c); err != nil {
		m.Inc(metrics.CandidateApplyWarnings)
		if warn != nil {
			warn(fmt.Errorf("%w: %v", ErrCandidateApply, err))
		}
		return
	}
	m.Inc(metrics.CandidatesApplied)
}
