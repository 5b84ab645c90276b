package negotiation

import (
	"errors"
	"testing"

	"github.com/voicelink/voicelink/internal/metrics"
	"github.com/voicelink/voicelink/internal/signaling"
)

func TestQueueDrainPreservesOrder(t *testing.T) {
	m := metrics.New()
	q := NewCandidateQueue(m)
	conn := newFakeConn()

	for _, line := range []string{"a", "b", "c"} {
		q.Enqueue(signaling.Candidate{Candidate: line})
	}
	if q.Len() != 3 {
		t.Fatalf("Len = %d", q.Len())
	}

	q.Drain(conn, nil)
	want := []string{"a", "b", "c"}
	for i := range want {
		if conn.applied[i] != want[i] {
			t.Fatalf("applied = %v, want %v", conn.applied, want)
		}
	}
	if q.Len() != 0 {
		t.Fatal("queue not empty after drain")
	}
	if m.Get(metrics.CandidatesQueued) != 3 || m.Get(metrics.CandidatesApplied) != 3 {
		t.Fatalf("counters = %v", m.Snapshot())
	}
}

func TestQueueDrainSkipsFailures(t *testing.T) {
	q := NewCandidateQueue(nil)
	conn := newFakeConn()
	conn.candidateErr["bad"] = errors.New("nope")

	q.Enqueue(signaling.Candidate{Candidate: "a"})
	q.Enqueue(signaling.Candidate{Candidate: "bad"})
	q.Enqueue(signaling.Candidate{Candidate: "b"})

	var warned []error
	q.Drain(conn, func(err error) { warned = append(warned, err) })

	if len(conn.applied) != 2 {
		t.Fatalf("applied = %v", conn.applied)
	}
	if len(warned) != 1 || !errors.Is(warned[0], ErrCandidateApply) {
		t.Fatalf("warnings = %v", warned)
	}
}

func TestQueueClearDiscards(t *testing.T) {
	q := NewCandidateQueue(nil)
	conn := newFakeConn()

	q.Enqueue(signaling.Candidate{Candidate: "a"})
	q.Clear()
	q.Drain(conn, nil)

	if len(conn.applied) != 0 {
		t.Fatalf("cleared candidates were applied: %v", conn.applied)
	}
}
