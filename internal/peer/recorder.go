package peer

import (
	"errors"
	"fmt"
	"io"
	"log/slog"
	"sync"
	"time"

	"github.com/pion/webrtc/v4/pkg/media/oggwriter"

	"github.com/voicelink/voicelink/internal/negotiation"
)

const (
	oggSampleRate   = 48000
	oggChannelCount = 2
)

// OggRecorder writes the remote opus track to an Ogg file. It implements the
// session Recorder contract: Start spawns a read loop, Stop ends it and
// finalizes the file.
type OggRecorder struct {
	path   string
	logger *slog.Logger

	mu     sync.Mutex
	track  RemoteTrack
	stop   chan struct{}
	doneWG sync.WaitGroup
}

func NewOggRecorder(path string, logger *slog.Logger) *OggRecorder {
	if logger == nil {
		logger = slog.Default()
	}
	return &OggRecorder{
		path:   path,
		logger: logger.With("component", "recorder"),
	}
}

func (r *OggRecorder) Start(t negotiation.RemoteTrack) error {
	rt, ok := t.(RemoteTrack)
	if !ok {
		return fmt.Errorf("track %q is not webrtc-backed", t.ID())
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	if r.stop != nil {
		return nil
	}

	w, err := oggwriter.New(r.path, oggSampleRate, oggChannelCount)
	if err != nil {
		return fmt.Errorf("open ogg writer: %w", err)
	}

	stop := make(chan struct{})
	r.track = rt
	r.stop = stop
	r.doneWG.Add(1)
	go r.record(rt, w, stop)

	r.logger.Info("recording remote track", "track", t.ID(), "path", r.path)
	return nil
}

func (r *OggRecorder) record(rt RemoteTrack, w *oggwriter.OggWriter, stop chan struct{}) {
	defer r.doneWG.Done()
	defer func() {
		if err := w.Close(); err != nil {
			r.logger.Warn("closing ogg writer", "err", err)
		}
	}()

	for {
		// ReadRTP unblocks with io.EOF when the track goes away, or with a
		// deadline error after Stop arms one.
		pkt, _, err := rt.Pion().ReadRTP()
		if err != nil {
			select {
			case <-stop:
			default:
				if !errors.Is(err, io.EOF) {
					r.logger.Warn("reading remote track", "err", err)
				}
			}
			return
		}
		if err := w.WriteRTP(pkt); err != nil {
			r.logger.Warn("writing ogg page", "err", err)
			return
		}
	}
}

// Stop ends the read loop and waits for the file to be finalized. Idempotent.
func (r *OggRecorder) Stop() error {
	r.mu.Lock()
	stop := r.stop
	track := r.track
	r.stop = nil
	r.track = RemoteTrack{}
	r.mu.Unlock()

	if stop == nil {
		return nil
	}
	close(stop)
	// Unblock a read in flight; the loop exits on the deadline error.
	if track.t != nil {
		_ = track.Pion().SetReadDeadline(time.Now())
	}
	r.doneWG.Wait()
	r.logger.Info("recording stopped", "path", r.path)
	return nil
}
