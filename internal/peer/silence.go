package peer

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/pion/webrtc/v4"
	"github.com/pion/webrtc/v4/pkg/media"
)

const silenceFrameInterval = 20 * time.Millisecond

// opusSilenceFrame is a minimal opus DTX frame that decoders render as
// silence.
var opusSilenceFrame = []byte{0xf8, 0xff, 0xfe}

// NewSilenceTrack builds an opus track fed with silence frames until ctx is
// cancelled. It stands in for a real capture pipeline: the engine treats it
// like any other supplied local track.
func NewSilenceTrack(ctx context.Context, logger *slog.Logger) (LocalTrack, error) {
	if logger == nil {
		logger = slog.Default()
	}
	track, err := webrtc.NewTrackLocalStaticSample(
		webrtc.RTPCodecCapability{MimeType: webrtc.MimeTypeOpus},
		"audio", "voicelink-silence",
	)
	if err != nil {
		return nil, fmt.Errorf("create silence track: %w", err)
	}

	go func() {
		ticker := time.NewTicker(silenceFrameInterval)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				// WriteSample is a no-op until the track is bound to a
				// transport, so feeding before attachment is harmless.
				if err := track.WriteSample(media.Sample{
					Data:     opusSilenceFrame,
					Duration: silenceFrameInterval,
				}); err != nil {
					logger.Warn("feeding silence track", "err", err)
					return
				}
			}
		}
	}()

	return WrapLocalTrack(track), nil
}
