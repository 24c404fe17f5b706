package tts

import (
	"context"
	"time"

	"github.com/renai-app/renai/internal/audio"
)

// SilenceTier is the pipeline bottom: it always returns a fixed-duration
// silent WAV, so a request that reaches it still gets well-formed audio.
type SilenceTier struct {
	duration   time.Duration
	sampleRate int
}

func NewSilenceTier(duration time.Duration) *SilenceTier {
	if duration <= 0 {
		duration = 2 * time.Second
	}
	return &SilenceTier{duration: duration, sampleRate: audio.DefaultSampleRate}
}

func (t *SilenceTier) Name() TierName { return TierSilence }

func (t *SilenceTier) Synthesize(context.Context, string) ([]byte, error) {
	return audio.SilenceWAV(t.duration, t.sampleRate), nil
}
