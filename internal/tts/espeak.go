package tts

import (
	"bytes"
	"context"
	"fmt"
	"os/exec"
	"strings"
	"time"
)

// EspeakTier is the simpler fallback backend: espeak writes a complete WAV
// stream to stdout.
type EspeakTier struct {
	bin     string
	timeout time.Duration
}

func NewEspeakTier(bin string, timeout time.Duration) *EspeakTier {
	if strings.TrimSpace(bin) == "" {
		bin = "espeak"
	}
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	return &EspeakTier{bin: bin, timeout: timeout}
}

func (t *EspeakTier) Name() TierName { return TierFallback }

func (t *EspeakTier) Synthesize(ctx context.Context, text string) ([]byte, error) {
	runCtx, cancel := context.WithTimeout(ctx, t.timeout)
	defer cancel()

	cmd := exec.CommandContext(runCtx, t.bin, "--stdout", text)
	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr

	if err := cmd.Run(); err != nil {
		if runCtx.Err() == context.DeadlineExceeded {
			return nil, fmt.Errorf("espeak timed out after %s", t.timeout)
		}
		detail := strings.TrimSpace(stderr.String())
		if detail == "" {
			detail = err.Error()
		}
		return nil, fmt.Errorf("espeak failed: %s", detail)
	}

	wav := stdout.Bytes()
	if len(wav) == 0 {
		return nil, fmt.Errorf("espeak produced no audio")
	}
	return wav, nil
}
