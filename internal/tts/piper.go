package tts

import (
	"bytes"
	"context"
	"fmt"
	"os/exec"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"github.com/renai-app/renai/internal/audio"
)

// VoicePaths is the piper model resolved once at startup. A zero value means
// the primary tier is unavailable for the process lifetime.
type VoicePaths struct {
	ModelPath  string
	ConfigPath string
}

// Resolved reports whether a model file was found.
func (v VoicePaths) Resolved() bool { return v.ModelPath != "" }

// ResolveVoicePaths scans modelsDir for a piper onnx voice. The sidecar
// config is <model>.onnx.json by piper convention.
func ResolveVoicePaths(modelsDir string) VoicePaths {
	matches, err := filepath.Glob(filepath.Join(modelsDir, "*.onnx"))
	if err != nil || len(matches) == 0 {
		return VoicePaths{}
	}
	sort.Strings(matches)
	model := matches[0]
	return VoicePaths{
		ModelPath:  model,
		ConfigPath: model + ".json",
	}
}

// PiperTier synthesizes with the piper binary, reading raw PCM from its
// stdout and wrapping it in a WAV container.
type PiperTier struct {
	bin        string
	paths      VoicePaths
	timeout    time.Duration
	sampleRate int
}

func NewPiperTier(bin string, paths VoicePaths, timeout time.Duration) *PiperTier {
	if strings.TrimSpace(bin) == "" {
		bin = "piper"
	}
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	return &PiperTier{
		bin:        bin,
		paths:      paths,
		timeout:    timeout,
		sampleRate: audio.DefaultSampleRate,
	}
}

func (t *PiperTier) Name() TierName { return TierPrimary }

func (t *PiperTier) Synthesize(ctx context.Context, text string) ([]byte, error) {
	if !t.paths.Resolved() {
		return nil, fmt.Errorf("no piper voice model resolved")
	}

	runCtx, cancel := context.WithTimeout(ctx, t.timeout)
	defer cancel()

	// --output-raw streams PCM16LE samples; each request gets its own process.
	cmd := exec.CommandContext(runCtx, t.bin, "--model", t.paths.ModelPath, "--output-raw")
	cmd.Stdin = strings.NewReader(text)
	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr

	if err := cmd.Run(); err != nil {
		if runCtx.Err() == context.DeadlineExceeded {
			return nil, fmt.Errorf("piper timed out after %s", t.timeout)
		}
		detail := strings.TrimSpace(stderr.String())
		if detail == "" {
			detail = err.Error()
		}
		return nil, fmt.Errorf("piper failed: %s", detail)
	}

	pcm := stdout.Bytes()
	if len(pcm) == 0 {
		return nil, fmt.Errorf("piper produced no audio")
	}
	return audio.EncodeWAVPCM16LE(pcm, t.sampleRate)
}

// PiperAvailable reports whether the piper binary is on PATH; used only for
// startup logging.
func PiperAvailable(bin string) bool {
	if strings.TrimSpace(bin) == "" {
		bin = "piper"
	}
	_, err := exec.LookPath(bin)
	return err == nil
}
