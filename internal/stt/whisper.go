package stt

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"strconv"
	"strings"
)

// whisperEngine shells out to a whisper.cpp CLI build.
type whisperEngine struct {
	cliPath   string
	modelPath string
	language  string
	beamSize  int
}

// WhisperLoader returns a Loader that resolves the ggml model file for a size
// identifier inside cfg.ModelsDir and verifies the CLI is installed.
func WhisperLoader(cfg Config) Loader {
	return func(size string) (Engine, error) {
		cli := strings.TrimSpace(cfg.CLI)
		if cli == "" {
			cli = "whisper-cli"
		}
		cliPath, err := exec.LookPath(cli)
		if err != nil {
			return nil, fmt.Errorf("whisper CLI not found (%s)", cli)
		}

		modelPath := filepath.Join(cfg.ModelsDir, "ggml-"+size+".bin")
		if !filepath.IsAbs(modelPath) {
			if wd, err := os.Getwd(); err == nil {
				modelPath = filepath.Join(wd, modelPath)
			}
		}
		if _, err := os.Stat(modelPath); err != nil {
			return nil, fmt.Errorf("whisper model not found: %s", modelPath)
		}

		language := strings.TrimSpace(cfg.Language)
		if language == "" {
			language = "en"
		}
		beamSize := cfg.BeamSize
		if beamSize <= 0 {
			beamSize = 5
		}

		return &whisperEngine{
			cliPath:   cliPath,
			modelPath: modelPath,
			language:  language,
			beamSize:  beamSize,
		}, nil
	}
}

func (w *whisperEngine) Transcribe(ctx context.Context, audioPath string) (string, error) {
	tmpDir, err := os.MkdirTemp("", "renai-whisper-*")
	if err != nil {
		return "", err
	}
	defer os.RemoveAll(tmpDir)

	outPrefix := filepath.Join(tmpDir, "out")
	args := []string{
		"-m", w.modelPath,
		"-f", audioPath,
		"-l", w.language,
		"-bs", strconv.Itoa(w.beamSize),
		"-otxt",
		"-of", outPrefix,
		"-nt",
		// Suppress silence and non-speech; a 500ms gap ends a segment.
		"--vad",
		"--vad-min-silence-duration-ms", "500",
	}

	cmd := exec.CommandContext(ctx, w.cliPath, args...)
	cmd.Stdout = nil
	var stderr bytes.Buffer
	cmd.Stderr = &stderr
	if err := cmd.Run(); err != nil {
		if errors.Is(ctx.Err(), context.Canceled) {
			return "", context.Canceled
		}
		detail := strings.TrimSpace(stderr.String())
		// whisper.cpp can be extremely chatty; keep errors readable.
		if len(detail) > 8<<10 {
			detail = strings.TrimSpace(detail[len(detail)-(8<<10):])
		}
		if detail == "" {
			detail = err.Error()
		}
		return "", fmt.Errorf("whisper failed: %s", detail)
	}

	b, err := os.ReadFile(outPrefix + ".txt")
	if err != nil {
		return "", err
	}
	return strings.TrimSpace(string(b)), nil
}
