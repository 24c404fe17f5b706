// Package stt bridges buffered audio uploads to a file-path-based local
// transcription engine and owns the lazily loaded acoustic model.
package stt

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"

	"github.com/google/uuid"
)

// ModelSizes is the fixed set of acoustic model sizes the gateway accepts.
var ModelSizes = []string{"tiny.en", "base.en", "small.en", "medium.en", "large"}

// ValidModelSize reports whether size is one of ModelSizes.
func ValidModelSize(size string) bool {
	for _, s := range ModelSizes {
		if s == size {
			return true
		}
	}
	return false
}

// Engine is a loaded acoustic model instance. Transcribe takes a path because
// local whisper builds consume files, not byte buffers.
type Engine interface {
	Transcribe(ctx context.Context, audioPath string) (string, error)
}

// Loader constructs an Engine for a model size. Injectable so tests can swap
// the whisper CLI for a stub.
type Loader func(size string) (Engine, error)

// Config carries the engine settings handed to the default loader.
type Config struct {
	ModelSize string
	ModelsDir string
	CLI       string
	Language  string
	BeamSize  int
	Workers   int
}

// Service owns the single mutable model reference. All loads and swaps go
// through its mutex; in-flight transcriptions keep their own engine reference
// and are unaffected by a concurrent ChangeModel.
type Service struct {
	load Loader

	mu        sync.Mutex
	modelSize string
	engine    Engine

	// Bounded worker slots keep slow CLI transcriptions from piling up.
	slots chan struct{}
}

func NewService(cfg Config, load Loader) (*Service, error) {
	size := strings.TrimSpace(cfg.ModelSize)
	if size == "" {
		size = "base.en"
	}
	if !ValidModelSize(size) {
		return nil, fmt.Errorf("invalid whisper model size %q", size)
	}
	workers := cfg.Workers
	if workers <= 0 {
		workers = 2
	}
	if load == nil {
		load = WhisperLoader(cfg)
	}
	return &Service{
		load:      load,
		modelSize: size,
		slots:     make(chan struct{}, workers),
	}, nil
}

// ModelSize returns the currently selected model size identifier.
func (s *Service) ModelSize() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.modelSize
}

// ensureLoaded loads the engine for the current model size if needed and
// returns it. Idempotent: a loaded engine is reused until ChangeModel.
func (s *Service) ensureLoaded() (Engine, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.engine != nil {
		return s.engine, nil
	}
	engine, err := s.load(s.modelSize)
	if err != nil {
		return nil, fmt.Errorf("load whisper model %q: %w", s.modelSize, err)
	}
	s.engine = engine
	return engine, nil
}

// ChangeModel switches the model size and invalidates the loaded instance,
// even when the size is unchanged, so re-selecting the current size picks up
// replaced weights on disk. The next transcription triggers a fresh load.
func (s *Service) ChangeModel(size string) error {
	size = strings.TrimSpace(size)
	if !ValidModelSize(size) {
		return fmt.Errorf("invalid model size %q, must be one of: %s", size, strings.Join(ModelSizes, ", "))
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.modelSize = size
	s.engine = nil
	return nil
}

// Transcribe persists audioBytes to a transient file, runs the engine against
// it and returns the cleaned transcript. Empty text with a nil error means no
// speech was detected.
func (s *Service) Transcribe(ctx context.Context, audioBytes []byte) (string, error) {
	if len(audioBytes) == 0 {
		return "", fmt.Errorf("empty audio buffer")
	}

	select {
	case s.slots <- struct{}{}:
	case <-ctx.Done():
		return "", ctx.Err()
	}
	defer func() { <-s.slots }()

	engine, err := s.ensureLoaded()
	if err != nil {
		return "", err
	}

	// The engine contract is file-path based; stage the upload in a
	// uniquely named temp file and always remove it.
	tmpPath := filepath.Join(os.TempDir(), "renai-stt-"+uuid.NewString()+".webm")
	if err := os.WriteFile(tmpPath, audioBytes, 0o600); err != nil {
		return "", fmt.Errorf("stage audio file: %w", err)
	}
	defer os.Remove(tmpPath)

	text, err := engine.Transcribe(ctx, tmpPath)
	if err != nil {
		return "", fmt.Errorf("transcription failed: %w", err)
	}

	// Collapse segment boundaries and stray newlines to single spaces.
	return strings.Join(strings.Fields(text), " "), nil
}
