package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

// Config contains all runtime settings for the voice gateway.
type Config struct {
	BindAddr        string
	ShutdownTimeout time.Duration

	OllamaBaseURL string
	DefaultModel  string
	Temperature   float64
	TopP          float64
	MaxTokens     int

	WhisperModelSize string
	WhisperModelsDir string
	WhisperCLI       string
	WhisperLanguage  string
	WhisperBeamSize  int
	STTWorkers       int

	PiperBin        string
	PiperModelsDir  string
	PiperTimeout    time.Duration
	EspeakBin       string
	EspeakTimeout   time.Duration
	SilenceDuration time.Duration
	MaxSynthesisLen int

	DatabaseURL      string
	MetricsNamespace string
}

// Load reads a .env file when present, then environment variables, and
// applies safe defaults.
func Load() (Config, error) {
	// Same lookup the original deployment used: a .env next to the binary
	// overrides nothing already exported in the environment.
	_ = godotenv.Load()

	cfg := Config{
		BindAddr:         envOrDefault("APP_BIND_ADDR", ":8000"),
		OllamaBaseURL:    envOrDefault("OLLAMA_BASE_URL", "http://localhost:11434"),
		DefaultModel:     envOrDefault("DEFAULT_MODEL", "llama2"),
		Temperature:      0.7,
		TopP:             0.9,
		MaxTokens:        2048,
		WhisperModelSize: envOrDefault("WHISPER_MODEL_SIZE", "base.en"),
		WhisperModelsDir: envOrDefault("WHISPER_MODELS_DIR", "models/whisper"),
		WhisperCLI:       envOrDefault("WHISPER_CLI", "whisper-cli"),
		WhisperLanguage:  envOrDefault("WHISPER_LANGUAGE", "en"),
		WhisperBeamSize:  5,
		STTWorkers:       2,
		PiperBin:         envOrDefault("PIPER_BIN", "piper"),
		PiperModelsDir:   envOrDefault("PIPER_MODELS_DIR", "models/piper"),
		EspeakBin:        envOrDefault("ESPEAK_BIN", "espeak"),
		DatabaseURL:      trimmedEnv("DATABASE_URL"),
		MetricsNamespace: envOrDefault("APP_METRICS_NAMESPACE", "renai"),
		ShutdownTimeout:  15 * time.Second,
		PiperTimeout:     30 * time.Second,
		EspeakTimeout:    10 * time.Second,
		SilenceDuration:  2 * time.Second,
		MaxSynthesisLen:  5000,
	}

	var err error
	cfg.ShutdownTimeout, err = durationFromEnv("APP_SHUTDOWN_TIMEOUT", cfg.ShutdownTimeout)
	if err != nil {
		return Config{}, err
	}
	cfg.PiperTimeout, err = durationFromEnv("PIPER_TIMEOUT", cfg.PiperTimeout)
	if err != nil {
		return Config{}, err
	}
	cfg.EspeakTimeout, err = durationFromEnv("ESPEAK_TIMEOUT", cfg.EspeakTimeout)
	if err != nil {
		return Config{}, err
	}
	cfg.Temperature, err = floatFromEnv("TEMPERATURE", cfg.Temperature)
	if err != nil {
		return Config{}, err
	}
	cfg.TopP, err = floatFromEnv("TOP_P", cfg.TopP)
	if err != nil {
		return Config{}, err
	}
	cfg.MaxTokens, err = intFromEnv("MAX_TOKENS", cfg.MaxTokens)
	if err != nil {
		return Config{}, err
	}
	cfg.WhisperBeamSize, err = intFromEnv("WHISPER_BEAM_SIZE", cfg.WhisperBeamSize)
	if err != nil {
		return Config{}, err
	}
	cfg.STTWorkers, err = intFromEnv("STT_WORKERS", cfg.STTWorkers)
	if err != nil {
		return Config{}, err
	}
	cfg.MaxSynthesisLen, err = intFromEnv("MAX_SYNTHESIS_LEN", cfg.MaxSynthesisLen)
	if err != nil {
		return Config{}, err
	}

	if strings.TrimSpace(cfg.OllamaBaseURL) == "" {
		return Config{}, fmt.Errorf("OLLAMA_BASE_URL must not be empty")
	}
	if cfg.MaxTokens <= 0 {
		return Config{}, fmt.Errorf("MAX_TOKENS must be positive")
	}
	if cfg.Temperature < 0 {
		return Config{}, fmt.Errorf("TEMPERATURE must be >= 0")
	}
	if cfg.WhisperBeamSize <= 0 {
		return Config{}, fmt.Errorf("WHISPER_BEAM_SIZE must be positive")
	}
	if cfg.STTWorkers <= 0 {
		return Config{}, fmt.Errorf("STT_WORKERS must be positive")
	}
	if cfg.MaxSynthesisLen <= 0 {
		return Config{}, fmt.Errorf("MAX_SYNTHESIS_LEN must be positive")
	}

	return cfg, nil
}

func envOrDefault(key, fallback string) string {
	v := os.Getenv(key)
	if v == "" {
		return fallback
	}
	return v
}

func trimmedEnv(key string) string {
	return strings.TrimSpace(os.Getenv(key))
}

func durationFromEnv(key string, fallback time.Duration) (time.Duration, error) {
	v := trimmedEnv(key)
	if v == "" {
		return fallback, nil
	}
	d, err := time.ParseDuration(v)
	if err != nil {
		return 0, fmt.Errorf("%s parse error: %w", key, err)
	}
	return d, nil
}

func intFromEnv(key string, fallback int) (int, error) {
	v := trimmedEnv(key)
	if v == "" {
		return fallback, nil
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return 0, fmt.Errorf("%s parse error: %w", key, err)
	}
	return n, nil
}

func floatFromEnv(key string, fallback float64) (float64, error) {
	v := trimmedEnv(key)
	if v == "" {
		return fallback, nil
	}
	f, err := strconv.ParseFloat(v, 64)
	if err != nil {
		return 0, fmt.Errorf("%s parse error: %w", key, err)
	}
	return f, nil
}
