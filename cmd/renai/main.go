package main

import (
	"context"
	"errors"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/renai-app/renai/internal/config"
	"github.com/renai-app/renai/internal/history"
	"github.com/renai-app/renai/internal/httpapi"
	"github.com/renai-app/renai/internal/llm"
	"github.com/renai-app/renai/internal/observability"
	"github.com/renai-app/renai/internal/stt"
	"github.com/renai-app/renai/internal/tts"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("config error: %v", err)
	}

	metrics := observability.NewMetrics(cfg.MetricsNamespace)

	ctx := context.Background()
	store, err := history.NewStore(ctx, cfg.DatabaseURL)
	if err != nil {
		log.Fatalf("history store init failed: %v", err)
	}
	defer store.Close()
	if cfg.DatabaseURL == "" {
		log.Printf("history: no DATABASE_URL, keeping turns in memory")
	}

	llmClient := llm.NewOllamaClient(llm.OllamaConfig{
		BaseURL:     cfg.OllamaBaseURL,
		Model:       cfg.DefaultModel,
		Temperature: cfg.Temperature,
		TopP:        cfg.TopP,
		MaxTokens:   cfg.MaxTokens,
	})
	probeCtx, probeCancel := context.WithTimeout(ctx, 5*time.Second)
	if llmClient.Health(probeCtx) {
		log.Printf("generation engine reachable at %s", cfg.OllamaBaseURL)
	} else {
		log.Printf("generation engine unreachable at %s, chat requests will fail until it comes up", cfg.OllamaBaseURL)
	}
	probeCancel()

	speech, err := stt.NewService(stt.Config{
		ModelSize: cfg.WhisperModelSize,
		ModelsDir: cfg.WhisperModelsDir,
		CLI:       cfg.WhisperCLI,
		Language:  cfg.WhisperLanguage,
		BeamSize:  cfg.WhisperBeamSize,
		Workers:   cfg.STTWorkers,
	}, nil)
	if err != nil {
		log.Fatalf("transcription service init failed: %v", err)
	}

	voicePaths := tts.ResolveVoicePaths(cfg.PiperModelsDir)
	if voicePaths.Resolved() {
		log.Printf("piper voice model: %s", voicePaths.ModelPath)
	} else {
		log.Printf("no piper voice model under %s, synthesis starts at the espeak tier", cfg.PiperModelsDir)
	}
	if !tts.PiperAvailable(cfg.PiperBin) {
		log.Printf("piper binary %q not found on PATH", cfg.PiperBin)
	}

	pipeline, err := tts.NewPipeline(cfg.MaxSynthesisLen, []tts.Tier{
		tts.NewPiperTier(cfg.PiperBin, voicePaths, cfg.PiperTimeout),
		tts.NewEspeakTier(cfg.EspeakBin, cfg.EspeakTimeout),
		tts.NewSilenceTier(cfg.SilenceDuration),
	}, tts.WithTierMissHook(func(tier tts.TierName, err error) {
		log.Printf("synthesis tier %s failed: %v", tier, err)
		metrics.EngineErrors.WithLabelValues("tts", string(tier)).Inc()
	}))
	if err != nil {
		log.Fatalf("synthesis pipeline init failed: %v", err)
	}

	api := httpapi.New(cfg, llmClient, speech, pipeline, store, metrics)
	httpServer := &http.Server{
		Addr:    cfg.BindAddr,
		Handler: api.Router(),
	}

	go func() {
		log.Printf("server listening on %s", cfg.BindAddr)
		if err := httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Fatalf("listen error: %v", err)
		}
	}()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	<-sigCh
	log.Printf("shutdown signal received")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.ShutdownTimeout)
	defer cancel()
	if err := httpServer.Shutdown(shutdownCtx); err != nil {
		log.Printf("graceful shutdown failed: %v", err)
		_ = httpServer.Close()
	}

	log.Printf("shutdown complete")
}
