package httpapi

import (
	"bufio"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net"
	"net/http"
	"net/url"
	"strconv"
	"strings"

	"github.com/go-chi/chi/v5"
	"github.com/gorilla/websocket"

	"github.com/renai-app/renai/internal/config"
	"github.com/renai-app/renai/internal/history"
	"github.com/renai-app/renai/internal/llm"
	"github.com/renai-app/renai/internal/observability"
	"github.com/renai-app/renai/internal/tts"
)

// SpeechToText is the transcription surface the handlers depend on.
type SpeechToText interface {
	Transcribe(ctx context.Context, audioBytes []byte) (string, error)
	ChangeModel(size string) error
	ModelSize() string
}

// Synthesizer is the synthesis surface the handlers depend on.
type Synthesizer interface {
	Synthesize(ctx context.Context, text string) (tts.Result, error)
}

type Server struct {
	cfg      config.Config
	llm      llm.Client
	stt      SpeechToText
	tts      Synthesizer
	history  history.Store
	metrics  *observability.Metrics
	upgrader websocket.Upgrader
}

func New(cfg config.Config, llmClient llm.Client, speech SpeechToText, synth Synthesizer, store history.Store, metrics *observability.Metrics) *Server {
	return &Server{
		cfg:     cfg,
		llm:     llmClient,
		stt:     speech,
		tts:     synth,
		history: store,
		metrics: metrics,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  4096,
			WriteBufferSize: 4096,
			CheckOrigin: func(r *http.Request) bool {
				// Same-origin browsers only; non-browser clients omit Origin.
				origin := strings.TrimSpace(r.Header.Get("Origin"))
				if origin == "" {
					return true
				}
				u, err := url.Parse(origin)
				if err != nil {
					return false
				}
				if u.Scheme != "http" && u.Scheme != "https" {
					return false
				}
				return strings.EqualFold(u.Host, r.Host)
			},
		},
	}
}

func (s *Server) Router() http.Handler {
	r := chi.NewRouter()
	r.Use(s.countRequests)

	r.Get("/", s.handleRoot)
	r.Get("/health", s.handleHealth)
	r.Get("/metrics", func(w http.ResponseWriter, r *http.Request) {
		observability.MetricsHandler().ServeHTTP(w, r)
	})

	r.Post("/api/chat/stream", s.handleChatStream)
	r.Get("/api/chat/ws", s.handleChatWS)
	r.Get("/api/chat/history", s.handleChatHistory)
	r.Get("/api/models", s.handleListModels)

	r.Post("/api/stt/transcribe", s.handleTranscribe)
	r.Post("/api/stt/change-model", s.handleChangeModel)

	r.Post("/api/tts/synthesize", s.handleSynthesize)
	r.Get("/api/tts/voices", s.handleListVoices)

	return r
}

func (s *Server) handleRoot(w http.ResponseWriter, _ *http.Request) {
	respondJSON(w, http.StatusOK, map[string]any{
		"message": "RenAI API is running",
		"version": "1.0.0",
	})
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	up := s.llm.Health(r.Context())
	status := "healthy"
	engine := "connected"
	if !up {
		status = "degraded"
		engine = "disconnected"
	}
	respondJSON(w, http.StatusOK, map[string]string{
		"status": status,
		"engine": engine,
	})
}

func (s *Server) handleListModels(w http.ResponseWriter, r *http.Request) {
	models, err := s.llm.ListModels(r.Context())
	if err != nil {
		s.metrics.EngineErrors.WithLabelValues("llm", "list_models").Inc()
		respondError(w, http.StatusInternalServerError, "engine_unavailable", err.Error())
		return
	}
	respondJSON(w, http.StatusOK, models)
}

func (s *Server) handleChatHistory(w http.ResponseWriter, r *http.Request) {
	limit := 50
	if raw := strings.TrimSpace(r.URL.Query().Get("limit")); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n <= 0 {
			respondError(w, http.StatusBadRequest, "invalid_limit", "limit must be a positive integer")
			return
		}
		limit = n
	}
	turns, err := s.history.Recent(r.Context(), limit)
	if err != nil {
		respondError(w, http.StatusInternalServerError, "history_unavailable", err.Error())
		return
	}
	respondJSON(w, http.StatusOK, map[string]any{"turns": turns})
}

// countRequests records per-route counters after the handler ran, so the chi
// route pattern is resolved.
func (s *Server) countRequests(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		sw := &statusWriter{ResponseWriter: w, status: http.StatusOK}
		next.ServeHTTP(sw, r)
		endpoint := chi.RouteContext(r.Context()).RoutePattern()
		if endpoint == "" {
			endpoint = "unmatched"
		}
		s.metrics.HTTPRequests.WithLabelValues(endpoint, strconv.Itoa(sw.status/100*100)).Inc()
	})
}

type statusWriter struct {
	http.ResponseWriter
	status int
}

func (w *statusWriter) WriteHeader(code int) {
	w.status = code
	w.ResponseWriter.WriteHeader(code)
}

// Flush keeps the SSE transport working through the middleware wrapper.
func (w *statusWriter) Flush() {
	if f, ok := w.ResponseWriter.(http.Flusher); ok {
		f.Flush()
	}
}

// Hijack keeps websocket upgrades working through the middleware wrapper.
func (w *statusWriter) Hijack() (net.Conn, *bufio.ReadWriter, error) {
	h, ok := w.ResponseWriter.(http.Hijacker)
	if !ok {
		return nil, nil, fmt.Errorf("response writer does not support hijacking")
	}
	return h.Hijack()
}

type errorResponse struct {
	Error string `json:"error"`
	Code  string `json:"code"`
}

var errEmptyBody = errors.New("empty body")

func decodeJSON(r *http.Request, out any) error {
	if r.Body == nil {
		return errEmptyBody
	}
	defer r.Body.Close()
	dec := json.NewDecoder(r.Body)
	if err := dec.Decode(out); err != nil {
		if strings.Contains(strings.ToLower(err.Error()), "eof") {
			return errEmptyBody
		}
		return err
	}
	return nil
}

func respondJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func respondError(w http.ResponseWriter, status int, code, message string) {
	respondJSON(w, status, errorResponse{Error: message, Code: code})
}
