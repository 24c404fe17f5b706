package httpapi

import (
	"context"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/renai-app/renai/internal/stt"
)

const maxUploadBytes = 32 << 20

func (s *Server) handleTranscribe(w http.ResponseWriter, r *http.Request) {
	r.Body = http.MaxBytesReader(w, r.Body, maxUploadBytes)
	file, _, err := r.FormFile("audio")
	if err != nil {
		respondError(w, http.StatusBadRequest, "missing_audio", "multipart field audio is required")
		return
	}
	defer file.Close()

	audioBytes, err := io.ReadAll(file)
	if err != nil {
		respondError(w, http.StatusBadRequest, "unreadable_audio", err.Error())
		return
	}
	if len(audioBytes) == 0 {
		respondError(w, http.StatusBadRequest, "empty_audio", "audio upload is empty")
		return
	}

	start := time.Now()
	text, err := s.stt.Transcribe(r.Context(), audioBytes)
	if err != nil {
		s.metrics.EngineErrors.WithLabelValues("stt", "transcribe").Inc()
		respondError(w, http.StatusInternalServerError, "transcription_failed", err.Error())
		return
	}
	s.metrics.ObserveTranscription(time.Since(start))

	if strings.TrimSpace(text) == "" {
		respondJSON(w, http.StatusOK, map[string]string{
			"text":    "",
			"warning": "no speech detected",
		})
		return
	}

	s.saveTurn(context.Background(), "user", text, "")
	respondJSON(w, http.StatusOK, map[string]string{"text": text})
}

type changeModelRequest struct {
	ModelSize string `json:"model_size"`
}

func (s *Server) handleChangeModel(w http.ResponseWriter, r *http.Request) {
	var req changeModelRequest
	if err := decodeJSON(r, &req); err != nil {
		respondError(w, http.StatusBadRequest, "invalid_request", "request body must be JSON")
		return
	}
	if err := s.stt.ChangeModel(req.ModelSize); err != nil {
		respondError(w, http.StatusBadRequest, "invalid_model_size",
			err.Error()+"; valid sizes: "+strings.Join(stt.ModelSizes, ", "))
		return
	}
	respondJSON(w, http.StatusOK, map[string]string{
		"status": "success",
		"model":  req.ModelSize,
	})
}
