package httpapi

import (
	"errors"
	"net/http"
	"strconv"

	"github.com/renai-app/renai/internal/tts"
)

type synthesizeRequest struct {
	Text  string `json:"text"`
	Voice string `json:"voice,omitempty"`
}

func (s *Server) handleSynthesize(w http.ResponseWriter, r *http.Request) {
	var req synthesizeRequest
	if err := decodeJSON(r, &req); err != nil {
		respondError(w, http.StatusBadRequest, "invalid_request", "request body must be JSON")
		return
	}

	res, err := s.tts.Synthesize(r.Context(), req.Text)
	if err != nil {
		var verr *tts.ValidationError
		if errors.As(err, &verr) {
			respondError(w, http.StatusBadRequest, "invalid_text", verr.Error())
			return
		}
		s.metrics.EngineErrors.WithLabelValues("tts", "synthesize").Inc()
		respondError(w, http.StatusInternalServerError, "synthesis_failed", err.Error())
		return
	}
	s.metrics.SynthesisByTier.WithLabelValues(string(res.Tier)).Inc()

	w.Header().Set("Content-Type", "audio/wav")
	w.Header().Set("Content-Disposition", `inline; filename="speech.wav"`)
	w.Header().Set("Content-Length", strconv.Itoa(len(res.Audio)))
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write(res.Audio)
}

func (s *Server) handleListVoices(w http.ResponseWriter, _ *http.Request) {
	respondJSON(w, http.StatusOK, map[string]any{"voices": tts.Voices()})
}
