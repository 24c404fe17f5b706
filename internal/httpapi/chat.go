package httpapi

import (
	"context"
	"log"
	"net/http"
	"strings"

	"github.com/renai-app/renai/internal/history"
	"github.com/renai-app/renai/internal/llm"
	"github.com/renai-app/renai/internal/sse"
)

type chatRequest struct {
	Message string `json:"message"`
	Model   string `json:"model,omitempty"`
}

const (
	outcomeDone         = "done"
	outcomeError        = "error"
	outcomeDisconnected = "disconnected"
	outcomeCancelled    = "cancelled"
)

func (s *Server) handleChatStream(w http.ResponseWriter, r *http.Request) {
	var req chatRequest
	if err := decodeJSON(r, &req); err != nil {
		respondError(w, http.StatusBadRequest, "invalid_request", "request body must be JSON")
		return
	}
	if strings.TrimSpace(req.Message) == "" {
		respondError(w, http.StatusBadRequest, "empty_message", "message must not be empty")
		return
	}

	ctx, cancel := context.WithCancel(r.Context())
	defer cancel()

	events := s.llm.Generate(ctx, llm.GenerationRequest{
		Prompt: req.Message,
		Model:  req.Model,
	})

	out, err := sse.NewWriter(w)
	if err != nil {
		respondError(w, http.StatusInternalServerError, "streaming_unsupported", err.Error())
		return
	}

	s.saveTurn(r.Context(), "user", req.Message, req.Model)

	reply, outcome := s.relayTokens(ctx, out, events)
	s.metrics.StreamsTotal.WithLabelValues(outcome).Inc()
	if outcome == outcomeDone && reply != "" {
		s.saveTurn(context.Background(), "assistant", reply, req.Model)
	}
}

// relayTokens drains the event channel into SSE frames. It returns the
// accumulated assistant text and how the stream ended. The channel carries at
// most one terminal event; a close without one means the producer was
// cancelled.
func (s *Server) relayTokens(ctx context.Context, out *sse.Writer, events <-chan llm.TokenEvent) (string, string) {
	var reply strings.Builder
	for {
		select {
		case <-ctx.Done():
			return reply.String(), outcomeDisconnected
		case ev, ok := <-events:
			if !ok {
				return reply.String(), outcomeCancelled
			}
			switch ev.Type {
			case llm.EventToken:
				if err := out.Send(map[string]string{"token": ev.Token}, "token"); err != nil {
					return reply.String(), outcomeDisconnected
				}
				reply.WriteString(ev.Token)
				s.metrics.TokensStreamed.Inc()
			case llm.EventDone:
				_ = out.Send(map[string]bool{"done": true}, "done")
				return reply.String(), outcomeDone
			case llm.EventError:
				msg := ev.Err
				if msg == "" {
					msg = "generation failed"
				}
				s.metrics.EngineErrors.WithLabelValues("llm", "generate").Inc()
				_ = out.Send(map[string]string{"error": msg}, "error")
				return reply.String(), outcomeError
			}
		}
	}
}

func (s *Server) saveTurn(ctx context.Context, role, content, model string) {
	if s.history == nil {
		return
	}
	if err := s.history.SaveTurn(ctx, history.Turn{Role: role, Content: content, Model: model}); err != nil {
		log.Printf("history: save %s turn: %v", role, err)
	}
}
