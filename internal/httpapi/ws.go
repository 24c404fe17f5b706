package httpapi

import (
	"context"
	"encoding/json"
	"net/http"
	"strings"
	"time"

	"github.com/gorilla/websocket"

	"github.com/renai-app/renai/internal/llm"
)

type wsServerMessage struct {
	Type  string `json:"type"`
	Token string `json:"token,omitempty"`
	Error string `json:"error,omitempty"`
	Done  bool   `json:"done,omitempty"`
}

// handleChatWS serves multi-turn chat over a websocket. Each inbound text
// message is a chatRequest; the reply streams back as token messages followed
// by a done or error terminal, after which the next request is read.
func (s *Server) handleChatWS(w http.ResponseWriter, r *http.Request) {
	conn, err := s.upgrader.Upgrade(w, r, nil)
	if err != nil {
		return
	}
	defer conn.Close()

	ctx, cancel := context.WithCancel(r.Context())
	defer cancel()

	conn.SetReadLimit(1 << 20)
	_ = conn.SetReadDeadline(time.Now().Add(120 * time.Second))
	conn.SetPongHandler(func(string) error {
		_ = conn.SetReadDeadline(time.Now().Add(120 * time.Second))
		return nil
	})

	for {
		msgType, data, err := conn.ReadMessage()
		if err != nil {
			return
		}
		_ = conn.SetReadDeadline(time.Now().Add(120 * time.Second))
		if msgType != websocket.TextMessage {
			continue
		}

		var req chatRequest
		if err := json.Unmarshal(data, &req); err != nil {
			s.writeWS(conn, wsServerMessage{Type: "error", Error: "message must be JSON"})
			continue
		}
		if strings.TrimSpace(req.Message) == "" {
			s.writeWS(conn, wsServerMessage{Type: "error", Error: "message must not be empty"})
			continue
		}

		if !s.streamToWS(ctx, conn, req) {
			return
		}
	}
}

// streamToWS runs one generation and writes its events to the socket. A false
// return means the connection is no longer usable.
func (s *Server) streamToWS(ctx context.Context, conn *websocket.Conn, req chatRequest) bool {
	genCtx, cancel := context.WithCancel(ctx)
	defer cancel()

	events := s.llm.Generate(genCtx, llm.GenerationRequest{
		Prompt: req.Message,
		Model:  req.Model,
	})

	s.saveTurn(ctx, "user", req.Message, req.Model)

	var reply strings.Builder
	for ev := range events {
		switch ev.Type {
		case llm.EventToken:
			if !s.writeWS(conn, wsServerMessage{Type: "token", Token: ev.Token}) {
				return false
			}
			reply.WriteString(ev.Token)
			s.metrics.TokensStreamed.Inc()
		case llm.EventDone:
			s.metrics.StreamsTotal.WithLabelValues(outcomeDone).Inc()
			if reply.Len() > 0 {
				s.saveTurn(context.Background(), "assistant", reply.String(), req.Model)
			}
			return s.writeWS(conn, wsServerMessage{Type: "done", Done: true})
		case llm.EventError:
			msg := ev.Err
			if msg == "" {
				msg = "generation failed"
			}
			s.metrics.StreamsTotal.WithLabelValues(outcomeError).Inc()
			s.metrics.EngineErrors.WithLabelValues("llm", "generate").Inc()
			return s.writeWS(conn, wsServerMessage{Type: "error", Error: msg})
		}
	}
	s.metrics.StreamsTotal.WithLabelValues(outcomeCancelled).Inc()
	return false
}

func (s *Server) writeWS(conn *websocket.Conn, msg wsServerMessage) bool {
	_ = conn.SetWriteDeadline(time.Now().Add(10 * time.Second))
	return conn.WriteJSON(msg) == nil
}
