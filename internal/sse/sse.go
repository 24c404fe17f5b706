// Package sse implements the Server-Sent-Events wire framing used by the
// streaming chat endpoint.
package sse

import (
	"encoding/json"
	"fmt"
	"net/http"
	"sync"
)

// Frame serializes payload as JSON into a single SSE message. When event is
// non-empty an `event:` line is prepended.
func Frame(payload any, event string) (string, error) {
	data, err := json.Marshal(payload)
	if err != nil {
		return "", fmt.Errorf("marshal sse payload: %w", err)
	}
	msg := "data: " + string(data) + "\n\n"
	if event != "" {
		msg = "event: " + event + "\n" + msg
	}
	return msg, nil
}

// Writer sends framed events over an HTTP response, flushing after each one.
// Writes are serialized so concurrent producers cannot interleave frames.
type Writer struct {
	mu      sync.Mutex
	w       http.ResponseWriter
	flusher http.Flusher
}

// NewWriter prepares w for event streaming and returns a Writer, or an error
// when the underlying transport does not support flushing.
func NewWriter(w http.ResponseWriter) (*Writer, error) {
	flusher, ok := w.(http.Flusher)
	if !ok {
		return nil, fmt.Errorf("response writer does not support streaming")
	}
	h := w.Header()
	h.Set("Content-Type", "text/event-stream")
	h.Set("Cache-Control", "no-cache")
	h.Set("Connection", "keep-alive")
	h.Set("X-Accel-Buffering", "no")
	return &Writer{w: w, flusher: flusher}, nil
}

// Send frames payload under the given event name and flushes it downstream.
func (s *Writer) Send(payload any, event string) error {
	frame, err := Frame(payload, event)
	if err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, err := fmt.Fprint(s.w, frame); err != nil {
		return err
	}
	s.flusher.Flush()
	return nil
}
