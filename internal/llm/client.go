package llm

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"
)

// OllamaClient talks to an Ollama server over its native HTTP API.
type OllamaClient struct {
	baseURL string
	client  *http.Client

	defaultModel       string
	defaultTemperature float64
	defaultTopP        float64
	defaultMaxTokens   int
}

// OllamaConfig carries the process-wide generation defaults.
type OllamaConfig struct {
	BaseURL     string
	Model       string
	Temperature float64
	TopP        float64
	MaxTokens   int
}

func NewOllamaClient(cfg OllamaConfig) *OllamaClient {
	return &OllamaClient{
		baseURL: strings.TrimRight(strings.TrimSpace(cfg.BaseURL), "/"),
		// No overall timeout: streaming generations legitimately run for
		// minutes. Callers bound them with ctx.
		client:             &http.Client{},
		defaultModel:       cfg.Model,
		defaultTemperature: cfg.Temperature,
		defaultTopP:        cfg.TopP,
		defaultMaxTokens:   cfg.MaxTokens,
	}
}

type chatMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type chatPayload struct {
	Model    string         `json:"model"`
	Messages []chatMessage  `json:"messages"`
	Stream   bool           `json:"stream"`
	Options  map[string]any `json:"options"`
}

type chatChunk struct {
	Message struct {
		Content string `json:"content"`
	} `json:"message"`
	Done  bool   `json:"done"`
	Error string `json:"error"`
}

// Generate streams tokens from /api/chat. The producer goroutine writes into
// a channel of capacity one, so it pulls the next engine chunk only after the
// consumer has taken the previous token.
func (c *OllamaClient) Generate(ctx context.Context, req GenerationRequest) <-chan TokenEvent {
	events := make(chan TokenEvent, 1)
	go func() {
		defer close(events)
		if err := c.stream(ctx, req, events); err != nil {
			emit(ctx, events, TokenEvent{Type: EventError, Err: err.Error()})
			return
		}
		emit(ctx, events, TokenEvent{Type: EventDone})
	}()
	return events
}

func (c *OllamaClient) stream(ctx context.Context, req GenerationRequest, events chan<- TokenEvent) error {
	model := strings.TrimSpace(req.Model)
	if model == "" {
		model = c.defaultModel
	}
	temperature := req.Temperature
	if temperature == 0 {
		temperature = c.defaultTemperature
	}
	maxTokens := req.MaxTokens
	if maxTokens <= 0 {
		maxTokens = c.defaultMaxTokens
	}

	payload, err := json.Marshal(chatPayload{
		Model:    model,
		Messages: []chatMessage{{Role: "user", Content: req.Prompt}},
		Stream:   true,
		Options: map[string]any{
			"temperature": temperature,
			"top_p":       c.defaultTopP,
			"num_predict": maxTokens,
		},
	})
	if err != nil {
		return fmt.Errorf("marshal request: %w", err)
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/api/chat", bytes.NewReader(payload))
	if err != nil {
		return fmt.Errorf("create request: %w", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")

	res, err := c.client.Do(httpReq)
	if err != nil {
		return fmt.Errorf("ollama request: %w", err)
	}
	defer res.Body.Close()

	if res.StatusCode < 200 || res.StatusCode >= 300 {
		body, _ := io.ReadAll(io.LimitReader(res.Body, 4<<10))
		return fmt.Errorf("ollama status %d: %s", res.StatusCode, strings.TrimSpace(string(body)))
	}

	scanner := bufio.NewScanner(res.Body)
	scanner.Buffer(make([]byte, 0, 64*1024), 4*1024*1024)
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if line == "" {
			continue
		}
		var chunk chatChunk
		if err := json.Unmarshal([]byte(line), &chunk); err != nil {
			return fmt.Errorf("decode stream chunk: %w", err)
		}
		if chunk.Error != "" {
			return fmt.Errorf("ollama: %s", chunk.Error)
		}
		if chunk.Message.Content != "" {
			if !emit(ctx, events, TokenEvent{Type: EventToken, Token: chunk.Message.Content}) {
				return ctx.Err()
			}
		}
		if chunk.Done {
			return nil
		}
	}
	if err := scanner.Err(); err != nil {
		return fmt.Errorf("stream read: %w", err)
	}
	return nil
}

func emit(ctx context.Context, events chan<- TokenEvent, ev TokenEvent) bool {
	select {
	case events <- ev:
		return true
	case <-ctx.Done():
		return false
	}
}

// ListModels returns the names of the models the engine has available.
func (c *OllamaClient) ListModels(ctx context.Context) ([]ModelInfo, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+"/api/tags", nil)
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}
	res, err := c.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("list models: %w", err)
	}
	defer res.Body.Close()

	body, err := io.ReadAll(io.LimitReader(res.Body, 2<<20))
	if err != nil {
		return nil, fmt.Errorf("read response: %w", err)
	}
	if res.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("ollama status %d: %s", res.StatusCode, strings.TrimSpace(string(body)))
	}

	var parsed struct {
		Models []struct {
			Name string `json:"name"`
		} `json:"models"`
	}
	if err := json.Unmarshal(body, &parsed); err != nil {
		return nil, fmt.Errorf("decode models: %w", err)
	}

	models := make([]ModelInfo, 0, len(parsed.Models))
	for _, m := range parsed.Models {
		name := strings.TrimSpace(m.Name)
		if name == "" {
			continue
		}
		models = append(models, ModelInfo{Name: name})
	}
	return models, nil
}

// Health reports whether the engine answers a cheap probe.
func (c *OllamaClient) Health(ctx context.Context) bool {
	probeCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	_, err := c.ListModels(probeCtx)
	return err == nil
}
