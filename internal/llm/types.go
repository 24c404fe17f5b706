package llm

import "context"

// GenerationRequest is a normalized text-generation request. Zero-valued
// optional fields fall back to the client's configured defaults.
type GenerationRequest struct {
	Prompt      string
	Model       string
	Temperature float64
	MaxTokens   int
}

// TokenEventType discriminates the events of a generation stream.
type TokenEventType string

const (
	EventToken TokenEventType = "token"
	EventDone  TokenEventType = "done"
	EventError TokenEventType = "error"
)

// TokenEvent is one element of a generation stream: zero or more EventToken
// values followed by exactly one EventDone or EventError.
type TokenEvent struct {
	Type  TokenEventType
	Token string
	Err   string
}

// ModelInfo describes one model available from the generation engine.
type ModelInfo struct {
	Name string `json:"name"`
}

// Client is the generation-engine boundary used by the HTTP layer.
type Client interface {
	// Generate starts a streaming generation. The returned channel carries
	// tokens in arrival order and is closed after a single terminal event.
	// Cancelling ctx stops the producer and releases the engine connection.
	Generate(ctx context.Context, req GenerationRequest) <-chan TokenEvent
	ListModels(ctx context.Context) ([]ModelInfo, error)
	Health(ctx context.Context) bool
}
