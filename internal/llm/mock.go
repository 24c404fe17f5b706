package llm

import "context"

// MockClient is a deterministic generation engine for tests and offline runs.
type MockClient struct {
	Tokens []string
	FailAt int // emit an error after this many tokens; -1 disables
	Models []ModelInfo
	Up     bool
}

func NewMockClient(tokens ...string) *MockClient {
	return &MockClient{
		Tokens: tokens,
		FailAt: -1,
		Models: []ModelInfo{{Name: "mock"}},
		Up:     true,
	}
}

func (m *MockClient) Generate(ctx context.Context, _ GenerationRequest) <-chan TokenEvent {
	events := make(chan TokenEvent, 1)
	go func() {
		defer close(events)
		for i, tok := range m.Tokens {
			if m.FailAt >= 0 && i == m.FailAt {
				emit(ctx, events, TokenEvent{Type: EventError, Err: "mock engine failure"})
				return
			}
			if !emit(ctx, events, TokenEvent{Type: EventToken, Token: tok}) {
				return
			}
		}
		if m.FailAt >= 0 && m.FailAt >= len(m.Tokens) {
			emit(ctx, events, TokenEvent{Type: EventError, Err: "mock engine failure"})
			return
		}
		emit(ctx, events, TokenEvent{Type: EventDone})
	}()
	return events
}

func (m *MockClient) ListModels(context.Context) ([]ModelInfo, error) {
	return m.Models, nil
}

func (m *MockClient) Health(context.Context) bool { return m.Up }
