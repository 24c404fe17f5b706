package history

import (
	"context"
	"time"
)

// Turn is one recorded exchange fragment: a user prompt, an assistant reply,
// or a transcription result.
type Turn struct {
	ID        string    `json:"id"`
	Role      string    `json:"role"`
	Content   string    `json:"content"`
	Model     string    `json:"model,omitempty"`
	CreatedAt time.Time `json:"created_at"`
}

// Store persists and retrieves conversation turns.
type Store interface {
	SaveTurn(ctx context.Context, turn Turn) error
	Recent(ctx context.Context, limit int) ([]Turn, error)
	Close() error
}
