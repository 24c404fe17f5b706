package history

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"
)

// InMemoryStore keeps a bounded ring of recent turns. Used whenever no
// DATABASE_URL is configured; history then lives only for the process.
type InMemoryStore struct {
	mu    sync.Mutex
	turns []Turn
	max   int
}

func NewInMemoryStore(max int) *InMemoryStore {
	if max <= 0 {
		max = 500
	}
	return &InMemoryStore{max: max}
}

func (s *InMemoryStore) SaveTurn(_ context.Context, turn Turn) error {
	if turn.ID == "" {
		turn.ID = uuid.NewString()
	}
	if turn.CreatedAt.IsZero() {
		turn.CreatedAt = time.Now().UTC()
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.turns = append(s.turns, turn)
	if len(s.turns) > s.max {
		s.turns = s.turns[len(s.turns)-s.max:]
	}
	return nil
}

func (s *InMemoryStore) Recent(_ context.Context, limit int) ([]Turn, error) {
	if limit <= 0 {
		limit = 50
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	start := len(s.turns) - limit
	if start < 0 {
		start = 0
	}
	out := make([]Turn, len(s.turns)-start)
	copy(out, s.turns[start:])
	return out, nil
}

func (s *InMemoryStore) Close() error { return nil }
