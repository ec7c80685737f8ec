package ratelimit

import (
	"context"
	"sync"

	"github.com/irfndi/gatekeeper/internal/models"
)

type counterKey struct {
	userID string
	kind   models.ActionKind
}

// MemoryStore keeps counters in process memory.
type MemoryStore struct {
	mu       sync.Mutex
	counters map[counterKey]models.RateLimitCounter
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{counters: make(map[counterKey]models.RateLimitCounter)}
}

func (s *MemoryStore) Load(_ context.Context, userID string, kind models.ActionKind) (models.RateLimitCounter, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	c, ok := s.counters[counterKey{userID, kind}]
	if !ok {
		return models.RateLimitCounter{Kind: kind}, nil
	}
	return c, nil
}

func (s *MemoryStore) Increment(_ context.Context, userID string, kind models.ActionKind, day string) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	key := counterKey{userID, kind}
	c := s.counters[key]
	c = models.RateLimitCounter{Kind: kind, Date: day, Count: c.CountOn(day) + 1}
	s.counters[key] = c
	return c.Count, nil
}
