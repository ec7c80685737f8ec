package verification

import (
	"context"
	"time"

	"github.com/irfndi/gatekeeper/internal/registry"
	"go.uber.org/zap"
)

// Registry keeps live sessions addressable by id between requests.
type Registry struct {
	deps     Deps
	opts     []Option
	sessions *registry.Registry[*Session]
}

func NewRegistry(deps Deps, idle time.Duration, logger *zap.Logger, opts ...Option) *Registry {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Registry{
		deps:     deps,
		opts:     append([]Option{WithLogger(logger)}, opts...),
		sessions: registry.New[*Session]("verifications", idle, registry.WithLogger(logger)),
	}
}

// Create opens a session for userID and runs Start. A session rejected by
// local validation is not registered.
func (r *Registry) Create(ctx context.Context, userID, phone string) (string, Snapshot, error) {
	s := New(userID, phone, r.deps, r.opts...)
	if err := s.Start(ctx); err != nil {
		s.Close()
		return "", Snapshot{}, err
	}
	id := r.sessions.Add(userID, s)
	return id, s.Snapshot(), nil
}

func (r *Registry) Get(userID, id string) (*Session, error) {
	return r.sessions.Get(userID, id)
}

// Settle drops the session if it closed itself, as a verified session does.
func (r *Registry) Settle(userID, id string, s *Session) {
	if s.Snapshot().Closed {
		_ = r.sessions.Remove(userID, id)
	}
}

func (r *Registry) Remove(userID, id string) error {
	return r.sessions.Remove(userID, id)
}

func (r *Registry) Len() int { return r.sessions.Len() }

func (r *Registry) Close() { r.sessions.Close() }
