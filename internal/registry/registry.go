// Package registry keeps short-lived per-user objects (forms, verification
// sessions) addressable by an opaque id between HTTP requests.
package registry

import (
	"errors"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"
)

// DefaultIdleTimeout is how long an untouched entry survives.
const DefaultIdleTimeout = 15 * time.Minute

var ErrNotFound = errors.New("not found")

// Closer is anything the registry tears down on eviction.
type Closer interface {
	Close()
}

type entry[T Closer] struct {
	owner    string
	value    T
	lastSeen time.Time
}

type Option func(*options)

type options struct {
	now    func() time.Time
	logger *zap.Logger
}

func WithClock(now func() time.Time) Option {
	return func(o *options) { o.now = now }
}

func WithLogger(logger *zap.Logger) Option {
	return func(o *options) {
		if logger != nil {
			o.logger = logger
		}
	}
}

// Registry maps ids to owned values. Entries idle for longer than the idle
// timeout are closed and dropped the next time the registry is touched.
type Registry[T Closer] struct {
	mu      sync.Mutex
	name    string
	idle    time.Duration
	now     func() time.Time
	logger  *zap.Logger
	entries map[string]*entry[T]
}

func New[T Closer](name string, idle time.Duration, opts ...Option) *Registry[T] {
	o := options{now: time.Now, logger: zap.NewNop()}
	for _, opt := range opts {
		opt(&o)
	}
	if idle <= 0 {
		idle = DefaultIdleTimeout
	}
	return &Registry[T]{
		name:    name,
		idle:    idle,
		now:     o.now,
		logger:  o.logger.With(zap.String("registry", name)),
		entries: make(map[string]*entry[T]),
	}
}

// Add stores value for owner and returns its new id.
func (r *Registry[T]) Add(owner string, value T) string {
	id := uuid.NewString()

	r.mu.Lock()
	expired := r.sweepLocked()
	r.entries[id] = &entry[T]{owner: owner, value: value, lastSeen: r.now()}
	r.mu.Unlock()

	closeAll(expired)
	r.logger.Debug("Entry added", zap.String("id", id))
	return id
}

// Get returns the value stored under id if owner owns it. Entries of other
// owners are reported as missing.
func (r *Registry[T]) Get(owner, id string) (T, error) {
	r.mu.Lock()
	expired := r.sweepLocked()
	e, ok := r.entries[id]
	if ok && e.owner == owner {
		e.lastSeen = r.now()
	}
	r.mu.Unlock()

	closeAll(expired)
	if !ok || e.owner != owner {
		var zero T
		return zero, ErrNotFound
	}
	return e.value, nil
}

// Remove closes and drops the entry.
func (r *Registry[T]) Remove(owner, id string) error {
	r.mu.Lock()
	expired := r.sweepLocked()
	e, ok := r.entries[id]
	if ok && e.owner == owner {
		delete(r.entries, id)
	}
	r.mu.Unlock()

	closeAll(expired)
	if !ok || e.owner != owner {
		return ErrNotFound
	}
	e.value.Close()
	return nil
}

func (r *Registry[T]) Len() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.entries)
}

// Each calls fn for every live entry, outside the registry lock.
func (r *Registry[T]) Each(fn func(T)) {
	r.mu.Lock()
	expired := r.sweepLocked()
	values := make([]T, 0, len(r.entries))
	for _, e := range r.entries {
		values = append(values, e.value)
	}
	r.mu.Unlock()

	closeAll(expired)
	for _, v := range values {
		fn(v)
	}
}

// Close closes every entry.
func (r *Registry[T]) Close() {
	r.mu.Lock()
	all := make([]T, 0, len(r.entries))
	for id, e := range r.entries {
		all = append(all, e.value)
		delete(r.entries, id)
	}
	r.mu.Unlock()

	closeAll(all)
}

func (r *Registry[T]) sweepLocked() []T {
	cutoff := r.now().Add(-r.idle)
	var expired []T
	for id, e := range r.entries {
		if e.lastSeen.Before(cutoff) {
			expired = append(expired, e.value)
			delete(r.entries, id)
		}
	}
	if len(expired) > 0 {
		r.logger.Info("Evicted idle entries", zap.Int("count", len(expired)))
	}
	return expired
}

func closeAll[T Closer](values []T) {
	for _, v := range values {
		v.Close()
	}
}
