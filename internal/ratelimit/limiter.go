// Package ratelimit is the optimistic daily throttle in front of block and
// report actions. It never blocks an action itself: callers consult
// CanPerform, then RecordAction once the remote call succeeded. The remote
// service stays the authoritative enforcer.
package ratelimit

import (
	"context"
	"fmt"
	"time"

	"github.com/irfndi/gatekeeper/internal/apperr"
	"github.com/irfndi/gatekeeper/internal/models"
	"go.uber.org/zap"
)

// Store persists one counter per user and action kind.
type Store interface {
	// Load returns the stored counter, or a zero counter when none exists.
	Load(ctx context.Context, userID string, kind models.ActionKind) (models.RateLimitCounter, error)
	// Increment adds one action on day and returns the new count. A counter
	// stored for any other day restarts at one.
	Increment(ctx context.Context, userID string, kind models.ActionKind, day string) (int, error)
}

// DefaultLimits are the per-day ceilings used when none are configured.
var DefaultLimits = map[models.ActionKind]int{
	models.ActionBlock:  20,
	models.ActionReport: 10,
}

type Option func(*Limiter)

// WithLocation sets the time zone that defines a calendar day.
func WithLocation(loc *time.Location) Option {
	return func(l *Limiter) {
		if loc != nil {
			l.loc = loc
		}
	}
}

func WithClock(now func() time.Time) Option {
	return func(l *Limiter) { l.now = now }
}

func WithLogger(logger *zap.Logger) Option {
	return func(l *Limiter) {
		if logger != nil {
			l.logger = logger
		}
	}
}

type Limiter struct {
	store  Store
	limits map[models.ActionKind]int
	loc    *time.Location
	now    func() time.Time
	logger *zap.Logger
}

// New builds a limiter over store. Kinds missing from limits use
// DefaultLimits.
func New(store Store, limits map[models.ActionKind]int, opts ...Option) *Limiter {
	merged := make(map[models.ActionKind]int, len(DefaultLimits))
	for k, v := range DefaultLimits {
		merged[k] = v
	}
	for k, v := range limits {
		if v >= 0 {
			merged[k] = v
		}
	}

	l := &Limiter{
		store:  store,
		limits: merged,
		loc:    time.Local,
		now:    time.Now,
		logger: zap.NewNop(),
	}
	for _, opt := range opts {
		opt(l)
	}
	return l
}

// DailyLimit returns the fixed ceiling for kind, zero for unknown kinds.
func (l *Limiter) DailyLimit(kind models.ActionKind) int {
	return l.limits[kind]
}

// Known reports whether kind has a configured limit.
func (l *Limiter) Known(kind models.ActionKind) bool {
	_, ok := l.limits[kind]
	return ok
}

// Today returns the current calendar day in the limiter's location.
func (l *Limiter) Today() string {
	return models.Day(l.now().In(l.loc))
}

// Remaining returns max(0, limit - today's count).
func (l *Limiter) Remaining(ctx context.Context, userID string, kind models.ActionKind) int {
	return max(0, l.DailyLimit(kind)-l.count(ctx, userID, kind))
}

func (l *Limiter) CanPerform(ctx context.Context, userID string, kind models.ActionKind) bool {
	return l.Remaining(ctx, userID, kind) > 0
}

func (l *Limiter) Quota(ctx context.Context, userID string, kind models.ActionKind) models.Quota {
	remaining := l.Remaining(ctx, userID, kind)
	return models.Quota{
		Kind:         kind,
		DailyLimit:   l.DailyLimit(kind),
		Remaining:    remaining,
		LimitReached: remaining == 0,
	}
}

// RecordAction counts one performed action against today. It does not check
// the limit; recording past it only keeps Remaining at zero.
func (l *Limiter) RecordAction(ctx context.Context, userID string, kind models.ActionKind) error {
	const op = "ratelimit.record"

	if !l.Known(kind) {
		return apperr.Validation(op, fmt.Sprintf("unknown action kind %q", kind))
	}
	count, err := l.store.Increment(ctx, userID, kind, l.Today())
	if err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}
	if count >= l.DailyLimit(kind) {
		l.logger.Info("Daily limit reached",
			zap.String("user_id", userID),
			zap.String("kind", string(kind)),
			zap.Int("count", count),
		)
	}
	return nil
}

// count reads today's count. Storage failures read as zero.
func (l *Limiter) count(ctx context.Context, userID string, kind models.ActionKind) int {
	c, err := l.store.Load(ctx, userID, kind)
	if err != nil {
		l.logger.Warn("Failed to load rate limit counter, allowing action",
			zap.String("user_id", userID),
			zap.String("kind", string(kind)),
			zap.Error(err),
		)
		return 0
	}
	return c.CountOn(l.Today())
}
