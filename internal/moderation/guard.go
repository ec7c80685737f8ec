// Package moderation puts the daily rate limiter in front of the remote
// block and report calls.
package moderation

import (
	"context"

	"github.com/irfndi/gatekeeper/internal/apperr"
	"github.com/irfndi/gatekeeper/internal/authority"
	"github.com/irfndi/gatekeeper/internal/events"
	"github.com/irfndi/gatekeeper/internal/models"
	"github.com/irfndi/gatekeeper/internal/ratelimit"
	"github.com/irfndi/gatekeeper/internal/utils"
	"go.uber.org/zap"
)

// Messages shown when the local quota refuses an action.
const (
	MessageBlockLimit  = "you have reached the daily limit for blocking users"
	MessageReportLimit = "you have reached the daily limit for reports"
)

// Guard consults the limiter before calling the remote moderation API and
// records the action once the remote call succeeded.
type Guard struct {
	limiter *ratelimit.Limiter
	api     authority.Moderation
	events  events.Sink
	logger  *zap.Logger
}

type Option func(*Guard)

// WithEvents publishes every accepted or refused action to sink.
func WithEvents(sink events.Sink) Option {
	return func(g *Guard) {
		if sink != nil {
			g.events = sink
		}
	}
}

func NewGuard(limiter *ratelimit.Limiter, api authority.Moderation, logger *zap.Logger, opts ...Option) *Guard {
	if logger == nil {
		logger = zap.NewNop()
	}
	g := &Guard{limiter: limiter, api: api, events: events.Discard{}, logger: logger}
	for _, opt := range opts {
		opt(g)
	}
	return g
}

// Block blocks targetID on behalf of userID.
func (g *Guard) Block(ctx context.Context, userID, targetID string) (models.Quota, error) {
	const op = "moderation.block"

	if targetID == "" {
		return models.Quota{}, apperr.Validation(op, "target is required")
	}
	if targetID == userID {
		return models.Quota{}, apperr.Validation(op, "you cannot block yourself")
	}
	return g.throttled(ctx, throttledCall{
		op:           op,
		userID:       userID,
		kind:         models.ActionBlock,
		limitMessage: MessageBlockLimit,
		event:        events.TypeUserBlocked,
		payload:      events.ModerationPayload{TargetID: targetID},
		call: func() (models.Ack, error) {
			return g.api.BlockUser(ctx, targetID)
		},
	})
}

// Report files payload on behalf of userID.
func (g *Guard) Report(ctx context.Context, userID string, payload models.ReportPayload) (models.Quota, error) {
	const op = "moderation.report"

	if payload.TargetID == "" || payload.Reason == "" {
		return models.Quota{}, apperr.Validation(op, "target and reason are required")
	}
	return g.throttled(ctx, throttledCall{
		op:           op,
		userID:       userID,
		kind:         models.ActionReport,
		limitMessage: MessageReportLimit,
		event:        events.TypeContentReported,
		payload:      events.ModerationPayload{TargetID: payload.TargetID, ContentType: payload.ContentType},
		call: func() (models.Ack, error) {
			return g.api.ReportContent(ctx, payload)
		},
	})
}

// Unblock is not throttled.
func (g *Guard) Unblock(ctx context.Context, userID, targetID string) error {
	const op = "moderation.unblock"

	if targetID == "" {
		return apperr.Validation(op, "target is required")
	}
	ack, err := g.api.UnblockUser(ctx, targetID)
	if err != nil {
		g.logger.Warn("Unblock request failed",
			zap.String("user_id", userID),
			zap.String("target", utils.Fingerprint(targetID)),
			zap.Error(err),
		)
		return apperr.Transport(op, err)
	}
	if !ack.Success {
		return apperr.Conflict(op, authority.AckMessage(ack, "could not unblock this user"))
	}
	g.emit(ctx, events.TypeUserUnblocked, userID, events.ModerationPayload{TargetID: targetID})
	return nil
}

type throttledCall struct {
	op           string
	userID       string
	kind         models.ActionKind
	limitMessage string
	event        events.Type
	payload      events.ModerationPayload
	call         func() (models.Ack, error)
}

func (g *Guard) throttled(ctx context.Context, tc throttledCall) (models.Quota, error) {
	if !g.limiter.CanPerform(ctx, tc.userID, tc.kind) {
		quota := g.limiter.Quota(ctx, tc.userID, tc.kind)
		g.emit(ctx, events.TypeLimitReached, tc.userID, withQuota(tc.payload, quota))
		return quota, apperr.RateLimit(tc.op, tc.limitMessage)
	}

	ack, err := tc.call()
	if err != nil {
		g.logger.Warn("Moderation request failed",
			zap.String("op", tc.op),
			zap.String("user_id", tc.userID),
			zap.Error(err),
		)
		return g.limiter.Quota(ctx, tc.userID, tc.kind), apperr.Transport(tc.op, err)
	}
	if !ack.Success {
		return g.limiter.Quota(ctx, tc.userID, tc.kind), apperr.Conflict(tc.op, authority.AckMessage(ack, "the request was not accepted"))
	}

	if err := g.limiter.RecordAction(ctx, tc.userID, tc.kind); err != nil {
		// The remote action already happened.
		g.logger.Error("Failed to record moderation action",
			zap.String("op", tc.op),
			zap.String("user_id", tc.userID),
			zap.Error(err),
		)
	}
	quota := g.limiter.Quota(ctx, tc.userID, tc.kind)
	g.emit(ctx, tc.event, tc.userID, withQuota(tc.payload, quota))
	return quota, nil
}

// emit never fails the action; a lost event is only logged.
func (g *Guard) emit(ctx context.Context, t events.Type, userID string, payload events.ModerationPayload) {
	if err := g.events.Emit(ctx, t, userID, payload); err != nil {
		g.logger.Warn("Failed to publish moderation event",
			zap.String("type", string(t)),
			zap.String("user_id", userID),
			zap.Error(err),
		)
	}
}

func withQuota(p events.ModerationPayload, q models.Quota) events.ModerationPayload {
	p.Kind = string(q.Kind)
	p.Remaining = q.Remaining
	p.DailyLimit = q.DailyLimit
	return p
}
