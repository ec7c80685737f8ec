package events

import (
	"context"
	"encoding/json"
	"fmt"
	"sync/atomic"
	"time"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
)

// Sink receives domain events.
type Sink interface {
	Emit(ctx context.Context, t Type, userID string, payload any) error
}

// Discard drops every event. It is the sink used when Redis is disabled.
type Discard struct{}

func (Discard) Emit(context.Context, Type, string, any) error { return nil }

type Publisher struct {
	client    *redis.Client
	logger    *zap.Logger
	now       func() time.Time
	published atomic.Int64
	errors    atomic.Int64
}

func NewPublisher(client *redis.Client, logger *zap.Logger) *Publisher {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Publisher{
		client: client,
		logger: logger,
		now:    time.Now,
	}
}

// Emit wraps payload in an envelope and publishes it on the type's channel.
func (p *Publisher) Emit(ctx context.Context, t Type, userID string, payload any) error {
	channel := ChannelFor(t)
	if channel == "" {
		return fmt.Errorf("events: unknown event type %q", t)
	}

	env := Envelope{Type: t, UserID: userID}
	if payload != nil {
		data, err := json.Marshal(payload)
		if err != nil {
			p.errors.Add(1)
			return fmt.Errorf("events: marshal %s payload: %w", t, err)
		}
		env.Data = data
	}
	return p.Publish(ctx, channel, env)
}

func (p *Publisher) Publish(ctx context.Context, channel string, env Envelope) error {
	if channel == "" {
		return fmt.Errorf("events: channel cannot be empty")
	}

	env.Channel = channel
	if env.Timestamp.IsZero() {
		env.Timestamp = p.now().UTC()
	}

	data, err := json.Marshal(env)
	if err != nil {
		p.errors.Add(1)
		return fmt.Errorf("events: marshal envelope: %w", err)
	}

	if err := p.client.Publish(ctx, channel, data).Err(); err != nil {
		p.errors.Add(1)
		p.logger.Error("events: publish failed",
			zap.String("channel", channel),
			zap.Error(err),
		)
		return fmt.Errorf("events: publish to %s: %w", channel, err)
	}

	p.published.Add(1)
	return nil
}

type PublisherStats struct {
	Published int64 `json:"published"`
	Errors    int64 `json:"errors"`
}

func (p *Publisher) Stats() PublisherStats {
	return PublisherStats{
		Published: p.published.Load(),
		Errors:    p.errors.Load(),
	}
}
