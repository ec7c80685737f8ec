package events

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
)

type Handler func(ctx context.Context, env Envelope) error

// Subscriber dispatches received envelopes to the handler registered for
// their event type, falling back to the default handler.
type Subscriber struct {
	client        *redis.Client
	logger        *zap.Logger
	mu            sync.RWMutex
	handlers      map[Type]Handler
	fallback      Handler
	subscriptions []*activeSubscription
	received      atomic.Int64
	errors        atomic.Int64
}

type activeSubscription struct {
	pubsub *redis.PubSub
	cancel context.CancelFunc
	done   chan struct{}
}

func NewSubscriber(client *redis.Client, logger *zap.Logger) *Subscriber {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Subscriber{
		client:   client,
		logger:   logger,
		handlers: make(map[Type]Handler),
	}
}

func (s *Subscriber) HandleType(t Type, handler Handler) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.handlers[t] = handler
}

// HandleDefault receives every envelope no other handler claimed.
func (s *Subscriber) HandleDefault(handler Handler) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.fallback = handler
}

func (s *Subscriber) Subscribe(ctx context.Context, channels ...string) error {
	if len(channels) == 0 {
		return fmt.Errorf("events: at least one channel required")
	}
	return s.start(ctx, s.client.Subscribe(ctx, channels...), channels)
}

func (s *Subscriber) PSubscribe(ctx context.Context, patterns ...string) error {
	if len(patterns) == 0 {
		return fmt.Errorf("events: at least one pattern required")
	}
	return s.start(ctx, s.client.PSubscribe(ctx, patterns...), patterns)
}

func (s *Subscriber) start(ctx context.Context, pubsub *redis.PubSub, names []string) error {
	if _, err := pubsub.Receive(ctx); err != nil {
		_ = pubsub.Close()
		return fmt.Errorf("events: subscribe to %v: %w", names, err)
	}

	subCtx, cancel := context.WithCancel(ctx)
	sub := &activeSubscription{
		pubsub: pubsub,
		cancel: cancel,
		done:   make(chan struct{}),
	}

	s.mu.Lock()
	s.subscriptions = append(s.subscriptions, sub)
	s.mu.Unlock()

	go s.listen(subCtx, sub)
	return nil
}

func (s *Subscriber) listen(ctx context.Context, sub *activeSubscription) {
	defer close(sub.done)
	ch := sub.pubsub.Channel()

	for {
		select {
		case <-ctx.Done():
			_ = sub.pubsub.Close()
			return
		case msg, ok := <-ch:
			if !ok {
				return
			}
			s.dispatch(ctx, msg)
		}
	}
}

func (s *Subscriber) dispatch(ctx context.Context, msg *redis.Message) {
	var env Envelope
	if err := json.Unmarshal([]byte(msg.Payload), &env); err != nil {
		s.errors.Add(1)
		s.logger.Warn("events: unmarshal message failed",
			zap.String("channel", msg.Channel),
			zap.Error(err),
		)
		return
	}

	s.received.Add(1)

	s.mu.RLock()
	handler, ok := s.handlers[env.Type]
	if !ok && s.fallback != nil {
		handler, ok = s.fallback, true
	}
	s.mu.RUnlock()

	if !ok {
		return
	}

	handlerCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()

	if err := handler(handlerCtx, env); err != nil {
		s.errors.Add(1)
		s.logger.Error("events: handler error",
			zap.String("channel", msg.Channel),
			zap.String("type", string(env.Type)),
			zap.Error(err),
		)
	}
}

func (s *Subscriber) Close() error {
	s.mu.Lock()
	subs := make([]*activeSubscription, len(s.subscriptions))
	copy(subs, s.subscriptions)
	s.subscriptions = nil
	s.mu.Unlock()

	for _, sub := range subs {
		sub.cancel()
		<-sub.done
	}
	return nil
}

type SubscriberStats struct {
	Received      int64 `json:"received"`
	Errors        int64 `json:"errors"`
	Subscriptions int   `json:"subscriptions"`
}

func (s *Subscriber) Stats() SubscriberStats {
	s.mu.RLock()
	subCount := len(s.subscriptions)
	s.mu.RUnlock()
	return SubscriberStats{
		Received:      s.received.Load(),
		Errors:        s.errors.Load(),
		Subscriptions: subCount,
	}
}
