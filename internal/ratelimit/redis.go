package ratelimit

import (
	"context"
	"fmt"
	"strconv"
	"time"

	"github.com/irfndi/gatekeeper/internal/models"
	"github.com/redis/go-redis/v9"
)

// DefaultRedisTTL keeps a counter alive past the end of its day so a late
// reader still sees the date it was written for.
const DefaultRedisTTL = 48 * time.Hour

// incrementScript rolls the hash over to ARGV[1] when it holds another day,
// then counts one action.
var incrementScript = redis.NewScript(`
	local key = KEYS[1]
	local day = ARGV[1]
	local ttl = tonumber(ARGV[2])

	local count
	if redis.call("HGET", key, "date") == day then
		count = redis.call("HINCRBY", key, "count", 1)
	else
		redis.call("HSET", key, "date", day, "count", 1)
		count = 1
	end

	redis.call("EXPIRE", key, ttl)
	return count
`)

// RedisStore keeps each counter in a hash with date and count fields.
type RedisStore struct {
	client *redis.Client
	ttl    time.Duration
}

func NewRedisStore(client *redis.Client, ttl time.Duration) *RedisStore {
	if ttl <= 0 {
		ttl = DefaultRedisTTL
	}
	return &RedisStore{client: client, ttl: ttl}
}

func redisKey(userID string, kind models.ActionKind) string {
	return fmt.Sprintf("ratelimit:daily:%s:%s", userID, kind)
}

func (s *RedisStore) Load(ctx context.Context, userID string, kind models.ActionKind) (models.RateLimitCounter, error) {
	vals, err := s.client.HMGet(ctx, redisKey(userID, kind), "date", "count").Result()
	if err != nil {
		return models.RateLimitCounter{}, fmt.Errorf("failed to load counter: %w", err)
	}

	c := models.RateLimitCounter{Kind: kind}
	if date, ok := vals[0].(string); ok {
		c.Date = date
	}
	if raw, ok := vals[1].(string); ok {
		n, err := strconv.Atoi(raw)
		if err != nil {
			return models.RateLimitCounter{}, fmt.Errorf("corrupt counter value %q: %w", raw, err)
		}
		c.Count = n
	}
	return c, nil
}

func (s *RedisStore) Increment(ctx context.Context, userID string, kind models.ActionKind, day string) (int, error) {
	n, err := incrementScript.Run(ctx, s.client, []string{redisKey(userID, kind)}, day, int(s.ttl.Seconds())).Int()
	if err != nil {
		return 0, fmt.Errorf("failed to increment counter: %w", err)
	}
	return n, nil
}
