// Package testutil holds helpers shared by package tests.
package testutil

import (
	"crypto/rand"
	"encoding/hex"
	"os"
	"testing"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
)

// NewRedis starts an in-process Redis and returns a client for it. Both are
// closed when the test ends.
func NewRedis(t testing.TB) (*redis.Client, *miniredis.Miniredis) {
	t.Helper()
	server := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: server.Addr()})
	t.Cleanup(func() { _ = client.Close() })
	return client, server
}

// NewStoppedRedis returns a client whose server is already gone, for
// exercising fail-open paths. Retries are disabled so calls fail fast.
func NewStoppedRedis(t testing.TB) *redis.Client {
	t.Helper()
	server := miniredis.NewMiniRedis()
	if err := server.Start(); err != nil {
		t.Fatalf("failed to start miniredis: %v", err)
	}
	client := redis.NewClient(&redis.Options{Addr: server.Addr(), MaxRetries: -1})
	server.Close()
	t.Cleanup(func() { _ = client.Close() })
	return client
}

// GenerateTestSecret returns a random 64 character HMAC secret so tests never
// carry a hardcoded signing key.
func GenerateTestSecret() []byte {
	buf := make([]byte, 32)
	if _, err := rand.Read(buf); err != nil {
		if env := os.Getenv("TEST_JWT_SECRET"); len(env) >= 32 {
			return []byte(env)
		}
		panic("failed to generate random bytes for test secret and TEST_JWT_SECRET is not set")
	}
	return []byte(hex.EncodeToString(buf))
}
