package redis

import (
	"context"
	"errors"
	"fmt"
	"time"

	"payment-tracker/internal/core/ports"

	goredis "github.com/redis/go-redis/v9"
)

// inFlight marks a claimed key whose response is not stored yet. It cannot
// collide with a stored response, which is always a JSON object.
const inFlight = "in-flight"

// IdempotencyCache implements ports.IdempotencyCache using Redis. Keys are
// namespaced by the acting identity so two clients sharing a Redis never
// replay each other's responses.
type IdempotencyCache struct {
	client *goredis.Client
	prefix string
}

// NewIdempotencyCache creates a new Redis-backed idempotency cache.
func NewIdempotencyCache(client *goredis.Client, namespace string) *IdempotencyCache {
	return &IdempotencyCache{
		client: client,
		prefix: "idempotency:" + namespace + ":",
	}
}

// Get retrieves a cached response by idempotency key.
// Returns nil, nil if the key does not exist and ports.ErrRequestInFlight
// while it is only claimed.
func (c *IdempotencyCache) Get(ctx context.Context, key string) ([]byte, error) {
	val, err := c.client.Get(ctx, c.prefix+key).Bytes()
	if errors.Is(err, goredis.Nil) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("redis idempotency get: %w", err)
	}
	if string(val) == inFlight {
		return nil, ports.ErrRequestInFlight
	}
	return val, nil
}

// Claim reserves key for the caller. It returns false when another request
// already claimed or filled it.
func (c *IdempotencyCache) Claim(ctx context.Context, key string, ttl time.Duration) (bool, error) {
	ok, err := c.client.SetNX(ctx, c.prefix+key, inFlight, ttl).Result()
	if err != nil {
		return false, fmt.Errorf("redis idempotency claim: %w", err)
	}
	return ok, nil
}

// Set stores the response for a claimed key, replacing the claim marker.
func (c *IdempotencyCache) Set(ctx context.Context, key string, value []byte, ttl time.Duration) error {
	if err := c.client.Set(ctx, c.prefix+key, value, ttl).Err(); err != nil {
		return fmt.Errorf("redis idempotency set: %w", err)
	}
	return nil
}

// Release drops a claim so the key can be retried.
func (c *IdempotencyCache) Release(ctx context.Context, key string) error {
	if err := c.client.Del(ctx, c.prefix+key).Err(); err != nil {
		return fmt.Errorf("redis idempotency release: %w", err)
	}
	return nil
}
