// Package lock claims extraction files across processes so that two loaders
// never stage the same file at once.
package lock

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

// DistLock is a single claim. It is not safe for concurrent use.
type DistLock interface {
	// Acquire reports whether the claim was taken. It does not block.
	Acquire(ctx context.Context) (bool, error)
	// Release gives the claim up if it is still ours.
	Release(ctx context.Context) error
}

// Factory returns the lock guarding key.
type Factory func(key string) DistLock

var releaseScript = redis.NewScript(`
	if redis.call("get", KEYS[1]) == ARGV[1] then
		return redis.call("del", KEYS[1])
	else
		return 0
	end
`)

// RedisLock is SET NX with a TTL and an owner token, so an expired claim
// re-taken by another process is never deleted by the first owner.
type RedisLock struct {
	client *redis.Client
	key    string
	value  string
	ttl    time.Duration
}

func NewRedisLock(client *redis.Client, key string, ttl time.Duration) *RedisLock {
	b := make([]byte, 16)
	rand.Read(b)
	return &RedisLock{
		client: client,
		key:    "lock:" + key,
		value:  hex.EncodeToString(b),
		ttl:    ttl,
	}
}

// RedisFactory builds Redis-backed locks sharing one client.
func RedisFactory(client *redis.Client, ttl time.Duration) Factory {
	return func(key string) DistLock { return NewRedisLock(client, key, ttl) }
}

func (l *RedisLock) Acquire(ctx context.Context) (bool, error) {
	ok, err := l.client.SetNX(ctx, l.key, l.value, l.ttl).Result()
	if err != nil {
		return false, fmt.Errorf("failed to acquire lock %s: %w", l.key, err)
	}
	return ok, nil
}

func (l *RedisLock) Release(ctx context.Context) error {
	if err := releaseScript.Run(ctx, l.client, []string{l.key}, l.value).Err(); err != nil {
		return fmt.Errorf("failed to release lock %s: %w", l.key, err)
	}
	return nil
}
