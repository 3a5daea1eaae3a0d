package locker

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
)

// RedisLocker is a Locker backed by SET NX with a TTL, for deployments where
// several processes serve the same ledger. The TTL bounds how long a crashed
// holder can block other processes.
type RedisLocker struct {
	client *redis.Client
	ttl    time.Duration
	retry  time.Duration
}

func NewRedisLocker(client *redis.Client, ttl time.Duration) *RedisLocker {
	if ttl <= 0 {
		ttl = 30 * time.Second
	}
	return &RedisLocker{
		client: client,
		ttl:    ttl,
		retry:  50 * time.Millisecond,
	}
}

func (r *RedisLocker) Acquire(ctx context.Context, key string) (func(), error) {
	lockKey := "lock:" + key
	token := uuid.New().String()

	for {
		ok, err := r.client.SetNX(ctx, lockKey, token, r.ttl).Result()
		if err != nil {
			return nil, fmt.Errorf("redis lock %s: %w", key, err)
		}
		if ok {
			break
		}
		select {
		case <-time.After(r.retry):
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}

	release := func() {
		// Only the holder may delete the key. A TTL expiry followed by
		// another process acquiring the lock must not be torn down here.
		current, err := r.client.Get(context.Background(), lockKey).Result()
		if err != nil {
			if err != redis.Nil {
				slog.Error("redis lock release failed", "key", key, "error", err)
			}
			return
		}
		if current == token {
			r.client.Del(context.Background(), lockKey)
		}
	}
	return release, nil
}
