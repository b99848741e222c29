// internal/ratelimit/redis.go
package ratelimit

import (
	"context"
	"time"

	"github.com/redis/go-redis/v9"
)

// RedisLimiter counts sends in Redis so every worker process shares one
// consistent view of a sender's hourly window. INCR/DECR are atomic on the
// server; there is no read-modify-write gap between concurrent workers.
type RedisLimiter struct {
	client *redis.Client
	now    func() time.Time
}

func NewRedisLimiter(client *redis.Client) *RedisLimiter {
	return &RedisLimiter{client: client, now: time.Now}
}

func (l *RedisLimiter) TryAcquire(ctx context.Context, sender string, limit int) (Result, error) {
	key := HourKey(sender, l.now())

	count, err := l.client.Incr(ctx, key).Result()
	if err != nil {
		return Result{}, err
	}

	// Set expiry only on the bucket's first increment.
	if count == 1 {
		if err := l.client.Expire(ctx, key, bucketTTL).Err(); err != nil {
			return Result{}, err
		}
	}

	return Result{Allowed: count <= int64(limit), Count: count}, nil
}

func (l *RedisLimiter) Release(ctx context.Context, sender string) error {
	return l.client.Decr(ctx, HourKey(sender, l.now())).Err()
}

var _ Limiter = (*RedisLimiter)(nil)
