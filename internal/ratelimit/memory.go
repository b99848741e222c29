// internal/ratelimit/memory.go
package ratelimit

import (
	"context"
	"sync"
	"time"
)

// MemoryLimiter implements Limiter with an in-process map. It keeps the same
// bucket-key scheme as RedisLimiter so tests exercise the hour-boundary
// behavior, but it offers no cross-process consistency. Used in tests and in
// single-process dev mode.
type MemoryLimiter struct {
	mu      sync.Mutex
	buckets map[string]int64

	// Now is overridable so tests can cross hour boundaries without sleeping.
	Now func() time.Time
}

func NewMemoryLimiter() *MemoryLimiter {
	return &MemoryLimiter{
		buckets: make(map[string]int64),
		Now:     time.Now,
	}
}

func (l *MemoryLimiter) TryAcquire(_ context.Context, sender string, limit int) (Result, error) {
	key := HourKey(sender, l.Now())

	l.mu.Lock()
	l.buckets[key]++
	count := l.buckets[key]
	l.mu.Unlock()

	return Result{Allowed: count <= int64(limit), Count: count}, nil
}

func (l *MemoryLimiter) Release(_ context.Context, sender string) error {
	key := HourKey(sender, l.Now())

	l.mu.Lock()
	l.buckets[key]--
	l.mu.Unlock()

	return nil
}

// Count returns the current value of a sender's active bucket.
func (l *MemoryLimiter) Count(sender string) int64 {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.buckets[HourKey(sender, l.Now())]
}

var _ Limiter = (*MemoryLimiter)(nil)
