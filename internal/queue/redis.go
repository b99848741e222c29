// internal/queue/redis.go
package queue

import (
	"context"
	"encoding/json"
	"fmt"
	"strconv"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
)

const (
	delayedKey  = "delayqueue:delayed"
	claimedKey  = "delayqueue:claimed"
	payloadsKey = "delayqueue:payloads"
)

// claimScript atomically moves the earliest due member from the delayed set
// into the claimed set and returns it with its payload. Doing the pop and the
// claim in one script is what guarantees an entry is visible to at most one
// worker.
var claimScript = redis.NewScript(`
local due = redis.call('ZRANGEBYSCORE', KEYS[1], '-inf', ARGV[1], 'LIMIT', 0, 1)
if #due == 0 then
  return false
end
local key = due[1]
local score = redis.call('ZSCORE', KEYS[1], key)
redis.call('ZREM', KEYS[1], key)
redis.call('ZADD', KEYS[2], ARGV[2], key)
return {key, score, redis.call('HGET', KEYS[3], key)}
`)

// ackScript removes the claim and deletes the payload, unless the same key
// was re-enqueued while it was claimed (the reschedule path), in which case
// the fresh pending entry keeps its payload.
var ackScript = redis.NewScript(`
redis.call('ZREM', KEYS[2], ARGV[1])
if redis.call('ZSCORE', KEYS[1], ARGV[1]) == false then
  redis.call('HDEL', KEYS[3], ARGV[1])
end
return true
`)

// reapScript moves claims whose deadline has passed back into the delayed set
// as immediately due. This is the at-least-once redelivery path for entries a
// crashed worker never acked.
var reapScript = redis.NewScript(`
local expired = redis.call('ZRANGEBYSCORE', KEYS[2], '-inf', ARGV[1], 'LIMIT', 0, 100)
for _, key in ipairs(expired) do
  redis.call('ZREM', KEYS[2], key)
  if redis.call('ZSCORE', KEYS[1], key) == false then
    redis.call('ZADD', KEYS[1], ARGV[1], key)
  end
end
return #expired
`)

// RedisQueue is a DelayQueue on a Redis sorted set: member = dedupe key,
// score = due time in unix milliseconds. ZADD on an existing member replaces
// its score, which gives the replace-by-key contract for free.
type RedisQueue struct {
	client       *redis.Client
	logger       zerolog.Logger
	pollInterval time.Duration
	claimTimeout time.Duration
	reapCancel   context.CancelFunc
	reapDone     chan struct{}
}

func NewRedisQueue(client *redis.Client, logger zerolog.Logger, pollInterval, claimTimeout time.Duration) *RedisQueue {
	q := &RedisQueue{
		client:       client,
		logger:       logger.With().Str("component", "redis-queue").Logger(),
		pollInterval: pollInterval,
		claimTimeout: claimTimeout,
		reapDone:     make(chan struct{}),
	}

	reapCtx, cancel := context.WithCancel(context.Background())
	q.reapCancel = cancel
	go q.reapLoop(reapCtx)

	return q
}

func (q *RedisQueue) Enqueue(ctx context.Context, key string, job JobPayload, dueAt time.Time) error {
	body, err := json.Marshal(job)
	if err != nil {
		return fmt.Errorf("marshal queue payload: %w", err)
	}

	pipe := q.client.TxPipeline()
	pipe.HSet(ctx, payloadsKey, key, body)
	pipe.ZAdd(ctx, delayedKey, redis.Z{Score: float64(dueAt.UnixMilli()), Member: key})
	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("enqueue %s: %w", key, err)
	}
	return nil
}

func (q *RedisQueue) Dequeue(ctx context.Context) (*Entry, error) {
	ticker := time.NewTicker(q.pollInterval)
	defer ticker.Stop()

	for {
		entry, err := q.tryClaim(ctx)
		if err != nil {
			return nil, err
		}
		if entry != nil {
			return entry, nil
		}

		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-ticker.C:
		}
	}
}

func (q *RedisQueue) tryClaim(ctx context.Context) (*Entry, error) {
	now := time.Now()
	deadline := now.Add(q.claimTimeout)

	res, err := claimScript.Run(ctx, q.client,
		[]string{delayedKey, claimedKey, payloadsKey},
		now.UnixMilli(), deadline.UnixMilli(),
	).Result()
	if err == redis.Nil {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("claim due entry: %w", err)
	}

	fields, ok := res.([]interface{})
	if !ok || len(fields) != 3 {
		return nil, fmt.Errorf("claim script returned unexpected shape: %v", res)
	}

	key, _ := fields[0].(string)
	scoreStr, _ := fields[1].(string)
	payload, _ := fields[2].(string)

	var job JobPayload
	if payload != "" {
		if err := json.Unmarshal([]byte(payload), &job); err != nil {
			// Poison entry: drop the claim so it does not loop forever.
			q.logger.Warn().Str("key", key).Err(err).Msg("dropping entry with undecodable payload")
			_ = q.Ack(ctx, key)
			return nil, nil
		}
	}

	dueMs, _ := strconv.ParseFloat(scoreStr, 64)
	return &Entry{Key: key, Job: job, DueAt: time.UnixMilli(int64(dueMs))}, nil
}

func (q *RedisQueue) Ack(ctx context.Context, key string) error {
	if err := ackScript.Run(ctx, q.client,
		[]string{delayedKey, claimedKey, payloadsKey}, key,
	).Err(); err != nil && err != redis.Nil {
		return fmt.Errorf("ack %s: %w", key, err)
	}
	return nil
}

func (q *RedisQueue) Close() error {
	q.reapCancel()
	<-q.reapDone
	return nil
}

// reapLoop periodically returns expired claims to the delayed set.
func (q *RedisQueue) reapLoop(ctx context.Context) {
	defer close(q.reapDone)

	interval := q.claimTimeout / 2
	if interval < time.Second {
		interval = time.Second
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			n, err := reapScript.Run(ctx, q.client,
				[]string{delayedKey, claimedKey}, time.Now().UnixMilli(),
			).Int()
			if err != nil && err != redis.Nil && ctx.Err() == nil {
				q.logger.Warn().Err(err).Msg("failed to requeue expired claims")
				continue
			}
			if n > 0 {
				q.logger.Info().Int("count", n).Msg("requeued expired claims")
			}
		}
	}
}

var _ DelayQueue = (*RedisQueue)(nil)
