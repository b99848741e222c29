package queue

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDequeueWaitsForDueTime(t *testing.T) {
	q := NewInMemoryQueue()
	defer q.Close()

	due := time.Now().Add(150 * time.Millisecond)
	require.NoError(t, q.Enqueue(context.Background(), JobKey("a"), JobPayload{RecipientJobID: "a"}, due))

	entry, err := q.Dequeue(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "recipient-a", entry.Key)
	assert.False(t, time.Now().Before(due), "entry must not be delivered before its due time")
}

func TestDequeueBlocksUntilCancelled(t *testing.T) {
	q := NewInMemoryQueue()
	defer q.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 100*time.Millisecond)
	defer cancel()

	_, err := q.Dequeue(ctx)
	assert.ErrorIs(t, err, context.DeadlineExceeded)
}

func TestEnqueueReplacesByKey(t *testing.T) {
	q := NewInMemoryQueue()
	defer q.Close()
	ctx := context.Background()

	t1 := time.Now().Add(50 * time.Millisecond)
	t2 := time.Now().Add(250 * time.Millisecond)

	require.NoError(t, q.Enqueue(ctx, JobKey("a"), JobPayload{RecipientJobID: "a", HourlyLimit: 1}, t1))
	require.NoError(t, q.Enqueue(ctx, JobKey("a"), JobPayload{RecipientJobID: "a", HourlyLimit: 9}, t2))

	assert.Equal(t, 1, q.PendingLen(), "second enqueue must replace, not duplicate")

	entry, err := q.Dequeue(ctx)
	require.NoError(t, err)
	assert.Equal(t, 9, entry.Job.HourlyLimit, "replacement payload wins")
	assert.False(t, time.Now().Before(t2), "delivery honors the replaced (later) due time")
	require.NoError(t, q.Ack(ctx, entry.Key))

	// Exactly one delivery overall.
	waitCtx, cancel := context.WithTimeout(ctx, 100*time.Millisecond)
	defer cancel()
	_, err = q.Dequeue(waitCtx)
	assert.ErrorIs(t, err, context.DeadlineExceeded)
}

func TestEntriesDeliverInDueOrder(t *testing.T) {
	q := NewInMemoryQueue()
	defer q.Close()
	ctx := context.Background()

	base := time.Now()
	require.NoError(t, q.Enqueue(ctx, JobKey("late"), JobPayload{RecipientJobID: "late"}, base.Add(80*time.Millisecond)))
	require.NoError(t, q.Enqueue(ctx, JobKey("early"), JobPayload{RecipientJobID: "early"}, base.Add(20*time.Millisecond)))

	first, err := q.Dequeue(ctx)
	require.NoError(t, err)
	assert.Equal(t, "recipient-early", first.Key)

	second, err := q.Dequeue(ctx)
	require.NoError(t, err)
	assert.Equal(t, "recipient-late", second.Key)
}

func TestClaimedEntryNotRedeliveredBeforeTimeout(t *testing.T) {
	q := NewInMemoryQueue()
	defer q.Close()
	ctx := context.Background()

	require.NoError(t, q.Enqueue(ctx, JobKey("a"), JobPayload{RecipientJobID: "a"}, time.Now()))

	_, err := q.Dequeue(ctx)
	require.NoError(t, err)

	// Unacked but claimed: not visible to a second consumer.
	waitCtx, cancel := context.WithTimeout(ctx, 100*time.Millisecond)
	defer cancel()
	_, err = q.Dequeue(waitCtx)
	assert.ErrorIs(t, err, context.DeadlineExceeded)
}

func TestExpiredClaimIsRedelivered(t *testing.T) {
	q := NewInMemoryQueue()
	q.ClaimTimeout = 50 * time.Millisecond
	defer q.Close()
	ctx := context.Background()

	require.NoError(t, q.Enqueue(ctx, JobKey("a"), JobPayload{RecipientJobID: "a"}, time.Now()))

	first, err := q.Dequeue(ctx)
	require.NoError(t, err)
	require.Equal(t, "recipient-a", first.Key)
	// Simulated crash: never acked.

	redelivered, err := q.Dequeue(ctx)
	require.NoError(t, err)
	assert.Equal(t, "recipient-a", redelivered.Key)
	require.NoError(t, q.Ack(ctx, redelivered.Key))
}

func TestAckAfterReenqueueKeepsFreshEntry(t *testing.T) {
	q := NewInMemoryQueue()
	defer q.Close()
	ctx := context.Background()

	require.NoError(t, q.Enqueue(ctx, JobKey("a"), JobPayload{RecipientJobID: "a"}, time.Now()))

	entry, err := q.Dequeue(ctx)
	require.NoError(t, err)

	// Reschedule path: re-enqueue the same key, then ack the old delivery.
	next := time.Now().Add(30 * time.Millisecond)
	require.NoError(t, q.Enqueue(ctx, entry.Key, entry.Job, next))
	require.NoError(t, q.Ack(ctx, entry.Key))

	again, err := q.Dequeue(ctx)
	require.NoError(t, err)
	assert.Equal(t, entry.Key, again.Key)
}

func TestJobKeyIsDeterministic(t *testing.T) {
	assert.Equal(t, JobKey("abc"), JobKey("abc"))
	assert.NotEqual(t, JobKey("abc"), JobKey("abd"))
}
