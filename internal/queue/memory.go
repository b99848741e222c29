// internal/queue/memory.go
package queue

import (
	"container/heap"
	"context"
	"sync"
	"time"
)

// memEntry is a pending or claimed entry. deadline is only meaningful while
// the entry is claimed.
type memEntry struct {
	key      string
	job      JobPayload
	dueAt    time.Time
	deadline time.Time
	index    int
}

type entryHeap []*memEntry

func (h entryHeap) Len() int           { return len(h) }
func (h entryHeap) Less(i, j int) bool { return h[i].dueAt.Before(h[j].dueAt) }
func (h entryHeap) Swap(i, j int)      { h[i], h[j] = h[j], h[i]; h[i].index = i; h[j].index = j }
func (h *entryHeap) Push(x interface{}) {
	e := x.(*memEntry)
	e.index = len(*h)
	*h = append(*h, e)
}
func (h *entryHeap) Pop() interface{} {
	old := *h
	n := len(old)
	e := old[n-1]
	old[n-1] = nil
	*h = old[:n-1]
	return e
}

// InMemoryQueue is a DelayQueue backed by a min-heap on due time. It keeps
// the same claim/ack contract as the Redis queue so the dispatcher behaves
// identically in tests and single-process dev mode.
type InMemoryQueue struct {
	mu      sync.Mutex
	pending map[string]*memEntry
	claimed map[string]*memEntry
	heap    entryHeap
	wake    chan struct{}
	closed  bool

	// ClaimTimeout is how long a dequeued entry may stay unacked before it
	// becomes redeliverable.
	ClaimTimeout time.Duration
}

// NewInMemoryQueue creates a new queue
func NewInMemoryQueue() *InMemoryQueue {
	return &InMemoryQueue{
		pending:      make(map[string]*memEntry),
		claimed:      make(map[string]*memEntry),
		wake:         make(chan struct{}),
		ClaimTimeout: 2 * time.Minute,
	}
}

// Enqueue inserts or replaces the entry for key. Replacing updates the due
// time and payload of the single pending entry (last write wins).
func (q *InMemoryQueue) Enqueue(_ context.Context, key string, job JobPayload, dueAt time.Time) error {
	q.mu.Lock()
	defer q.mu.Unlock()

	if q.closed {
		return context.Canceled
	}

	if e, ok := q.pending[key]; ok {
		e.job = job
		e.dueAt = dueAt
		heap.Fix(&q.heap, e.index)
	} else {
		e := &memEntry{key: key, job: job, dueAt: dueAt}
		q.pending[key] = e
		heap.Push(&q.heap, e)
	}

	q.broadcast()
	return nil
}

// Dequeue blocks until an entry is due, claims it and returns it. Claims that
// outlived their deadline are folded back into pending first, which is the
// crash-redelivery path.
func (q *InMemoryQueue) Dequeue(ctx context.Context) (*Entry, error) {
	for {
		q.mu.Lock()
		if q.closed {
			q.mu.Unlock()
			return nil, context.Canceled
		}

		now := time.Now()
		q.requeueExpiredLocked(now)

		if len(q.heap) > 0 && !q.heap[0].dueAt.After(now) {
			e := heap.Pop(&q.heap).(*memEntry)
			delete(q.pending, e.key)
			e.deadline = now.Add(q.ClaimTimeout)
			q.claimed[e.key] = e
			q.mu.Unlock()
			return &Entry{Key: e.key, Job: e.job, DueAt: e.dueAt}, nil
		}

		wait := time.Second
		if len(q.heap) > 0 {
			if d := q.heap[0].dueAt.Sub(now); d < wait {
				wait = d
			}
		}
		wake := q.wake
		q.mu.Unlock()

		timer := time.NewTimer(wait)
		select {
		case <-ctx.Done():
			timer.Stop()
			return nil, ctx.Err()
		case <-wake:
			timer.Stop()
		case <-timer.C:
		}
	}
}

// Ack finishes a delivery. If the same key was re-enqueued while claimed (the
// reschedule path), the fresh pending entry is left alone.
func (q *InMemoryQueue) Ack(_ context.Context, key string) error {
	q.mu.Lock()
	defer q.mu.Unlock()
	delete(q.claimed, key)
	return nil
}

func (q *InMemoryQueue) Close() error {
	q.mu.Lock()
	defer q.mu.Unlock()
	if !q.closed {
		q.closed = true
		q.broadcast()
	}
	return nil
}

// PendingLen reports how many entries are waiting for their due time.
func (q *InMemoryQueue) PendingLen() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return len(q.pending)
}

func (q *InMemoryQueue) requeueExpiredLocked(now time.Time) {
	for key, e := range q.claimed {
		if e.deadline.After(now) {
			continue
		}
		delete(q.claimed, key)
		if _, ok := q.pending[key]; ok {
			// A fresh entry superseded the claim; drop the stale one.
			continue
		}
		e.dueAt = now
		q.pending[key] = e
		heap.Push(&q.heap, e)
	}
}

// broadcast wakes every blocked Dequeue. Callers hold q.mu.
func (q *InMemoryQueue) broadcast() {
	close(q.wake)
	q.wake = make(chan struct{})
}

var _ DelayQueue = (*InMemoryQueue)(nil)
