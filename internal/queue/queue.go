// internal/queue/queue.go
package queue

import (
	"context"
	"time"
)

// JobPayload is the fixed shape carried by a queue entry: a reference to the
// persisted RecipientJob plus the campaign's effective hourly cap. The queue
// never carries the job's mutable state; the recipient_jobs row is the single
// source of truth and the entry is only a wake-up.
type JobPayload struct {
	RecipientJobID string `json:"recipient_job_id"`
	HourlyLimit    int    `json:"hourly_limit"`
}

// Entry is one claimed queue entry, delivered to exactly one worker at a
// time. The worker must Ack the key when it is done with this delivery;
// unacked entries become redeliverable after the claim timeout.
type Entry struct {
	Key   string
	Job   JobPayload
	DueAt time.Time
}

// DelayQueue holds jobs until their due time.
//
// Enqueue is replace-by-key: enqueuing a key that is already pending
// overwrites its due time and payload instead of adding a second entry, which
// is what makes reschedule-in-place and duplicate-enqueue suppression work.
//
// Dequeue blocks until an entry is due, claims it, and returns it. Among
// several due entries delivery order is best effort, but an entry is never
// delivered before its due time.
type DelayQueue interface {
	Enqueue(ctx context.Context, key string, job JobPayload, dueAt time.Time) error
	Dequeue(ctx context.Context) (*Entry, error)
	Ack(ctx context.Context, key string) error
	Close() error
}

// JobKey derives the de-duplication key for a RecipientJob. It is a function
// of the job ID only, so every enqueue for the same recipient collapses onto
// one pending entry no matter which path issued it.
func JobKey(recipientJobID string) string {
	return "recipient-" + recipientJobID
}
