// internal/ratelimit/ratelimit.go
package ratelimit

import (
	"context"
	"fmt"
	"time"
)

// Result reports the outcome of one acquisition attempt. Count is the bucket
// value after the increment, so a rejected attempt still shows the charge it
// took (and must give back via Release).
type Result struct {
	Allowed bool
	Count   int64
}

// Limiter is the per-sender hourly send gate. TryAcquire atomically
// increments the (sender, current UTC hour) bucket and reports whether the
// attempt stays within limit. Release decrements the same bucket; the
// dispatcher calls it whenever an acquisition was charged but the send will
// not happen.
type Limiter interface {
	TryAcquire(ctx context.Context, sender string, limit int) (Result, error)
	Release(ctx context.Context, sender string) error
}

// bucketTTL is slightly more than one hour so a bucket survives clock skew
// and a send that straddles the boundary.
const bucketTTL = 3700 * time.Second

// HourKey returns the counter key for a sender at a given instant:
// rate:<sender>:<YYYY-MM-DD-HH> in UTC. The key changes at each UTC hour
// boundary; there is no sliding window.
func HourKey(sender string, at time.Time) string {
	u := at.UTC()
	return fmt.Sprintf("rate:%s:%04d-%02d-%02d-%02d", sender, u.Year(), u.Month(), u.Day(), u.Hour())
}

// NextHourBoundaryUTC returns the start of the next UTC hour after now. Rate
// limited jobs are rescheduled to this instant plus a safety margin.
func NextHourBoundaryUTC(now time.Time) time.Time {
	return now.UTC().Truncate(time.Hour).Add(time.Hour)
}
