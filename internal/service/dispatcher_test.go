package service

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roshaldsouza/Email-Scheduler/internal/model"
	"github.com/roshaldsouza/Email-Scheduler/internal/queue"
	"github.com/roshaldsouza/Email-Scheduler/internal/ratelimit"
)

// testClock shifts a MemoryLimiter's view of time so tests can cross hour
// boundaries without waiting.
type testClock struct {
	mu     sync.Mutex
	offset time.Duration
}

func (c *testClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return time.Now().Add(c.offset)
}

func (c *testClock) Advance(d time.Duration) {
	c.mu.Lock()
	c.offset += d
	c.mu.Unlock()
}

type dispatcherFixture struct {
	campaigns *mockCampaignRepo
	jobs      *mockJobRepo
	queue     *queue.InMemoryQueue
	limiter   *ratelimit.MemoryLimiter
	clock     *testClock
	transport *fakeTransport
	d         *Dispatcher
	cancel    context.CancelFunc
	done      chan struct{}
}

func newDispatcherFixture(t *testing.T, concurrency int, spacing time.Duration) *dispatcherFixture {
	t.Helper()

	f := &dispatcherFixture{
		campaigns: newMockCampaignRepo(),
		jobs:      newMockJobRepo(),
		queue:     queue.NewInMemoryQueue(),
		limiter:   ratelimit.NewMemoryLimiter(),
		clock:     &testClock{},
		transport: newFakeTransport(),
		done:      make(chan struct{}),
	}
	f.limiter.Now = f.clock.Now

	f.d = NewDispatcher(DispatcherConfig{
		JobRepo:          f.jobs,
		CampaignRepo:     f.campaigns,
		Queue:            f.queue,
		Limiter:          f.limiter,
		Transport:        f.transport,
		Logger:           zerolog.Nop(),
		Concurrency:      concurrency,
		MinSendSpacing:   spacing,
		RescheduleMargin: 10 * time.Millisecond,
	})
	// Keep reschedule waits short instead of a real hour away.
	f.d.nextAttemptAt = func(now time.Time) time.Time {
		return now.Add(50 * time.Millisecond)
	}
	return f
}

func (f *dispatcherFixture) start(t *testing.T) {
	t.Helper()
	ctx, cancel := context.WithCancel(context.Background())
	f.cancel = cancel
	go func() {
		defer close(f.done)
		_ = f.d.Run(ctx)
	}()
	t.Cleanup(func() {
		cancel()
		<-f.done
		f.queue.Close()
	})
}

// plan creates a campaign with the given limit and one job per recipient, all
// due immediately, and enqueues them.
func (f *dispatcherFixture) plan(t *testing.T, limit int, recipients ...string) []string {
	t.Helper()

	campaign := &model.Campaign{
		OwnerEmail:  "owner@example.com",
		FromEmail:   "noreply@example.com",
		Subject:     "Hello",
		Body:        "<p>Hi</p>",
		Status:      model.StatusScheduled,
		ScheduledAt: time.Now(),
		HourlyLimit: limit,
	}
	require.NoError(t, f.campaigns.Create(campaign))

	ids := make([]string, 0, len(recipients))
	for _, to := range recipients {
		job := &model.RecipientJob{
			CampaignID:  campaign.ID,
			ToEmail:     to,
			Status:      model.StatusScheduled,
			ScheduledAt: time.Now(),
		}
		require.NoError(t, f.jobs.Create(job))
		payload := queue.JobPayload{RecipientJobID: job.ID, HourlyLimit: limit}
		require.NoError(t, f.queue.Enqueue(context.Background(), queue.JobKey(job.ID), payload, time.Now()))
		ids = append(ids, job.ID)
	}
	return ids
}

func waitForStatus(t *testing.T, jobs *mockJobRepo, id, want string) {
	t.Helper()
	require.Eventually(t, func() bool {
		return jobs.status(id) == want
	}, 5*time.Second, 10*time.Millisecond, "job %s never reached %s", id, want)
}

// Scenario: a small campaign under a generous limit drains completely.
func TestDispatcherSendsAllRecipients(t *testing.T) {
	f := newDispatcherFixture(t, 3, 0)
	ids := f.plan(t, 10, "a@x.com", "b@x.com", "c@x.com")
	f.start(t)

	for _, id := range ids {
		waitForStatus(t, f.jobs, id, model.StatusSent)
	}
	assert.Equal(t, 3, f.transport.callCount())

	for _, id := range ids {
		job, _ := f.jobs.GetByID(id)
		require.NotNil(t, job.SentAt, "sent_at is set on success")
	}
}

// Scenario: limit 1 with two recipients in the same hour. The first sends,
// the second is rescheduled past the hour boundary and sends in the next
// window.
func TestDispatcherReschedulesWhenWindowExhausted(t *testing.T) {
	f := newDispatcherFixture(t, 1, 0)
	ids := f.plan(t, 1, "a@x.com", "b@x.com")
	f.start(t)

	// Exactly one of the two gets through this window.
	require.Eventually(t, func() bool {
		return f.transport.callCount() == 1 && f.jobs.reschedules() >= 1
	}, 5*time.Second, 10*time.Millisecond)

	// Next hour: the rescheduled entry becomes due (50ms in the test) and
	// now lands in a fresh bucket.
	f.clock.Advance(time.Hour)

	for _, id := range ids {
		waitForStatus(t, f.jobs, id, model.StatusSent)
	}
	assert.Equal(t, 2, f.transport.callCount())
}

// Scenario: limit 0 means never allowed. The job keeps cycling
// processing -> scheduled and the transport is never called.
func TestDispatcherZeroLimitCyclesForever(t *testing.T) {
	f := newDispatcherFixture(t, 1, 0)
	ids := f.plan(t, 0, "a@x.com")
	f.start(t)

	require.Eventually(t, func() bool {
		return f.jobs.reschedules() >= 3
	}, 5*time.Second, 10*time.Millisecond, "job should cycle through reschedules")

	assert.Equal(t, 0, f.transport.callCount(), "transport must never be called at limit 0")
	assert.NotEqual(t, model.StatusSent, f.jobs.status(ids[0]))
}

// Every rejected acquisition is paired with a release, so cycling at limit 0
// leaves the bucket where it started.
func TestDispatcherReleasesQuotaOnRejection(t *testing.T) {
	f := newDispatcherFixture(t, 1, 0)
	f.plan(t, 0, "a@x.com")
	f.start(t)

	require.Eventually(t, func() bool {
		return f.jobs.reschedules() >= 2
	}, 5*time.Second, 10*time.Millisecond)

	f.cancel()
	<-f.done

	assert.LessOrEqual(t, f.limiter.Count("noreply@example.com"), int64(1),
		"rejections must not permanently consume quota")
}

// Scenario: a redelivered entry for an already-sent job is a silent no-op.
func TestDispatcherDuplicateDeliveryIsNoOp(t *testing.T) {
	f := newDispatcherFixture(t, 1, 0)
	ids := f.plan(t, 10, "a@x.com")
	f.start(t)

	waitForStatus(t, f.jobs, ids[0], model.StatusSent)
	require.Equal(t, 1, f.transport.callCount())

	// Simulate a redelivered queue entry for the finished job.
	payload := queue.JobPayload{RecipientJobID: ids[0], HourlyLimit: 10}
	require.NoError(t, f.queue.Enqueue(context.Background(), queue.JobKey(ids[0]), payload, time.Now()))

	require.Eventually(t, func() bool {
		return f.queue.PendingLen() == 0
	}, 5*time.Second, 10*time.Millisecond)

	assert.Equal(t, 1, f.transport.callCount(), "exactly one transport call overall")
	assert.Equal(t, model.StatusSent, f.jobs.status(ids[0]), "sent is terminal")
}

// An entry whose backing job is gone is dropped without error.
func TestDispatcherDropsMissingJob(t *testing.T) {
	f := newDispatcherFixture(t, 1, 0)
	f.start(t)

	payload := queue.JobPayload{RecipientJobID: "no-such-job", HourlyLimit: 10}
	require.NoError(t, f.queue.Enqueue(context.Background(), queue.JobKey("no-such-job"), payload, time.Now()))

	require.Eventually(t, func() bool {
		return f.queue.PendingLen() == 0
	}, 5*time.Second, 10*time.Millisecond)
	assert.Equal(t, 0, f.transport.callCount())
}

// Transport failure is terminal: status failed, no automatic retry.
func TestDispatcherTransportFailureIsTerminal(t *testing.T) {
	f := newDispatcherFixture(t, 1, 0)
	ids := f.plan(t, 10, "a@x.com")
	f.transport.failFor["a@x.com"] = true
	f.start(t)

	waitForStatus(t, f.jobs, ids[0], model.StatusFailed)

	job, _ := f.jobs.GetByID(ids[0])
	assert.Contains(t, job.LastError, "mailbox unavailable")

	// Give the pool a moment: no retry may follow.
	time.Sleep(150 * time.Millisecond)
	assert.Equal(t, 1, f.transport.callCount())
}

// The pool-wide throttle guarantees a lower bound on spacing between the
// starts of transport calls, across all workers combined.
func TestDispatcherEnforcesMinSendSpacing(t *testing.T) {
	const spacing = 60 * time.Millisecond

	f := newDispatcherFixture(t, 3, spacing)
	ids := f.plan(t, 100, "a@x.com", "b@x.com", "c@x.com")
	f.start(t)

	for _, id := range ids {
		waitForStatus(t, f.jobs, id, model.StatusSent)
	}

	times := f.transport.callTimes()
	require.Len(t, times, 3)
	for i := 1; i < len(times); i++ {
		gap := times[i].Sub(times[i-1])
		assert.GreaterOrEqual(t, gap, spacing-10*time.Millisecond,
			"calls %d and %d started %v apart", i-1, i, gap)
	}
}

// One worker's bad job must not stall the others.
func TestDispatcherIsolatesFailures(t *testing.T) {
	f := newDispatcherFixture(t, 2, 0)
	ids := f.plan(t, 10, "bad@x.com", "good@x.com")
	f.transport.failFor["bad@x.com"] = true
	f.start(t)

	waitForStatus(t, f.jobs, ids[0], model.StatusFailed)
	waitForStatus(t, f.jobs, ids[1], model.StatusSent)
}
