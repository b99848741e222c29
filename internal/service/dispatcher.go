// internal/service/dispatcher.go
package service

import (
	"context"
	"time"

	"github.com/rs/zerolog"
	"golang.org/x/sync/errgroup"
	"golang.org/x/time/rate"

	"github.com/roshaldsouza/Email-Scheduler/internal/metrics"
	"github.com/roshaldsouza/Email-Scheduler/internal/model"
	"github.com/roshaldsouza/Email-Scheduler/internal/queue"
	"github.com/roshaldsouza/Email-Scheduler/internal/ratelimit"
	"github.com/roshaldsouza/Email-Scheduler/internal/repository"
)

// Transport hands one message to the mail system. It is a black box to the
// dispatcher: an error is terminal for the job, there is no retry here.
type Transport interface {
	Send(ctx context.Context, from, to, subject, body string) error
}

// DispatcherConfig wires a Dispatcher.
type DispatcherConfig struct {
	JobRepo      repository.RecipientJobRepositoryInterface
	CampaignRepo repository.CampaignRepositoryInterface
	Queue        queue.DelayQueue
	Limiter      ratelimit.Limiter
	Transport    Transport
	Logger       zerolog.Logger

	// Concurrency is the fixed worker pool size.
	Concurrency int

	// MinSendSpacing is the pool-wide floor between the starts of any two
	// transport calls, across all workers combined.
	MinSendSpacing time.Duration

	// RescheduleMargin is added past the next UTC hour boundary when a
	// rate-limited job is pushed into the next window.
	RescheduleMargin time.Duration
}

// Dispatcher drains the delay queue with a bounded worker pool, gates each
// send on the sender's hourly window, and drives the RecipientJob state
// machine: scheduled -> processing -> sent | failed | scheduled (rate-limit
// reschedule, the only cycle).
type Dispatcher struct {
	cfg      DispatcherConfig
	throttle *rate.Limiter
	logger   zerolog.Logger

	// nextAttemptAt computes the due time for a rate-limited reschedule.
	// Overridable in tests so the next window does not have to be a real
	// hour away.
	nextAttemptAt func(now time.Time) time.Time
}

func NewDispatcher(cfg DispatcherConfig) *Dispatcher {
	if cfg.Concurrency < 1 {
		cfg.Concurrency = 1
	}
	margin := cfg.RescheduleMargin

	return &Dispatcher{
		cfg: cfg,
		// rate.Every(0) is an infinite rate, so zero spacing disables the
		// throttle without a special case.
		throttle: rate.NewLimiter(rate.Every(cfg.MinSendSpacing), 1),
		logger:   cfg.Logger.With().Str("component", "dispatcher").Logger(),
		nextAttemptAt: func(now time.Time) time.Time {
			return ratelimit.NextHourBoundaryUTC(now).Add(margin)
		},
	}
}

// Run starts the worker pool and blocks until ctx is cancelled and all
// workers have drained their current job.
func (d *Dispatcher) Run(ctx context.Context) error {
	g, ctx := errgroup.WithContext(ctx)

	for i := 0; i < d.cfg.Concurrency; i++ {
		workerID := i
		g.Go(func() error {
			return d.workerLoop(ctx, workerID)
		})
	}

	d.logger.Info().Int("concurrency", d.cfg.Concurrency).Msg("dispatcher started")
	return g.Wait()
}

// workerLoop never returns a job-level error: one bad job must not take down
// the pool. Only context cancellation ends the loop.
func (d *Dispatcher) workerLoop(ctx context.Context, workerID int) error {
	log := d.logger.With().Int("worker", workerID).Logger()

	for {
		entry, err := d.cfg.Queue.Dequeue(ctx)
		if err != nil {
			if ctx.Err() != nil {
				return nil
			}
			log.Error().Err(err).Msg("dequeue failed")
			select {
			case <-ctx.Done():
				return nil
			case <-time.After(time.Second):
			}
			continue
		}

		d.process(ctx, log, entry)
	}
}

// process handles one claimed entry end to end. Paths that complete the
// delivery ack the entry; paths that hit an infrastructure error leave the
// claim to expire so the queue redelivers it.
func (d *Dispatcher) process(ctx context.Context, log zerolog.Logger, entry *queue.Entry) {
	job, err := d.cfg.JobRepo.GetByID(entry.Job.RecipientJobID)
	if err != nil {
		log.Error().Err(err).Str("key", entry.Key).Msg("failed to load recipient job")
		return
	}

	// Safety net against redelivery and duplicate enqueues: the persisted
	// status is the ground truth, a missing or already-sent job is a no-op.
	if job == nil || job.Status == model.StatusSent {
		metrics.StaleDroppedTotal.Inc()
		log.Debug().Str("key", entry.Key).Msg("dropping stale queue entry")
		d.ack(ctx, log, entry.Key)
		return
	}

	campaign, err := d.cfg.CampaignRepo.GetByID(job.CampaignID)
	if err != nil {
		log.Error().Err(err).Str("job_id", job.ID).Msg("failed to load campaign")
		return
	}
	sender := campaign.FromEmail

	won, err := d.cfg.JobRepo.MarkProcessing(job.ID)
	if err != nil {
		log.Error().Err(err).Str("job_id", job.ID).Msg("failed to mark job processing")
		return
	}
	if !won {
		// Someone completed this job between the load and the CAS.
		metrics.StaleDroppedTotal.Inc()
		d.ack(ctx, log, entry.Key)
		return
	}

	res, err := d.cfg.Limiter.TryAcquire(ctx, sender, entry.Job.HourlyLimit)
	if err != nil {
		log.Error().Err(err).Str("job_id", job.ID).Msg("rate counter unavailable")
		return
	}

	if !res.Allowed {
		d.reschedule(ctx, log, entry, job, sender, res.Count)
		return
	}

	// Pool-wide spacing between transport call starts.
	if err := d.throttle.Wait(ctx); err != nil {
		// Shutting down before the send started: give the quota back, the
		// claim expires and the job is redelivered.
		_ = d.cfg.Limiter.Release(ctx, sender)
		return
	}

	start := time.Now()
	sendErr := d.cfg.Transport.Send(ctx, sender, job.ToEmail, campaign.Subject, campaign.Body)
	metrics.SendDuration.Observe(time.Since(start).Seconds())

	if sendErr != nil {
		log.Error().Err(sendErr).Str("job_id", job.ID).Str("to", job.ToEmail).Msg("send failed")
		if err := d.cfg.JobRepo.MarkFailed(job.ID, sendErr.Error()); err != nil {
			log.Error().Err(err).Str("job_id", job.ID).Msg("failed to record send failure")
			return
		}
		metrics.FailedTotal.WithLabelValues(sender).Inc()
		d.ack(ctx, log, entry.Key)
		return
	}

	if _, err := d.cfg.JobRepo.MarkSent(job.ID, time.Now()); err != nil {
		log.Error().Err(err).Str("job_id", job.ID).Msg("failed to record send success")
		return
	}
	metrics.SentTotal.WithLabelValues(sender).Inc()
	log.Info().Str("job_id", job.ID).Str("to", job.ToEmail).Msg("sent")
	d.ack(ctx, log, entry.Key)
}

// reschedule handles a rate-limit rejection: give back the charge the
// rejected acquisition took, push the job's scheduled_at past the next hour
// boundary, and re-enqueue the same dedupe key so the pending entry is
// replaced rather than duplicated. The consumed delivery is acked; the
// logical job lives on via the fresh entry.
func (d *Dispatcher) reschedule(ctx context.Context, log zerolog.Logger, entry *queue.Entry, job *model.RecipientJob, sender string, count int64) {
	if err := d.cfg.Limiter.Release(ctx, sender); err != nil {
		log.Warn().Err(err).Str("sender", sender).Msg("failed to release rejected acquisition")
	}

	due := d.nextAttemptAt(time.Now())

	if err := d.cfg.JobRepo.Reschedule(job.ID, due); err != nil {
		log.Error().Err(err).Str("job_id", job.ID).Msg("failed to reschedule job")
		return
	}
	if err := d.cfg.Queue.Enqueue(ctx, entry.Key, entry.Job, due); err != nil {
		log.Error().Err(err).Str("job_id", job.ID).Msg("failed to re-enqueue job")
		return
	}

	metrics.RateLimitedTotal.WithLabelValues(sender).Inc()
	log.Info().Str("job_id", job.ID).Str("sender", sender).
		Int64("count", count).Time("next_attempt", due).
		Msg("hourly window exhausted, rescheduled")

	d.ack(ctx, log, entry.Key)
}

func (d *Dispatcher) ack(ctx context.Context, log zerolog.Logger, key string) {
	if err := d.cfg.Queue.Ack(ctx, key); err != nil {
		log.Warn().Err(err).Str("key", key).Msg("ack failed")
	}
}
