// internal/service/planner.go
package service

import (
	"context"
	"time"

	"github.com/rs/zerolog"

	appErrors "github.com/roshaldsouza/Email-Scheduler/internal/errors"
	"github.com/roshaldsouza/Email-Scheduler/internal/model"
	"github.com/roshaldsouza/Email-Scheduler/internal/queue"
	"github.com/roshaldsouza/Email-Scheduler/internal/repository"
)

// ScheduleRequest is one bulk-send request as received from the API.
type ScheduleRequest struct {
	OwnerEmail     string   `json:"user_email"`
	FromEmail      string   `json:"from_email"`
	Subject        string   `json:"subject"`
	Body           string   `json:"body"`
	StartTime      string   `json:"start_time"`
	DelayBetweenMs int64    `json:"delay_between_ms"`
	HourlyLimit    *int     `json:"hourly_limit"`
	Recipients     []string `json:"recipients"`
}

// RecipientFailure reports one recipient that could not be planned. Planning
// is partial-success: earlier recipients stand.
type RecipientFailure struct {
	ToEmail string `json:"to_email"`
	Reason  string `json:"reason"`
}

// ScheduleResult is the aggregate outcome of planning one campaign.
type ScheduleResult struct {
	CampaignID     string             `json:"campaign_id"`
	ScheduledCount int                `json:"scheduled_count"`
	JobIDs         []string           `json:"job_ids"`
	Failed         []RecipientFailure `json:"failed,omitempty"`
}

// Planner fans one campaign out into per-recipient jobs with staggered due
// times and feeds them to the delay queue.
type Planner struct {
	CampaignRepo repository.CampaignRepositoryInterface
	JobRepo      repository.RecipientJobRepositoryInterface
	Queue        queue.DelayQueue

	// DefaultHourlyCap applies when a request omits hourly_limit.
	DefaultHourlyCap int

	Logger zerolog.Logger
}

// ScheduleCampaign validates the request, persists the campaign, then creates
// and enqueues one RecipientJob per recipient. Recipient i (0-based, input
// order) is due at start + i*delay, which spreads the load instead of
// bursting everything at start.
//
// A persistence failure for one recipient skips that recipient and is
// reported in the result; it never rolls back or aborts the siblings.
func (p *Planner) ScheduleCampaign(ctx context.Context, req ScheduleRequest) (*ScheduleResult, error) {
	start, verr := p.validate(req)
	if verr != nil {
		return nil, verr
	}

	limit := p.DefaultHourlyCap
	if req.HourlyLimit != nil {
		limit = *req.HourlyLimit
	}

	campaign := &model.Campaign{
		OwnerEmail:     req.OwnerEmail,
		FromEmail:      req.FromEmail,
		Subject:        req.Subject,
		Body:           req.Body,
		Status:         model.StatusScheduled,
		ScheduledAt:    start,
		DelayBetweenMs: req.DelayBetweenMs,
		HourlyLimit:    limit,
	}
	if err := p.CampaignRepo.Create(campaign); err != nil {
		return nil, err
	}

	result := &ScheduleResult{CampaignID: campaign.ID, JobIDs: []string{}}
	delay := campaign.DelayBetween()

	for i, to := range req.Recipients {
		due := start.Add(time.Duration(i) * delay)

		job := &model.RecipientJob{
			CampaignID:  campaign.ID,
			ToEmail:     to,
			Status:      model.StatusScheduled,
			ScheduledAt: due,
		}
		if err := p.JobRepo.Create(job); err != nil {
			p.Logger.Warn().Err(err).Str("to", to).Str("campaign_id", campaign.ID).
				Msg("failed to persist recipient job, skipping recipient")
			result.Failed = append(result.Failed, RecipientFailure{ToEmail: to, Reason: err.Error()})
			continue
		}

		payload := queue.JobPayload{RecipientJobID: job.ID, HourlyLimit: limit}
		if err := p.Queue.Enqueue(ctx, queue.JobKey(job.ID), payload, due); err != nil {
			p.Logger.Warn().Err(err).Str("job_id", job.ID).Msg("failed to enqueue recipient job")
			result.Failed = append(result.Failed, RecipientFailure{ToEmail: to, Reason: err.Error()})
			continue
		}

		result.JobIDs = append(result.JobIDs, job.ID)
		result.ScheduledCount++
	}

	p.Logger.Info().Str("campaign_id", campaign.ID).
		Int("scheduled", result.ScheduledCount).
		Int("failed", len(result.Failed)).
		Msg("campaign planned")

	return result, nil
}

// ListScheduled returns an owner's jobs still waiting or in flight, soonest
// first.
func (p *Planner) ListScheduled(ownerEmail string) ([]model.RecipientJobView, error) {
	return p.JobRepo.ListByOwnerAndStatus(ownerEmail,
		[]string{model.StatusScheduled, model.StatusProcessing}, true)
}

// ListSent returns an owner's finished jobs, most recent first.
func (p *Planner) ListSent(ownerEmail string) ([]model.RecipientJobView, error) {
	return p.JobRepo.ListByOwnerAndStatus(ownerEmail,
		[]string{model.StatusSent, model.StatusFailed}, false)
}

// CampaignStats returns a campaign with its per-status recipient counts.
func (p *Planner) CampaignStats(campaignID string) (*model.Campaign, map[string]int, error) {
	campaign, err := p.CampaignRepo.GetByID(campaignID)
	if err != nil {
		return nil, nil, err
	}
	stats, err := p.CampaignRepo.GetStats(campaignID)
	if err != nil {
		return nil, nil, err
	}
	return campaign, stats, nil
}

func (p *Planner) validate(req ScheduleRequest) (time.Time, error) {
	verr := appErrors.NewValidation()

	if req.OwnerEmail == "" {
		verr.Add("user_email", "User email is required")
	}
	if req.FromEmail == "" {
		verr.Add("from_email", "From email is required")
	}
	if req.Subject == "" {
		verr.Add("subject", "Subject is required")
	}
	if req.Body == "" {
		verr.Add("body", "Body is required")
	}
	if req.DelayBetweenMs < 0 {
		verr.Add("delay_between_ms", "Delay must be 0 or greater")
	}
	if req.HourlyLimit != nil && *req.HourlyLimit < 0 {
		verr.Add("hourly_limit", "Hourly limit must be 0 or greater")
	}
	if len(req.Recipients) == 0 {
		verr.Add("recipients", "At least one recipient is required")
	}
	for _, to := range req.Recipients {
		if to == "" {
			verr.Add("recipients", "Recipient addresses must not be empty")
			break
		}
	}

	var start time.Time
	if req.StartTime == "" {
		verr.Add("start_time", "Start time is required")
	} else {
		var err error
		start, err = time.Parse(time.RFC3339, req.StartTime)
		if err != nil {
			verr.Add("start_time", "Start time must be RFC3339")
		}
	}

	if verr.HasErrors() {
		return time.Time{}, verr
	}
	return start, nil
}
