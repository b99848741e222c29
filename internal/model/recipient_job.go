// internal/model/recipient_job.go
package model

import "time"

// RecipientJob statuses. A job enters Sent exactly once and never leaves it;
// Failed is terminal; the only cycle is Processing back to Scheduled when the
// sender's hourly window is exhausted.
const (
	StatusScheduled  = "scheduled"
	StatusProcessing = "processing"
	StatusSent       = "sent"
	StatusFailed     = "failed"
)

// RecipientJob is the unit of scheduled work: one (campaign, recipient) pair.
type RecipientJob struct {
	ID          string     `db:"id" json:"id"`
	CampaignID  string     `db:"campaign_id" json:"campaign_id"`
	ToEmail     string     `db:"to_email" json:"to_email"`
	Status      string     `db:"status" json:"status"`
	ScheduledAt time.Time  `db:"scheduled_at" json:"scheduled_at"`
	SentAt      *time.Time `db:"sent_at" json:"sent_at,omitempty"`
	LastError   string     `db:"last_error" json:"last_error,omitempty"`
	CreatedAt   time.Time  `db:"created_at" json:"created_at"`
	UpdatedAt   time.Time  `db:"updated_at" json:"updated_at"`
}

// RecipientJobView is a RecipientJob joined with the campaign fields the
// scheduled/sent listings display.
type RecipientJobView struct {
	RecipientJob
	FromEmail string `json:"from_email"`
	Subject   string `json:"subject"`
}
