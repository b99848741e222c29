// internal/model/campaign.go
package model

import "time"

// Campaign is one bulk send request. It is created once when the owner
// schedules a send and never modified afterwards; all mutable per-recipient
// state lives on RecipientJob.
type Campaign struct {
	ID             string     `db:"id" json:"id"`
	OwnerEmail     string     `db:"owner_email" json:"owner_email"`
	FromEmail      string     `db:"from_email" json:"from_email"`
	Subject        string     `db:"subject" json:"subject"`
	Body           string     `db:"body" json:"body"`
	Status         string     `db:"status" json:"status"`
	ScheduledAt    time.Time  `db:"scheduled_at" json:"scheduled_at"`
	DelayBetweenMs int64      `db:"delay_between_ms" json:"delay_between_ms"`
	HourlyLimit    int        `db:"hourly_limit" json:"hourly_limit"`
	CreatedAt      time.Time  `db:"created_at" json:"created_at"`
	UpdatedAt      *time.Time `db:"updated_at" json:"updated_at,omitempty"`
}

// DelayBetween returns the inter-recipient stagger as a duration.
func (c *Campaign) DelayBetween() time.Duration {
	return time.Duration(c.DelayBetweenMs) * time.Millisecond
}
