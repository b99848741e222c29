package repository

import (
	"database/sql"
	"time"

	"github.com/google/uuid"

	appErrors "github.com/roshaldsouza/Email-Scheduler/internal/errors"
	"github.com/roshaldsouza/Email-Scheduler/internal/model"
)

type CampaignRepositoryInterface interface {
	Create(c *model.Campaign) error
	GetByID(id string) (*model.Campaign, error)
	GetStats(campaignID string) (map[string]int, error)
}

type CampaignRepository struct {
	DB *sql.DB
}

func (r *CampaignRepository) Create(c *model.Campaign) error {
	if c.ID == "" {
		c.ID = uuid.NewString()
	}
	if c.Status == "" {
		c.Status = model.StatusScheduled
	}
	c.CreatedAt = time.Now()

	query := `
        INSERT INTO campaigns (id, owner_email, from_email, subject, body, status, scheduled_at, delay_between_ms, hourly_limit, created_at)
        VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)
    `
	_, err := r.DB.Exec(query,
		c.ID, c.OwnerEmail, c.FromEmail, c.Subject, c.Body,
		c.Status, c.ScheduledAt, c.DelayBetweenMs, c.HourlyLimit, c.CreatedAt,
	)
	return err
}

func (r *CampaignRepository) GetByID(id string) (*model.Campaign, error) {
	query := `
        SELECT id, owner_email, from_email, subject, body, status, scheduled_at, delay_between_ms, hourly_limit, created_at, updated_at
        FROM campaigns WHERE id=$1
    `
	var c model.Campaign
	err := r.DB.QueryRow(query, id).Scan(
		&c.ID, &c.OwnerEmail, &c.FromEmail, &c.Subject, &c.Body,
		&c.Status, &c.ScheduledAt, &c.DelayBetweenMs, &c.HourlyLimit,
		&c.CreatedAt, &c.UpdatedAt,
	)
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, appErrors.NewCampaignNotFound(id)
		}
		return nil, err
	}
	return &c, nil
}

// GetStats returns per-status recipient counts for a campaign.
func (r *CampaignRepository) GetStats(campaignID string) (map[string]int, error) {
	query := `SELECT status, COUNT(*) FROM recipient_jobs WHERE campaign_id=$1 GROUP BY status`
	rows, err := r.DB.Query(query, campaignID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	stats := map[string]int{
		model.StatusScheduled:  0,
		model.StatusProcessing: 0,
		model.StatusSent:       0,
		model.StatusFailed:     0,
	}
	for rows.Next() {
		var status string
		var count int
		if err := rows.Scan(&status, &count); err != nil {
			return nil, err
		}
		stats[status] = count
	}
	return stats, rows.Err()
}

var _ CampaignRepositoryInterface = (*CampaignRepository)(nil)
