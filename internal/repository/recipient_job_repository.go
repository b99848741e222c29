package repository

import (
	"database/sql"
	"time"

	"github.com/google/uuid"
	"github.com/lib/pq"

	"github.com/roshaldsouza/Email-Scheduler/internal/model"
)

type RecipientJobRepositoryInterface interface {
	Create(job *model.RecipientJob) error
	GetByID(id string) (*model.RecipientJob, error)

	// MarkProcessing flips scheduled -> processing. It refuses to touch a job
	// that already reached sent; the returned bool reports whether the
	// transition happened.
	MarkProcessing(id string) (bool, error)

	// Reschedule puts a rate-limited job back to scheduled with a new
	// scheduled_at. The job's fresh queue entry carries the same due time.
	Reschedule(id string, at time.Time) error

	// MarkSent is the terminal success transition. The compare-and-set on
	// status means a job enters sent exactly once; the bool reports whether
	// this call won.
	MarkSent(id string, at time.Time) (bool, error)

	// MarkFailed is the terminal transport-failure transition.
	MarkFailed(id string, lastError string) error

	// ListByOwnerAndStatus serves the scheduled/sent views: jobs joined with
	// their campaign's sender and subject, filtered by the owning user.
	ListByOwnerAndStatus(ownerEmail string, statuses []string, ascending bool) ([]model.RecipientJobView, error)
}

type RecipientJobRepository struct {
	DB *sql.DB
}

func (r *RecipientJobRepository) Create(job *model.RecipientJob) error {
	if job.ID == "" {
		job.ID = uuid.NewString()
	}
	if job.Status == "" {
		job.Status = model.StatusScheduled
	}
	now := time.Now()
	job.CreatedAt = now
	job.UpdatedAt = now

	query := `
        INSERT INTO recipient_jobs (id, campaign_id, to_email, status, scheduled_at, last_error, created_at, updated_at)
        VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
    `
	_, err := r.DB.Exec(query,
		job.ID, job.CampaignID, job.ToEmail, job.Status,
		job.ScheduledAt, job.LastError, job.CreatedAt, job.UpdatedAt,
	)
	return err
}

func (r *RecipientJobRepository) GetByID(id string) (*model.RecipientJob, error) {
	query := `
        SELECT id, campaign_id, to_email, status, scheduled_at, sent_at, last_error, created_at, updated_at
        FROM recipient_jobs WHERE id=$1
    `
	var job model.RecipientJob
	err := r.DB.QueryRow(query, id).Scan(
		&job.ID, &job.CampaignID, &job.ToEmail, &job.Status,
		&job.ScheduledAt, &job.SentAt, &job.LastError,
		&job.CreatedAt, &job.UpdatedAt,
	)
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, nil
		}
		return nil, err
	}
	return &job, nil
}

func (r *RecipientJobRepository) MarkProcessing(id string) (bool, error) {
	query := `
        UPDATE recipient_jobs SET status=$1, updated_at=NOW()
        WHERE id=$2 AND status <> $3
    `
	res, err := r.DB.Exec(query, model.StatusProcessing, id, model.StatusSent)
	if err != nil {
		return false, err
	}
	n, err := res.RowsAffected()
	return n > 0, err
}

func (r *RecipientJobRepository) Reschedule(id string, at time.Time) error {
	query := `
        UPDATE recipient_jobs SET status=$1, scheduled_at=$2, updated_at=NOW()
        WHERE id=$3 AND status <> $4
    `
	_, err := r.DB.Exec(query, model.StatusScheduled, at, id, model.StatusSent)
	return err
}

func (r *RecipientJobRepository) MarkSent(id string, at time.Time) (bool, error) {
	query := `
        UPDATE recipient_jobs SET status=$1, sent_at=$2, last_error='', updated_at=NOW()
        WHERE id=$3 AND status <> $1
    `
	res, err := r.DB.Exec(query, model.StatusSent, at, id)
	if err != nil {
		return false, err
	}
	n, err := res.RowsAffected()
	return n > 0, err
}

func (r *RecipientJobRepository) MarkFailed(id string, lastError string) error {
	query := `
        UPDATE recipient_jobs SET status=$1, last_error=$2, updated_at=NOW()
        WHERE id=$3 AND status <> $4
    `
	_, err := r.DB.Exec(query, model.StatusFailed, lastError, id, model.StatusSent)
	return err
}

func (r *RecipientJobRepository) ListByOwnerAndStatus(ownerEmail string, statuses []string, ascending bool) ([]model.RecipientJobView, error) {
	order := "ORDER BY rj.updated_at DESC"
	if ascending {
		order = "ORDER BY rj.scheduled_at ASC"
	}
	query := `
        SELECT rj.id, rj.campaign_id, rj.to_email, rj.status, rj.scheduled_at, rj.sent_at, rj.last_error, rj.created_at, rj.updated_at,
               c.from_email, c.subject
        FROM recipient_jobs rj
        JOIN campaigns c ON c.id = rj.campaign_id
        WHERE c.owner_email = $1 AND rj.status = ANY($2)
        ` + order

	rows, err := r.DB.Query(query, ownerEmail, pq.Array(statuses))
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	views := []model.RecipientJobView{}
	for rows.Next() {
		var v model.RecipientJobView
		if err := rows.Scan(
			&v.ID, &v.CampaignID, &v.ToEmail, &v.Status,
			&v.ScheduledAt, &v.SentAt, &v.LastError,
			&v.CreatedAt, &v.UpdatedAt,
			&v.FromEmail, &v.Subject,
		); err != nil {
			return nil, err
		}
		views = append(views, v)
	}
	return views, rows.Err()
}

var _ RecipientJobRepositoryInterface = (*RecipientJobRepository)(nil)
