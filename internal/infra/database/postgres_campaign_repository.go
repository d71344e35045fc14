package database

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"assignment_tracker_bot/internal/domain/campaign"

	"github.com/jmoiron/sqlx"
)

// Custom errors
var ErrCampaignNotFound = fmt.Errorf("campaign job not found")

type PostgresCampaignRepository struct {
	db *sqlx.DB
}

func NewPostgresCampaignRepository(db *sqlx.DB) *PostgresCampaignRepository {
	return &PostgresCampaignRepository{db: db}
}

const campaignColumns = `id, created_by, template_key, template_text, course_id, missing_threshold,
       run_at, status, target_count, sent_count, error, created_at, started_at, finished_at`

func scanCampaignJob(row interface{ Scan(...any) error }) (*campaign.Job, error) {
	j := &campaign.Job{}
	err := row.Scan(
		&j.ID, &j.CreatedBy, &j.TemplateKey, &j.TemplateText, &j.CourseID, &j.MissingThreshold,
		&j.RunAt, &j.Status, &j.TargetCount, &j.SentCount, &j.Error, &j.CreatedAt, &j.StartedAt, &j.FinishedAt,
	)
	if err != nil {
		return nil, err
	}
	return j, nil
}

func (r *PostgresCampaignRepository) Create(ctx context.Context, j *campaign.Job) error {
	query := `INSERT INTO campaign_jobs (created_by, template_key, template_text, course_id, missing_threshold, run_at)
              VALUES ($1, $2, $3, $4, $5, $6)
              RETURNING id, status, created_at`
	err := r.db.QueryRowContext(ctx, query,
		j.CreatedBy, j.TemplateKey, j.TemplateText, j.CourseID, j.MissingThreshold, j.RunAt).
		Scan(&j.ID, &j.Status, &j.CreatedAt)
	if err != nil {
		return fmt.Errorf("error creating campaign job: %w", err)
	}
	return nil
}

func (r *PostgresCampaignRepository) GetByID(ctx context.Context, id int64) (*campaign.Job, error) {
	query := `SELECT ` + campaignColumns + ` FROM campaign_jobs WHERE id = $1`
	j, err := scanCampaignJob(r.db.QueryRowContext(ctx, query, id))
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, ErrCampaignNotFound
		}
		return nil, fmt.Errorf("error getting campaign job: %w", err)
	}
	return j, nil
}

func (r *PostgresCampaignRepository) ListDue(ctx context.Context, now time.Time) ([]*campaign.Job, error) {
	query := `SELECT ` + campaignColumns + ` FROM campaign_jobs
              WHERE status = 'pending' AND run_at <= $1
              ORDER BY run_at, id`
	rows, err := r.db.QueryContext(ctx, query, now)
	if err != nil {
		return nil, fmt.Errorf("error listing due campaign jobs: %w", err)
	}
	defer rows.Close()
	return collectCampaignJobs(rows)
}

// Claim is a compare-and-swap on status. With two pollers racing, the
// conditional UPDATE commits for exactly one of them.
func (r *PostgresCampaignRepository) Claim(ctx context.Context, id int64, now time.Time) (bool, error) {
	query := `UPDATE campaign_jobs
              SET status = 'running', started_at = $1
              WHERE id = $2 AND status = 'pending'`
	result, err := r.db.ExecContext(ctx, query, now, id)
	if err != nil {
		return false, fmt.Errorf("error claiming campaign job %d: %w", id, err)
	}
	affected, err := result.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("error reading claim result: %w", err)
	}
	return affected == 1, nil
}

func (r *PostgresCampaignRepository) Complete(ctx context.Context, id int64, targetCount, sentCount int, firstErr string) error {
	var errVal sql.NullString
	if firstErr != "" {
		errVal = sql.NullString{String: firstErr, Valid: true}
	}
	query := `UPDATE campaign_jobs
              SET status = 'completed', target_count = $1, sent_count = $2, error = $3, finished_at = NOW()
              WHERE id = $4 AND status = 'running'`
	result, err := r.db.ExecContext(ctx, query, targetCount, sentCount, errVal, id)
	if err != nil {
		return fmt.Errorf("error completing campaign job %d: %w", id, err)
	}
	affected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("error reading complete result: %w", err)
	}
	if affected == 0 {
		return ErrCampaignNotFound
	}
	return nil
}

func (r *PostgresCampaignRepository) Fail(ctx context.Context, id int64, errMsg string) error {
	query := `UPDATE campaign_jobs
              SET status = 'failed', error = $1, finished_at = NOW()
              WHERE id = $2 AND status = 'running'`
	result, err := r.db.ExecContext(ctx, query, errMsg, id)
	if err != nil {
		return fmt.Errorf("error failing campaign job %d: %w", id, err)
	}
	affected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("error reading fail result: %w", err)
	}
	if affected == 0 {
		return ErrCampaignNotFound
	}
	return nil
}

func (r *PostgresCampaignRepository) ListRecent(ctx context.Context, limit int) ([]*campaign.Job, error) {
	query := `SELECT ` + campaignColumns + ` FROM campaign_jobs
              ORDER BY created_at DESC
              LIMIT $1`
	rows, err := r.db.QueryContext(ctx, query, limit)
	if err != nil {
		return nil, fmt.Errorf("error listing recent campaign jobs: %w", err)
	}
	defer rows.Close()
	return collectCampaignJobs(rows)
}

func (r *PostgresCampaignRepository) FailAbandoned(ctx context.Context, reason string) (int64, error) {
	query := `UPDATE campaign_jobs
              SET status = 'failed', error = $1, finished_at = NOW()
              WHERE status = 'running'`
	result, err := r.db.ExecContext(ctx, query, reason)
	if err != nil {
		return 0, fmt.Errorf("error failing abandoned campaign jobs: %w", err)
	}
	affected, err := result.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("error reading abandoned result: %w", err)
	}
	return affected, nil
}

func collectCampaignJobs(rows *sql.Rows) ([]*campaign.Job, error) {
	jobs := make([]*campaign.Job, 0)
	for rows.Next() {
		j, err := scanCampaignJob(rows)
		if err != nil {
			return nil, fmt.Errorf("error scanning campaign job: %w", err)
		}
		jobs = append(jobs, j)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating campaign jobs: %w", err)
	}
	return jobs, nil
}
