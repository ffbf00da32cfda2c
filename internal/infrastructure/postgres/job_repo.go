package postgres

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/kaptiv/sequencer/internal/domain"
)

const jobColumns = `id, owner_id, to_email, subject, body_text, scheduled_for,
	status, attempts, last_error, message_id, sequence_run_id, step_id,
	timezone, created_at, updated_at`

type JobRepository struct {
	pool *pgxpool.Pool
}

func NewJobRepository(pool *pgxpool.Pool) *JobRepository {
	return &JobRepository{pool: pool}
}

func (r *JobRepository) Create(ctx context.Context, job *domain.Job) (*domain.Job, error) {
	query := `
		INSERT INTO scheduled_emails (
			owner_id, to_email, subject, body_text, scheduled_for,
			status, attempts, sequence_run_id, step_id, timezone
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)
		RETURNING ` + jobColumns

	row := r.pool.QueryRow(ctx, query,
		job.OwnerID, job.ToEmail, job.Subject, job.BodyText, job.ScheduledFor,
		domain.JobScheduled, 0, job.SequenceRunID, job.StepID, job.Timezone,
	)
	return scanJob(row)
}

func (r *JobRepository) GetByID(ctx context.Context, id string) (*domain.Job, error) {
	row := r.pool.QueryRow(ctx,
		`SELECT `+jobColumns+` FROM scheduled_emails WHERE id = $1`, id)
	return scanJob(row)
}

// Claim is the synchronization point of the whole system. FOR UPDATE SKIP
// LOCKED guarantees two concurrent claims never return overlapping rows;
// the status flip happens in the same statement so claimed rows are
// invisible to the next claim.
func (r *JobRepository) Claim(ctx context.Context, limit int) ([]*domain.Job, error) {
	query := `
		UPDATE scheduled_emails
		SET    status     = 'claimed',
		       updated_at = NOW()
		WHERE id IN (
			SELECT id FROM scheduled_emails
			WHERE  status        = 'scheduled'
			  AND  scheduled_for <= NOW()
			ORDER BY scheduled_for ASC, created_at ASC
			LIMIT $1
			FOR UPDATE SKIP LOCKED
		)
		RETURNING ` + jobColumns

	rows, err := r.pool.Query(ctx, query, limit)
	if err != nil {
		return nil, fmt.Errorf("claim jobs: %w", err)
	}
	defer rows.Close()

	var jobs []*domain.Job
	for rows.Next() {
		j, err := scanJob(rows)
		if err != nil {
			return nil, err
		}
		jobs = append(jobs, j)
	}
	return jobs, nil
}

func (r *JobRepository) MarkSent(ctx context.Context, jobID, messageID string) error {
	_, err := r.pool.Exec(ctx, `
		UPDATE scheduled_emails
		SET status = 'sent', message_id = $2, updated_at = NOW()
		WHERE id = $1 AND status = 'claimed'`,
		jobID, messageID)
	return err
}

func (r *JobRepository) Fail(ctx context.Context, jobID string, attempts int, lastError string) error {
	_, err := r.pool.Exec(ctx, `
		UPDATE scheduled_emails
		SET status = 'failed', attempts = $2, last_error = $3, updated_at = NOW()
		WHERE id = $1 AND status = 'claimed'`,
		jobID, attempts, lastError)
	return err
}

func (r *JobRepository) Reschedule(ctx context.Context, jobID string, attempts int, lastError string, retryAt time.Time) error {
	_, err := r.pool.Exec(ctx, `
		UPDATE scheduled_emails
		SET status = 'scheduled', attempts = $2, last_error = $3,
		    scheduled_for = $4, updated_at = NOW()
		WHERE id = $1 AND status = 'claimed'`,
		jobID, attempts, lastError, retryAt)
	return err
}

func (r *JobRepository) ReclaimStale(ctx context.Context, cutoff time.Time, limit int) (int, error) {
	tag, err := r.pool.Exec(ctx, `
		UPDATE scheduled_emails
		SET status = 'scheduled', updated_at = NOW()
		WHERE id IN (
			SELECT id FROM scheduled_emails
			WHERE  status     = 'claimed'
			  AND  updated_at < $1
			ORDER BY updated_at ASC
			LIMIT $2
			FOR UPDATE SKIP LOCKED
		)`, cutoff, limit)
	return int(tag.RowsAffected()), err
}

// pgx.Row and pgx.Rows both implement this.
type rowScanner interface {
	Scan(dest ...any) error
}

func scanJob(row rowScanner) (*domain.Job, error) {
	var j domain.Job
	err := row.Scan(
		&j.ID, &j.OwnerID, &j.ToEmail, &j.Subject, &j.BodyText, &j.ScheduledFor,
		&j.Status, &j.Attempts, &j.LastError, &j.MessageID, &j.SequenceRunID,
		&j.StepID, &j.Timezone, &j.CreatedAt, &j.UpdatedAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, domain.ErrJobNotFound
		}
		return nil, fmt.Errorf("scan job: %w", err)
	}
	return &j, nil
}
