package postgres

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/kaptiv/sequencer/internal/domain"
)

const stepColumns = `id, sequence_id, step_order, subject, body_text, delay_days, created_at`

const runColumns = `id, sequence_id, owner_id, recipient_email, status,
	current_step, thread_id, last_sent_at, created_at, updated_at`

type SequenceRepository struct {
	pool *pgxpool.Pool
}

func NewSequenceRepository(pool *pgxpool.Pool) *SequenceRepository {
	return &SequenceRepository{pool: pool}
}

func (r *SequenceRepository) GetSequence(ctx context.Context, id string) (*domain.Sequence, error) {
	var s domain.Sequence
	err := r.pool.QueryRow(ctx,
		`SELECT id, owner_id, name, created_at FROM sequences WHERE id = $1`, id).
		Scan(&s.ID, &s.OwnerID, &s.Name, &s.CreatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, domain.ErrSequenceNotFound
		}
		return nil, fmt.Errorf("get sequence: %w", err)
	}
	return &s, nil
}

func (r *SequenceRepository) ListSteps(ctx context.Context, sequenceID string) ([]*domain.Step, error) {
	rows, err := r.pool.Query(ctx,
		`SELECT `+stepColumns+` FROM sequence_steps
		 WHERE sequence_id = $1 ORDER BY step_order ASC`, sequenceID)
	if err != nil {
		return nil, fmt.Errorf("list steps: %w", err)
	}
	defer rows.Close()

	var steps []*domain.Step
	for rows.Next() {
		s, err := scanStep(rows)
		if err != nil {
			return nil, err
		}
		steps = append(steps, s)
	}
	return steps, nil
}

func (r *SequenceRepository) GetStep(ctx context.Context, stepID string) (*domain.Step, error) {
	row := r.pool.QueryRow(ctx,
		`SELECT `+stepColumns+` FROM sequence_steps WHERE id = $1`, stepID)
	return scanStep(row)
}

func (r *SequenceRepository) NextStep(ctx context.Context, sequenceID string, afterOrder int) (*domain.Step, error) {
	row := r.pool.QueryRow(ctx,
		`SELECT `+stepColumns+` FROM sequence_steps
		 WHERE sequence_id = $1 AND step_order > $2
		 ORDER BY step_order ASC LIMIT 1`, sequenceID, afterOrder)
	return scanStep(row)
}

func (r *SequenceRepository) InsertSteps(ctx context.Context, steps []*domain.Step) ([]*domain.Step, error) {
	tx, err := r.pool.Begin(ctx)
	if err != nil {
		return nil, fmt.Errorf("begin: %w", err)
	}
	defer tx.Rollback(ctx)

	inserted := make([]*domain.Step, 0, len(steps))
	for _, s := range steps {
		row := tx.QueryRow(ctx, `
			INSERT INTO sequence_steps (sequence_id, step_order, subject, body_text, delay_days)
			VALUES ($1, $2, $3, $4, $5)
			RETURNING `+stepColumns,
			s.SequenceID, s.StepOrder, s.Subject, s.BodyText, s.DelayDays)
		created, err := scanStep(row)
		if err != nil {
			var pgErr *pgconn.PgError
			if errors.As(err, &pgErr) && pgErr.Code == "23505" {
				return nil, domain.ErrStepOrderConflict
			}
			return nil, err
		}
		inserted = append(inserted, created)
	}

	if err := tx.Commit(ctx); err != nil {
		return nil, fmt.Errorf("commit: %w", err)
	}
	return inserted, nil
}

func (r *SequenceRepository) UpsertStep(ctx context.Context, s *domain.Step) (*domain.Step, error) {
	var row pgx.Row
	if s.ID != "" {
		row = r.pool.QueryRow(ctx, `
			UPDATE sequence_steps
			SET subject = $2, body_text = $3, step_order = $4, delay_days = $5
			WHERE id = $1
			RETURNING `+stepColumns,
			s.ID, s.Subject, s.BodyText, s.StepOrder, s.DelayDays)
	} else {
		row = r.pool.QueryRow(ctx, `
			INSERT INTO sequence_steps (sequence_id, step_order, subject, body_text, delay_days)
			VALUES ($1, $2, $3, $4, $5)
			ON CONFLICT (sequence_id, step_order) DO UPDATE
			SET subject = EXCLUDED.subject,
			    body_text = EXCLUDED.body_text,
			    delay_days = EXCLUDED.delay_days
			RETURNING `+stepColumns,
			s.SequenceID, s.StepOrder, s.Subject, s.BodyText, s.DelayDays)
	}

	updated, err := scanStep(row)
	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == "23505" {
			return nil, domain.ErrStepOrderConflict
		}
		return nil, err
	}
	return updated, nil
}

func (r *SequenceRepository) ListRecipients(ctx context.Context, sequenceID string) ([]string, error) {
	rows, err := r.pool.Query(ctx,
		`SELECT email FROM sequence_recipients
		 WHERE sequence_id = $1 ORDER BY created_at ASC`, sequenceID)
	if err != nil {
		return nil, fmt.Errorf("list recipients: %w", err)
	}
	defer rows.Close()

	var emails []string
	for rows.Next() {
		var e string
		if err := rows.Scan(&e); err != nil {
			return nil, fmt.Errorf("scan recipient: %w", err)
		}
		emails = append(emails, e)
	}
	return emails, nil
}

func (r *SequenceRepository) CreateRun(ctx context.Context, run *domain.Run) (*domain.Run, error) {
	row := r.pool.QueryRow(ctx, `
		INSERT INTO sequence_runs (sequence_id, owner_id, recipient_email, status, current_step)
		VALUES ($1, $2, $3, $4, $5)
		RETURNING `+runColumns,
		run.SequenceID, run.OwnerID, run.RecipientEmail, domain.RunActive, 0)
	return scanRun(row)
}

func (r *SequenceRepository) GetRun(ctx context.Context, id string) (*domain.Run, error) {
	row := r.pool.QueryRow(ctx,
		`SELECT `+runColumns+` FROM sequence_runs WHERE id = $1`, id)
	return scanRun(row)
}

// AdvanceRun uses COALESCE so thread_id is written exactly once; later sends
// in the same thread cannot overwrite it.
func (r *SequenceRepository) AdvanceRun(ctx context.Context, runID string, stepOrder int, sentAt time.Time, threadID *string) (*domain.Run, error) {
	row := r.pool.QueryRow(ctx, `
		UPDATE sequence_runs
		SET current_step = $2,
		    last_sent_at = $3,
		    thread_id    = COALESCE(thread_id, $4),
		    updated_at   = NOW()
		WHERE id = $1
		RETURNING `+runColumns,
		runID, stepOrder, sentAt, threadID)
	return scanRun(row)
}

func (r *SequenceRepository) SetRunStatus(ctx context.Context, runID string, status domain.RunStatus) error {
	_, err := r.pool.Exec(ctx,
		`UPDATE sequence_runs SET status = $2, updated_at = NOW() WHERE id = $1`,
		runID, status)
	return err
}

func scanStep(row rowScanner) (*domain.Step, error) {
	var s domain.Step
	err := row.Scan(&s.ID, &s.SequenceID, &s.StepOrder, &s.Subject, &s.BodyText, &s.DelayDays, &s.CreatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, domain.ErrStepNotFound
		}
		return nil, fmt.Errorf("scan step: %w", err)
	}
	return &s, nil
}

func scanRun(row rowScanner) (*domain.Run, error) {
	var r domain.Run
	err := row.Scan(
		&r.ID, &r.SequenceID, &r.OwnerID, &r.RecipientEmail, &r.Status,
		&r.CurrentStep, &r.ThreadID, &r.LastSentAt, &r.CreatedAt, &r.UpdatedAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, domain.ErrRunNotFound
		}
		return nil, fmt.Errorf("scan run: %w", err)
	}
	return &r, nil
}
