package postgres

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/kaptiv/sequencer/internal/domain"
)

type EventRepository struct {
	pool *pgxpool.Pool
}

func NewEventRepository(pool *pgxpool.Pool) *EventRepository {
	return &EventRepository{pool: pool}
}

func (r *EventRepository) Insert(ctx context.Context, e *domain.EmailEvent) error {
	_, err := r.pool.Exec(ctx, `
		INSERT INTO email_events (run_id, step_id, status, message_id, last_error, sent_at)
		VALUES ($1, $2, $3, $4, $5, $6)`,
		e.RunID, e.StepID, e.Status, e.MessageID, e.LastError, e.SentAt)
	if err != nil {
		return fmt.Errorf("insert email event: %w", err)
	}
	return nil
}

func (r *EventRepository) ListByRun(ctx context.Context, runID string) ([]*domain.EmailEvent, error) {
	rows, err := r.pool.Query(ctx, `
		SELECT id, run_id, step_id, status, message_id, last_error, sent_at, created_at
		FROM email_events WHERE run_id = $1 ORDER BY created_at ASC`, runID)
	if err != nil {
		return nil, fmt.Errorf("list email events: %w", err)
	}
	defer rows.Close()

	var events []*domain.EmailEvent
	for rows.Next() {
		var e domain.EmailEvent
		if err := rows.Scan(&e.ID, &e.RunID, &e.StepID, &e.Status, &e.MessageID,
			&e.LastError, &e.SentAt, &e.CreatedAt); err != nil {
			return nil, fmt.Errorf("scan email event: %w", err)
		}
		events = append(events, &e)
	}
	return events, nil
}
