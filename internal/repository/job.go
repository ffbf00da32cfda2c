package repository

import (
	"context"
	"time"

	"github.com/kaptiv/sequencer/internal/domain"
)

// The worker depends on interfaces, not concrete implementations, so tests
// can substitute fakes and the store can be swapped without touching the
// scheduling logic.
type JobRepository interface {
	Create(ctx context.Context, job *domain.Job) (*domain.Job, error)
	GetByID(ctx context.Context, id string) (*domain.Job, error)

	// Claim atomically selects up to limit scheduled jobs whose
	// scheduled_for has passed, flips them to claimed, and returns them
	// ordered by scheduled_for. Two concurrent claims never overlap.
	Claim(ctx context.Context, limit int) ([]*domain.Job, error)

	MarkSent(ctx context.Context, jobID, messageID string) error
	Fail(ctx context.Context, jobID string, attempts int, lastError string) error
	Reschedule(ctx context.Context, jobID string, attempts int, lastError string, retryAt time.Time) error

	// ReclaimStale reverts claimed rows older than cutoff back to
	// scheduled. Only used when the operator enables the reaper; reclaimed
	// jobs may produce a duplicate send if the original worker already
	// reached the provider.
	ReclaimStale(ctx context.Context, cutoff time.Time, limit int) (int, error)
}
