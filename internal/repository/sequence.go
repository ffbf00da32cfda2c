package repository

import (
	"context"
	"time"

	"github.com/kaptiv/sequencer/internal/domain"
)

type SequenceRepository interface {
	GetSequence(ctx context.Context, id string) (*domain.Sequence, error)
	ListSteps(ctx context.Context, sequenceID string) ([]*domain.Step, error)
	GetStep(ctx context.Context, stepID string) (*domain.Step, error)

	// NextStep returns the step with the smallest step_order strictly
	// greater than afterOrder, or domain.ErrStepNotFound when the sequence
	// is exhausted.
	NextStep(ctx context.Context, sequenceID string, afterOrder int) (*domain.Step, error)

	InsertSteps(ctx context.Context, steps []*domain.Step) ([]*domain.Step, error)
	UpsertStep(ctx context.Context, step *domain.Step) (*domain.Step, error)

	ListRecipients(ctx context.Context, sequenceID string) ([]string, error)

	CreateRun(ctx context.Context, run *domain.Run) (*domain.Run, error)
	GetRun(ctx context.Context, id string) (*domain.Run, error)

	// AdvanceRun records a successful send: sets current_step and
	// last_sent_at, and sets thread_id only if the run has none yet
	// (first write wins). Returns the run as persisted.
	AdvanceRun(ctx context.Context, runID string, stepOrder int, sentAt time.Time, threadID *string) (*domain.Run, error)

	SetRunStatus(ctx context.Context, runID string, status domain.RunStatus) error
}
