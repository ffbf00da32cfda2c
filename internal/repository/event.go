package repository

import (
	"context"

	"github.com/kaptiv/sequencer/internal/domain"
)

type EventRepository interface {
	Insert(ctx context.Context, e *domain.EmailEvent) error
	ListByRun(ctx context.Context, runID string) ([]*domain.EmailEvent, error)
}
