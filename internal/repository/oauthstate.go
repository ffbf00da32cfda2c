package repository

import (
	"context"

	"github.com/kaptiv/sequencer/internal/domain"
)

type OAuthStateRepository interface {
	Create(ctx context.Context, s *domain.OAuthState) error

	// Consume atomically deletes and returns an unexpired state row.
	// Unknown, already-consumed, and expired nonces all yield
	// domain.ErrStateInvalid, so a replayed callback cannot exchange a
	// second code.
	Consume(ctx context.Context, state string) (*domain.OAuthState, error)
}
