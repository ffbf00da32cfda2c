package repository

import (
	"context"

	"github.com/kaptiv/sequencer/internal/domain"
)

type CredentialRepository interface {
	// Upsert stores or replaces the single credential row for a tenant.
	Upsert(ctx context.Context, ownerID, email, refreshToken string) error
	GetByOwner(ctx context.Context, ownerID string) (*domain.Credential, error)
	TouchLastUsed(ctx context.Context, ownerID string) error
}
