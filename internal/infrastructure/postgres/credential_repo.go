package postgres

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/kaptiv/sequencer/internal/domain"
)

type CredentialRepository struct {
	pool *pgxpool.Pool
}

func NewCredentialRepository(pool *pgxpool.Pool) *CredentialRepository {
	return &CredentialRepository{pool: pool}
}

func (r *CredentialRepository) Upsert(ctx context.Context, ownerID, email, refreshToken string) error {
	_, err := r.pool.Exec(ctx, `
		INSERT INTO credentials (owner_id, email, refresh_token)
		VALUES ($1, $2, $3)
		ON CONFLICT (owner_id) DO UPDATE
		SET email = EXCLUDED.email, refresh_token = EXCLUDED.refresh_token`,
		ownerID, email, refreshToken)
	if err != nil {
		return fmt.Errorf("upsert credential: %w", err)
	}
	return nil
}

func (r *CredentialRepository) GetByOwner(ctx context.Context, ownerID string) (*domain.Credential, error) {
	var c domain.Credential
	err := r.pool.QueryRow(ctx, `
		SELECT owner_id, email, refresh_token, created_at, last_used_at
		FROM credentials WHERE owner_id = $1`, ownerID).
		Scan(&c.OwnerID, &c.Email, &c.RefreshToken, &c.CreatedAt, &c.LastUsedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, domain.ErrCredentialNotFound
		}
		return nil, fmt.Errorf("get credential: %w", err)
	}
	return &c, nil
}

func (r *CredentialRepository) TouchLastUsed(ctx context.Context, ownerID string) error {
	_, err := r.pool.Exec(ctx,
		`UPDATE credentials SET last_used_at = NOW() WHERE owner_id = $1`, ownerID)
	return err
}
