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

type OAuthStateRepository struct {
	pool *pgxpool.Pool
}

func NewOAuthStateRepository(pool *pgxpool.Pool) *OAuthStateRepository {
	return &OAuthStateRepository{pool: pool}
}

func (r *OAuthStateRepository) Create(ctx context.Context, s *domain.OAuthState) error {
	_, err := r.pool.Exec(ctx, `
		INSERT INTO oauth_states (state, owner_id, return_url, expires_at)
		VALUES ($1, $2, $3, $4)`,
		s.State, s.OwnerID, s.ReturnURL, s.ExpiresAt)
	if err != nil {
		return fmt.Errorf("create oauth state: %w", err)
	}
	return nil
}

// Consume deletes and returns the row in one statement, so a replayed
// callback with the same nonce finds nothing. An expired row is removed but
// still rejected.
func (r *OAuthStateRepository) Consume(ctx context.Context, state string) (*domain.OAuthState, error) {
	var s domain.OAuthState
	err := r.pool.QueryRow(ctx, `
		DELETE FROM oauth_states
		WHERE state = $1
		RETURNING state, owner_id, return_url, expires_at, created_at`, state).
		Scan(&s.State, &s.OwnerID, &s.ReturnURL, &s.ExpiresAt, &s.CreatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, domain.ErrStateInvalid
		}
		return nil, fmt.Errorf("consume oauth state: %w", err)
	}
	if time.Now().After(s.ExpiresAt) {
		return nil, domain.ErrStateInvalid
	}
	return &s, nil
}
