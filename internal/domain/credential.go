package domain

import (
	"errors"
	"time"
)

var (
	ErrCredentialNotFound = errors.New("credential not found")
	ErrNoRefreshToken     = errors.New("no_refresh_token")
)

// Credential holds a tenant's offline grant. At most one row per owner.
// A nil RefreshToken means the tenant never completed the OAuth flow (or
// revoked it); any send against it fails with ErrNoRefreshToken.
type Credential struct {
	OwnerID      string
	Email        *string
	RefreshToken *string
	CreatedAt    time.Time
	LastUsedAt   *time.Time
}
