package domain

import (
	"errors"
	"time"
)

var ErrStateInvalid = errors.New("oauth state is invalid or expired")

// OAuthState is a single-use ticket binding a random nonce to the tenant
// that started the flow. Consumed exactly once at the provider callback.
type OAuthState struct {
	State     string
	OwnerID   string
	ReturnURL string
	ExpiresAt time.Time
	CreatedAt time.Time
}
