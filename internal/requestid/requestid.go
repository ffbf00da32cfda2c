// Package requestid carries the per-request correlation id through a
// context. The HTTP middleware assigns it; the log handler reads it back so
// every record of one request shares the same id.
package requestid

import (
	"context"

	"github.com/google/uuid"
)

type key struct{}

// New mints a fresh correlation id.
func New() string {
	return uuid.NewString()
}

// WithRequestID attaches id to ctx.
func WithRequestID(ctx context.Context, id string) context.Context {
	return context.WithValue(ctx, key{}, id)
}

// FromContext returns the id attached to ctx, or "" when there is none.
func FromContext(ctx context.Context) string {
	id, _ := ctx.Value(key{}).(string)
	return id
}
