package gateway

import (
	"context"

	"github.com/google/uuid"
)

// contextKey is a custom type for context keys to avoid collisions
type contextKey string

const userIDContextKey contextKey = "user_id"

// WithUserID returns a context carrying the authenticated caller's id.
// The session middleware sets it; handlers read it back with UserID.
func WithUserID(ctx context.Context, id uuid.UUID) context.Context {
	return context.WithValue(ctx, userIDContextKey, id)
}

// UserID retrieves the caller's id from the request context.
// Returns uuid.Nil if no user is authenticated.
func UserID(ctx context.Context) uuid.UUID {
	id, ok := ctx.Value(userIDContextKey).(uuid.UUID)
	if !ok {
		return uuid.Nil
	}
	return id
}
