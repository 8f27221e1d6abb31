package common

import "context"

type ctxKey string

const (
	userIDKey ctxKey = "auth/user-id"
	anonIDKey ctxKey = "session/anon-id"
)

// WithUserID stores the authenticated user identifier on the context.
func WithUserID(ctx context.Context, id string) context.Context {
	return context.WithValue(ctx, userIDKey, id)
}

// UserID extracts the authenticated user identifier from the context.
func UserID(ctx context.Context) (string, bool) {
	id, ok := ctx.Value(userIDKey).(string)
	return id, ok && id != ""
}

// WithAnonID stores a guest session identifier on the context.
func WithAnonID(ctx context.Context, id string) context.Context {
	return context.WithValue(ctx, anonIDKey, id)
}

// AnonID extracts the guest session identifier from the context.
func AnonID(ctx context.Context) (string, bool) {
	id, ok := ctx.Value(anonIDKey).(string)
	return id, ok && id != ""
}
