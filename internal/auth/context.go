package auth

import (
	"context"
)

type ctxKey int

const actorKey ctxKey = iota

// DefaultActor is recorded in audit fields when the caller does not name itself.
const DefaultActor = "admin"

// WithActor stores the authenticated caller's name in the context.
func WithActor(ctx context.Context, actor string) context.Context {
	return context.WithValue(ctx, actorKey, actor)
}

// ActorFromContext returns the caller name, or DefaultActor if none is set.
func ActorFromContext(ctx context.Context) string {
	if v, ok := ctx.Value(actorKey).(string); ok && v != "" {
		return v
	}
	return DefaultActor
}
