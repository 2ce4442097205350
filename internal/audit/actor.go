package audit

import (
	"context"
	"strings"
)

// SystemActor is recorded when a mutation carries no caller identity.
const SystemActor = "system"

type actorKey struct{}

// WithActor attaches the caller identity used for audit entries and outbox envelopes.
func WithActor(ctx context.Context, actor string) context.Context {
	actor = strings.TrimSpace(actor)
	if actor == "" {
		return ctx
	}
	return context.WithValue(ctx, actorKey{}, actor)
}

// ActorFrom returns the caller identity or SystemActor.
func ActorFrom(ctx context.Context) string {
	if ctx == nil {
		return SystemActor
	}
	if actor, ok := ctx.Value(actorKey{}).(string); ok && actor != "" {
		return actor
	}
	return SystemActor
}
