// Package context carries request-scoped identifiers used for log and trace
// correlation.
package context

import (
	"context"
	"strings"

	"github.com/bwmarrin/snowflake"
)

type requestIDKey struct{}
type condominiumIDKey struct{}
type actorKey struct{}

type actor struct {
	role string
	id   string
}

func WithRequestID(ctx context.Context, requestID string) context.Context {
	requestID = strings.TrimSpace(requestID)
	if requestID == "" {
		return ctx
	}
	return context.WithValue(ctx, requestIDKey{}, requestID)
}

func RequestIDFromContext(ctx context.Context) string {
	if ctx == nil {
		return ""
	}
	if v, ok := ctx.Value(requestIDKey{}).(string); ok {
		return v
	}
	return ""
}

// WithCondominiumID stores the condominium the request is scoped to.
func WithCondominiumID(ctx context.Context, id snowflake.ID) context.Context {
	if id == 0 {
		return ctx
	}
	return context.WithValue(ctx, condominiumIDKey{}, id)
}

func CondominiumIDFromContext(ctx context.Context) (snowflake.ID, bool) {
	if ctx == nil {
		return 0, false
	}
	id, ok := ctx.Value(condominiumIDKey{}).(snowflake.ID)
	return id, ok && id != 0
}

func WithActor(ctx context.Context, role, id string) context.Context {
	return context.WithValue(ctx, actorKey{}, actor{role: strings.TrimSpace(role), id: strings.TrimSpace(id)})
}

// ActorFromContext returns the actor role and id, empty when unset.
func ActorFromContext(ctx context.Context) (string, string) {
	if ctx == nil {
		return "", ""
	}
	if v, ok := ctx.Value(actorKey{}).(actor); ok {
		return v.role, v.id
	}
	return "", ""
}
