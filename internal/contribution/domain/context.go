package domain

import "context"

type triggerKey struct{}

// WithTrigger labels the recompute started with ctx, e.g. "feed" or "manual".
func WithTrigger(ctx context.Context, trigger string) context.Context {
	return context.WithValue(ctx, triggerKey{}, trigger)
}

func TriggerFromContext(ctx context.Context) string {
	if v, ok := ctx.Value(triggerKey{}).(string); ok && v != "" {
		return v
	}
	return "request"
}
