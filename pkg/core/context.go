package core

import "context"

type cycleIDKey struct{}

// WithCycleID attaches a processing-cycle id to the context.
func WithCycleID(ctx context.Context, id ID) context.Context {
	return context.WithValue(ctx, cycleIDKey{}, id)
}

// CycleIDFromContext returns the cycle id if present.
func CycleIDFromContext(ctx context.Context) (ID, bool) {
	id, ok := ctx.Value(cycleIDKey{}).(ID)
	return id, ok
}

// EnsureCycleID ensures a cycle id exists in the context.
func EnsureCycleID(ctx context.Context) (context.Context, ID) {
	if id, ok := CycleIDFromContext(ctx); ok {
		return ctx, id
	}
	id := NewID()
	return WithCycleID(ctx, id), id
}
