package orm

import (
	"context"
	"time"
)

// Clock provides the current time. Implementations can return fixed
// times for deterministic testing.
type Clock interface {
	Now() time.Time
}

type clockKey struct{}

// WithClock returns a child context carrying the given Clock.
// Repositories use this Clock instead of time.Now() when setting
// created_at / updated_at columns.
func WithClock(ctx context.Context, c Clock) context.Context {
	return context.WithValue(ctx, clockKey{}, c)
}

// Now returns the current time from the Clock in ctx, or time.Now()
// if no Clock is present.
func Now(ctx context.Context) time.Time {
	if c, ok := ctx.Value(clockKey{}).(Clock); ok {
		return c.Now()
	}
	return time.Now()
}
