package clock

import (
	"context"
	"time"
)

type key string

var asOfKey key = "clock_as_of"

// WithTime pins the time reported by clocks for the lifetime of ctx. The
// cleanup command uses it to evaluate overdue rows as of a given date.
func WithTime(ctx context.Context, t time.Time) context.Context {
	return context.WithValue(ctx, asOfKey, t.UTC())
}

// FromContext returns the pinned time, if any.
func FromContext(ctx context.Context) (time.Time, bool) {
	if ctx == nil {
		return time.Time{}, false
	}
	t, ok := ctx.Value(asOfKey).(time.Time)
	return t, ok
}
