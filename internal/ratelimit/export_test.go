package ratelimit

import (
	"context"
	"time"
)

// NewWithClock builds a limiter on a fake clock.
func NewWithClock(callsPerMinute int, now func() time.Time, sleep func(context.Context, time.Duration) error) *Limiter {
	return newLimiter(callsPerMinute, now, sleep)
}
