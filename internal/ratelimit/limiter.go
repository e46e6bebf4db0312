// Package ratelimit spaces out calls to a downstream target.
package ratelimit

import (
	"context"
	"time"

	"golang.org/x/time/rate"
)

// Limiter guarantees that consecutive Wait calls return at least one
// interval apart, measured from the moment the previous Wait actually
// returned. The first call never waits.
type Limiter struct {
	interval time.Duration
	// Serializes Wait; a buffered slot so queued callers still see ctx.
	sem   chan struct{}
	lim   *rate.Limiter
	now   func() time.Time
	sleep func(context.Context, time.Duration) error
}

// New returns a limiter admitting callsPerMinute call starts per minute.
// A non-positive rate disables limiting.
func New(callsPerMinute int) *Limiter {
	return newLimiter(callsPerMinute, time.Now, sleep)
}

func newLimiter(callsPerMinute int, now func() time.Time, sleep func(context.Context, time.Duration) error) *Limiter {
	l := &Limiter{
		sem:   make(chan struct{}, 1),
		now:   now,
		sleep: sleep,
	}
	if callsPerMinute <= 0 {
		l.lim = rate.NewLimiter(rate.Inf, 1)
		return l
	}
	l.interval = time.Minute / time.Duration(callsPerMinute)
	l.lim = rate.NewLimiter(rate.Every(l.interval), 1)
	return l
}

// Interval returns the minimum spacing between call starts.
func (l *Limiter) Interval() time.Duration {
	return l.interval
}

// Wait blocks until the caller may start its call. It returns early only
// when ctx is done.
func (l *Limiter) Wait(ctx context.Context) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if l.interval == 0 {
		return nil
	}

	select {
	case l.sem <- struct{}{}:
	case <-ctx.Done():
		return ctx.Err()
	}
	defer func() { <-l.sem }()

	now := l.now()
	r := l.lim.ReserveN(now, 1)
	if d := r.DelayFrom(now); d > 0 {
		if err := l.sleep(ctx, d); err != nil {
			r.CancelAt(l.now())
			return err
		}
	}

	// Restart the token grid at the real start so a late wakeup never
	// shortens the following gap.
	l.lim = rate.NewLimiter(rate.Every(l.interval), 1)
	l.lim.AllowN(l.now(), 1)
	return nil
}

func sleep(ctx context.Context, d time.Duration) error {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-t.C:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}
