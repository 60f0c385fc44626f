package statcan

import (
	"context"
	"fmt"
	"sync"
	"time"

	"golang.org/x/time/rate"
)

// Limiter admits at most calls requests in any rolling window of period.
// Up to calls requests pass back to back; a caller only waits once the
// quota is spent. The token bucket holds calls tokens and a log of the
// last calls grant times pins the window bound exactly, so float rounding
// inside the bucket can never let an extra call through.
//
// A grant is the moment Wait returns. A grant cancelled by ctx still counts
// against the window.
type Limiter struct {
	calls  int
	period time.Duration

	mu     sync.Mutex
	pace   *rate.Limiter
	recent []time.Time

	now   func() time.Time
	sleep func(ctx context.Context, d time.Duration) error
}

// NewLimiter returns a limiter for calls per period using the wall clock.
func NewLimiter(calls int, period time.Duration) *Limiter {
	return NewLimiterWithClock(calls, period, time.Now, sleepCtx)
}

// NewLimiterWithClock lets tests drive time.
func NewLimiterWithClock(calls int, period time.Duration, now func() time.Time, sleep func(context.Context, time.Duration) error) *Limiter {
	if calls < 1 {
		calls = 1
	}
	return &Limiter{
		calls:  calls,
		period: period,
		pace:   rate.NewLimiter(rate.Every(period/time.Duration(calls)), calls),
		recent: make([]time.Time, 0, calls),
		now:    now,
		sleep:  sleep,
	}
}

// Wait blocks until a call may be made and returns how long it waited.
func (l *Limiter) Wait(ctx context.Context) (time.Duration, error) {
	if err := ctx.Err(); err != nil {
		return 0, err
	}
	l.mu.Lock()
	now := l.now()
	r := l.pace.ReserveN(now, 1)
	if !r.OK() {
		l.mu.Unlock()
		return 0, fmt.Errorf("rate limiter cannot grant a call")
	}
	at := now.Add(r.DelayFrom(now))
	if n := len(l.recent); n > 0 && at.Before(l.recent[n-1]) {
		at = l.recent[n-1]
	}
	if len(l.recent) == l.calls {
		if open := l.recent[0].Add(l.period); at.Before(open) {
			at = open
		}
		l.recent = append(l.recent[:0], l.recent[1:]...)
	}
	l.recent = append(l.recent, at)
	l.mu.Unlock()

	d := at.Sub(now)
	if d <= 0 {
		return 0, nil
	}
	if err := l.sleep(ctx, d); err != nil {
		return 0, err
	}
	return d, nil
}

func sleepCtx(ctx context.Context, d time.Duration) error {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}
