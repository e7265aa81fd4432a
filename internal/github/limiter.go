package github

import (
	"context"
	"sync"
	"time"

	gh "github.com/google/go-github/v57/github"
)

// limiter tracks the remaining request budget reported by the API. Before
// each request: if the budget is exhausted and the reset is still in the
// future, block until then (bounded by maxWait). The locally tracked count
// is decremented optimistically and reconciled with the authoritative
// response headers afterwards. One limiter instance is shared across all
// calls of a Client, so a pagination burst cannot exceed capacity.
type limiter struct {
	mu        sync.Mutex
	remaining int // -1 until the first response tells us
	resetAt   time.Time
	maxWait   time.Duration

	now   func() time.Time
	sleep func(context.Context, time.Duration) error
}

func newLimiter(maxWait time.Duration) *limiter {
	return &limiter{
		remaining: -1,
		maxWait:   maxWait,
		now:       time.Now,
		sleep:     sleepCtx,
	}
}

func (l *limiter) acquire(ctx context.Context) error {
	l.mu.Lock()
	if l.remaining == 0 {
		wait := l.resetAt.Sub(l.now())
		if wait > 0 {
			if l.maxWait > 0 && wait > l.maxWait {
				resetAt := l.resetAt
				l.mu.Unlock()
				return &RateLimitError{ResetAt: resetAt, Wait: wait}
			}
			l.mu.Unlock()
			if err := l.sleep(ctx, wait); err != nil {
				return err
			}
			l.mu.Lock()
		}
		// Window rolled over; budget unknown until the next reconcile.
		if !l.now().Before(l.resetAt) {
			l.remaining = -1
		}
	}
	if l.remaining > 0 {
		l.remaining--
	}
	l.mu.Unlock()
	return nil
}

func (l *limiter) reconcile(rate gh.Rate) {
	if rate.Limit == 0 {
		// Response carried no rate headers.
		return
	}
	l.mu.Lock()
	l.remaining = rate.Remaining
	l.resetAt = rate.Reset.Time
	l.mu.Unlock()
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
