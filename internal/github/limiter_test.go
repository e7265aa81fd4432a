package github

import (
	"context"
	"testing"
	"time"

	gh "github.com/google/go-github/v57/github"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testLimiter(maxWait time.Duration, now time.Time) (*limiter, *[]time.Duration) {
	l := newLimiter(maxWait)
	slept := &[]time.Duration{}
	l.now = func() time.Time { return now }
	l.sleep = func(_ context.Context, d time.Duration) error {
		*slept = append(*slept, d)
		// The window has passed once we wake up.
		l.now = func() time.Time { return now.Add(d) }
		return nil
	}
	return l, slept
}

func TestLimiterBlocksWhenExhausted(t *testing.T) {
	now := time.Now()
	l, slept := testLimiter(time.Minute, now)
	l.reconcile(gh.Rate{Limit: 5000, Remaining: 0, Reset: gh.Timestamp{Time: now.Add(5 * time.Second)}})

	require.NoError(t, l.acquire(context.Background()))
	require.Len(t, *slept, 1)
	assert.Equal(t, 5*time.Second, (*slept)[0])
}

func TestLimiterNoBlockWithBudget(t *testing.T) {
	now := time.Now()
	l, slept := testLimiter(time.Minute, now)
	l.reconcile(gh.Rate{Limit: 5000, Remaining: 3, Reset: gh.Timestamp{Time: now.Add(time.Hour)}})

	require.NoError(t, l.acquire(context.Background()))
	assert.Empty(t, *slept)

	// Optimistic local decrement.
	l.mu.Lock()
	assert.Equal(t, 2, l.remaining)
	l.mu.Unlock()
}

func TestLimiterNoBlockBeforeFirstResponse(t *testing.T) {
	now := time.Now()
	l, slept := testLimiter(time.Minute, now)

	require.NoError(t, l.acquire(context.Background()))
	assert.Empty(t, *slept)
}

func TestLimiterWaitBound(t *testing.T) {
	now := time.Now()
	l, slept := testLimiter(time.Minute, now)
	l.reconcile(gh.Rate{Limit: 5000, Remaining: 0, Reset: gh.Timestamp{Time: now.Add(time.Hour)}})

	err := l.acquire(context.Background())
	require.Error(t, err)
	var rle *RateLimitError
	require.ErrorAs(t, err, &rle)
	assert.Empty(t, *slept)
}

func TestLimiterIgnoresMissingHeaders(t *testing.T) {
	now := time.Now()
	l, _ := testLimiter(time.Minute, now)
	l.reconcile(gh.Rate{Limit: 5000, Remaining: 9, Reset: gh.Timestamp{Time: now.Add(time.Hour)}})
	l.reconcile(gh.Rate{}) // response without rate headers

	l.mu.Lock()
	assert.Equal(t, 9, l.remaining)
	l.mu.Unlock()
}
