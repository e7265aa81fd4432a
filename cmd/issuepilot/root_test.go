package main

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestStopAndWaitBlocksForInFlightWork(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())

	var finished atomic.Bool
	done := make(chan error, 1)
	go func() {
		<-ctx.Done()
		// The daemon lets the current attempt wrap up before returning.
		time.Sleep(20 * time.Millisecond)
		finished.Store(true)
		done <- nil
	}()

	require.NoError(t, stopAndWait(cancel, done))
	assert.True(t, finished.Load(), "stopAndWait must not return before the daemon does")
}

func TestStopAndWaitReturnsDaemonError(t *testing.T) {
	_, cancel := context.WithCancel(context.Background())
	defer cancel()

	done := make(chan error, 1)
	done <- errors.New("token rejected")
	assert.EqualError(t, stopAndWait(cancel, done), "token rejected")
}

func TestSplitRepoArg(t *testing.T) {
	owner, repo, err := splitRepoArg("acme/widgets")
	require.NoError(t, err)
	assert.Equal(t, "acme", owner)
	assert.Equal(t, "widgets", repo)

	for _, bad := range []string{"", "acme", "acme/", "/widgets", "a/b/c"} {
		_, _, err := splitRepoArg(bad)
		assert.Error(t, err, "input %q", bad)
	}
}
