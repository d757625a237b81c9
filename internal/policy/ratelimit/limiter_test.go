package ratelimit

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestLimiterWaitSpacesSameHost(t *testing.T) {
	t.Parallel()

	l := New(Config{Delay: 100 * time.Millisecond})
	ctx := context.Background()

	require.NoError(t, l.Wait(ctx, "https://www.justice.gov/a"))
	start := time.Now()
	require.NoError(t, l.Wait(ctx, "https://www.justice.gov/b"))
	require.GreaterOrEqual(t, time.Since(start), 80*time.Millisecond)
}

func TestLimiterDifferentHostsIndependent(t *testing.T) {
	t.Parallel()

	l := New(Config{Delay: time.Second})
	ctx := context.Background()

	require.NoError(t, l.Wait(ctx, "https://a.gov/1"))
	start := time.Now()
	require.NoError(t, l.Wait(ctx, "https://b.gov/1"))
	require.Less(t, time.Since(start), 50*time.Millisecond)
}

func TestNoDelayNeverBlocks(t *testing.T) {
	t.Parallel()

	l := NoDelay()
	ctx := context.Background()
	start := time.Now()
	for range 100 {
		require.NoError(t, l.Wait(ctx, "https://a.gov/1"))
	}
	require.Less(t, time.Since(start), 50*time.Millisecond)
}

func TestLimiterHonorsCancellation(t *testing.T) {
	t.Parallel()

	l := New(Config{Delay: time.Hour})
	ctx, cancel := context.WithCancel(context.Background())
	require.NoError(t, l.Wait(ctx, "https://a.gov/1"))
	cancel()
	require.Error(t, l.Wait(ctx, "https://a.gov/2"))
}
