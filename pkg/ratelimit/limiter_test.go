package ratelimit

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestFixedWindowLimiter(t *testing.T) {
	limiter := NewFixedWindowLimiter(15*time.Minute, 30)
	now := time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)
	limiter.SetNowFunc(func() time.Time { return now })

	ctx := context.Background()

	// the full allowance is admitted
	for i := 0; i < 30; i++ {
		allowed, err := limiter.Allow(ctx, "198.51.100.1")
		require.NoError(t, err)
		assert.True(t, allowed, "request %d should be allowed", i+1)
	}

	// the 31st request in the same window is denied
	allowed, err := limiter.Allow(ctx, "198.51.100.1")
	require.NoError(t, err)
	assert.False(t, allowed)

	// another key is unaffected
	allowed, err = limiter.Allow(ctx, "198.51.100.2")
	require.NoError(t, err)
	assert.True(t, allowed)

	// a new window resets the count
	now = now.Add(15 * time.Minute)
	allowed, err = limiter.Allow(ctx, "198.51.100.1")
	require.NoError(t, err)
	assert.True(t, allowed)
}

func TestFixedWindowLimiterReset(t *testing.T) {
	limiter := NewFixedWindowLimiter(time.Minute, 2)
	ctx := context.Background()

	for i := 0; i < 2; i++ {
		allowed, err := limiter.Allow(ctx, "key")
		require.NoError(t, err)
		require.True(t, allowed)
	}
	allowed, err := limiter.Allow(ctx, "key")
	require.NoError(t, err)
	require.False(t, allowed)

	limiter.Reset("key")

	allowed, err = limiter.Allow(ctx, "key")
	require.NoError(t, err)
	assert.True(t, allowed)
}
