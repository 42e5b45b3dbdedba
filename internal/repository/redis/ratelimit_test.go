package redis

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRateLimiter_Allow(t *testing.T) {
	client, _ := newTestClient(t)
	limiter := NewRateLimiter(client, 2, 1)
	ctx := context.Background()

	for i := 0; i < 3; i++ {
		allowed, remaining, _, err := limiter.Allow(ctx, "Ana")
		require.NoError(t, err)
		assert.True(t, allowed)
		assert.Equal(t, 2-i, remaining)
	}

	allowed, remaining, reset, err := limiter.Allow(ctx, "Ana")
	require.NoError(t, err)
	assert.False(t, allowed)
	assert.Equal(t, 0, remaining)
	assert.False(t, reset.IsZero())

	// other identities have their own counter
	allowed, _, _, err = limiter.Allow(ctx, "Bruno")
	require.NoError(t, err)
	assert.True(t, allowed)
}

func TestRateLimiter_Reset(t *testing.T) {
	client, _ := newTestClient(t)
	limiter := NewRateLimiter(client, 1, 0)
	ctx := context.Background()

	allowed, _, _, err := limiter.Allow(ctx, "Ana")
	require.NoError(t, err)
	assert.True(t, allowed)

	require.NoError(t, limiter.Reset(ctx, "Ana"))

	allowed, _, _, err = limiter.Allow(ctx, "Ana")
	require.NoError(t, err)
	assert.True(t, allowed)
}
