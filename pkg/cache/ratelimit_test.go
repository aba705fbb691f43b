package cache

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRateLimiterBlocksAfterLimit(t *testing.T) {
	c, _ := newTestCache(t)
	rl := NewRateLimiter(c, 3, time.Minute)
	ctx := context.Background()

	for i := 0; i < 3; i++ {
		d, err := rl.Allow(ctx, "1:10:100")
		require.NoError(t, err)
		assert.True(t, d.Allowed, "request %d", i)
		assert.Equal(t, 2-i, d.Remaining)
	}

	d, err := rl.Allow(ctx, "1:10:100")
	require.NoError(t, err)
	assert.False(t, d.Allowed)
	assert.Equal(t, 0, d.Remaining)

	other, err := rl.Allow(ctx, "1:10:101")
	require.NoError(t, err)
	assert.True(t, other.Allowed)
}

func TestNilRateLimiterAllows(t *testing.T) {
	assert.Nil(t, NewRateLimiter(nil, 10, time.Minute))

	c, _ := newTestCache(t)
	assert.Nil(t, NewRateLimiter(c, 0, time.Minute))

	var rl *RateLimiter
	d, err := rl.Allow(context.Background(), "anyone")
	require.NoError(t, err)
	assert.True(t, d.Allowed)
}

func TestRateLimiterFailsOpen(t *testing.T) {
	c, mr := newTestCache(t)
	rl := NewRateLimiter(c, 1, time.Minute)
	mr.Close()

	d, err := rl.Allow(context.Background(), "1:10:100")
	assert.Error(t, err)
	assert.True(t, d.Allowed)
}
