package repository

import (
	"context"
	"testing"
	"time"

	"bikeservice/internal/config"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRedisThrottleRepository(t *testing.T) {
	s, err := miniredis.Run()
	require.NoError(t, err)
	defer s.Close()

	client := NewRedisClient(config.RedisConfig{Address: s.Addr()})
	defer Close(client)

	ctx := context.Background()
	require.NoError(t, Ping(ctx, client))

	repo := NewRedisThrottleRepository(client)

	t.Run("LimitWithinWindow", func(t *testing.T) {
		for i := 0; i < 3; i++ {
			allowed, err := repo.CheckRateLimit(ctx, "login:ann", 3, time.Minute)
			require.NoError(t, err)
			assert.True(t, allowed)
		}
		allowed, err := repo.CheckRateLimit(ctx, "login:ann", 3, time.Minute)
		require.NoError(t, err)
		assert.False(t, allowed)
		assert.True(t, s.TTL(throttleKeyPrefix+"login:ann") > 0)
	})

	t.Run("WindowExpires", func(t *testing.T) {
		s.FastForward(2 * time.Minute)
		allowed, err := repo.CheckRateLimit(ctx, "login:ann", 3, time.Minute)
		require.NoError(t, err)
		assert.True(t, allowed)
	})

	t.Run("Reset", func(t *testing.T) {
		for i := 0; i < 5; i++ {
			_, _ = repo.CheckRateLimit(ctx, "login:bob", 1, time.Minute)
		}
		require.NoError(t, repo.ResetRateLimit(ctx, "login:bob"))
		allowed, err := repo.CheckRateLimit(ctx, "login:bob", 1, time.Minute)
		require.NoError(t, err)
		assert.True(t, allowed)
	})

	t.Run("ServerDown", func(t *testing.T) {
		down := NewRedisThrottleRepository(redis.NewClient(&redis.Options{Addr: "127.0.0.1:1", MaxRetries: -1}))
		_, err := down.CheckRateLimit(ctx, "k", 1, time.Minute)
		assert.Error(t, err)
	})

	t.Run("NilClient", func(t *testing.T) {
		_, err := NewRedisThrottleRepository(nil).CheckRateLimit(ctx, "k", 1, time.Minute)
		assert.Error(t, err)
	})
}
