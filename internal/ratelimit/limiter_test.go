package ratelimit

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/go-redis/redis/v8"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type clock struct{ now time.Time }

func (c *clock) Now() time.Time { return c.now }

func newRedisLimiter(t *testing.T, c *clock) (*Redis, *miniredis.Miniredis) {
	t.Helper()
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })

	limiter := NewRedis(client, "test:rl:")
	limiter.now = c.Now
	return limiter, mr
}

func newMemoryLimiter(c *clock) *Memory {
	limiter := NewMemory()
	limiter.now = c.Now
	return limiter
}

func TestSlidingWindow(t *testing.T) {
	policy := Policy{Name: "create", Limit: 2, Window: time.Minute}

	for name, build := range map[string]func(t *testing.T, c *clock) Limiter{
		"memory": func(_ *testing.T, c *clock) Limiter { return newMemoryLimiter(c) },
		"redis": func(t *testing.T, c *clock) Limiter {
			l, _ := newRedisLimiter(t, c)
			return l
		},
	} {
		t.Run(name, func(t *testing.T) {
			ctx := context.Background()
			c := &clock{now: time.Date(2026, 1, 1, 12, 0, 0, 0, time.UTC)}
			limiter := build(t, c)

			d, err := limiter.Allow(ctx, "10.0.0.1", policy)
			require.NoError(t, err)
			assert.True(t, d.Allowed)
			assert.Equal(t, 1, d.Remaining)

			c.now = c.now.Add(20 * time.Second)
			d, err = limiter.Allow(ctx, "10.0.0.1", policy)
			require.NoError(t, err)
			assert.True(t, d.Allowed)
			assert.Equal(t, 0, d.Remaining)

			c.now = c.now.Add(10 * time.Second)
			d, err = limiter.Allow(ctx, "10.0.0.1", policy)
			require.NoError(t, err)
			assert.False(t, d.Allowed)
			assert.Equal(t, 30*time.Second, d.RetryAfter)

			// Other clients and other policies have their own windows.
			d, err = limiter.Allow(ctx, "10.0.0.2", policy)
			require.NoError(t, err)
			assert.True(t, d.Allowed)
			d, err = limiter.Allow(ctx, "10.0.0.1", Policy{Name: "read", Limit: 1, Window: time.Minute})
			require.NoError(t, err)
			assert.True(t, d.Allowed)

			// The first request slides out of the window.
			c.now = c.now.Add(31 * time.Second)
			d, err = limiter.Allow(ctx, "10.0.0.1", policy)
			require.NoError(t, err)
			assert.True(t, d.Allowed)
		})
	}
}

func TestMemoryEvictsIdleClients(t *testing.T) {
	c := &clock{now: time.Date(2026, 1, 1, 12, 0, 0, 0, time.UTC)}
	limiter := newMemoryLimiter(c)
	policy := Policy{Name: "read", Limit: 5, Window: 30 * time.Second}
	ctx := context.Background()

	for _, ip := range []string{"10.0.0.1", "10.0.0.2", "10.0.0.3"} {
		_, err := limiter.Allow(ctx, ip, policy)
		require.NoError(t, err)
	}
	assert.Len(t, limiter.logs, 3)

	c.now = c.now.Add(2 * time.Minute)
	decision, err := limiter.Allow(ctx, "10.0.0.9", policy)
	require.NoError(t, err)
	assert.True(t, decision.Allowed)
	assert.Len(t, limiter.logs, 1)
	assert.Contains(t, limiter.logs, "read:10.0.0.9")
}

func TestRedisRejectedRequestsDoNotCount(t *testing.T) {
	c := &clock{now: time.Date(2026, 1, 1, 12, 0, 0, 0, time.UTC)}
	limiter, mr := newRedisLimiter(t, c)
	policy := Policy{Name: "mutate", Limit: 1, Window: time.Minute}
	ctx := context.Background()

	for i := 0; i < 3; i++ {
		_, err := limiter.Allow(ctx, "ip", policy)
		require.NoError(t, err)
	}

	members, err := mr.ZMembers("test:rl:mutate:ip")
	require.NoError(t, err)
	assert.Len(t, members, 1)
	assert.True(t, mr.TTL("test:rl:mutate:ip") > 0)
}

func TestRedisUnavailable(t *testing.T) {
	c := &clock{now: time.Now()}
	limiter, mr := newRedisLimiter(t, c)
	mr.Close()

	_, err := limiter.Allow(context.Background(), "ip", Policy{Name: "read", Limit: 1, Window: time.Minute})
	assert.Error(t, err)
}
