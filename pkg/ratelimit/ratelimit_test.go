package ratelimit

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type clock struct {
	mu  sync.Mutex
	now time.Time
}

func (c *clock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *clock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(d)
}

func newRedisStore(t *testing.T) *RedisStore {
	t.Helper()
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })
	return NewRedisStore(client)
}

func testRules() map[Class]Rule {
	return map[Class]Rule{
		ClassMapGeneration: {Limit: 10, Window: time.Minute},
		ClassAPI:           {Limit: 30, Window: time.Minute},
		ClassAuth:          {Limit: 5, Window: time.Minute},
		ClassPurchase:      {Limit: 3, Window: time.Minute},
	}
}

func stores(t *testing.T) map[string]Store {
	return map[string]Store{
		"memory": NewMemoryStore(),
		"redis":  newRedisStore(t),
	}
}

func TestLimiter_ClassLimits(t *testing.T) {
	for storeName, store := range stores(t) {
		clk := &clock{now: time.Unix(1_700_000_000, 0)}
		limiter, err := New(store, testRules(), WithClock(clk.Now))
		require.NoError(t, err)

		tests := []struct {
			class Class
			limit int
		}{
			{ClassPurchase, 3},
			{ClassMapGeneration, 10},
			{ClassAuth, 5},
			{ClassAPI, 30},
		}

		for _, tt := range tests {
			t.Run(storeName+"/"+string(tt.class), func(t *testing.T) {
				for i := 0; i < tt.limit; i++ {
					res, err := limiter.Limit(context.Background(), tt.class, "203.0.113.7")
					require.NoError(t, err)
					assert.True(t, res.Allowed, "request %d", i+1)
					assert.Equal(t, tt.limit-i-1, res.Remaining)
					assert.Equal(t, tt.limit, res.Limit)
				}

				res, err := limiter.Limit(context.Background(), tt.class, "203.0.113.7")
				require.NoError(t, err)
				assert.False(t, res.Allowed)
				assert.Equal(t, 0, res.Remaining)
				assert.Equal(t, time.Minute, res.RetryAfter(clk.Now()))
			})
		}
	}
}

func TestLimiter_WindowSlides(t *testing.T) {
	for name, store := range stores(t) {
		t.Run(name, func(t *testing.T) {
			clk := &clock{now: time.Unix(1_700_000_000, 0)}
			limiter, err := New(store, testRules(), WithClock(clk.Now))
			require.NoError(t, err)
			ctx := context.Background()

			for i := 0; i < 3; i++ {
				res, err := limiter.Limit(ctx, ClassPurchase, "a")
				require.NoError(t, err)
				require.True(t, res.Allowed)
				clk.Advance(10 * time.Second)
			}

			res, err := limiter.Limit(ctx, ClassPurchase, "a")
			require.NoError(t, err)
			assert.False(t, res.Allowed)

			// first hit leaves the window
			clk.Advance(31 * time.Second)
			res, err = limiter.Limit(ctx, ClassPurchase, "a")
			require.NoError(t, err)
			assert.True(t, res.Allowed)
			assert.Equal(t, 0, res.Remaining)
		})
	}
}

func TestLimiter_RetryAfterFollowsOldestHit(t *testing.T) {
	for name, store := range stores(t) {
		t.Run(name, func(t *testing.T) {
			clk := &clock{now: time.Unix(1_700_000_000, 0)}
			limiter, err := New(store, testRules(), WithClock(clk.Now))
			require.NoError(t, err)
			ctx := context.Background()

			_, err = limiter.Limit(ctx, ClassPurchase, "a")
			require.NoError(t, err)
			clk.Advance(55 * time.Second)
			for i := 0; i < 2; i++ {
				_, err = limiter.Limit(ctx, ClassPurchase, "a")
				require.NoError(t, err)
			}

			res, err := limiter.Limit(ctx, ClassPurchase, "a")
			require.NoError(t, err)
			assert.False(t, res.Allowed)
			assert.Equal(t, 5*time.Second, res.RetryAfter(clk.Now()))

			clk.Advance(6 * time.Second)
			res, err = limiter.Limit(ctx, ClassPurchase, "a")
			require.NoError(t, err)
			assert.True(t, res.Allowed)
		})
	}
}

func TestMemoryStore_SweepsExpiredKeys(t *testing.T) {
	store := NewMemoryStore()
	ctx := context.Background()
	t0 := time.Unix(1_700_000_000, 0)

	for i := 0; i < 10_000; i++ {
		_, err := store.Hit(ctx, fmt.Sprintf("ratelimit:api:10.0.%d.%d", i/256, i%256), t0, time.Minute, 30)
		require.NoError(t, err)
	}
	assert.Equal(t, 10_000, store.Len())

	_, err := store.Hit(ctx, "ratelimit:api:fresh", t0.Add(time.Hour), time.Minute, 30)
	require.NoError(t, err)
	assert.Equal(t, 1, store.Len())
}

func TestMemoryStore_KeepsLiveKeys(t *testing.T) {
	store := NewMemoryStore(WithSweepInterval(time.Second))
	ctx := context.Background()
	t0 := time.Unix(1_700_000_000, 0)

	_, err := store.Hit(ctx, "slow", t0, time.Hour, 3)
	require.NoError(t, err)
	_, err = store.Hit(ctx, "fast", t0, time.Second, 3)
	require.NoError(t, err)

	state, err := store.Hit(ctx, "other", t0.Add(time.Minute), time.Second, 3)
	require.NoError(t, err)
	assert.True(t, state.Allowed)
	assert.Equal(t, 2, store.Len())

	state, err = store.Hit(ctx, "slow", t0.Add(time.Minute), time.Hour, 3)
	require.NoError(t, err)
	assert.Equal(t, 2, state.Count)
	assert.Equal(t, t0, state.Oldest)
}

func TestLimiter_IdentifiersAndClassesAreIndependent(t *testing.T) {
	for name, store := range stores(t) {
		t.Run(name, func(t *testing.T) {
			limiter, err := New(store, testRules())
			require.NoError(t, err)
			ctx := context.Background()

			for i := 0; i < 3; i++ {
				_, err := limiter.Limit(ctx, ClassPurchase, "a")
				require.NoError(t, err)
			}

			res, err := limiter.Limit(ctx, ClassPurchase, "b")
			require.NoError(t, err)
			assert.True(t, res.Allowed)

			res, err = limiter.Limit(ctx, ClassAPI, "a")
			require.NoError(t, err)
			assert.True(t, res.Allowed)
		})
	}
}

func TestLimiter_ConcurrentHitsNeverExceedLimit(t *testing.T) {
	for name, store := range stores(t) {
		t.Run(name, func(t *testing.T) {
			limiter, err := New(store, testRules())
			require.NoError(t, err)

			var allowed atomic.Int32
			var wg sync.WaitGroup
			for i := 0; i < 40; i++ {
				wg.Add(1)
				go func() {
					defer wg.Done()
					res, err := limiter.Limit(context.Background(), ClassMapGeneration, "shared")
					if err == nil && res.Allowed {
						allowed.Add(1)
					}
				}()
			}
			wg.Wait()

			assert.Equal(t, int32(10), allowed.Load())
		})
	}
}

func TestLimiter_UnknownClass(t *testing.T) {
	limiter, err := New(NewMemoryStore(), testRules())
	require.NoError(t, err)

	_, err = limiter.Limit(context.Background(), Class("bogus"), "a")
	assert.True(t, errors.Is(err, ErrUnknownClass))
}

func TestNew_Validation(t *testing.T) {
	_, err := New(nil, testRules())
	assert.ErrorIs(t, err, ErrStoreRequired)

	_, err = New(NewMemoryStore(), map[Class]Rule{ClassAPI: {Limit: 0, Window: time.Minute}})
	assert.ErrorIs(t, err, ErrInvalidRule)
}

func TestRedisStore_ServerDown(t *testing.T) {
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr(), MaxRetries: -1})
	defer client.Close()
	mr.Close()

	_, err := NewRedisStore(client).Hit(context.Background(), "k", time.Now(), time.Minute, 3)
	assert.Error(t, err)
}
