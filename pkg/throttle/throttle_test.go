package throttle_test

import (
	"context"
	"os"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	goredis "github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dmitrymomot/mfakit/pkg/throttle"
)

type fakeClock struct {
	mu  sync.Mutex
	now time.Time
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(d)
}

var cfg = throttle.Config{Capacity: 3, RefillRate: 1, RefillInterval: time.Minute}

func TestNew_InvalidConfig(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name string
		cfg  throttle.Config
	}{
		{"zero capacity", throttle.Config{RefillRate: 1, RefillInterval: time.Second}},
		{"zero rate", throttle.Config{Capacity: 1, RefillInterval: time.Second}},
		{"zero interval", throttle.Config{Capacity: 1, RefillRate: 1}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			_, err := throttle.New(throttle.NewMemoryStore(), tt.cfg)
			assert.ErrorIs(t, err, throttle.ErrInvalidConfig)
		})
	}

	_, err := throttle.New(nil, cfg)
	assert.ErrorIs(t, err, throttle.ErrInvalidConfig)
}

func TestLimiter_MemoryStore(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	clock := &fakeClock{now: time.Unix(1_700_000_000, 0)}
	l, err := throttle.New(throttle.NewMemoryStore(), cfg, throttle.WithClock(clock.Now))
	require.NoError(t, err)

	for i := range 3 {
		res, err := l.Allow(ctx, "user-1")
		require.NoError(t, err)
		assert.True(t, res.Allowed)
		assert.Equal(t, 2-i, res.Remaining)
		assert.Equal(t, 3, res.Limit)
	}

	res, err := l.Allow(ctx, "user-1")
	require.NoError(t, err)
	assert.False(t, res.Allowed)
	assert.Equal(t, 0, res.Remaining)
	assert.Equal(t, time.Minute, res.RetryAfter(clock.Now()))

	// Denied calls do not dig the bucket deeper.
	_, _ = l.Allow(ctx, "user-1")
	clock.Advance(time.Minute)
	res, err = l.Allow(ctx, "user-1")
	require.NoError(t, err)
	assert.True(t, res.Allowed)
	assert.Zero(t, res.RetryAfter(clock.Now()))

	// Other keys are independent.
	res, err = l.Allow(ctx, "user-2")
	require.NoError(t, err)
	assert.True(t, res.Allowed)

	require.NoError(t, l.Reset(ctx, "user-1"))
	res, err = l.Allow(ctx, "user-1")
	require.NoError(t, err)
	assert.Equal(t, 2, res.Remaining)
}

func TestLimiter_RefillCappedAtCapacity(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	clock := &fakeClock{now: time.Unix(1_700_000_000, 0)}
	l, err := throttle.New(throttle.NewMemoryStore(), cfg, throttle.WithClock(clock.Now))
	require.NoError(t, err)

	_, err = l.AllowN(ctx, "k", 3)
	require.NoError(t, err)
	clock.Advance(24 * time.Hour)

	res, err := l.Allow(ctx, "k")
	require.NoError(t, err)
	assert.Equal(t, 2, res.Remaining)

	_, err = l.AllowN(ctx, "k", 0)
	assert.ErrorIs(t, err, throttle.ErrInvalidTokenCount)
}

func TestLimiter_KeyPrefix(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	store := throttle.NewMemoryStore()
	send, err := throttle.New(store, cfg, throttle.WithKeyPrefix("send:"))
	require.NoError(t, err)
	verify, err := throttle.New(store, cfg, throttle.WithKeyPrefix("verify:"))
	require.NoError(t, err)

	_, err = send.AllowN(ctx, "u", 3)
	require.NoError(t, err)
	res, err := verify.Allow(ctx, "u")
	require.NoError(t, err)
	assert.True(t, res.Allowed)
	assert.Equal(t, 2, store.Len())
}

func TestLimiter_Concurrent(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	l, err := throttle.New(throttle.NewMemoryStore(), throttle.Config{Capacity: 10, RefillRate: 1, RefillInterval: time.Hour})
	require.NoError(t, err)

	var allowed atomic.Int32
	var wg sync.WaitGroup
	for range 50 {
		wg.Add(1)
		go func() {
			defer wg.Done()
			res, err := l.Allow(ctx, "shared")
			if err == nil && res.Allowed {
				allowed.Add(1)
			}
		}()
	}
	wg.Wait()
	assert.Equal(t, int32(10), allowed.Load())
}

func TestMemoryStore_RemoveStale(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	store := throttle.NewMemoryStore(throttle.WithCleanupInterval(time.Hour, time.Minute))
	defer store.Close()
	defer store.Close()

	now := time.Unix(1_700_000_000, 0)
	_, err := store.Take(ctx, "old", 1, cfg, now)
	require.NoError(t, err)
	_, err = store.Take(ctx, "fresh", 1, cfg, now.Add(2*time.Minute))
	require.NoError(t, err)

	store.RemoveStale(now.Add(150 * time.Second))
	assert.Equal(t, 1, store.Len())
}

func TestRedisStore(t *testing.T) {
	url := os.Getenv("MFA_TEST_REDIS_URL")
	if url == "" {
		t.Skip("MFA_TEST_REDIS_URL not set")
	}
	opts, err := goredis.ParseURL(url)
	require.NoError(t, err)
	client := goredis.NewClient(opts)
	t.Cleanup(func() { _ = client.Close() })

	ctx := context.Background()
	clock := &fakeClock{now: time.Unix(1_700_000_000, 0)}
	l, err := throttle.New(throttle.NewRedisStore(client), cfg,
		throttle.WithClock(clock.Now),
		throttle.WithKeyPrefix("mfakit:test:"+t.Name()+":"),
	)
	require.NoError(t, err)
	require.NoError(t, l.Reset(ctx, "u"))

	for range 3 {
		res, err := l.Allow(ctx, "u")
		require.NoError(t, err)
		assert.True(t, res.Allowed)
	}
	res, err := l.Allow(ctx, "u")
	require.NoError(t, err)
	assert.False(t, res.Allowed)

	clock.Advance(time.Minute)
	res, err = l.Allow(ctx, "u")
	require.NoError(t, err)
	assert.True(t, res.Allowed)
	assert.Equal(t, 0, res.Remaining)
}
