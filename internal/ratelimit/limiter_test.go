package ratelimit

import (
	"context"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestLimiter(t *testing.T) (*Limiter, *miniredis.Miniredis) {
	t.Helper()
	mr, err := miniredis.Run()
	if err != nil {
		t.Fatalf("failed to start miniredis: %v", err)
	}
	t.Cleanup(mr.Close)
	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = rdb.Close() })
	return NewLimiter(rdb, "test:"), mr
}

func TestLimiter_RefusesAfterMax(t *testing.T) {
	l, _ := newTestLimiter(t)
	ctx := context.Background()
	rule := Rule{Name: "login", Max: 3, Window: time.Minute}

	for i := 0; i < 3; i++ {
		ok, err := l.Reserve(ctx, rule, "Ada@Example.com")
		require.NoError(t, err)
		assert.True(t, ok, "attempt %d", i)
	}
	ok, err := l.Reserve(ctx, rule, "ada@example.com")
	require.NoError(t, err)
	assert.False(t, ok, "subjects are case-insensitive")
}

func TestLimiter_ConcurrentBurst(t *testing.T) {
	l, _ := newTestLimiter(t)
	ctx := context.Background()
	rule := Rule{Name: "otp", Max: 5, Window: time.Minute}

	const callers = 100
	var (
		wg      sync.WaitGroup
		allowed atomic.Int64
	)
	for i := 0; i < callers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			ok, err := l.Reserve(ctx, rule, "u1")
			assert.NoError(t, err)
			if ok {
				allowed.Add(1)
			}
		}()
	}
	wg.Wait()
	assert.Equal(t, rule.Max, allowed.Load())
}

func TestLimiter_WindowExpires(t *testing.T) {
	l, mr := newTestLimiter(t)
	ctx := context.Background()
	rule := Rule{Name: "otp", Max: 1, Window: time.Minute}

	_, err := l.Reserve(ctx, rule, "u1")
	require.NoError(t, err)
	ttl, err := l.TTL(ctx, rule, "u1")
	require.NoError(t, err)
	assert.Equal(t, time.Minute, ttl)

	ok, err := l.Reserve(ctx, rule, "u1")
	require.NoError(t, err)
	assert.False(t, ok)

	mr.FastForward(61 * time.Second)
	ok, err = l.Reserve(ctx, rule, "u1")
	require.NoError(t, err)
	assert.True(t, ok)
}

func TestLimiter_CounterWithoutExpiryHeals(t *testing.T) {
	l, mr := newTestLimiter(t)
	ctx := context.Background()
	rule := Rule{Name: "otp", Max: 5, Window: time.Minute}

	require.NoError(t, mr.Set("test:attempts:otp:u1", "9"))
	ok, err := l.Reserve(ctx, rule, "u1")
	require.NoError(t, err)
	assert.False(t, ok)
	ttl, err := l.TTL(ctx, rule, "u1")
	require.NoError(t, err)
	assert.Equal(t, time.Minute, ttl)
}

func TestLimiter_Reset(t *testing.T) {
	l, _ := newTestLimiter(t)
	ctx := context.Background()
	rule := Rule{Name: "otp", Max: 1, Window: time.Minute}

	_, err := l.Reserve(ctx, rule, "u1")
	require.NoError(t, err)
	require.NoError(t, l.Reset(ctx, rule, "u1"))
	ok, err := l.Reserve(ctx, rule, "u1")
	require.NoError(t, err)
	assert.True(t, ok)
}

func TestLimiter_RulesAreIndependent(t *testing.T) {
	l, _ := newTestLimiter(t)
	ctx := context.Background()
	_, err := l.Reserve(ctx, Rule{Name: "a", Max: 1, Window: time.Minute}, "x")
	require.NoError(t, err)
	ok, err := l.Reserve(ctx, Rule{Name: "b", Max: 1, Window: time.Minute}, "x")
	require.NoError(t, err)
	assert.True(t, ok)
}
