package rate

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestLimiter(t *testing.T) (*miniredis.Miniredis, *Limiter) {
	t.Helper()
	mr := miniredis.RunT(t)
	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = rdb.Close() })
	return mr, New(rdb, "test")
}

func TestCheckRejectsAfterMax(t *testing.T) {
	_, l := newTestLimiter(t)
	ctx := context.Background()
	key := Key{Identifier: "2348000000000", IdentifierType: "phone", Purpose: "signup"}

	for i := 1; i <= 6; i++ {
		d, err := Check(ctx, l, key, 3, time.Hour, time.Now())
		require.NoError(t, err)
		assert.Equal(t, int64(i), d.Count)
		if i <= 3 {
			assert.True(t, d.Allowed, "request %d", i)
			assert.Equal(t, 3-i, d.Remaining)
			assert.Zero(t, d.RetryAfter)
			continue
		}
		assert.False(t, d.Allowed, "request %d", i)
		assert.Equal(t, 0, d.Remaining)
		assert.Greater(t, d.RetryAfter, 59*time.Minute)
		assert.LessOrEqual(t, d.RetryAfter, time.Hour)
	}
}

func TestWindowRolloverResetsToOne(t *testing.T) {
	mr, l := newTestLimiter(t)
	ctx := context.Background()
	key := Key{Identifier: "ada@example.com", IdentifierType: "email", Purpose: "login"}

	for i := 0; i < 4; i++ {
		_, err := l.Hit(ctx, key, time.Minute)
		require.NoError(t, err)
	}

	mr.FastForward(time.Minute + time.Second)

	hit, err := l.Hit(ctx, key, time.Minute)
	require.NoError(t, err)
	assert.Equal(t, int64(1), hit.Count)
}

func TestHitDoesNotExtendWindow(t *testing.T) {
	mr, l := newTestLimiter(t)
	ctx := context.Background()
	key := Key{Identifier: "10.0.0.1", IdentifierType: "ip", Purpose: "otp_request"}

	_, err := l.Hit(ctx, key, time.Minute)
	require.NoError(t, err)

	mr.FastForward(40 * time.Second)
	hit, err := l.Hit(ctx, key, time.Minute)
	require.NoError(t, err)
	assert.Equal(t, int64(2), hit.Count)

	mr.FastForward(25 * time.Second)
	hit, err = l.Hit(ctx, key, time.Minute)
	require.NoError(t, err)
	assert.Equal(t, int64(1), hit.Count)
}

func TestKeysAreIsolated(t *testing.T) {
	_, l := newTestLimiter(t)
	ctx := context.Background()

	a := Key{Identifier: "2348000000000", IdentifierType: "phone", Purpose: "signup"}
	b := Key{Identifier: "2348000000000", IdentifierType: "phone", Purpose: "login"}

	for i := 0; i < 3; i++ {
		_, err := l.Hit(ctx, a, time.Hour)
		require.NoError(t, err)
	}
	hit, err := l.Hit(ctx, b, time.Hour)
	require.NoError(t, err)
	assert.Equal(t, int64(1), hit.Count)
}

func TestReset(t *testing.T) {
	_, l := newTestLimiter(t)
	ctx := context.Background()
	key := Key{Identifier: "x", IdentifierType: "ip", Purpose: "verify"}

	_, err := l.Hit(ctx, key, time.Hour)
	require.NoError(t, err)
	require.NoError(t, l.Reset(ctx, key))

	hit, err := l.Hit(ctx, key, time.Hour)
	require.NoError(t, err)
	assert.Equal(t, int64(1), hit.Count)
}

func TestRedisFailureWraps(t *testing.T) {
	mr, l := newTestLimiter(t)
	mr.Close()

	_, err := l.Hit(context.Background(), Key{Identifier: "x"}, time.Minute)
	require.ErrorIs(t, err, ErrRedisUnavailable)
}

func TestCheckRejectsInvalidPolicy(t *testing.T) {
	_, l := newTestLimiter(t)
	_, err := Check(context.Background(), l, Key{Identifier: "x"}, 0, time.Minute, time.Now())
	require.ErrorIs(t, err, ErrInvalidPolicy)
	_, err = Check(context.Background(), l, Key{Identifier: "x"}, 1, 0, time.Now())
	require.ErrorIs(t, err, ErrInvalidPolicy)
}

func TestRetryAfterSeconds(t *testing.T) {
	cases := []struct {
		in   time.Duration
		want int64
	}{
		{0, 0},
		{-time.Second, 0},
		{time.Second, 1},
		{1500 * time.Millisecond, 2},
		{time.Minute, 60},
	}
	for _, tc := range cases {
		assert.Equal(t, tc.want, Decision{RetryAfter: tc.in}.RetryAfterSeconds(), tc.in.String())
	}
}
