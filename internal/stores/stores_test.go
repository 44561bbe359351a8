package stores

import (
	"context"
	"crypto/sha256"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestRedis(t *testing.T) (*miniredis.Miniredis, *redis.Client) {
	t.Helper()
	mr := miniredis.RunT(t)
	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = rdb.Close() })
	return mr, rdb
}

func testRecord(code string, ttl time.Duration) *OTPRecord {
	now := time.Now()
	return &OTPRecord{
		ID:             "rec-1",
		Identifier:     "2348000000000",
		IdentifierType: "phone",
		Purpose:        "signup",
		CodeHash:       sha256.Sum256([]byte(code)),
		CreatedAt:      now,
		ExpiresAt:      now.Add(ttl),
	}
}

func TestOTPConsumeSucceedsOnce(t *testing.T) {
	_, rdb := newTestRedis(t)
	s := NewOTPStore(rdb, "t")
	ctx := context.Background()

	rec := testRecord("123456", 10*time.Minute)
	require.NoError(t, s.Save(ctx, rec))

	got, err := s.Consume(ctx, rec.Identifier, rec.Purpose, sha256.Sum256([]byte("123456")), 5)
	require.NoError(t, err)
	assert.Equal(t, "rec-1", got.ID)
	assert.Equal(t, "phone", got.IdentifierType)
	assert.Equal(t, rec.ExpiresAt.UnixMilli(), got.ExpiresAt.UnixMilli())
	assert.False(t, got.ConsumedAt.IsZero())

	_, err = s.Consume(ctx, rec.Identifier, rec.Purpose, sha256.Sum256([]byte("123456")), 5)
	require.ErrorIs(t, err, ErrOTPNotFound)
}

func TestOTPConsumeIsScopedByPurpose(t *testing.T) {
	_, rdb := newTestRedis(t)
	s := NewOTPStore(rdb, "t")
	ctx := context.Background()

	require.NoError(t, s.Save(ctx, testRecord("123456", time.Minute)))

	_, err := s.Consume(ctx, "2348000000000", "login", sha256.Sum256([]byte("123456")), 5)
	require.ErrorIs(t, err, ErrOTPNotFound)
}

func TestOTPMismatchThenBurn(t *testing.T) {
	_, rdb := newTestRedis(t)
	s := NewOTPStore(rdb, "t")
	ctx := context.Background()

	rec := testRecord("123456", time.Minute)
	require.NoError(t, s.Save(ctx, rec))

	wrong := sha256.Sum256([]byte("000000"))
	_, err := s.Consume(ctx, rec.Identifier, rec.Purpose, wrong, 3)
	require.ErrorIs(t, err, ErrOTPMismatch)
	_, err = s.Consume(ctx, rec.Identifier, rec.Purpose, wrong, 3)
	require.ErrorIs(t, err, ErrOTPMismatch)
	_, err = s.Consume(ctx, rec.Identifier, rec.Purpose, wrong, 3)
	require.ErrorIs(t, err, ErrOTPAttemptsExceeded)

	_, err = s.Consume(ctx, rec.Identifier, rec.Purpose, sha256.Sum256([]byte("123456")), 3)
	require.ErrorIs(t, err, ErrOTPNotFound)
}

func TestOTPMismatchKeepsTTL(t *testing.T) {
	mr, rdb := newTestRedis(t)
	s := NewOTPStore(rdb, "t")
	ctx := context.Background()

	rec := testRecord("123456", time.Minute)
	require.NoError(t, s.Save(ctx, rec))

	_, err := s.Consume(ctx, rec.Identifier, rec.Purpose, sha256.Sum256([]byte("1")), 5)
	require.ErrorIs(t, err, ErrOTPMismatch)
	assert.Greater(t, mr.TTL(s.key(rec.Identifier, rec.Purpose)), time.Duration(0))

	mr.FastForward(2 * time.Minute)
	_, err = s.Consume(ctx, rec.Identifier, rec.Purpose, sha256.Sum256([]byte("123456")), 5)
	require.ErrorIs(t, err, ErrOTPNotFound)
}

func TestOTPSaveSupersedes(t *testing.T) {
	_, rdb := newTestRedis(t)
	s := NewOTPStore(rdb, "t")
	ctx := context.Background()

	require.NoError(t, s.Save(ctx, testRecord("111111", time.Minute)))
	require.NoError(t, s.Save(ctx, testRecord("222222", time.Minute)))

	_, err := s.Consume(ctx, "2348000000000", "signup", sha256.Sum256([]byte("111111")), 5)
	require.ErrorIs(t, err, ErrOTPMismatch)
	_, err = s.Consume(ctx, "2348000000000", "signup", sha256.Sum256([]byte("222222")), 5)
	require.NoError(t, err)
}

func TestOTPSaveRejectsExpired(t *testing.T) {
	_, rdb := newTestRedis(t)
	s := NewOTPStore(rdb, "t")
	require.Error(t, s.Save(context.Background(), testRecord("1", -time.Second)))
}

func TestOTPConcurrentConsumeSingleWinner(t *testing.T) {
	_, rdb := newTestRedis(t)
	s := NewOTPStore(rdb, "t")
	ctx := context.Background()

	rec := testRecord("123456", time.Minute)
	require.NoError(t, s.Save(ctx, rec))

	var wins atomic.Int32
	var wg sync.WaitGroup
	for i := 0; i < 16; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if _, err := s.Consume(ctx, rec.Identifier, rec.Purpose, sha256.Sum256([]byte("123456")), 5); err == nil {
				wins.Add(1)
			}
		}()
	}
	wg.Wait()
	assert.Equal(t, int32(1), wins.Load())
}

func TestOTPUnavailable(t *testing.T) {
	mr, rdb := newTestRedis(t)
	s := NewOTPStore(rdb, "t")
	mr.Close()

	require.ErrorIs(t, s.Save(context.Background(), testRecord("1", time.Minute)), ErrUnavailable)
	_, err := s.Consume(context.Background(), "x", "signup", [32]byte{}, 5)
	require.ErrorIs(t, err, ErrUnavailable)
}

func TestBlacklist(t *testing.T) {
	mr, rdb := newTestRedis(t)
	b := NewBlacklist(rdb, "t")
	ctx := context.Background()

	revoked, err := b.IsRevoked(ctx, "jti-1")
	require.NoError(t, err)
	assert.False(t, revoked)

	require.NoError(t, b.Revoke(ctx, "jti-1", time.Now().Add(time.Minute)))
	revoked, err = b.IsRevoked(ctx, "jti-1")
	require.NoError(t, err)
	assert.True(t, revoked)

	require.NoError(t, b.Revoke(ctx, "jti-1", time.Now().Add(time.Minute)), "revoke is idempotent")

	mr.FastForward(2 * time.Minute)
	revoked, err = b.IsRevoked(ctx, "jti-1")
	require.NoError(t, err)
	assert.False(t, revoked)

	require.NoError(t, b.Revoke(ctx, "jti-2", time.Now().Add(-time.Minute)))
	assert.False(t, mr.Exists(b.key("jti-2")))
}

func TestDeviceUpsertAndList(t *testing.T) {
	_, rdb := newTestRedis(t)
	r := NewDeviceRegistry(rdb, "t")
	ctx := context.Background()

	first := time.UnixMilli(1_700_000_000_000)
	r.now = func() time.Time { return first }
	require.NoError(t, r.Upsert(ctx, Device{UserID: "u1", DeviceID: "d2", Platform: "ios", PushToken: "tok"}))
	require.NoError(t, r.Upsert(ctx, Device{UserID: "u1", DeviceID: "d1", Platform: "android"}))

	later := first.Add(time.Hour)
	r.now = func() time.Time { return later }
	require.NoError(t, r.Upsert(ctx, Device{UserID: "u1", DeviceID: "d2"}))

	devices, err := r.List(ctx, "u1")
	require.NoError(t, err)
	require.Len(t, devices, 2)
	assert.Equal(t, "d1", devices[0].DeviceID)
	assert.Equal(t, "d2", devices[1].DeviceID)
	assert.Equal(t, "ios", devices[1].Platform)
	assert.Equal(t, "tok", devices[1].PushToken)
	assert.True(t, devices[1].CreatedAt.Equal(first))
	assert.True(t, devices[1].LastSeenAt.Equal(later))

	none, err := r.List(ctx, "u2")
	require.NoError(t, err)
	assert.Empty(t, none)
}

func TestAccountStore(t *testing.T) {
	_, rdb := newTestRedis(t)
	s := NewAccountStore(rdb, "t")
	ctx := context.Background()

	_, err := s.FindAccount(ctx, "2348000000000", "phone")
	require.ErrorIs(t, err, ErrAccountNotFound)

	acct := Account{ID: "a1", Identifier: "2348000000000", IdentifierType: "phone", Role: "customer"}
	require.NoError(t, s.CreateAccount(ctx, acct))
	require.ErrorIs(t, s.CreateAccount(ctx, acct), ErrAccountExists)

	got, err := s.FindAccount(ctx, "2348000000000", "phone")
	require.NoError(t, err)
	assert.Equal(t, "a1", got.ID)
	assert.Equal(t, "customer", got.Role)
}
