package sqlstore

import (
	"context"
	"crypto/sha256"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/MrEthical07/courierauth/internal/rate"
	"github.com/MrEthical07/courierauth/internal/stores"
)

type fakeClock struct{ t time.Time }

func (c *fakeClock) now() time.Time          { return c.t }
func (c *fakeClock) advance(d time.Duration) { c.t = c.t.Add(d) }

func newTestStore(t *testing.T) (*Store, *fakeClock) {
	t.Helper()
	ctx := context.Background()

	db, err := Open(ctx, DialectSQLite, ":memory:")
	require.NoError(t, err)
	t.Cleanup(func() { _ = db.Close() })

	s, err := New(db, DialectSQLite)
	require.NoError(t, err)
	require.NoError(t, s.EnsureSchema(ctx))
	require.NoError(t, s.EnsureSchema(ctx), "schema is idempotent")

	clock := &fakeClock{t: time.UnixMilli(1_700_000_000_000)}
	s.now = clock.now
	return s, clock
}

func otpRecord(clock *fakeClock, id, code string) *stores.OTPRecord {
	return &stores.OTPRecord{
		ID:             id,
		Identifier:     "2348000000000",
		IdentifierType: "phone",
		Purpose:        "signup",
		CodeHash:       sha256.Sum256([]byte(code)),
		CreatedAt:      clock.now(),
		ExpiresAt:      clock.now().Add(10 * time.Minute),
	}
}

func TestNewRejectsUnknownDialect(t *testing.T) {
	_, err := New(nil, DialectSQLite)
	require.Error(t, err)

	_, err = Dialect("mysql").DriverName()
	require.Error(t, err)
}

func TestRebind(t *testing.T) {
	pg := &Store{dialect: DialectPostgres}
	assert.Equal(t, "a = $1 AND b = $2", pg.rebind("a = ? AND b = ?"))

	lite := &Store{dialect: DialectSQLite}
	assert.Equal(t, "a = ? AND b = ?", lite.rebind("a = ? AND b = ?"))
}

func TestOTPConsumeOnce(t *testing.T) {
	s, clock := newTestStore(t)
	ctx := context.Background()
	otps := s.OTPs()

	require.NoError(t, otps.Save(ctx, otpRecord(clock, "r1", "123456")))

	rec, err := otps.Consume(ctx, "2348000000000", "signup", sha256.Sum256([]byte("123456")), 5)
	require.NoError(t, err)
	assert.Equal(t, "r1", rec.ID)
	assert.Equal(t, "phone", rec.IdentifierType)
	assert.True(t, rec.ConsumedAt.Equal(clock.now()))

	_, err = otps.Consume(ctx, "2348000000000", "signup", sha256.Sum256([]byte("123456")), 5)
	require.ErrorIs(t, err, stores.ErrOTPNotFound)
}

func TestOTPExpired(t *testing.T) {
	s, clock := newTestStore(t)
	ctx := context.Background()
	otps := s.OTPs()

	require.NoError(t, otps.Save(ctx, otpRecord(clock, "r1", "123456")))
	clock.advance(11 * time.Minute)

	_, err := otps.Consume(ctx, "2348000000000", "signup", sha256.Sum256([]byte("123456")), 5)
	require.ErrorIs(t, err, stores.ErrOTPNotFound)
}

func TestOTPAttemptsBurnRecord(t *testing.T) {
	s, clock := newTestStore(t)
	ctx := context.Background()
	otps := s.OTPs()

	require.NoError(t, otps.Save(ctx, otpRecord(clock, "r1", "123456")))

	wrong := sha256.Sum256([]byte("999999"))
	_, err := otps.Consume(ctx, "2348000000000", "signup", wrong, 2)
	require.ErrorIs(t, err, stores.ErrOTPMismatch)
	_, err = otps.Consume(ctx, "2348000000000", "signup", wrong, 2)
	require.ErrorIs(t, err, stores.ErrOTPAttemptsExceeded)

	_, err = otps.Consume(ctx, "2348000000000", "signup", sha256.Sum256([]byte("123456")), 2)
	require.ErrorIs(t, err, stores.ErrOTPNotFound)
}

func TestOTPSaveSupersedes(t *testing.T) {
	s, clock := newTestStore(t)
	ctx := context.Background()
	otps := s.OTPs()

	require.NoError(t, otps.Save(ctx, otpRecord(clock, "r1", "111111")))
	require.NoError(t, otps.Save(ctx, otpRecord(clock, "r2", "222222")))

	_, err := otps.Consume(ctx, "2348000000000", "signup", sha256.Sum256([]byte("111111")), 5)
	require.ErrorIs(t, err, stores.ErrOTPMismatch)

	rec, err := otps.Consume(ctx, "2348000000000", "signup", sha256.Sum256([]byte("222222")), 5)
	require.NoError(t, err)
	assert.Equal(t, "r2", rec.ID)
	assert.Equal(t, uint16(1), rec.Attempts)
}

func TestOTPDelete(t *testing.T) {
	s, clock := newTestStore(t)
	ctx := context.Background()
	otps := s.OTPs()

	require.NoError(t, otps.Save(ctx, otpRecord(clock, "r1", "123456")))
	require.NoError(t, otps.Delete(ctx, "2348000000000", "signup"))

	_, err := otps.Consume(ctx, "2348000000000", "signup", sha256.Sum256([]byte("123456")), 5)
	require.ErrorIs(t, err, stores.ErrOTPNotFound)
}

func TestCounterWindow(t *testing.T) {
	s, clock := newTestStore(t)
	ctx := context.Background()
	counters := s.Counters()
	key := rate.Key{Identifier: "2348000000000", IdentifierType: "phone", Purpose: "signup"}

	var allowed []bool
	for i := 0; i < 6; i++ {
		d, err := rate.Check(ctx, counters, key, 3, time.Hour, clock.now())
		require.NoError(t, err)
		allowed = append(allowed, d.Allowed)
		if !d.Allowed {
			assert.Equal(t, time.Hour, d.RetryAfter)
		}
	}
	assert.Equal(t, []bool{true, true, true, false, false, false}, allowed)

	clock.advance(30 * time.Minute)
	hit, err := counters.Hit(ctx, key, time.Hour)
	require.NoError(t, err)
	assert.Equal(t, int64(7), hit.Count)
	assert.True(t, hit.ResetAt.Equal(clock.now().Add(30*time.Minute)))

	clock.advance(30 * time.Minute)
	hit, err = counters.Hit(ctx, key, time.Hour)
	require.NoError(t, err)
	assert.Equal(t, int64(1), hit.Count)
	assert.True(t, hit.WindowStart.Equal(clock.now()))

	require.NoError(t, counters.Reset(ctx, key))
	hit, err = counters.Hit(ctx, key, time.Hour)
	require.NoError(t, err)
	assert.Equal(t, int64(1), hit.Count)
}

func TestRevocations(t *testing.T) {
	s, clock := newTestStore(t)
	ctx := context.Background()
	rev := s.Revocations()

	require.NoError(t, rev.Revoke(ctx, "jti-1", clock.now().Add(time.Hour)))
	require.NoError(t, rev.Revoke(ctx, "jti-1", clock.now().Add(time.Hour)))
	require.NoError(t, rev.Revoke(ctx, "jti-old", clock.now().Add(-time.Second)))

	ok, err := rev.IsRevoked(ctx, "jti-1")
	require.NoError(t, err)
	assert.True(t, ok)

	ok, err = rev.IsRevoked(ctx, "jti-old")
	require.NoError(t, err)
	assert.False(t, ok)

	clock.advance(2 * time.Hour)
	ok, err = rev.IsRevoked(ctx, "jti-1")
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestDevices(t *testing.T) {
	s, clock := newTestStore(t)
	ctx := context.Background()
	devs := s.Devices()

	created := clock.now()
	require.NoError(t, devs.Upsert(ctx, stores.Device{UserID: "u1", DeviceID: "d1", Platform: "ios", PushToken: "p1"}))
	clock.advance(time.Minute)
	require.NoError(t, devs.Upsert(ctx, stores.Device{UserID: "u1", DeviceID: "d1", UserAgent: "app/2.0"}))

	list, err := devs.List(ctx, "u1")
	require.NoError(t, err)
	require.Len(t, list, 1)
	assert.Equal(t, "ios", list[0].Platform)
	assert.Equal(t, "p1", list[0].PushToken)
	assert.Equal(t, "app/2.0", list[0].UserAgent)
	assert.True(t, list[0].CreatedAt.Equal(created))
	assert.True(t, list[0].LastSeenAt.Equal(clock.now()))
}

func TestAccounts(t *testing.T) {
	s, _ := newTestStore(t)
	ctx := context.Background()
	accts := s.Accounts()

	_, err := accts.FindAccount(ctx, "ada@example.com", "email")
	require.ErrorIs(t, err, stores.ErrAccountNotFound)

	acct := stores.Account{ID: "a1", Identifier: "ada@example.com", IdentifierType: "email", Role: "merchant", StoreID: "s1"}
	require.NoError(t, accts.CreateAccount(ctx, acct))
	acct.ID = "a2"
	require.ErrorIs(t, accts.CreateAccount(ctx, acct), stores.ErrAccountExists)

	got, err := accts.FindAccount(ctx, "ada@example.com", "email")
	require.NoError(t, err)
	assert.Equal(t, "a1", got.ID)
	assert.Equal(t, "s1", got.StoreID)
}

func TestSweep(t *testing.T) {
	s, clock := newTestStore(t)
	ctx := context.Background()

	require.NoError(t, s.OTPs().Save(ctx, otpRecord(clock, "r1", "123456")))
	_, err := s.Counters().Hit(ctx, rate.Key{Identifier: "x", IdentifierType: "ip", Purpose: "signup"}, time.Minute)
	require.NoError(t, err)
	require.NoError(t, s.Revocations().Revoke(ctx, "jti", clock.now().Add(time.Minute)))

	report, err := s.Sweep(ctx)
	require.NoError(t, err)
	assert.Equal(t, stores.SweepReport{}, report)

	clock.advance(time.Hour)
	report, err = s.Sweep(ctx)
	require.NoError(t, err)
	assert.Equal(t, stores.SweepReport{OTPs: 1, Counters: 1, Revocations: 1}, report)
	require.NoError(t, s.Ping(ctx))
}
