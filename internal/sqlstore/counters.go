package sqlstore

import (
	"context"
	"time"

	"github.com/MrEthical07/courierauth/internal/rate"
)

// CounterStore is the SQL rate.Counter. One row per key; the upsert either
// increments the row or, once its window has elapsed, restarts it at 1.
type CounterStore struct{ s *Store }

const hitCounterSQL = `
INSERT INTO ca_rate_counters (identifier, identifier_type, purpose, window_start, window_ms, count)
VALUES (?, ?, ?, ?, ?, 1)
ON CONFLICT (identifier, identifier_type, purpose) DO UPDATE SET
    count = CASE WHEN ca_rate_counters.window_start + ca_rate_counters.window_ms <= excluded.window_start
                 THEN 1 ELSE ca_rate_counters.count + 1 END,
    window_start = CASE WHEN ca_rate_counters.window_start + ca_rate_counters.window_ms <= excluded.window_start
                        THEN excluded.window_start ELSE ca_rate_counters.window_start END,
    window_ms = CASE WHEN ca_rate_counters.window_start + ca_rate_counters.window_ms <= excluded.window_start
                     THEN excluded.window_ms ELSE ca_rate_counters.window_ms END
RETURNING count, window_start, window_ms`

func (c *CounterStore) Hit(ctx context.Context, key rate.Key, window time.Duration) (rate.Hit, error) {
	if window <= 0 {
		return rate.Hit{}, rate.ErrInvalidPolicy
	}

	var count, startMs, windowMs int64
	err := c.s.db.QueryRowContext(ctx, c.s.rebind(hitCounterSQL),
		key.Identifier, key.IdentifierType, key.Purpose,
		c.s.now().UnixMilli(), window.Milliseconds(),
	).Scan(&count, &startMs, &windowMs)
	if err != nil {
		return rate.Hit{}, unavailable(err)
	}

	start := time.UnixMilli(startMs)
	return rate.Hit{
		Count:       count,
		WindowStart: start,
		ResetAt:     start.Add(time.Duration(windowMs) * time.Millisecond),
	}, nil
}

func (c *CounterStore) Reset(ctx context.Context, key rate.Key) error {
	if _, err := c.s.db.ExecContext(ctx, c.s.rebind(
		`DELETE FROM ca_rate_counters WHERE identifier = ? AND identifier_type = ? AND purpose = ?`),
		key.Identifier, key.IdentifierType, key.Purpose); err != nil {
		return unavailable(err)
	}
	return nil
}
