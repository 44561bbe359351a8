package rate

import (
	"context"
	"time"
)

// Decision is the outcome of one rate limit check.
type Decision struct {
	Allowed    bool          `json:"allowed"`
	Count      int64         `json:"count"`
	Limit      int           `json:"limit"`
	Remaining  int           `json:"remaining"`
	RetryAfter time.Duration `json:"-"`
	ResetAt    time.Time     `json:"reset_at"`
}

// RetryAfterSeconds rounds RetryAfter up to whole seconds, the unit used by
// the Retry-After header.
func (d Decision) RetryAfterSeconds() int64 {
	if d.RetryAfter <= 0 {
		return 0
	}
	secs := int64(d.RetryAfter / time.Second)
	if d.RetryAfter%time.Second != 0 {
		secs++
	}
	return secs
}

// Decide turns a counter state into a decision. A hit is allowed while its
// count does not exceed max.
func Decide(hit Hit, max int, now time.Time) Decision {
	d := Decision{
		Allowed: hit.Count <= int64(max),
		Count:   hit.Count,
		Limit:   max,
		ResetAt: hit.ResetAt,
	}

	remaining := int64(max) - hit.Count
	if remaining < 0 {
		remaining = 0
	}
	d.Remaining = int(remaining)

	if !d.Allowed {
		d.RetryAfter = hit.ResetAt.Sub(now)
		if d.RetryAfter < 0 {
			d.RetryAfter = 0
		}
	}
	return d
}

// Check increments key on c and decides against max.
func Check(ctx context.Context, c Counter, key Key, max int, window time.Duration, now time.Time) (Decision, error) {
	if max <= 0 || window <= 0 {
		return Decision{}, ErrInvalidPolicy
	}
	hit, err := c.Hit(ctx, key, window)
	if err != nil {
		return Decision{}, err
	}
	return Decide(hit, max, now), nil
}
