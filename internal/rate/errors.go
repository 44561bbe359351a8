package rate

import "errors"

var (
	// ErrRedisUnavailable wraps every Redis failure seen by the limiter.
	ErrRedisUnavailable = errors.New("redis unavailable")
	// ErrInvalidPolicy is returned for a non-positive max or window.
	ErrInvalidPolicy = errors.New("invalid rate limit policy")
)
