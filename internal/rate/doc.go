// Package rate implements the attempt counters behind every throttle in
// courierauth.
//
// # Window semantics
//
// A counter is keyed by (identifier, identifier type, purpose). The first hit
// opens a window of the configured length and sets the count to 1; later hits
// inside the window increment it. Once the window has elapsed the next hit
// starts a new window at 1. A request is allowed while count <= max.
//
// [Limiter] is the Redis implementation (INCR + PEXPIRE on first hit, done in
// one Lua script). The SQL implementation lives in internal/sqlstore and
// satisfies the same [Counter] interface.
package rate
