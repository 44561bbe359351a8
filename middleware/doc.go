// Package middleware adapts courierauth.Engine to net/http.
//
//   - [ClientIP] records the caller's address and User-Agent on the context.
//   - [Guard] authenticates the bearer token and attaches [courierauth.Claims].
//   - [RequireRole] rejects authenticated callers without an allowed role.
//   - [RateLimit] applies a per-IP budget and sets the X-RateLimit-* headers.
//
// Decisions are delegated to the Engine; this package only translates HTTP
// requests into Engine calls and Engine errors into envelope responses.
package middleware
