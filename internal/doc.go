// Package internal holds helpers private to courierauth: OTP generation and
// hashing, and identifier masking for logs.
//
// # Sub-packages
//
//   - audit: async audit event dispatch (Dispatcher + Sink implementations)
//   - rate: Redis-backed fixed window counters
//   - stores: Redis-backed OTP records, token blacklist, devices and accounts
//   - sqlstore: SQL (postgres, sqlite) implementations of the same stores
package internal
