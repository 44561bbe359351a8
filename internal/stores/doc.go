// Package stores provides the Redis-backed records behind courierauth:
// one-time codes, the token blacklist, the device registry and accounts.
//
// # Design
//
// OTP records are versioned, binary-encoded values with a TTL. Consume runs
// as a single Lua script (GET, validate, rewrite attempts or DEL), so a code
// can succeed at most once even under concurrent verification. Wrong codes
// bump an attempt counter and the record is burned at the configured cap.
// Code hashes are compared in constant time after the script returns.
//
// The types in this file set (OTPRecord, Device, Account, SweepReport) are
// shared with internal/sqlstore, which implements the same method sets on
// a relational database.
//
// # What this package must NOT do
//
//   - Import courierauth or any sibling internal package.
//   - Log or store plaintext codes.
//   - Generate codes or decide rate limits.
package stores
