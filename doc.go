// Package courierauth is the authentication core of the delivery platform:
// one-time codes over SMS and email, signed session tokens with a revocation
// blacklist, and fixed-window rate limits keyed by phone, email or IP.
//
// Engine methods are safe for concurrent use after [Builder.Build].
//
// # Architecture boundaries
//
// courierauth is the public surface. It exposes [Engine], [Builder], [Config]
// and value types (Claims, Session, Decision, Device). Storage lives under
// internal/ and is never exported: Redis or SQL for codes, counters and
// revocations, SQL (or Redis) for accounts and devices. HTTP concerns live
// in middleware/, response/ and api/.
//
// # What this package must NOT do
//
//   - Expose Redis clients, SQL handles or record encodings in its API.
//   - Perform I/O outside Engine methods, OpenDB and Migrate.
//   - Import api/ or middleware/ (they import this package).
//
// # Guarantees
//
// A code verifies at most once: the consume step is a single atomic
// compare-and-delete (Redis) or conditional UPDATE (SQL). Counter increments
// are atomic in both backends, so concurrent requests never over-admit.
// Authenticate performs one store round trip, the blacklist lookup.
package courierauth
