// Package jwt signs and verifies courier session tokens.
//
// A token carries the user id, role and optional store id of the caller plus
// a unique token id (jti) used for revocation. Verification is strict: the
// algorithm is pinned, exp is required, and issuer/audience are enforced when
// configured. All verification failures wrap [ErrInvalidToken].
package jwt
