package courierauth

import (
	"errors"
	"fmt"

	"github.com/MrEthical07/courierauth/internal/stores"
)

var (
	// ErrInvalidToken is returned for tokens that fail decoding, signature,
	// expiry or claim checks.
	ErrInvalidToken = errors.New("invalid token")
	// ErrTokenRevoked is returned for well-formed tokens found on the blacklist.
	ErrTokenRevoked = errors.New("token revoked")
	// ErrUnauthorized is returned when no credentials were presented.
	ErrUnauthorized = errors.New("unauthorized")
	// ErrForbidden is returned when the caller's role does not allow the operation.
	ErrForbidden = errors.New("forbidden")
	// ErrOTPNotFound is returned when no unconsumed, unexpired code matches.
	ErrOTPNotFound = errors.New("OTP not verified or expired")
	// ErrOTPAttemptsExceeded is returned when wrong codes burned the record.
	ErrOTPAttemptsExceeded = errors.New("too many incorrect OTP attempts")
	// ErrRateLimited is wrapped by every *RateLimitError.
	ErrRateLimited = errors.New("too many requests")
	// ErrInvalidRequest covers malformed input not described by a narrower error.
	ErrInvalidRequest = errors.New("invalid request")
	// ErrInvalidIdentifier is returned for malformed phone numbers or emails.
	ErrInvalidIdentifier = errors.New("invalid identifier")
	// ErrInvalidPurpose is returned for an unknown OTP purpose.
	ErrInvalidPurpose = errors.New("invalid purpose")
	// ErrInvalidRole is returned for an unknown role or a role/store mismatch.
	ErrInvalidRole = errors.New("invalid role")
	// ErrAccountNotFound is returned by AccountStore implementations for unknown identifiers.
	ErrAccountNotFound = stores.ErrAccountNotFound
	// ErrAccountExists is returned by AccountStore implementations on duplicate signup.
	ErrAccountExists = stores.ErrAccountExists
	// ErrDeliveryFailed is returned when the code could not be handed to the sender.
	ErrDeliveryFailed = errors.New("otp delivery failed")
	// ErrStoreUnavailable wraps backend failures (Redis, SQL).
	ErrStoreUnavailable = errors.New("store unavailable")
	// ErrEngineNotReady is returned by methods called on a nil or partially built Engine.
	ErrEngineNotReady = errors.New("engine not initialized")
)

// RateLimitError reports a rejected request together with the counter state
// that caused it. errors.Is(err, ErrRateLimited) holds for every value.
type RateLimitError struct {
	Scope    string
	Decision Decision
}

func (e *RateLimitError) Error() string {
	return fmt.Sprintf("%s: %s limit of %d exceeded", ErrRateLimited, e.Scope, e.Decision.Limit)
}

func (e *RateLimitError) Unwrap() error {
	return ErrRateLimited
}

func storeError(err error) error {
	return fmt.Errorf("%w: %v", ErrStoreUnavailable, err)
}

func mapOTPStoreError(err error) error {
	switch {
	case err == nil:
		return nil
	case errors.Is(err, stores.ErrOTPNotFound), errors.Is(err, stores.ErrOTPMismatch):
		return ErrOTPNotFound
	case errors.Is(err, stores.ErrOTPAttemptsExceeded):
		return ErrOTPAttemptsExceeded
	default:
		return storeError(err)
	}
}

func mapAccountStoreError(err error) error {
	switch {
	case err == nil:
		return nil
	case errors.Is(err, ErrAccountNotFound), errors.Is(err, ErrAccountExists):
		return err
	default:
		return storeError(err)
	}
}
