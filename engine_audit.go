package courierauth

import (
	"context"
	"errors"
)

const (
	auditEventOTPIssued         = "otp_issued"
	auditEventOTPDeliveryFailed = "otp_delivery_failed"
	auditEventOTPVerified       = "otp_verified"
	auditEventOTPVerifyFailed   = "otp_verify_failed"
	auditEventAccountCreated    = "account_created"
	auditEventRateLimited       = "rate_limit_triggered"
	auditEventTokenIssued       = "token_issued"
	auditEventTokenRevoked      = "token_revoked"
	auditEventTokenRejected     = "token_rejected"
)

// AuditErrorCode is the stable, non-sensitive error label carried by audit
// events.
type AuditErrorCode string

const (
	auditErrUnauthorized     AuditErrorCode = "unauthorized"
	auditErrInvalidToken     AuditErrorCode = "invalid_token"
	auditErrTokenRevoked     AuditErrorCode = "token_revoked"
	auditErrForbidden        AuditErrorCode = "forbidden"
	auditErrOTPNotFound      AuditErrorCode = "otp_not_found"
	auditErrAttemptsExceeded AuditErrorCode = "attempts_exceeded"
	auditErrRateLimited      AuditErrorCode = "rate_limited"
	auditErrInvalidRequest   AuditErrorCode = "invalid_request"
	auditErrAccountNotFound  AuditErrorCode = "account_not_found"
	auditErrDuplicate        AuditErrorCode = "duplicate"
	auditErrDeliveryFailed   AuditErrorCode = "delivery_failed"
	auditErrUnavailable      AuditErrorCode = "backend_unavailable"
	auditErrInternal         AuditErrorCode = "internal_error"
)

func (e *Engine) emitAudit(
	ctx context.Context,
	eventType string,
	success bool,
	userID string,
	identifier string,
	purpose string,
	tokenID string,
	err error,
	metadataBuilder func() map[string]string,
) {
	if e == nil || e.audit == nil {
		return
	}

	var metadata map[string]string
	if metadataBuilder != nil {
		metadata = metadataBuilder()
	}

	event := AuditEvent{
		Timestamp:  e.now().UTC(),
		EventType:  eventType,
		UserID:     userID,
		Identifier: identifier,
		Purpose:    purpose,
		TokenID:    tokenID,
		IP:         ClientIPFromContext(ctx),
		Success:    success,
		Metadata:   metadata,
	}
	if code := auditErrorCode(err); code != "" {
		event.Error = string(code)
	}

	e.audit.Emit(ctx, event)
}

func auditErrorCode(err error) AuditErrorCode {
	if err == nil {
		return ""
	}

	switch {
	case errors.Is(err, ErrUnauthorized):
		return auditErrUnauthorized
	case errors.Is(err, ErrTokenRevoked):
		return auditErrTokenRevoked
	case errors.Is(err, ErrInvalidToken):
		return auditErrInvalidToken
	case errors.Is(err, ErrForbidden):
		return auditErrForbidden
	case errors.Is(err, ErrOTPNotFound):
		return auditErrOTPNotFound
	case errors.Is(err, ErrOTPAttemptsExceeded):
		return auditErrAttemptsExceeded
	case errors.Is(err, ErrRateLimited):
		return auditErrRateLimited
	case errors.Is(err, ErrInvalidRequest),
		errors.Is(err, ErrInvalidIdentifier),
		errors.Is(err, ErrInvalidPurpose),
		errors.Is(err, ErrInvalidRole):
		return auditErrInvalidRequest
	case errors.Is(err, ErrAccountNotFound):
		return auditErrAccountNotFound
	case errors.Is(err, ErrAccountExists):
		return auditErrDuplicate
	case errors.Is(err, ErrDeliveryFailed):
		return auditErrDeliveryFailed
	case errors.Is(err, ErrStoreUnavailable):
		return auditErrUnavailable
	default:
		return auditErrInternal
	}
}
