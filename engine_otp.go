package courierauth

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"

	"github.com/MrEthical07/courierauth/internal"
	"github.com/MrEthical07/courierauth/internal/rate"
	"github.com/MrEthical07/courierauth/internal/stores"
	"github.com/MrEthical07/courierauth/notify"
)

// IssueOTP generates a code for req, stores its hash and hands the code to
// the sender. A new code replaces any earlier unconsumed one for the same
// identifier and purpose.
//
// The per-IP limit (IP taken from WithClientIP) and the per-identifier limit
// for the purpose are both charged before anything is stored. If delivery
// fails the stored code is removed and ErrDeliveryFailed is returned.
func (e *Engine) IssueOTP(ctx context.Context, req OTPRequest) (*OTPIssue, error) {
	if !e.ready() {
		return nil, ErrEngineNotReady
	}

	purpose, err := ParsePurpose(string(req.Purpose))
	if err != nil {
		return nil, err
	}
	identifier, typ, err := NormalizeIdentifier(req.Identifier, req.IdentifierType)
	if err != nil {
		return nil, err
	}
	if typ == IdentifierIP {
		return nil, fmt.Errorf("%w: codes cannot be sent to an ip", ErrInvalidIdentifier)
	}

	if err := e.enforceIssueLimits(ctx, identifier, typ, purpose); err != nil {
		return nil, err
	}

	code, err := internal.NewOTP(e.config.OTP.Digits)
	if err != nil {
		return nil, err
	}

	now := e.now()
	record := &stores.OTPRecord{
		ID:             uuid.NewString(),
		Identifier:     identifier,
		IdentifierType: string(typ),
		Purpose:        string(purpose),
		CodeHash:       internal.HashOTP(identifier, string(purpose), code),
		CreatedAt:      now,
		ExpiresAt:      now.Add(e.config.OTP.TTL),
	}
	if err := e.otps.Save(ctx, record); err != nil {
		return nil, storeError(err)
	}

	masked := internal.MaskIdentifier(identifier)
	channel := channelFor(typ)
	msg := notify.OTPMessage(channel, identifier, string(purpose), code, e.config.OTP.TTL)

	if err := e.sender.Send(ctx, msg); err != nil {
		if delErr := e.otps.Delete(ctx, identifier, string(purpose)); delErr != nil {
			e.logger.WithFields(logrus.Fields{
				"identifier": masked,
				"purpose":    purpose,
				"error":      delErr,
			}).Error("failed to discard undelivered otp")
		}
		e.metricIncLabeled(MetricOTPDeliveryFailed, string(purpose))
		e.emitAudit(ctx, auditEventOTPDeliveryFailed, false, "", masked, string(purpose), "", ErrDeliveryFailed, func() map[string]string {
			return map[string]string{"channel": channel}
		})
		e.logger.WithFields(logrus.Fields{
			"identifier": masked,
			"purpose":    purpose,
			"channel":    channel,
			"error":      err,
		}).Error("otp delivery failed")
		return nil, fmt.Errorf("%w: %v", ErrDeliveryFailed, err)
	}

	e.metricIncLabeled(MetricOTPIssued, string(purpose))
	e.emitAudit(ctx, auditEventOTPIssued, true, "", masked, string(purpose), "", nil, func() map[string]string {
		return map[string]string{"channel": channel}
	})
	e.logger.WithFields(logrus.Fields{
		"identifier":      masked,
		"identifier_type": typ,
		"purpose":         purpose,
		"channel":         channel,
	}).Info("otp issued")

	return &OTPIssue{
		Identifier:     identifier,
		IdentifierType: typ,
		Purpose:        purpose,
		Channel:        channel,
		ExpiresAt:      record.ExpiresAt,
	}, nil
}

func (e *Engine) enforceIssueLimits(ctx context.Context, identifier string, typ IdentifierType, purpose Purpose) error {
	if !e.config.RateLimit.Enabled {
		return nil
	}

	if ip := ClientIPFromContext(ctx); ip != "" {
		if addr, _, err := NormalizeIdentifier(ip, IdentifierIP); err == nil {
			key := rate.Key{Identifier: addr, IdentifierType: string(IdentifierIP), Purpose: scopeOTPRequest}
			if err := e.enforce(ctx, scopeOTPRequest, key, e.config.RateLimit.IP); err != nil {
				return err
			}
		}
	}

	if policy, ok := e.purposePolicy(purpose); ok {
		key := rate.Key{Identifier: identifier, IdentifierType: string(typ), Purpose: string(purpose)}
		if err := e.enforce(ctx, scopeOTPRequest, key, policy); err != nil {
			return err
		}
	}
	return nil
}

// VerifyOTP consumes the live code for identifier and purpose. It succeeds
// at most once per issued code; every later call, and every call with a
// wrong, expired or unknown code, returns ErrOTPNotFound. Once OTP.MaxAttempts
// wrong codes have been submitted the record is burned and
// ErrOTPAttemptsExceeded is returned.
func (e *Engine) VerifyOTP(ctx context.Context, identifier, code string, purpose Purpose) error {
	if !e.ready() {
		return ErrEngineNotReady
	}
	p, err := ParsePurpose(string(purpose))
	if err != nil {
		return err
	}
	normalized, typ, err := NormalizeIdentifier(identifier, "")
	if err != nil {
		return err
	}
	_, err = e.consumeOTP(ctx, normalized, typ, code, p)
	return err
}

func (e *Engine) consumeOTP(ctx context.Context, identifier string, typ IdentifierType, code string, purpose Purpose) (*stores.OTPRecord, error) {
	masked := internal.MaskIdentifier(identifier)

	verifyKey := rate.Key{Identifier: identifier, IdentifierType: string(typ), Purpose: "verify:" + string(purpose)}
	if e.config.RateLimit.Enabled {
		if err := e.enforce(ctx, scopeOTPVerify, verifyKey, e.config.RateLimit.Verify); err != nil {
			return nil, err
		}
	}

	var (
		record *stores.OTPRecord
		err    error
	)
	if len(code) != e.config.OTP.Digits || !internal.IsDigits(code) {
		err = ErrOTPNotFound
	} else {
		record, err = e.otps.Consume(ctx, identifier, string(purpose),
			internal.HashOTP(identifier, string(purpose), code), e.config.OTP.MaxAttempts)
		err = mapOTPStoreError(err)
	}

	if err != nil {
		switch {
		case errors.Is(err, ErrOTPAttemptsExceeded):
			e.metricIncLabeled(MetricOTPAttemptsExceeded, string(purpose))
		case errors.Is(err, ErrStoreUnavailable):
			e.logger.WithFields(logrus.Fields{
				"identifier": masked,
				"purpose":    purpose,
				"error":      err,
			}).Error("otp store failed")
		default:
			e.metricIncLabeled(MetricOTPVerifyFailed, string(purpose))
		}
		e.emitAudit(ctx, auditEventOTPVerifyFailed, false, "", masked, string(purpose), "", err, nil)
		return nil, err
	}

	e.metricIncLabeled(MetricOTPVerified, string(purpose))
	if e.config.RateLimit.Enabled {
		// The identifier proved possession; its verify budget starts over.
		if err := e.counters.Reset(ctx, verifyKey); err != nil {
			e.logger.WithFields(logrus.Fields{
				"identifier": masked,
				"purpose":    purpose,
				"error":      err,
			}).Warn("failed to reset verify counter")
		}
	}
	e.emitAudit(ctx, auditEventOTPVerified, true, "", masked, string(purpose), "", nil, nil)
	e.logger.WithFields(logrus.Fields{
		"identifier": masked,
		"purpose":    purpose,
	}).Info("otp verified")

	return record, nil
}

// CompleteOTP verifies a code and finishes the flow it was issued for.
//
//   - login: the account must exist; returns a session for it.
//   - signup: the account must not exist; creates it with Role (default
//     customer) and returns a session. Admin accounts cannot sign up.
//   - anything else: verification only; the returned session is nil.
//
// Account checks run before the code is consumed so a rejected completion
// does not burn a valid code.
func (e *Engine) CompleteOTP(ctx context.Context, req OTPCompletion) (*Session, error) {
	if !e.ready() {
		return nil, ErrEngineNotReady
	}
	purpose, err := ParsePurpose(string(req.Purpose))
	if err != nil {
		return nil, err
	}
	identifier, typ, err := NormalizeIdentifier(req.Identifier, req.IdentifierType)
	if err != nil {
		return nil, err
	}
	if typ == IdentifierIP {
		return nil, fmt.Errorf("%w: codes cannot be sent to an ip", ErrInvalidIdentifier)
	}

	switch purpose {
	case PurposeLogin:
		account, err := e.accounts.FindAccount(ctx, identifier, string(typ))
		if err != nil {
			return nil, mapAccountStoreError(err)
		}
		if _, err := e.consumeOTP(ctx, identifier, typ, req.Code, purpose); err != nil {
			return nil, err
		}
		session, err := e.IssueToken(ctx, Subject{UserID: account.ID, Role: Role(account.Role), StoreID: account.StoreID})
		if err != nil {
			return nil, err
		}
		session.Account = account
		return session, nil

	case PurposeSignup:
		subject, err := signupSubject(req)
		if err != nil {
			return nil, err
		}
		if _, err := e.accounts.FindAccount(ctx, identifier, string(typ)); err == nil {
			return nil, ErrAccountExists
		} else if !errors.Is(err, ErrAccountNotFound) {
			return nil, mapAccountStoreError(err)
		}
		if _, err := e.consumeOTP(ctx, identifier, typ, req.Code, purpose); err != nil {
			return nil, err
		}

		account := Account{
			ID:             uuid.NewString(),
			Identifier:     identifier,
			IdentifierType: string(typ),
			Role:           string(subject.Role),
			StoreID:        subject.StoreID,
			CreatedAt:      e.now().UTC(),
		}
		if err := e.accounts.CreateAccount(ctx, account); err != nil {
			return nil, mapAccountStoreError(err)
		}
		e.metricInc(MetricAccountCreated)
		e.emitAudit(ctx, auditEventAccountCreated, true, account.ID, internal.MaskIdentifier(identifier), string(purpose), "", nil, func() map[string]string {
			return map[string]string{"role": account.Role}
		})

		subject.UserID = account.ID
		session, err := e.IssueToken(ctx, subject)
		if err != nil {
			return nil, err
		}
		session.Account = &account
		return session, nil

	default:
		if _, err := e.consumeOTP(ctx, identifier, typ, req.Code, purpose); err != nil {
			return nil, err
		}
		return nil, nil
	}
}

func signupSubject(req OTPCompletion) (Subject, error) {
	role := req.Role
	if role == "" {
		role = RoleCustomer
	}
	parsed, err := ParseRole(string(role))
	if err != nil {
		return Subject{}, err
	}
	if parsed == RoleAdmin {
		return Subject{}, fmt.Errorf("%w: admin accounts cannot self-register", ErrInvalidRole)
	}
	// validateSubject needs a user id; the real one is assigned after creation.
	subject, err := validateSubject(Subject{UserID: "pending", Role: parsed, StoreID: req.StoreID})
	if err != nil {
		return Subject{}, err
	}
	subject.UserID = ""
	return subject, nil
}
