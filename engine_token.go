package courierauth

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/MrEthical07/courierauth/jwt"
)

// IssueToken signs a session token for subject. Merchants must carry a
// store id and no other role may.
func (e *Engine) IssueToken(ctx context.Context, subject Subject) (*Session, error) {
	if !e.ready() {
		return nil, ErrEngineNotReady
	}
	subject, err := validateSubject(subject)
	if err != nil {
		return nil, err
	}

	token, claims, err := e.tokens.Issue(subject.UserID, string(subject.Role), subject.StoreID)
	if err != nil {
		return nil, err
	}

	e.metricInc(MetricTokenIssued)
	e.emitAudit(ctx, auditEventTokenIssued, true, subject.UserID, "", "", claims.TokenID(), nil, func() map[string]string {
		return map[string]string{"role": string(subject.Role)}
	})

	return &Session{
		Token:     token,
		TokenType: "Bearer",
		ExpiresAt: claims.ExpiresAtTime(),
		Claims:    claims,
	}, nil
}

// Authenticate decodes token and checks the blacklist. Any decoding,
// signature or expiry failure is ErrInvalidToken; a blacklisted token is
// ErrTokenRevoked.
func (e *Engine) Authenticate(ctx context.Context, token string) (*Claims, error) {
	if !e.ready() {
		return nil, ErrEngineNotReady
	}

	start := time.Now()
	defer func() {
		e.metrics.Observe(MetricAuthenticateLatency, time.Since(start))
	}()

	claims, err := e.tokens.Parse(token)
	if err != nil {
		e.metricInc(MetricAuthFailure)
		e.logger.WithField("error", err).Debug("token rejected")
		return nil, fmt.Errorf("%w: %v", ErrInvalidToken, err)
	}

	revoked, err := e.revocations.IsRevoked(ctx, claims.TokenID())
	if err != nil {
		e.metricInc(MetricAuthFailure)
		return nil, storeError(err)
	}
	if revoked {
		e.metricInc(MetricAuthRevoked)
		e.emitAudit(ctx, auditEventTokenRejected, false, claims.UserID, "", "", claims.TokenID(), ErrTokenRevoked, nil)
		return nil, ErrTokenRevoked
	}

	e.metricInc(MetricAuthSuccess)
	return claims, nil
}

// RevokeToken blacklists token until Parse would reject it on its own, that
// is expiry plus Token.Leeway. Revoking twice is fine and revoking a token
// past that point is a no-op.
func (e *Engine) RevokeToken(ctx context.Context, token string) error {
	if !e.ready() {
		return ErrEngineNotReady
	}

	claims, err := e.tokens.Parse(token)
	if err != nil {
		if jwt.IsExpired(err) {
			return nil
		}
		return fmt.Errorf("%w: %v", ErrInvalidToken, err)
	}

	until := claims.ExpiresAtTime().Add(e.config.Token.Leeway)
	if err := e.revocations.Revoke(ctx, claims.TokenID(), until); err != nil {
		e.logger.WithFields(logrus.Fields{
			"token_id": claims.TokenID(),
			"error":    err,
		}).Error("token revocation failed")
		return storeError(err)
	}

	e.metricInc(MetricTokenRevoked)
	e.emitAudit(ctx, auditEventTokenRevoked, true, claims.UserID, "", "", claims.TokenID(), nil, nil)
	e.logger.WithFields(logrus.Fields{
		"user_id":  claims.UserID,
		"token_id": claims.TokenID(),
	}).Info("token revoked")
	return nil
}

// IsAuthError reports whether err should be answered with 401.
func IsAuthError(err error) bool {
	return errors.Is(err, ErrInvalidToken) || errors.Is(err, ErrTokenRevoked) || errors.Is(err, ErrUnauthorized)
}
