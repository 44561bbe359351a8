package courierauth

import (
	"context"
	"fmt"
	"regexp"
	"strconv"

	"github.com/sirupsen/logrus"

	"github.com/MrEthical07/courierauth/internal"
	"github.com/MrEthical07/courierauth/internal/rate"
)

const (
	scopeOTPRequest = "otp_request"
	scopeOTPVerify  = "otp_verify"
	scopeCheck      = "check"
)

var counterPurposePattern = regexp.MustCompile(`^[a-z0-9][a-z0-9_.:-]{0,63}$`)

// CheckRateLimit increments the counter for (identifier, type, purpose) and
// reports whether the request fits in max per window. A rejected check is
// not an error: the caller inspects Decision.Allowed.
func (e *Engine) CheckRateLimit(ctx context.Context, req RateLimitRequest) (Decision, error) {
	if !e.ready() {
		return Decision{}, ErrEngineNotReady
	}
	identifier, typ, err := NormalizeIdentifier(req.Identifier, req.IdentifierType)
	if err != nil {
		return Decision{}, err
	}
	if !counterPurposePattern.MatchString(req.Purpose) {
		return Decision{}, fmt.Errorf("%w: purpose must match %s", ErrInvalidRequest, counterPurposePattern)
	}
	if req.Max <= 0 || req.Window <= 0 {
		return Decision{}, fmt.Errorf("%w: max and window must be > 0", ErrInvalidRequest)
	}

	key := rate.Key{Identifier: identifier, IdentifierType: string(typ), Purpose: req.Purpose}
	decision, err := e.check(ctx, scopeCheck, key, Policy{Max: req.Max, Window: req.Window})
	if err != nil {
		return Decision{}, err
	}
	return decision, nil
}

// enforce runs check and turns a rejection into a *RateLimitError.
func (e *Engine) enforce(ctx context.Context, scope string, key rate.Key, policy Policy) error {
	decision, err := e.check(ctx, scope, key, policy)
	if err != nil {
		return err
	}
	if !decision.Allowed {
		return &RateLimitError{Scope: scope, Decision: decision}
	}
	return nil
}

func (e *Engine) check(ctx context.Context, scope string, key rate.Key, policy Policy) (Decision, error) {
	decision, err := rate.Check(ctx, e.counters, key, policy.Max, policy.Window, e.now())
	if err != nil {
		e.logger.WithFields(logrus.Fields{
			"scope": scope,
			"error": err,
		}).Error("rate limit backend failed")
		return Decision{}, storeError(err)
	}
	if decision.Allowed {
		return decision, nil
	}

	masked := internal.MaskIdentifier(key.Identifier)
	e.metricIncLabeled(MetricRateLimitHit, scope)
	e.emitAudit(ctx, auditEventRateLimited, false, "", masked, key.Purpose, "", ErrRateLimited, func() map[string]string {
		return map[string]string{
			"scope":           scope,
			"identifier_type": key.IdentifierType,
			"count":           strconv.FormatInt(decision.Count, 10),
			"limit":           strconv.Itoa(decision.Limit),
		}
	})
	e.logger.WithFields(logrus.Fields{
		"scope":           scope,
		"identifier":      masked,
		"identifier_type": key.IdentifierType,
		"purpose":         key.Purpose,
		"count":           decision.Count,
		"limit":           decision.Limit,
		"retry_after":     decision.RetryAfter.String(),
	}).Warn("rate limit exceeded")

	return decision, nil
}

func (e *Engine) purposePolicy(purpose Purpose) (Policy, bool) {
	if !e.config.RateLimit.Enabled {
		return Policy{}, false
	}
	policy, ok := e.config.RateLimit.Purposes[purpose]
	return policy, ok
}
