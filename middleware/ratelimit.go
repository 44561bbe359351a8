package middleware

import (
	"net/http"
	"time"

	"github.com/MrEthical07/courierauth"
	"github.com/MrEthical07/courierauth/response"
)

// RateLimitRule is a per-client-IP budget for a group of routes.
type RateLimitRule struct {
	// Purpose names the counter, e.g. "http_otp". Routes sharing a Purpose
	// share a budget.
	Purpose string
	Max     int
	Window  time.Duration
}

// RateLimit counts each request against the caller's IP (see ClientIP)
// and answers 429 once the rule's budget is spent. Counter failures are
// answered with 500 rather than letting the request through.
func RateLimit(engine *courierauth.Engine, rule RateLimitRule) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if engine == nil {
				response.FromError(w, courierauth.ErrEngineNotReady)
				return
			}

			ip := courierauth.ClientIPFromContext(r.Context())
			if ip == "" {
				ip, _ = parseIPCandidate(r.RemoteAddr)
			}
			if ip == "" {
				response.Error(w, http.StatusBadRequest, "cannot determine client address")
				return
			}

			decision, err := engine.CheckRateLimit(r.Context(), courierauth.RateLimitRequest{
				Identifier:     ip,
				IdentifierType: courierauth.IdentifierIP,
				Purpose:        rule.Purpose,
				Max:            rule.Max,
				Window:         rule.Window,
			})
			if err != nil {
				engine.Logger().WithError(err).WithField("purpose", rule.Purpose).Error("rate limit middleware: check failed")
				response.FromError(w, err)
				return
			}

			response.SetRateLimitHeaders(w, decision)
			if !decision.Allowed {
				response.ErrorWithData(w, http.StatusTooManyRequests, courierauth.ErrRateLimited.Error(), response.RateLimitDataFor(decision))
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}
