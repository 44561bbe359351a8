// Package api serves the courierauth HTTP interface on a chi router.
//
// Every response uses the envelope from package response. Public OTP routes
// are throttled per client IP before the engine applies its own
// per-identifier limits; session routes sit behind the auth gate.
package api

import (
	_ "embed"
	"net/http"
	"net/netip"
	"time"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"
	oamw "github.com/go-openapi/runtime/middleware"
	"github.com/sirupsen/logrus"

	"github.com/MrEthical07/courierauth"
	authmw "github.com/MrEthical07/courierauth/middleware"
	"github.com/MrEthical07/courierauth/response"
)

//go:embed openapi.yaml
var openapiSpec []byte

// maxBodyBytes caps request bodies.
const maxBodyBytes = 64 << 10

// Options configures the HTTP layer around the engine.
type Options struct {
	// TrustedProxies may set X-Forwarded-For and friends.
	TrustedProxies []netip.Prefix
	// OTPRequestLimit and OTPVerifyLimit are per-IP budgets for the public
	// OTP routes. A zero Max disables the budget.
	OTPRequestLimit authmw.RateLimitRule
	OTPVerifyLimit  authmw.RateLimitRule
	// MetricsHandler is mounted at /metrics when non-nil.
	MetricsHandler http.Handler
}

// DefaultOptions trusts no proxies and allows 30 OTP requests and 60
// verifications per IP per 10 minutes.
func DefaultOptions() Options {
	return Options{
		OTPRequestLimit: authmw.RateLimitRule{Purpose: "http_otp_request", Max: 30, Window: 10 * time.Minute},
		OTPVerifyLimit:  authmw.RateLimitRule{Purpose: "http_otp_verify", Max: 60, Window: 10 * time.Minute},
	}
}

// API holds the handlers.
type API struct {
	engine *courierauth.Engine
	logger logrus.FieldLogger
	opts   Options
}

// New returns an API for engine. A nil logger uses the engine's.
func New(engine *courierauth.Engine, logger logrus.FieldLogger, opts Options) *API {
	if logger == nil {
		logger = engine.Logger()
	}
	return &API{engine: engine, logger: logger, opts: opts}
}

// Router returns a chi.Router with every route mounted.
func (a *API) Router() chi.Router {
	r := chi.NewRouter()
	r.Use(chimw.RequestID)
	r.Use(requestLogger(a.logger))
	r.Use(chimw.Recoverer)
	r.Use(authmw.ClientIP(a.opts.TrustedProxies))

	r.NotFound(func(w http.ResponseWriter, _ *http.Request) {
		response.Error(w, http.StatusNotFound, "not found")
	})
	r.MethodNotAllowed(func(w http.ResponseWriter, _ *http.Request) {
		response.Error(w, http.StatusMethodNotAllowed, "method not allowed")
	})

	r.Get("/healthz", a.Health)
	if a.opts.MetricsHandler != nil {
		r.Method(http.MethodGet, "/metrics", a.opts.MetricsHandler)
	}

	guard := authmw.Guard(a.engine)
	admin := authmw.RequireRole(courierauth.RoleAdmin)

	r.Route("/v1", func(r chi.Router) {
		r.Get("/openapi.yaml", func(w http.ResponseWriter, _ *http.Request) {
			w.Header().Set("Content-Type", "application/yaml")
			_, _ = w.Write(openapiSpec)
		})
		r.Handle("/docs*", oamw.SwaggerUI(oamw.SwaggerUIOpts{
			SpecURL: "/v1/openapi.yaml",
			Path:    "v1/docs",
		}, nil))
		r.Handle("/redoc*", oamw.Redoc(oamw.RedocOpts{
			SpecURL: "/v1/openapi.yaml",
			Path:    "v1/redoc",
		}, nil))

		r.With(a.ipLimit(a.opts.OTPRequestLimit)...).Post("/auth/otp/request", a.RequestOTP)
		r.With(a.ipLimit(a.opts.OTPVerifyLimit)...).Post("/auth/otp/verify", a.VerifyOTP)

		r.Group(func(r chi.Router) {
			r.Use(guard)
			r.Get("/auth/session", a.Session)
			r.Post("/auth/logout", a.Logout)
			r.Post("/devices", a.RegisterDevice)
			r.Get("/devices", a.ListDevices)

			r.With(admin).Post("/auth/tokens/revoke", a.RevokeToken)
			r.With(admin).Post("/ratelimit/check", a.CheckRateLimit)
		})
	})

	return r
}

func (a *API) ipLimit(rule authmw.RateLimitRule) []func(http.Handler) http.Handler {
	if rule.Max <= 0 || rule.Window <= 0 {
		return nil
	}
	return []func(http.Handler) http.Handler{authmw.RateLimit(a.engine, rule)}
}
