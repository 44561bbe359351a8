package middleware

import (
	"context"
	"net/http"
	"strings"

	"github.com/sirupsen/logrus"

	"github.com/MrEthical07/courierauth"
	"github.com/MrEthical07/courierauth/response"
)

// Device headers read by Guard when Device.RegisterOnAuth is set.
const (
	HeaderDeviceID       = "X-Device-ID"
	HeaderDevicePlatform = "X-Device-Platform"
	HeaderPushToken      = "X-Push-Token"
)

// maxPendingRegistrations bounds the background device upserts a single
// Guard runs at once. Requests beyond it skip registration.
const maxPendingRegistrations = 64

type claimsContextKey struct{}
type tokenContextKey struct{}

// ClaimsFromContext returns the claims Guard attached to ctx.
func ClaimsFromContext(ctx context.Context) (*courierauth.Claims, bool) {
	claims, ok := ctx.Value(claimsContextKey{}).(*courierauth.Claims)
	return claims, ok && claims != nil
}

// TokenFromContext returns the raw token Guard authenticated.
func TokenFromContext(ctx context.Context) (string, bool) {
	token, ok := ctx.Value(tokenContextKey{}).(string)
	return token, ok && token != ""
}

// Guard authenticates the request with engine and rejects it with 401 when
// the token is missing, invalid or revoked. Store failures answer 500. The
// token comes from "Authorization: Bearer <token>" or,
// for GET requests without that header and only when Gate.AllowQueryToken
// is set, from the configured query parameter. Query tokens are logged at
// warn level.
//
// After a successful check the device described by the X-Device-* headers
// is registered in the background. Registration failures are logged and
// never affect the response.
func Guard(engine *courierauth.Engine) func(http.Handler) http.Handler {
	slots := make(chan struct{}, maxPendingRegistrations)

	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if engine == nil {
				response.Error(w, http.StatusUnauthorized, "unauthorized")
				return
			}
			cfg := engine.Config()

			token, fromQuery, ok := extractToken(r, cfg.Gate)
			if !ok {
				response.Error(w, http.StatusUnauthorized, "unauthorized")
				return
			}

			claims, err := engine.Authenticate(r.Context(), token)
			if err != nil {
				if courierauth.IsAuthError(err) {
					response.Error(w, http.StatusUnauthorized, "unauthorized")
					return
				}
				engine.Logger().WithError(err).Error("auth gate: authenticate failed")
				response.FromError(w, err)
				return
			}

			if fromQuery {
				engine.Logger().WithFields(logrus.Fields{
					"path":    r.URL.Path,
					"user_id": claims.UserID,
				}).Warn("auth gate: token accepted from query string")
			}

			if cfg.Device.RegisterOnAuth {
				registerDevice(r, engine, claims.UserID, cfg.Device, slots)
			}

			ctx := context.WithValue(r.Context(), claimsContextKey{}, claims)
			ctx = context.WithValue(ctx, tokenContextKey{}, token)
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

// extractToken reports whether the token came from the query string.
func extractToken(r *http.Request, gate courierauth.GateConfig) (token string, fromQuery, ok bool) {
	if header := r.Header.Get("Authorization"); header != "" {
		token, ok = bearerToken(header)
		return token, false, ok
	}

	if !gate.AllowQueryToken || r.Method != http.MethodGet {
		return "", false, false
	}
	token = strings.TrimSpace(r.URL.Query().Get(gate.QueryParam))
	return token, true, token != ""
}

func bearerToken(value string) (string, bool) {
	const bearer = "Bearer "
	if len(value) < len(bearer) || !strings.EqualFold(value[:len(bearer)], bearer) {
		return "", false
	}

	token := strings.TrimSpace(value[len(bearer):])
	if token == "" {
		return "", false
	}

	return token, true
}

func registerDevice(r *http.Request, engine *courierauth.Engine, userID string, cfg courierauth.DeviceConfig, slots chan struct{}) {
	deviceID := strings.TrimSpace(r.Header.Get(HeaderDeviceID))
	if deviceID == "" {
		return
	}

	select {
	case slots <- struct{}{}:
	default:
		engine.Logger().WithField("user_id", userID).Warn("auth gate: device registration skipped, too many pending")
		return
	}

	info := courierauth.DeviceInfo{
		DeviceID:  deviceID,
		Platform:  r.Header.Get(HeaderDevicePlatform),
		PushToken: r.Header.Get(HeaderPushToken),
		UserAgent: r.UserAgent(),
	}
	ctx := context.WithoutCancel(r.Context())

	go func() {
		defer func() { <-slots }()

		ctx, cancel := context.WithTimeout(ctx, cfg.RegisterTimeout)
		defer cancel()

		if err := engine.RegisterDevice(ctx, userID, info); err != nil {
			engine.Logger().WithFields(logrus.Fields{
				"user_id":   userID,
				"device_id": deviceID,
				"error":     err,
			}).Warn("auth gate: device registration failed")
		}
	}()
}
