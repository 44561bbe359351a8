package middleware

import (
	"net/http"

	"github.com/MrEthical07/courierauth"
	"github.com/MrEthical07/courierauth/response"
)

// RequireRole admits requests whose claims carry one of roles. It must run
// after Guard; without claims it answers 401, with the wrong role 403.
func RequireRole(roles ...courierauth.Role) func(http.Handler) http.Handler {
	allowed := make(map[string]struct{}, len(roles))
	for _, role := range roles {
		allowed[string(role)] = struct{}{}
	}

	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			claims, ok := ClaimsFromContext(r.Context())
			if !ok {
				response.Error(w, http.StatusUnauthorized, "unauthorized")
				return
			}
			if _, ok := allowed[claims.Role]; !ok {
				response.FromError(w, courierauth.ErrForbidden)
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}
