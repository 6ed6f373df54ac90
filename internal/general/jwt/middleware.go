package jwt

import (
	"errors"
	"net/http"

	"geofence-events/internal/domain/user"
)

// AuthMiddlewareFunc validates tokens and injects claims into the request context. Used for HTTP routes.
func AuthMiddlewareFunc(mgr *Manager, allowedRoles ...user.Role) func(http.HandlerFunc) http.HandlerFunc {
	return func(next http.HandlerFunc) http.HandlerFunc {
		return func(w http.ResponseWriter, r *http.Request) {
			claims, err := AuthenticateRequest(r, mgr, allowedRoles...)
			if err != nil {
				status := http.StatusUnauthorized
				if errors.Is(err, ErrRoleForbidden) {
					status = http.StatusForbidden
				}
				http.Error(w, err.Error(), status)
				return
			}

			ctx := InjectClaims(r.Context(), claims)
			next(w, r.WithContext(ctx))
		}
	}
}

// RequireClaims extracts JWT claims from the request context.
func RequireClaims(r *http.Request) *Claims {
	c, _ := FromContext(r.Context())
	return c
}
