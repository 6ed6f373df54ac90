package jwt

import (
	"net/http"

	"geofence-events/internal/domain/user"
)

// AuthenticateRequest extracts the bearer credential from the request, validates it,
// requires it to be bound to a user and organization, and enforces RBAC.
// Used both by HTTP middleware and by the WebSocket connect path.
func AuthenticateRequest(r *http.Request, mgr *Manager, allowedRoles ...user.Role) (*Claims, error) {
	raw, err := FromAuthorization(r)
	if err != nil {
		return nil, err
	}

	_, claims, err := mgr.ParseAndValidate(raw)
	if err != nil {
		return nil, err
	}

	if !claims.Bound() {
		return nil, ErrUnboundToken
	}

	if err := RoleAllowed(claims, allowedRoles...); err != nil {
		return nil, err
	}

	return claims, nil
}
