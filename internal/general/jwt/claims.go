package jwt

import (
	"strings"
	"time"

	"geofence-events/internal/domain/user"

	jwtlib "github.com/golang-jwt/jwt/v5"
)

// Claims defines our canonical JWT claims payload. Subject carries the user id.
type Claims struct {
	OrganizationID string    `json:"org"`  // tenant the token is bound to
	Role           user.Role `json:"role"` // ADMIN / OPERATOR / DEVICE
	jwtlib.RegisteredClaims
}

// ensure Claims implements jwtlib.Claims interface
var _ jwtlib.Claims = (*Claims)(nil)

// NewUserClaims constructs claims for a user of one organization.
func NewUserClaims(userID, orgID string, role user.Role, ttl time.Duration) *Claims {
	now := time.Now().UTC()
	return &Claims{
		OrganizationID: orgID,
		Role:           role,
		RegisteredClaims: jwtlib.RegisteredClaims{
			Subject:   userID,
			ExpiresAt: jwtlib.NewNumericDate(now.Add(ttl)),
			IssuedAt:  jwtlib.NewNumericDate(now),
		},
	}
}

// UserID returns the subject claim.
func (c *Claims) UserID() string {
	return c.Subject
}

// Bound reports whether the claims name both a user and an organization.
func (c *Claims) Bound() bool {
	return strings.TrimSpace(c.Subject) != "" && strings.TrimSpace(c.OrganizationID) != ""
}
