package user

import (
	"errors"
	"strings"
)

// Role is the caller role carried in access tokens.
type Role string

const (
	RoleAdmin    Role = "ADMIN"    // administrative queries and maintenance
	RoleOperator Role = "OPERATOR" // dashboard users subscribing to notifications
	RoleDevice   Role = "DEVICE"   // trackers / gateways pushing positions
)

var ErrInvalidRole = errors.New("invalid role")

// ParseRole normalizes (uppercases+trims) and validates a role string.
func ParseRole(s string) (Role, error) {
	role := Role(strings.ToUpper(strings.TrimSpace(s)))
	if role.Valid() {
		return role, nil
	}
	return "", ErrInvalidRole
}

// Valid reports whether role is one of the allowed role constants.
func (role Role) Valid() bool {
	switch role {
	case RoleAdmin, RoleOperator, RoleDevice:
		return true
	default:
		return false
	}
}

// String returns the string representation of the Role.
func (role Role) String() string {
	return string(role)
}

func (role Role) IsAdmin() bool    { return role == RoleAdmin }
func (role Role) IsOperator() bool { return role == RoleOperator }
func (role Role) IsDevice() bool   { return role == RoleDevice }
