package geofence

import (
	"errors"
	"math"
	"strings"
	"time"
)

// Position is a single vehicle location sample. Transient, never stored as-is.
type Position struct {
	VehicleID      string    `json:"vehicle_id"`
	Longitude      float64   `json:"longitude"`
	Latitude       float64   `json:"latitude"`
	OrganizationID string    `json:"organization_id"`
	Timestamp      time.Time `json:"timestamp"`
	SpeedKmh       *float64  `json:"speed_kmh,omitempty"`
	HeadingDegrees *float64  `json:"heading_degrees,omitempty"`
}

var (
	ErrMissingVehicleID = errors.New("vehicle id is required")
	ErrMissingOrgID     = errors.New("organization id is required")
	ErrInvalidLatitude  = errors.New("latitude must be between -90 and 90")
	ErrInvalidLongitude = errors.New("longitude must be between -180 and 180")
	ErrNegativeSpeed    = errors.New("speed_kmh cannot be negative")
	ErrInvalidHeading   = errors.New("heading_degrees must be between 0 and 360")
)

// Validate checks the boundary invariants of a position sample.
func (position Position) Validate() error {
	if strings.TrimSpace(position.VehicleID) == "" {
		return ErrMissingVehicleID
	}
	if strings.TrimSpace(position.OrganizationID) == "" {
		return ErrMissingOrgID
	}
	if position.Latitude < -90 || position.Latitude > 90 || math.IsNaN(position.Latitude) {
		return ErrInvalidLatitude
	}
	if position.Longitude < -180 || position.Longitude > 180 || math.IsNaN(position.Longitude) {
		return ErrInvalidLongitude
	}
	if position.SpeedKmh != nil && (*position.SpeedKmh < 0 || math.IsNaN(*position.SpeedKmh)) {
		return ErrNegativeSpeed
	}
	// allow exactly 0 and 360 (some SDKs report 360.0 instead of 0.0)
	if position.HeadingDegrees != nil && (*position.HeadingDegrees < 0 || *position.HeadingDegrees > 360 || math.IsNaN(*position.HeadingDegrees)) {
		return ErrInvalidHeading
	}
	return nil
}

// Coordinates returns the lon/lat pair of the sample.
func (position Position) Coordinates() Coordinates {
	return Coordinates{Longitude: position.Longitude, Latitude: position.Latitude}
}
