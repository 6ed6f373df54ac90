package geofence

import (
	"errors"
	"strings"
	"time"
)

// EventType is the membership transition carried by a GeofenceEvent.
type EventType string

const (
	EventEnter EventType = "ENTER"
	EventExit  EventType = "EXIT"
)

var ErrInvalidEventType = errors.New("invalid geofence event type")

// ParseEventType normalizes (uppercases+trims) and validates an event type string.
func ParseEventType(input string) (EventType, error) {
	eventType := EventType(strings.ToUpper(strings.TrimSpace(input)))
	if eventType.Valid() {
		return eventType, nil
	}
	return "", ErrInvalidEventType
}

// Valid reports whether eventType is one of the allowed event type constants.
func (eventType EventType) Valid() bool {
	switch eventType {
	case EventEnter, EventExit:
		return true
	default:
		return false
	}
}

// String returns the string representation of the EventType.
func (eventType EventType) String() string {
	return string(eventType)
}

// RegionKind tells whether a region id refers to a zone or a park.
type RegionKind string

const (
	RegionZone RegionKind = "zone"
	RegionPark RegionKind = "park"
)

// Valid reports whether kind is one of the allowed region kinds.
func (kind RegionKind) Valid() bool {
	return kind == RegionZone || kind == RegionPark
}

// String returns the string representation of the RegionKind.
func (kind RegionKind) String() string {
	return string(kind)
}

// Coordinates is a lon/lat pair in WGS84.
type Coordinates struct {
	Longitude float64 `json:"longitude"`
	Latitude  float64 `json:"latitude"`
}

// EventContext carries optional telemetry that rides along with an event.
// Nil fields mean the value was not reported.
type EventContext struct {
	SpeedKmh       *float64 `json:"speed_kmh,omitempty"`
	HeadingDegrees *float64 `json:"heading_degrees,omitempty"`
	DwellSeconds   *float64 `json:"dwell_seconds,omitempty"` // set on EXIT when the entry time is known
}

// Event is an immutable ENTER/EXIT record produced by the membership tracker.
// Exactly one of ZoneID / ParkID is set.
type Event struct {
	ID             string       `json:"id"`
	VehicleID      string       `json:"vehicle_id"`
	ZoneID         string       `json:"zone_id,omitempty"`
	ParkID         string       `json:"park_id,omitempty"`
	Type           EventType    `json:"event_type"`
	Timestamp      time.Time    `json:"timestamp"`
	Coordinates    Coordinates  `json:"coordinates"`
	OrganizationID string       `json:"organization_id"`
	Context        EventContext `json:"context"`
}

var (
	ErrEventVehicleRequired = errors.New("event vehicle id is required")
	ErrEventRegionRequired  = errors.New("event must reference exactly one zone or park")
	ErrEventOrgRequired     = errors.New("event organization id is required")
)

// RegionID returns the zone or park id this event refers to.
func (event Event) RegionID() string {
	if event.ZoneID != "" {
		return event.ZoneID
	}
	return event.ParkID
}

// RegionKind reports whether the event is a zone or park event.
func (event Event) RegionKind() RegionKind {
	if event.ZoneID != "" {
		return RegionZone
	}
	return RegionPark
}

// Validate performs basic invariant checks mirroring DB constraints.
func (event Event) Validate() error {
	if strings.TrimSpace(event.VehicleID) == "" {
		return ErrEventVehicleRequired
	}
	if (event.ZoneID == "") == (event.ParkID == "") {
		return ErrEventRegionRequired
	}
	if !event.Type.Valid() {
		return ErrInvalidEventType
	}
	if strings.TrimSpace(event.OrganizationID) == "" {
		return ErrEventOrgRequired
	}
	return nil
}
