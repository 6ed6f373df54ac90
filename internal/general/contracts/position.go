package contracts

import (
	"time"

	"geofence-events/internal/domain/geofence"
)

// PositionMessage is one vehicle location sample.
// Queue: QueueVehiclePositions (bound to ExchangePositionTopic, "position.*").
// MQTT: /fleet/vehicle/{vehicle_id}/location carries the same body.
type PositionMessage struct {
	VehicleID      string    `json:"vehicle_id"`
	OrganizationID string    `json:"organization_id"`
	Location       GeoPoint  `json:"location"`
	SpeedKMH       *float64  `json:"speed_kmh,omitempty"`
	HeadingDegrees *float64  `json:"heading_degrees,omitempty"`
	Timestamp      time.Time `json:"timestamp"`
	Envelope
}

// ToPosition converts the wire message to a domain sample. It does not validate.
func (msg PositionMessage) ToPosition() geofence.Position {
	return geofence.Position{
		VehicleID:      msg.VehicleID,
		OrganizationID: msg.OrganizationID,
		Latitude:       msg.Location.Lat,
		Longitude:      msg.Location.Lng,
		SpeedKmh:       msg.SpeedKMH,
		HeadingDegrees: msg.HeadingDegrees,
		Timestamp:      msg.Timestamp,
	}
}
