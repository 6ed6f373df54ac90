package contracts

import (
	"strings"
	"time"

	"geofence-events/internal/domain/geofence"
)

// GeofenceEventMessage is published for every ENTER/EXIT.
// Exchange: ExchangeGeofenceTopic, routing key GeofenceEventRoutingKey(event).
type GeofenceEventMessage struct {
	EventID        string    `json:"event_id"`
	VehicleID      string    `json:"vehicle_id"`
	OrganizationID string    `json:"organization_id"`
	EventType      string    `json:"event_type"`
	ZoneID         string    `json:"zone_id,omitempty"`
	ParkID         string    `json:"park_id,omitempty"`
	Location       GeoPoint  `json:"location"`
	SpeedKMH       *float64  `json:"speed_kmh,omitempty"`
	DwellSeconds   *float64  `json:"dwell_seconds,omitempty"`
	Timestamp      time.Time `json:"timestamp"`
	Envelope
}

// NewGeofenceEventMessage maps a domain event onto the wire shape.
func NewGeofenceEventMessage(event geofence.Event, sentAt time.Time) GeofenceEventMessage {
	return GeofenceEventMessage{
		EventID:        event.ID,
		VehicleID:      event.VehicleID,
		OrganizationID: event.OrganizationID,
		EventType:      event.Type.String(),
		ZoneID:         event.ZoneID,
		ParkID:         event.ParkID,
		Location:       GeoPoint{Lat: event.Coordinates.Latitude, Lng: event.Coordinates.Longitude},
		SpeedKMH:       event.Context.SpeedKmh,
		DwellSeconds:   event.Context.DwellSeconds,
		Timestamp:      event.Timestamp,
		Envelope: Envelope{
			CorrelationID: event.ID,
			Producer:      Producer,
			SentAt:        sentAt.UTC(),
		},
	}
}

// GeofenceEventRoutingKey returns "geofence.event.<enter|exit>.<organization_id>".
func GeofenceEventRoutingKey(event geofence.Event) string {
	return RouteGeofenceEventPrefix + strings.ToLower(event.Type.String()) + "." + event.OrganizationID
}
