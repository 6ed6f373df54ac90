package contracts

import (
	"encoding/json"
	"testing"
	"time"

	"geofence-events/internal/domain/geofence"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestPositionMessageDecode(t *testing.T) {
	body := `{"vehicle_id":"V1","organization_id":"org-1","location":{"lat":43.2,"lng":76.9},"speed_kmh":42.5,"timestamp":"2026-03-01T09:00:00Z"}`

	var msg PositionMessage
	require.NoError(t, json.Unmarshal([]byte(body), &msg))
	pos := msg.ToPosition()

	assert.Equal(t, "V1", pos.VehicleID)
	assert.Equal(t, 43.2, pos.Latitude)
	assert.Equal(t, 76.9, pos.Longitude)
	require.NotNil(t, pos.SpeedKmh)
	assert.Equal(t, 42.5, *pos.SpeedKmh)
	assert.Nil(t, pos.HeadingDegrees)
	assert.NoError(t, pos.Validate())
}

func TestGeofenceEventMessage(t *testing.T) {
	at := time.Date(2026, 3, 1, 9, 0, 0, 0, time.UTC)
	event := geofence.Event{
		ID:             "e-1",
		VehicleID:      "V1",
		ZoneID:         "Z1",
		Type:           geofence.EventExit,
		OrganizationID: "org-1",
		Timestamp:      at,
		Coordinates:    geofence.Coordinates{Longitude: 76.9, Latitude: 43.2},
	}

	msg := NewGeofenceEventMessage(event, at)
	assert.Equal(t, "EXIT", msg.EventType)
	assert.Equal(t, GeoPoint{Lat: 43.2, Lng: 76.9}, msg.Location)
	assert.Equal(t, Producer, msg.Producer)
	assert.Equal(t, "e-1", msg.CorrelationID)
	assert.Equal(t, "geofence.event.exit.org-1", GeofenceEventRoutingKey(event))
}
