package service

import (
	"context"
	"strings"
	"testing"
	"time"

	"geofence-events/internal/domain/geofence"
	"geofence-events/internal/domain/rule"
	"geofence-events/internal/general/logger"
	trackingsvc "geofence-events/internal/software/tracking/service"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// zoneOracle reports Z1 for points east of lon -3.6418.
type zoneOracle struct{}

func (zoneOracle) ContainingZones(_ context.Context, lon, _ float64, _ string) ([]geofence.Zone, error) {
	if lon > -3.6418 {
		return []geofence.Zone{{ID: "Z1", Name: "Depot", Type: "polygon"}}, nil
	}
	return nil, nil
}

func (zoneOracle) ContainingParks(context.Context, float64, float64, string) ([]geofence.Park, error) {
	return nil, nil
}

func TestSpeedingEntryScenario(t *testing.T) {
	hub := &recordingHub{}
	eng := NewEngine(logger.Discard(), nil, hub, nil, nil, nil, Options{})
	t.Cleanup(eng.Close)
	require.NoError(t, eng.UpsertRule(&rule.Rule{
		ID:             "speeding-z1",
		OrganizationID: "org-1",
		Name:           "Speeding in depot",
		ZoneID:         "Z1",
		Conditions:     []rule.Condition{{Type: rule.ConditionSpeedLimit, Operator: rule.OpGreaterThan, Value: 50}},
		Actions:        []rule.Action{{Type: rule.ActionNotification, Message: "{vehicleId} entered at {timestamp}"}},
		IsActive:       true,
	}))

	tracker := trackingsvc.NewTracker(logger.Discard(), zoneOracle{}, nil, nil, trackingsvc.Options{})
	tracker.AddListener(eng)

	ctx := context.Background()
	t0 := time.Date(2026, 3, 1, 9, 0, 0, 0, time.UTC)
	speed := 55.0

	events, err := tracker.ProcessPosition(ctx, geofence.Position{
		VehicleID: "V1", OrganizationID: "org-1", Longitude: -3.6420, Latitude: 40.5400, Timestamp: t0,
	})
	require.NoError(t, err)
	assert.Empty(t, events)

	events, err = tracker.ProcessPosition(ctx, geofence.Position{
		VehicleID: "V1", OrganizationID: "org-1", Longitude: -3.6415, Latitude: 40.5405,
		Timestamp: t0.Add(10 * time.Second), SpeedKmh: &speed,
	})
	require.NoError(t, err)
	require.Len(t, events, 1)
	assert.Equal(t, geofence.EventEnter, events[0].Type)
	assert.Equal(t, "Z1", events[0].ZoneID)

	calls := hub.Calls()
	require.Len(t, calls, 1)
	assert.Equal(t, "org-1", calls[0].OrgID)
	assert.Equal(t, "NOTIFICATION", calls[0].EventType)
	assert.Equal(t, "V1", calls[0].TargetID)
	payload := calls[0].Payload.(ActionPayload)
	assert.True(t, strings.HasPrefix(payload.Message, "V1 entered at "))
	assert.Contains(t, payload.Message, "2026-03-01T09:00:10Z")
}
