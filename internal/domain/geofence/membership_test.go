package geofence

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func floatPtr(v float64) *float64 { return &v }

func TestSetMinus(t *testing.T) {
	now := NewSet("A", "B", "C")
	prev := NewSet("B", "D")

	assert.Equal(t, []string{"A", "C"}, now.Minus(prev))
	assert.Equal(t, []string{"D"}, prev.Minus(now))
	assert.Empty(t, NewSet().Minus(prev))
}

func TestNewSetSkipsEmpty(t *testing.T) {
	s := NewSet("", "Z1", "Z1")
	assert.Len(t, s, 1)
	assert.True(t, s.Has("Z1"))
}

func TestMembershipStateClone(t *testing.T) {
	state := NewMembershipState("V1", "org-1")
	state.ZoneIDs["Z1"] = struct{}{}
	state.EnteredAt[EntryKey(RegionZone, "Z1")] = time.Unix(100, 0)

	clone := state.Clone()
	clone.ZoneIDs["Z2"] = struct{}{}
	delete(clone.EnteredAt, EntryKey(RegionZone, "Z1"))

	assert.False(t, state.ZoneIDs.Has("Z2"))
	assert.Contains(t, state.EnteredAt, EntryKey(RegionZone, "Z1"))
	assert.True(t, state.Occupied())
	assert.True(t, state.InRegion("Z1"))
	assert.Nil(t, (*MembershipState)(nil).Clone())
}

func TestEntryKeySeparatesKinds(t *testing.T) {
	assert.NotEqual(t, EntryKey(RegionZone, "X"), EntryKey(RegionPark, "X"))
	assert.Equal(t, EntryKey(RegionZone, "X"), EntryKey(RegionZone, "X"))
}

func TestPositionValidate(t *testing.T) {
	valid := Position{VehicleID: "V1", OrganizationID: "org-1", Longitude: -3.64, Latitude: 40.54}
	require.NoError(t, valid.Validate())

	tests := []struct {
		name   string
		mutate func(p *Position)
		want   error
	}{
		{"missing vehicle", func(p *Position) { p.VehicleID = " " }, ErrMissingVehicleID},
		{"missing org", func(p *Position) { p.OrganizationID = "" }, ErrMissingOrgID},
		{"lat too high", func(p *Position) { p.Latitude = 91 }, ErrInvalidLatitude},
		{"lon too low", func(p *Position) { p.Longitude = -181 }, ErrInvalidLongitude},
		{"negative speed", func(p *Position) { p.SpeedKmh = floatPtr(-1) }, ErrNegativeSpeed},
		{"bad heading", func(p *Position) { p.HeadingDegrees = floatPtr(361) }, ErrInvalidHeading},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			p := valid
			tt.mutate(&p)
			assert.ErrorIs(t, p.Validate(), tt.want)
		})
	}
}

func TestEventValidateAndRegion(t *testing.T) {
	ev := Event{VehicleID: "V1", ZoneID: "Z1", Type: EventEnter, OrganizationID: "org-1"}
	require.NoError(t, ev.Validate())
	assert.Equal(t, "Z1", ev.RegionID())
	assert.Equal(t, RegionZone, ev.RegionKind())

	both := ev
	both.ParkID = "P1"
	assert.ErrorIs(t, both.Validate(), ErrEventRegionRequired)

	park := Event{VehicleID: "V1", ParkID: "P1", Type: EventExit, OrganizationID: "org-1"}
	assert.Equal(t, RegionPark, park.RegionKind())
	assert.Equal(t, "P1", park.RegionID())

	_, err := ParseEventType("bogus")
	assert.ErrorIs(t, err, ErrInvalidEventType)
	et, err := ParseEventType(" exit ")
	require.NoError(t, err)
	assert.Equal(t, EventExit, et)
}
