package service

import (
	"context"
	"errors"
	"testing"
	"time"

	"geofence-events/internal/domain/geofence"
	"geofence-events/internal/general/logger"
	"geofence-events/internal/ports"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeTracker struct {
	ports.MembershipTracker

	states      map[string]*geofence.MembershipState
	cleanedAt   time.Time
	cleanupN    int
	resetIDs    []string
	resetAllHit bool
}

func (f *fakeTracker) CurrentState(id string) (*geofence.MembershipState, bool) {
	s, ok := f.states[id]
	return s, ok
}

func (f *fakeTracker) OrganizationVehiclesInRegion(orgID, regionID string) []string {
	var out []string
	for id, s := range f.states {
		if s.OrganizationID == orgID && s.InRegion(regionID) {
			out = append(out, id)
		}
	}
	return out
}

func (f *fakeTracker) TrackedVehicles() int { return len(f.states) }

func (f *fakeTracker) CleanupIdle(now time.Time) int {
	f.cleanedAt = now
	return f.cleanupN
}

func (f *fakeTracker) ResetVehicle(id string) { f.resetIDs = append(f.resetIDs, id) }

func (f *fakeTracker) ResetAll() { f.resetAllHit = true }

type fakeEngine struct {
	ports.RuleEngine

	stats     ports.EngineStats
	reloadErr error
	reloads   int
}

func (f *fakeEngine) Stats(context.Context) ports.EngineStats { return f.stats }

func (f *fakeEngine) Reload(context.Context) error {
	f.reloads++
	return f.reloadErr
}

func (f *fakeEngine) Cleanup(context.Context, time.Time) (int, int) { return 4, 2 }

type fakeRadius struct {
	got struct{ lon, lat, radius float64 }
}

func (f *fakeRadius) RegionsWithin(_ context.Context, lon, lat, radius float64, _ string) ([]ports.NearbyRegion, error) {
	f.got.lon, f.got.lat, f.got.radius = lon, lat, radius
	return []ports.NearbyRegion{{ID: "Z1", Kind: geofence.RegionZone}}, nil
}

type fixedClients int

func (c fixedClients) ClientCount() int { return int(c) }

func newTestService(tr *fakeTracker, en *fakeEngine, radius ports.RadiusOracle) *adminService {
	svc := NewAdminService(logger.Discard(), tr, en, radius, fixedClients(3)).(*adminService)
	svc.now = func() time.Time { return time.Date(2026, 3, 1, 9, 0, 0, 0, time.UTC) }
	return svc
}

func TestVehicleMembership(t *testing.T) {
	state := geofence.NewMembershipState("V1", "org-1")
	state.ZoneIDs = geofence.NewSet("Z2", "Z1")
	svc := newTestService(&fakeTracker{states: map[string]*geofence.MembershipState{"V1": state}}, &fakeEngine{}, nil)

	view, err := svc.VehicleMembership("V1")
	require.NoError(t, err)
	assert.Equal(t, []string{"Z1", "Z2"}, view.ZoneIDs)

	_, err = svc.VehicleMembership("V9")
	assert.ErrorIs(t, err, ErrVehicleNotTracked)
}

func TestRegionVehiclesNeverNil(t *testing.T) {
	svc := newTestService(&fakeTracker{}, &fakeEngine{}, nil)
	got := svc.RegionVehicles("Z1", "org-1")
	assert.NotNil(t, got.VehicleIDs)
	assert.Zero(t, got.Count)
}

func TestRegionVehiclesFiltersByOrganization(t *testing.T) {
	own := geofence.NewMembershipState("V1", "org-1")
	own.ZoneIDs = geofence.NewSet("Z1")
	other := geofence.NewMembershipState("V2", "org-2")
	other.ZoneIDs = geofence.NewSet("Z1")
	svc := newTestService(&fakeTracker{states: map[string]*geofence.MembershipState{"V1": own, "V2": other}}, &fakeEngine{}, nil)

	got := svc.RegionVehicles("Z1", "org-1")
	assert.Equal(t, "org-1", got.OrganizationID)
	assert.Equal(t, []string{"V1"}, got.VehicleIDs)
	assert.Equal(t, 1, got.Count)
}

func TestNearbyRegionsValidation(t *testing.T) {
	radius := &fakeRadius{}
	svc := newTestService(&fakeTracker{}, &fakeEngine{}, radius)

	_, err := svc.NearbyRegions(context.Background(), 200, 0, 100, "org-1")
	assert.ErrorIs(t, err, ErrInvalidPoint)
	_, err = svc.NearbyRegions(context.Background(), 10, 10, 0, "org-1")
	assert.ErrorIs(t, err, ErrInvalidRadius)
	_, err = svc.NearbyRegions(context.Background(), 10, 10, 60_000, "org-1")
	assert.ErrorIs(t, err, ErrInvalidRadius)

	regions, err := svc.NearbyRegions(context.Background(), 76.9, 43.2, 500, "org-1")
	require.NoError(t, err)
	assert.Len(t, regions, 1)
	assert.Equal(t, 500.0, radius.got.radius)

	_, err = newTestService(&fakeTracker{}, &fakeEngine{}, nil).NearbyRegions(context.Background(), 0, 0, 10, "org-1")
	assert.ErrorIs(t, err, ErrRadiusUnavailable)
}

func TestCleanupCombinesTrackerAndEngine(t *testing.T) {
	tr := &fakeTracker{cleanupN: 5}
	svc := newTestService(tr, &fakeEngine{}, nil)

	res := svc.Cleanup(context.Background())
	assert.Equal(t, ports.CleanupResult{IdleVehicles: 5, CacheEntries: 4, RuleStateVehicles: 2}, res)
	assert.Equal(t, svc.now(), tr.cleanedAt)
}

func TestReloadRules(t *testing.T) {
	en := &fakeEngine{stats: ports.EngineStats{TotalRules: 7, ActiveRules: 5}}
	svc := newTestService(&fakeTracker{}, en, nil)

	res, err := svc.ReloadRules(context.Background())
	require.NoError(t, err)
	assert.Equal(t, ports.RuleReloadResult{TotalRules: 7, ActiveRules: 5}, res)

	en.reloadErr = errors.New("db down")
	_, err = svc.ReloadRules(context.Background())
	assert.EqualError(t, err, "db down")
	assert.Equal(t, 2, en.reloads)
}

func TestHealthAndResets(t *testing.T) {
	tr := &fakeTracker{states: map[string]*geofence.MembershipState{"V1": geofence.NewMembershipState("V1", "org-1")}}
	svc := newTestService(tr, &fakeEngine{stats: ports.EngineStats{ActiveRules: 2}}, nil)

	report := svc.Health(context.Background())
	assert.Equal(t, "ok", report.Status)
	assert.Equal(t, 1, report.TrackedVehicles)
	assert.Equal(t, 2, report.ActiveRules)
	assert.Equal(t, 3, report.Subscribers)

	svc.ResetVehicle("V1")
	svc.ResetAll()
	assert.Equal(t, []string{"V1"}, tr.resetIDs)
	assert.True(t, tr.resetAllHit)
}
