package service

import (
	"context"
	"errors"
	"math"
	"time"

	"geofence-events/internal/general/logger"
	"geofence-events/internal/ports"
)

var (
	ErrVehicleNotTracked = errors.New("vehicle is not tracked")
	ErrRadiusUnavailable = errors.New("radius queries are not configured")
	ErrInvalidRadius     = errors.New("radius must be between 1 and 50000 meters")
	ErrInvalidPoint      = errors.New("lon/lat out of range")
)

const maxRadiusMeters = 50_000

// ClientCounter reports connected notification subscribers.
type ClientCounter interface {
	ClientCount() int
}

// adminService answers administrative queries over the tracker and the rule engine.
type adminService struct {
	logger  *logger.Logger
	tracker ports.MembershipTracker
	engine  ports.RuleEngine
	radius  ports.RadiusOracle
	clients ClientCounter
	now     func() time.Time
}

// NewAdminService creates the admin service. radius and clients may be nil.
func NewAdminService(
	logger *logger.Logger,
	tracker ports.MembershipTracker,
	engine ports.RuleEngine,
	radius ports.RadiusOracle,
	clients ClientCounter,
) ports.AdminService {
	return &adminService{
		logger:  logger,
		tracker: tracker,
		engine:  engine,
		radius:  radius,
		clients: clients,
		now:     time.Now,
	}
}

func (service *adminService) VehicleMembership(vehicleID string) (ports.MembershipView, error) {
	state, ok := service.tracker.CurrentState(vehicleID)
	if !ok {
		return ports.MembershipView{}, ErrVehicleNotTracked
	}
	return ports.NewMembershipView(state), nil
}

// RegionVehicles lists orgID's vehicles inside regionID. Region ids are not
// org-scoped, so the filter is what keeps tenants apart.
func (service *adminService) RegionVehicles(regionID, orgID string) ports.RegionVehicles {
	ids := service.tracker.OrganizationVehiclesInRegion(orgID, regionID)
	if ids == nil {
		ids = []string{}
	}
	return ports.RegionVehicles{RegionID: regionID, OrganizationID: orgID, VehicleIDs: ids, Count: len(ids)}
}

func (service *adminService) OrganizationStats(orgID string) ports.TrackerStats {
	return service.tracker.Stats(orgID)
}

func (service *adminService) RuleStats(ctx context.Context) ports.EngineStats {
	return service.engine.Stats(ctx)
}

func (service *adminService) NearbyRegions(ctx context.Context, lon, lat, radiusMeters float64, orgID string) ([]ports.NearbyRegion, error) {
	if service.radius == nil {
		return nil, ErrRadiusUnavailable
	}
	if lon < -180 || lon > 180 || lat < -90 || lat > 90 || math.IsNaN(lon) || math.IsNaN(lat) {
		return nil, ErrInvalidPoint
	}
	if radiusMeters < 1 || radiusMeters > maxRadiusMeters || math.IsNaN(radiusMeters) {
		return nil, ErrInvalidRadius
	}
	return service.radius.RegionsWithin(ctx, lon, lat, radiusMeters, orgID)
}

// Cleanup runs the tracker and engine idle sweeps once, outside their schedules.
func (service *adminService) Cleanup(ctx context.Context) ports.CleanupResult {
	now := service.now()
	res := ports.CleanupResult{IdleVehicles: service.tracker.CleanupIdle(now)}
	res.CacheEntries, res.RuleStateVehicles = service.engine.Cleanup(ctx, now)

	service.logger.Info(ctx, "manual_cleanup", "Manual cleanup finished", res)
	return res
}

func (service *adminService) ResetVehicle(vehicleID string) {
	service.tracker.ResetVehicle(vehicleID)
}

func (service *adminService) ResetAll() {
	service.tracker.ResetAll()
}

func (service *adminService) ReloadRules(ctx context.Context) (ports.RuleReloadResult, error) {
	if err := service.engine.Reload(ctx); err != nil {
		return ports.RuleReloadResult{}, err
	}
	stats := service.engine.Stats(ctx)
	return ports.RuleReloadResult{TotalRules: stats.TotalRules, ActiveRules: stats.ActiveRules}, nil
}

func (service *adminService) Health(ctx context.Context) ports.HealthReport {
	report := ports.HealthReport{
		Status:          "ok",
		TrackedVehicles: service.tracker.TrackedVehicles(),
		ActiveRules:     service.engine.Stats(ctx).ActiveRules,
		Timestamp:       service.now().UTC(),
	}
	if service.clients != nil {
		report.Subscribers = service.clients.ClientCount()
	}
	return report
}
