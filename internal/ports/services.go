package ports

import (
	"context"
	"time"

	"geofence-events/internal/domain/geofence"
	"geofence-events/internal/domain/rule"
)

// ----- Event emission -----

// EventListener receives every geofence event emitted by the membership tracker.
type EventListener interface {
	OnEvent(ctx context.Context, event geofence.Event) error
}

// EventListenerFunc adapts a plain function to EventListener.
type EventListenerFunc func(ctx context.Context, event geofence.Event) error

// OnEvent calls fn(ctx, event).
func (fn EventListenerFunc) OnEvent(ctx context.Context, event geofence.Event) error {
	return fn(ctx, event)
}

// ----- Notification fan-out -----

// Broadcaster delivers a payload to subscribers of `eventType:targetID` (or `eventType:*`)
// inside one organization. Returns how many clients received it.
type Broadcaster interface {
	Broadcast(orgID, eventType, targetID string, payload any) int
}

// ----- Channel adapters -----

// ChannelAdapters dispatches resolved action messages to external delivery channels.
// Retry/backoff is the adapter's concern.
type ChannelAdapters interface {
	SendWebhook(ctx context.Context, url string, payload any) error
	SendEmail(ctx context.Context, to, subject, body string) error
	SendSMS(ctx context.Context, to, message string) error
}

// ----- DTOs for administrative queries -----

// MembershipView is the JSON shape of a vehicle's membership state.
type MembershipView struct {
	VehicleID      string    `json:"vehicle_id"`
	OrganizationID string    `json:"organization_id"`
	ZoneIDs        []string  `json:"zone_ids"`
	ParkIDs        []string  `json:"park_ids"`
	LastUpdate     time.Time `json:"last_update"`
}

// NewMembershipView converts a state snapshot to its JSON view.
func NewMembershipView(state *geofence.MembershipState) MembershipView {
	return MembershipView{
		VehicleID:      state.VehicleID,
		OrganizationID: state.OrganizationID,
		ZoneIDs:        state.ZoneIDs.Sorted(),
		ParkIDs:        state.ParkIDs.Sorted(),
		LastUpdate:     state.LastUpdate,
	}
}

// TrackerStats summarizes membership for one organization.
type TrackerStats struct {
	OrganizationID  string   `json:"organization_id"`
	VehiclesInZones int      `json:"vehicles_in_zones"`
	VehiclesInParks int      `json:"vehicles_in_parks"`
	OccupiedZoneIDs []string `json:"occupied_zone_ids"`
	OccupiedParkIDs []string `json:"occupied_park_ids"`
	TrackedVehicles int      `json:"tracked_vehicles"`
}

// EngineStats summarizes rule engine state.
type EngineStats struct {
	TotalRules       int     `json:"total_rules"`
	ActiveRules      int     `json:"active_rules"`
	TrackedVehicles  int     `json:"tracked_vehicles"`
	TrackedPairs     int     `json:"tracked_evaluations"`
	CacheSize        int     `json:"cache_size"`
	TotalEvaluations int64   `json:"total_evaluations"`
	CacheHitRatio    float64 `json:"cache_hit_ratio"`
}

// CleanupResult reports what a manual cleanup removed.
type CleanupResult struct {
	IdleVehicles      int `json:"idle_vehicles_removed"`
	CacheEntries      int `json:"cache_entries_removed"`
	RuleStateVehicles int `json:"rule_state_vehicles_removed"`
}

// ----- Service interfaces -----

// MembershipTracker exposes the membership tracker boundary.
type MembershipTracker interface {
	AddListener(listener EventListener)
	Run(ctx context.Context) error
	ProcessPosition(ctx context.Context, position geofence.Position) ([]geofence.Event, error)
	ProcessBatch(ctx context.Context, positions []geofence.Position) []geofence.Event
	VehiclesInRegion(regionID string) []string
	OrganizationVehiclesInRegion(orgID, regionID string) []string
	CurrentState(vehicleID string) (*geofence.MembershipState, bool)
	Stats(orgID string) TrackerStats
	TrackedVehicles() int
	ResetVehicle(vehicleID string)
	ResetAll()
	CleanupIdle(now time.Time) int
}

// CustomCondition evaluates a CUSTOM condition registered under the condition's field.
type CustomCondition func(ctx context.Context, event geofence.Event, cond rule.Condition) (bool, error)

// CustomAction executes a CUSTOM action registered under the action's target.
type CustomAction func(ctx context.Context, event geofence.Event, r rule.Rule, action rule.Action, message string) error

// RuleEngine exposes the rule engine boundary beyond its EventListener callback.
type RuleEngine interface {
	EventListener
	Reload(ctx context.Context) error
	UpsertRule(r *rule.Rule) error
	RemoveRule(ruleID string) bool
	Rules() []rule.Rule
	RegisterCondition(name string, fn CustomCondition)
	RegisterAction(name string, fn CustomAction)
	Stats(ctx context.Context) EngineStats
	Cleanup(ctx context.Context, now time.Time) (cacheRemoved, stateRemoved int)
	Run(ctx context.Context) error
	Close()
}

// RegionVehicles lists one organization's vehicles currently inside a region.
type RegionVehicles struct {
	RegionID       string   `json:"region_id"`
	OrganizationID string   `json:"organization_id"`
	VehicleIDs []string `json:"vehicle_ids"`
	Count      int      `json:"count"`
}

// RuleReloadResult reports the rule set after a reload.
type RuleReloadResult struct {
	TotalRules  int `json:"total_rules"`
	ActiveRules int `json:"active_rules"`
}

// HealthReport is the body of GET /admin/health.
type HealthReport struct {
	Status          string    `json:"status"`
	TrackedVehicles int       `json:"tracked_vehicles"`
	ActiveRules     int       `json:"active_rules"`
	Subscribers     int       `json:"subscribers"`
	Timestamp       time.Time `json:"timestamp"`
}

// AdminService backs the administrative HTTP surface.
type AdminService interface {
	VehicleMembership(vehicleID string) (MembershipView, error)
	RegionVehicles(regionID, orgID string) RegionVehicles
	OrganizationStats(orgID string) TrackerStats
	RuleStats(ctx context.Context) EngineStats
	NearbyRegions(ctx context.Context, lon, lat, radiusMeters float64, orgID string) ([]NearbyRegion, error)
	Cleanup(ctx context.Context) CleanupResult
	ResetVehicle(vehicleID string)
	ResetAll()
	ReloadRules(ctx context.Context) (RuleReloadResult, error)
	Health(ctx context.Context) HealthReport
}
