package ports

import (
	"context"
	"time"

	"geofence-events/internal/domain/geofence"
	"geofence-events/internal/domain/rule"
)

// UnitOfWork interface is used to manage transactions across multiple repository operations.
type UnitOfWork interface {
	WithinTx(ctx context.Context, fn func(ctx context.Context) error) error
}

// GeometryOracle answers containment queries against region geometry.
// Implementations return empty slices (not errors) when nothing contains the point.
type GeometryOracle interface {
	ContainingZones(ctx context.Context, lon, lat float64, orgID string) ([]geofence.Zone, error)
	ContainingParks(ctx context.Context, lon, lat float64, orgID string) ([]geofence.Park, error)
}

// NearbyRegion is a region within a search radius, with its distance to the query point.
type NearbyRegion struct {
	ID             string              `json:"id"`
	Name           string              `json:"name"`
	Kind           geofence.RegionKind `json:"kind"`
	DistanceMeters float64             `json:"distance_meters"`
}

// RadiusOracle answers distance/radius queries. Optional; used by the admin surface.
type RadiusOracle interface {
	RegionsWithin(ctx context.Context, lon, lat, radiusMeters float64, orgID string) ([]NearbyRegion, error)
}

// EventStore persists geofence events.
type EventStore interface {
	Save(ctx context.Context, event geofence.Event) error
}

// RuleRepository loads rule definitions, active or not, in discovery order.
type RuleRepository interface {
	ListRules(ctx context.Context) ([]*rule.Rule, error)
}

// VehicleDirectory resolves vehicle metadata needed by VEHICLE_TYPE conditions.
type VehicleDirectory interface {
	VehicleType(ctx context.Context, vehicleID, orgID string) (string, error)
}

// MembershipStore holds per-vehicle membership state. Callers serialize access per vehicle.
type MembershipStore interface {
	Get(vehicleID string) (*geofence.MembershipState, bool)
	Put(state *geofence.MembershipState)
	Delete(vehicleID string)
	Clear()
	Range(fn func(state *geofence.MembershipState) bool)
	Len() int
}

// RuleStateStore holds VehicleRuleState keyed by vehicle id then rule id.
type RuleStateStore interface {
	Get(ctx context.Context, vehicleID, ruleID string) (rule.VehicleRuleState, bool, error)
	// RecordTrigger sets LastTriggered and LastEvaluation to at and increments TriggerCount.
	RecordTrigger(ctx context.Context, vehicleID, ruleID string, at time.Time) (rule.VehicleRuleState, error)
	// PurgeIdle removes vehicles whose every rule has LastEvaluation before cutoff.
	PurgeIdle(ctx context.Context, cutoff time.Time) (int, error)
	// Counts returns the number of tracked vehicles and (vehicle, rule) pairs.
	Counts(ctx context.Context) (vehicles int, pairs int, err error)
}

// EvaluationCache memoizes rule verdicts.
type EvaluationCache interface {
	Get(key string) (rule.CacheEntry, bool)
	Put(key string, entry rule.CacheEntry)
	PurgeOlderThan(cutoff time.Time) int
	Len() int
}
