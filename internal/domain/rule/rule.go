package rule

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"geofence-events/internal/domain/geofence"
)

// Condition is a single predicate of a rule. Value and SecondaryValue hold whatever the
// rule author stored (string, number or list); evaluators coerce them as needed.
type Condition struct {
	Type           ConditionType `json:"type"`
	Operator       Operator      `json:"operator"`
	Field          string        `json:"field,omitempty"`
	Value          any           `json:"value"`
	SecondaryValue any           `json:"secondary_value,omitempty"`
}

// Action is a side effect executed when a rule triggers.
type Action struct {
	Type     ActionType     `json:"type"`
	Target   string         `json:"target,omitempty"`
	Message  string         `json:"message,omitempty"`
	Delay    time.Duration  `json:"-"`
	Metadata map[string]any `json:"metadata,omitempty"`
}

// Rule is an organization-scoped policy mapping AND-combined conditions to ordered actions.
type Rule struct {
	ID             string
	OrganizationID string
	Name           string
	ZoneID         string // empty = any zone
	ParkID         string // empty = any park
	Conditions     []Condition
	Actions        []Action
	IsActive       bool
	Priority       int
	Cooldown       time.Duration // minimum re-trigger interval per vehicle; 0 = engine default
	CreatedAt      time.Time
	UpdatedAt      time.Time
}

var (
	ErrRuleIDRequired  = errors.New("rule id is required")
	ErrRuleOrgRequired = errors.New("rule organization id is required")
)

// Validate checks invariants of the Rule entity.
func (r *Rule) Validate() error {
	if strings.TrimSpace(r.ID) == "" {
		return ErrRuleIDRequired
	}
	if strings.TrimSpace(r.OrganizationID) == "" {
		return ErrRuleOrgRequired
	}
	for i, c := range r.Conditions {
		if !c.Type.Valid() {
			return fmt.Errorf("condition %d: %w", i, ErrInvalidConditionType)
		}
		if !c.Operator.Valid() {
			return fmt.Errorf("condition %d: %w", i, ErrInvalidOperator)
		}
	}
	for i, a := range r.Actions {
		if !a.Type.Valid() {
			return fmt.Errorf("action %d: %w", i, ErrInvalidActionType)
		}
	}
	return nil
}

// AppliesTo reports whether the rule is a candidate for the given event:
// same organization, active, and matching zone/park scope when one is set.
func (r *Rule) AppliesTo(event geofence.Event) bool {
	if !r.IsActive || r.OrganizationID != event.OrganizationID {
		return false
	}
	switch event.RegionKind() {
	case geofence.RegionZone:
		if r.ZoneID != "" && r.ZoneID != event.ZoneID {
			return false
		}
		if r.ParkID != "" {
			return false
		}
	case geofence.RegionPark:
		if r.ParkID != "" && r.ParkID != event.ParkID {
			return false
		}
		if r.ZoneID != "" {
			return false
		}
	}
	return true
}

// VehicleRuleState tracks trigger history of one rule for one vehicle.
type VehicleRuleState struct {
	LastTriggered  time.Time `json:"last_triggered"`
	TriggerCount   int64     `json:"trigger_count"`
	LastEvaluation time.Time `json:"last_evaluation"`
}

// CacheEntry is a memoized evaluation verdict.
type CacheEntry struct {
	Result    bool
	Timestamp time.Time
	TTL       time.Duration
}

// Fresh reports whether the entry is still within its TTL at now.
func (entry CacheEntry) Fresh(now time.Time) bool {
	return now.Sub(entry.Timestamp) < entry.TTL
}

// CacheKey builds the evaluation cache key `ruleId:vehicleId:eventType`.
func CacheKey(ruleID, vehicleID string, eventType geofence.EventType) string {
	return ruleID + ":" + vehicleID + ":" + eventType.String()
}
