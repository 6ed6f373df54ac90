package geofence

import (
	"maps"
	"slices"
	"time"
)

// Zone is a region returned by the geometry oracle for zone containment.
type Zone struct {
	ID   string `json:"id"`
	Name string `json:"name"`
	Type string `json:"type"`
}

// Park is a region returned by the geometry oracle for park containment.
type Park struct {
	ID         string `json:"id"`
	Name       string `json:"name"`
	Identifier string `json:"identifier"`
}

// Set is a small string set used for region id membership.
type Set map[string]struct{}

// NewSet builds a Set from ids, ignoring empty strings.
func NewSet(ids ...string) Set {
	s := make(Set, len(ids))
	for _, id := range ids {
		if id != "" {
			s[id] = struct{}{}
		}
	}
	return s
}

// Has reports whether id is in the set.
func (s Set) Has(id string) bool {
	_, ok := s[id]
	return ok
}

// Minus returns the ids of s that are not in other.
func (s Set) Minus(other Set) []string {
	var out []string
	for id := range s {
		if !other.Has(id) {
			out = append(out, id)
		}
	}
	slices.Sort(out)
	return out
}

// Sorted returns the ids in lexical order.
func (s Set) Sorted() []string {
	return slices.Sorted(maps.Keys(s))
}

// MembershipState is the per-vehicle containment snapshot owned by the tracker.
type MembershipState struct {
	VehicleID      string
	OrganizationID string
	ZoneIDs        Set
	ParkIDs        Set
	EnteredAt      map[string]time.Time // EntryKey(kind, id) -> time the vehicle entered it
	LastUpdate     time.Time
}

// NewMembershipState default-constructs the state of a vehicle that was never seen.
func NewMembershipState(vehicleID, orgID string) *MembershipState {
	return &MembershipState{
		VehicleID:      vehicleID,
		OrganizationID: orgID,
		ZoneIDs:        Set{},
		ParkIDs:        Set{},
		EnteredAt:      map[string]time.Time{},
	}
}

// EntryKey keys EnteredAt. Zone and park ids live in separate namespaces, so the
// kind is part of the key.
func EntryKey(kind RegionKind, regionID string) string {
	return string(kind) + ":" + regionID
}

// Occupied reports whether the vehicle is currently inside any region.
func (state *MembershipState) Occupied() bool {
	return len(state.ZoneIDs) > 0 || len(state.ParkIDs) > 0
}

// InRegion reports whether the vehicle currently sits in the given zone or park.
func (state *MembershipState) InRegion(regionID string) bool {
	return state.ZoneIDs.Has(regionID) || state.ParkIDs.Has(regionID)
}

// Clone returns a deep copy safe to hand out of the tracker.
func (state *MembershipState) Clone() *MembershipState {
	if state == nil {
		return nil
	}
	out := &MembershipState{
		VehicleID:      state.VehicleID,
		OrganizationID: state.OrganizationID,
		ZoneIDs:        maps.Clone(state.ZoneIDs),
		ParkIDs:        maps.Clone(state.ParkIDs),
		EnteredAt:      maps.Clone(state.EnteredAt),
		LastUpdate:     state.LastUpdate,
	}
	if out.ZoneIDs == nil {
		out.ZoneIDs = Set{}
	}
	if out.ParkIDs == nil {
		out.ParkIDs = Set{}
	}
	if out.EnteredAt == nil {
		out.EnteredAt = map[string]time.Time{}
	}
	return out
}
