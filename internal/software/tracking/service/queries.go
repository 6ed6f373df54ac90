package service

import (
	"slices"

	"geofence-events/internal/domain/geofence"
	"geofence-events/internal/ports"
)

// VehiclesInRegion lists vehicles whose current membership contains regionID.
func (service *tracker) VehiclesInRegion(regionID string) []string {
	return service.vehiclesInRegion(regionID, func(*geofence.MembershipState) bool { return true })
}

// OrganizationVehiclesInRegion is VehiclesInRegion restricted to one organization's vehicles.
func (service *tracker) OrganizationVehiclesInRegion(orgID, regionID string) []string {
	return service.vehiclesInRegion(regionID, func(state *geofence.MembershipState) bool {
		return state.OrganizationID == orgID
	})
}

func (service *tracker) vehiclesInRegion(regionID string, keep func(*geofence.MembershipState) bool) []string {
	var out []string
	service.store.Range(func(state *geofence.MembershipState) bool {
		if keep(state) && state.InRegion(regionID) {
			out = append(out, state.VehicleID)
		}
		return true
	})
	slices.Sort(out)
	return out
}

// CurrentState returns a copy of the vehicle's membership state.
func (service *tracker) CurrentState(vehicleID string) (*geofence.MembershipState, bool) {
	state, ok := service.store.Get(vehicleID)
	if !ok {
		return nil, false
	}
	return state.Clone(), true
}

// Stats summarizes membership for one organization.
func (service *tracker) Stats(orgID string) ports.TrackerStats {
	stats := ports.TrackerStats{OrganizationID: orgID}
	zones, parks := geofence.NewSet(), geofence.NewSet()

	service.store.Range(func(state *geofence.MembershipState) bool {
		if state.OrganizationID != orgID {
			return true
		}
		stats.TrackedVehicles++
		if len(state.ZoneIDs) > 0 {
			stats.VehiclesInZones++
		}
		if len(state.ParkIDs) > 0 {
			stats.VehiclesInParks++
		}
		for id := range state.ZoneIDs {
			zones[id] = struct{}{}
		}
		for id := range state.ParkIDs {
			parks[id] = struct{}{}
		}
		return true
	})

	stats.OccupiedZoneIDs = zones.Sorted()
	stats.OccupiedParkIDs = parks.Sorted()
	return stats
}

// TrackedVehicles counts vehicles with membership state across all organizations.
func (service *tracker) TrackedVehicles() int {
	return service.store.Len()
}
