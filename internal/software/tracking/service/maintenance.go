package service

import (
	"context"
	"time"

	"geofence-events/internal/domain/geofence"
)

// ResetVehicle drops the vehicle's state. No EXIT events are emitted; the next
// position becomes a fresh baseline.
func (service *tracker) ResetVehicle(vehicleID string) {
	unlock := service.locks.Lock(vehicleID)
	defer unlock()
	service.store.Delete(vehicleID)
}

// ResetAll drops every vehicle's state without emitting events.
func (service *tracker) ResetAll() {
	service.store.Clear()
}

// CleanupIdle removes vehicles whose last update is older than the idle threshold.
func (service *tracker) CleanupIdle(now time.Time) int {
	cutoff := now.Add(-service.opts.IdleThreshold)

	var idle []string
	service.store.Range(func(state *geofence.MembershipState) bool {
		if state.LastUpdate.Before(cutoff) {
			idle = append(idle, state.VehicleID)
		}
		return true
	})

	removed := 0
	for _, vehicleID := range idle {
		unlock := service.locks.Lock(vehicleID)
		// re-check: a position may have landed between the scan and the lock
		if state, ok := service.store.Get(vehicleID); ok && state.LastUpdate.Before(cutoff) {
			service.store.Delete(vehicleID)
			removed++
		}
		unlock()
	}
	return removed
}

// Run sweeps idle vehicles every CleanupInterval until ctx is done.
func (service *tracker) Run(ctx context.Context) error {
	ticker := time.NewTicker(service.opts.CleanupInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
			if n := service.CleanupIdle(service.opts.Now()); n > 0 {
				service.logger.Info(ctx, "idle_vehicles_purged", "dropped idle vehicle membership", map[string]any{
					"removed":   n,
					"threshold": service.opts.IdleThreshold.String(),
				})
			}
		}
	}
}
