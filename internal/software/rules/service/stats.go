package service

import (
	"context"
	"time"

	"geofence-events/internal/ports"
)

// Stats reports rule counts, tracked rule state and the approximate cache-hit ratio
// cacheSize / (cacheSize + totalEvaluations).
func (service *engine) Stats(ctx context.Context) ports.EngineStats {
	var stats ports.EngineStats

	service.rulesMu.RLock()
	stats.TotalRules = len(service.rules)
	for _, r := range service.rules {
		if r.IsActive {
			stats.ActiveRules++
		}
	}
	service.rulesMu.RUnlock()

	vehicles, pairs, err := service.states.Counts(ctx)
	if err != nil {
		service.logger.Error(ctx, "rule_state_counts_failed", "failed to count rule state", err, nil)
	}
	stats.TrackedVehicles = vehicles
	stats.TrackedPairs = pairs

	stats.CacheSize = service.cache.Len()
	stats.TotalEvaluations = service.totalEvaluations.Load()
	if denom := float64(stats.CacheSize) + float64(stats.TotalEvaluations); denom > 0 {
		stats.CacheHitRatio = float64(stats.CacheSize) / denom
	}
	return stats
}

// Cleanup purges cache entries older than CacheMaxAge and rule state idle for StateIdle.
func (service *engine) Cleanup(ctx context.Context, now time.Time) (cacheRemoved, stateRemoved int) {
	cacheRemoved = service.cache.PurgeOlderThan(now.Add(-service.opts.CacheMaxAge))

	n, err := service.states.PurgeIdle(ctx, now.Add(-service.opts.StateIdle))
	if err != nil {
		service.logger.Error(ctx, "rule_state_purge_failed", "failed to purge idle rule state", err, nil)
	}
	return cacheRemoved, n
}
