package service

import (
	"context"
	"fmt"
	"sort"
	"time"

	"geofence-events/internal/domain/geofence"
	"geofence-events/internal/domain/rule"

	"golang.org/x/sync/errgroup"
)

// OnEvent evaluates every applicable rule for the event. Rule failures are logged and
// never returned, so the tracker's listener chain is never interrupted by a rule.
func (service *engine) OnEvent(ctx context.Context, event geofence.Event) error {
	candidates := service.candidates(event)
	if len(candidates) == 0 {
		return nil
	}

	ctx = service.logger.WithVehicleID(ctx, event.VehicleID)
	ctx = service.logger.WithOrganizationID(ctx, event.OrganizationID)

	if service.opts.Parallelism <= 1 {
		for _, r := range candidates {
			service.processRule(ctx, r, event)
		}
		return nil
	}

	var g errgroup.Group
	g.SetLimit(service.opts.Parallelism)
	for _, r := range candidates {
		g.Go(func() error {
			service.processRule(ctx, r, event)
			return nil
		})
	}
	return g.Wait()
}

// candidates returns applicable rules by descending priority, ties in discovery order.
func (service *engine) candidates(event geofence.Event) []rule.Rule {
	service.rulesMu.RLock()
	out := make([]rule.Rule, 0, len(service.rules))
	for _, r := range service.rules {
		if r.AppliesTo(event) {
			out = append(out, *r)
		}
	}
	service.rulesMu.RUnlock()

	sort.SliceStable(out, func(i, j int) bool {
		return out[i].Priority > out[j].Priority
	})
	return out
}

// processRule evaluates one rule and fires its actions when it triggers.
// Evaluation and state update of one (vehicle, rule) pair are serialized.
func (service *engine) processRule(ctx context.Context, r rule.Rule, event geofence.Event) {
	defer func() {
		if rec := recover(); rec != nil {
			service.logger.Error(ctx, "rule_evaluation_panic", "rule evaluation panicked", fmt.Errorf("%v", rec), ruleDetails(r, event))
		}
	}()

	unlock := service.pairLocks.Lock(event.VehicleID + "\x00" + r.ID)
	defer unlock()

	now := service.opts.Now()
	key := rule.CacheKey(r.ID, event.VehicleID, event.Type)

	// cached verdicts never fire actions: they already fired on the original evaluation
	if entry, ok := service.cache.Get(key); ok && entry.Fresh(now) {
		service.logger.Debug(ctx, "rule_cache_hit", "reused cached verdict", ruleDetails(r, event))
		return
	}

	service.totalEvaluations.Add(1)
	triggered := service.conditionsHold(ctx, r, event, now) && service.constraintsAllow(ctx, r, event, now)
	service.cache.Put(key, rule.CacheEntry{Result: triggered, Timestamp: now, TTL: service.opts.CacheTTL})

	if !triggered {
		return
	}

	service.logger.Info(ctx, "rule_triggered", "rule triggered", ruleDetails(r, event))
	service.executeActions(ctx, r, event)

	if _, err := service.states.RecordTrigger(ctx, event.VehicleID, r.ID, now); err != nil {
		service.logger.Error(ctx, "rule_state_update_failed", "failed to record rule trigger", err, ruleDetails(r, event))
	}
}

// conditionsHold AND-combines the rule's conditions, stopping at the first false one.
func (service *engine) conditionsHold(ctx context.Context, r rule.Rule, event geofence.Event, now time.Time) bool {
	for i, cond := range r.Conditions {
		ok, err := service.evaluateCondition(ctx, r, cond, event, now)
		if err != nil {
			details := ruleDetails(r, event)
			details["condition"] = i
			details["condition_type"] = cond.Type
			service.logger.Warn(ctx, "condition_failed", "condition evaluation failed, treated as false", err, details)
			return false
		}
		if !ok {
			return false
		}
	}
	return true
}

// constraintsAllow enforces the minimum re-trigger interval per rule and vehicle.
func (service *engine) constraintsAllow(ctx context.Context, r rule.Rule, event geofence.Event, now time.Time) bool {
	interval := r.Cooldown
	if interval <= 0 {
		interval = service.opts.MinRetrigger
	}
	if interval <= 0 {
		return true
	}

	state, ok, err := service.states.Get(ctx, event.VehicleID, r.ID)
	if err != nil {
		service.logger.Warn(ctx, "rule_state_read_failed", "rule state unavailable, suppressing trigger", err, ruleDetails(r, event))
		return false
	}
	if !ok {
		return true
	}
	return now.Sub(state.LastTriggered) >= interval
}

func ruleDetails(r rule.Rule, event geofence.Event) map[string]any {
	return map[string]any{
		"rule_id":    r.ID,
		"rule_name":  r.Name,
		"event_id":   event.ID,
		"event_type": event.Type,
		"region_id":  event.RegionID(),
	}
}
