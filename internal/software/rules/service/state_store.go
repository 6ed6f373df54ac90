package service

import (
	"context"
	"sync"
	"time"

	"geofence-events/internal/domain/rule"
)

// MemoryStateStore is the in-process RuleStateStore keyed vehicle -> rule.
type MemoryStateStore struct {
	mu     sync.RWMutex
	states map[string]map[string]rule.VehicleRuleState
}

func NewMemoryStateStore() *MemoryStateStore {
	return &MemoryStateStore{states: make(map[string]map[string]rule.VehicleRuleState)}
}

func (s *MemoryStateStore) Get(_ context.Context, vehicleID, ruleID string) (rule.VehicleRuleState, bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	state, ok := s.states[vehicleID][ruleID]
	return state, ok, nil
}

func (s *MemoryStateStore) RecordTrigger(_ context.Context, vehicleID, ruleID string, at time.Time) (rule.VehicleRuleState, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	byRule, ok := s.states[vehicleID]
	if !ok {
		byRule = make(map[string]rule.VehicleRuleState)
		s.states[vehicleID] = byRule
	}
	state := byRule[ruleID]
	state.LastTriggered = at
	state.LastEvaluation = at
	state.TriggerCount++
	byRule[ruleID] = state
	return state, nil
}

// PurgeIdle drops vehicles where no rule was evaluated at or after cutoff.
func (s *MemoryStateStore) PurgeIdle(_ context.Context, cutoff time.Time) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	n := 0
	for vehicleID, byRule := range s.states {
		active := false
		for _, state := range byRule {
			if !state.LastEvaluation.Before(cutoff) {
				active = true
				break
			}
		}
		if !active {
			delete(s.states, vehicleID)
			n++
		}
	}
	return n, nil
}

func (s *MemoryStateStore) Counts(_ context.Context) (int, int, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	pairs := 0
	for _, byRule := range s.states {
		pairs += len(byRule)
	}
	return len(s.states), pairs, nil
}
