package service

import (
	"sync"

	"geofence-events/internal/domain/geofence"
)

// MemoryStore is the in-process MembershipStore.
type MemoryStore struct {
	mu     sync.RWMutex
	states map[string]*geofence.MembershipState
}

// NewMemoryStore returns an empty store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{states: make(map[string]*geofence.MembershipState)}
}

func (s *MemoryStore) Get(vehicleID string) (*geofence.MembershipState, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	state, ok := s.states[vehicleID]
	return state, ok
}

func (s *MemoryStore) Put(state *geofence.MembershipState) {
	s.mu.Lock()
	s.states[state.VehicleID] = state
	s.mu.Unlock()
}

func (s *MemoryStore) Delete(vehicleID string) {
	s.mu.Lock()
	delete(s.states, vehicleID)
	s.mu.Unlock()
}

func (s *MemoryStore) Clear() {
	s.mu.Lock()
	s.states = make(map[string]*geofence.MembershipState)
	s.mu.Unlock()
}

// Range visits a snapshot of the stored states; fn returning false stops the walk.
func (s *MemoryStore) Range(fn func(state *geofence.MembershipState) bool) {
	s.mu.RLock()
	snapshot := make([]*geofence.MembershipState, 0, len(s.states))
	for _, state := range s.states {
		snapshot = append(snapshot, state)
	}
	s.mu.RUnlock()

	for _, state := range snapshot {
		if !fn(state) {
			return
		}
	}
}

func (s *MemoryStore) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.states)
}
