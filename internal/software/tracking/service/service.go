package service

import (
	"sync"
	"time"

	"geofence-events/internal/general/keylock"
	"geofence-events/internal/general/logger"
	"geofence-events/internal/ports"
)

// Options tunes the tracker. Zero values fall back to defaults.
type Options struct {
	OracleTimeout   time.Duration // time box for one containment query
	StoreTimeout    time.Duration // time box for one event persist
	IdleThreshold   time.Duration // vehicles idle longer than this are dropped by CleanupIdle
	CleanupInterval time.Duration // period of the idle sweep in Run
	Now             func() time.Time
}

const (
	defaultOracleTimeout   = 2 * time.Second
	defaultStoreTimeout    = 2 * time.Second
	defaultIdleThreshold   = 30 * time.Minute
	defaultCleanupInterval = 5 * time.Minute
)

func (o *Options) applyDefaults() {
	if o.OracleTimeout <= 0 {
		o.OracleTimeout = defaultOracleTimeout
	}
	if o.StoreTimeout <= 0 {
		o.StoreTimeout = defaultStoreTimeout
	}
	if o.IdleThreshold <= 0 {
		o.IdleThreshold = defaultIdleThreshold
	}
	if o.CleanupInterval <= 0 {
		o.CleanupInterval = defaultCleanupInterval
	}
	if o.Now == nil {
		o.Now = time.Now
	}
}

// tracker diffs containment per vehicle and emits ENTER/EXIT events.
// Stored states are treated as immutable snapshots: every update Puts a fresh one.
type tracker struct {
	logger *logger.Logger
	oracle ports.GeometryOracle
	events ports.EventStore
	store  ports.MembershipStore
	locks  *keylock.Locker
	opts   Options

	listenersMu sync.RWMutex
	listeners   []ports.EventListener
}

// NewTracker creates a MembershipTracker. events may be nil (no persistence);
// store may be nil (in-memory store).
func NewTracker(
	logger *logger.Logger,
	oracle ports.GeometryOracle,
	events ports.EventStore,
	store ports.MembershipStore,
	opts Options,
) ports.MembershipTracker {
	opts.applyDefaults()
	if store == nil {
		store = NewMemoryStore()
	}
	return &tracker{
		logger: logger,
		oracle: oracle,
		events: events,
		store:  store,
		locks:  keylock.New(),
		opts:   opts,
	}
}

// AddListener registers a listener. Listeners are called in registration order.
func (service *tracker) AddListener(listener ports.EventListener) {
	if listener == nil {
		return
	}
	service.listenersMu.Lock()
	service.listeners = append(service.listeners, listener)
	service.listenersMu.Unlock()
}

func (service *tracker) snapshotListeners() []ports.EventListener {
	service.listenersMu.RLock()
	defer service.listenersMu.RUnlock()
	out := make([]ports.EventListener, len(service.listeners))
	copy(out, service.listeners)
	return out
}
