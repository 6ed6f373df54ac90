package service

import (
	"context"
	"fmt"
	"slices"
	"sync"
	"sync/atomic"
	"time"

	"geofence-events/internal/domain/rule"
	"geofence-events/internal/general/keylock"
	"geofence-events/internal/general/logger"
	"geofence-events/internal/ports"
)

// Options tunes the engine. Zero values fall back to defaults.
type Options struct {
	CacheTTL        time.Duration // lifetime of a cached verdict
	CacheMaxAge     time.Duration // cleanup drops cache entries older than this
	StateIdle       time.Duration // cleanup drops vehicles with no rule evaluated within this
	MinRetrigger    time.Duration // default per rule+vehicle re-trigger interval; 0 disables
	CleanupInterval time.Duration
	RefreshInterval time.Duration // rule reload period; 0 disables periodic reload
	Parallelism     int           // rules evaluated concurrently per event; 1 keeps priority order
	Location        *time.Location
	Now             func() time.Time
}

const (
	defaultCacheTTL        = 5 * time.Second
	defaultCacheMaxAge     = 5 * time.Minute
	defaultStateIdle       = 30 * time.Minute
	defaultCleanupInterval = 5 * time.Minute
)

func (o *Options) applyDefaults() {
	if o.CacheTTL <= 0 {
		o.CacheTTL = defaultCacheTTL
	}
	if o.CacheMaxAge <= 0 {
		o.CacheMaxAge = defaultCacheMaxAge
	}
	if o.StateIdle <= 0 {
		o.StateIdle = defaultStateIdle
	}
	if o.CleanupInterval <= 0 {
		o.CleanupInterval = defaultCleanupInterval
	}
	if o.Parallelism < 1 {
		o.Parallelism = 1
	}
	if o.Location == nil {
		o.Location = time.Local
	}
	if o.Now == nil {
		o.Now = time.Now
	}
}

// engine matches geofence events to rules, evaluates them and fires actions.
type engine struct {
	logger   *logger.Logger
	repo     ports.RuleRepository
	hub      ports.Broadcaster
	channels ports.ChannelAdapters
	vehicles ports.VehicleDirectory
	states   ports.RuleStateStore
	cache    ports.EvaluationCache
	opts     Options

	pairLocks        *keylock.Locker
	totalEvaluations atomic.Int64

	rulesMu sync.RWMutex
	rules   []*rule.Rule

	customMu   sync.RWMutex
	conditions map[string]ports.CustomCondition
	actions    map[string]ports.CustomAction

	// delayed actions
	baseCtx   context.Context
	cancel    context.CancelFunc
	timersMu  sync.Mutex
	timers    map[uint64]*time.Timer
	nextTimer uint64
	closed    bool
}

// NewEngine creates a RuleEngine. Any collaborator may be nil: a nil repo means rules are
// managed through UpsertRule only, a nil states falls back to the in-memory store, and
// missing hub/channels/vehicles make the dependent conditions and actions fail closed.
func NewEngine(
	logger *logger.Logger,
	repo ports.RuleRepository,
	hub ports.Broadcaster,
	channels ports.ChannelAdapters,
	vehicles ports.VehicleDirectory,
	states ports.RuleStateStore,
	opts Options,
) ports.RuleEngine {
	opts.applyDefaults()
	if states == nil {
		states = NewMemoryStateStore()
	}
	ctx, cancel := context.WithCancel(context.Background())
	return &engine{
		logger:     logger,
		repo:       repo,
		hub:        hub,
		channels:   channels,
		vehicles:   vehicles,
		states:     states,
		cache:      NewMemoryCache(),
		opts:       opts,
		pairLocks:  keylock.New(),
		conditions: make(map[string]ports.CustomCondition),
		actions:    make(map[string]ports.CustomAction),
		baseCtx:    ctx,
		cancel:     cancel,
		timers:     make(map[uint64]*time.Timer),
	}
}

// Reload replaces the rule set with the repository's. Invalid rules are logged and skipped.
func (service *engine) Reload(ctx context.Context) error {
	if service.repo == nil {
		return nil
	}
	loaded, err := service.repo.ListRules(ctx)
	if err != nil {
		return fmt.Errorf("load rules: %w", err)
	}

	rules := make([]*rule.Rule, 0, len(loaded))
	for _, r := range loaded {
		if r == nil {
			continue
		}
		if err := r.Validate(); err != nil {
			service.logger.Warn(ctx, "rule_skipped", "invalid rule definition", err, map[string]any{"rule_id": r.ID})
			continue
		}
		rules = append(rules, r)
	}

	service.rulesMu.Lock()
	service.rules = rules
	service.rulesMu.Unlock()

	service.logger.Info(ctx, "rules_loaded", "rule set refreshed", map[string]any{"rules": len(rules)})
	return nil
}

// UpsertRule replaces a rule with the same id in place, or appends it.
func (service *engine) UpsertRule(r *rule.Rule) error {
	if r == nil {
		return rule.ErrRuleIDRequired
	}
	if err := r.Validate(); err != nil {
		return err
	}
	cp := *r
	cp.Conditions = slices.Clone(r.Conditions)
	cp.Actions = slices.Clone(r.Actions)

	service.rulesMu.Lock()
	defer service.rulesMu.Unlock()
	for i, existing := range service.rules {
		if existing.ID == cp.ID {
			service.rules[i] = &cp
			return nil
		}
	}
	service.rules = append(service.rules, &cp)
	return nil
}

// RemoveRule drops a rule by id.
func (service *engine) RemoveRule(ruleID string) bool {
	service.rulesMu.Lock()
	defer service.rulesMu.Unlock()
	for i, existing := range service.rules {
		if existing.ID == ruleID {
			service.rules = append(service.rules[:i], service.rules[i+1:]...)
			return true
		}
	}
	return false
}

// Rules returns a copy of the loaded rules in discovery order.
func (service *engine) Rules() []rule.Rule {
	service.rulesMu.RLock()
	defer service.rulesMu.RUnlock()
	out := make([]rule.Rule, 0, len(service.rules))
	for _, r := range service.rules {
		out = append(out, *r)
	}
	return out
}

// RegisterCondition binds a CUSTOM condition evaluator to a field name.
func (service *engine) RegisterCondition(name string, fn ports.CustomCondition) {
	service.customMu.Lock()
	service.conditions[name] = fn
	service.customMu.Unlock()
}

// RegisterAction binds a CUSTOM action handler to a target name.
func (service *engine) RegisterAction(name string, fn ports.CustomAction) {
	service.customMu.Lock()
	service.actions[name] = fn
	service.customMu.Unlock()
}

func (service *engine) customCondition(name string) (ports.CustomCondition, bool) {
	service.customMu.RLock()
	defer service.customMu.RUnlock()
	fn, ok := service.conditions[name]
	return fn, ok
}

func (service *engine) customAction(name string) (ports.CustomAction, bool) {
	service.customMu.RLock()
	defer service.customMu.RUnlock()
	fn, ok := service.actions[name]
	return fn, ok
}

// Run drives periodic cleanup and rule refresh until ctx is done.
func (service *engine) Run(ctx context.Context) error {
	cleanup := time.NewTicker(service.opts.CleanupInterval)
	defer cleanup.Stop()

	var refresh <-chan time.Time
	if service.repo != nil && service.opts.RefreshInterval > 0 {
		t := time.NewTicker(service.opts.RefreshInterval)
		defer t.Stop()
		refresh = t.C
	}

	for {
		select {
		case <-ctx.Done():
			return nil
		case <-service.baseCtx.Done():
			return nil
		case <-cleanup.C:
			cacheRemoved, stateRemoved := service.Cleanup(ctx, service.opts.Now())
			if cacheRemoved > 0 || stateRemoved > 0 {
				service.logger.Info(ctx, "rule_engine_cleanup", "purged stale engine state", map[string]any{
					"cache_entries":       cacheRemoved,
					"rule_state_vehicles": stateRemoved,
				})
			}
		case <-refresh:
			if err := service.Reload(ctx); err != nil {
				service.logger.Error(ctx, "rules_refresh_failed", "failed to refresh rules", err, nil)
			}
		}
	}
}

// Close cancels pending delayed actions and stops Run.
func (service *engine) Close() {
	service.timersMu.Lock()
	service.closed = true
	for id, t := range service.timers {
		t.Stop()
		delete(service.timers, id)
	}
	service.timersMu.Unlock()
	service.cancel()
}
