package service

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"geofence-events/internal/domain/geofence"
	"geofence-events/internal/domain/rule"
	"geofence-events/internal/general/logger"
	"geofence-events/internal/ports"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeClock struct {
	mu  sync.Mutex
	now time.Time
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	c.now = c.now.Add(d)
	c.mu.Unlock()
}

type broadcastCall struct {
	OrgID     string
	EventType string
	TargetID  string
	Payload   any
}

type recordingHub struct {
	mu    sync.Mutex
	calls []broadcastCall
}

func (h *recordingHub) Broadcast(orgID, eventType, targetID string, payload any) int {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.calls = append(h.calls, broadcastCall{orgID, eventType, targetID, payload})
	return 1
}

func (h *recordingHub) Calls() []broadcastCall {
	h.mu.Lock()
	defer h.mu.Unlock()
	return append([]broadcastCall(nil), h.calls...)
}

type mockChannels struct {
	webhookFn func(ctx context.Context, url string, payload any) error
	emailFn   func(ctx context.Context, to, subject, body string) error
	smsFn     func(ctx context.Context, to, message string) error
}

func (m *mockChannels) SendWebhook(ctx context.Context, url string, payload any) error {
	if m.webhookFn != nil {
		return m.webhookFn(ctx, url, payload)
	}
	return nil
}

func (m *mockChannels) SendEmail(ctx context.Context, to, subject, body string) error {
	if m.emailFn != nil {
		return m.emailFn(ctx, to, subject, body)
	}
	return nil
}

func (m *mockChannels) SendSMS(ctx context.Context, to, message string) error {
	if m.smsFn != nil {
		return m.smsFn(ctx, to, message)
	}
	return nil
}

type mockVehicles struct {
	typeFn func(ctx context.Context, vehicleID, orgID string) (string, error)
}

func (m *mockVehicles) VehicleType(ctx context.Context, vehicleID, orgID string) (string, error) {
	return m.typeFn(ctx, vehicleID, orgID)
}

type mockRepo struct {
	listFn func(ctx context.Context) ([]*rule.Rule, error)
}

func (m *mockRepo) ListRules(ctx context.Context) ([]*rule.Rule, error) {
	return m.listFn(ctx)
}

type harness struct {
	engine   ports.RuleEngine
	hub      *recordingHub
	clock    *fakeClock
	channels *mockChannels
}

func newHarness(t *testing.T, opts Options, rules ...*rule.Rule) *harness {
	t.Helper()
	h := &harness{
		hub:      &recordingHub{},
		clock:    &fakeClock{now: time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)},
		channels: &mockChannels{},
	}
	opts.Now = h.clock.Now
	if opts.Location == nil {
		opts.Location = time.UTC
	}
	h.engine = NewEngine(logger.Discard(), nil, h.hub, h.channels, nil, nil, opts)
	t.Cleanup(h.engine.Close)
	for _, r := range rules {
		require.NoError(t, h.engine.UpsertRule(r))
	}
	return h
}

func (h *harness) fire(t *testing.T, event geofence.Event) {
	t.Helper()
	require.NoError(t, h.engine.OnEvent(context.Background(), event))
}

func zoneEvent(vehicleID, zoneID string, eventType geofence.EventType, at time.Time) geofence.Event {
	return geofence.Event{
		ID:             "ev-" + vehicleID,
		VehicleID:      vehicleID,
		ZoneID:         zoneID,
		Type:           eventType,
		Timestamp:      at,
		Coordinates:    geofence.Coordinates{Longitude: -3.6415, Latitude: 40.5405},
		OrganizationID: "org-1",
	}
}

func notifyRule(id string, priority int, conds ...rule.Condition) *rule.Rule {
	return &rule.Rule{
		ID:             id,
		OrganizationID: "org-1",
		Name:           "rule " + id,
		Conditions:     conds,
		Actions:        []rule.Action{{Type: rule.ActionNotification, Message: "{ruleName} {vehicleId}"}},
		IsActive:       true,
		Priority:       priority,
	}
}

func custom(field string) rule.Condition {
	return rule.Condition{Type: rule.ConditionCustom, Operator: rule.OpEquals, Field: field}
}

func countingCondition(result bool, counter *atomic.Int64) ports.CustomCondition {
	return func(context.Context, geofence.Event, rule.Condition) (bool, error) {
		counter.Add(1)
		return result, nil
	}
}

func TestRuleANDSemantics(t *testing.T) {
	var yes, no atomic.Int64
	h := newHarness(t, Options{},
		notifyRule("r-false-last", 0, custom("yes"), custom("no")),
		notifyRule("r-false-first", 0, custom("no"), custom("yes")),
	)
	h.engine.RegisterCondition("yes", countingCondition(true, &yes))
	h.engine.RegisterCondition("no", countingCondition(false, &no))

	h.fire(t, zoneEvent("V1", "Z1", geofence.EventEnter, h.clock.Now()))

	assert.Empty(t, h.hub.Calls())
	assert.Equal(t, int64(1), yes.Load(), "second rule short-circuits on its first condition")
	assert.Equal(t, int64(2), no.Load())
}

func TestCacheReusesVerdictWithoutActions(t *testing.T) {
	var calls atomic.Int64
	h := newHarness(t, Options{}, notifyRule("r1", 0, custom("count")))
	h.engine.RegisterCondition("count", countingCondition(true, &calls))
	ctx := context.Background()

	h.fire(t, zoneEvent("V1", "Z1", geofence.EventEnter, h.clock.Now()))
	h.clock.Advance(2 * time.Second)
	h.fire(t, zoneEvent("V1", "Z1", geofence.EventEnter, h.clock.Now()))

	assert.Equal(t, int64(1), calls.Load())
	assert.Len(t, h.hub.Calls(), 1, "cached verdict never re-fires actions")
	assert.Equal(t, int64(1), h.engine.Stats(ctx).TotalEvaluations)

	// another event type has its own cache entry
	h.fire(t, zoneEvent("V1", "Z1", geofence.EventExit, h.clock.Now()))
	assert.Equal(t, int64(2), calls.Load())

	// past the TTL the rule is evaluated again
	h.clock.Advance(5 * time.Second)
	h.fire(t, zoneEvent("V1", "Z1", geofence.EventEnter, h.clock.Now()))
	assert.Equal(t, int64(3), calls.Load())
	assert.Len(t, h.hub.Calls(), 3)
}

func TestInWindow(t *testing.T) {
	tests := []struct {
		name       string
		minute     int
		start, end int
		want       bool
	}{
		{"inside plain", 12 * 60, 9 * 60, 17 * 60, true},
		{"start inclusive", 9 * 60, 9 * 60, 17 * 60, true},
		{"end inclusive", 17 * 60, 9 * 60, 17 * 60, true},
		{"after plain", 17*60 + 1, 9 * 60, 17 * 60, false},
		{"wrap late", 23*60 + 30, 22 * 60, 6 * 60, true},
		{"wrap early", 5 * 60, 22 * 60, 6 * 60, true},
		{"wrap end inclusive", 6 * 60, 22 * 60, 6 * 60, true},
		{"wrap outside", 12 * 60, 22 * 60, 6 * 60, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, InWindow(tt.minute, tt.start, tt.end))
		})
	}
}

func TestTimeWindowCondition(t *testing.T) {
	night := rule.Condition{Type: rule.ConditionTimeWindow, Operator: rule.OpBetween, Value: "22:00", SecondaryValue: "06:00"}
	h := newHarness(t, Options{}, notifyRule("night", 0, night))

	// 12:00 UTC is outside
	h.fire(t, zoneEvent("V1", "Z1", geofence.EventEnter, h.clock.Now()))
	assert.Empty(t, h.hub.Calls())

	h.clock.Advance(11*time.Hour + 30*time.Minute) // 23:30
	h.fire(t, zoneEvent("V1", "Z1", geofence.EventEnter, h.clock.Now()))
	assert.Len(t, h.hub.Calls(), 1)

	// other operators fail closed
	eq := night
	eq.Operator = rule.OpEquals
	require.NoError(t, h.engine.UpsertRule(notifyRule("eq", 0, eq)))
	h.fire(t, zoneEvent("V2", "Z1", geofence.EventEnter, h.clock.Now()))
	assert.Len(t, h.hub.Calls(), 2, "only the BETWEEN rule fires for V2")

	bad := night
	bad.Value = "25:99"
	require.NoError(t, h.engine.UpsertRule(notifyRule("bad", 0, bad)))
	h.engine.RemoveRule("night")
	h.engine.RemoveRule("eq")
	h.fire(t, zoneEvent("V3", "Z1", geofence.EventEnter, h.clock.Now()))
	assert.Len(t, h.hub.Calls(), 2)
}

func TestFrequencyCondition(t *testing.T) {
	freq := rule.Condition{Type: rule.ConditionFrequency, Operator: rule.OpGreaterThan, Value: 30}
	h := newHarness(t, Options{}, notifyRule("r1", 0, freq))

	h.fire(t, zoneEvent("V1", "Z1", geofence.EventEnter, h.clock.Now()))
	assert.Len(t, h.hub.Calls(), 1, "no prior trigger is trivially satisfied")

	h.clock.Advance(10 * time.Second)
	h.fire(t, zoneEvent("V1", "Z1", geofence.EventEnter, h.clock.Now()))
	assert.Len(t, h.hub.Calls(), 1)

	h.clock.Advance(25 * time.Second)
	h.fire(t, zoneEvent("V1", "Z1", geofence.EventEnter, h.clock.Now()))
	assert.Len(t, h.hub.Calls(), 2)
}

func TestPriorityOrder(t *testing.T) {
	h := newHarness(t, Options{},
		notifyRule("low", 1),
		notifyRule("high-a", 5),
		notifyRule("high-b", 5),
	)
	h.fire(t, zoneEvent("V1", "Z1", geofence.EventEnter, h.clock.Now()))

	var order []string
	for _, c := range h.hub.Calls() {
		order = append(order, c.Payload.(ActionPayload).RuleID)
	}
	assert.Equal(t, []string{"high-a", "high-b", "low"}, order)
}

func TestRuleScope(t *testing.T) {
	scoped := notifyRule("zone-2", 0)
	scoped.ZoneID = "Z2"
	parkOnly := notifyRule("park", 0)
	parkOnly.ParkID = "P1"
	inactive := notifyRule("off", 0)
	inactive.IsActive = false
	otherOrg := notifyRule("other", 0)
	otherOrg.OrganizationID = "org-2"
	anyZone := notifyRule("any", 0)

	h := newHarness(t, Options{}, scoped, parkOnly, inactive, otherOrg, anyZone)
	h.fire(t, zoneEvent("V1", "Z1", geofence.EventEnter, h.clock.Now()))

	calls := h.hub.Calls()
	require.Len(t, calls, 1)
	assert.Equal(t, "any", calls[0].Payload.(ActionPayload).RuleID)

	parkEvent := zoneEvent("V2", "", geofence.EventEnter, h.clock.Now())
	parkEvent.ParkID = "P1"
	h.fire(t, parkEvent)
	assert.Len(t, h.hub.Calls(), 3, "park rule and unscoped rule both apply")
}

func TestCooldownConstraint(t *testing.T) {
	r := notifyRule("r1", 0)
	r.Cooldown = time.Minute
	h := newHarness(t, Options{}, r)

	h.fire(t, zoneEvent("V1", "Z1", geofence.EventEnter, h.clock.Now()))
	h.clock.Advance(10 * time.Second)
	h.fire(t, zoneEvent("V1", "Z1", geofence.EventEnter, h.clock.Now()))
	assert.Len(t, h.hub.Calls(), 1)

	h.clock.Advance(51 * time.Second)
	h.fire(t, zoneEvent("V1", "Z1", geofence.EventEnter, h.clock.Now()))
	assert.Len(t, h.hub.Calls(), 2)

	// engine default applies when the rule has none
	h2 := newHarness(t, Options{MinRetrigger: time.Hour}, notifyRule("r2", 0))
	h2.fire(t, zoneEvent("V1", "Z1", geofence.EventEnter, h2.clock.Now()))
	h2.clock.Advance(10 * time.Minute)
	h2.fire(t, zoneEvent("V1", "Z1", geofence.EventEnter, h2.clock.Now()))
	assert.Len(t, h2.hub.Calls(), 1)
}

func TestActionFailureIsolation(t *testing.T) {
	r := notifyRule("r1", 0)
	r.Actions = []rule.Action{
		{Type: rule.ActionWebhook, Target: "https://hooks.example/geo"},
		{Type: rule.ActionCustom, Target: "explode"},
		{Type: rule.ActionSMS},
		{Type: rule.ActionCustom, Target: "missing"},
		{Type: rule.ActionAlert, Message: "alert {vehicleId}"},
	}
	h := newHarness(t, Options{}, r)
	h.channels.webhookFn = func(context.Context, string, any) error { return errors.New("503") }
	h.engine.RegisterAction("explode", func(context.Context, geofence.Event, rule.Rule, rule.Action, string) error {
		panic("handler bug")
	})

	h.fire(t, zoneEvent("V1", "Z1", geofence.EventEnter, h.clock.Now()))

	calls := h.hub.Calls()
	require.Len(t, calls, 1)
	assert.Equal(t, "ALERT", calls[0].EventType)
	assert.Equal(t, "V1", calls[0].TargetID)
	assert.Equal(t, "alert V1", calls[0].Payload.(ActionPayload).Message)

	stats := h.engine.Stats(context.Background())
	assert.Equal(t, 1, stats.TrackedVehicles)
	assert.Equal(t, 1, stats.TrackedPairs)
}

func TestChannelDispatch(t *testing.T) {
	r := notifyRule("r1", 0)
	r.Name = "Depot"
	r.Actions = []rule.Action{
		{Type: rule.ActionEmail, Target: "ops@example.com", Message: "{vehicleId} {eventType}", Metadata: map[string]any{"subject": "Alert {ruleName}"}},
		{Type: rule.ActionEmail, Target: "fleet@example.com", Message: "plain"},
		{Type: rule.ActionSMS, Target: "+34600000000", Message: "{vehicleId} at {coordinates}"},
		{Type: rule.ActionWebhook, Target: "https://hooks.example/geo", Message: "hook"},
		{Type: rule.ActionCustom, Target: "audit", Message: "custom {ruleName}"},
		{Type: rule.ActionLog, Message: "logged"},
	}
	h := newHarness(t, Options{}, r)

	var subjects, bodies, sms []string
	var hook ActionPayload
	var customMsg string
	h.channels.emailFn = func(_ context.Context, _, subject, body string) error {
		subjects = append(subjects, subject)
		bodies = append(bodies, body)
		return nil
	}
	h.channels.smsFn = func(_ context.Context, to, message string) error {
		sms = append(sms, to+"|"+message)
		return nil
	}
	h.channels.webhookFn = func(_ context.Context, url string, payload any) error {
		hook = payload.(ActionPayload)
		return nil
	}
	h.engine.RegisterAction("audit", func(_ context.Context, _ geofence.Event, _ rule.Rule, _ rule.Action, message string) error {
		customMsg = message
		return nil
	})

	h.fire(t, zoneEvent("V1", "Z1", geofence.EventExit, h.clock.Now()))

	assert.Equal(t, []string{"Alert Depot", "Depot"}, subjects)
	assert.Equal(t, []string{"V1 EXIT", "plain"}, bodies)
	assert.Equal(t, []string{"+34600000000|V1 at 40.5405, -3.6415"}, sms)
	assert.Equal(t, "hook", hook.Message)
	assert.Equal(t, "Z1", hook.ZoneID)
	assert.Equal(t, "custom Depot", customMsg)
}

func TestInterpolate(t *testing.T) {
	r := rule.Rule{Name: "Speeding"}
	ev := zoneEvent("V1", "Z1", geofence.EventEnter, time.Date(2026, 3, 1, 10, 15, 0, 0, time.UTC))
	got := Interpolate("{ruleName}: {vehicleId} {eventType} at {timestamp} ({coordinates}) {unknown}", r, ev)
	assert.Equal(t, "Speeding: V1 ENTER at 2026-03-01T10:15:00Z (40.5405, -3.6415) {unknown}", got)
}

func TestSpeedAndDurationConditions(t *testing.T) {
	speeding := rule.Condition{Type: rule.ConditionSpeedLimit, Operator: rule.OpGreaterThan, Value: 50.0}
	longStay := rule.Condition{Type: rule.ConditionDuration, Operator: rule.OpBetween, Value: 60, SecondaryValue: "600"}
	h := newHarness(t, Options{}, notifyRule("speed", 0, speeding), notifyRule("dwell", 0, longStay))

	noSpeed := zoneEvent("V1", "Z1", geofence.EventEnter, h.clock.Now())
	h.fire(t, noSpeed)
	assert.Empty(t, h.hub.Calls(), "missing speed and dwell fail closed")

	fast := zoneEvent("V2", "Z1", geofence.EventEnter, h.clock.Now())
	v := 55.0
	fast.Context.SpeedKmh = &v
	h.fire(t, fast)
	require.Len(t, h.hub.Calls(), 1)

	exit := zoneEvent("V3", "Z1", geofence.EventExit, h.clock.Now())
	dwell := 120.0
	exit.Context.DwellSeconds = &dwell
	h.fire(t, exit)
	calls := h.hub.Calls()
	require.Len(t, calls, 2)
	assert.Equal(t, "dwell", calls[1].Payload.(ActionPayload).RuleID)
}

func TestVehicleTypeCondition(t *testing.T) {
	cond := rule.Condition{Type: rule.ConditionVehicleType, Operator: rule.OpIn, Value: []any{"truck", "VAN"}}
	hub := &recordingHub{}
	vehicles := &mockVehicles{typeFn: func(_ context.Context, vehicleID, _ string) (string, error) {
		switch vehicleID {
		case "V1":
			return "van", nil
		case "V2":
			return "car", nil
		default:
			return "", errors.New("not found")
		}
	}}
	eng := NewEngine(logger.Discard(), nil, hub, nil, vehicles, nil, Options{})
	t.Cleanup(eng.Close)
	require.NoError(t, eng.UpsertRule(notifyRule("vt", 0, cond)))

	for _, id := range []string{"V1", "V2", "V3"} {
		require.NoError(t, eng.OnEvent(context.Background(), zoneEvent(id, "Z1", geofence.EventEnter, time.Now())))
	}
	calls := hub.Calls()
	require.Len(t, calls, 1)
	assert.Equal(t, "V1", calls[0].TargetID)
}

func TestDelayedActionAndClose(t *testing.T) {
	r := notifyRule("r1", 0)
	r.Actions = []rule.Action{{Type: rule.ActionNotification, Message: "later", Delay: 20 * time.Millisecond}}
	hub := &recordingHub{}
	eng := NewEngine(logger.Discard(), nil, hub, nil, nil, nil, Options{})
	require.NoError(t, eng.UpsertRule(r))

	require.NoError(t, eng.OnEvent(context.Background(), zoneEvent("V1", "Z1", geofence.EventEnter, time.Now())))
	assert.Empty(t, hub.Calls())
	assert.Eventually(t, func() bool { return len(hub.Calls()) == 1 }, time.Second, 5*time.Millisecond)

	r.Actions[0].Delay = time.Hour
	require.NoError(t, eng.UpsertRule(r))
	require.NoError(t, eng.OnEvent(context.Background(), zoneEvent("V2", "Z1", geofence.EventEnter, time.Now())))
	assert.Equal(t, 1, eng.(*engine).pendingActions())

	eng.Close()
	assert.Equal(t, 0, eng.(*engine).pendingActions())
}

func TestStatsAndCleanup(t *testing.T) {
	inactive := notifyRule("off", 0)
	inactive.IsActive = false
	h := newHarness(t, Options{}, notifyRule("r1", 0), notifyRule("r2", 0), inactive)
	ctx := context.Background()

	h.fire(t, zoneEvent("V1", "Z1", geofence.EventEnter, h.clock.Now()))
	h.fire(t, zoneEvent("V2", "Z1", geofence.EventEnter, h.clock.Now()))

	stats := h.engine.Stats(ctx)
	assert.Equal(t, 3, stats.TotalRules)
	assert.Equal(t, 2, stats.ActiveRules)
	assert.Equal(t, 2, stats.TrackedVehicles)
	assert.Equal(t, 4, stats.TrackedPairs)
	assert.Equal(t, 4, stats.CacheSize)
	assert.Equal(t, int64(4), stats.TotalEvaluations)
	assert.InDelta(t, 0.5, stats.CacheHitRatio, 1e-9)

	cacheRemoved, stateRemoved := h.engine.Cleanup(ctx, h.clock.Now().Add(4*time.Minute))
	assert.Zero(t, cacheRemoved)
	assert.Zero(t, stateRemoved)

	cacheRemoved, stateRemoved = h.engine.Cleanup(ctx, h.clock.Now().Add(31*time.Minute))
	assert.Equal(t, 4, cacheRemoved)
	assert.Equal(t, 2, stateRemoved)
	assert.Zero(t, h.engine.Stats(ctx).TrackedVehicles)
}

func TestReloadFromRepository(t *testing.T) {
	repo := &mockRepo{listFn: func(context.Context) ([]*rule.Rule, error) {
		return []*rule.Rule{
			notifyRule("r1", 0),
			{ID: "", OrganizationID: "org-1"},
			notifyRule("r2", 3),
		}, nil
	}}
	eng := NewEngine(logger.Discard(), repo, &recordingHub{}, nil, nil, nil, Options{})
	t.Cleanup(eng.Close)

	require.NoError(t, eng.Reload(context.Background()))
	rules := eng.Rules()
	require.Len(t, rules, 2)
	assert.Equal(t, "r1", rules[0].ID)

	updated := notifyRule("r1", 9)
	require.NoError(t, eng.UpsertRule(updated))
	assert.Equal(t, 9, eng.Rules()[0].Priority)
	assert.True(t, eng.RemoveRule("r2"))
	assert.False(t, eng.RemoveRule("r2"))
	assert.ErrorIs(t, eng.UpsertRule(&rule.Rule{ID: "x"}), rule.ErrRuleOrgRequired)

	repo.listFn = func(context.Context) ([]*rule.Rule, error) { return nil, errors.New("db down") }
	assert.Error(t, eng.Reload(context.Background()))
	assert.Len(t, eng.Rules(), 1, "failed reload keeps the current rule set")
}

func TestParallelEvaluation(t *testing.T) {
	var rules []*rule.Rule
	for _, id := range []string{"a", "b", "c", "d", "e"} {
		rules = append(rules, notifyRule(id, 0))
	}
	h := newHarness(t, Options{Parallelism: 4}, rules...)
	h.fire(t, zoneEvent("V1", "Z1", geofence.EventEnter, h.clock.Now()))
	assert.Len(t, h.hub.Calls(), 5)
}
