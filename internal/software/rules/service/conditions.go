package service

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"geofence-events/internal/domain/geofence"
	"geofence-events/internal/domain/rule"
)

var ErrBadConditionValue = errors.New("condition value has an unexpected shape")

// evaluateCondition dispatches on the condition type. Missing context fails closed.
func (service *engine) evaluateCondition(ctx context.Context, r rule.Rule, cond rule.Condition, event geofence.Event, now time.Time) (bool, error) {
	switch cond.Type {
	case rule.ConditionTimeWindow:
		return service.timeWindow(cond, now)
	case rule.ConditionFrequency:
		return service.frequency(ctx, r, cond, event, now)
	case rule.ConditionSpeedLimit:
		if event.Context.SpeedKmh == nil {
			return false, nil
		}
		return compareNumber(cond, *event.Context.SpeedKmh)
	case rule.ConditionDuration:
		if event.Context.DwellSeconds == nil {
			return false, nil
		}
		return compareNumber(cond, *event.Context.DwellSeconds)
	case rule.ConditionVehicleType:
		return service.vehicleType(ctx, cond, event)
	case rule.ConditionCustom:
		fn, ok := service.customCondition(cond.Field)
		if !ok {
			return false, nil
		}
		return fn(ctx, event, cond)
	default:
		return false, fmt.Errorf("%w: %s", rule.ErrInvalidConditionType, cond.Type)
	}
}

// timeWindow supports BETWEEN on HH:MM bounds, inclusive, wrapping past midnight when start > end.
func (service *engine) timeWindow(cond rule.Condition, now time.Time) (bool, error) {
	if cond.Operator != rule.OpBetween {
		return false, nil
	}
	start, err := parseClock(cond.Value)
	if err != nil {
		return false, err
	}
	end, err := parseClock(cond.SecondaryValue)
	if err != nil {
		return false, err
	}

	local := now.In(service.opts.Location)
	minute := local.Hour()*60 + local.Minute()
	return InWindow(minute, start, end), nil
}

// InWindow reports whether minute-of-day falls in [start, end], wrapping when start > end.
func InWindow(minute, start, end int) bool {
	if start <= end {
		return minute >= start && minute <= end
	}
	return minute >= start || minute <= end
}

func parseClock(v any) (int, error) {
	s, ok := v.(string)
	if !ok {
		return 0, fmt.Errorf("%w: time must be HH:MM, got %T", ErrBadConditionValue, v)
	}
	t, err := time.Parse("15:04", strings.TrimSpace(s))
	if err != nil {
		return 0, fmt.Errorf("%w: time must be HH:MM: %v", ErrBadConditionValue, err)
	}
	return t.Hour()*60 + t.Minute(), nil
}

// frequency requires more than `value` seconds since the last trigger. The field may name
// another rule whose history is consulted; empty means this rule.
func (service *engine) frequency(ctx context.Context, r rule.Rule, cond rule.Condition, event geofence.Event, now time.Time) (bool, error) {
	seconds, err := toFloat(cond.Value)
	if err != nil {
		return false, err
	}
	ruleID := r.ID
	if f := strings.TrimSpace(cond.Field); f != "" {
		ruleID = f
	}

	state, ok, err := service.states.Get(ctx, event.VehicleID, ruleID)
	if err != nil {
		return false, err
	}
	if !ok || state.LastTriggered.IsZero() {
		return true, nil
	}
	return now.Sub(state.LastTriggered).Seconds() > seconds, nil
}

// vehicleType resolves the vehicle's type and compares it case-insensitively.
func (service *engine) vehicleType(ctx context.Context, cond rule.Condition, event geofence.Event) (bool, error) {
	if service.vehicles == nil {
		return false, nil
	}
	vt, err := service.vehicles.VehicleType(ctx, event.VehicleID, event.OrganizationID)
	if err != nil || vt == "" {
		// unknown vehicle metadata fails closed
		return false, nil
	}
	return compareString(cond, vt)
}

func compareNumber(cond rule.Condition, actual float64) (bool, error) {
	switch cond.Operator {
	case rule.OpIn, rule.OpNotIn:
		list, err := toFloatList(cond.Value)
		if err != nil {
			return false, err
		}
		found := false
		for _, v := range list {
			if v == actual {
				found = true
				break
			}
		}
		return found == (cond.Operator == rule.OpIn), nil
	}

	value, err := toFloat(cond.Value)
	if err != nil {
		return false, err
	}
	switch cond.Operator {
	case rule.OpEquals:
		return actual == value, nil
	case rule.OpNotEquals:
		return actual != value, nil
	case rule.OpGreaterThan:
		return actual > value, nil
	case rule.OpLessThan:
		return actual < value, nil
	case rule.OpBetween:
		upper, err := toFloat(cond.SecondaryValue)
		if err != nil {
			return false, err
		}
		lo, hi := value, upper
		if lo > hi {
			lo, hi = hi, lo
		}
		return actual >= lo && actual <= hi, nil
	default:
		return false, nil
	}
}

func compareString(cond rule.Condition, actual string) (bool, error) {
	switch cond.Operator {
	case rule.OpEquals, rule.OpNotEquals:
		s, ok := cond.Value.(string)
		if !ok {
			return false, fmt.Errorf("%w: expected string, got %T", ErrBadConditionValue, cond.Value)
		}
		eq := strings.EqualFold(strings.TrimSpace(s), actual)
		return eq == (cond.Operator == rule.OpEquals), nil
	case rule.OpIn, rule.OpNotIn:
		list, err := toStringList(cond.Value)
		if err != nil {
			return false, err
		}
		found := false
		for _, s := range list {
			if strings.EqualFold(strings.TrimSpace(s), actual) {
				found = true
				break
			}
		}
		return found == (cond.Operator == rule.OpIn), nil
	default:
		return false, nil
	}
}

func toFloat(v any) (float64, error) {
	switch n := v.(type) {
	case float64:
		return n, nil
	case float32:
		return float64(n), nil
	case int:
		return float64(n), nil
	case int64:
		return float64(n), nil
	case json.Number:
		return n.Float64()
	case string:
		f, err := strconv.ParseFloat(strings.TrimSpace(n), 64)
		if err != nil {
			return 0, fmt.Errorf("%w: %v", ErrBadConditionValue, err)
		}
		return f, nil
	default:
		return 0, fmt.Errorf("%w: expected number, got %T", ErrBadConditionValue, v)
	}
}

func toFloatList(v any) ([]float64, error) {
	switch list := v.(type) {
	case []float64:
		return list, nil
	case []any:
		out := make([]float64, 0, len(list))
		for _, item := range list {
			f, err := toFloat(item)
			if err != nil {
				return nil, err
			}
			out = append(out, f)
		}
		return out, nil
	default:
		return nil, fmt.Errorf("%w: expected list, got %T", ErrBadConditionValue, v)
	}
}

func toStringList(v any) ([]string, error) {
	switch list := v.(type) {
	case []string:
		return list, nil
	case []any:
		out := make([]string, 0, len(list))
		for _, item := range list {
			s, ok := item.(string)
			if !ok {
				return nil, fmt.Errorf("%w: expected string item, got %T", ErrBadConditionValue, item)
			}
			out = append(out, s)
		}
		return out, nil
	case string:
		// comma separated shorthand
		parts := strings.Split(list, ",")
		return parts, nil
	default:
		return nil, fmt.Errorf("%w: expected list, got %T", ErrBadConditionValue, v)
	}
}
