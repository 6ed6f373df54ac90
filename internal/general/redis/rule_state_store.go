package redis

import (
	"context"
	"fmt"
	"strconv"
	"strings"
	"time"

	"geofence-events/internal/domain/rule"

	goredis "github.com/go-redis/redis/v8"
)

const (
	defaultKeyPrefix = "geofence:rulestate:"

	fieldLastTriggered  = "last_triggered"
	fieldTriggerCount   = "trigger_count"
	fieldLastEvaluation = "last_evaluation"
)

// RuleStateStore keeps VehicleRuleState in one hash per vehicle:
//
//	geofence:rulestate:<vehicleId>  <ruleId>|last_triggered   unix nanos
//	                                <ruleId>|trigger_count     int
//	                                <ruleId>|last_evaluation   unix nanos
//
// Each hash expires after the idle window so abandoned vehicles disappear on their own.
type RuleStateStore struct {
	client *goredis.Client
	prefix string
	idle   time.Duration
}

// NewRuleStateStore creates a store whose keys expire after idle.
func NewRuleStateStore(client *goredis.Client, idle time.Duration) *RuleStateStore {
	return &RuleStateStore{client: client, prefix: defaultKeyPrefix, idle: idle}
}

func (s *RuleStateStore) key(vehicleID string) string {
	return s.prefix + vehicleID
}

func field(ruleID, name string) string {
	return ruleID + "|" + name
}

// Get reads one (vehicle, rule) entry.
func (s *RuleStateStore) Get(ctx context.Context, vehicleID, ruleID string) (rule.VehicleRuleState, bool, error) {
	vals, err := s.client.HMGet(ctx, s.key(vehicleID),
		field(ruleID, fieldLastTriggered),
		field(ruleID, fieldTriggerCount),
		field(ruleID, fieldLastEvaluation),
	).Result()
	if err != nil {
		return rule.VehicleRuleState{}, false, fmt.Errorf("hmget rule state: %w", err)
	}
	if vals[0] == nil && vals[1] == nil && vals[2] == nil {
		return rule.VehicleRuleState{}, false, nil
	}

	var state rule.VehicleRuleState
	state.LastTriggered = parseNanos(vals[0])
	state.LastEvaluation = parseNanos(vals[2])
	if raw, ok := vals[1].(string); ok {
		state.TriggerCount, _ = strconv.ParseInt(raw, 10, 64)
	}
	return state, true, nil
}

// RecordTrigger stamps both times and bumps the counter in one MULTI/EXEC.
func (s *RuleStateStore) RecordTrigger(ctx context.Context, vehicleID, ruleID string, at time.Time) (rule.VehicleRuleState, error) {
	key := s.key(vehicleID)
	nanos := strconv.FormatInt(at.UnixNano(), 10)

	var incr *goredis.IntCmd
	_, err := s.client.TxPipelined(ctx, func(pipe goredis.Pipeliner) error {
		pipe.HSet(ctx, key,
			field(ruleID, fieldLastTriggered), nanos,
			field(ruleID, fieldLastEvaluation), nanos,
		)
		incr = pipe.HIncrBy(ctx, key, field(ruleID, fieldTriggerCount), 1)
		if s.idle > 0 {
			pipe.Expire(ctx, key, s.idle)
		}
		return nil
	})
	if err != nil {
		return rule.VehicleRuleState{}, fmt.Errorf("record rule trigger: %w", err)
	}

	return rule.VehicleRuleState{
		LastTriggered:  at,
		LastEvaluation: at,
		TriggerCount:   incr.Val(),
	}, nil
}

// PurgeIdle deletes vehicles whose newest last_evaluation is before cutoff.
func (s *RuleStateStore) PurgeIdle(ctx context.Context, cutoff time.Time) (int, error) {
	removed := 0
	err := s.scan(ctx, func(key string, fields map[string]string) error {
		for name, v := range fields {
			if strings.HasSuffix(name, "|"+fieldLastEvaluation) && !parseNanos(v).Before(cutoff) {
				return nil
			}
		}
		if err := s.client.Del(ctx, key).Err(); err != nil {
			return err
		}
		removed++
		return nil
	})
	return removed, err
}

// Counts returns distinct vehicles and (vehicle, rule) pairs.
func (s *RuleStateStore) Counts(ctx context.Context) (int, int, error) {
	vehicles, pairs := 0, 0
	err := s.scan(ctx, func(_ string, fields map[string]string) error {
		vehicles++
		for name := range fields {
			if strings.HasSuffix(name, "|"+fieldTriggerCount) {
				pairs++
			}
		}
		return nil
	})
	return vehicles, pairs, err
}

func (s *RuleStateStore) scan(ctx context.Context, fn func(key string, fields map[string]string) error) error {
	iter := s.client.Scan(ctx, 0, s.prefix+"*", 100).Iterator()
	for iter.Next(ctx) {
		key := iter.Val()
		fields, err := s.client.HGetAll(ctx, key).Result()
		if err != nil {
			return fmt.Errorf("hgetall %s: %w", key, err)
		}
		if len(fields) == 0 {
			continue
		}
		if err := fn(key, fields); err != nil {
			return err
		}
	}
	if err := iter.Err(); err != nil {
		return fmt.Errorf("scan rule state: %w", err)
	}
	return nil
}

func parseNanos(v any) time.Time {
	s, ok := v.(string)
	if !ok || s == "" {
		return time.Time{}
	}
	n, err := strconv.ParseInt(s, 10, 64)
	if err != nil {
		return time.Time{}
	}
	return time.Unix(0, n)
}
