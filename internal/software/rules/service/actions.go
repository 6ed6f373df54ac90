package service

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"geofence-events/internal/domain/geofence"
	"geofence-events/internal/domain/rule"
)

var (
	ErrNoBroadcaster   = errors.New("notification hub not configured")
	ErrNoChannels      = errors.New("channel adapters not configured")
	ErrNoCustomHandler = errors.New("no custom action handler registered")
	ErrMissingTarget   = errors.New("action target is required")
	ErrEngineClosed    = errors.New("rule engine closed")
)

// ActionPayload is what NOTIFICATION/ALERT broadcasts and webhooks carry.
type ActionPayload struct {
	RuleID         string               `json:"ruleId"`
	RuleName       string               `json:"ruleName"`
	ActionType     rule.ActionType      `json:"actionType"`
	VehicleID      string               `json:"vehicleId"`
	EventType      geofence.EventType   `json:"eventType"`
	ZoneID         string               `json:"zoneId,omitempty"`
	ParkID         string               `json:"parkId,omitempty"`
	Message        string               `json:"message"`
	Timestamp      time.Time            `json:"timestamp"`
	Coordinates    geofence.Coordinates `json:"coordinates"`
	OrganizationID string               `json:"organizationId"`
	Metadata       map[string]any       `json:"metadata,omitempty"`
}

// Interpolate substitutes {vehicleId} {eventType} {ruleName} {timestamp} {coordinates}.
func Interpolate(template string, r rule.Rule, event geofence.Event) string {
	return strings.NewReplacer(
		"{vehicleId}", event.VehicleID,
		"{eventType}", event.Type.String(),
		"{ruleName}", r.Name,
		"{timestamp}", event.Timestamp.UTC().Format(time.RFC3339),
		"{coordinates}", formatCoordinates(event.Coordinates),
	).Replace(template)
}

func formatCoordinates(c geofence.Coordinates) string {
	return strconv.FormatFloat(c.Latitude, 'f', -1, 64) + ", " + strconv.FormatFloat(c.Longitude, 'f', -1, 64)
}

// executeActions runs actions in order; each one has its own failure boundary.
func (service *engine) executeActions(ctx context.Context, r rule.Rule, event geofence.Event) {
	for i, action := range r.Actions {
		if action.Delay > 0 {
			service.schedule(r, action, event)
			continue
		}
		if err := service.safeExecute(ctx, r, action, event); err != nil {
			details := ruleDetails(r, event)
			details["action"] = i
			details["action_type"] = action.Type
			service.logger.Error(ctx, "rule_action_failed", "action failed", err, details)
		}
	}
}

func (service *engine) safeExecute(ctx context.Context, r rule.Rule, action rule.Action, event geofence.Event) (err error) {
	defer func() {
		if rec := recover(); rec != nil {
			err = fmt.Errorf("action panic: %v", rec)
		}
	}()
	return service.execute(ctx, r, action, event)
}

// schedule fires a delayed action on a timer owned by the engine; Close cancels it.
func (service *engine) schedule(r rule.Rule, action rule.Action, event geofence.Event) {
	service.timersMu.Lock()
	defer service.timersMu.Unlock()
	if service.closed {
		return
	}

	id := service.nextTimer
	service.nextTimer++
	service.timers[id] = time.AfterFunc(action.Delay, func() {
		service.timersMu.Lock()
		_, pending := service.timers[id]
		delete(service.timers, id)
		service.timersMu.Unlock()
		if !pending {
			return
		}

		ctx := service.logger.WithVehicleID(service.baseCtx, event.VehicleID)
		if err := service.safeExecute(ctx, r, action, event); err != nil {
			details := ruleDetails(r, event)
			details["action_type"] = action.Type
			details["delay"] = action.Delay.String()
			service.logger.Error(ctx, "rule_action_failed", "delayed action failed", err, details)
		}
	})
}

// pendingActions reports how many delayed actions are waiting.
func (service *engine) pendingActions() int {
	service.timersMu.Lock()
	defer service.timersMu.Unlock()
	return len(service.timers)
}

func (service *engine) execute(ctx context.Context, r rule.Rule, action rule.Action, event geofence.Event) error {
	if err := service.baseCtx.Err(); err != nil {
		return ErrEngineClosed
	}
	message := Interpolate(action.Message, r, event)

	switch action.Type {
	case rule.ActionNotification, rule.ActionAlert:
		if service.hub == nil {
			return ErrNoBroadcaster
		}
		delivered := service.hub.Broadcast(event.OrganizationID, action.Type.String(), event.VehicleID, newPayload(r, action, event, message))
		service.logger.Debug(ctx, "rule_action_broadcast", "broadcast rule action", map[string]any{
			"rule_id":   r.ID,
			"topic":     action.Type.String() + ":" + event.VehicleID,
			"delivered": delivered,
		})
		return nil

	case rule.ActionLog:
		details := ruleDetails(r, event)
		details["target"] = action.Target
		details["metadata"] = action.Metadata
		service.logger.Info(ctx, "rule_action_log", message, details)
		return nil

	case rule.ActionWebhook:
		if service.channels == nil {
			return ErrNoChannels
		}
		if action.Target == "" {
			return ErrMissingTarget
		}
		return service.channels.SendWebhook(ctx, action.Target, newPayload(r, action, event, message))

	case rule.ActionEmail:
		if service.channels == nil {
			return ErrNoChannels
		}
		if action.Target == "" {
			return ErrMissingTarget
		}
		subject := r.Name
		if s, ok := action.Metadata["subject"].(string); ok && s != "" {
			subject = Interpolate(s, r, event)
		}
		return service.channels.SendEmail(ctx, action.Target, subject, message)

	case rule.ActionSMS:
		if service.channels == nil {
			return ErrNoChannels
		}
		if action.Target == "" {
			return ErrMissingTarget
		}
		return service.channels.SendSMS(ctx, action.Target, message)

	case rule.ActionCustom:
		fn, ok := service.customAction(action.Target)
		if !ok {
			return fmt.Errorf("%w: %q", ErrNoCustomHandler, action.Target)
		}
		return fn(ctx, event, r, action, message)

	default:
		return fmt.Errorf("%w: %s", rule.ErrInvalidActionType, action.Type)
	}
}

func newPayload(r rule.Rule, action rule.Action, event geofence.Event, message string) ActionPayload {
	return ActionPayload{
		RuleID:         r.ID,
		RuleName:       r.Name,
		ActionType:     action.Type,
		VehicleID:      event.VehicleID,
		EventType:      event.Type,
		ZoneID:         event.ZoneID,
		ParkID:         event.ParkID,
		Message:        message,
		Timestamp:      event.Timestamp,
		Coordinates:    event.Coordinates,
		OrganizationID: event.OrganizationID,
		Metadata:       action.Metadata,
	}
}
