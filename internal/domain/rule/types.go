package rule

import (
	"errors"
	"strings"
)

// ConditionType selects how a Condition is evaluated.
type ConditionType string

const (
	ConditionTimeWindow  ConditionType = "TIME_WINDOW"
	ConditionVehicleType ConditionType = "VEHICLE_TYPE"
	ConditionSpeedLimit  ConditionType = "SPEED_LIMIT"
	ConditionDuration    ConditionType = "DURATION"
	ConditionFrequency   ConditionType = "FREQUENCY"
	ConditionCustom      ConditionType = "CUSTOM"
)

var ErrInvalidConditionType = errors.New("invalid condition type")

// ParseConditionType normalizes (uppercases+trims) and validates a condition type string.
func ParseConditionType(input string) (ConditionType, error) {
	ct := ConditionType(strings.ToUpper(strings.TrimSpace(input)))
	if ct.Valid() {
		return ct, nil
	}
	return "", ErrInvalidConditionType
}

// Valid reports whether ct is one of the allowed condition types.
func (ct ConditionType) Valid() bool {
	switch ct {
	case ConditionTimeWindow, ConditionVehicleType, ConditionSpeedLimit,
		ConditionDuration, ConditionFrequency, ConditionCustom:
		return true
	default:
		return false
	}
}

func (ct ConditionType) String() string { return string(ct) }

// Operator is the comparison applied by a Condition.
type Operator string

const (
	OpEquals      Operator = "EQUALS"
	OpNotEquals   Operator = "NOT_EQUALS"
	OpGreaterThan Operator = "GREATER_THAN"
	OpLessThan    Operator = "LESS_THAN"
	OpBetween     Operator = "BETWEEN"
	OpIn          Operator = "IN"
	OpNotIn       Operator = "NOT_IN"
)

var ErrInvalidOperator = errors.New("invalid condition operator")

// ParseOperator normalizes (uppercases+trims) and validates an operator string.
func ParseOperator(input string) (Operator, error) {
	op := Operator(strings.ToUpper(strings.TrimSpace(input)))
	if op.Valid() {
		return op, nil
	}
	return "", ErrInvalidOperator
}

// Valid reports whether op is one of the allowed operators.
func (op Operator) Valid() bool {
	switch op {
	case OpEquals, OpNotEquals, OpGreaterThan, OpLessThan, OpBetween, OpIn, OpNotIn:
		return true
	default:
		return false
	}
}

func (op Operator) String() string { return string(op) }

// ActionType selects the dispatch channel of an Action.
type ActionType string

const (
	ActionNotification ActionType = "NOTIFICATION"
	ActionAlert        ActionType = "ALERT"
	ActionLog          ActionType = "LOG"
	ActionWebhook      ActionType = "WEBHOOK"
	ActionEmail        ActionType = "EMAIL"
	ActionSMS          ActionType = "SMS"
	ActionCustom       ActionType = "CUSTOM"
)

var ErrInvalidActionType = errors.New("invalid action type")

// ParseActionType normalizes (uppercases+trims) and validates an action type string.
func ParseActionType(input string) (ActionType, error) {
	at := ActionType(strings.ToUpper(strings.TrimSpace(input)))
	if at.Valid() {
		return at, nil
	}
	return "", ErrInvalidActionType
}

// Valid reports whether at is one of the allowed action types.
func (at ActionType) Valid() bool {
	switch at {
	case ActionNotification, ActionAlert, ActionLog, ActionWebhook, ActionEmail, ActionSMS, ActionCustom:
		return true
	default:
		return false
	}
}

func (at ActionType) String() string { return string(at) }

// IsBroadcast reports whether the action is delivered through the notification hub.
func (at ActionType) IsBroadcast() bool {
	return at == ActionNotification || at == ActionAlert
}
