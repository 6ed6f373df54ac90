package postgres

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"geofence-events/internal/domain/rule"
	"geofence-events/internal/ports"

	"github.com/jackc/pgx/v5"
)

// RuleRepo loads rule definitions from geofence_rules. Conditions and actions are jsonb arrays.
type RuleRepo struct {
	uow ports.UnitOfWork
}

// NewRuleRepo constructs a new RuleRepo.
func NewRuleRepo(uow ports.UnitOfWork) ports.RuleRepository {
	return &RuleRepo{uow: uow}
}

// conditionRow is the jsonb shape of one condition.
type conditionRow struct {
	Type           string `json:"type"`
	Operator       string `json:"operator"`
	Field          string `json:"field"`
	Value          any    `json:"value"`
	SecondaryValue any    `json:"secondary_value"`
}

// actionRow is the jsonb shape of one action; delay is stored in milliseconds.
type actionRow struct {
	Type     string         `json:"type"`
	Target   string         `json:"target"`
	Message  string         `json:"message"`
	DelayMs  int64          `json:"delay_ms"`
	Metadata map[string]any `json:"metadata"`
}

// ListRules returns every rule, active or not, oldest first.
func (repo *RuleRepo) ListRules(ctx context.Context) ([]*rule.Rule, error) {
	var rules []*rule.Rule
	err := repo.uow.WithinTx(ReadOnly(ctx), func(ctx context.Context) error {
		tx, err := MustTxFromContext(ctx)
		if err != nil {
			return err
		}

		rows, err := tx.Query(ctx, `
			SELECT
				id, organization_id, name,
				COALESCE(zone_id, ''), COALESCE(park_id, ''),
				conditions, actions,
				is_active, priority, COALESCE(cooldown_seconds, 0),
				created_at, updated_at
			FROM geofence_rules
			ORDER BY created_at, id
		`)
		if err != nil {
			return fmt.Errorf("query rules: %w", err)
		}

		rules, err = pgx.CollectRows(rows, scanRule)
		return err
	})
	if err != nil {
		return nil, err
	}
	return rules, nil
}

func scanRule(row pgx.CollectableRow) (*rule.Rule, error) {
	var (
		r               rule.Rule
		conditions      []byte
		actions         []byte
		cooldownSeconds int
	)
	if err := row.Scan(
		&r.ID, &r.OrganizationID, &r.Name,
		&r.ZoneID, &r.ParkID,
		&conditions, &actions,
		&r.IsActive, &r.Priority, &cooldownSeconds,
		&r.CreatedAt, &r.UpdatedAt,
	); err != nil {
		return nil, err
	}

	var err error
	if r.Conditions, err = decodeConditions(conditions); err != nil {
		return nil, fmt.Errorf("rule %s: %w", r.ID, err)
	}
	if r.Actions, err = decodeActions(actions); err != nil {
		return nil, fmt.Errorf("rule %s: %w", r.ID, err)
	}
	r.Cooldown = time.Duration(cooldownSeconds) * time.Second
	return &r, nil
}

// decodeConditions parses the jsonb array. Type and operator are upper-cased;
// unknown values are left for rule.Validate to reject.
func decodeConditions(raw []byte) ([]rule.Condition, error) {
	if len(raw) == 0 {
		return nil, nil
	}
	var rows []conditionRow
	if err := json.Unmarshal(raw, &rows); err != nil {
		return nil, fmt.Errorf("decode conditions: %w", err)
	}
	out := make([]rule.Condition, 0, len(rows))
	for _, c := range rows {
		out = append(out, rule.Condition{
			Type:           rule.ConditionType(normalize(c.Type)),
			Operator:       rule.Operator(normalize(c.Operator)),
			Field:          c.Field,
			Value:          c.Value,
			SecondaryValue: c.SecondaryValue,
		})
	}
	return out, nil
}

func decodeActions(raw []byte) ([]rule.Action, error) {
	if len(raw) == 0 {
		return nil, nil
	}
	var rows []actionRow
	if err := json.Unmarshal(raw, &rows); err != nil {
		return nil, fmt.Errorf("decode actions: %w", err)
	}
	out := make([]rule.Action, 0, len(rows))
	for _, a := range rows {
		out = append(out, rule.Action{
			Type:     rule.ActionType(normalize(a.Type)),
			Target:   a.Target,
			Message:  a.Message,
			Delay:    time.Duration(a.DelayMs) * time.Millisecond,
			Metadata: a.Metadata,
		})
	}
	return out, nil
}

func normalize(s string) string {
	return strings.ToUpper(strings.TrimSpace(s))
}
