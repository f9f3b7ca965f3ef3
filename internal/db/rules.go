package db

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"

	"rule-engine-service/internal/models"
)

const ruleColumns = `rule_id, rule_name, description, scope, device_ids, property, condition,
       threshold, status, notification_channels, cooldown_minutes, last_triggered_at,
       created_at, updated_at`

// CreateRule inserts a new rule. The caller is expected to have validated it.
func (d *DB) CreateRule(ctx context.Context, rule models.Rule) error {
	query := `
    INSERT INTO rules (
        rule_id, rule_name, description, scope, device_ids, property, condition,
        threshold, status, notification_channels, cooldown_minutes, created_at, updated_at
    ) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13)`

	_, err := d.Pool.Exec(ctx, query,
		rule.ID,
		rule.Name,
		rule.Description,
		rule.Scope,
		rule.DeviceIDs,
		rule.Property,
		rule.Operator,
		rule.Threshold,
		rule.Status,
		rule.NotificationChannels,
		rule.CooldownMinutes,
		rule.CreatedAt,
		rule.UpdatedAt,
	)
	if err != nil {
		return fmt.Errorf("failed to insert rule: %w", err)
	}
	return nil
}

// GetRule fetches a single rule by id.
func (d *DB) GetRule(ctx context.Context, ruleID uuid.UUID) (models.Rule, error) {
	query := `SELECT ` + ruleColumns + ` FROM rules WHERE rule_id = $1 AND deleted_at IS NULL`
	rule, err := scanRule(d.Pool.QueryRow(ctx, query, ruleID))
	if err != nil {
		if err == pgx.ErrNoRows {
			return models.Rule{}, fmt.Errorf("rule %s not found", ruleID)
		}
		return models.Rule{}, fmt.Errorf("failed to get rule %s: %w", ruleID, err)
	}
	return rule, nil
}

// ListRules returns rules with pagination and an optional status filter.
func (d *DB) ListRules(ctx context.Context, status string, limit, offset int) ([]models.Rule, int, error) {
	countQ := `SELECT COUNT(*) FROM rules WHERE deleted_at IS NULL`
	countArgs := []interface{}{}
	if status != "" {
		countQ += " AND status = $1"
		countArgs = append(countArgs, status)
	}

	var total int
	if err := d.Pool.QueryRow(ctx, countQ, countArgs...).Scan(&total); err != nil {
		return nil, 0, fmt.Errorf("failed to count rules: %w", err)
	}

	query := `SELECT ` + ruleColumns + ` FROM rules WHERE deleted_at IS NULL`
	args := []interface{}{}
	if status != "" {
		query += " AND status = $1 ORDER BY created_at DESC LIMIT $2 OFFSET $3"
		args = append(args, status, limit, offset)
	} else {
		query += " ORDER BY created_at DESC LIMIT $1 OFFSET $2"
		args = append(args, limit, offset)
	}

	rows, err := d.Pool.Query(ctx, query, args...)
	if err != nil {
		return nil, 0, fmt.Errorf("failed to list rules: %w", err)
	}
	defer rows.Close()

	var list []models.Rule
	for rows.Next() {
		rule, err := scanRule(rows)
		if err != nil {
			return nil, 0, fmt.Errorf("failed to scan rule: %w", err)
		}
		list = append(list, rule)
	}
	return list, total, nil
}

// GetActiveRulesForDevice returns every active rule whose scope covers the
// device: all-devices rules plus selected-devices rules that list it.
func (d *DB) GetActiveRulesForDevice(ctx context.Context, deviceID string) ([]models.Rule, error) {
	query := `SELECT ` + ruleColumns + `
    FROM rules
    WHERE status = $1 AND deleted_at IS NULL
      AND (scope = $2 OR $3 = ANY(device_ids))`

	rows, err := d.Pool.Query(ctx, query, models.RuleStatusActive, models.ScopeAllDevices, deviceID)
	if err != nil {
		return nil, fmt.Errorf("failed to get active rules for device %s: %w", deviceID, err)
	}
	defer rows.Close()

	var rules []models.Rule
	for rows.Next() {
		rule, err := scanRule(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan rule: %w", err)
		}
		rules = append(rules, rule)
	}
	return rules, nil
}

// UpdateRuleStatus moves a rule between active/paused/archived.
func (d *DB) UpdateRuleStatus(ctx context.Context, ruleID uuid.UUID, status models.RuleStatus) error {
	query := `UPDATE rules SET status = $1, updated_at = $2 WHERE rule_id = $3 AND deleted_at IS NULL`
	tag, err := d.Pool.Exec(ctx, query, status, time.Now().UTC(), ruleID)
	if err != nil {
		return fmt.Errorf("failed to update rule status: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("rule %s not found", ruleID)
	}
	return nil
}

// DeleteRule soft-deletes a rule and archives it.
func (d *DB) DeleteRule(ctx context.Context, ruleID uuid.UUID) error {
	query := `UPDATE rules SET deleted_at = $1, status = $2, updated_at = $1 WHERE rule_id = $3 AND deleted_at IS NULL`
	tag, err := d.Pool.Exec(ctx, query, time.Now().UTC(), models.RuleStatusArchived, ruleID)
	if err != nil {
		return fmt.Errorf("failed to delete rule: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("rule %s not found", ruleID)
	}
	return nil
}

func scanRule(row pgx.Row) (models.Rule, error) {
	var rule models.Rule
	err := row.Scan(
		&rule.ID,
		&rule.Name,
		&rule.Description,
		&rule.Scope,
		&rule.DeviceIDs,
		&rule.Property,
		&rule.Operator,
		&rule.Threshold,
		&rule.Status,
		&rule.NotificationChannels,
		&rule.CooldownMinutes,
		&rule.LastTriggeredAt,
		&rule.CreatedAt,
		&rule.UpdatedAt,
	)
	return rule, err
}
