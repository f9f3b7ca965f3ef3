package db

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"

	"rule-engine-service/internal/models"
)

const alertColumns = `alert_id, rule_id, device_id, severity, message, actual_value,
       threshold_value, status, acknowledged_by, acknowledged_at, resolved_at, created_at`

// TryTrigger atomically advances a rule's cooldown and records the alert in a
// single transaction. The conditional UPDATE is the cooldown gate: the row
// lock it takes serializes concurrent evaluations of the same rule, so two
// callers inside one window can never both be granted. Returns false when the
// rule is still inside its cooldown (suppression is a normal outcome, not an
// error).
func (d *DB) TryTrigger(ctx context.Context, alert *models.Alert, cooldown time.Duration, now time.Time) (bool, error) {
	tx, err := d.Pool.Begin(ctx)
	if err != nil {
		return false, fmt.Errorf("failed to begin trigger tx: %w", err)
	}
	defer tx.Rollback(ctx)

	gate := `
    UPDATE rules
    SET last_triggered_at = $2, updated_at = $2
    WHERE rule_id = $1 AND status = $3 AND deleted_at IS NULL
      AND (last_triggered_at IS NULL OR last_triggered_at <= $4)`

	tag, err := tx.Exec(ctx, gate, alert.RuleID, now, models.RuleStatusActive, now.Add(-cooldown))
	if err != nil {
		return false, fmt.Errorf("failed to advance cooldown for rule %s: %w", alert.RuleID, err)
	}
	if tag.RowsAffected() == 0 {
		return false, nil
	}

	insert := `
    INSERT INTO alerts (
        alert_id, rule_id, device_id, severity, message, actual_value,
        threshold_value, status, created_at
    ) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
    ON CONFLICT (alert_id) DO NOTHING`

	_, err = tx.Exec(ctx, insert,
		alert.ID,
		alert.RuleID,
		alert.DeviceID,
		alert.Severity,
		alert.Message,
		alert.ActualValue,
		alert.ThresholdValue,
		alert.Status,
		alert.CreatedAt,
	)
	if err != nil {
		return false, fmt.Errorf("failed to insert alert: %w", err)
	}

	if err := tx.Commit(ctx); err != nil {
		return false, fmt.Errorf("failed to commit trigger tx: %w", err)
	}
	return true, nil
}

// GetAlert fetches a single alert by id.
func (d *DB) GetAlert(ctx context.Context, alertID uuid.UUID) (models.Alert, error) {
	query := `SELECT ` + alertColumns + ` FROM alerts WHERE alert_id = $1`
	alert, err := scanAlert(d.Pool.QueryRow(ctx, query, alertID))
	if err != nil {
		if err == pgx.ErrNoRows {
			return models.Alert{}, fmt.Errorf("alert %s not found", alertID)
		}
		return models.Alert{}, fmt.Errorf("failed to get alert %s: %w", alertID, err)
	}
	return alert, nil
}

// ListAlerts returns alerts with pagination and optional device/rule/status filters.
func (d *DB) ListAlerts(ctx context.Context, deviceID string, ruleID *uuid.UUID, status string, limit, offset int) ([]models.Alert, int, error) {
	where := " WHERE 1=1"
	args := []interface{}{}
	if deviceID != "" {
		args = append(args, deviceID)
		where += fmt.Sprintf(" AND device_id = $%d", len(args))
	}
	if ruleID != nil {
		args = append(args, *ruleID)
		where += fmt.Sprintf(" AND rule_id = $%d", len(args))
	}
	if status != "" {
		args = append(args, status)
		where += fmt.Sprintf(" AND status = $%d", len(args))
	}

	var total int
	if err := d.Pool.QueryRow(ctx, "SELECT COUNT(*) FROM alerts"+where, args...).Scan(&total); err != nil {
		return nil, 0, fmt.Errorf("failed to count alerts: %w", err)
	}

	args = append(args, limit, offset)
	query := fmt.Sprintf("SELECT %s FROM alerts%s ORDER BY created_at DESC LIMIT $%d OFFSET $%d",
		alertColumns, where, len(args)-1, len(args))

	rows, err := d.Pool.Query(ctx, query, args...)
	if err != nil {
		return nil, 0, fmt.Errorf("failed to list alerts: %w", err)
	}
	defer rows.Close()

	var list []models.Alert
	for rows.Next() {
		alert, err := scanAlert(rows)
		if err != nil {
			return nil, 0, fmt.Errorf("failed to scan alert: %w", err)
		}
		list = append(list, alert)
	}
	return list, total, nil
}

// AcknowledgeAlert marks an open alert as acknowledged by an operator.
func (d *DB) AcknowledgeAlert(ctx context.Context, alertID uuid.UUID, acknowledgedBy string) (models.Alert, error) {
	query := `
    UPDATE alerts
    SET status = $1, acknowledged_by = $2, acknowledged_at = $3
    WHERE alert_id = $4 AND status = $5
    RETURNING ` + alertColumns

	alert, err := scanAlert(d.Pool.QueryRow(ctx, query,
		models.AlertStatusAcknowledged, acknowledgedBy, time.Now().UTC(), alertID, models.AlertStatusOpen))
	if err != nil {
		if err == pgx.ErrNoRows {
			return models.Alert{}, fmt.Errorf("alert %s not found or not open", alertID)
		}
		return models.Alert{}, fmt.Errorf("failed to acknowledge alert %s: %w", alertID, err)
	}
	return alert, nil
}

// ResolveAlert marks an open or acknowledged alert as resolved.
func (d *DB) ResolveAlert(ctx context.Context, alertID uuid.UUID) (models.Alert, error) {
	query := `
    UPDATE alerts
    SET status = $1, resolved_at = $2
    WHERE alert_id = $3 AND status != $1
    RETURNING ` + alertColumns

	alert, err := scanAlert(d.Pool.QueryRow(ctx, query,
		models.AlertStatusResolved, time.Now().UTC(), alertID))
	if err != nil {
		if err == pgx.ErrNoRows {
			return models.Alert{}, fmt.Errorf("alert %s not found or already resolved", alertID)
		}
		return models.Alert{}, fmt.Errorf("failed to resolve alert %s: %w", alertID, err)
	}
	return alert, nil
}

func scanAlert(row pgx.Row) (models.Alert, error) {
	var alert models.Alert
	err := row.Scan(
		&alert.ID,
		&alert.RuleID,
		&alert.DeviceID,
		&alert.Severity,
		&alert.Message,
		&alert.ActualValue,
		&alert.ThresholdValue,
		&alert.Status,
		&alert.AcknowledgedBy,
		&alert.AcknowledgedAt,
		&alert.ResolvedAt,
		&alert.CreatedAt,
	)
	return alert, err
}
