package db

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"

	"rule-engine-service/internal/models"
)

// CreateAttempt inserts a pending notification attempt record for an
// (alert, channel) pair.
func (d *DB) CreateAttempt(ctx context.Context, a models.NotificationAttempt) error {
	query := `
    INSERT INTO notification_attempts (
        id, alert_id, channel, recipient, status, attempts, last_error, created_at
    ) VALUES ($1, $2, $3, $4, $5, $6, $7, $8)`

	_, err := d.Pool.Exec(ctx, query,
		a.ID, a.AlertID, a.Channel, a.Recipient, a.Status, a.Attempts, a.LastError, a.CreatedAt)
	if err != nil {
		return fmt.Errorf("failed to create notification attempt: %w", err)
	}
	return nil
}

// UpdateAttempt finalizes a notification attempt record with its outcome.
func (d *DB) UpdateAttempt(ctx context.Context, id uuid.UUID, status string, attempts int, lastError string) error {
	query := `
    UPDATE notification_attempts
    SET status = $1, attempts = $2, last_error = $3,
        sent_at = CASE WHEN $1 = 'sent' THEN $4 ELSE sent_at END
    WHERE id = $5`

	tag, err := d.Pool.Exec(ctx, query, status, attempts, lastError, time.Now().UTC(), id)
	if err != nil {
		return fmt.Errorf("failed to update notification attempt: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("no notification attempt updated for id %s", id)
	}
	return nil
}

// GetAttemptsByAlert returns the delivery ledger for one alert.
func (d *DB) GetAttemptsByAlert(ctx context.Context, alertID uuid.UUID) ([]models.NotificationAttempt, error) {
	query := `
    SELECT id, alert_id, channel, recipient, status, attempts, last_error, created_at, sent_at
    FROM notification_attempts
    WHERE alert_id = $1
    ORDER BY created_at ASC`

	rows, err := d.Pool.Query(ctx, query, alertID)
	if err != nil {
		return nil, fmt.Errorf("failed to get attempts for alert %s: %w", alertID, err)
	}
	defer rows.Close()

	var list []models.NotificationAttempt
	for rows.Next() {
		var a models.NotificationAttempt
		err := rows.Scan(&a.ID, &a.AlertID, &a.Channel, &a.Recipient, &a.Status,
			&a.Attempts, &a.LastError, &a.CreatedAt, &a.SentAt)
		if err != nil {
			return nil, fmt.Errorf("failed to scan notification attempt: %w", err)
		}
		list = append(list, a)
	}
	return list, nil
}
