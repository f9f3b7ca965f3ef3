package db

import (
	"context"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"

	"rule-engine-service/internal/models"
)

// CreateContactPoint inserts a delivery configuration for a channel.
func (d *DB) CreateContactPoint(ctx context.Context, cp models.ContactPoint) error {
	query := `
    INSERT INTO contact_points (id, name, type, configuration, status, created_at)
    VALUES ($1, $2, $3, $4, $5, $6)`

	_, err := d.Pool.Exec(ctx, query, cp.ID, cp.Name, cp.Type, cp.Configuration, cp.Status, cp.CreatedAt)
	if err != nil {
		return fmt.Errorf("failed to create contact point: %w", err)
	}
	return nil
}

// GetActiveContactPointByType returns the active contact point for a channel.
// The dispatcher uses this to resolve the recipient for each alert channel.
func (d *DB) GetActiveContactPointByType(ctx context.Context, channelType string) (models.ContactPoint, error) {
	query := `
    SELECT id, name, type, configuration, status, created_at
    FROM contact_points
    WHERE type = $1 AND status = 'active'
    ORDER BY created_at DESC
    LIMIT 1`

	var cp models.ContactPoint
	err := d.Pool.QueryRow(ctx, query, channelType).Scan(
		&cp.ID, &cp.Name, &cp.Type, &cp.Configuration, &cp.Status, &cp.CreatedAt)
	if err != nil {
		if err == pgx.ErrNoRows {
			return models.ContactPoint{}, fmt.Errorf("no active contact point for channel %s", channelType)
		}
		return models.ContactPoint{}, fmt.Errorf("failed to get contact point for channel %s: %w", channelType, err)
	}
	return cp, nil
}

// ListContactPoints returns all contact points.
func (d *DB) ListContactPoints(ctx context.Context) ([]models.ContactPoint, error) {
	rows, err := d.Pool.Query(ctx, `
    SELECT id, name, type, configuration, status, created_at
    FROM contact_points
    ORDER BY created_at DESC`)
	if err != nil {
		return nil, fmt.Errorf("failed to list contact points: %w", err)
	}
	defer rows.Close()

	var list []models.ContactPoint
	for rows.Next() {
		var cp models.ContactPoint
		if err := rows.Scan(&cp.ID, &cp.Name, &cp.Type, &cp.Configuration, &cp.Status, &cp.CreatedAt); err != nil {
			return nil, fmt.Errorf("failed to scan contact point: %w", err)
		}
		list = append(list, cp)
	}
	return list, nil
}

// DeleteContactPoint removes a contact point.
func (d *DB) DeleteContactPoint(ctx context.Context, id uuid.UUID) error {
	tag, err := d.Pool.Exec(ctx, `DELETE FROM contact_points WHERE id = $1`, id)
	if err != nil {
		return fmt.Errorf("failed to delete contact point: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("contact point %s not found", id)
	}
	return nil
}
