package models

import (
	"time"

	"github.com/google/uuid"
)

// Alert status lifecycle: open -> acknowledged -> resolved, or open -> resolved.
const (
	AlertStatusOpen         = "open"
	AlertStatusAcknowledged = "acknowledged"
	AlertStatusResolved     = "resolved"
)

// Alert severities, derived from how far the actual value deviates from the
// rule threshold.
const (
	SeverityLow      = "low"
	SeverityMedium   = "medium"
	SeverityHigh     = "high"
	SeverityCritical = "critical"
)

// Alert is the durable record of one rule trigger against one telemetry event.
// The engine only ever creates alerts; acknowledge/resolve transitions come
// from operator actions through the API.
type Alert struct {
	ID             uuid.UUID  `json:"alert_id"`
	RuleID         uuid.UUID  `json:"rule_id"`
	DeviceID       string     `json:"device_id"`
	Severity       string     `json:"severity"`
	Message        string     `json:"message"`
	ActualValue    float64    `json:"actual_value"`
	ThresholdValue float64    `json:"threshold_value"`
	Status         string     `json:"status"`
	AcknowledgedBy *string    `json:"acknowledged_by,omitempty"`
	AcknowledgedAt *time.Time `json:"acknowledged_at,omitempty"`
	ResolvedAt     *time.Time `json:"resolved_at,omitempty"`
	CreatedAt      time.Time  `json:"created_at"`
}
