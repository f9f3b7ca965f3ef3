package models

import (
	"fmt"
	"time"

	"github.com/google/uuid"
)

// RuleStatus controls whether a rule participates in evaluation.
type RuleStatus string

const (
	RuleStatusActive   RuleStatus = "active"
	RuleStatusPaused   RuleStatus = "paused"
	RuleStatusArchived RuleStatus = "archived"
)

// RuleScope determines which devices a rule is a candidate for.
type RuleScope string

const (
	ScopeAllDevices      RuleScope = "all_devices"
	ScopeSelectedDevices RuleScope = "selected_devices"
)

// Operator is a threshold comparison operator.
type Operator string

const (
	OpGreaterThan    Operator = ">"
	OpLessThan       Operator = "<"
	OpGreaterOrEqual Operator = ">="
	OpLessOrEqual    Operator = "<="
	OpEqual          Operator = "="
	OpNotEqual       Operator = "!="
)

// KnownOperator reports whether op is one of the supported comparison operators.
func KnownOperator(op Operator) bool {
	switch op {
	case OpGreaterThan, OpLessThan, OpGreaterOrEqual, OpLessOrEqual, OpEqual, OpNotEqual:
		return true
	}
	return false
}

// Rule is a threshold condition over one telemetry property, scoped to one or
// more devices.
type Rule struct {
	ID                   uuid.UUID  `json:"rule_id"`
	Name                 string     `json:"rule_name"`
	Description          string     `json:"description,omitempty"`
	Scope                RuleScope  `json:"scope"`
	DeviceIDs            []string   `json:"device_ids"`
	Property             string     `json:"property"`
	Operator             Operator   `json:"condition"`
	Threshold            float64    `json:"threshold"`
	Status               RuleStatus `json:"status"`
	NotificationChannels []string   `json:"notification_channels"`
	CooldownMinutes      int        `json:"cooldown_minutes"`
	LastTriggeredAt      *time.Time `json:"last_triggered_at,omitempty"`
	CreatedAt            time.Time  `json:"created_at"`
	UpdatedAt            time.Time  `json:"updated_at"`
}

// Cooldown returns the rule's suppression window as a duration.
func (r Rule) Cooldown() time.Duration {
	return time.Duration(r.CooldownMinutes) * time.Minute
}

// AppliesTo reports whether the rule is a candidate for the given device.
func (r Rule) AppliesTo(deviceID string) bool {
	if r.Scope == ScopeAllDevices {
		return true
	}
	for _, id := range r.DeviceIDs {
		if id == deviceID {
			return true
		}
	}
	return false
}

// Validate checks rule configuration. It is called at creation time so that
// evaluation never encounters an operator or property it cannot handle.
func (r Rule) Validate() error {
	if r.Name == "" {
		return fmt.Errorf("rule_name is required")
	}
	if !KnownOperator(r.Operator) {
		return fmt.Errorf("unknown operator %q", r.Operator)
	}
	if r.Property == "" {
		return fmt.Errorf("property is required")
	}
	switch r.Scope {
	case ScopeAllDevices:
	case ScopeSelectedDevices:
		if len(r.DeviceIDs) == 0 {
			return fmt.Errorf("device_ids is required when scope is %q", ScopeSelectedDevices)
		}
	default:
		return fmt.Errorf("unknown scope %q", r.Scope)
	}
	if len(r.NotificationChannels) == 0 {
		return fmt.Errorf("at least one notification channel is required")
	}
	if r.CooldownMinutes < 0 {
		return fmt.Errorf("cooldown_minutes must not be negative")
	}
	return nil
}
