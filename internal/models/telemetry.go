package models

import "time"

// Telemetry property names understood by the rule engine. These match the
// fields produced by the ingestion pipeline; rules referencing anything else
// are rejected at creation time unless the value arrives in Values.
const (
	PropVoltage     = "voltage"
	PropCurrent     = "current"
	PropPower       = "power"
	PropTemperature = "temperature"
)

// TelemetryEvent is one validated reading from a device. The fixed fields
// mirror the telemetry schema; Values carries any additional named metrics.
type TelemetryEvent struct {
	DeviceID    string             `json:"device_id"`
	Timestamp   time.Time          `json:"timestamp"`
	Voltage     *float64           `json:"voltage,omitempty"`
	Current     *float64           `json:"current,omitempty"`
	Power       *float64           `json:"power,omitempty"`
	Temperature *float64           `json:"temperature,omitempty"`
	Values      map[string]float64 `json:"values,omitempty"`
}

// EvaluationOutcome summarizes one pass of a telemetry event through the
// rule engine.
type EvaluationOutcome struct {
	DeviceID        string    `json:"device_id"`
	EvaluatedAt     time.Time `json:"evaluated_at"`
	RulesEvaluated  int       `json:"rules_evaluated"`
	RulesTriggered  int       `json:"rules_triggered"`
	RulesSuppressed int       `json:"rules_suppressed"`
	RulesSkipped    int       `json:"rules_skipped"`
	Alerts          []Alert   `json:"triggered_alerts"`
}
