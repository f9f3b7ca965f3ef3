package engine

import "rule-engine-service/internal/models"

// KnownProperty reports whether a property name is part of the fixed telemetry
// schema. Rule creation validates against this so evaluation-time lookups
// cannot reference an undefined property.
func KnownProperty(name string) bool {
	switch name {
	case models.PropVoltage, models.PropCurrent, models.PropPower, models.PropTemperature:
		return true
	}
	return false
}

// Extract maps a telemetry event to the numeric value named by property.
// The second return is false when the event does not carry the property; the
// caller must treat that as "rule does not match", never as zero.
func Extract(ev models.TelemetryEvent, property string) (float64, bool) {
	switch property {
	case models.PropVoltage:
		if ev.Voltage != nil {
			return *ev.Voltage, true
		}
	case models.PropCurrent:
		if ev.Current != nil {
			return *ev.Current, true
		}
	case models.PropPower:
		if ev.Power != nil {
			return *ev.Power, true
		}
	case models.PropTemperature:
		if ev.Temperature != nil {
			return *ev.Temperature, true
		}
	}
	v, ok := ev.Values[property]
	return v, ok
}
