package engine

import (
	"math"

	"rule-engine-service/internal/models"
)

// Tolerances for the = and != operators. Telemetry values and thresholds go
// through float64 JSON round-trips, so exact comparison would make equality
// rules flap.
const (
	relTolerance = 1e-6
	absTolerance = 1e-9
)

func nearlyEqual(a, b float64) bool {
	diff := math.Abs(a - b)
	if diff <= absTolerance {
		return true
	}
	return diff <= relTolerance*math.Max(math.Abs(a), math.Abs(b))
}

// Evaluate applies a comparison operator to an actual value and a threshold.
// Pure function, no I/O. An unknown operator evaluates to false; the engine
// validates operators before calling and rule creation rejects them outright.
func Evaluate(actual float64, op models.Operator, threshold float64) bool {
	switch op {
	case models.OpGreaterThan:
		return actual > threshold
	case models.OpLessThan:
		return actual < threshold
	case models.OpGreaterOrEqual:
		return actual >= threshold || nearlyEqual(actual, threshold)
	case models.OpLessOrEqual:
		return actual <= threshold || nearlyEqual(actual, threshold)
	case models.OpEqual:
		return nearlyEqual(actual, threshold)
	case models.OpNotEqual:
		return !nearlyEqual(actual, threshold)
	}
	return false
}
