package engine

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"rule-engine-service/internal/models"
)

func TestEvaluateOperators(t *testing.T) {
	tests := []struct {
		name      string
		actual    float64
		op        models.Operator
		threshold float64
		want      bool
	}{
		{"greater than true", 55, models.OpGreaterThan, 50, true},
		{"greater than false", 50, models.OpGreaterThan, 50, false},
		{"less than true", 180, models.OpLessThan, 200, true},
		{"less than false", 230, models.OpLessThan, 200, false},
		{"greater or equal at boundary", 50, models.OpGreaterOrEqual, 50, true},
		{"greater or equal below", 49.9, models.OpGreaterOrEqual, 50, false},
		{"less or equal at boundary", 50, models.OpLessOrEqual, 50, true},
		{"less or equal above", 50.1, models.OpLessOrEqual, 50, false},
		{"equal exact", 42, models.OpEqual, 42, true},
		{"equal different", 42, models.OpEqual, 43, false},
		{"not equal true", 42, models.OpNotEqual, 43, true},
		{"not equal false", 42, models.OpNotEqual, 42, false},
		{"unknown operator", 42, models.Operator("~"), 42, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, Evaluate(tt.actual, tt.op, tt.threshold))
		})
	}
}

func TestEqualityTolerance(t *testing.T) {
	// Values differing by less than the relative tolerance compare equal.
	assert.True(t, Evaluate(100.0000001, models.OpEqual, 100))
	assert.False(t, Evaluate(100.001, models.OpEqual, 100))
	assert.False(t, Evaluate(100.0000001, models.OpNotEqual, 100))
	assert.True(t, Evaluate(100.001, models.OpNotEqual, 100))
	// Near-zero values use the absolute floor.
	assert.True(t, Evaluate(1e-12, models.OpEqual, 0))
}
