package engine

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"rule-engine-service/internal/models"
)

func f64(v float64) *float64 { return &v }

func TestExtractFixedFields(t *testing.T) {
	ev := models.TelemetryEvent{
		DeviceID:    "device-001",
		Voltage:     f64(231.5),
		Current:     f64(4.2),
		Power:       f64(972.3),
		Temperature: f64(55),
	}

	for property, want := range map[string]float64{
		models.PropVoltage:     231.5,
		models.PropCurrent:     4.2,
		models.PropPower:       972.3,
		models.PropTemperature: 55,
	} {
		got, ok := Extract(ev, property)
		assert.True(t, ok, property)
		assert.Equal(t, want, got, property)
	}
}

func TestExtractValuesFallback(t *testing.T) {
	ev := models.TelemetryEvent{
		DeviceID: "device-001",
		Values:   map[string]float64{"humidity": 61.2},
	}

	got, ok := Extract(ev, "humidity")
	assert.True(t, ok)
	assert.Equal(t, 61.2, got)
}

func TestExtractMissingProperty(t *testing.T) {
	ev := models.TelemetryEvent{DeviceID: "device-001", Voltage: f64(230)}

	_, ok := Extract(ev, models.PropTemperature)
	assert.False(t, ok)

	_, ok = Extract(ev, "humidity")
	assert.False(t, ok)
}

func TestKnownProperty(t *testing.T) {
	assert.True(t, KnownProperty(models.PropTemperature))
	assert.True(t, KnownProperty(models.PropVoltage))
	assert.False(t, KnownProperty("humidity"))
	assert.False(t, KnownProperty(""))
}
