package models

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func validRule() Rule {
	return Rule{
		Name:                 "Overheat",
		Scope:                ScopeAllDevices,
		Property:             PropTemperature,
		Operator:             OpGreaterThan,
		Threshold:            50,
		Status:               RuleStatusActive,
		NotificationChannels: []string{"email"},
		CooldownMinutes:      15,
	}
}

func TestRuleValidate(t *testing.T) {
	assert.NoError(t, validRule().Validate())

	r := validRule()
	r.Name = ""
	assert.Error(t, r.Validate())

	r = validRule()
	r.Operator = "between"
	assert.Error(t, r.Validate())

	r = validRule()
	r.Property = ""
	assert.Error(t, r.Validate())

	r = validRule()
	r.Scope = ScopeSelectedDevices
	assert.Error(t, r.Validate(), "selected scope needs device ids")
	r.DeviceIDs = []string{"device-001"}
	assert.NoError(t, r.Validate())

	r = validRule()
	r.Scope = "some_devices"
	assert.Error(t, r.Validate())

	r = validRule()
	r.NotificationChannels = nil
	assert.Error(t, r.Validate())

	r = validRule()
	r.CooldownMinutes = -1
	assert.Error(t, r.Validate())

	r = validRule()
	r.CooldownMinutes = 0
	assert.NoError(t, r.Validate())
}

func TestRuleAppliesTo(t *testing.T) {
	r := validRule()
	assert.True(t, r.AppliesTo("device-001"))
	assert.True(t, r.AppliesTo("anything"))

	r.Scope = ScopeSelectedDevices
	r.DeviceIDs = []string{"device-001", "device-002"}
	assert.True(t, r.AppliesTo("device-002"))
	assert.False(t, r.AppliesTo("device-003"))
}

func TestRuleCooldown(t *testing.T) {
	r := validRule()
	assert.Equal(t, 15*time.Minute, r.Cooldown())
	r.CooldownMinutes = 0
	assert.Equal(t, time.Duration(0), r.Cooldown())
}
