package engine

import (
	"context"
	"errors"
	"io"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"rule-engine-service/internal/models"
)

func testLogger() *logrus.Logger {
	logger := logrus.New()
	logger.SetOutput(io.Discard)
	return logger
}

// fakeRuleSource returns its rules verbatim so tests exercise the engine's own
// status and scope re-checks.
type fakeRuleSource struct {
	rules []models.Rule
	err   error
}

func (f *fakeRuleSource) GetActiveRulesForDevice(_ context.Context, _ string) ([]models.Rule, error) {
	if f.err != nil {
		return nil, f.err
	}
	return f.rules, nil
}

// memoryStore implements the trigger write as an in-memory check-and-set with
// the same at-most-once-per-window guarantee as the database gate.
type memoryStore struct {
	mu            sync.Mutex
	lastTriggered map[uuid.UUID]time.Time
	alerts        []models.Alert
	failures      int
}

func newMemoryStore() *memoryStore {
	return &memoryStore{lastTriggered: make(map[uuid.UUID]time.Time)}
}

func (m *memoryStore) TryTrigger(_ context.Context, alert *models.Alert, cooldown time.Duration, now time.Time) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.failures > 0 {
		m.failures--
		return false, errors.New("store unavailable")
	}
	if last, ok := m.lastTriggered[alert.RuleID]; ok && cooldown > 0 && now.Before(last.Add(cooldown)) {
		return false, nil
	}
	m.lastTriggered[alert.RuleID] = now
	m.alerts = append(m.alerts, *alert)
	return true, nil
}

type fakeDispatcher struct {
	mu       sync.Mutex
	alerts   []models.Alert
	channels [][]string
}

func (f *fakeDispatcher) Dispatch(alert models.Alert, channels []string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.alerts = append(f.alerts, alert)
	f.channels = append(f.channels, channels)
}

func activeRule(property string, op models.Operator, threshold float64) models.Rule {
	return models.Rule{
		ID:                   uuid.New(),
		Name:                 "test rule",
		Scope:                models.ScopeAllDevices,
		Property:             property,
		Operator:             op,
		Threshold:            threshold,
		Status:               models.RuleStatusActive,
		NotificationChannels: []string{"email"},
		CooldownMinutes:      15,
	}
}

func newTestEngine(rules *fakeRuleSource, store *memoryStore, disp *fakeDispatcher) *Engine {
	return New(rules, store, disp, testLogger(), 8, time.Second)
}

func TestThresholdBreachCreatesAlert(t *testing.T) {
	rule := activeRule(models.PropTemperature, models.OpGreaterThan, 50)
	store := newMemoryStore()
	disp := &fakeDispatcher{}
	eng := newTestEngine(&fakeRuleSource{rules: []models.Rule{rule}}, store, disp)

	out, err := eng.OnTelemetry(context.Background(), models.TelemetryEvent{
		DeviceID:    "device-001",
		Temperature: f64(55),
	})
	require.NoError(t, err)

	assert.Equal(t, 1, out.RulesEvaluated)
	assert.Equal(t, 1, out.RulesTriggered)
	assert.Equal(t, 0, out.RulesSuppressed)
	require.Len(t, store.alerts, 1)

	alert := store.alerts[0]
	assert.Equal(t, rule.ID, alert.RuleID)
	assert.Equal(t, "device-001", alert.DeviceID)
	assert.Equal(t, 55.0, alert.ActualValue)
	assert.Equal(t, 50.0, alert.ThresholdValue)
	assert.Equal(t, models.AlertStatusOpen, alert.Status)

	require.Len(t, disp.alerts, 1)
	assert.Equal(t, []string{"email"}, disp.channels[0])
}

func TestNoBreachNoAlert(t *testing.T) {
	rule := activeRule(models.PropVoltage, models.OpLessThan, 200)
	store := newMemoryStore()
	eng := newTestEngine(&fakeRuleSource{rules: []models.Rule{rule}}, store, &fakeDispatcher{})

	out, err := eng.OnTelemetry(context.Background(), models.TelemetryEvent{
		DeviceID: "device-001",
		Voltage:  f64(230),
	})
	require.NoError(t, err)

	assert.Equal(t, 1, out.RulesEvaluated)
	assert.Equal(t, 0, out.RulesTriggered)
	assert.Empty(t, store.alerts)
}

func TestCooldownSuppressesWithinWindow(t *testing.T) {
	rule := activeRule(models.PropTemperature, models.OpGreaterThan, 50)
	store := newMemoryStore()
	store.lastTriggered[rule.ID] = time.Now().UTC().Add(-5 * time.Minute)
	eng := newTestEngine(&fakeRuleSource{rules: []models.Rule{rule}}, store, &fakeDispatcher{})

	out, err := eng.OnTelemetry(context.Background(), models.TelemetryEvent{
		DeviceID:    "device-001",
		Temperature: f64(60),
	})
	require.NoError(t, err)

	assert.Equal(t, 0, out.RulesTriggered)
	assert.Equal(t, 1, out.RulesSuppressed)
	assert.Empty(t, store.alerts)
}

func TestCooldownGrantsAfterWindowExpires(t *testing.T) {
	rule := activeRule(models.PropTemperature, models.OpGreaterThan, 50)
	store := newMemoryStore()
	store.lastTriggered[rule.ID] = time.Now().UTC().Add(-16 * time.Minute)
	eng := newTestEngine(&fakeRuleSource{rules: []models.Rule{rule}}, store, &fakeDispatcher{})

	out, err := eng.OnTelemetry(context.Background(), models.TelemetryEvent{
		DeviceID:    "device-001",
		Temperature: f64(60),
	})
	require.NoError(t, err)

	assert.Equal(t, 1, out.RulesTriggered)
	assert.Len(t, store.alerts, 1)
}

func TestZeroCooldownAlwaysFires(t *testing.T) {
	rule := activeRule(models.PropTemperature, models.OpGreaterThan, 50)
	rule.CooldownMinutes = 0
	store := newMemoryStore()
	eng := newTestEngine(&fakeRuleSource{rules: []models.Rule{rule}}, store, &fakeDispatcher{})

	ev := models.TelemetryEvent{DeviceID: "device-001", Temperature: f64(60)}
	for i := 0; i < 3; i++ {
		out, err := eng.OnTelemetry(context.Background(), ev)
		require.NoError(t, err)
		assert.Equal(t, 1, out.RulesTriggered)
	}
	assert.Len(t, store.alerts, 3)
}

func TestReplayedEventSuppressed(t *testing.T) {
	rule := activeRule(models.PropTemperature, models.OpGreaterThan, 50)
	store := newMemoryStore()
	eng := newTestEngine(&fakeRuleSource{rules: []models.Rule{rule}}, store, &fakeDispatcher{})

	ev := models.TelemetryEvent{DeviceID: "device-001", Temperature: f64(60)}

	out, err := eng.OnTelemetry(context.Background(), ev)
	require.NoError(t, err)
	assert.Equal(t, 1, out.RulesTriggered)

	out, err = eng.OnTelemetry(context.Background(), ev)
	require.NoError(t, err)
	assert.Equal(t, 0, out.RulesTriggered)
	assert.Equal(t, 1, out.RulesSuppressed)
	assert.Len(t, store.alerts, 1)
}

func TestConcurrentEvaluationSingleGrant(t *testing.T) {
	rule := activeRule(models.PropTemperature, models.OpGreaterThan, 50)
	store := newMemoryStore()
	eng := newTestEngine(&fakeRuleSource{rules: []models.Rule{rule}}, store, &fakeDispatcher{})

	const n = 20
	ev := models.TelemetryEvent{DeviceID: "device-001", Temperature: f64(60)}

	var wg sync.WaitGroup
	var mu sync.Mutex
	triggered, suppressed := 0, 0
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			out, err := eng.OnTelemetry(context.Background(), ev)
			assert.NoError(t, err)
			mu.Lock()
			triggered += out.RulesTriggered
			suppressed += out.RulesSuppressed
			mu.Unlock()
		}()
	}
	wg.Wait()

	assert.Equal(t, 1, triggered)
	assert.Equal(t, n-1, suppressed)
	assert.Len(t, store.alerts, 1)
}

func TestPausedRuleNeverTriggers(t *testing.T) {
	rule := activeRule(models.PropTemperature, models.OpGreaterThan, 50)
	rule.Status = models.RuleStatusPaused
	store := newMemoryStore()
	eng := newTestEngine(&fakeRuleSource{rules: []models.Rule{rule}}, store, &fakeDispatcher{})

	out, err := eng.OnTelemetry(context.Background(), models.TelemetryEvent{
		DeviceID:    "device-001",
		Temperature: f64(99),
	})
	require.NoError(t, err)

	assert.Equal(t, 0, out.RulesTriggered)
	assert.Empty(t, store.alerts)
}

func TestScopedRuleIgnoresOtherDevices(t *testing.T) {
	rule := activeRule(models.PropTemperature, models.OpGreaterThan, 50)
	rule.Scope = models.ScopeSelectedDevices
	rule.DeviceIDs = []string{"device-002", "device-003"}
	store := newMemoryStore()
	eng := newTestEngine(&fakeRuleSource{rules: []models.Rule{rule}}, store, &fakeDispatcher{})

	out, err := eng.OnTelemetry(context.Background(), models.TelemetryEvent{
		DeviceID:    "device-001",
		Temperature: f64(99),
	})
	require.NoError(t, err)
	assert.Equal(t, 0, out.RulesTriggered)

	out, err = eng.OnTelemetry(context.Background(), models.TelemetryEvent{
		DeviceID:    "device-002",
		Temperature: f64(99),
	})
	require.NoError(t, err)
	assert.Equal(t, 1, out.RulesTriggered)
}

func TestMissingPropertyNeverMatches(t *testing.T) {
	rule := activeRule(models.PropTemperature, models.OpLessThan, 100)
	store := newMemoryStore()
	eng := newTestEngine(&fakeRuleSource{rules: []models.Rule{rule}}, store, &fakeDispatcher{})

	// Temperature is absent; a zero default would match "< 100".
	out, err := eng.OnTelemetry(context.Background(), models.TelemetryEvent{
		DeviceID: "device-001",
		Voltage:  f64(230),
	})
	require.NoError(t, err)

	assert.Equal(t, 0, out.RulesTriggered)
	assert.Equal(t, 1, out.RulesSkipped)
	assert.Empty(t, store.alerts)
}

func TestMalformedRuleDoesNotAffectSiblings(t *testing.T) {
	bad := activeRule(models.PropTemperature, models.Operator("between"), 50)
	good := activeRule(models.PropTemperature, models.OpGreaterThan, 50)
	store := newMemoryStore()
	eng := newTestEngine(&fakeRuleSource{rules: []models.Rule{bad, good}}, store, &fakeDispatcher{})

	out, err := eng.OnTelemetry(context.Background(), models.TelemetryEvent{
		DeviceID:    "device-001",
		Temperature: f64(60),
	})
	require.NoError(t, err)

	assert.Equal(t, 2, out.RulesEvaluated)
	assert.Equal(t, 1, out.RulesTriggered)
	assert.Equal(t, 1, out.RulesSkipped)
	require.Len(t, store.alerts, 1)
	assert.Equal(t, good.ID, store.alerts[0].RuleID)
}

func TestRuleSourceErrorIsReturned(t *testing.T) {
	eng := newTestEngine(&fakeRuleSource{err: errors.New("connection refused")}, newMemoryStore(), &fakeDispatcher{})

	_, err := eng.OnTelemetry(context.Background(), models.TelemetryEvent{
		DeviceID:    "device-001",
		Temperature: f64(60),
	})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "device-001")
}

func TestTriggerWriteRetriesTransientFailure(t *testing.T) {
	rule := activeRule(models.PropTemperature, models.OpGreaterThan, 50)
	store := newMemoryStore()
	store.failures = 2
	eng := newTestEngine(&fakeRuleSource{rules: []models.Rule{rule}}, store, &fakeDispatcher{})

	out, err := eng.OnTelemetry(context.Background(), models.TelemetryEvent{
		DeviceID:    "device-001",
		Temperature: f64(60),
	})
	require.NoError(t, err)

	assert.Equal(t, 1, out.RulesTriggered)
	assert.Len(t, store.alerts, 1)
}

func TestTriggerWriteExhaustedIsSkippedNotFatal(t *testing.T) {
	rule := activeRule(models.PropTemperature, models.OpGreaterThan, 50)
	store := newMemoryStore()
	store.failures = 10
	eng := newTestEngine(&fakeRuleSource{rules: []models.Rule{rule}}, store, &fakeDispatcher{})

	out, err := eng.OnTelemetry(context.Background(), models.TelemetryEvent{
		DeviceID:    "device-001",
		Temperature: f64(60),
	})
	require.NoError(t, err)

	assert.Equal(t, 0, out.RulesTriggered)
	assert.Equal(t, 1, out.RulesSkipped)
	assert.Empty(t, store.alerts)
}

func TestDeriveSeverity(t *testing.T) {
	tests := []struct {
		threshold float64
		actual    float64
		want      string
	}{
		{50, 55, models.SeverityLow},      // 10% deviation
		{50, 60, models.SeverityMedium},   // 20% deviation
		{50, 70, models.SeverityHigh},     // 40% deviation
		{50, 80, models.SeverityCritical}, // 60% deviation
		{50, 40, models.SeverityMedium},   // deviation is symmetric
		{0, 2, models.SeverityCritical},   // zero threshold uses absolute value
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, deriveSeverity(tt.threshold, tt.actual), "threshold=%g actual=%g", tt.threshold, tt.actual)
	}
}

func TestRenderMessage(t *testing.T) {
	rule := activeRule(models.PropTemperature, models.OpGreaterThan, 50)
	rule.Name = "Overheat"
	msg := renderMessage(rule, "device-001", 55)
	assert.Equal(t, "Rule 'Overheat' triggered for device device-001: temperature > 50 (actual: 55)", msg)
}
