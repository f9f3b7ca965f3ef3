package engine

import (
	"context"
	"fmt"
	"math"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"

	"rule-engine-service/internal/metrics"
	"rule-engine-service/internal/models"
	"rule-engine-service/internal/utils"
)

// RuleSource supplies the set of active rules applicable to a device.
type RuleSource interface {
	GetActiveRulesForDevice(ctx context.Context, deviceID string) ([]models.Rule, error)
}

// TriggerStore persists a trigger decision: it must advance the rule's
// cooldown and record the alert atomically, granting at most once per
// cooldown window even under concurrent callers.
type TriggerStore interface {
	TryTrigger(ctx context.Context, alert *models.Alert, cooldown time.Duration, now time.Time) (bool, error)
}

// Dispatcher receives triggered alerts for delivery. Implementations must not
// block the caller; delivery outcome never affects the alert.
type Dispatcher interface {
	Dispatch(alert models.Alert, channels []string)
}

// Engine evaluates telemetry events against the active rule set.
type Engine struct {
	rules         RuleSource
	store         TriggerStore
	dispatcher    Dispatcher
	logger        *logrus.Logger
	maxConcurrent int
	storeTimeout  time.Duration
}

// New constructs an Engine. maxConcurrent bounds how many rules of a single
// event are evaluated in parallel.
func New(rules RuleSource, store TriggerStore, dispatcher Dispatcher, logger *logrus.Logger, maxConcurrent int, storeTimeout time.Duration) *Engine {
	if maxConcurrent <= 0 {
		maxConcurrent = 8
	}
	if storeTimeout <= 0 {
		storeTimeout = 5 * time.Second
	}
	return &Engine{
		rules:         rules,
		store:         store,
		dispatcher:    dispatcher,
		logger:        logger,
		maxConcurrent: maxConcurrent,
		storeTimeout:  storeTimeout,
	}
}

type ruleResult int

const (
	resultNoMatch ruleResult = iota
	resultSkipped
	resultSuppressed
	resultTriggered
	resultError
)

// OnTelemetry evaluates one telemetry event against every applicable rule.
// Rules are evaluated independently; a malformed rule or a failed trigger
// write is logged and skipped without affecting sibling rules. The only
// overall failure is being unable to enumerate candidate rules, which the
// caller may retry.
func (e *Engine) OnTelemetry(ctx context.Context, ev models.TelemetryEvent) (models.EvaluationOutcome, error) {
	start := time.Now()
	// Single wall-clock timestamp for the whole pass. Cooldown windows are
	// measured against processing time, not event time, so replayed or
	// backfilled telemetry cannot reopen a stale window.
	now := start.UTC()

	outcome := models.EvaluationOutcome{DeviceID: ev.DeviceID, EvaluatedAt: now}

	rules, err := e.rules.GetActiveRulesForDevice(ctx, ev.DeviceID)
	if err != nil {
		metrics.EvaluationErrors.WithLabelValues("store_error").Inc()
		return outcome, fmt.Errorf("failed to enumerate rules for device %s: %w", ev.DeviceID, err)
	}
	outcome.RulesEvaluated = len(rules)
	if len(rules) == 0 {
		e.logger.Debugf("No active rules for device %s", ev.DeviceID)
		return outcome, nil
	}

	var mu sync.Mutex
	var wg sync.WaitGroup
	sem := make(chan struct{}, e.maxConcurrent)

	for _, rule := range rules {
		wg.Add(1)
		sem <- struct{}{}
		go func(rule models.Rule) {
			defer wg.Done()
			defer func() { <-sem }()

			res, alert := e.evaluateRule(ctx, rule, ev, now)

			mu.Lock()
			defer mu.Unlock()
			switch res {
			case resultTriggered:
				outcome.RulesTriggered++
				outcome.Alerts = append(outcome.Alerts, *alert)
			case resultSuppressed:
				outcome.RulesSuppressed++
			case resultSkipped, resultError:
				outcome.RulesSkipped++
			}
		}(rule)
	}
	wg.Wait()

	metrics.EventsEvaluated.Inc()
	metrics.EvaluationDuration.Observe(time.Since(start).Seconds())
	metrics.RulesTriggered.Add(float64(outcome.RulesTriggered))
	metrics.RulesSuppressed.Add(float64(outcome.RulesSuppressed))

	e.logger.WithFields(logrus.Fields{
		"device_id":        ev.DeviceID,
		"rules_evaluated":  outcome.RulesEvaluated,
		"rules_triggered":  outcome.RulesTriggered,
		"rules_suppressed": outcome.RulesSuppressed,
	}).Info("Rule evaluation completed")

	return outcome, nil
}

// evaluateRule runs one rule against one event. Every exit path other than
// resultTriggered leaves no trace in storage.
func (e *Engine) evaluateRule(ctx context.Context, rule models.Rule, ev models.TelemetryEvent, now time.Time) (ruleResult, *models.Alert) {
	// Inactive rules never trigger. The rule source filters these already;
	// re-check so a stale read cannot fire a paused rule.
	if rule.Status != models.RuleStatusActive || !rule.AppliesTo(ev.DeviceID) {
		return resultSkipped, nil
	}

	// Malformed rules are a configuration error: skip this rule, keep the event.
	if !models.KnownOperator(rule.Operator) {
		metrics.EvaluationErrors.WithLabelValues("malformed_rule").Inc()
		e.logger.Errorf("Rule %s has unknown operator %q, skipping", rule.ID, rule.Operator)
		return resultSkipped, nil
	}

	// Missing property is fail-closed: the rule cannot match this event.
	actual, ok := Extract(ev, rule.Property)
	if !ok {
		return resultSkipped, nil
	}

	if !Evaluate(actual, rule.Operator, rule.Threshold) {
		return resultNoMatch, nil
	}

	alert := &models.Alert{
		ID:             uuid.New(),
		RuleID:         rule.ID,
		DeviceID:       ev.DeviceID,
		Severity:       deriveSeverity(rule.Threshold, actual),
		Message:        renderMessage(rule, ev.DeviceID, actual),
		ActualValue:    actual,
		ThresholdValue: rule.Threshold,
		Status:         models.AlertStatusOpen,
		CreatedAt:      now,
	}

	// The trigger write is the cooldown gate and the alert record in one
	// atomic step, keyed by a stable alert id so a retried write cannot
	// double-record. A write that still fails after retries is escalated,
	// not silently dropped.
	var granted bool
	err := utils.Retry(e.logger, 3, 200*time.Millisecond, func() error {
		tctx, cancel := context.WithTimeout(ctx, e.storeTimeout)
		defer cancel()
		var terr error
		granted, terr = e.store.TryTrigger(tctx, alert, rule.Cooldown(), now)
		return terr
	})
	if err != nil {
		metrics.EvaluationErrors.WithLabelValues("store_error").Inc()
		e.logger.Errorf("Trigger write failed for rule %s on device %s: %v", rule.ID, ev.DeviceID, err)
		return resultError, nil
	}
	if !granted {
		e.logger.Debugf("Rule %s suppressed by cooldown (%d minutes)", rule.ID, rule.CooldownMinutes)
		return resultSuppressed, nil
	}

	e.logger.WithFields(logrus.Fields{
		"alert_id":  alert.ID,
		"rule_id":   rule.ID,
		"device_id": ev.DeviceID,
		"severity":  alert.Severity,
	}).Info("Alert created")

	if e.dispatcher != nil {
		e.dispatcher.Dispatch(*alert, rule.NotificationChannels)
	}
	return resultTriggered, alert
}

// deriveSeverity grades an alert by how far the actual value deviates from
// the threshold, relative to the threshold.
func deriveSeverity(threshold, actual float64) string {
	var deviation float64
	if threshold == 0 {
		deviation = math.Abs(actual)
	} else {
		deviation = math.Abs((actual - threshold) / threshold)
	}
	switch {
	case deviation > 0.5:
		return models.SeverityCritical
	case deviation > 0.25:
		return models.SeverityHigh
	case deviation > 0.1:
		return models.SeverityMedium
	default:
		return models.SeverityLow
	}
}

func renderMessage(rule models.Rule, deviceID string, actual float64) string {
	return fmt.Sprintf("Rule '%s' triggered for device %s: %s %s %g (actual: %g)",
		rule.Name, deviceID, rule.Property, rule.Operator, rule.Threshold, actual)
}
