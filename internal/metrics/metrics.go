package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// Evaluation metrics
	EventsEvaluated = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "rule_engine_events_evaluated_total",
			Help: "Total number of telemetry events run through the rule engine",
		},
	)

	EvaluationDuration = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "rule_engine_evaluation_duration_seconds",
			Help:    "Latency of one telemetry event evaluation pass",
			Buckets: []float64{.001, .005, .01, .025, .05, .1, .25, .5, 1, 2.5, 5},
		},
	)

	RulesTriggered = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "rule_engine_rules_triggered_total",
			Help: "Total number of rule triggers (alerts created)",
		},
	)

	RulesSuppressed = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "rule_engine_rules_suppressed_total",
			Help: "Total number of triggers suppressed by a cooldown window",
		},
	)

	EvaluationErrors = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "rule_engine_evaluation_errors_total",
			Help: "Total number of per-rule evaluation errors",
		},
		[]string{"kind"}, // malformed_rule, store_error
	)

	// Notification metrics
	NotificationsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "rule_engine_notifications_total",
			Help: "Total number of notification dispatch outcomes",
		},
		[]string{"channel", "status"}, // status: sent, failed, skipped
	)

	NotificationQueueSize = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "rule_engine_notification_queue_size",
			Help: "Current size of the notification dispatch queue",
		},
	)

	BreakerOpen = promauto.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "rule_engine_breaker_open",
			Help: "Whether the circuit breaker for a channel is open (1) or closed (0)",
		},
		[]string{"channel"},
	)
)
