package kafka

import (
	"context"
	"encoding/json"
	"errors"
	"sync"
	"time"

	"github.com/segmentio/kafka-go"
	"github.com/sirupsen/logrus"

	"rule-engine-service/internal/config"
	"rule-engine-service/internal/models"
)

// Evaluator is the engine entry point the consumer feeds.
type Evaluator interface {
	OnTelemetry(ctx context.Context, ev models.TelemetryEvent) (models.EvaluationOutcome, error)
}

// Consumer reads validated telemetry events from Kafka and runs them through
// the rule engine. Offsets are committed only after a successful evaluation
// pass, so an event the engine could not process (rule store unavailable) is
// redelivered.
type Consumer struct {
	reader *kafka.Reader
	engine Evaluator
	logger *logrus.Logger
}

func NewConsumer(cfg config.Config, engine Evaluator, logger *logrus.Logger) *Consumer {
	reader := kafka.NewReader(kafka.ReaderConfig{
		Brokers:  []string{cfg.Kafka.Broker},
		GroupID:  cfg.Kafka.GroupID,
		Topic:    cfg.Kafka.Topic,
		MinBytes: 1,
		MaxBytes: 10e6,
		MaxWait:  500 * time.Millisecond,
	})
	return &Consumer{reader: reader, engine: engine, logger: logger}
}

// Start runs the consume loop until ctx is cancelled.
func (c *Consumer) Start(ctx context.Context, wg *sync.WaitGroup) {
	wg.Add(1)
	go func() {
		defer wg.Done()
		c.logger.Info("Kafka consumer started")

		for {
			msg, err := c.reader.FetchMessage(ctx)
			if err != nil {
				if errors.Is(err, context.Canceled) || ctx.Err() != nil {
					c.logger.Info("Kafka consumer stopped")
					return
				}
				c.logger.Errorf("Fetch message failed: %v", err)
				time.Sleep(time.Second)
				continue
			}

			var ev models.TelemetryEvent
			if err := json.Unmarshal(msg.Value, &ev); err != nil {
				// Poison message: commit so it is not redelivered forever.
				c.logger.Errorf("Unmarshal telemetry failed: %v", err)
				c.commit(ctx, msg)
				continue
			}
			if ev.DeviceID == "" {
				c.logger.Error("Invalid telemetry message: missing device_id")
				c.commit(ctx, msg)
				continue
			}

			if _, err := c.engine.OnTelemetry(ctx, ev); err != nil {
				// Rule enumeration failed; leave the offset uncommitted so
				// the event is retried.
				c.logger.Errorf("Evaluation failed for device %s: %v", ev.DeviceID, err)
				time.Sleep(time.Second)
				continue
			}

			c.commit(ctx, msg)
		}
	}()
}

func (c *Consumer) commit(ctx context.Context, msg kafka.Message) {
	if err := c.reader.CommitMessages(ctx, msg); err != nil && ctx.Err() == nil {
		c.logger.Errorf("Commit offset failed: %v", err)
	}
}

func (c *Consumer) Close() error {
	return c.reader.Close()
}
