package notifier

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/google/uuid"
	"github.com/sirupsen/logrus"
	"github.com/sony/gobreaker"

	"rule-engine-service/internal/config"
	"rule-engine-service/internal/metrics"
	"rule-engine-service/internal/models"
	"rule-engine-service/internal/providers"
)

// SendFunc delivers one rendered notification through a channel.
type SendFunc func(ctx context.Context, cp models.ContactPoint, subject, body string) error

// RecipientFunc extracts the audit-ledger recipient from a contact point.
type RecipientFunc func(cp models.ContactPoint) string

// AttemptStore persists the notification attempt ledger.
type AttemptStore interface {
	CreateAttempt(ctx context.Context, a models.NotificationAttempt) error
	UpdateAttempt(ctx context.Context, id uuid.UUID, status string, attempts int, lastError string) error
}

// ContactSource resolves the delivery configuration for a channel.
type ContactSource interface {
	GetActiveContactPointByType(ctx context.Context, channelType string) (models.ContactPoint, error)
}

// Broadcaster pushes alert events to connected operator clients.
type Broadcaster interface {
	Broadcast(message []byte)
}

type job struct {
	alert   models.Alert
	channel string
}

// Service fans triggered alerts out to notification channels. Each channel is
// attempted independently through a worker pool with per-attempt timeout,
// exponential backoff retry, and a per-channel circuit breaker. Delivery
// outcome never flows back into the alert.
type Service struct {
	store      AttemptStore
	contacts   ContactSource
	logger     *logrus.Logger
	cfg        config.Config
	jobs       chan job
	ctx        context.Context
	cancel     context.CancelFunc
	wg         *sync.WaitGroup
	hub        Broadcaster
	senders    map[string]SendFunc
	recipients map[string]RecipientFunc
	breakerMu  sync.Mutex
	breakers   map[string]*gobreaker.CircuitBreaker
}

// New constructs a notifier Service with the built-in channel providers
// registered.
func New(store AttemptStore, contacts ContactSource, logger *logrus.Logger, cfg config.Config) *Service {
	ctx, cancel := context.WithCancel(context.Background())
	svc := &Service{
		store:      store,
		contacts:   contacts,
		logger:     logger,
		cfg:        cfg,
		jobs:       make(chan job, cfg.Notification.QueueSize),
		ctx:        ctx,
		cancel:     cancel,
		senders:    make(map[string]SendFunc),
		recipients: make(map[string]RecipientFunc),
		breakers:   make(map[string]*gobreaker.CircuitBreaker),
	}

	svc.RegisterSender("email", func(ctx context.Context, cp models.ContactPoint, subject, body string) error {
		return providers.SendEmail(ctx, cp, subject, body, cfg)
	}, providers.EmailRecipient)
	svc.RegisterSender("telegram", func(ctx context.Context, cp models.ContactPoint, subject, body string) error {
		return providers.SendTelegram(ctx, cp, subject, body, cfg)
	}, providers.TelegramRecipient)
	svc.RegisterSender("whatsapp", func(ctx context.Context, cp models.ContactPoint, subject, body string) error {
		return providers.SendWhatsApp(ctx, cp, subject, body, cfg)
	}, providers.WhatsAppRecipient)

	return svc
}

// RegisterSender installs or replaces the provider for a channel.
func (s *Service) RegisterSender(channel string, fn SendFunc, recipient RecipientFunc) {
	s.senders[channel] = fn
	s.recipients[channel] = recipient
}

// SetBroadcaster attaches the live alert feed.
func (s *Service) SetBroadcaster(b Broadcaster) {
	s.hub = b
}

// Start launches the worker pool.
func (s *Service) Start(wg *sync.WaitGroup) {
	s.wg = wg
	for i := 0; i < s.cfg.Notification.MaxWorkers; i++ {
		s.wg.Add(1)
		go s.worker(i)
	}
}

// Stop signals workers to drain and exit.
func (s *Service) Stop() {
	s.cancel()
}

// Dispatch enqueues one delivery job per channel and returns immediately.
// The caller (the evaluation path) is never blocked on delivery.
func (s *Service) Dispatch(alert models.Alert, channels []string) {
	for _, channel := range channels {
		select {
		case s.jobs <- job{alert: alert, channel: channel}:
			metrics.NotificationQueueSize.Set(float64(len(s.jobs)))
		default:
			s.logger.Errorf("Notification queue full, dropping alert %s for channel %s", alert.ID, channel)
			metrics.NotificationsTotal.WithLabelValues(channel, models.AttemptStatusFailed).Inc()
			s.recordDrop(alert, channel)
		}
	}

	if s.hub != nil {
		if payload, err := json.Marshal(alert); err == nil {
			s.hub.Broadcast(payload)
		}
	}
}

func (s *Service) recordDrop(alert models.Alert, channel string) {
	a := models.NotificationAttempt{
		ID:        uuid.New(),
		AlertID:   alert.ID,
		Channel:   channel,
		Status:    models.AttemptStatusFailed,
		LastError: "dispatch queue full",
		CreatedAt: time.Now().UTC(),
	}
	if err := s.store.CreateAttempt(s.ctx, a); err != nil {
		s.logger.Errorf("Failed to record dropped attempt for alert %s: %v", alert.ID, err)
	}
}

// worker processes delivery jobs until the context is cancelled.
func (s *Service) worker(id int) {
	defer s.wg.Done()
	for {
		select {
		case <-s.ctx.Done():
			s.logger.Infof("Notifier worker %d stopped", id)
			return
		case j := <-s.jobs:
			metrics.NotificationQueueSize.Set(float64(len(s.jobs)))
			s.handleJob(j)
		}
	}
}

// handleJob attempts delivery of one alert through one channel.
func (s *Service) handleJob(j job) {
	log := s.logger.WithFields(logrus.Fields{"alert_id": j.alert.ID, "channel": j.channel})

	cp, err := s.contacts.GetActiveContactPointByType(s.ctx, j.channel)
	if err != nil {
		log.Errorf("Contact point lookup failed: %v", err)
		s.finalize(models.NotificationAttempt{
			ID:        uuid.New(),
			AlertID:   j.alert.ID,
			Channel:   j.channel,
			Status:    models.AttemptStatusFailed,
			LastError: err.Error(),
			CreatedAt: time.Now().UTC(),
		}, false)
		return
	}

	recipient := ""
	if rf, ok := s.recipients[j.channel]; ok {
		recipient = rf(cp)
	}

	attempt := models.NotificationAttempt{
		ID:        uuid.New(),
		AlertID:   j.alert.ID,
		Channel:   j.channel,
		Recipient: recipient,
		Status:    models.AttemptStatusPending,
		CreatedAt: time.Now().UTC(),
	}
	if err := s.store.CreateAttempt(s.ctx, attempt); err != nil {
		// Ledger write failure must not block delivery.
		log.Errorf("CreateAttempt failed: %v", err)
	}

	sender, ok := s.senders[j.channel]
	if !ok {
		attempt.Status = models.AttemptStatusFailed
		attempt.LastError = fmt.Sprintf("unsupported channel %q", j.channel)
		log.Error(attempt.LastError)
		s.finalize(attempt, true)
		return
	}

	subject, body := renderNotification(j.alert)
	br := s.breaker(j.channel)
	timeout := time.Duration(s.cfg.Notification.SendTimeoutSeconds) * time.Second

	tries := 0
	op := func() error {
		_, execErr := br.Execute(func() (interface{}, error) {
			tries++
			cctx, cancel := context.WithTimeout(s.ctx, timeout)
			defer cancel()
			return nil, sender(cctx, cp, subject, body)
		})
		if errors.Is(execErr, gobreaker.ErrOpenState) || errors.Is(execErr, gobreaker.ErrTooManyRequests) {
			// Circuit open: stop retrying, the reset window has to elapse first.
			return backoff.Permanent(execErr)
		}
		return execErr
	}

	eb := backoff.NewExponentialBackOff()
	eb.InitialInterval = 500 * time.Millisecond
	eb.MaxElapsedTime = 0
	retries := uint64(s.cfg.Notification.MaxRetries)
	sendErr := backoff.Retry(op, backoff.WithContext(backoff.WithMaxRetries(eb, retries), s.ctx))

	attempt.Attempts = tries
	switch {
	case sendErr == nil:
		attempt.Status = models.AttemptStatusSent
		attempt.LastError = ""
		log.Infof("Notification sent after %d attempt(s)", tries)
	case tries == 0 && (errors.Is(sendErr, gobreaker.ErrOpenState) || errors.Is(sendErr, gobreaker.ErrTooManyRequests)):
		// Breaker was already open, the channel was never tried.
		attempt.Status = models.AttemptStatusSkipped
		attempt.LastError = sendErr.Error()
		log.Warnf("Notification skipped, circuit open: %v", sendErr)
	default:
		attempt.Status = models.AttemptStatusFailed
		attempt.LastError = sendErr.Error()
		log.Errorf("Notification failed after %d attempt(s): %v", tries, sendErr)
	}
	s.finalize(attempt, true)
}

// finalize records the attempt outcome. update distinguishes attempts that
// already have a pending row.
func (s *Service) finalize(attempt models.NotificationAttempt, update bool) {
	metrics.NotificationsTotal.WithLabelValues(attempt.Channel, attempt.Status).Inc()
	var err error
	if update {
		err = s.store.UpdateAttempt(s.ctx, attempt.ID, attempt.Status, attempt.Attempts, attempt.LastError)
	} else {
		err = s.store.CreateAttempt(s.ctx, attempt)
	}
	if err != nil {
		s.logger.Errorf("Failed to record attempt outcome for alert %s via %s: %v",
			attempt.AlertID, attempt.Channel, err)
	}
}

// breaker returns the circuit breaker for a channel, creating it on first use.
func (s *Service) breaker(channel string) *gobreaker.CircuitBreaker {
	s.breakerMu.Lock()
	defer s.breakerMu.Unlock()
	if br, ok := s.breakers[channel]; ok {
		return br
	}

	threshold := uint32(s.cfg.Notification.BreakerThreshold)
	br := gobreaker.NewCircuitBreaker(gobreaker.Settings{
		Name:        channel,
		MaxRequests: 1,
		Timeout:     time.Duration(s.cfg.Notification.BreakerResetSeconds) * time.Second,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures >= threshold
		},
		OnStateChange: func(name string, from, to gobreaker.State) {
			switch to {
			case gobreaker.StateOpen:
				metrics.BreakerOpen.WithLabelValues(name).Set(1)
				s.logger.Warnf("Circuit breaker opened for channel %s", name)
			case gobreaker.StateClosed:
				metrics.BreakerOpen.WithLabelValues(name).Set(0)
				s.logger.Infof("Circuit breaker closed for channel %s", name)
			}
		},
	})
	s.breakers[channel] = br
	return br
}

func renderNotification(alert models.Alert) (string, string) {
	subject := fmt.Sprintf("[%s] Alert for device %s", strings.ToUpper(alert.Severity), alert.DeviceID)
	body := fmt.Sprintf("%s\nDevice: %s\nValue: %.2f\nThreshold: %.2f\nTime: %s",
		alert.Message,
		alert.DeviceID,
		alert.ActualValue,
		alert.ThresholdValue,
		alert.CreatedAt.Format(time.RFC3339))
	return subject, body
}
