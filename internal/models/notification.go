package models

import (
	"time"

	"github.com/google/uuid"
)

// Notification attempt statuses. The attempt ledger is audit data; it never
// feeds back into alert correctness.
const (
	AttemptStatusPending = "pending"
	AttemptStatusSent    = "sent"
	AttemptStatusFailed  = "failed"
	AttemptStatusSkipped = "skipped"
)

// NotificationAttempt records one delivery attempt series for an
// (alert, channel) pair.
type NotificationAttempt struct {
	ID        uuid.UUID  `json:"id"`
	AlertID   uuid.UUID  `json:"alert_id"`
	Channel   string     `json:"channel"`
	Recipient string     `json:"recipient"`
	Status    string     `json:"status"`
	Attempts  int        `json:"attempts"`
	LastError string     `json:"last_error,omitempty"`
	CreatedAt time.Time  `json:"created_at"`
	SentAt    *time.Time `json:"sent_at,omitempty"`
}

// ContactPoint holds per-channel delivery configuration (address, chat id,
// phone number), stored as free-form JSON the provider for that channel knows
// how to parse.
type ContactPoint struct {
	ID            uuid.UUID `json:"id"`
	Name          string    `json:"name"`
	Type          string    `json:"type"`
	Configuration []byte    `json:"configuration"`
	Status        string    `json:"status"`
	CreatedAt     time.Time `json:"created_at"`
}
