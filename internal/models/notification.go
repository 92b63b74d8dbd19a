package models

import (
	"time"
)

// NotificationType defines the type of notification
type NotificationType string

const (
	NotificationTypeRecycle NotificationType = "recycle"
)

// Notification statuses
const (
	NotificationPending = "pending"
	NotificationSent    = "sent"
	NotificationFailed  = "failed"
)

// Notification is an outbox row for one event delivery
type Notification struct {
	ID        string           `json:"id"`
	Type      NotificationType `json:"type"`
	RecordID  string           `json:"record_id"`
	Payload   *RecycleEvent    `json:"payload"`
	Status    string           `json:"status"` // pending, sent, failed
	Attempts  int              `json:"attempts"`
	CreatedAt time.Time        `json:"created_at"`
	SentAt    *time.Time       `json:"sent_at,omitempty"`
	Error     *string          `json:"error,omitempty"`
}
