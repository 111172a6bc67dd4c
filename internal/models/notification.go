package models

import (
	"encoding/json"
	"time"

	"github.com/google/uuid"
)

// Notification kinds emitted by the settlement engine.
const (
	NotificationKindPurchaseComplete = "purchase_complete"
	NotificationKindCourseSold       = "course_sold"
)

// NotificationStatus for notification delivery logs.
const (
	NotificationStatusPending = "pending"
	NotificationStatusSent    = "sent"
	NotificationStatusFailed  = "failed"
)

// NotificationLog records one best-effort notification attempt. Delivery
// failures land here; they never affect settlement.
type NotificationLog struct {
	ID           uuid.UUID       `json:"id"`
	UserID       uuid.UUID       `json:"user_id"`
	Kind         string          `json:"kind"`
	Payload      json.RawMessage `json:"payload,omitempty"`
	Status       string          `json:"status"`
	ErrorMessage string          `json:"error_message,omitempty"`
	SentAt       *time.Time      `json:"sent_at,omitempty"`
	CreatedAt    time.Time       `json:"created_at"`
}
