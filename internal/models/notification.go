package models

import (
	"time"

	"gorm.io/gorm"
)

type MessageType string

const (
	MessageTypeFull     MessageType = "full"
	MessageTypeSummary  MessageType = "summary"
	MessageTypeRecovery MessageType = "recovery"
)

type NotificationStatus string

const (
	NotificationStatusPending NotificationStatus = "pending"
	NotificationStatusSent    NotificationStatus = "sent"
	NotificationStatusFailed  NotificationStatus = "failed"
	NotificationStatusRetry   NotificationStatus = "retry"
)

func (s NotificationStatus) Terminal() bool {
	return s == NotificationStatusSent || s == NotificationStatusFailed
}

// AlertNotification is one delivery of one message to one recipient.
// Rows are append-only; only the delivery fields change after insert.
type AlertNotification struct {
	gorm.Model
	AlertEventID      uint               `json:"alert_event_id" gorm:"index;not null"`
	Channel           string             `json:"channel" gorm:"index;size:32;not null"`
	Recipient         string             `json:"recipient" gorm:"size:255;not null"`
	MessageType       MessageType        `json:"message_type" gorm:"size:16;not null"`
	Status            NotificationStatus `json:"status" gorm:"index;size:16;not null"`
	Content           string             `json:"content"`
	RetryCount        int                `json:"retry_count" gorm:"not null;default:0"`
	SentAt            *time.Time         `json:"sent_at,omitempty"`
	FailedAt          *time.Time         `json:"failed_at,omitempty"`
	ErrorMessage      string             `json:"error_message,omitempty"`
	ProviderMessageID string             `json:"provider_message_id,omitempty"`
}
