package models

import (
	"time"

	"gorm.io/gorm"
)

type EventType string

const (
	EventTypeSiteOutage    EventType = "site_outage"
	EventTypeSiteDegraded  EventType = "site_degraded"
	EventTypeSiteRecovered EventType = "site_recovered"
	EventTypeDeviceOutage  EventType = "device_outage"
	EventTypeCustom        EventType = "custom"
)

// IncidentTypes are the event types driven by the reconciler lifecycle.
var IncidentTypes = []EventType{EventTypeSiteOutage, EventTypeSiteDegraded, EventTypeDeviceOutage}

type Severity string

const (
	SeverityCritical Severity = "critical"
	SeverityHigh     Severity = "high"
	SeverityMedium   Severity = "medium"
	SeverityLow      Severity = "low"
	SeverityInfo     Severity = "info"
)

func (s Severity) Valid() bool {
	switch s {
	case SeverityCritical, SeverityHigh, SeverityMedium, SeverityLow, SeverityInfo:
		return true
	}
	return false
}

func (t EventType) Valid() bool {
	switch t {
	case EventTypeSiteOutage, EventTypeSiteDegraded, EventTypeSiteRecovered, EventTypeDeviceOutage, EventTypeCustom:
		return true
	}
	return false
}

type AlertStatus string

const (
	AlertStatusActive       AlertStatus = "active"
	AlertStatusAcknowledged AlertStatus = "acknowledged"
	AlertStatusResolved     AlertStatus = "resolved"
	AlertStatusIgnored      AlertStatus = "ignored"
)

// OpenStatuses are the statuses that count toward the one-open-event-per-site limit.
var OpenStatuses = []AlertStatus{AlertStatusActive, AlertStatusAcknowledged}

func (s AlertStatus) Open() bool {
	return s == AlertStatusActive || s == AlertStatusAcknowledged
}

// AlertEvent is one continuous abnormal period for a site.
//
// RecoveryNotified is flipped once, by the recovery sweep, and only for
// events that were resolved by the reconciler.
type AlertEvent struct {
	gorm.Model
	SiteID           string                 `json:"site_id" gorm:"index;size:100"`
	SiteName         string                 `json:"site_name"`
	EventType        EventType              `json:"event_type" gorm:"index;size:32;not null"`
	Severity         Severity               `json:"severity" gorm:"size:16;not null"`
	Status           AlertStatus            `json:"status" gorm:"index;size:16;not null"`
	Title            string                 `json:"title"`
	Description      string                 `json:"description"`
	DeviceCount      int                    `json:"device_count"`
	OutageCount      int                    `json:"outage_count"`
	OutagePercentage float64                `json:"outage_percentage"`
	AcknowledgedBy   string                 `json:"acknowledged_by,omitempty"`
	AcknowledgedAt   *time.Time             `json:"acknowledged_at,omitempty"`
	AcknowledgedNote string                 `json:"acknowledged_note,omitempty"`
	ResolvedBy       string                 `json:"resolved_by,omitempty"`
	ResolvedAt       *time.Time             `json:"resolved_at,omitempty"`
	ResolvedNote     string                 `json:"resolved_note,omitempty"`
	AutoResolved     bool                   `json:"auto_resolved" gorm:"not null;default:false"`
	RecoveryNotified bool                   `json:"recovery_notified" gorm:"index;not null;default:false"`
	Metadata         map[string]interface{} `json:"metadata,omitempty" gorm:"serializer:json"`
}

// Duration is the open time of the event, or zero while it is still open.
func (e *AlertEvent) Duration() time.Duration {
	if e.ResolvedAt == nil {
		return 0
	}
	return e.ResolvedAt.Sub(e.CreatedAt)
}
