package models

import (
	"time"

	"gorm.io/gorm"
)

type PostMortemStatus string

const (
	PostMortemStatusDraft      PostMortemStatus = "draft"
	PostMortemStatusInProgress PostMortemStatus = "in_progress"
	PostMortemStatusCompleted  PostMortemStatus = "completed"
	PostMortemStatusReviewed   PostMortemStatus = "reviewed"
)

func (s PostMortemStatus) Valid() bool {
	switch s {
	case PostMortemStatusDraft, PostMortemStatusInProgress, PostMortemStatusCompleted, PostMortemStatusReviewed:
		return true
	}
	return false
}

type ActionItem struct {
	Action  string `json:"action"`
	Owner   string `json:"owner,omitempty"`
	DueDate string `json:"due_date,omitempty"`
	Status  string `json:"status,omitempty"`
}

type TimelineEntry struct {
	Time  time.Time `json:"time"`
	Event string    `json:"event"`
	Actor string    `json:"actor,omitempty"`
}

// PostMortem is keyed one-to-one to an AlertEvent. Durations are stored in
// seconds; DetectionSeconds is zero when the incident start is unknown and
// ResponseSeconds is nil until the event has been acknowledged.
type PostMortem struct {
	gorm.Model
	AlertEventID      uint             `json:"alert_event_id" gorm:"index;not null"`
	Title             string           `json:"title" gorm:"not null"`
	Status            PostMortemStatus `json:"status" gorm:"index;size:16;not null"`
	Severity          Severity         `json:"severity" gorm:"size:16"`
	IncidentStart     time.Time        `json:"incident_start"`
	IncidentEnd       *time.Time       `json:"incident_end,omitempty"`
	DetectionSeconds  int64            `json:"detection_seconds"`
	ResponseSeconds   *int64           `json:"response_seconds,omitempty"`
	ResolutionSeconds *int64           `json:"resolution_seconds,omitempty"`
	DowntimeMinutes   int              `json:"downtime_minutes"`
	AffectedDevices   int              `json:"affected_devices"`
	Summary           string           `json:"summary"`
	ImpactDescription string           `json:"impact_description,omitempty"`
	RootCause         string           `json:"root_cause,omitempty"`
	Trigger           string           `json:"trigger,omitempty"`
	Resolution        string           `json:"resolution_description,omitempty"`
	LessonsLearned    string           `json:"lessons_learned,omitempty"`
	Timeline          []TimelineEntry  `json:"timeline" gorm:"serializer:json"`
	ActionItems       []ActionItem     `json:"action_items" gorm:"serializer:json"`
	PreventiveActions []string         `json:"preventive_actions" gorm:"serializer:json"`
	Tags              []string         `json:"tags" gorm:"serializer:json"`
	Author            string           `json:"author,omitempty"`
	ReviewedBy        string           `json:"reviewed_by,omitempty"`
	CompletedAt       *time.Time       `json:"completed_at,omitempty"`
	ReviewedAt        *time.Time       `json:"reviewed_at,omitempty"`
}
