package alert

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/sitewatch/internal/models"
	"gorm.io/gorm"
)

type EventFilter struct {
	Status    string
	Severity  string
	EventType string
	SiteID    string
	Limit     int
}

// CustomEventInput has no site: a site's open event is always the one the
// reconciler owns.
type CustomEventInput struct {
	Title       string                 `json:"title"`
	Description string                 `json:"description"`
	Severity    models.Severity        `json:"severity"`
	Metadata    map[string]interface{} `json:"metadata"`
}

// AlertManager is the operator-facing side of incidents: listing, manual
// acknowledge and resolve, custom events and deletion.
type AlertManager struct {
	db  *gorm.DB
	log logrus.FieldLogger
	now func() time.Time
}

func NewAlertManager(db *gorm.DB, log logrus.FieldLogger) *AlertManager {
	return &AlertManager{db: db, log: log, now: time.Now}
}

func (am *AlertManager) SetClock(now func() time.Time) {
	am.now = now
}

func (am *AlertManager) List(filter EventFilter) ([]models.AlertEvent, error) {
	query := am.db.Model(&models.AlertEvent{})
	if filter.Status != "" {
		switch models.AlertStatus(filter.Status) {
		case models.AlertStatusActive, models.AlertStatusAcknowledged, models.AlertStatusResolved, models.AlertStatusIgnored:
		default:
			return nil, fmt.Errorf("%w: unknown status %q", ErrInvalidInput, filter.Status)
		}
		query = query.Where("status = ?", filter.Status)
	}
	if filter.Severity != "" {
		if !models.Severity(filter.Severity).Valid() {
			return nil, fmt.Errorf("%w: unknown severity %q", ErrInvalidInput, filter.Severity)
		}
		query = query.Where("severity = ?", filter.Severity)
	}
	if filter.EventType != "" {
		if !models.EventType(filter.EventType).Valid() {
			return nil, fmt.Errorf("%w: unknown event type %q", ErrInvalidInput, filter.EventType)
		}
		query = query.Where("event_type = ?", filter.EventType)
	}
	if filter.SiteID != "" {
		query = query.Where("site_id = ?", filter.SiteID)
	}
	limit := filter.Limit
	if limit <= 0 {
		limit = 100
	}

	var events []models.AlertEvent
	if err := query.Order("created_at DESC, id DESC").Limit(limit).Find(&events).Error; err != nil {
		return nil, err
	}
	return events, nil
}

// ListActive returns every open event, newest first.
func (am *AlertManager) ListActive() ([]models.AlertEvent, error) {
	var events []models.AlertEvent
	if err := am.db.Where("status IN ?", models.OpenStatuses).
		Order("created_at DESC, id DESC").
		Find(&events).Error; err != nil {
		return nil, err
	}
	return events, nil
}

func (am *AlertManager) Get(id uint) (*models.AlertEvent, error) {
	var event models.AlertEvent
	if err := am.db.First(&event, id).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, fmt.Errorf("%w: %d", ErrEventNotFound, id)
		}
		return nil, err
	}
	return &event, nil
}

// CreateCustom records an operator event. Custom events never take part in
// the automatic lifecycle.
func (am *AlertManager) CreateCustom(in CustomEventInput) (*models.AlertEvent, error) {
	if strings.TrimSpace(in.Title) == "" {
		return nil, fmt.Errorf("%w: title is required", ErrInvalidInput)
	}
	if in.Severity == "" {
		in.Severity = models.SeverityMedium
	}
	if !in.Severity.Valid() {
		return nil, fmt.Errorf("%w: unknown severity %q", ErrInvalidInput, in.Severity)
	}

	event := &models.AlertEvent{
		EventType:   models.EventTypeCustom,
		Severity:    in.Severity,
		Status:      models.AlertStatusActive,
		Title:       in.Title,
		Description: in.Description,
		Metadata:    in.Metadata,
	}
	now := am.now()
	event.CreatedAt = now
	event.UpdatedAt = now

	if err := am.db.Create(event).Error; err != nil {
		return nil, fmt.Errorf("failed to create event: %w", err)
	}
	am.log.WithField("event_id", event.ID).Info("Custom event created")
	return event, nil
}

// Acknowledge moves an active event to acknowledged. Acknowledging an
// acknowledged event returns it unchanged.
func (am *AlertManager) Acknowledge(id uint, user, note string) (*models.AlertEvent, error) {
	now := am.now()
	res := am.db.Model(&models.AlertEvent{}).
		Where("id = ? AND status = ?", id, models.AlertStatusActive).
		Updates(map[string]interface{}{
			"status":            models.AlertStatusAcknowledged,
			"acknowledged_at":   now,
			"acknowledged_by":   user,
			"acknowledged_note": note,
		})
	if res.Error != nil {
		return nil, fmt.Errorf("failed to acknowledge event: %w", res.Error)
	}

	event, err := am.Get(id)
	if err != nil {
		return nil, err
	}
	if res.RowsAffected == 0 && event.Status != models.AlertStatusAcknowledged {
		return nil, fmt.Errorf("%w: event %d is %s", ErrInvalidTransition, id, event.Status)
	}
	if res.RowsAffected == 1 {
		am.log.WithFields(logrus.Fields{"event_id": id, "user": user}).Info("Event acknowledged")
	}
	return event, nil
}

// Resolve closes an open event by hand. Manual resolutions never trigger a
// recovery notification. Resolving a resolved event returns it unchanged.
func (am *AlertManager) Resolve(id uint, user, note string) (*models.AlertEvent, error) {
	now := am.now()
	res := am.db.Model(&models.AlertEvent{}).
		Where("id = ? AND status IN ?", id, models.OpenStatuses).
		Updates(map[string]interface{}{
			"status":        models.AlertStatusResolved,
			"resolved_at":   now,
			"resolved_by":   user,
			"resolved_note": note,
			"auto_resolved": false,
		})
	if res.Error != nil {
		return nil, fmt.Errorf("failed to resolve event: %w", res.Error)
	}

	event, err := am.Get(id)
	if err != nil {
		return nil, err
	}
	if res.RowsAffected == 0 && event.Status != models.AlertStatusResolved {
		return nil, fmt.Errorf("%w: event %d is %s", ErrInvalidTransition, id, event.Status)
	}
	if res.RowsAffected == 1 {
		am.log.WithFields(logrus.Fields{"event_id": id, "user": user}).Info("Event resolved")
	}
	return event, nil
}

// Delete soft-deletes the event. Its notification history is kept.
func (am *AlertManager) Delete(id uint) error {
	res := am.db.Delete(&models.AlertEvent{}, id)
	if res.Error != nil {
		return fmt.Errorf("failed to delete event: %w", res.Error)
	}
	if res.RowsAffected == 0 {
		return fmt.Errorf("%w: %d", ErrEventNotFound, id)
	}
	return nil
}
