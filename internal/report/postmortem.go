package report

import (
	"errors"
	"fmt"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/sitewatch/internal/database"
	"github.com/sitewatch/internal/models"
	"gorm.io/gorm"
)

var (
	ErrPostMortemNotFound = errors.New("post-mortem not found")
	ErrPostMortemExists   = errors.New("post-mortem already exists for this event")
	ErrInvalidStatus      = errors.New("invalid post-mortem status")
)

// CreateInput carries the optional fields of a manually created post-mortem.
type CreateInput struct {
	Title             string                 `json:"title"`
	Summary           string                 `json:"summary"`
	IncidentStart     *time.Time             `json:"incident_start"`
	IncidentEnd       *time.Time             `json:"incident_end"`
	RootCause         string                 `json:"root_cause"`
	Trigger           string                 `json:"trigger"`
	ImpactDescription string                 `json:"impact_description"`
	AffectedDevices   *int                   `json:"affected_devices"`
	Author            string                 `json:"author"`
	Timeline          []models.TimelineEntry `json:"timeline"`
	ActionItems       []models.ActionItem    `json:"action_items"`
	Tags              []string               `json:"tags"`
}

// UpdateInput changes only the non-nil fields.
type UpdateInput struct {
	Title             *string                  `json:"title"`
	Status            *models.PostMortemStatus `json:"status"`
	Summary           *string                  `json:"summary"`
	IncidentStart     *time.Time               `json:"incident_start"`
	IncidentEnd       *time.Time               `json:"incident_end"`
	RootCause         *string                  `json:"root_cause"`
	Trigger           *string                  `json:"trigger"`
	ImpactDescription *string                  `json:"impact_description"`
	Resolution        *string                  `json:"resolution_description"`
	LessonsLearned    *string                  `json:"lessons_learned"`
	AffectedDevices   *int                     `json:"affected_devices"`
	Timeline          []models.TimelineEntry   `json:"timeline"`
	ActionItems       []models.ActionItem      `json:"action_items"`
	PreventiveActions []string                 `json:"preventive_actions"`
	Tags              []string                 `json:"tags"`
}

// Manager owns the post-mortem lifecycle. Once created a post-mortem is
// independent of its event; only metrics read the event again.
type Manager struct {
	db  *gorm.DB
	log logrus.FieldLogger
	now func() time.Time
}

func NewManager(db *gorm.DB, log logrus.FieldLogger) *Manager {
	return &Manager{db: db, log: log, now: time.Now}
}

func (m *Manager) SetClock(now func() time.Time) {
	m.now = now
}

// CreateDraftTx creates the draft post-mortem for a resolved event inside tx.
// An existing post-mortem for the event is returned unchanged, with created
// false.
func (m *Manager) CreateDraftTx(tx *gorm.DB, event *models.AlertEvent) (*models.PostMortem, bool, error) {
	existing, err := findByEvent(tx, event.ID)
	if err == nil {
		return existing, false, nil
	}
	if !errors.Is(err, ErrPostMortemNotFound) {
		return nil, false, err
	}

	pm := newDraft(event)
	err = tx.Transaction(func(sp *gorm.DB) error {
		return sp.Create(pm).Error
	})
	if database.IsUniqueViolation(err) {
		existing, err := findByEvent(tx, event.ID)
		return existing, false, err
	}
	if err != nil {
		return nil, false, fmt.Errorf("failed to create post-mortem: %w", err)
	}
	return pm, true, nil
}

func newDraft(event *models.AlertEvent) *models.PostMortem {
	pm := &models.PostMortem{
		AlertEventID:    event.ID,
		Title:           "Post-Mortem: " + event.Title,
		Status:          models.PostMortemStatusDraft,
		Severity:        event.Severity,
		IncidentStart:   event.CreatedAt,
		IncidentEnd:     event.ResolvedAt,
		AffectedDevices: event.OutageCount,
		Summary:         event.Description,
	}
	applyMetrics(pm, Compute(pm, event))
	return pm
}

// Create opens a post-mortem by hand for any existing event.
func (m *Manager) Create(eventID uint, in CreateInput) (*models.PostMortem, error) {
	var event models.AlertEvent
	if err := m.db.First(&event, eventID).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, fmt.Errorf("%w: %d", models.ErrEventNotFound, eventID)
		}
		return nil, err
	}

	if _, err := findByEvent(m.db, eventID); err == nil {
		return nil, fmt.Errorf("%w: event %d", ErrPostMortemExists, eventID)
	} else if !errors.Is(err, ErrPostMortemNotFound) {
		return nil, err
	}

	pm := newDraft(&event)
	if in.Title != "" {
		pm.Title = in.Title
	}
	if in.Summary != "" {
		pm.Summary = in.Summary
	}
	if in.IncidentStart != nil {
		pm.IncidentStart = *in.IncidentStart
	}
	if in.IncidentEnd != nil {
		pm.IncidentEnd = in.IncidentEnd
	}
	if in.AffectedDevices != nil {
		pm.AffectedDevices = *in.AffectedDevices
	}
	pm.RootCause = in.RootCause
	pm.Trigger = in.Trigger
	pm.ImpactDescription = in.ImpactDescription
	pm.Author = in.Author
	pm.Timeline = in.Timeline
	pm.ActionItems = in.ActionItems
	pm.Tags = in.Tags
	applyMetrics(pm, Compute(pm, &event))

	if err := m.db.Create(pm).Error; err != nil {
		if database.IsUniqueViolation(err) {
			return nil, fmt.Errorf("%w: event %d", ErrPostMortemExists, eventID)
		}
		return nil, fmt.Errorf("failed to create post-mortem: %w", err)
	}
	m.log.WithFields(logrus.Fields{"post_mortem_id": pm.ID, "event_id": eventID}).Info("Post-mortem created")
	return pm, nil
}

func (m *Manager) Get(id uint) (*models.PostMortem, error) {
	var pm models.PostMortem
	if err := m.db.First(&pm, id).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, fmt.Errorf("%w: %d", ErrPostMortemNotFound, id)
		}
		return nil, err
	}
	return &pm, nil
}

func (m *Manager) GetByEvent(eventID uint) (*models.PostMortem, error) {
	return findByEvent(m.db, eventID)
}

func findByEvent(db *gorm.DB, eventID uint) (*models.PostMortem, error) {
	var pm models.PostMortem
	if err := db.Where("alert_event_id = ?", eventID).First(&pm).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, fmt.Errorf("%w: event %d", ErrPostMortemNotFound, eventID)
		}
		return nil, err
	}
	return &pm, nil
}

func (m *Manager) List(status string, limit int) ([]models.PostMortem, error) {
	query := m.db.Model(&models.PostMortem{})
	if status != "" {
		if !models.PostMortemStatus(status).Valid() {
			return nil, fmt.Errorf("%w: %q", ErrInvalidStatus, status)
		}
		query = query.Where("status = ?", status)
	}
	if limit <= 0 {
		limit = 100
	}

	var pms []models.PostMortem
	if err := query.Order("created_at DESC, id DESC").Limit(limit).Find(&pms).Error; err != nil {
		return nil, err
	}
	return pms, nil
}

// Update applies the narrative fields. Changing the incident window
// recomputes the durations.
func (m *Manager) Update(id uint, in UpdateInput) (*models.PostMortem, error) {
	pm, err := m.Get(id)
	if err != nil {
		return nil, err
	}

	if in.Status != nil {
		switch *in.Status {
		case models.PostMortemStatusDraft, models.PostMortemStatusInProgress:
			pm.Status = *in.Status
		default:
			return nil, fmt.Errorf("%w: %q can only be set through its own action", ErrInvalidStatus, *in.Status)
		}
	}
	setString(&pm.Title, in.Title)
	setString(&pm.Summary, in.Summary)
	setString(&pm.RootCause, in.RootCause)
	setString(&pm.Trigger, in.Trigger)
	setString(&pm.ImpactDescription, in.ImpactDescription)
	setString(&pm.Resolution, in.Resolution)
	setString(&pm.LessonsLearned, in.LessonsLearned)
	if in.AffectedDevices != nil {
		pm.AffectedDevices = *in.AffectedDevices
	}
	if in.Timeline != nil {
		pm.Timeline = in.Timeline
	}
	if in.ActionItems != nil {
		pm.ActionItems = in.ActionItems
	}
	if in.PreventiveActions != nil {
		pm.PreventiveActions = in.PreventiveActions
	}
	if in.Tags != nil {
		pm.Tags = in.Tags
	}

	if in.IncidentStart != nil || in.IncidentEnd != nil {
		if in.IncidentStart != nil {
			pm.IncidentStart = *in.IncidentStart
		}
		if in.IncidentEnd != nil {
			pm.IncidentEnd = in.IncidentEnd
		}
		var event models.AlertEvent
		if err := m.db.Unscoped().First(&event, pm.AlertEventID).Error; err != nil {
			return nil, fmt.Errorf("failed to load event %d: %w", pm.AlertEventID, err)
		}
		applyMetrics(pm, Compute(pm, &event))
	}

	if err := m.db.Save(pm).Error; err != nil {
		return nil, fmt.Errorf("failed to update post-mortem: %w", err)
	}
	return pm, nil
}

func setString(dst *string, v *string) {
	if v != nil {
		*dst = *v
	}
}

// Complete marks the post-mortem completed. Completing twice is a no-op.
func (m *Manager) Complete(id uint) (*models.PostMortem, error) {
	pm, err := m.Get(id)
	if err != nil {
		return nil, err
	}
	switch pm.Status {
	case models.PostMortemStatusCompleted:
		return pm, nil
	case models.PostMortemStatusReviewed:
		return nil, fmt.Errorf("%w: post-mortem %d is already reviewed", ErrInvalidStatus, id)
	}

	now := m.now()
	pm.Status = models.PostMortemStatusCompleted
	pm.CompletedAt = &now
	if err := m.db.Model(pm).Updates(map[string]interface{}{
		"status":       pm.Status,
		"completed_at": now,
	}).Error; err != nil {
		return nil, fmt.Errorf("failed to complete post-mortem: %w", err)
	}
	return pm, nil
}

// Review marks the post-mortem reviewed. Reviewing twice is a no-op.
func (m *Manager) Review(id uint, reviewer string) (*models.PostMortem, error) {
	pm, err := m.Get(id)
	if err != nil {
		return nil, err
	}
	if pm.Status == models.PostMortemStatusReviewed {
		return pm, nil
	}

	now := m.now()
	updates := map[string]interface{}{
		"status":      models.PostMortemStatusReviewed,
		"reviewed_at": now,
		"reviewed_by": reviewer,
	}
	if pm.CompletedAt == nil {
		updates["completed_at"] = now
		pm.CompletedAt = &now
	}
	if err := m.db.Model(pm).Updates(updates).Error; err != nil {
		return nil, fmt.Errorf("failed to review post-mortem: %w", err)
	}
	pm.Status = models.PostMortemStatusReviewed
	pm.ReviewedAt = &now
	pm.ReviewedBy = reviewer
	return pm, nil
}

func (m *Manager) Delete(id uint) error {
	res := m.db.Delete(&models.PostMortem{}, id)
	if res.Error != nil {
		return fmt.Errorf("failed to delete post-mortem: %w", res.Error)
	}
	if res.RowsAffected == 0 {
		return fmt.Errorf("%w: %d", ErrPostMortemNotFound, id)
	}
	return nil
}
