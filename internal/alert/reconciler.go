package alert

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/sitewatch/internal/database"
	"github.com/sitewatch/internal/models"
	"github.com/sitewatch/internal/monitor"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// DraftCreator opens the draft post-mortem of a resolved incident inside the
// resolving transaction.
type DraftCreator interface {
	CreateDraftTx(tx *gorm.DB, event *models.AlertEvent) (*models.PostMortem, bool, error)
}

type ReconcilerConfig struct {
	Thresholds monitor.Thresholds
	// NotifyOnEscalation re-sends the outage notification when an open
	// incident escalates from degraded to down.
	NotifyOnEscalation bool
}

// Reconciler keeps a single authoritative incident per site in step with
// the site's classified health.
type Reconciler struct {
	db     *gorm.DB
	drafts DraftCreator
	cfg    ReconcilerConfig
	log    logrus.FieldLogger
	now    func() time.Time
}

func NewReconciler(db *gorm.DB, drafts DraftCreator, cfg ReconcilerConfig, log logrus.FieldLogger) (*Reconciler, error) {
	if err := cfg.Thresholds.Validate(); err != nil {
		return nil, err
	}
	return &Reconciler{
		db:     db,
		drafts: drafts,
		cfg:    cfg,
		log:    log,
		now:    time.Now,
	}, nil
}

func (r *Reconciler) SetClock(now func() time.Time) {
	r.now = now
}

// Reconcile applies one snapshot. The site upsert and the incident mutation
// commit together or not at all.
func (r *Reconciler) Reconcile(ctx context.Context, snap models.SiteSnapshot) (monitor.Outcome, error) {
	if err := monitor.ValidateSnapshot(snap); err != nil {
		return monitor.Outcome{}, err
	}

	now := r.now()
	tier, pct := monitor.Classify(snap.DeviceCount, snap.DeviceOutageCount, r.cfg.Thresholds)
	out := monitor.Outcome{Tier: tier, OutagePercentage: pct}
	log := r.log.WithFields(logrus.Fields{"site_id": snap.SiteID, "tier": tier})

	err := r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := upsertSite(tx, snap, tier, pct, now); err != nil {
			return err
		}

		open, err := findOpenIncident(tx, snap.SiteID)
		if err != nil {
			return err
		}

		switch {
		case tier.Abnormal() && open == nil:
			event := newIncident(snap, tier, pct, now)
			if err := createIncident(tx, event); err != nil {
				if errors.Is(err, ErrPersistenceConflict) {
					out.Conflict = true
					return nil
				}
				return err
			}
			out.Event, out.Created, out.Notify = event, true, true

		case tier.Abnormal():
			escalated, changed, err := r.updateIncident(tx, open, snap, tier, pct)
			if err != nil {
				return err
			}
			out.Event, out.Updated, out.Escalated = open, changed, escalated
			out.Notify = escalated && r.cfg.NotifyOnEscalation

		case open != nil:
			resolved, err := r.resolveIncident(tx, open, snap, now)
			if err != nil {
				return err
			}
			if resolved {
				out.Event, out.Resolved = open, true
			}
		}
		return nil
	})
	if err != nil {
		return monitor.Outcome{}, fmt.Errorf("reconcile site %s: %w", snap.SiteID, err)
	}

	switch {
	case out.Created:
		log.WithField("event_id", out.Event.ID).Warn("Incident opened")
	case out.Escalated:
		log.WithField("event_id", out.Event.ID).Warn("Incident escalated")
	case out.Resolved:
		log.WithField("event_id", out.Event.ID).Info("Incident auto-resolved")
	case out.Conflict:
		log.Debug("Incident already opened by a concurrent pass")
	}
	return out, nil
}

func upsertSite(tx *gorm.DB, snap models.SiteSnapshot, tier models.HealthTier, pct float64, now time.Time) error {
	site := models.SiteMonitoring{
		SiteID:            snap.SiteID,
		SiteName:          snap.SiteName,
		ContactName:       snap.ContactName,
		ContactPhone:      snap.ContactPhone,
		ContactEmail:      snap.ContactEmail,
		DeviceCount:       snap.DeviceCount,
		DeviceOutageCount: snap.DeviceOutageCount,
		OutagePercentage:  pct,
		Tier:              tier,
		IsSiteDown:        tier == models.TierDown,
		LastCheckedAt:     now,
	}
	err := tx.Clauses(clause.OnConflict{
		Columns: []clause.Column{{Name: "site_id"}},
		DoUpdates: clause.AssignmentColumns([]string{
			"site_name", "contact_name", "contact_phone", "contact_email",
			"device_count", "device_outage_count", "outage_percentage",
			"tier", "is_site_down", "last_checked_at", "updated_at",
		}),
	}).Create(&site).Error
	if err != nil {
		return fmt.Errorf("failed to upsert site: %w", err)
	}
	return nil
}

func findOpenIncident(tx *gorm.DB, siteID string) (*models.AlertEvent, error) {
	var event models.AlertEvent
	err := tx.Where("site_id = ? AND status IN ? AND event_type IN ?",
		siteID, models.OpenStatuses, models.IncidentTypes).
		First(&event).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to load open incident: %w", err)
	}
	return &event, nil
}

func newIncident(snap models.SiteSnapshot, tier models.HealthTier, pct float64, now time.Time) *models.AlertEvent {
	name := snap.SiteName
	if name == "" {
		name = snap.SiteID
	}
	event := &models.AlertEvent{
		SiteID:           snap.SiteID,
		SiteName:         snap.SiteName,
		EventType:        monitor.EventTypeFor(tier),
		Severity:         monitor.SeverityFor(tier),
		Status:           models.AlertStatusActive,
		Title:            incidentTitle(tier, name),
		Description:      fmt.Sprintf("%d of %d devices down (%.1f%%)", snap.DeviceOutageCount, snap.DeviceCount, pct),
		DeviceCount:      snap.DeviceCount,
		OutageCount:      snap.DeviceOutageCount,
		OutagePercentage: pct,
		Metadata: map[string]interface{}{
			"tier":          string(tier),
			"contact_name":  snap.ContactName,
			"contact_phone": snap.ContactPhone,
		},
	}
	event.CreatedAt = now
	event.UpdatedAt = now
	return event
}

func incidentTitle(tier models.HealthTier, name string) string {
	if tier == models.TierDown {
		return "Site down: " + name
	}
	return "Site degraded: " + name
}

// createIncident inserts inside a savepoint so a unique-index conflict does
// not abort the enclosing transaction.
func createIncident(tx *gorm.DB, event *models.AlertEvent) error {
	err := tx.Transaction(func(sp *gorm.DB) error {
		return sp.Create(event).Error
	})
	if database.IsUniqueViolation(err) {
		return fmt.Errorf("%w: %s", ErrPersistenceConflict, event.SiteID)
	}
	if err != nil {
		return fmt.Errorf("failed to create incident: %w", err)
	}
	return nil
}

// updateIncident refreshes the counters of an open incident and moves its
// severity when the tier changed.
func (r *Reconciler) updateIncident(tx *gorm.DB, open *models.AlertEvent, snap models.SiteSnapshot, tier models.HealthTier, pct float64) (escalated, changed bool, err error) {
	severity := monitor.SeverityFor(tier)
	updates := map[string]interface{}{
		"device_count":      snap.DeviceCount,
		"outage_count":      snap.DeviceOutageCount,
		"outage_percentage": pct,
	}
	if open.Severity != severity {
		escalated = severity == models.SeverityCritical
		changed = true
		name := snap.SiteName
		if name == "" {
			name = snap.SiteID
		}
		updates["severity"] = severity
		updates["event_type"] = monitor.EventTypeFor(tier)
		updates["title"] = incidentTitle(tier, name)
	}

	if err := tx.Model(open).Updates(updates).Error; err != nil {
		return false, false, fmt.Errorf("failed to update incident: %w", err)
	}
	open.DeviceCount = snap.DeviceCount
	open.OutageCount = snap.DeviceOutageCount
	open.OutagePercentage = pct
	if changed {
		open.Severity = severity
		open.EventType = monitor.EventTypeFor(tier)
		open.Title = updates["title"].(string)
	}
	return escalated, changed, nil
}

// resolveIncident closes the open incident and opens its draft post-mortem.
// recovery_notified is left false for the recovery sweep.
func (r *Reconciler) resolveIncident(tx *gorm.DB, open *models.AlertEvent, snap models.SiteSnapshot, now time.Time) (bool, error) {
	note := fmt.Sprintf("site back to normal: %d of %d devices down", snap.DeviceOutageCount, snap.DeviceCount)
	res := tx.Model(&models.AlertEvent{}).
		Where("id = ? AND status IN ?", open.ID, models.OpenStatuses).
		Updates(map[string]interface{}{
			"status":            models.AlertStatusResolved,
			"resolved_at":       now,
			"resolved_by":       "system",
			"resolved_note":     note,
			"auto_resolved":     true,
			"recovery_notified": false,
		})
	if res.Error != nil {
		return false, fmt.Errorf("failed to resolve incident: %w", res.Error)
	}
	if res.RowsAffected == 0 {
		// resolved concurrently
		return false, nil
	}

	open.Status = models.AlertStatusResolved
	open.ResolvedAt = &now
	open.ResolvedBy = "system"
	open.ResolvedNote = note
	open.AutoResolved = true
	open.RecoveryNotified = false

	if r.drafts != nil {
		if _, _, err := r.drafts.CreateDraftTx(tx, open); err != nil {
			return false, err
		}
	}
	return true, nil
}
