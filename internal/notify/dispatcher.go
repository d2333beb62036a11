package notify

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/failsafe-go/failsafe-go"
	"github.com/failsafe-go/failsafe-go/retrypolicy"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/sirupsen/logrus"
	"github.com/sitewatch/internal/database"
	"github.com/sitewatch/internal/models"
	"gorm.io/gorm"
)

// Target routes outage messages of one type to one recipient. Recovery
// messages go to every distinct (channel, recipient) pair.
type Target struct {
	Channel     string
	Recipient   string
	MessageType models.MessageType
}

type DispatcherConfig struct {
	MaxRetries  int
	Backoff     time.Duration
	MaxBackoff  time.Duration
	SendTimeout time.Duration
}

type SweepResult struct {
	Skipped  bool `json:"skipped"`
	Events   int  `json:"events"`
	Sent     int  `json:"sent"`
	Failed   int  `json:"failed"`
	Notified int  `json:"notified"`
}

type NotificationFilter struct {
	EventID     uint
	Status      string
	Channel     string
	MessageType string
	Limit       int
}

// Dispatcher records and delivers notifications. Every delivery is backed by
// an AlertNotification row written before the first attempt, so a failure is
// never lost. Recovery delivery is driven from the recovery_notified flag on
// the event, not from the pass that resolved it.
type Dispatcher struct {
	db         *gorm.DB
	channels   map[string]Channel
	targets    []Target
	cfg        DispatcherConfig
	log        logrus.FieldLogger
	deliveries *prometheus.CounterVec
	now        func() time.Time

	sweepMutex sync.Mutex
}

func NewDispatcher(db *gorm.DB, channels []Channel, targets []Target, cfg DispatcherConfig, log logrus.FieldLogger) *Dispatcher {
	if cfg.MaxRetries < 0 {
		cfg.MaxRetries = 0
	}
	if cfg.Backoff <= 0 {
		cfg.Backoff = 2 * time.Second
	}
	if cfg.MaxBackoff < cfg.Backoff {
		cfg.MaxBackoff = cfg.Backoff
	}
	if cfg.SendTimeout <= 0 {
		cfg.SendTimeout = 10 * time.Second
	}

	byName := make(map[string]Channel, len(channels))
	for _, ch := range channels {
		byName[ch.Name()] = ch
	}

	return &Dispatcher{
		db:       db,
		channels: byName,
		targets:  targets,
		cfg:      cfg,
		log:      log,
		now:      time.Now,
	}
}

// SetMetrics counts final delivery outcomes on cv, labelled channel,
// message_type and status.
func (d *Dispatcher) SetMetrics(cv *prometheus.CounterVec) {
	d.deliveries = cv
}

func (d *Dispatcher) SetClock(now func() time.Time) {
	d.now = now
}

// DispatchOutage records and delivers one message per full/summary target.
// Delivery failures end up in the rows; the returned error only reports a
// row that could not be written.
func (d *Dispatcher) DispatchOutage(ctx context.Context, event *models.AlertEvent) error {
	var site *models.SiteMonitoring
	if event.SiteID != "" {
		var s models.SiteMonitoring
		if err := d.db.Where("site_id = ?", event.SiteID).First(&s).Error; err == nil {
			site = &s
		}
	}

	for _, t := range d.targets {
		if t.MessageType != models.MessageTypeFull && t.MessageType != models.MessageTypeSummary {
			continue
		}
		msg := FormatOutage(event, site, t.MessageType)
		row := &models.AlertNotification{
			AlertEventID: event.ID,
			Channel:      t.Channel,
			Recipient:    t.Recipient,
			MessageType:  t.MessageType,
			Status:       models.NotificationStatusPending,
			Content:      msg.Text,
		}
		if err := d.db.Create(row).Error; err != nil {
			return fmt.Errorf("failed to record %s notification for event %d: %w", t.MessageType, event.ID, err)
		}

		if !d.deliver(ctx, row, msg) {
			// interrupted outage deliveries are closed as failed so they can be retried by hand
			d.finalize(row, 0, DeliveryResult{Err: fmt.Errorf("delivery interrupted: %w", ctx.Err())})
		}
	}
	return nil
}

// SweepRecoveries delivers recovery notices for every auto-resolved event
// whose recovery_notified flag is still false. It is safe to call at any
// time and any number of times; concurrent calls in the same process return
// immediately with Skipped set.
func (d *Dispatcher) SweepRecoveries(ctx context.Context) (SweepResult, error) {
	var result SweepResult
	if !d.sweepMutex.TryLock() {
		result.Skipped = true
		return result, nil
	}
	defer d.sweepMutex.Unlock()

	var events []models.AlertEvent
	if err := d.db.WithContext(ctx).
		Where("status = ? AND auto_resolved = ? AND recovery_notified = ?", models.AlertStatusResolved, true, false).
		Order("id").
		Find(&events).Error; err != nil {
		return result, fmt.Errorf("failed to list pending recoveries: %w", err)
	}

	for i := range events {
		if ctx.Err() != nil {
			break
		}
		result.Events++
		if err := d.recoverEvent(ctx, &events[i], &result); err != nil {
			d.log.WithError(err).WithField("event_id", events[i].ID).Error("Recovery delivery failed")
		}
	}

	if result.Events > 0 {
		d.log.WithFields(logrus.Fields{
			"events":   result.Events,
			"sent":     result.Sent,
			"failed":   result.Failed,
			"notified": result.Notified,
		}).Info("Recovery sweep finished")
	}
	return result, nil
}

func (d *Dispatcher) recoverEvent(ctx context.Context, event *models.AlertEvent, result *SweepResult) error {
	log := d.log.WithField("event_id", event.ID)
	msg := FormatRecovery(event)

	complete := true
	for _, t := range d.recoveryTargets() {
		row, err := d.claimRecovery(event.ID, t, msg.Text)
		if err != nil {
			return err
		}
		if row.Status.Terminal() {
			continue
		}

		if !d.deliver(ctx, row, msg) {
			// left pending; the next sweep picks it up
			complete = false
			break
		}
		if row.Status == models.NotificationStatusSent {
			result.Sent++
		} else {
			result.Failed++
		}
	}
	if !complete {
		return nil
	}

	res := d.db.Model(&models.AlertEvent{}).
		Where("id = ? AND recovery_notified = ?", event.ID, false).
		Update("recovery_notified", true)
	if res.Error != nil {
		return fmt.Errorf("failed to flag recovery as notified: %w", res.Error)
	}
	if res.RowsAffected == 1 {
		result.Notified++
		log.Info("Recovery notification completed")
	}
	return nil
}

// claimRecovery returns the recovery row for the event and target, creating
// it when absent. The partial unique index guarantees a single row.
func (d *Dispatcher) claimRecovery(eventID uint, t Target, content string) (*models.AlertNotification, error) {
	row := &models.AlertNotification{
		AlertEventID: eventID,
		Channel:      t.Channel,
		Recipient:    t.Recipient,
		MessageType:  models.MessageTypeRecovery,
		Status:       models.NotificationStatusPending,
		Content:      content,
	}
	err := d.db.Create(row).Error
	if err == nil {
		return row, nil
	}
	if !database.IsUniqueViolation(err) {
		return nil, fmt.Errorf("failed to record recovery notification: %w", err)
	}

	var existing models.AlertNotification
	if err := d.db.Where("alert_event_id = ? AND channel = ? AND recipient = ? AND message_type = ?",
		eventID, t.Channel, t.Recipient, models.MessageTypeRecovery).
		First(&existing).Error; err != nil {
		return nil, fmt.Errorf("failed to load recovery notification: %w", err)
	}
	return &existing, nil
}

func (d *Dispatcher) recoveryTargets() []Target {
	type key struct{ channel, recipient string }
	seen := make(map[key]bool, len(d.targets))
	out := make([]Target, 0, len(d.targets))
	for _, t := range d.targets {
		k := key{t.Channel, t.Recipient}
		if seen[k] {
			continue
		}
		seen[k] = true
		out = append(out, Target{Channel: t.Channel, Recipient: t.Recipient, MessageType: models.MessageTypeRecovery})
	}
	return out
}

// Retry re-delivers a failed notification and returns the updated row.
func (d *Dispatcher) Retry(ctx context.Context, id uint) (*models.AlertNotification, error) {
	row, err := d.Get(id)
	if err != nil {
		return nil, err
	}
	if row.Status != models.NotificationStatusFailed {
		return nil, fmt.Errorf("%w: notification %d is %s", ErrNotRetryable, id, row.Status)
	}

	var event models.AlertEvent
	if err := d.db.Unscoped().First(&event, row.AlertEventID).Error; err != nil {
		return nil, fmt.Errorf("failed to load event %d: %w", row.AlertEventID, err)
	}

	var msg Message
	if row.MessageType == models.MessageTypeRecovery {
		msg = FormatRecovery(&event)
	} else {
		msg = FormatOutage(&event, nil, row.MessageType)
	}
	msg.Text = row.Content

	if err := d.db.Model(row).Updates(map[string]interface{}{
		"status": models.NotificationStatusRetry,
	}).Error; err != nil {
		return nil, fmt.Errorf("failed to update notification: %w", err)
	}
	row.Status = models.NotificationStatusRetry

	if !d.deliver(ctx, row, msg) {
		d.finalize(row, 0, DeliveryResult{Err: fmt.Errorf("delivery interrupted: %w", ctx.Err())})
	}
	return row, nil
}

func (d *Dispatcher) Get(id uint) (*models.AlertNotification, error) {
	var row models.AlertNotification
	if err := d.db.First(&row, id).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, fmt.Errorf("%w: %d", ErrNotificationNotFound, id)
		}
		return nil, err
	}
	return &row, nil
}

func (d *Dispatcher) List(filter NotificationFilter) ([]models.AlertNotification, error) {
	query := d.db.Model(&models.AlertNotification{})
	if filter.EventID != 0 {
		query = query.Where("alert_event_id = ?", filter.EventID)
	}
	if filter.Status != "" {
		query = query.Where("status = ?", filter.Status)
	}
	if filter.Channel != "" {
		query = query.Where("channel = ?", filter.Channel)
	}
	if filter.MessageType != "" {
		query = query.Where("message_type = ?", filter.MessageType)
	}
	limit := filter.Limit
	if limit <= 0 {
		limit = 100
	}

	var rows []models.AlertNotification
	if err := query.Order("created_at DESC, id DESC").Limit(limit).Find(&rows).Error; err != nil {
		return nil, err
	}
	return rows, nil
}

// deliver sends msg with retries and writes the final state into row. It
// returns false, leaving row untouched, when ctx ended before a final state
// was reached.
func (d *Dispatcher) deliver(ctx context.Context, row *models.AlertNotification, msg Message) bool {
	msg.NotificationID = row.ID
	ch, ok := d.channels[row.Channel]
	if !ok {
		d.finalize(row, 0, failed(fmt.Errorf("%w: channel %q is not configured", ErrPermanent, row.Channel)))
		return true
	}

	attempts := 0
	result, err := failsafe.With(d.retryPolicy()).WithContext(ctx).Get(func() (DeliveryResult, error) {
		attempts++
		sendCtx, cancel := context.WithTimeout(ctx, d.cfg.SendTimeout)
		defer cancel()
		res := ch.Send(sendCtx, row.Recipient, msg)
		if !res.OK && res.Err == nil {
			res.Err = errors.New("channel reported failure")
		}
		return res, res.Err
	})
	if err != nil && ctx.Err() != nil {
		return false
	}
	if err != nil {
		result = failed(err)
	}

	retries := attempts - 1
	if retries < 0 {
		retries = 0
	}
	d.finalize(row, retries, result)
	return true
}

func (d *Dispatcher) retryPolicy() retrypolicy.RetryPolicy[DeliveryResult] {
	builder := retrypolicy.NewBuilder[DeliveryResult]().
		HandleIf(func(_ DeliveryResult, err error) bool {
			return err != nil && !errors.Is(err, ErrPermanent)
		}).
		WithMaxRetries(d.cfg.MaxRetries)
	if d.cfg.MaxBackoff > d.cfg.Backoff {
		builder = builder.WithBackoff(d.cfg.Backoff, d.cfg.MaxBackoff)
	} else {
		builder = builder.WithDelay(d.cfg.Backoff)
	}
	return builder.Build()
}

func (d *Dispatcher) finalize(row *models.AlertNotification, retries int, result DeliveryResult) {
	now := d.now()
	updates := map[string]interface{}{
		"retry_count": row.RetryCount + retries,
	}
	if result.OK {
		updates["status"] = models.NotificationStatusSent
		updates["sent_at"] = now
		updates["provider_message_id"] = result.ProviderMessageID
		updates["error_message"] = ""
	} else {
		msg := "unknown error"
		if result.Err != nil {
			msg = result.Err.Error()
		}
		updates["status"] = models.NotificationStatusFailed
		updates["failed_at"] = now
		updates["error_message"] = msg
	}

	log := d.log.WithFields(logrus.Fields{
		"event_id":     row.AlertEventID,
		"channel":      row.Channel,
		"message_type": row.MessageType,
	})
	if err := d.db.Model(row).Updates(updates).Error; err != nil {
		log.WithError(err).Error("Failed to record delivery result")
	}

	row.RetryCount += retries
	if result.OK {
		row.Status = models.NotificationStatusSent
		row.SentAt = &now
		row.ProviderMessageID = result.ProviderMessageID
		row.ErrorMessage = ""
		log.Info("Notification sent")
	} else {
		row.Status = models.NotificationStatusFailed
		row.FailedAt = &now
		row.ErrorMessage = updates["error_message"].(string)
		log.WithField("error", row.ErrorMessage).Warn("Notification failed")
	}

	if d.deliveries != nil {
		d.deliveries.WithLabelValues(row.Channel, string(row.MessageType), string(row.Status)).Inc()
	}
}
