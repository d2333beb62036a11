package notify

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/sitewatch/internal/logging"
	"github.com/sitewatch/internal/models"
	"gorm.io/gorm"
)

type sentMessage struct {
	recipient string
	msg       Message
}

// fakeChannel fails the first failFirst attempts, or every attempt when
// alwaysFail is set. When block is non-nil Send waits on it or on ctx.
type fakeChannel struct {
	name       string
	failFirst  int
	alwaysFail bool
	started    chan struct{}
	block      chan struct{}

	mu       sync.Mutex
	attempts int
	keys     []string
	sent     []sentMessage
}

func (f *fakeChannel) Name() string { return f.name }

func (f *fakeChannel) Send(ctx context.Context, recipient string, msg Message) DeliveryResult {
	f.mu.Lock()
	f.attempts++
	attempt := f.attempts
	f.keys = append(f.keys, msg.DeliveryKey())
	f.mu.Unlock()

	if f.started != nil {
		select {
		case f.started <- struct{}{}:
		default:
		}
	}
	if f.block != nil {
		select {
		case <-f.block:
		case <-ctx.Done():
			return failed(ctx.Err())
		}
	}

	if f.alwaysFail || attempt <= f.failFirst {
		return failed(errors.New("gateway unavailable"))
	}

	f.mu.Lock()
	f.sent = append(f.sent, sentMessage{recipient: recipient, msg: msg})
	f.mu.Unlock()
	return delivered(fmt.Sprintf("msg-%d", attempt))
}

func (f *fakeChannel) sentCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.sent)
}

func (f *fakeChannel) attemptKeys() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]string(nil), f.keys...)
}

func (f *fakeChannel) attemptCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.attempts
}

func testConfig() DispatcherConfig {
	return DispatcherConfig{
		MaxRetries:  3,
		Backoff:     time.Millisecond,
		MaxBackoff:  2 * time.Millisecond,
		SendTimeout: time.Second,
	}
}

func newTestDispatcher(t *testing.T, db *gorm.DB, targets []Target, channels ...Channel) *Dispatcher {
	t.Helper()
	return NewDispatcher(db, channels, targets, testConfig(), logging.Discard())
}

func createEvent(t *testing.T, db *gorm.DB, status models.AlertStatus, autoResolved bool) *models.AlertEvent {
	t.Helper()
	created := time.Date(2024, 3, 1, 9, 0, 0, 0, time.UTC)
	event := &models.AlertEvent{
		SiteID:           "site-1",
		SiteName:         "Tower North",
		EventType:        models.EventTypeSiteOutage,
		Severity:         models.SeverityCritical,
		Status:           status,
		Title:            "Site down: Tower North",
		DeviceCount:      69,
		OutageCount:      66,
		OutagePercentage: 95.65,
		AutoResolved:     autoResolved,
	}
	event.CreatedAt = created
	if status == models.AlertStatusResolved {
		resolved := created.Add(45 * time.Minute)
		event.ResolvedAt = &resolved
		event.ResolvedBy = "system"
	}
	if err := db.Create(event).Error; err != nil {
		t.Fatalf("failed to create event: %v", err)
	}
	return event
}

func countRows(t *testing.T, db *gorm.DB, eventID uint, messageType models.MessageType) int64 {
	t.Helper()
	var n int64
	if err := db.Model(&models.AlertNotification{}).
		Where("alert_event_id = ? AND message_type = ?", eventID, messageType).
		Count(&n).Error; err != nil {
		t.Fatalf("count: %v", err)
	}
	return n
}

func reloadEvent(t *testing.T, db *gorm.DB, id uint) models.AlertEvent {
	t.Helper()
	var e models.AlertEvent
	if err := db.First(&e, id).Error; err != nil {
		t.Fatalf("reload event: %v", err)
	}
	return e
}
