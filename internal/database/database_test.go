package database

import (
	"path/filepath"
	"testing"

	"github.com/sitewatch/internal/models"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

func openTestDB(t *testing.T) *gorm.DB {
	t.Helper()
	db, err := Open("sqlite", filepath.Join(t.TempDir(), "nested", "test.db"), logger.Silent)
	if err != nil {
		t.Fatalf("open: %v", err)
	}
	if err := Migrate(db); err != nil {
		t.Fatalf("migrate: %v", err)
	}
	t.Cleanup(func() { Close(db) })
	return db
}

func TestOpen_UnsupportedDriver(t *testing.T) {
	if _, err := Open("mysql", "x", logger.Silent); err == nil {
		t.Fatal("expected error for unsupported driver")
	}
}

func TestWithBusyTimeout(t *testing.T) {
	tests := map[string]string{
		"data/a.db":                    "data/a.db?_busy_timeout=5000",
		"data/a.db?cache=shared":       "data/a.db?cache=shared&_busy_timeout=5000",
		"data/a.db?_busy_timeout=1000": "data/a.db?_busy_timeout=1000",
	}
	for in, want := range tests {
		if got := withBusyTimeout(in); got != want {
			t.Errorf("withBusyTimeout(%q) = %q, want %q", in, got, want)
		}
	}
}

func TestMigrate_OneOpenEventPerSite(t *testing.T) {
	db := openTestDB(t)

	first := &models.AlertEvent{SiteID: "s1", EventType: models.EventTypeSiteOutage, Severity: models.SeverityCritical, Status: models.AlertStatusActive}
	if err := db.Create(first).Error; err != nil {
		t.Fatalf("create first: %v", err)
	}

	second := &models.AlertEvent{SiteID: "s1", EventType: models.EventTypeSiteDegraded, Severity: models.SeverityHigh, Status: models.AlertStatusAcknowledged}
	err := db.Create(second).Error
	if !IsUniqueViolation(err) {
		t.Fatalf("expected unique violation, got %v", err)
	}

	// the limit holds for every event type
	custom := &models.AlertEvent{SiteID: "s1", EventType: models.EventTypeCustom, Severity: models.SeverityInfo, Status: models.AlertStatusActive}
	if err := db.Create(custom).Error; !IsUniqueViolation(err) {
		t.Fatalf("expected unique violation for custom event on s1, got %v", err)
	}

	// siteless events are outside the constraint
	for i := 0; i < 2; i++ {
		siteless := &models.AlertEvent{EventType: models.EventTypeCustom, Severity: models.SeverityInfo, Status: models.AlertStatusActive}
		if err := db.Create(siteless).Error; err != nil {
			t.Fatalf("create siteless custom %d: %v", i, err)
		}
	}

	// resolved events do not count toward the limit
	if err := db.Model(first).Update("status", models.AlertStatusResolved).Error; err != nil {
		t.Fatalf("resolve: %v", err)
	}
	if err := db.Create(&models.AlertEvent{SiteID: "s1", EventType: models.EventTypeSiteOutage, Severity: models.SeverityCritical, Status: models.AlertStatusActive}).Error; err != nil {
		t.Fatalf("create after resolve: %v", err)
	}
}

func TestMigrate_OneRecoveryPerRecipient(t *testing.T) {
	db := openTestDB(t)

	n := func() *models.AlertNotification {
		return &models.AlertNotification{AlertEventID: 7, Channel: "slack", Recipient: "#noc", MessageType: models.MessageTypeRecovery, Status: models.NotificationStatusPending}
	}
	if err := db.Create(n()).Error; err != nil {
		t.Fatalf("create: %v", err)
	}
	if err := db.Create(n()).Error; !IsUniqueViolation(err) {
		t.Fatalf("expected unique violation, got %v", err)
	}

	// outage rows are append-only history and may repeat
	for i := 0; i < 2; i++ {
		row := n()
		row.MessageType = models.MessageTypeFull
		if err := db.Create(row).Error; err != nil {
			t.Fatalf("create full #%d: %v", i, err)
		}
	}
}

func TestIsUniqueViolation(t *testing.T) {
	if IsUniqueViolation(nil) {
		t.Error("nil is not a violation")
	}
}
