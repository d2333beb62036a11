// Package testhelpers holds fixtures shared by package tests.
package testhelpers

import (
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/sitewatch/internal/database"
	"github.com/sitewatch/internal/models"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

// NewTestDB returns a migrated sqlite database living in the test's temp dir.
func NewTestDB(t *testing.T) *gorm.DB {
	t.Helper()

	db, err := database.Open("sqlite", filepath.Join(t.TempDir(), "test.db"), logger.Silent)
	if err != nil {
		t.Fatalf("failed to open test database: %v", err)
	}
	if err := database.Migrate(db); err != nil {
		t.Fatalf("failed to migrate test database: %v", err)
	}
	t.Cleanup(func() {
		if err := database.Close(db); err != nil {
			t.Logf("failed to close test database: %v", err)
		}
	})
	return db
}

// Clock is a settable time source for components that take a now func.
type Clock struct {
	mu sync.Mutex
	t  time.Time
}

func NewClock() *Clock {
	return &Clock{t: time.Date(2024, 3, 1, 10, 0, 0, 0, time.UTC)}
}

func (c *Clock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.t
}

func (c *Clock) Advance(d time.Duration) {
	c.mu.Lock()
	c.t = c.t.Add(d)
	c.mu.Unlock()
}

// Snapshot builds a provider reading for site id.
func Snapshot(id string, devices, down int) models.SiteSnapshot {
	return models.SiteSnapshot{
		SiteID:            id,
		SiteName:          "Site " + id,
		DeviceCount:       devices,
		DeviceOutageCount: down,
	}
}
