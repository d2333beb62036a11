package database

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/sitewatch/internal/models"
	"gorm.io/driver/postgres"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

// partialIndexes back the lifecycle invariants at the storage layer. Both
// sqlite and postgres accept the same syntax.
var partialIndexes = []string{
	// replaced by idx_alert_events_one_open
	`DROP INDEX IF EXISTS idx_alert_events_open_site`,
	// at most one open event per site, whatever its type; siteless custom
	// events are outside the constraint
	`CREATE UNIQUE INDEX IF NOT EXISTS idx_alert_events_one_open
		ON alert_events (site_id)
		WHERE deleted_at IS NULL AND status IN ('active', 'acknowledged') AND site_id <> ''`,
	// at most one post-mortem per incident
	`CREATE UNIQUE INDEX IF NOT EXISTS idx_post_mortems_event
		ON post_mortems (alert_event_id)
		WHERE deleted_at IS NULL`,
	// at most one recovery delivery per incident and recipient
	`CREATE UNIQUE INDEX IF NOT EXISTS idx_alert_notifications_recovery
		ON alert_notifications (alert_event_id, channel, recipient)
		WHERE message_type = 'recovery'`,
	`CREATE INDEX IF NOT EXISTS idx_alert_events_recovery_pending
		ON alert_events (status, auto_resolved, recovery_notified)`,
}

// Open connects to the configured driver. For sqlite the parent directory of
// the database file is created when missing.
func Open(driver, dsn string, logLevel logger.LogLevel) (*gorm.DB, error) {
	var dialector gorm.Dialector
	switch driver {
	case "sqlite", "":
		if dsn != ":memory:" && !strings.HasPrefix(dsn, "file:") {
			dir := filepath.Dir(dsn)
			if err := os.MkdirAll(dir, 0755); err != nil {
				return nil, fmt.Errorf("failed to create database directory: %w", err)
			}
		}
		dialector = sqlite.Open(withBusyTimeout(dsn))
	case "postgres":
		dialector = postgres.Open(dsn)
	default:
		return nil, fmt.Errorf("unsupported database driver %q", driver)
	}

	db, err := gorm.Open(dialector, &gorm.Config{
		TranslateError: true,
		Logger:         logger.Default.LogMode(logLevel),
	})
	if err != nil {
		return nil, fmt.Errorf("failed to connect to database: %w", err)
	}

	if driver != "postgres" {
		// sqlite allows a single writer; serialize at the pool instead of
		// surfacing SQLITE_BUSY to callers
		sqlDB, err := db.DB()
		if err != nil {
			return nil, fmt.Errorf("failed to get underlying *sql.DB: %w", err)
		}
		sqlDB.SetMaxOpenConns(1)
	}

	return db, nil
}

func withBusyTimeout(dsn string) string {
	if strings.Contains(dsn, "_busy_timeout") {
		return dsn
	}
	sep := "?"
	if strings.Contains(dsn, "?") {
		sep = "&"
	}
	return dsn + sep + "_busy_timeout=5000"
}

// Migrate creates or updates every table plus the partial unique indexes.
func Migrate(db *gorm.DB) error {
	if err := db.AutoMigrate(
		&models.SiteMonitoring{},
		&models.AlertEvent{},
		&models.AlertNotification{},
		&models.PostMortem{},
	); err != nil {
		return fmt.Errorf("failed to migrate database: %w", err)
	}

	for _, stmt := range partialIndexes {
		if err := db.Exec(stmt).Error; err != nil {
			return fmt.Errorf("failed to create index: %w", err)
		}
	}
	return nil
}

// Ping reports whether the underlying connection is usable.
func Ping(db *gorm.DB) error {
	sqlDB, err := db.DB()
	if err != nil {
		return err
	}
	return sqlDB.Ping()
}

// Close closes the database connection
func Close(db *gorm.DB) error {
	if db == nil {
		return nil
	}

	sqlDB, err := db.DB()
	if err != nil {
		return fmt.Errorf("failed to get underlying *sql.DB: %w", err)
	}

	return sqlDB.Close()
}

// IsUniqueViolation reports whether err came from a unique index. Drivers
// that do not translate their errors are matched on the message.
func IsUniqueViolation(err error) bool {
	if err == nil {
		return false
	}
	if errors.Is(err, gorm.ErrDuplicatedKey) {
		return true
	}
	msg := err.Error()
	return strings.Contains(msg, "UNIQUE constraint failed") ||
		strings.Contains(msg, "duplicate key value")
}
