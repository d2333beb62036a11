package models

import (
	"time"

	"gorm.io/gorm"
)

type HealthTier string

const (
	TierHealthy  HealthTier = "HEALTHY"
	TierDegraded HealthTier = "DEGRADED"
	TierDown     HealthTier = "DOWN"
)

func (t HealthTier) Abnormal() bool {
	return t == TierDegraded || t == TierDown
}

// SiteMonitoring is the last known state of a site, upserted on every pass.
type SiteMonitoring struct {
	gorm.Model
	SiteID            string     `json:"site_id" gorm:"uniqueIndex;size:100;not null"`
	SiteName          string     `json:"site_name"`
	ContactName       string     `json:"contact_name,omitempty"`
	ContactPhone      string     `json:"contact_phone,omitempty"`
	ContactEmail      string     `json:"contact_email,omitempty"`
	DeviceCount       int        `json:"device_count"`
	DeviceOutageCount int        `json:"device_outage_count"`
	OutagePercentage  float64    `json:"outage_percentage"`
	Tier              HealthTier `json:"tier" gorm:"index;size:16"`
	IsSiteDown        bool       `json:"is_site_down"`
	LastCheckedAt     time.Time  `json:"last_checked_at"`
}

// SiteSnapshot is one provider reading for one site. It is never stored as-is.
type SiteSnapshot struct {
	SiteID            string `json:"site_id"`
	SiteName          string `json:"site_name"`
	DeviceCount       int    `json:"device_count"`
	DeviceOutageCount int    `json:"device_outage_count"`
	ContactName       string `json:"contact_name,omitempty"`
	ContactPhone      string `json:"contact_phone,omitempty"`
	ContactEmail      string `json:"contact_email,omitempty"`
}
