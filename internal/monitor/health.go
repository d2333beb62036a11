package monitor

import (
	"fmt"

	"github.com/sitewatch/internal/models"
)

const (
	DefaultOutageThreshold   = 95.0
	DefaultDegradedThreshold = 50.0
)

// Thresholds are outage percentages. Each is the inclusive lower edge of its tier.
type Thresholds struct {
	Outage   float64
	Degraded float64
}

func DefaultThresholds() Thresholds {
	return Thresholds{Outage: DefaultOutageThreshold, Degraded: DefaultDegradedThreshold}
}

func (t Thresholds) Validate() error {
	if t.Outage <= 0 || t.Outage > 100 {
		return fmt.Errorf("outage threshold must be in (0, 100], got %v", t.Outage)
	}
	if t.Degraded <= 0 || t.Degraded > t.Outage {
		return fmt.Errorf("degraded threshold must be in (0, %v], got %v", t.Outage, t.Degraded)
	}
	return nil
}

// OutagePercentage returns 100*down/devices clamped to [0, 100]. A site with
// no devices reports 0.
func OutagePercentage(devices, down int) float64 {
	if devices <= 0 {
		return 0
	}
	pct := 100 * float64(down) / float64(devices)
	if pct < 0 {
		return 0
	}
	if pct > 100 {
		return 100
	}
	return pct
}

// Classify maps device counters to a health tier.
func Classify(devices, down int, t Thresholds) (models.HealthTier, float64) {
	pct := OutagePercentage(devices, down)
	if devices <= 0 {
		return models.TierHealthy, pct
	}
	switch {
	case pct >= t.Outage:
		return models.TierDown, pct
	case pct >= t.Degraded:
		return models.TierDegraded, pct
	default:
		return models.TierHealthy, pct
	}
}

// SeverityFor is the event severity an abnormal tier opens with.
func SeverityFor(tier models.HealthTier) models.Severity {
	if tier == models.TierDown {
		return models.SeverityCritical
	}
	return models.SeverityHigh
}

func EventTypeFor(tier models.HealthTier) models.EventType {
	if tier == models.TierDown {
		return models.EventTypeSiteOutage
	}
	return models.EventTypeSiteDegraded
}
