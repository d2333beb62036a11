package monitor

import (
	"math"
	"testing"

	"github.com/sitewatch/internal/models"
)

func TestClassify(t *testing.T) {
	th := DefaultThresholds()
	tests := []struct {
		name     string
		devices  int
		down     int
		wantTier models.HealthTier
		wantPct  float64
	}{
		{"down", 69, 66, models.TierDown, 95.652},
		{"all down", 10, 10, models.TierDown, 100},
		{"exactly outage threshold", 20, 19, models.TierDown, 95},
		{"degraded", 69, 35, models.TierDegraded, 50.725},
		{"exactly degraded threshold", 10, 5, models.TierDegraded, 50},
		{"just below degraded", 69, 34, models.TierHealthy, 49.275},
		{"healthy", 69, 0, models.TierHealthy, 0},
		{"no devices", 0, 0, models.TierHealthy, 0},
		{"more down than devices", 10, 12, models.TierDown, 100},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			tier, pct := Classify(tt.devices, tt.down, th)
			if tier != tt.wantTier {
				t.Errorf("tier = %s, want %s", tier, tt.wantTier)
			}
			if math.Abs(pct-tt.wantPct) > 0.001 {
				t.Errorf("pct = %.3f, want %.3f", pct, tt.wantPct)
			}
		})
	}
}

func TestClassify_CustomThresholds(t *testing.T) {
	th := Thresholds{Outage: 80, Degraded: 20}
	if tier, _ := Classify(10, 8, th); tier != models.TierDown {
		t.Errorf("expected DOWN at 80%%, got %s", tier)
	}
	if tier, _ := Classify(10, 2, th); tier != models.TierDegraded {
		t.Errorf("expected DEGRADED at 20%%, got %s", tier)
	}
}

func TestThresholds_Validate(t *testing.T) {
	tests := []struct {
		th      Thresholds
		wantErr bool
	}{
		{DefaultThresholds(), false},
		{Thresholds{Outage: 100, Degraded: 100}, false},
		{Thresholds{Outage: 0, Degraded: 0}, true},
		{Thresholds{Outage: 101, Degraded: 50}, true},
		{Thresholds{Outage: 50, Degraded: 60}, true},
		{Thresholds{Outage: 90, Degraded: -1}, true},
	}
	for _, tt := range tests {
		if err := tt.th.Validate(); (err != nil) != tt.wantErr {
			t.Errorf("%+v: Validate() = %v, wantErr %v", tt.th, err, tt.wantErr)
		}
	}
}

func TestSeverityAndEventType(t *testing.T) {
	if SeverityFor(models.TierDown) != models.SeverityCritical || EventTypeFor(models.TierDown) != models.EventTypeSiteOutage {
		t.Error("DOWN must open a critical site_outage")
	}
	if SeverityFor(models.TierDegraded) != models.SeverityHigh || EventTypeFor(models.TierDegraded) != models.EventTypeSiteDegraded {
		t.Error("DEGRADED must open a high site_degraded")
	}
}
