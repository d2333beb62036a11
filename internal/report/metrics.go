package report

import (
	"time"

	"github.com/sitewatch/internal/models"
)

// IncidentMetrics are the durations of one incident. Response is nil until
// the event was acknowledged; Resolution is nil while the incident is open.
type IncidentMetrics struct {
	Detection       time.Duration
	Response        *time.Duration
	Resolution      *time.Duration
	DowntimeMinutes int
}

// Compute derives the metrics of a post-mortem from its incident window and
// its event. The window defaults to the event's created_at and resolved_at,
// so an unedited post-mortem measures resolution as resolved_at - created_at.
func Compute(pm *models.PostMortem, event *models.AlertEvent) IncidentMetrics {
	var m IncidentMetrics

	if !pm.IncidentStart.IsZero() && event.CreatedAt.After(pm.IncidentStart) {
		m.Detection = event.CreatedAt.Sub(pm.IncidentStart)
	}

	if event.AcknowledgedAt != nil {
		d := nonNegative(event.AcknowledgedAt.Sub(event.CreatedAt))
		m.Response = &d
	}

	start := pm.IncidentStart
	if start.IsZero() {
		start = event.CreatedAt
	}
	end := pm.IncidentEnd
	if end == nil {
		end = event.ResolvedAt
	}
	if end != nil {
		d := nonNegative(end.Sub(start))
		m.Resolution = &d
		m.DowntimeMinutes = int(d / time.Minute)
	}
	return m
}

func nonNegative(d time.Duration) time.Duration {
	if d < 0 {
		return 0
	}
	return d
}

func applyMetrics(pm *models.PostMortem, m IncidentMetrics) {
	pm.DetectionSeconds = int64(m.Detection / time.Second)
	pm.ResponseSeconds = seconds(m.Response)
	pm.ResolutionSeconds = seconds(m.Resolution)
	pm.DowntimeMinutes = m.DowntimeMinutes
}

func seconds(d *time.Duration) *int64 {
	if d == nil {
		return nil
	}
	s := int64(*d / time.Second)
	return &s
}

func minutes(d *time.Duration) *float64 {
	if d == nil {
		return nil
	}
	m := roundTo(d.Minutes(), 2)
	return &m
}

func roundTo(v float64, places int) float64 {
	p := 1.0
	for i := 0; i < places; i++ {
		p *= 10
	}
	return float64(int64(v*p+0.5)) / p
}
