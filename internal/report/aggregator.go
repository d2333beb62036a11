package report

import (
	"errors"
	"fmt"
	"sort"
	"time"

	"github.com/sitewatch/internal/models"
	"gorm.io/gorm"
)

// Aggregator builds read-only reports. It never writes.
type Aggregator struct {
	db *gorm.DB
}

func NewAggregator(db *gorm.DB) *Aggregator {
	return &Aggregator{db: db}
}

type ReportMetrics struct {
	DetectionMinutes  float64  `json:"detection_time_minutes"`
	ResponseMinutes   *float64 `json:"response_time_minutes"`
	ResolutionMinutes *float64 `json:"resolution_time_minutes"`
	DowntimeMinutes   int      `json:"downtime_minutes"`
	MTTRMinutes       *float64 `json:"mttr_minutes"`
	MTTRHours         *float64 `json:"mttr_hours"`
}

type Report struct {
	PostMortem    models.PostMortem `json:"post_mortem"`
	Event         models.AlertEvent `json:"event"`
	Metrics       ReportMetrics     `json:"metrics"`
	Notifications map[string]int    `json:"notifications"`
	GeneratedAt   time.Time         `json:"generated_at"`
}

// Report computes the metrics for one post-mortem from current data.
func (a *Aggregator) Report(id uint) (*Report, error) {
	var pm models.PostMortem
	if err := a.db.First(&pm, id).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, fmt.Errorf("%w: %d", ErrPostMortemNotFound, id)
		}
		return nil, err
	}

	var event models.AlertEvent
	if err := a.db.Unscoped().First(&event, pm.AlertEventID).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, fmt.Errorf("%w: %d", models.ErrEventNotFound, pm.AlertEventID)
		}
		return nil, err
	}

	m := Compute(&pm, &event)
	metrics := ReportMetrics{
		DetectionMinutes:  roundTo(m.Detection.Minutes(), 2),
		ResponseMinutes:   minutes(m.Response),
		ResolutionMinutes: minutes(m.Resolution),
		DowntimeMinutes:   m.DowntimeMinutes,
	}
	if m.Resolution != nil {
		mttr := metrics.ResolutionMinutes
		hours := roundTo(m.Resolution.Hours(), 2)
		metrics.MTTRMinutes = mttr
		metrics.MTTRHours = &hours
	}

	var rows []struct {
		Status string
		Count  int
	}
	if err := a.db.Model(&models.AlertNotification{}).
		Select("status, count(*) as count").
		Where("alert_event_id = ?", event.ID).
		Group("status").
		Scan(&rows).Error; err != nil {
		return nil, err
	}
	notifications := make(map[string]int, len(rows))
	for _, r := range rows {
		notifications[r.Status] = r.Count
	}

	return &Report{
		PostMortem:    pm,
		Event:         event,
		Metrics:       metrics,
		Notifications: notifications,
		GeneratedAt:   time.Now(),
	}, nil
}

type SiteReliability struct {
	SiteID      string   `json:"site_id"`
	SiteName    string   `json:"site_name"`
	Incidents   int      `json:"incidents"`
	MTTRMinutes *float64 `json:"mttr_minutes,omitempty"`
	MTBFHours   *float64 `json:"mtbf_hours,omitempty"`
}

type Summary struct {
	From          time.Time         `json:"from"`
	To            time.Time         `json:"to"`
	Incidents     int               `json:"incidents"`
	Resolved      int               `json:"resolved"`
	AutoResolved  int               `json:"auto_resolved"`
	BySeverity    map[string]int    `json:"by_severity"`
	MTTRMinutes   *float64          `json:"mttr_minutes"`
	MTBFHours     *float64          `json:"mtbf_hours"`
	TotalDowntime float64           `json:"total_downtime_minutes"`
	Sites         []SiteReliability `json:"sites"`
}

// Summary aggregates every site incident created in [from, to). MTTR is the
// mean resolution time of the resolved ones; MTBF is the mean time between
// consecutive incidents of the same site, per site and over all sites.
func (a *Aggregator) Summary(from, to time.Time) (*Summary, error) {
	if !to.After(from) {
		return nil, fmt.Errorf("invalid period: %s is not after %s", to, from)
	}

	var events []models.AlertEvent
	if err := a.db.
		Where("site_id <> '' AND created_at >= ? AND created_at < ?", from, to).
		Where("event_type <> ?", models.EventTypeCustom).
		Order("created_at").
		Find(&events).Error; err != nil {
		return nil, err
	}

	s := &Summary{
		From:       from,
		To:         to,
		Incidents:  len(events),
		BySeverity: make(map[string]int),
		Sites:      []SiteReliability{},
	}

	type siteAcc struct {
		name        string
		count       int
		resolutions []time.Duration
		gaps        []time.Duration
		last        time.Time
	}
	perSite := make(map[string]*siteAcc)
	var allResolutions, allGaps []time.Duration

	for _, e := range events {
		s.BySeverity[string(e.Severity)]++

		acc, ok := perSite[e.SiteID]
		if !ok {
			acc = &siteAcc{name: e.SiteName}
			perSite[e.SiteID] = acc
		} else {
			gap := e.CreatedAt.Sub(acc.last)
			acc.gaps = append(acc.gaps, gap)
			allGaps = append(allGaps, gap)
		}
		acc.last = e.CreatedAt
		acc.count++

		if e.Status == models.AlertStatusResolved && e.ResolvedAt != nil {
			s.Resolved++
			if e.AutoResolved {
				s.AutoResolved++
			}
			d := nonNegative(e.ResolvedAt.Sub(e.CreatedAt))
			acc.resolutions = append(acc.resolutions, d)
			allResolutions = append(allResolutions, d)
			s.TotalDowntime += d.Minutes()
		}
	}

	s.MTTRMinutes = meanIn(allResolutions, time.Minute)
	s.MTBFHours = meanIn(allGaps, time.Hour)
	s.TotalDowntime = roundTo(s.TotalDowntime, 2)

	for id, acc := range perSite {
		s.Sites = append(s.Sites, SiteReliability{
			SiteID:      id,
			SiteName:    acc.name,
			Incidents:   acc.count,
			MTTRMinutes: meanIn(acc.resolutions, time.Minute),
			MTBFHours:   meanIn(acc.gaps, time.Hour),
		})
	}
	sort.Slice(s.Sites, func(i, j int) bool {
		if s.Sites[i].Incidents != s.Sites[j].Incidents {
			return s.Sites[i].Incidents > s.Sites[j].Incidents
		}
		return s.Sites[i].SiteID < s.Sites[j].SiteID
	})
	return s, nil
}

// meanIn returns the mean of ds expressed in unit, or nil for no samples.
func meanIn(ds []time.Duration, unit time.Duration) *float64 {
	if len(ds) == 0 {
		return nil
	}
	var total time.Duration
	for _, d := range ds {
		total += d
	}
	v := roundTo(float64(total)/float64(len(ds))/float64(unit), 2)
	return &v
}
