package monitor

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"
	"github.com/sitewatch/internal/models"
	"golang.org/x/sync/semaphore"
)

const (
	defaultFetchTimeout       = 10 * time.Second
	defaultMaxConcurrentSites = 8
)

// Outcome describes what reconciling one snapshot did to the site's incident.
type Outcome struct {
	Tier             models.HealthTier
	OutagePercentage float64
	// Event is the incident that was created, updated or resolved, if any.
	Event     *models.AlertEvent
	Created   bool
	Updated   bool
	Escalated bool
	Resolved  bool
	// Conflict is set when a concurrent writer opened the incident first.
	Conflict bool
	// Notify asks the caller to deliver an outage notification for Event.
	Notify bool
}

type Reconciler interface {
	Reconcile(ctx context.Context, snapshot models.SiteSnapshot) (Outcome, error)
}

// OutageNotifier delivers outage notifications. Delivery failures are
// recorded by the notifier; a returned error means the attempt could not
// even be recorded.
type OutageNotifier interface {
	DispatchOutage(ctx context.Context, event *models.AlertEvent) error
}

// PassSummary is the result of one monitoring pass.
type PassSummary struct {
	PassID         string    `json:"pass_id"`
	Trigger        string    `json:"trigger,omitempty"`
	StartedAt      time.Time `json:"started_at"`
	FinishedAt     time.Time `json:"finished_at"`
	DurationMs     int64     `json:"duration_ms"`
	SitesChecked   int       `json:"sites_checked"`
	SitesDown      int       `json:"sites_down"`
	SitesDegraded  int       `json:"sites_degraded"`
	SitesSkipped   int       `json:"sites_skipped"`
	EventsCreated  int       `json:"events_created"`
	EventsUpdated  int       `json:"events_updated"`
	EventsResolved int       `json:"events_resolved"`
	Errors         int       `json:"errors"`
	ProviderError  string    `json:"provider_error,omitempty"`
}

type ScannerConfig struct {
	FetchTimeout       time.Duration
	MaxConcurrentSites int
}

// Scanner runs one reconciliation pass over every site the provider reports.
type Scanner struct {
	provider   SnapshotProvider
	reconciler Reconciler
	notifier   OutageNotifier
	cfg        ScannerConfig
	metrics    *Metrics
	log        logrus.FieldLogger
	now        func() time.Time
}

func NewScanner(provider SnapshotProvider, reconciler Reconciler, notifier OutageNotifier, cfg ScannerConfig, metrics *Metrics, log logrus.FieldLogger) *Scanner {
	if cfg.FetchTimeout <= 0 {
		cfg.FetchTimeout = defaultFetchTimeout
	}
	if cfg.MaxConcurrentSites <= 0 {
		cfg.MaxConcurrentSites = defaultMaxConcurrentSites
	}
	return &Scanner{
		provider:   provider,
		reconciler: reconciler,
		notifier:   notifier,
		cfg:        cfg,
		metrics:    metrics,
		log:        log,
		now:        time.Now,
	}
}

// SetClock replaces the scanner's time source.
func (s *Scanner) SetClock(now func() time.Time) {
	s.now = now
}

// Run executes one pass. It never returns an error: provider failures and
// per-site failures are reported in the summary.
func (s *Scanner) Run(ctx context.Context) (summary PassSummary) {
	summary = PassSummary{
		PassID:    uuid.NewString(),
		StartedAt: s.now(),
	}
	log := s.log.WithField("pass", summary.PassID)
	started := time.Now()
	defer func() {
		summary.FinishedAt = s.now()
		if s.metrics != nil {
			s.metrics.ScanDuration.Observe(time.Since(started).Seconds())
		}
	}()

	fetchCtx, cancel := context.WithTimeout(ctx, s.cfg.FetchTimeout)
	snapshots, err := s.provider.FetchSnapshots(fetchCtx)
	cancel()
	if err != nil {
		if !errors.Is(err, ErrProviderUnavailable) {
			err = errors.Join(ErrProviderUnavailable, err)
		}
		summary.Errors = 1
		summary.ProviderError = err.Error()
		s.finish(&summary, started, "provider_error")
		log.WithError(err).Warn("Monitoring pass aborted: provider unavailable")
		return summary
	}

	var (
		mu  sync.Mutex
		wg  sync.WaitGroup
		sem = semaphore.NewWeighted(int64(s.cfg.MaxConcurrentSites))
	)

	for _, snap := range snapshots {
		if err := sem.Acquire(ctx, 1); err != nil {
			// cancelled; remaining sites are left for the next pass
			mu.Lock()
			summary.Errors++
			mu.Unlock()
			log.WithError(err).Warn("Monitoring pass cancelled")
			break
		}
		wg.Add(1)
		go func(snap models.SiteSnapshot) {
			defer wg.Done()
			defer sem.Release(1)

			res := s.processSite(ctx, log, snap)

			mu.Lock()
			res.apply(&summary)
			mu.Unlock()
		}(snap)
	}
	wg.Wait()

	result := "ok"
	if summary.Errors > 0 {
		result = "partial"
	}
	s.finish(&summary, started, result)

	log.WithFields(logrus.Fields{
		"sites_checked":   summary.SitesChecked,
		"sites_down":      summary.SitesDown,
		"sites_degraded":  summary.SitesDegraded,
		"sites_skipped":   summary.SitesSkipped,
		"events_created":  summary.EventsCreated,
		"events_resolved": summary.EventsResolved,
		"errors":          summary.Errors,
	}).Info("Monitoring pass finished")
	return summary
}

func (s *Scanner) finish(summary *PassSummary, started time.Time, result string) {
	summary.DurationMs = time.Since(started).Milliseconds()
	if s.metrics == nil {
		return
	}
	s.metrics.ScanPasses.WithLabelValues(result).Inc()
	if result == "provider_error" {
		return
	}
	healthy := summary.SitesChecked - summary.SitesDown - summary.SitesDegraded - summary.SitesSkipped
	s.metrics.Sites.WithLabelValues(string(models.TierHealthy)).Set(float64(healthy))
	s.metrics.Sites.WithLabelValues(string(models.TierDegraded)).Set(float64(summary.SitesDegraded))
	s.metrics.Sites.WithLabelValues(string(models.TierDown)).Set(float64(summary.SitesDown))
}

type siteResult struct {
	skipped bool
	failed  bool
	tier    models.HealthTier
	outcome Outcome
}

func (r siteResult) apply(summary *PassSummary) {
	summary.SitesChecked++
	if r.skipped {
		summary.SitesSkipped++
	}
	if r.failed {
		summary.Errors++
		return
	}
	switch r.tier {
	case models.TierDown:
		summary.SitesDown++
	case models.TierDegraded:
		summary.SitesDegraded++
	}
	if r.outcome.Created {
		summary.EventsCreated++
	}
	if r.outcome.Updated {
		summary.EventsUpdated++
	}
	if r.outcome.Resolved {
		summary.EventsResolved++
	}
}

func (s *Scanner) processSite(ctx context.Context, log logrus.FieldLogger, snap models.SiteSnapshot) siteResult {
	log = log.WithField("site_id", snap.SiteID)

	if err := ValidateSnapshot(snap); err != nil {
		log.WithError(err).Warn("Skipping malformed snapshot")
		return siteResult{skipped: true, failed: true}
	}
	if err := ctx.Err(); err != nil {
		return siteResult{failed: true}
	}

	outcome, err := s.reconciler.Reconcile(ctx, snap)
	if err != nil {
		log.WithError(err).Error("Failed to reconcile site")
		return siteResult{failed: true}
	}
	s.countEvents(outcome)

	if outcome.Notify && outcome.Event != nil && s.notifier != nil {
		if err := s.notifier.DispatchOutage(ctx, outcome.Event); err != nil {
			log.WithError(err).WithField("event_id", outcome.Event.ID).Error("Failed to record outage notification")
		}
	}
	return siteResult{tier: outcome.Tier, outcome: outcome}
}

func (s *Scanner) countEvents(o Outcome) {
	if s.metrics == nil {
		return
	}
	switch {
	case o.Created:
		s.metrics.Events.WithLabelValues("created").Inc()
	case o.Resolved:
		s.metrics.Events.WithLabelValues("resolved").Inc()
	case o.Escalated:
		s.metrics.Events.WithLabelValues("escalated").Inc()
	case o.Updated:
		s.metrics.Events.WithLabelValues("updated").Inc()
	case o.Conflict:
		s.metrics.Events.WithLabelValues("conflict").Inc()
	}
}
