package monitor_test

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/sitewatch/internal/alert"
	"github.com/sitewatch/internal/logging"
	"github.com/sitewatch/internal/models"
	"github.com/sitewatch/internal/monitor"
	"github.com/sitewatch/internal/notify"
	"github.com/sitewatch/internal/report"
	"github.com/sitewatch/internal/testhelpers"
)

type recordingChannel struct {
	mu   sync.Mutex
	sent []notify.Message
}

func (c *recordingChannel) Name() string { return "webhook" }

func (c *recordingChannel) Send(ctx context.Context, recipient string, msg notify.Message) notify.DeliveryResult {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.sent = append(c.sent, msg)
	return notify.DeliveryResult{OK: true, ProviderMessageID: "msg-1"}
}

func (c *recordingChannel) count(t models.MessageType) int {
	c.mu.Lock()
	defer c.mu.Unlock()
	n := 0
	for _, m := range c.sent {
		if m.Type == t {
			n++
		}
	}
	return n
}

// siteFeed is a provider whose readings can be swapped between passes.
type siteFeed struct {
	mu    sync.Mutex
	snaps []models.SiteSnapshot
}

func (f *siteFeed) set(snaps ...models.SiteSnapshot) {
	f.mu.Lock()
	f.snaps = snaps
	f.mu.Unlock()
}

func (f *siteFeed) FetchSnapshots(ctx context.Context) ([]models.SiteSnapshot, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]models.SiteSnapshot(nil), f.snaps...), nil
}

func TestLifecycle_OutageThenRecovery(t *testing.T) {
	db := testhelpers.NewTestDB(t)
	clock := testhelpers.NewClock()
	log := logging.Discard()

	ch := &recordingChannel{}
	dispatcher := notify.NewDispatcher(db, []notify.Channel{ch}, []notify.Target{
		{Channel: "webhook", Recipient: "5491100000000", MessageType: models.MessageTypeFull},
		{Channel: "webhook", Recipient: "5491100000000", MessageType: models.MessageTypeSummary},
	}, notify.DispatcherConfig{MaxRetries: 0, Backoff: time.Millisecond}, log)
	dispatcher.SetClock(clock.Now)

	drafts := report.NewManager(db, log)
	drafts.SetClock(clock.Now)
	reconciler, err := alert.NewReconciler(db, drafts, alert.ReconcilerConfig{
		Thresholds:         monitor.DefaultThresholds(),
		NotifyOnEscalation: true,
	}, log)
	if err != nil {
		t.Fatal(err)
	}
	reconciler.SetClock(clock.Now)

	feed := &siteFeed{}
	scanner := monitor.NewScanner(feed, reconciler, dispatcher, monitor.ScannerConfig{}, nil, log)
	scanner.SetClock(clock.Now)
	scheduler := monitor.NewScheduler(scanner, dispatcher, monitor.SchedulerConfig{Interval: time.Hour}, log)

	// site goes down
	feed.set(testhelpers.Snapshot("s1", 69, 66))
	sum, err := scheduler.TriggerNow(context.Background())
	if err != nil {
		t.Fatal(err)
	}
	if sum.EventsCreated != 1 || sum.SitesDown != 1 {
		t.Fatalf("unexpected first pass: %+v", sum)
	}
	if ch.count(models.MessageTypeFull) != 1 || ch.count(models.MessageTypeSummary) != 1 {
		t.Errorf("expected one full and one summary message, got %+v", ch.sent)
	}

	// still down: nothing new
	clock.Advance(5 * time.Minute)
	sum, _ = scheduler.TriggerNow(context.Background())
	if sum.EventsCreated != 0 || sum.EventsUpdated != 0 {
		t.Errorf("steady outage must not change the incident: %+v", sum)
	}
	if len(ch.sent) != 2 {
		t.Errorf("steady outage must not notify again, got %d messages", len(ch.sent))
	}

	// site recovers; the pass is followed by the recovery sweep
	clock.Advance(30 * time.Minute)
	feed.set(testhelpers.Snapshot("s1", 69, 0))
	sum, _ = scheduler.TriggerNow(context.Background())
	if sum.EventsResolved != 1 {
		t.Fatalf("expected the incident to resolve: %+v", sum)
	}
	if ch.count(models.MessageTypeRecovery) != 1 {
		t.Errorf("expected one recovery message, got %d", ch.count(models.MessageTypeRecovery))
	}

	var event models.AlertEvent
	if err := db.Where("site_id = ?", "s1").First(&event).Error; err != nil {
		t.Fatal(err)
	}
	if event.Status != models.AlertStatusResolved || !event.AutoResolved || !event.RecoveryNotified {
		t.Errorf("unexpected final event state: %+v", event)
	}
	if d := event.Duration(); d != 35*time.Minute {
		t.Errorf("expected a 35m incident, got %v", d)
	}

	// further passes and sweeps send nothing more
	scheduler.TriggerNow(context.Background())
	res, err := dispatcher.SweepRecoveries(context.Background())
	if err != nil || res.Events != 0 {
		t.Errorf("expected an empty sweep, got %+v %v", res, err)
	}
	if ch.count(models.MessageTypeRecovery) != 1 {
		t.Errorf("recovery must be sent exactly once, got %d", ch.count(models.MessageTypeRecovery))
	}

	pm, err := drafts.GetByEvent(event.ID)
	if err != nil {
		t.Fatalf("expected a draft post-mortem: %v", err)
	}
	if pm.Status != models.PostMortemStatusDraft {
		t.Errorf("expected draft, got %s", pm.Status)
	}
}
