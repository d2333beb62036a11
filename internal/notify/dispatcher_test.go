package notify

import (
	"context"
	"errors"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/sitewatch/internal/models"
	"github.com/sitewatch/internal/testhelpers"
)

var bothTypes = []Target{
	{Channel: "webhook", Recipient: "5491100000001", MessageType: models.MessageTypeFull},
	{Channel: "webhook", Recipient: "5491100000002", MessageType: models.MessageTypeSummary},
}

func TestDispatchOutage_OneRowPerTarget(t *testing.T) {
	db := testhelpers.NewTestDB(t)
	ch := &fakeChannel{name: "webhook"}
	d := newTestDispatcher(t, db, bothTypes, ch)
	event := createEvent(t, db, models.AlertStatusActive, false)

	if err := d.DispatchOutage(context.Background(), event); err != nil {
		t.Fatalf("DispatchOutage: %v", err)
	}

	rows, err := d.List(NotificationFilter{EventID: event.ID})
	if err != nil {
		t.Fatalf("List: %v", err)
	}
	if len(rows) != 2 {
		t.Fatalf("expected 2 rows, got %d", len(rows))
	}
	for _, row := range rows {
		if row.Status != models.NotificationStatusSent {
			t.Errorf("row %d: expected sent, got %s", row.ID, row.Status)
		}
		if row.SentAt == nil || row.ProviderMessageID == "" {
			t.Errorf("row %d: missing delivery metadata: %+v", row.ID, row)
		}
	}
	if ch.sentCount() != 2 {
		t.Errorf("expected 2 sends, got %d", ch.sentCount())
	}
}

func TestDispatchOutage_RetriesUntilSuccess(t *testing.T) {
	db := testhelpers.NewTestDB(t)
	ch := &fakeChannel{name: "webhook", failFirst: 2}
	d := newTestDispatcher(t, db, bothTypes[:1], ch)
	event := createEvent(t, db, models.AlertStatusActive, false)

	if err := d.DispatchOutage(context.Background(), event); err != nil {
		t.Fatalf("DispatchOutage: %v", err)
	}

	rows, _ := d.List(NotificationFilter{EventID: event.ID})
	if len(rows) != 1 {
		t.Fatalf("expected 1 row, got %d", len(rows))
	}
	if rows[0].Status != models.NotificationStatusSent {
		t.Errorf("expected sent, got %s (%s)", rows[0].Status, rows[0].ErrorMessage)
	}
	if rows[0].RetryCount != 2 {
		t.Errorf("expected retry_count 2, got %d", rows[0].RetryCount)
	}
}

func TestDispatchOutage_RetriesReuseDeliveryKey(t *testing.T) {
	db := testhelpers.NewTestDB(t)
	ch := &fakeChannel{name: "webhook", failFirst: 2}
	d := newTestDispatcher(t, db, bothTypes[:1], ch)
	event := createEvent(t, db, models.AlertStatusActive, false)

	if err := d.DispatchOutage(context.Background(), event); err != nil {
		t.Fatalf("DispatchOutage: %v", err)
	}

	rows, _ := d.List(NotificationFilter{EventID: event.ID})
	if len(rows) != 1 {
		t.Fatalf("expected 1 row, got %d", len(rows))
	}
	want := Message{NotificationID: rows[0].ID}.DeliveryKey()
	keys := ch.attemptKeys()
	if len(keys) != 3 {
		t.Fatalf("expected 3 attempts, got %d", len(keys))
	}
	for i, k := range keys {
		if k != want {
			t.Errorf("attempt %d: key %q, want %q", i+1, k, want)
		}
	}
}

func TestDispatchOutage_ExhaustedRetriesRecordedAsFailed(t *testing.T) {
	db := testhelpers.NewTestDB(t)
	ch := &fakeChannel{name: "webhook", alwaysFail: true}
	d := newTestDispatcher(t, db, bothTypes[:1], ch)
	event := createEvent(t, db, models.AlertStatusActive, false)

	if err := d.DispatchOutage(context.Background(), event); err != nil {
		t.Fatalf("send failures must not be returned, got %v", err)
	}

	if got := ch.attemptCount(); got != 4 {
		t.Errorf("expected 1 attempt + 3 retries, got %d", got)
	}
	rows, _ := d.List(NotificationFilter{EventID: event.ID})
	if len(rows) != 1 {
		t.Fatalf("expected 1 row, got %d", len(rows))
	}
	row := rows[0]
	if row.Status != models.NotificationStatusFailed {
		t.Fatalf("expected failed, got %s", row.Status)
	}
	if row.RetryCount != 3 || row.FailedAt == nil {
		t.Errorf("unexpected failure bookkeeping: retry_count=%d failed_at=%v", row.RetryCount, row.FailedAt)
	}
	if !strings.Contains(row.ErrorMessage, "gateway unavailable") {
		t.Errorf("expected error message retained, got %q", row.ErrorMessage)
	}
}

func TestDispatchOutage_UnknownChannelIsFailedNotLost(t *testing.T) {
	db := testhelpers.NewTestDB(t)
	d := newTestDispatcher(t, db, []Target{{Channel: "sms", Recipient: "x", MessageType: models.MessageTypeFull}})
	event := createEvent(t, db, models.AlertStatusActive, false)

	if err := d.DispatchOutage(context.Background(), event); err != nil {
		t.Fatalf("DispatchOutage: %v", err)
	}
	rows, _ := d.List(NotificationFilter{EventID: event.ID})
	if len(rows) != 1 || rows[0].Status != models.NotificationStatusFailed {
		t.Fatalf("expected one failed row, got %+v", rows)
	}
}

func TestSweepRecoveries_DeliversOnce(t *testing.T) {
	db := testhelpers.NewTestDB(t)
	ch := &fakeChannel{name: "webhook"}
	d := newTestDispatcher(t, db, bothTypes, ch)
	event := createEvent(t, db, models.AlertStatusResolved, true)

	res, err := d.SweepRecoveries(context.Background())
	if err != nil {
		t.Fatalf("SweepRecoveries: %v", err)
	}
	if res.Events != 1 || res.Sent != 2 || res.Notified != 1 {
		t.Errorf("unexpected sweep result: %+v", res)
	}
	if !reloadEvent(t, db, event.ID).RecoveryNotified {
		t.Fatal("expected recovery_notified to be set")
	}

	for i := 0; i < 3; i++ {
		res, err = d.SweepRecoveries(context.Background())
		if err != nil {
			t.Fatalf("sweep #%d: %v", i, err)
		}
		if res.Events != 0 {
			t.Errorf("sweep #%d: expected nothing pending, got %+v", i, res)
		}
	}
	if got := countRows(t, db, event.ID, models.MessageTypeRecovery); got != 2 {
		t.Errorf("expected 2 recovery rows (one per recipient), got %d", got)
	}
	if ch.sentCount() != 2 {
		t.Errorf("expected 2 sends in total, got %d", ch.sentCount())
	}
}

func TestSweepRecoveries_SameRecipientForFullAndSummary(t *testing.T) {
	db := testhelpers.NewTestDB(t)
	ch := &fakeChannel{name: "webhook"}
	targets := []Target{
		{Channel: "webhook", Recipient: "5491100000001", MessageType: models.MessageTypeFull},
		{Channel: "webhook", Recipient: "5491100000001", MessageType: models.MessageTypeSummary},
	}
	d := newTestDispatcher(t, db, targets, ch)
	event := createEvent(t, db, models.AlertStatusResolved, true)

	if _, err := d.SweepRecoveries(context.Background()); err != nil {
		t.Fatalf("SweepRecoveries: %v", err)
	}
	if ch.sentCount() != 1 {
		t.Errorf("expected recipient to get one recovery, got %d", ch.sentCount())
	}
	if got := countRows(t, db, event.ID, models.MessageTypeRecovery); got != 1 {
		t.Errorf("expected 1 recovery row, got %d", got)
	}
}

func TestSweepRecoveries_SelectsOnlyAutoResolvedPending(t *testing.T) {
	db := testhelpers.NewTestDB(t)
	ch := &fakeChannel{name: "webhook"}
	d := newTestDispatcher(t, db, bothTypes[:1], ch)

	createEvent(t, db, models.AlertStatusResolved, false) // resolved by a human
	notified := createEvent(t, db, models.AlertStatusResolved, true)
	if err := db.Model(notified).Update("recovery_notified", true).Error; err != nil {
		t.Fatal(err)
	}

	res, err := d.SweepRecoveries(context.Background())
	if err != nil {
		t.Fatalf("SweepRecoveries: %v", err)
	}
	if res.Events != 0 || ch.sentCount() != 0 {
		t.Errorf("expected no recoveries, got %+v with %d sends", res, ch.sentCount())
	}
}

func TestSweepRecoveries_LateSweepStillDelivers(t *testing.T) {
	db := testhelpers.NewTestDB(t)
	ch := &fakeChannel{name: "webhook"}
	d := newTestDispatcher(t, db, bothTypes[:1], ch)
	clock := testhelpers.NewClock()
	d.SetClock(clock.Now)

	event := createEvent(t, db, models.AlertStatusResolved, true)
	clock.Advance(6 * time.Hour)

	if _, err := d.SweepRecoveries(context.Background()); err != nil {
		t.Fatalf("SweepRecoveries: %v", err)
	}
	if !reloadEvent(t, db, event.ID).RecoveryNotified || ch.sentCount() != 1 {
		t.Fatal("expected a late sweep to deliver the recovery")
	}
}

func TestSweepRecoveries_ExhaustedDeliveryIsNotRetried(t *testing.T) {
	db := testhelpers.NewTestDB(t)
	ch := &fakeChannel{name: "webhook", alwaysFail: true}
	d := newTestDispatcher(t, db, bothTypes[:1], ch)
	event := createEvent(t, db, models.AlertStatusResolved, true)

	res, err := d.SweepRecoveries(context.Background())
	if err != nil {
		t.Fatalf("SweepRecoveries: %v", err)
	}
	if res.Failed != 1 || res.Notified != 1 {
		t.Errorf("unexpected sweep result: %+v", res)
	}
	if !reloadEvent(t, db, event.ID).RecoveryNotified {
		t.Fatal("exhausted delivery must still settle the flag")
	}

	attempts := ch.attemptCount()
	if _, err := d.SweepRecoveries(context.Background()); err != nil {
		t.Fatal(err)
	}
	if ch.attemptCount() != attempts {
		t.Errorf("expected no further attempts, got %d more", ch.attemptCount()-attempts)
	}
}

func TestSweepRecoveries_SkipsTargetsAlreadyDelivered(t *testing.T) {
	db := testhelpers.NewTestDB(t)
	ch := &fakeChannel{name: "webhook"}
	d := newTestDispatcher(t, db, bothTypes, ch)
	event := createEvent(t, db, models.AlertStatusResolved, true)

	// a previous sweep reached the first recipient before stopping
	prior := &models.AlertNotification{
		AlertEventID: event.ID,
		Channel:      "webhook",
		Recipient:    bothTypes[0].Recipient,
		MessageType:  models.MessageTypeRecovery,
		Status:       models.NotificationStatusSent,
	}
	if err := db.Create(prior).Error; err != nil {
		t.Fatal(err)
	}

	if _, err := d.SweepRecoveries(context.Background()); err != nil {
		t.Fatalf("SweepRecoveries: %v", err)
	}
	if ch.sentCount() != 1 || ch.sent[0].recipient != bothTypes[1].Recipient {
		t.Errorf("expected a single send to the second recipient, got %+v", ch.sent)
	}
	if !reloadEvent(t, db, event.ID).RecoveryNotified {
		t.Error("expected recovery_notified to be set")
	}
}

func TestSweepRecoveries_CancelledSweepLeavesEventPending(t *testing.T) {
	db := testhelpers.NewTestDB(t)
	ch := &fakeChannel{name: "webhook", block: make(chan struct{}), started: make(chan struct{}, 1)}
	d := newTestDispatcher(t, db, bothTypes[:1], ch)
	event := createEvent(t, db, models.AlertStatusResolved, true)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		defer close(done)
		d.SweepRecoveries(ctx)
	}()
	<-ch.started
	cancel()
	<-done

	if reloadEvent(t, db, event.ID).RecoveryNotified {
		t.Fatal("cancelled delivery must not settle the flag")
	}

	close(ch.block)
	if _, err := d.SweepRecoveries(context.Background()); err != nil {
		t.Fatal(err)
	}
	if !reloadEvent(t, db, event.ID).RecoveryNotified {
		t.Fatal("expected the next sweep to finish the delivery")
	}
	if got := countRows(t, db, event.ID, models.MessageTypeRecovery); got != 1 {
		t.Errorf("expected the pending row to be reused, got %d rows", got)
	}
	if ch.sentCount() != 1 {
		t.Errorf("expected exactly one delivered recovery, got %d", ch.sentCount())
	}
	keys := ch.attemptKeys()
	if len(keys) < 2 {
		t.Fatalf("expected attempts from both sweeps, got %v", keys)
	}
	for _, k := range keys[1:] {
		if k != keys[0] {
			t.Errorf("the resumed delivery must reuse its key, got %v", keys)
			break
		}
	}
}

func TestSweepRecoveries_ConcurrentSweepIsSkipped(t *testing.T) {
	db := testhelpers.NewTestDB(t)
	ch := &fakeChannel{name: "webhook", block: make(chan struct{}), started: make(chan struct{}, 1)}
	d := newTestDispatcher(t, db, bothTypes[:1], ch)
	event := createEvent(t, db, models.AlertStatusResolved, true)

	var wg sync.WaitGroup
	wg.Add(1)
	go func() {
		defer wg.Done()
		d.SweepRecoveries(context.Background())
	}()
	<-ch.started

	res, err := d.SweepRecoveries(context.Background())
	if err != nil {
		t.Fatal(err)
	}
	if !res.Skipped {
		t.Errorf("expected concurrent sweep to be skipped, got %+v", res)
	}

	close(ch.block)
	wg.Wait()

	if ch.sentCount() != 1 {
		t.Errorf("expected one send, got %d", ch.sentCount())
	}
	if got := countRows(t, db, event.ID, models.MessageTypeRecovery); got != 1 {
		t.Errorf("expected 1 recovery row, got %d", got)
	}
}

func TestSweepRecoveries_NoTargetsSettlesFlag(t *testing.T) {
	db := testhelpers.NewTestDB(t)
	d := newTestDispatcher(t, db, nil)
	event := createEvent(t, db, models.AlertStatusResolved, true)

	res, err := d.SweepRecoveries(context.Background())
	if err != nil {
		t.Fatal(err)
	}
	if res.Notified != 1 || !reloadEvent(t, db, event.ID).RecoveryNotified {
		t.Errorf("expected flag to settle with no targets, got %+v", res)
	}
}

func TestRetry(t *testing.T) {
	db := testhelpers.NewTestDB(t)
	ch := &fakeChannel{name: "webhook", alwaysFail: true}
	d := newTestDispatcher(t, db, bothTypes[:1], ch)
	event := createEvent(t, db, models.AlertStatusActive, false)

	if err := d.DispatchOutage(context.Background(), event); err != nil {
		t.Fatal(err)
	}
	rows, _ := d.List(NotificationFilter{EventID: event.ID, Status: string(models.NotificationStatusFailed)})
	if len(rows) != 1 {
		t.Fatalf("expected 1 failed row, got %d", len(rows))
	}

	ch.mu.Lock()
	ch.alwaysFail = false
	ch.mu.Unlock()

	row, err := d.Retry(context.Background(), rows[0].ID)
	if err != nil {
		t.Fatalf("Retry: %v", err)
	}
	if row.Status != models.NotificationStatusSent {
		t.Errorf("expected sent after retry, got %s", row.Status)
	}
	if row.RetryCount != 3 {
		t.Errorf("expected retry_count carried over, got %d", row.RetryCount)
	}

	if _, err := d.Retry(context.Background(), rows[0].ID); !errors.Is(err, ErrNotRetryable) {
		t.Errorf("expected ErrNotRetryable for a sent row, got %v", err)
	}
	if _, err := d.Retry(context.Background(), 9999); !errors.Is(err, ErrNotificationNotFound) {
		t.Errorf("expected ErrNotificationNotFound, got %v", err)
	}
}
