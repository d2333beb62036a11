package monitor

import (
	"context"
	"sync"
	"sync/atomic"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/sitewatch/internal/notify"
	"golang.org/x/sync/semaphore"
)

// PassRunner runs one monitoring pass.
type PassRunner interface {
	Run(ctx context.Context) PassSummary
}

type RecoverySweeper interface {
	SweepRecoveries(ctx context.Context) (notify.SweepResult, error)
}

type SchedulerConfig struct {
	Enabled       bool
	Interval      time.Duration
	SweepInterval time.Duration
}

type SchedulerStatus struct {
	Running         bool         `json:"running"`
	Enabled         bool         `json:"enabled"`
	Interval        string       `json:"interval"`
	IntervalSeconds float64      `json:"interval_seconds"`
	PassInProgress  bool         `json:"pass_in_progress"`
	LastPassAt      *time.Time   `json:"last_pass_at,omitempty"`
	LastPass        *PassSummary `json:"last_pass,omitempty"`
}

// Scheduler drives passes on a ticker and on demand. Ticks and manual
// triggers share one gate, so at most one pass runs at a time; a tick that
// finds the gate taken is skipped, not queued.
type Scheduler struct {
	runner  PassRunner
	sweeper RecoverySweeper
	cfg     SchedulerConfig
	log     logrus.FieldLogger

	gate     *semaphore.Weighted
	inFlight atomic.Bool

	mutex    sync.Mutex
	running  bool
	stopChan chan struct{}
	done     chan struct{}
	cancel   context.CancelFunc
	lastPass *PassSummary
	lastAt   *time.Time
}

func NewScheduler(runner PassRunner, sweeper RecoverySweeper, cfg SchedulerConfig, log logrus.FieldLogger) *Scheduler {
	return &Scheduler{
		runner:  runner,
		sweeper: sweeper,
		cfg:     cfg,
		log:     log,
		gate:    semaphore.NewWeighted(1),
	}
}

// Start launches the background loop. It reports false when the loop was
// already running.
func (s *Scheduler) Start() bool {
	s.mutex.Lock()
	defer s.mutex.Unlock()

	if s.running {
		return false
	}

	ctx, cancel := context.WithCancel(context.Background())
	s.cancel = cancel
	s.stopChan = make(chan struct{})
	s.done = make(chan struct{})
	s.running = true

	go s.loop(ctx, s.stopChan, s.done)

	s.log.WithField("interval", s.cfg.Interval.String()).Info("Polling scheduler started")
	return true
}

// Stop halts future ticks and waits for an in-flight pass to finish. If ctx
// expires first the pass is cancelled and ctx's error returned. Stopping a
// stopped scheduler is a no-op.
func (s *Scheduler) Stop(ctx context.Context) error {
	s.mutex.Lock()
	if !s.running {
		s.mutex.Unlock()
		return nil
	}
	s.running = false
	close(s.stopChan)
	done, cancel := s.done, s.cancel
	s.mutex.Unlock()

	defer cancel()

	select {
	case <-done:
		s.log.Info("Polling scheduler stopped")
		return nil
	case <-ctx.Done():
		cancel()
		<-done
		s.log.Warn("Polling scheduler stopped, in-flight pass cancelled")
		return ctx.Err()
	}
}

func (s *Scheduler) loop(ctx context.Context, stop <-chan struct{}, done chan<- struct{}) {
	defer close(done)

	ticker := time.NewTicker(s.cfg.Interval)
	defer ticker.Stop()

	var sweepC <-chan time.Time
	if s.sweeper != nil && s.cfg.SweepInterval > 0 {
		sweepTicker := time.NewTicker(s.cfg.SweepInterval)
		defer sweepTicker.Stop()
		sweepC = sweepTicker.C
	}

	// Initial pass
	s.runGated(ctx, "timer")

	for {
		select {
		case <-ticker.C:
			s.runGated(ctx, "timer")
		case <-sweepC:
			s.sweep(ctx)
		case <-stop:
			return
		}
	}
}

// TriggerNow runs one pass with the caller's context. It returns
// ErrPassInProgress instead of waiting when another pass holds the gate.
func (s *Scheduler) TriggerNow(ctx context.Context) (PassSummary, error) {
	summary, ok := s.runGated(ctx, "manual")
	if !ok {
		return PassSummary{}, ErrPassInProgress
	}
	return summary, nil
}

func (s *Scheduler) runGated(ctx context.Context, trigger string) (PassSummary, bool) {
	if !s.gate.TryAcquire(1) {
		s.log.WithField("trigger", trigger).Warn("Monitoring pass skipped: another pass is in progress")
		return PassSummary{}, false
	}
	defer s.gate.Release(1)
	s.inFlight.Store(true)
	defer s.inFlight.Store(false)

	summary := s.runner.Run(ctx)
	summary.Trigger = trigger

	s.mutex.Lock()
	finished := summary.FinishedAt
	s.lastPass = &summary
	s.lastAt = &finished
	s.mutex.Unlock()

	s.sweep(ctx)
	return summary, true
}

func (s *Scheduler) sweep(ctx context.Context) {
	if s.sweeper == nil || ctx.Err() != nil {
		return
	}
	if _, err := s.sweeper.SweepRecoveries(ctx); err != nil {
		s.log.WithError(err).Warn("Recovery sweep failed")
	}
}

func (s *Scheduler) Status() SchedulerStatus {
	s.mutex.Lock()
	defer s.mutex.Unlock()

	st := SchedulerStatus{
		Running:         s.running,
		Enabled:         s.cfg.Enabled,
		Interval:        s.cfg.Interval.String(),
		IntervalSeconds: s.cfg.Interval.Seconds(),
		PassInProgress:  s.inFlight.Load(),
	}
	if s.lastPass != nil {
		last := *s.lastPass
		at := *s.lastAt
		st.LastPass = &last
		st.LastPassAt = &at
	}
	return st
}
