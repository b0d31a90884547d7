package recovery

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"linkrelay/internal/config"
	"linkrelay/internal/dispatch"
	"linkrelay/internal/journal"
	"linkrelay/internal/links"
	"linkrelay/internal/logging"
	"linkrelay/internal/observability"
	"linkrelay/internal/services"
)

// State is the lifecycle of the sweep loop.
type State int

const (
	StateIdle State = iota
	StateRunning
)

func (s State) String() string {
	if s == StateRunning {
		return "running"
	}
	return "idle"
}

// Refresher replaces a task's share with a fresh one.
type Refresher interface {
	Update(ctx context.Context, taskID, shareID, folderPath string) (links.Link, error)
}

// Options tunes the sweep.
type Options struct {
	DailyAt    string
	Stagger    time.Duration
	MaxRecords int
	Tick       time.Duration
	RunOnStart bool
}

// OptionsFromConfig reads the [recovery] section.
func OptionsFromConfig(cfg *config.Config) Options {
	return Options{
		DailyAt:    cfg.Recovery.DailyAt,
		Stagger:    cfg.RecoveryStagger(),
		MaxRecords: cfg.Recovery.MaxRecords,
		Tick:       cfg.RecoveryTick(),
		RunOnStart: cfg.Recovery.RunOnStart,
	}
}

// Status summarises the scheduler for the admin API.
type Status struct {
	State         string    `json:"state"`
	NextRun       time.Time `json:"next_run,omitzero"`
	LastRun       time.Time `json:"last_run,omitzero"`
	LastScheduled int       `json:"last_scheduled"`
	LastError     string    `json:"last_error,omitempty"`
}

// Scheduler runs the daily share refresh sweep.
type Scheduler struct {
	store    journal.Store
	links    Refresher
	dispatch dispatch.Scheduler
	opts     Options
	logger   *slog.Logger
	metrics  *observability.Metrics
	now      func() time.Time

	mu            sync.Mutex
	state         State
	cancel        context.CancelFunc
	done          chan struct{}
	nextRun       time.Time
	lastRun       time.Time
	lastScheduled int
	lastErr       error
}

// Option customizes a Scheduler.
type Option func(*Scheduler)

// WithClock overrides the time source used to decide when the daily job is due.
func WithClock(now func() time.Time) Option {
	return func(s *Scheduler) { s.now = now }
}

// New builds an idle scheduler.
func New(store journal.Store, refresher Refresher, scheduler dispatch.Scheduler, opts Options, logger *slog.Logger, metrics *observability.Metrics, options ...Option) *Scheduler {
	if opts.Tick <= 0 {
		opts.Tick = time.Second
	}
	if opts.DailyAt == "" {
		opts.DailyAt = "23:00"
	}
	s := &Scheduler{
		store:    store,
		links:    refresher,
		dispatch: scheduler,
		opts:     opts,
		logger:   logging.NewComponentLogger(logger, "recovery"),
		metrics:  metrics,
		now:      time.Now,
	}
	for _, opt := range options {
		opt(s)
	}
	return s
}

// State reports whether the sweep loop is running.
func (s *Scheduler) State() State {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state
}

// Status returns a snapshot of the scheduler.
func (s *Scheduler) Status() Status {
	s.mu.Lock()
	defer s.mu.Unlock()
	st := Status{
		State:         s.state.String(),
		NextRun:       s.nextRun,
		LastRun:       s.lastRun,
		LastScheduled: s.lastScheduled,
	}
	if s.lastErr != nil {
		st.LastError = s.lastErr.Error()
	}
	return st
}

// Start launches the sweep loop. It returns false, and logs, when the loop is
// already running.
func (s *Scheduler) Start(ctx context.Context) bool {
	s.mu.Lock()
	if s.state == StateRunning {
		s.mu.Unlock()
		s.logger.Info("recovery scheduler already running", logging.String(logging.FieldEventType, "recovery_already_running"))
		return false
	}
	runCtx, cancel := context.WithCancel(ctx)
	s.state = StateRunning
	s.cancel = cancel
	s.done = make(chan struct{})
	done := s.done
	s.mu.Unlock()

	s.logger.Info("recovery scheduler started",
		logging.String("daily_at", s.opts.DailyAt),
		logging.Duration("stagger", s.opts.Stagger),
		logging.Int("max_records", s.opts.MaxRecords),
		logging.String(logging.FieldEventType, "recovery_started"),
	)
	go s.loop(runCtx, done)
	return true
}

// Stop cancels the loop and waits for it to return to idle.
func (s *Scheduler) Stop() {
	s.mu.Lock()
	cancel, done := s.cancel, s.done
	s.mu.Unlock()
	if cancel == nil {
		return
	}
	cancel()
	<-done
}

func (s *Scheduler) loop(ctx context.Context, done chan struct{}) {
	defer close(done)
	defer func() {
		if r := recover(); r != nil {
			s.fail(fmt.Errorf("recovery loop panic: %v", r))
		}
		s.mu.Lock()
		s.state = StateIdle
		s.cancel = nil
		s.nextRun = time.Time{}
		s.mu.Unlock()
		s.logger.Info("recovery scheduler stopped", logging.String(logging.FieldEventType, "recovery_stopped"))
	}()

	hour, minute, err := config.ParseClock(s.opts.DailyAt)
	if err != nil {
		s.fail(fmt.Errorf("register daily job: %w", err))
		return
	}
	next := nextDaily(s.now(), hour, minute)
	s.setNextRun(next)

	if s.opts.RunOnStart {
		s.dispatchSweep()
	}

	ticker := time.NewTicker(s.opts.Tick)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		}
		now := s.now()
		if now.Before(next) {
			continue
		}
		s.dispatchSweep()
		next = nextDaily(now, hour, minute)
		s.setNextRun(next)
	}
}

func (s *Scheduler) dispatchSweep() {
	s.dispatch.Go("recovery", func(ctx context.Context) error {
		_, err := s.RunRecovery(ctx)
		return err
	})
}

// RunRecovery schedules a refresh for each of the most recent journal records,
// the i-th after i × stagger. It returns how many refreshes were scheduled.
func (s *Scheduler) RunRecovery(ctx context.Context) (int, error) {
	ctx = services.WithOperation(ctx, "recovery")
	j, err := s.store.Load(ctx)
	if err != nil {
		err = fmt.Errorf("recovery sweep: %w", err)
		s.fail(err)
		return 0, err
	}
	records := j.Recent(s.opts.MaxRecords)
	for i, binding := range records {
		delay := time.Duration(i) * s.opts.Stagger
		s.dispatch.After(delay, "refresh:"+binding.TaskID, func(c context.Context) error {
			return s.refresh(c, binding)
		})
	}

	s.mu.Lock()
	s.lastRun = s.now()
	s.lastScheduled = len(records)
	s.lastErr = nil
	s.mu.Unlock()
	s.metrics.ObserveSweep(len(records))

	s.logger.Info("recovery sweep scheduled",
		logging.Int("scheduled", len(records)),
		logging.Int("journal_records", j.Len()),
		logging.Duration("span", time.Duration(max(len(records)-1, 0))*s.opts.Stagger),
		logging.String(logging.FieldEventType, "recovery_scheduled"),
	)
	if j.Len() > len(records) {
		logging.WarnWithContext(s.logger, "journal exceeds sweep cap; oldest records skipped", "recovery_capped",
			logging.Int("skipped", j.Len()-len(records)),
			logging.String(logging.FieldErrorHint, "raise recovery.max_records or prune the journal"),
			logging.String(logging.FieldImpact, "older tasks keep their current links"),
		)
	}
	return len(records), nil
}

// refresh swaps the share of one binding and records the new id only while
// the task is still journaled.
func (s *Scheduler) refresh(ctx context.Context, binding journal.Binding) error {
	ctx = services.WithOperation(services.WithTaskID(ctx, binding.TaskID), "refresh")
	logger := logging.WithContext(ctx, s.logger)

	link, err := s.links.Update(ctx, binding.TaskID, binding.ShareID, binding.FolderPath)
	if err != nil {
		return fmt.Errorf("refresh %s: %w", binding.TaskID, err)
	}

	j, err := s.store.Load(ctx)
	if err != nil {
		return fmt.Errorf("refresh %s: %w", binding.TaskID, err)
	}
	current, ok := j.Get(binding.TaskID)
	if !ok {
		logger.Info("task left the journal during refresh; result discarded",
			logging.String("share_id", link.ShareID),
			logging.String(logging.FieldEventType, "refresh_discarded"),
		)
		return nil
	}
	current.ShareID = link.ShareID
	j.Put(current)
	if err := s.store.Save(ctx, j); err != nil {
		return fmt.Errorf("refresh %s: %w", binding.TaskID, err)
	}
	logger.Info("share refreshed",
		logging.String("share_id", link.ShareID),
		logging.String(logging.FieldEventType, "share_refreshed"),
	)
	return nil
}

func (s *Scheduler) fail(err error) {
	s.mu.Lock()
	s.lastErr = err
	s.mu.Unlock()
	logging.ErrorWithContext(s.logger, "recovery failed", "recovery_failed",
		logging.Error(err),
		logging.String(logging.FieldErrorHint, "check recovery.daily_at and journal access"),
	)
}

func (s *Scheduler) setNextRun(t time.Time) {
	s.mu.Lock()
	s.nextRun = t
	s.mu.Unlock()
}

// nextDaily returns the first hour:minute UTC strictly after now.
func nextDaily(now time.Time, hour, minute int) time.Time {
	now = now.UTC()
	next := time.Date(now.Year(), now.Month(), now.Day(), hour, minute, 0, 0, time.UTC)
	if !next.After(now) {
		next = next.AddDate(0, 0, 1)
	}
	return next
}
