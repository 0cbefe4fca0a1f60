// Package scheduler runs the periodic refresh for the dashboard data core.
//
// One named job on a gocron scheduler. The scheduler fires blindly on
// schedule; it does not skip or queue ticks. Mutual exclusion is the
// refresh function's own job (the tracker's busy guard makes an
// overlapping tick a cheap no-op).
package scheduler

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/go-co-op/gocron/v2"

	"feedtrack/internal/logging"
)

const jobName = "auto-refresh"

// RefreshFunc is invoked on every tick. Errors are logged, never fatal:
// a failed tick does not stop the timer.
type RefreshFunc func(ctx context.Context) error

// SaveInterval persists the active interval as a side effect of a
// successful Configure call (not of every tick). May be nil.
type SaveInterval func(seconds int) error

// Refresher owns the auto-refresh timer.
type Refresher struct {
	mu        sync.Mutex
	scheduler gocron.Scheduler
	job       gocron.Job
	seconds   int

	save   SaveInterval
	logger *slog.Logger
}

// New creates a Refresher with no job configured. save may be nil if the
// interval should not be persisted.
func New(save SaveInterval, logger *slog.Logger) (*Refresher, error) {
	logger = logging.Default(logger)

	s, err := gocron.NewScheduler()
	if err != nil {
		return nil, err
	}
	s.Start()

	return &Refresher{
		scheduler: s,
		save:      save,
		logger:    logger.With("component", "scheduler"),
	}, nil
}

// Configure replaces the refresh job. Any existing timer is cancelled
// first. seconds <= 0 or a nil fn leaves auto-refresh disabled. On
// successful configuration the interval is persisted through the save
// hook; a persistence failure is logged but does not unschedule the job.
func (r *Refresher) Configure(seconds int, fn RefreshFunc) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.removeJobLocked()

	if seconds <= 0 || fn == nil {
		r.seconds = 0
		r.logger.Info("auto-refresh disabled")
		return nil
	}

	if err := r.scheduleLocked(time.Duration(seconds)*time.Second, fn); err != nil {
		return err
	}
	r.seconds = seconds
	r.logger.Info("auto-refresh configured", "interval_seconds", seconds)

	if r.save != nil {
		if err := r.save(seconds); err != nil {
			r.logger.Warn("failed to persist refresh interval", "error", err)
		}
	}
	return nil
}

// scheduleLocked registers the refresh job at the given period. Caller must
// hold mu. Split out so tests can schedule sub-second periods.
func (r *Refresher) scheduleLocked(period time.Duration, fn RefreshFunc) error {
	j, err := r.scheduler.NewJob(
		gocron.DurationJob(period),
		gocron.NewTask(func() { r.tick(fn) }),
		gocron.WithName(jobName),
	)
	if err != nil {
		return err
	}
	r.job = j
	return nil
}

// tick runs one refresh invocation. Panics and errors are contained so the
// timer keeps firing on schedule.
func (r *Refresher) tick(fn RefreshFunc) {
	defer func() {
		if rec := recover(); rec != nil {
			r.logger.Error("refresh panicked", "panic", rec)
		}
	}()
	if err := fn(context.Background()); err != nil {
		r.logger.Warn("refresh tick failed", "error", err)
	}
}

// Interval returns the active interval in seconds, 0 when disabled.
func (r *Refresher) Interval() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.seconds
}

// Enabled reports whether a refresh job is scheduled.
func (r *Refresher) Enabled() bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.job != nil
}

// Stop cancels the timer. Idempotent; a later Configure restarts refresh.
// An in-flight tick runs to completion.
func (r *Refresher) Stop() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.removeJobLocked()
	r.seconds = 0
}

// Close stops the timer and shuts down the underlying scheduler, waiting
// for a running tick to finish. The Refresher cannot be reused afterwards.
func (r *Refresher) Close() error {
	r.Stop()
	return r.scheduler.Shutdown()
}

// removeJobLocked removes the current job if any. Caller must hold mu.
func (r *Refresher) removeJobLocked() {
	if r.job == nil {
		return
	}
	if err := r.scheduler.RemoveJob(r.job.ID()); err != nil {
		r.logger.Warn("failed to remove refresh job", "error", err)
	}
	r.job = nil
	r.logger.Info("auto-refresh stopped")
}
