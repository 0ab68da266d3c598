package refresh

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/robfig/cron/v3"

	"github.com/IshaanNene/PanelGoat/internal/types"
)

// Runner is the part of Pipeline the scheduler drives.
type Runner interface {
	TryRun(ctx context.Context, trigger string) (*Report, error)
}

// Scheduler triggers a refresh every interval.
type Scheduler struct {
	runner     Runner
	interval   time.Duration
	runOnStart bool
	cron       *cron.Cron
	logger     *slog.Logger

	mu     sync.Mutex
	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup
}

// NewScheduler creates a scheduler firing every interval.
func NewScheduler(runner Runner, interval time.Duration, runOnStart bool, logger *slog.Logger) *Scheduler {
	logger = logger.With("component", "scheduler")
	cl := cronLogger{logger: logger}
	return &Scheduler{
		runner:     runner,
		interval:   interval,
		runOnStart: runOnStart,
		cron: cron.New(
			cron.WithLogger(cl),
			cron.WithChain(cron.Recover(cl), cron.SkipIfStillRunning(cl)),
		),
		logger: logger,
	}
}

// Start registers the job and starts the cron loop. Runs are cancelled
// when ctx is done or Stop is called.
func (s *Scheduler) Start(ctx context.Context) error {
	if s.interval <= 0 {
		return fmt.Errorf("scheduler interval must be positive, got %s", s.interval)
	}

	s.mu.Lock()
	s.ctx, s.cancel = context.WithCancel(ctx)
	s.mu.Unlock()

	spec := "@every " + s.interval.String()
	if _, err := s.cron.AddFunc(spec, s.tick); err != nil {
		return fmt.Errorf("schedule %q: %w", spec, err)
	}
	s.cron.Start()
	s.logger.Info("scheduler started", "interval", s.interval, "run_on_start", s.runOnStart)

	if s.runOnStart {
		s.wg.Add(1)
		go func() {
			defer s.wg.Done()
			s.tick()
		}()
	}
	return nil
}

// Stop halts the cron loop, cancels a run in flight and waits for it.
func (s *Scheduler) Stop() {
	done := s.cron.Stop()
	s.mu.Lock()
	if s.cancel != nil {
		s.cancel()
	}
	s.mu.Unlock()
	<-done.Done()
	s.wg.Wait()
	s.logger.Info("scheduler stopped")
}

// Next returns the next scheduled fire time, or zero if not started.
func (s *Scheduler) Next() time.Time {
	entries := s.cron.Entries()
	if len(entries) == 0 {
		return time.Time{}
	}
	return entries[0].Next
}

func (s *Scheduler) tick() {
	s.mu.Lock()
	ctx := s.ctx
	s.mu.Unlock()
	if ctx.Err() != nil {
		return
	}

	report, err := s.runner.TryRun(ctx, TriggerScheduled)
	if errors.Is(err, types.ErrRunInProgress) {
		s.logger.Info("refresh already running, scheduled run skipped")
		return
	}
	if err != nil {
		s.logger.Error("scheduled refresh failed to start", "error", err)
		return
	}
	s.logger.Info(report.Summary())
}

// cronLogger adapts slog to cron.Logger.
type cronLogger struct {
	logger *slog.Logger
}

func (l cronLogger) Info(msg string, keysAndValues ...any) {
	l.logger.Debug(msg, keysAndValues...)
}

func (l cronLogger) Error(err error, msg string, keysAndValues ...any) {
	l.logger.Error(msg, append(keysAndValues, "error", err)...)
}
