// Package cron drives the reminder tick and other recurring jobs
package cron

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/gmsas95/glucotrack/internal/reminders"
	robfig "github.com/robfig/cron/v3"
	"go.uber.org/zap"
)

// DefaultTickSpec fires once per wall-clock minute
const DefaultTickSpec = "* * * * *"

// TickJob names the job that drives reminder alerts
const TickJob = "reminder-tick"

// Ticker is the part of the reminder tracker the runner drives
type Ticker interface {
	TickNow(ctx context.Context) []reminders.Alert
}

// Config holds cron runner configuration
type Config struct {
	TickSpec    string         // standard 5-field cron expression
	Location    *time.Location // zone the schedule is read in
	TickTimeout time.Duration  // upper bound for one tick, alert delivery included
}

// Runner manages scheduled job execution
type Runner struct {
	config Config
	ticker Ticker
	cron   *robfig.Cron
	logger *zap.Logger
	ctx    context.Context
	cancel context.CancelFunc

	mu      sync.RWMutex
	running bool
	jobs    map[string]robfig.EntryID
}

// NewRunner creates a runner that calls ticker.TickNow on cfg.TickSpec. The
// spec is parsed here so a bad expression fails at startup.
func NewRunner(cfg Config, ticker Ticker, logger *zap.Logger) (*Runner, error) {
	if cfg.TickSpec == "" {
		cfg.TickSpec = DefaultTickSpec
	}
	if cfg.Location == nil {
		cfg.Location = time.Local
	}
	if cfg.TickTimeout <= 0 {
		cfg.TickTimeout = 30 * time.Second
	}

	ctx, cancel := context.WithCancel(context.Background())
	r := &Runner{
		config: cfg,
		ticker: ticker,
		logger: logger,
		ctx:    ctx,
		cancel: cancel,
		jobs:   make(map[string]robfig.EntryID),
	}
	r.cron = robfig.New(
		robfig.WithLocation(cfg.Location),
		robfig.WithChain(
			robfig.Recover(cronLogger{logger}),
			robfig.SkipIfStillRunning(cronLogger{logger}),
		),
	)

	if _, err := r.AddJob(TickJob, cfg.TickSpec, r.tick); err != nil {
		cancel()
		return nil, err
	}
	return r, nil
}

// AddJob schedules fn under name. Adding an existing name replaces it.
func (r *Runner) AddJob(name, spec string, fn func()) (robfig.EntryID, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	id, err := r.cron.AddFunc(spec, fn)
	if err != nil {
		return 0, fmt.Errorf("invalid cron expression %q: %w", spec, err)
	}
	if old, ok := r.jobs[name]; ok {
		r.cron.Remove(old)
	}
	r.jobs[name] = id

	r.logger.Debug("Scheduled job added",
		zap.String("name", name),
		zap.String("spec", spec),
	)
	return id, nil
}

// RemoveJob removes a job by name. It reports whether the job existed.
func (r *Runner) RemoveJob(name string) bool {
	r.mu.Lock()
	defer r.mu.Unlock()

	id, ok := r.jobs[name]
	if !ok {
		return false
	}
	r.cron.Remove(id)
	delete(r.jobs, name)
	return true
}

// NextRun returns when the named job fires next. Zero before Start.
func (r *Runner) NextRun(name string) time.Time {
	r.mu.RLock()
	defer r.mu.RUnlock()

	id, ok := r.jobs[name]
	if !ok {
		return time.Time{}
	}
	return r.cron.Entry(id).Next
}

// Start starts the cron runner
func (r *Runner) Start() error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.running {
		return fmt.Errorf("cron runner already running")
	}

	r.running = true
	r.cron.Start()
	r.logger.Info("Cron runner started", zap.String("tick", r.config.TickSpec))
	return nil
}

// Stop stops the runner and waits for a running tick to finish
func (r *Runner) Stop() {
	r.mu.Lock()
	if !r.running {
		r.mu.Unlock()
		return
	}
	r.running = false
	r.mu.Unlock()

	r.cancel()
	<-r.cron.Stop().Done()
	r.logger.Info("Cron runner stopped")
}

// IsRunning returns whether the runner is active
func (r *Runner) IsRunning() bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.running
}

func (r *Runner) tick() {
	ctx, cancel := context.WithTimeout(r.ctx, r.config.TickTimeout)
	defer cancel()

	if alerts := r.ticker.TickNow(ctx); len(alerts) > 0 {
		r.logger.Info("Reminder tick fired alerts", zap.Int("count", len(alerts)))
	}
}

// cronLogger adapts zap to robfig's logger interface
type cronLogger struct {
	logger *zap.Logger
}

func (l cronLogger) Info(msg string, keysAndValues ...interface{}) {
	l.logger.Sugar().Debugw(msg, keysAndValues...)
}

func (l cronLogger) Error(err error, msg string, keysAndValues ...interface{}) {
	l.logger.Sugar().Errorw(msg, append(keysAndValues, "error", err)...)
}
