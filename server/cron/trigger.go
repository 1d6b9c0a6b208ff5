// Package cron provides cron-based scheduling for the reconciliation sweep.
//
// The CronTrigger type wraps a Job and executes it according to a cron schedule.
// It is designed to be started once and run until the context is cancelled.
//
// Example usage:
//
//	trigger, err := cron.NewCronTrigger("*/10 * * * *", sweep, logger)
//	if err != nil {
//	    log.Fatal(err)
//	}
//	trigger.Start(ctx)  // Returns immediately, runs in background
//	<-ctx.Done()        // Wait for shutdown signal
package cron

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"time"

	"github.com/robfig/cron/v3"
)

// ErrInvalidCronSpec is returned when the cron specification cannot be parsed.
var ErrInvalidCronSpec = errors.New("invalid cron spec")

// Job is the work run on every tick.
type Job func(ctx context.Context) error

// CronTrigger executes a Job according to a cron schedule.
type CronTrigger struct {
	spec     string
	schedule cron.Schedule
	job      Job
	logger   *slog.Logger

	// runMu keeps scheduled and manual runs from overlapping.
	runMu sync.Mutex

	mu      sync.Mutex
	lastRun time.Time
	lastErr error
}

// Parse checks a cron specification without creating a trigger.
func Parse(spec string) (cron.Schedule, error) {
	parser := cron.NewParser(cron.Minute | cron.Hour | cron.Dom | cron.Month | cron.Dow)
	schedule, err := parser.Parse(spec)
	if err != nil {
		return nil, errors.Join(ErrInvalidCronSpec, err)
	}
	return schedule, nil
}

// NewCronTrigger creates a new CronTrigger with the given cron specification.
// The spec follows standard cron format (5 fields: minute, hour, day, month, weekday).
// Returns ErrInvalidCronSpec if the specification cannot be parsed.
func NewCronTrigger(spec string, job Job, logger *slog.Logger) (*CronTrigger, error) {
	schedule, err := Parse(spec)
	if err != nil {
		return nil, err
	}
	if logger == nil {
		logger = slog.Default()
	}

	return &CronTrigger{
		spec:     spec,
		schedule: schedule,
		job:      job,
		logger:   logger,
	}, nil
}

// Spec returns the cron specification.
func (ct *CronTrigger) Spec() string {
	return ct.spec
}

// Start launches a goroutine that triggers runs according to the cron schedule.
// Returns immediately. The goroutine exits when ctx is cancelled.
func (ct *CronTrigger) Start(ctx context.Context) {
	go ct.loop(ctx)
}

// NextRun returns the next scheduled run time from now.
func (ct *CronTrigger) NextRun() time.Time {
	return ct.schedule.Next(time.Now())
}

// LastRun returns when the job last finished and its error, or the zero time if it never ran.
func (ct *CronTrigger) LastRun() (time.Time, error) {
	ct.mu.Lock()
	defer ct.mu.Unlock()
	return ct.lastRun, ct.lastErr
}

// Trigger runs the job now, outside the schedule, and returns its error.
func (ct *CronTrigger) Trigger(ctx context.Context) error {
	return ct.execute(ctx)
}

// loop is the main scheduling loop that runs in a goroutine.
func (ct *CronTrigger) loop(ctx context.Context) {
	for {
		nextRun := ct.schedule.Next(time.Now())
		waitDuration := time.Until(nextRun)

		ct.logger.Debug("waiting for next scheduled run",
			"next_run", nextRun,
			"wait_duration", waitDuration,
		)

		timer := time.NewTimer(waitDuration)
		select {
		case <-ctx.Done():
			timer.Stop()
			ct.logger.Info("cron trigger shutting down")
			return
		case <-timer.C:
			if err := ct.execute(ctx); err != nil {
				ct.logger.Warn("scheduled run completed with error", "error", err)
			} else {
				ct.logger.Debug("scheduled run completed successfully")
			}
		}
	}
}

func (ct *CronTrigger) execute(ctx context.Context) error {
	ct.runMu.Lock()
	defer ct.runMu.Unlock()

	err := ct.job(ctx)

	ct.mu.Lock()
	ct.lastRun = time.Now()
	ct.lastErr = err
	ct.mu.Unlock()
	return err
}
