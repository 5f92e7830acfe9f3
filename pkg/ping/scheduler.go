package ping

import (
	"context"
	"fmt"
	"time"

	"github.com/robfig/cron/v3"
	"github.com/sirupsen/logrus"
)

// Scheduler invokes jobs periodically. The coordinator only relies on jobs
// running "roughly every interval, eventually".
type Scheduler interface {
	Schedule(spec string, job func()) error
}

// SchedulePeriodic registers a job on s that triggers every interval with
// the coordinator deadline. Jobs derive their context from ctx, so
// cancelling it aborts a running attempt and turns later runs into no-ops.
// A job that overruns is cancelled and counts as a failed attempt.
func (c *Coordinator) SchedulePeriodic(ctx context.Context, s Scheduler, interval time.Duration) error {
	if interval <= 0 {
		return fmt.Errorf("ping: invalid interval %v", interval)
	}

	return s.Schedule("@every "+interval.String(), func() {
		if ctx.Err() != nil {
			return
		}
		jobCtx, cancel := context.WithTimeout(ctx, c.opts.Deadline)
		defer cancel()
		c.Trigger(jobCtx)
	})
}

// CronScheduler is a Scheduler backed by robfig/cron. Overlapping runs of
// the same job are skipped and panics are recovered.
type CronScheduler struct {
	cron *cron.Cron
}

// NewCronScheduler creates a stopped scheduler running in UTC.
func NewCronScheduler(logger logrus.FieldLogger) *CronScheduler {
	if logger == nil {
		logger = logrus.StandardLogger()
	}
	cronLogger := cron.PrintfLogger(logger.WithField("component", "scheduler"))

	return &CronScheduler{
		cron: cron.New(
			cron.WithLocation(time.UTC),
			cron.WithLogger(cronLogger),
			cron.WithChain(cron.Recover(cronLogger), cron.SkipIfStillRunning(cronLogger)),
		),
	}
}

// Schedule adds job under a cron spec such as "@every 4h".
func (s *CronScheduler) Schedule(spec string, job func()) error {
	if _, err := s.cron.AddFunc(spec, job); err != nil {
		return fmt.Errorf("schedule %q: %w", spec, err)
	}
	return nil
}

// Start runs the scheduler in its own goroutine.
func (s *CronScheduler) Start() {
	s.cron.Start()
}

// Stop stops scheduling; the returned context is done once running jobs
// have finished.
func (s *CronScheduler) Stop() context.Context {
	return s.cron.Stop()
}
