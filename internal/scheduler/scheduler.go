// Package scheduler manages the cron-driven background jobs: price sync,
// daily snapshots, commission generation and the realtime broadcast tick.
package scheduler

import (
	"fmt"

	"github.com/robfig/cron/v3"
	"go.uber.org/zap"

	"custodia/internal/logger"
)

// Job is a named unit of scheduled work.
type Job interface {
	Run() error
	Name() string
}

// Scheduler wraps a seconds-resolution cron runner. Jobs never bring the
// process down: failures are logged and panics are recovered.
type Scheduler struct {
	cron *cron.Cron
	log  *zap.SugaredLogger
}

// New creates a scheduler. Schedules use the six-field spec with a leading
// seconds column, e.g. "0 0 19 * * MON-FRI".
func New() *Scheduler {
	return &Scheduler{
		cron: cron.New(cron.WithSeconds()),
		log:  logger.Named("scheduler"),
	}
}

// Start launches the cron runner in its own goroutine.
func (s *Scheduler) Start() {
	s.cron.Start()
	s.log.Info("Scheduler started")
}

// Stop halts scheduling and waits for running jobs to finish.
func (s *Scheduler) Stop() {
	ctx := s.cron.Stop()
	<-ctx.Done()
	s.log.Info("Scheduler stopped")
}

// AddJob registers a job under the given cron schedule.
func (s *Scheduler) AddJob(schedule string, job Job) error {
	if _, err := s.cron.AddFunc(schedule, s.wrap(job)); err != nil {
		return fmt.Errorf("registering job %s: %w", job.Name(), err)
	}

	s.log.Infow("Job registered", "job", job.Name(), "schedule", schedule)
	return nil
}

// RunNow executes a job immediately, outside its schedule.
func (s *Scheduler) RunNow(job Job) error {
	s.log.Infow("Running job immediately", "job", job.Name())
	return job.Run()
}

// wrap turns a Job into a cron closure with logging and panic recovery.
func (s *Scheduler) wrap(job Job) func() {
	return func() {
		defer func() {
			if r := recover(); r != nil {
				s.log.Errorw("Job panicked", "job", job.Name(), "panic", r)
			}
		}()

		s.log.Debugw("Running job", "job", job.Name())
		if err := job.Run(); err != nil {
			s.log.Errorw("Job failed", "job", job.Name(), "error", err)
			return
		}
		s.log.Debugw("Job completed", "job", job.Name())
	}
}
