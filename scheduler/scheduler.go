// Package scheduler runs bundle jobs on cron schedules.
package scheduler

import (
	"context"
	"fmt"

	"github.com/robfig/cron/v3"
	"github.com/rs/zerolog"
)

type BundleJob interface {
	Run()
}

type SchedulerParams struct {
	Logger zerolog.Logger
}

func NewScheduler(params SchedulerParams) *Scheduler {
	logger := cronLogger{params.Logger}
	return &Scheduler{
		// A job still bundling when its next run is due is skipped.
		cron: cron.New(
			cron.WithLogger(logger),
			cron.WithChain(cron.Recover(logger), cron.SkipIfStillRunning(logger)),
		),
		logger: params.Logger,
		jobs:   make(map[cron.EntryID]BundleJob),
	}
}

type Scheduler struct {
	cron   *cron.Cron
	jobs   map[cron.EntryID]BundleJob
	logger zerolog.Logger
}

// Start the scheduler in its own routine.
func (s *Scheduler) Start() {
	s.cron.Start()
}

func (s *Scheduler) Stop() {
	<-s.cron.Stop().Done()
}

func (s *Scheduler) AddBundleJob(ctx context.Context, schedule string, job BundleJob) error {
	entry, err := s.cron.AddJob(schedule, job)
	if err != nil {
		return fmt.Errorf("could not add bundle job: %w", err)
	}

	s.jobs[entry] = job
	s.logger.Debug().Int("entry", int(entry)).Str("schedule", schedule).Msg("scheduled bundle job")

	return nil
}

func (s *Scheduler) RemoveJobs() {
	for entry := range s.jobs {
		s.cron.Remove(entry)
		delete(s.jobs, entry)
	}
}

// Len returns the number of scheduled jobs.
func (s *Scheduler) Len() int {
	return len(s.jobs)
}

// cronLogger adapts zerolog to the cron logger.
type cronLogger struct {
	parent zerolog.Logger
}

func (l cronLogger) Info(msg string, keysAndValues ...any) {
	l.parent.Debug().Fields(keysAndValues).Msg(msg)
}

func (l cronLogger) Error(err error, msg string, keysAndValues ...any) {
	l.parent.Error().Err(err).Fields(keysAndValues).Msg(msg)
}
