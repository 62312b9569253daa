// Package jobs runs periodic maintenance. Each job runs under an advisory
// lock, so with several replicas only one of them does the work per tick.
package jobs

import (
	"context"
	"errors"
	"fmt"
	"time"

	"ms-activity/internal/booking"
	"ms-activity/internal/lock"
	"ms-activity/internal/logger"
)

type Job struct {
	Name string
	Run  func(ctx context.Context) error
}

type Scheduler struct {
	Locker   lock.Locker
	Logger   *logger.Logger
	Interval time.Duration
	jobs     []Job
}

func NewScheduler(locker lock.Locker, log *logger.Logger, interval time.Duration) *Scheduler {
	return &Scheduler{Locker: locker, Logger: log, Interval: interval}
}

func (s *Scheduler) Add(name string, run func(ctx context.Context) error) {
	s.jobs = append(s.jobs, Job{Name: name, Run: run})
}

// Start runs every job once and then on each tick until ctx is done.
func (s *Scheduler) Start(ctx context.Context) {
	ticker := time.NewTicker(s.Interval)
	defer ticker.Stop()

	s.Logger.Info("SCHEDULER", fmt.Sprintf("Started %d job(s), interval %s", len(s.jobs), s.Interval))
	for {
		if err := s.RunOnce(ctx); err != nil {
			s.Logger.Error("SCHEDULER", err.Error())
		}
		select {
		case <-ctx.Done():
			s.Logger.Info("SCHEDULER", "Stopped")
			return
		case <-ticker.C:
		}
	}
}

// RunOnce runs every job a single time. A job whose lock is held elsewhere
// is skipped.
func (s *Scheduler) RunOnce(ctx context.Context) error {
	var errs []error
	for _, job := range s.jobs {
		err := lock.WithLock(ctx, s.Locker, lock.NamespaceJob, job.Name, job.Run)
		switch {
		case errors.Is(err, lock.ErrAlreadyLocked):
			s.Logger.Debug("SCHEDULER", fmt.Sprintf("Job %s skipped, running elsewhere", job.Name))
		case err != nil:
			errs = append(errs, fmt.Errorf("job %s: %w", job.Name, err))
		}
	}
	return errors.Join(errs...)
}

// ArchivePeriods is the job archiving finalized periods whose execution
// ended.
func ArchivePeriods(svc *booking.Service, log *logger.Logger) func(ctx context.Context) error {
	return func(ctx context.Context) error {
		archived, err := svc.ArchiveDue(ctx)
		for _, id := range archived {
			log.Info("SCHEDULER", fmt.Sprintf("Archived period %s", id))
		}
		return err
	}
}
