// Package scheduler drives the periodic refresh and recomputation jobs.
package scheduler

import (
	"context"
	"time"

	"github.com/go-co-op/gocron"
	"github.com/google/uuid"
	"github.com/hydrometrie/watertracker/internal/log"
)

// defaultJobTimeout bounds a single job run. Upstream APIs are slow but a
// refresh that takes longer than this is stuck, not slow.
const defaultJobTimeout = 45 * time.Minute

// Job is one scheduled unit of work.
type Job struct {
	Name string
	// Cron is a standard five-field cron expression.
	Cron string
	// Timeout overrides defaultJobTimeout when positive.
	Timeout time.Duration
	Run     func(ctx context.Context) error
}

// Scheduler wraps gocron with per-job contexts and logging.
type Scheduler struct {
	scheduler *gocron.Scheduler
	base      context.Context
}

// New creates a scheduler. Jobs inherit cancellation from ctx.
func New(ctx context.Context) *Scheduler {
	return &Scheduler{
		scheduler: gocron.NewScheduler(time.UTC),
		base:      ctx,
	}
}

// Add registers a job. Jobs with an empty cron expression are skipped, which
// lets callers register every source unconditionally and disable them from
// configuration.
func (s *Scheduler) Add(job Job) error {
	if job.Cron == "" {
		log.Debugf("scheduler: job %s has no schedule, skipping", job.Name)
		return nil
	}

	// SingletonMode keeps a slow refresh from overlapping its next firing
	tag := uuid.New().String()
	_, err := s.scheduler.Cron(job.Cron).SingletonMode().Tag(job.Name, tag).Do(func() {
		s.runJob(job)
	})
	if err != nil {
		return err
	}
	log.Infof("scheduler: job %s scheduled (%s)", job.Name, job.Cron)
	return nil
}

func (s *Scheduler) runJob(job Job) {
	timeout := job.Timeout
	if timeout <= 0 {
		timeout = defaultJobTimeout
	}
	ctx, cancel := context.WithTimeout(s.base, timeout)
	defer cancel()

	start := time.Now()
	log.Infof("scheduler: job %s starting", job.Name)
	if err := job.Run(ctx); err != nil {
		log.Errorf("scheduler: job %s failed after %s: %v", job.Name, time.Since(start), err)
		return
	}
	log.Infof("scheduler: job %s completed in %s", job.Name, time.Since(start))
}

// Start launches the scheduler in the background.
func (s *Scheduler) Start() {
	s.scheduler.StartAsync()
}

// Stop halts the scheduler and waits for running jobs to return.
func (s *Scheduler) Stop() {
	s.scheduler.Stop()
}

// RunNow executes a job immediately, outside its schedule.
func (s *Scheduler) RunNow(job Job) {
	s.runJob(job)
}
