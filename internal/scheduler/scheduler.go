package scheduler

import (
	"context"
	"log/slog"
	"sync"
	"time"
)

// Job is a schedulable unit of work. Exactly one of Cron or Every is set:
// cron jobs fire on matching minutes, interval jobs fire every Every.
type Job struct {
	Name  string
	Cron  *CronExpr
	Every time.Duration
	Run   func(ctx context.Context) error

	lastTick time.Time
	inFlight bool
}

// Scheduler runs registered jobs from a single tick loop. A job never
// overlaps itself: a tick matching a job still running is skipped.
type Scheduler struct {
	tick time.Duration

	mu   sync.Mutex
	jobs map[string]*Job
}

// New creates a Scheduler. tick is the loop resolution; it defaults to 10s,
// short enough for sub-minute interval jobs.
func New(tick time.Duration) *Scheduler {
	if tick <= 0 {
		tick = 10 * time.Second
	}
	return &Scheduler{tick: tick, jobs: make(map[string]*Job)}
}

// Register adds a job, replacing any job with the same name.
func (s *Scheduler) Register(job *Job) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.jobs[job.Name] = job
	slog.Info("scheduler job registered", "name", job.Name)
}

// Unregister removes a job by name.
func (s *Scheduler) Unregister(name string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.jobs, name)
}

// Run starts the tick loop. Blocks until ctx is cancelled.
func (s *Scheduler) Run(ctx context.Context) error {
	slog.Info("scheduler started", "tick", s.tick, "jobs", len(s.jobs))
	ticker := time.NewTicker(s.tick)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			slog.Info("scheduler stopped")
			return ctx.Err()
		case t := <-ticker.C:
			s.fire(ctx, t)
		}
	}
}

// fire dispatches every job due at now.
func (s *Scheduler) fire(ctx context.Context, now time.Time) {
	s.mu.Lock()
	defer s.mu.Unlock()

	for _, job := range s.jobs {
		if !s.due(job, now) {
			continue
		}
		if job.inFlight {
			slog.Warn("scheduler job skipped: previous run still in flight", "job", job.Name)
			continue
		}
		job.lastTick = now
		job.inFlight = true
		go s.dispatch(ctx, job)
	}
}

// due reports whether the job should fire at now. Cron jobs fire at most
// once per matching minute.
func (s *Scheduler) due(job *Job, now time.Time) bool {
	if job.Cron != nil {
		if !job.Cron.Matches(now) {
			return false
		}
		return job.lastTick.IsZero() || !now.Truncate(time.Minute).Equal(job.lastTick.Truncate(time.Minute))
	}
	if job.Every > 0 {
		return job.lastTick.IsZero() || now.Sub(job.lastTick) >= job.Every
	}
	return false
}

func (s *Scheduler) dispatch(ctx context.Context, job *Job) {
	defer func() {
		s.mu.Lock()
		job.inFlight = false
		s.mu.Unlock()
	}()
	if err := job.Run(ctx); err != nil {
		slog.Warn("scheduler job failed", "job", job.Name, "error", err)
	}
}
